// Package logging 进程级结构化日志
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger    *slog.Logger
	loggerMu  sync.RWMutex
	debugMode bool
	output    io.Writer = os.Stdout
)

func init() {
	// 默认 Info 级别，输出到 stdout
	rebuild()
}

// rebuild 调用方需持有写锁 (init 除外)
func rebuild() {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: level,
	}))
}

// SetDebugMode 设置调试模式
func SetDebugMode(enabled bool) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	debugMode = enabled
	rebuild()
}

// IsDebugMode 是否调试模式
func IsDebugMode() bool {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return debugMode
}

// SetOutput 替换输出目标
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	output = w
	rebuild()
}

func current() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// With 带固定属性的子 logger，例如 logging.With("component", "stream")
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// LogDebug 调试日志
func LogDebug(msg string, args ...any) { current().Debug(msg, args...) }

// LogInfo 信息日志
func LogInfo(msg string, args ...any) { current().Info(msg, args...) }

// LogWarn 警告日志
func LogWarn(msg string, args ...any) { current().Warn(msg, args...) }

// LogError 错误日志
func LogError(msg string, args ...any) { current().Error(msg, args...) }
