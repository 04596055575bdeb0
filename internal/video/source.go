// Package video 按帧号读取视频容器中的像素数据
package video

import (
	"path/filepath"
	"slices"
	"strings"

	"cine-reader/internal/cineerr"
	"cine-reader/internal/config"
)

// Headers 对外暴露的视频基本信息
type Headers struct {
	Name       string `json:"name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FrameCount int    `json:"frameCount"`
	Channels   int    `json:"channels"` // 1 灰度, 3 RGB
	BitDepth   int    `json:"bitDepth"` // 传感器样本位数，输出统一为 16 位
}

// Source 一个打开的视频
//
// Frame 返回的切片归 Source 所有，下一次调用 Frame 时被覆盖。
// Source 不能并发调用 Frame。
type Source interface {
	Headers() Headers
	Frame(n int) ([]uint16, error)
	Close() error
}

// Open 按扩展名 (不区分大小写) 选择容器
func Open(path string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(config.SupportedExtensions(), ext) {
		return nil, cineerr.Unsupported("unrecognized extension %q", ext)
	}

	switch ext {
	case ".cine":
		return OpenCine(path)
	default:
		return nil, cineerr.NotImplemented(strings.TrimPrefix(ext, ".") + " container")
	}
}
