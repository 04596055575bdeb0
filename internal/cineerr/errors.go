// Package cineerr CINE 解码错误分类
//
// 所有核心包只返回这里定义的错误，调用方用 errors.Is / errors.As 区分。
package cineerr

import (
	"errors"
	"fmt"
)

var (
	ErrIO                  = errors.New("io error")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrOutOfRange          = errors.New("frame out of range")
	ErrConversion          = errors.New("conversion failed")
	ErrNotImplemented      = errors.New("not implemented")
)

// IOError 读取失败或文件被截断
type IOError struct {
	Op     string
	Offset int64
	Err    error
}

func (e *IOError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s at offset %d: %v", e.Op, e.Offset, ErrIO)
	}
	return fmt.Sprintf("%s at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *IOError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrIO}
	}
	return []error{ErrIO, e.Err}
}

// OutOfRangeError 帧号不在 [0, Count) 内
type OutOfRangeError struct {
	Frame int
	Count int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("frame %d not in [0, %d)", e.Frame, e.Count)
}

func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// ConversionError 像素重建或导出失败，保留底层原因
type ConversionError struct {
	Kind string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("failed to convert %s: %v", e.Kind, e.Err)
}

func (e *ConversionError) Unwrap() []error {
	return []error{ErrConversion, e.Err}
}

// IO 构造 IOError
func IO(op string, offset int64, err error) error {
	return &IOError{Op: op, Offset: offset, Err: err}
}

// Truncated 数据不足
func Truncated(op string, offset int64, want, got int) error {
	return &IOError{Op: op, Offset: offset, Err: fmt.Errorf("truncated: need %d bytes, have %d", want, got)}
}

// Unsupported 不支持的扩展名、压缩代码或 CFA 类型
func Unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedFileType, fmt.Sprintf(format, args...))
}

// NotImplemented 可识别但未实现的容器或导出格式
func NotImplemented(what string) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, what)
}

// Conversion 构造 ConversionError
func Conversion(kind string, err error) error {
	return &ConversionError{Kind: kind, Err: err}
}
