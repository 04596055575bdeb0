// Package mmap 只读内存映射文件
package mmap

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// File mmap 映射的只读文件
type File struct {
	path string
	data []byte // mmap 映射的原始数据
}

// Open 以只读方式映射整个文件
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := info.Size()
	if size == 0 {
		return nil, fmt.Errorf("mmap %s: empty file", path)
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("mmap %s: file too large (%d bytes)", path, size)
	}

	// 映射后可以关闭文件描述符
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &File{path: path, data: data}, nil
}

// Path 返回映射的文件路径
func (m *File) Path() string {
	return m.path
}

// Size 文件长度
func (m *File) Size() int64 {
	return int64(len(m.data))
}

// ReadAt 实现 io.ReaderAt，按位置读取，不共享游标
func (m *File) ReadAt(p []byte, off int64) (int, error) {
	if m.data == nil {
		return 0, os.ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("mmap %s: negative offset %d", m.path, off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Slice 零拷贝返回 [off, off+n)，越界返回 false
//
// 返回的切片在 Close 之后失效。
func (m *File) Slice(off int64, n int) ([]byte, bool) {
	if m.data == nil || off < 0 || n < 0 || off+int64(n) > int64(len(m.data)) {
		return nil, false
	}
	return m.data[off : off+int64(n) : off+int64(n)], true
}

// Close 释放 mmap 映射
func (m *File) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
