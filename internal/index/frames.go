package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"cine-reader/internal/cineerr"
	"cine-reader/internal/config"
)

// FrameTable 帧偏移表: 每帧一个 int64 LE 文件偏移
type FrameTable struct {
	offsets  []int64
	fileSize int64
}

// Read 从 offset 处读取 count 个连续的帧偏移
//
// 偏移值在 Lookup 时才校验，读表本身只检查长度。
func Read(r io.ReaderAt, offset int64, count uint32, fileSize int64) (*FrameTable, error) {
	size := int(count) * config.FrameOffsetSize
	if offset < 0 || offset+int64(size) > fileSize {
		return nil, cineerr.Truncated("read frame table", offset, size, int(max(0, fileSize-offset)))
	}

	buf := make([]byte, size)
	n, err := r.ReadAt(buf, offset)
	if n < size {
		if err == nil || err == io.EOF {
			return nil, cineerr.Truncated("read frame table", offset, size, n)
		}
		return nil, cineerr.IO("read frame table", offset, err)
	}

	offsets := make([]int64, count)
	for i := range offsets {
		offsets[i] = int64(binary.LittleEndian.Uint64(buf[i*config.FrameOffsetSize:]))
	}

	return &FrameTable{offsets: offsets, fileSize: fileSize}, nil
}

// NewFrameTable 直接用已知偏移构建
func NewFrameTable(offsets []int64, fileSize int64) *FrameTable {
	return &FrameTable{offsets: offsets, fileSize: fileSize}
}

// Len 帧数
func (t *FrameTable) Len() int {
	return len(t.offsets)
}

// Lookup 返回第 n 帧注释块的文件偏移
func (t *FrameTable) Lookup(n int) (int64, error) {
	if n < 0 || n >= len(t.offsets) {
		return 0, &cineerr.OutOfRangeError{Frame: n, Count: len(t.offsets)}
	}

	off := t.offsets[n]
	switch {
	case off < 0:
		return 0, cineerr.IO(fmt.Sprintf("frame %d", n), off, errors.New("negative frame offset"))
	case n > 0 && off < t.offsets[n-1]:
		return 0, cineerr.IO(fmt.Sprintf("frame %d", n), off,
			fmt.Errorf("frame offset below previous entry %d", t.offsets[n-1]))
	case off >= t.fileSize:
		return 0, cineerr.IO(fmt.Sprintf("frame %d", n), off,
			fmt.Errorf("frame offset past end of file (%d bytes)", t.fileSize))
	}
	return off, nil
}
