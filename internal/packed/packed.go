// Package packed 按字节偏移解码紧凑 (packed) 二进制记录
//
// 线上格式的多字节字段可能落在任意偏移，因此每个字段都用
// binary.LittleEndian 在固定偏移处显式读取，从不把字节切片
// 直接重新解释为结构体。
package packed

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"cine-reader/internal/cineerr"
)

var le = binary.LittleEndian

// Record 一个有固定线上长度的记录
type Record interface {
	WireSize() int
	DecodeFields(f Fields)
}

// Fields 线上记录的只读字段视图
type Fields struct {
	b []byte
}

// NewFields 包装一段字节
func NewFields(b []byte) Fields {
	return Fields{b: b}
}

// Len 返回字节长度
func (f Fields) Len() int { return len(f.b) }

func (f Fields) U8(off int) uint8 { return f.b[off] }

// Bool8 单字节布尔值，非 0 即 true
func (f Fields) Bool8(off int) bool { return f.b[off] != 0 }

func (f Fields) U16(off int) uint16 { return le.Uint16(f.b[off : off+2]) }
func (f Fields) I16(off int) int16  { return int16(f.U16(off)) }
func (f Fields) U32(off int) uint32 { return le.Uint32(f.b[off : off+4]) }
func (f Fields) I32(off int) int32  { return int32(f.U32(off)) }
func (f Fields) U64(off int) uint64 { return le.Uint64(f.b[off : off+8]) }
func (f Fields) I64(off int) int64  { return int64(f.U64(off)) }

func (f Fields) F32(off int) float32 { return math.Float32frombits(f.U32(off)) }
func (f Fields) F64(off int) float64 { return math.Float64frombits(f.U64(off)) }

// Bytes 拷贝 [off, off+n)
func (f Fields) Bytes(off, n int) []byte {
	out := make([]byte, n)
	copy(out, f.b[off:off+n])
	return out
}

// String 定长字符数组，截掉第一个 NUL 之后的内容
func (f Fields) String(off, n int) string {
	raw := f.b[off : off+n]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

// Decode 把恰好 WireSize 字节解码为 T
func Decode[T any, P interface {
	*T
	Record
}](b []byte) (T, error) {
	var v T
	p := P(&v)
	size := p.WireSize()
	if len(b) < size {
		return v, cineerr.Truncated(fmt.Sprintf("decode %T", v), 0, size, len(b))
	}
	if len(b) > size {
		return v, cineerr.IO(fmt.Sprintf("decode %T", v), 0,
			fmt.Errorf("size mismatch: record is %d bytes, got %d", size, len(b)))
	}
	p.DecodeFields(Fields{b: b})
	return v, nil
}

// ReadAt 从 r 的 offset 处读取一条记录并解码
func ReadAt[T any, P interface {
	*T
	Record
}](r io.ReaderAt, offset int64) (T, error) {
	var zero T
	size := P(&zero).WireSize()
	buf := make([]byte, size)
	n, err := r.ReadAt(buf, offset)
	if n < size {
		if err == nil || err == io.EOF {
			return zero, cineerr.Truncated(fmt.Sprintf("read %T", zero), offset, size, n)
		}
		return zero, cineerr.IO(fmt.Sprintf("read %T", zero), offset, err)
	}
	return Decode[T, P](buf)
}
