// Package cinetest 生成测试用的合成 CINE 文件
package cinetest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"cine-reader/internal/config"
	"cine-reader/internal/decompress"
	"cine-reader/internal/models"
)

// Options 合成文件参数
type Options struct {
	Width       int
	Height      int
	Compression uint32     // 0, 256, 1024 或任意未知代码
	CFA         uint32     // SETUP.CFA 原值
	FlipV       bool       // SETUP.FlipV
	Frames      [][]uint16 // 每帧自上而下的样本
	Annotation  uint32     // 注释块长度，0 表示 8
}

// Flat 生成 n 帧常量样本
func Flat(width, height, frames int, value uint16) [][]uint16 {
	out := make([][]uint16, frames)
	for f := range out {
		s := make([]uint16, width*height)
		for i := range s {
			s[i] = value
		}
		out[f] = s
	}
	return out
}

// Ramp 生成 n 帧递增样本，第 f 帧从 f 开始
func Ramp(width, height, frames int, mask uint16) [][]uint16 {
	out := make([][]uint16, frames)
	for f := range out {
		s := make([]uint16, width*height)
		for i := range s {
			s[i] = uint16(f+i) & mask
		}
		out[f] = s
	}
	return out
}

// Payload 按压缩方式编码一帧
func Payload(compression uint32, width int, samples []uint16) []byte {
	switch compression {
	case config.CompressionPacked10:
		return decompress.Pack10(samples)
	case config.CompressionPacked12:
		return decompress.Pack12(samples)
	}

	// 未压缩: 每样本一字节，行序自下而上
	out := make([]byte, len(samples))
	rows := len(samples) / width
	for r := 0; r < rows; r++ {
		src := samples[r*width : (r+1)*width]
		dst := out[(rows-1-r)*width : (rows-r)*width]
		for i, v := range src {
			dst[i] = byte(v)
		}
	}
	return out
}

// Build 生成完整的文件字节
//
// 布局: 文件头 | BITMAPINFOHEADER | SETUP | 帧偏移表 | (注释块 + 像素数据) * n
func Build(o Options) []byte {
	annotation := o.Annotation
	if annotation == 0 {
		annotation = 8
	}

	payloads := make([][]byte, len(o.Frames))
	for i, f := range o.Frames {
		payloads[i] = Payload(o.Compression, o.Width, f)
	}
	sizeImage := 0
	if len(payloads) > 0 {
		sizeImage = len(payloads[0])
	}

	const offBitmap = config.FileHeaderSize
	const offSetup = offBitmap + config.BitmapHeaderSize
	const offTable = offSetup + config.SetupWireSize
	offFrames := offTable + config.FrameOffsetSize*len(o.Frames)

	buf := make([]byte, offFrames, offFrames+len(o.Frames)*(int(annotation)+sizeImage))
	le := binary.LittleEndian

	copy(buf[0:], config.FileType)
	le.PutUint16(buf[2:], config.FileHeaderSize)
	le.PutUint16(buf[4:], 0)
	le.PutUint16(buf[6:], 1)
	le.PutUint32(buf[12:], uint32(len(o.Frames)))
	le.PutUint32(buf[20:], uint32(len(o.Frames)))
	le.PutUint32(buf[24:], offBitmap)
	le.PutUint32(buf[28:], offSetup)
	le.PutUint32(buf[32:], offTable)

	bmp := buf[offBitmap:]
	le.PutUint32(bmp[0:], config.BitmapHeaderSize)
	le.PutUint32(bmp[4:], uint32(int32(o.Width)))
	le.PutUint32(bmp[8:], uint32(int32(o.Height)))
	le.PutUint16(bmp[12:], 1)
	le.PutUint16(bmp[14:], 16)
	le.PutUint32(bmp[16:], o.Compression)
	le.PutUint32(bmp[20:], uint32(sizeImage))

	setup := models.PackSetup(models.Setup{
		Length:      config.SetupWireSize,
		ImWidth:     uint16(o.Width),
		ImHeight:    uint16(o.Height),
		FlipV:       o.FlipV,
		FrameRate:   1000,
		EnableColor: o.CFA&config.CFAPatternMask != 0,
		CFA:         o.CFA,
		Gamma:       1,
	})
	copy(buf[offSetup:], setup.Raw[:])

	for i, p := range payloads {
		le.PutUint64(buf[offTable+i*config.FrameOffsetSize:], uint64(len(buf)))
		ann := make([]byte, annotation)
		le.PutUint32(ann, annotation)
		buf = append(buf, ann...)
		buf = append(buf, p...)
	}
	return buf
}

// WriteFile 在 t.TempDir 下写出合成文件，返回路径
func WriteFile(t testing.TB, name string, o Options) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, Build(o), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
