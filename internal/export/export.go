// Package export 把重建后的像素编码为可保存或传输的格式
package export

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/xfmoulet/qoi"

	"cine-reader/internal/cineerr"
	"cine-reader/internal/config"
	"cine-reader/internal/video"
)

// Kind 输出格式
type Kind int

const (
	Raw    Kind = iota // u16 样本副本
	Bytes              // u16 小端字节
	PNG                // 16 位 PNG
	Base64             // PNG 的 base64 文本
	JPEG               // 8 位 JPEG
	QOI                // 8 位 QOI
	Zstd               // Bytes 的 zstd 压缩
	MP4                // 尚未实现
)

var kindNames = []string{"raw", "bytes", "png", "base64", "jpeg", "qoi", "zstd", "mp4"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind 接受格式名或文件扩展名
func ParseKind(s string) (Kind, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	switch name {
	case "jpg":
		return JPEG, nil
	case "b64":
		return Base64, nil
	case "zst":
		return Zstd, nil
	case "bin":
		return Bytes, nil
	}
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, cineerr.Unsupported("unknown export format %q", s)
}

// ContentType HTTP Content-Type
func (k Kind) ContentType() string {
	switch k {
	case PNG:
		return "image/png"
	case JPEG:
		return "image/jpeg"
	case QOI:
		return "image/qoi"
	case Base64:
		return "text/plain; charset=utf-8"
	case Zstd:
		return "application/zstd"
	case MP4:
		return "video/mp4"
	}
	return "application/octet-stream"
}

// Extension 保存文件时的扩展名
func (k Kind) Extension() string {
	switch k {
	case Raw, Bytes:
		return ".bin"
	case Base64:
		return ".b64"
	case Zstd:
		return ".zst"
	}
	return "." + k.String()
}

// Frame 编码结果，归调用方所有
type Frame struct {
	Kind Kind
	Raw  []uint16 // 仅 Raw
	Data []byte   // 其余格式
}

// Bytes 返回结果的字节形式，Raw 按小端序列化
func (f *Frame) Bytes() []byte {
	if f.Kind == Raw {
		return samplesLE(nil, f.Raw)
	}
	return f.Data
}

// Option 编码器选项
type Option func(*Encoder)

// WithJPEGQuality 设置 JPEG 质量 (1-100)
func WithJPEGQuality(q int) Option {
	return func(e *Encoder) {
		e.jpegQuality = min(max(q, 1), 100)
	}
}

// Encoder 持有可复用的输出缓冲区和 zstd 编码器，不能并发使用
type Encoder struct {
	buf         bytes.Buffer
	raw         []byte
	png         png.Encoder
	zenc        *zstd.Encoder
	jpegQuality int
}

// NewEncoder 创建编码器
func NewEncoder(opts ...Option) (*Encoder, error) {
	zenc, err := zstd.NewWriter(nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	e := &Encoder{
		zenc:        zenc,
		jpegQuality: config.JPEGQuality,
		png: png.Encoder{
			CompressionLevel: png.BestSpeed,
			BufferPool:       &pngBuffer{},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close 释放 zstd 编码器
func (e *Encoder) Close() error {
	return e.zenc.Close()
}

// Encode 编码一帧像素
//
// channels 为 1 (灰度) 或 3 (交错 RGB)，len(pixels) 必须等于 width*height*channels。
func (e *Encoder) Encode(kind Kind, pixels []uint16, width, height, channels int) (*Frame, error) {
	if err := checkFrame(pixels, width, height, channels); err != nil {
		return nil, cineerr.Conversion(kind.String(), err)
	}

	out := &Frame{Kind: kind}
	switch kind {
	case Raw:
		out.Raw = append([]uint16(nil), pixels...)
		return out, nil
	case Bytes:
		out.Data = samplesLE(nil, pixels)
		return out, nil
	case Zstd:
		e.raw = samplesLE(e.raw[:0], pixels)
		out.Data = e.zenc.EncodeAll(e.raw, nil)
		return out, nil
	case MP4:
		return nil, cineerr.NotImplemented("mp4 export")
	}

	e.buf.Reset()
	var err error
	switch kind {
	case PNG, Base64:
		err = e.png.Encode(&e.buf, image16(pixels, width, height, channels))
	case JPEG:
		err = jpeg.Encode(&e.buf, image8(pixels, width, height, channels), &jpeg.Options{Quality: e.jpegQuality})
	case QOI:
		err = qoi.Encode(&e.buf, imageNRGBA(pixels, width, height, channels))
	default:
		return nil, cineerr.Unsupported("unknown export format %v", kind)
	}
	if err != nil {
		return nil, cineerr.Conversion(kind.String(), err)
	}

	if kind == Base64 {
		out.Data = []byte(base64.StdEncoding.EncodeToString(e.buf.Bytes()))
	} else {
		out.Data = bytes.Clone(e.buf.Bytes())
	}
	return out, nil
}

// SaveFrame 读取第 n 帧并写到 path
func (e *Encoder) SaveFrame(src video.Source, n int, kind Kind, path string) error {
	if kind == MP4 {
		return cineerr.NotImplemented("mp4 export")
	}

	pixels, err := src.Frame(n)
	if err != nil {
		return err
	}
	h := src.Headers()
	frame, err := e.Encode(kind, pixels, h.Width, h.Height, h.Channels)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return cineerr.IO("create "+dir, 0, err)
		}
	}
	if err := os.WriteFile(path, frame.Bytes(), 0o644); err != nil {
		return cineerr.IO("write "+path, 0, err)
	}
	return nil
}

// FrameFileName 帧文件名: <name>_000042.png
func FrameFileName(name string, n int, kind Kind) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return fmt.Sprintf("%s_%06d%s", base, n, kind.Extension())
}

func checkFrame(pixels []uint16, width, height, channels int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid size %dx%d", width, height)
	}
	if channels != 1 && channels != 3 {
		return fmt.Errorf("unsupported channel count %d", channels)
	}
	if want := width * height * channels; len(pixels) != want {
		return fmt.Errorf("have %d samples, %dx%dx%d needs %d", len(pixels), width, height, channels, want)
	}
	return nil
}

func samplesLE(dst []byte, pixels []uint16) []byte {
	for _, v := range pixels {
		dst = binary.LittleEndian.AppendUint16(dst, v)
	}
	return dst
}

// image16 16 位图像，灰度用 Gray16，彩色用不透明的 RGBA64
func image16(pixels []uint16, width, height, channels int) image.Image {
	rect := image.Rect(0, 0, width, height)
	if channels == 1 {
		img := image.NewGray16(rect)
		for i, v := range pixels {
			binary.BigEndian.PutUint16(img.Pix[i*2:], v)
		}
		return img
	}

	img := image.NewRGBA64(rect)
	for i := 0; i < width*height; i++ {
		img.Pix[i*8+0], img.Pix[i*8+1] = byte(pixels[i*3]>>8), byte(pixels[i*3])
		img.Pix[i*8+2], img.Pix[i*8+3] = byte(pixels[i*3+1]>>8), byte(pixels[i*3+1])
		img.Pix[i*8+4], img.Pix[i*8+5] = byte(pixels[i*3+2]>>8), byte(pixels[i*3+2])
		img.Pix[i*8+6], img.Pix[i*8+7] = 0xFF, 0xFF
	}
	return img
}

// image8 取每个样本的高 8 位
func image8(pixels []uint16, width, height, channels int) image.Image {
	rect := image.Rect(0, 0, width, height)
	if channels == 1 {
		img := image.NewGray(rect)
		for i, v := range pixels {
			img.Pix[i] = byte(v >> 8)
		}
		return img
	}
	return imageNRGBA(pixels, width, height, channels)
}

func imageNRGBA(pixels []uint16, width, height, channels int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		var c color.NRGBA
		if channels == 1 {
			v := byte(pixels[i] >> 8)
			c = color.NRGBA{R: v, G: v, B: v, A: 0xFF}
		} else {
			c = color.NRGBA{R: byte(pixels[i*3] >> 8), G: byte(pixels[i*3+1] >> 8), B: byte(pixels[i*3+2] >> 8), A: 0xFF}
		}
		img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// pngBuffer 单个编码器复用同一个 png.EncoderBuffer
type pngBuffer struct {
	b *png.EncoderBuffer
}

func (p *pngBuffer) Get() *png.EncoderBuffer { return p.b }
func (p *pngBuffer) Put(b *png.EncoderBuffer) { p.b = b }
