package video

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"

	"cine-reader/internal/cineerr"
	"cine-reader/internal/config"
	"cine-reader/internal/decompress"
	"cine-reader/internal/demosaic"
	"cine-reader/internal/index"
	"cine-reader/internal/mmap"
	"cine-reader/internal/models"
	"cine-reader/internal/packed"
)

// Cine Phantom CINE 文件
type Cine struct {
	file *mmap.File // 由 OpenCine 打开时非空
	r    io.ReaderAt
	size int64
	name string

	header models.FileHeader
	bitmap models.BitmapInfoHeader
	setup  models.Setup
	cfa    models.CFAKind
	kind   decompress.Kind
	table  *index.FrameTable
	engine *demosaic.Engine

	width      int
	height     int
	payloadLen int

	// 打开时一次性分配，每帧覆盖。映射文件不需要 raw
	raw     []byte
	samples []uint16
	pixels  []uint16
	annBuf  [config.AnnotationSize]byte
}

// OpenCine 映射并解析 CINE 文件
func OpenCine(path string) (*Cine, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, cineerr.IO("open "+path, 0, err)
	}

	c, err := newCine(m, m.Size(), filepath.Base(m.Path()))
	if err != nil {
		m.Close()
		return nil, err
	}
	c.file = m
	c.raw = nil
	return c, nil
}

// newCine 从任意 ReaderAt 解析，压缩方式和 CFA 在这里校验
func newCine(r io.ReaderAt, size int64, name string) (*Cine, error) {
	c := &Cine{r: r, size: size, name: name}

	var err error
	if c.header, err = packed.ReadAt[models.FileHeader](r, 0); err != nil {
		return nil, err
	}
	if !c.header.IsCine() {
		return nil, cineerr.Unsupported("not a CINE file: type %q", c.header.Type[:])
	}

	if c.bitmap, err = packed.ReadAt[models.BitmapInfoHeader](r, int64(c.header.OffImageHeader)); err != nil {
		return nil, err
	}
	ps, err := packed.ReadAt[models.PackedSetup](r, int64(c.header.OffSetup))
	if err != nil {
		return nil, err
	}
	c.setup = models.SetupFromPacked(ps)

	if c.kind, err = decompress.KindFromCode(c.bitmap.Compression); err != nil {
		return nil, err
	}

	if c.cfa, err = models.ClassifyCFA(c.setup.CFA); err != nil {
		return nil, err
	}
	// 多头相机交给重建器拒绝
	if head, ok := models.ColorHead(c.setup.CFA); ok {
		c.cfa = head
	}

	c.width, c.height = int(c.bitmap.Width), int(c.bitmap.Height)
	if c.width <= 0 || c.height <= 0 {
		return nil, cineerr.IO("read bitmap header", int64(c.header.OffImageHeader),
			fmt.Errorf("invalid image size %dx%d", c.bitmap.Width, c.bitmap.Height))
	}

	if c.engine, err = demosaic.New(c.cfa, c.width, c.height, c.kind.Bits()); err != nil {
		return nil, err
	}

	// 先用文件长度限制载荷，避免按损坏的头部字段分配
	payloadLen := int(c.bitmap.SizeImage)
	if int64(payloadLen) > size {
		return nil, cineerr.Truncated("frame payload", int64(c.header.OffImageHeader), payloadLen, int(size))
	}
	sampleCount := decompress.SampleCount(c.kind, payloadLen)
	if sampleCount < c.width*c.height {
		return nil, cineerr.Conversion("frame payload",
			fmt.Errorf("%d bytes of %v hold %d samples, need %d", payloadLen, c.kind, sampleCount, c.width*c.height))
	}

	if c.table, err = index.Read(r, int64(c.header.OffImageOffsets), c.header.ImageCount, size); err != nil {
		return nil, err
	}

	c.payloadLen = payloadLen
	c.raw = make([]byte, payloadLen)
	c.samples = make([]uint16, sampleCount)
	c.pixels = make([]uint16, c.engine.OutputLen())
	return c, nil
}

// Headers 基本信息
func (c *Cine) Headers() Headers {
	return Headers{
		Name:       c.name,
		Width:      c.width,
		Height:     c.height,
		FrameCount: c.table.Len(),
		Channels:   c.engine.Channels(),
		BitDepth:   c.kind.Bits(),
	}
}

// FileHeader 文件头
func (c *Cine) FileHeader() models.FileHeader { return c.header }

// Bitmap 图像描述
func (c *Cine) Bitmap() models.BitmapInfoHeader { return c.bitmap }

// Setup 相机设置
func (c *Cine) Setup() models.Setup { return c.setup }

// CFA 传感器排列
func (c *Cine) CFA() models.CFAKind { return c.cfa }

// Compression 打包方式
func (c *Cine) Compression() decompress.Kind { return c.kind }

// Frame 读取第 n 帧: 定位 -> 解包 -> 重建 -> 翻转
func (c *Cine) Frame(n int) ([]uint16, error) {
	off, err := c.table.Lookup(n)
	if err != nil {
		return nil, err
	}

	// 注释块前 4 字节是到像素数据的偏移
	if err := c.readFull(c.annBuf[:], off, fmt.Sprintf("read frame %d annotation", n)); err != nil {
		return nil, err
	}
	payloadAt := off + int64(binary.LittleEndian.Uint32(c.annBuf[:]))
	raw, err := c.payload(payloadAt, n)
	if err != nil {
		return nil, err
	}

	if _, err := decompress.Decompress(c.kind, c.samples, raw, c.width, c.height); err != nil {
		return nil, err
	}
	if err := c.engine.Apply(c.pixels, c.samples); err != nil {
		return nil, err
	}
	// 翻转放在重建之后，CFA 的行奇偶不能变
	if c.setup.FlipV {
		decompress.FlipRows(c.pixels, c.width*c.engine.Channels())
	}
	return c.pixels, nil
}

// payload 映射文件直接切片，其他 ReaderAt 读入 c.raw
func (c *Cine) payload(off int64, n int) ([]byte, error) {
	op := fmt.Sprintf("read frame %d payload", n)
	if c.file != nil {
		if b, ok := c.file.Slice(off, c.payloadLen); ok {
			return b, nil
		}
		return nil, cineerr.Truncated(op, off, c.payloadLen, int(max(0, c.size-off)))
	}
	if err := c.readFull(c.raw, off, op); err != nil {
		return nil, err
	}
	return c.raw, nil
}

func (c *Cine) readFull(buf []byte, off int64, op string) error {
	if off+int64(len(buf)) > c.size {
		return cineerr.Truncated(op, off, len(buf), int(max(0, c.size-off)))
	}
	n, err := c.r.ReadAt(buf, off)
	if n < len(buf) {
		if err == nil || err == io.EOF {
			return cineerr.Truncated(op, off, len(buf), n)
		}
		return cineerr.IO(op, off, err)
	}
	return nil
}

// Close 释放映射
func (c *Cine) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}
