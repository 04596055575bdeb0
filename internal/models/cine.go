package models

import (
	"cine-reader/internal/config"
	"cine-reader/internal/packed"
)

// FileHeader CINEFILEHEADER (44 bytes)
type FileHeader struct {
	Type             [2]byte
	HeaderSize       uint16
	Compression      uint16
	Version          uint16
	FirstMovieImage  int32
	TotalImageCount  uint32
	FirstImageNo     int32
	ImageCount       uint32 // 帧数
	OffImageHeader   uint32 // BITMAPINFOHEADER 偏移
	OffSetup         uint32 // SETUP 偏移
	OffImageOffsets  uint32 // 帧偏移表偏移
	TriggerFractions uint32
	TriggerSeconds   uint32
}

func (FileHeader) WireSize() int { return config.FileHeaderSize }

// DecodeFields 结构: type(2) + headerSize(2) + compression(2) + version(2) + firstMovieImage(4) +
// totalImageCount(4) + firstImageNo(4) + imageCount(4) + offImageHeader(4) + offSetup(4) +
// offImageOffsets(4) + triggerTime(8)
func (h *FileHeader) DecodeFields(f packed.Fields) {
	h.Type[0] = f.U8(0)
	h.Type[1] = f.U8(1)
	h.HeaderSize = f.U16(2)
	h.Compression = f.U16(4)
	h.Version = f.U16(6)
	h.FirstMovieImage = f.I32(8)
	h.TotalImageCount = f.U32(12)
	h.FirstImageNo = f.I32(16)
	h.ImageCount = f.U32(20)
	h.OffImageHeader = f.U32(24)
	h.OffSetup = f.U32(28)
	h.OffImageOffsets = f.U32(32)
	h.TriggerFractions = f.U32(36)
	h.TriggerSeconds = f.U32(40)
}

// IsCine 检查类型标识 "CI"
func (h *FileHeader) IsCine() bool {
	return string(h.Type[:]) == config.FileType
}

// BitmapInfoHeader BITMAPINFOHEADER (40 bytes)
type BitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32 // 0, 256, 1024
	SizeImage     uint32 // 每帧压缩后像素数据长度
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

func (BitmapInfoHeader) WireSize() int { return config.BitmapHeaderSize }

func (b *BitmapInfoHeader) DecodeFields(f packed.Fields) {
	b.Size = f.U32(0)
	b.Width = f.I32(4)
	b.Height = f.I32(8)
	b.Planes = f.U16(12)
	b.BitCount = f.U16(14)
	b.Compression = f.U32(16)
	b.SizeImage = f.U32(20)
	b.XPelsPerMeter = f.I32(24)
	b.YPelsPerMeter = f.I32(28)
	b.ClrUsed = f.U32(32)
	b.ClrImportant = f.U32(36)
}
