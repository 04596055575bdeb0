package models

import (
	"encoding/binary"
	"math"

	"cine-reader/internal/config"
	"cine-reader/internal/packed"
)

var le = binary.LittleEndian

// SETUP 线上偏移 (只列出解码的字段，其余字段原样保留在 PackedSetup 中)
const (
	setupFrameRate16 = 0
	setupShutter16   = 2
	setupLength      = 142
	setupImWidth     = 737
	setupImHeight    = 739
	setupSerial      = 743
	setupFlipH       = 756
	setupFlipV       = 760
	setupFrameRate   = 768
	setupShutter     = 772
	setupEnableColor = 788
	setupCFA         = 808
	setupRealBPP     = 896
	setupBlackLevel  = 5732
	setupWhiteLevel  = 5736
	setupGamma       = 6024
)

// PackedSetup SETUP 块的逐字节副本
type PackedSetup struct {
	Raw [config.SetupWireSize]byte
}

func (PackedSetup) WireSize() int { return config.SetupWireSize }

func (p *PackedSetup) DecodeFields(f packed.Fields) {
	copy(p.Raw[:], f.Bytes(0, config.SetupWireSize))
}

// Setup 对齐后的相机设置
type Setup struct {
	FrameRate16 uint16
	Shutter16   uint16
	Length      uint16
	ImWidth     uint16
	ImHeight    uint16
	Serial      uint32
	FlipH       bool
	FlipV       bool
	FrameRate   uint32
	Shutter     uint32
	EnableColor bool
	CFA         uint32
	RealBPP     uint32
	BlackLevel  int32
	WhiteLevel  int32
	Gamma       float32
}

// SetupFromPacked 逐字段把线上记录映射到对齐结构
func SetupFromPacked(p PackedSetup) Setup {
	f := packed.NewFields(p.Raw[:])
	return Setup{
		FrameRate16: f.U16(setupFrameRate16),
		Shutter16:   f.U16(setupShutter16),
		Length:      f.U16(setupLength),
		ImWidth:     f.U16(setupImWidth),
		ImHeight:    f.U16(setupImHeight),
		Serial:      f.U32(setupSerial),
		FlipH:       f.Bool8(setupFlipH),
		FlipV:       f.Bool8(setupFlipV),
		FrameRate:   f.U32(setupFrameRate),
		Shutter:     f.U32(setupShutter),
		EnableColor: f.Bool8(setupEnableColor),
		CFA:         f.U32(setupCFA),
		RealBPP:     f.U32(setupRealBPP),
		BlackLevel:  f.I32(setupBlackLevel),
		WhiteLevel:  f.I32(setupWhiteLevel),
		Gamma:       f.F32(setupGamma),
	}
}

// PackSetup 把 Setup 写回线上记录，未映射的字节保持为 0
func PackSetup(s Setup) PackedSetup {
	var p PackedSetup
	b := p.Raw[:]
	le.PutUint16(b[setupFrameRate16:], s.FrameRate16)
	le.PutUint16(b[setupShutter16:], s.Shutter16)
	le.PutUint16(b[setupLength:], s.Length)
	le.PutUint16(b[setupImWidth:], s.ImWidth)
	le.PutUint16(b[setupImHeight:], s.ImHeight)
	le.PutUint32(b[setupSerial:], s.Serial)
	b[setupFlipH] = boolByte(s.FlipH)
	b[setupFlipV] = boolByte(s.FlipV)
	le.PutUint32(b[setupFrameRate:], s.FrameRate)
	le.PutUint32(b[setupShutter:], s.Shutter)
	b[setupEnableColor] = boolByte(s.EnableColor)
	le.PutUint32(b[setupCFA:], s.CFA)
	le.PutUint32(b[setupRealBPP:], s.RealBPP)
	le.PutUint32(b[setupBlackLevel:], uint32(s.BlackLevel))
	le.PutUint32(b[setupWhiteLevel:], uint32(s.WhiteLevel))
	le.PutUint32(b[setupGamma:], math.Float32bits(s.Gamma))
	return p
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
