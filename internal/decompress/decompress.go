// Package decompress 还原 CINE 帧的亚字节打包
package decompress

import (
	"fmt"

	"cine-reader/internal/cineerr"
	"cine-reader/internal/config"
)

// Kind 像素打包方式
type Kind int

const (
	Uncompressed Kind = iota // 每字节一个样本，行序自下而上
	Packed10                 // 5 字节 -> 4 个 10 位样本
	Packed12                 // 3 字节 -> 2 个 12 位样本
)

// KindFromCode 由 BITMAPINFOHEADER.biCompression 得到打包方式
func KindFromCode(code uint32) (Kind, error) {
	if !config.IsKnownCompression(code) {
		return 0, cineerr.Unsupported("unsupported compression type %d", code)
	}
	switch code {
	case config.CompressionPacked10:
		return Packed10, nil
	case config.CompressionPacked12:
		return Packed12, nil
	}
	return Uncompressed, nil
}

func (k Kind) String() string {
	switch k {
	case Uncompressed:
		return "uncompressed"
	case Packed10:
		return "packed10"
	case Packed12:
		return "packed12"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// BlockBytes 每个打包块的字节数
func (k Kind) BlockBytes() int {
	switch k {
	case Packed10:
		return 5
	case Packed12:
		return 3
	}
	return 1
}

// SamplesPerBlock 每个打包块还原出的样本数
func (k Kind) SamplesPerBlock() int {
	switch k {
	case Packed10:
		return 4
	case Packed12:
		return 2
	}
	return 1
}

// Bits 样本有效位数
func (k Kind) Bits() int {
	switch k {
	case Packed10:
		return 10
	case Packed12:
		return 12
	}
	return 8
}

// SampleCount 长度为 payloadLen 的载荷能还原出的样本数，末尾不完整的块丢弃
func SampleCount(k Kind, payloadLen int) int {
	if payloadLen <= 0 {
		return 0
	}
	return payloadLen / k.BlockBytes() * k.SamplesPerBlock()
}

// Decompress 把 src 解包到 dst，返回写入的样本数
//
// width 和 height 只用于未压缩数据的行翻转，只翻转前 width*height 个样本，
// 载荷末尾的填充保持原位。dst 至少要有 SampleCount(k, len(src)) 个元素。
func Decompress(k Kind, dst []uint16, src []byte, width, height int) (int, error) {
	n := SampleCount(k, len(src))
	if len(dst) < n {
		return 0, cineerr.Conversion("decompress "+k.String(),
			fmt.Errorf("sample buffer holds %d, need %d", len(dst), n))
	}

	switch k {
	case Packed10:
		unpack10(dst, src)
	case Packed12:
		unpack12(dst, src)
	case Uncompressed:
		if width <= 0 || height <= 0 {
			return 0, cineerr.Conversion("decompress "+k.String(),
				fmt.Errorf("invalid frame size %dx%d", width, height))
		}
		for i := 0; i < n; i++ {
			dst[i] = uint16(src[i])
		}
		flipRows(dst[:min(n, width*height)], width)
	default:
		return 0, cineerr.Unsupported("unsupported compression kind %v", k)
	}
	return n, nil
}

// 00000000 00|000000 0000|0000 000000|00 00000000
// ----s0-- --|----s1 ----|---- s2----|-- s3------
func unpack10(dst []uint16, src []byte) {
	j := 0
	for i := 0; i+5 <= len(src); i += 5 {
		b0, b1, b2, b3, b4 := uint16(src[i]), uint16(src[i+1]), uint16(src[i+2]), uint16(src[i+3]), uint16(src[i+4])
		dst[j] = b0<<2 | b1>>6
		dst[j+1] = (b1&0x3F)<<4 | b2>>4
		dst[j+2] = (b2&0x0F)<<6 | b3>>2
		dst[j+3] = (b3&0x03)<<8 | b4
		j += 4
	}
}

// 00000000 0000|0000 00000000
// ------s0 ----|---- s1-----
func unpack12(dst []uint16, src []byte) {
	j := 0
	for i := 0; i+3 <= len(src); i += 3 {
		b0, b1, b2 := uint16(src[i]), uint16(src[i+1]), uint16(src[i+2])
		dst[j] = b0<<4 | b1>>4
		dst[j+1] = (b1&0x0F)<<8 | b2
		j += 2
	}
}

// flipRows 把自下而上的行序翻成自上而下，只处理完整的行
func flipRows(samples []uint16, width int) {
	rows := len(samples) / width
	for top, bottom := 0, rows-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := samples[top*width : (top+1)*width]
		b := samples[bottom*width : (bottom+1)*width]
		for i := range a {
			a[i], b[i] = b[i], a[i]
		}
	}
}

// FlipRows 原地上下翻转 (SETUP.FlipV)
func FlipRows(samples []uint16, width int) {
	if width > 0 {
		flipRows(samples, width)
	}
}

// Pack10 Decompress 的逆操作，样本数不足一块时补 0
func Pack10(samples []uint16) []byte {
	out := make([]byte, 0, (len(samples)+3)/4*5)
	for i := 0; i < len(samples); i += 4 {
		var s [4]uint16
		copy(s[:], samples[i:])
		for j := range s {
			s[j] &= 0x3FF
		}
		out = append(out,
			byte(s[0]>>2),
			byte(s[0]&0x03)<<6|byte(s[1]>>4),
			byte(s[1]&0x0F)<<4|byte(s[2]>>6),
			byte(s[2]&0x3F)<<2|byte(s[3]>>8),
			byte(s[3]),
		)
	}
	return out
}

// Pack12 Decompress 的逆操作，样本数为奇数时补 0
func Pack12(samples []uint16) []byte {
	out := make([]byte, 0, (len(samples)+1)/2*3)
	for i := 0; i < len(samples); i += 2 {
		var s [2]uint16
		copy(s[:], samples[i:])
		s[0] &= 0xFFF
		s[1] &= 0xFFF
		out = append(out,
			byte(s[0]>>4),
			byte(s[0]&0x0F)<<4|byte(s[1]>>8),
			byte(s[1]),
		)
	}
	return out
}
