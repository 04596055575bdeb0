// Package demosaic 把单通道传感器样本重建为灰度或 RGB 像素
package demosaic

import (
	"fmt"

	"cine-reader/internal/cineerr"
	"cine-reader/internal/models"
)

// Engine 针对一种 CFA 和固定尺寸的重建器，构造时完成所有校验
type Engine struct {
	kind     models.CFAKind
	width    int
	height   int
	shift    uint
	channels int
}

// New 构造重建器
//
// bits 是样本有效位数，输出统一放大到 16 位: shift = 16 - bits。
func New(kind models.CFAKind, width, height, bits int) (*Engine, error) {
	if width <= 0 || height <= 0 {
		return nil, cineerr.Conversion("demosaic", fmt.Errorf("invalid frame size %dx%d", width, height))
	}
	if bits <= 0 || bits > 16 {
		return nil, cineerr.Conversion("demosaic", fmt.Errorf("invalid sample depth %d bits", bits))
	}

	e := &Engine{kind: kind, width: width, height: height, shift: uint(16 - bits)}
	switch kind {
	case models.CFAGray:
		e.channels = 1
	case models.CFABayer:
		if width < 3 || height < 3 {
			return nil, cineerr.Conversion("demosaic "+kind.String(),
				fmt.Errorf("frame %dx%d smaller than 3x3", width, height))
		}
		e.channels = 3
	default:
		return nil, cineerr.Unsupported("CFA %s not supported", kind)
	}
	return e, nil
}

// Channels 每像素通道数 (1 或 3)
func (e *Engine) Channels() int { return e.channels }

// Shift 样本放大位数
func (e *Engine) Shift() uint { return e.shift }

// OutputLen 输出缓冲区长度
func (e *Engine) OutputLen() int {
	return e.width * e.height * e.channels
}

// Apply 从 src 重建到 dst，dst 长度必须等于 OutputLen
func (e *Engine) Apply(dst, src []uint16) error {
	n := e.width * e.height
	if len(src) < n {
		return cineerr.Conversion("demosaic "+e.kind.String(),
			fmt.Errorf("have %d samples, need %d", len(src), n))
	}
	if len(dst) != e.OutputLen() {
		return cineerr.Conversion("demosaic "+e.kind.String(),
			fmt.Errorf("output buffer is %d, need %d", len(dst), e.OutputLen()))
	}

	if e.kind == models.CFAGray {
		for i, s := range src[:n] {
			dst[i] = s << e.shift
		}
		return nil
	}

	e.bayer(dst, src)
	e.fillBorder(dst)
	return nil
}

// bayer gb/rg 排列:
//
//	偶数行: G B G B ...
//	奇数行: R G R G ...
func (e *Engine) bayer(dst, src []uint16) {
	w, h := e.width, e.height
	at := func(i int) uint32 { return uint32(src[i]) }

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			idx := y*w + x
			up, down, left, right := idx-w, idx+w, idx-1, idx+1

			var r, g, b uint32
			switch {
			case y%2 == 0 && x%2 == 0: // 绿蓝行上的 G
				r = (at(left) + at(right)) / 2
				g = at(idx)
				b = (at(up) + at(down)) / 2
			case y%2 == 0: // B
				r = (at(up-1) + at(up+1) + at(down-1) + at(down+1)) / 4
				g = (at(left) + at(right) + at(up) + at(down)) / 4
				b = at(idx)
			case x%2 == 0: // R
				r = at(idx)
				g = (at(left) + at(right) + at(up) + at(down)) / 4
				b = (at(up-1) + at(up+1) + at(down-1) + at(down+1)) / 4
			default: // 红绿行上的 G
				r = (at(up) + at(down)) / 2
				g = at(idx)
				b = (at(left) + at(right)) / 2
			}

			o := idx * 3
			dst[o] = uint16(r) << e.shift
			dst[o+1] = uint16(g) << e.shift
			dst[o+2] = uint16(b) << e.shift
		}
	}
}

// fillBorder 1 像素边框复制最近的内部像素
func (e *Engine) fillBorder(dst []uint16) {
	w, h := e.width, e.height
	copyFrom := func(x, y int) {
		sx := min(max(x, 1), w-2)
		sy := min(max(y, 1), h-2)
		o, s := (y*w+x)*3, (sy*w+sx)*3
		dst[o], dst[o+1], dst[o+2] = dst[s], dst[s+1], dst[s+2]
	}

	for x := 0; x < w; x++ {
		copyFrom(x, 0)
		copyFrom(x, h-1)
	}
	for y := 1; y < h-1; y++ {
		copyFrom(0, y)
		copyFrom(w-1, y)
	}
}
