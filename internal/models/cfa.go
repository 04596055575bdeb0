package models

import (
	"cine-reader/internal/cineerr"
	"cine-reader/internal/config"
)

// CFAKind 传感器滤色阵列类型
type CFAKind int

// 低字节: 传感器排列
const (
	CFAGray        CFAKind = iota // 0 - 灰度传感器
	CFAVri                        // 1 - gbrg/rggb
	CFAVriV6                      // 2 - bggr/grbg
	CFABayer                      // 3 - gb/rg
	CFABayerFlip                  // 4 - rg/gb
	CFABayerFlipPb                // 5 - gr/gb
	CFABayerFlipPh                // 6 - bg/gr

	// 高半字节: v6/v6.2 多头相机的彩色/灰度头
	CFATopLeftGray
	CFATopRightGray
	CFABottomLeftGray
	CFABottomRightGray
)

var cfaNames = map[CFAKind]string{
	CFAGray:            "gray",
	CFAVri:             "vri",
	CFAVriV6:           "vri-v6",
	CFABayer:           "bayer",
	CFABayerFlip:       "bayer-flip",
	CFABayerFlipPb:     "bayer-flip-pb",
	CFABayerFlipPh:     "bayer-flip-ph",
	CFATopLeftGray:     "top-left-gray",
	CFATopRightGray:    "top-right-gray",
	CFABottomLeftGray:  "bottom-left-gray",
	CFABottomRightGray: "bottom-right-gray",
}

func (k CFAKind) String() string {
	if name, ok := cfaNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsColor 是否为彩色 (三通道) 输出
func (k CFAKind) IsColor() bool {
	return k != CFAGray
}

// ClassifyCFA 从 SETUP.CFA 的低字节取传感器排列
func ClassifyCFA(code uint32) (CFAKind, error) {
	switch pattern := code & config.CFAPatternMask; pattern {
	case 0:
		return CFAGray, nil
	case 1:
		return CFAVri, nil
	case 2:
		return CFAVriV6, nil
	case 3:
		return CFABayer, nil
	case 4:
		return CFABayerFlip, nil
	case 5:
		return CFABayerFlipPb, nil
	case 6:
		return CFABayerFlipPh, nil
	default:
		return 0, cineerr.Unsupported("unknown CFA pattern %#x", pattern)
	}
}

// ColorHead 高半字节标记的多头相机灰度头，没有标记不算错误
func ColorHead(code uint32) (CFAKind, bool) {
	switch code & config.CFAHeadMask {
	case 0x80000000:
		return CFATopLeftGray, true
	case 0x40000000:
		return CFATopRightGray, true
	case 0x20000000:
		return CFABottomLeftGray, true
	case 0x10000000:
		return CFABottomRightGray, true
	}
	return 0, false
}
