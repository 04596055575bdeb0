package config

const (
	// CINE 文件常量
	FileType         = "CI"
	FileHeaderSize   = 44
	BitmapHeaderSize = 40
	SetupWireSize    = 6056
	FrameOffsetSize  = 8 // 每个帧偏移 8 字节 (int64)
	AnnotationSize   = 4 // 帧注释块前 4 字节: 到像素数据的偏移

	// 压缩类型 (BITMAPINFOHEADER.biCompression)
	CompressionNone     = 0
	CompressionPacked10 = 256
	CompressionPacked12 = 1024

	// CFA 掩码
	CFAPatternMask = 0x000000FF
	CFAHeadMask    = 0xF0000000
)

var (
	// 默认配置
	Host           = "0.0.0.0"
	Port           = 8080
	ExportWorkers  = 4
	JPEGQuality    = 90
	MaxPathHistory = 10
)

// SupportedExtensions 返回可识别的容器扩展名
func SupportedExtensions() []string {
	return []string{".cine", ".mp4"}
}

// IsKnownCompression 检查压缩代码是否可解码
func IsKnownCompression(code uint32) bool {
	return code == CompressionNone || code == CompressionPacked10 || code == CompressionPacked12
}
