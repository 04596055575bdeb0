package server

import (
	"errors"
	"sync"

	"cine-reader/internal/export"
	"cine-reader/internal/logging"
	"cine-reader/internal/video"
)

// FrameServer 当前打开的视频及其编码器
//
// video.Source 不能并发读帧，所有读取都经过 mu 串行化。
type FrameServer struct {
	mu      sync.Mutex
	path    string
	source  video.Source
	encoder *export.Encoder

	open func(path string) (video.Source, error)
}

// NewFrameServer 创建服务器，path 为空时不打开文件
func NewFrameServer(path string) (*FrameServer, error) {
	enc, err := export.NewEncoder()
	if err != nil {
		return nil, err
	}
	s := &FrameServer{encoder: enc, open: video.Open}
	if path != "" {
		if err := s.Load(path); err != nil {
			enc.Close()
			return nil, err
		}
	}
	return s, nil
}

// Load 打开新文件并替换当前文件
func (s *FrameServer) Load(path string) error {
	src, err := s.open(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.source
	s.source = src
	s.path = path
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logging.LogWarn("关闭旧文件失败", "err", err)
		}
	}

	h := src.Headers()
	logging.LogInfo("已加载", "path", path, "width", h.Width, "height", h.Height,
		"frames", h.FrameCount, "channels", h.Channels)
	return nil
}

// Status 当前路径和头信息，未加载时 ok 为 false
func (s *FrameServer) Status() (path string, headers video.Headers, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return "", video.Headers{}, false
	}
	return s.path, s.source.Headers(), true
}

// ErrNotLoaded 尚未打开任何文件
var ErrNotLoaded = errors.New("no file loaded")

// EncodeFrame 读取并编码第 n 帧，返回的结果归调用方所有
func (s *FrameServer) EncodeFrame(n int, kind export.Kind) (*export.Frame, video.Headers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return nil, video.Headers{}, ErrNotLoaded
	}
	h := s.source.Headers()
	pixels, err := s.source.Frame(n)
	if err != nil {
		return nil, h, err
	}
	frame, err := s.encoder.Encode(kind, pixels, h.Width, h.Height, h.Channels)
	if err != nil {
		return nil, h, err
	}
	return frame, h, nil
}

// Close 关闭当前文件和编码器
func (s *FrameServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.source != nil {
		err = s.source.Close()
		s.source = nil
	}
	if cerr := s.encoder.Close(); err == nil {
		err = cerr
	}
	return err
}
