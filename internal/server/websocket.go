package server

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"

	"cine-reader/internal/export"
	"cine-reader/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// FrameMagic 二进制帧消息头
const FrameMagic = "CINE"

// FrameHeaderSize Magic(4) + Frame(4) + Kind(1) + DataLen(4)
const FrameHeaderSize = 13

// WSMessage WebSocket 消息
type WSMessage struct {
	Action string  `json:"action"`
	Start  int     `json:"start"`
	End    int     `json:"end"`    // 不含，0 表示到最后一帧
	Format string  `json:"format"` // 默认 png
	FPS    float64 `json:"fps"`    // 0 表示不限速
}

// messageWriter 流会话的写端，*websocket.Conn 满足
type messageWriter interface {
	WriteJSON(v any) error
	WriteMessage(messageType int, data []byte) error
}

// StreamSession 流会话
type StreamSession struct {
	ws       messageWriter
	frames   *FrameServer
	log      *slog.Logger
	stopChan chan struct{}
	mu       sync.Mutex // 保护 stopChan / running
	writeMu  sync.Mutex // gorilla 连接只允许一个写者
	running  bool
	wg       sync.WaitGroup
}

// HandleWebSocket WebSocket 处理器
func (h *Handlers) HandleWebSocket(ctx iris.Context) {
	ws, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
	if err != nil {
		logging.LogWarn("[WS] Upgrade error", "err", err)
		return
	}
	defer ws.Close()

	sessionID := fmt.Sprintf("%p", ws)
	session := &StreamSession{
		ws:       ws,
		frames:   h.frames,
		log:      logging.With("component", "stream", "session", sessionID),
		stopChan: make(chan struct{}),
	}
	logging.LogDebug("[WS] 新连接", "session", sessionID)

readLoop:
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.LogWarn("[WS] Error", "err", err)
			}
			break
		}

		var reply any
		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			reply = iris.Map{"error": "无效的 JSON"}
		} else {
			switch msg.Action {
			case "export":
				session.stop()
				kind, err := export.ParseKind(defaultString(msg.Format, "png"))
				if err != nil {
					reply = iris.Map{"error": err.Error()}
					break
				}
				session.start(func(stop <-chan struct{}) {
					session.streamRange(stop, msg.Start, msg.End, kind, msg.FPS)
				})

			case "stop":
				session.stop()

			default:
				reply = iris.Map{"error": "未知的 action: " + msg.Action}
			}
		}

		if reply != nil {
			if err := session.sendJSON(reply); err != nil {
				logging.LogWarn("[WS] Write error", "err", err)
				break readLoop
			}
		}
	}

	session.stop()
	logging.LogDebug("[WS] 断开连接", "session", sessionID)
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// start 在新的 goroutine 中运行 fn，stop 被关闭时 fn 应尽快返回
func (s *StreamSession) start(fn func(stop <-chan struct{})) {
	s.mu.Lock()
	s.running = true
	stop := s.stopChan
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		fn(stop)
	}()
}

// stop 停止当前导出并等待其退出
func (s *StreamSession) stop() {
	s.mu.Lock()
	if s.running {
		close(s.stopChan)
		s.stopChan = make(chan struct{})
		s.running = false
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *StreamSession) sendJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(v)
}

func (s *StreamSession) sendBytes(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteMessage(websocket.BinaryMessage, data)
}

// streamRange 逐帧导出 [start, end)
func (s *StreamSession) streamRange(stop <-chan struct{}, start, end int, kind export.Kind, fps float64) {
	_, headers, ok := s.frames.Status()
	if !ok {
		if err := s.sendJSON(iris.Map{"error": ErrNotLoaded.Error()}); err != nil {
			s.log.Warn("发送错误消息失败", "err", err)
		}
		return
	}
	if end <= 0 || end > headers.FrameCount {
		end = headers.FrameCount
	}
	if start < 0 || start >= end {
		if err := s.sendJSON(iris.Map{"error": fmt.Sprintf("无效的帧范围 [%d, %d)", start, end)}); err != nil {
			s.log.Warn("发送错误消息失败", "err", err)
		}
		return
	}

	if err := s.sendJSON(iris.Map{
		"type":    "stream_start",
		"start":   start,
		"end":     end,
		"format":  kind.String(),
		"headers": headers,
	}); err != nil {
		s.log.Warn("发送 stream_start 失败", "err", err)
		return
	}

	var tick <-chan time.Time
	if fps > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
		defer ticker.Stop()
		tick = ticker.C
	}

	sent := 0
	began := time.Now()
	for n := start; n < end; n++ {
		select {
		case <-stop:
			s.log.Info("导出已停止", "frame", n, "sent", sent)
			return
		default:
		}
		if tick != nil {
			select {
			case <-stop:
				return
			case <-tick:
			}
		}

		frame, _, err := s.frames.EncodeFrame(n, kind)
		if err != nil {
			if werr := s.sendJSON(iris.Map{"error": err.Error(), "frame": n}); werr != nil {
				s.log.Warn("发送错误消息失败", "frame", n, "err", werr)
			}
			return
		}
		if err := s.sendFrame(n, kind, frame.Bytes()); err != nil {
			s.log.Warn("发送帧失败", "frame", n, "sent", sent, "err", err)
			return
		}
		sent++
	}

	s.log.Info("导出完成", "frames", sent, "elapsed", time.Since(began))
	if err := s.sendJSON(iris.Map{"type": "stream_end", "frames": sent}); err != nil {
		s.log.Warn("发送 stream_end 失败", "err", err)
	}
}

// sendFrame 发送一帧
// 格式: Magic(4) + Frame(4) + Kind(1) + DataLen(4) + Data
func (s *StreamSession) sendFrame(n int, kind export.Kind, data []byte) error {
	msg := make([]byte, FrameHeaderSize, FrameHeaderSize+len(data))
	copy(msg[0:4], FrameMagic)
	binary.BigEndian.PutUint32(msg[4:8], uint32(n))
	msg[8] = byte(kind)
	binary.BigEndian.PutUint32(msg[9:13], uint32(len(data)))
	return s.sendBytes(append(msg, data...))
}
