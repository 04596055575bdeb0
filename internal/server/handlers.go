package server

import (
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/kataras/iris/v12"

	"cine-reader/internal/cineerr"
	"cine-reader/internal/config"
	"cine-reader/internal/export"
)

// Handlers API 处理器
type Handlers struct {
	frames *FrameServer
	mu     sync.RWMutex

	// 路径历史记录（最多保留 config.MaxPathHistory 个）
	pathHistory []string
}

// NewHandlers 创建处理器
func NewHandlers(frames *FrameServer) *Handlers {
	h := &Handlers{
		frames:      frames,
		pathHistory: []string{},
	}
	if path, _, ok := frames.Status(); ok {
		h.addToPathHistory(path)
	}
	return h
}

// addToPathHistory 添加路径到历史记录
func (h *Handlers) addToPathHistory(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 移除重复项
	history := []string{path}
	for _, p := range h.pathHistory {
		if p != path {
			history = append(history, p)
		}
	}

	// 限制数量
	if len(history) > config.MaxPathHistory {
		history = history[:config.MaxPathHistory]
	}
	h.pathHistory = history
}

func (h *Handlers) history() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string{}, h.pathHistory...)
}

// statusCode 错误分类到 HTTP 状态码
func statusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotLoaded):
		return http.StatusBadRequest
	case errors.Is(err, cineerr.ErrOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, cineerr.ErrUnsupportedFileType), errors.Is(err, cineerr.ErrNotImplemented):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, cineerr.ErrConversion):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(ctx iris.Context, err error) {
	ctx.StatusCode(statusCode(err))
	ctx.JSON(iris.Map{"error": err.Error()})
}

// GetConfig 获取配置
// GET /api/v1/config
func (h *Handlers) GetConfig(ctx iris.Context) {
	path, headers, loaded := h.frames.Status()

	result := iris.Map{
		"path":        path,
		"loaded":      loaded,
		"pathHistory": h.history(),
	}
	if loaded {
		result["headers"] = headers
	}

	ctx.JSON(result)
}

// SetConfig 打开新文件
// POST /api/v1/config
func (h *Handlers) SetConfig(ctx iris.Context) {
	var req struct {
		Path string `json:"path"`
	}

	if err := ctx.ReadJSON(&req); err != nil || req.Path == "" {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": "无效的请求: 需要 path"})
		return
	}

	if err := h.frames.Load(req.Path); err != nil {
		ctx.StatusCode(statusCode(err))
		ctx.JSON(iris.Map{
			"path":   req.Path,
			"loaded": false,
			"error":  err.Error(),
		})
		return
	}

	h.addToPathHistory(req.Path)
	_, headers, _ := h.frames.Status()

	ctx.JSON(iris.Map{
		"path":        req.Path,
		"loaded":      true,
		"headers":     headers,
		"pathHistory": h.history(),
	})
}

// GetHeaders 视频基本信息
// GET /api/v1/headers
func (h *Handlers) GetHeaders(ctx iris.Context) {
	_, headers, ok := h.frames.Status()
	if !ok {
		writeError(ctx, ErrNotLoaded)
		return
	}
	ctx.JSON(headers)
}

// GetFrame 编码后的单帧
// GET /api/v1/frames/{n}?format=png
func (h *Handlers) GetFrame(ctx iris.Context) {
	n, err := ctx.Params().GetInt("n")
	if err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(iris.Map{"error": "无效的帧号"})
		return
	}

	kind, err := export.ParseKind(ctx.URLParamDefault("format", "png"))
	if err != nil {
		writeError(ctx, err)
		return
	}

	frame, headers, err := h.frames.EncodeFrame(n, kind)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.Header("X-Frame-Number", strconv.Itoa(n))
	ctx.Header("X-Frame-Width", strconv.Itoa(headers.Width))
	ctx.Header("X-Frame-Height", strconv.Itoa(headers.Height))
	ctx.Header("X-Frame-Channels", strconv.Itoa(headers.Channels))
	ctx.ContentType(kind.ContentType())
	ctx.Write(frame.Bytes())
}

// ==================== 路由注册 ====================

// RegisterRoutes 注册路由
func RegisterRoutes(app *iris.Application, h *Handlers) {
	v1 := app.Party("/api/v1")
	{
		v1.Get("/config", h.GetConfig)
		v1.Post("/config", h.SetConfig)
		v1.Get("/headers", h.GetHeaders)
		v1.Get("/frames/{n:int}", h.GetFrame)
		v1.Get("/stream", h.HandleWebSocket) // WebSocket 帧导出流
	}
}
