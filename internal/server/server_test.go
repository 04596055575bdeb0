package server

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"

	"cine-reader/internal/cineerr"
	"cine-reader/internal/cinetest"
	"cine-reader/internal/config"
	"cine-reader/internal/export"
	"cine-reader/internal/logging"
)

func writeClip(t *testing.T, frames int) string {
	t.Helper()
	return cinetest.WriteFile(t, "clip.cine", cinetest.Options{
		Width:       8,
		Height:      8,
		Compression: config.CompressionPacked10,
		CFA:         3,
		Frames:      cinetest.Flat(8, 8, frames, 512),
	})
}

func newTestServer(t *testing.T, path string) *httptest.Server {
	t.Helper()
	frames, err := NewFrameServer(path)
	if err != nil {
		t.Fatal(err)
	}

	app := iris.New()
	app.Logger().SetLevel("disable")
	RegisterRoutes(app, NewHandlers(frames))
	if err := app.Build(); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(app)
	t.Cleanup(func() {
		srv.Close()
		frames.Close()
	})
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestStatusCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want int
	}{
		{&cineerr.OutOfRangeError{Frame: 3, Count: 1}, http.StatusNotFound},
		{cineerr.Unsupported("x"), http.StatusUnsupportedMediaType},
		{cineerr.NotImplemented("mp4"), http.StatusUnsupportedMediaType},
		{cineerr.Conversion("png", errors.New("bad")), http.StatusUnprocessableEntity},
		{cineerr.IO("read", 0, io.ErrUnexpectedEOF), http.StatusInternalServerError},
		{ErrNotLoaded, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := statusCode(tt.err); got != tt.want {
			t.Errorf("statusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestPathHistory(t *testing.T) {
	t.Parallel()
	h := &Handlers{}
	for i := 0; i < 12; i++ {
		h.addToPathHistory(fmt.Sprintf("/data/%d.cine", i))
	}
	h.addToPathHistory("/data/5.cine")

	got := h.history()
	if len(got) != config.MaxPathHistory {
		t.Fatalf("len = %d, want %d", len(got), config.MaxPathHistory)
	}
	if got[0] != "/data/5.cine" || got[1] != "/data/11.cine" {
		t.Errorf("history = %v", got)
	}
	for _, p := range got[1:] {
		if p == "/data/5.cine" {
			t.Error("duplicate path in history")
		}
	}
}

func TestConfig_NotLoaded(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, "")

	var cfg struct {
		Loaded bool `json:"loaded"`
	}
	if code := getJSON(t, srv.URL+"/api/v1/config", &cfg); code != http.StatusOK || cfg.Loaded {
		t.Errorf("config = %d %+v", code, cfg)
	}
	if code := getJSON(t, srv.URL+"/api/v1/headers", nil); code != http.StatusBadRequest {
		t.Errorf("headers code = %d, want 400", code)
	}
	if code := getJSON(t, srv.URL+"/api/v1/frames/0", nil); code != http.StatusBadRequest {
		t.Errorf("frame code = %d, want 400", code)
	}
}

func TestSetConfig(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, "")
	path := writeClip(t, 2)

	var resp struct {
		Loaded      bool     `json:"loaded"`
		PathHistory []string `json:"pathHistory"`
		Headers     struct {
			Width      int `json:"width"`
			FrameCount int `json:"frameCount"`
		} `json:"headers"`
	}
	body := fmt.Sprintf(`{"path":%q}`, path)
	if code := postJSON(t, srv.URL+"/api/v1/config", body, &resp); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if !resp.Loaded || resp.Headers.Width != 8 || resp.Headers.FrameCount != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.PathHistory) != 1 || resp.PathHistory[0] != path {
		t.Errorf("pathHistory = %v", resp.PathHistory)
	}

	if code := postJSON(t, srv.URL+"/api/v1/config", `{"path":"/tmp/clip.avi"}`, nil); code != http.StatusUnsupportedMediaType {
		t.Errorf("avi code = %d, want 415", code)
	}
	if code := postJSON(t, srv.URL+"/api/v1/config", `{"path":"/tmp/clip.mp4"}`, nil); code != http.StatusUnsupportedMediaType {
		t.Errorf("mp4 code = %d, want 415", code)
	}
	if code := postJSON(t, srv.URL+"/api/v1/config", `not json`, nil); code != http.StatusBadRequest {
		t.Errorf("bad json code = %d, want 400", code)
	}
}

func TestGetHeaders(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, writeClip(t, 3))

	var h struct {
		Name       string `json:"name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		FrameCount int    `json:"frameCount"`
		Channels   int    `json:"channels"`
		BitDepth   int    `json:"bitDepth"`
	}
	if code := getJSON(t, srv.URL+"/api/v1/headers", &h); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if h.Name != "clip.cine" || h.Width != 8 || h.Height != 8 || h.FrameCount != 3 || h.Channels != 3 || h.BitDepth != 10 {
		t.Errorf("headers = %+v", h)
	}
}

func TestGetFrame(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, writeClip(t, 2))

	resp, err := http.Get(srv.URL + "/api/v1/frames/1?format=png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("code = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/png") {
		t.Errorf("Content-Type = %q", ct)
	}
	if resp.Header.Get("X-Frame-Channels") != "3" {
		t.Errorf("X-Frame-Channels = %q", resp.Header.Get("X-Frame-Channels"))
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if r, _, _, _ := img.At(0, 0).RGBA(); r != 512<<6 {
		t.Errorf("R(0,0) = %d, want %d", r, 512<<6)
	}
}

func TestGetFrame_Raw(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, writeClip(t, 1))

	resp, err := http.Get(srv.URL + "/api/v1/frames/0?format=raw")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 8*8*3*2 {
		t.Fatalf("len = %d, want %d", len(data), 8*8*3*2)
	}
	if v := binary.LittleEndian.Uint16(data[10:]); v != 512<<6 {
		t.Errorf("sample = %d", v)
	}
}

func TestGetFrame_Errors(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, writeClip(t, 1))

	tests := []struct {
		url  string
		want int
	}{
		{"/api/v1/frames/1", http.StatusNotFound},
		{"/api/v1/frames/0?format=gif", http.StatusUnsupportedMediaType},
		{"/api/v1/frames/0?format=mp4", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		var body struct {
			Error string `json:"error"`
		}
		if code := getJSON(t, srv.URL+tt.url, &body); code != tt.want || body.Error == "" {
			t.Errorf("%s: code = %d error = %q, want %d", tt.url, code, body.Error, tt.want)
		}
	}
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	mt, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", mt)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestStream_Export(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, writeClip(t, 4))
	ws := dialStream(t, srv)

	if err := ws.WriteJSON(WSMessage{Action: "export", Start: 1, End: 3, Format: "bytes"}); err != nil {
		t.Fatal(err)
	}

	if m := readJSON(t, ws); m["type"] != "stream_start" {
		t.Fatalf("first message = %v", m)
	}

	for want := 1; want < 3; want++ {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if mt != websocket.BinaryMessage {
			t.Fatalf("message type = %d, want binary", mt)
		}
		if string(data[0:4]) != FrameMagic {
			t.Fatalf("magic = %q", data[0:4])
		}
		if n := binary.BigEndian.Uint32(data[4:8]); n != uint32(want) {
			t.Errorf("frame = %d, want %d", n, want)
		}
		if export.Kind(data[8]) != export.Bytes {
			t.Errorf("kind = %d", data[8])
		}
		size := binary.BigEndian.Uint32(data[9:13])
		if size != 8*8*3*2 || len(data) != FrameHeaderSize+int(size) {
			t.Errorf("size = %d, len = %d", size, len(data))
		}
		if !bytes.Equal(data[13:15], []byte{0x00, 0x80}) {
			t.Errorf("first sample bytes = %x, want 0080", data[13:15])
		}
	}

	m := readJSON(t, ws)
	if m["type"] != "stream_end" || m["frames"] != float64(2) {
		t.Errorf("last message = %v", m)
	}
}

func TestStream_BadRequests(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, writeClip(t, 2))
	ws := dialStream(t, srv)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{")); err != nil {
		t.Fatal(err)
	}
	if m := readJSON(t, ws); m["error"] == nil {
		t.Errorf("bad json reply = %v", m)
	}

	if err := ws.WriteJSON(WSMessage{Action: "export", Format: "gif"}); err != nil {
		t.Fatal(err)
	}
	if m := readJSON(t, ws); m["error"] == nil {
		t.Errorf("bad format reply = %v", m)
	}

	if err := ws.WriteJSON(WSMessage{Action: "export", Start: 5}); err != nil {
		t.Fatal(err)
	}
	if m := readJSON(t, ws); m["error"] == nil {
		t.Errorf("bad range reply = %v", m)
	}
}

func TestStream_Stop(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, writeClip(t, 50))
	ws := dialStream(t, srv)

	// 限速后在第一帧之后停止
	if err := ws.WriteJSON(WSMessage{Action: "export", Format: "raw", FPS: 20}); err != nil {
		t.Fatal(err)
	}
	if m := readJSON(t, ws); m["type"] != "stream_start" {
		t.Fatalf("first message = %v", m)
	}
	if _, _, err := ws.ReadMessage(); err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteJSON(WSMessage{Action: "stop"}); err != nil {
		t.Fatal(err)
	}

	// 停止后不会再收到 stream_end
	ws.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	got := 0
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if mt == websocket.TextMessage && strings.Contains(string(data), "stream_end") {
			t.Fatal("stream_end after stop")
		}
		got++
	}
	if got > 2 {
		t.Errorf("received %d frames after stop", got)
	}
}

// brokenConn 所有写操作都失败的连接
type brokenConn struct {
	mu     sync.Mutex
	texts  int
	frames int
}

func (c *brokenConn) WriteJSON(any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts++
	return errors.New("connection reset by peer")
}

func (c *brokenConn) WriteMessage(int, []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	return errors.New("connection reset by peer")
}

func TestStreamRange_StartWriteFails(t *testing.T) {
	t.Parallel()
	frames, err := NewFrameServer(writeClip(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	defer frames.Close()

	conn := &brokenConn{}
	session := &StreamSession{
		ws:       conn,
		frames:   frames,
		log:      logging.With("component", "stream"),
		stopChan: make(chan struct{}),
	}
	session.streamRange(make(chan struct{}), 0, 0, export.Raw, 0)

	// stream_start 写失败后不再编码和发送
	if conn.texts != 1 || conn.frames != 0 {
		t.Errorf("writes: %d text, %d binary; want 1 text, 0 binary", conn.texts, conn.frames)
	}
}
