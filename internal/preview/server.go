package preview

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-live-translator/pkg/livetrans"
)

// frame 推送到预览页面的消息帧
type frame struct {
	Kind    livetrans.EventKind `json:"kind"`
	Payload livetrans.Event     `json:"payload"`
}

// Server 预览面板服务
// 作为消息流的消费端，把管线事件以JSON帧广播给所有websocket连接；
// 新连接会先收到最近一次的完整结果
type Server struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu         sync.Mutex
	clients    map[*websocket.Conn]struct{}
	lastResult *livetrans.TranslationResultEvent

	httpServer *http.Server
}

// NewServer 创建预览服务
func NewServer(addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			// 预览服务只监听本机，放开来源检查
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Emit 实现livetrans.Emitter，把事件广播给所有连接
func (s *Server) Emit(event livetrans.Event) {
	data, err := json.Marshal(frame{Kind: event.Kind(), Payload: event})
	if err != nil {
		s.logger.Warn("event marshal failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if result, ok := event.(livetrans.TranslationResultEvent); ok {
		s.lastResult = &result
	}

	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("client write failed, dropping connection", zap.Error(err))
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// ListenAndServe 启动服务，阻塞直到关闭
func (s *Server) ListenAndServe() error {
	s.logger.Info("preview server listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown 关闭服务并断开所有连接
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	return s.httpServer.Shutdown(ctx)
}

// handleWS websocket升级与连接登记
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	last := s.lastResult
	s.mu.Unlock()

	s.logger.Debug("preview client connected", zap.String("remote", r.RemoteAddr))

	// 回放最近的完整结果，新打开的页面立即有内容
	if last != nil {
		if data, err := json.Marshal(frame{Kind: last.Kind(), Payload: *last}); err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}

	// 读循环只用于感知断开
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// handleIndex 提供自带websocket客户端的预览页面
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>livetrans preview</title>
<style>
body { max-width: 48rem; margin: 2rem auto; font-family: sans-serif; line-height: 1.6; }
.livetrans-recovery { border-left: 3px solid #e0a800; padding-left: .75rem; background: #fff8e1; }
#status { color: #888; font-size: .85rem; }
</style>
</head>
<body>
<div id="status">connecting…</div>
<div id="content"></div>
<script>
const status = document.getElementById("status");
const content = document.getElementById("content");
const chunks = {};
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onopen = () => { status.textContent = "connected"; };
ws.onclose = () => { status.textContent = "disconnected"; };
ws.onmessage = (msg) => {
  const frame = JSON.parse(msg.data);
  switch (frame.kind) {
    case "setLoading":
      status.textContent = frame.payload.is_loading ? "translating…" : "done";
      break;
    case "translationSource":
      content.innerHTML = "";
      for (const seg of frame.payload.segments) {
        const div = document.createElement("div");
        div.id = "seg-" + seg.segment_index;
        div.style.opacity = "0.4";
        div.textContent = seg.markdown;
        content.appendChild(div);
        chunks[seg.segment_index] = div;
      }
      break;
    case "translationChunk": {
      const div = chunks[frame.payload.segment_index];
      if (div) { div.style.opacity = "1"; div.innerHTML = frame.payload.html; }
      break;
    }
    case "translationResult":
      content.innerHTML = frame.payload.result.html;
      break;
    case "translationError":
      status.textContent = "error: " + frame.payload.message +
        (frame.payload.hint ? " (" + frame.payload.hint + ")" : "");
      break;
  }
};
</script>
</body>
</html>
`
