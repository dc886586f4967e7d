package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/cash-kiosk/internal/kiosk"
	"go.uber.org/zap"
)

const (
	// 写超时
	wsWriteWait = 10 * time.Second
	// 心跳周期
	wsPingPeriod = 30 * time.Second
	// 读超时（须大于心跳周期）
	wsPongWait = 60 * time.Second
)

// WebSocketHandler 事件流WebSocket处理器
type WebSocketHandler struct {
	runtime  *kiosk.Runtime
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(runtime *kiosk.Runtime, log *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		runtime: runtime,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 允许所有来源（内网部署）
				return true
			},
		},
	}
}

// EventsWebSocket 实时推送现金事件
// GET /ws/events
func (h *WebSocketHandler) EventsWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	events, cancel := h.runtime.Subscribe()

	h.log.Info("WebSocket client connected",
		zap.String("remote", conn.RemoteAddr().String()))

	go h.writePump(conn, events, cancel)
	go h.readPump(conn, cancel)
}

// writePump 向客户端推送事件
func (h *WebSocketHandler) writePump(conn *websocket.Conn, events <-chan kiosk.Event, cancel func()) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				// 订阅已取消
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteWait))
				return
			}

			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				h.log.Debug("WebSocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息（仅用于检测断开）
func (h *WebSocketHandler) readPump(conn *websocket.Conn, cancel func()) {
	defer func() {
		cancel()
		conn.Close()
		h.log.Info("WebSocket client disconnected",
			zap.String("remote", conn.RemoteAddr().String()))
	}()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
