// Package api 运维 HTTP 服务
//
// 暴露健康检查、Prometheus 指标与执行状态 WebSocket 推送，
// 与聊天平台面向用户的通道相互独立。
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatops-bot/internal/exec"
	"chatops-bot/pkg/logging"
)

// upgrader WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	// writeTimeout 单次 WebSocket 写超时
	writeTimeout = 10 * time.Second

	// outboundBuffer 待写消息缓冲，写满后丢弃（后续快照会覆盖）
	outboundBuffer = 64
)

// ExecutionGateway 执行状态 WebSocket 网关
//
// 编排器每次刷新状态时通过 PublishStatus 旁路推送快照，
// 连接的运维客户端实时看到所有进行中执行的输出增长。
//
// 连接不允许并发写，所有写操作（广播与定向回复）统一经
// outbound 通道由单个 writeLoop 协程串行执行。
type ExecutionGateway struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	outbound chan outboundMessage
	log      *logging.Logger
}

// outboundMessage 待写出的消息，Conn 为 nil 表示广播给所有客户端
type outboundMessage struct {
	conn    *websocket.Conn
	payload interface{}
}

// NewExecutionGateway 创建执行状态网关并启动写协程
func NewExecutionGateway(log *logging.Logger) *ExecutionGateway {
	g := &ExecutionGateway{
		clients:  make(map[*websocket.Conn]bool),
		outbound: make(chan outboundMessage, outboundBuffer),
		log:      log,
	}
	go g.writeLoop()
	return g
}

// statusMessage 推送给客户端的消息格式
type statusMessage struct {
	Type   string        `json:"type"`
	ExecID string        `json:"exec_id"`
	Data   exec.Snapshot `json:"data"`
}

// PublishStatus 广播执行状态快照，实现 exec.StatusPublisher
//
// 多个执行编排协程并发调用；这里只入队，实际写出由
// writeLoop 串行完成。缓冲写满时丢弃本次快照。
func (g *ExecutionGateway) PublishStatus(execID string, snap exec.Snapshot) {
	g.enqueue(outboundMessage{
		payload: statusMessage{Type: "execution_status", ExecID: execID, Data: snap},
	})
}

// enqueue 非阻塞入队，状态推送不能拖慢执行热路径
func (g *ExecutionGateway) enqueue(out outboundMessage) {
	select {
	case g.outbound <- out:
	default:
		g.log.Debug("WebSocket outbound buffer full, dropping message")
	}
}

// writeLoop 网关唯一的连接写入者
func (g *ExecutionGateway) writeLoop() {
	for out := range g.outbound {
		if out.conn != nil {
			g.writeTo(out.conn, out.payload)
			continue
		}

		g.mu.RLock()
		conns := make([]*websocket.Conn, 0, len(g.clients))
		for conn := range g.clients {
			conns = append(conns, conn)
		}
		g.mu.RUnlock()

		for _, conn := range conns {
			g.writeTo(conn, out.payload)
		}
	}
}

// writeTo 写出单条消息，失败的连接直接摘除
func (g *ExecutionGateway) writeTo(conn *websocket.Conn, payload interface{}) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(payload); err != nil {
		g.log.WithError(err).Debug("WebSocket write failed, dropping client")
		g.removeClient(conn)
		conn.Close()
	}
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/executions
//
// 客户端消息：
//
//	心跳：{"type": "ping"} -> 响应 {"type": "pong"}
func (g *ExecutionGateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	g.addClient(conn)
	defer g.removeClient(conn)

	g.log.Debug("WebSocket client connected", "remote", r.RemoteAddr)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.log.WithError(err).Debug("WebSocket read error")
			}
			return
		}

		var req map[string]interface{}
		if json.Unmarshal(msg, &req) == nil {
			if req["type"] == "ping" {
				conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				// 回复与广播共用写协程，连接上不会出现并发写
				g.enqueue(outboundMessage{conn: conn, payload: map[string]string{"type": "pong"}})
			}
		}
	}
}

func (g *ExecutionGateway) addClient(conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[conn] = true
}

func (g *ExecutionGateway) removeClient(conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, conn)
}

// clientCount 当前连接数
func (g *ExecutionGateway) clientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}
