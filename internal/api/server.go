package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatops-bot/pkg/logging"
)

// ExecutionLogSource 归档输出读取能力，由对象存储客户端实现
type ExecutionLogSource interface {
	GetExecutionLog(ctx context.Context, key string) (io.ReadCloser, error)
}

// Server 运维 HTTP 服务
type Server struct {
	httpServer *http.Server
	gateway    *ExecutionGateway
	logs       ExecutionLogSource
	log        *logging.Logger
}

// NewServer 创建运维服务
func NewServer(addr string, gateway *ExecutionGateway, log *logging.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		gateway: gateway,
		log:     log,
	}

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws/executions", gateway.HandleWebSocket)
	mux.HandleFunc("GET /exec-logs/{key...}", s.handleExecLog)

	return s
}

// WithExecutionLogs 启用归档输出下载端点
func (s *Server) WithExecutionLogs(logs ExecutionLogSource) *Server {
	s.logs = logs
	return s
}

// Start 启动监听，阻塞直到服务退出
func (s *Server) Start() error {
	s.log.Info("Ops server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关停
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleHealthz 健康检查
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleExecLog 下载一次执行的归档输出
//
// 路由: GET /exec-logs/{key...}，key 为归档时返回的对象键。
// 未配置对象存储时端点不可用。
func (s *Server) handleExecLog(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		http.NotFound(w, r)
		return
	}

	key := r.PathValue("key")
	if key == "" {
		http.NotFound(w, r)
		return
	}

	rc, err := s.logs.GetExecutionLog(r.Context(), key)
	if err != nil {
		s.log.WithError(err).Debug("Execution log not found", "key", key)
		http.NotFound(w, r)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := io.Copy(w, rc); err != nil {
		s.log.WithError(err).Warn("Failed to stream execution log", "key", key)
	}
}
