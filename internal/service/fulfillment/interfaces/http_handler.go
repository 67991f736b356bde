package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusHandler 暴露健康检查和 Prometheus 指标，只读
type StatusHandler struct {
	poller  *Poller
	metrics http.Handler
}

// NewStatusHandler 创建处理器。metricsHandler 为 nil 时使用默认 registry。
func NewStatusHandler(poller *Poller, metricsHandler http.Handler) *StatusHandler {
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	return &StatusHandler{poller: poller, metrics: metricsHandler}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", h.metrics)
	mux.HandleFunc("/status", h.statusHandler)
}

func (h *StatusHandler) statusHandler(w http.ResponseWriter, r *http.Request) {
	last, runs := h.poller.LastStatus()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"polls":     runs,
		"last_poll": last,
	})
}
