package server

import (
	"fmt"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/qkv-io/qKV/rpc/common"
)

// countRequest increments the per-operation request counter.
func countRequest(msgType common.MessageType) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`qkv_rpc_requests_total{op=%q}`, msgType.String())).Inc()
}

// countError increments the per-operation error counter.
func countError(msgType common.MessageType) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`qkv_rpc_errors_total{op=%q}`, msgType.String())).Inc()
}

// startMetrics exposes Prometheus metrics on the configured endpoint. Store
// and maintenance gauges are sampled at scrape time.
func (s *RPCServer) startMetrics() {
	metrics.NewGauge(`qkv_store_keys`, func() float64 {
		info, err := s.store.GetStoreInfo()
		if err != nil {
			return 0
		}
		return float64(info.Keys)
	})
	metrics.NewGauge(`qkv_store_siblings`, func() float64 {
		info, err := s.store.GetStoreInfo()
		if err != nil {
			return 0
		}
		return float64(info.Siblings)
	})
	metrics.NewGauge(`qkv_store_size_bytes`, func() float64 {
		info, err := s.store.GetStoreInfo()
		if err != nil {
			return 0
		}
		return float64(info.SizeBytes)
	})
	metrics.NewGauge(`qkv_handoff_delivered_total`, func() float64 {
		return float64(s.handoff.GetStats().Delivered)
	})
	metrics.NewGauge(`qkv_handoff_expired_total`, func() float64 {
		return float64(s.handoff.GetStats().Expired)
	})
	metrics.NewGauge(`qkv_antientropy_rounds_total`, func() float64 {
		return float64(s.antiEntropy.Rounds())
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	go func() {
		Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := http.ListenAndServe(s.config.MetricsEndpoint, mux); err != nil {
			Logger.Errorf("Metrics endpoint failed: %v", err)
		}
	}()
}
