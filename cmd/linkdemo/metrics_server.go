package main

import (
	"net"
	"net/http"

	"github.com/openai/snap-o-link/internal/contextutil"
	"github.com/openai/snap-o-link/internal/obslog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// httpServer owns an auxiliary HTTP listener (the Prometheus /metrics
// endpoint or the websocket transport), started independently of the main
// unix-socket listeners.
type httpServer struct {
	srv *http.Server
}

func startMetricsServer(addr string, reg *prometheus.Registry) (*httpServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			obslog.Server().Error().Err(err).Msg("metrics server exited")
		}
	}()
	return &httpServer{srv: srv}, nil
}

func (m *httpServer) shutdown() {
	ctx, cancel := contextutil.WithTimeout(nil, contextutil.DefaultShutdownTimeout)
	defer cancel()
	_ = m.srv.Shutdown(ctx)
}
