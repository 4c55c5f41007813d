package main

import (
	"net"
	"net/http"
	"strings"

	"github.com/openai/snap-o-link/internal/obslog"
	"github.com/openai/snap-o-link/link"
	"github.com/openai/snap-o-link/wsbridge"
)

// wsHandler upgrades requests at path to the link protocol, handing each
// resulting connection to srv exactly like a freshly accepted unix-socket
// connection.
func wsHandler(path, allowedOrigins string, srv *link.Server) http.Handler {
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	}
	opts := wsbridge.UpgraderOptions{
		CheckOrigin: wsbridge.NewOriginChecker(origins, len(origins) == 0),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsbridge.Upgrade(w, r, opts)
		if err != nil {
			obslog.Server().Warn().Err(err).Msg("ws upgrade failed")
			return
		}
		srv.AcceptWS(conn)
	})
	return mux
}

// startWSServer serves the observability link's newline-JSON protocol over
// websocket connections on addr, upgrading each request at path and handing
// it to srv exactly like a freshly accepted unix-socket connection.
func startWSServer(addr, path, allowedOrigins string, srv *link.Server) (*httpServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	httpSrv := &http.Server{Handler: wsHandler(path, allowedOrigins, srv)}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			obslog.Server().Error().Err(err).Msg("ws server exited")
		}
	}()
	return &httpServer{srv: httpSrv}, nil
}
