// Command linkdemo runs a standalone snaplink server: it accepts local
// connections, replays buffered network-telemetry records to whichever
// clients open the "network" feature, and optionally exports Prometheus
// metrics over HTTP.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/openai/snap-o-link/buffer"
	"github.com/openai/snap-o-link/feature"
	"github.com/openai/snap-o-link/internal/cmdutil"
	"github.com/openai/snap-o-link/internal/obslog"
	"github.com/openai/snap-o-link/internal/version"
	"github.com/openai/snap-o-link/link"
	"github.com/openai/snap-o-link/metrics"
	"github.com/openai/snap-o-link/metrics/prom"
	"github.com/openai/snap-o-link/network"
	"github.com/openai/snap-o-link/record"
)

var (
	ver    = "dev"
	commit = "unknown"
	date   = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	socketPrefix := cmdutil.EnvString("SNAPLINK_SOCKET_PREFIX", "snaplink")
	socketDir := cmdutil.EnvString("SNAPLINK_SOCKET_DIR", os.TempDir())
	metricsListen := cmdutil.EnvString("SNAPLINK_METRICS_LISTEN", "")
	wsListen := cmdutil.EnvString("SNAPLINK_WS_LISTEN", "")
	wsPath := cmdutil.EnvString("SNAPLINK_WS_PATH", "/link")
	wsAllowedOrigins := strings.Join(cmdutil.SplitCSVEnv("SNAPLINK_WS_ALLOWED_ORIGINS"), ",")
	logLevel := cmdutil.EnvString("SNAPLINK_LOG_LEVEL", "info")
	logPretty, err := cmdutil.EnvBool("SNAPLINK_LOG_PRETTY", false)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	allowRelease, err := cmdutil.EnvBool("SNAPLINK_ALLOW_RELEASE", false)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	bufferWindow, err := cmdutil.EnvDuration("SNAPLINK_BUFFER_WINDOW", 5*time.Minute)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	maxBufferedEvents, err := cmdutil.EnvInt("SNAPLINK_MAX_BUFFERED_EVENTS", 10_000)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	maxBufferedBytes, err := cmdutil.EnvInt64("SNAPLINK_MAX_BUFFERED_BYTES", 16<<20)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	packageName := cmdutil.EnvString("SNAPLINK_PACKAGE_NAME", "")

	fs := flag.NewFlagSet("linkdemo", flag.ContinueOnError)
	fs.SetOutput(stderr)

	showVersion := false
	printConfig := false
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.BoolVar(&printConfig, "print-config", false, "print the resolved configuration as JSON and exit")
	fs.StringVar(&socketPrefix, "socket-prefix", socketPrefix, "unix socket name prefix; the bound address is <prefix>_<pid> (env: SNAPLINK_SOCKET_PREFIX)")
	fs.StringVar(&socketDir, "socket-dir", socketDir, "directory the unix sockets are created in (env: SNAPLINK_SOCKET_DIR)")
	fs.StringVar(&metricsListen, "metrics-listen", metricsListen, "listen address for a Prometheus /metrics endpoint (empty disables) (env: SNAPLINK_METRICS_LISTEN)")
	fs.StringVar(&wsListen, "ws-listen", wsListen, "listen address for a websocket transport of the link protocol (empty disables) (env: SNAPLINK_WS_LISTEN)")
	fs.StringVar(&wsPath, "ws-path", wsPath, "HTTP path the websocket transport upgrades on (env: SNAPLINK_WS_PATH)")
	fs.StringVar(&wsAllowedOrigins, "ws-allowed-origins", wsAllowedOrigins, "comma-separated Origin allow-list for the websocket transport (empty allows only loopback origins and requests without an Origin) (env: SNAPLINK_WS_ALLOWED_ORIGINS)")
	fs.StringVar(&logLevel, "log-level", logLevel, "zerolog level (env: SNAPLINK_LOG_LEVEL)")
	fs.BoolVar(&logPretty, "log-pretty", logPretty, "use zerolog's console writer instead of JSON (env: SNAPLINK_LOG_PRETTY)")
	fs.BoolVar(&allowRelease, "allow-release", allowRelease, "permit starting under a release build (env: SNAPLINK_ALLOW_RELEASE)")
	fs.DurationVar(&bufferWindow, "buffer-window", bufferWindow, "event buffer retention window (env: SNAPLINK_BUFFER_WINDOW)")
	fs.IntVar(&maxBufferedEvents, "max-buffered-events", maxBufferedEvents, "event buffer capacity (env: SNAPLINK_MAX_BUFFERED_EVENTS)")
	fs.Int64Var(&maxBufferedBytes, "max-buffered-bytes", maxBufferedBytes, "event buffer approximate byte cap (env: SNAPLINK_MAX_BUFFERED_BYTES)")
	fs.StringVar(&packageName, "package-name", packageName, "reported in the Hello record's packageName field (env: SNAPLINK_PACKAGE_NAME)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if showVersion {
		fmt.Fprintln(stdout, version.String(ver, commit, date))
		return 0
	}

	cfg := link.DefaultConfig()
	cfg.SocketPrefix = socketPrefix
	cfg.AllowRelease = allowRelease
	cfg.BufferWindow = bufferWindow
	cfg.MaxBufferedEvents = maxBufferedEvents
	cfg.MaxBufferedBytes = maxBufferedBytes

	if printConfig {
		if err := cmdutil.WriteJSON(stdout, cfg, true); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}

	obslog.Initialize(logLevel, logPretty)

	sessObs := metrics.NewAtomicSessionObserver()
	bufObs := metrics.NewAtomicBufferObserver()

	var metricsSrv *httpServer
	if metricsListen != "" {
		reg := prom.NewRegistry()
		sessObs.Set(prom.NewSessionObserver(reg))
		bufObs.Set(prom.NewBufferObserver(reg))
		metricsSrv, err = startMetricsServer(metricsListen, reg)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}

	registry := feature.NewRegistry()
	netFeature := network.New(network.DefaultConfig(), buffer.Config{
		Window:    bufferWindow,
		MaxEvents: maxBufferedEvents,
		MaxBytes:  maxBufferedBytes,
	}, bufObs)
	registry.Register(netFeature)

	startInstant := time.Now()
	hello := record.Hello{
		SchemaVersion:     "1.0",
		PackageName:       packageName,
		ProcessName:       filepath.Base(os.Args[0]),
		PID:               os.Getpid(),
		ServerStartWallMs: startInstant.UnixMilli(),
		ServerStartMonoNs: startInstant.UnixNano(),
		Mode:              "debug",
		Capabilities:      []string{network.FeatureID},
	}

	srv, err := link.New(cfg, registry, hello, nil, sessObs)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	netFeature.SetBulkSender(srv)

	socketPath := filepath.Join(socketDir, link.SocketName(socketPrefix))
	_ = os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	bulkSocketPath := socketPath + "_bulk"
	_ = os.Remove(bulkSocketPath)
	bulkLn, err := net.Listen("unix", bulkSocketPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	go func() {
		if err := srv.Serve(ln); err != nil {
			obslog.Server().Error().Err(err).Msg("serve exited")
		}
	}()
	go func() {
		if err := srv.ServeBulk(bulkLn); err != nil {
			obslog.Server().Error().Err(err).Msg("bulk serve exited")
		}
	}()

	var wsSrv *httpServer
	if wsListen != "" {
		wsSrv, err = startWSServer(wsListen, wsPath, wsAllowedOrigins, srv)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}

	fmt.Fprintf(stdout, "listening on %s (bulk %s)\n", socketPath, bulkSocketPath)

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	_ = srv.Close()
	if metricsSrv != nil {
		metricsSrv.shutdown()
	}
	if wsSrv != nil {
		wsSrv.shutdown()
	}
	_ = os.Remove(socketPath)
	_ = os.Remove(bulkSocketPath)
	return 0
}
