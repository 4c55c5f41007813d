// Package link implements the server half of the observability link: the
// accept loop, session bookkeeping, and the feature-sink factory that ties
// registered features to live sessions (spec.md §4.6).
package link

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/openai/snap-o-link/bulk"
	"github.com/openai/snap-o-link/feature"
	"github.com/openai/snap-o-link/internal/obslog"
	"github.com/openai/snap-o-link/linkerrors"
	"github.com/openai/snap-o-link/metrics"
	"github.com/openai/snap-o-link/record"
)

var errReleaseNotAllowed = errors.New("refusing to start: release build without AllowRelease")
var errBadBulkHello = errors.New("bulk: bad hello line")

// Server accepts sessions on a listener the caller binds, and owns the
// process-wide feature registry those sessions attach to.
type Server struct {
	cfg      Config
	registry *feature.Registry
	hello    record.Hello
	appIcon  *record.AppIcon
	obs      metrics.SessionObserver

	ln net.Listener

	mu       sync.Mutex
	sessions map[uint64]sessionHandle
	nextID   uint64

	closeOnce sync.Once
	closed    chan struct{}
}

// sessionHandle is the subset of *session.Session the server needs.
type sessionHandle interface {
	ID() uint64
	HasOpened(featureID string) bool
	Enqueue(r record.Record, prio feature.Priority) error
	Run()
	Close() error
	AttachBulk(ch *bulk.Channel)
	SendBulkBody(requestID string, size int64, encoding string, body io.Reader) error
}

// SocketName returns "<prefix>_<pid>", the address a client dials.
func SocketName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, os.Getpid())
}

// New validates cfg and constructs a Server bound to registry. It does not
// start accepting connections; call Serve for that.
func New(cfg Config, registry *feature.Registry, hello record.Hello, appIcon *record.AppIcon, obs metrics.SessionObserver) (*Server, error) {
	if isReleaseBuild && !cfg.AllowRelease {
		obslog.Server().Error().Msg("refusing to start: release build without allowRelease")
		return nil, linkerrors.Wrap(linkerrors.StageServer, linkerrors.CodeReleaseRefused, errReleaseNotAllowed)
	}
	if registry == nil {
		registry = feature.NewRegistry()
	}
	if obs == nil {
		obs = metrics.NoopSessionObserver
	}
	cfg = cfg.withDefaults()
	return &Server{
		cfg:      cfg,
		registry: registry,
		hello:    hello,
		appIcon:  appIcon,
		obs:      obs,
		sessions: make(map[uint64]sessionHandle),
		closed:   make(chan struct{}),
	}, nil
}

// Serve accepts connections on ln until the server is closed. The caller
// owns binding ln (e.g. to SocketName's address) and hands it over here.
func (s *Server) Serve(ln net.Listener) error {
	s.ln = ln
	s.registry.Start(s.sinkFor)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			obslog.Server().Warn().Err(err).Msg("accept failed")
			continue
		}
		s.acceptSession(conn)
	}
}

func (s *Server) acceptSession(conn io.ReadWriteCloser) {
	id := atomic.AddUint64(&s.nextID, 1)
	sess := s.newSession(id, conn)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	go sess.Run()
}

// AcceptWS hands an already-upgraded websocket connection (wsbridge.Conn) to
// the server as a new session, the same as a freshly accepted unix-socket
// conn. It lets an alternate transport (C10) reuse the same handshake and
// session lifecycle as Serve's accept loop.
func (s *Server) AcceptWS(conn io.ReadWriteCloser) {
	s.acceptSession(conn)
}

// ServeBulk accepts Bulk Transfer Channel connections on ln until the server
// is closed. Each connection starts with a "BulkHello <sessionId>\n" line
// pairing it to an already-accepted session (spec.md §4.7 augmentation,
// C8); unpaired or unknown connections are closed immediately.
func (s *Server) ServeBulk(ln net.Listener) error {
	go func() {
		<-s.closed
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			obslog.Server().Warn().Err(err).Msg("bulk accept failed")
			continue
		}
		go s.pairBulkConn(conn)
	}
}

func (s *Server) pairBulkConn(conn net.Conn) {
	id, err := readBulkHello(conn)
	if err != nil {
		_ = conn.Close()
		return
	}
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		_ = conn.Close()
		return
	}
	ch, err := bulk.NewServerChannel(conn)
	if err != nil {
		_ = conn.Close()
		return
	}
	sess.AttachBulk(ch)
}

// SendBody implements network.BulkSender by routing to sessionID's attached
// Bulk Transfer Channel.
func (s *Server) SendBody(sessionID uint64, requestID string, size int64, encoding string, body io.Reader) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return linkerrors.Wrap(linkerrors.StageServer, linkerrors.CodeUnknownID, errors.New("no such session"))
	}
	return sess.SendBulkBody(requestID, size, encoding, body)
}

func (s *Server) removeSession(id uint64) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Close cancels the accept loop, closes every live session, and closes the
// listening socket (spec.md §4.6).
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.ln != nil {
			_ = s.ln.Close()
		}
		s.mu.Lock()
		handles := make([]sessionHandle, 0, len(s.sessions))
		for _, h := range s.sessions {
			handles = append(handles, h)
		}
		s.mu.Unlock()
		for _, h := range handles {
			_ = h.Close()
		}
	})
	return nil
}

// sinkFor builds the feature.Sink the registry binds to featureID: routing
// a send to either every session that has opened that feature, or one.
func (s *Server) sinkFor(featureID string) feature.Sink {
	return &routedSink{server: s, featureID: featureID}
}

type routedSink struct {
	server    *Server
	featureID string
}

func (r *routedSink) Send(payload record.RawJSON, target feature.ClientTarget, priority feature.Priority) error {
	env := record.FeatureEvent{Feature: r.featureID, Payload: payload}

	r.server.mu.Lock()
	targets := make([]sessionHandle, 0, len(r.server.sessions))
	if target.IsAll() {
		for _, h := range r.server.sessions {
			if h.HasOpened(r.featureID) {
				targets = append(targets, h)
			}
		}
	} else if h, ok := r.server.sessions[target.SessionID()]; ok && h.HasOpened(r.featureID) {
		targets = append(targets, h)
	}
	r.server.mu.Unlock()

	var firstErr error
	for _, h := range targets {
		if err := h.Enqueue(env, priority); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
