// Package session implements the per-connection state machine: handshake,
// the dual-priority writer loop, and the host-message reader loop.
package session

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/openai/snap-o-link/bulk"
	"github.com/openai/snap-o-link/feature"
	"github.com/openai/snap-o-link/internal/obslog"
	"github.com/openai/snap-o-link/linkerrors"
	"github.com/openai/snap-o-link/metrics"
	"github.com/openai/snap-o-link/record"
	"github.com/openai/snap-o-link/wire"
)

// helloToken is the literal line a client must send to begin a session.
const helloToken = "HelloSnapO"

// State is a session's position in its Connecting→Active→Closed lifecycle.
type State int32

const (
	Connecting State = iota
	Active
	Closed
)

var errSessionClosed = errors.New("session closed")
var errNoBulkChannel = errors.New("session: no bulk channel attached")

// Registry is the subset of feature.Registry that Session depends on.
type Registry interface {
	Snapshot() []feature.Feature
}

type lowItem struct {
	rec        record.Record
	enqueuedAt time.Time
}

// Session is a single connection's handshake → active → closed state
// machine, owning its socket, writer, and two priority queues exclusively.
type Session struct {
	id       uint64
	conn     io.ReadWriteCloser
	registry Registry
	cfg      Config
	hello    record.Hello
	appIcon  *record.AppIcon
	onClose  func(id uint64)
	obs      metrics.SessionObserver

	state atomic.Int32

	highCh           chan record.Record
	lowMu            sync.Mutex
	lowQueue         *queue.Queue
	lowNotify        chan struct{}
	lowDropped       atomic.Uint64
	lastHighEmitNano atomic.Int64

	closeCh   chan struct{}
	closeOnce sync.Once

	attachedFeatures map[string]feature.Feature
	openedMu         sync.Mutex
	opened           map[string]struct{}

	bulkMu sync.Mutex
	bulk   *bulk.Channel
}

// New constructs a session bound to conn, ready for Run.
func New(id uint64, conn io.ReadWriteCloser, registry Registry, cfg Config, hello record.Hello, appIcon *record.AppIcon, onClose func(id uint64), obs metrics.SessionObserver) *Session {
	cfg = cfg.withDefaults()
	if obs == nil {
		obs = metrics.NoopSessionObserver
	}
	return &Session{
		id:               id,
		conn:             conn,
		registry:         registry,
		cfg:              cfg,
		hello:            hello,
		appIcon:          appIcon,
		onClose:          onClose,
		obs:              obs,
		highCh:           make(chan record.Record, cfg.HighPriorityQueueCapacity),
		lowQueue:         queue.New(),
		lowNotify:        make(chan struct{}, 1),
		closeCh:          make(chan struct{}),
		attachedFeatures: make(map[string]feature.Feature),
		opened:           make(map[string]struct{}),
	}
}

// ID returns the session's process-wide monotonic id.
func (s *Session) ID() uint64 { return s.id }

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(v State) { s.state.Store(int32(v)) }

// HasOpened reports whether featureID has been opened on this session.
func (s *Session) HasOpened(featureID string) bool {
	s.openedMu.Lock()
	defer s.openedMu.Unlock()
	_, ok := s.opened[featureID]
	return ok
}

// Run performs the handshake and, on success, drives the session until it
// closes. It never returns an error to the caller: all failures are local
// to the session (spec.md §7 propagation rule).
func (s *Session) Run() {
	defer s.Close()

	if err := s.handshake(); err != nil {
		s.logHandshakeRejected(err)
		return
	}
	s.obs.Handshake(metrics.HandshakeOK)

	for _, f := range s.registry.Snapshot() {
		s.attachedFeatures[f.FeatureID()] = f
	}
	s.setState(Active)
	s.obs.SessionOpened()

	go s.writerLoop()

	_ = s.enqueueHigh(s.hello)
	if s.appIcon != nil {
		_ = s.enqueueHigh(*s.appIcon)
	}
	_ = s.enqueueHigh(record.ReplayComplete{})

	s.readerLoop()
}

// handshake enforces spec.md §4.5 step 1: one line, within
// ClientHelloTimeout and ClientHelloMaxBytes, equal to "HelloSnapO".
func (s *Session) handshake() error {
	done := make(chan struct{})
	var timedOut atomic.Bool
	timer := time.AfterFunc(s.cfg.ClientHelloTimeout, func() {
		select {
		case <-done:
		default:
			timedOut.Store(true)
			_ = s.conn.Close()
		}
	})
	defer func() {
		close(done)
		timer.Stop()
	}()

	lr := io.LimitReader(s.conn, int64(s.cfg.ClientHelloMaxBytes))
	br := bufio.NewReaderSize(lr, s.cfg.ClientHelloMaxBytes)
	line, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) || len(line) >= s.cfg.ClientHelloMaxBytes {
			return linkerrors.Wrap(linkerrors.StageHandshake, linkerrors.CodeOversize, err)
		}
		if timedOut.Load() {
			return linkerrors.Wrap(linkerrors.StageHandshake, linkerrors.CodeTimeout, err)
		}
		return linkerrors.Wrap(linkerrors.StageHandshake, linkerrors.CodeIOError, err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line != helloToken {
		return linkerrors.Wrap(linkerrors.StageHandshake, linkerrors.CodeBadToken, errors.New("unexpected handshake token"))
	}
	return nil
}

func (s *Session) logHandshakeRejected(err error) {
	var le *linkerrors.Error
	code := linkerrors.CodeIOError
	if errors.As(err, &le) {
		code = le.Code
	}
	result := metrics.HandshakeIOError
	switch code {
	case linkerrors.CodeTimeout:
		result = metrics.HandshakeTimeout
	case linkerrors.CodeOversize:
		result = metrics.HandshakeOversize
	case linkerrors.CodeBadToken:
		result = metrics.HandshakeBadToken
	}
	s.obs.Handshake(result)
	obslog.Session(s.id).Warn().Str("reason", string(code)).Msg("handshake rejected")
}

// AttachBulk binds ch as this session's Bulk Transfer Channel, opened
// lazily by the transport once a client pairs a second connection with this
// session id. A later attach replaces and closes the prior channel.
func (s *Session) AttachBulk(ch *bulk.Channel) {
	s.bulkMu.Lock()
	prev := s.bulk
	s.bulk = ch
	s.bulkMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
}

// SendBulkBody streams body to this session's attached Bulk Transfer
// Channel, greeting it with requestID/size/encoding. Returns
// errNoBulkChannel if none has been attached yet.
func (s *Session) SendBulkBody(requestID string, size int64, encoding string, body io.Reader) error {
	s.bulkMu.Lock()
	ch := s.bulk
	s.bulkMu.Unlock()
	if ch == nil {
		return linkerrors.Wrap(linkerrors.StageSession, linkerrors.CodeUnknownID, errNoBulkChannel)
	}
	return ch.SendBody(requestID, size, encoding, body)
}

// Enqueue routes r onto the session's high- or low-priority queue.
func (s *Session) Enqueue(r record.Record, prio feature.Priority) error {
	if s.State() != Active {
		return linkerrors.Wrap(linkerrors.StageSession, linkerrors.CodeClosed, errSessionClosed)
	}
	if prio == feature.High {
		return s.enqueueHigh(r)
	}
	s.enqueueLow(r)
	return nil
}

// enqueueHigh blocks the caller on a best-effort basis when the queue is
// full, but never silently drops; closing the session unblocks it
// (spec.md §4.4).
func (s *Session) enqueueHigh(r record.Record) error {
	select {
	case s.highCh <- r:
		s.obs.HighPriorityEnqueued()
		return nil
	case <-s.closeCh:
		return linkerrors.Wrap(linkerrors.StageSession, linkerrors.CodeClosed, errSessionClosed)
	}
}

// enqueueLow drops the oldest pending record on overflow (spec.md §4.4).
func (s *Session) enqueueLow(r record.Record) {
	s.lowMu.Lock()
	var dropped uint64
	didDrop := false
	if s.lowQueue.Length() >= s.cfg.LowPriorityQueueCapacity {
		s.lowQueue.Remove()
		dropped = s.lowDropped.Add(1)
		didDrop = true
	}
	s.lowQueue.Add(lowItem{rec: r, enqueuedAt: time.Now()})
	s.lowMu.Unlock()

	if didDrop {
		s.logLowDrop(dropped)
	}

	select {
	case s.lowNotify <- struct{}{}:
	default:
	}
	s.obs.LowPriorityEnqueued()
}

// logLowDrop logs at the 1st and every 100th drop (spec.md §4.4, §7c).
func (s *Session) logLowDrop(n uint64) {
	s.obs.LowPriorityDropped(n)
	if n == 1 || n%100 == 0 {
		obslog.Session(s.id).Warn().Uint64("lowDropped", n).Msg("low priority queue overflow, dropping oldest")
	}
}

func (s *Session) peekLow() (lowItem, bool) {
	s.lowMu.Lock()
	defer s.lowMu.Unlock()
	if s.lowQueue.Length() == 0 {
		return lowItem{}, false
	}
	return s.lowQueue.Peek().(lowItem), true
}

func (s *Session) popLow() (lowItem, bool) {
	s.lowMu.Lock()
	defer s.lowMu.Unlock()
	if s.lowQueue.Length() == 0 {
		return lowItem{}, false
	}
	return s.lowQueue.Remove().(lowItem), true
}

// writerLoop is the single writer per session (spec.md §4.5).
func (s *Session) writerLoop() {
	w := bufio.NewWriter(s.conn)
	for {
		select {
		case r := <-s.highCh:
			if s.sendHigh(w, r) != nil {
				s.Close()
				return
			}
			continue
		default:
		}

		if low, ok := s.peekLow(); ok {
			if s.shouldDeferLow(low) {
				timer := time.NewTimer(s.cfg.LowPriorityRetryDelay)
				select {
				case r := <-s.highCh:
					timer.Stop()
					if s.sendHigh(w, r) != nil {
						s.Close()
						return
					}
				case <-timer.C:
				case <-s.closeCh:
					timer.Stop()
					return
				}
				continue
			}
			item, _ := s.popLow()
			if s.sendLow(w, item.rec) != nil {
				s.Close()
				return
			}
			continue
		}

		select {
		case r := <-s.highCh:
			if s.sendHigh(w, r) != nil {
				s.Close()
				return
			}
		case <-s.lowNotify:
		case <-s.closeCh:
			return
		}
	}
}

// shouldDeferLow reports whether item should wait for a possible
// high-priority record instead of being sent now (spec.md §4.5).
func (s *Session) shouldDeferLow(item lowItem) bool {
	last := s.lastHighEmitNano.Load()
	recentHigh := last != 0 && time.Since(time.Unix(0, last)) < s.cfg.HighPriorityIdleThreshold
	age := time.Since(item.enqueuedAt)
	return recentHigh && age < s.cfg.MaxLowPriorityDefer
}

func (s *Session) sendHigh(w *bufio.Writer, r record.Record) error {
	if err := s.encodeFlush(w, r); err != nil {
		return err
	}
	s.lastHighEmitNano.Store(time.Now().UnixNano())
	return nil
}

func (s *Session) sendLow(w *bufio.Writer, r record.Record) error {
	return s.encodeFlush(w, r)
}

func (s *Session) encodeFlush(w *bufio.Writer, r record.Record) error {
	if err := wire.Encode(w, r); err != nil {
		return err
	}
	return w.Flush()
}

// readerLoop reads newline-delimited host messages until EOF or close.
func (s *Session) readerLoop() {
	scanner := wire.NewScanner(s.conn, wire.DefaultMaxLineBytes)
	for scanner.Scan() {
		msg, err := wire.DecodeHost(scanner.Bytes())
		if err != nil {
			continue // malformed host message: line ignored (spec.md §7d)
		}
		s.dispatchHost(msg)
	}
}

func (s *Session) dispatchHost(msg record.HostMessage) {
	switch m := msg.(type) {
	case record.FeatureOpened:
		s.handleFeatureOpened(m.Feature)
	case record.FeatureCommand:
		s.handleFeatureCommand(m.Feature, m.Payload)
	default:
		// Unrecognized host message kind: ignored (spec.md §7e).
	}
}

func (s *Session) handleFeatureOpened(featureID string) {
	f, ok := s.attachedFeatures[featureID]
	if !ok {
		return
	}
	s.openedMu.Lock()
	if _, already := s.opened[featureID]; already {
		s.openedMu.Unlock()
		return
	}
	s.opened[featureID] = struct{}{}
	s.openedMu.Unlock()
	f.OnFeatureOpened(s.id)
}

func (s *Session) handleFeatureCommand(featureID string, payload record.RawJSON) {
	f, ok := s.attachedFeatures[featureID]
	if !ok {
		return // unknown features ignored silently (spec.md §4.5)
	}
	f.OnFeatureCommand(s.id, payload)
}

// Close idempotently tears the session down: cancels both queues, notifies
// every attached feature exactly once, closes the socket, and removes the
// session from its owner.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.setState(Closed)
		close(s.closeCh)
		_ = s.conn.Close()
		s.bulkMu.Lock()
		bulkCh := s.bulk
		s.bulkMu.Unlock()
		if bulkCh != nil {
			_ = bulkCh.Close()
		}
		for _, f := range s.attachedFeatures {
			f.OnClientDisconnected(s.id)
		}
		s.obs.SessionClosed()
		if s.onClose != nil {
			s.onClose(s.id)
		}
	})
	return nil
}
