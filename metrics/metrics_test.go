package metrics

import "testing"

type countingSessionObserver struct{ opened, closed int }

func (c *countingSessionObserver) SessionOpened()            { c.opened++ }
func (c *countingSessionObserver) SessionClosed()             { c.closed++ }
func (c *countingSessionObserver) Handshake(HandshakeResult)   {}
func (c *countingSessionObserver) HighPriorityEnqueued()       {}
func (c *countingSessionObserver) LowPriorityEnqueued()        {}
func (c *countingSessionObserver) LowPriorityDropped(uint64)   {}

func TestAtomicSessionObserverDefaultsToNoop(t *testing.T) {
	a := NewAtomicSessionObserver()
	a.SessionOpened() // must not panic
}

func TestAtomicSessionObserverSwap(t *testing.T) {
	a := NewAtomicSessionObserver()
	c := &countingSessionObserver{}
	a.Set(c)
	a.SessionOpened()
	a.SessionClosed()
	if c.opened != 1 || c.closed != 1 {
		t.Fatalf("got opened=%d closed=%d", c.opened, c.closed)
	}
}

func TestAtomicSessionObserverSetNilFallsBackToNoop(t *testing.T) {
	a := NewAtomicSessionObserver()
	a.Set(nil)
	a.SessionOpened() // must not panic
}
