package feature

import (
	"testing"

	"github.com/openai/snap-o-link/record"
)

type fakeFeature struct {
	id            string
	linkAvailable int
	lastSink      Sink
}

func (f *fakeFeature) FeatureID() string                                 { return f.id }
func (f *fakeFeature) OnLinkAvailable(sink Sink)                         { f.linkAvailable++; f.lastSink = sink }
func (f *fakeFeature) OnFeatureOpened(sessionID uint64)                  {}
func (f *fakeFeature) OnFeatureCommand(sessionID uint64, payload record.RawJSON) {}
func (f *fakeFeature) OnClientDisconnected(sessionID uint64)             {}

type fakeSink struct{}

func (fakeSink) Send(payload record.RawJSON, target ClientTarget, priority Priority) error {
	return nil
}

func TestRegisterBeforeStart_GetsOnLinkAvailableOnceOnStart(t *testing.T) {
	r := NewRegistry()
	f := &fakeFeature{id: "network"}
	r.Register(f)
	if f.linkAvailable != 0 {
		t.Fatalf("should not call onLinkAvailable before Start")
	}
	r.Start(func(id string) Sink { return fakeSink{} })
	if f.linkAvailable != 1 {
		t.Fatalf("expected exactly one onLinkAvailable call, got %d", f.linkAvailable)
	}
}

func TestRegisterAfterStart_GetsOnLinkAvailableImmediately(t *testing.T) {
	r := NewRegistry()
	r.Start(func(id string) Sink { return fakeSink{} })

	f := &fakeFeature{id: "network"}
	r.Register(f)
	if f.linkAvailable != 1 {
		t.Fatalf("expected immediate onLinkAvailable, got %d", f.linkAvailable)
	}
}

func TestBindOnce_SecondRegistrationUnderSameIDIgnored(t *testing.T) {
	r := NewRegistry()
	first := &fakeFeature{id: "network"}
	second := &fakeFeature{id: "network"}
	r.Register(first)
	r.Register(second)
	r.Start(func(id string) Sink { return fakeSink{} })

	if first.linkAvailable != 1 {
		t.Fatalf("first registrant should win")
	}
	if second.linkAvailable != 0 {
		t.Fatalf("second registrant under same id must be ignored")
	}
	got, ok := r.Lookup("network")
	if !ok || got != first {
		t.Fatalf("lookup should return the first registrant")
	}
}

func TestClientTarget(t *testing.T) {
	if !All().IsAll() {
		t.Fatalf("All() must report IsAll")
	}
	s := Specific(7)
	if s.IsAll() || s.SessionID() != 7 {
		t.Fatalf("Specific(7) got %+v", s)
	}
}
