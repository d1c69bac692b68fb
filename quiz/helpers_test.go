/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const waitTimeout = 2 * time.Second

// recorder is a Broadcaster that keeps every event and lets tests wait for
// the ones produced by timer callbacks.
type recorder struct {
	mu        sync.Mutex
	broadcast []Event
	sent      map[Handle][]Event
	ch        chan Event
}

func newRecorder() *recorder {
	return &recorder{
		sent: make(map[Handle][]Event),
		ch:   make(chan Event, 256),
	}
}

func (r *recorder) Broadcast(code string, ev Event) {
	r.mu.Lock()
	r.broadcast = append(r.broadcast, ev)
	r.mu.Unlock()

	select {
	case r.ch <- ev:
	default:
	}
}

func (r *recorder) Send(code string, to Handle, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent[to] = append(r.sent[to], ev)
}

// waitFor consumes events until one of type typ arrives.
func (r *recorder) waitFor(t *testing.T, typ EventType) Event {
	t.Helper()

	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-r.ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func (r *recorder) count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ev := range r.broadcast {
		if ev.Type == typ {
			n++
		}
	}

	return n
}

func (r *recorder) sentTo(h Handle) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Event(nil), r.sent[h]...)
}

func newTestStore(t *testing.T, rec Broadcaster, opts Options) (*Store, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	opts.Clock = clock
	opts.Logger = zerolog.Nop()

	st := NewStore(rec, opts)
	t.Cleanup(st.Shutdown)

	return st, clock
}

func twoQuestions() []Question {
	return []Question{
		{ID: "q1", Text: "Pick B", Choices: []string{"A", "B", "C"}, CorrectChoice: 1, DurationSeconds: 10},
		{ID: "q2", Text: "Pick A", Choices: []string{"A", "B"}, CorrectChoice: 0, DurationSeconds: 10},
	}
}

func scoreOf(t *testing.T, s *Session, h Handle) int {
	t.Helper()

	for _, p := range s.Players() {
		if p.Handle == h {
			return p.Score
		}
	}
	t.Fatalf("player %s not found", h)

	return 0
}
