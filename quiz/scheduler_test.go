/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func expectFire(t *testing.T, ch <-chan Tag, want Tag) {
	t.Helper()

	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("fired tag = %+v, want %+v", got, want)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("timer for %+v did not fire", want)
	}
}

func expectQuiet(t *testing.T, ch <-chan Tag) {
	t.Helper()

	select {
	case got := <-ch:
		t.Fatalf("unexpected fire for %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSchedulerFires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock, zerolog.Nop())

	fired := make(chan Tag, 4)
	tag := Tag{Code: "ABCDEF", Round: 2, Phase: StateQuestion}
	s.Arm(tag, 5*time.Second, func(t Tag) { fired <- t })

	if got, ok := s.Pending("ABCDEF"); !ok || got != tag {
		t.Fatalf("Pending = %+v/%v, want %+v/true", got, ok, tag)
	}

	clock.Advance(4 * time.Second)
	expectQuiet(t, fired)

	clock.Advance(time.Second)
	expectFire(t, fired, tag)

	if _, ok := s.Pending("ABCDEF"); ok {
		t.Fatalf("timer still pending after firing")
	}
}

// TestSchedulerRearmInvalidates ensures arming a code again stops the
// earlier timer rather than letting both fire.
func TestSchedulerRearmInvalidates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock, zerolog.Nop())

	fired := make(chan Tag, 4)
	first := Tag{Code: "ABCDEF", Round: 0, Phase: StateQuestion}
	second := Tag{Code: "ABCDEF", Round: 0, Phase: StateReveal}

	s.Arm(first, 5*time.Second, func(t Tag) { fired <- t })
	s.Arm(second, 8*time.Second, func(t Tag) { fired <- t })

	clock.Advance(5 * time.Second)
	expectQuiet(t, fired)

	clock.Advance(3 * time.Second)
	expectFire(t, fired, second)
	expectQuiet(t, fired)
}

// TestSchedulerCodesIndependent ensures timers for different sessions do not
// replace each other.
func TestSchedulerCodesIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock, zerolog.Nop())

	fired := make(chan Tag, 4)
	a := Tag{Code: "AAAAAA", Round: 0, Phase: StateQuestion}
	b := Tag{Code: "BBBBBB", Round: 0, Phase: StateQuestion}

	s.Arm(a, time.Second, func(t Tag) { fired <- t })
	s.Arm(b, 2*time.Second, func(t Tag) { fired <- t })

	clock.Advance(time.Second)
	expectFire(t, fired, a)

	clock.Advance(time.Second)
	expectFire(t, fired, b)
}

func TestSchedulerCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock, zerolog.Nop())

	fired := make(chan Tag, 4)
	s.Arm(Tag{Code: "ABCDEF"}, time.Second, func(t Tag) { fired <- t })
	s.Arm(Tag{Code: "GHJKLM"}, time.Second, func(t Tag) { fired <- t })

	s.Cancel("ABCDEF")
	s.Cancel("NOTARMED")

	if _, ok := s.Pending("ABCDEF"); ok {
		t.Fatalf("timer pending after Cancel")
	}

	clock.Advance(time.Second)
	expectFire(t, fired, Tag{Code: "GHJKLM"})
	expectQuiet(t, fired)

	s.Arm(Tag{Code: "ABCDEF"}, time.Second, func(t Tag) { fired <- t })
	s.CancelAll()

	clock.Advance(time.Second)
	expectQuiet(t, fired)
}

// TestSchedulerClaimRejectsOldGeneration covers a fire that races a re-arm:
// the callback of a superseded generation must not run.
func TestSchedulerClaimRejectsOldGeneration(t *testing.T) {
	s := NewScheduler(clockwork.NewFakeClock(), zerolog.Nop())

	s.Arm(Tag{Code: "ABCDEF"}, time.Second, func(Tag) {})
	s.Arm(Tag{Code: "ABCDEF"}, time.Second, func(Tag) {})

	if s.claim("ABCDEF", 1) {
		t.Fatalf("claim accepted superseded generation")
	}
	if !s.claim("ABCDEF", 2) {
		t.Fatalf("claim rejected current generation")
	}
	if s.claim("ABCDEF", 2) {
		t.Fatalf("claim accepted the same generation twice")
	}
}
