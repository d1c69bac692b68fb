/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Tag identifies what a timer is for: the session, the round index, and the
// state the session was in when the timer was armed.
type Tag struct {
	Code  string
	Round int
	Phase State
}

type armed struct {
	tag   Tag
	gen   uint64
	timer clockwork.Timer
}

// Scheduler runs at most one pending callback per session code. Arming a new
// timer for a code invalidates the previous one.
type Scheduler struct {
	clock clockwork.Clock
	log   zerolog.Logger

	mu     sync.Mutex
	gen    uint64
	timers map[string]*armed
}

func NewScheduler(clock clockwork.Clock, log zerolog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Scheduler{
		clock:  clock,
		log:    log,
		timers: make(map[string]*armed),
	}
}

// Arm schedules fn to run after d. fn runs on its own goroutine with no
// scheduler lock held, and only if nothing re-armed or cancelled the code in
// the meantime.
func (s *Scheduler) Arm(tag Tag, d time.Duration, fn func(Tag)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[tag.Code]; ok {
		prev.timer.Stop()
	}

	s.gen++
	gen := s.gen

	a := &armed{tag: tag, gen: gen}
	a.timer = s.clock.AfterFunc(d, func() {
		if !s.claim(tag.Code, gen) {
			s.log.Debug().
				Str("code", tag.Code).
				Int("round", tag.Round).
				Msg("timer invalidated before firing")
			return
		}
		fn(tag)
	})
	s.timers[tag.Code] = a

	s.log.Debug().
		Str("code", tag.Code).
		Int("round", tag.Round).
		Stringer("phase", tag.Phase).
		Dur("after", d).
		Msg("timer armed")
}

// claim removes the entry for code if it still belongs to generation gen.
func (s *Scheduler) claim(code string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.timers[code]
	if !ok || a.gen != gen {
		return false
	}
	delete(s.timers, code)

	return true
}

// Cancel stops and forgets any timer armed for code.
func (s *Scheduler) Cancel(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.timers[code]; ok {
		a.timer.Stop()
		delete(s.timers, code)

		s.log.Debug().Str("code", code).Int("round", a.tag.Round).Msg("timer cancelled")
	}
}

// CancelAll stops every pending timer.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for code, a := range s.timers {
		a.timer.Stop()
		delete(s.timers, code)
	}
}

// Pending reports the tag of the timer armed for code, if any.
func (s *Scheduler) Pending(code string) (Tag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.timers[code]
	if !ok {
		return Tag{}, false
	}

	return a.tag, true
}
