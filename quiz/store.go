/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	DefaultRevealDelay   = 3 * time.Second
	DefaultMaxNameLength = 32
)

// Options configures a Store. Zero values fall back to the defaults above.
type Options struct {
	Clock         clockwork.Clock
	Logger        zerolog.Logger
	Codes         *CodeGenerator
	RevealDelay   time.Duration
	DeadlineGrace time.Duration
	MaxNameLength int
}

// Store maps session codes to live sessions. It registers and deregisters
// whole sessions and never touches their contents.
type Store struct {
	env   *env
	codes *CodeGenerator
	log   zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore(b Broadcaster, opts Options) *Store {
	if b == nil {
		b = NopBroadcaster{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Codes == nil {
		opts.Codes = NewCodeGenerator(DefaultCodeLength)
	}
	if opts.RevealDelay <= 0 {
		opts.RevealDelay = DefaultRevealDelay
	}
	if opts.DeadlineGrace < 0 {
		opts.DeadlineGrace = 0
	}
	if opts.MaxNameLength <= 0 {
		opts.MaxNameLength = DefaultMaxNameLength
	}

	st := &Store{
		codes:    opts.Codes,
		log:      opts.Logger,
		sessions: make(map[string]*Session),
	}

	st.env = &env{
		clock:         opts.Clock,
		scheduler:     NewScheduler(opts.Clock, opts.Logger),
		broadcaster:   b,
		log:           opts.Logger,
		revealDelay:   opts.RevealDelay,
		deadlineGrace: opts.DeadlineGrace,
		maxNameLength: opts.MaxNameLength,
		deregister:    st.deregister,
	}

	return st
}

// Clock returns the clock shared by the store's sessions and timers.
func (st *Store) Clock() clockwork.Clock { return st.env.clock }

// Scheduler returns the timer scheduler driving the store's sessions.
func (st *Store) Scheduler() *Scheduler { return st.env.scheduler }

// Create validates questions and registers a new lobby session hosted by host.
func (st *Store) Create(host Handle, questions []Question) (*Session, error) {
	qs, err := ValidateQuestions(questions)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	code, err := st.codes.Generate(func(c string) bool {
		_, taken := st.sessions[c]
		return taken
	})
	if err != nil {
		st.log.Error().Err(err).Int("sessions", len(st.sessions)).Msg("session code allocation failed")
		return nil, fmt.Errorf("create session: %w", err)
	}

	s := newSession(st.env, code, host, qs)
	st.sessions[code] = s

	metricSessionsCreated.Inc()
	metricSessionsActive.Inc()

	st.log.Info().
		Str("code", code).
		Int("questions", len(qs)).
		Msg("session created")

	return s, nil
}

// Get returns the live session for code, or an error wrapping ErrNotFound.
func (st *Store) Get(code string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[code]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", code, ErrNotFound)
	}

	return s, nil
}

// Remove ends the session for code, which also deregisters it. It reports
// whether a session was found.
func (st *Store) Remove(code string) bool {
	s, err := st.Get(code)
	if err != nil {
		return false
	}

	s.End(EndRemoved)

	return true
}

// Shutdown ends every live session and stops all timers.
func (st *Store) Shutdown() {
	for _, s := range st.Sessions() {
		s.End(EndShutdown)
	}

	st.env.scheduler.CancelAll()
}

// Sessions returns the live sessions ordered by code.
func (st *Store) Sessions() []*Session {
	st.mu.RLock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].code < out[j].code
	})

	return out
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return len(st.sessions)
}

func (st *Store) deregister(code string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[code]; !ok {
		return
	}

	delete(st.sessions, code)
	st.env.scheduler.Cancel(code)
	metricSessionsActive.Dec()
}
