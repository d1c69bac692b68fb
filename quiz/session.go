/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// State is a session's position in the game.
type State int

const (
	StateLobby State = iota
	StateQuestion
	StateReveal
	StateResults
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateLobby:
		return "lobby"
	case StateQuestion:
		return "question"
	case StateReveal:
		return "reveal"
	case StateResults:
		return "results"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Player is a participant. The host is never a player.
type Player struct {
	Handle      Handle
	DisplayName string
	Score       int
}

// Answer is a player's submission for the current round.
type Answer struct {
	QuestionID  string
	ChoiceIndex int
	SubmittedAt time.Time
}

// Summary is a point-in-time description of a session, used for listings.
type Summary struct {
	Code      string    `json:"code"`
	State     State     `json:"state"`
	Players   int       `json:"players"`
	Questions int       `json:"questions"`
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"createdAt"`
}

// env holds what every session of a store shares.
type env struct {
	clock         clockwork.Clock
	scheduler     *Scheduler
	broadcaster   Broadcaster
	log           zerolog.Logger
	revealDelay   time.Duration
	deadlineGrace time.Duration
	maxNameLength int
	deregister    func(code string)
}

// Session is one quiz instance. All of its methods are safe for concurrent
// use; each one runs in the session's critical section.
type Session struct {
	env *env
	log zerolog.Logger

	code      string
	host      Handle
	questions []Question
	createdAt time.Time

	mu        sync.Mutex
	state     State
	index     int
	deadline  time.Time
	players   map[Handle]*Player
	order     []Handle
	answers   map[Handle]Answer
	idleSince time.Time
}

func newSession(e *env, code string, host Handle, questions []Question) *Session {
	now := e.clock.Now()

	return &Session{
		env:       e,
		log:       e.log.With().Str("code", code).Logger(),
		code:      code,
		host:      host,
		questions: questions,
		createdAt: now,
		state:     StateLobby,
		index:     -1,
		players:   make(map[Handle]*Player),
		answers:   make(map[Handle]Answer),
		idleSince: now,
	}
}

func (s *Session) Code() string { return s.code }

func (s *Session) Host() Handle { return s.host }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// CurrentIndex is -1 until the first question starts.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.index
}

// Deadline is the close of the current answer window. It is zero outside
// the Question state.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateQuestion {
		return time.Time{}
	}

	return s.deadline
}

// Players returns the roster in join order.
func (s *Session) Players() []PlayerView {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.playersLocked()
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Summary{
		Code:      s.code,
		State:     s.state,
		Players:   len(s.players),
		Questions: len(s.questions),
		Index:     s.index,
		CreatedAt: s.createdAt,
	}
}

// Join adds a player while the session is in the lobby.
func (s *Session) Join(h Handle, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > s.env.maxNameLength {
		return ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == StateEnded:
		return ErrSessionEnded
	case s.state != StateLobby:
		return ErrAlreadyStarted
	case h == s.host:
		return ErrAlreadyJoined
	}

	if _, ok := s.players[h]; ok {
		return ErrAlreadyJoined
	}

	s.players[h] = &Player{Handle: h, DisplayName: name}
	s.order = append(s.order, h)
	s.idleSince = time.Time{}

	s.log.Info().Str("player", name).Int("players", len(s.players)).Msg("player joined")

	s.broadcastRosterLocked()

	return nil
}

// Leave handles a disconnect. The host leaving ends the session; a player
// leaving drops them and any answer they gave this round.
func (s *Session) Leave(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h == s.host {
		s.endLocked(EndHostLeft)
		return
	}

	if s.state == StateEnded {
		return
	}

	p, ok := s.players[h]
	if !ok {
		return
	}

	delete(s.players, h)
	delete(s.answers, h)
	for i, other := range s.order {
		if other == h {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if s.state == StateLobby && len(s.players) == 0 {
		s.idleSince = s.env.clock.Now()
	}

	s.log.Info().Str("player", p.DisplayName).Int("players", len(s.players)).Msg("player left")

	s.broadcastRosterLocked()
}

// Start moves a lobby with at least one player to the first question. Only
// the host may start.
func (s *Session) Start(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == StateEnded:
		return ErrSessionEnded
	case h != s.host:
		return ErrNotHost
	case s.state != StateLobby:
		return ErrWrongState
	case len(s.players) == 0:
		return ErrNoPlayers
	}

	s.log.Info().Int("players", len(s.players)).Int("questions", len(s.questions)).Msg("session started")

	s.beginQuestionLocked(0)

	return nil
}

// SubmitAnswer records h's first answer for the current round. The
// submitter is told only when the answer is accepted.
func (s *Session) SubmitAnswer(h Handle, choice int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.submitLocked(h, choice)
	metricAnswers.WithLabelValues(answerResult(err)).Inc()

	if err != nil {
		s.log.Debug().Err(err).Str("handle", string(h)).Msg("answer rejected")
		return err
	}

	s.env.broadcaster.Send(s.code, h, Event{
		Type: EventAnswerAccepted,
		Code: s.code,
		Data: AnswerAcceptedPayload{},
	})

	return nil
}

func (s *Session) submitLocked(h Handle, choice int) error {
	if s.state != StateQuestion {
		return ErrWrongState
	}

	if _, ok := s.players[h]; !ok {
		return ErrUnknownPlayer
	}

	q := s.questions[s.index]
	if choice < 0 || choice >= len(q.Choices) {
		return ErrInvalidChoice
	}

	now := s.env.clock.Now()
	if now.After(s.deadline) {
		return ErrDeadlinePassed
	}

	if _, ok := s.answers[h]; ok {
		return ErrDuplicateAnswer
	}

	s.answers[h] = Answer{
		QuestionID:  q.ID,
		ChoiceIndex: choice,
		SubmittedAt: now,
	}

	return nil
}

// End terminates the session from any state and removes it from its store.
func (s *Session) End(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endLocked(reason)
}

// endIfAbandoned ends a lobby that has had no players for at least grace.
func (s *Session) endIfAbandoned(now time.Time, grace time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLobby || len(s.players) > 0 || s.idleSince.IsZero() {
		return false
	}
	if now.Sub(s.idleSince) < grace {
		return false
	}

	s.endLocked(EndAbandoned)

	return true
}

// onTimer is the entry point for scheduler callbacks. A fire whose tag no
// longer matches the session's round and state is ignored.
func (s *Session) onTimer(tag Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != tag.Phase || s.index != tag.Round {
		metricStaleTimers.Inc()
		s.log.Debug().
			Int("round", tag.Round).
			Stringer("phase", tag.Phase).
			Stringer("state", s.state).
			Int("index", s.index).
			Msg("stale timer ignored")
		return
	}

	switch tag.Phase {
	case StateQuestion:
		s.closeRoundLocked()
	case StateReveal:
		s.advanceLocked()
	}
}

func (s *Session) transitionLocked(to State) {
	from := s.state
	s.state = to

	metricStateTransitions.WithLabelValues(from.String(), to.String()).Inc()

	s.log.Debug().
		Stringer("from", from).
		Stringer("to", to).
		Int("index", s.index).
		Msg("state transition")
}

func (s *Session) beginQuestionLocked(i int) {
	q := s.questions[i]
	window := time.Duration(q.DurationSeconds) * time.Second

	s.index = i
	s.answers = make(map[Handle]Answer, len(s.players))
	s.deadline = s.env.clock.Now().Add(window)
	s.transitionLocked(StateQuestion)

	s.env.scheduler.Arm(Tag{Code: s.code, Round: i, Phase: StateQuestion}, window+s.env.deadlineGrace, s.onTimer)

	s.env.broadcaster.Broadcast(s.code, Event{
		Type: EventQuestionStarted,
		Code: s.code,
		Data: QuestionPayload{
			Index:  i,
			Total:  len(s.questions),
			EndsAt: s.deadline.UnixMilli(),
			Question: QuestionView{
				ID:              q.ID,
				Text:            q.Text,
				Choices:         append([]string(nil), q.Choices...),
				DurationSeconds: q.DurationSeconds,
			},
		},
	})
}

func (s *Session) closeRoundLocked() {
	q := s.questions[s.index]

	for _, h := range s.order {
		a, ok := s.answers[h]
		if !ok || a.QuestionID != q.ID {
			continue
		}

		if pts := RoundScore(q, s.deadline, a); pts > 0 {
			s.players[h].Score += pts
		}
	}

	s.transitionLocked(StateReveal)

	s.env.scheduler.Arm(Tag{Code: s.code, Round: s.index, Phase: StateReveal}, s.env.revealDelay, s.onTimer)

	s.env.broadcaster.Broadcast(s.code, Event{
		Type: EventRoundEnded,
		Code: s.code,
		Data: RoundEndedPayload{
			CorrectChoiceIndex: q.CorrectChoice,
			Standings:          Leaderboard(s.playersLocked()),
		},
	})

	s.log.Info().Int("round", s.index).Int("answers", len(s.answers)).Msg("round closed")
}

func (s *Session) advanceLocked() {
	if next := s.index + 1; next < len(s.questions) {
		s.beginQuestionLocked(next)
		return
	}

	s.finishLocked()
}

func (s *Session) finishLocked() {
	s.transitionLocked(StateResults)

	board := Leaderboard(s.playersLocked())

	s.env.broadcaster.Broadcast(s.code, Event{
		Type: EventResultsReady,
		Code: s.code,
		Data: ResultsPayload{Leaderboard: board},
	})

	s.log.Info().Int("players", len(board)).Msg("results ready")
}

func (s *Session) endLocked(reason string) {
	if s.state == StateEnded {
		return
	}

	s.transitionLocked(StateEnded)
	s.env.scheduler.Cancel(s.code)

	s.env.broadcaster.Broadcast(s.code, Event{
		Type: EventSessionEnded,
		Code: s.code,
		Data: SessionEndedPayload{Reason: reason},
	})

	metricSessionsEnded.WithLabelValues(reason).Inc()
	s.log.Info().Str("reason", reason).Msg("session ended")

	// Lock order is session, then store.
	s.env.deregister(s.code)
}

func (s *Session) playersLocked() []PlayerView {
	out := make([]PlayerView, 0, len(s.order))
	for _, h := range s.order {
		p := s.players[h]
		out = append(out, PlayerView{
			Handle:      p.Handle,
			DisplayName: p.DisplayName,
			Score:       p.Score,
		})
	}

	return out
}

func (s *Session) broadcastRosterLocked() {
	s.env.broadcaster.Broadcast(s.code, Event{
		Type: EventRosterUpdated,
		Code: s.code,
		Data: RosterPayload{Players: s.playersLocked()},
	})
}
