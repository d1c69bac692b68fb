/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestConcurrentRequestsAcrossDeadline races answers, joins, leaves and
// reads against the clock crossing the deadline. Run with -race.
func TestConcurrentRequestsAcrossDeadline(t *testing.T) {
	rec := newRecorder()
	st, clock := newTestStore(t, rec, Options{})

	s, err := st.Create("host", twoQuestions())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := s.Join("a", "Alice"); err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	if err := s.Start("host"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	rec.waitFor(t, EventQuestionStarted)

	const workers = 32

	var (
		wg        sync.WaitGroup
		accepted  atomic.Int32
		firstOnce sync.Once
	)
	ready := make(chan struct{})
	firstDone := make(chan struct{})

	for i := 0; i < workers; i++ {
		i := i
		wg.Add(3)

		go func() {
			defer wg.Done()
			<-ready

			err := s.SubmitAnswer("a", 1)
			firstOnce.Do(func() { close(firstDone) })

			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, ErrDuplicateAnswer), errors.Is(err, ErrDeadlinePassed), errors.Is(err, ErrWrongState):
			default:
				t.Errorf("SubmitAnswer returned unexpected error: %v", err)
			}
		}()

		go func() {
			defer wg.Done()
			<-ready

			h := Handle(fmt.Sprintf("late-%d", i))
			if err := s.Join(h, "Late"); !errors.Is(err, ErrAlreadyStarted) {
				t.Errorf("Join(%s) = %v, want ErrAlreadyStarted", h, err)
			}
			s.Leave(h)
		}()

		go func() {
			defer wg.Done()
			<-ready

			_ = s.Summary()
			_ = s.Players()
			_ = s.State()
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ready
		<-firstDone

		for n := 0; n < 12; n++ {
			clock.Advance(time.Second)
		}
	}()

	close(ready)
	wg.Wait()

	rec.waitFor(t, EventRoundEnded)

	if n := accepted.Load(); n != 1 {
		t.Fatalf("accepted answers = %d, want 1", n)
	}

	// The clock moves in whole seconds, so the accepted answer landed k
	// seconds into the ten second window.
	score := scoreOf(t, s, "a")
	valid := false
	for k := 0; k <= 10; k++ {
		if score == BasePoints+(10-k)*MaxBonus/10 {
			valid = true
			break
		}
	}
	if !valid {
		t.Fatalf("score = %d, not a whole-second score for a correct answer", score)
	}

	if got := len(s.Players()); got != 1 {
		t.Fatalf("players = %d, want 1", got)
	}
}
