/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_sessions_created_total",
		Help: "Sessions created",
	})

	metricSessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_sessions_ended_total",
		Help: "Sessions ended, by reason",
	}, []string{"reason"})

	metricSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quiz_sessions_active",
		Help: "Sessions currently registered in the store",
	})

	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_state_transitions_total",
		Help: "Session state transitions",
	}, []string{"from", "to"})

	metricAnswers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_answers_total",
		Help: "Answer submissions, by outcome",
	}, []string{"result"})

	metricStaleTimers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_stale_timers_total",
		Help: "Timer fires ignored because the session had moved on",
	})

	metricReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_reaped_sessions_total",
		Help: "Abandoned lobby sessions removed by the reaper",
	})

	metricCodeCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_code_collisions_total",
		Help: "Generated session codes that were already in use",
	})
)

func answerResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrDeadlinePassed):
		return "late"
	case errors.Is(err, ErrDuplicateAnswer):
		return "duplicate"
	case errors.Is(err, ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, ErrWrongState):
		return "wrong_state"
	case errors.Is(err, ErrInvalidChoice):
		return "invalid_choice"
	default:
		return "rejected"
	}
}
