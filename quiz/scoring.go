/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"sort"
	"time"
)

const (
	BasePoints = 1000
	MaxBonus   = 1000
)

// Points returns what a correct answer submitted at submitted earns for a
// round closing at deadline. An answer at the instant the round opens gets
// the full bonus; one at the deadline gets none.
func Points(q Question, deadline, submitted time.Time) int {
	window := time.Duration(q.DurationSeconds) * time.Second
	if window <= 0 {
		return BasePoints
	}

	remaining := deadline.Sub(submitted)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > window {
		remaining = window
	}

	// round(remaining/window*MaxBonus), half up, in integer arithmetic.
	bonus := (int64(remaining)*2*MaxBonus + int64(window)) / (2 * int64(window))

	return BasePoints + int(bonus)
}

// RoundScore is the score delta for one answer, zero when it is wrong.
func RoundScore(q Question, deadline time.Time, a Answer) int {
	if a.ChoiceIndex != q.CorrectChoice {
		return 0
	}

	return Points(q, deadline, a.SubmittedAt)
}

// Leaderboard ranks players by descending score. Ties keep the order of
// players as given; ranks are positional, so they never repeat.
func Leaderboard(players []PlayerView) []Standing {
	sorted := append([]PlayerView(nil), players...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	out := make([]Standing, len(sorted))
	for i, p := range sorted {
		out[i] = Standing{
			Rank:        i + 1,
			DisplayName: p.DisplayName,
			Score:       p.Score,
		}
	}

	return out
}
