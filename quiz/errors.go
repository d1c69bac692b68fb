/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package wraps exactly one
// of these, so callers can branch with errors.Is.
var (
	ErrValidation   = errors.New("invalid request")
	ErrNotFound     = errors.New("not found")
	ErrPrecondition = errors.New("precondition failed")
	ErrExhausted    = errors.New("resource exhausted")
)

var (
	ErrNoQuestions     = fmt.Errorf("%w: no questions", ErrValidation)
	ErrInvalidQuestion = fmt.Errorf("%w: invalid question", ErrValidation)
	ErrInvalidName     = fmt.Errorf("%w: invalid name", ErrValidation)
	ErrInvalidChoice   = fmt.Errorf("%w: invalid choice", ErrValidation)

	ErrAlreadyStarted  = fmt.Errorf("%w: already started", ErrPrecondition)
	ErrNotHost         = fmt.Errorf("%w: not host", ErrPrecondition)
	ErrNoPlayers       = fmt.Errorf("%w: no players", ErrPrecondition)
	ErrWrongState      = fmt.Errorf("%w: wrong state", ErrPrecondition)
	ErrUnknownPlayer   = fmt.Errorf("%w: unknown player", ErrPrecondition)
	ErrDeadlinePassed  = fmt.Errorf("%w: deadline passed", ErrPrecondition)
	ErrDuplicateAnswer = fmt.Errorf("%w: already answered", ErrPrecondition)
	ErrAlreadyJoined   = fmt.Errorf("%w: already joined", ErrPrecondition)
	ErrSessionEnded    = fmt.Errorf("%w: session ended", ErrPrecondition)

	ErrCodeSpaceExhausted = fmt.Errorf("%w: could not allocate a unique session code", ErrExhausted)
)

// Reason maps an error to the short user-facing reason sent back to clients.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrAlreadyStarted):
		return "already started"
	case errors.Is(err, ErrInvalidName):
		return "invalid name"
	case errors.Is(err, ErrAlreadyJoined):
		return "already in session"
	case errors.Is(err, ErrSessionEnded):
		return "session ended"
	case errors.Is(err, ErrValidation):
		return "invalid request"
	case errors.Is(err, ErrExhausted):
		return "server busy"
	default:
		return "not allowed"
	}
}
