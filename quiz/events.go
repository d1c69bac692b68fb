/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

// Handle identifies one client connection. It doubles as the player's
// identity for the lifetime of a session.
type Handle string

// EventType names an outbound event.
type EventType string

const (
	EventRosterUpdated   EventType = "rosterUpdated"
	EventQuestionStarted EventType = "questionStarted"
	EventRoundEnded      EventType = "roundEnded"
	EventResultsReady    EventType = "resultsReady"
	EventSessionEnded    EventType = "sessionEnded"
	EventAnswerAccepted  EventType = "answerAccepted"
)

// Event is what the engine hands to a Broadcaster.
type Event struct {
	Type EventType `json:"type"`
	Code string    `json:"code"`
	Data any       `json:"data"`
}

// Broadcaster delivers events to the parties subscribed to a session code.
// Implementations are called while a session is locked and must not block.
type Broadcaster interface {
	Broadcast(code string, ev Event)
	Send(code string, to Handle, ev Event)
}

// PlayerView is a player as shown in roster updates.
type PlayerView struct {
	Handle      Handle `json:"handle"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// Standing is one leaderboard row.
type Standing struct {
	Rank        int    `json:"rank"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// QuestionView is a Question without its correct answer.
type QuestionView struct {
	ID              string   `json:"id"`
	Text            string   `json:"text"`
	Choices         []string `json:"choices"`
	DurationSeconds int      `json:"durationSeconds"`
}

type RosterPayload struct {
	Players []PlayerView `json:"players"`
}

type QuestionPayload struct {
	Index    int          `json:"index"`
	Total    int          `json:"total"`
	EndsAt   int64        `json:"endsAt"` // unix milliseconds
	Question QuestionView `json:"question"`
}

type RoundEndedPayload struct {
	CorrectChoiceIndex int        `json:"correctChoiceIndex"`
	Standings          []Standing `json:"standings"`
}

type ResultsPayload struct {
	Leaderboard []Standing `json:"leaderboard"`
}

type SessionEndedPayload struct {
	Reason string `json:"reason"`
}

type AnswerAcceptedPayload struct{}

// Reasons a session ends.
const (
	EndHostLeft  = "host left"
	EndAbandoned = "abandoned"
	EndRemoved   = "removed"
	EndShutdown  = "shutdown"
)

// NopBroadcaster discards every event.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(string, Event) {}
func (NopBroadcaster) Send(string, Handle, Event) {}
