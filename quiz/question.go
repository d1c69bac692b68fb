/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxDurationSeconds caps a single question's answer window.
const MaxDurationSeconds = 3600

// Question is a single multiple-choice question. CorrectChoice is never sent
// to clients before the round closes.
type Question struct {
	ID              string   `json:"id" yaml:"id"`
	Text            string   `json:"text" yaml:"text"`
	Choices         []string `json:"choices" yaml:"choices"`
	CorrectChoice   int      `json:"correctChoiceIndex" yaml:"correctChoiceIndex"`
	DurationSeconds int      `json:"durationSeconds" yaml:"durationSeconds"`
}

// QuestionSet is the on-disk layout accepted by LoadQuestions.
type QuestionSet struct {
	Title     string     `yaml:"title"`
	Questions []Question `yaml:"questions"`
}

// ValidateQuestions checks a question set and returns a normalized copy.
// Missing IDs are filled in from the question's position.
func ValidateQuestions(questions []Question) ([]Question, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	out := make([]Question, len(questions))
	seen := make(map[string]bool, len(questions))

	for i, q := range questions {
		q.ID = strings.TrimSpace(q.ID)
		if q.ID == "" {
			q.ID = "q" + strconv.Itoa(i+1)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidQuestion, q.ID)
		}
		seen[q.ID] = true

		if strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("%w: question %d has no text", ErrInvalidQuestion, i+1)
		}
		if len(q.Choices) < 2 {
			return nil, fmt.Errorf("%w: question %d needs at least 2 choices", ErrInvalidQuestion, i+1)
		}
		if q.CorrectChoice < 0 || q.CorrectChoice >= len(q.Choices) {
			return nil, fmt.Errorf("%w: question %d has correct choice %d out of range", ErrInvalidQuestion, i+1, q.CorrectChoice)
		}
		if q.DurationSeconds <= 0 || q.DurationSeconds > MaxDurationSeconds {
			return nil, fmt.Errorf("%w: question %d has duration %d outside 1-%d seconds", ErrInvalidQuestion, i+1, q.DurationSeconds, MaxDurationSeconds)
		}

		q.Choices = append([]string(nil), q.Choices...)
		out[i] = q
	}

	return out, nil
}

// LoadQuestions decodes a YAML (or JSON) question set and validates it.
func LoadQuestions(r io.Reader) ([]Question, error) {
	var set QuestionSet

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decode question set: %v", ErrValidation, err)
	}

	return ValidateQuestions(set.Questions)
}

// LoadQuestionsFile is LoadQuestions for a path on disk.
func LoadQuestionsFile(path string) ([]Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadQuestions(f)
}
