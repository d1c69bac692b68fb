/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// CodeAlphabet leaves out characters that are easy to confuse when read
	// aloud or off a projector (0/O, 1/I).
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	DefaultCodeLength  = 6
	DefaultCodeRetries = 10
)

// CodeGenerator produces short session codes.
type CodeGenerator struct {
	Length  int
	Retries int

	// Rand defaults to crypto/rand.
	Rand io.Reader
}

// NewCodeGenerator returns a generator for codes of the given length.
func NewCodeGenerator(length int) *CodeGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}

	return &CodeGenerator{
		Length:  length,
		Retries: DefaultCodeRetries,
		Rand:    rand.Reader,
	}
}

// Generate returns a code for which taken reports false. It gives up with
// ErrCodeSpaceExhausted after g.Retries collisions.
func (g *CodeGenerator) Generate(taken func(string) bool) (string, error) {
	retries := g.Retries
	if retries <= 0 {
		retries = DefaultCodeRetries
	}

	for n := 0; n < retries; n++ {
		code, err := g.candidate()
		if err != nil {
			return "", err
		}

		if !taken(code) {
			return code, nil
		}

		metricCodeCollisions.Inc()
	}

	return "", ErrCodeSpaceExhausted
}

func (g *CodeGenerator) candidate() (string, error) {
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}

	buf := make([]byte, g.Length)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	// len(CodeAlphabet) divides 256, so the modulo is unbiased.
	out := make([]byte, g.Length)
	for i := range out {
		out[i] = CodeAlphabet[int(buf[i])%len(CodeAlphabet)]
	}

	return string(out), nil
}
