// Package retry decides what happens to a document after an extraction
// attempt.
package retry

import (
	"strings"
	"unicode/utf8"
)

type Decision int

const (
	Accept Decision = iota
	Retry
	Quarantine
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Retry:
		return "retry"
	case Quarantine:
		return "quarantine"
	default:
		return "unknown"
	}
}

const DefaultMinContentLength = 40

// Policy accepts text of at least MinContentLength runes after trimming.
type Policy struct {
	MinContentLength int
}

func NewPolicy(minContentLength int) Policy {
	if minContentLength < 1 {
		minContentLength = DefaultMinContentLength
	}
	return Policy{MinContentLength: minContentLength}
}

// Decide has no side effects. retryCount is the number of prior failed
// attempts.
func (p Policy) Decide(text string, retryCount, maxRetries int) Decision {
	if p.Sufficient(text) {
		return Accept
	}
	if retryCount+1 < maxRetries {
		return Retry
	}
	return Quarantine
}

// Sufficient reports whether text clears the content threshold.
func (p Policy) Sufficient(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	return utf8.RuneCountInString(trimmed) >= p.MinContentLength
}
