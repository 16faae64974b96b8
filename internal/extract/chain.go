// Package extract turns document bytes into text through ordered fallback
// chains of extraction backends.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Backend is one text or OCR capability.
type Backend interface {
	Name() string
	Submit(ctx context.Context, data []byte) (string, error)
}

// Stage binds a backend to its own timeout.
type Stage struct {
	Backend Backend
	Timeout time.Duration
}

// Result is the chain output and the backend that produced it.
type Result struct {
	Text    string
	Backend string
}

// Chain tries its stages in order and stops at the first non-blank output.
// A backend error counts as blank output; errors never leave the chain.
type Chain struct {
	name   string
	stages []Stage
}

func NewChain(name string, stages ...Stage) *Chain {
	return &Chain{name: name, stages: stages}
}

func (c *Chain) Name() string { return c.name }

func (c *Chain) Run(ctx context.Context, data []byte) Result {
	var last Result
	for _, st := range c.stages {
		text, err := submit(ctx, st, data)
		if err != nil {
			slog.Warn("extraction backend failed",
				"chain", c.name,
				"backend", st.Backend.Name(),
				"error", err,
			)
			last = Result{Backend: st.Backend.Name()}
			continue
		}
		last = Result{Text: text, Backend: st.Backend.Name()}
		if strings.TrimSpace(text) != "" {
			return last
		}
		slog.Debug("extraction backend returned no text", "chain", c.name, "backend", st.Backend.Name())
	}
	return last
}

func submit(ctx context.Context, st Stage, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("backend panic: %v", r)
		}
	}()
	if st.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.Timeout)
		defer cancel()
	}
	return st.Backend.Submit(ctx, data)
}

// bounded runs a non-cancellable local operation and gives up when ctx ends.
// The operation keeps running in the background until it returns.
func bounded(ctx context.Context, fn func() (string, error)) (string, error) {
	type outcome struct {
		text string
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		text, err := fn()
		ch <- outcome{text, err}
	}()

	select {
	case o := <-ch:
		return o.text, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
