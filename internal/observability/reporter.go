package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter receives failures nobody is waiting on.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
	Close()
}

type NopReporter struct{}

func (NopReporter) Report(context.Context, error, map[string]string) {}
func (NopReporter) Close()                                           {}

type SentryReporter struct {
	hub *sentry.Hub
}

func NewSentryReporter(dsn, environment string) (*SentryReporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// NewReporter returns a Sentry reporter when dsn is set and a no-op one
// otherwise.
func NewReporter(dsn, environment string) (Reporter, error) {
	if dsn == "" {
		return NopReporter{}, nil
	}
	return NewSentryReporter(dsn, environment)
}

func (r *SentryReporter) Report(_ context.Context, err error, tags map[string]string) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if id := r.hub.CaptureException(err); id != nil {
			slog.Debug("reported to sentry", "event_id", *id)
		}
	})
}

func (r *SentryReporter) Close() {
	r.hub.Flush(2 * time.Second)
}
