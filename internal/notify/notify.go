// Package notify tells the operator how a backup run ended.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/raoulx24/backup-archiver/internal/logging"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

// Notifier delivers one message. Implementations must honor ctx.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, subject, body string) error

func (f Func) Notify(ctx context.Context, subject, body string) error { return f(ctx, subject, body) }

// Nop accepts and drops every message.
var Nop Notifier = Func(func(context.Context, string, string) error { return nil })

type timeoutNotifier struct {
	next Notifier
	d    time.Duration
}

// WithTimeout bounds every Notify call on n to d. When the bound is exceeded
// Notify returns the context error without waiting for n; n sees a
// cancelled context and is expected to wind down on its own.
func WithTimeout(n Notifier, d time.Duration) Notifier {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutNotifier{next: n, d: d}
}

func (t *timeoutNotifier) Notify(ctx context.Context, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- t.next.Notify(ctx, subject, body) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("notification not delivered within %s: %w", t.d, ctx.Err())
	}
}

// Multi sends to every notifier in turn and returns the first error after
// trying all of them.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, subject, body string) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, subject, body); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Log writes every notification to the log at info level.
func Log(log logging.Logger) Notifier {
	return Func(func(_ context.Context, subject, body string) error {
		log.Info("notify: "+subject, "body", body)
		return nil
	})
}
