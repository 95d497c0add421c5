// Package notify defines notification events, the sinks that deliver them and
// the value formatting shared by every notifier.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/marketwatch/internal/logger"
	"github.com/rewired-gh/marketwatch/internal/models"
)

// Kind classifies what raised a notification.
type Kind string

const (
	KindState  Kind = "state"
	KindRate   Kind = "rate"
	KindVolume Kind = "volume"
	KindAlarm  Kind = "alarm"
	KindSystem Kind = "system"
	KindReply  Kind = "reply"
)

// Color is the coarse color classification of a notification.
type Color int

const (
	Neutral Color = iota
	Positive
	Negative
)

func (c Color) String() string {
	switch c {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return "neutral"
	}
}

// Notification is one composed event handed to a Sink.
type Notification struct {
	Kind      Kind
	Code      string
	Title     string
	Lines     []string
	Color     Color
	Footer    string
	CreatedAt time.Time
}

// Sink delivers notifications. Delivery is best-effort.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Multi delivers to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", models.ErrDelivery, errors.Join(errs...))
	}
	return nil
}

// LogSink writes notifications to the log. Used when no chat sink is configured.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, n Notification) error {
	logger.Info("Notification [%s/%s] %s: %v %s", n.Kind, n.Color, n.Title, n.Lines, n.Footer)
	return nil
}
