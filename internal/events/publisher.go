// Package events fans committed session events out to live subscribers.
// The session_events table stays the authoritative log; sinks here are best
// effort.
package events

import (
	"context"
	"errors"

	"vibefi/internal/models"

	"github.com/rs/zerolog"
)

// Publisher delivers a committed session event to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event *models.SessionEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *models.SessionEvent) error { return nil }

// MultiPublisher forwards each event to every sink. A failing sink does not
// stop delivery to the others.
type MultiPublisher struct {
	sinks  []Publisher
	logger zerolog.Logger
}

var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*MultiPublisher)(nil)
)

func NewMultiPublisher(logger zerolog.Logger, sinks ...Publisher) *MultiPublisher {
	return &MultiPublisher{
		sinks:  sinks,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

func (m *MultiPublisher) Publish(ctx context.Context, event *models.SessionEvent) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			m.logger.Warn().
				Err(err).
				Str("session_id", event.SessionID).
				Int64("seq", event.Seq).
				Str("type", string(event.Type)).
				Msg("event sink failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
