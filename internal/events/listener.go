package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/observability"
)

// messageReader is the subset of *kafka.Reader used by RosterListener.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// FanOutSubmitter submits reconcile-all jobs.
type FanOutSubmitter interface {
	SubmitAll(ctx context.Context, since time.Time) (domain.JobRef, error)
}

// ListenerConfig holds configuration for the roster listener.
type ListenerConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic carries roster-updated events.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
	// DefaultSince is used when an event carries no since date.
	DefaultSince time.Time
}

const (
	minReadBackoff = 500 * time.Millisecond
	maxReadBackoff = 30 * time.Second
)

// RosterListener consumes roster-updated events and submits a reconcile-all
// job for each one.
type RosterListener struct {
	reader       messageReader
	scheduler    FanOutSubmitter
	defaultSince time.Time
	logger       zerolog.Logger

	// Consecutive read failures wait between minBackoff and maxBackoff,
	// doubling each time.
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewRosterListener creates a RosterListener backed by a kafka-go Reader.
func NewRosterListener(cfg ListenerConfig, scheduler FanOutSubmitter, logger zerolog.Logger) *RosterListener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return newRosterListener(reader, scheduler, cfg.DefaultSince, logger)
}

func newRosterListener(r messageReader, scheduler FanOutSubmitter, defaultSince time.Time, logger zerolog.Logger) *RosterListener {
	return &RosterListener{
		reader:       r,
		scheduler:    scheduler,
		defaultSince: domain.DateOnly(defaultSince),
		logger:       observability.WithComponent(logger, "roster_listener"),
		minBackoff:   minReadBackoff,
		maxBackoff:   maxReadBackoff,
	}
}

// Run starts the listener loop. Blocks until ctx is cancelled.
func (l *RosterListener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting roster listener")

	backoff := l.minBackoff
	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("roster listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).
				Dur("retry_in", backoff).
				Msg("failed to read message from Kafka")
			if err := sleepCtx(ctx, backoff); err != nil {
				l.logger.Info().Msg("roster listener stopped via context cancellation")
				return err
			}
			backoff = min(backoff*2, l.maxBackoff)
			continue
		}
		backoff = l.minBackoff

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received roster event")

		if err := l.handle(ctx, msg.Value); err != nil {
			l.logger.Error().Err(err).
				Int64("offset", msg.Offset).
				Msg("failed to handle roster event")
		}
	}
}

// handle decodes one roster event and submits the fan-out job. Malformed
// events and events of another type are skipped.
func (l *RosterListener) handle(ctx context.Context, value []byte) error {
	var event domain.RosterUpdatedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Warn().Err(err).
			Str("raw_value", string(value)).
			Msg("skipping malformed roster event")
		return nil
	}

	if event.EventType != "" && event.EventType != domain.EventTypeRosterUpdated {
		l.logger.Debug().Str("event_type", event.EventType).Msg("ignoring event")
		return nil
	}

	since := l.defaultSince
	if event.Since != "" {
		parsed, err := domain.ParseDate(event.Since)
		if err != nil {
			l.logger.Warn().Err(err).
				Str("since", event.Since).
				Msg("invalid since in roster event, using default")
		} else {
			since = parsed
		}
	}

	ref, err := l.scheduler.SubmitAll(ctx, since)
	if err != nil {
		return fmt.Errorf("submit reconcile-all: %w", err)
	}

	l.logger.Info().
		Str("job_id", ref.ID).
		Str("since", since.Format(domain.DateLayout)).
		Int("authors", event.Authors).
		Msg("submitted reconcile-all for roster update")
	return nil
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close closes the Kafka reader.
func (l *RosterListener) Close() error {
	l.logger.Info().Msg("closing roster listener")
	return l.reader.Close()
}
