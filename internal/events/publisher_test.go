package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/observability"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewPublisher(t *testing.T) {
	t.Run("requires brokers", func(t *testing.T) {
		_, err := NewPublisher(PublisherConfig{Topic: "publications.reconciled"}, nil, zerolog.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker")
	})

	t.Run("requires topic", func(t *testing.T) {
		_, err := NewPublisher(PublisherConfig{Brokers: []string{"localhost:9092"}}, nil, zerolog.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "topic")
	})

	t.Run("builds a writer", func(t *testing.T) {
		p, err := NewPublisher(PublisherConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "publications.reconciled",
			BatchSize:    10,
			BatchTimeout: 10 * time.Millisecond,
		}, nil, zerolog.Nop())
		require.NoError(t, err)

		w, ok := p.writer.(*kafka.Writer)
		require.True(t, ok)
		assert.Equal(t, "publications.reconciled", w.Topic)
		assert.Equal(t, 10, w.BatchSize)
		require.NoError(t, p.Close())
	})
}

func TestPublisher_PublishReconciled(t *testing.T) {
	occurred := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("writes a keyed JSON event", func(t *testing.T) {
		w := &fakeWriter{}
		p := newPublisher(w, "publications.reconciled", nil, zerolog.Nop())

		ctx := observability.WithJobID(context.Background(), "reconcile-author-7-abc")
		err := p.PublishReconciled(ctx, domain.ReconciledEvent{
			AuthorID:   7,
			Since:      "2024-01-01",
			Fetched:    5,
			Created:    3,
			Existing:   1,
			Linked:     4,
			OccurredAt: occurred,
		})
		require.NoError(t, err)
		require.Len(t, w.messages, 1)

		msg := w.messages[0]
		assert.Equal(t, "7", string(msg.Key))
		assert.Equal(t, occurred, msg.Time)

		var decoded domain.ReconciledEvent
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, domain.EventTypePublicationsReconciled, decoded.EventType)
		assert.Equal(t, int64(7), decoded.AuthorID)
		assert.Equal(t, "2024-01-01", decoded.Since)
		assert.Equal(t, 3, decoded.Created)
		assert.Equal(t, 4, decoded.Linked)

		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, domain.EventTypePublicationsReconciled, headers["event_type"])
		assert.Equal(t, "reconcile-author-7-abc", headers["job_id"])
	})

	t.Run("stamps missing occurrence time", func(t *testing.T) {
		w := &fakeWriter{}
		p := newPublisher(w, "publications.reconciled", nil, zerolog.Nop())

		require.NoError(t, p.PublishReconciled(context.Background(), domain.ReconciledEvent{AuthorID: 1}))
		require.Len(t, w.messages, 1)
		assert.False(t, w.messages[0].Time.IsZero())
	})

	t.Run("write failure is returned and counted", func(t *testing.T) {
		metrics := observability.NewMetrics("test_events_publisher")
		w := &fakeWriter{err: errors.New("broker unavailable")}
		p := newPublisher(w, "publications.reconciled", metrics, zerolog.Nop())

		err := p.PublishReconciled(context.Background(), domain.ReconciledEvent{AuthorID: 2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker unavailable")
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("publications.reconciled", "failed")))
		assert.Equal(t, float64(0), testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("publications.reconciled", "ok")))
	})
}

func TestPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, "publications.reconciled", nil, zerolog.Nop())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.PublishReconciled(context.Background(), domain.ReconciledEvent{AuthorID: 1}))
}
