package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"haven/internal/audit/models"
)

// Sink delivers a single alert to an external channel.
type Sink interface {
	Deliver(ctx context.Context, alert models.Alert) error
}

// LogSink writes alerts to the structured log. It never fails and serves as the
// fallback when the primary sink is unavailable.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, a models.Alert) error {
	s.logger.WarnContext(ctx, "security alert",
		"alert_id", a.AlertID.String(),
		"alert_kind", a.Kind,
		"severity", a.Severity,
		"title", a.Title,
		"event_id", a.EventID.String(),
		"category", a.Category,
		"subject", a.Subject,
		"count", a.Count,
		"threshold", a.Threshold,
		"log_type", "audit",
	)
	return nil
}

// KafkaSink publishes alerts as JSON records keyed by alert kind.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

func NewKafkaSink(client *kgo.Client, topic string) (*KafkaSink, error) {
	if client == nil {
		return nil, fmt.Errorf("kafka client is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("alert topic is required")
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

func (s *KafkaSink) Deliver(ctx context.Context, a models.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(a.Kind),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "severity", Value: []byte(a.Severity)},
			{Key: "alert_id", Value: []byte(a.AlertID.String())},
		},
	}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}
