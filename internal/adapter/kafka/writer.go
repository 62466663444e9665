package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/drought-monitor/internal/config"
	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces alert records to a Kafka topic.
// It implements pipeline.AlertSink.
type Publisher struct {
	writer      messageWriter
	logger      *slog.Logger
	metrics     *observability.Metrics
	maxAttempts int
}

// NewPublisher creates a Kafka producer for the configured alert topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newPublisher(w, logger, metrics, cfg.RetryMaxAttempts)
}

func newPublisher(w messageWriter, logger *slog.Logger, metrics *observability.Metrics, maxAttempts int) *Publisher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Publisher{writer: w, logger: logger, metrics: metrics, maxAttempts: maxAttempts}
}

// Publish serializes the records and writes them in a single WriteMessages
// call. Transient broker failures are retried with exponential backoff;
// permanent ones are returned immediately.
func (p *Publisher) Publish(ctx context.Context, records []domain.AlertRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := classify(p.writer.WriteMessages(ctx, msgs...))
		if err == nil {
			p.metrics.AlertsPublished.Add(float64(len(msgs)))
			return nil
		}
		p.metrics.PublishErrors.Inc()
		if domain.KindOf(err) != domain.Transient || attempt >= p.maxAttempts {
			return err
		}
		p.logger.Warn("publish alerts failed, retrying",
			"error", err, "attempt", attempt, "backoff", backoff)
		if !retry.SleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// classify tags broker errors with their retry kind.
func classify(err error) error {
	if err == nil {
		return nil
	}
	kind := domain.Permanent
	var kerr kafkago.Error
	var nerr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	case errors.As(err, &kerr):
		if kerr.Temporary() {
			kind = domain.Transient
		}
	case errors.As(err, &nerr):
		kind = domain.Transient
	}
	return &domain.CollectorError{Kind: kind, Op: "kafka write", Err: err}
}

// alertMessage is the wire form of an alert record. Undefined numbers are
// encoded as null.
type alertMessage struct {
	Location           string   `json:"location"`
	Date               string   `json:"date"`
	Level              string   `json:"alert"`
	Vegetation         string   `json:"vegetation"`
	SoilMoisture       string   `json:"soil_moisture"`
	Evapotranspiration string   `json:"evapotranspiration"`
	Precipitation      string   `json:"precipitation"`
	VHIMean            *float64 `json:"vhi_mean"`
	Confidence         *float64 `json:"conf_index"`
	RunID              string   `json:"run_id,omitempty"`
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// serializeToMessage marshals an AlertRecord into a Kafka message keyed by
// sub-area so one area's history stays on one partition.
func serializeToMessage(rec domain.AlertRecord) (kafkago.Message, error) {
	data, err := json.Marshal(alertMessage{
		Location:           rec.Location,
		Date:               rec.Date.Format("2006-01-02"),
		Level:              string(rec.Level),
		Vegetation:         rec.Vegetation,
		SoilMoisture:       rec.SoilMoisture,
		Evapotranspiration: rec.Evapotranspiration,
		Precipitation:      rec.Precipitation,
		VHIMean:            nullable(rec.VHIMean),
		Confidence:         nullable(rec.Confidence),
		RunID:              rec.RunID,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.Location),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "alert_level", Value: []byte(rec.Level)},
			{Key: "month", Value: []byte(rec.Date.Format("2006-01"))},
			{Key: "run_id", Value: []byte(rec.RunID)},
		},
	}, nil
}
