package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/observability"
)

type fakeWriter struct {
	errs   []error
	calls  int
	msgs   []kafkago.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testRecord() domain.AlertRecord {
	return domain.AlertRecord{
		Location:           "Nord",
		Date:               time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Level:              domain.LevelWatch,
		Vegetation:         "No vegetation stress",
		SoilMoisture:       "No soil moisture deficit",
		Evapotranspiration: "No evapotranspiration deficit",
		Precipitation:      "Precipitation deficit",
		VHIMean:            0.55,
		Confidence:         math.NaN(),
		RunID:              "RUN_AUTO_20240301_20240401",
	}
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage(testRecord())
	require.NoError(t, err)

	assert.Equal(t, []byte("Nord"), msg.Key)
	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "Watch", body["alert"])
	assert.Equal(t, "2024-03-01", body["date"])
	assert.Equal(t, 0.55, body["vhi_mean"])
	assert.Nil(t, body["conf_index"])

	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "alert_level", msg.Headers[0].Key)
	assert.Equal(t, []byte("Watch"), msg.Headers[0].Value)
	assert.Equal(t, []byte("2024-03"), msg.Headers[1].Value)
	assert.Equal(t, []byte("RUN_AUTO_20240301_20240401"), msg.Headers[2].Value)
}

func TestPublishRetriesTransientErrors(t *testing.T) {
	w := &fakeWriter{errs: []error{kafkago.LeaderNotAvailable, kafkago.NotLeaderForPartition}}
	metrics := observability.NewMetricsForTesting()
	p := newPublisher(w, slog.Default(), metrics, 5)

	require.NoError(t, p.Publish(context.Background(), []domain.AlertRecord{testRecord(), testRecord()}))
	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.msgs, 2)
}

func TestPublishStopsOnPermanentError(t *testing.T) {
	w := &fakeWriter{errs: []error{kafkago.TopicAuthorizationFailed}}
	p := newPublisher(w, slog.Default(), observability.NewMetricsForTesting(), 5)

	err := p.Publish(context.Background(), []domain.AlertRecord{testRecord()})
	require.Error(t, err)
	assert.Equal(t, domain.Permanent, domain.KindOf(err))
	assert.True(t, errors.Is(err, kafkago.TopicAuthorizationFailed))
	assert.Equal(t, 1, w.calls)
}

func TestPublishGivesUpAfterMaxAttempts(t *testing.T) {
	w := &fakeWriter{errs: []error{kafkago.LeaderNotAvailable, kafkago.LeaderNotAvailable}}
	p := newPublisher(w, slog.Default(), observability.NewMetricsForTesting(), 2)

	err := p.Publish(context.Background(), []domain.AlertRecord{testRecord()})
	require.Error(t, err)
	assert.Equal(t, domain.Transient, domain.KindOf(err))
	assert.Equal(t, 2, w.calls)
}

func TestPublishEmptyAndClose(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, slog.Default(), observability.NewMetricsForTesting(), 1)
	require.NoError(t, p.Publish(context.Background(), nil))
	assert.Zero(t, w.calls)
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
