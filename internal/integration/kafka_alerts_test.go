//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/drought-monitor/internal/adapter/kafka"
	"github.com/couchcryptid/drought-monitor/internal/archive"
	"github.com/couchcryptid/drought-monitor/internal/config"
	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/index"
	"github.com/couchcryptid/drought-monitor/internal/ledger"
	"github.com/couchcryptid/drought-monitor/internal/observability"
	"github.com/couchcryptid/drought-monitor/internal/pipeline"
	"github.com/couchcryptid/drought-monitor/internal/raster"
	"github.com/couchcryptid/drought-monitor/internal/zones"
)

const testAlertTopic = "test-drought-alerts"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("drought-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type alertMessage struct {
	Key     string
	Headers map[string]string
	Body    map[string]any
}

func readAlert(ctx context.Context, t *testing.T, consumer *kafkago.Reader) alertMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from alert topic")

	out := alertMessage{Key: string(msg.Key), Headers: make(map[string]string, len(msg.Headers))}
	for _, h := range msg.Headers {
		out.Headers[h.Key] = string(h.Value)
	}
	require.NoError(t, json.Unmarshal(msg.Value, &out.Body), "unmarshal alert message")
	return out
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAlertTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestRunPublishesAlerts runs a DROUGHT-mode pass over an in-memory archive
// and checks the fused alert reaches the topic.
func TestRunPublishesAlerts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	root := t.TempDir()
	cfg := &config.Config{
		Mode:             domain.ModeDrought,
		PeriodStart:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:        time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Territory:        "Nouvelle-Caledonie",
		ArchiveDir:       filepath.Join(root, "archive"),
		AnnexDir:         filepath.Join(root, "annex"),
		WorkDir:          filepath.Join(root, "work"),
		KeyStats:         zones.DefaultKey,
		WaitThreshold:    15 * 24 * time.Hour,
		VAITiles:         1,
		VAIWorkers:       1,
		RetryMaxAttempts: 5,
		KafkaBrokers:     []string{broker},
		KafkaAlertTopic:  testAlertTopic,
	}
	writeFile(t, filepath.Join(cfg.AnnexDir, "Areas", "areas.geojson"), `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"nom":"Nord","OBJECTID":1},
  "geometry":{"type":"Polygon","coordinates":[[[160,-20],[162,-20],[162,-22],[160,-22],[160,-20]]]}}]}`)
	meteo := filepath.Join(cfg.ArchiveDir, "METEO")
	writeFile(t, filepath.Join(meteo, ledger.FeedFile(ledger.IndexSPI)), "NOM;DATE;SPI3_MENS\nKoumac;202403;-1,5\n")
	writeFile(t, filepath.Join(meteo, ledger.FeedFile(ledger.IndexSPEI)), "NOM;DATE;SPEI_3\nKoumac;202403;0,2\n")
	for _, idx := range []string{ledger.IndexSPI, ledger.IndexSPEI} {
		writeFile(t, filepath.Join(cfg.AnnexDir, "Stations", ledger.StationTableFile(idx)), "nom;station\nNord;Koumac\n")
	}

	store := raster.NewMemStore()
	arch := archive.New(cfg.ArchiveDir)
	ref := raster.GeoRef{Transform: [6]float64{160, 1, 0, -20, 0, -1}}
	march := domain.MonthSlot(2024, time.March)
	for product, v := range map[string]float64{index.ProductMAI: 0.5, index.ProductVHI: 0.6} {
		require.NoError(t, store.Save(arch.Path(product, "", march), raster.Scored{
			Value: raster.Filled(2, 2, v, ref),
			Score: raster.Filled(2, 2, 1, ref),
		}))
	}

	metrics := observability.NewMetricsForTesting()
	publisher := kafka.NewPublisher(cfg, discardLogger(), metrics)
	t.Cleanup(func() { _ = publisher.Close() })

	runner := pipeline.NewRunner(cfg, pipeline.Deps{
		Store:      store,
		Rasterizer: zones.PlanarRasterizer{},
		Sink:       publisher,
	}, discardLogger(), metrics)

	res, err := runner.Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)

	msg := readAlert(ctx, t, newConsumer(t, broker))
	assert.Equal(t, "Nord", msg.Key)
	assert.Equal(t, "Watch", msg.Headers["alert_level"])
	assert.Equal(t, "2024-03", msg.Headers["month"])
	assert.Equal(t, "RUN_DROUGHT_20240301_20240401", msg.Headers["run_id"])
	assert.Equal(t, "Precipitation deficit", msg.Body["precipitation"])
	assert.InDelta(t, 0.6, msg.Body["vhi_mean"], 1e-9)
	assert.Nil(t, msg.Body["conf_index"])
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
