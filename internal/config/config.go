package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/drought-monitor/internal/domain"
)

// DateLayout is the format of PERIOD_START and PERIOD_END.
const DateLayout = "2006-01-02"

// Config holds all service settings, populated from environment variables.
type Config struct {
	Mode        domain.Mode
	PeriodStart time.Time // zero when unset
	PeriodEnd   time.Time // exclusive, zero when unset
	Territory   string

	ArchiveDir   string
	AnnexDir     string
	WorkDir      string
	KeyStats     string
	DroughtStats bool

	WaitThreshold  time.Duration
	VAITiles       int
	VAIWorkers     int
	SatelliteTiles []string

	ScheduleInterval time.Duration
	RetryMaxAttempts int

	KafkaBrokers    []string
	KafkaAlertTopic string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mode, err := domain.ParseMode(sharedcfg.EnvOrDefault("DROUGHT_MODE", string(domain.ModeAuto)))
	if err != nil {
		return nil, err
	}
	start, err := parseDate("PERIOD_START")
	if err != nil {
		return nil, err
	}
	end, err := parseDate("PERIOD_END")
	if err != nil {
		return nil, err
	}

	wait, err := parseDuration("WAIT_THRESHOLD", "360h")
	if err != nil {
		return nil, err
	}
	interval, err := parseDuration("SCHEDULE_INTERVAL", "24h")
	if err != nil {
		return nil, err
	}
	tiles, err := parsePositiveInt("VAI_TILES", 4)
	if err != nil {
		return nil, err
	}
	if tiles != 1 && tiles != 4 {
		return nil, errors.New("invalid VAI_TILES: must be 1 or 4")
	}
	workers, err := parsePositiveInt("VAI_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	attempts, err := parsePositiveInt("RETRY_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	stats, err := strconv.ParseBool(sharedcfg.EnvOrDefault("DROUGHT_STATS", "true"))
	if err != nil {
		return nil, errors.New("invalid DROUGHT_STATS")
	}

	cfg := &Config{
		Mode:        mode,
		PeriodStart: start,
		PeriodEnd:   end,
		Territory:   strings.TrimSpace(os.Getenv("TERRITORY")),

		ArchiveDir:   sharedcfg.EnvOrDefault("ARCHIVE_DIR", "./data/archive"),
		AnnexDir:     sharedcfg.EnvOrDefault("ANNEX_DIR", "./data/annex"),
		WorkDir:      sharedcfg.EnvOrDefault("WORK_DIR", "./data/work"),
		KeyStats:     sharedcfg.EnvOrDefault("KEY_STATS", "nom"),
		DroughtStats: stats,

		WaitThreshold:  wait,
		VAITiles:       tiles,
		VAIWorkers:     workers,
		SatelliteTiles: parseList(os.Getenv("SATELLITE_TILES")),

		ScheduleInterval: interval,
		RetryMaxAttempts: attempts,

		KafkaBrokers:    sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaAlertTopic: sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "drought-alerts"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.Territory == "" {
		return nil, errors.New("TERRITORY is required")
	}
	if cfg.KafkaEnabled() && cfg.KafkaAlertTopic == "" {
		return nil, errors.New("KAFKA_ALERT_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether alerts are published to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

func parseDate(key string) (time.Time, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: want YYYY-MM-DD", key)
	}
	return t, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

// parseList splits a comma-separated value, trimming entries and dropping
// empty ones. An empty value yields nil.
func parseList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
