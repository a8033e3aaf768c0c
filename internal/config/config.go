package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the process configuration of parkd. Everything here is about
// where the process runs; what the park allows lives in configs/tuning.yaml.
type Config struct {
	ParkID    string `env:"PARK_ID" envDefault:"park_1"`
	ConfigDir string `env:"CONFIG_DIR" envDefault:"configs"`
	DataDir   string `env:"DATA_DIR" envDefault:"data"`

	Listen string `env:"LISTEN" envDefault:":8080"`
	// AuthorityURL is the websocket a participant joins.
	AuthorityURL string `env:"AUTHORITY_URL" envDefault:"ws://localhost:8080/v1/session"`
	PlayerName   string `env:"PLAYER_NAME" envDefault:"player"`

	IndexEnabled  bool   `env:"INDEX_ENABLED" envDefault:"true"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisMaxLen   int64  `env:"REDIS_MAX_LEN" envDefault:"100000"`

	// SnapshotEvery is in ticks; zero turns periodic snapshots off.
	SnapshotEvery uint32        `env:"SNAPSHOT_EVERY" envDefault:"2400"`
	SnapshotKeep  int           `env:"SNAPSHOT_KEEP" envDefault:"8"`
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"5s"`

	// Off-site copies of snapshots go to an S3-compatible bucket when set.
	MirrorEndpoint  string `env:"MIRROR_ENDPOINT"`
	MirrorBucket    string `env:"MIRROR_BUCKET"`
	MirrorRegion    string `env:"MIRROR_REGION" envDefault:"auto"`
	MirrorAccessKey string `env:"MIRROR_ACCESS_KEY"`
	MirrorSecretKey string `env:"MIRROR_SECRET_KEY"`
	MirrorPrefix    string `env:"MIRROR_PREFIX"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	OtelEnabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OtelEndpoint    string `env:"OTEL_ENDPOINT"`
	OtelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"parkd"`
}

const envPrefix = "PARKCRAFT_"

// Load reads an optional .env file, then the PARKCRAFT_* environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			logrus.Debugf("no env file %s: %v", f, err)
		}
	}
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ParkID == "" {
		return errors.New("PARKCRAFT_PARK_ID is required")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid PARKCRAFT_LISTEN %q: %w", c.Listen, err)
	}
	u, err := url.Parse(c.AuthorityURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("invalid PARKCRAFT_AUTHORITY_URL %q (want ws:// or wss://)", c.AuthorityURL)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("invalid PARKCRAFT_REDIS_DB: %d", c.RedisDB)
	}
	if c.SnapshotKeep < 0 {
		return fmt.Errorf("invalid PARKCRAFT_SNAPSHOT_KEEP: %d", c.SnapshotKeep)
	}
	if c.MirrorEndpoint != "" && (c.MirrorBucket == "" || c.MirrorAccessKey == "" || c.MirrorSecretKey == "") {
		return errors.New("PARKCRAFT_MIRROR_BUCKET, _ACCESS_KEY and _SECRET_KEY are required with PARKCRAFT_MIRROR_ENDPOINT")
	}
	if c.OtelEnabled && c.OtelEndpoint == "" {
		return errors.New("PARKCRAFT_OTEL_ENDPOINT is required when tracing is enabled")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid PARKCRAFT_LOG_LEVEL: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid PARKCRAFT_LOG_FORMAT %q (want text or json)", c.LogFormat)
	}
	return nil
}

// ConfigureLogging applies the log settings to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	}
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
