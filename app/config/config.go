package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/vectorsearch/listings/app/database"
)

type Config struct {
	DatabaseURL     string        `envconfig:"POSTGRES_VECTORDB_URL" required:"true"`
	CACert          string        `envconfig:"POSTGRES_CA_CERT"      required:"true"`
	HTTPAddr        string        `envconfig:"HTTP_ADDR"             default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL"             default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT"            default:"json"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS"     default:"10"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS"     default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME"  default:"30m"`
	SearchJob       string        `envconfig:"VECTORIZE_JOB_NAME"    default:"product_search_openai"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT"      default:"10s"`
}

// Load reads an optional .env file and then the process environment.
// A missing connection string or CA certificate is an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("POSTGRES_VECTORDB_URL is empty")
	}
	if strings.TrimSpace(cfg.CACert) == "" {
		return nil, errors.New("POSTGRES_CA_CERT is empty")
	}

	return &cfg, nil
}

// Database returns the connection settings for database.Open.
func (c *Config) Database() database.Config {
	return database.Config{
		URL:             c.DatabaseURL,
		CACert:          c.CACert,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// NewLogger builds the process logger. format is "json" or "text".
func NewLogger(level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json", "":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return logger, nil
}
