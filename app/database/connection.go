package database

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Config describes how to reach the store and how large the pool may grow.
type Config struct {
	URL             string
	CACert          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Pool hands out one connection per operation and takes it back afterwards.
// It is created once at startup and closed on shutdown.
type Pool struct {
	db *gorm.DB
}

// Open builds the pool, verifying the server certificate against cfg.CACert,
// and pings the store once so that a bad URL or certificate fails startup.
func Open(ctx context.Context, cfg Config, logger *logrus.Logger) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL cannot be empty")
	}
	if cfg.CACert == "" {
		return nil, errors.New("database CA certificate cannot be empty")
	}

	connConfig, err := pgx.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	tlsConfig, err := TLSConfig(cfg.CACert, connConfig.Host)
	if err != nil {
		return nil, err
	}
	connConfig.TLSConfig = tlsConfig
	// sslmode=prefer/allow produce plaintext fallbacks; the CA is mandatory so drop them.
	connConfig.Fallbacks = nil

	sqlDB := stdlib.OpenDB(*connConfig)
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               NewGormLogger(logger),
		DisableAutomaticPing: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to initialise gorm: %w", err)
	}

	pool := NewPool(db)
	if err := pool.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return pool, nil
}

// NewPool wraps an already opened gorm handle.
func NewPool(db *gorm.DB) *Pool {
	return &Pool{db: db}
}

// TLSConfig returns a client TLS configuration trusting only the given CA.
// caCert is either PEM text or a path to a PEM file.
func TLSConfig(caCert, serverName string) (*tls.Config, error) {
	pem := []byte(caCert)
	if !strings.Contains(caCert, "-----BEGIN") {
		b, err := os.ReadFile(caCert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		pem = b
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, errors.New("CA certificate contains no valid PEM blocks")
	}

	return &tls.Config{
		RootCAs:    roots,
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// WithConn acquires a dedicated connection, runs fn on it and always releases
// it, whatever fn returns. Failures to acquire, and failures of the link
// itself while fn runs, are reported as ErrConnection.
func (p *Pool) WithConn(ctx context.Context, fn func(tx *gorm.DB) error) error {
	acquired := false
	err := p.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		acquired = true
		return fn(tx)
	})
	if err == nil {
		return nil
	}
	if !acquired || IsConnectionFailure(err) {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return err
}

// Ping checks that a connection can be acquired and used.
func (p *Pool) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return nil
}

// DB exposes the underlying handle for schema migrations.
func (p *Pool) DB() *gorm.DB {
	return p.db
}

// Close drains the pool. In-flight operations finish first.
func (p *Pool) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
