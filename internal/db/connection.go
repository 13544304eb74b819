package db

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the Postgres settings of the lineage registry.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// MaxConns caps the pool; zero keeps the default of 5.
	MaxConns int32
}

// DefaultConfig points at a local development database.
func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "admin",
		DBName:   "dxfdiff",
		SSLMode:  "disable",
	}
}

// DSN returns the keyword/value connection string understood by pgx.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// MigrationURL returns the pgx5:// URL used by the migrator.
func (c Config) MigrationURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	// Writes are one row per comparison, so a small pool is enough.
	pc.MaxConns = 5
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	pc.MinConns = 1
	pc.MaxConnLifetime = 30 * time.Minute
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.HealthCheckPeriod = time.Minute
	return pc, nil
}

// Connection owns the pgx pool.
type Connection struct {
	Pool *pgxpool.Pool
}

// NewConnection opens the pool and checks that the database answers.
func NewConnection(ctx context.Context, config Config) (*Connection, error) {
	pc, err := config.poolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database %s on %s:%d: %w", config.DBName, config.Host, config.Port, err)
	}
	log.Printf("[DB] connected to %s on %s:%d", config.DBName, config.Host, config.Port)
	return &Connection{Pool: pool}, nil
}

func (c *Connection) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WithTx runs fn in a transaction that is committed when fn returns nil and rolled back otherwise.
func (c *Connection) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if err := pgx.BeginFunc(ctx, c.Pool, fn); err != nil {
		log.Printf("[DB] transaction rolled back: %v", err)
		return err
	}
	return nil
}
