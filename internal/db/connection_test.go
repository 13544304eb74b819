package db

import (
	"strings"
	"testing"
)

func TestConfigConnectionStrings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "p@ss word"

	dsn := cfg.DSN()
	if !strings.Contains(dsn, "host=localhost") || !strings.Contains(dsn, "dbname=dxfdiff") {
		t.Errorf("unexpected dsn %q", dsn)
	}

	migrationURL := cfg.MigrationURL()
	if !strings.HasPrefix(migrationURL, "pgx5://postgres:") {
		t.Errorf("expected pgx5 scheme, got %q", migrationURL)
	}
	if !strings.Contains(migrationURL, "p%40ss%20word@localhost:5432/dxfdiff?sslmode=disable") {
		t.Errorf("expected escaped credentials, got %q", migrationURL)
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected up and down files for two migrations, got %d", len(entries))
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") && !strings.HasSuffix(name, ".down.sql") {
			t.Errorf("unexpected migration file %s", name)
		}
	}
}

func TestPoolConfigLimits(t *testing.T) {
	cfg := DefaultConfig()
	pc, err := cfg.poolConfig()
	if err != nil {
		t.Fatalf("poolConfig: %v", err)
	}
	if pc.MaxConns != 5 || pc.MinConns != 1 {
		t.Errorf("expected default pool 1..5, got %d..%d", pc.MinConns, pc.MaxConns)
	}

	cfg.MaxConns = 12
	if pc, err = cfg.poolConfig(); err != nil {
		t.Fatalf("poolConfig: %v", err)
	}
	if pc.MaxConns != 12 {
		t.Errorf("expected configured max conns, got %d", pc.MaxConns)
	}
	if pc.ConnConfig.Database != "dxfdiff" || pc.ConnConfig.Port != 5432 {
		t.Errorf("unexpected connection target %s:%d", pc.ConnConfig.Database, pc.ConnConfig.Port)
	}
}
