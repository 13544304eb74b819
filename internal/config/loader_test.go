package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpattn/dxfdiff/internal/domain"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Compare.Tolerance != domain.DefaultTolerance || cfg.Colors() != domain.DefaultColors() {
		t.Errorf("unexpected compare defaults %+v", cfg.Compare)
	}
	opts := cfg.ComparisonOptions()
	if opts.Diff.Offset != nil || !opts.Diff.AlignDeleted || opts.Labels.Tolerance != domain.DefaultTolerance {
		t.Errorf("unexpected comparison options %+v", opts)
	}
	if opts.Extract.DrawingNumber.MaxDistance != 80 || opts.Extract.Title.MaxHorizontal != 80 {
		t.Errorf("unexpected extraction options %+v", opts.Extract)
	}
	if cfg.Artifacts.Backend != BackendFile || cfg.Database.Enabled {
		t.Errorf("unexpected backends %+v %+v", cfg.Artifacts, cfg.Database)
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  addr: ":9090"
  shutdown_timeout: 5s
compare:
  tolerance: 0.001
  deleted_color: 1
  offset_x: 10
  unchanged_prefixes: [R, C]
extraction:
  drawing_number_proximity: 120
database:
  enabled: true
  dbname: drawings
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DXFDIFF_COMPARE_ADDED_COLOR", "3")
	t.Setenv("DXFDIFF_DATABASE_HOST", "db.internal")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Colors() != (domain.Colors{Deleted: 1, Added: 3, Unchanged: 7}) {
		t.Errorf("unexpected colors %+v", cfg.Colors())
	}
	if len(cfg.Compare.UnchangedPrefixes) != 2 || cfg.Compare.UnchangedPrefixes[1] != "C" {
		t.Errorf("unexpected prefixes %v", cfg.Compare.UnchangedPrefixes)
	}
	if !cfg.Database.Enabled || cfg.Database.DBName != "drawings" || cfg.Database.Host != "db.internal" || cfg.Database.Port != 5432 {
		t.Errorf("unexpected database config %+v", cfg.Database)
	}

	opts := cfg.ComparisonOptions()
	if opts.Diff.Offset == nil || opts.Diff.Offset.X != 10 || opts.Diff.Tolerance != 0.001 || opts.Labels.Tolerance != 0.001 {
		t.Errorf("unexpected diff options %+v", opts.Diff)
	}
	if opts.Extract.DrawingNumber.MaxDistance != 120 {
		t.Errorf("expected drawing number proximity override, got %v", opts.Extract.DrawingNumber.MaxDistance)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("DXFDIFF_COMPARE_TOLERANCE", "2")
	if _, err := Load(t.TempDir()); !errors.Is(err, domain.ErrInvalidTolerance) {
		t.Fatalf("expected ErrInvalidTolerance, got %v", err)
	}
}

func TestValidateArtifactsBackend(t *testing.T) {
	cfg := Default()
	cfg.Artifacts.Backend = "ftp"
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected unknown backend to be rejected")
	}
	cfg.Artifacts.Backend = BackendMinIO
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected minio without credentials to be rejected")
	}
	cfg.Artifacts.MinIO.AccessKey, cfg.Artifacts.MinIO.SecretKey = "key", "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid minio config: %v", err)
	}
}
