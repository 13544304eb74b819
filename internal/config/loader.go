package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/dxfdiff/internal/artifacts"
	"github.com/rpattn/dxfdiff/internal/comparison"
	"github.com/rpattn/dxfdiff/internal/db"
	"github.com/rpattn/dxfdiff/internal/domain"
	"github.com/rpattn/dxfdiff/internal/labels"
)

// EnvPrefix prefixes environment overrides, e.g. DXFDIFF_COMPARE_TOLERANCE.
const EnvPrefix = "DXFDIFF"

// Artifact backends.
const (
	BackendFile  = "file"
	BackendMinIO = "minio"
)

type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	MaxUploadMB     int
	ShutdownTimeout time.Duration
	// DownloadSecret signs artifact download links. Empty uses a random secret per process.
	DownloadSecret string
	DownloadTTL    time.Duration
}

type CompareConfig struct {
	Tolerance         float64
	DeletedColor      int
	AddedColor        int
	UnchangedColor    int
	OffsetX           float64
	OffsetY           float64
	AlignDeleted      bool
	Workers           int
	PairDistance      float64
	UnchangedPrefixes []string
}

type ExtractionConfig struct {
	DrawingNumberProximity float64
	SourceNumberProximity  float64
	TitleProximityX        float64
	TitleProximity         float64
	RightmostTolerance     float64
}

type ArtifactsConfig struct {
	Backend string
	Dir     string
	MinIO   artifacts.MinIOConfig
}

type RegistryConfig struct {
	// Path of the Parent-Child workbook. Empty disables the workbook registry.
	Path string
}

type DatabaseConfig struct {
	Enabled bool
	db.Config
}

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig
	Compare    CompareConfig
	Extraction ExtractionConfig
	Artifacts  ArtifactsConfig
	Registry   RegistryConfig
	Database   DatabaseConfig
}

// Default returns the configuration used when no file or environment overrides are present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"http://localhost:3000"},
			MaxUploadMB:     64,
			ShutdownTimeout: 30 * time.Second,
			DownloadTTL:     15 * time.Minute,
		},
		Compare: CompareConfig{
			Tolerance:      domain.DefaultTolerance,
			DeletedColor:   domain.DefaultDeletedColor,
			AddedColor:     domain.DefaultAddedColor,
			UnchangedColor: domain.DefaultUnchangedColor,
			AlignDeleted:   true,
			PairDistance:   labels.DefaultPairDistance,
		},
		Extraction: ExtractionConfig{
			DrawingNumberProximity: labels.DefaultDrawingNumberProximity,
			SourceNumberProximity:  labels.DefaultSourceNumberProximity,
			TitleProximityX:        labels.DefaultTitleProximityX,
			TitleProximity:         labels.DefaultTitleProximity,
			RightmostTolerance:     labels.DefaultRightmostTolerance,
		},
		Artifacts: ArtifactsConfig{
			Backend: BackendFile,
			Dir:     "./output",
			MinIO: artifacts.MinIOConfig{
				Endpoint: "localhost:9000",
				Region:   "us-east-1",
				Bucket:   "dxfdiff",
			},
		},
		Database: DatabaseConfig{Config: db.DefaultConfig()},
	}
}

var envKeys = []string{
	"server.addr", "server.allowed_origins", "server.max_upload_mb", "server.shutdown_timeout",
	"server.download_secret", "server.download_ttl",
	"compare.tolerance", "compare.deleted_color", "compare.added_color", "compare.unchanged_color",
	"compare.offset_x", "compare.offset_y", "compare.align_deleted", "compare.workers",
	"compare.pair_distance", "compare.unchanged_prefixes",
	"extraction.drawing_number_proximity", "extraction.source_number_proximity",
	"extraction.title_proximity_x", "extraction.title_proximity", "extraction.rightmost_tolerance",
	"artifacts.backend", "artifacts.dir",
	"artifacts.minio.endpoint", "artifacts.minio.access_key", "artifacts.minio.secret_key",
	"artifacts.minio.region", "artifacts.minio.bucket", "artifacts.minio.use_ssl",
	"registry.path",
	"database.enabled", "database.host", "database.port", "database.user", "database.password",
	"database.dbname", "database.sslmode", "database.max_conns",
}

// Load reads config.yaml from configPath when present, then applies DXFDIFF_* environment
// overrides on top of the defaults.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		log.Printf("[CONFIG] no config.yaml in %s, using defaults and environment", configPath)
	} else {
		log.Printf("[CONFIG] loaded %s", v.ConfigFileUsed())
	}

	setString(v, "server.addr", &cfg.Server.Addr)
	setStrings(v, "server.allowed_origins", &cfg.Server.AllowedOrigins)
	setInt(v, "server.max_upload_mb", &cfg.Server.MaxUploadMB)
	if v.IsSet("server.shutdown_timeout") {
		cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	}
	setString(v, "server.download_secret", &cfg.Server.DownloadSecret)
	if v.IsSet("server.download_ttl") {
		cfg.Server.DownloadTTL = v.GetDuration("server.download_ttl")
	}

	setFloat(v, "compare.tolerance", &cfg.Compare.Tolerance)
	setInt(v, "compare.deleted_color", &cfg.Compare.DeletedColor)
	setInt(v, "compare.added_color", &cfg.Compare.AddedColor)
	setInt(v, "compare.unchanged_color", &cfg.Compare.UnchangedColor)
	setFloat(v, "compare.offset_x", &cfg.Compare.OffsetX)
	setFloat(v, "compare.offset_y", &cfg.Compare.OffsetY)
	setBool(v, "compare.align_deleted", &cfg.Compare.AlignDeleted)
	setInt(v, "compare.workers", &cfg.Compare.Workers)
	setFloat(v, "compare.pair_distance", &cfg.Compare.PairDistance)
	setStrings(v, "compare.unchanged_prefixes", &cfg.Compare.UnchangedPrefixes)

	setFloat(v, "extraction.drawing_number_proximity", &cfg.Extraction.DrawingNumberProximity)
	setFloat(v, "extraction.source_number_proximity", &cfg.Extraction.SourceNumberProximity)
	setFloat(v, "extraction.title_proximity_x", &cfg.Extraction.TitleProximityX)
	setFloat(v, "extraction.title_proximity", &cfg.Extraction.TitleProximity)
	setFloat(v, "extraction.rightmost_tolerance", &cfg.Extraction.RightmostTolerance)

	setString(v, "artifacts.backend", &cfg.Artifacts.Backend)
	setString(v, "artifacts.dir", &cfg.Artifacts.Dir)
	setString(v, "artifacts.minio.endpoint", &cfg.Artifacts.MinIO.Endpoint)
	setString(v, "artifacts.minio.access_key", &cfg.Artifacts.MinIO.AccessKey)
	setString(v, "artifacts.minio.secret_key", &cfg.Artifacts.MinIO.SecretKey)
	setString(v, "artifacts.minio.region", &cfg.Artifacts.MinIO.Region)
	setString(v, "artifacts.minio.bucket", &cfg.Artifacts.MinIO.Bucket)
	setBool(v, "artifacts.minio.use_ssl", &cfg.Artifacts.MinIO.UseSSL)

	setString(v, "registry.path", &cfg.Registry.Path)

	setBool(v, "database.enabled", &cfg.Database.Enabled)
	setString(v, "database.host", &cfg.Database.Host)
	setInt(v, "database.port", &cfg.Database.Port)
	setString(v, "database.user", &cfg.Database.User)
	setString(v, "database.password", &cfg.Database.Password)
	setString(v, "database.dbname", &cfg.Database.DBName)
	setString(v, "database.sslmode", &cfg.Database.SSLMode)
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt32("database.max_conns")
	}

	return cfg, cfg.Validate()
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

// setStrings accepts a YAML list or a comma separated environment value.
func setStrings(v *viper.Viper, key string, dst *[]string) {
	if !v.IsSet(key) {
		return
	}
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	*dst = out
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setFloat(v *viper.Viper, key string, dst *float64) {
	if v.IsSet(key) {
		*dst = v.GetFloat64(key)
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

// Validate checks the comparison settings and the artifact backend.
func (c Config) Validate() error {
	if err := c.ComparisonOptions().Validate(); err != nil {
		return err
	}
	switch c.Artifacts.Backend {
	case BackendFile:
	case BackendMinIO:
		if err := c.Artifacts.MinIO.Validate(); err != nil {
			return fmt.Errorf("artifacts.minio: %w", err)
		}
	default:
		return fmt.Errorf("unknown artifacts backend %q", c.Artifacts.Backend)
	}
	return nil
}

// Colors returns the configured classification colors.
func (c Config) Colors() domain.Colors {
	return domain.Colors{
		Deleted:   c.Compare.DeletedColor,
		Added:     c.Compare.AddedColor,
		Unchanged: c.Compare.UnchangedColor,
	}
}

// ComparisonOptions translates the configuration into comparison options.
func (c Config) ComparisonOptions() comparison.Options {
	opts := comparison.DefaultOptions().WithTolerance(c.Compare.Tolerance)
	opts.Diff.Colors = c.Colors()
	opts.Diff.AlignDeleted = c.Compare.AlignDeleted
	if c.Compare.OffsetX != 0 || c.Compare.OffsetY != 0 {
		opts.Diff.Offset = &domain.Vector{X: c.Compare.OffsetX, Y: c.Compare.OffsetY}
	}
	opts.Labels.PairDistance = c.Compare.PairDistance
	opts.UnchangedPrefixes = c.Compare.UnchangedPrefixes

	opts.Extract.DrawingNumber.MaxDistance = c.Extraction.DrawingNumberProximity
	opts.Extract.SourceNumber.MaxDistance = c.Extraction.SourceNumberProximity
	opts.Extract.Title.MaxDistance = c.Extraction.TitleProximity
	opts.Extract.Title.MaxHorizontal = c.Extraction.TitleProximityX
	opts.Extract.Subtitle.MaxDistance = c.Extraction.TitleProximity
	opts.Extract.Subtitle.MaxHorizontal = c.Extraction.TitleProximityX
	opts.Extract.RightmostTolerance = c.Extraction.RightmostTolerance
	return opts
}

// ArtifactStore opens the configured artifact backend.
func (c Config) ArtifactStore(ctx context.Context) (artifacts.Store, error) {
	if c.Artifacts.Backend == BackendMinIO {
		return artifacts.NewMinIOStore(ctx, c.Artifacts.MinIO)
	}
	return artifacts.NewFileStore(c.Artifacts.Dir)
}
