// Package config loads and validates tracker configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/waste-tracker/internal/transform"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Portal    PortalConfig    `mapstructure:"portal"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Sheets    SheetsConfig    `mapstructure:"sheets"`
	Export    ExportConfig    `mapstructure:"export"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the dashboard HTTP server.
type ServerConfig struct {
	Port                  int    `mapstructure:"port"`
	APIKey                string `mapstructure:"api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// PortalConfig configures the scraper that downloads the services export.
type PortalConfig struct {
	LoginURL       string `mapstructure:"login_url"`
	ExportURL      string `mapstructure:"export_url"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	UserAgent      string `mapstructure:"user_agent"`
	OutputDir      string `mapstructure:"output_dir"`
	DownloadName   string `mapstructure:"download_name"`
	DownloadMode   string `mapstructure:"download_mode"`
	Headless       bool   `mapstructure:"headless"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PipelineConfig controls the processing run.
type PipelineConfig struct {
	InputPath           string `mapstructure:"input_path"`
	WaitTimeoutSeconds  int    `mapstructure:"wait_timeout_seconds"`
	WaitIntervalSeconds int    `mapstructure:"wait_interval_seconds"`
	Force               bool   `mapstructure:"force"`
}

// NormalizeConfig lists the literal replacement rules applied to text cells.
type NormalizeConfig struct {
	Rules []transform.Rule `mapstructure:"rules"`
}

// GeocodeConfig locates the address to coordinates table.
type GeocodeConfig struct {
	Path string `mapstructure:"path"`
}

// SheetsConfig controls spreadsheet publication.
type SheetsConfig struct {
	Backend         string `mapstructure:"backend"`
	Name            string `mapstructure:"name"`
	ShareWith       string `mapstructure:"share_with"`
	ReplaceMode     string `mapstructure:"replace_mode"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// ExportConfig controls the geocoded export.
type ExportConfig struct {
	DropUnresolved bool `mapstructure:"drop_unresolved"`
}

// StorageConfig selects the blob backend and the object keys it holds.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	SnapshotKey string `mapstructure:"snapshot_key"`
	ExportKey   string `mapstructure:"export_key"`
	MarkerKey   string `mapstructure:"marker_key"`
}

// DatabaseConfig enables the Postgres run history when DSN is set.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run notifications. Disabled when ProjectID is empty.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from an optional .env file, disk and environment.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindLegacyEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// bindLegacyEnv accepts the variable names older deployments keep in .env.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("portal.username", "TRACKER_PORTAL_USERNAME", "VEOLIA_EMAIL")
	_ = v.BindEnv("portal.password", "TRACKER_PORTAL_PASSWORD", "VEOLIA_PASSWORD")
	_ = v.BindEnv("sheets.share_with", "TRACKER_SHEETS_SHARE_WITH", "MAIL_GOOGLE")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.port", 8050)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("portal.login_url", "https://clients.recyclage.veolia.fr/")
	v.SetDefault("portal.export_url", "https://clients.recyclage.veolia.fr/suivre-mes-prestations/evacuation-de-dechets/realisees")
	v.SetDefault("portal.username", "")
	v.SetDefault("portal.password", "")
	v.SetDefault("portal.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_8_3) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/54.0.2866.71 Safari/537.36")
	v.SetDefault("portal.output_dir", "outputs")
	v.SetDefault("portal.download_name", "veolia_prestation.xlsx")
	v.SetDefault("portal.download_mode", "browser")
	v.SetDefault("portal.headless", true)
	v.SetDefault("portal.timeout_seconds", 120)
	v.SetDefault("pipeline.input_path", "outputs/new.xlsx")
	v.SetDefault("pipeline.wait_timeout_seconds", 500)
	v.SetDefault("pipeline.wait_interval_seconds", 1)
	v.SetDefault("pipeline.force", false)
	v.SetDefault("normalize.rules", defaultRules())
	v.SetDefault("geocode.path", "coords.json")
	v.SetDefault("sheets.backend", "google")
	v.SetDefault("sheets.name", "veolia_export")
	v.SetDefault("sheets.share_with", "")
	v.SetDefault("sheets.replace_mode", "delete_first")
	v.SetDefault("sheets.credentials_file", "")
	v.SetDefault("export.drop_unresolved", false)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "outputs")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.snapshot_key", "old.xlsx")
	v.SetDefault("storage.export_key", "data_filtered.xlsx")
	v.SetDefault("storage.marker_key", "last_update.txt")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "pipeline_runs")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "tracker-runs")
}

func defaultRules() []map[string]string {
	rules := transform.DefaultRules()
	out := make([]map[string]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, map[string]string{
			"field":       r.Field,
			"match":       r.Match,
			"replacement": r.Replacement,
		})
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.InputPath == "" {
		return fmt.Errorf("pipeline.input_path is required")
	}
	if c.Pipeline.WaitTimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline.wait_timeout_seconds must be > 0")
	}
	if c.Pipeline.WaitIntervalSeconds <= 0 {
		return fmt.Errorf("pipeline.wait_interval_seconds must be > 0")
	}
	for i, r := range c.Normalize.Rules {
		if r.Field == "" || r.Match == "" {
			return fmt.Errorf("normalize.rules[%d] needs field and match", i)
		}
	}
	if c.Geocode.Path == "" {
		return fmt.Errorf("geocode.path is required")
	}
	switch c.Sheets.Backend {
	case "google", "memory":
	default:
		return fmt.Errorf("sheets.backend must be google or memory, got %q", c.Sheets.Backend)
	}
	if c.Sheets.Name == "" {
		return fmt.Errorf("sheets.name is required")
	}
	switch c.Sheets.ReplaceMode {
	case "delete_first", "create_then_swap":
	default:
		return fmt.Errorf("sheets.replace_mode must be delete_first or create_then_swap, got %q", c.Sheets.ReplaceMode)
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be local, gcs or memory, got %q", c.Storage.Backend)
	}
	if c.Storage.SnapshotKey == "" || c.Storage.ExportKey == "" || c.Storage.MarkerKey == "" {
		return fmt.Errorf("storage keys must be set")
	}
	switch c.Portal.DownloadMode {
	case "browser", "http":
	default:
		return fmt.Errorf("portal.download_mode must be browser or http, got %q", c.Portal.DownloadMode)
	}
	if c.Portal.TimeoutSeconds <= 0 {
		return fmt.Errorf("portal.timeout_seconds must be > 0")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// WaitTimeout returns the input wait budget.
func (c PipelineConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSeconds) * time.Second
}

// WaitInterval returns the input polling period.
func (c PipelineConfig) WaitInterval() time.Duration {
	return time.Duration(c.WaitIntervalSeconds) * time.Second
}

// Timeout returns the overall scrape budget.
func (c PortalConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RequestTimeout returns the per-request HTTP budget.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
