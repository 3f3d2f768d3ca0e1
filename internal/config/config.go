// Package config provides configuration management.
//
// A Config is loaded once by the CLI and passed down by value; core packages
// never consult global configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/joho/godotenv"

	"usage-cost/adapters/metering"
	"usage-cost/adapters/objectstore"
	"usage-cost/adapters/storage"
	"usage-cost/internal/errors"
	"usage-cost/internal/logging"
	"usage-cost/internal/metrics"
	"usage-cost/internal/telemetry"
)

// DateLayout is the layout of oldest_report and of rate query dates.
const DateLayout = "2006-01-02"

// Environment overrides.
const (
	EnvRateUsername   = "USAGE_COST_RATE_USERNAME"
	EnvRatePassword   = "USAGE_COST_RATE_PASSWORD"
	EnvPostgresDSN    = "USAGE_COST_POSTGRES_DSN"
	EnvRedisPassword  = "USAGE_COST_REDIS_PASSWORD"
	EnvDiscordWebhook = "USAGE_COST_DISCORD_WEBHOOK"
	EnvS3AccessKey    = "USAGE_COST_S3_ACCESS_KEY_ID"
	EnvS3SecretKey    = "USAGE_COST_S3_SECRET_ACCESS_KEY"
)

// Config is the main application configuration
type Config struct {
	// OldestReport excludes reports created on or before this date (YYYY-MM-DD, UTC)
	OldestReport string `hcl:"oldest_report,optional" json:"oldest_report"`

	// Storage is the bucket holding usage reports
	Storage *objectstore.Config `hcl:"storage,block" json:"storage"`

	// RateAPI is the usage cost endpoint
	RateAPI *metering.Config `hcl:"rate_api,block" json:"rate_api"`

	// Paths are local directories and input files
	Paths *PathsConfig `hcl:"paths,block" json:"paths"`

	// Progress selects where the marker is kept
	Progress *storage.Config `hcl:"progress,block" json:"progress"`

	Logging   *logging.Config   `hcl:"logging,block" json:"logging"`
	Telemetry *telemetry.Config `hcl:"telemetry,block" json:"telemetry"`
	Metrics   *metrics.Config   `hcl:"metrics,block" json:"metrics"`
	Notify    *NotifyConfig     `hcl:"notify,block" json:"notify"`
}

// PathsConfig contains local file locations
type PathsConfig struct {
	// DownloadDir keeps the raw .gz reports and their decompressed CSVs
	DownloadDir string `hcl:"download_dir,optional" json:"download_dir"`

	// CostDir receives the cost augmented reports
	CostDir string `hcl:"cost_dir,optional" json:"cost_dir"`

	// LookupFile is the resource conversion table
	LookupFile string `hcl:"lookup_file,optional" json:"lookup_file"`
}

// NotifyConfig contains run notification settings
type NotifyConfig struct {
	DiscordWebhookURL string `hcl:"discord_webhook_url,optional" json:"-"`
	Username          string `hcl:"username,optional" json:"username,omitempty"`
}

// Default returns a default configuration
func Default() *Config {
	rate := metering.DefaultConfig()
	progress := storage.DefaultConfig()
	logCfg := logging.DefaultConfig()

	return &Config{
		OldestReport: "2019-02-02",
		Storage: &objectstore.Config{
			Prefix: "reports/usage-csv/",
		},
		RateAPI: &rate,
		Paths: &PathsConfig{
			DownloadDir: "downloaded_reports",
			CostDir:     "downloaded_reports_cost",
			LookupFile:  "ResourceLookup.csv",
		},
		Progress:  &progress,
		Logging:   &logCfg,
		Telemetry: telemetry.DefaultConfig(),
		Metrics:   metrics.DefaultConfig(),
		Notify:    &NotifyConfig{},
	}
}

// EnvGetter reads environment variables.
type EnvGetter interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string {
	return os.Getenv(key)
}

// Load loads a .env file if present, then the configuration file at path,
// then environment overrides. A missing configuration file yields defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	return LoadWithEnv(path, osEnv{})
}

// LoadWithEnv is Load with an explicit environment.
func LoadWithEnv(path string, env EnvGetter) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
				return nil, errors.Wrap(errors.TypeConfig, "failed to decode configuration", err).
					WithContext("path", path)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrap(errors.TypeConfig, "failed to read configuration", err).
				WithContext("path", path)
		}
	}

	cfg.fillNil()
	cfg.applyEnv(env)
	return cfg, nil
}

// fillNil restores defaults for blocks an HCL JSON file set to null.
func (c *Config) fillNil() {
	d := Default()
	if c.Storage == nil {
		c.Storage = d.Storage
	}
	if c.RateAPI == nil {
		c.RateAPI = d.RateAPI
	}
	if c.Paths == nil {
		c.Paths = d.Paths
	}
	if c.Progress == nil {
		c.Progress = d.Progress
	}
	if c.Logging == nil {
		c.Logging = d.Logging
	}
	if c.Telemetry == nil {
		c.Telemetry = d.Telemetry
	}
	if c.Metrics == nil {
		c.Metrics = d.Metrics
	}
	if c.Notify == nil {
		c.Notify = d.Notify
	}
}

func (c *Config) applyEnv(env EnvGetter) {
	set := func(dst *string, key string) {
		if v := env.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.RateAPI.Username, EnvRateUsername)
	set(&c.RateAPI.Password, EnvRatePassword)
	set(&c.Progress.PostgresDSN, EnvPostgresDSN)
	set(&c.Progress.RedisPassword, EnvRedisPassword)
	set(&c.Notify.DiscordWebhookURL, EnvDiscordWebhook)
	set(&c.Storage.AccessKeyID, EnvS3AccessKey)
	set(&c.Storage.SecretAccessKey, EnvS3SecretKey)
}

// ResolvedRateAPI returns a copy of the rate API settings with the username
// and password read from their files unless already set. Trailing whitespace
// is trimmed. The receiver is not modified.
func (c *Config) ResolvedRateAPI() (metering.Config, error) {
	api := *c.RateAPI
	read := func(dst *string, path, what string) error {
		if *dst != "" {
			return nil
		}
		if path == "" {
			return errors.Config("rate API " + what + " is not configured")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(errors.TypeConfig, "failed to read rate API "+what, err).
				WithContext("path", path)
		}
		*dst = strings.TrimSpace(string(data))
		if *dst == "" {
			return errors.Config("rate API " + what + " file is empty").WithContext("path", path)
		}
		return nil
	}
	if err := read(&api.Username, api.UsernameFile, "username"); err != nil {
		return metering.Config{}, err
	}
	if err := read(&api.Password, api.PasswordFile, "password"); err != nil {
		return metering.Config{}, err
	}
	return api, nil
}

// Validate checks the settings a pipeline run needs.
func (c *Config) Validate() error {
	if c.Storage.Bucket == "" {
		return errors.Config("storage.bucket is required")
	}
	if c.Storage.Endpoint == "" && c.Storage.Region == "" {
		return errors.Config("storage.endpoint or storage.region is required")
	}
	if c.RateAPI.Endpoint == "" {
		return errors.Config("rate_api.endpoint is required")
	}
	if c.RateAPI.AccountID == "" {
		return errors.Config("rate_api.account_id is required")
	}
	if c.RateAPI.TenantID == "" {
		return errors.Config("rate_api.tenant_id is required")
	}
	if _, err := c.CutoffTime(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Paths.DownloadDir == "" || c.Paths.CostDir == "" {
		return errors.Config("paths.download_dir and paths.cost_dir are required")
	}
	return c.Telemetry.Validate()
}

// CutoffTime parses OldestReport as midnight UTC.
func (c *Config) CutoffTime() (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, c.OldestReport, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrap(errors.TypeConfig, "invalid oldest_report date", err).
			WithContext("value", c.OldestReport)
	}
	return t, nil
}

// Location is the time zone of rate query windows.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.RateAPI.TimeZone)
	if err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "invalid rate_api.time_zone", err).
			WithContext("value", c.RateAPI.TimeZone)
	}
	return loc, nil
}

// Save writes the configuration as HCL JSON. Secrets are not written.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.TypeConfig, "failed to create configuration directory", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(errors.TypeConfig, "failed to encode configuration", err)
	}

	return os.WriteFile(path, append(data, '\n'), 0644)
}
