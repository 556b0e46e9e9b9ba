package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Google     GoogleConfig     `yaml:"google"`
	Booking    BookingConfig    `yaml:"booking"`
	Sync       SyncConfig       `yaml:"sync"`
}

type BookingConfig struct {
	// AllowPastReschedule lets a reschedule move a stay entirely into the past.
	AllowPastReschedule bool `yaml:"allow_past_reschedule"`
}

type SyncConfig struct {
	LockTTL      time.Duration `yaml:"lock_ttl"`
	MaxBatchSize int           `yaml:"max_batch_size"`
	Worker       WorkerConfig  `yaml:"worker"`
}

type WorkerConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	CredentialsFile       string `yaml:"credentials_file"`
	BookingsSpreadsheetID string `yaml:"bookings_spreadsheet_id"`
	BookingsSheetName     string `yaml:"bookings_sheet_name"`
}

func Load(configPath string) (*Config, error) {
	// .env é opcional; variáveis já exportadas têm precedência
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Sync.MaxBatchSize < 0 {
		return errors.New("sync.max_batch_size must not be negative")
	}
	if c.API.Enabled && c.API.Auth.Enabled {
		if err := validateAPIKeys(c.API.Auth.APIKeys); err != nil {
			return err
		}
	}
	if c.Backup.Enabled && c.Backup.StoragePath == "" {
		return errors.New("backup.storage_path is required when backups are enabled")
	}
	return nil
}

func validateAPIKeys(keys []APIClientKey) error {
	if len(keys) == 0 {
		return errors.New("api.auth requires at least one api key")
	}
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

// ValidateFleet checks the seed file for duplicate names and dangling mappings.
func ValidateFleet(fleet models.Fleet) error {
	names := make(map[string]bool)
	for _, apt := range fleet.Apartments {
		if apt.Name == "" {
			return errors.New("apartment with empty name")
		}
		if names[apt.Name] {
			return fmt.Errorf("duplicate apartment name: %s", apt.Name)
		}
		names[apt.Name] = true
	}

	for _, in := range fleet.Integrations {
		if _, err := models.ParseChannel(in.Channel); err != nil {
			return err
		}
		listings := make(map[string]bool)
		for _, m := range in.Mappings {
			if !names[m.Apartment] {
				return fmt.Errorf("integration '%s' maps unknown apartment '%s'", in.Label, m.Apartment)
			}
			if m.ListingID == "" {
				return fmt.Errorf("integration '%s' has a mapping without listing_id", in.Label)
			}
			if listings[m.ListingID] {
				return fmt.Errorf("integration '%s' maps listing %s twice", in.Label, m.ListingID)
			}
			listings[m.ListingID] = true
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "morada-de-praia"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Google.BookingsSheetName == "" {
		c.Google.BookingsSheetName = "Reservas"
	}

	if c.Sync.LockTTL == 0 {
		c.Sync.LockTTL = models.SyncLockTTL * time.Second
	}
	if c.Sync.MaxBatchSize == 0 {
		c.Sync.MaxBatchSize = models.MaxSyncBatchSize
	}
	if c.Sync.Worker.MaxRetries == 0 {
		c.Sync.Worker.MaxRetries = 5
	}
	if c.Sync.Worker.InitialDelay == 0 {
		c.Sync.Worker.InitialDelay = 2 * time.Second
	}
	if c.Sync.Worker.MaxDelay == 0 {
		c.Sync.Worker.MaxDelay = time.Minute
	}
	if c.Sync.Worker.PollInterval == 0 {
		c.Sync.Worker.PollInterval = 2 * time.Second
	}
}
