package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/charlesng35/classdesk/internal/auth"
	"github.com/charlesng35/classdesk/internal/database"
)

// Config represents the runtime configuration for the classdesk backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Uploads     UploadConfig      `mapstructure:"uploads"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver             string            `mapstructure:"driver"`
	Path               string            `mapstructure:"path"`
	DSN                string            `mapstructure:"dsn"`
	Host               string            `mapstructure:"host"`
	Port               int               `mapstructure:"port"`
	Name               string            `mapstructure:"name"`
	User               string            `mapstructure:"user"`
	Password           string            `mapstructure:"password"`
	Options            map[string]string `mapstructure:"options"`
	MaxOpenConns       int               `mapstructure:"max_open_conns"`
	MaxIdleConns       int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    time.Duration     `mapstructure:"conn_max_lifetime"`
	TransactionTimeout time.Duration     `mapstructure:"transaction_timeout"`
}

// StorageConfig locates the attachment blob root.
type StorageConfig struct {
	Root string `mapstructure:"root"`
}

// UploadConfig bounds accepted submission files.
type UploadConfig struct {
	MaxBytes          int64    `mapstructure:"max_bytes"`
	MaxFiles          int      `mapstructure:"max_files"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	MaxMemory         int64    `mapstructure:"max_memory"`
}

// AuthConfig captures bearer token verification settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT verification.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"token_ttl"`
}

// MonitoringConfig enables metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles the metrics endpoint.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// MaintenanceConfig schedules background cleanup.
type MaintenanceConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	OrphanSchedule     string        `mapstructure:"orphan_schedule"`
	OrphanGracePeriod  time.Duration `mapstructure:"orphan_grace_period"`
	AuditSchedule      string        `mapstructure:"audit_schedule"`
	AuditRetentionDays int           `mapstructure:"audit_retention_days"`
}

// DatabaseSettings converts DatabaseConfig into the parameters expected by database.Open.
func (c DatabaseConfig) DatabaseSettings() database.Config {
	return database.Config{
		Driver:          c.Driver,
		Path:            c.Path,
		DSN:             c.DSN,
		Host:            c.Host,
		Port:            c.Port,
		Name:            c.Name,
		User:            c.User,
		Password:        c.Password,
		Options:         c.Options,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultTokenTTL
	}

	return auth.JWTConfig{
		Secret:   c.JWT.Secret,
		Issuer:   c.JWT.Issuer,
		TokenTTL: ttl,
	}
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
// A .env file in the working directory is loaded first when present.
func LoadConfig(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CLASSDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Storage.Root) == "" {
		return errors.New("config: storage.root is required")
	}
	if c.Uploads.MaxBytes <= 0 {
		return errors.New("config: uploads.max_bytes must be positive")
	}
	if c.Uploads.MaxFiles < 0 {
		return errors.New("config: uploads.max_files must not be negative")
	}
	if c.Database.TransactionTimeout <= 0 {
		return errors.New("config: database.transaction_timeout must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/classdesk.sqlite")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.transaction_timeout", "5s")

	v.SetDefault("storage.root", "./data")

	v.SetDefault("uploads.max_bytes", 10*1024*1024)
	v.SetDefault("uploads.max_files", 10)
	v.SetDefault("uploads.allowed_extensions", []string{"pdf", "doc", "docx", "txt", "png", "jpg", "jpeg", "zip"})
	v.SetDefault("uploads.max_memory", 8*1024*1024)

	v.SetDefault("auth.jwt.issuer", "classdesk")
	v.SetDefault("auth.jwt.token_ttl", "15m")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.orphan_schedule", "@hourly")
	v.SetDefault("maintenance.orphan_grace_period", "1h")
	v.SetDefault("maintenance.audit_schedule", "@daily")
	v.SetDefault("maintenance.audit_retention_days", 90)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
