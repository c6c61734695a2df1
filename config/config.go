// config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. REGISTERS_DATABASE_HOST.
const EnvPrefix = "REGISTERS"

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // mysql or sqlite3
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	Path         string `yaml:"path"` // sqlite3 database file
	MaxOpenConns int    `yaml:"max_open_conns" split_words:"true"`
	MigrateOnRun bool   `yaml:"migrate_on_run" split_words:"true"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr or file
	File   string `yaml:"file"`
}

type AuthConfig struct {
	Enabled       bool     `yaml:"enabled"`
	SessionSecret string   `yaml:"session_secret" split_words:"true"`
	ClientID      string   `yaml:"client_id" split_words:"true"`
	ClientSecret  string   `yaml:"client_secret" split_words:"true"`
	RedirectURL   string   `yaml:"redirect_url" split_words:"true"`
	AllowedUsers  []string `yaml:"allowed_users" split_words:"true"` // empty allows any GitHub user
}

type GitHubConfig struct {
	Token         string `yaml:"token"`
	Repo          string `yaml:"repo"` // owner/name
	RegistersPath string `yaml:"registers_path" split_words:"true"`
	Branch        string `yaml:"branch"`
	APIURL        string `yaml:"api_url" split_words:"true"`
}

type SpecificationConfig struct {
	BaseURL string        `yaml:"base_url" split_words:"true"`
	Timeout time.Duration `yaml:"timeout"`
}

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Log           LogConfig           `yaml:"log"`
	Auth          AuthConfig          `yaml:"auth"`
	GitHub        GitHubConfig        `yaml:"github"`
	Specification SpecificationConfig `yaml:"specification"`
}

var AppConfig Config

// Default returns the settings used when neither file nor environment set them.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite3",
			Path:         "registers.db",
			MaxOpenConns: 25,
		},
		Log: LogConfig{Level: "info", Format: "text", Output: "stdout"},
		GitHub: GitHubConfig{
			RegistersPath: "data",
			Branch:        "main",
			APIURL:        "https://api.github.com",
		},
		Specification: SpecificationConfig{
			BaseURL: "https://raw.githubusercontent.com/digital-land",
			Timeout: 30 * time.Second,
		},
	}
}

// LoadConfig loads configuration into AppConfig.
func LoadConfig(configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	AppConfig = *cfg
	return nil
}

// Load reads .env, then the YAML file at configPath (optional when empty),
// then REGISTERS_* environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
		slog.Debug("Config: loaded file", "path", configPath)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" || c.Database.DBName == "" {
			errs = append(errs, errors.New("database.host and database.dbname are required for mysql"))
		}
	case "sqlite3":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}

	if c.Auth.Enabled {
		if len(c.Auth.SessionSecret) < 32 {
			errs = append(errs, errors.New("auth.session_secret must be at least 32 characters"))
		}
		if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
			errs = append(errs, errors.New("auth.client_id and auth.client_secret are required when auth is enabled"))
		}
	}

	if c.GitHub.Repo != "" && len(strings.Split(c.GitHub.Repo, "/")) != 2 {
		errs = append(errs, fmt.Errorf("github.repo %q must be owner/name", c.GitHub.Repo))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// DSN builds the driver data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite3" {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", d.Path)
	}
	// DSN: username:password@protocol(address)/dbname?param=value
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.DBName,
	)
}
