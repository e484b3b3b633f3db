package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supplier keys, in registration order. The first supplier that finds a part wins.
const (
	SupplierDigikey = "digikey"
	SupplierMouser  = "mouser"
)

// Part natural-key strategies used by the identity resolver.
const (
	PartKeyName         = "name"
	PartKeyIPN          = "ipn"
	PartKeyNameCategory = "name_category"
)

var (
	ErrInvenTreeMissing = errors.New("config: InvenTree configuration is required (INVENTREE_SERVER_URL and INVENTREE_TOKEN)")
	ErrNoSupplier       = errors.New("config: at least one supplier API must be configured (Digikey or Mouser)")
	ErrInvalidPartKey   = errors.New("config: PART_KEY must be one of name, ipn, name_category")
)

// Config holds the application's configuration values.
// Tags like `envconfig:"INVENTREE_TOKEN"` name the environment variable.
type Config struct {
	AppEnv    string `envconfig:"APP_ENV" default:"development"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`     // debug, info, warn, error
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"` // console or json
	LogOutput string `envconfig:"LOG_OUTPUT"`
	PartKey   string `envconfig:"PART_KEY" default:"name"`
	ImageDir  string `envconfig:"IMAGE_CACHE_DIR"`
	BomDir    string `envconfig:"BOM_DIR"` // local BOM files the HTTP API may read

	InvenTree  InvenTreeConfig
	Digikey    DigikeyConfig
	Mouser     MouserConfig
	HttpServer ServerConfig
	GrpcServer GrpcServerConfig
	Postgres   PostgresConfig
	S3         S3Config
}

// InvenTreeConfig holds the downstream inventory server settings.
type InvenTreeConfig struct {
	ServerURL string        `envconfig:"INVENTREE_SERVER_URL"`
	Token     string        `envconfig:"INVENTREE_TOKEN"`
	Timeout   time.Duration `envconfig:"INVENTREE_TIMEOUT" default:"30s"`
}

// Configured reports whether both URL and token are set.
func (c InvenTreeConfig) Configured() bool {
	return c.ServerURL != "" && c.Token != ""
}

// DigikeyConfig holds the Digikey product information API credentials.
type DigikeyConfig struct {
	ClientID       string        `envconfig:"DIGIKEY_CLIENT_ID"`
	ClientSecret   string        `envconfig:"DIGIKEY_CLIENT_SECRET"`
	Sandbox        bool          `envconfig:"DIGIKEY_CLIENT_SANDBOX" default:"false"`
	LocaleSite     string        `envconfig:"DIGIKEY_LOCALE_SITE" default:"US"`
	LocaleLanguage string        `envconfig:"DIGIKEY_LOCALE_LANGUAGE" default:"en"`
	LocaleCurrency string        `envconfig:"DIGIKEY_LOCALE_CURRENCY" default:"USD"`
	Timeout        time.Duration `envconfig:"DIGIKEY_TIMEOUT" default:"30s"`
	BaseURL        string        `envconfig:"DIGIKEY_BASE_URL"` // overrides the production/sandbox host
}

// Configured reports whether Digikey credentials are present.
func (c DigikeyConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// MouserConfig holds the Mouser search API key.
type MouserConfig struct {
	PartAPIKey string        `envconfig:"MOUSER_PART_API_KEY"`
	Timeout    time.Duration `envconfig:"MOUSER_TIMEOUT" default:"30s"`
	BaseURL    string        `envconfig:"MOUSER_BASE_URL" default:"https://api.mouser.com/api/v1"`
}

// Configured reports whether the Mouser API key is present.
func (c MouserConfig) Configured() bool {
	return c.PartAPIKey != ""
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"0s"` // resync streams for a long time
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
}

// GrpcServerConfig holds gRPC server-specific configurations.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// PostgresConfig holds the optional sync history database connection details.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     string `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	DBName   string `envconfig:"POSTGRES_DBNAME" default:"synctree"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

// Enabled reports whether sync history should be recorded.
func (pc *PostgresConfig) Enabled() bool {
	return pc.Host != ""
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// S3Config configures reading BOM files from s3:// sources.
type S3Config struct {
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	Endpoint        string `envconfig:"S3_ENDPOINT"` // MinIO or other S3-compatible endpoint
	AccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is fine: variables may come from the real environment.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to process configuration: %w", err)
	}
	if cfg.ImageDir == "" {
		cfg.ImageDir = defaultImageDir()
	}
	cfg.PartKey = strings.ToLower(strings.TrimSpace(cfg.PartKey))
	return &cfg, nil
}

// Validate checks that the configuration is usable for syncing.
func (c *Config) Validate() error {
	if !c.InvenTree.Configured() {
		return ErrInvenTreeMissing
	}
	if !c.Digikey.Configured() && !c.Mouser.Configured() {
		return ErrNoSupplier
	}
	switch c.PartKey {
	case PartKeyName, PartKeyIPN, PartKeyNameCategory:
	default:
		return ErrInvalidPartKey
	}
	return nil
}

// Suppliers returns the configured supplier keys in registration order.
func (c *Config) Suppliers() []string {
	var out []string
	if c.Digikey.Configured() {
		out = append(out, SupplierDigikey)
	}
	if c.Mouser.Configured() {
		out = append(out, SupplierMouser)
	}
	return out
}

// IsKnownSupplier reports whether name is a supplier synctree has an adapter for.
func IsKnownSupplier(name string) bool {
	switch strings.ToLower(name) {
	case SupplierDigikey, SupplierMouser:
		return true
	}
	return false
}

func defaultImageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "synctree", "cache")
	}
	return filepath.Join(home, ".synctree", "cache")
}
