// Package config provides unified configuration for the Learner Information System.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the unified configuration for the service and the CLI.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// SchoolsFile is the object key of the school registry
	SchoolsFile string `json:"schools_file" yaml:"schools_file"`

	// UsersFile is the object key of the account store
	UsersFile string `json:"users_file" yaml:"users_file"`

	// EnrollmentPrefix is the per-year file name prefix (data_<year>.csv)
	EnrollmentPrefix string `json:"enrollment_prefix" yaml:"enrollment_prefix"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Catalog configuration
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	// Dashboard configuration
	Dashboard DashboardConfig `json:"dashboard" yaml:"dashboard"`

	// Auth configuration
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Snapshots configuration
	Snapshots SnapshotConfig `json:"snapshots" yaml:"snapshots"`

	// ShutdownTimeout bounds graceful shutdown of the server
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SnapshotConfig controls the copies kept of replaced enrollment files.
type SnapshotConfig struct {
	// Prefix is the object key prefix for snapshots
	Prefix string `json:"prefix" yaml:"prefix"`

	// Keep is the number of snapshots retained per year; 0 keeps all
	Keep int `json:"keep" yaml:"keep"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// MaxUploadMB caps the size of a bulk upload body
	MaxUploadMB int `json:"max_upload_mb" yaml:"max_upload_mb"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (MinIO and friends)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// CatalogConfig holds the file-version catalog configuration.
type CatalogConfig struct {
	// Enabled controls whether writes are recorded in the catalog
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the SQLite database path
	Path string `json:"path" yaml:"path"`
}

// DashboardConfig holds aggregation tuning knobs.
type DashboardConfig struct {
	// RegionOrderThreshold is the distinct-region count above which
	// regional totals use the canonical geographic order
	RegionOrderThreshold int `json:"region_order_threshold" yaml:"region_order_threshold"`

	// LeaderboardSize is the number of divisions kept in the leaderboard
	LeaderboardSize int `json:"leaderboard_size" yaml:"leaderboard_size"`

	// TrendWindow is the number of years on either side of the selected year
	TrendWindow int `json:"trend_window" yaml:"trend_window"`

	// LoadConcurrency bounds parallel per-year loads
	LoadConcurrency int `json:"load_concurrency" yaml:"load_concurrency"`

	// CacheEntries bounds the parsed-dataset cache
	CacheEntries int `json:"cache_entries" yaml:"cache_entries"`

	// StatsWindow is how long an unused filter stays in the usage stats
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`
}

// AuthConfig holds account and token configuration.
type AuthConfig struct {
	// Enabled requires a bearer token on write endpoints
	Enabled bool `json:"enabled" yaml:"enabled"`

	// JWTSecret signs session tokens
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`

	// TokenTTL is the lifetime of an issued token
	TokenTTL time.Duration `json:"token_ttl" yaml:"token_ttl"`

	// BcryptCost is the password hashing cost
	BcryptCost int `json:"bcrypt_cost" yaml:"bcrypt_cost"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir:          "./data/lis",
		SchoolsFile:      "schools.csv",
		UsersFile:        "users.csv",
		EnrollmentPrefix: "data_",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
			MaxUploadMB:  32,
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
		Catalog: CatalogConfig{
			Enabled: true,
		},
		Dashboard: DashboardConfig{
			RegionOrderThreshold: 10,
			LeaderboardSize:      15,
			TrendWindow:          2,
			LoadConcurrency:      4,
			CacheEntries:         16,
			StatsWindow:          24 * time.Hour,
		},
		Auth: AuthConfig{
			Enabled:    false,
			TokenTTL:   12 * time.Hour,
			BcryptCost: 10,
		},
		Snapshots: SnapshotConfig{
			Prefix: "snapshots",
			Keep:   5,
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/lis"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = c.DataDir
	}

	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.DataDir, "catalog.db")
	}

	if c.SchoolsFile == "" {
		c.SchoolsFile = "schools.csv"
	}
	if c.UsersFile == "" {
		c.UsersFile = "users.csv"
	}
	if c.EnrollmentPrefix == "" {
		c.EnrollmentPrefix = "data_"
	}
	if c.Snapshots.Prefix == "" {
		c.Snapshots.Prefix = "snapshots"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	d := c.Dashboard
	if d.RegionOrderThreshold < 0 {
		return fmt.Errorf("dashboard.region_order_threshold must be >= 0, got %d", d.RegionOrderThreshold)
	}
	if d.LeaderboardSize < 1 {
		return fmt.Errorf("dashboard.leaderboard_size must be >= 1, got %d", d.LeaderboardSize)
	}
	if d.TrendWindow < 0 {
		return fmt.Errorf("dashboard.trend_window must be >= 0, got %d", d.TrendWindow)
	}
	if d.LoadConcurrency < 1 {
		return fmt.Errorf("dashboard.load_concurrency must be >= 1, got %d", d.LoadConcurrency)
	}
	if d.CacheEntries < 0 {
		return fmt.Errorf("dashboard.cache_entries must be >= 0, got %d", d.CacheEntries)
	}
	if d.StatsWindow <= 0 {
		return fmt.Errorf("dashboard.stats_window must be positive, got %s", d.StatsWindow)
	}

	if c.Snapshots.Keep < 0 {
		return fmt.Errorf("snapshots.keep must be >= 0, got %d", c.Snapshots.Keep)
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding ones that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the LIS_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("LIS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LIS_SCHOOLS_FILE"); v != "" {
		cfg.SchoolsFile = v
	}
	if v := os.Getenv("LIS_USERS_FILE"); v != "" {
		cfg.UsersFile = v
	}

	// HTTP configuration
	if v := os.Getenv("LIS_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// Storage configuration
	if v := os.Getenv("LIS_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("LIS_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("LIS_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("LIS_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("LIS_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("LIS_S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = parseBool(v)
	}

	// Catalog configuration
	if v := os.Getenv("LIS_CATALOG_ENABLED"); v != "" {
		cfg.Catalog.Enabled = parseBool(v)
	}
	if v := os.Getenv("LIS_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}

	// Dashboard configuration
	if v := os.Getenv("LIS_REGION_ORDER_THRESHOLD"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Dashboard.RegionOrderThreshold)
	}
	if v := os.Getenv("LIS_LEADERBOARD_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Dashboard.LeaderboardSize)
	}
	if v := os.Getenv("LIS_TREND_WINDOW"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Dashboard.TrendWindow)
	}
	if v := os.Getenv("LIS_LOAD_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Dashboard.LoadConcurrency)
	}
	if v := os.Getenv("LIS_STATS_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dashboard.StatsWindow = d
		}
	}

	// Snapshot configuration
	if v := os.Getenv("LIS_SNAPSHOT_KEEP"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Snapshots.Keep)
	}

	// Auth configuration
	if v := os.Getenv("LIS_AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = parseBool(v)
	}
	if v := os.Getenv("LIS_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("LIS_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	if c.Catalog.Enabled {
		dirs = append(dirs, filepath.Dir(c.Catalog.Path))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
