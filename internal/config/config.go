package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	JWT       JWTConfig       `yaml:"jwt"`
	Audit     AuditConfig     `yaml:"audit"`
	Redis     RedisConfig     `yaml:"redis"`
	Alloc     AllocConfig     `yaml:"alloc"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	Environment  string        `yaml:"environment"` // "development" or "production"
}

// StoreConfig selects and configures the store.Store backend (postgres|sqlite|memory).
type StoreConfig struct {
	Backend         string        `yaml:"backend"`
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	SQLitePath      string        `yaml:"sqlite_path"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// JWTConfig holds JWT token configuration
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

// RedisConfig holds Redis configuration for the optional fabric-membership cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	SQLiteDSN     string        `yaml:"sqlite_dsn"`   // SQLite database path for audit logs
	HashSecrets   string        `yaml:"hash_secrets"` // Comma-separated base64 secrets for hashing
	Async         bool          `yaml:"async"`        // Enable async audit buffering
	QueueSize     int           `yaml:"queue_size"`   // Async queue size
	WorkerCount   int           `yaml:"worker_count"` // Number of async workers
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// AllocConfig configures the allocation engine (internal/alloc.Config).
type AllocConfig struct {
	MacOUI       string `yaml:"mac_oui"`       // e.g. "90:b8:d0"
	MacRetries   int    `yaml:"mac_retries"`   // bounded random-MAC retry budget
	NetworksPath string `yaml:"networks_path"` // YAML file describing the static network/pool registry
}

// RateLimitConfig configures the per-actor token-bucket admission limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server:    loadServerConfig(),
		Store:     loadStoreConfig(),
		JWT:       loadJWTConfig(),
		Audit:     loadAuditConfig(),
		Redis:     loadRedisConfig(),
		Alloc:     loadAllocConfig(),
		RateLimit: loadRateLimitConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfigPath returns the default config file path (env override allowed).
func DefaultConfigPath() string {
	if val := strings.TrimSpace(os.Getenv("NAPI_CONFIG_PATH")); val != "" {
		return val
	}
	return "napi.yaml"
}

// LoadFromFileOrEnv loads configuration from a YAML file if it exists, then applies
// environment variable overrides. Falls back to Load() when the file is absent.
func LoadFromFileOrEnv(path string) (*Config, error) {
	fileCfg := Config{}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(content, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		applyEnvOverrides(&fileCfg)
		if err := fileCfg.Validate(); err != nil {
			return nil, err
		}
		return &fileCfg, nil
	}

	return Load()
}

// SaveToFile writes the given config to a YAML file at the provided path.
func SaveToFile(cfg *Config, path string) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Store.backendOrDefault() {
	case "postgres":
		if c.Store.Host == "" {
			return fmt.Errorf("STORE_HOST is required for postgres backend")
		}
		if c.Store.DBName == "" {
			return fmt.Errorf("STORE_DBNAME is required for postgres backend")
		}
		if c.Store.User == "" {
			return fmt.Errorf("STORE_USER is required for postgres backend")
		}
	case "sqlite":
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return fmt.Errorf("STORE_SQLITE_PATH is required for sqlite backend")
		}
	case "memory":
		// No required fields
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %s (expected postgres|sqlite|memory)", c.Store.Backend)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required (use a strong random key)")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	if c.Alloc.MacRetries <= 0 {
		return fmt.Errorf("MAC_RETRIES must be positive")
	}

	return nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:         getEnv("SERVER_HOST", "0.0.0.0"),
		Port:         getEnv("SERVER_PORT", "8080"),
		ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
		Environment:  getEnv("ENVIRONMENT", "development"),
	}
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:         strings.ToLower(getEnv("STORE_BACKEND", "memory")),
		Host:            getEnv("STORE_HOST", "localhost"),
		Port:            getEnv("STORE_PORT", "5432"),
		User:            getEnv("STORE_USER", "napi"),
		Password:        getEnv("STORE_PASSWORD", ""),
		DBName:          getEnv("STORE_DBNAME", "napi"),
		SSLMode:         getEnv("STORE_SSLMODE", "disable"),
		MaxOpenConns:    getIntEnv("STORE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getIntEnv("STORE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getDurationEnv("STORE_CONN_MAX_LIFETIME", 5*time.Minute),
		SQLitePath:      getEnv("STORE_SQLITE_PATH", "data/napi.db"),
		MigrationsPath:  getEnv("STORE_MIGRATIONS_PATH", "./migrations"),
	}
}

func loadJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:         getEnv("JWT_SECRET", ""),
		AccessTokenTTL: getDurationEnv("JWT_ACCESS_TTL", 15*time.Minute),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		SQLiteDSN:     getEnv("AUDIT_SQLITE_DSN", ""),
		HashSecrets:   getEnv("AUDIT_HASH_SECRETS_B64", ""),
		Async:         getBoolEnv("AUDIT_ASYNC", true),
		QueueSize:     getIntEnv("AUDIT_QUEUE_SIZE", 1024),
		WorkerCount:   getIntEnv("AUDIT_WORKER_COUNT", 1),
		FlushInterval: getDurationEnv("AUDIT_FLUSH_INTERVAL", 1*time.Second),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  getBoolEnv("REDIS_ENABLED", false),
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getIntEnv("REDIS_DB", 0),
	}
}

func loadAllocConfig() AllocConfig {
	return AllocConfig{
		MacOUI:       getEnv("MAC_OUI", "90:b8:d0"),
		MacRetries:   getIntEnv("MAC_RETRIES", 64),
		NetworksPath: getEnv("NETWORKS_PATH", "networks.yaml"),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: getFloatEnv("RATE_LIMIT_RPS", 20),
		Burst:             getIntEnv("RATE_LIMIT_BURST", 40),
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if fv, err := strconv.ParseFloat(value, 64); err == nil {
			return fv
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := lookupEnvNonEmpty("SERVER_HOST"); ok {
		cfg.Server.Host = v
	}
	if v, ok := lookupEnvNonEmpty("SERVER_PORT"); ok {
		cfg.Server.Port = v
	}
	if v, ok := lookupEnvNonEmpty("SERVER_READ_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v, ok := lookupEnvNonEmpty("SERVER_WRITE_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if v, ok := lookupEnvNonEmpty("SERVER_IDLE_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.IdleTimeout = d
		}
	}
	if v, ok := lookupEnvNonEmpty("ENVIRONMENT"); ok {
		cfg.Server.Environment = v
	}

	if v, ok := lookupEnvNonEmpty("STORE_BACKEND"); ok {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v, ok := lookupEnvNonEmpty("STORE_HOST"); ok {
		cfg.Store.Host = v
	}
	if v, ok := lookupEnvNonEmpty("STORE_PORT"); ok {
		cfg.Store.Port = v
	}
	if v, ok := lookupEnvNonEmpty("STORE_USER"); ok {
		cfg.Store.User = v
	}
	if v, ok := lookupEnvNonEmpty("STORE_PASSWORD"); ok {
		cfg.Store.Password = v
	}
	if v, ok := lookupEnvNonEmpty("STORE_DBNAME"); ok {
		cfg.Store.DBName = v
	}
	if v, ok := lookupEnvNonEmpty("STORE_SSLMODE"); ok {
		cfg.Store.SSLMode = v
	}
	if v, ok := lookupEnvNonEmpty("STORE_MAX_OPEN_CONNS"); ok {
		if iv, err := strconv.Atoi(v); err == nil {
			cfg.Store.MaxOpenConns = iv
		}
	}
	if v, ok := lookupEnvNonEmpty("STORE_MAX_IDLE_CONNS"); ok {
		if iv, err := strconv.Atoi(v); err == nil {
			cfg.Store.MaxIdleConns = iv
		}
	}
	if v, ok := lookupEnvNonEmpty("STORE_CONN_MAX_LIFETIME"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.ConnMaxLifetime = d
		}
	}
	if v, ok := lookupEnvNonEmpty("STORE_SQLITE_PATH"); ok {
		cfg.Store.SQLitePath = v
	}
	if v, ok := lookupEnvNonEmpty("STORE_MIGRATIONS_PATH"); ok {
		cfg.Store.MigrationsPath = v
	}

	if v, ok := lookupEnvNonEmpty("JWT_SECRET"); ok {
		cfg.JWT.Secret = v
	}
	if v, ok := lookupEnvNonEmpty("JWT_ACCESS_TTL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.JWT.AccessTokenTTL = d
		}
	}

	if v, ok := lookupEnvNonEmpty("AUDIT_SQLITE_DSN"); ok {
		cfg.Audit.SQLiteDSN = v
	}
	if v, ok := lookupEnvNonEmpty("AUDIT_HASH_SECRETS_B64"); ok {
		cfg.Audit.HashSecrets = v
	}
	if v, ok := lookupEnvNonEmpty("AUDIT_ASYNC"); ok {
		cfg.Audit.Async = strings.ToLower(v) == "true"
	}
	if v, ok := lookupEnvNonEmpty("AUDIT_QUEUE_SIZE"); ok {
		if iv, err := strconv.Atoi(v); err == nil {
			cfg.Audit.QueueSize = iv
		}
	}
	if v, ok := lookupEnvNonEmpty("AUDIT_WORKER_COUNT"); ok {
		if iv, err := strconv.Atoi(v); err == nil {
			cfg.Audit.WorkerCount = iv
		}
	}
	if v, ok := lookupEnvNonEmpty("AUDIT_FLUSH_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Audit.FlushInterval = d
		}
	}

	if v, ok := lookupEnvNonEmpty("REDIS_ENABLED"); ok {
		cfg.Redis.Enabled = strings.ToLower(v) == "true"
	}
	if v, ok := lookupEnvNonEmpty("REDIS_HOST"); ok {
		cfg.Redis.Host = v
	}
	if v, ok := lookupEnvNonEmpty("REDIS_PORT"); ok {
		cfg.Redis.Port = v
	}
	if v, ok := lookupEnvNonEmpty("REDIS_PASSWORD"); ok {
		cfg.Redis.Password = v
	}
	if v, ok := lookupEnvNonEmpty("REDIS_DB"); ok {
		if iv, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = iv
		}
	}

	if v, ok := lookupEnvNonEmpty("MAC_OUI"); ok {
		cfg.Alloc.MacOUI = v
	}
	if v, ok := lookupEnvNonEmpty("MAC_RETRIES"); ok {
		if iv, err := strconv.Atoi(v); err == nil {
			cfg.Alloc.MacRetries = iv
		}
	}
	if v, ok := lookupEnvNonEmpty("NETWORKS_PATH"); ok {
		cfg.Alloc.NetworksPath = v
	}

	if v, ok := lookupEnvNonEmpty("RATE_LIMIT_RPS"); ok {
		if fv, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.RequestsPerSecond = fv
		}
	}
	if v, ok := lookupEnvNonEmpty("RATE_LIMIT_BURST"); ok {
		if iv, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Burst = iv
		}
	}
}

func lookupEnvNonEmpty(key string) (string, bool) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

// Address returns the full server address
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// IsDevelopment returns true if environment is development
func (s ServerConfig) IsDevelopment() bool {
	return s.Environment == "development"
}

// IsProduction returns true if environment is production
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// ConnectionString generates the PostgreSQL connection string
func (d StoreConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// backendOrDefault normalizes backend selection with a safe default
func (d StoreConfig) backendOrDefault() string {
	if d.Backend == "" {
		return "memory"
	}
	return strings.ToLower(d.Backend)
}
