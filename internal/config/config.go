package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"prediction-amm/internal/amm"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	Redis    RedisConfig
	S3       S3Config
	Jobs     JobsConfig
	AMM      amm.Params
}

// DatabaseConfig holds database connection settings. DSN, when set, wins over
// the individual postgres fields.
type DatabaseConfig struct {
	Driver   string
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret   string
	FrontendURL string
}

// RedisConfig enables the cross-replica market lock and event bus when Addr
// is set.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	TLSEnabled bool
	LockTTL    time.Duration
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// S3Config enables settlement archiving when Bucket is set.
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
	Prefix         string
}

// Enabled reports whether the settlement archive is configured.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// JobsConfig holds background job settings
type JobsConfig struct {
	SnapshotInterval time.Duration
	// SettleInterval of 0 disables automatic settlement.
	SettleInterval time.Duration
}

type ammFile struct {
	AMM amm.Params `toml:"amm"`
}

// Load loads configuration from environment variables. AMM parameters start
// from amm.DefaultParams, are overlaid by the TOML file named in
// AMM_CONFIG_FILE and then by AMM_* variables.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			DSN:      getEnv("DB_DSN", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "prediction_amm"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ShutdownTimeout: 5 * time.Second,
		},
		App: AppConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			FrontendURL: getEnv("FRONTEND_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			PoolSize: 10,
			LockTTL:  30 * time.Second,
		},
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Bucket:    getEnv("S3_BUCKET", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			UseSSL:    true,
			Prefix:    getEnv("S3_PREFIX", "settlements"),
		},
		Jobs: JobsConfig{
			SnapshotInterval: time.Minute,
			SettleInterval:   5 * time.Minute,
		},
		AMM: amm.DefaultParams(),
	}

	var err error
	if config.Server.ShutdownTimeout, err = getDuration("SERVER_SHUTDOWN_TIMEOUT", config.Server.ShutdownTimeout); err != nil {
		return nil, err
	}
	if config.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if config.Redis.PoolSize, err = getInt("REDIS_POOL_SIZE", config.Redis.PoolSize); err != nil {
		return nil, err
	}
	if config.Redis.TLSEnabled, err = getBool("REDIS_TLS", false); err != nil {
		return nil, err
	}
	if config.Redis.LockTTL, err = getDuration("REDIS_LOCK_TTL", config.Redis.LockTTL); err != nil {
		return nil, err
	}
	if config.S3.UseSSL, err = getBool("S3_USE_SSL", config.S3.UseSSL); err != nil {
		return nil, err
	}
	if config.S3.ForcePathStyle, err = getBool("S3_FORCE_PATH_STYLE", false); err != nil {
		return nil, err
	}
	if config.Jobs.SnapshotInterval, err = getDuration("SNAPSHOT_INTERVAL", config.Jobs.SnapshotInterval); err != nil {
		return nil, err
	}
	if config.Jobs.SettleInterval, err = getDuration("SETTLE_INTERVAL", config.Jobs.SettleInterval); err != nil {
		return nil, err
	}

	if path := getEnv("AMM_CONFIG_FILE", ""); path != "" {
		if err := loadAMMFile(path, &config.AMM); err != nil {
			return nil, err
		}
	}
	if err := applyAMMOverrides(&config.AMM); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks required fields and the AMM parameter set.
func (c *Config) Validate() error {
	if c.App.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required for sqlite")
	}
	if c.Jobs.SnapshotInterval <= 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL must be positive")
	}
	if c.Jobs.SettleInterval < 0 {
		return fmt.Errorf("SETTLE_INTERVAL must not be negative")
	}
	if err := c.AMM.Validate(); err != nil {
		return fmt.Errorf("amm config: %w", err)
	}
	return nil
}

// GetDSN returns the database connection string
func (c *Config) GetDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func loadAMMFile(path string, params *amm.Params) error {
	file := ammFile{AMM: *params}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return fmt.Errorf("failed to read AMM config %s: %w", path, err)
	}
	*params = file.AMM
	return nil
}

func applyAMMOverrides(p *amm.Params) error {
	for key, dst := range map[string]*amm.Amount{
		"AMM_PRICE_CAP":                 &p.PriceCap,
		"AMM_MIN_PRICE":                 &p.MinPrice,
		"AMM_DEFAULT_VIRTUAL_LIQUIDITY": &p.DefaultVirtualLiquidity,
	} {
		if v := os.Getenv(key); v != "" {
			a, err := amm.ParseAmount(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = a
		}
	}
	var err error
	if p.ProtocolFeeBps, err = getUint("AMM_PROTOCOL_FEE_BPS", p.ProtocolFeeBps); err != nil {
		return err
	}
	if p.SellFeeBps, err = getUint("AMM_SELL_FEE_BPS", p.SellFeeBps); err != nil {
		return err
	}
	return nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getUint(key string, defaultValue uint64) (uint64, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
