package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	Session  SessionConfig
	Redis    RedisConfig
	Payer    PayerConfig
	Log      LogConfig
}

// DatabaseConfig holds database connection settings. Driver is "postgres"
// or "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret     string
	LoginMessage  string
	LoginNonceTTL time.Duration
}

// SessionConfig holds the session engine constants
type SessionConfig struct {
	Phase1Duration time.Duration
	Phase2Duration time.Duration
	NeutralStake   decimal.Decimal
	KeeperInterval time.Duration
	KeeperAddress  string
}

// RedisConfig enables the Redis event publisher when Addr is set
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PayerConfig selects how claims are settled. "ledger" only records them;
// "solana" also sends SOL from the server wallet.
type PayerConfig struct {
	Kind                   string
	SolanaNetwork          string
	ServerWalletPrivateKey string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Pretty bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	phase1, err := getDuration("PHASE1_DURATION", 4*time.Minute)
	if err != nil {
		return nil, err
	}
	phase2, err := getDuration("PHASE2_DURATION", time.Minute)
	if err != nil {
		return nil, err
	}
	keeperInterval, err := getDuration("SESSION_KEEPER_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	loginNonceTTL, err := getDuration("LOGIN_NONCE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	neutralStake, err := decimal.NewFromString(getEnv("NEUTRAL_STAKE", "1000000000000000"))
	if err != nil {
		return nil, fmt.Errorf("invalid NEUTRAL_STAKE: %w", err)
	}
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	config := &Config{
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "vibefi"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "vibefi.db"),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		App: AppConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			LoginMessage:  getEnv("LOGIN_MESSAGE", "Sign this message to authenticate with VibeFi"),
			LoginNonceTTL: loginNonceTTL,
		},
		Session: SessionConfig{
			Phase1Duration: phase1,
			Phase2Duration: phase2,
			NeutralStake:   neutralStake,
			KeeperInterval: keeperInterval,
			KeeperAddress:  getEnv("SESSION_KEEPER_ADDRESS", "keeper"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Payer: PayerConfig{
			Kind:                   strings.ToLower(getEnv("PAYER", "ledger")),
			SolanaNetwork:          getEnv("SOLANA_NETWORK", "devnet"),
			ServerWalletPrivateKey: getEnv("SERVER_WALLET_PRIVATE_KEY", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnv("LOG_PRETTY", "false") == "true",
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.App.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.Payer.Kind {
	case "ledger":
	case "solana":
		if c.Payer.ServerWalletPrivateKey == "" {
			return fmt.Errorf("SERVER_WALLET_PRIVATE_KEY is required when PAYER=solana")
		}
	default:
		return fmt.Errorf("PAYER must be ledger or solana, got %q", c.Payer.Kind)
	}
	if c.Session.Phase1Duration <= 0 || c.Session.Phase2Duration <= 0 {
		return fmt.Errorf("PHASE1_DURATION and PHASE2_DURATION must be positive")
	}
	if c.App.LoginNonceTTL <= 0 {
		return fmt.Errorf("LOGIN_NONCE_TTL must be positive")
	}
	if c.Session.KeeperInterval < 0 {
		return fmt.Errorf("SESSION_KEEPER_INTERVAL cannot be negative")
	}
	if !c.Session.NeutralStake.IsPositive() || !c.Session.NeutralStake.IsInteger() {
		return fmt.Errorf("NEUTRAL_STAKE must be a positive whole number of base units")
	}
	return nil
}

// GetDSN returns the connection string for the configured driver
func (c *Config) GetDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path
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

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
