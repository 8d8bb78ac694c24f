package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string   `mapstructure:"PORT"`
	Env                 string   `mapstructure:"ENV"`
	NodeID              string   `mapstructure:"NODE_ID"`
	Difficulty          int      `mapstructure:"DIFFICULTY"`
	MiningReward        float64  `mapstructure:"MINING_REWARD"`
	DatabaseURL         string   `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32    `mapstructure:"DB_MIN_CONNS"`
	AuthSecret          string   `mapstructure:"AUTH_SECRET"`
	CORSOrigins         []string `mapstructure:"CORS_ORIGINS"`
	LedgerEncryptionKey string   `mapstructure:"LEDGER_ENCRYPTION_KEY"`
	PeerTimeoutSeconds  int      `mapstructure:"PEER_TIMEOUT_SECONDS"`
	RateLimitRPS        float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DIFFICULTY", 4)
	v.SetDefault("MINING_REWARD", 1)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("PEER_TIMEOUT_SECONDS", 3)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("NODE_ID")
	v.BindEnv("DIFFICULTY")
	v.BindEnv("MINING_REWARD")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("LEDGER_ENCRYPTION_KEY")
	v.BindEnv("PEER_TIMEOUT_SECONDS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Node is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production, AUTH_SECRET and LEDGER_ENCRYPTION_KEY.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the node is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production
// AUTH_SECRET and LEDGER_ENCRYPTION_KEY are required; the encryption key,
// when set, must be a valid 64-character hex string (32 bytes decoded).
func (c *Config) Validate() error {
	if c.Difficulty < 1 || c.Difficulty > 16 {
		return fmt.Errorf("DIFFICULTY must be between 1 and 16, got %d", c.Difficulty)
	}
	if c.MiningReward < 0 {
		return fmt.Errorf("MINING_REWARD must not be negative, got %v", c.MiningReward)
	}
	if c.PeerTimeoutSeconds < 1 {
		return fmt.Errorf("PEER_TIMEOUT_SECONDS must be at least 1, got %d", c.PeerTimeoutSeconds)
	}

	if c.IsProduction() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required in production. " +
			"Refusing to start without authentication configuration")
	}

	if c.IsProduction() && c.LedgerEncryptionKey == "" {
		return fmt.Errorf("LEDGER_ENCRYPTION_KEY is required in production")
	}
	if c.LedgerEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.LedgerEncryptionKey)
		if err != nil {
			return fmt.Errorf("LEDGER_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("LEDGER_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	return nil
}
