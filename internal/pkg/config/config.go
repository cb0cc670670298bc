package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`

	Chain  ChainConfig
	Verify VerifyConfig
	Sweep  SweepConfig
	Bridge BridgeConfig
	Mongo  MongoConfig
	Redis  RedisConfig
}

type ChainConfig struct {
	RPCURL         string        `env:"RPC_URL,          default=http://localhost:8899"`
	TreasuryWallet string        `env:"TREASURY_WALLET"`
	TokenMint      string        `env:"TOKEN_MINT"`
	SupplyCacheTTL time.Duration `env:"SUPPLY_CACHE_TTL, default=5m"`
}

type VerifyConfig struct {
	ChallengeMinAmount float64       `env:"CHALLENGE_MIN_AMOUNT, default=0.000001"`
	ChallengeMaxAmount float64       `env:"CHALLENGE_MAX_AMOUNT, default=0.00001"`
	ChallengeWindow    time.Duration `env:"CHALLENGE_WINDOW,     default=30m"`
	RequiredFraction   float64       `env:"REQUIRED_FRACTION,    default=0.001"`
	SignatureScanLimit int           `env:"SIGNATURE_SCAN_LIMIT, default=25"`
}

type SweepConfig struct {
	Interval time.Duration `env:"SWEEP_INTERVAL, default=1h"`
	Workers  int           `env:"SWEEP_WORKERS,  default=4"`
	GroupID  string        `env:"SWEEP_GROUP_ID"`
}

type BridgeConfig struct {
	URL string `env:"BRIDGE_URL"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=gatekeeper"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}

// Validate rejects configurations the engine cannot run with. Called once at
// bootstrap so misconfiguration fails loudly instead of surfacing mid-request.
func (c *Config) Validate() error {
	if c.Chain.TreasuryWallet == "" {
		return fmt.Errorf("config: TREASURY_WALLET is required")
	}
	if c.Chain.TokenMint == "" {
		return fmt.Errorf("config: TOKEN_MINT is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.Verify.ChallengeMinAmount <= 0 {
		return fmt.Errorf("config: CHALLENGE_MIN_AMOUNT must be positive")
	}
	if c.Verify.ChallengeMaxAmount < c.Verify.ChallengeMinAmount {
		return fmt.Errorf("config: CHALLENGE_MAX_AMOUNT must be >= CHALLENGE_MIN_AMOUNT")
	}
	if c.Verify.RequiredFraction <= 0 || c.Verify.RequiredFraction > 1 {
		return fmt.Errorf("config: REQUIRED_FRACTION must be in (0, 1]")
	}
	if c.Sweep.Workers <= 0 {
		return fmt.Errorf("config: SWEEP_WORKERS must be positive")
	}
	return nil
}
