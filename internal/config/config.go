package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	GeminiAPIKey     string
	GeminiImageModel string
	GeminiTextModel  string

	PrivateKey      string
	ContractAddress string
	ChainRPCURL     string

	StorageRPCURL  string
	IrysNodeURL    string
	IrysToken      string
	IrysGatewayURL string
	IPFSGatewayURL string
	UploadDir      string
	FundAmount     string

	DBPath     string
	ServerPort string
	LogLevel   string
	CacheTTL   time.Duration

	ReconcileSchedule    string
	ReconcileMaxAttempts int
	CacheSyncSchedule    string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiImageModel:     getEnv("GEMINI_IMAGE_MODEL", "gemini-2.0-flash-exp-image-generation"),
		GeminiTextModel:      getEnv("GEMINI_TEXT_MODEL", "gemini-2.0-flash"),
		PrivateKey:           strings.TrimPrefix(getEnv("PRIVATE_KEY", ""), "0x"),
		ContractAddress:      getEnv("CONTRACT_ADDRESS", ""),
		ChainRPCURL:          getEnv("CHAIN_RPC_URL", "https://testnet.evm.nodes.onflow.org"),
		StorageRPCURL:        getEnv("STORAGE_RPC_URL", "https://base-sepolia-rpc.publicnode.com"),
		IrysNodeURL:          strings.TrimRight(getEnv("IRYS_NODE_URL", "https://devnet.irys.xyz"), "/"),
		IrysToken:            getEnv("IRYS_TOKEN", "base-eth"),
		IrysGatewayURL:       strings.TrimRight(getEnv("IRYS_GATEWAY_URL", "https://gateway.irys.xyz"), "/"),
		IPFSGatewayURL:       getEnv("IPFS_GATEWAY_URL", "https://ipfs.io/ipfs/"),
		UploadDir:            getEnv("UPLOAD_DIR", os.TempDir()),
		FundAmount:           getEnv("FUND_AMOUNT", "0.0008"),
		DBPath:               getEnv("DB_PATH", "pets.db"),
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		CacheTTL:             getDuration("PET_CACHE_TTL", 5*time.Minute),
		ReconcileSchedule:    getEnv("RECONCILE_SCHEDULE", "@every 5m"),
		ReconcileMaxAttempts: getInt("RECONCILE_MAX_ATTEMPTS", 5),
		CacheSyncSchedule:    getEnv("CACHE_SYNC_SCHEDULE", "@every 1m"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("chain_rpc", cfg.ChainRPCURL).
		Str("irys_node", cfg.IrysNodeURL).
		Str("contract", cfg.ContractAddress).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("configuration loaded")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("CONTRACT_ADDRESS is required")
	}
	if c.ReconcileMaxAttempts < 1 {
		return fmt.Errorf("RECONCILE_MAX_ATTEMPTS must be positive, got %d", c.ReconcileMaxAttempts)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
