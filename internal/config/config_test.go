package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("PRIVATE_KEY", "0xabc123")
	t.Setenv("CONTRACT_ADDRESS", "0x9157F94b5027B4943D8c03B303704fA9a9BB135f")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "abc123", cfg.PrivateKey)
	assert.Equal(t, "gemini-2.0-flash-exp-image-generation", cfg.GeminiImageModel)
	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiTextModel)
	assert.Equal(t, "https://base-sepolia-rpc.publicnode.com", cfg.StorageRPCURL)
	assert.Equal(t, "https://gateway.irys.xyz", cfg.IrysGatewayURL)
	assert.Equal(t, "base-eth", cfg.IrysToken)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.ReconcileMaxAttempts)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("IRYS_NODE_URL", "http://localhost:9000/")
	t.Setenv("PET_CACHE_TTL", "30s")
	t.Setenv("RECONCILE_MAX_ATTEMPTS", "2")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.IrysNodeURL)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 2, cfg.ReconcileMaxAttempts)
}

func TestLoadRequiresKeys(t *testing.T) {
	for _, key := range []string{"GEMINI_API_KEY", "PRIVATE_KEY", "CONTRACT_ADDRESS"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")

			_, err := Load(zerolog.Nop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}
