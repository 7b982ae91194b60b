package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNetworksLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{"31337":{"nft":{"address":"0x5FbDB2315678afecb367f032d93F642f64180aa3"}}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	networks, err := LoadNetworks(path)
	require.NoError(t, err)

	addr, ok := networks.Lookup(31337, "nft")
	assert.True(t, ok)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", addr)

	_, ok = networks.Lookup(1, "nft")
	assert.False(t, ok, "chain missing from mapping")

	_, ok = networks.Lookup(31337, "market")
	assert.False(t, ok, "contract missing from network")
}

func TestLoadNetworksRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := LoadNetworks(path)
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := FromEnv()
		assert.Equal(t, "ipfs.io", cfg.Storage.Gateway)
		assert.Equal(t, "nft", cfg.Chain.ContractName)
		assert.Equal(t, 2*time.Minute, cfg.Timeouts.Generate)
		assert.Empty(t, cfg.Chain.MintPrice)
		assert.Empty(t, cfg.Service.AllowedOrigins, "no cross-origin access unless configured")
	})

	t.Run("secrets and overrides come from the environment", func(t *testing.T) {
		t.Setenv("NFT_STORAGE_API_KEY", "storage-key")
		t.Setenv("HUGGING_FACE_API_KEY", "hf-key")
		t.Setenv("MINT_TIMEOUT", "45s")
		t.Setenv("MINT_PRICE", "0.05")
		t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, https://app.example")

		cfg := FromEnv()
		assert.Equal(t, "storage-key", cfg.Storage.APIKey)
		assert.Equal(t, "hf-key", cfg.Inference.APIKey)
		assert.Equal(t, 45*time.Second, cfg.Timeouts.Mint)
		assert.Equal(t, "0.05", cfg.Chain.MintPrice)
		assert.Equal(t, []string{"http://localhost:3000", "https://app.example"}, cfg.Service.AllowedOrigins)
	})

	t.Run("unparsable values fall back", func(t *testing.T) {
		t.Setenv("UPLOAD_TIMEOUT", "soon")
		t.Setenv("API_HTTP_PORT", "http")

		cfg := FromEnv()
		assert.Equal(t, time.Minute, cfg.Timeouts.Upload)
		assert.Equal(t, 3000, cfg.Service.HTTPPort)
	})
}
