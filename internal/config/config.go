package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ContractConfig is one deployed contract entry.
type ContractConfig struct {
	Address string `json:"address"`
}

// NetworkConfig lists the contracts deployed on one chain, keyed by contract name.
type NetworkConfig map[string]ContractConfig

// Networks models config.json: {chainId → {contractName: {address}}}.
type Networks map[string]NetworkConfig

// Lookup returns the address of the named contract on the given chain.
func (n Networks) Lookup(chainID int64, contract string) (string, bool) {
	network, ok := n[strconv.FormatInt(chainID, 10)]
	if !ok {
		return "", false
	}
	c, ok := network[contract]
	if !ok || c.Address == "" {
		return "", false
	}
	return c.Address, true
}

// AppConfig ties together the network mapping and the environment.
type AppConfig struct {
	Networks  Networks
	Service   ServiceConfig
	Chain     ChainConfig
	Inference InferenceConfig
	Storage   StorageConfig
	Timeouts  TimeoutConfig
	Retry     RetryConfig
}

type ServiceConfig struct {
	HTTPPort             int
	APISecret            string
	HMACClockSkew        time.Duration
	IdempotencyWindow    time.Duration
	IdempotencyStorePath string
	DatabaseURL          string
	FailedDir            string
	AllowedOrigins       []string
}

type ChainConfig struct {
	RPCURL       string
	ContractName string
	PrivateKey   string
	KeystorePath string
	KeystorePass string
	SignerURL    string
	SignerAcct   string
	// MintPrice is a decimal ether amount; empty means read cost() from the contract.
	MintPrice string
}

type InferenceConfig struct {
	Provider    string
	Endpoint    string
	APIKey      string
	GeminiKey   string
	GeminiModel string
}

type StorageConfig struct {
	Endpoint string
	APIKey   string
	Gateway  string
}

type TimeoutConfig struct {
	Generate   time.Duration
	Upload     time.Duration
	Mint       time.Duration
	Submission time.Duration
}

type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier int
}

const (
	defaultNetworksPath      = "config.json"
	defaultInferenceEndpoint = "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-2"
	defaultStorageEndpoint   = "https://api.nft.storage"
	defaultGateway           = "ipfs.io"
	defaultGeminiModel       = "gemini-2.0-flash-preview-image-generation"
)

// Load aggregates configuration from disk and environment.
func Load() (*AppConfig, error) {
	networksPath := envOr("NETWORKS_PATH", defaultNetworksPath)

	networks, err := LoadNetworks(networksPath)
	if err != nil {
		return nil, fmt.Errorf("load networks: %w", err)
	}

	cfg := FromEnv()
	cfg.Networks = networks
	return cfg, nil
}

// FromEnv builds everything except the network mapping.
func FromEnv() *AppConfig {
	return &AppConfig{
		Service: ServiceConfig{
			HTTPPort:             envOrInt("API_HTTP_PORT", 3000),
			APISecret:            envOr("API_HMAC_SECRET", ""),
			HMACClockSkew:        time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
			IdempotencyWindow:    envOrDuration("IDEMPOTENCY_WINDOW", 24*time.Hour),
			IdempotencyStorePath: envOr("IDEMPOTENCY_STORE_PATH", filepath.Join(os.TempDir(), "nftcreator-idem.json")),
			DatabaseURL:          envOr("DATABASE_URL", ""),
			FailedDir:            envOr("FAILED_SUBMISSIONS_DIR", ""),
			AllowedOrigins:       envOrList("CORS_ALLOWED_ORIGINS", nil),
		},
		Chain: ChainConfig{
			RPCURL:       envOr("CHAIN_RPC_URL", ""),
			ContractName: envOr("CONTRACT_NAME", "nft"),
			PrivateKey:   envOr("CHAIN_PRIVATE_KEY", ""),
			KeystorePath: envOr("KEYSTORE_PATH", ""),
			KeystorePass: envOr("KEYSTORE_PASSPHRASE", ""),
			SignerURL:    envOr("CLEF_URL", ""),
			SignerAcct:   envOr("CLEF_ACCOUNT", ""),
			MintPrice:    envOr("MINT_PRICE", ""),
		},
		Inference: InferenceConfig{
			Provider:    envOr("INFERENCE_PROVIDER", "huggingface"),
			Endpoint:    envOr("INFERENCE_ENDPOINT", defaultInferenceEndpoint),
			APIKey:      envOr("HUGGING_FACE_API_KEY", ""),
			GeminiKey:   envOr("GEMINI_API_KEY", ""),
			GeminiModel: envOr("GEMINI_MODEL", defaultGeminiModel),
		},
		Storage: StorageConfig{
			Endpoint: envOr("NFT_STORAGE_ENDPOINT", defaultStorageEndpoint),
			APIKey:   envOr("NFT_STORAGE_API_KEY", ""),
			Gateway:  envOr("IPFS_GATEWAY", defaultGateway),
		},
		Timeouts: TimeoutConfig{
			Generate:   envOrDuration("GENERATE_TIMEOUT", 2*time.Minute),
			Upload:     envOrDuration("UPLOAD_TIMEOUT", time.Minute),
			Mint:       envOrDuration("MINT_TIMEOUT", 3*time.Minute),
			Submission: envOrDuration("SUBMISSION_TIMEOUT", 10*time.Minute),
		},
		Retry: RetryConfig{
			MaxAttempts:       envOrInt("GENERATE_MAX_ATTEMPTS", 3),
			InitialBackoff:    envOrDuration("GENERATE_INITIAL_BACKOFF", time.Second),
			MaxBackoff:        envOrDuration("GENERATE_MAX_BACKOFF", 10*time.Second),
			BackoffMultiplier: envOrInt("GENERATE_BACKOFF_MULTIPLIER", 2),
		},
	}
}

// LoadNetworks reads the chain id → contract mapping.
func LoadNetworks(path string) (Networks, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var networks Networks
	if err := json.Unmarshal(raw, &networks); err != nil {
		return nil, err
	}
	return networks, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func envOrList(key string, fallback []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
