package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	defaultRPCURL      = "http://127.0.0.1:8545"
	defaultConcurrency = 4
	defaultMaxDepth    = 4
	defaultTimeoutSecs = 120

	configFile = "config.json"
)

// Config holds all slotfinder configuration.
type Config struct {
	// RPCURL is the simulation backend (a forked node) every search runs
	// against. The RPC_URL_FORK env var overrides the persisted value.
	RPCURL string `json:"rpc_url"`
	// Holders are preferred search accounts, tried in order; an account
	// with a non-zero token balance wins.
	Holders []string `json:"holders,omitempty"`
	// Spender is the allowance-role spender account.
	Spender string `json:"spender,omitempty"`
	// Concurrency bounds parallel token searches in batch mode.
	Concurrency int `json:"concurrency"`
	// MaxDepth bounds proxy traversal per role.
	MaxDepth int `json:"max_depth"`
	// TimeoutSecs is the overall per-token search deadline.
	TimeoutSecs int `json:"timeout_secs"`

	// internal: config dir path used for Save()
	configDir string
}

// Load reads config from dir (or creates defaults). dir defaults to
// ~/.slotfinder.
func Load(dir string) (*Config, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".slotfinder")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	cfg := defaults(dir)

	path := filepath.Join(dir, configFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.configDir = dir
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = defaultTimeoutSecs
	}
	cfg.applyEnv()

	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.configDir, configFile), data, 0o600)
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

func (c *Config) applyEnv() {
	if url := os.Getenv("RPC_URL_FORK"); url != "" {
		c.RPCURL = url
	}
}

func defaults(dir string) *Config {
	return &Config{
		RPCURL:      defaultRPCURL,
		Concurrency: defaultConcurrency,
		MaxDepth:    defaultMaxDepth,
		TimeoutSecs: defaultTimeoutSecs,
		configDir:   dir,
	}
}
