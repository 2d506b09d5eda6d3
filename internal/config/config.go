package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	APIBaseURL string `yaml:"api_base_url"`
	FeedURL    string `yaml:"feed_url"`

	LedgerURL string `yaml:"ledger_url"`
	LedgerKey string `yaml:"ledger_key"`

	PlayerOne string `yaml:"player_one"`
	PlayerTwo string `yaml:"player_two"`

	AccessCode string `yaml:"access_code"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryMax       int           `yaml:"retry_max"`

	OfflineFallback bool `yaml:"offline_fallback"`
	StrictIntegrity bool `yaml:"strict_integrity"`

	MessagesDir  string `yaml:"messages_dir"`
	DevStoreAddr string `yaml:"devstore_addr"`
}

func defaults() *AppConfig {
	return &AppConfig{
		LedgerURL:      "file://data",
		LedgerKey:      "efb_history",
		PlayerOne:      "Shakthi",
		PlayerTwo:      "Shynu",
		AccessCode:     "FREE",
		RequestTimeout: 10 * time.Second,
		RetryMax:       3,
		DevStoreAddr:   ":3000",
	}
}

// Load reads the optional YAML file named by H2H_CONFIG, then applies env overrides.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("H2H_CONFIG")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if cfg.APIBaseURL == "" {
		return nil, errors.New("H2H_API_BASE_URL is required")
	}
	if cfg.PlayerOne == cfg.PlayerTwo {
		return nil, errors.New("H2H_PLAYER_ONE and H2H_PLAYER_TWO must differ")
	}
	return cfg, nil
}

// LoadDevStore is Load without the remote URL requirement, for the dev server.
func LoadDevStore() (*AppConfig, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("H2H_CONFIG")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *AppConfig) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	setString(&c.APIBaseURL, "H2H_API_BASE_URL")
	setString(&c.FeedURL, "H2H_FEED_URL")
	setString(&c.LedgerURL, "H2H_LEDGER_URL")
	setString(&c.LedgerKey, "H2H_LEDGER_KEY")
	setString(&c.PlayerOne, "H2H_PLAYER_ONE")
	setString(&c.PlayerTwo, "H2H_PLAYER_TWO")
	setString(&c.AccessCode, "H2H_ACCESS_CODE")
	setString(&c.MessagesDir, "H2H_MESSAGES_DIR")
	setString(&c.DevStoreAddr, "DEVSTORE_ADDR")

	if v := strings.TrimSpace(os.Getenv("H2H_REQUEST_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.RequestTimeout = d
		} else if n, err := strconv.Atoi(v); err == nil && n > 0 { // bare seconds
			c.RequestTimeout = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("H2H_RETRY_MAX")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RetryMax = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("H2H_OFFLINE_FALLBACK")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.OfflineFallback = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("H2H_STRICT_INTEGRITY")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.StrictIntegrity = b
		}
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
