package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Trust policies for server-trust challenges
const (
	TrustSystem    = "system"
	TrustAcceptAll = "accept-all"
)

// Storage drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Remote       RemoteConfig
	Launch       LaunchConfig
	Browser      BrowserConfig
	Storage      StorageConfig
	Connectivity ConnectivityConfig
	Bridge       BridgeConfig
	Logging      LogConfig
}

// RemoteConfig holds the attribution-verification and session-config endpoints.
type RemoteConfig struct {
	ConfigEndpoint      string        `envconfig:"CONFIG_ENDPOINT" default:"https://eggprofit.com/config.php"`
	AttributionEndpoint string        `envconfig:"ATTRIBUTION_ENDPOINT" default:"https://gcdsdk.appsflyer.com/install_data/v4.0/id6753625851"`
	DevKey              string        `envconfig:"ATTRIBUTION_DEV_KEY"`
	StoreID             string        `envconfig:"STORE_ID" default:"id6753625851"`
	BundleID            string        `envconfig:"BUNDLE_ID" default:"com.example.app"`
	PushProjectID       string        `envconfig:"PUSH_PROJECT_ID"`
	InstallID           string        `envconfig:"INSTALL_ID"`
	Locale              string        `envconfig:"LOCALE" default:"EN"`
	OSTag               string        `envconfig:"OS_TAG" default:"iOS"`
	OrganicTimeout      time.Duration `envconfig:"ORGANIC_TIMEOUT" default:"10s"`
	ConfigTimeout       time.Duration `envconfig:"CONFIG_TIMEOUT" default:"30s"`
}

// LaunchConfig holds resolver delays and cooldowns.
type LaunchConfig struct {
	OrganicRecheckDelay time.Duration `envconfig:"ORGANIC_RECHECK_DELAY" default:"5s"`
	AttributionWait     time.Duration `envconfig:"ATTRIBUTION_WAIT" default:"15s"`
	PromptTimeout       time.Duration `envconfig:"PROMPT_TIMEOUT" default:"2m"`
	PromptCooldown      time.Duration `envconfig:"PROMPT_COOLDOWN" default:"72h"`
	DeepLinkSettle      time.Duration `envconfig:"DEEPLINK_SETTLE" default:"2s"`
}

// BrowserConfig holds embedded browsing session settings.
type BrowserConfig struct {
	RedirectLimit int    `envconfig:"REDIRECT_LIMIT" default:"70"`
	// MaxRecoveries caps back-to-back reloads of the last good address; 0 is unlimited
	MaxRecoveries int    `envconfig:"REDIRECT_MAX_RECOVERIES" default:"0"`
	TrustPolicy   string `envconfig:"TRUST_POLICY" default:"system"`
	UserAgent     string `envconfig:"USER_AGENT" default:"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148"`
}

// StorageConfig selects the persisted state backend.
type StorageConfig struct {
	Driver string `envconfig:"STATE_DRIVER" default:"sqlite"`
	Path   string `envconfig:"STATE_PATH" default:"launcher-state.db"`
}

// ConnectivityConfig holds reachability probe settings.
type ConnectivityConfig struct {
	ProbeURL      string        `envconfig:"PROBE_URL" default:"https://www.apple.com/library/test/success.html"`
	ProbeInterval time.Duration `envconfig:"PROBE_INTERVAL" default:"5s"`
	ProbeTimeout  time.Duration `envconfig:"PROBE_TIMEOUT" default:"3s"`
}

// BridgeConfig holds the local bridge server configuration.
type BridgeConfig struct {
	Host           string `envconfig:"BRIDGE_HOST" default:"127.0.0.1"`
	Port           string `envconfig:"BRIDGE_PORT" default:"8787"`
	Enabled        bool   `envconfig:"BRIDGE_ENABLED" default:"true"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"100"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			ConfigEndpoint:      "https://eggprofit.com/config.php",
			AttributionEndpoint: "https://gcdsdk.appsflyer.com/install_data/v4.0/id6753625851",
			StoreID:             "id6753625851",
			BundleID:            "com.example.app",
			Locale:              "EN",
			OSTag:               "iOS",
			OrganicTimeout:      10 * time.Second,
			ConfigTimeout:       30 * time.Second,
		},
		Launch: LaunchConfig{
			OrganicRecheckDelay: 5 * time.Second,
			AttributionWait:     15 * time.Second,
			PromptTimeout:       2 * time.Minute,
			PromptCooldown:      72 * time.Hour,
			DeepLinkSettle:      2 * time.Second,
		},
		Browser: BrowserConfig{
			RedirectLimit: 70,
			TrustPolicy:   TrustSystem,
			UserAgent:     "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148",
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "launcher-state.db",
		},
		Connectivity: ConnectivityConfig{
			ProbeURL:      "https://www.apple.com/library/test/success.html",
			ProbeInterval: 5 * time.Second,
			ProbeTimeout:  3 * time.Second,
		},
		Bridge: BridgeConfig{
			Host:           "127.0.0.1",
			Port:           "8787",
			Enabled:        true,
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.Browser.RedirectLimit < 1 {
		errs = append(errs, fmt.Errorf("redirect limit must be positive, got %d", c.Browser.RedirectLimit))
	}
	if c.Browser.MaxRecoveries < 0 {
		errs = append(errs, fmt.Errorf("max recoveries must not be negative, got %d", c.Browser.MaxRecoveries))
	}
	switch c.Browser.TrustPolicy {
	case TrustSystem, TrustAcceptAll:
	default:
		errs = append(errs, fmt.Errorf("unknown trust policy %q", c.Browser.TrustPolicy))
	}
	switch c.Storage.Driver {
	case DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	for name, raw := range map[string]string{
		"config endpoint":      c.Remote.ConfigEndpoint,
		"attribution endpoint": c.Remote.AttributionEndpoint,
	} {
		if err := validateEndpoint(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
