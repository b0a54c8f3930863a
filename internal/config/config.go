// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"variant-sync/internal/controller"
)

// Config holds all service configuration.
// Environment determines whether the store secret loads from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string `json:"port"`
	Environment string `json:"environment"` // "development" or "production"
	LogLevel    string `json:"log_level"`   // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string `json:"gcp_project"`
	StoreID    string `json:"store_id"`

	// Store connection (loaded from secrets in production)
	Store StoreConfig `json:"store"`

	Product  ProductConfig `json:"product"`
	Fetch    FetchConfig   `json:"fetch"`
	Sessions SessionConfig `json:"sessions"`
}

// StoreConfig identifies the storefront.
// In production, this is loaded from Secret Manager as JSON.
type StoreConfig struct {
	StoreURL    string `json:"store_url"`
	ShopURL     string `json:"shop_url,omitempty"`     // public origin for share links; defaults to StoreURL
	StoreDomain string `json:"store_domain,omitempty"` // Derived from StoreURL if not set
	Cookie      string `json:"cookie,omitempty"`       // preview or storefront password cookie
}

// ProductConfig holds defaults for every product block.
type ProductConfig struct {
	SectionID        string   `json:"section_id,omitempty"`
	UpdateURL        string   `json:"update_url,omitempty"` // "", "true" or "false"
	ForceRefetch     bool     `json:"force_refetch,omitempty"`
	ThemeVersion     string   `json:"theme_version,omitempty"`
	InputRetries     int      `json:"input_retries,omitempty"`
	InputRetryDelay  Duration `json:"input_retry_delay,omitempty"`
	AddToCartLabel   string   `json:"add_to_cart_label,omitempty"`
	SoldOutLabel     string   `json:"sold_out_label,omitempty"`
	UnavailableLabel string   `json:"unavailable_label,omitempty"`
}

// FetchConfig tunes storefront requests.
type FetchConfig struct {
	Timeout          Duration `json:"timeout,omitempty"`
	ChromeTLS        bool     `json:"chrome_tls,omitempty"`
	UserAgent        string   `json:"user_agent,omitempty"`
	ProductCacheTTL  Duration `json:"product_cache_ttl,omitempty"`
	ProductCacheSize int      `json:"product_cache_size,omitempty"`
}

// SessionConfig bounds the session store.
type SessionConfig struct {
	TTL      Duration `json:"ttl,omitempty"`
	Capacity int      `json:"capacity,omitempty"`
}

// Duration is a time.Duration written as "300ms" in JSON.
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"300ms\": %s", data)
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Defaults applied when a setting is absent.
const (
	DefaultFetchTimeout     = 15 * time.Second
	DefaultProductCacheTTL  = 5 * time.Minute
	DefaultProductCacheSize = 256
	DefaultSessionTTL       = 30 * time.Minute
	DefaultSessionCapacity  = 1024
)

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		StoreID:     os.Getenv("STORE_ID"),
	}
	if err := cfg.loadSettingsFromEnv(); err != nil {
		return nil, err
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.StoreID == "" {
			return nil, fmt.Errorf("STORE_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		cfg.loadStoreFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading store config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Port = withDefault(cfg.Port, "8080")
	cfg.Environment = withDefault(cfg.Environment, "development")
	cfg.LogLevel = withDefault(cfg.LogLevel, "info")

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches the store config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{store_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StoreID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Store); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// loadStoreFromEnv reads the store connection from individual environment
// variables. Used in development mode for local testing.
func (c *Config) loadStoreFromEnv() {
	c.Store = StoreConfig{
		StoreURL:    os.Getenv("STORE_URL"),
		ShopURL:     os.Getenv("SHOP_URL"),
		StoreDomain: os.Getenv("STORE_DOMAIN"),
		Cookie:      os.Getenv("STORE_COOKIE"),
	}
}

// loadSettingsFromEnv reads the non-secret settings.
func (c *Config) loadSettingsFromEnv() error {
	c.Product = ProductConfig{
		SectionID:        os.Getenv("SECTION_ID"),
		UpdateURL:        os.Getenv("UPDATE_URL"),
		ThemeVersion:     os.Getenv("THEME_VERSION"),
		AddToCartLabel:   os.Getenv("ADD_TO_CART_LABEL"),
		SoldOutLabel:     os.Getenv("SOLD_OUT_LABEL"),
		UnavailableLabel: os.Getenv("UNAVAILABLE_LABEL"),
	}
	c.Fetch.UserAgent = os.Getenv("USER_AGENT")

	var err error
	if c.Product.ForceRefetch, err = envBool("FORCE_REFETCH"); err != nil {
		return err
	}
	if c.Fetch.ChromeTLS, err = envBool("CHROME_TLS"); err != nil {
		return err
	}
	if c.Product.InputRetries, err = envInt("INPUT_RETRIES"); err != nil {
		return err
	}
	if c.Fetch.ProductCacheSize, err = envInt("PRODUCT_CACHE_SIZE"); err != nil {
		return err
	}
	if c.Sessions.Capacity, err = envInt("SESSION_CAPACITY"); err != nil {
		return err
	}
	if c.Product.InputRetryDelay, err = envDuration("INPUT_RETRY_DELAY"); err != nil {
		return err
	}
	if c.Fetch.Timeout, err = envDuration("FETCH_TIMEOUT"); err != nil {
		return err
	}
	if c.Fetch.ProductCacheTTL, err = envDuration("PRODUCT_CACHE_TTL"); err != nil {
		return err
	}
	if c.Sessions.TTL, err = envDuration("SESSION_TTL"); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Store.StoreDomain == "" && c.Store.StoreURL != "" {
		c.Store.StoreDomain = extractDomain(c.Store.StoreURL)
	}
	if c.Store.ShopURL == "" {
		c.Store.ShopURL = c.Store.StoreURL
	}
	c.Store.StoreURL = strings.TrimSuffix(c.Store.StoreURL, "/")
	c.Store.ShopURL = strings.TrimSuffix(c.Store.ShopURL, "/")

	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = Duration(DefaultFetchTimeout)
	}
	if c.Fetch.ProductCacheTTL == 0 {
		c.Fetch.ProductCacheTTL = Duration(DefaultProductCacheTTL)
	}
	if c.Fetch.ProductCacheSize == 0 {
		c.Fetch.ProductCacheSize = DefaultProductCacheSize
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = Duration(DefaultSessionTTL)
	}
	if c.Sessions.Capacity == 0 {
		c.Sessions.Capacity = DefaultSessionCapacity
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Store.StoreURL == "" {
		return fmt.Errorf("store_url is required")
	}
	u, err := url.Parse(c.Store.StoreURL)
	if err != nil {
		return fmt.Errorf("invalid store_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid store_url: must be an absolute http(s) URL")
	}

	switch c.Product.UpdateURL {
	case "", "true", "false":
	default:
		return fmt.Errorf("update_url must be true or false, got %q", c.Product.UpdateURL)
	}
	if c.Product.InputRetries < 0 {
		return fmt.Errorf("input_retries must not be negative")
	}
	if c.Fetch.ProductCacheSize < 0 || c.Sessions.Capacity < 0 {
		return fmt.Errorf("cache sizes must not be negative")
	}
	return nil
}

// ControllerDefaults converts the product settings into the defaults every
// session's controller starts from.
func (c *Config) ControllerDefaults() controller.Config {
	return controller.Config{
		SectionID:        c.Product.SectionID,
		ShopURL:          c.Store.ShopURL,
		URLMode:          controller.ParseURLMode(c.Product.UpdateURL),
		ForceRefetch:     c.Product.ForceRefetch,
		ThemeVersion:     c.Product.ThemeVersion,
		MaxInputRetries:  c.Product.InputRetries,
		InputRetryDelay:  c.Product.InputRetryDelay.Std(),
		AddToCartLabel:   c.Product.AddToCartLabel,
		SoldOutLabel:     c.Product.SoldOutLabel,
		UnavailableLabel: c.Product.UnavailableLabel,
	}
}

// extractDomain parses the domain from a URL string.
func extractDomain(storeURL string) string {
	u, err := url.Parse(storeURL)
	if err != nil {
		// Fallback: strip protocol prefix manually
		domain := strings.TrimPrefix(storeURL, "https://")
		domain = strings.TrimPrefix(domain, "http://")
		return strings.Split(domain, "/")[0]
	}
	return u.Host
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func envDuration(key string) (Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return Duration(d), nil
}
