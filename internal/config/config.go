package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"taskdash/internal/resource"
)

const (
	DefaultBaseURL = "http://localhost:5000/api"
	DefaultTimeout = 15 * time.Second
	fileName       = "config.json"
)

type Config struct {
	// BaseURL is the API root, including any /api prefix.
	BaseURL string `json:"baseUrl,omitempty"`

	// StateDir holds state.sqlite. Empty means the config dir.
	StateDir string `json:"stateDir,omitempty"`

	// Timeout is a Go duration string ("15s"). Empty means DefaultTimeout.
	Timeout string `json:"timeout,omitempty"`

	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64 `json:"rateLimit,omitempty"`
	RateBurst int     `json:"rateBurst,omitempty"`

	Documents *Documents `json:"documents,omitempty"`
}

type Documents struct {
	MaxCount     int      `json:"maxCount,omitempty"`
	MaxBytes     int64    `json:"maxBytes,omitempty"`
	AllowedTypes []string `json:"allowedTypes,omitempty"`
}

func ConfigDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.taskdash).
	if v := strings.TrimSpace(os.Getenv("TASKDASH_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".taskdash"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load reads the config file (comments and trailing commas allowed) and applies the
// TASKDASH_BASE_URL and TASKDASH_STATE_DIR overrides. A missing file is not an error.
func Load() (*Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return nil, err
	}
	cfg.BaseURL = envOr("TASKDASH_BASE_URL", cfg.BaseURL)
	cfg.StateDir = envOr("TASKDASH_STATE_DIR", cfg.StateDir)
	return cfg, nil
}

// LoadFile reads the config file without environment overrides.
func LoadFile() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(jsonc.ToJSON(b), &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Timeout) != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return fmt.Errorf("invalid timeout %q", c.Timeout)
		}
	}
	if c.RateLimit < 0 {
		return errors.New("rateLimit must not be negative")
	}
	if c.Documents != nil && (c.Documents.MaxCount < 0 || c.Documents.MaxBytes < 0) {
		return errors.New("document limits must not be negative")
	}
	return nil
}

func (c *Config) EffectiveBaseURL() string {
	if v := strings.TrimSpace(c.BaseURL); v != "" {
		return v
	}
	return DefaultBaseURL
}

func (c *Config) EffectiveStateDir() (string, error) {
	if v := strings.TrimSpace(c.StateDir); v != "" {
		return v, nil
	}
	return ConfigDir()
}

func (c *Config) RequestTimeout() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(c.Timeout)); err == nil && d > 0 {
		return d
	}
	return DefaultTimeout
}

// DocumentPolicy overlays the configured limits on the defaults.
func (c *Config) DocumentPolicy() resource.DocumentPolicy {
	p := resource.DefaultDocumentPolicy()
	if c.Documents == nil {
		return p
	}
	if c.Documents.MaxCount > 0 {
		p.MaxCount = c.Documents.MaxCount
	}
	if c.Documents.MaxBytes > 0 {
		p.MaxBytes = c.Documents.MaxBytes
	}
	if len(c.Documents.AllowedTypes) > 0 {
		p.AllowedTypes = append([]string(nil), c.Documents.AllowedTypes...)
	}
	return p
}

// Keys lists the settable keys in the order `config show` prints them.
var Keys = []string{"baseUrl", "stateDir", "timeout", "rateLimit", "rateBurst", "documents.maxCount", "documents.maxBytes", "documents.allowedTypes"}

// Set assigns one key from its string form. An empty value unsets it.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	docs := func() *Documents {
		if c.Documents == nil {
			c.Documents = &Documents{}
		}
		return c.Documents
	}
	switch key {
	case "baseUrl":
		c.BaseURL = value
	case "stateDir":
		c.StateDir = value
	case "timeout":
		c.Timeout = value
	case "rateLimit":
		n, err := parseFloat(value)
		if err != nil {
			return fmt.Errorf("rateLimit: %w", err)
		}
		c.RateLimit = n
	case "rateBurst":
		n, err := parseInt(value)
		if err != nil {
			return fmt.Errorf("rateBurst: %w", err)
		}
		c.RateBurst = int(n)
	case "documents.maxCount":
		n, err := parseInt(value)
		if err != nil {
			return fmt.Errorf("documents.maxCount: %w", err)
		}
		docs().MaxCount = int(n)
	case "documents.maxBytes":
		n, err := parseInt(value)
		if err != nil {
			return fmt.Errorf("documents.maxBytes: %w", err)
		}
		docs().MaxBytes = n
	case "documents.allowedTypes":
		var types []string
		for _, t := range strings.Split(value, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		docs().AllowedTypes = types
	default:
		return fmt.Errorf("unknown config key %q (want one of %s)", key, strings.Join(Keys, ", "))
	}
	if c.Documents != nil && c.Documents.MaxCount == 0 && c.Documents.MaxBytes == 0 && len(c.Documents.AllowedTypes) == 0 {
		c.Documents = nil
	}
	return c.Validate()
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}

// Save writes cfg as plain indented JSON. Comments in a hand-edited file are not kept.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(dir, fileName+".*.tmp", path, append(b, '\n'), 0o600)
}
