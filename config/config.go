package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "marketchat"
	// DefaultListenAddr is the HTTP listen address used when no override exists.
	DefaultListenAddr = ":8080"
	// DefaultTokenIssuer is the issuer claim on session tokens.
	DefaultTokenIssuer = "marketchat"
	// DefaultTokenValidityHours is the session token lifetime.
	DefaultTokenValidityHours = 24 * 7
	// DefaultRedisChannel is the pub/sub channel used by the change relay.
	DefaultRedisChannel = "marketchat:changes"
	// configFileName is the persisted configuration file.
	configFileName = "config.json"
)

// Environment overrides, applied after config.json is loaded.
const (
	EnvDataDir        = "MARKETCHAT_DATA_DIR"
	EnvListenAddr     = "MARKETCHAT_LISTEN_ADDR"
	EnvRedisAddr      = "MARKETCHAT_REDIS_ADDR"
	EnvRedisChannel   = "MARKETCHAT_REDIS_CHANNEL"
	EnvTimeZone       = "MARKETCHAT_TIME_ZONE"
	EnvCanonicalKeys  = "MARKETCHAT_CANONICAL_SUMMARY_KEYS"
	EnvAdvertiseMDNS  = "MARKETCHAT_ADVERTISE_MDNS"
	EnvAllowedOrigins = "MARKETCHAT_ALLOWED_ORIGINS"
)

// ServerConfig contains persistent server settings.
type ServerConfig struct {
	InstanceID            string   `json:"instance_id"`
	InstanceName          string   `json:"instance_name"`
	ListenAddr            string   `json:"listen_addr"`
	DisplayTimeZone       string   `json:"display_time_zone"`
	TokenIssuer           string   `json:"token_issuer"`
	TokenValidityHours    int      `json:"token_validity_hours"`
	SigningPrivateKeyPath string   `json:"signing_private_key_path"`
	SigningPublicKeyPath  string   `json:"signing_public_key_path"`
	KeyFingerprint        string   `json:"key_fingerprint"`
	CanonicalSummaryKeys  bool     `json:"canonical_summary_keys"`
	AdvertiseMDNS         bool     `json:"advertise_mdns"`
	RedisAddr             string   `json:"redis_addr,omitempty"`
	RedisChannel          string   `json:"redis_channel"`
	AllowedOrigins        []string `json:"allowed_origins"`
}

// Location resolves DisplayTimeZone. An empty zone means the host's local time.
func (c *ServerConfig) Location() (*time.Location, error) {
	if c.DisplayTimeZone == "" || c.DisplayTimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.DisplayTimeZone)
	if err != nil {
		return nil, fmt.Errorf("load display time zone %q: %w", c.DisplayTimeZone, err)
	}
	return loc, nil
}

// TokenValidity returns the session token lifetime.
func (c *ServerConfig) TokenValidity() time.Duration {
	return time.Duration(c.TokenValidityHours) * time.Hour
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If MARKETCHAT_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(EnvDataDir); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "keys"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*ServerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg ServerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *ServerConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns the config,
// its path and the data directory. Environment overrides are applied to the
// returned value but never persisted.
func LoadOrCreate() (*ServerConfig, string, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", "", err
		}

		cfg = defaultConfig(dataDir)
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", "", err
		}
	} else if normalizeDefaults(cfg, dataDir) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", "", err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, "", "", err
	}
	return cfg, cfgPath, dataDir, nil
}

// ApplyEnv overlays MARKETCHAT_* environment variables onto cfg.
func ApplyEnv(cfg *ServerConfig) error {
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv(EnvRedisChannel); v != "" {
		cfg.RedisChannel = v
	}
	if v := os.Getenv(EnvTimeZone); v != "" {
		cfg.DisplayTimeZone = v
	}
	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	for name, target := range map[string]*bool{
		EnvCanonicalKeys: &cfg.CanonicalSummaryKeys,
		EnvAdvertiseMDNS: &cfg.AdvertiseMDNS,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		*target = parsed
	}

	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultInstanceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "Marketchat Server"
}

func defaultConfig(dataDir string) *ServerConfig {
	keysDir := filepath.Join(dataDir, "keys")
	return &ServerConfig{
		InstanceID:            uuid.NewString(),
		InstanceName:          defaultInstanceName(),
		ListenAddr:            DefaultListenAddr,
		TokenIssuer:           DefaultTokenIssuer,
		TokenValidityHours:    DefaultTokenValidityHours,
		SigningPrivateKeyPath: filepath.Join(keysDir, "ed25519_private.pem"),
		SigningPublicKeyPath:  filepath.Join(keysDir, "ed25519_public.pem"),
		RedisChannel:          DefaultRedisChannel,
		AllowedOrigins:        []string{"*"},
	}
}

func normalizeDefaults(cfg *ServerConfig, dataDir string) bool {
	updated := false
	keysDir := filepath.Join(dataDir, "keys")

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
		updated = true
	}

	if cfg.InstanceName == "" {
		cfg.InstanceName = defaultInstanceName()
		updated = true
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
		updated = true
	}

	if cfg.TokenIssuer == "" {
		cfg.TokenIssuer = DefaultTokenIssuer
		updated = true
	}

	if cfg.TokenValidityHours <= 0 {
		cfg.TokenValidityHours = DefaultTokenValidityHours
		updated = true
	}

	if cfg.SigningPrivateKeyPath == "" {
		cfg.SigningPrivateKeyPath = filepath.Join(keysDir, "ed25519_private.pem")
		updated = true
	}

	if cfg.SigningPublicKeyPath == "" {
		cfg.SigningPublicKeyPath = filepath.Join(keysDir, "ed25519_public.pem")
		updated = true
	}

	if cfg.RedisChannel == "" {
		cfg.RedisChannel = DefaultRedisChannel
		updated = true
	}

	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{"*"}
		updated = true
	}

	return updated
}
