// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete gemchat configuration.
type Config struct {
	Gemini  GeminiConfig  `toml:"gemini" json:"gemini"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Backend BackendConfig `toml:"backend" json:"backend"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Client  ClientConfig  `toml:"client" json:"client"`
}

// GeminiConfig configures the upstream completion provider.
type GeminiConfig struct {
	// APIKey is the Gemini API key. Never logged.
	APIKey string `toml:"api_key" json:"api_key"`
	// BaseURL overrides the REST endpoint (empty = provider default).
	BaseURL      string `toml:"base_url" json:"base_url"`
	DefaultModel string `toml:"default_model" json:"default_model"`
	TimeoutSecs  int    `toml:"timeout_secs" json:"timeout_secs"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host               string   `toml:"host" json:"host"`
	Port               int      `toml:"port" json:"port"`
	AllowedOrigins     []string `toml:"allowed_origins" json:"allowed_origins"`
	RateLimitPerSecond float64  `toml:"rate_limit_per_second" json:"rate_limit_per_second"`
	RateLimitBurst     int      `toml:"rate_limit_burst" json:"rate_limit_burst"`
}

// BackendConfig configures the remote REST service behind the proxy routes.
type BackendConfig struct {
	// APIURL is the base URL of the backend. Empty disables the proxy.
	APIURL      string `toml:"api_url" json:"api_url"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
}

// StorageConfig selects the persistence backend of the chat client.
type StorageConfig struct {
	// Backend is one of file, sqlite, bolt, redis, memory.
	Backend       string `toml:"backend" json:"backend"`
	Dir           string `toml:"dir" json:"dir"`
	SQLitePath    string `toml:"sqlite_path" json:"sqlite_path"`
	BoltPath      string `toml:"bolt_path" json:"bolt_path"`
	RedisAddr     string `toml:"redis_addr" json:"redis_addr"`
	RedisPassword string `toml:"redis_password" json:"redis_password"`
	RedisPrefix   string `toml:"redis_prefix" json:"redis_prefix"`
	// Watch reloads state written by another process (file backend only).
	Watch bool `toml:"watch" json:"watch"`
}

// ClientConfig configures the terminal chat client.
type ClientConfig struct {
	GatewayURL  string  `toml:"gateway_url" json:"gateway_url"`
	Model       string  `toml:"model" json:"model"`
	Temperature float64 `toml:"temperature" json:"temperature"`
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens"`
	Stream      bool    `toml:"stream" json:"stream"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a new Config with default values.
func Default() *Config {
	return &Config{
		Gemini: GeminiConfig{
			DefaultModel: model.DefaultGatewayModel,
			TimeoutSecs:  60,
		},
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               3000,
			RateLimitPerSecond: 10,
			RateLimitBurst:     30,
		},
		Backend: BackendConfig{
			TimeoutSecs: 30,
		},
		Storage: StorageConfig{
			Backend:     storage.BackendFile,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "gemchat:",
		},
		Client: ClientConfig{
			GatewayURL:  "http://localhost:3000",
			Model:       model.DefaultClientModel,
			Temperature: 0.7,
			MaxTokens:   1000,
			Stream:      true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the gemchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".gemchat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions tightens a config file to 0600.
// The file may hold an API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// DotEnvFiles are read from the working directory before environment
// overrides are applied. Earlier files win; real environment variables win
// over both.
var DotEnvFiles = []string{".env.local", ".env"}

// Load loads ~/.gemchat/config.toml when it exists, then dotenv files,
// then environment overrides, then defaults and validation.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from path. A missing file yields the
// defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, statErr)
	}

	if err := LoadDotEnv(DotEnvFiles...); err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys ignored: %s\n", strings.Join(keys, ", "))
	}
	return nil
}

// LoadDotEnv loads each file that exists into the process environment.
// Variables already set are never overwritten.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// SetDefaults fills zero values with defaults and resolves storage paths
// relative to the config directory.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Gemini.DefaultModel == "" {
		c.Gemini.DefaultModel = d.Gemini.DefaultModel
	}
	if c.Gemini.TimeoutSecs <= 0 {
		c.Gemini.TimeoutSecs = d.Gemini.TimeoutSecs
	}

	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = d.Server.RateLimitBurst
	}

	if c.Backend.TimeoutSecs <= 0 {
		c.Backend.TimeoutSecs = d.Backend.TimeoutSecs
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = d.Storage.RedisAddr
	}
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = d.Storage.RedisPrefix
	}
	if dir, err := ConfigDir(); err == nil {
		if c.Storage.Dir == "" {
			c.Storage.Dir = filepath.Join(dir, "data")
		}
		if c.Storage.SQLitePath == "" {
			c.Storage.SQLitePath = filepath.Join(dir, "gemchat.db")
		}
		if c.Storage.BoltPath == "" {
			c.Storage.BoltPath = filepath.Join(dir, "gemchat.bolt")
		}
	}

	if c.Client.GatewayURL == "" {
		c.Client.GatewayURL = d.Client.GatewayURL
	}
	if c.Client.Model == "" {
		c.Client.Model = d.Client.Model
	}
	if c.Client.MaxTokens == 0 {
		c.Client.MaxTokens = d.Client.MaxTokens
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# gemchat configuration file")
	fmt.Fprintln(&buf, "# Generated by gemchat - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks ranges, URLs and the storage backend name.
func (c *Config) Validate() error {
	var errs ValidateErrors

	checkURL := func(field, raw string) {
		if raw == "" {
			return
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{field, fmt.Sprintf("invalid URL %q", raw)})
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, ValidationError{field, fmt.Sprintf("unsupported scheme %q", u.Scheme)})
		}
	}

	checkURL("gemini.base_url", c.Gemini.BaseURL)
	checkURL("backend.api_url", c.Backend.APIURL)
	checkURL("client.gateway_url", c.Client.GatewayURL)

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{"server.port", fmt.Sprintf("must be 1-65535, got %d", c.Server.Port)})
	}
	if c.Server.RateLimitPerSecond < 0 {
		errs = append(errs, ValidationError{"server.rate_limit_per_second", "must not be negative"})
	}

	if c.Client.Temperature < 0 || c.Client.Temperature > 2 {
		errs = append(errs, ValidationError{"client.temperature", fmt.Sprintf("must be 0-2, got %g", c.Client.Temperature)})
	}
	if c.Client.MaxTokens <= 0 {
		errs = append(errs, ValidationError{"client.max_tokens", fmt.Sprintf("must be positive, got %d", c.Client.MaxTokens)})
	}

	known := false
	for _, b := range storage.Backends {
		if c.Storage.Backend == b {
			known = true
			break
		}
	}
	if !known {
		errs = append(errs, ValidationError{"storage.backend",
			fmt.Sprintf("must be one of %s, got %q", strings.Join(storage.Backends, "|"), c.Storage.Backend)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - GEMINI_API_KEY: overrides gemini.api_key
//   - GEMCHAT_BACKEND_URL: overrides backend.api_url
//   - GEMCHAT_GATEWAY_URL: overrides client.gateway_url
//   - GEMCHAT_STORAGE: overrides storage.backend
//   - GEMCHAT_PORT: overrides server.port (ignored when not a number)
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
	if u := os.Getenv("GEMCHAT_BACKEND_URL"); u != "" {
		c.Backend.APIURL = u
	}
	if u := os.Getenv("GEMCHAT_GATEWAY_URL"); u != "" {
		c.Client.GatewayURL = u
	}
	if b := os.Getenv("GEMCHAT_STORAGE"); b != "" {
		c.Storage.Backend = b
	}
	if p := os.Getenv("GEMCHAT_PORT"); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			c.Server.Port = port
		}
	}
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// GeminiTimeout returns the upstream timeout as a duration.
func (c *Config) GeminiTimeout() time.Duration {
	return time.Duration(c.Gemini.TimeoutSecs) * time.Second
}

// BackendTimeout returns the backend proxy timeout as a duration.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSecs) * time.Second
}

// StorageOptions converts the storage section for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:       c.Storage.Backend,
		Dir:           c.Storage.Dir,
		SQLitePath:    c.Storage.SQLitePath,
		BoltPath:      c.Storage.BoltPath,
		RedisAddr:     c.Storage.RedisAddr,
		RedisPassword: c.Storage.RedisPassword,
		RedisPrefix:   c.Storage.RedisPrefix,
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "client.model").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "client.stream").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct tree matching each part against toml tags first
// and Go field names second.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByKey(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByKey(v reflect.Value, part string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if tag == part {
			return v.Field(i), true
		}
	}
	name := normalizeFieldName(part)
	f := v.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
	return f, f.IsValid()
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.ToLower(strVal))
			if err != nil {
				boolVal = strings.EqualFold(strVal, "yes")
			}
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		prefix := section.Tag.Get("toml")
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, prefix+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	return &clone
}

// String returns the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Gemini.APIKey != "" {
		safe.Gemini.APIKey = "[REDACTED]"
	}
	if safe.Storage.RedisPassword != "" {
		safe.Storage.RedisPassword = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
