// Package config loads the drover configuration: a YAML file overlaid with
// DROVER_* environment variables on top of complete defaults. The zero
// config is fully usable (in-memory storage, rules routing, no encryption).
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = "drover.yaml"

// Storage backends.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageFile   = "file"
)

// Routing policies.
const (
	PolicyRules      = "rules"
	PolicyCompletion = "completion"
)

// Config is the full application configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
	Routing   Routing   `yaml:"routing"`
	Executors Executors `yaml:"executors"`
	Events    Events    `yaml:"events"`
	Security  Security  `yaml:"security"`
	Logging   Logging   `yaml:"logging"`
}

// Server configures the HTTP adapter.
type Server struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// Addr returns the host:port listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Storage selects and configures the persistence backend.
type Storage struct {
	Backend string `yaml:"backend"`
	Redis   Redis  `yaml:"redis"`
	File    File   `yaml:"file"`
}

// Redis configures the redis backend.
type Redis struct {
	Address  string   `yaml:"address"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix"`
	TTL      Duration `yaml:"ttl"`
}

// File configures the file backend.
type File struct {
	Root string `yaml:"root"`
}

// Routing configures decision making.
type Routing struct {
	Policy      string     `yaml:"policy"`
	RepeatBound int        `yaml:"repeat_bound"`
	Timeout     Duration   `yaml:"timeout"`
	Completion  Completion `yaml:"completion"`
}

// Completion configures the completion-backed routing policy.
type Completion struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// Executors configures executor runs and the capabilities they call.
type Executors struct {
	Timeout      Duration         `yaml:"timeout"`
	DatasetDir   string           `yaml:"dataset_dir"`
	APIAllowList []string         `yaml:"api_allow_list"`
	Processes    []ProcessCommand `yaml:"processes"`
}

// ProcessCommand allow-lists one external command as a capability.
type ProcessCommand struct {
	Capability string   `yaml:"capability"`
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
}

// Events configures the event emitter and optional sinks.
type Events struct {
	Buffer int  `yaml:"buffer"`
	NATS   NATS `yaml:"nats"`
}

// NATS configures the NATS event sink. An empty URL disables it.
type NATS struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// Security configures at-rest protections. An empty encryption key disables
// envelope encryption; keys are hex-encoded 32-byte values.
type Security struct {
	EncryptionKey string   `yaml:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys"`
	PIIPatterns   []string `yaml:"pii_patterns"`
}

// Keys decodes the configured encryption keys. Returns a nil active key when
// encryption is disabled.
func (s Security) Keys() (active []byte, fallbacks [][]byte, err error) {
	if s.EncryptionKey == "" {
		return nil, nil, nil
	}
	active, err = decodeKey(s.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("encryption_key: %w", err)
	}
	for i, raw := range s.FallbackKeys {
		key, err := decodeKey(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback_keys[%d]: %w", i, err)
		}
		fallbacks = append(fallbacks, key)
	}
	return active, fallbacks, nil
}

func decodeKey(raw string) ([]byte, error) {
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("decodes to %d bytes, want 32", len(key))
	}
	return key, nil
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a fully-populated configuration.
func Default() Config {
	return Config{
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
			AllowedOrigins:  []string{"*"},
		},
		Storage: Storage{
			Backend: StorageMemory,
			Redis: Redis{
				Address: "localhost:6379",
				Prefix:  "drover:",
			},
			File: File{Root: ".drover"},
		},
		Routing: Routing{
			Policy:      PolicyRules,
			RepeatBound: 3,
			Timeout:     Duration(5 * time.Second),
			Completion:  Completion{Model: "default"},
		},
		Executors: Executors{
			Timeout:    Duration(30 * time.Second),
			DatasetDir: "datasets",
		},
		Events: Events{
			Buffer: 256,
			NATS:   NATS{Prefix: "drover"},
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration from path (or DefaultPath when empty),
// applies DROVER_* environment overrides, and validates the result. A
// missing default file is fine; a missing explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// run on defaults
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Host, "DROVER_HOST")
	setInt(&c.Server.Port, "DROVER_PORT")
	setString(&c.Storage.Backend, "DROVER_STORAGE")
	setString(&c.Storage.Redis.Address, "DROVER_REDIS_ADDR")
	setString(&c.Storage.Redis.Password, "DROVER_REDIS_PASSWORD")
	setInt(&c.Storage.Redis.DB, "DROVER_REDIS_DB")
	setString(&c.Storage.File.Root, "DROVER_STATE_DIR")
	setString(&c.Routing.Policy, "DROVER_ROUTING_POLICY")
	setInt(&c.Routing.RepeatBound, "DROVER_REPEAT_BOUND")
	setDuration(&c.Routing.Timeout, "DROVER_ROUTING_TIMEOUT")
	setString(&c.Routing.Completion.Endpoint, "DROVER_COMPLETION_ENDPOINT")
	setString(&c.Routing.Completion.Model, "DROVER_COMPLETION_MODEL")
	setDuration(&c.Executors.Timeout, "DROVER_EXECUTOR_TIMEOUT")
	setString(&c.Executors.DatasetDir, "DROVER_DATASET_DIR")
	setString(&c.Events.NATS.URL, "DROVER_NATS_URL")
	setString(&c.Security.EncryptionKey, "DROVER_ENCRYPTION_KEY")
	setString(&c.Logging.Level, "DROVER_LOG_LEVEL")
	setString(&c.Logging.Format, "DROVER_LOG_FORMAT")
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Backend {
	case StorageMemory, StorageRedis, StorageFile:
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, redis, file", c.Storage.Backend)
	}
	switch c.Routing.Policy {
	case PolicyRules:
	case PolicyCompletion:
		if c.Routing.Completion.Endpoint == "" {
			return fmt.Errorf("routing.completion.endpoint is required with the completion policy")
		}
	default:
		return fmt.Errorf("routing.policy %q is not one of rules, completion", c.Routing.Policy)
	}
	if c.Routing.RepeatBound < 1 {
		return fmt.Errorf("routing.repeat_bound must be at least 1, got %d", c.Routing.RepeatBound)
	}
	if c.Routing.Timeout <= 0 {
		return fmt.Errorf("routing.timeout must be positive")
	}
	if c.Executors.Timeout <= 0 {
		return fmt.Errorf("executors.timeout must be positive")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	if _, _, err := c.Security.Keys(); err != nil {
		return fmt.Errorf("security: %w", err)
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if d, ok := parseDuration(v); ok {
			*dst = d
		}
	}
}

// Duration wraps time.Duration so YAML accepts both "30s" strings and bare
// integer seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, ok := parseDuration(v)
		if !ok {
			return fmt.Errorf("invalid duration %q", v)
		}
		*d = parsed
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// parseDuration accepts "90s" forms and bare second counts.
func parseDuration(s string) (Duration, bool) {
	if parsed, err := time.ParseDuration(s); err == nil {
		return Duration(parsed), true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return Duration(time.Duration(n) * time.Second), true
	}
	return 0, false
}
