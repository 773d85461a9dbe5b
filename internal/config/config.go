// Package config loads process settings for the keystone binaries.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// environment variables. Command-line flags are applied last by the caller.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/keystone/pkg/adapters/firebase"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverFirebase = "firebase"
	DriverFile     = "file"
)

// EnvPrefix prefixes every keystone environment variable.
const EnvPrefix = "KEYSTONE_"

type Server struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout of zero keeps session event streams open.
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Redis struct {
	URL    string        `mapstructure:"url"`
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type SQLite struct {
	Path string `mapstructure:"path"`
}

type File struct {
	Dir string `mapstructure:"dir"`
}

// Store selects and configures the response store.
type Store struct {
	Driver   string          `mapstructure:"driver"`
	Redis    Redis           `mapstructure:"redis"`
	SQLite   SQLite          `mapstructure:"sqlite"`
	File     File            `mapstructure:"file"`
	Firebase firebase.Config `mapstructure:"firebase"`

	// EncryptionKey is a base64 encoded 32-byte AES key. Empty disables encryption at rest.
	EncryptionKey string `mapstructure:"encryption_key"`
	// RedactPatterns lists JSON keys masked when logs are read back.
	RedactPatterns []string `mapstructure:"redact_patterns"`
}

type Survey struct {
	// Path to a YAML survey definition. Empty uses the embedded survey.
	Path          string        `mapstructure:"path"`
	GateDelay     time.Duration `mapstructure:"gate_delay"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
}

type Sessions struct {
	MaxSessions  int           `mapstructure:"max_sessions"`
	IdleTTL      time.Duration `mapstructure:"idle_ttl"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

// Notify configures new-lead notifications. An empty token disables them.
type Notify struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

// Config is the full process configuration.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Log      Log      `mapstructure:"log"`
	Store    Store    `mapstructure:"store"`
	Survey   Survey   `mapstructure:"survey"`
	Sessions Sessions `mapstructure:"sessions"`
	Notify   Notify   `mapstructure:"notify"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: Log{Level: "info", Format: "text"},
		Store: Store{
			Driver:         DriverMemory,
			Redis:          Redis{Prefix: "keystone:responses:"},
			SQLite:         SQLite{Path: "keystone.db"},
			File:           File{Dir: filepath.Join(".keystone", "responses")},
			Firebase:       firebase.Config{Root: firebase.DefaultRoot},
			RedactPatterns: []string{"email", "phone"},
		},
		Survey: Survey{
			GateDelay:     2 * time.Second,
			SubmitTimeout: 10 * time.Second,
		},
		Sessions: Sessions{
			MaxSessions:  10000,
			IdleTTL:      30 * time.Minute,
			ReapInterval: time.Minute,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if path is not
// empty) and the process environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode merges a YAML document into cfg. Keys absent from the document keep
// their current values; unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse yaml: %w", err)
	}
	if doc == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      cfg,
		ErrorUnused: true,
		ZeroFields:  true,
		TagName:     "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(doc); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings from environment variables. The Firebase
// variables keep the names used by the Firebase tooling.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, &domain.ValidationError{Key: key, Reason: "invalid duration " + strconv.Quote(v)})
				return
			}
			*dst = d
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok {
			*dst = splitList(v)
		}
	}

	str(EnvPrefix+"ADDR", &c.Server.Addr)
	list(EnvPrefix+"CORS_ORIGINS", &c.Server.CORSOrigins)
	str(EnvPrefix+"LOG_LEVEL", &c.Log.Level)
	str(EnvPrefix+"LOG_FORMAT", &c.Log.Format)

	str(EnvPrefix+"STORE", &c.Store.Driver)
	str(EnvPrefix+"REDIS_URL", &c.Store.Redis.URL)
	str(EnvPrefix+"REDIS_PREFIX", &c.Store.Redis.Prefix)
	dur(EnvPrefix+"REDIS_TTL", &c.Store.Redis.TTL)
	str(EnvPrefix+"SQLITE_PATH", &c.Store.SQLite.Path)
	str(EnvPrefix+"FILE_DIR", &c.Store.File.Dir)
	str(EnvPrefix+"ENCRYPTION_KEY", &c.Store.EncryptionKey)
	list(EnvPrefix+"REDACT_PATTERNS", &c.Store.RedactPatterns)
	str(firebase.EnvDatabaseURL, &c.Store.Firebase.DatabaseURL)
	str(firebase.EnvCredentialsFile, &c.Store.Firebase.CredentialsFile)

	str(EnvPrefix+"SURVEY_PATH", &c.Survey.Path)
	dur(EnvPrefix+"GATE_DELAY", &c.Survey.GateDelay)
	dur(EnvPrefix+"SUBMIT_TIMEOUT", &c.Survey.SubmitTimeout)

	if v, ok := lookup(EnvPrefix + "MAX_SESSIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, &domain.ValidationError{Key: EnvPrefix + "MAX_SESSIONS", Reason: "not an integer"})
		} else {
			c.Sessions.MaxSessions = n
		}
	}
	dur(EnvPrefix+"SESSION_IDLE_TTL", &c.Sessions.IdleTTL)

	str(EnvPrefix+"TELEGRAM_TOKEN", &c.Notify.TelegramToken)
	if v, ok := lookup(EnvPrefix + "TELEGRAM_CHAT_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, &domain.ValidationError{Key: EnvPrefix + "TELEGRAM_CHAT_ID", Reason: "not an integer"})
		} else {
			c.Notify.TelegramChatID = id
		}
	}

	if len(errs) > 0 {
		return domain.NewError(domain.KindConfiguration, "config.env", "invalid environment", &domain.AggregateError{Errors: errs})
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the settings before anything is started. Every failure is
// reported at once as a configuration error.
func (c Config) Validate() error {
	var errs []error
	fail := func(key, reason string) {
		errs = append(errs, &domain.ValidationError{Key: key, Reason: reason})
	}

	if c.Server.Addr == "" {
		fail("server.addr", "must not be empty")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		fail("log.format", "must be text or json")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		fail("log.level", "must be debug, info, warn or error")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.Redis.URL == "" {
			fail("store.redis.url", "required for the redis driver")
		}
		if c.Store.Redis.TTL < 0 {
			fail("store.redis.ttl", "must not be negative")
		}
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			fail("store.sqlite.path", "required for the sqlite driver")
		}
	case DriverFile:
		if c.Store.File.Dir == "" {
			fail("store.file.dir", "required for the file driver")
		}
	case DriverFirebase:
		if err := c.Store.Firebase.Validate(); err != nil {
			fail("store.firebase", err.Error())
		}
	default:
		fail("store.driver", fmt.Sprintf("unknown driver %q", c.Store.Driver))
	}
	if c.Store.EncryptionKey != "" {
		if _, err := c.EncryptionKeyBytes(); err != nil {
			fail("store.encryption_key", err.Error())
		}
	}

	if c.Survey.GateDelay < 0 {
		fail("survey.gate_delay", "must not be negative")
	}
	if c.Survey.SubmitTimeout <= 0 {
		fail("survey.submit_timeout", "must be positive")
	}
	if c.Sessions.MaxSessions < 0 {
		fail("sessions.max_sessions", "must not be negative")
	}
	if c.Sessions.ReapInterval <= 0 {
		fail("sessions.reap_interval", "must be positive")
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		fail("notify.telegram_chat_id", "required when a telegram token is set")
	}

	if len(errs) > 0 {
		return domain.NewError(domain.KindConfiguration, "config", "invalid configuration", &domain.AggregateError{Errors: errs})
	}
	return nil
}

// EncryptionKeyBytes decodes the at-rest encryption key. It returns nil when
// encryption is disabled.
func (c Config) EncryptionKeyBytes() ([]byte, error) {
	if c.Store.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.Store.EncryptionKey)
	if err != nil {
		return nil, errors.New("not valid base64")
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
