// Package firebase provides a ports.ResponseStore backed by the Firebase Realtime Database.
package firebase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/ports"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvCredentialsFile = "FIREBASE_SERVICE_ACCOUNT_KEY_PATH"
	EnvDatabaseURL     = "FIREBASE_DATABASE_URL"
	EnvEmulatorHost    = "FIREBASE_DATABASE_EMULATOR_HOST"
)

// DefaultRoot is the database path that holds response logs.
const DefaultRoot = "response_logs"

// Config holds the connection settings.
type Config struct {
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	Root            string `yaml:"root" mapstructure:"root"`
}

// ConfigFromEnv fills a Config from the process environment.
func ConfigFromEnv() Config {
	return Config{
		DatabaseURL:     os.Getenv(EnvDatabaseURL),
		CredentialsFile: os.Getenv(EnvCredentialsFile),
		Root:            DefaultRoot,
	}
}

// Validate reports missing settings as a configuration error.
// Credentials may be omitted when the database emulator is in use.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return domain.NewError(domain.KindConfiguration, "firebase", EnvDatabaseURL+" is not set", nil)
	}
	if c.CredentialsFile == "" && os.Getenv(EnvEmulatorHost) == "" {
		return domain.NewError(domain.KindConfiguration, "firebase", EnvCredentialsFile+" is not set", nil)
	}
	return nil
}

// Store implements ports.ResponseStore on a Realtime Database tree:
// <root>/<encoded key>/<entry id> = entry.
type Store struct {
	client *db.Client
	root   string
	now    func() time.Time
}

// New initializes the Firebase app and returns a store bound to its database.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := fb.NewApp(ctx, &fb.Config{DatabaseURL: cfg.DatabaseURL}, opts...)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "firebase", "error initializing Firebase app", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "firebase", "error getting database client", err)
	}

	return NewFromClient(client, cfg.Root), nil
}

// NewFromClient wraps an existing database client.
func NewFromClient(client *db.Client, root string) *Store {
	if root == "" {
		root = DefaultRoot
	}
	return &Store{client: client, root: root, now: time.Now}
}

func (s *Store) ref(key string) *db.Ref {
	return s.client.NewRef(s.root).Child(EncodeKey(key))
}

// Write sets one child under key with a single PUT.
func (s *Store) Write(ctx context.Context, key string, value json.RawMessage) (ports.LogEntry, error) {
	now := s.now().UTC()
	entry := ports.LogEntry{
		ID:        uuid.NewString(),
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.ref(key).Child(entry.ID).Set(ctx, entry); err != nil {
		return ports.LogEntry{}, fmt.Errorf("error writing response log: %w", err)
	}
	return entry, nil
}

// Read returns the entries under key, newest first.
func (s *Store) Read(ctx context.Context, key string) ([]ports.LogEntry, error) {
	var raw map[string]json.RawMessage
	if err := s.ref(key).Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("error reading response logs: %w", err)
	}

	entries := make([]ports.LogEntry, 0, len(raw))
	for id, data := range raw {
		var entry ports.LogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %v", domain.ErrMalformedRecord, key, id, err)
		}
		if entry.ID == "" {
			entry.ID = id
		}
		entries = append(entries, entry)
	}
	sortNewestFirst(entries)
	return entries, nil
}

// Delete removes the subtree under key.
func (s *Store) Delete(ctx context.Context, key string) (int, error) {
	var ids map[string]bool
	if err := s.ref(key).GetShallow(ctx, &ids); err != nil {
		return 0, fmt.Errorf("error counting response logs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.ref(key).Delete(ctx); err != nil {
		return 0, fmt.Errorf("error deleting response logs: %w", err)
	}
	return len(ids), nil
}

// Ping performs a shallow read of the root path.
func (s *Store) Ping(ctx context.Context) error {
	var ignored map[string]bool
	if err := s.client.NewRef(s.root).GetShallow(ctx, &ignored); err != nil {
		return fmt.Errorf("firebase unreachable: %w", err)
	}
	return nil
}

func sortNewestFirst(entries []ports.LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

var keyEscaper = strings.NewReplacer(
	"%", "%25",
	".", "%2E",
	"$", "%24",
	"#", "%23",
	"[", "%5B",
	"]", "%5D",
	"/", "%2F",
)

// EncodeKey maps key onto a valid Realtime Database path segment.
func EncodeKey(key string) string {
	return keyEscaper.Replace(key)
}

// DecodeKey reverses EncodeKey.
func DecodeKey(segment string) (string, error) {
	return url.PathUnescape(segment)
}
