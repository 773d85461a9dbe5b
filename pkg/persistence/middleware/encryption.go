package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/ports"
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	base
	config EncryptionConfig
}

// envelope is the stored form of an encrypted value.
type envelope struct {
	Encrypted string `json:"__encrypted__"`
}

// NewEncryptionMiddleware creates a middleware that encrypts entry values using AES-GCM (Envelope Encryption).
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.ResponseStore) ports.ResponseStore {
		return &encryptionMiddleware{
			base:   base{next: next},
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Write(ctx context.Context, key string, value json.RawMessage) (ports.LogEntry, error) {
	// 1. Encrypt
	ciphertext, err := encrypt(value, m.config.ActiveKey)
	if err != nil {
		return ports.LogEntry{}, fmt.Errorf("failed to encrypt value: %w", err)
	}

	// 2. Create envelope
	sealed, err := json.Marshal(envelope{Encrypted: base64.StdEncoding.EncodeToString(ciphertext)})
	if err != nil {
		return ports.LogEntry{}, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	entry, err := m.next.Write(ctx, key, sealed)
	if err != nil {
		return ports.LogEntry{}, err
	}
	entry.Value = value
	return entry, nil
}

func (m *encryptionMiddleware) Read(ctx context.Context, key string) ([]ports.LogEntry, error) {
	entries, err := m.next.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		plain, err := m.open(entries[i].Value)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s: %v", domain.ErrMalformedRecord, entries[i].ID, err)
		}
		entries[i].Value = plain
	}
	return entries, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, key string) (int, error) {
	return m.next.Delete(ctx, key)
}

func (m *encryptionMiddleware) open(raw json.RawMessage) (json.RawMessage, error) {
	// 1. Extract ciphertext
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Encrypted == "" {
		// Fail secure: plain values are never returned once encryption is configured.
		return nil, errors.New("value is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	// 2. Decrypt (Try Active, then Fallback)
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt value: %w", err)
	}
	return plainText, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	// Try fallbacks in order
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
