package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/mytt-tools/ttrproxy/internal/domain/port/driven"
)

// credentialName is the single config key the blob lives under. Writes are
// idempotent rewrites of this key, never appends.
const credentialName = "mytischtennis_jwt"

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// When constructed with a key, blob values are encrypted with AES-256-GCM
// before write and decrypted after read; with a nil key they are stored as-is
// (the blob is already opaque bearer material, encryption at rest is opt-in).
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil disables encryption at rest
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for
// AES-256-GCM, or nil to store the blob unencrypted.
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

// Set stores or replaces the credential blob under the single config key.
func (r *CredentialRepo) Set(ctx context.Context, blob string) error {
	value, err := r.encrypt(blob)
	if err != nil {
		return err
	}

	const query = `INSERT OR REPLACE INTO config (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`
	if _, err := r.db.Writer.ExecContext(ctx, query, credentialName, value); err != nil {
		return fmt.Errorf("set credential blob: %w", err)
	}
	return nil
}

// Get retrieves the credential blob. Returns ("", nil) if none is stored.
func (r *CredentialRepo) Get(ctx context.Context) (string, error) {
	const query = `SELECT value FROM config WHERE name = ?`
	var value string
	err := r.db.Reader.QueryRowContext(ctx, query, credentialName).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get credential blob: %w", err)
	}

	blob, err := r.decrypt(value)
	if err != nil {
		return "", fmt.Errorf("decrypt credential blob: %w", err)
	}
	return blob, nil
}

// Delete removes the stored credential blob.
func (r *CredentialRepo) Delete(ctx context.Context) error {
	const query = `DELETE FROM config WHERE name = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, credentialName); err != nil {
		return fmt.Errorf("delete credential blob: %w", err)
	}
	return nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded
// string containing the nonce (12 bytes) prepended to the ciphertext.
// With a nil key it returns the plaintext unchanged.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return plaintext, nil
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext. With a nil key
// it returns the stored value unchanged.
func (r *CredentialRepo) decrypt(stored string) (string, error) {
	if r.key == nil {
		return stored, nil
	}

	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}
