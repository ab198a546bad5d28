// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mytt-tools/ttrproxy/internal/domain/model"
	"github.com/mytt-tools/ttrproxy/internal/domain/port/driven"
)

// Credentials owns the process-wide credential. It pairs an in-memory
// snapshot with write-through durable storage: Persist writes the store
// first and swaps the snapshot only on success, so memory and durable
// storage never disagree and readers never observe a torn value.
//
// The credential is replaced wholesale under a single-writer discipline;
// readers get an atomic snapshot via Current/CurrentBlob.
type Credentials struct {
	store driven.CredentialStore

	mu   sync.RWMutex
	cred *model.Credential // nil when no usable credential is loaded
	blob string            // encoded form matching cred; "" when cred is nil
}

// NewCredentials creates the provider and loads the initial credential:
// the stored blob wins, the seed blob (from the environment) is the
// fallback. Decoding is total -- a malformed blob is logged and treated as
// no credential, it never fails startup. A seed credential stays in memory
// only; it reaches durable storage with the first successful refresh.
func NewCredentials(ctx context.Context, store driven.CredentialStore, seedBlob string) (*Credentials, error) {
	c := &Credentials{store: store}

	blob, err := store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored credential: %w", err)
	}
	source := "store"
	if blob == "" {
		blob = seedBlob
		source = "environment"
	}

	switch decoded := model.DecodeBlob(blob); decoded.State {
	case model.BlobDecoded:
		cred := decoded.Credential
		c.cred = &cred
		c.blob = blob
		slog.Info("credential loaded",
			"source", source,
			"has_expiry", cred.HasExpiry(),
			"has_refresh_token", cred.RefreshToken != "",
		)
	case model.BlobMalformed:
		slog.Warn("stored credential blob is malformed, starting without credential",
			"source", source,
			"reason", decoded.Reason,
		)
	case model.BlobNone:
		slog.Info("no credential configured, authenticated endpoints disabled until refresh")
	}

	return c, nil
}

// Current returns the current credential snapshot, or nil if none is loaded.
// The returned value is a copy; mutating it has no effect on the provider.
func (c *Credentials) Current() *model.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cred == nil {
		return nil
	}
	cred := *c.cred
	return &cred
}

// CurrentBlob returns the encoded form of the current credential, or ""
// when none is loaded. Callers attach this to upstream calls; capturing it
// once per logical request keeps a concurrent refresh from tearing a
// single call's authentication.
func (c *Credentials) CurrentBlob() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blob
}

// Persist replaces the credential: durable storage is written first, and
// the in-memory snapshot is swapped only if the write succeeds. On failure
// the previous credential remains observable everywhere.
func (c *Credentials) Persist(ctx context.Context, cred model.Credential) error {
	blob := model.EncodeBlob(cred)

	if err := c.store.Set(ctx, blob); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}

	c.mu.Lock()
	c.cred = &cred
	c.blob = blob
	c.mu.Unlock()

	return nil
}
