package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytt-tools/ttrproxy/internal/application"
	"github.com/mytt-tools/ttrproxy/internal/domain/model"
)

func validCredential(ttl time.Duration) model.Credential {
	return model.Credential{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(ttl).Unix(),
	}
}

func TestNewCredentials_StoredBlobWinsOverSeed(t *testing.T) {
	stored := validCredential(24 * time.Hour)
	stored.AccessToken = "stored-token"
	seed := validCredential(24 * time.Hour)
	seed.AccessToken = "seed-token"

	store := &mockStore{blob: model.EncodeBlob(stored)}

	creds, err := application.NewCredentials(context.Background(), store, model.EncodeBlob(seed))
	require.NoError(t, err)

	current := creds.Current()
	require.NotNil(t, current)
	assert.Equal(t, "stored-token", current.AccessToken)
}

func TestNewCredentials_SeedFallback(t *testing.T) {
	seed := validCredential(24 * time.Hour)

	creds, err := application.NewCredentials(context.Background(), &mockStore{}, model.EncodeBlob(seed))
	require.NoError(t, err)

	current := creds.Current()
	require.NotNil(t, current)
	assert.Equal(t, seed.AccessToken, current.AccessToken)
	assert.Equal(t, model.EncodeBlob(seed), creds.CurrentBlob())
}

func TestNewCredentials_MalformedBlobStartsWithoutCredential(t *testing.T) {
	store := &mockStore{blob: "base64-!!!garbage!!!"}

	creds, err := application.NewCredentials(context.Background(), store, "")
	require.NoError(t, err, "a malformed stored blob must not block startup")

	assert.Nil(t, creds.Current())
	assert.Empty(t, creds.CurrentBlob())
}

func TestNewCredentials_NoCredentialAtAll(t *testing.T) {
	creds, err := application.NewCredentials(context.Background(), &mockStore{}, "")
	require.NoError(t, err)

	assert.Nil(t, creds.Current())
	assert.Empty(t, creds.CurrentBlob())
}

func TestNewCredentials_StoreFailureIsFatal(t *testing.T) {
	store := &mockStore{getErr: errors.New("disk gone")}

	_, err := application.NewCredentials(context.Background(), store, "")
	require.Error(t, err)
}

func TestCredentials_PersistWritesThroughThenSwaps(t *testing.T) {
	store := &mockStore{}
	creds, err := application.NewCredentials(context.Background(), store, "")
	require.NoError(t, err)

	next := validCredential(24 * time.Hour)
	require.NoError(t, creds.Persist(context.Background(), next))

	assert.Equal(t, model.EncodeBlob(next), store.blob)
	assert.Equal(t, model.EncodeBlob(next), creds.CurrentBlob())
	require.NotNil(t, creds.Current())
	assert.Equal(t, next.AccessToken, creds.Current().AccessToken)
}

func TestCredentials_PersistFailureKeepsPreviousCredential(t *testing.T) {
	old := validCredential(time.Hour)
	store := &mockStore{blob: model.EncodeBlob(old)}
	creds, err := application.NewCredentials(context.Background(), store, "")
	require.NoError(t, err)

	store.setErr = errors.New("database is locked")

	next := validCredential(48 * time.Hour)
	next.AccessToken = "new-token"
	require.Error(t, creds.Persist(context.Background(), next))

	current := creds.Current()
	require.NotNil(t, current)
	assert.Equal(t, old.AccessToken, current.AccessToken, "failed persist must not change the in-memory credential")
	assert.Equal(t, model.EncodeBlob(old), creds.CurrentBlob())
}

func TestCredentials_CurrentReturnsCopy(t *testing.T) {
	seed := validCredential(time.Hour)
	creds, err := application.NewCredentials(context.Background(), &mockStore{}, model.EncodeBlob(seed))
	require.NoError(t, err)

	first := creds.Current()
	first.AccessToken = "mutated"

	assert.Equal(t, seed.AccessToken, creds.Current().AccessToken)
}
