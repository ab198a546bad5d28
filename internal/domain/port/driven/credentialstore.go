package driven

import "context"

// CredentialStore defines the driven port for durable credential blob
// storage. The blob is the tagged base64 encoding produced by
// model.EncodeBlob; the store treats it as opaque and keeps exactly one
// value under a single well-known key, so writes are idempotent rewrites.
type CredentialStore interface {
	// Get retrieves the stored credential blob.
	// Returns ("", nil) if no blob has been stored.
	Get(ctx context.Context) (string, error)

	// Set stores or replaces the credential blob. Either the new blob is
	// fully written and subsequent Gets observe it, or the write fails and
	// the previous blob remains observable.
	Set(ctx context.Context, blob string) error

	// Delete removes the stored blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context) error
}
