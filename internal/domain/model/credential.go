package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BlobPrefix tags the persisted credential encoding. The upstream stores its
// session the same way in the sb-10-auth-token cookie.
const BlobPrefix = "base64-"

// Credential is the bearer material for authenticated upstream calls.
// Credentials are immutable: a refresh produces a new value that replaces
// the old one wholesale, never a field-by-field update.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    int64 // unix UTC seconds; 0 means unknown
	SubjectEmail string
}

// HasExpiry reports whether the credential carries a known expiry instant.
func (c Credential) HasExpiry() bool {
	return c.ExpiresAt > 0
}

// IsValid reports whether the credential is known to be unexpired at now.
// A credential without an expiry has unknown validity and is never
// advertised as valid.
func (c Credential) IsValid(now time.Time) bool {
	return c.HasExpiry() && c.ExpiresAt > now.Unix()
}

// IsNearExpiry reports whether the credential is still valid but expires
// within the given window.
func (c Credential) IsNearExpiry(now time.Time, window time.Duration) bool {
	if !c.IsValid(now) {
		return false
	}
	return time.Duration(c.ExpiresAt-now.Unix())*time.Second < window
}

// ExpiresIn returns the remaining lifetime at now. Zero or negative means
// expired; callers must check HasExpiry first.
func (c Credential) ExpiresIn(now time.Time) time.Duration {
	return time.Duration(c.ExpiresAt-now.Unix()) * time.Second
}

// BlobState classifies the outcome of decoding a persisted credential blob.
type BlobState string

const (
	BlobNone      BlobState = "none"
	BlobDecoded   BlobState = "decoded"
	BlobMalformed BlobState = "malformed"
)

// DecodedBlob is the tagged result of DecodeBlob. A malformed blob carries
// the reason for diagnostics but otherwise behaves as no credential.
type DecodedBlob struct {
	State      BlobState
	Credential Credential
	Reason     string
}

// blobUser is the nested user object inside the blob envelope.
type blobUser struct {
	Email string `json:"email,omitempty"`
}

// blobPayload is the JSON shape inside the base64 envelope.
type blobPayload struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    int64     `json:"expires_at,omitempty"`
	User         *blobUser `json:"user,omitempty"`
}

// DecodeBlob decodes a persisted credential blob. It is total: any input,
// including garbage, yields a DecodedBlob rather than an error, so an
// undecodable stored value can never block startup.
func DecodeBlob(blob string) DecodedBlob {
	if blob == "" {
		return DecodedBlob{State: BlobNone}
	}

	if !strings.HasPrefix(blob, BlobPrefix) {
		return DecodedBlob{State: BlobMalformed, Reason: "missing base64- prefix"}
	}

	encoded := strings.TrimPrefix(blob, BlobPrefix)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// The upstream occasionally emits unpadded base64.
		raw, err = base64.RawStdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return DecodedBlob{State: BlobMalformed, Reason: fmt.Sprintf("base64 decode: %v", err)}
	}

	var payload blobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return DecodedBlob{State: BlobMalformed, Reason: fmt.Sprintf("json decode: %v", err)}
	}

	if payload.AccessToken == "" {
		return DecodedBlob{State: BlobMalformed, Reason: "payload has no access_token"}
	}

	cred := Credential{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		ExpiresAt:    payload.ExpiresAt,
	}
	if payload.User != nil {
		cred.SubjectEmail = payload.User.Email
	}
	cred.FillFromAccessToken()

	return DecodedBlob{State: BlobDecoded, Credential: cred}
}

// EncodeBlob produces the persisted representation of a credential.
// DecodeBlob(EncodeBlob(c)) round-trips.
func EncodeBlob(c Credential) string {
	payload := blobPayload{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		ExpiresAt:    c.ExpiresAt,
	}
	if c.SubjectEmail != "" {
		payload.User = &blobUser{Email: c.SubjectEmail}
	}

	raw, _ := json.Marshal(payload)
	return BlobPrefix + base64.StdEncoding.EncodeToString(raw)
}

// FillFromAccessToken recovers expiry and subject email from the JWT access
// token's claims when they are not set. The parse is unverified: the proxy
// only forwards the token, it is not the party that must trust it.
func (c *Credential) FillFromAccessToken() {
	if c.AccessToken == "" || (c.ExpiresAt > 0 && c.SubjectEmail != "") {
		return
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.AccessToken, claims); err != nil {
		return
	}

	if c.ExpiresAt == 0 {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			c.ExpiresAt = exp.Unix()
		}
	}
	if c.SubjectEmail == "" {
		if email, ok := claims["email"].(string); ok {
			c.SubjectEmail = email
		}
	}
}

// AuthState is the derived credential lifecycle state. It is never stored;
// it is recomputed from the current credential and clock on demand.
type AuthState string

const (
	StateNoCredential AuthState = "no_credential"
	StateExpired      AuthState = "expired"
	StateNearExpiry   AuthState = "near_expiry"
	StateFresh        AuthState = "fresh"
)

// StateOf computes the lifecycle state for a credential. forceWindow is the
// window inside which a refresh must be triggered. A nil credential means
// no credential; one without a known expiry is treated as never-expiring.
func StateOf(cred *Credential, now time.Time, forceWindow time.Duration) AuthState {
	switch {
	case cred == nil:
		return StateNoCredential
	case !cred.HasExpiry():
		return StateFresh
	case cred.ExpiresAt <= now.Unix():
		return StateExpired
	case cred.IsNearExpiry(now, forceWindow):
		return StateNearExpiry
	default:
		return StateFresh
	}
}
