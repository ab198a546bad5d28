package mytischtennis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mytt-tools/ttrproxy/internal/domain/model"
	"github.com/mytt-tools/ttrproxy/internal/domain/port/driven"
)

// refreshPath is the auth endpoint performing the refresh-token exchange.
// The upstream session is Supabase-shaped, hence the /auth/v1 form.
const refreshPath = "/auth/v1/token?grant_type=refresh_token"

// Compile-time interface satisfaction check.
var _ driven.TokenRefresher = (*Refresher)(nil)

// Refresher implements the driven.TokenRefresher port. It is a pure
// exchange: old credential in, new credential out, no persistence.
type Refresher struct {
	http    *http.Client
	authURL string
	now     func() time.Time
}

// NewRefresher creates a Refresher against the given auth base URL.
func NewRefresher(authURL string, timeout time.Duration) *Refresher {
	return &Refresher{
		http:    &http.Client{Timeout: timeout},
		authURL: strings.TrimRight(authURL, "/"),
		now:     time.Now,
	}
}

// NewRefresherWithHTTPClient creates a Refresher with a custom http.Client
// and base URL, for tests against an httptest server.
func NewRefresherWithHTTPClient(httpClient *http.Client, authURL string) *Refresher {
	return &Refresher{
		http:    httpClient,
		authURL: strings.TrimRight(authURL, "/"),
		now:     time.Now,
	}
}

// refreshResponse is the auth endpoint's exchange payload. Expiry arrives as
// an absolute expires_at, a relative expires_in, or both.
type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresAt    int64  `json:"expires_at"`
	ExpiresIn    int64  `json:"expires_in"`
	User         *struct {
		Email string `json:"email"`
	} `json:"user"`
}

// Refresh performs exactly one refresh exchange and returns the new
// credential. The old credential is not mutated.
func (r *Refresher) Refresh(ctx context.Context, cred model.Credential) (model.Credential, error) {
	if cred.RefreshToken == "" {
		return model.Credential{}, model.ErrMissingRefreshToken
	}

	body, err := json.Marshal(map[string]string{"refresh_token": cred.RefreshToken})
	if err != nil {
		return model.Credential{}, fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.authURL+refreshPath, bytes.NewReader(body))
	if err != nil {
		return model.Credential{}, fmt.Errorf("build refresh request: %w", err)
	}
	setBrowserHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return model.Credential{}, &model.UpstreamError{Op: "refresh token", Err: fmt.Errorf("%w: %v", model.ErrUnreachable, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
		return model.Credential{}, &model.UpstreamError{
			Op:     "refresh token",
			Status: resp.StatusCode,
			Body:   string(snippet),
			Err:    model.ErrRefreshRejected,
		}
	}

	var payload refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.Credential{}, &model.UpstreamError{Op: "refresh token", Err: fmt.Errorf("decode response: %w", err)}
	}
	if payload.AccessToken == "" {
		return model.Credential{}, &model.UpstreamError{Op: "refresh token", Err: model.ErrRefreshRejected}
	}

	expiresAt := payload.ExpiresAt
	if expiresAt == 0 && payload.ExpiresIn > 0 {
		expiresAt = r.now().Unix() + payload.ExpiresIn
	}

	next := model.Credential{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		ExpiresAt:    expiresAt,
	}
	if payload.User != nil {
		next.SubjectEmail = payload.User.Email
	}
	next.FillFromAccessToken()

	// An exchange that does not rotate the refresh token keeps the old one.
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}

	return next, nil
}
