package application

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mytt-tools/ttrproxy/internal/domain/model"
	"github.com/mytt-tools/ttrproxy/internal/domain/port/driven"
)

// AuthService is the credential lifecycle monitor. The lifecycle state is
// never stored; it is recomputed from the credential and the clock on every
// tick and on demand before authenticated upstream calls. Both paths funnel
// into one refresh routine: concurrent triggers are coalesced so at most
// one exchange is in flight (the upstream refresh token is single-use, a
// duplicate exchange could invalidate the in-flight one).
type AuthService struct {
	creds     *Credentials
	refresher driven.TokenRefresher

	checkInterval time.Duration
	forceWindow   time.Duration
	warnWindow    time.Duration

	group singleflight.Group
	now   func() time.Time
}

// NewAuthService creates the monitor. forceWindow is the remaining lifetime
// below which a refresh is triggered; warnWindow (larger) only logs.
func NewAuthService(creds *Credentials, refresher driven.TokenRefresher, checkInterval, forceWindow, warnWindow time.Duration) *AuthService {
	return &AuthService{
		creds:         creds,
		refresher:     refresher,
		checkInterval: checkInterval,
		forceWindow:   forceWindow,
		warnWindow:    warnWindow,
		now:           time.Now,
	}
}

// State returns the current lifecycle state and the credential snapshot it
// was computed from. No network calls.
func (s *AuthService) State() (model.AuthState, *model.Credential) {
	cred := s.creds.Current()
	return model.StateOf(cred, s.now(), s.forceWindow), cred
}

// Start runs the periodic expiry check until the context is canceled.
// It performs an immediate check, then one per interval.
func (s *AuthService) Start(ctx context.Context) {
	s.tick(ctx)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("expiry monitor stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick evaluates the lifecycle state and refreshes when the credential is
// expired or inside the force window. A refresh failure is logged and the
// stale credential stays in place; authenticated calls then fail
// individually instead of the process dying.
func (s *AuthService) tick(ctx context.Context) {
	state, cred := s.State()

	switch state {
	case model.StateExpired, model.StateNearExpiry:
		if _, err := s.Refresh(ctx); err != nil {
			slog.Error("scheduled refresh failed, keeping stale credential", "state", string(state), "error", err)
		}
	case model.StateFresh:
		if cred != nil && cred.IsNearExpiry(s.now(), s.warnWindow) {
			slog.Warn("credential approaching expiry",
				"expires_in", cred.ExpiresIn(s.now()).Round(time.Second),
			)
		}
	case model.StateNoCredential:
		slog.Debug("expiry check: no credential")
	}
}

// EnsureFresh is the on-demand check run before authenticated upstream
// calls. It refreshes synchronously if the credential is expired or inside
// the force window, then returns the blob to attach -- the stale blob when
// the refresh failed, or "" when there is no credential at all.
func (s *AuthService) EnsureFresh(ctx context.Context) string {
	state, _ := s.State()
	if state == model.StateExpired || state == model.StateNearExpiry {
		if _, err := s.Refresh(ctx); err != nil {
			slog.Warn("on-demand refresh failed, using stale credential", "error", err)
		}
	}
	return s.creds.CurrentBlob()
}

// Refresh performs the exchange-and-persist sequence. Concurrent callers
// are coalesced onto a single in-flight exchange and all receive its
// result. The new credential is not applied in memory unless persistence
// succeeds, keeping memory and durable storage consistent.
func (s *AuthService) Refresh(ctx context.Context) (model.Credential, error) {
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		cred := s.creds.Current()
		if cred == nil {
			return nil, model.ErrUnauthenticated
		}

		next, err := s.refresher.Refresh(ctx, *cred)
		if err != nil {
			return nil, err
		}

		if err := s.creds.Persist(ctx, next); err != nil {
			return nil, err
		}

		slog.Info("credential refreshed",
			"expires_at", time.Unix(next.ExpiresAt, 0).UTC().Format(time.RFC3339),
		)
		return next, nil
	})
	if err != nil {
		return model.Credential{}, err
	}
	return v.(model.Credential), nil
}
