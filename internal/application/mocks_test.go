package application_test

import (
	"context"
	"sync"
	"time"

	"github.com/mytt-tools/ttrproxy/internal/domain/model"
)

// mockStore is an in-memory CredentialStore with injectable failures.
type mockStore struct {
	mu     sync.Mutex
	blob   string
	getErr error
	setErr error
}

func (s *mockStore) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", s.getErr
	}
	return s.blob, nil
}

func (s *mockStore) Set(_ context.Context, blob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.blob = blob
	return nil
}

func (s *mockStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = ""
	return nil
}

// mockRefresher counts exchanges and optionally delays to widen the window
// in which concurrent callers should coalesce.
type mockRefresher struct {
	mu     sync.Mutex
	calls  int
	delay  time.Duration
	result model.Credential
	err    error
}

func (r *mockRefresher) Refresh(_ context.Context, _ model.Credential) (model.Credential, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	if r.err != nil {
		return model.Credential{}, r.err
	}
	return r.result, nil
}

func (r *mockRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// mockGateway implements driven.UpstreamGateway via injectable functions.
// Nil functions fail the call, so tests only define what they use.
type mockGateway struct {
	searchFn      func(ctx context.Context, query string, page, pageSize int) (*model.SearchResult, error)
	ratingFn      func(ctx context.Context, authBlob, playerID string) (*model.RatingInfo, error)
	historyFn     func(ctx context.Context, authBlob, playerID string) (*model.RatingHistory, error)
	leaderboardFn func(ctx context.Context) (*model.Leaderboard, error)
}

func (g *mockGateway) SearchPlayers(ctx context.Context, query string, page, pageSize int) (*model.SearchResult, error) {
	if g.searchFn == nil {
		return nil, model.ErrUpstreamFault
	}
	return g.searchFn(ctx, query, page, pageSize)
}

func (g *mockGateway) GetRating(ctx context.Context, authBlob, playerID string) (*model.RatingInfo, error) {
	if g.ratingFn == nil {
		return nil, model.ErrUpstreamFault
	}
	return g.ratingFn(ctx, authBlob, playerID)
}

func (g *mockGateway) GetRatingHistory(ctx context.Context, authBlob, playerID string) (*model.RatingHistory, error) {
	if g.historyFn == nil {
		return nil, model.ErrUpstreamFault
	}
	return g.historyFn(ctx, authBlob, playerID)
}

func (g *mockGateway) FetchLeaderboard(ctx context.Context) (*model.Leaderboard, error) {
	if g.leaderboardFn == nil {
		return nil, model.ErrUpstreamFault
	}
	return g.leaderboardFn(ctx)
}
