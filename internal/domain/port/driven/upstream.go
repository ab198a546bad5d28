package driven

import (
	"context"

	"github.com/mytt-tools/ttrproxy/internal/domain/model"
)

// UpstreamGateway defines the driven port for the mytischtennis.de API.
//
// Authenticated operations take the credential blob explicitly: the caller
// captures it once per logical request, so a refresh triggered by a
// concurrent request cannot tear a single call's authentication.
type UpstreamGateway interface {
	// SearchPlayers runs the public player search. Queries shorter than
	// three characters fail with model.ErrInvalidQuery before any network
	// call is attempted.
	SearchPlayers(ctx context.Context, query string, page, pageSize int) (*model.SearchResult, error)

	// GetRating fetches the current rating for a player. authBlob is the
	// encoded credential attached as the upstream auth cookie.
	GetRating(ctx context.Context, authBlob, playerID string) (*model.RatingInfo, error)

	// GetRatingHistory fetches the rating timeline summary, including the
	// previous-quarter value.
	GetRatingHistory(ctx context.Context, authBlob, playerID string) (*model.RatingHistory, error)

	// FetchLeaderboard fetches the public ranking snapshot. Unauthenticated;
	// used only by the best-effort quarterly-rating lookup.
	FetchLeaderboard(ctx context.Context) (*model.Leaderboard, error)
}

// TokenRefresher defines the driven port for the credential refresh
// exchange. Refresh performs exactly one exchange call and returns the new
// credential; persisting it is the caller's responsibility.
type TokenRefresher interface {
	Refresh(ctx context.Context, cred model.Credential) (model.Credential, error)
}
