// Package mytischtennis implements the UpstreamGateway and TokenRefresher
// ports against the mytischtennis.de API.
package mytischtennis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gregjones/httpcache"

	"github.com/mytt-tools/ttrproxy/internal/domain/model"
	"github.com/mytt-tools/ttrproxy/internal/domain/port/driven"
)

// authCookieName is the upstream session cookie carrying the encoded
// credential blob.
const authCookieName = "sb-10-auth-token"

// maxBodySnippet bounds how much of an upstream error body is kept for
// diagnostics.
const maxBodySnippet = 2048

// Compile-time interface satisfaction check.
var _ driven.UpstreamGateway = (*Client)(nil)

// Client implements the driven.UpstreamGateway port. Its transport stack is
//  1. httpcache (in-memory response caching, softens the 90 req/h quota)
//  2. net/http with a fixed per-request timeout
//
// The upstream only answers requests that look like a browser, so every
// call carries a browser profile header set.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates an upstream client for the given base URL
// (e.g. https://www.mytischtennis.de) with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and
// base URL. This constructor is intended for testing, allowing injection of
// an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// searchResponse is the upstream search payload.
type searchResponse struct {
	Results []struct {
		FirstName    string `json:"firstname"`
		LastName     string `json:"lastname"`
		InternalID   string `json:"internal_id"`
		ClubName     string `json:"club_name"`
		LicenceClub  string `json:"licence_club"`
		PersonID     string `json:"person_id"`
		DTTBPlayerID string `json:"dttb_player_id"`
	} `json:"results"`
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PagesCount int `json:"pages_count"`
}

// SearchPlayers runs the public player search. The three-character minimum
// is enforced before any network call.
func (c *Client) SearchPlayers(ctx context.Context, query string, page, pageSize int) (*model.SearchResult, error) {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < 3 {
		return nil, model.ErrInvalidQuery
	}

	form := url.Values{}
	form.Set("query", query)
	form.Set("page", strconv.Itoa(page))
	form.Set("pagesize", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/search/players", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	setBrowserHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var payload searchResponse
	if err := c.do(req, "search players", &payload); err != nil {
		return nil, err
	}

	entries := make([]model.SearchEntry, 0, len(payload.Results))
	for _, r := range payload.Results {
		entries = append(entries, model.SearchEntry{
			ID:           r.InternalID,
			FirstName:    r.FirstName,
			LastName:     r.LastName,
			Club:         r.ClubName,
			LicenceClub:  r.LicenceClub,
			PersonID:     r.PersonID,
			DTTBPlayerID: r.DTTBPlayerID,
		})
	}

	resultPage := payload.Page
	if resultPage == 0 {
		resultPage = page
	}

	return &model.SearchResult{
		Entries:    entries,
		Page:       resultPage,
		PageSize:   pageSize,
		TotalCount: payload.TotalCount,
		PageCount:  payload.PagesCount,
	}, nil
}

// ratingResponse is the upstream current-rating payload.
type ratingResponse struct {
	TTR *int `json:"ttr"`
}

// GetRating fetches the current rating for a player. authBlob is attached
// as the upstream auth cookie; an empty blob fails without a network call.
func (c *Client) GetRating(ctx context.Context, authBlob, playerID string) (*model.RatingInfo, error) {
	req, err := c.authedGet(ctx, authBlob, "/api/ttr/player/"+url.PathEscape(playerID))
	if err != nil {
		return nil, err
	}

	var payload ratingResponse
	if err := c.do(req, "get rating", &payload); err != nil {
		return nil, err
	}

	// A response without a rating means the upstream does not know the
	// player; rating existence is the existence check.
	if payload.TTR == nil {
		return nil, &model.UpstreamError{Op: "get rating", Status: http.StatusOK, Err: model.ErrNotFound}
	}

	return &model.RatingInfo{PlayerID: playerID, Rating: *payload.TTR}, nil
}

// historyResponse is the upstream rating-history payload.
type historyResponse struct {
	PersonName string `json:"person_name"`
	ClubName   string `json:"club_name"`
	VQTTR      int    `json:"vq_ttr"`
}

// GetRatingHistory fetches the rating timeline summary, including the
// previous-quarter value.
func (c *Client) GetRatingHistory(ctx context.Context, authBlob, playerID string) (*model.RatingHistory, error) {
	req, err := c.authedGet(ctx, authBlob, "/api/ttr/history/"+url.PathEscape(playerID))
	if err != nil {
		return nil, err
	}

	var payload historyResponse
	if err := c.do(req, "get rating history", &payload); err != nil {
		return nil, err
	}

	return &model.RatingHistory{
		PlayerID:        playerID,
		PersonName:      payload.PersonName,
		ClubName:        payload.ClubName,
		PreviousQuarter: payload.VQTTR,
	}, nil
}

// leaderboardResponse is the public ranking snapshot payload. The block key
// inside blockLoaderData is dynamic, so it is decoded as a map.
type leaderboardResponse struct {
	BlockLoaderData map[string]struct {
		Data []struct {
			NUID       string `json:"nuid"`
			InternalID string `json:"internal_id"`
			FirstName  string `json:"firstname"`
			LastName   string `json:"lastname"`
			Club       string `json:"club"`
			FedRank    int    `json:"fedRank"`
		} `json:"data"`
	} `json:"blockLoaderData"`
	AccessLevel string `json:"userContentAccessLevel"`
}

// FetchLeaderboard fetches the public ranking snapshot used by the
// best-effort quarterly-rating lookup. Without authentication the snapshot
// exposes the quarterly value only.
func (c *Client) FetchLeaderboard(ctx context.Context) (*model.Leaderboard, error) {
	params := url.Values{}
	params.Set("_data", "routes/$")
	params.Set("current-ranking", "no")
	params.Set("results-per-page", "500")
	params.Set("page", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/andro-ranking?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build leaderboard request: %w", err)
	}
	setBrowserHeaders(req)

	var payload leaderboardResponse
	if err := c.do(req, "fetch leaderboard", &payload); err != nil {
		return nil, err
	}

	board := &model.Leaderboard{AccessLevel: payload.AccessLevel}
	for _, block := range payload.BlockLoaderData {
		if len(block.Data) == 0 {
			continue
		}
		for _, p := range block.Data {
			board.Entries = append(board.Entries, model.LeaderboardEntry{
				NUID:       p.NUID,
				InternalID: p.InternalID,
				FirstName:  p.FirstName,
				LastName:   p.LastName,
				Club:       p.Club,
				FedRank:    p.FedRank,
			})
		}
		break
	}

	return board, nil
}

// authedGet builds an authenticated GET request with the credential blob
// attached as the upstream session cookie.
func (c *Client) authedGet(ctx context.Context, authBlob, path string) (*http.Request, error) {
	if authBlob == "" {
		return nil, model.ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	setBrowserHeaders(req)
	req.AddCookie(&http.Cookie{Name: authCookieName, Value: authBlob})

	return req, nil
}

// do executes the request, maps non-2xx statuses onto the error taxonomy,
// and decodes a successful JSON body into out.
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &model.UpstreamError{Op: op, Err: fmt.Errorf("%w: %v", model.ErrUnreachable, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
		return &model.UpstreamError{
			Op:     op,
			Status: resp.StatusCode,
			Body:   string(body),
			Err:    classifyStatus(resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &model.UpstreamError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}

	logQuota(resp, op)
	return nil
}

// classifyStatus maps an upstream HTTP status onto a taxonomy sentinel.
func classifyStatus(status int) error {
	switch status {
	case http.StatusTooManyRequests:
		return model.ErrRateLimited
	case http.StatusBadRequest:
		return model.ErrBadRequest
	case http.StatusNotFound:
		return model.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.ErrUnauthenticated
	default:
		return model.ErrUpstreamFault
	}
}

// logQuota logs the upstream quota headers when present. The quota is a
// fixed 90 requests/hour.
func logQuota(resp *http.Response, op string) {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return
	}

	slog.Debug("upstream call", "op", op, "quota_remaining", remaining)

	if n, err := strconv.Atoi(remaining); err == nil && n < 10 {
		slog.Warn("upstream quota low", "op", op, "remaining", n)
	}
}

// setBrowserHeaders applies the browser profile the upstream expects.
func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")
	req.Header.Set("Origin", "https://www.mytischtennis.de")
	req.Header.Set("Referer", "https://www.mytischtennis.de/")
}
