package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mytt-tools/ttrproxy/internal/application"
	"github.com/mytt-tools/ttrproxy/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body. Upstream status and a
// body snippet are attached when the failure came from the upstream API.
type errorResponse struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	UpstreamBody   string `json:"upstream_body,omitempty"`
}

// writeUpstreamError maps a taxonomy error onto an HTTP status and writes
// it with upstream diagnostics attached when available.
func writeUpstreamError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var ue *model.UpstreamError
	if errors.As(err, &ue) {
		resp.UpstreamStatus = ue.Status
		resp.UpstreamBody = ue.Body
	}

	writeJSON(w, statusForError(err), resp)
}

// statusForError maps the error taxonomy onto response status codes.
// Caller input problems are 4xx, missing credentials 401, the upstream
// quota passes through as 429, and upstream faults surface as 502/504.
func statusForError(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidQuery), errors.Is(err, model.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrUnreachable):
		return http.StatusGatewayTimeout
	case errors.Is(err, model.ErrMissingRefreshToken), errors.Is(err, model.ErrRefreshRejected):
		return http.StatusInternalServerError
	case errors.Is(err, model.ErrUpstreamFault):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// SearchRequest is the JSON body for the search endpoint. WithTTR defaults
// to true when omitted.
type SearchRequest struct {
	Query    string `json:"query"`
	Page     int    `json:"page"`
	PageSize int    `json:"pagesize"`
	WithTTR  *bool  `json:"with_ttr"`
}

// SearchEntryResponse is one plain (unenriched) search row.
type SearchEntryResponse struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Club        string `json:"club"`
	LicenceClub string `json:"licence_club,omitempty"`
}

// PlayerRecordResponse is the JSON representation of a unified player
// record. Rating fields are null when they could not be resolved; the
// reason is in field_errors.
type PlayerRecordResponse struct {
	ID          string            `json:"id"`
	FirstName   string            `json:"first_name"`
	LastName    string            `json:"last_name"`
	Club        string            `json:"club"`
	LicenceClub string            `json:"licence_club,omitempty"`
	TTR         *int              `json:"ttr"`
	QTTR        *int              `json:"qttr"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// SearchResponse is a search result page. Exactly one of Results and
// Records is populated, depending on with_ttr.
type SearchResponse struct {
	Results    []SearchEntryResponse  `json:"results,omitempty"`
	Records    []PlayerRecordResponse `json:"records,omitempty"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"pagesize"`
	TotalCount int                    `json:"total_count"`
	PagesCount int                    `json:"pages_count"`
}

// RatingResponse is the current-rating passthrough body. TTR is null with
// Error set when the upstream call failed.
type RatingResponse struct {
	TTR   *int   `json:"ttr"`
	Error string `json:"error,omitempty"`
}

// HistoryResponse is the rating-history passthrough body.
type HistoryResponse struct {
	PersonName      string `json:"person_name,omitempty"`
	ClubName        string `json:"club_name,omitempty"`
	PreviousQuarter *int   `json:"vq_ttr"`
	Error           string `json:"error,omitempty"`
}

// QTTRPlayerResponse describes the leaderboard row a Q-TTR scan matched.
type QTTRPlayerResponse struct {
	Name string `json:"name"`
	NUID string `json:"nuid"`
	Club string `json:"club"`
	QTTR int    `json:"qttr"`
}

// QTTRResponse is the best-effort quarterly rating body.
type QTTRResponse struct {
	QTTR   *int                `json:"qttr"`
	Player *QTTRPlayerResponse `json:"player,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// AuthStatusResponse reports the credential lifecycle state without any
// network call.
type AuthStatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	State         string `json:"state"`
	Email         string `json:"email,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	ExpiresInMS   int64  `json:"expires_in_ms,omitempty"`
}

// RefreshResponse is the manual-refresh success body.
type RefreshResponse struct {
	ExpiresAt   string `json:"expires_at"`
	ExpiresInMS int64  `json:"expires_in_ms"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// toSearchEntryResponse converts a domain SearchEntry to its JSON representation.
func toSearchEntryResponse(e model.SearchEntry) SearchEntryResponse {
	return SearchEntryResponse{
		ID:          e.ID,
		FirstName:   e.FirstName,
		LastName:    e.LastName,
		Club:        e.Club,
		LicenceClub: e.LicenceClub,
	}
}

// toPlayerRecordResponse converts a domain PlayerRecord to its JSON representation.
func toPlayerRecordResponse(r model.PlayerRecord) PlayerRecordResponse {
	fieldErrors := r.FieldErrors
	if len(fieldErrors) == 0 {
		fieldErrors = nil
	}

	return PlayerRecordResponse{
		ID:          r.ID,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Club:        r.Club,
		LicenceClub: r.LicenceClub,
		TTR:         r.CurrentRating,
		QTTR:        r.PreviousQuarterRating,
		FieldErrors: fieldErrors,
	}
}

// toEnrichedSearchResponse converts an application EnrichedResult.
func toEnrichedSearchResponse(res *application.EnrichedResult) SearchResponse {
	records := make([]PlayerRecordResponse, 0, len(res.Records))
	for _, r := range res.Records {
		records = append(records, toPlayerRecordResponse(r))
	}

	return SearchResponse{
		Records:    records,
		Page:       res.Page,
		PageSize:   res.PageSize,
		TotalCount: res.TotalCount,
		PagesCount: res.PageCount,
	}
}

// toSearchResponse converts a domain SearchResult.
func toSearchResponse(res *model.SearchResult) SearchResponse {
	results := make([]SearchEntryResponse, 0, len(res.Entries))
	for _, e := range res.Entries {
		results = append(results, toSearchEntryResponse(e))
	}

	return SearchResponse{
		Results:    results,
		Page:       res.Page,
		PageSize:   res.PageSize,
		TotalCount: res.TotalCount,
		PagesCount: res.PageCount,
	}
}

// toAuthStatusResponse derives the status body from the lifecycle state and
// credential snapshot.
func toAuthStatusResponse(state model.AuthState, cred *model.Credential, now time.Time) AuthStatusResponse {
	resp := AuthStatusResponse{
		Authenticated: cred != nil && cred.IsValid(now),
		State:         string(state),
	}

	if cred != nil {
		resp.Email = cred.SubjectEmail
		if cred.HasExpiry() {
			resp.ExpiresAt = time.Unix(cred.ExpiresAt, 0).UTC().Format(time.RFC3339)
			resp.ExpiresInMS = cred.ExpiresIn(now).Milliseconds()
		}
	}

	return resp
}
