package mytischtennis_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytt-tools/ttrproxy/internal/adapter/driven/mytischtennis"
	"github.com/mytt-tools/ttrproxy/internal/domain/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *mytischtennis.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return mytischtennis.NewClientWithHTTPClient(srv.Client(), srv.URL)
}

func TestClient_SearchPlayersShortQueryNeverHitsNetwork(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected upstream call: %s %s", r.Method, r.URL.Path)
	})

	for _, query := range []string{"", "  ", "ab", " ab "} {
		_, err := client.SearchPlayers(context.Background(), query, 1, 10)
		assert.ErrorIs(t, err, model.ErrInvalidQuery, "query %q", query)
	}
}

func TestClient_SearchPlayers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/search/players", r.URL.Path)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Mueller", r.PostForm.Get("query"))
		assert.Equal(t, "2", r.PostForm.Get("page"))
		assert.Equal(t, "25", r.PostForm.Get("pagesize"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"), "upstream requires a browser profile")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"results": [
				{"firstname":"Hans","lastname":"Mueller","internal_id":"NU1001","club_name":"TSV Nord","licence_club":"TSV Nord II","person_id":"P1","dttb_player_id":"D1"}
			],
			"total_count": 41,
			"page": 2,
			"pages_count": 5
		}`))
	})

	result, err := client.SearchPlayers(context.Background(), "Mueller", 2, 25)
	require.NoError(t, err)

	require.Len(t, result.Entries, 1)
	entry := result.Entries[0]
	assert.Equal(t, "NU1001", entry.ID)
	assert.Equal(t, "Hans", entry.FirstName)
	assert.Equal(t, "Mueller", entry.LastName)
	assert.Equal(t, "TSV Nord", entry.Club)
	assert.Equal(t, "TSV Nord II", entry.LicenceClub)
	assert.Equal(t, 41, result.TotalCount)
	assert.Equal(t, 2, result.Page)
	assert.Equal(t, 5, result.PageCount)
}

func TestClient_GetRatingAttachesAuthCookie(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ttr/player/NU1001", r.URL.Path)

		cookie, err := r.Cookie("sb-10-auth-token")
		require.NoError(t, err, "credential blob must arrive as the auth cookie")
		assert.Equal(t, "base64-blob", cookie.Value)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ttr": 1845}`))
	})

	rating, err := client.GetRating(context.Background(), "base64-blob", "NU1001")
	require.NoError(t, err)
	assert.Equal(t, 1845, rating.Rating)
	assert.Equal(t, "NU1001", rating.PlayerID)
}

func TestClient_GetRatingWithoutBlobFailsLocally(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected upstream call: %s", r.URL.Path)
	})

	_, err := client.GetRating(context.Background(), "", "NU1001")
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestClient_GetRatingNullRatingIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ttr": null}`))
	})

	_, err := client.GetRating(context.Background(), "base64-blob", "NU9999")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestClient_GetRatingHistory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ttr/history/NU1001", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"person_name":"Hans Mueller","club_name":"TSV Nord","vq_ttr":1820}`))
	})

	history, err := client.GetRatingHistory(context.Background(), "base64-blob", "NU1001")
	require.NoError(t, err)
	assert.Equal(t, "Hans Mueller", history.PersonName)
	assert.Equal(t, "TSV Nord", history.ClubName)
	assert.Equal(t, 1820, history.PreviousQuarter)
}

func TestClient_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, model.ErrRateLimited},
		{http.StatusBadRequest, model.ErrBadRequest},
		{http.StatusNotFound, model.ErrNotFound},
		{http.StatusUnauthorized, model.ErrUnauthenticated},
		{http.StatusForbidden, model.ErrUnauthenticated},
		{http.StatusInternalServerError, model.ErrUpstreamFault},
		{http.StatusBadGateway, model.ErrUpstreamFault},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "upstream says no", tc.status)
			})

			_, err := client.GetRating(context.Background(), "base64-blob", "NU1001")
			require.ErrorIs(t, err, tc.want)

			var ue *model.UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tc.status, ue.Status)
			assert.Contains(t, ue.Body, "upstream says no")
		})
	}
}

func TestClient_TransportFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := mytischtennis.NewClientWithHTTPClient(srv.Client(), srv.URL)
	srv.Close()

	_, err := client.GetRating(context.Background(), "base64-blob", "NU1001")
	assert.ErrorIs(t, err, model.ErrUnreachable)
}

func TestClient_FetchLeaderboard(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/andro-ranking", r.URL.Path)
		assert.Equal(t, "routes/$", r.URL.Query().Get("_data"))
		assert.Equal(t, "no", r.URL.Query().Get("current-ranking"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"blockLoaderData": {
				"block-7f3a": {
					"data": [
						{"nuid":"NU1001","internal_id":"4711","firstname":"Hans","lastname":"Mueller","club":"TSV Nord","fedRank":1832}
					]
				}
			},
			"userContentAccessLevel": "anonymous"
		}`))
	})

	board, err := client.FetchLeaderboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "anonymous", board.AccessLevel)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "NU1001", board.Entries[0].NUID)
	assert.Equal(t, "4711", board.Entries[0].InternalID)
	assert.Equal(t, 1832, board.Entries[0].FedRank)
}
