package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mytt-tools/ttrproxy/internal/domain/model"
	"github.com/mytt-tools/ttrproxy/internal/domain/port/driven"
)

// EnrichedResult is a search page whose entries have been joined with
// rating data. Records keep the order and count of the underlying search
// result regardless of enrichment completion order.
type EnrichedResult struct {
	Records    []model.PlayerRecord
	Page       int
	PageSize   int
	TotalCount int
	PageCount  int
}

// QuarterlyRating is the best-effort result of the public leaderboard scan.
type QuarterlyRating struct {
	Rating *int
	Player *model.LeaderboardEntry
	Error  string
}

// Aggregator fans out upstream calls per logical request and merges the
// partial results into unified player records. Per-player enrichment
// failures are folded into field errors; only a failed base search is
// fatal to a whole request.
type Aggregator struct {
	gateway     driven.UpstreamGateway
	auth        *AuthService
	concurrency int
}

// NewAggregator creates an Aggregator. concurrency caps the number of
// simultaneous upstream enrichment calls to stay clear of the quota.
func NewAggregator(gateway driven.UpstreamGateway, auth *AuthService, concurrency int) *Aggregator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Aggregator{
		gateway:     gateway,
		auth:        auth,
		concurrency: concurrency,
	}
}

// Search runs the plain player search without enrichment.
func (a *Aggregator) Search(ctx context.Context, query string, page, pageSize int) (*model.SearchResult, error) {
	return a.gateway.SearchPlayers(ctx, query, page, pageSize)
}

// enrichSlot collects one entry's sub-call results before the join. Each
// goroutine writes only its own fields, so the slice needs no locking.
type enrichSlot struct {
	rating     *model.RatingInfo
	ratingErr  error
	history    *model.RatingHistory
	historyErr error
}

// EnrichedSearch runs the base search, then fetches rating and rating
// history for every entry concurrently (bounded) and merges the results
// back by index into the original search order.
func (a *Aggregator) EnrichedSearch(ctx context.Context, query string, page, pageSize int) (*EnrichedResult, error) {
	result, err := a.gateway.SearchPlayers(ctx, query, page, pageSize)
	if err != nil {
		return nil, err
	}

	// One auth snapshot for the whole logical request.
	blob := a.auth.EnsureFresh(ctx)

	slots := make([]enrichSlot, len(result.Entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, entry := range result.Entries {
		if entry.ID == "" {
			continue
		}
		g.Go(func() error {
			slots[i].rating, slots[i].ratingErr = a.gateway.GetRating(gctx, blob, entry.ID)
			return nil
		})
		g.Go(func() error {
			slots[i].history, slots[i].historyErr = a.gateway.GetRatingHistory(gctx, blob, entry.ID)
			return nil
		})
	}
	// Goroutines never return errors; failures live in the slots.
	_ = g.Wait()

	records := make([]model.PlayerRecord, len(result.Entries))
	for i, entry := range result.Entries {
		records[i] = joinRecord(entry, slots[i])
	}

	return &EnrichedResult{
		Records:    records,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalCount: result.TotalCount,
		PageCount:  result.PageCount,
	}, nil
}

// joinRecord is the single place partial failure becomes optional fields
// plus recorded errors.
func joinRecord(entry model.SearchEntry, slot enrichSlot) model.PlayerRecord {
	record := model.PlayerRecord{
		ID:          entry.ID,
		FirstName:   entry.FirstName,
		LastName:    entry.LastName,
		Club:        entry.Club,
		LicenceClub: entry.LicenceClub,
		FieldErrors: map[string]string{},
	}

	if entry.ID == "" {
		record.FieldErrors["id"] = "search result has no player id"
		return record
	}

	if slot.ratingErr != nil {
		record.FieldErrors["currentRating"] = slot.ratingErr.Error()
	} else if slot.rating != nil {
		rating := slot.rating.Rating
		record.CurrentRating = &rating
	}

	if slot.historyErr != nil {
		record.FieldErrors["previousQuarterRating"] = slot.historyErr.Error()
	} else if slot.history != nil && slot.history.PreviousQuarter > 0 {
		prev := slot.history.PreviousQuarter
		record.PreviousQuarterRating = &prev
	}

	return record
}

// PlayerByID builds a unified record for one player: rating and history
// fetched concurrently, plus a derived search keyed by the surname from the
// history display name to recover club and licence data. A rating failure
// fails the whole operation with ErrNotFound -- rating existence is the
// existence check -- while history and derived-search failures only degrade
// optional fields.
func (a *Aggregator) PlayerByID(ctx context.Context, id string) (*model.PlayerRecord, error) {
	blob := a.auth.EnsureFresh(ctx)

	var (
		rating     *model.RatingInfo
		ratingErr  error
		history    *model.RatingHistory
		historyErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rating, ratingErr = a.gateway.GetRating(gctx, blob, id)
		return nil
	})
	g.Go(func() error {
		history, historyErr = a.gateway.GetRatingHistory(gctx, blob, id)
		return nil
	})
	_ = g.Wait()

	if ratingErr != nil {
		if errors.Is(ratingErr, model.ErrNotFound) {
			return nil, fmt.Errorf("player %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("player %s: %w", id, ratingErr)
	}

	record := model.PlayerRecord{
		ID:          id,
		FieldErrors: map[string]string{},
	}
	currentRating := rating.Rating
	record.CurrentRating = &currentRating

	if historyErr != nil {
		record.FieldErrors["previousQuarterRating"] = historyErr.Error()
	} else {
		if history.PreviousQuarter > 0 {
			prev := history.PreviousQuarter
			record.PreviousQuarterRating = &prev
		}
		record.Club = history.ClubName
		record.FirstName, record.LastName = splitDisplayName(history.PersonName)
	}

	a.recoverClubData(ctx, &record)

	return &record, nil
}

// recoverClubData runs the derived surname search to recover the licence
// club (and the club when history gave none). Strictly best-effort: any
// failure is recorded as a field error and the record is returned anyway.
func (a *Aggregator) recoverClubData(ctx context.Context, record *model.PlayerRecord) {
	if record.LastName == "" || len([]rune(record.LastName)) < 3 {
		return
	}

	result, err := a.gateway.SearchPlayers(ctx, record.LastName, 1, 50)
	if err != nil {
		record.FieldErrors["licenceClub"] = err.Error()
		slog.Debug("derived club search failed", "player", record.ID, "error", err)
		return
	}

	for _, entry := range result.Entries {
		if entry.ID != record.ID {
			continue
		}
		record.LicenceClub = entry.LicenceClub
		if record.Club == "" {
			record.Club = entry.Club
		}
		if record.FirstName == "" {
			record.FirstName = entry.FirstName
		}
		return
	}
}

// QuarterlyRatingByID scans the public leaderboard snapshot for the player.
// Best-effort: any failure, including the player simply not appearing in
// the snapshot, produces a null rating with a reason, never an error.
func (a *Aggregator) QuarterlyRatingByID(ctx context.Context, id string) QuarterlyRating {
	board, err := a.gateway.FetchLeaderboard(ctx)
	if err != nil {
		return QuarterlyRating{Error: err.Error()}
	}

	for _, entry := range board.Entries {
		if entry.NUID == id || entry.InternalID == id {
			rating := entry.FedRank
			return QuarterlyRating{Rating: &rating, Player: &entry}
		}
	}

	return QuarterlyRating{
		Error: fmt.Sprintf("player %s not in the current ranking snapshot (%d entries)", id, len(board.Entries)),
	}
}

// splitDisplayName splits an upstream display name ("Anna Meier") into
// first and last name. The surname is the final space-separated token.
func splitDisplayName(name string) (first, last string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	last = fields[len(fields)-1]
	first = strings.Join(fields[:len(fields)-1], " ")
	return first, last
}
