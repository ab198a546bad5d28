package model

// SearchEntry is one partial player row from the upstream search endpoint.
// Search results carry identity and club data but no rating fields.
type SearchEntry struct {
	ID           string // upstream NUID ("NU..." internal id)
	FirstName    string
	LastName     string
	Club         string
	LicenceClub  string
	PersonID     string
	DTTBPlayerID string
}

// SearchResult is an ordered page of search entries with pagination metadata.
type SearchResult struct {
	Entries    []SearchEntry
	Page       int
	PageSize   int
	TotalCount int
	PageCount  int
}

// RatingInfo is the current rating of a single player.
type RatingInfo struct {
	PlayerID string
	Rating   int
}

// RatingHistory is the rating timeline summary for a single player. The
// previous-quarter value (upstream vq_ttr) is what the aggregator joins
// into player records.
type RatingHistory struct {
	PlayerID        string
	PersonName      string
	ClubName        string
	PreviousQuarter int // 0 when the upstream reports none
}

// PlayerRecord is the unified record built from search, rating, and history
// data. Fields that could not be resolved stay at their zero value with the
// failure recorded in FieldErrors; a record is returned even under partial
// upstream failure.
type PlayerRecord struct {
	ID                    string
	FirstName             string
	LastName              string
	Club                  string
	LicenceClub           string
	CurrentRating         *int
	PreviousQuarterRating *int
	FieldErrors           map[string]string
}

// LeaderboardEntry is one row of the public ranking snapshot used by the
// best-effort Q-TTR lookup.
type LeaderboardEntry struct {
	NUID       string
	InternalID string
	FirstName  string
	LastName   string
	Club       string
	FedRank    int // quarterly rating in the public snapshot
}

// Leaderboard is the public ranking snapshot.
type Leaderboard struct {
	Entries     []LeaderboardEntry
	AccessLevel string
}
