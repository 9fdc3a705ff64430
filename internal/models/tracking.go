package models

import (
	"time"

	"github.com/google/uuid"
)

// MovementDirection classifies price movement against the baseline.
type MovementDirection string

const (
	MovementUp   MovementDirection = "UP"
	MovementDown MovementDirection = "DOWN"
	MovementFlat MovementDirection = "FLAT"
)

// OddsMovement is the computed drift of a current price from its baseline.
// PctChange is nil when the baseline is exactly zero.
type OddsMovement struct {
	Direction    MovementDirection `json:"direction"`
	DeltaDecimal float64           `json:"delta_decimal"`
	PctChange    *float64          `json:"pct_change,omitempty"`
}

// TrackingRow is the per-recommendation view assembled on every tracking
// request. Rows are recomputed each call and never persisted.
type TrackingRow struct {
	RecommendationID uuid.UUID `json:"recommendation_id"`
	PlayerName       string    `json:"player_name"`
	ExternalPlayerID *string   `json:"external_player_id,omitempty"`
	Market           MarketKey `json:"market"`
	Tier             string    `json:"tier,omitempty"`

	// Live scoring fields, absent when the player was not found in the feed.
	Position     *int         `json:"position,omitempty"`
	Status       PlayerStatus `json:"status"`
	RoundScores  [4]*int      `json:"round_scores"`
	CurrentRound *int         `json:"current_round,omitempty"`
	ThruHoles    *int         `json:"thru_holes,omitempty"`

	// Model probabilities passed through from the scoring feed.
	WinProb     *float64 `json:"win_prob,omitempty"`
	Top5Prob    *float64 `json:"top5_prob,omitempty"`
	Top10Prob   *float64 `json:"top10_prob,omitempty"`
	Top20Prob   *float64 `json:"top20_prob,omitempty"`
	MakeCutProb *float64 `json:"make_cut_prob,omitempty"`

	BaselinePrice      *float64   `json:"baseline_price,omitempty"`
	BaselineBook       string     `json:"baseline_book,omitempty"`
	BaselineCapturedAt *time.Time `json:"baseline_captured_at,omitempty"`

	CurrentPrice *float64   `json:"current_price,omitempty"`
	CurrentBook  string     `json:"current_book,omitempty"`
	FetchedAt    *time.Time `json:"fetched_at,omitempty"`
	CrossBook    bool       `json:"cross_book"`

	Movement *OddsMovement `json:"movement,omitempty"`
	Outcome  *Outcome      `json:"outcome,omitempty"`
}

// TournamentTrackingResponse is the full per-tournament response shape.
// Rows carry everything a caller needs to render without further joins.
type TournamentTrackingResponse struct {
	TournamentID uuid.UUID      `json:"tournament_id"`
	ExternalID   string         `json:"external_id"`
	Tour         TourCode       `json:"tour"`
	Name         string         `json:"name"`
	StartDate    time.Time      `json:"start_date"`
	EndDate      time.Time      `json:"end_date"`
	Status       TrackingStatus `json:"status"`
	GeneratedAt  time.Time      `json:"generated_at"`
	Rows         []TrackingRow  `json:"rows"`
	Issues       []DataIssue    `json:"issues"`
}

// TourTrackingResponse bundles the tracking views for every active
// tournament across a list of tours.
type TourTrackingResponse struct {
	Tours       []TourCode                   `json:"tours"`
	GeneratedAt time.Time                    `json:"generated_at"`
	Tournaments []TournamentTrackingResponse `json:"tournaments"`
	Issues      []DataIssue                  `json:"issues"`
}

// DiscoveredTournament is one entry in a discovery response, after duplicate
// tournament records have been merged.
type DiscoveredTournament struct {
	ID             uuid.UUID      `json:"id"`
	ExternalID     string         `json:"external_id"`
	Tour           TourCode       `json:"tour"`
	Name           string         `json:"name"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        time.Time      `json:"end_date"`
	Status         TrackingStatus `json:"status"`
	TrackedCount   int            `json:"tracked_count"`
	DaysUntilStart *int           `json:"days_until_start,omitempty"`
}

// DiscoveryResponse is the per-tour-list response shape.
type DiscoveryResponse struct {
	Tours       []TourCode             `json:"tours"`
	GeneratedAt time.Time              `json:"generated_at"`
	Tournaments []DiscoveredTournament `json:"tournaments"`
	Issues      []DataIssue            `json:"issues"`
}
