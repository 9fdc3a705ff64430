package models

import (
	"regexp"
	"strconv"
)

// TourCode identifies a professional golf tour.
type TourCode string

const (
	TourPGA  TourCode = "pga"
	TourEuro TourCode = "euro"
	TourLIV  TourCode = "liv"
)

// HasCut reports whether the tour applies a mid-tournament elimination.
// LIV plays three rounds with the full field throughout.
func (t TourCode) HasCut() bool {
	return t != TourLIV
}

// FinalRound returns the last scheduled round for the tour.
func (t TourCode) FinalRound() int {
	if t == TourLIV {
		return 3
	}
	return 4
}

// IsSupportedTour checks a tour code against the known tours.
func IsSupportedTour(t TourCode) bool {
	switch t {
	case TourPGA, TourEuro, TourLIV:
		return true
	}
	return false
}

// MarketKey identifies a betting market for a recommendation.
type MarketKey string

const (
	MarketWin     MarketKey = "win"
	MarketMissCut MarketKey = "mc"
	MarketMakeCut MarketKey = "make_cut"
	MarketFRL     MarketKey = "frl"
)

var topNPattern = regexp.MustCompile(`^top_?([0-9]+)$`)

// TopN extracts N from a top-N market key such as "top_5" or "top10".
func (m MarketKey) TopN() (int, bool) {
	match := topNPattern.FindStringSubmatch(string(m))
	if match == nil {
		return 0, false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// IsCutMarket reports whether the market settles on the cut line.
func (m MarketKey) IsCutMarket() bool {
	return m == MarketMissCut || m == MarketMakeCut
}

// IsKnown reports whether the market has settlement rules.
func (m MarketKey) IsKnown() bool {
	if _, ok := m.TopN(); ok {
		return true
	}
	switch m {
	case MarketWin, MarketMissCut, MarketMakeCut, MarketFRL:
		return true
	}
	return false
}

// PlayerStatus is the live-feed status of a player. The zero value means
// the player is still active in the tournament.
type PlayerStatus string

const (
	StatusActive       PlayerStatus = ""
	StatusMissedCut    PlayerStatus = "MC"
	StatusWithdrawn    PlayerStatus = "WD"
	StatusDisqualified PlayerStatus = "DQ"
)

// Out reports whether the player is out of the tournament entirely.
func (s PlayerStatus) Out() bool {
	return s == StatusMissedCut || s == StatusWithdrawn || s == StatusDisqualified
}

// Outcome is a settlement state for a tracked recommendation. A nil
// *Outcome means the row cannot be settled under current data, which is
// distinct from OutcomePending ("wait longer").
type Outcome string

const (
	OutcomeWon     Outcome = "won"
	OutcomeLost    Outcome = "lost"
	OutcomePush    Outcome = "push"
	OutcomePending Outcome = "pending"
)

// Terminal reports whether the outcome can no longer change.
func (o Outcome) Terminal() bool {
	return o == OutcomeWon || o == OutcomeLost || o == OutcomePush
}

// OutcomeOf returns a pointer to a copy of o.
func OutcomeOf(o Outcome) *Outcome {
	return &o
}

// TrackingStatus describes a tournament as seen by the tracking engine.
type TrackingStatus string

const (
	TrackingUpcoming  TrackingStatus = "upcoming"
	TrackingLive      TrackingStatus = "live"
	TrackingNoData    TrackingStatus = "in_progress_no_data"
	TrackingCompleted TrackingStatus = "completed"
)
