package models

// ScoringRow is the canonical shape of one live-scoring feed row after
// normalization. Upstream responses rename and drop fields freely; the
// providers package folds every observed variant into this struct so that
// downstream logic never touches raw feed rows.
type ScoringRow struct {
	ExternalPlayerID string       `json:"external_player_id"`
	PlayerName       string       `json:"player_name"`
	Position         *int         `json:"position,omitempty"`
	Status           PlayerStatus `json:"status"`
	RoundScores      [4]*int      `json:"round_scores"`
	CurrentRound     *int         `json:"current_round,omitempty"`
	ThruHoles        *int         `json:"thru_holes,omitempty"`
	WinProb          *float64     `json:"win_prob,omitempty"`
	Top5Prob         *float64     `json:"top5_prob,omitempty"`
	Top10Prob        *float64     `json:"top10_prob,omitempty"`
	Top20Prob        *float64     `json:"top20_prob,omitempty"`
	MakeCutProb      *float64     `json:"make_cut_prob,omitempty"`
}

// RoundScore returns the score for round n (1-based), or nil.
func (r ScoringRow) RoundScore(n int) *int {
	if n < 1 || n > len(r.RoundScores) {
		return nil
	}
	return r.RoundScores[n-1]
}

// OddsOffer is a single bookmaker price, normalized to decimal odds and a
// canonical bookmaker key.
type OddsOffer struct {
	Bookmaker    string  `json:"bookmaker"`
	DecimalPrice float64 `json:"decimal_price"`
}

// OddsRow is the canonical shape of one odds feed row: a player and every
// offer the provider exposes for them in a single market.
type OddsRow struct {
	ExternalPlayerID string      `json:"external_player_id"`
	PlayerName       string      `json:"player_name"`
	Offers           []OddsOffer `json:"offers"`
}
