package services

import (
	"github.com/fairwaybets/tracker/internal/models"
)

// OutcomeInput is everything settlement needs for one recommendation. Row
// is nil when the player was not found in the live feed; Field is the full
// leaderboard and is only consulted for first-round-leader markets.
type OutcomeInput struct {
	Market    models.MarketKey
	Tour      models.TourCode
	Row       *models.ScoringRow
	Field     []models.ScoringRow
	Completed bool
}

// DetermineOutcome settles one recommendation against the live state. A
// nil return means the row cannot be settled under current data, which
// callers surface differently from pending.
func DetermineOutcome(in OutcomeInput) *models.Outcome {
	if in.Market.IsCutMarket() && !in.Tour.HasCut() {
		// No cut line exists on this tour; cut wagers are voided.
		return models.OutcomeOf(models.OutcomePush)
	}

	if in.Market == models.MarketFRL {
		return frlOutcome(in)
	}

	if in.Row == nil {
		return nil
	}

	switch {
	case in.Market == models.MarketMissCut:
		return missedCutOutcome(in)
	case in.Market == models.MarketMakeCut:
		return invertWonLost(missedCutOutcome(in))
	case in.Market == models.MarketWin:
		return winOutcome(in)
	default:
		if n, ok := in.Market.TopN(); ok {
			return topNOutcome(in, n)
		}
		return nil
	}
}

// missedCutOutcome settles a wager that the player misses the cut.
func missedCutOutcome(in OutcomeInput) *models.Outcome {
	row := in.Row
	switch row.Status {
	case models.StatusMissedCut:
		return models.OutcomeOf(models.OutcomeWon)
	case models.StatusWithdrawn, models.StatusDisqualified:
		return models.OutcomeOf(models.OutcomeLost)
	}
	// A post-cut round score proves the player played the weekend.
	if row.RoundScore(3) != nil || row.RoundScore(4) != nil {
		return models.OutcomeOf(models.OutcomeLost)
	}
	// A live position while still playing: the player is on the course, not
	// cut.
	if row.Position != nil && *row.Position > 0 && row.Status == models.StatusActive {
		return models.OutcomeOf(models.OutcomeLost)
	}
	if in.Completed {
		// Event over, player never marked cut: they made it.
		return models.OutcomeOf(models.OutcomeLost)
	}
	return models.OutcomeOf(models.OutcomePending)
}

// invertWonLost mirrors a missed-cut result into a make-cut result. Push
// and pending are symmetric and pass through.
func invertWonLost(o *models.Outcome) *models.Outcome {
	if o == nil {
		return nil
	}
	switch *o {
	case models.OutcomeWon:
		return models.OutcomeOf(models.OutcomeLost)
	case models.OutcomeLost:
		return models.OutcomeOf(models.OutcomeWon)
	default:
		return models.OutcomeOf(*o)
	}
}

func winOutcome(in OutcomeInput) *models.Outcome {
	row := in.Row
	if row.Status.Out() {
		return models.OutcomeOf(models.OutcomeLost)
	}
	if !in.Completed {
		return models.OutcomeOf(models.OutcomePending)
	}
	if row.Position == nil {
		return nil
	}
	if *row.Position == 1 {
		return models.OutcomeOf(models.OutcomeWon)
	}
	return models.OutcomeOf(models.OutcomeLost)
}

func topNOutcome(in OutcomeInput, n int) *models.Outcome {
	row := in.Row
	if row.Status.Out() {
		return models.OutcomeOf(models.OutcomeLost)
	}
	if !in.Completed {
		return models.OutcomeOf(models.OutcomePending)
	}
	if row.Position == nil {
		return nil
	}
	if *row.Position <= n {
		return models.OutcomeOf(models.OutcomeWon)
	}
	return models.OutcomeOf(models.OutcomeLost)
}

// frlOutcome settles a first-round-leader wager from the full field's
// opening-round scores. Settlement waits until at least half the field has
// a recorded first round, so early clubhouse leaders do not settle the
// market prematurely.
func frlOutcome(in OutcomeInput) *models.Outcome {
	if len(in.Field) == 0 {
		return nil
	}

	recorded := 0
	var minScore *int
	leaders := 0
	for i := range in.Field {
		r1 := in.Field[i].RoundScore(1)
		if r1 == nil {
			continue
		}
		recorded++
		switch {
		case minScore == nil || *r1 < *minScore:
			score := *r1
			minScore = &score
			leaders = 1
		case *r1 == *minScore:
			leaders++
		}
	}

	if in.Row != nil && in.Row.RoundScore(1) == nil {
		if in.Row.Status == models.StatusWithdrawn || in.Row.Status == models.StatusDisqualified {
			return models.OutcomeOf(models.OutcomeLost)
		}
	}

	if recorded*2 < len(in.Field) {
		return models.OutcomeOf(models.OutcomePending)
	}

	if in.Row == nil {
		return nil
	}
	own := in.Row.RoundScore(1)
	if own == nil {
		return models.OutcomeOf(models.OutcomeLost)
	}
	if minScore == nil || *own > *minScore {
		return models.OutcomeOf(models.OutcomeLost)
	}
	if leaders == 1 {
		return models.OutcomeOf(models.OutcomeWon)
	}
	// Dead heat at the top.
	return models.OutcomeOf(models.OutcomePush)
}
