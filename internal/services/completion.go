package services

import (
	"time"

	"github.com/fairwaybets/tracker/internal/models"
)

// CompletionDetector decides whether a tournament has finished.
type CompletionDetector struct {
	clock Clock
}

func NewCompletionDetector(clock Clock) *CompletionDetector {
	if clock == nil {
		clock = SystemClock{}
	}
	return &CompletionDetector{clock: clock}
}

// IsCompleted reports tournament completion. The schedule is the primary
// signal; when the clock is still inside the window, the live field can
// prove completion early if every player with progress data has finished
// the final round.
func (d *CompletionDetector) IsCompleted(tournament *models.TrackedTournament, field []models.ScoringRow) bool {
	if d.clock.Now().After(endOfDay(tournament.EndDate)) {
		return true
	}
	return fieldFinished(tournament.Tour, field)
}

// endOfDay pushes a date-valued end timestamp to the end of its calendar
// day, so a tournament ending "today" is not marked complete at midnight.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

func fieldFinished(tour models.TourCode, field []models.ScoringRow) bool {
	finalRound := tour.FinalRound()
	seen := 0
	for i := range field {
		row := &field[i]
		if row.Status.Out() {
			continue
		}
		if row.CurrentRound == nil && row.ThruHoles == nil {
			continue
		}
		seen++
		if row.CurrentRound == nil || *row.CurrentRound < finalRound {
			return false
		}
		if row.ThruHoles == nil || *row.ThruHoles < 18 {
			return false
		}
	}
	return seen > 0
}
