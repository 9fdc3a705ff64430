package services

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"

	"github.com/fairwaybets/tracker/internal/models"
	"github.com/fairwaybets/tracker/pkg/database"
	"github.com/fairwaybets/tracker/pkg/logger"
)

// RunLedger manages the one-per-day tracking run that data issues attach
// to.
type RunLedger struct {
	db     *database.DB
	clock  Clock
	logger *logrus.Logger
}

func NewRunLedger(db *database.DB, clock Clock) *RunLedger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &RunLedger{db: db, clock: clock, logger: logger.GetLogger()}
}

// EnsureDailyRun returns today's tracking run, creating it if absent.
// Concurrent callers racing on the same day converge on one record via the
// unique index on day.
func (l *RunLedger) EnsureDailyRun(tours []string) (*models.TrackingRun, error) {
	day := l.clock.Now().UTC().Format("2006-01-02")

	run := models.TrackingRun{Day: day, Tours: models.TourList(tours)}
	result := l.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day"}},
		DoNothing: true,
	}).Create(&run)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to ensure tracking run for %s: %w", day, result.Error)
	}

	if result.RowsAffected == 0 {
		// Lost the race or the run already existed; read it back.
		if err := l.db.Where("day = ?", day).First(&run).Error; err != nil {
			return nil, fmt.Errorf("failed to load tracking run for %s: %w", day, err)
		}
	} else {
		l.logger.WithFields(logrus.Fields{
			"component": "run_ledger",
			"run_id":    run.ID,
			"day":       day,
		}).Info("Created daily tracking run")
	}

	return &run, nil
}
