package services

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/fairwaybets/tracker/internal/models"
	"github.com/fairwaybets/tracker/pkg/database"
	"github.com/fairwaybets/tracker/pkg/logger"
)

// IssueTracker collects data-quality issues raised during one tracking
// pass. Issues are appended to the response and persisted best effort;
// persistence failure never fails the pass.
type IssueTracker struct {
	db     *database.DB
	logger *logrus.Logger
	runID  uuid.UUID
	tour   models.TourCode

	mu     sync.Mutex
	issues []models.DataIssue
	seen   map[string]bool
}

func NewIssueTracker(db *database.DB, runID uuid.UUID, tour models.TourCode) *IssueTracker {
	return &IssueTracker{
		db:     db,
		logger: logger.GetLogger(),
		runID:  runID,
		tour:   tour,
		seen:   make(map[string]bool),
	}
}

// Record appends an issue. Evidence must be JSON-marshalable; a nil
// evidence map is fine.
func (t *IssueTracker) Record(severity models.IssueSeverity, step, message string, evidence map[string]interface{}) {
	issue := models.DataIssue{
		RunID:    t.runID,
		Tour:     t.tour,
		Severity: severity,
		Step:     step,
		Message:  message,
	}
	if evidence != nil {
		if data, err := json.Marshal(evidence); err == nil {
			issue.Evidence = datatypes.JSON(data)
		}
	}

	t.mu.Lock()
	t.issues = append(t.issues, issue)
	t.mu.Unlock()

	entry := t.logger.WithFields(logrus.Fields{
		"component": "issue_tracker",
		"run_id":    t.runID,
		"tour":      t.tour,
		"step":      step,
	})
	switch severity {
	case models.SeverityError:
		entry.Error(message)
	case models.SeverityWarning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}

	if t.db != nil {
		if err := t.db.Create(&issue).Error; err != nil {
			t.logger.WithError(err).Warn("Failed to persist data issue")
		}
	}
}

// RecordOnce records at most one issue per dedup key for the lifetime of
// this tracker. Used for per-player noise like mapping fallbacks.
func (t *IssueTracker) RecordOnce(key string, severity models.IssueSeverity, step, message string, evidence map[string]interface{}) {
	t.mu.Lock()
	if t.seen[key] {
		t.mu.Unlock()
		return
	}
	t.seen[key] = true
	t.mu.Unlock()
	t.Record(severity, step, message, evidence)
}

// Issues returns the issues recorded so far, in order.
func (t *IssueTracker) Issues() []models.DataIssue {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.DataIssue, len(t.issues))
	copy(out, t.issues)
	return out
}
