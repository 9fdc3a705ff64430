package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// IssueSeverity grades a data-quality issue.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
	SeverityInfo    IssueSeverity = "info"
)

// Step codes attached to data-quality issues.
const (
	StepBaselineMissing         = "BASELINE_MISSING"
	StepBaselineFallbackCreated = "BASELINE_FALLBACK_CREATED"
	StepOddsMissing             = "ODDS_MISSING"
	StepOddsBookNotAllowed      = "ODDS_BOOK_NOT_ALLOWED"
	StepOddsCrossBook           = "ODDS_CROSS_BOOK"
	StepBookNotAvailable        = "BOOK_NOT_AVAILABLE_FROM_PROVIDER"
	StepMappingLowConfidence    = "MAPPING_LOW_CONFIDENCE"
	StepStatsMissing            = "STATS_MISSING"
	StepTourNotSupported        = "TOUR_NOT_SUPPORTED"
	StepMarketNotSupported      = "MARKET_NOT_SUPPORTED"
	StepLiveFeedShapeUnknown    = "LIVE_FEED_SHAPE_UNKNOWN"
	StepEventMismatch           = "EVENT_MISMATCH"
	StepEventNotInPlay          = "EVENT_NOT_IN_PLAY"
	StepPlayerNotFound          = "PLAYER_NOT_FOUND_IN_LIVE_FEED"
)

// DataIssue is an append-only record of a data-quality problem observed
// while tracking. Issues are attributed to the daily tracking run and are
// never mutated after creation.
type DataIssue struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"run_id"`
	Tour      TourCode       `gorm:"type:varchar(20)" json:"tour"`
	Severity  IssueSeverity  `gorm:"type:varchar(10);not null" json:"severity"`
	Step      string         `gorm:"type:varchar(50);not null" json:"step"`
	Message   string         `gorm:"not null" json:"message"`
	Evidence  datatypes.JSON `json:"evidence,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (i *DataIssue) BeforeCreate(_ *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// TourList stores the tour codes a run covered. Postgres gets a native
// text array; other dialects fall back to delimited text.
type TourList pq.StringArray

func (l TourList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

func (l *TourList) Scan(src interface{}) error {
	return (*pq.StringArray)(l).Scan(src)
}

func (TourList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// TrackingRun is the daily ledger record issues are attributed to. Exactly
// one exists per calendar day.
type TrackingRun struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Day       string    `gorm:"type:varchar(10);not null;uniqueIndex" json:"day"`
	Tours     TourList  `json:"tours"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *TrackingRun) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
