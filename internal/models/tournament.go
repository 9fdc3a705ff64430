package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackedTournament is a tournament record produced by the upstream
// discovery pipeline. Records are immutable once created; the same external
// event may appear under several records across pipeline runs, and the
// tracking engine merges those by (external_id, tour).
type TrackedTournament struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Tour       TourCode  `gorm:"type:varchar(20);not null;index:idx_external_event,priority:2" json:"tour"`
	ExternalID string    `gorm:"not null;index:idx_external_event,priority:1" json:"external_id"`
	Name       string    `gorm:"not null" json:"name"`
	StartDate  time.Time `gorm:"not null;index" json:"start_date"`
	EndDate    time.Time `gorm:"not null" json:"end_date"`
	RunID      uuid.UUID `gorm:"type:uuid" json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (t *TrackedTournament) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// PublishRunCompleted is the run status a recommendation must carry before
// the tracker will pick it up.
const PublishRunCompleted = "completed"

// Recommendation is a previously published wager pick. Read-only input to
// the tracking engine.
type Recommendation struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TournamentID     uuid.UUID `gorm:"type:uuid;not null;index" json:"tournament_id"`
	PlayerName       string    `gorm:"not null" json:"player_name"`
	ExternalPlayerID *string   `gorm:"index" json:"external_player_id,omitempty"`
	Market           MarketKey `gorm:"type:varchar(30);not null" json:"market"`
	Tier             string    `json:"tier"`
	BaselinePrice    *float64  `json:"baseline_price,omitempty"`
	BaselineBook     string    `json:"baseline_book,omitempty"`
	RunID            uuid.UUID `gorm:"type:uuid" json:"run_id"`
	RunStatus        string    `gorm:"type:varchar(20);index" json:"run_status"`
	CreatedAt        time.Time `json:"created_at"`
}

func (r *Recommendation) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// BaselineRecord is the lazily persisted reference price for a
// recommendation whose publish-time baseline capture failed. The unique
// index on RecommendationID is what guarantees at most one record per
// recommendation; writers treat a conflict as "already created".
type BaselineRecord struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RecommendationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"recommendation_id"`
	Price            float64   `gorm:"not null" json:"price"`
	Bookmaker        string    `gorm:"not null" json:"bookmaker"`
	CapturedAt       time.Time `gorm:"not null" json:"captured_at"`
}

func (b *BaselineRecord) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// AutoMigrate creates or updates the schema for every persisted model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&TrackedTournament{},
		&Recommendation{},
		&BaselineRecord{},
		&DataIssue{},
		&TrackingRun{},
	)
}
