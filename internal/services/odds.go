package services

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fairwaybets/tracker/internal/models"
	"github.com/fairwaybets/tracker/pkg/database"
)

// bookAliases maps feed spellings of sportsbook names onto canonical keys.
var bookAliases = map[string]string{
	"dk":           "draftkings",
	"draft_kings":  "draftkings",
	"fd":           "fanduel",
	"fan_duel":     "fanduel",
	"mgm":          "betmgm",
	"bet_mgm":      "betmgm",
	"czr":          "caesars",
	"williamhill":  "caesars",
	"william_hill": "caesars",
	"pb":           "pointsbet",
	"points_bet":   "pointsbet",
	"365":          "bet365",
	"bet_365":      "bet365",
}

// NormalizeBookKey lowercases a bookmaker name, strips separators, and
// resolves known aliases.
func NormalizeBookKey(book string) string {
	key := strings.ToLower(strings.TrimSpace(book))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	if canonical, ok := bookAliases[key]; ok {
		return canonical
	}
	key = strings.ReplaceAll(key, "_", "")
	if canonical, ok := bookAliases[key]; ok {
		return canonical
	}
	return key
}

// OddsReconciler selects offers, computes movement against the baseline,
// and lazily materializes missing baselines.
type OddsReconciler struct {
	db           *database.DB
	clock        Clock
	allowedBooks map[string]bool
}

func NewOddsReconciler(db *database.DB, clock Clock, allowedBookmakers []string) *OddsReconciler {
	if clock == nil {
		clock = SystemClock{}
	}
	allowed := make(map[string]bool, len(allowedBookmakers))
	for _, book := range allowedBookmakers {
		if key := NormalizeBookKey(book); key != "" {
			allowed[key] = true
		}
	}
	return &OddsReconciler{db: db, clock: clock, allowedBooks: allowed}
}

// FilterAllowed keeps only offers from allow-listed bookmakers, with
// bookmaker keys normalized. An empty allow list passes everything
// through.
func (r *OddsReconciler) FilterAllowed(offers []models.OddsOffer) (kept []models.OddsOffer, dropped []string) {
	for _, offer := range offers {
		key := NormalizeBookKey(offer.Bookmaker)
		if key == "" {
			continue
		}
		if len(r.allowedBooks) > 0 && !r.allowedBooks[key] {
			dropped = append(dropped, key)
			continue
		}
		kept = append(kept, models.OddsOffer{Bookmaker: key, DecimalPrice: offer.DecimalPrice})
	}
	return kept, dropped
}

// SelectSameBookOffer finds the offer whose bookmaker matches the
// baseline's book, or nil.
func (r *OddsReconciler) SelectSameBookOffer(offers []models.OddsOffer, baselineBook string) *models.OddsOffer {
	key := NormalizeBookKey(baselineBook)
	if key == "" {
		return nil
	}
	for i := range offers {
		if NormalizeBookKey(offers[i].Bookmaker) == key {
			return &offers[i]
		}
	}
	return nil
}

// SelectBestAvailableOffer returns the offer with the lowest decimal price,
// the market's favorite view of the player, or nil when empty.
func (r *OddsReconciler) SelectBestAvailableOffer(offers []models.OddsOffer) *models.OddsOffer {
	var best *models.OddsOffer
	for i := range offers {
		if best == nil || offers[i].DecimalPrice < best.DecimalPrice {
			best = &offers[i]
		}
	}
	return best
}

// ComputeOddsMovement compares a current price to the baseline. Returns
// nil when either side is absent or non-finite. PctChange is nil when the
// baseline is zero.
func ComputeOddsMovement(baseline *float64, current *float64) *models.OddsMovement {
	if baseline == nil || current == nil {
		return nil
	}
	b, c := *baseline, *current
	if math.IsNaN(b) || math.IsInf(b, 0) || math.IsNaN(c) || math.IsInf(c, 0) {
		return nil
	}

	delta := c - b
	movement := &models.OddsMovement{DeltaDecimal: delta}
	switch {
	case delta > 0:
		movement.Direction = models.MovementUp
	case delta < 0:
		movement.Direction = models.MovementDown
	default:
		movement.Direction = models.MovementFlat
	}
	if b != 0 {
		pct := delta / b
		movement.PctChange = &pct
	}
	return movement
}

// BaselineResult is the resolved baseline for one recommendation.
type BaselineResult struct {
	Price           *float64
	Bookmaker       string
	CapturedAt      *time.Time
	FallbackCreated bool
}

func finitePrice(p *float64) bool {
	return p != nil && !math.IsNaN(*p) && !math.IsInf(*p, 0)
}

// EnsureBaseline resolves the baseline price for a recommendation. Order:
// the publish-time price on the recommendation itself, then a previously
// materialized baseline record, then a new record captured from the live
// offer. At most one baseline record ever exists per recommendation; the
// insert is conflict-tolerant and conflicting writers read back the
// winner.
func (r *OddsReconciler) EnsureBaseline(rec *models.Recommendation, live *models.OddsOffer, issues *IssueTracker) (*BaselineResult, error) {
	if finitePrice(rec.BaselinePrice) {
		return &BaselineResult{
			Price:     rec.BaselinePrice,
			Bookmaker: NormalizeBookKey(rec.BaselineBook),
		}, nil
	}

	var existing models.BaselineRecord
	err := r.db.Where("recommendation_id = ?", rec.ID).First(&existing).Error
	if err == nil {
		return baselineFromRecord(&existing), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load baseline record: %w", err)
	}

	if live == nil {
		if issues != nil {
			issues.Record(models.SeverityError, models.StepBaselineMissing,
				fmt.Sprintf("No baseline price available for %s (%s)", rec.PlayerName, rec.Market),
				map[string]interface{}{"recommendation_id": rec.ID, "market": rec.Market})
		}
		return &BaselineResult{}, nil
	}

	record := models.BaselineRecord{
		RecommendationID: rec.ID,
		Price:            live.DecimalPrice,
		Bookmaker:        NormalizeBookKey(live.Bookmaker),
		CapturedAt:       r.clock.Now().UTC(),
	}
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "recommendation_id"}},
		DoNothing: true,
	}).Create(&record)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create baseline record: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Another writer got there first; their record is the baseline.
		if err := r.db.Where("recommendation_id = ?", rec.ID).First(&existing).Error; err != nil {
			return nil, fmt.Errorf("failed to read back baseline record: %w", err)
		}
		return baselineFromRecord(&existing), nil
	}

	if issues != nil {
		issues.Record(models.SeverityInfo, models.StepBaselineFallbackCreated,
			fmt.Sprintf("Captured fallback baseline %.2f@%s for %s", record.Price, record.Bookmaker, rec.PlayerName),
			map[string]interface{}{
				"recommendation_id": rec.ID,
				"price":             record.Price,
				"bookmaker":         record.Bookmaker,
			})
	}
	out := baselineFromRecord(&record)
	out.FallbackCreated = true
	return out, nil
}

func baselineFromRecord(record *models.BaselineRecord) *BaselineResult {
	captured := record.CapturedAt
	return &BaselineResult{
		Price:      &record.Price,
		Bookmaker:  record.Bookmaker,
		CapturedAt: &captured,
	}
}
