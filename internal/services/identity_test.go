package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairwaybets/tracker/internal/models"
)

func testField() []models.ScoringRow {
	return []models.ScoringRow{
		{ExternalPlayerID: "1001", PlayerName: "Scottie Scheffler", Position: intPtr(1)},
		{ExternalPlayerID: "1002", PlayerName: "Rory McIlroy", Position: intPtr(2)},
		{ExternalPlayerID: "1003", PlayerName: "Min Woo Lee", Position: intPtr(3)},
		{ExternalPlayerID: "1004", PlayerName: "Danny Lee", Position: intPtr(4)},
	}
}

func TestResolveScoringRowByExternalID(t *testing.T) {
	r := NewIdentityResolver(testField(), nil)
	rec := &models.Recommendation{
		PlayerName:       "S. Scheffler",
		ExternalPlayerID: strPtr("1001"),
	}

	row := r.ResolveScoringRow(rec)
	require.NotNil(t, row)
	assert.Equal(t, "Scottie Scheffler", row.PlayerName)
}

func TestResolveScoringRowFallsBackToFullName(t *testing.T) {
	db := newTestDB(t)
	issues := newTestIssues(t, db)
	r := NewIdentityResolver(testField(), issues)

	tournament := seedTournament(t, db, models.TourPGA, "evt", time.Now(), time.Now().AddDate(0, 0, 3))
	rec := seedRecommendation(t, db, tournament.ID, "rory mcilroy", models.MarketWin, nil)

	row := r.ResolveScoringRow(rec)
	require.NotNil(t, row)
	assert.Equal(t, "1002", row.ExternalPlayerID)

	// Missing external id and the name-based fallback each flag once.
	recorded := issues.Issues()
	require.Len(t, recorded, 2)
	for _, issue := range recorded {
		assert.Equal(t, models.StepMappingLowConfidence, issue.Step)
	}

	// Repeat lookups do not pile on duplicate issues.
	r.ResolveScoringRow(rec)
	assert.Len(t, issues.Issues(), 2)
}

func TestResolveScoringRowFlagsMissingExternalIDWithoutMatch(t *testing.T) {
	db := newTestDB(t)
	issues := newTestIssues(t, db)
	r := NewIdentityResolver(testField(), issues)

	tournament := seedTournament(t, db, models.TourPGA, "evt", time.Now(), time.Now().AddDate(0, 0, 3))
	rec := seedRecommendation(t, db, tournament.ID, "Tiger Woods", models.MarketWin, nil)

	assert.Nil(t, r.ResolveScoringRow(rec))

	recorded := issues.Issues()
	require.Len(t, recorded, 1, "the missing id is flagged even when no row matches")
	assert.Equal(t, models.StepMappingLowConfidence, recorded[0].Step)

	// An id-carrying recommendation that matches canonically stays silent.
	withID := seedRecommendation(t, db, tournament.ID, "Scottie Scheffler", models.MarketWin, func(rec *models.Recommendation) {
		rec.ExternalPlayerID = strPtr("1001")
	})
	require.NotNil(t, r.ResolveScoringRow(withID))
	assert.Len(t, issues.Issues(), 1)
}

func TestResolveScoringRowLastNameFallback(t *testing.T) {
	field := testField()
	r := NewIdentityResolver(field, nil)

	// "McIlroy" is unique in the field.
	row := r.ResolveScoringRow(&models.Recommendation{PlayerName: "R. McIlroy"})
	require.NotNil(t, row)
	assert.Equal(t, "1002", row.ExternalPlayerID)

	// "Lee" is ambiguous and must not match anyone.
	assert.Nil(t, r.ResolveScoringRow(&models.Recommendation{PlayerName: "K. Lee"}))
}

func TestResolveScoringRowNoMatch(t *testing.T) {
	r := NewIdentityResolver(testField(), nil)
	assert.Nil(t, r.ResolveScoringRow(&models.Recommendation{PlayerName: "Tiger Woods"}))
}

func TestLastNameKeyRules(t *testing.T) {
	assert.Equal(t, "scheffler", lastNameKey("Scottie Scheffler"))
	assert.Equal(t, "", lastNameKey("Madonna"), "single token has no last name")
	assert.Equal(t, "", lastNameKey("Li Na"), "two-letter last names are too risky")
}

func TestResolveOddsRow(t *testing.T) {
	r := NewIdentityResolver(nil, nil)
	rows := []models.OddsRow{
		{ExternalPlayerID: "1001", PlayerName: "Scottie Scheffler", Offers: []models.OddsOffer{{Bookmaker: "draftkings", DecimalPrice: 4.5}}},
		{PlayerName: "Tommy Fleetwood", Offers: []models.OddsOffer{{Bookmaker: "fanduel", DecimalPrice: 18.0}}},
	}

	byID := r.ResolveOddsRow(&models.Recommendation{ExternalPlayerID: strPtr("1001")}, rows)
	require.NotNil(t, byID)
	assert.Equal(t, "Scottie Scheffler", byID.PlayerName)

	byName := r.ResolveOddsRow(&models.Recommendation{PlayerName: "TOMMY FLEETWOOD"}, rows)
	require.NotNil(t, byName)
	assert.Len(t, byName.Offers, 1)

	assert.Nil(t, r.ResolveOddsRow(&models.Recommendation{PlayerName: "Unknown Player"}, rows))
}
