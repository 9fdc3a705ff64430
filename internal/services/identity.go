package services

import (
	"strings"

	"github.com/fairwaybets/tracker/internal/models"
)

// MatchConfidence grades how a recommendation was tied to a feed row.
type MatchConfidence string

const (
	MatchCanonical MatchConfidence = "external_id"
	MatchFullName  MatchConfidence = "full_name"
	MatchLastName  MatchConfidence = "last_name"
	MatchNone      MatchConfidence = "none"
)

// feedIndex maps player identity keys onto row positions for one feed
// snapshot. Ambiguous last names are indexed as absent.
type feedIndex struct {
	byID       map[string]int
	byFullName map[string]int
	byLastName map[string]int
}

func buildFeedIndex(size int, at func(i int) (id, name string)) *feedIndex {
	idx := &feedIndex{
		byID:       make(map[string]int, size),
		byFullName: make(map[string]int, size),
		byLastName: make(map[string]int, size),
	}
	lastNameDupes := make(map[string]bool)
	for i := 0; i < size; i++ {
		id, name := at(i)
		if id != "" {
			idx.byID[id] = i
		}
		full := normalizeName(name)
		if full == "" {
			continue
		}
		if _, exists := idx.byFullName[full]; !exists {
			idx.byFullName[full] = i
		}
		last := lastNameKey(name)
		if last == "" {
			continue
		}
		if _, exists := idx.byLastName[last]; exists {
			lastNameDupes[last] = true
		} else {
			idx.byLastName[last] = i
		}
	}
	for last := range lastNameDupes {
		delete(idx.byLastName, last)
	}
	return idx
}

// lookup resolves a player through the fallback chain: external id, then
// case-insensitive full name, then unambiguous last name.
func (idx *feedIndex) lookup(externalID *string, playerName string) (int, MatchConfidence) {
	if externalID != nil && *externalID != "" {
		if i, ok := idx.byID[*externalID]; ok {
			return i, MatchCanonical
		}
	}
	if full := normalizeName(playerName); full != "" {
		if i, ok := idx.byFullName[full]; ok {
			return i, MatchFullName
		}
	}
	if last := lastNameKey(playerName); last != "" {
		if i, ok := idx.byLastName[last]; ok {
			return i, MatchLastName
		}
	}
	return -1, MatchNone
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// lastNameKey returns the final name token lowercased, or "" when the
// token is too short to match on safely.
func lastNameKey(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) < 2 {
		return ""
	}
	last := fields[len(fields)-1]
	if len(last) < 3 {
		return ""
	}
	return last
}

// IdentityResolver ties recommendations to rows of one feed snapshot,
// flagging non-canonical matches as low confidence.
type IdentityResolver struct {
	scoring     *feedIndex
	scoringRows []models.ScoringRow
	issues      *IssueTracker
}

func NewIdentityResolver(rows []models.ScoringRow, issues *IssueTracker) *IdentityResolver {
	idx := buildFeedIndex(len(rows), func(i int) (string, string) {
		return rows[i].ExternalPlayerID, rows[i].PlayerName
	})
	return &IdentityResolver{scoring: idx, scoringRows: rows, issues: issues}
}

// ResolveScoringRow finds the live scoring row for a recommendation, or
// nil when the player is absent from the feed.
func (r *IdentityResolver) ResolveScoringRow(rec *models.Recommendation) *models.ScoringRow {
	r.flagMissingExternalID(rec)
	i, confidence := r.scoring.lookup(rec.ExternalPlayerID, rec.PlayerName)
	if i < 0 {
		return nil
	}
	r.flagLowConfidence(rec, confidence, "scoring")
	return &r.scoringRows[i]
}

// ResolveOddsRow finds the odds row for a recommendation within one
// market's rows, or nil when absent.
func (r *IdentityResolver) ResolveOddsRow(rec *models.Recommendation, rows []models.OddsRow) *models.OddsRow {
	idx := buildFeedIndex(len(rows), func(i int) (string, string) {
		return rows[i].ExternalPlayerID, rows[i].PlayerName
	})
	i, confidence := idx.lookup(rec.ExternalPlayerID, rec.PlayerName)
	if i < 0 {
		return nil
	}
	r.flagLowConfidence(rec, confidence, "odds")
	return &rows[i]
}

// flagMissingExternalID notes a recommendation that can never match
// canonically, whether or not a name fallback finds it.
func (r *IdentityResolver) flagMissingExternalID(rec *models.Recommendation) {
	if r.issues == nil {
		return
	}
	if rec.ExternalPlayerID != nil && *rec.ExternalPlayerID != "" {
		return
	}
	r.issues.RecordOnce(
		"missing_id:"+rec.ID.String(),
		models.SeverityWarning,
		models.StepMappingLowConfidence,
		rec.PlayerName+" has no external player id; name matching only",
		map[string]interface{}{
			"recommendation_id": rec.ID,
			"player_name":       rec.PlayerName,
		},
	)
}

func (r *IdentityResolver) flagLowConfidence(rec *models.Recommendation, confidence MatchConfidence, feed string) {
	if confidence == MatchCanonical || r.issues == nil {
		return
	}
	r.issues.RecordOnce(
		"mapping:"+feed+":"+rec.ID.String(),
		models.SeverityWarning,
		models.StepMappingLowConfidence,
		"Matched "+rec.PlayerName+" by "+string(confidence)+" in "+feed+" feed",
		map[string]interface{}{
			"recommendation_id": rec.ID,
			"player_name":       rec.PlayerName,
			"match":             confidence,
			"feed":              feed,
		},
	)
}
