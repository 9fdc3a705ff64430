package providers

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fairwaybets/tracker/internal/models"
)

// Feeds disagree on field names, numeric types, and odds notation. The
// normalizers below accept loose decoded JSON and produce canonical rows,
// skipping entries that lack the minimum identity fields.

var scoringIDKeys = []string{"dg_id", "player_id", "id", "external_id"}
var scoringNameKeys = []string{"player_name", "name", "full_name", "selection"}

// NormalizeScoringRows converts loose scoring feed rows into canonical form.
// Returns the rows and the count of entries skipped for missing identity.
func NormalizeScoringRows(raw []map[string]interface{}) ([]models.ScoringRow, int) {
	rows := make([]models.ScoringRow, 0, len(raw))
	skipped := 0
	for _, entry := range raw {
		id := stringValue(entry, scoringIDKeys...)
		name := stringValue(entry, scoringNameKeys...)
		if id == "" && name == "" {
			skipped++
			continue
		}

		row := models.ScoringRow{
			ExternalPlayerID: id,
			PlayerName:       name,
			Position:         positionValue(entry, "current_pos", "position", "current_position", "pos"),
			Status:           statusValue(entry, "status", "player_status"),
			CurrentRound:     intValue(entry, "current_round", "round", "today_round"),
			ThruHoles:        thruValue(entry, "thru", "thru_holes", "holes_completed"),
			WinProb:          probValue(entry, "win", "win_prob", "win_probability"),
			Top5Prob:         probValue(entry, "top_5", "top5_prob", "top_5_prob"),
			Top10Prob:        probValue(entry, "top_10", "top10_prob", "top_10_prob"),
			Top20Prob:        probValue(entry, "top_20", "top20_prob", "top_20_prob"),
			MakeCutProb:      probValue(entry, "make_cut", "make_cut_prob", "cut_prob"),
		}
		for i := 0; i < 4; i++ {
			n := i + 1
			row.RoundScores[i] = intValue(entry,
				fmt.Sprintf("r%d", n),
				fmt.Sprintf("round_%d", n),
				fmt.Sprintf("R%d", n))
		}
		rows = append(rows, row)
	}
	return rows, skipped
}

// oddsMetaKeys are row fields that are never bookmaker columns. Some feeds
// flatten bookmakers into top-level keys next to these.
var oddsMetaKeys = map[string]bool{
	"player_name": true, "name": true, "full_name": true, "selection": true,
	"dg_id": true, "player_id": true, "id": true, "external_id": true,
	"country": true, "am": true, "updated": true, "datagolf": true,
	"market": true, "event_id": true, "tour": true,
}

// NormalizeOddsRows converts loose odds feed rows into canonical form.
// Offers are read from an embedded book-to-price map, an offer list, or
// flattened bookmaker columns, in that order.
func NormalizeOddsRows(raw []map[string]interface{}) ([]models.OddsRow, int) {
	rows := make([]models.OddsRow, 0, len(raw))
	skipped := 0
	for _, entry := range raw {
		id := stringValue(entry, scoringIDKeys...)
		name := stringValue(entry, scoringNameKeys...)
		if id == "" && name == "" {
			skipped++
			continue
		}

		row := models.OddsRow{ExternalPlayerID: id, PlayerName: name}
		row.Offers = embeddedOffers(entry, "odds", "books", "prices")
		if len(row.Offers) == 0 {
			row.Offers = listedOffers(entry, "offers", "outrights")
		}
		if len(row.Offers) == 0 {
			row.Offers = flattenedOffers(entry)
		}
		rows = append(rows, row)
	}
	return rows, skipped
}

func embeddedOffers(entry map[string]interface{}, keys ...string) []models.OddsOffer {
	for _, key := range keys {
		nested, ok := entry[key].(map[string]interface{})
		if !ok {
			continue
		}
		offers := make([]models.OddsOffer, 0, len(nested))
		for book, v := range nested {
			if price, ok := ToDecimalPrice(v); ok {
				offers = append(offers, models.OddsOffer{Bookmaker: book, DecimalPrice: price})
			}
		}
		if len(offers) > 0 {
			return offers
		}
	}
	return nil
}

func listedOffers(entry map[string]interface{}, keys ...string) []models.OddsOffer {
	for _, key := range keys {
		list, ok := entry[key].([]interface{})
		if !ok {
			continue
		}
		var offers []models.OddsOffer
		for _, item := range list {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			book := stringValue(m, "book", "bookmaker", "book_key", "sportsbook")
			if book == "" {
				continue
			}
			for _, priceKey := range []string{"price", "odds", "decimal", "decimal_odds"} {
				if v, ok := m[priceKey]; ok {
					if price, ok := ToDecimalPrice(v); ok {
						offers = append(offers, models.OddsOffer{Bookmaker: book, DecimalPrice: price})
						break
					}
				}
			}
		}
		if len(offers) > 0 {
			return offers
		}
	}
	return nil
}

func flattenedOffers(entry map[string]interface{}) []models.OddsOffer {
	var offers []models.OddsOffer
	for key, v := range entry {
		if oddsMetaKeys[strings.ToLower(key)] {
			continue
		}
		if price, ok := ToDecimalPrice(v); ok {
			offers = append(offers, models.OddsOffer{Bookmaker: key, DecimalPrice: price})
		}
	}
	return offers
}

// ToDecimalPrice converts a price in any of the notations feeds use into
// European decimal odds. Positive numbers are already decimal, negative
// numbers are American, strings may be American ("+450", "-110"),
// fractional ("9/2"), or numeric.
func ToDecimalPrice(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return numericDecimal(t)
	case int:
		return numericDecimal(float64(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if strings.Contains(s, "/") {
			parts := strings.SplitN(s, "/", 2)
			num, errN := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			den, errD := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if errN != nil || errD != nil || den == 0 {
				return 0, false
			}
			return validDecimal(1 + num/den)
		}
		if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
			n, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, false
			}
			return americanDecimal(n)
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return numericDecimal(n)
	default:
		return 0, false
	}
}

func numericDecimal(n float64) (float64, bool) {
	if n < 0 {
		return americanDecimal(n)
	}
	return validDecimal(n)
}

func americanDecimal(n float64) (float64, bool) {
	if n >= 100 {
		return validDecimal(1 + n/100)
	}
	if n <= -100 {
		return validDecimal(1 + 100/-n)
	}
	return 0, false
}

func validDecimal(d float64) (float64, bool) {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 1 {
		return 0, false
	}
	return d, true
}

func stringValue(entry map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch t := entry[key].(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}

func intValue(entry map[string]interface{}, keys ...string) *int {
	for _, key := range keys {
		switch t := entry[key].(type) {
		case float64:
			n := int(t)
			return &n
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return &n
			}
		}
	}
	return nil
}

func probValue(entry map[string]interface{}, keys ...string) *float64 {
	for _, key := range keys {
		switch t := entry[key].(type) {
		case float64:
			v := t
			return &v
		case string:
			if v, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return &v
			}
		}
	}
	return nil
}

// positionValue reads a leaderboard position, tolerating tied notation
// like "T5" and ignoring non-positional markers like "CUT" or "WD".
func positionValue(entry map[string]interface{}, keys ...string) *int {
	for _, key := range keys {
		switch t := entry[key].(type) {
		case float64:
			if t > 0 {
				n := int(t)
				return &n
			}
		case string:
			s := strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(t)), "T"))
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				return &n
			}
		}
	}
	return nil
}

func statusValue(entry map[string]interface{}, keys ...string) models.PlayerStatus {
	for _, key := range keys {
		s, ok := entry[key].(string)
		if !ok {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "MC", "CUT", "MISSED CUT":
			return models.StatusMissedCut
		case "WD", "WITHDRAWN", "WITHDREW":
			return models.StatusWithdrawn
		case "DQ", "DSQ", "DISQUALIFIED":
			return models.StatusDisqualified
		}
	}
	return models.StatusActive
}

// thruValue reads holes completed, mapping the "F" finished marker to 18.
func thruValue(entry map[string]interface{}, keys ...string) *int {
	for _, key := range keys {
		switch t := entry[key].(type) {
		case float64:
			n := int(t)
			return &n
		case string:
			s := strings.ToUpper(strings.TrimSpace(t))
			if s == "F" || s == "F*" {
				n := 18
				return &n
			}
			if n, err := strconv.Atoi(s); err == nil {
				return &n
			}
		}
	}
	return nil
}
