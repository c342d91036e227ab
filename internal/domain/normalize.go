package domain

import (
	"strconv"
	"strings"
	"time"
)

// Synonym key lists, in precedence order. NYC Open Data field names drift
// between dataset revisions, so each canonical field is read through an
// ordered list rather than a single key. Kept as data so the lists are
// testable and extensible without touching MapRecord.
var (
	licenseKeys     = []string{"license_number", "licenseno", "license", "driver_license_number"}
	nameKeys        = []string{"driver_name", "name", "licensee_name"}
	boroughKeys     = []string{"borough", "county", "base_borough"}
	baseNameKeys    = []string{"base_name", "affiliated_base_name"}
	baseNumberKeys  = []string{"base_number", "affiliated_base_number"}
	lastUpdatedKeys = []string{"dataset_last_updated", "last_updated", "last_date_updated"}
	addressKeys     = []string{"address", "base_address", "base_building_address"}
)

// boroughSynonyms canonicalizes direct borough values, matched case-insensitively.
var boroughSynonyms = map[string]string{
	"bronx":         BoroughBronx,
	"bx":            BoroughBronx,
	"brooklyn":      BoroughBrooklyn,
	"kings":         BoroughBrooklyn,
	"bk":            BoroughBrooklyn,
	"manhattan":     BoroughManhattan,
	"ny":            BoroughManhattan,
	"nyc":           BoroughManhattan,
	"new york":      BoroughManhattan,
	"queens":        BoroughQueens,
	"qn":            BoroughQueens,
	"qns":           BoroughQueens,
	"staten island": BoroughStatenIsland,
	"richmond":      BoroughStatenIsland,
	"si":            BoroughStatenIsland,
}

// baseLetterBoroughs maps the first letter of a TLC base number to the
// borough the base is registered in.
var baseLetterBoroughs = map[byte]string{
	'B': BoroughBronx,
	'K': BoroughBrooklyn,
	'M': BoroughManhattan,
	'Q': BoroughQueens,
	'R': BoroughStatenIsland,
}

// boroughInference is the ordered borough resolution chain: each stage is
// consulted only when every prior stage returned nil.
var boroughInference = []func(RawRecord) *string{
	boroughFromDirectField,
	boroughFromBaseNumberField,
	boroughFromAddress,
	boroughFromBaseName,
}

// timestampLayouts covers the formats Socrata exports dataset timestamps in.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// MapRecord converts one raw source record into its canonical form. It is
// pure and total: missing or malformed fields degrade to nil, never an error.
// Records whose License resolves to nil are dropped by the upsert writer.
func MapRecord(raw RawRecord) DriverRecord {
	return DriverRecord{
		License:            stringField(raw, licenseKeys),
		Name:               stringField(raw, nameKeys),
		Borough:            inferBorough(raw),
		Active:             activeField(raw),
		BaseName:           stringField(raw, baseNameKeys),
		BaseNumber:         stringField(raw, baseNumberKeys),
		DatasetLastUpdated: timeField(raw, lastUpdatedKeys),
	}
}

// ResolveBorough labels a stored row for aggregation: the stored borough if
// present, else the base-number first-letter heuristic, else "Unknown".
func ResolveBorough(stored, baseNumber string) string {
	if stored != "" {
		return stored
	}
	if b := boroughFromBaseLetter(baseNumber); b != nil {
		return *b
	}
	return BoroughUnknown
}

// stringField returns the first non-empty value among the candidate keys.
// Numeric values are formatted rather than discarded; Socrata sometimes
// exports license numbers as JSON numbers.
func stringField(raw RawRecord, keys []string) *string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return &s
			}
		case float64:
			s := strconv.FormatFloat(v, 'f', -1, 64)
			return &s
		}
	}
	return nil
}

func timeField(raw RawRecord, keys []string) *time.Time {
	s := stringField(raw, keys)
	if s == nil {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// activeField resolves the active flag from a boolean, a "true" string, or an
// explicit status field. The source feed carries no negative signal for this
// field, so absent any of those a record is treated as active.
func activeField(raw RawRecord) bool {
	if b, ok := raw["active"].(bool); ok && b {
		return true
	}
	if s, ok := raw["active"].(string); ok && strings.EqualFold(s, "true") {
		return true
	}
	if s, ok := raw["active_status"].(string); ok && s == "Active" {
		return true
	}
	return true
}

func inferBorough(raw RawRecord) *string {
	for _, stage := range boroughInference {
		if b := stage(raw); b != nil {
			return b
		}
	}
	return nil
}

func boroughFromDirectField(raw RawRecord) *string {
	v := stringField(raw, boroughKeys)
	if v == nil {
		return nil
	}
	if canonical, ok := boroughSynonyms[strings.ToLower(strings.TrimSpace(*v))]; ok {
		return &canonical
	}
	return nil
}

func boroughFromBaseNumberField(raw RawRecord) *string {
	v := stringField(raw, baseNumberKeys)
	if v == nil {
		return nil
	}
	return boroughFromBaseLetter(*v)
}

func boroughFromBaseLetter(baseNumber string) *string {
	baseNumber = strings.TrimSpace(baseNumber)
	if baseNumber == "" {
		return nil
	}
	letter := strings.ToUpper(baseNumber[:1])[0]
	if b, ok := baseLetterBoroughs[letter]; ok {
		return &b
	}
	return nil
}

func boroughFromAddress(raw RawRecord) *string {
	v := stringField(raw, addressKeys)
	if v == nil {
		return nil
	}
	return boroughFromFreeText(*v, "new york")
}

func boroughFromBaseName(raw RawRecord) *string {
	v := stringField(raw, baseNameKeys)
	if v == nil {
		return nil
	}
	return boroughFromFreeText(*v, "nyc")
}

// boroughFromFreeText matches borough names as case-insensitive substrings.
// manhattanAlias is an extra substring that also resolves to Manhattan:
// "new york" for street addresses, "nyc" for base names.
func boroughFromFreeText(text, manhattanAlias string) *string {
	lower := strings.ToLower(text)
	for _, b := range []string{BoroughBronx, BoroughBrooklyn, BoroughManhattan, BoroughQueens, BoroughStatenIsland} {
		if strings.Contains(lower, strings.ToLower(b)) {
			borough := b
			return &borough
		}
	}
	if strings.Contains(lower, manhattanAlias) {
		manhattan := BoroughManhattan
		return &manhattan
	}
	return nil
}
