package domain

import "time"

// The five NYC boroughs. Normalization resolves every recognizable source
// value to one of these; anything else stays empty and is reported as
// "Unknown" on the stats path.
const (
	BoroughBronx        = "Bronx"
	BoroughBrooklyn     = "Brooklyn"
	BoroughManhattan    = "Manhattan"
	BoroughQueens       = "Queens"
	BoroughStatenIsland = "Staten Island"

	// BoroughUnknown is the stats-path label for rows with no resolvable borough.
	BoroughUnknown = "Unknown"
)

// RawRecord is one untyped record from the source dataset. Field names vary
// across dataset revisions, so values are accessed through the synonym lists
// in MapRecord rather than a fixed struct.
type RawRecord map[string]any

// DriverRecord is the canonical, storage-ready form of one source record.
// Pointer fields are nullable columns; a nil License excludes the record
// from writes entirely.
type DriverRecord struct {
	License            *string
	Name               *string
	Borough            *string
	Active             bool
	BaseName           *string
	BaseNumber         *string
	DatasetLastUpdated *time.Time
}

// BoroughCount is one by-borough bucket of a stats aggregation.
type BoroughCount struct {
	Borough string `json:"borough"`
	Count   int    `json:"count"`
}

// Stats is the current aggregate over all active drivers.
type Stats struct {
	TotalActiveDrivers int            `json:"totalActiveDrivers"`
	ByBorough          []BoroughCount `json:"byBorough"`
	LastUpdated        *time.Time     `json:"lastUpdated"`
}

// TrendSnapshot is one calendar day's persisted aggregate. Date carries only
// the calendar date; time-of-day is always midnight UTC.
type TrendSnapshot struct {
	Date         time.Time      `json:"date"`
	TotalDrivers int            `json:"totalDrivers"`
	ByBorough    map[string]int `json:"byBorough"`
}

// UpsertResult summarizes one batch write: rows written or updated, and raw
// records dropped for lacking a license number.
type UpsertResult struct {
	Upserted int
	Skipped  int
}

// SyncResult summarizes one completed sync pass.
type SyncResult struct {
	Fetched   int       `json:"fetched"`
	Upserted  int       `json:"upserted"`
	Skipped   int       `json:"skipped"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}
