// Package domain models NYC TLC for-hire-vehicle (FHV) driver records.
//
// # Data Source
//
// Driver records come from the NYC Open Data FHV drivers dataset, served by
// the Socrata API as a JSON array. The dataset is regenerated by the TLC, and
// field names have drifted between revisions (license_number vs licenseno,
// driver_name vs licensee_name, and so on). Every canonical field is
// therefore read through an ordered synonym-key list; the first key holding a
// non-empty value wins. See [MapRecord].
//
// # Borough Resolution
//
// The borough field is the least reliable in the source data: it is often
// absent, sometimes a county name, sometimes an abbreviation. Resolution runs
// a four-stage chain, each stage consulted only when the prior ones yield
// nothing:
//
//  1. Direct field ("borough", "county", "base_borough") canonicalized through
//     known synonyms: "bx" → Bronx, "kings" → Brooklyn, "ny"/"nyc" → Manhattan,
//     "qn" → Queens, "richmond" → Staten Island.
//  2. First letter of the TLC base number: B → Bronx, K → Brooklyn,
//     M → Manhattan, Q → Queens, R → Staten Island.
//  3. Case-insensitive substring match of borough names against the street
//     address ("new york" also matches Manhattan).
//  4. The same substring match against the affiliated base's name ("nyc" also
//     matches Manhattan).
//
// A record that survives all four stages with no match keeps a nil borough
// and is reported under the "Unknown" bucket by the stats path.
//
// # Active Flag
//
// A record is active when the raw "active" field is boolean true, the string
// "true" in any casing, or "active_status" equals "Active". The dataset
// carries no negative form of any of these, so records lacking all of them
// are also treated as active. Preserved as-is pending product confirmation;
// see the behavior tests in normalize_test.go.
//
// # Identity
//
// The TLC license number is the sole deduplication key. Records without one
// cannot be keyed and are skipped by the upsert writer: no error, no row.
package domain
