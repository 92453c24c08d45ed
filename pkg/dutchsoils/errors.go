package dutchsoils

import "github.com/rotisserie/eris"

// Sentinel errors. Use eris.Is to test for them; returned errors wrap them
// with the offending key.
var (
	// ErrNotFound is returned for unknown indices, codes, clusters and map
	// areas, and for locations outside the soil map.
	ErrNotFound = eris.New("dutchsoils: not found")
	// ErrAmbiguousCode is returned when a single profile is requested for a
	// soil-unit code shared by several profiles.
	ErrAmbiguousCode = eris.New("dutchsoils: ambiguous soil unit code")
	// ErrInvalidInput is returned for bad discretisations, mismatched
	// lengths and unknown selectors.
	ErrInvalidInput = eris.New("dutchsoils: invalid input")
	// ErrMalformedTable is returned when a flat file violates the table
	// invariants.
	ErrMalformedTable = eris.New("dutchsoils: malformed table")
)
