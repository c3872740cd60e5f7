// Package uuid backfills ids for the parts of a legacy deck an older
// client saved without one. convert.DeckToManifest calls NewString for
// every Slide and Element that arrives with an empty ID, so the resulting
// manifest's tree is fully addressable by §4.3.1's backfillIDs step.
package uuid

import (
	"github.com/google/uuid"
)

// NewString returns a new V7 UUID string. V7 UUIDs are time-ordered, which
// keeps backfilled slide/element ids roughly sorted by the order they were
// assigned in, the same as a freshly authored deck's ids would be.
// Panics on error to maintain compatibility with google/uuid's NewString() method.
func NewString() string {
	return uuid.Must(uuid.NewV7()).String()
}
