// Package models contains the database model definitions.
// Every entity is stored in its own sqlite table; nested structures are
// persisted as JSON columns.
package models

// Opaque identifiers, one type per entity so that ids cannot be mixed up.
type (
	StudioID           string
	PlaylistID         string
	RundownID          string
	SegmentID          string
	PartID             string
	PieceID            string
	PartInstanceID     string
	PieceInstanceID    string
	ShowStyleBaseID    string
	ShowStyleVariantID string
)

// Strings converts a slice of typed ids into plain strings for query arguments.
func Strings[S ~string](ids []S) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
