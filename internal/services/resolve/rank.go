// Package resolve holds generic helpers for ordering and diffing documents and
// for resolving relative timeline expressions into absolute times.
package resolve

// GetRank returns a rank between before and after for the i-th of count
// documents inserted between them. A nil bound means the start or end of the
// list.
func GetRank(before, after *float64, i, count int) float64 {
	if count < 1 {
		count = 1
	}
	var lo, hi float64
	switch {
	case before != nil && after != nil:
		lo, hi = *before, *after
	case before != nil:
		lo, hi = *before, *before+1
	case after != nil:
		lo, hi = *after-1, *after
	default:
		lo, hi = 0, 1
	}
	return lo + (float64(i+1)/float64(count+1))*(hi-lo)
}
