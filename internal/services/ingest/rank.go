package ingest

import "github.com/bbernstein/sofie-playout-go/internal/services/resolve"

// fillRanks resolves a list of optional ranks. Every run of missing ranks is
// spread evenly between the ranked neighbours around it.
func fillRanks(given []*float64) []float64 {
	out := make([]float64, len(given))
	for i := 0; i < len(given); {
		if given[i] != nil {
			out[i] = *given[i]
			i++
			continue
		}
		j := i
		for j < len(given) && given[j] == nil {
			j++
		}
		var before, after *float64
		if i > 0 {
			before = &out[i-1]
		}
		if j < len(given) {
			after = given[j]
		}
		for k := i; k < j; k++ {
			out[k] = resolve.GetRank(before, after, k-i, j-i)
		}
		i = j
	}
	return out
}
