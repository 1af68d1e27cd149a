package scanner

import "math/rand/v2"

// Shuffle returns a uniformly random permutation of in (Fisher-Yates).
// The input slice is left untouched.
func Shuffle[T any](in []T) []T {
	out := append([]T{}, in...)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// Truncate keeps the first depth items of order.
// It reports whether items were dropped, i.e. a deeper search is possible.
func Truncate[T any](order []T, depth int) ([]T, bool) {
	if depth <= 0 || len(order) <= depth {
		return order, false
	}
	return order[:depth], true
}
