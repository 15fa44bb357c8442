package filestore

import (
	"sort"
	"time"
)

// TrimOldest keeps the newest maxLen entries of items, ordered by ageFn.
// It returns the retained slice sorted oldest first and the number dropped.
func TrimOldest[V any](items []V, maxLen int, ageFn func(V) time.Time) ([]V, int) {
	sort.SliceStable(items, func(i, j int) bool {
		return ageFn(items[i]).Before(ageFn(items[j]))
	})
	if maxLen <= 0 || len(items) <= maxLen {
		return items, 0
	}
	dropped := len(items) - maxLen
	return append(items[:0:0], items[dropped:]...), dropped
}
