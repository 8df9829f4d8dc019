package models

import (
	"sort"
	"time"
)

// MergeReviews combines two collections keyed by review ID. Incoming entries
// overwrite existing ones with the same ID but keep the existing position, so
// ties on the timestamp resolve in insertion order. The result is sorted newest
// first.
func MergeReviews(existing, incoming []Review) []Review {
	index := make(map[string]int, len(existing)+len(incoming))
	merged := make([]Review, 0, len(existing)+len(incoming))

	put := func(r Review) {
		if i, ok := index[r.ID]; ok {
			merged[i] = r
			return
		}
		index[r.ID] = len(merged)
		merged = append(merged, r)
	}

	for _, r := range existing {
		put(r)
	}
	for _, r := range incoming {
		put(r)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return sortTime(merged[i]).After(sortTime(merged[j]))
	})
	return merged
}

func sortTime(r Review) time.Time {
	if r.CreatedAt.IsZero() {
		return r.CommentedAt
	}
	return r.CreatedAt
}
