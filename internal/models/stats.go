package models

// MinRating and MaxRating bound the rating histogram
const (
	MinRating = 1
	MaxRating = 5
)

// EmptyDistribution returns a histogram with every rating key present
func EmptyDistribution() map[int]int {
	dist := make(map[int]int, MaxRating)
	for r := MinRating; r <= MaxRating; r++ {
		dist[r] = 0
	}
	return dist
}

// ComputeStats derives aggregate statistics from a review collection.
// Ratings outside 1..5 still count toward the total and the average.
func ComputeStats(reviews []Review) ReviewStats {
	stats := ReviewStats{RatingDistribution: EmptyDistribution()}
	if len(reviews) == 0 {
		return stats
	}

	sum := 0
	for _, r := range reviews {
		sum += r.Rating
		if r.Rating >= MinRating && r.Rating <= MaxRating {
			stats.RatingDistribution[r.Rating]++
		}
		if r.Verified == IsVerified {
			stats.VerifiedReviews++
		}
	}

	stats.TotalReviews = len(reviews)
	stats.AverageRating = float64(sum) / float64(len(reviews))
	return stats
}
