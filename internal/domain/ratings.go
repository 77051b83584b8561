package domain

import "math"

// DefaultRatingsAverage is stored when a tour has no reviews.
const DefaultRatingsAverage = 4.5

// AggregateResult is the rating aggregate of a tour's live review set.
// Average is nil when Count is zero and carries full precision otherwise.
type AggregateResult struct {
	Count   int
	Average *float64
}

// Stored returns the values written to the tour: the rounded average, or
// the default when there are no reviews.
func (r AggregateResult) Stored() (quantity int, average float64) {
	if r.Count == 0 || r.Average == nil {
		return 0, DefaultRatingsAverage
	}
	return r.Count, RoundRating(*r.Average)
}

// RoundRating rounds to one decimal place.
func RoundRating(v float64) float64 {
	return math.Round(v*10) / 10
}
