package domain

import (
	"strings"
	"time"
)

// Review is a user's rating of a tour. At most one review exists per
// (tour, user) pair.
type Review struct {
	ID        string    `json:"id" bson:"_id"`
	Body      string    `json:"review" bson:"review"`
	Rating    int       `json:"rating" bson:"rating"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	TourID    string    `json:"tour" bson:"tour"`
	UserID    string    `json:"userId" bson:"user"`

	// Populated on read.
	User *UserSummary `json:"user,omitempty" bson:"-"`
}

// ValidateReview checks a review before it is written.
func ValidateReview(r *Review) error {
	r.Body = strings.TrimSpace(r.Body)

	v := newViolations()
	if r.Body == "" {
		v.add("review", "Review can not be empty!")
	}
	if r.Rating < 1 || r.Rating > 5 {
		v.add("rating", "Rating must be between 1 and 5.")
	}
	if r.TourID == "" {
		v.add("tour", "Review must belong to a tour.")
	}
	if r.UserID == "" {
		v.add("user", "Review must belong to a user.")
	}
	return v.err()
}
