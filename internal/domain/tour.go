package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tour difficulty levels.
const (
	DifficultyEasy      = "easy"
	DifficultyMedium    = "medium"
	DifficultyDifficult = "difficult"
)

// GeoPoint is a GeoJSON point. Coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
	Address     string    `json:"address,omitempty" bson:"address,omitempty"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
}

// Location is a stop on the tour itinerary.
type Location struct {
	GeoPoint `bson:",inline"`
	Day      int `json:"day,omitempty" bson:"day,omitempty"`
}

// Tour is a bookable tour. RatingsAverage and RatingsQuantity are derived
// from the tour's reviews and are written only by the ratings engine.
type Tour struct {
	ID              string      `json:"id" bson:"_id"`
	Name            string      `json:"name" bson:"name"`
	Slug            string      `json:"slug" bson:"slug"`
	Duration        int         `json:"duration" bson:"duration"`
	MaxGroupSize    int         `json:"maxGroupSize" bson:"maxGroupSize"`
	Difficulty      string      `json:"difficulty" bson:"difficulty"`
	RatingsAverage  float64     `json:"ratingsAverage" bson:"ratingsAverage"`
	RatingsQuantity int         `json:"ratingsQuantity" bson:"ratingsQuantity"`
	Price           float64     `json:"price" bson:"price"`
	PriceDiscount   *float64    `json:"priceDiscount,omitempty" bson:"priceDiscount,omitempty"`
	Summary         string      `json:"summary" bson:"summary"`
	Description     string      `json:"description,omitempty" bson:"description,omitempty"`
	ImageCover      string      `json:"imageCover" bson:"imageCover"`
	Images          []string    `json:"images" bson:"images"`
	CreatedAt       time.Time   `json:"-" bson:"createdAt"`
	StartDates      []time.Time `json:"startDates" bson:"startDates"`
	SecretTour      bool        `json:"secretTour" bson:"secretTour"`
	StartLocation   *GeoPoint   `json:"startLocation,omitempty" bson:"startLocation,omitempty"`
	Locations       []Location  `json:"locations" bson:"locations"`
	GuideIDs        []string    `json:"-" bson:"guides"`

	// Populated on read, never stored.
	Guides  []UserSummary `json:"guides" bson:"-"`
	Reviews []Review      `json:"reviews,omitempty" bson:"-"`
}

// DurationWeeks is the tour duration in weeks.
func (t Tour) DurationWeeks() float64 {
	return float64(t.Duration) / 7
}

// MarshalJSON adds the derived durationWeeks field.
func (t Tour) MarshalJSON() ([]byte, error) {
	type plain Tour
	return json.Marshal(struct {
		plain
		DurationWeeks float64 `json:"durationWeeks"`
	}{plain(t), t.DurationWeeks()})
}

// ValidDifficulties returns the accepted difficulty levels.
func ValidDifficulties() []string {
	return []string{DifficultyEasy, DifficultyMedium, DifficultyDifficult}
}

// IsValidDifficulty reports whether d is an accepted difficulty level.
func IsValidDifficulty(d string) bool {
	for _, v := range ValidDifficulties() {
		if v == d {
			return true
		}
	}
	return false
}

// ValidateTour normalizes and checks a tour before it is written.
func ValidateTour(t *Tour) error {
	t.Name = strings.TrimSpace(t.Name)
	t.Summary = strings.TrimSpace(t.Summary)
	t.Description = strings.TrimSpace(t.Description)

	v := newViolations()
	switch n := len([]rune(t.Name)); {
	case n == 0:
		v.add("name", "A tour must have a name.")
	case n > 40:
		v.add("name", "A tour name must have less or equal then 40 characters.")
	case n < 10:
		v.add("name", "A tour name must have more or equal then 10 characters.")
	}
	if t.Duration <= 0 {
		v.add("duration", "A tour must have a duration.")
	}
	if t.MaxGroupSize <= 0 {
		v.add("maxGroupSize", "A tour must have a group size.")
	}
	if !IsValidDifficulty(t.Difficulty) {
		v.add("difficulty", "Difficulty is either: easy, medium, difficult.")
	}
	if t.Price <= 0 {
		v.add("price", "A tour must have a price.")
	}
	if t.PriceDiscount != nil && *t.PriceDiscount >= t.Price {
		v.add("priceDiscount", fmt.Sprintf("Discount price (%g) should be below the regular price.", *t.PriceDiscount))
	}
	if t.Summary == "" {
		v.add("summary", "A tour must have a description.")
	}
	if t.ImageCover == "" {
		v.add("imageCover", "A tour must have a cover image.")
	}
	if t.RatingsAverage < 1 || t.RatingsAverage > 5 {
		v.add("ratingsAverage", "Rating must be between 1.0 and 5.0")
	}
	if t.StartLocation != nil {
		if msg := validatePoint(t.StartLocation); msg != "" {
			v.add("startLocation", msg)
		}
	}
	for i := range t.Locations {
		if msg := validatePoint(&t.Locations[i].GeoPoint); msg != "" {
			v.add(fmt.Sprintf("locations[%d]", i), msg)
		}
	}
	return v.err()
}

func validatePoint(p *GeoPoint) string {
	if p.Type == "" {
		p.Type = "Point"
	}
	if p.Type != "Point" {
		return "Location type must be Point."
	}
	if len(p.Coordinates) != 2 {
		return "Coordinates must be [longitude, latitude]."
	}
	if lng, lat := p.Coordinates[0], p.Coordinates[1]; lng < -180 || lng > 180 || lat < -90 || lat > 90 {
		return "Coordinates are out of range."
	}
	return ""
}

// DifficultyStats is one row of the tour statistics report.
type DifficultyStats struct {
	Difficulty string  `json:"_id" bson:"_id"`
	NumTours   int     `json:"numTours" bson:"numTours"`
	NumRatings int     `json:"numRatings" bson:"numRatings"`
	AvgRating  float64 `json:"avgRating" bson:"avgRating"`
	AvgPrice   float64 `json:"avgPrice" bson:"avgPrice"`
	MinPrice   float64 `json:"minPrice" bson:"minPrice"`
	MaxPrice   float64 `json:"maxPrice" bson:"maxPrice"`
}

// MonthPlan counts tour starts in one calendar month.
type MonthPlan struct {
	Month         int      `json:"month" bson:"month"`
	NumTourStarts int      `json:"numTourStarts" bson:"numTourStarts"`
	Tours         []string `json:"tours" bson:"tours"`
}

// TourDistance is a tour's distance from a reference point.
type TourDistance struct {
	ID       string  `json:"id" bson:"_id"`
	Name     string  `json:"name" bson:"name"`
	Distance float64 `json:"distance" bson:"distance"`
}
