package domain

import (
	"strconv"
	"strings"

	apperrors "github.com/natours/natours/pkg/errors"
)

// Unit is a distance unit accepted by the geo endpoints.
type Unit string

const (
	UnitMiles      Unit = "mi"
	UnitKilometers Unit = "km"
)

// Earth radius and metre conversion factors per unit.
const (
	earthRadiusMiles = 3963.2
	earthRadiusKm    = 6378.1
	metresToMiles    = 0.000621371
	metresToKm       = 0.001
)

const latLngMessage = "Please provide latitude and longitude in the format lat, lng."

// ParseUnit accepts "mi" or "km".
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case UnitMiles, UnitKilometers:
		return Unit(s), nil
	}
	return "", apperrors.InvalidInput("Please provide a unit of mi or km.")
}

// ParseLatLng parses "lat,lng". Both components must be present and numeric.
func ParseLatLng(s string) (lat, lng float64, err error) {
	latStr, lngStr, _ := strings.Cut(s, ",")
	latStr, lngStr = strings.TrimSpace(latStr), strings.TrimSpace(lngStr)
	if latStr == "" || lngStr == "" {
		return 0, 0, apperrors.InvalidInput(latLngMessage)
	}
	lat, err1 := strconv.ParseFloat(latStr, 64)
	lng, err2 := strconv.ParseFloat(lngStr, 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, apperrors.InvalidInput(latLngMessage)
	}
	return lat, lng, nil
}

// RadiusRadians converts a distance to radians on the Earth's sphere.
func RadiusRadians(distance float64, u Unit) float64 {
	if u == UnitMiles {
		return distance / earthRadiusMiles
	}
	return distance / earthRadiusKm
}

// DistanceMultiplier converts metres to u.
func DistanceMultiplier(u Unit) float64 {
	if u == UnitMiles {
		return metresToMiles
	}
	return metresToKm
}
