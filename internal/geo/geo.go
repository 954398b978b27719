// Package geo resolves the assorted location encodings found on incident
// records into validated coordinates with a confidence tier. It is a pure
// library: no logging, no I/O, and malformed input never produces a Go error —
// every outcome is a tagged Resolution the caller can inspect.
package geo

import "math"

// Coordinate is a validated geographic point in (latitude, longitude) order.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Confidence is the coarse trust tier attached to a resolved coordinate.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Source identifies which parsing method produced a resolution.
type Source string

const (
	SourcePostGISPoint Source = "postgis_point"
	SourceDirectFields Source = "direct_fields"
	SourceGeoJSON      Source = "geojson"
	SourceTextMatch    Source = "text_match"
	SourceDefault      Source = "default"
)

// BoundingBox is an axis-aligned latitude/longitude rectangle.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether the coordinate lies inside the box (inclusive).
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Latitude >= b.MinLat && c.Latitude <= b.MaxLat &&
		c.Longitude >= b.MinLon && c.Longitude <= b.MaxLon
}

var (
	// SouthAfricaBounds is the national sanity box. Parses outside it are
	// rejected outright rather than accepted with low confidence.
	SouthAfricaBounds = BoundingBox{MinLat: -35.0, MaxLat: -22.0, MinLon: 16.3, MaxLon: 33.1}

	// EldoradoParkBounds covers Eldorado Park and the surrounding Soweto
	// suburbs the app serves. Coordinates inside it are high confidence.
	EldoradoParkBounds = BoundingBox{MinLat: -26.45, MaxLat: -26.20, MinLon: 27.80, MaxLon: 28.05}
)

// DefaultCoordinate is the Eldorado Park civic centre, used when every
// resolution method fails.
var DefaultCoordinate = Coordinate{Latitude: -26.3054, Longitude: 27.9389}

const earthRadiusM = 6371000

// Distance returns the great-circle distance between two points in metres
// using the haversine formula.
func Distance(a, b Coordinate) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	deltaLat := toRadians(b.Latitude - a.Latitude)
	deltaLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

func toRadians(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}

// confidenceFor grades a parsed coordinate against the bounding boxes.
// The second return is false when the point falls outside South Africa.
func confidenceFor(c Coordinate) (Confidence, bool) {
	if !SouthAfricaBounds.Contains(c) {
		return "", false
	}
	if EldoradoParkBounds.Contains(c) {
		return ConfidenceHigh, true
	}
	return ConfidenceMedium, true
}
