package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// LocationInput carries the raw location encodings a record may hold. Any
// subset of fields may be populated; the resolver tries them in priority order.
type LocationInput struct {
	// LocationPoint is a well-known-text style point string, possibly
	// SRID-prefixed, e.g. "SRID=4326;POINT(27.9389 -26.3054)".
	LocationPoint string

	// Latitude and Longitude accept numeric or stringified values.
	Latitude  any
	Longitude any

	// GeoJSON is a GeoJSON-style point: a decoded map, a struct, raw JSON
	// bytes, or a JSON string.
	GeoJSON any

	// LocationText and Area are free-text fields matched against the
	// gazetteer as a last resort.
	LocationText string
	Area         string
}

// Resolution is the tagged outcome of a resolve attempt. Coordinate is always
// populated; when Source is SourceDefault the Error field explains why every
// method failed and the caller decides fallback behaviour.
type Resolution struct {
	Coordinate Coordinate `json:"coordinates"`
	Source     Source     `json:"source"`
	Confidence Confidence `json:"confidence"`
	Error      string     `json:"error,omitempty"`
}

// Resolved reports whether a real location was derived rather than the
// default fallback.
func (r Resolution) Resolved() bool {
	return r.Source != SourceDefault
}

// Point string pattern variants, tried in order. The encoded coordinate order
// is (longitude, latitude).
var pointPatterns = []*regexp.Regexp{
	// SRID-prefixed, space-separated: SRID=4326;POINT(27.93 -26.30)
	regexp.MustCompile(`(?i)^SRID=\d+\s*;\s*POINT\s*\(\s*(-?\d+(?:\.\d+)?)\s+(-?\d+(?:\.\d+)?)\s*\)`),
	// Comma-separated: POINT(27.93, -26.30)
	regexp.MustCompile(`(?i)POINT\s*\(\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*\)`),
	// Space-separated: POINT(27.93 -26.30)
	regexp.MustCompile(`(?i)POINT\s*\(\s*(-?\d+(?:\.\d+)?)\s+(-?\d+(?:\.\d+)?)\s*\)`),
	// Tolerant: any two numbers separated by whitespace and/or a comma.
	regexp.MustCompile(`(-?\d+(?:\.\d+)?)[\s,]+(-?\d+(?:\.\d+)?)`),
}

// Resolve derives a single best coordinate for the input, trying each method
// in strict priority order and stopping at the first validated hit.
func Resolve(input LocationInput) Resolution {
	var diagnostics []string

	if point := strings.TrimSpace(input.LocationPoint); point != "" {
		coord, err := parsePointString(point)
		if err == nil {
			if confidence, ok := confidenceFor(coord); ok {
				return Resolution{Coordinate: coord, Source: SourcePostGISPoint, Confidence: confidence}
			}
			err = fmt.Errorf("point %q outside South Africa bounds", point)
		}
		diagnostics = append(diagnostics, err.Error())
	}

	if input.Latitude != nil || input.Longitude != nil {
		coord, err := parseDirectFields(input.Latitude, input.Longitude)
		if err == nil {
			if confidence, ok := confidenceFor(coord); ok {
				return Resolution{Coordinate: coord, Source: SourceDirectFields, Confidence: confidence}
			}
			err = fmt.Errorf("lat/lng fields outside South Africa bounds")
		}
		diagnostics = append(diagnostics, err.Error())
	}

	if input.GeoJSON != nil {
		coord, err := parseGeoJSONPoint(input.GeoJSON)
		if err == nil {
			if confidence, ok := confidenceFor(coord); ok {
				return Resolution{Coordinate: coord, Source: SourceGeoJSON, Confidence: confidence}
			}
			err = fmt.Errorf("geojson point outside South Africa bounds")
		}
		diagnostics = append(diagnostics, err.Error())
	}

	if coord, ok := matchGazetteer(input.LocationText, input.Area); ok {
		// A place-name centroid is area-level precision, so it never earns
		// the high tier even though it sits inside the local box.
		return Resolution{Coordinate: coord, Source: SourceTextMatch, Confidence: ConfidenceMedium}
	}

	reason := "no location data provided"
	if len(diagnostics) > 0 {
		reason = strings.Join(diagnostics, "; ")
	}
	return Resolution{
		Coordinate: DefaultCoordinate,
		Source:     SourceDefault,
		Confidence: ConfidenceLow,
		Error:      "unable to resolve location: " + reason,
	}
}

// ResolveBatch resolves each input independently. One record's failure never
// aborts the batch and each output keeps its input's position.
func ResolveBatch(inputs []LocationInput) []Resolution {
	results := make([]Resolution, len(inputs))
	for i, input := range inputs {
		results[i] = Resolve(input)
	}
	return results
}

func parsePointString(point string) (Coordinate, error) {
	for _, pattern := range pointPatterns {
		match := pattern.FindStringSubmatch(point)
		if match == nil {
			continue
		}

		lon, lonErr := strconv.ParseFloat(match[1], 64)
		lat, latErr := strconv.ParseFloat(match[2], 64)
		if lonErr != nil || latErr != nil {
			continue
		}

		return Coordinate{Latitude: lat, Longitude: lon}, nil
	}
	return Coordinate{}, fmt.Errorf("unparseable point string %q", point)
}

func parseDirectFields(latitude, longitude any) (Coordinate, error) {
	lat, ok := parseCoordinateValue(latitude)
	if !ok {
		return Coordinate{}, fmt.Errorf("malformed latitude field %v", latitude)
	}
	lon, ok := parseCoordinateValue(longitude)
	if !ok {
		return Coordinate{}, fmt.Errorf("malformed longitude field %v", longitude)
	}
	return Coordinate{Latitude: lat, Longitude: lon}, nil
}

func parseCoordinateValue(value any) (float64, bool) {
	var parsed float64
	switch v := value.(type) {
	case float64:
		parsed = v
	case float32:
		parsed = float64(v)
	case int:
		parsed = float64(v)
	case int64:
		parsed = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		parsed = f
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		parsed = f
	default:
		return 0, false
	}

	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}

type geoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func parseGeoJSONPoint(value any) (Coordinate, error) {
	var point geoJSONPoint

	switch v := value.(type) {
	case geoJSONPoint:
		point = v
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return Coordinate{}, fmt.Errorf("malformed geojson object: %v", err)
		}
		if err := json.Unmarshal(raw, &point); err != nil {
			return Coordinate{}, fmt.Errorf("malformed geojson object: %v", err)
		}
	case json.RawMessage:
		if err := json.Unmarshal(v, &point); err != nil {
			return Coordinate{}, fmt.Errorf("malformed geojson payload: %v", err)
		}
	case []byte:
		if err := json.Unmarshal(v, &point); err != nil {
			return Coordinate{}, fmt.Errorf("malformed geojson payload: %v", err)
		}
	case string:
		if err := json.Unmarshal([]byte(v), &point); err != nil {
			return Coordinate{}, fmt.Errorf("malformed geojson payload: %v", err)
		}
	default:
		return Coordinate{}, fmt.Errorf("unsupported geojson value of type %T", value)
	}

	if !strings.EqualFold(strings.TrimSpace(point.Type), "Point") {
		return Coordinate{}, fmt.Errorf("geojson type %q is not a point", point.Type)
	}
	if len(point.Coordinates) < 2 {
		return Coordinate{}, fmt.Errorf("geojson point has %d coordinates", len(point.Coordinates))
	}

	// GeoJSON encodes (longitude, latitude).
	return Coordinate{Latitude: point.Coordinates[1], Longitude: point.Coordinates[0]}, nil
}
