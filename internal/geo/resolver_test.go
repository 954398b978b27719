package geo

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/lamont-llp/safeguard-eldos-sub000/pkg/metrics"
)

const epsilon = 1e-6

func TestResolveSRIDPrefixedPoint(t *testing.T) {
	res := Resolve(LocationInput{LocationPoint: "SRID=4326;POINT(27.9389 -26.3054)"})

	require.Equal(t, SourcePostGISPoint, res.Source)
	require.Equal(t, ConfidenceHigh, res.Confidence)
	require.InDelta(t, -26.3054, res.Coordinate.Latitude, epsilon)
	require.InDelta(t, 27.9389, res.Coordinate.Longitude, epsilon)
	require.Empty(t, res.Error)
}

func TestResolvePointVariants(t *testing.T) {
	cases := []struct {
		name  string
		point string
	}{
		{"space separated", "POINT(27.9389 -26.3054)"},
		{"comma separated", "POINT(27.9389, -26.3054)"},
		{"lowercase", "point(27.9389 -26.3054)"},
		{"tolerant bare pair", "27.9389, -26.3054"},
		{"srid with spaces", "SRID=4326; POINT(27.9389 -26.3054)"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Resolve(LocationInput{LocationPoint: tc.point})
			require.Equal(t, SourcePostGISPoint, res.Source)
			require.InDelta(t, -26.3054, res.Coordinate.Latitude, epsilon)
			require.InDelta(t, 27.9389, res.Coordinate.Longitude, epsilon)
		})
	}
}

func TestResolvePointOutsideNationalBoundsIsRejected(t *testing.T) {
	// London: parses fine but must not be accepted for a Soweto incident.
	res := Resolve(LocationInput{LocationPoint: "POINT(-0.1276 51.5072)"})

	require.Equal(t, SourceDefault, res.Source)
	require.Equal(t, ConfidenceLow, res.Confidence)
	require.NotEmpty(t, res.Error)
	require.Contains(t, res.Error, "bounds")
}

func TestResolveNationalButNotLocalIsMedium(t *testing.T) {
	// Cape Town: inside South Africa, far from Eldorado Park.
	res := Resolve(LocationInput{LocationPoint: "POINT(18.4241 -33.9249)"})

	require.Equal(t, SourcePostGISPoint, res.Source)
	require.Equal(t, ConfidenceMedium, res.Confidence)
}

func TestResolveDirectFields(t *testing.T) {
	numeric := Resolve(LocationInput{Latitude: -26.3054, Longitude: 27.9389})
	require.Equal(t, SourceDirectFields, numeric.Source)
	require.Equal(t, ConfidenceHigh, numeric.Confidence)

	stringified := Resolve(LocationInput{Latitude: " -26.3054 ", Longitude: "27.9389"})
	require.Equal(t, SourceDirectFields, stringified.Source)
	require.InDelta(t, numeric.Coordinate.Latitude, stringified.Coordinate.Latitude, epsilon)
	require.InDelta(t, numeric.Coordinate.Longitude, stringified.Coordinate.Longitude, epsilon)

	jsonNumber := Resolve(LocationInput{Latitude: json.Number("-26.3054"), Longitude: json.Number("27.9389")})
	require.Equal(t, SourceDirectFields, jsonNumber.Source)
}

func TestResolveMalformedDirectFieldsFallsThrough(t *testing.T) {
	res := Resolve(LocationInput{Latitude: "not-a-number", Longitude: 27.9389, Area: "Eldorado Park"})

	require.Equal(t, SourceTextMatch, res.Source)
	require.Equal(t, ConfidenceMedium, res.Confidence)
}

func TestResolveGeoJSONShapes(t *testing.T) {
	asMap := Resolve(LocationInput{GeoJSON: map[string]any{
		"type":        "Point",
		"coordinates": []any{27.9389, -26.3054},
	}})
	require.Equal(t, SourceGeoJSON, asMap.Source)
	require.InDelta(t, -26.3054, asMap.Coordinate.Latitude, epsilon)

	asRaw := Resolve(LocationInput{GeoJSON: json.RawMessage(`{"type":"Point","coordinates":[27.9389,-26.3054]}`)})
	require.Equal(t, SourceGeoJSON, asRaw.Source)

	notAPoint := Resolve(LocationInput{GeoJSON: `{"type":"Polygon","coordinates":[]}`})
	require.Equal(t, SourceDefault, notAPoint.Source)
	require.NotEmpty(t, notAPoint.Error)
}

func TestAllInputShapesAgreeWithinEpsilon(t *testing.T) {
	want := Coordinate{Latitude: -26.3054, Longitude: 27.9389}

	inputs := []LocationInput{
		{LocationPoint: "SRID=4326;POINT(27.9389 -26.3054)"},
		{Latitude: -26.3054, Longitude: "27.9389"},
		{GeoJSON: map[string]any{"type": "Point", "coordinates": []any{27.9389, -26.3054}}},
		{LocationText: "corner shop, Eldorado Park"},
	}

	for i, input := range inputs {
		res := Resolve(input)
		require.True(t, res.Resolved(), "input %d", i)
		require.InDelta(t, want.Latitude, res.Coordinate.Latitude, 0.05, "input %d", i)
		require.InDelta(t, want.Longitude, res.Coordinate.Longitude, 0.05, "input %d", i)
	}
}

func TestResolveGazetteerExtensions(t *testing.T) {
	ext8 := Resolve(LocationInput{LocationText: "Near the clinic, Ext 8"})
	require.Equal(t, SourceTextMatch, ext8.Source)
	require.Equal(t, extensionCentroids[8], ext8.Coordinate)

	extension2 := Resolve(LocationInput{Area: "Eldorado Park Extension 2"})
	require.Equal(t, extensionCentroids[2], extension2.Coordinate)

	unknownExt := Resolve(LocationInput{Area: "Ext 14"})
	require.Equal(t, SourceTextMatch, unknownExt.Source)
	require.Equal(t, gazetteer["eldorado park"], unknownExt.Coordinate)
}

func TestResolveGazetteerPlaceNames(t *testing.T) {
	res := Resolve(LocationInput{LocationText: "taxi rank near Klipspruit West"})
	require.Equal(t, SourceTextMatch, res.Source)
	require.Equal(t, gazetteer["klipspruit west"], res.Coordinate)
}

func TestResolveNothingReturnsDefault(t *testing.T) {
	res := Resolve(LocationInput{})

	require.Equal(t, SourceDefault, res.Source)
	require.Equal(t, ConfidenceLow, res.Confidence)
	require.Equal(t, DefaultCoordinate, res.Coordinate)
	require.Contains(t, res.Error, "no location data")
}

func TestResolveBatchIsolatesFailuresAndKeepsOrder(t *testing.T) {
	results := ResolveBatch([]LocationInput{
		{LocationPoint: "POINT(27.9389 -26.3054)"},
		{LocationPoint: "garbage"},
		{Area: "Freedom Park"},
	})

	require.Len(t, results, 3)
	require.Equal(t, SourcePostGISPoint, results[0].Source)
	require.Equal(t, SourceDefault, results[1].Source)
	require.NotEmpty(t, results[1].Error)
	require.Equal(t, SourceTextMatch, results[2].Source)
}

func TestDistanceHaversine(t *testing.T) {
	// Eldorado Park to Johannesburg CBD is roughly 17-20 km.
	eldos := Coordinate{Latitude: -26.3054, Longitude: 27.9389}
	joburg := Coordinate{Latitude: -26.2041, Longitude: 28.0473}

	distance := Distance(eldos, joburg)
	require.Greater(t, distance, 14000.0)
	require.Less(t, distance, 21000.0)

	require.InDelta(t, 0, Distance(eldos, eldos), epsilon)
}

func TestStatsAggregation(t *testing.T) {
	stats := NewStats()
	stats.RecordBatch(ResolveBatch([]LocationInput{
		{LocationPoint: "POINT(27.9389 -26.3054)"},
		{LocationPoint: "POINT(-0.1276 51.5072)"},
		{LocationText: "Eldorado Park"},
		{},
	}))

	snapshot := stats.Snapshot()
	require.Equal(t, 4, snapshot.Total)
	require.Equal(t, 2, snapshot.Resolved)
	require.InDelta(t, 0.5, snapshot.SuccessRate, epsilon)
	require.Equal(t, 1, snapshot.BySource[SourcePostGISPoint])
	require.Equal(t, 1, snapshot.BySource[SourceTextMatch])
	require.Equal(t, 2, snapshot.BySource[SourceDefault])
	require.Equal(t, 1, snapshot.Errors["out_of_bounds"])
	require.Equal(t, 1, snapshot.Errors["missing"])

	stats.Reset()
	require.Zero(t, stats.Snapshot().Total)
}

func TestStatsRecordExportsCounters(t *testing.T) {
	resolutions := metrics.CoordinateResolutions.WithLabelValues(string(SourcePostGISPoint), string(ConfidenceHigh))
	failures := metrics.CoordinateFailures.WithLabelValues("missing")
	resolvedBefore := testutil.ToFloat64(resolutions)
	failedBefore := testutil.ToFloat64(failures)

	stats := NewStats()
	stats.Record(Resolve(LocationInput{LocationPoint: "POINT(27.9389 -26.3054)"}))
	stats.Record(Resolve(LocationInput{}))

	require.InDelta(t, resolvedBefore+1, testutil.ToFloat64(resolutions), epsilon)
	require.InDelta(t, failedBefore+1, testutil.ToFloat64(failures), epsilon)
}
