package geo

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Gazetteer of place names the app's free-text location fields commonly carry.
// Centroids sit inside the Eldorado Park local box except the wider Soweto
// neighbours, which still fall inside the national box.
var gazetteer = map[string]Coordinate{
	"eldorado park":   {Latitude: -26.3054, Longitude: 27.9389},
	"klipspruit west": {Latitude: -26.2875, Longitude: 27.8994},
	"nancefield":      {Latitude: -26.2951, Longitude: 27.9186},
	"devland":         {Latitude: -26.2877, Longitude: 27.9286},
	"freedom park":    {Latitude: -26.3305, Longitude: 27.9356},
	"bushkoppies":     {Latitude: -26.3208, Longitude: 27.9075},
	"kliptown":        {Latitude: -26.2869, Longitude: 27.8864},
	"dhlamini":        {Latitude: -26.2806, Longitude: 27.8958},
	"soweto":          {Latitude: -26.2678, Longitude: 27.8585},
	"lenasia":         {Latitude: -26.3672, Longitude: 27.8543},
}

// Eldorado Park is addressed by numbered extensions ("Ext 8", "Extension 2").
var extensionCentroids = map[int]Coordinate{
	1:  {Latitude: -26.2997, Longitude: 27.9287},
	2:  {Latitude: -26.3028, Longitude: 27.9221},
	3:  {Latitude: -26.3090, Longitude: 27.9205},
	4:  {Latitude: -26.3133, Longitude: 27.9260},
	5:  {Latitude: -26.3169, Longitude: 27.9334},
	6:  {Latitude: -26.3124, Longitude: 27.9428},
	7:  {Latitude: -26.3071, Longitude: 27.9474},
	8:  {Latitude: -26.3009, Longitude: 27.9441},
	9:  {Latitude: -26.2962, Longitude: 27.9373},
	10: {Latitude: -26.3186, Longitude: 27.9189},
}

var extensionPattern = regexp.MustCompile(`(?i)\bext(?:ension)?\.?\s*(\d{1,2})\b`)

// gazetteerKeys holds gazetteer names longest-first so "klipspruit west"
// matches before "soweto" appears anywhere in the text.
var gazetteerKeys = func() []string {
	keys := make([]string, 0, len(gazetteer))
	for key := range gazetteer {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// matchGazetteer scans the free-text fields for a known place name, preferring
// a numbered extension match over the suburb centroid.
func matchGazetteer(fields ...string) (Coordinate, bool) {
	text := strings.ToLower(strings.TrimSpace(strings.Join(fields, " ")))
	if text == "" {
		return Coordinate{}, false
	}

	if match := extensionPattern.FindStringSubmatch(text); match != nil {
		if number, err := strconv.Atoi(match[1]); err == nil {
			if centroid, ok := extensionCentroids[number]; ok {
				return centroid, true
			}
			// Unknown extension number still anchors to Eldorado Park.
			return gazetteer["eldorado park"], true
		}
	}

	for _, key := range gazetteerKeys {
		if strings.Contains(text, key) {
			return gazetteer[key], true
		}
	}

	return Coordinate{}, false
}
