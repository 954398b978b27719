package models

import (
	"time"

	"github.com/lamont-llp/safeguard-eldos-sub000/internal/geo"
)

// Category enumerates the closed set of incident categories the community app
// accepts. Anything else is rejected at the reporting boundary.
type Category string

const (
	CategoryCrime              Category = "crime"
	CategorySuspiciousActivity Category = "suspicious_activity"
	CategoryGangActivity       Category = "gang_activity"
	CategoryFire               Category = "fire"
	CategoryAccident           Category = "accident"
	CategoryMissingPerson      Category = "missing_person"
	CategoryVandalism          Category = "vandalism"
	CategoryOther              Category = "other"
)

// Valid reports whether the category belongs to the closed enum.
func (c Category) Valid() bool {
	switch c {
	case CategoryCrime, CategorySuspiciousActivity, CategoryGangActivity,
		CategoryFire, CategoryAccident, CategoryMissingPerson,
		CategoryVandalism, CategoryOther:
		return true
	}
	return false
}

// Severity orders incidents from low to critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal position of the severity, with unknown values
// treated as low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// VerificationThreshold is the number of distinct confirm actions required
// before a report is considered community-verified. Disputes and
// additional-info submissions do not count towards it.
const VerificationThreshold = 3

// VerifiedAt reports whether the supplied confirmation count satisfies the
// verification threshold. Both the optimistic path and the remote-event path
// must use this rule so speculative and authoritative views converge.
func VerifiedAt(count int) bool {
	return count >= VerificationThreshold
}

// IncidentRecord is the domain entity for a reported safety event. JSON tags
// match the backend wire shape so records round-trip through change events.
type IncidentRecord struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`

	// Raw encoded location forms as delivered by the backend, plus the
	// resolved coordinate and its confidence tier.
	LocationText  string          `json:"location,omitempty"`
	Area          string          `json:"area,omitempty"`
	LocationPoint string          `json:"location_point,omitempty"`
	RawLatitude   any             `json:"latitude,omitempty"`
	RawLongitude  any             `json:"longitude,omitempty"`
	Coordinate    *geo.Coordinate `json:"coordinate,omitempty"`
	Confidence    geo.Confidence  `json:"confidence,omitempty"`

	VerificationCount int        `json:"verification_count"`
	IsVerified        bool       `json:"is_verified"`
	IsUrgent          bool       `json:"is_urgent"`
	IsResolved        bool       `json:"is_resolved"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`

	ReporterID string    `json:"reporter_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LocationInput exposes the record's raw location encodings to the resolver.
func (r *IncidentRecord) LocationInput() geo.LocationInput {
	return geo.LocationInput{
		LocationPoint: r.LocationPoint,
		Latitude:      r.RawLatitude,
		Longitude:     r.RawLongitude,
		LocationText:  r.LocationText,
		Area:          r.Area,
	}
}

// Clone returns a deep copy so store consumers never observe shared pointers.
func (r IncidentRecord) Clone() IncidentRecord {
	cpy := r
	if r.Coordinate != nil {
		coord := *r.Coordinate
		cpy.Coordinate = &coord
	}
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		cpy.ResolvedAt = &at
	}
	return cpy
}
