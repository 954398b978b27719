// Package incidents orchestrates the incident sync flow: optimistic local
// writes against the backend API, reconciliation of remote change events into
// the record store, and hand-off of interrupt-worthy events to the
// notification delivery engine.
package incidents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lamont-llp/safeguard-eldos-sub000/internal/backend"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/geo"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/models"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/notify"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/optimistic"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/realtime"
	"github.com/lamont-llp/safeguard-eldos-sub000/internal/store"
	apperrors "github.com/lamont-llp/safeguard-eldos-sub000/pkg/errors"
	"github.com/lamont-llp/safeguard-eldos-sub000/pkg/validator"
)

// nearbyWindow is the trailing reporting window fetched on load.
const nearbyWindow = 24 * time.Hour

// Service owns the incident sync flow.
type Service struct {
	records *store.RecordStore
	manager *optimistic.Manager
	api     backend.API
	engine  *notify.Engine
	stats   *geo.Stats
	log     *zap.Logger

	syncDegraded atomic.Bool
}

// NewService wires the incident service.
func NewService(records *store.RecordStore, manager *optimistic.Manager, api backend.API, engine *notify.Engine, log *zap.Logger) (*Service, error) {
	if records == nil {
		return nil, errors.New("incident service: record store is required")
	}
	if manager == nil {
		return nil, errors.New("incident service: optimistic manager is required")
	}
	if api == nil {
		return nil, errors.New("incident service: backend api is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		records: records,
		manager: manager,
		api:     api,
		engine:  engine,
		stats:   geo.NewStats(),
		log:     log,
	}, nil
}

// ResolverStats exposes the coordinate resolution counters for maintenance
// reporting.
func (s *Service) ResolverStats() *geo.Stats {
	return s.stats
}

// SyncDegraded reports whether a topic subscription has exhausted its retry
// budget this session.
func (s *Service) SyncDegraded() bool {
	return s.syncDegraded.Load()
}

// ReportIncident submits a new report. The speculative record appears in the
// store immediately under a temporary ID and is swapped for the canonical
// record when the backend confirms, or removed when it rejects.
func (s *Service) ReportIncident(ctx context.Context, input backend.NewIncident) (*models.IncidentRecord, error) {
	if !input.Category.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown incident category %q", input.Category))
	}
	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	now := time.Now()
	tempID := "temp-" + uuid.NewString()
	speculative := models.IncidentRecord{
		ID:           tempID,
		Category:     input.Category,
		Severity:     input.Severity,
		Title:        input.Title,
		Description:  input.Description,
		Area:         input.Area,
		RawLatitude:  input.Latitude,
		RawLongitude: input.Longitude,
		IsUrgent:     input.IsUrgent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.resolveInto(&speculative)

	if err := s.manager.Apply(optimistic.Update{
		ID:          tempID,
		Kind:        optimistic.KindAdd,
		Speculative: &speculative,
	}); err != nil {
		return nil, apperrors.FromError(err)
	}

	canonical, err := s.api.CreateIncident(ctx, input)
	if err != nil {
		_ = s.manager.Rollback(tempID, "report rejected")
		return nil, apperrors.FromError(err)
	}

	record := canonical.Clone()
	s.resolveInto(&record)
	s.manager.Confirm(tempID)
	s.records.Replace(tempID, record)

	s.log.Info("incident reported",
		zap.String("incident_id", record.ID),
		zap.String("category", string(record.Category)))
	return &record, nil
}

// VerifyIncidentReport adds the caller's confirmation to an incident. The
// speculative verification count applies the same threshold rule the server
// uses, so the eventual authoritative record overwrites it without visible
// flicker.
func (s *Service) VerifyIncidentReport(ctx context.Context, incidentID string) (*models.IncidentRecord, error) {
	prior, ok := s.records.Get(incidentID)
	if !ok {
		return nil, apperrors.ErrNotFound
	}

	speculative := prior.Clone()
	speculative.VerificationCount = prior.VerificationCount + 1
	speculative.IsVerified = models.VerifiedAt(speculative.VerificationCount)
	speculative.UpdatedAt = time.Now()

	// One tracked verification per incident: a second tap while the first
	// is still in flight is a duplicate action.
	correlationID := "verify-" + incidentID
	if err := s.manager.Apply(optimistic.Update{
		ID:          correlationID,
		Kind:        optimistic.KindUpdate,
		Prior:       &prior,
		Speculative: &speculative,
	}); err != nil {
		return nil, apperrors.ErrDuplicateAction.WithInternal(err)
	}

	canonical, err := s.api.VerifyIncident(ctx, incidentID)
	if err != nil {
		_ = s.manager.Rollback(correlationID, "verification rejected")
		return nil, apperrors.FromError(err)
	}

	record := canonical.Clone()
	s.resolveInto(&record)
	s.manager.Confirm(correlationID)
	s.records.Put(record)
	return &record, nil
}

// LoadIncidentsNearLocation fetches recent incidents around the supplied
// point, resolves their coordinates and seeds the record store.
func (s *Service) LoadIncidentsNearLocation(ctx context.Context, center geo.Coordinate, radiusM float64) ([]models.IncidentRecord, error) {
	fetched, err := s.api.ListIncidentsNear(ctx, center.Latitude, center.Longitude, radiusM, nearbyWindow)
	if err != nil {
		return nil, apperrors.FromError(err)
	}

	inputs := make([]geo.LocationInput, len(fetched))
	for i := range fetched {
		inputs[i] = fetched[i].LocationInput()
	}
	resolutions := geo.ResolveBatch(inputs)
	s.stats.RecordBatch(resolutions)

	records := make([]models.IncidentRecord, len(fetched))
	for i := range fetched {
		record := fetched[i].Clone()
		coord := resolutions[i].Coordinate
		record.Coordinate = &coord
		record.Confidence = resolutions[i].Confidence
		s.records.Put(record)
		records[i] = record
	}

	s.log.Info("nearby incidents loaded",
		zap.Int("count", len(records)),
		zap.Float64("radius_m", radiusM))
	return records, nil
}

// HandleChangeEvent reconciles one incident-changes event into the store and
// offers notification candidates for noteworthy transitions.
func (s *Service) HandleChangeEvent(ctx context.Context, event realtime.Event) {
	switch event.Type {
	case realtime.EventInsert:
		record, err := s.decode(event.New)
		if err != nil {
			s.log.Warn("undecodable insert event dropped", zap.Error(err))
			return
		}
		s.records.Put(*record)
		if s.engine != nil {
			s.engine.Deliver(ctx, incidentCandidate(*record))
		}

	case realtime.EventUpdate:
		record, err := s.decode(event.New)
		if err != nil {
			s.log.Warn("undecodable update event dropped", zap.Error(err))
			return
		}
		prior, hadPrior := s.records.Get(record.ID)
		s.records.Put(*record)

		// A report crossing the verification threshold is noteworthy.
		if s.engine != nil && hadPrior && !prior.IsVerified && record.IsVerified {
			s.engine.Deliver(ctx, verificationCandidate(*record))
		}

	case realtime.EventDelete:
		record, err := s.decode(event.Old)
		if err != nil {
			s.log.Warn("undecodable delete event dropped", zap.Error(err))
			return
		}
		s.records.Remove(record.ID)

	default:
		s.log.Debug("unhandled change event type", zap.String("type", event.Type))
	}
}

// HandleUrgentAlert turns an urgent-alerts event into an urgent notification
// candidate regardless of the regular incident flow.
func (s *Service) HandleUrgentAlert(ctx context.Context, event realtime.Event) {
	record, err := s.decode(event.New)
	if err != nil {
		s.log.Warn("undecodable urgent alert dropped", zap.Error(err))
		return
	}
	s.records.Put(*record)

	if s.engine == nil {
		return
	}
	s.engine.Deliver(ctx, notify.Candidate{
		Category: models.NotificationSafetyAlert,
		Priority: models.PriorityUrgent,
		Title:    "Urgent community alert",
		Message:  record.Title,
		Target:   "/incidents/" + record.ID,
		Anchor:   record.Coordinate,
	})
}

// OnSyncStateChange reacts to subscription lifecycle transitions. Exhausting
// the retry budget rolls back every pending optimistic write, since none of
// them can be reconciled without the event stream.
func (s *Service) OnSyncStateChange(topic string, state realtime.State) {
	switch state {
	case realtime.StateFailed:
		s.syncDegraded.Store(true)
		s.log.Error("sync unavailable, reverting pending optimistic writes",
			zap.String("topic", topic))
		if err := s.manager.RollbackAll("sync unavailable"); err != nil {
			s.log.Error("rollback incomplete", zap.Error(err))
		}
	case realtime.StateSubscribed:
		s.syncDegraded.Store(false)
	}
}

// decode unmarshals an event snapshot and resolves its coordinate.
func (s *Service) decode(raw json.RawMessage) (*models.IncidentRecord, error) {
	if len(raw) == 0 {
		return nil, errors.New("event carries no record snapshot")
	}

	var record models.IncidentRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode incident snapshot: %w", err)
	}
	if record.ID == "" {
		return nil, errors.New("incident snapshot has no id")
	}
	s.resolveInto(&record)
	return &record, nil
}

func (s *Service) resolveInto(record *models.IncidentRecord) {
	resolution := geo.Resolve(record.LocationInput())
	s.stats.Record(resolution)

	coord := resolution.Coordinate
	record.Coordinate = &coord
	record.Confidence = resolution.Confidence
}

func incidentCandidate(record models.IncidentRecord) notify.Candidate {
	return notify.Candidate{
		Category: models.NotificationIncident,
		Priority: incidentPriority(record),
		Title:    incidentHeadline(record),
		Message:  record.Title,
		Target:   "/incidents/" + record.ID,
		Anchor:   record.Coordinate,
	}
}

func verificationCandidate(record models.IncidentRecord) notify.Candidate {
	return notify.Candidate{
		Category: models.NotificationVerification,
		Priority: models.PriorityLow,
		Title:    "Report verified by the community",
		Message:  record.Title,
		Target:   "/incidents/" + record.ID,
		Anchor:   record.Coordinate,
	}
}

func incidentPriority(record models.IncidentRecord) models.Priority {
	if record.IsUrgent || record.Severity == models.SeverityCritical {
		return models.PriorityUrgent
	}
	switch record.Severity {
	case models.SeverityHigh:
		return models.PriorityHigh
	case models.SeverityMedium:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func incidentHeadline(record models.IncidentRecord) string {
	switch record.Category {
	case models.CategoryCrime:
		return "Crime reported nearby"
	case models.CategorySuspiciousActivity:
		return "Suspicious activity reported"
	case models.CategoryGangActivity:
		return "Gang activity reported"
	case models.CategoryFire:
		return "Fire reported nearby"
	case models.CategoryAccident:
		return "Accident reported nearby"
	case models.CategoryMissingPerson:
		return "Missing person report"
	case models.CategoryVandalism:
		return "Vandalism reported"
	default:
		return "New community report"
	}
}
