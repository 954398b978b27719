// Package store holds the client-side reactive set of incident records. It is
// the one piece of state shared between the optimistic update manager and the
// remote-event handlers; all writes are whole-record replacements so watchers
// never observe a partially mutated record.
package store

import (
	"sort"
	"sync"

	"github.com/lamont-llp/safeguard-eldos-sub000/internal/models"
)

// Watcher receives an immutable snapshot of the record set after each change.
type Watcher func(records []models.IncidentRecord)

// RecordStore is an in-memory, observable incident record set.
type RecordStore struct {
	mu       sync.RWMutex
	records  map[string]models.IncidentRecord
	watchers map[int]Watcher
	nextID   int
}

// NewRecordStore constructs an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records:  make(map[string]models.IncidentRecord),
		watchers: make(map[int]Watcher),
	}
}

// Get returns a copy of the record with the supplied ID.
func (s *RecordStore) Get(id string) (models.IncidentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return models.IncidentRecord{}, false
	}
	return record.Clone(), true
}

// Put inserts or replaces the record wholesale and notifies watchers.
func (s *RecordStore) Put(record models.IncidentRecord) {
	if record.ID == "" {
		return
	}

	s.mu.Lock()
	s.records[record.ID] = record.Clone()
	snapshot, watchers := s.snapshotLocked()
	s.mu.Unlock()

	notify(watchers, snapshot)
}

// Replace removes the record stored under oldID and inserts the replacement
// in a single watcher notification. Used to swap a temporary optimistic
// record for its server-assigned canonical form.
func (s *RecordStore) Replace(oldID string, record models.IncidentRecord) {
	if record.ID == "" {
		return
	}

	s.mu.Lock()
	delete(s.records, oldID)
	s.records[record.ID] = record.Clone()
	snapshot, watchers := s.snapshotLocked()
	s.mu.Unlock()

	notify(watchers, snapshot)
}

// Remove deletes the record if present and notifies watchers.
func (s *RecordStore) Remove(id string) {
	s.mu.Lock()
	if _, ok := s.records[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.records, id)
	snapshot, watchers := s.snapshotLocked()
	s.mu.Unlock()

	notify(watchers, snapshot)
}

// List returns all records ordered most recent first.
func (s *RecordStore) List() []models.IncidentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, _ := s.snapshotLocked()
	return snapshot
}

// Len returns the number of records held.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// Watch registers a watcher and returns its disposal hook. The watcher is
// invoked synchronously after every mutation; cancelling is safe to call more
// than once.
func (s *RecordStore) Watch(watcher Watcher) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = watcher
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *RecordStore) snapshotLocked() ([]models.IncidentRecord, []Watcher) {
	snapshot := make([]models.IncidentRecord, 0, len(s.records))
	for _, record := range s.records {
		snapshot = append(snapshot, record.Clone())
	}
	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].CreatedAt.Equal(snapshot[j].CreatedAt) {
			return snapshot[i].ID > snapshot[j].ID
		}
		return snapshot[i].CreatedAt.After(snapshot[j].CreatedAt)
	})

	watchers := make([]Watcher, 0, len(s.watchers))
	for _, watcher := range s.watchers {
		watchers = append(watchers, watcher)
	}
	return snapshot, watchers
}

func notify(watchers []Watcher, snapshot []models.IncidentRecord) {
	for _, watcher := range watchers {
		watcher(snapshot)
	}
}
