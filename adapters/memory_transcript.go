package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/satriahrh/suara/domain"
	"github.com/satriahrh/suara/domain/entities"
)

// MemoryTranscriptRepository keeps finished sessions in memory, bounded to the most recent capacity records
type MemoryTranscriptRepository struct {
	mu       sync.RWMutex
	records  map[string]entities.SessionRecord
	order    []string // ids, oldest first
	capacity int
}

// NewMemoryTranscriptRepository creates a repository. capacity <= 0 means unbounded.
func NewMemoryTranscriptRepository(capacity int) *MemoryTranscriptRepository {
	return &MemoryTranscriptRepository{
		records:  make(map[string]entities.SessionRecord),
		capacity: capacity,
	}
}

// Save implements TranscriptRepository interface. Saving an existing id replaces it.
func (m *MemoryTranscriptRepository) Save(ctx context.Context, record entities.SessionRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.StartedAt.IsZero() {
		return errors.New("record start time cannot be zero")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.ID]; !exists {
		m.order = append(m.order, record.ID)
	}
	m.records[record.ID] = record

	for m.capacity > 0 && len(m.order) > m.capacity {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.records, oldest)
	}
	return nil
}

// Get implements TranscriptRepository interface
func (m *MemoryTranscriptRepository) Get(ctx context.Context, id string) (*entities.SessionRecord, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.records[id]
	if !exists {
		return nil, domain.ErrNoSession
	}
	return &record, nil
}

// List implements TranscriptRepository interface
func (m *MemoryTranscriptRepository) List(ctx context.Context, limit int) ([]entities.SessionRecord, error) {
	m.mu.RLock()
	result := make([]entities.SessionRecord, 0, len(m.records))
	for _, record := range m.records {
		result = append(result, record)
	}
	m.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
