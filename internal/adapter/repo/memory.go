package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"thumbnailer/internal/domain"
)

// MemoryStore keeps requests in a mutex guarded map. Every value crossing the
// API boundary is a deep copy so callers cannot mutate stored records.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]domain.GenerationRequest
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]domain.GenerationRequest)}
}

func (s *MemoryStore) Create(_ context.Context, req *domain.GenerationRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is required", domain.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[req.ID]; exists {
		return fmt.Errorf("%w: request %s already exists", domain.ErrValidation, req.ID)
	}
	s.rows[req.ID] = req.Clone()
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*domain.GenerationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := row.Clone()
	return &out, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, update domain.RequestUpdate) (*domain.GenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	row = row.Clone()
	update.Apply(&row)
	if err := row.Validate(); err != nil {
		return nil, err
	}
	s.rows[id] = row
	out := row.Clone()
	return &out, nil
}

// ListByStatus returns matching requests oldest first. An empty status lists all.
func (s *MemoryStore) ListByStatus(_ context.Context, status domain.Status) ([]domain.GenerationRequest, error) {
	s.mu.RLock()
	out := make([]domain.GenerationRequest, 0, len(s.rows))
	for _, row := range s.rows {
		if status == "" || row.Status == status {
			out = append(out, row.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var _ domain.RequestStore = (*MemoryStore)(nil)
