package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/nvandessel/forensic-council/internal/models"
)

// InMemoryReportStore implements ReportStore for testing and ephemeral runs.
type InMemoryReportStore struct {
	mu      sync.RWMutex
	current *models.Report
	history []models.Report // newest first
}

// NewInMemoryReportStore creates a new in-memory store.
func NewInMemoryReportStore() *InMemoryReportStore {
	return &InMemoryReportStore{}
}

// Save makes r the current report.
func (s *InMemoryReportStore) Save(ctx context.Context, r models.Report) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := r.Clone()
	s.current = &cp
	return nil
}

// Current returns the current report, or nil if none is set.
func (s *InMemoryReportStore) Current(ctx context.Context) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil, nil
	}
	cp := s.current.Clone()
	return &cp, nil
}

// AppendToHistory puts r at the front of the history.
func (s *InMemoryReportStore) AppendToHistory(ctx context.Context, r models.Report) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(r.ID); i >= 0 {
		s.history = append(s.history[:i], s.history[i+1:]...)
	}
	s.history = append([]models.Report{r.Clone()}, s.history...)
	return nil
}

// DeleteFromHistory removes the report with id from the history.
func (s *InMemoryReportStore) DeleteFromHistory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.history = append(s.history[:i], s.history[i+1:]...)
	return nil
}

// ClearHistory removes every report from the history.
func (s *InMemoryReportStore) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
	return nil
}

// LoadHistory returns the history newest first.
func (s *InMemoryReportStore) LoadHistory(ctx context.Context) ([]models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Report, len(s.history))
	for i, r := range s.history {
		out[i] = r.Clone()
	}
	return out, nil
}

// GetReport returns the report with id.
func (s *InMemoryReportStore) GetReport(ctx context.Context, id string) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		cp := s.history[i].Clone()
		return &cp, nil
	}
	if s.current != nil && s.current.ID == id {
		cp := s.current.Clone()
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Close is a no-op for the in-memory store.
func (s *InMemoryReportStore) Close() error {
	return nil
}

// indexOf returns the history position of id, or -1. Callers hold s.mu.
func (s *InMemoryReportStore) indexOf(id string) int {
	for i, r := range s.history {
		if r.ID == id {
			return i
		}
	}
	return -1
}
