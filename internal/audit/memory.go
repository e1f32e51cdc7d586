package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/STRATINT/eventcatalog/internal/models"
)

// MemoryStore is an in-process Store used by tests and the rules-only mode.
type MemoryStore struct {
	mu     sync.Mutex
	logs   map[int64]models.EnrichmentLog
	nextID int64
	now    func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[int64]models.EnrichmentLog), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, log *models.EnrichmentLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	log.ID = s.nextID
	log.CreatedAt = s.now()
	log.UpdatedAt = log.CreatedAt
	s.logs[log.ID] = *log
	return nil
}

func (s *MemoryStore) Finish(_ context.Context, id int64, outcome models.LogOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[id]
	if !ok {
		return ErrLogNotFound
	}
	if log.Status.Terminal() {
		return ErrLogFinalized
	}
	log.Status = outcome.Status
	log.Response = outcome.Response
	log.TokensPrompt = outcome.TokensPrompt
	log.TokensCompletion = outcome.TokensCompletion
	log.DurationMs = outcome.DurationMs
	log.Error = outcome.Error
	log.UpdatedAt = s.now()
	s.logs[id] = log
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int64) (*models.EnrichmentLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[id]
	if !ok {
		return nil, nil
	}
	return &log, nil
}

func (s *MemoryStore) ListByEvent(_ context.Context, eventID int64, query ListQuery) ([]models.EnrichmentLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.EnrichmentLog
	for _, log := range s.logs {
		if log.EventID != eventID {
			continue
		}
		if query.Status != "" && log.Status != query.Status {
			continue
		}
		out = append(out, log)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}
