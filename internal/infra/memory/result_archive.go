package memory

import (
	"context"
	"sync"

	"quiz-arena-service/internal/domain"
)

// ResultArchive keeps final results in process; used when Postgres is not configured.
type ResultArchive struct {
	mu      sync.RWMutex
	results map[string]domain.FinalResults
}

func NewResultArchive() *ResultArchive {
	return &ResultArchive{results: make(map[string]domain.FinalResults)}
}

func (a *ResultArchive) SaveResults(_ context.Context, results domain.FinalResults) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[results.SessionID] = results
	return nil
}

// Results returns the archived outcome of a session.
func (a *ResultArchive) Results(sessionID string) (domain.FinalResults, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	results, ok := a.results[sessionID]
	return results, ok
}
