package storage

import (
	"context"
	"log/slog"
	"sync"
)

// Simulator stands in for the report bucket in local development: reports are
// kept in memory and logged instead of uploaded.
type Simulator struct {
	log *slog.Logger

	mu      sync.Mutex
	reports map[string][]byte
}

func NewSimulator(log *slog.Logger) *Simulator {
	return &Simulator{log: log, reports: make(map[string][]byte)}
}

func (s *Simulator) PutSyncReport(_ context.Context, runID string, body []byte) error {
	s.mu.Lock()
	s.reports[runID] = body
	s.mu.Unlock()

	s.log.Debug("sync_report_stored_locally", "run_id", runID, "bytes", len(body))
	return nil
}

func (s *Simulator) Report(runID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.reports[runID]
	return b, ok
}
