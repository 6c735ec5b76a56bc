package testutil

import (
	"context"
	"sync"

	"github.com/darmiel/satellite/internal/source"
)

var _ source.Source = (*StaticSource)(nil)

// StaticSource serves fixed records per dataset name. Datasets without records are unavailable.
type StaticSource struct {
	Records map[string][]map[string]any
	Errs    map[string]error
	Counts  map[string]int64
	PingErr error

	mu        sync.Mutex
	collected []string
}

func (s *StaticSource) Collect(_ context.Context, ds source.Dataset) ([]map[string]any, error) {
	s.mu.Lock()
	s.collected = append(s.collected, ds.Name)
	s.mu.Unlock()

	if err := s.Errs[ds.Name]; err != nil {
		return nil, err
	}
	recs, ok := s.Records[ds.Name]
	if !ok {
		return nil, source.ErrUnavailable
	}
	return recs, nil
}

func (s *StaticSource) Count(_ context.Context, query string) (int64, error) {
	n, ok := s.Counts[query]
	if !ok {
		return 0, source.ErrUnavailable
	}
	return n, nil
}

func (s *StaticSource) Ping(context.Context) error { return s.PingErr }
func (s *StaticSource) Close()                     {}

// Collected returns the dataset names in the order they were read.
func (s *StaticSource) Collected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.collected...)
}
