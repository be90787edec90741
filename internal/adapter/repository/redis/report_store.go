package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iho/reconledger/internal/domain"
	"github.com/iho/reconledger/internal/usecase"
)

const (
	reportKeyPrefix = "run:"
	latestReportKey = "run:latest"
)

// ReportStore implements usecase.ReportStore on top of the Redis cache. Reports are JSON
// documents; the latest run is kept under a second key with the same TTL.
type ReportStore struct {
	cache *Cache
}

// NewReportStore creates a new ReportStore.
func NewReportStore(cache *Cache) *ReportStore {
	return &ReportStore{cache: cache}
}

// Save stores the report under its run id and as the latest run.
func (s *ReportStore) Save(ctx context.Context, report *usecase.RunReport, ttl time.Duration) error {
	if report.RunID == "" {
		return errors.New("report has no run id")
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	return s.cache.SetMany(ctx, map[string][]byte{
		reportKeyPrefix + report.RunID: data,
		latestReportKey:                data,
	}, ttl)
}

// Get returns the report of one run.
func (s *ReportStore) Get(ctx context.Context, runID string) (*usecase.RunReport, error) {
	return s.load(ctx, reportKeyPrefix+runID)
}

// Latest returns the report of the most recent run.
func (s *ReportStore) Latest(ctx context.Context) (*usecase.RunReport, error) {
	return s.load(ctx, latestReportKey)
}

func (s *ReportStore) load(ctx context.Context, key string) (*usecase.RunReport, error) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, domain.ErrReportNotFound
		}
		return nil, err
	}

	var report usecase.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", key, err)
	}

	return &report, nil
}
