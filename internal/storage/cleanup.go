package storage

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultCleanupInterval = 1 * time.Hour
	DefaultCleanupBatch    = 100
)

// CleanupService removes objects that have not been written for longer than
// the retention period.
type CleanupService struct {
	storage   *Service
	retention time.Duration
	interval  time.Duration
	batchSize int
}

func NewCleanupService(storage *Service, retention time.Duration) *CleanupService {
	interval := DefaultCleanupInterval
	if retention > 0 && retention < interval {
		interval = retention
	}
	return &CleanupService{
		storage:   storage,
		retention: retention,
		interval:  interval,
		batchSize: DefaultCleanupBatch,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	if s.retention <= 0 {
		slog.Info("object retention disabled", "component", "storage_cleanup")
		return
	}

	slog.Info("starting object cleanup service", "component", "storage_cleanup", "interval", s.interval, "retention", s.retention)

	s.runCleanup(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping object cleanup service", "component", "storage_cleanup")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *CleanupService) runCleanup(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-s.retention)
	objects, err := s.storage.listUpdatedBefore(ctx, cutoff, s.batchSize)
	if err != nil {
		slog.Error("error listing expired objects", "component", "storage_cleanup", "error", err)
		return 0
	}

	deleted := 0
	for _, obj := range objects {
		if err := s.storage.Remove(ctx, obj.Bucket, obj.Name); err != nil {
			slog.Warn("error deleting expired object", "component", "storage_cleanup", "error", err, "bucket", obj.Bucket, "name", obj.Name)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		slog.Info("deleted expired objects", "component", "storage_cleanup", "count", deleted)
	}
	return deleted
}
