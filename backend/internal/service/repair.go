package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/parley-dev/parley/shared/domain"
	"github.com/parley-dev/parley/shared/logger"
)

const repairBatchSize = 100

// Repairer converges the two sources of truth. It redeclares assistants whose
// last accepted declaration differs from local intent and retries deletion of
// external handles whose owners are already gone locally.
type Repairer struct {
	storage         RepairStorage
	reconciler      *Reconciler
	client          HandleDeleter
	mu              sync.Mutex
	lastRepairStats RepairStats
}

// RepairStats tracks metrics from the last repair run.
type RepairStats struct {
	RunAt              time.Time
	AssistantsChecked  int
	AssistantsRepaired int
	OrphansChecked     int
	OrphansReleased    int
	DurationMs         int64
	Errors             []string
}

type RepairStorage interface {
	AssistantsOutOfSync(ctx context.Context, limit int) ([]domain.Assistant, error)
	OrphanedHandles(ctx context.Context, limit int) ([]domain.OrphanedHandle, error)
	ResolveOrphanedHandle(ctx context.Context, id int64) error
	RecordOrphanAttempt(ctx context.Context, id int64, cause error) error
}

func NewRepairer(storage RepairStorage, reconciler *Reconciler, client HandleDeleter) *Repairer {
	return &Repairer{storage: storage, reconciler: reconciler, client: client}
}

// StartBackgroundRepair runs RunRepair every interval until ctx is done.
func (r *Repairer) StartBackgroundRepair(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	logger.Log.Info("started background repair", "component", "repair", "interval", interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.RunRepair(ctx); err != nil {
					logger.Log.Error("repair run failed", "component", "repair", "error", err)
					continue
				}
				stats := r.GetLastRepairStats()
				logger.Log.Info("repair completed",
					"component", "repair",
					"assistants_checked", stats.AssistantsChecked,
					"assistants_repaired", stats.AssistantsRepaired,
					"orphans_checked", stats.OrphansChecked,
					"orphans_released", stats.OrphansReleased,
					"duration_ms", stats.DurationMs,
					"errors", len(stats.Errors),
				)
			case <-ctx.Done():
				logger.Log.Info("repair shutting down", "component", "repair")
				return
			}
		}
	}()
}

// RunRepair executes one cycle. Per item failures are collected in the stats,
// only failing to list work aborts the run.
func (r *Repairer) RunRepair(ctx context.Context) error {
	start := time.Now()
	stats := RepairStats{RunAt: start, Errors: []string{}}

	assistants, err := r.storage.AssistantsOutOfSync(ctx, repairBatchSize)
	if err != nil {
		return err
	}
	stats.AssistantsChecked = len(assistants)
	for _, a := range assistants {
		if _, err := r.reconciler.Reconcile(ctx, a); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("assistant %d: %v", a.Id, err))
			continue
		}
		stats.AssistantsRepaired++
	}

	orphans, err := r.storage.OrphanedHandles(ctx, repairBatchSize)
	if err != nil {
		return err
	}
	stats.OrphansChecked = len(orphans)
	for _, o := range orphans {
		if err := deleteHandle(ctx, r.client, o.Kind, o.Handle); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s %s: %v", o.Kind, o.Handle, err))
			if recErr := r.storage.RecordOrphanAttempt(ctx, o.Id, err); recErr != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("%s %s: %v", o.Kind, o.Handle, recErr))
			}
			continue
		}
		if err := r.storage.ResolveOrphanedHandle(ctx, o.Id); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s %s: %v", o.Kind, o.Handle, err))
			continue
		}
		stats.OrphansReleased++
	}

	stats.DurationMs = time.Since(start).Milliseconds()
	r.mu.Lock()
	r.lastRepairStats = stats
	r.mu.Unlock()
	return nil
}

// GetLastRepairStats returns statistics from the last repair run.
func (r *Repairer) GetLastRepairStats() RepairStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRepairStats
}
