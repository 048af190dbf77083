package service

import (
	"context"
	"fmt"

	"github.com/parley-dev/parley/shared/domain"
	"github.com/parley-dev/parley/shared/logger"
	"golang.org/x/sync/errgroup"
)

const reaperParallelism = 4

type OrphanQueue interface {
	QueueOrphanedHandle(ctx context.Context, kind domain.HandleKind, handle string, cause error) error
}

type HandleDeleter interface {
	DeleteAssistant(ctx context.Context, id string) error
	DeleteThread(ctx context.Context, id string) error
	DeleteFile(ctx context.Context, id string) error
}

// Reaper deletes external resources after their local rows are gone. Failures
// never reach the caller, the handle is queued for the repair job instead.
type Reaper struct {
	queue  OrphanQueue
	client HandleDeleter
}

type ExternalHandle struct {
	Kind   domain.HandleKind
	Handle string
}

func NewReaper(queue OrphanQueue, client HandleDeleter) *Reaper {
	return &Reaper{queue: queue, client: client}
}

func (r *Reaper) Release(ctx context.Context, kind domain.HandleKind, handle string) {
	if handle == "" {
		return
	}
	err := deleteHandle(ctx, r.client, kind, handle)
	if err == nil {
		return
	}
	logger.Log.Warn("external delete failed, queued for repair", "kind", kind, "handle", handle, "error", err)
	// the request context may already be gone
	if qErr := r.queue.QueueOrphanedHandle(context.WithoutCancel(ctx), kind, handle, err); qErr != nil {
		logger.Log.Error("failed to queue orphaned handle", "kind", kind, "handle", handle, "error", qErr)
	}
}

// ReleaseAll releases handles with bounded parallelism.
func (r *Reaper) ReleaseAll(ctx context.Context, handles []ExternalHandle) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reaperParallelism)
	for _, h := range handles {
		g.Go(func() error {
			r.Release(gctx, h.Kind, h.Handle)
			return nil
		})
	}
	_ = g.Wait()
}

func deleteHandle(ctx context.Context, client HandleDeleter, kind domain.HandleKind, handle string) error {
	switch kind {
	case domain.HandleAssistant:
		return client.DeleteAssistant(ctx, handle)
	case domain.HandleThread:
		return client.DeleteThread(ctx, handle)
	case domain.HandleFile:
		return client.DeleteFile(ctx, handle)
	}
	return fmt.Errorf("unknown handle kind %q", kind)
}
