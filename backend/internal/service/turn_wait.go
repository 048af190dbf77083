package service

import (
	"context"
	"errors"
	"time"

	"github.com/parley-dev/parley/backend/internal/inference"
	"github.com/parley-dev/parley/shared/domain"
	"github.com/parley-dev/parley/shared/logger"
)

const (
	cancelTimeout  = 10 * time.Second
	budgetExceeded = "turn did not finish within the wait budget"
)

// turnWaiter starts a run and drives it until it stops advancing. Both
// transports report through the same outcome type.
type turnWaiter interface {
	wait(ctx context.Context, threadID string, params inference.RunParams) (domain.TurnOutcome, error)
}

// runClient is the part of the hosted API the waiters need.
type runClient interface {
	CreateRun(ctx context.Context, threadID string, params inference.RunParams) (inference.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (inference.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	StreamRun(ctx context.Context, threadID string, params inference.RunParams, handle func(inference.StreamEvent) error) (inference.Run, error)
}

// pollWaiter creates the run, then reads it every interval until it stops or
// budget runs out. An expired budget cancels the run.
type pollWaiter struct {
	client   runClient
	interval time.Duration
	budget   time.Duration
}

func (w *pollWaiter) wait(ctx context.Context, threadID string, params inference.RunParams) (domain.TurnOutcome, error) {
	run, err := w.client.CreateRun(ctx, threadID, params)
	if err != nil {
		return domain.TurnOutcome{}, err
	}
	if stopped(run) {
		return settle(ctx, w.client, run), nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(w.budget)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			// abandoned, the run keeps going externally and its result is discarded
			return domain.TurnOutcome{}, ctx.Err()
		case <-deadline.C:
			cancelRun(ctx, w.client, threadID, run.ID)
			return domain.TurnOutcome{Handle: run.ID, Status: domain.TurnFailed, LastError: budgetExceeded}, nil
		case <-ticker.C:
			run, err = w.client.GetRun(ctx, threadID, run.ID)
			if err != nil {
				return domain.TurnOutcome{}, err
			}
			if stopped(run) {
				return settle(ctx, w.client, run), nil
			}
		}
	}
}

// streamWaiter forwards translated blocks to emit while the run streams. An
// emit error means the client went away, the external run is then cancelled.
type streamWaiter struct {
	client     runClient
	budget     time.Duration
	translator *streamTranslator
	emit       func(domain.ContentBlock) error
}

func (w *streamWaiter) wait(ctx context.Context, threadID string, params inference.RunParams) (domain.TurnOutcome, error) {
	streamCtx, cancel := context.WithTimeout(ctx, w.budget)
	defer cancel()

	var runID string
	run, err := w.client.StreamRun(streamCtx, threadID, params, func(ev inference.StreamEvent) error {
		if ev.Kind == inference.EventRunUpdate && ev.Run.ID != "" {
			runID = ev.Run.ID
		}
		for _, block := range w.translator.translate(ev) {
			if err := w.emit(block); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if runID != "" {
			cancelRun(ctx, w.client, threadID, runID)
		}
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return domain.TurnOutcome{Handle: runID, Status: domain.TurnFailed, LastError: budgetExceeded}, nil
		}
		return domain.TurnOutcome{}, err
	}

	outcome := settle(ctx, w.client, run)
	outcome.ToolCalls = w.translator.calls
	return outcome, nil
}

func stopped(run inference.Run) bool {
	status := domain.TurnStatus(run.Status)
	return status.Terminal() || status == domain.TurnRequiresAction
}

// settle maps a stopped run to an outcome. No function tools are declared,
// so a run asking for tool outputs is cancelled and reported as failed.
func settle(ctx context.Context, client runClient, run inference.Run) domain.TurnOutcome {
	outcome := domain.TurnOutcome{Handle: run.ID, Status: domain.TurnStatus(run.Status)}
	if run.Usage != nil {
		outcome.TokensUsed = run.Usage.TotalTokens
	}
	switch {
	case run.LastError != nil:
		outcome.LastError = run.LastError.Message
	case run.IncompleteDetails != nil:
		outcome.LastError = run.IncompleteDetails.Reason
	}

	switch outcome.Status {
	case domain.TurnRequiresAction:
		cancelRun(ctx, client, run.ThreadID, run.ID)
		outcome.Status = domain.TurnFailed
		outcome.LastError = "run requested tool outputs that are not supported"
	case domain.TurnIncomplete:
		outcome.Status = domain.TurnFailed
	}
	return outcome
}

func cancelRun(ctx context.Context, client runClient, threadID, runID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := client.CancelRun(cctx, threadID, runID); err != nil && !inference.IsNotFound(err) {
		logger.Log.Warn("failed to cancel run", "thread", threadID, "run", runID, "error", err)
	}
}
