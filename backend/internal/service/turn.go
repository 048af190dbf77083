package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/parley-dev/parley/backend/internal/inference"
	"github.com/parley-dev/parley/shared/config"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	"github.com/parley-dev/parley/shared/logger"
	"github.com/parley-dev/parley/shared/middleware/metrics"
)

const (
	transportPoll   = "poll"
	transportStream = "stream"

	// produced messages per run, a single reply rarely spans more than one
	replyMessageLimit = 20
)

// TurnService is what the handlers drive turns through.
type TurnService interface {
	Send(ctx context.Context, req domain.TurnRequest) (domain.TurnResult, error)
	Stream(ctx context.Context, req domain.TurnRequest, emit func(domain.ContentBlock) error) (domain.TurnResult, error)
}

type TurnStorage interface {
	FileResolver
	Conversation(ctx context.Context, owner domain.UserId, id domain.ConversationId) (domain.Conversation, error)
	Assistant(ctx context.Context, owner domain.UserId, id domain.AssistantId) (domain.Assistant, error)
	RecentMessages(ctx context.Context, conversation domain.ConversationId, limit int) ([]domain.Message, error)
	SetConversationThread(ctx context.Context, id domain.ConversationId, handle string) error
	AppendMessage(ctx context.Context, msg domain.Message) (domain.MessageId, error)
	CompleteTurn(ctx context.Context, prevHandle string, msg domain.Message) (domain.MessageId, error)
}

type TurnClient interface {
	runClient
	CreateThread(ctx context.Context, seed []inference.NewMessage) (inference.Thread, error)
	CreateMessage(ctx context.Context, threadID string, msg inference.NewMessage) (inference.Message, error)
	ListMessages(ctx context.Context, threadID, runID string, limit int) ([]inference.Message, error)
	ListRunSteps(ctx context.Context, threadID, runID string) ([]inference.RunStep, error)
}

// TurnDriver runs one conversational turn at a time per conversation. A turn
// reconciles the assistant's declared files, makes sure the conversation has
// an external thread, posts the user message and waits for the run through a
// turnWaiter. The reply is stored with the run id as the new continuation
// handle; a concurrent turn that moved the handle first makes this one fail
// with a conflict.
type TurnDriver struct {
	storage    TurnStorage
	client     TurnClient
	reconciler *Reconciler
	reaper     *Reaper
	cfg        config.Turn
	locks      *KeyedMutex[domain.ConversationId]
}

func NewTurnDriver(storage TurnStorage, client TurnClient, reconciler *Reconciler, reaper *Reaper, cfg config.Turn) *TurnDriver {
	return &TurnDriver{
		storage:    storage,
		client:     client,
		reconciler: reconciler,
		reaper:     reaper,
		cfg:        cfg,
		locks:      NewKeyedMutex[domain.ConversationId](),
	}
}

// Send drives a turn by polling and returns the finished reply.
func (d *TurnDriver) Send(ctx context.Context, req domain.TurnRequest) (domain.TurnResult, error) {
	waiter := &pollWaiter{client: d.client, interval: d.cfg.PollInterval, budget: d.cfg.PollBudget}
	return d.run(ctx, req, transportPoll, waiter, nil)
}

// Stream drives a turn over the event stream, handing every block to emit as
// it arrives. Generated images are only reported in the result.
func (d *TurnDriver) Stream(ctx context.Context, req domain.TurnRequest, emit func(domain.ContentBlock) error) (domain.TurnResult, error) {
	translator := newStreamTranslator()
	waiter := &streamWaiter{client: d.client, budget: d.cfg.PollBudget, translator: translator, emit: emit}
	return d.run(ctx, req, transportStream, waiter, translator)
}

// run holds the conversation lock for the whole turn. live carries what the
// stream already produced, nil when polling.
func (d *TurnDriver) run(ctx context.Context, req domain.TurnRequest, transport string, waiter turnWaiter, live *streamTranslator) (domain.TurnResult, error) {
	unlock, ok := d.locks.TryLock(req.ConversationId)
	if !ok {
		return domain.TurnResult{}, &internal_errors.ErrorWithStatusCode{
			Message:    "A turn is already in progress for this conversation",
			StatusCode: http.StatusConflict,
			Kind:       internal_errors.KindTurnInProgress,
		}
	}
	defer unlock()

	conv, err := d.storage.Conversation(ctx, req.User, req.ConversationId)
	if err != nil {
		return domain.TurnResult{}, err
	}
	if conv.MessageCount+2 > d.cfg.MessageCeiling {
		return domain.TurnResult{}, &internal_errors.ErrorWithStatusCode{
			Message:    fmt.Sprintf("Conversation reached the limit of %d messages, start a new one", d.cfg.MessageCeiling),
			StatusCode: http.StatusConflict,
			Kind:       internal_errors.KindCeilingReached,
		}
	}

	files, err := ResolveFiles(ctx, d.storage, req.User, req.FileIds)
	if err != nil {
		return domain.TurnResult{}, err
	}
	assistant, err := d.storage.Assistant(ctx, req.User, conv.AssistantId)
	if err != nil {
		return domain.TurnResult{}, err
	}
	if _, err := d.reconciler.Reconcile(ctx, assistant); err != nil {
		return domain.TurnResult{}, err
	}

	threadID, err := d.ensureThread(ctx, conv)
	if err != nil {
		return domain.TurnResult{}, err
	}
	if _, err := d.client.CreateMessage(ctx, threadID, userMessage(req.Text, files)); err != nil {
		return domain.TurnResult{}, externalError("message submission", err)
	}
	if _, err := d.storage.AppendMessage(ctx, domain.Message{
		ConversationId: conv.Id,
		Role:           domain.RoleUser,
		Content:        req.Text,
		Attachments:    userAttachments(files),
	}); err != nil {
		return domain.TurnResult{}, err
	}

	params := inference.RunParams{AssistantID: assistant.ExternalHandle}
	// traceability only, the thread itself carries the context
	if conv.LastTurnHandle != "" {
		params.Metadata = map[string]string{"continues": conv.LastTurnHandle}
	}

	start := time.Now()
	outcome, err := waiter.wait(ctx, threadID, params)
	if err != nil {
		metrics.ObserveTurn(transport, "error", time.Since(start))
		return domain.TurnResult{}, externalError("turn", err)
	}
	metrics.ObserveTurn(transport, string(outcome.Status), time.Since(start))
	if outcome.Status != domain.TurnCompleted {
		logger.Log.Warn("turn did not complete", "conversation_id", conv.Id, "run", outcome.Handle, "status", outcome.Status, "reason", outcome.LastError)
		return domain.TurnResult{}, turnFailed(outcome)
	}

	result, err := d.collect(ctx, threadID, outcome, live)
	if err != nil {
		return domain.TurnResult{}, err
	}
	id, err := d.storage.CompleteTurn(ctx, conv.LastTurnHandle, domain.Message{
		ConversationId: conv.Id,
		Role:           domain.RoleAssistant,
		Content:        result.Text,
		Attachments:    result.Attachments,
		ToolCalls:      result.ToolCalls,
		TokensUsed:     result.TokensUsed,
		TurnHandle:     result.TurnHandle,
	})
	if err != nil {
		return domain.TurnResult{}, err
	}
	result.MessageId = id
	return result, nil
}

// ensureThread returns the conversation's thread, creating it on first use.
// A new thread is seeded with the recent ledger so a reset conversation keeps
// some context.
func (d *TurnDriver) ensureThread(ctx context.Context, conv domain.Conversation) (string, error) {
	if conv.ThreadHandle != "" {
		return conv.ThreadHandle, nil
	}
	recent, err := d.storage.RecentMessages(ctx, conv.Id, d.cfg.HistoryWindow)
	if err != nil {
		return "", err
	}
	thread, err := d.client.CreateThread(ctx, historySeed(recent))
	if err != nil {
		return "", externalError("thread creation", err)
	}
	if err := d.storage.SetConversationThread(ctx, conv.Id, thread.ID); err != nil {
		d.reaper.Release(ctx, domain.HandleThread, thread.ID)
		return "", err
	}
	return thread.ID, nil
}

func historySeed(msgs []domain.Message) []inference.NewMessage {
	seed := make([]inference.NewMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		seed = append(seed, inference.NewMessage{Role: string(m.Role), Content: m.Content})
	}
	return seed
}

// collect assembles the reply of a completed turn. Polled turns read text from
// the produced messages, streamed turns already have it and only scan for
// images, which is advisory.
func (d *TurnDriver) collect(ctx context.Context, threadID string, outcome domain.TurnOutcome, live *streamTranslator) (domain.TurnResult, error) {
	result := domain.TurnResult{TurnHandle: outcome.Handle, TokensUsed: outcome.TokensUsed}

	msgs, err := d.client.ListMessages(ctx, threadID, outcome.Handle, replyMessageLimit)
	if live != nil {
		result.Text = live.text.String()
		result.ToolCalls = outcome.ToolCalls
		if result.ToolCalls == nil {
			result.ToolCalls = []domain.ToolCallRecord{}
		}
		var scanned []domain.MessageAttachment
		if err != nil {
			logger.Log.Warn("image scan failed", "run", outcome.Handle, "error", err)
		} else {
			_, scanned = replyFromMessages(msgs)
		}
		result.Attachments = mergeImages(live.images, scanned)
		return result, nil
	}

	if err != nil {
		return domain.TurnResult{}, externalError("reply retrieval", err)
	}
	result.Text, result.Attachments = replyFromMessages(msgs)

	steps, err := d.client.ListRunSteps(ctx, threadID, outcome.Handle)
	if err != nil {
		logger.Log.Warn("failed to list run steps", "run", outcome.Handle, "error", err)
		result.ToolCalls = []domain.ToolCallRecord{}
	} else {
		result.ToolCalls = toolCallsFromSteps(steps)
	}
	return result, nil
}

func turnFailed(outcome domain.TurnOutcome) error {
	msg := fmt.Sprintf("Turn ended with status %s", outcome.Status)
	if outcome.LastError != "" {
		msg += ": " + outcome.LastError
	}
	return &internal_errors.ErrorWithStatusCode{
		Message:    msg,
		StatusCode: http.StatusBadGateway,
		Kind:       internal_errors.KindTurnFailed,
	}
}
