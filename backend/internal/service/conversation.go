package service

import (
	"context"

	"github.com/parley-dev/parley/shared/domain"
	"github.com/parley-dev/parley/shared/logger"
)

type ConversationService interface {
	Create(ctx context.Context, data domain.ConversationCreationData) (domain.Conversation, error)
	Get(ctx context.Context, owner domain.UserId, id domain.ConversationId) (domain.Conversation, error)
	List(ctx context.Context, owner domain.UserId) ([]domain.Conversation, error)
	ListByAssistant(ctx context.Context, owner domain.UserId, assistant domain.AssistantId) ([]domain.Conversation, error)
	Messages(ctx context.Context, owner domain.UserId, id domain.ConversationId) ([]domain.Message, error)
	Delete(ctx context.Context, owner domain.UserId, id domain.ConversationId) error
	ResetContext(ctx context.Context, owner domain.UserId, id domain.ConversationId) (domain.Conversation, error)
}

type ConversationStorage interface {
	SaveConversation(ctx context.Context, data domain.ConversationCreationData) (domain.Conversation, error)
	Conversation(ctx context.Context, owner domain.UserId, id domain.ConversationId) (domain.Conversation, error)
	ListConversations(ctx context.Context, owner domain.UserId) ([]domain.Conversation, error)
	AssistantConversations(ctx context.Context, owner domain.UserId, assistant domain.AssistantId) ([]domain.Conversation, error)
	Assistant(ctx context.Context, owner domain.UserId, id domain.AssistantId) (domain.Assistant, error)
	Messages(ctx context.Context, owner domain.UserId, conversation domain.ConversationId) ([]domain.Message, error)
	DeleteConversation(ctx context.Context, owner domain.UserId, id domain.ConversationId) error
	SetConversationThread(ctx context.Context, id domain.ConversationId, handle string) error
}

type Conversations struct {
	storage ConversationStorage
	reaper  *Reaper
}

func NewConversations(storage ConversationStorage, reaper *Reaper) *Conversations {
	return &Conversations{storage: storage, reaper: reaper}
}

// Create opens an empty conversation. The external thread is created by the
// first turn.
func (s *Conversations) Create(ctx context.Context, data domain.ConversationCreationData) (domain.Conversation, error) {
	if data.Title == "" {
		data.Title = "New conversation"
	}
	conv, err := s.storage.SaveConversation(ctx, data)
	if err != nil {
		return domain.Conversation{}, err
	}
	logger.Log.Info("conversation created", "conversation_id", conv.Id, "assistant_id", conv.AssistantId, "user_id", data.Owner)
	return conv, nil
}

func (s *Conversations) Get(ctx context.Context, owner domain.UserId, id domain.ConversationId) (domain.Conversation, error) {
	return s.storage.Conversation(ctx, owner, id)
}

func (s *Conversations) List(ctx context.Context, owner domain.UserId) ([]domain.Conversation, error) {
	return s.storage.ListConversations(ctx, owner)
}

// ListByAssistant fails with not found when the assistant is missing or
// foreign, an assistant without conversations yields an empty list.
func (s *Conversations) ListByAssistant(ctx context.Context, owner domain.UserId, assistant domain.AssistantId) ([]domain.Conversation, error) {
	if _, err := s.storage.Assistant(ctx, owner, assistant); err != nil {
		return nil, err
	}
	return s.storage.AssistantConversations(ctx, owner, assistant)
}

func (s *Conversations) Messages(ctx context.Context, owner domain.UserId, id domain.ConversationId) ([]domain.Message, error) {
	return s.storage.Messages(ctx, owner, id)
}

// Delete drops the ledger, then the external thread.
func (s *Conversations) Delete(ctx context.Context, owner domain.UserId, id domain.ConversationId) error {
	conv, err := s.storage.Conversation(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteConversation(ctx, owner, id); err != nil {
		return err
	}
	s.reaper.Release(ctx, domain.HandleThread, conv.ThreadHandle)
	return nil
}

// ResetContext forgets the external thread. The ledger stays, the next turn
// opens a fresh thread seeded from the recent history window.
func (s *Conversations) ResetContext(ctx context.Context, owner domain.UserId, id domain.ConversationId) (domain.Conversation, error) {
	conv, err := s.storage.Conversation(ctx, owner, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if conv.ThreadHandle == "" {
		return conv, nil
	}
	if err := s.storage.SetConversationThread(ctx, id, ""); err != nil {
		return domain.Conversation{}, err
	}
	s.reaper.Release(ctx, domain.HandleThread, conv.ThreadHandle)
	return s.storage.Conversation(ctx, owner, id)
}
