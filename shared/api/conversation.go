package api

import (
	"time"

	"github.com/parley-dev/parley/shared/domain"
)

type CreateConversationRequest struct {
	AssistantId int64  `json:"assistant_id" validate:"required"`
	Title       string `json:"title" validate:"max=256"`
}

type ConversationResponse struct {
	Id           int64     `json:"id"`
	AssistantId  int64     `json:"assistant_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewConversationResponse(c domain.Conversation) ConversationResponse {
	return ConversationResponse{
		Id:           c.Id,
		AssistantId:  c.AssistantId,
		Title:        c.Title,
		MessageCount: c.MessageCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

type SendMessageRequest struct {
	Content string   `json:"content" validate:"required_without=FileIds,max=32768"`
	FileIds []string `json:"file_ids,omitempty"`
}

// MessageView is a ledger message as shown to clients, HTML is set for assistant replies.
type MessageView struct {
	domain.Message
	HTML string `json:"html,omitempty"`
}

type TurnResponse struct {
	MessageId   int64                      `json:"message_id"`
	Content     string                     `json:"content"`
	HTML        string                     `json:"html"`
	ToolCalls   []domain.ToolCallRecord    `json:"tool_calls"`
	Attachments []domain.MessageAttachment `json:"attachments"`
	TurnHandle  string                     `json:"turn_handle"`
	TokensUsed  int                        `json:"tokens_used"`
}

type ThreadResponse struct {
	ThreadId string `json:"thread_id"`
}
