package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Conversation struct {
	Id             ConversationId
	OwnerId        UserId
	AssistantId    AssistantId
	Title          string
	ThreadHandle   string
	LastTurnHandle string
	MessageCount   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ConversationCreationData struct {
	Owner       UserId
	AssistantId AssistantId
	Title       string
}

type Message struct {
	Id             MessageId           `json:"id"`
	ConversationId ConversationId      `json:"conversation_id"`
	Role           Role                `json:"role"`
	Content        string              `json:"content"`
	Attachments    []MessageAttachment `json:"attachments"`
	ToolCalls      []ToolCallRecord    `json:"tool_calls"`
	TokensUsed     int                 `json:"tokens_used,omitempty"`
	TurnHandle     string              `json:"turn_handle,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

type MessageAttachment struct {
	FileId FileId         `json:"file_id"`
	Kind   AttachmentKind `json:"kind"`
	Name   string         `json:"name,omitempty"`
	URL    string         `json:"url,omitempty"`
}

type ToolCallRecord struct {
	Id     string `json:"id"`
	Name   string `json:"name"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
}

type ConversationStats struct {
	Assistants    int
	Conversations int
	Messages      int
	StorageBytes  int64
}

// AssistantActivity is one dashboard row.
type AssistantActivity struct {
	Id            AssistantId
	Name          string
	Model         string
	Conversations int
	LastActive    *time.Time
}
