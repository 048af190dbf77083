package domain

import "github.com/lib/pq"

type (
	Email    = string
	Password = string
	UserId   = int64

	AssistantId    = int64
	ConversationId = int64
	MessageId      = int64

	// FileId is the handle issued by the hosted inference service
	FileId  = string
	FileIds = pq.StringArray
)
