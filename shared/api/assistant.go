package api

import (
	"time"

	"github.com/parley-dev/parley/shared/domain"
)

type CreateAssistantRequest struct {
	Name         string          `json:"name" validate:"required,max=256"`
	Description  string          `json:"description" validate:"max=512"`
	Instructions string          `json:"instructions" validate:"max=256000"`
	Model        string          `json:"model"`
	Tools        *domain.ToolSet `json:"tools,omitempty"`
	FileIds      []string        `json:"file_ids,omitempty"`
}

type UpdateAssistantRequest struct {
	Name         *string         `json:"name,omitempty" validate:"omitempty,max=256"`
	Description  *string         `json:"description,omitempty" validate:"omitempty,max=512"`
	Instructions *string         `json:"instructions,omitempty"`
	Model        *string         `json:"model,omitempty"`
	Tools        *domain.ToolSet `json:"tools,omitempty"`
	FileIds      []string        `json:"file_ids,omitempty"`
}

type AttachFilesRequest struct {
	FileIds []string `json:"file_ids" validate:"required,min=1"`
}

type AssistantResponse struct {
	Id           int64          `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Instructions string         `json:"instructions"`
	Model        string         `json:"model"`
	Tools        domain.ToolSet `json:"tools"`
	FileIds      []string       `json:"file_ids"`
	ExternalId   string         `json:"external_id"`
	ThreadId     string         `json:"thread_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func NewAssistantResponse(a domain.Assistant) AssistantResponse {
	fileIds := a.FileIds
	if fileIds == nil {
		fileIds = []string{}
	}
	return AssistantResponse{
		Id:           a.Id,
		Name:         a.Name,
		Description:  a.Description,
		Instructions: a.Instructions,
		Model:        a.Model,
		Tools:        a.Tools,
		FileIds:      fileIds,
		ExternalId:   a.ExternalHandle,
		ThreadId:     a.ThreadHandle,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

type ToolResponse struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// false: kept as intent, the hosted service has no such tool
	Declared bool `json:"declared"`
}

type ToolsResponse struct {
	Tools []ToolResponse `json:"tools"`
}

func NewToolsResponse(tools []domain.ToolInfo) ToolsResponse {
	resp := ToolsResponse{Tools: make([]ToolResponse, len(tools))}
	for i, t := range tools {
		resp.Tools[i] = ToolResponse{Key: t.Key, Name: t.Name, Description: t.Description, Declared: t.Declared}
	}
	return resp
}

type ModelsResponse struct {
	Models  []string `json:"models"`
	Default string   `json:"default"`
}
