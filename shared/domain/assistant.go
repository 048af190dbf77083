package domain

import (
	"slices"
	"time"
)

type ToolSet struct {
	CodeInterpreter bool `json:"code_interpreter"`
	FileSearch      bool `json:"file_search"`
	WebSearch       bool `json:"web_search"`
	ComputerUse     bool `json:"computer_use"`
}

func DefaultTools() ToolSet {
	return ToolSet{CodeInterpreter: true}
}

// ToolInfo describes a tool an assistant can enable. Only declared tools reach
// the hosted service, the others are stored as intent.
type ToolInfo struct {
	Key         string
	Name        string
	Description string
	Declared    bool
}

var toolCatalogue = []ToolInfo{
	{Key: "code_interpreter", Name: "Code Interpreter", Description: "Execute Python code and analyze data", Declared: true},
	{Key: "file_search", Name: "File Search", Description: "Search through uploaded documents", Declared: true},
	{Key: "web_search", Name: "Web Search", Description: "Search the web for current information"},
	{Key: "computer_use", Name: "Computer Use", Description: "Interact with web browsers and applications"},
}

// ToolCatalogue lists the tools of ToolSet in a stable order.
func ToolCatalogue() []ToolInfo {
	return slices.Clone(toolCatalogue)
}

// Enabled reports whether the tool with the given catalogue key is on.
func (t ToolSet) Enabled(key string) bool {
	switch key {
	case "code_interpreter":
		return t.CodeInterpreter
	case "file_search":
		return t.FileSearch
	case "web_search":
		return t.WebSearch
	case "computer_use":
		return t.ComputerUse
	}
	return false
}

type Assistant struct {
	Id             AssistantId
	ExternalHandle string
	OwnerId        UserId
	Name           string
	Description    string
	Instructions   string
	Model          string
	Tools          ToolSet
	// FileIds is the local intent, DeclaredFileIds is what the hosted service last accepted
	FileIds         []FileId
	DeclaredFileIds []FileId
	ThreadHandle    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type AssistantCreationData struct {
	Owner        UserId
	Name         string
	Description  string
	Instructions string
	Model        string
	Tools        *ToolSet
	FileIds      []FileId
}

// AssistantUpdateData is a partial update, nil fields are left untouched.
// FileIds are merged into the existing set.
type AssistantUpdateData struct {
	Owner        UserId
	Id           AssistantId
	Name         *string
	Description  *string
	Instructions *string
	Model        *string
	Tools        *ToolSet
	FileIds      []FileId
}
