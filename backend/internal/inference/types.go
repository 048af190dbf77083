package inference

import "encoding/json"

type Tool struct {
	Type string `json:"type"`
}

type CodeInterpreterResources struct {
	// no omitempty, an empty list clears the declaration
	FileIDs []string `json:"file_ids"`
}

type ToolResources struct {
	CodeInterpreter *CodeInterpreterResources `json:"code_interpreter,omitempty"`
}

// CodeInterpreterDeclaration always yields a non-nil id list so it encodes as [] when empty.
func CodeInterpreterDeclaration(fileIDs []string) *ToolResources {
	ids := make([]string, 0, len(fileIDs))
	ids = append(ids, fileIDs...)
	return &ToolResources{CodeInterpreter: &CodeInterpreterResources{FileIDs: ids}}
}

type AssistantParams struct {
	Model         string            `json:"model,omitempty"`
	Name          string            `json:"name,omitempty"`
	Description   string            `json:"description"`
	Instructions  string            `json:"instructions"`
	Tools         []Tool            `json:"tools,omitempty"`
	ToolResources *ToolResources    `json:"tool_resources,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type Assistant struct {
	ID            string         `json:"id"`
	Model         string         `json:"model"`
	Name          string         `json:"name"`
	ToolResources *ToolResources `json:"tool_resources,omitempty"`
}

type Thread struct {
	ID string `json:"id"`
}

type ImageFile struct {
	FileID string `json:"file_id"`
}

// ContentPart is an element of a structured message body.
type ContentPart struct {
	Type      string     `json:"type"`
	Text      string     `json:"text,omitempty"`
	ImageFile *ImageFile `json:"image_file,omitempty"`
}

type MessageAttachment struct {
	FileID string `json:"file_id"`
	Tools  []Tool `json:"tools"`
}

// NewMessage is sent to a thread. Content is either a string or []ContentPart.
type NewMessage struct {
	Role        string              `json:"role"`
	Content     any                 `json:"content"`
	Attachments []MessageAttachment `json:"attachments,omitempty"`
}

type TextValue struct {
	Value string `json:"value"`
}

type MessageContent struct {
	Type      string     `json:"type"`
	Text      *TextValue `json:"text,omitempty"`
	ImageFile *ImageFile `json:"image_file,omitempty"`
}

type Message struct {
	ID       string           `json:"id"`
	ThreadID string           `json:"thread_id"`
	Role     string           `json:"role"`
	RunID    string           `json:"run_id"`
	Content  []MessageContent `json:"content"`
}

type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Run struct {
	ID                string    `json:"id"`
	ThreadID          string    `json:"thread_id"`
	AssistantID       string    `json:"assistant_id"`
	Status            string    `json:"status"`
	LastError         *RunError `json:"last_error,omitempty"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details,omitempty"`
	Usage *Usage `json:"usage,omitempty"`
}

type RunParams struct {
	AssistantID string            `json:"assistant_id"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
}

type CodeOutput struct {
	Type  string     `json:"type"`
	Logs  string     `json:"logs,omitempty"`
	Image *ImageFile `json:"image,omitempty"`
}

type CodeInterpreterCall struct {
	Input   string       `json:"input"`
	Outputs []CodeOutput `json:"outputs"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Output    string `json:"output"`
}

type ToolCall struct {
	Index           int                  `json:"index"`
	ID              string               `json:"id"`
	Type            string               `json:"type"`
	CodeInterpreter *CodeInterpreterCall `json:"code_interpreter,omitempty"`
	FileSearch      json.RawMessage      `json:"file_search,omitempty"`
	Function        *FunctionCall        `json:"function,omitempty"`
}

type StepDetails struct {
	Type      string     `json:"type"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type RunStep struct {
	ID          string      `json:"id"`
	RunID       string      `json:"run_id"`
	Type        string      `json:"type"`
	Status      string      `json:"status"`
	StepDetails StepDetails `json:"step_details"`
}

type File struct {
	ID       string `json:"id"`
	Bytes    int64  `json:"bytes"`
	Filename string `json:"filename"`
	Purpose  string `json:"purpose"`
}

type listEnvelope[T any] struct {
	Data    []T  `json:"data"`
	HasMore bool `json:"has_more"`
}
