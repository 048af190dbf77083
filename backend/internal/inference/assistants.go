package inference

import (
	"context"
	"net/http"
	"net/url"
)

func (c *Client) CreateAssistant(ctx context.Context, params AssistantParams) (Assistant, error) {
	var out Assistant
	err := c.doJSON(ctx, "create_assistant", http.MethodPost, "/assistants", params, &out)
	return out, err
}

// UpdateAssistant pushes the full configuration. ToolResources is left untouched when nil.
func (c *Client) UpdateAssistant(ctx context.Context, id string, params AssistantParams) (Assistant, error) {
	var out Assistant
	err := c.doJSON(ctx, "update_assistant", http.MethodPost, "/assistants/"+url.PathEscape(id), params, &out)
	return out, err
}

// DeclareCodeExecutionFiles replaces the assistant-level code_interpreter file list.
func (c *Client) DeclareCodeExecutionFiles(ctx context.Context, id string, fileIDs []string) error {
	body := struct {
		ToolResources *ToolResources `json:"tool_resources"`
	}{ToolResources: CodeInterpreterDeclaration(fileIDs)}
	return c.doJSON(ctx, "declare_files", http.MethodPost, "/assistants/"+url.PathEscape(id), body, nil)
}

// DeleteAssistant succeeds when the assistant is already gone.
func (c *Client) DeleteAssistant(ctx context.Context, id string) error {
	err := c.doJSON(ctx, "delete_assistant", http.MethodDelete, "/assistants/"+url.PathEscape(id), nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}
