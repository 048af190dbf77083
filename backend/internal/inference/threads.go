package inference

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// CreateThread opens a thread, optionally seeded with prior messages.
func (c *Client) CreateThread(ctx context.Context, seed []NewMessage) (Thread, error) {
	body := struct {
		Messages []NewMessage `json:"messages,omitempty"`
	}{Messages: seed}
	var out Thread
	err := c.doJSON(ctx, "create_thread", http.MethodPost, "/threads", body, &out)
	return out, err
}

func (c *Client) DeleteThread(ctx context.Context, id string) error {
	err := c.doJSON(ctx, "delete_thread", http.MethodDelete, "/threads/"+url.PathEscape(id), nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) CreateMessage(ctx context.Context, threadID string, msg NewMessage) (Message, error) {
	var out Message
	err := c.doJSON(ctx, "create_message", http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", msg, &out)
	return out, err
}

// ListMessages returns messages in ascending order. A non-empty runID narrows
// the list to messages produced by that run.
func (c *Client) ListMessages(ctx context.Context, threadID, runID string, limit int) ([]Message, error) {
	q := url.Values{}
	q.Set("order", "asc")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if runID != "" {
		q.Set("run_id", runID)
	}
	var out listEnvelope[Message]
	path := "/threads/" + url.PathEscape(threadID) + "/messages?" + q.Encode()
	if err := c.doJSON(ctx, "list_messages", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}
