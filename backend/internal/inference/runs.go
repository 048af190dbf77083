package inference

import (
	"context"
	"net/http"
	"net/url"
)

func runsPath(threadID string) string {
	return "/threads/" + url.PathEscape(threadID) + "/runs"
}

func (c *Client) CreateRun(ctx context.Context, threadID string, params RunParams) (Run, error) {
	params.Stream = false
	var out Run
	err := c.doJSON(ctx, "create_run", http.MethodPost, runsPath(threadID), params, &out)
	return out, err
}

func (c *Client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	var out Run
	err := c.doJSON(ctx, "get_run", http.MethodGet, runsPath(threadID)+"/"+url.PathEscape(runID), nil, &out)
	return out, err
}

func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	return c.doJSON(ctx, "cancel_run", http.MethodPost, runsPath(threadID)+"/"+url.PathEscape(runID)+"/cancel", nil, nil)
}

func (c *Client) ListRunSteps(ctx context.Context, threadID, runID string) ([]RunStep, error) {
	var out listEnvelope[RunStep]
	path := runsPath(threadID) + "/" + url.PathEscape(runID) + "/steps?order=asc&limit=100"
	if err := c.doJSON(ctx, "list_run_steps", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}
