package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type StreamEventKind int

const (
	// EventRunUpdate carries a run snapshot (created, in progress or terminal).
	EventRunUpdate StreamEventKind = iota
	EventTextDelta
	EventImageFile
	// EventToolCallDelta carries a partial tool call keyed by its index in the step.
	EventToolCallDelta
	// EventStepCompleted carries the final tool calls of a finished step.
	EventStepCompleted
)

type StreamEvent struct {
	Kind     StreamEventKind
	Run      Run
	Text     string
	FileID   string
	ToolCall ToolCall
	Step     RunStep
}

var errStreamTruncated = errors.New("stream ended before the run finished")

var terminalRunEvents = map[string]bool{
	"thread.run.completed":       true,
	"thread.run.failed":          true,
	"thread.run.cancelled":       true,
	"thread.run.expired":         true,
	"thread.run.incomplete":      true,
	"thread.run.requires_action": true,
}

type messageDelta struct {
	Delta struct {
		Content []MessageContent `json:"content"`
	} `json:"delta"`
}

type stepDelta struct {
	ID    string `json:"id"`
	Delta struct {
		StepDetails StepDetails `json:"step_details"`
	} `json:"delta"`
}

// StreamRun starts a streamed run and feeds every event to handle until the
// run reaches a terminal state. The last run snapshot is returned; a handler
// error aborts the stream and is returned as is.
func (c *Client) StreamRun(ctx context.Context, threadID string, params RunParams, handle func(StreamEvent) error) (Run, error) {
	params.Stream = true
	payload, err := json.Marshal(params)
	if err != nil {
		return Run{}, fmt.Errorf("stream_run: failed to encode request: %w", err)
	}

	req, err := c.newRequest(ctx, "POST", runsPath(threadID), bytes.NewReader(payload), "application/json")
	if err != nil {
		return Run{}, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.send(req, "stream_run")
	if err != nil {
		return Run{}, err
	}
	defer resp.Body.Close()

	var (
		last     Run
		event    string
		finished bool
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" || event == "done" {
			break
		}

		switch {
		case event == "error":
			return last, streamError(data)

		case event == "thread.message.delta":
			var d messageDelta
			if err := json.Unmarshal([]byte(data), &d); err != nil {
				continue
			}
			for _, part := range d.Delta.Content {
				switch {
				case part.Type == "text" && part.Text != nil && part.Text.Value != "":
					if err := handle(StreamEvent{Kind: EventTextDelta, Text: part.Text.Value}); err != nil {
						return last, err
					}
				case part.Type == "image_file" && part.ImageFile != nil:
					if err := handle(StreamEvent{Kind: EventImageFile, FileID: part.ImageFile.FileID}); err != nil {
						return last, err
					}
				}
			}

		case event == "thread.run.step.delta":
			var d stepDelta
			if err := json.Unmarshal([]byte(data), &d); err != nil {
				continue
			}
			for _, call := range d.Delta.StepDetails.ToolCalls {
				if err := handle(StreamEvent{Kind: EventToolCallDelta, ToolCall: call}); err != nil {
					return last, err
				}
			}

		case event == "thread.run.step.completed":
			var step RunStep
			if err := json.Unmarshal([]byte(data), &step); err != nil {
				continue
			}
			if step.StepDetails.Type != "tool_calls" {
				continue
			}
			if err := handle(StreamEvent{Kind: EventStepCompleted, Step: step}); err != nil {
				return last, err
			}

		case strings.HasPrefix(event, "thread.run.") && !strings.HasPrefix(event, "thread.run.step"):
			var run Run
			if err := json.Unmarshal([]byte(data), &run); err != nil {
				continue
			}
			last = run
			if err := handle(StreamEvent{Kind: EventRunUpdate, Run: run}); err != nil {
				return last, err
			}
			if terminalRunEvents[event] {
				finished = true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
		return last, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !finished {
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
		return last, fmt.Errorf("%w: %v", ErrUnavailable, errStreamTruncated)
	}
	return last, nil
}

func streamError(data string) error {
	var payload struct {
		Message string `json:"message"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := data
	if err := json.Unmarshal([]byte(data), &payload); err == nil {
		switch {
		case payload.Error != nil && payload.Error.Message != "":
			msg = payload.Error.Message
		case payload.Message != "":
			msg = payload.Message
		}
	}
	return fmt.Errorf("%w: stream error: %s", ErrUnavailable, msg)
}
