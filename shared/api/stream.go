package api

import "github.com/parley-dev/parley/shared/domain"

// Stream frame types, server to client unless noted.
const (
	FrameConnection    = "connection"
	FrameMessage       = "message" // client to server
	FramePing          = "ping"    // client to server
	FramePong          = "pong"
	FrameTextDelta     = "text_delta"
	FrameToolCallStart = "tool_call_start"
	FrameToolCallDelta = "tool_call_delta"
	FrameToolCallDone  = "tool_call_done"
	FrameComplete      = "complete"
	FrameError         = "error"
	FrameImageOutput   = "image_output"
)

// ClientFrame is anything the client sends over the stream.
type ClientFrame struct {
	Type    string   `json:"type"`
	Content string   `json:"content,omitempty"`
	FileIds []string `json:"file_ids,omitempty"`
}

// StreamFrame is a flat envelope, unused fields are omitted.
type StreamFrame struct {
	Type           string                     `json:"type"`
	Status         string                     `json:"status,omitempty"`
	ConversationId int64                      `json:"conversation_id,omitempty"`
	MessageCount   *int                       `json:"message_count,omitempty"`
	Content        string                     `json:"content,omitempty"`
	HTML           string                     `json:"html,omitempty"`
	ToolCallId     string                     `json:"tool_call_id,omitempty"`
	ToolName       string                     `json:"tool_name,omitempty"`
	Input          string                     `json:"input,omitempty"`
	Output         string                     `json:"output,omitempty"`
	MessageId      int64                      `json:"message_id,omitempty"`
	TurnHandle     string                     `json:"turn_handle,omitempty"`
	Kind           string                     `json:"kind,omitempty"`
	Message        string                     `json:"message,omitempty"`
	Images         []domain.MessageAttachment `json:"images,omitempty"`
}

// FrameFromBlock maps a streamed content block onto its frame.
func FrameFromBlock(block domain.ContentBlock) StreamFrame {
	switch b := block.(type) {
	case domain.TextBlock:
		return StreamFrame{Type: FrameTextDelta, Content: b.Text}
	case domain.ImageRefBlock:
		return StreamFrame{Type: FrameImageOutput, Images: []domain.MessageAttachment{{
			FileId: b.FileId,
			Kind:   domain.AttachmentImage,
			URL:    ImageProxyPath(b.FileId),
		}}}
	case domain.ToolCallStart:
		return StreamFrame{Type: FrameToolCallStart, ToolCallId: b.CallId, ToolName: b.Name}
	case domain.ToolCallDelta:
		return StreamFrame{Type: FrameToolCallDelta, ToolCallId: b.CallId, Content: b.Fragment}
	case domain.ToolCallDone:
		return StreamFrame{Type: FrameToolCallDone, ToolCallId: b.CallId, ToolName: b.Name, Input: b.Input, Output: b.Output}
	default:
		panic("unknown content block")
	}
}
