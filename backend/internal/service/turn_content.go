package service

import (
	"strings"

	"github.com/parley-dev/parley/backend/internal/inference"
	"github.com/parley-dev/parley/shared/api"
	"github.com/parley-dev/parley/shared/domain"
)

const (
	toolCodeInterpreter = "code_interpreter"
	toolFileSearch      = "file_search"
)

// userMessage shapes a submission. Images are inlined as blocks and also
// attached for code execution, documents go to file search.
func userMessage(text string, files []domain.FileRecord) inference.NewMessage {
	blocks := domain.BuildUserContent(text, files)
	if len(blocks) == 0 {
		// only non-image files were sent, the hosted service rejects empty content
		blocks = []domain.ContentBlock{domain.TextBlock{Text: attachedFilesNote(files)}}
	}

	parts := make([]inference.ContentPart, 0, len(blocks))
	for _, block := range blocks {
		switch b := block.(type) {
		case domain.TextBlock:
			parts = append(parts, inference.ContentPart{Type: "text", Text: b.Text})
		case domain.ImageRefBlock:
			parts = append(parts, inference.ContentPart{Type: "image_file", ImageFile: &inference.ImageFile{FileID: b.FileId}})
		}
	}

	msg := inference.NewMessage{Role: string(domain.RoleUser), Content: parts}
	if len(parts) == 1 && parts[0].Type == "text" {
		msg.Content = parts[0].Text
	}

	seen := make(map[domain.FileId]bool, len(files))
	for _, f := range files {
		if seen[f.FileId] {
			continue
		}
		seen[f.FileId] = true
		tool := toolCodeInterpreter
		if f.Purpose == domain.PurposeDocumentSearch && !f.IsImage() {
			tool = toolFileSearch
		}
		msg.Attachments = append(msg.Attachments, inference.MessageAttachment{
			FileID: f.FileId,
			Tools:  []inference.Tool{{Type: tool}},
		})
	}
	return msg
}

func attachedFilesNote(files []domain.FileRecord) string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.OriginalName)
	}
	return "Attached files: " + strings.Join(names, ", ")
}

// userAttachments is what the ledger records for the files of a user message.
func userAttachments(files []domain.FileRecord) []domain.MessageAttachment {
	atts := make([]domain.MessageAttachment, 0, len(files))
	for _, f := range files {
		att := domain.MessageAttachment{FileId: f.FileId, Kind: domain.AttachmentFile, Name: f.OriginalName}
		if f.IsImage() {
			att.Kind = domain.AttachmentImage
			att.URL = api.ImageProxyPath(f.FileId)
		}
		atts = append(atts, att)
	}
	return atts
}

func imageAttachment(id domain.FileId) domain.MessageAttachment {
	return domain.MessageAttachment{FileId: id, Kind: domain.AttachmentImage, URL: api.ImageProxyPath(id)}
}

// replyFromMessages joins the assistant text blocks with newlines and turns
// generated images into proxied attachments.
func replyFromMessages(msgs []inference.Message) (string, []domain.MessageAttachment) {
	var texts []string
	atts := []domain.MessageAttachment{}
	for _, m := range msgs {
		if m.Role != string(domain.RoleAssistant) {
			continue
		}
		for _, c := range m.Content {
			switch {
			case c.Type == "text" && c.Text != nil:
				texts = append(texts, c.Text.Value)
			case c.Type == "image_file" && c.ImageFile != nil:
				atts = append(atts, imageAttachment(c.ImageFile.FileID))
			}
		}
	}
	return strings.Join(texts, "\n"), atts
}

// toolCallRecord flattens a finished tool call.
func toolCallRecord(call inference.ToolCall) domain.ToolCallRecord {
	rec := domain.ToolCallRecord{Id: call.ID, Name: call.Type}
	switch {
	case call.CodeInterpreter != nil:
		rec.Input = call.CodeInterpreter.Input
		var logs []string
		for _, out := range call.CodeInterpreter.Outputs {
			if out.Type == "logs" && out.Logs != "" {
				logs = append(logs, out.Logs)
			}
		}
		rec.Output = strings.Join(logs, "\n")
	case call.Function != nil:
		rec.Name = call.Function.Name
		rec.Input = call.Function.Arguments
		rec.Output = call.Function.Output
	}
	return rec
}

func toolCallsFromSteps(steps []inference.RunStep) []domain.ToolCallRecord {
	calls := []domain.ToolCallRecord{}
	for _, step := range steps {
		if step.StepDetails.Type != "tool_calls" {
			continue
		}
		for _, call := range step.StepDetails.ToolCalls {
			calls = append(calls, toolCallRecord(call))
		}
	}
	return calls
}

func mergeImages(a, b []domain.MessageAttachment) []domain.MessageAttachment {
	out := make([]domain.MessageAttachment, 0, len(a)+len(b))
	seen := make(map[domain.FileId]bool, len(a)+len(b))
	for _, list := range [][]domain.MessageAttachment{a, b} {
		for _, att := range list {
			if !seen[att.FileId] {
				seen[att.FileId] = true
				out = append(out, att)
			}
		}
	}
	return out
}

// streamTranslator turns hosted stream events into content blocks. Tool call
// deltas are keyed by their index within the current step, so the index map
// is reset whenever a step completes.
type streamTranslator struct {
	text    strings.Builder
	active  map[int]string
	started map[string]bool
	calls   []domain.ToolCallRecord
	images  []domain.MessageAttachment
}

func newStreamTranslator() *streamTranslator {
	return &streamTranslator{active: make(map[int]string), started: make(map[string]bool)}
}

// translate returns the blocks to forward for ev, possibly none. Generated
// images are collected, not forwarded, they are reported after completion.
func (t *streamTranslator) translate(ev inference.StreamEvent) []domain.ContentBlock {
	switch ev.Kind {
	case inference.EventTextDelta:
		t.text.WriteString(ev.Text)
		return []domain.ContentBlock{domain.TextBlock{Text: ev.Text}}

	case inference.EventImageFile:
		t.images = mergeImages(t.images, []domain.MessageAttachment{imageAttachment(ev.FileID)})
		return nil

	case inference.EventToolCallDelta:
		call := ev.ToolCall
		var blocks []domain.ContentBlock
		if call.ID != "" && t.active[call.Index] != call.ID {
			t.active[call.Index] = call.ID
			if !t.started[call.ID] {
				t.started[call.ID] = true
				blocks = append(blocks, domain.ToolCallStart{CallId: call.ID, Name: call.Type})
			}
		}
		id, ok := t.active[call.Index]
		if !ok {
			return nil
		}
		if fragment := callFragment(call); fragment != "" {
			blocks = append(blocks, domain.ToolCallDelta{CallId: id, Fragment: fragment})
		}
		return blocks

	case inference.EventStepCompleted:
		var blocks []domain.ContentBlock
		for _, call := range ev.Step.StepDetails.ToolCalls {
			rec := toolCallRecord(call)
			if !t.started[call.ID] {
				t.started[call.ID] = true
				blocks = append(blocks, domain.ToolCallStart{CallId: rec.Id, Name: rec.Name})
			}
			t.calls = append(t.calls, rec)
			blocks = append(blocks, domain.ToolCallDone{CallId: rec.Id, Name: rec.Name, Input: rec.Input, Output: rec.Output})
		}
		clear(t.active)
		return blocks
	}
	return nil
}

func callFragment(call inference.ToolCall) string {
	switch {
	case call.CodeInterpreter != nil:
		return call.CodeInterpreter.Input
	case call.Function != nil:
		return call.Function.Arguments
	}
	return ""
}
