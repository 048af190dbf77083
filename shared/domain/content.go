package domain

// ContentBlock is a closed set of message parts. Implementations live in this
// file only, consumers switch over the concrete types.
type ContentBlock interface {
	isContentBlock()
}

type TextBlock struct {
	Text string
}

type ImageRefBlock struct {
	FileId FileId
}

// ToolCallStart opens a tool invocation, deltas and the done block share its CallId.
type ToolCallStart struct {
	CallId string
	Name   string
}

type ToolCallDelta struct {
	CallId   string
	Fragment string
}

type ToolCallDone struct {
	CallId string
	Name   string
	Input  string
	Output string
}

func (TextBlock) isContentBlock()     {}
func (ImageRefBlock) isContentBlock() {}
func (ToolCallStart) isContentBlock() {}
func (ToolCallDelta) isContentBlock() {}
func (ToolCallDone) isContentBlock()  {}

// BuildUserContent puts the text first (when non-empty) followed by one image
// reference per image file in caller order.
func BuildUserContent(text string, files []FileRecord) []ContentBlock {
	blocks := make([]ContentBlock, 0, len(files)+1)
	if text != "" {
		blocks = append(blocks, TextBlock{Text: text})
	}
	for _, f := range files {
		if f.IsImage() {
			blocks = append(blocks, ImageRefBlock{FileId: f.FileId})
		}
	}
	return blocks
}
