package domain

type TurnStatus string

const (
	TurnQueued         TurnStatus = "queued"
	TurnInProgress     TurnStatus = "in_progress"
	TurnRequiresAction TurnStatus = "requires_action"
	TurnCancelling     TurnStatus = "cancelling"
	TurnCompleted      TurnStatus = "completed"
	TurnFailed         TurnStatus = "failed"
	TurnCancelled      TurnStatus = "cancelled"
	TurnExpired        TurnStatus = "expired"
	TurnIncomplete     TurnStatus = "incomplete"
)

func (s TurnStatus) Terminal() bool {
	switch s {
	case TurnCompleted, TurnFailed, TurnCancelled, TurnExpired, TurnIncomplete:
		return true
	}
	return false
}

// TurnOutcome is what a waiter observed when the turn stopped advancing.
type TurnOutcome struct {
	Handle     string
	Status     TurnStatus
	LastError  string
	TokensUsed int
	// ToolCalls is filled by the stream waiter, the poll waiter leaves it to the driver
	ToolCalls []ToolCallRecord
}

type TurnRequest struct {
	User           UserId
	ConversationId ConversationId
	Text           string
	FileIds        []FileId
}

// TurnResult is returned by both the synchronous and the streaming path.
type TurnResult struct {
	MessageId   MessageId
	Text        string
	ToolCalls   []ToolCallRecord
	Attachments []MessageAttachment
	TurnHandle  string
	TokensUsed  int
}
