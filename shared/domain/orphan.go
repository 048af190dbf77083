package domain

type HandleKind string

const (
	HandleAssistant HandleKind = "assistant"
	HandleThread    HandleKind = "thread"
	HandleFile      HandleKind = "file"
)

// OrphanedHandle is an external resource whose deletion failed after the
// local row was already gone.
type OrphanedHandle struct {
	Id        int64
	Kind      HandleKind
	Handle    string
	Attempts  int
	LastError string
}
