package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Session is a private copy of the stored checkpoint; the assistant commits it
//     only after the graph returns, so an aborted turn never leaves partial writes.
type AppState struct {
	Session       *SessionState
	TurnID        string
	Loop          LoopState       // shared tool-calling loop bookkeeping
	Calendar      CalendarOutcome // written by create/update/delete, read by finalize
	ToolCallIDSeq int             // local sequence to synthesize tool_call_id when provider omits
}

// LoopState tracks one bounded tool-calling loop.
type LoopState struct {
	Node         string
	Toolset      string
	Action       string // "Failed to <Action>: ..." when the model call fails
	Transcript   []*schema.Message // system + human + model/tool turns, fed back to the model
	Calls        int
	LimitReached bool
}

// TurnInput is the graph input for one user turn.
type TurnInput struct {
	ThreadID string        `json:"thread_id"`
	TurnID   string        `json:"turn_id"`
	Text     string        `json:"text"`
	Session  *SessionState `json:"-"`
}

// TurnResult is the graph output: the reply plus the session to commit.
type TurnResult struct {
	Reply   string
	Session *SessionState
}
