package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Mode is the sticky cross-turn flag that decides which sub-graph owns a turn.
type Mode string

const (
	ModeNormal      Mode = "normal"
	ModeKeyboard    Mode = "keyboard"
	ModeChrome      Mode = "chrome"
	ModeFileManager Mode = "file_manager"
)

// ParseMode normalises v into a known mode. Unknown values become ModeNormal.
func ParseMode(v string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(v))) {
	case ModeKeyboard:
		return ModeKeyboard
	case ModeChrome:
		return ModeChrome
	case ModeFileManager:
		return ModeFileManager
	default:
		return ModeNormal
	}
}

func (m Mode) String() string {
	if m == "" {
		return string(ModeNormal)
	}
	return string(m)
}

func (m Mode) IsNormal() bool {
	return m == "" || m == ModeNormal
}

// Scratch keys.
const (
	ScratchCalendarEvents = "calendar_events"
)

// PendingDelete is the only confirmable action today.
const PendingDelete = "delete"

// PendingConfirmation records a destructive action waiting for a "yes".
type PendingConfirmation struct {
	Action      string `json:"action"`
	EventID     string `json:"event_id"`
	Title       string `json:"title,omitempty"`
	When        string `json:"when,omitempty"`
	AskedAtTurn int    `json:"asked_at_turn"`
}

// LiveAt reports whether the confirmation can still be answered on turn.
// A question is only answerable on the turn right after it was asked.
func (p *PendingConfirmation) LiveAt(turn int) bool {
	return p != nil && turn == p.AskedAtTurn+1
}

// SessionState is the per-thread record threaded through every node.
// History is append-only: nodes add messages, nothing rewrites or removes them.
type SessionState struct {
	ThreadID  string                     `json:"thread_id"`
	History   []*schema.Message          `json:"history"`
	Mode      Mode                       `json:"mode"`
	Feedback  string                     `json:"feedback,omitempty"`
	Scratch   map[string]json.RawMessage `json:"scratch,omitempty"`
	Pending   *PendingConfirmation       `json:"pending,omitempty"`
	Turns     int                        `json:"turns"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

func NewSession(threadID string) *SessionState {
	return &SessionState{
		ThreadID: threadID,
		History:  []*schema.Message{},
		Mode:     ModeNormal,
		Scratch:  map[string]json.RawMessage{},
	}
}

// Clone returns a copy that can be mutated without touching s.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := *s
	out.History = make([]*schema.Message, 0, len(s.History)+8)
	for _, m := range s.History {
		out.History = append(out.History, cloneMessage(m))
	}
	out.Scratch = make(map[string]json.RawMessage, len(s.Scratch))
	for k, v := range s.Scratch {
		out.Scratch[k] = append(json.RawMessage(nil), v...)
	}
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	return &out
}

func cloneMessage(m *schema.Message) *schema.Message {
	if m == nil {
		return nil
	}
	c := *m
	if len(m.ToolCalls) > 0 {
		c.ToolCalls = append([]schema.ToolCall(nil), m.ToolCalls...)
	}
	return &c
}

// Append adds messages to the end of History, skipping nils.
func (s *SessionState) Append(msgs ...*schema.Message) {
	for _, m := range msgs {
		if m != nil {
			s.History = append(s.History, m)
		}
	}
}

// LatestUserText returns the content of the most recent user message.
func (s *SessionState) LatestUserText() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if m := s.History[i]; m != nil && m.Role == schema.User {
			return m.Content
		}
	}
	return ""
}

// ConsumeFeedback returns the one-shot feedback and clears it.
func (s *SessionState) ConsumeFeedback() string {
	fb := s.Feedback
	s.Feedback = ""
	return fb
}

// PutScratch stores v under key, replacing any previous value.
func PutScratch[T any](s *SessionState, key string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if s.Scratch == nil {
		s.Scratch = map[string]json.RawMessage{}
	}
	s.Scratch[key] = b
	return nil
}

// GetScratch decodes the value under key. Missing or undecodable entries report false.
func GetScratch[T any](s *SessionState, key string) (T, bool) {
	var v T
	raw, ok := s.Scratch[key]
	if !ok || len(raw) == 0 {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}
