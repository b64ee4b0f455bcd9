package conversations

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

const (
	DefaultMaxMessages = 20
	toolResultPreview  = 200
)

// Formatter renders a bounded window of session history for prompts.
type Formatter struct {
	MaxMessages int
}

func NewFormatter(maxMessages int) *Formatter {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Formatter{MaxMessages: maxMessages}
}

// WithTools renders the window including tool calls and their results.
func (f *Formatter) WithTools(history []*schema.Message) string {
	return f.render(history, true)
}

// WithoutTools renders only the user/assistant dialogue.
func (f *Formatter) WithoutTools(history []*schema.Message) string {
	return f.render(history, false)
}

func (f *Formatter) render(history []*schema.Message, withTools bool) string {
	recent := trimTail(history, f.maxMessages())

	var b strings.Builder
	b.WriteString("Conversation history:\n\n")
	for _, msg := range recent {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.User:
			if msg.Content != "" {
				b.WriteString("User: " + msg.Content + "\n")
			}
		case schema.Assistant:
			if msg.Content != "" {
				b.WriteString("Assistant: " + msg.Content + "\n")
			}
			if withTools && len(msg.ToolCalls) > 0 {
				calls := make([]string, 0, len(msg.ToolCalls))
				for _, tc := range msg.ToolCalls {
					calls = append(calls, tc.Function.Name+"("+tc.Function.Arguments+")")
				}
				b.WriteString("Assistant called tools: " + strings.Join(calls, ", ") + "\n")
			}
		case schema.Tool:
			if withTools {
				name := msg.ToolName
				if name == "" {
					name = "unknown"
				}
				b.WriteString("Tool (" + name + "): " + preview(msg.Content, toolResultPreview) + "\n")
			}
		}
	}
	return b.String()
}

func (f *Formatter) maxMessages() int {
	if f == nil || f.MaxMessages <= 0 {
		return DefaultMaxMessages
	}
	return f.MaxMessages
}

// LatestUserQuery returns the newest user message content, or "".
func LatestUserQuery(history []*schema.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if m := history[i]; m != nil && m.Role == schema.User {
			return m.Content
		}
	}
	return ""
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxMessages int) []*schema.Message {
	if maxMessages <= 0 || len(messages) <= maxMessages {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxMessages:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}

func preview(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
