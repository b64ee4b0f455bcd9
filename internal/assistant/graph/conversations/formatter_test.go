package conversations

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"

	"github.com/voice-assistant/server/internal/assistant/model"
)

func sampleHistory() []*schema.Message {
	call := schema.ToolCall{ID: "call_1", Function: schema.FunctionCall{Name: "web_search", Arguments: `{"query":"go"}`}}
	return []*schema.Message{
		schema.UserMessage("search for go"),
		schema.AssistantMessage("", []schema.ToolCall{call}),
		{Role: schema.Tool, Content: strings.Repeat("x", 250), ToolCallID: "call_1", ToolName: "web_search"},
		schema.AssistantMessage("Go is a programming language.", nil),
	}
}

func TestFormatterWithTools(t *testing.T) {
	out := NewFormatter(10).WithTools(sampleHistory())

	assert.True(t, strings.HasPrefix(out, "Conversation history:\n\n"))
	assert.Contains(t, out, "User: search for go\n")
	assert.Contains(t, out, `Assistant called tools: web_search({"query":"go"})`)
	assert.Contains(t, out, "Tool (web_search): "+strings.Repeat("x", 200)+"...\n")
	assert.Contains(t, out, "Assistant: Go is a programming language.\n")
}

func TestFormatterWithoutTools(t *testing.T) {
	out := NewFormatter(10).WithoutTools(sampleHistory())

	assert.NotContains(t, out, "Tool (")
	assert.NotContains(t, out, "called tools")
	assert.Contains(t, out, "User: search for go\n")
	assert.Contains(t, out, "Assistant: Go is a programming language.\n")
}

func TestFormatterWindow(t *testing.T) {
	history := []*schema.Message{
		schema.UserMessage("first"),
		schema.AssistantMessage("one", nil),
		schema.UserMessage("second"),
		schema.AssistantMessage("two", nil),
	}
	out := NewFormatter(2).WithoutTools(history)

	assert.NotContains(t, out, "first")
	assert.Contains(t, out, "User: second")
	assert.Contains(t, out, "Assistant: two")
}

func TestTrimTailCopies(t *testing.T) {
	history := []*schema.Message{schema.UserMessage("a"), schema.UserMessage("b")}
	out := trimTail(history, 5)
	out[0] = nil
	assert.NotNil(t, history[0])
}

func TestLatestUserQuery(t *testing.T) {
	assert.Equal(t, "search for go", LatestUserQuery(sampleHistory()))
	assert.Equal(t, "", LatestUserQuery(nil))
}

func TestIsAffirmative(t *testing.T) {
	for _, s := range []string{"yes", "Yes please", "yeah go ahead", "OK", "sure!"} {
		assert.True(t, IsAffirmative(s), s)
	}
	for _, s := range []string{"", "no", "not yet", "don't", "what is on tomorrow", "yes but wait"} {
		assert.False(t, IsAffirmative(s), s)
	}
}

func TestHasExitIntent(t *testing.T) {
	for _, s := range []string{"exit", "I'm done", "close the window", "quit keyboard mode", "go back to normal"} {
		assert.True(t, HasExitIntent(s), s)
	}
	for _, s := range []string{"close tab 2", "press enter", "open reddit"} {
		assert.False(t, HasExitIntent(s), s)
	}
}

func TestHasDeleteConfirmation(t *testing.T) {
	assert.True(t, HasDeleteConfirmation("yes, delete the standup"))
	assert.True(t, HasDeleteConfirmation("remove my 3pm meeting, I'm sure"))
	assert.False(t, HasDeleteConfirmation("delete my 3pm meeting"))
	assert.False(t, HasDeleteConfirmation("yes"))

	assert.True(t, HasDeleteConfirmation("cancel the dentist, go ahead"))
	assert.True(t, HasDeleteConfirmation("delete the standup, don't ask me again"))
	assert.False(t, HasDeleteConfirmation("I'm not sure, should I delete the dentist appointment?"))
	assert.False(t, HasDeleteConfirmation("sure, but don't delete yet"))
	assert.False(t, HasDeleteConfirmation("yes delete it... no wait"))
}

func TestAffirmsPendingDelete(t *testing.T) {
	s := model.NewSession("t1")
	s.Turns = 3
	s.Pending = &model.PendingConfirmation{Action: model.PendingDelete, EventID: "e1", AskedAtTurn: 2}
	s.Append(schema.UserMessage("yes please"))
	assert.True(t, AffirmsPendingDelete(s))

	s.Turns = 4
	assert.False(t, AffirmsPendingDelete(s), "confirmation expires after one turn")

	s.Turns = 3
	s.Append(schema.UserMessage("no, keep it"))
	assert.False(t, AffirmsPendingDelete(s))

	assert.False(t, AffirmsPendingDelete(nil))
}
