package edges

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voice-assistant/server/internal/assistant/graph/conversations"
	"github.com/voice-assistant/server/internal/assistant/graph/nodes"
	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
	"github.com/voice-assistant/server/internal/assistant/llm/llmtest"
	"github.com/voice-assistant/server/internal/assistant/model"
)

func newRenderer(t *testing.T) *prompts.Renderer {
	t.Helper()
	r, err := prompts.NewRenderer(model.AssistantConfig{Name: "Jarvis", Timezone: "UTC"})
	require.NoError(t, err)
	return r
}

func viewFor(query string, mode model.Mode) View {
	return View{
		ThreadID: "t1",
		Query:    query,
		History:  []*schema.Message{schema.UserMessage(query)},
		Mode:     mode,
	}
}

func TestRedirector_NormalisesLabel(t *testing.T) {
	ctx := context.Background()
	r := NewRedirector(newRenderer(t), conversations.NewFormatter(0))

	tests := []struct {
		name     string
		reply    llmtest.Reply
		want     string
		fallback bool
	}{
		{"exact", llmtest.Text("calendar_node"), nodes.NodeCalendar, false},
		{"padded and cased", llmtest.Text("  Calendar_Node \n"), nodes.NodeCalendar, false},
		{"garbage", llmtest.Text("I think you want the calendar"), nodes.NodeChatbot, true},
		{"end is not a label", llmtest.Text("END"), nodes.NodeChatbot, true},
		{"empty", llmtest.Text(""), nodes.NodeChatbot, true},
		{"error", llmtest.Fail(errors.New("boom")), nodes.NodeChatbot, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := llmtest.New().On("request router for", tt.reply)
			d := r.Decide(ctx, m, viewFor("what's on my calendar", model.ModeNormal))
			assert.Equal(t, tt.want, d.Label)
			assert.Equal(t, tt.fallback, d.Fallback)
			assert.Contains(t, r.Labels, d.Label)
		})
	}
}

func TestRedirector_PromptCarriesHistoryAndHints(t *testing.T) {
	r := NewRedirector(newRenderer(t), conversations.NewFormatter(0))
	m := llmtest.New().On("request router for", llmtest.Text("chatbot"))

	v := viewFor("yes", model.ModeNormal)
	v.Hints = []string{"Previous operation retrieved calendar data"}
	r.Decide(context.Background(), m, v)

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Human, "Latest user message: yes")
	assert.Contains(t, calls[0].Human, "Previous operation retrieved calendar data")
	assert.Contains(t, calls[0].Human, "Current mode: normal")
}

func TestKeyboardRouter_KeywordFallbackOnlyForInvalidLabels(t *testing.T) {
	ctx := context.Background()
	r := NewKeyboardRouter(newRenderer(t), conversations.NewFormatter(0))

	tests := []struct {
		query string
		want  string
	}{
		{"press enter", nodes.NodeKeyboardPresskey},
		{"use the shortcut ctrl c", nodes.NodeKeyboardHotkey},
		{"type hello world", nodes.NodeKeyboardWrite},
		{"please enter text for me", nodes.NodeKeyboardWrite},
		{"how are you", nodes.NodeChatbot},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			m := llmtest.New().On("keyboard action router", llmtest.Text("not-a-label"))
			assert.Equal(t, tt.want, r.Decide(ctx, m, viewFor(tt.query, model.ModeKeyboard)).Label)
		})
	}

	// A model error skips keyword recovery.
	m := llmtest.New().On("keyboard action router", llmtest.Fail(errors.New("down")))
	assert.Equal(t, nodes.NodeChatbot, r.Decide(ctx, m, viewFor("press enter", model.ModeKeyboard)).Label)

	// So does an empty reply.
	for _, reply := range []string{"", "  \n"} {
		m = llmtest.New().On("keyboard action router", llmtest.Text(reply))
		d := r.Decide(ctx, m, viewFor("press enter", model.ModeKeyboard))
		assert.Equal(t, nodes.NodeChatbot, d.Label, "%q", reply)
		assert.True(t, d.Fallback)
	}
}

func TestKeywordFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		fn    func(string) (string, bool)
		query string
		want  string
		ok    bool
	}{
		{"hotkey is not key", keyboardKeywords, "hotkey alt tab", nodes.NodeKeyboardHotkey, true},
		{"chrome close", chromeKeywords, "close the chrome window", nodes.NodeChromeClose, true},
		{"chrome tab", chromeKeywords, "switch to the second tab", nodes.NodeChromeTab, true},
		{"chrome go to", chromeKeywords, "go to github.com", nodes.NodeChromeFunc, true},
		{"files close", filesKeywords, "close file explorer window", nodes.NodeFilesClose, true},
		{"files write", filesKeywords, "delete report.txt", nodes.NodeFilesWrite, true},
		{"files read", filesKeywords, "show my downloads", nodes.NodeFilesRead, true},
		{"nothing", filesKeywords, "tell me a joke", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.fn(tt.query)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDomainRouters_PromptNamesDomain(t *testing.T) {
	r := newRenderer(t)
	f := conversations.NewFormatter(0)
	for marker, c := range map[string]*Classifier{
		"Chrome action router":       NewChromeRouter(r, f),
		"file manager action router": NewFilesRouter(r, f),
		"keyboard action router":     NewKeyboardRouter(r, f),
	} {
		m := llmtest.New().On(marker, llmtest.Text(c.Labels[1]))
		d := c.Decide(context.Background(), m, viewFor("do it", model.ModeChrome))
		assert.Equal(t, c.Labels[1], d.Label, marker)
		assert.False(t, d.Fallback, marker)
	}
}

func TestCalendarRouter_FallsBackToFinal(t *testing.T) {
	c := NewCalendarRouter(newRenderer(t), conversations.NewFormatter(0))
	m := llmtest.New().On("calendar action router", llmtest.Text("calendar_explode"))
	d := c.Decide(context.Background(), m, viewFor("what's next", model.ModeNormal))
	assert.Equal(t, nodes.NodeCalendarFinal, d.Label)
	assert.True(t, d.Fallback)
}

func TestTopLevel(t *testing.T) {
	for mode, want := range map[model.Mode]string{
		model.ModeKeyboard:    nodes.NodeKeyboard,
		model.ModeChrome:      nodes.NodeChrome,
		model.ModeFileManager: nodes.NodeFiles,
	} {
		got, ok := TopLevel(mode)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := TopLevel(model.ModeNormal)
	assert.False(t, ok)
}

func TestViewOf_Hints(t *testing.T) {
	s := model.NewSession("t1")
	s.Append(
		schema.UserMessage("add lunch tomorrow"),
		schema.AssistantMessage("Event 'Lunch' created successfully for ...", nil),
		schema.UserMessage("delete it"),
	)
	require.NoError(t, model.PutScratch(s, model.ScratchCalendarEvents, []model.CalendarEventRef{{ID: "e1"}}))
	s.Turns = 3
	s.Pending = &model.PendingConfirmation{Action: model.PendingDelete, EventID: "e1", Title: "Lunch", AskedAtTurn: 2}

	v := ViewOf(s)
	assert.Equal(t, "delete it", v.Query)
	assert.Equal(t, model.ModeNormal, v.Mode)
	assert.Len(t, v.Hints, 3)

	assert.Equal(t, model.ModeNormal, ViewOf(nil).Mode)
}
