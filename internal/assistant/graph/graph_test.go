package graph

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voice-assistant/server/internal/assistant/graph/nodes"
	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	"github.com/voice-assistant/server/internal/assistant/graph/tools/toolstest"
	"github.com/voice-assistant/server/internal/assistant/llm"
	"github.com/voice-assistant/server/internal/assistant/llm/llmtest"
	"github.com/voice-assistant/server/internal/assistant/model"
)

// System prompt markers of the templates the scripted model answers.
const (
	markRedirector = "request router for"
	markChatbot    = "helpful personal voice assistant"
	markSearch     = "research agent"
	markCalQuery   = "resolve calendar date ranges"
	markCalRouter  = "calendar action router"
	markCalDelete  = "identify calendar events to delete"
	markCalFinal   = "report calendar results"
	markToggle     = "stays in keyboard mode"
	markKbRouter   = "keyboard action router"
	markPresskey   = "single key presses"
	markCalCreate  = "extract new calendar events"
	markCalUpdate  = "extract calendar event updates"
	markChromeTgl  = "stays in Chrome mode"
	markChromeRtr  = "Chrome action router"
	markYouTube    = "pick YouTube searches"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type harness struct {
	runner   Runner
	model    *llmtest.Scripted
	calendar *toolstest.Calendar
	keyboard *toolstest.Keyboard
	search   *toolstest.Search
	browser  *toolstest.Browser
	media    *toolstest.Media
	session  *model.SessionState
}

func newHarness(t *testing.T, m *llmtest.Scripted, maxToolCalls int) *harness {
	t.Helper()
	cfg := model.AssistantConfig{Name: "Jarvis", Timezone: "UTC", ToolTimeout: 5 * time.Second}
	cfg.History.MaxMessages = 20
	cfg.Tools.MaxCalls = maxToolCalls

	renderer, err := prompts.NewRenderer(cfg)
	require.NoError(t, err)
	renderer = renderer.WithClock(func() time.Time { return testNow })

	h := &harness{
		model: m,
		calendar: toolstest.NewCalendar(model.CalendarEventRef{
			ID:    "ev1",
			Title: "Dentist",
			Start: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		}),
		keyboard: &toolstest.Keyboard{},
		search:   &toolstest.Search{},
		browser:  toolstest.NewBrowser("Mail"),
		media:    &toolstest.Media{},
	}
	h.runner, err = Build(context.Background(), Config{
		Models:    &llm.ChatModels{Router: m, Worker: m},
		Assistant: cfg,
		Collaborators: Collaborators{
			Search:   h.search,
			Calendar: h.calendar,
			Keyboard: h.keyboard,
			Browser:  h.browser,
			Media:    h.media,
		},
		Prompts: renderer,
	})
	require.NoError(t, err)
	return h
}

// turn runs one user message and carries the session into the next turn.
func (h *harness) turn(t *testing.T, text string) string {
	t.Helper()
	out, err := h.runner.Invoke(context.Background(), &model.TurnInput{
		ThreadID: "thread-1",
		Text:     text,
		Session:  h.session,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Session)
	h.session = out.Session
	return out.Reply
}

func (h *harness) last() *schema.Message {
	return h.session.History[len(h.session.History)-1]
}

func TestBuild_RequiresModels(t *testing.T) {
	_, err := Build(context.Background(), Config{})
	assert.Error(t, err)

	_, err = BuildGraph(context.Background(), nil)
	assert.Error(t, err)
}

func TestGraph_SearchToolLoop(t *testing.T) {
	m := llmtest.New().
		On(markRedirector, llmtest.Text(nodes.NodeSearch)).
		On(markSearch,
			llmtest.ToolCalls(llmtest.Call(tools.ToolWeather, `{"city":"  Paris "}`)),
			llmtest.Text("It is 21C and clear in Paris."),
		).
		On(markChatbot, llmtest.Text("It's 21 degrees and clear in Paris right now."))
	h := newHarness(t, m, 6)

	reply := h.turn(t, "what's the weather in Paris")
	assert.Equal(t, "It's 21 degrees and clear in Paris right now.", reply)

	hist := h.session.History
	require.Len(t, hist, 5)
	assert.Equal(t, schema.User, hist[0].Role)

	require.Len(t, hist[1].ToolCalls, 1)
	assert.Equal(t, "call_1", hist[1].ToolCalls[0].ID)

	assert.Equal(t, schema.Tool, hist[2].Role)
	assert.Equal(t, "call_1", hist[2].ToolCallID)
	assert.Equal(t, tools.ToolWeather, hist[2].ToolName)
	assert.Contains(t, hist[2].Content, "Weather in Paris")

	assert.Equal(t, "It is 21C and clear in Paris.", hist[3].Content)
	assert.Equal(t, reply, hist[4].Content)
	assert.Equal(t, 1, h.session.Turns)
	assert.Equal(t, model.ModeNormal, h.session.Mode)
}

func TestGraph_ToolLoopStopsAtLimit(t *testing.T) {
	m := llmtest.New().
		On(markRedirector, llmtest.Text(nodes.NodeSearch)).
		Always(markSearch, llmtest.ToolCalls(llmtest.Call(tools.ToolWebSearch, `{"query":"go releases"}`))).
		On(markChatbot, llmtest.Text("Here is what I found."))
	h := newHarness(t, m, 2)

	reply := h.turn(t, "search for go releases")
	assert.Equal(t, "Here is what I found.", reply)
	assert.Len(t, h.search.Queries, 2)

	var searchCalls []llmtest.Invocation
	for _, c := range m.Calls() {
		if strings.Contains(c.System, markSearch) {
			searchCalls = append(searchCalls, c)
		}
	}
	require.Len(t, searchCalls, 3)
	assert.NotEmpty(t, searchCalls[0].Tools)
	assert.Empty(t, searchCalls[2].Tools, "the wrap-up call runs without tools")
}

func TestGraph_DropsToolsOutsideToolset(t *testing.T) {
	m := llmtest.New().
		On(markRedirector, llmtest.Text(nodes.NodeSearch)).
		On(markSearch, llmtest.ToolCalls(llmtest.Call(tools.ToolOpenApp, `{"app_name":"calc"}`))).
		On(markChatbot, llmtest.Text("I can't do that from here."))
	h := newHarness(t, m, 6)

	reply := h.turn(t, "look up something")
	assert.Equal(t, "I can't do that from here.", reply)
	for _, msg := range h.session.History {
		assert.NotEqual(t, schema.Tool, msg.Role)
		assert.Empty(t, msg.ToolCalls)
	}
}

func TestGraph_ChatbotApologyOnModelFailure(t *testing.T) {
	m := llmtest.New().
		On(markRedirector, llmtest.Fail(errors.New("router down"))).
		On(markChatbot, llmtest.Fail(errors.New("worker down")))
	h := newHarness(t, m, 6)

	reply := h.turn(t, "hello there")
	assert.Equal(t, nodes.ChatbotApology, reply)
	assert.Equal(t, nodes.ChatbotApology, h.last().Content)
	require.Len(t, h.session.History, 2)
}

func TestGraph_CalendarDeleteNeedsConfirmation(t *testing.T) {
	rangeJSON := map[string]string{"start_date": "2026-03-10T00:00:00Z", "end_date": "2026-03-10T23:59:59Z"}
	m := llmtest.New().
		On(markRedirector, llmtest.Text(nodes.NodeCalendar)).
		On(markCalQuery, llmtest.JSON(rangeJSON)).
		On(markCalRouter, llmtest.Text(nodes.NodeCalendarDelete)).
		On(markCalDelete, llmtest.JSON(map[string]any{"can_make": true, "event_id": "ev1", "confirmed": true})).
		On(markCalFinal, llmtest.Text("Your dentist appointment is gone."))
	h := newHarness(t, m, 6)

	question := h.turn(t, "delete the dentist appointment")
	ev, ok := model.FindEvent(mustEvents(t, h.session), "ev1")
	require.True(t, ok)
	assert.Equal(t, nodes.DeleteQuestion(ev), question)
	assert.Empty(t, h.calendar.Deleted, "the model's word alone is not a confirmation")
	require.NotNil(t, h.session.Pending)
	assert.Equal(t, "ev1", h.session.Pending.EventID)

	reply := h.turn(t, "yes")
	assert.Equal(t, "Your dentist appointment is gone.", reply)
	assert.Equal(t, []string{"ev1"}, h.calendar.Deleted)
	assert.Nil(t, h.session.Pending)

	// the confirmation skipped both routers and the range lookup
	assert.Equal(t, 1, m.CountMatching(markRedirector))
	assert.Equal(t, 1, m.CountMatching(markCalRouter))
	assert.Equal(t, 1, m.CountMatching(markCalQuery))
}

func TestGraph_StaleConfirmationIsIgnored(t *testing.T) {
	m := llmtest.New().
		On(markRedirector,
			llmtest.Text(nodes.NodeCalendar),
			llmtest.Text(nodes.NodeChatbot),
			llmtest.Text(nodes.NodeChatbot),
		).
		On(markCalQuery, llmtest.JSON(map[string]string{"start_date": "2026-03-10"})).
		On(markCalRouter, llmtest.Text(nodes.NodeCalendarDelete)).
		On(markCalDelete, llmtest.JSON(map[string]any{"can_make": true, "event_id": "ev1"})).
		Always(markChatbot, llmtest.Text("Okay."))
	h := newHarness(t, m, 6)

	h.turn(t, "remove the dentist")
	require.NotNil(t, h.session.Pending)

	h.turn(t, "what time is it")
	h.turn(t, "yes")
	assert.Empty(t, h.calendar.Deleted)
	assert.Nil(t, h.session.Pending)
}

func TestGraph_CalendarFetchFailureIsReported(t *testing.T) {
	m := llmtest.New().
		On(markRedirector, llmtest.Text(nodes.NodeCalendar)).
		On(markCalQuery, llmtest.Fail(errors.New("no range"))).
		On(markCalRouter, llmtest.Text(nodes.NodeCalendarFinal)).
		On(markCalFinal, llmtest.Fail(errors.New("worker down")))
	h := newHarness(t, m, 6)
	h.calendar.Err = errors.New("offline")

	reply := h.turn(t, "what's on today")
	assert.Equal(t, "Failed to fetch events: offline", reply)
	assert.Empty(t, h.session.Feedback)
}

func TestGraph_KeyboardModeLifecycle(t *testing.T) {
	m := llmtest.New().
		On(markRedirector, llmtest.Text(nodes.NodeKeyboard)).
		On(markToggle,
			llmtest.JSON(map[string]string{"next_mode": "keyboard"}),
			llmtest.JSON(map[string]string{"next_mode": "keyboard"}),
			llmtest.JSON(map[string]string{"next_mode": "normal"}),
		).
		On(markKbRouter, llmtest.Text(nodes.NodeChatbot), llmtest.Text(nodes.NodeKeyboardPresskey)).
		On(markPresskey, llmtest.JSON(map[string]string{"key": "enter"})).
		Always(markChatbot, llmtest.Text("Done."))
	h := newHarness(t, m, 6)

	h.turn(t, "switch to keyboard mode")
	assert.Equal(t, model.ModeKeyboard, h.session.Mode)
	assert.Contains(t, contents(h.session.History), nodes.KeyboardDomain.Entered())

	h.turn(t, "press enter")
	assert.Equal(t, model.ModeKeyboard, h.session.Mode)
	assert.Equal(t, []string{"press enter"}, h.keyboard.Events)

	h.turn(t, "exit keyboard mode")
	assert.Equal(t, model.ModeNormal, h.session.Mode)
	assert.Contains(t, contents(h.session.History), nodes.KeyboardDomain.Exited())

	// only the first turn went through the top-level router
	assert.Equal(t, 1, m.CountMatching(markRedirector))
	// the exit turn skipped the keyboard router
	assert.Equal(t, 2, m.CountMatching(markKbRouter))
	assert.Equal(t, 3, h.session.Turns)
}

func TestGraph_MistypedToolArgumentsKeepTheTurn(t *testing.T) {
	m := llmtest.New().
		On(markRedirector, llmtest.Text(nodes.NodeSearch)).
		On(markSearch,
			llmtest.ToolCalls(
				llmtest.Call(tools.ToolWebSearch, `{"query": 42}`),
				llmtest.Call(tools.ToolNewsSearch, `[1, 2]`),
			),
			llmtest.Text("Nothing useful came up."),
		).
		On(markChatbot, llmtest.Text("I couldn't find much."))
	h := newHarness(t, m, 6)

	reply := h.turn(t, "search for 42")
	assert.Equal(t, "I couldn't find much.", reply)
	assert.Equal(t, []string{"42"}, h.search.Queries)

	var results []string
	for _, msg := range h.session.History {
		if msg.Role == schema.Tool {
			results = append(results, msg.Content)
		}
	}
	require.Len(t, results, 2)
	assert.Contains(t, results, "Failed to search news: invalid arguments")
	assert.Equal(t, reply, h.last().Content)
}

func TestGraph_CalendarCreateAndUpdate(t *testing.T) {
	m := llmtest.New().
		On(markRedirector, llmtest.Text(nodes.NodeCalendar), llmtest.Text(nodes.NodeCalendar), llmtest.Text(nodes.NodeCalendar)).
		On(markCalQuery,
			llmtest.JSON(map[string]string{"start_date": "2026-03-11T00:00:00", "end_date": "2026-03-11T23:59:59"}),
			llmtest.JSON(map[string]string{"start_date": "2026-03-11T00:00:00", "end_date": "2026-03-11T23:59:59"}),
			llmtest.JSON(map[string]string{"start_date": "2026-03-10T00:00:00", "end_date": "2026-03-10T23:59:59"}),
		).
		On(markCalRouter,
			llmtest.Text(nodes.NodeCalendarCreate),
			llmtest.Text(nodes.NodeCalendarCreate),
			llmtest.Text(nodes.NodeCalendarUpdate),
		).
		On(markCalCreate,
			llmtest.JSON(map[string]any{"can_make": false, "name": "Meeting"}),
			llmtest.JSON(map[string]any{"can_make": true, "name": "Meeting", "start_date": "2026-03-11T17:00:00"}),
		).
		On(markCalUpdate, llmtest.JSON(map[string]any{"can_make": true, "event_id": "ev1", "start_date": "2026-03-10T16:00:00"})).
		Always(markCalFinal, llmtest.Fail(errors.New("worker down")))
	h := newHarness(t, m, 6)

	// missing time: feedback only, reported once and cleared
	reply := h.turn(t, "schedule a meeting tomorrow")
	assert.Contains(t, reply, "When should it be?")
	assert.Empty(t, h.calendar.Created)
	assert.Empty(t, h.session.Feedback)

	reply = h.turn(t, "schedule a meeting tomorrow at 5pm")
	assert.Equal(t, "Event 'Meeting' created successfully for March 11, 2026 at 05:00 PM to 06:00 PM", reply)
	require.Len(t, h.calendar.Created, 1)
	created := h.calendar.Created[0]
	assert.Equal(t, time.Date(2026, 3, 11, 17, 0, 0, 0, time.UTC), created.Start)
	assert.Equal(t, time.Hour, created.End.Sub(created.Start))
	assert.Empty(t, h.session.Feedback)
	assert.Equal(t, reply, h.last().Content)

	reply = h.turn(t, "move the dentist to 4pm")
	assert.Equal(t, "Updated 'Dentist' successfully for March 10, 2026 at 04:00 PM to 05:00 PM", reply)
	assert.Equal(t, []string{"ev1"}, h.calendar.Updated)
	ev, ok := model.FindEvent(mustEvents(t, h.session), "ev1")
	require.True(t, ok)
	assert.Equal(t, 16, ev.Start.Hour())

	// calendar turns end in calendar_final, never in the chatbot
	assert.Zero(t, m.CountMatching(markChatbot))
	assert.Equal(t, 3, h.session.Turns)
}

func TestGraph_ModeToggleNeedsExitWords(t *testing.T) {
	m := llmtest.New().
		On(markRedirector, llmtest.Text(nodes.NodeKeyboard)).
		On(markToggle,
			llmtest.JSON(map[string]string{"next_mode": "keyboard"}),
			llmtest.JSON(map[string]string{"next_mode": "normal"}),
		).
		Always(markKbRouter, llmtest.Text(nodes.NodeChatbot)).
		Always(markChatbot, llmtest.Text("Okay."))
	h := newHarness(t, m, 6)

	h.turn(t, "keyboard mode please")
	require.Equal(t, model.ModeKeyboard, h.session.Mode)

	h.turn(t, "that looks good")
	assert.Equal(t, model.ModeKeyboard, h.session.Mode)
	assert.NotContains(t, contents(h.session.History), nodes.KeyboardDomain.Exited())
	// still in the mode, so the keyboard router ran again
	assert.Equal(t, 2, m.CountMatching(markKbRouter))
}

func TestGraph_ChromeModeEntryAndClose(t *testing.T) {
	m := llmtest.New().
		On(markRedirector, llmtest.Text(nodes.NodeChrome)).
		On(markChromeTgl,
			llmtest.JSON(map[string]string{"next_mode": "chrome"}),
			llmtest.JSON(map[string]string{"next_mode": "chrome"}),
		).
		On(markChromeRtr, llmtest.Text(nodes.NodeChatbot), llmtest.Text(nodes.NodeChromeClose)).
		Always(markChatbot, llmtest.Text("Okay."))
	h := newHarness(t, m, 6)

	h.turn(t, "open chrome")
	assert.Equal(t, model.ModeChrome, h.session.Mode)
	assert.Contains(t, contents(h.session.History), nodes.ChromeDomain.Entered())

	reply := h.turn(t, "close the chrome window")
	assert.Equal(t, "Okay.", reply)
	assert.Equal(t, model.ModeNormal, h.session.Mode)
	assert.True(t, h.browser.Closed)
	assert.Contains(t, contents(h.session.History), nodes.ChromeDomain.Exited())
	assert.Empty(t, h.session.Feedback)

	calls := m.Calls()
	last := calls[len(calls)-1]
	require.Contains(t, last.System, markChatbot)
	assert.Contains(t, last.System, "Closed the Chrome window.")
	assert.Equal(t, 1, m.CountMatching(markRedirector))
}

func TestGraph_YouTube(t *testing.T) {
	m := llmtest.New().
		Always(markRedirector, llmtest.Text(nodes.NodeYouTube)).
		On(markYouTube,
			llmtest.JSON(map[string]any{"search_text": "lofi beats", "play_directly": true}),
			llmtest.JSON(map[string]any{"search_text": "cat videos", "play_directly": false}),
		).
		Always(markChatbot, llmtest.Text("Enjoy."))
	h := newHarness(t, m, 6)
	h.media.Videos = []tools.Video{{Title: "Lofi Girl", URL: "https://www.youtube.com/watch?v=abc"}}

	assert.Equal(t, "Enjoy.", h.turn(t, "play lofi beats"))
	require.Len(t, h.media.Played, 1)
	assert.Equal(t, "Lofi Girl", h.media.Played[0].Title)
	calls := m.Calls()
	assert.Contains(t, calls[len(calls)-1].System, "Playing 'Lofi Girl' on YouTube.")

	h.turn(t, "show me cat videos on youtube")
	assert.Equal(t, []string{"cat videos"}, h.media.Searched)
	assert.Empty(t, h.session.Feedback)
}

func TestSanitizeArguments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]any
	}{
		{"trims strings", `{"query":"  news  "}`, map[string]any{"query": "news"}},
		{"clamps level", `{"level":150}`, map[string]any{"level": float64(100)}},
		{"numeric strings", `{"max_results":"25"}`, map[string]any{"max_results": float64(10)}},
		{"drops unreadable numbers", `{"tab_index":"second","url":"x"}`, map[string]any{"url": "x"}},
		{"bool strings", `{"setting":"wifi","enable":"true"}`, map[string]any{"setting": "wifi", "enable": true}},
		{"unreadable bools", `{"setting":"wifi","enable":"maybe"}`, map[string]any{"setting": "wifi"}},
		{"numbers in string fields", `{"query":42,"url":1.5,"city":true}`, map[string]any{"query": "42", "url": "1.5", "city": "true"}},
		{"null strings", `{"query":null}`, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			require.NoError(t, json.Unmarshal([]byte(sanitizeArguments(tt.in)), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "not json", sanitizeArguments("not json"))
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 0, clampInt(-3, 0, 10))
	assert.Equal(t, 10, clampInt(42, 0, 10))
	assert.Equal(t, 7, clampInt(7, 0, 10))
}

func mustEvents(t *testing.T, s *model.SessionState) []model.CalendarEventRef {
	t.Helper()
	events, ok := model.GetScratch[[]model.CalendarEventRef](s, model.ScratchCalendarEvents)
	require.True(t, ok)
	return events
}

func contents(msgs []*schema.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
