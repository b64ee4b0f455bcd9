package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voice-assistant/server/internal/assistant/llm/llmtest"
)

type decision struct {
	CanMake  bool   `json:"can_make"`
	Feedback string `json:"feedback"`
	EventID  string `json:"event_id"`
}

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    decision
	}{
		{"plain", `{"can_make":true,"event_id":"e1"}`, decision{CanMake: true, EventID: "e1"}},
		{"fenced", "```json\n{\"can_make\":false,\"feedback\":\"need a time\"}\n```", decision{Feedback: "need a time"}},
		{"prose around", `Sure! Here it is: {"event_id":"e2"} hope that helps`, decision{EventID: "e2"}},
		{"trailing comma", `{"can_make":true,"event_id":"e3",}`, decision{CanMake: true, EventID: "e3"}},
		{"missing brace", `{"can_make":true,"event_id":"e4"`, decision{CanMake: true, EventID: "e4"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got decision
			require.NoError(t, Parse(tc.content, &got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseUnparseable(t *testing.T) {
	var got decision
	err := Parse("I cannot help with that.", &got)
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestIntoAppendsInstructionToSystemPrompt(t *testing.T) {
	fake := llmtest.New().On("calendar assistant", llmtest.Text(`{"can_make":true,"event_id":"e1"}`))
	msgs := []*schema.Message{schema.SystemMessage("You are a calendar assistant."), schema.UserMessage("delete it")}

	var got decision
	require.NoError(t, Into(context.Background(), fake, msgs, `{"can_make": bool}`, &got))
	assert.True(t, got.CanMake)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "Respond with a single JSON object")
	assert.Equal(t, "You are a calendar assistant.", msgs[0].Content, "caller messages must not be mutated")
}

func TestIntoReadsToolCallArguments(t *testing.T) {
	fake := llmtest.New().Then(llmtest.ToolCalls(llmtest.Call("answer", `{"event_id":"e9"}`)))

	var got decision
	require.NoError(t, Into(context.Background(), fake, []*schema.Message{schema.UserMessage("x")}, "{}", &got))
	assert.Equal(t, "e9", got.EventID)
}

func TestIntoTransportErrorIsNotUnparseable(t *testing.T) {
	boom := errors.New("connection refused")
	fake := llmtest.New().Then(llmtest.Fail(boom))

	var got decision
	err := Into(context.Background(), fake, nil, "{}", &got)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrUnparseable))
}
