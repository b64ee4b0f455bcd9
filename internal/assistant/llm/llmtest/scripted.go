// Package llmtest provides a scripted chat model for graph and node tests.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrNoReply is returned when nothing scripted matches a call.
var ErrNoReply = errors.New("llmtest: no scripted reply")

// Reply is one scripted model answer.
type Reply struct {
	Msg *schema.Message
	Err error
}

func Text(content string) Reply {
	return Reply{Msg: schema.AssistantMessage(content, nil)}
}

// JSON replies with v marshalled as the message content.
func JSON(v any) Reply {
	b, err := json.Marshal(v)
	if err != nil {
		return Reply{Err: err}
	}
	return Reply{Msg: schema.AssistantMessage(string(b), nil)}
}

// ToolCalls replies with tool calls and no content. IDs are left empty so
// callers exercise id synthesis.
func ToolCalls(calls ...schema.FunctionCall) Reply {
	tcs := make([]schema.ToolCall, 0, len(calls))
	for _, c := range calls {
		tcs = append(tcs, schema.ToolCall{Type: "function", Function: c})
	}
	return Reply{Msg: schema.AssistantMessage("", tcs)}
}

func Call(name, args string) schema.FunctionCall {
	return schema.FunctionCall{Name: name, Arguments: args}
}

func Fail(err error) Reply {
	return Reply{Err: err}
}

// Invocation records one Generate call.
type Invocation struct {
	System string
	Human  string
	Input  []*schema.Message
	Tools  []*schema.ToolInfo
}

type rule struct {
	marker  string
	replies []Reply
	sticky  bool
}

// Scripted answers by matching a marker against the system prompt, then falls
// back to a FIFO queue.
type Scripted struct {
	mu    sync.Mutex
	rules []*rule
	queue []Reply
	calls []Invocation
}

func New() *Scripted {
	return &Scripted{}
}

// On queues replies for calls whose system prompt contains marker.
func (s *Scripted) On(marker string, replies ...Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &rule{marker: marker, replies: replies})
	return s
}

// Always answers every matching call with reply.
func (s *Scripted) Always(marker string, reply Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &rule{marker: marker, replies: []Reply{reply}, sticky: true})
	return s
}

// Then appends replies to the fallback queue.
func (s *Scripted) Then(replies ...Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, replies...)
	return s
}

func (s *Scripted) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{}, opts...)
	inv := Invocation{Input: input, Tools: options.Tools}
	for _, m := range input {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.System:
			if inv.System == "" {
				inv.System = m.Content
			}
		case schema.User:
			inv.Human = m.Content
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, inv)

	for _, r := range s.rules {
		if len(r.replies) == 0 || !strings.Contains(inv.System, r.marker) {
			continue
		}
		reply := r.replies[0]
		if !r.sticky {
			r.replies = r.replies[1:]
		}
		return reply.result()
	}
	if len(s.queue) > 0 {
		reply := s.queue[0]
		s.queue = s.queue[1:]
		return reply.result()
	}
	return nil, ErrNoReply
}

func (s *Scripted) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := s.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (r Reply) result() (*schema.Message, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	// hand out a copy so callers may annotate it
	c := *r.Msg
	if len(r.Msg.ToolCalls) > 0 {
		c.ToolCalls = append([]schema.ToolCall(nil), r.Msg.ToolCalls...)
	}
	return &c, nil
}

// Calls returns a snapshot of every invocation so far.
func (s *Scripted) Calls() []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Invocation(nil), s.calls...)
}

// CallCount returns how many times Generate ran.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// CountMatching returns how many calls had marker in their system prompt.
func (s *Scripted) CountMatching(marker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.Contains(c.System, marker) {
			n++
		}
	}
	return n
}

var _ model.BaseChatModel = (*Scripted)(nil)
