package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	amodel "github.com/voice-assistant/server/internal/assistant/model"
	logx "github.com/voice-assistant/server/pkg/logger"
	"github.com/voice-assistant/server/pkg/metrics"
)

// LoopNode describes a tool-calling node: which prompt it renders and which
// toolset the shared loop offers the model.
type LoopNode struct {
	Name     string
	Toolset  string
	Template string
	Action   string
	// Vars and Context are optional. Context is prepended to the human prompt.
	Vars    func(d *Deps) prompts.Vars
	Context func(ctx context.Context, d *Deps) string
}

// LoopNodes lists every tool-calling node of the graph.
var LoopNodes = []LoopNode{
	{Name: NodeSearch, Toolset: tools.SetSearch, Template: prompts.Search, Action: "search for information"},
	{Name: NodeBrowser, Toolset: tools.SetBrowser, Template: prompts.Browser, Action: "browse the web"},
	{Name: NodeSystem, Toolset: tools.SetSystem, Template: prompts.System, Action: "change system settings"},
	{Name: NodeSoftware, Toolset: tools.SetSoftware, Template: prompts.Software, Action: "manage software"},
	{Name: NodeChromeTab, Toolset: tools.SetChromeTab, Template: prompts.ChromeTab, Action: "manage Chrome tabs", Context: browserTabs},
	{Name: NodeChromeFunc, Toolset: tools.SetChromeFunc, Template: prompts.ChromeFunc, Action: "control the Chrome page", Context: browserTabs},
	{Name: NodeFilesTab, Toolset: tools.SetFilesTab, Template: prompts.FilesTab, Action: "manage file explorer tabs", Vars: fileRoots, Context: explorerTabs},
	{Name: NodeFilesRead, Toolset: tools.SetFilesRead, Template: prompts.FilesRead, Action: "read files", Vars: fileRoots},
	{Name: NodeFilesWrite, Toolset: tools.SetFilesWrite, Template: prompts.FilesWrite, Action: "change files", Vars: fileRoots},
}

// NewToolLoopEntryNode renders the node's prompt and starts a fresh loop on it.
func NewToolLoopEntryNode(d *Deps, entry LoopNode) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) ([]*schema.Message, error) {
		v, err := view(ctx)
		if err != nil {
			return nil, err
		}

		vars := prompts.Vars{"Mode": v.Mode.String()}
		if entry.Vars != nil {
			for k, val := range entry.Vars(d) {
				vars[k] = val
			}
		}
		human := d.humanPrompt(v, true)
		if entry.Context != nil {
			if extra := entry.Context(ctx, d); extra != "" {
				human = extra + "\n\n" + human
			}
		}

		msgs, err := d.Prompts.Render(ctx, entry.Template, vars, human)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name, err)
		}

		err = withState(ctx, func(st *amodel.AppState) error {
			st.Loop = amodel.LoopState{
				Node:       entry.Name,
				Toolset:    entry.Toolset,
				Action:     entry.Action,
				Transcript: append([]*schema.Message(nil), msgs...),
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		logx.Debug().Str("thread_id", v.ThreadID).Str("node", entry.Name).Str("toolset", entry.Toolset).Msg("Tool loop started")
		return msgs, nil
	})
}

// NewToolModelPreHandler feeds the loop transcript to the model. Once the
// round cap is hit it adds a wrap-up notice and the model runs without tools.
func NewToolModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *amodel.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, _ []*schema.Message, state *amodel.AppState) ([]*schema.Message, error) {
		if checkAndMarkToolLimit(&state.Loop, maxToolCalls) {
			maxToolCalls = normalizeMaxToolCalls(maxToolCalls)
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
						"Please synthesize a helpful response using the information you've already gathered. "+
						"Acknowledge any limitations in your response if you couldn't complete all necessary tool calls.",
					maxToolCalls,
				),
			}
			state.Loop.Transcript = append(state.Loop.Transcript, wrapUp)
		}

		logx.Debug().Str("node", state.Loop.Node).Int("round", state.Loop.Calls).Msg("AI thinking...")
		return append([]*schema.Message(nil), state.Loop.Transcript...), nil
	}
}

// NewToolModelNode calls the worker with the loop's toolset bound for this call only.
func NewToolModelNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in []*schema.Message) (*schema.Message, error) {
		var loop amodel.LoopState
		var threadID string
		if err := withState(ctx, func(st *amodel.AppState) error {
			loop = st.Loop
			threadID = st.Session.ThreadID
			return nil
		}); err != nil {
			return nil, err
		}

		var opts []model.Option
		if !loop.LimitReached {
			infos, err := d.Registry.Infos(ctx, loop.Toolset)
			if err != nil {
				return nil, err
			}
			opts = append(opts, model.WithTools(infos))
		}

		out, err := d.Worker.Generate(ctx, in, opts...)
		if err == nil && out == nil {
			err = fmt.Errorf("empty model response")
		}
		if err != nil {
			logx.Error().
				Str("thread_id", threadID).
				Str("node", loop.Node).
				Err(err).
				Msg("Tool loop model call failed")
			return schema.AssistantMessage(fmt.Sprintf("Failed to %s: %v", loop.Action, err), nil), nil
		}
		return out, nil
	})
}

// NewToolModelPostHandler gives every tool call an id, drops calls outside the
// node's toolset and records the reply in both the transcript and the history.
func NewToolModelPostHandler() func(context.Context, *schema.Message, *amodel.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *amodel.AppState) (*schema.Message, error) {
		if out == nil {
			return out, nil
		}
		if out.Role == "" {
			out.Role = schema.Assistant
		}

		if len(out.ToolCalls) > 0 {
			kept := out.ToolCalls[:0]
			for _, tc := range out.ToolCalls {
				if !tools.InSet(state.Loop.Toolset, tc.Function.Name) {
					metrics.ToolCalls.WithLabelValues(tc.Function.Name, "unknown").Inc()
					logx.Warn().
						Str("thread_id", state.Session.ThreadID).
						Str("node", state.Loop.Node).
						Str("tool_name", tc.Function.Name).
						Msg("Dropping tool call outside the node's toolset")
					continue
				}
				// Normalize tool calls: some providers (Gemini OpenAI-compat) may omit tool_call IDs.
				if strings.TrimSpace(tc.ID) == "" {
					state.ToolCallIDSeq++
					tc.ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
				}
				kept = append(kept, tc)
			}
			out.ToolCalls = kept
			if len(kept) == 0 && strings.TrimSpace(out.Content) == "" {
				out.Content = fmt.Sprintf("Failed to %s: the requested tool is not available here", state.Loop.Action)
			}
		}

		state.Loop.Transcript = append(state.Loop.Transcript, out)
		state.Session.Append(out)

		// Clean logging for tool calls and responses
		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Msg("AI response ready")
		}
		return out, nil
	}
}

// NewToolExecutorCondition routes the model reply back into the tools or on
// to the response node.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		// Check if tool limit was reached
		var limitReached bool
		if err := compose.ProcessState(ctx, func(_ context.Context, state *amodel.AppState) error {
			limitReached = state.Loop.LimitReached
			return nil
		}); err != nil {
			return "", err
		}

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to response")
			return NodeChatbot, nil
		}
		if input != nil && len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}

		logx.Debug().Msg("No tool calls - continuing to response")
		return NodeChatbot, nil
	}
}

// NewToolExecutorPreHandler counts one tool round.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *amodel.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *amodel.AppState) (*schema.Message, error) {
		exceeded := incrementToolCallAndCheck(&state.Loop, maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.Loop.Calls).
			Str("thread_id", state.Session.ThreadID).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.Loop.Calls).
				Int("max_tool_calls", normalizeMaxToolCalls(maxToolCalls)).
				Str("thread_id", state.Session.ThreadID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}
		return in, nil
	}
}

// NewToolExecutorPostHandler records tool results in emission order, making
// sure each one names its tool and correlates to a call.
func NewToolExecutorPostHandler() func(context.Context, []*schema.Message, *amodel.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, state *amodel.AppState) ([]*schema.Message, error) {
		calls := lastToolCalls(state.Loop.Transcript)
		for i, msg := range out {
			if msg == nil {
				continue
			}
			// Heuristic fix for Gemini OpenAI-compat: ensure tool results carry tool_call_id
			if strings.TrimSpace(msg.ToolCallID) == "" && i < len(calls) {
				msg.ToolCallID = calls[i].ID
			}
			if msg.ToolName == "" {
				for _, tc := range calls {
					if tc.ID == msg.ToolCallID {
						msg.ToolName = tc.Function.Name
						break
					}
				}
			}
			state.Loop.Transcript = append(state.Loop.Transcript, msg)
			state.Session.Append(msg)
		}
		return out, nil
	}
}

func lastToolCalls(transcript []*schema.Message) []schema.ToolCall {
	for i := len(transcript) - 1; i >= 0; i-- {
		if m := transcript[i]; m != nil && m.Role == schema.Assistant && len(m.ToolCalls) > 0 {
			return m.ToolCalls
		}
	}
	return nil
}

func browserTabs(ctx context.Context, d *Deps) string {
	if d.Browser == nil {
		return ""
	}
	ctx, cancel := d.collaborator(ctx)
	defer cancel()
	tabs, err := d.Browser.Tabs(ctx)
	if err != nil || len(tabs) == 0 {
		return ""
	}
	return "Open Chrome tabs:\n" + tools.FormatTabs(tabs)
}

func explorerTabs(ctx context.Context, d *Deps) string {
	if d.Files == nil {
		return ""
	}
	ctx, cancel := d.collaborator(ctx)
	defer cancel()
	tabs, err := d.Files.Tabs(ctx)
	if err != nil || len(tabs) == 0 {
		return ""
	}
	return "Open explorer tabs:\n" + tools.FormatTabs(tabs)
}

func fileRoots(d *Deps) prompts.Vars {
	roots := "none configured"
	if d.Files != nil && len(d.Files.Roots()) > 0 {
		roots = strings.Join(d.Files.Roots(), ", ")
	}
	return prompts.Vars{"Roots": roots}
}
