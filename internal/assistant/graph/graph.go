package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/graph/conversations"
	"github.com/voice-assistant/server/internal/assistant/graph/edges"
	"github.com/voice-assistant/server/internal/assistant/graph/nodes"
	"github.com/voice-assistant/server/internal/assistant/graph/observers"
	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	"github.com/voice-assistant/server/internal/assistant/llm"
	amodel "github.com/voice-assistant/server/internal/assistant/model"
	logx "github.com/voice-assistant/server/pkg/logger"
	"github.com/voice-assistant/server/pkg/metrics"
)

// Runner executes one turn on the compiled graph.
type Runner interface {
	Invoke(ctx context.Context, in *amodel.TurnInput) (*amodel.TurnResult, error)
}

// Collaborators are the external systems the graph drives. Any of them may be
// nil; the matching tools and nodes then answer "not available".
type Collaborators struct {
	Search   tools.Search
	Browser  tools.Browser
	Files    tools.FileManager
	System   tools.System
	Software tools.Software
	Calendar tools.Calendar
	Keyboard tools.Keyboard
	Media    tools.Media
}

// Config holds everything needed to compose the full graph end-to-end.
// This is a convenience layer over GraphConfig that also builds the prompt
// renderer, history formatter and tool registry.
type Config struct {
	Models        *llm.ChatModels
	Assistant     amodel.AssistantConfig
	Collaborators Collaborators
	// Prompts is optional; tests pass one with a fixed clock.
	Prompts *prompts.Renderer
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	Router       model.BaseChatModel
	Nodes        *nodes.Deps
	ToolMaxCalls int
}

// GraphBuilder handles the construction of the assistant graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[*amodel.TurnInput, *amodel.TurnResult]
}

type graphRunner struct {
	runnable compose.Runnable[*amodel.TurnInput, *amodel.TurnResult]
}

func (r *graphRunner) Invoke(ctx context.Context, in *amodel.TurnInput) (*amodel.TurnResult, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return nil, err
	}
	if out == nil || out.Session == nil {
		return nil, fmt.Errorf("graph returned no session")
	}
	return out, nil
}

// Build wires prompts, formatter and tools around the chat models and returns a Runner.
func Build(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Models == nil || cfg.Models.Router == nil || cfg.Models.Worker == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}

	renderer := cfg.Prompts
	if renderer == nil {
		var err error
		renderer, err = prompts.NewRenderer(cfg.Assistant)
		if err != nil {
			return nil, err
		}
	}

	c := cfg.Collaborators
	registry := tools.NewRegistry(tools.Deps{
		Search:   c.Search,
		Browser:  c.Browser,
		Files:    c.Files,
		System:   c.System,
		Software: c.Software,
		Model:    cfg.Models.Worker,
		Prompts:  renderer,
		Timeout:  cfg.Assistant.ToolTimeout,
	})

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Router: cfg.Models.Router,
		Nodes: &nodes.Deps{
			Worker:       cfg.Models.Worker,
			Prompts:      renderer,
			Formatter:    conversations.NewFormatter(cfg.Assistant.History.MaxMessages),
			Registry:     registry,
			Calendar:     c.Calendar,
			Keyboard:     c.Keyboard,
			Media:        c.Media,
			Browser:      c.Browser,
			Files:        c.Files,
			MaxToolCalls: cfg.Assistant.Tools.MaxCalls,
			ToolTimeout:  cfg.Assistant.ToolTimeout,
		},
		ToolMaxCalls: cfg.Assistant.Tools.MaxCalls,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Assistant graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled assistant graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[*amodel.TurnInput, *amodel.TurnResult], error) {
	// Basic config validation
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Router == nil {
		return nil, fmt.Errorf("router model is nil")
	}
	if err := config.Nodes.Validate(); err != nil {
		return nil, err
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[*amodel.TurnInput, *amodel.TurnResult](
			compose.WithGenLocalState(func(ctx context.Context) *amodel.AppState {
				return &amodel.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools registers the shared tools node. Each tool-calling node only
// offers its own toolset to the model; the node executes whichever was called.
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               b.config.Nodes.Registry.All(),
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Gracefully handle hallucinated or malformed tool calls (e.g., empty name)
			metrics.ToolCalls.WithLabelValues(name, "unknown").Inc()
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("Failed to run %s: no such tool", name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			return sanitizeArguments(arguments), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewToolExecutorPostHandler()),
	)
	return nil
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	d := b.config.Nodes

	b.graph.AddLambdaNode(nodes.NodeInput, nodes.NewInputNode(),
		compose.WithStatePreHandler(nodes.NewInputPreHandler()),
	)
	b.graph.AddLambdaNode(nodes.NodeChatbot, nodes.NewChatbotNode(d))
	b.graph.AddLambdaNode(nodes.NodeOutput, nodes.NewOutputNode())

	// Shared bounded tool loop
	for _, entry := range nodes.LoopNodes {
		b.graph.AddLambdaNode(entry.Name, nodes.NewToolLoopEntryNode(d, entry))
	}
	b.graph.AddLambdaNode(nodes.NodeToolModel, nodes.NewToolModelNode(d),
		compose.WithStatePreHandler(nodes.NewToolModelPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewToolModelPostHandler()),
	)

	// Calendar sub-flow
	b.graph.AddLambdaNode(nodes.NodeCalendar, nodes.NewCalendarQueryNode(d))
	b.graph.AddLambdaNode(nodes.NodeCalendarCreate, nodes.NewCalendarCreateNode(d))
	b.graph.AddLambdaNode(nodes.NodeCalendarUpdate, nodes.NewCalendarUpdateNode(d))
	b.graph.AddLambdaNode(nodes.NodeCalendarDelete, nodes.NewCalendarDeleteNode(d))
	b.graph.AddLambdaNode(nodes.NodeCalendarFinal, nodes.NewCalendarFinalNode(d))

	// Modes
	b.graph.AddLambdaNode(nodes.NodeChrome, nodes.NewModeToggleNode(d, nodes.ChromeDomain))
	b.graph.AddLambdaNode(nodes.NodeChromeClose, nodes.NewChromeCloseNode(d))
	b.graph.AddLambdaNode(nodes.NodeFiles, nodes.NewModeToggleNode(d, nodes.FilesDomain))
	b.graph.AddLambdaNode(nodes.NodeFilesClose, nodes.NewFilesCloseNode(d))
	b.graph.AddLambdaNode(nodes.NodeKeyboard, nodes.NewModeToggleNode(d, nodes.KeyboardDomain))
	b.graph.AddLambdaNode(nodes.NodeKeyboardHotkey, nodes.NewKeyboardHotkeyNode(d))
	b.graph.AddLambdaNode(nodes.NodeKeyboardPresskey, nodes.NewKeyboardPresskeyNode(d))
	b.graph.AddLambdaNode(nodes.NodeKeyboardWrite, nodes.NewKeyboardWriteNode(d))

	b.graph.AddLambdaNode(nodes.NodeYouTube, nodes.NewYouTubeNode(d))
}

// addEdges creates the fixed connections between nodes
func (b *GraphBuilder) addEdges() {
	links := [][2]string{
		{compose.START, nodes.NodeInput},
		{nodes.NodeToolExecutor, nodes.NodeToolModel},
		{nodes.NodeCalendarCreate, nodes.NodeCalendarFinal},
		{nodes.NodeCalendarUpdate, nodes.NodeCalendarFinal},
		{nodes.NodeCalendarDelete, nodes.NodeCalendarFinal},
		{nodes.NodeCalendarFinal, nodes.NodeOutput},
		{nodes.NodeChromeClose, nodes.NodeChatbot},
		{nodes.NodeFilesClose, nodes.NodeChatbot},
		{nodes.NodeKeyboardHotkey, nodes.NodeChatbot},
		{nodes.NodeKeyboardPresskey, nodes.NodeChatbot},
		{nodes.NodeKeyboardWrite, nodes.NodeChatbot},
		{nodes.NodeYouTube, nodes.NodeChatbot},
		{nodes.NodeChatbot, nodes.NodeOutput},
		{nodes.NodeOutput, compose.END},
	}
	for _, entry := range nodes.LoopNodes {
		links = append(links, [2]string{entry.Name, nodes.NodeToolModel})
	}

	for _, edge := range links {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates the classifier-driven routing
func (b *GraphBuilder) addBranches() error {
	d := b.config.Nodes
	router := b.config.Router

	redirector := edges.NewRedirector(d.Prompts, d.Formatter)
	calendar := edges.NewCalendarRouter(d.Prompts, d.Formatter)
	chrome := edges.NewChromeRouter(d.Prompts, d.Formatter)
	files := edges.NewFilesRouter(d.Prompts, d.Formatter)
	keyboard := edges.NewKeyboardRouter(d.Prompts, d.Formatter)

	branches := []struct {
		from string
		cond edges.Condition
		to   []string
	}{
		{nodes.NodeInput, edges.NewRedirectorCondition(redirector, router), redirector.Labels},
		{nodes.NodeCalendar, edges.NewCalendarCondition(calendar, router), calendar.Labels},
		{nodes.NodeChrome, edges.NewDomainCondition(chrome, router, amodel.ModeChrome), chrome.Labels},
		{nodes.NodeFiles, edges.NewDomainCondition(files, router, amodel.ModeFileManager), files.Labels},
		{nodes.NodeKeyboard, edges.NewDomainCondition(keyboard, router, amodel.ModeKeyboard), keyboard.Labels},
	}
	for _, br := range branches {
		branch := compose.NewGraphBranch(compose.GraphBranchCondition[*schema.Message](br.cond), endNodes(br.to...))
		if err := b.graph.AddBranch(br.from, branch); err != nil {
			logx.Error().Err(err).Str("from", br.from).Msg("Error adding routing branch")
			return fmt.Errorf("error adding %s branch: %w", br.from, err)
		}
	}

	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		endNodes(nodes.NodeToolExecutor, nodes.NodeChatbot),
	)
	if err := b.graph.AddBranch(nodes.NodeToolModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*amodel.TurnInput, *amodel.TurnResult], error) {
	// Limit total run steps to avoid infinite loops in branching or tool retries
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(nodes.MaxRunSteps(b.config.ToolMaxCalls)))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

func endNodes(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// intArgs are clamped to these bounds before a tool sees them.
var intArgs = map[string][2]int{
	"tab_index":   {0, 99},
	"level":       {0, 100},
	"max_results": {1, 10},
	"steps":       {1, 20},
	"step_height": {50, 2000},
}

// sanitizeArguments trims strings and coerces numbers and booleans that
// models send as strings. It never fails: anything it cannot read is passed on.
func sanitizeArguments(arguments string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		// keep original if not JSON; the tool repairs it
		return arguments
	}

	for k, v := range m {
		if bounds, ok := intArgs[k]; ok {
			switch vv := v.(type) {
			case float64:
				// JSON numbers decode as float64
				m[k] = clampInt(int(vv), bounds[0], bounds[1])
			case string:
				if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
					m[k] = clampInt(n, bounds[0], bounds[1])
				} else {
					delete(m, k)
				}
			default:
				delete(m, k)
			}
			continue
		}
		if k == "enable" {
			switch vv := v.(type) {
			case bool:
			case float64:
				m[k] = vv != 0
			case string:
				if bv, err := strconv.ParseBool(strings.TrimSpace(vv)); err == nil {
					m[k] = bv
				} else {
					delete(m, k)
				}
			default:
				delete(m, k)
			}
			continue
		}
		// every other tool argument is a string
		switch vv := v.(type) {
		case string:
			m[k] = strings.TrimSpace(vv)
		case float64:
			m[k] = strconv.FormatFloat(vv, 'f', -1, 64)
		case bool:
			m[k] = strconv.FormatBool(vv)
		case nil:
			delete(m, k)
		default:
			m[k] = strings.TrimSpace(fmt.Sprint(v))
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		// fallback to original
		return arguments
	}
	return string(b)
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
