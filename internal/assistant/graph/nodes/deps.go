package nodes

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/voice-assistant/server/internal/assistant/graph/conversations"
	"github.com/voice-assistant/server/internal/assistant/graph/extract"
	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
	"github.com/voice-assistant/server/internal/assistant/graph/tools"
)

// Deps are shared by every node of the graph.
type Deps struct {
	Worker    model.BaseChatModel
	Prompts   *prompts.Renderer
	Formatter *conversations.Formatter
	Registry  *tools.Registry

	// Collaborators driven directly by structured nodes. Nil means unavailable.
	Calendar tools.Calendar
	Keyboard tools.Keyboard
	Media    tools.Media
	Browser  tools.Browser
	Files    tools.FileManager

	MaxToolCalls int
	ToolTimeout  time.Duration
}

// Validate reports missing required dependencies.
func (d *Deps) Validate() error {
	switch {
	case d == nil:
		return errors.New("node deps are nil")
	case d.Worker == nil:
		return errors.New("worker model is nil")
	case d.Prompts == nil:
		return errors.New("prompt renderer is nil")
	case d.Registry == nil:
		return errors.New("tool registry is nil")
	}
	if d.Formatter == nil {
		d.Formatter = conversations.NewFormatter(0)
	}
	return nil
}

// collaborator returns a context bounded by the tool timeout.
func (d *Deps) collaborator(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := d.ToolTimeout
	if timeout <= 0 {
		timeout = tools.DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// structured renders a template and decodes the worker's JSON answer into out.
func (d *Deps) structured(ctx context.Context, tmpl string, vars prompts.Vars, human, hint string, out any) error {
	msgs, err := d.Prompts.Render(ctx, tmpl, vars, human)
	if err != nil {
		return err
	}
	return extract.Into(ctx, d.Worker, msgs, hint, out)
}

// humanPrompt is the dialogue window plus the utterance being handled.
func (d *Deps) humanPrompt(v turnView, withTools bool) string {
	history := d.Formatter.WithoutTools(v.History)
	if withTools {
		history = d.Formatter.WithTools(v.History)
	}
	return history + "\nLatest user message: " + v.Query
}
