package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/graph/conversations"
	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	"github.com/voice-assistant/server/internal/assistant/model"
	logx "github.com/voice-assistant/server/pkg/logger"
)

// Domain names a modal sub-graph.
type Domain struct {
	Mode  model.Mode
	Name  string // as used in prompts: "keyboard", "Chrome", "file manager"
	Title string // sentence start: "Keyboard", "Chrome", "File manager"
}

var (
	KeyboardDomain = Domain{Mode: model.ModeKeyboard, Name: "keyboard", Title: "Keyboard"}
	ChromeDomain   = Domain{Mode: model.ModeChrome, Name: "Chrome", Title: "Chrome"}
	FilesDomain    = Domain{Mode: model.ModeFileManager, Name: "file manager", Title: "File manager"}
)

func (d Domain) Entered() string { return "Entered " + d.Name + " mode." }
func (d Domain) Exited() string  { return d.Title + " mode has been exited." }

type toggleExtraction struct {
	NextMode string `json:"next_mode"`
}

// NewModeToggleNode decides whether the session enters, stays in or leaves
// the domain's mode. It is the only writer of the mode for its domain. Leaving
// takes both the model saying so and an explicit exit phrase in the utterance.
func NewModeToggleNode(d *Deps, dom Domain) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		v, err := view(ctx)
		if err != nil {
			return nil, err
		}

		next := dom.Mode
		var out toggleExtraction
		hint := fmt.Sprintf(`{"next_mode": "%s" | "normal"}`, dom.Mode)
		vars := prompts.Vars{"Domain": dom.Name, "Mode": v.Mode.String()}
		if err := d.structured(ctx, prompts.ModeToggle, vars, d.humanPrompt(v, false), hint, &out); err != nil {
			logx.Warn().Str("thread_id", v.ThreadID).Str("domain", dom.Name).Err(err).Msg("Mode toggle extraction failed; staying in mode")
		} else if model.ParseMode(out.NextMode).IsNormal() && conversations.HasExitIntent(v.Query) {
			next = model.ModeNormal
		}

		var msg *schema.Message
		err = withSession(ctx, func(s *model.SessionState) error {
			prev := s.Mode
			if prev == "" {
				prev = model.ModeNormal
			}
			switch {
			case prev != dom.Mode && next == dom.Mode:
				msg = schema.AssistantMessage(dom.Entered(), nil)
			case prev == dom.Mode && next != dom.Mode:
				msg = schema.AssistantMessage(dom.Exited(), nil)
			}
			s.Mode = next
			s.Append(msg)
			return nil
		})
		if err != nil {
			return nil, err
		}

		logx.Debug().
			Str("thread_id", v.ThreadID).
			Str("domain", dom.Name).
			Str("from", v.Mode.String()).
			Str("to", next.String()).
			Msg("Mode toggle")
		if msg == nil {
			return schema.AssistantMessage("", nil), nil
		}
		return msg, nil
	})
}

// closer releases a domain's collaborator.
type closer interface {
	Close(ctx context.Context) error
}

// NewChromeCloseNode closes the browser window and leaves Chrome mode.
func NewChromeCloseNode(d *Deps) *compose.Lambda {
	var c closer
	if d.Browser != nil {
		c = d.Browser
	}
	return newCloseNode(d, ChromeDomain, "Chrome window", c)
}

// NewFilesCloseNode closes the explorer and leaves file manager mode.
func NewFilesCloseNode(d *Deps) *compose.Lambda {
	var c closer
	if d.Files != nil {
		c = d.Files
	}
	return newCloseNode(d, FilesDomain, "file manager window", c)
}

func newCloseNode(d *Deps, dom Domain, what string, c closer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		result := "Closed the " + what + "."
		if c == nil {
			result = fmt.Sprintf("Failed to close the %s: %v", what, tools.ErrUnavailable)
		} else {
			cctx, cancel := d.collaborator(ctx)
			err := c.Close(cctx)
			cancel()
			if err != nil {
				logx.Error().Str("domain", dom.Name).Err(err).Msg("Close failed")
				result = fmt.Sprintf("Failed to close the %s: %v", what, err)
			}
		}

		var exited bool
		err := withSession(ctx, func(s *model.SessionState) error {
			exited = s.Mode == dom.Mode
			s.Mode = model.ModeNormal
			s.Feedback = result
			if exited {
				s.Append(schema.AssistantMessage(dom.Exited(), nil))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return schema.AssistantMessage(strings.TrimSpace(result), nil), nil
	})
}
