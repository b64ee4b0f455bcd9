package edges

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/graph/conversations"
	"github.com/voice-assistant/server/internal/assistant/graph/nodes"
	amodel "github.com/voice-assistant/server/internal/assistant/model"
)

// Condition is an eino branch condition.
type Condition func(ctx context.Context, in *schema.Message) (string, error)

// NewRedirectorCondition routes the turn after the input node. A non-normal
// mode decides without the model; so does a "yes" to a live delete question.
func NewRedirectorCondition(c *Classifier, m model.BaseChatModel) Condition {
	return func(ctx context.Context, _ *schema.Message) (string, error) {
		v, affirmed, err := snapshot(ctx)
		if err != nil {
			return "", err
		}
		if label, ok := TopLevel(v.Mode); ok {
			return Static(c.Name, v, label, "mode").Label, nil
		}
		if affirmed {
			return Static(c.Name, v, nodes.NodeCalendar, "pending confirmation").Label, nil
		}
		return c.Decide(ctx, m, v).Label, nil
	}
}

// NewCalendarCondition routes after the calendar query node.
func NewCalendarCondition(c *Classifier, m model.BaseChatModel) Condition {
	return func(ctx context.Context, _ *schema.Message) (string, error) {
		v, affirmed, err := snapshot(ctx)
		if err != nil {
			return "", err
		}
		if affirmed {
			return Static(c.Name, v, nodes.NodeCalendarDelete, "pending confirmation").Label, nil
		}
		return c.Decide(ctx, m, v).Label, nil
	}
}

// NewDomainCondition routes after a mode toggle node. Once the session has
// left domain the turn goes straight to the fallback.
func NewDomainCondition(c *Classifier, m model.BaseChatModel, domain amodel.Mode) Condition {
	return func(ctx context.Context, _ *schema.Message) (string, error) {
		v, _, err := snapshot(ctx)
		if err != nil {
			return "", err
		}
		if v.Mode != domain {
			return Static(c.Name, v, c.Fallback, "mode left").Label, nil
		}
		return c.Decide(ctx, m, v).Label, nil
	}
}

func snapshot(ctx context.Context) (View, bool, error) {
	var (
		v        View
		affirmed bool
	)
	err := compose.ProcessState(ctx, func(_ context.Context, state *amodel.AppState) error {
		v = ViewOf(state.Session)
		affirmed = conversations.AffirmsPendingDelete(state.Session)
		return nil
	})
	return v, affirmed, err
}

// ViewOf builds the classifier view of a session, including routing hints.
func ViewOf(s *amodel.SessionState) View {
	if s == nil {
		return View{Mode: amodel.ModeNormal}
	}
	v := View{
		ThreadID: s.ThreadID,
		Query:    s.LatestUserText(),
		History:  s.History,
		Mode:     s.Mode,
	}
	if v.Mode == "" {
		v.Mode = amodel.ModeNormal
	}
	if _, ok := s.Scratch[amodel.ScratchCalendarEvents]; ok {
		v.Hints = append(v.Hints, "Previous operation retrieved calendar data")
	}
	for _, m := range s.History {
		if m != nil && m.Role == schema.Assistant && strings.Contains(strings.ToLower(m.Content), "created successfully") {
			v.Hints = append(v.Hints, "Previous operation completed event creation")
			break
		}
	}
	if p := s.Pending; p.LiveAt(s.Turns) {
		v.Hints = append(v.Hints, "The assistant asked the user to confirm deleting '"+p.Title+"'")
	}
	return v
}
