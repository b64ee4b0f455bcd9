// Package edges holds the classifier edges that pick the next node of a turn.
package edges

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	amodel "github.com/voice-assistant/server/internal/assistant/model"
	logx "github.com/voice-assistant/server/pkg/logger"
	"github.com/voice-assistant/server/pkg/metrics"
)

// View is the slice of session state a classifier looks at.
type View struct {
	ThreadID string
	Query    string
	History  []*schema.Message
	Mode     amodel.Mode
	Hints    []string
}

// Decision is the outcome of one edge evaluation. It is never stored.
type Decision struct {
	Label    string
	Fallback bool
	Reason   string
}

// Classifier is an LLM-backed edge with a closed label set.
type Classifier struct {
	Name     string
	Labels   []string
	Fallback string
	// KeywordFallback is consulted only when the model answered with a non-empty unknown label.
	KeywordFallback func(query string) (string, bool)
	Prompt          func(ctx context.Context, v View) ([]*schema.Message, error)
}

// Decide asks m for a label. It never fails: unknown labels and model errors
// resolve to the configured fallback.
func (c *Classifier) Decide(ctx context.Context, m model.BaseChatModel, v View) Decision {
	msgs, err := c.Prompt(ctx, v)
	if err != nil {
		return c.fallback(v, "", fmt.Errorf("prompt: %w", err))
	}

	resp, err := m.Generate(ctx, msgs)
	if err != nil {
		return c.fallback(v, "", err)
	}
	if resp == nil {
		return c.fallback(v, "", errors.New("empty model response"))
	}

	raw := resp.Content
	label := strings.ToLower(strings.TrimSpace(raw))
	if label == "" {
		return c.fallback(v, raw, errors.New("empty label"))
	}
	if c.legal(label) {
		return c.record(v, Decision{Label: label, Reason: "model"})
	}

	if c.KeywordFallback != nil {
		if kw, ok := c.KeywordFallback(v.Query); ok && c.legal(kw) {
			logx.Warn().
				Str("thread_id", v.ThreadID).
				Str("edge", c.Name).
				Str("raw", raw).
				Str("label", kw).
				Msg("Invalid router label; recovered by keyword")
			return c.record(v, Decision{Label: kw, Fallback: true, Reason: "keyword"})
		}
	}
	return c.fallback(v, raw, nil)
}

func (c *Classifier) legal(label string) bool {
	for _, l := range c.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func (c *Classifier) fallback(v View, raw string, err error) Decision {
	ev := logx.Warn().
		Str("thread_id", v.ThreadID).
		Str("edge", c.Name).
		Str("label", c.Fallback)
	if err != nil {
		ev = ev.Err(err)
	} else {
		ev = ev.Str("raw", raw)
	}
	ev.Msg("Router fell back")

	reason := "invalid label"
	if err != nil {
		reason = "error: " + err.Error()
	}
	return c.record(v, Decision{Label: c.Fallback, Fallback: true, Reason: reason})
}

func (c *Classifier) record(v View, d Decision) Decision {
	metrics.RouteDecisions.WithLabelValues(c.Name, d.Label, metrics.BoolLabel(d.Fallback)).Inc()
	if !d.Fallback {
		logx.Debug().
			Str("thread_id", v.ThreadID).
			Str("edge", c.Name).
			Str("label", d.Label).
			Msg("Router decision")
	}
	return d
}

// Static records a decision made without consulting the model.
func Static(edge string, v View, label, reason string) Decision {
	metrics.RouteDecisions.WithLabelValues(edge, label, metrics.BoolLabel(false)).Inc()
	logx.Debug().
		Str("thread_id", v.ThreadID).
		Str("edge", edge).
		Str("label", label).
		Str("reason", reason).
		Msg("Router short-circuit")
	return Decision{Label: label, Reason: reason}
}
