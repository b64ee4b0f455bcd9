package prompts

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Render formats the named system template plus the human message through the
// Eino prompt component, so prompt callbacks observe every render.
func (r *Renderer) Render(ctx context.Context, name string, vars Vars, human string) ([]*schema.Message, error) {
	text, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt template %q", name)
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(text),
		schema.UserMessage("{{.Human}}"),
	)
	msgs, err := tpl.Format(ctx, r.vars(vars, human))
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) != 2 || msgs[0] == nil || msgs[1] == nil {
		return nil, fmt.Errorf("%s prompt render: unexpected result", name)
	}
	return msgs, nil
}

// System renders only the system part of a template.
func (r *Renderer) System(ctx context.Context, name string, vars Vars) (string, error) {
	msgs, err := r.Render(ctx, name, vars, "")
	if err != nil {
		return "", err
	}
	return msgs[0].Content, nil
}

func (r *Renderer) vars(extra Vars, human string) map[string]any {
	out := map[string]any{
		"AssistantName": r.assistantName,
		"Now":           r.Now().Format(nowLayout),
		"Mode":          "normal",
		"Feedback":      "",
	}
	for k, v := range extra {
		out[k] = v
	}
	out["Human"] = human
	return out
}
