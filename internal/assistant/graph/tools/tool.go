package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/graph/extract"
	logx "github.com/voice-assistant/server/pkg/logger"
	"github.com/voice-assistant/server/pkg/metrics"
)

const DefaultTimeout = 20 * time.Second

// ErrUnavailable is returned by tools whose collaborator is not configured.
var ErrUnavailable = errors.New("not available on this machine")

// newTextTool wraps fn as an eino tool whose result is plain text. Errors from
// fn never leave the tool: they become "Failed to <action>: <reason>" so the
// model can read them and the loop keeps going.
func newTextTool[T any](info *schema.ToolInfo, action string, timeout time.Duration, fn func(ctx context.Context, in *T) (string, error)) tool.InvokableTool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	name := info.Name

	run := func(ctx context.Context, in *T) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		out, err := fn(ctx, in)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("timed out after %s", timeout)
			}
			metrics.ToolCalls.WithLabelValues(name, "error").Inc()
			logx.Warn().Str("tool", name).Err(err).Msg("Tool failed")
			return fmt.Sprintf("Failed to %s: %v", action, err), nil
		}
		metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
		return out, nil
	}

	inner := utils.NewTool(info, run,
		utils.WithUnmarshalArguments(unmarshalArgs[T]),
		utils.WithMarshalOutput(marshalText),
	)
	return &textTool{InvokableTool: inner, name: name, action: action}
}

// textTool reports arguments the tool cannot decode as a text result. run
// itself never returns an error, so any error from the inner tool is a decode
// failure.
type textTool struct {
	tool.InvokableTool
	name   string
	action string
}

func (t *textTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	out, err := t.InvokableTool.InvokableRun(ctx, argumentsInJSON, opts...)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(t.name, "error").Inc()
		logx.Warn().Str("tool", t.name).Str("arguments", argumentsInJSON).Err(err).Msg("Tool arguments rejected")
		return fmt.Sprintf("Failed to %s: invalid arguments", t.action), nil
	}
	return out, nil
}

// unmarshalArgs tolerates the malformed JSON models sometimes emit.
func unmarshalArgs[T any](_ context.Context, arguments string) (any, error) {
	in := new(T)
	if strings.TrimSpace(arguments) == "" {
		return in, nil
	}
	if err := extract.Parse(arguments, in); err != nil {
		return nil, fmt.Errorf("tool arguments: %w", err)
	}
	return in, nil
}

func marshalText(_ context.Context, output any) (string, error) {
	if s, ok := output.(string); ok {
		return s, nil
	}
	return fmt.Sprint(output), nil
}

func params(p map[string]*schema.ParameterInfo) *schema.ParamsOneOf {
	return schema.NewParamsOneOfByParams(p)
}

func noParams() *schema.ParamsOneOf {
	return schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{})
}

func str(desc string, required bool) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.String, Desc: desc, Required: required}
}

func integer(desc string, required bool) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.Integer, Desc: desc, Required: required}
}

func boolean(desc string, required bool) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: schema.Boolean, Desc: desc, Required: required}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
