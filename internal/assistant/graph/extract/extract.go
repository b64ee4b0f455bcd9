// Package extract turns schema-constrained model replies into Go structs.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonrepair"

	logx "github.com/voice-assistant/server/pkg/logger"
)

// ErrUnparseable marks a reply that arrived but could not be read as the
// requested JSON object. Transport failures are returned unwrapped instead.
var ErrUnparseable = errors.New("model output is not a valid JSON object")

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024
	maxErrSnippet = 200
)

const jsonInstruction = "\n\nRespond with a single JSON object and nothing else. No markdown, no prose. Fields:\n"

// Into asks m for a JSON object described by schemaHint and decodes it into out.
// The instruction is appended to the first system message, or sent as one when
// messages carry none.
func Into(ctx context.Context, m model.BaseChatModel, messages []*schema.Message, schemaHint string, out any) error {
	resp, err := m.Generate(ctx, withInstruction(messages, schemaHint))
	if err != nil {
		return fmt.Errorf("structured generation: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("%w: empty response", ErrUnparseable)
	}

	content := resp.Content
	if strings.TrimSpace(content) == "" && len(resp.ToolCalls) > 0 {
		// some providers answer schema requests through a function call
		content = resp.ToolCalls[0].Function.Arguments
	}
	return Parse(content, out)
}

// Parse decodes content into out, tolerating code fences, surrounding prose
// and the usual model JSON slips (trailing commas, single quotes, missing braces).
func Parse(content string, out any) (err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "extract").Msgf("panic recovered: %v", r)
			err = fmt.Errorf("%w: parser panic", ErrUnparseable)
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "extract").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}

	body := isolateObject(stripFences(content))
	if body == "" {
		return fmt.Errorf("%w: %q", ErrUnparseable, safeSnippet(content))
	}

	if err := json.Unmarshal([]byte(body), out); err == nil {
		return nil
	}

	repaired, rerr := jsonrepair.JSONRepair(body)
	if rerr != nil {
		return fmt.Errorf("%w: %q", ErrUnparseable, safeSnippet(content))
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	logx.Debug().Str("component", "extract").Msg("model JSON repaired")
	return nil
}

func withInstruction(messages []*schema.Message, schemaHint string) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages)+1)
	injected := false
	for _, msg := range messages {
		if msg != nil && msg.Role == schema.System && !injected {
			c := *msg
			c.Content += jsonInstruction + schemaHint
			out = append(out, &c)
			injected = true
			continue
		}
		out = append(out, msg)
	}
	if !injected {
		out = append([]*schema.Message{schema.SystemMessage(strings.TrimSpace(jsonInstruction) + "\n" + schemaHint)}, out...)
	}
	return out
}

// --- helpers ---

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// isolateObject trims prose around the outermost object. A missing closing
// brace is left for jsonrepair.
func isolateObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
