package nodes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	logx "github.com/voice-assistant/server/pkg/logger"
)

const (
	maxTypedText    = 500
	typedPreview    = 50
	defaultInterval = 0.05
)

var allowedKeys = func() map[string]struct{} {
	keys := []string{
		"shift", "shiftleft", "shiftright", "ctrl", "ctrlleft", "ctrlright",
		"alt", "altleft", "altright", "winleft", "winright", "command", "option",
		"up", "down", "left", "right", "home", "end", "pageup", "pagedown",
		"backspace", "delete", "insert", "tab", "enter", "space", "esc", "escape",
		"capslock", "numlock", "scrolllock", "pause", "printscreen", "apps", "menu",
		"multiply", "add", "separator", "subtract", "decimal", "divide",
	}
	for c := 'a'; c <= 'z'; c++ {
		keys = append(keys, string(c))
	}
	for i := 0; i <= 9; i++ {
		keys = append(keys, fmt.Sprint(i), fmt.Sprintf("numpad%d", i))
	}
	for i := 1; i <= 12; i++ {
		keys = append(keys, fmt.Sprintf("f%d", i))
	}
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}()

// AllowedKey reports whether key may be sent to the keyboard.
func AllowedKey(key string) bool {
	_, ok := allowedKeys[key]
	return ok
}

func keyList() string {
	keys := make([]string, 0, len(allowedKeys))
	for k := range allowedKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// ValidateHotkey normalises keys and checks them against the allow-list.
// The returned problem is empty when the combination can be sent.
func ValidateHotkey(keys []string) ([]string, string) {
	norm := make([]string, 0, len(keys))
	var invalid []string
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if !AllowedKey(k) {
			invalid = append(invalid, k)
		}
		norm = append(norm, k)
	}
	if len(invalid) > 0 {
		return norm, "Invalid keys detected: " + strings.Join(invalid, ", ")
	}
	if len(norm) < 2 || len(norm) > 3 {
		return norm, fmt.Sprintf("Invalid keys detected: a hotkey needs 2 or 3 keys, got %d", len(norm))
	}
	return norm, ""
}

type hotkeyExtraction struct {
	NotRelated bool     `json:"not_related"`
	Args       []string `json:"args"`
	Reasoning  string   `json:"reasoning"`
}

type presskeyExtraction struct {
	NotRelated bool   `json:"not_related"`
	Key        string `json:"key"`
	Reasoning  string `json:"reasoning"`
}

type writeExtraction struct {
	NotRelated bool     `json:"not_related"`
	Text       string   `json:"text"`
	Interval   *float64 `json:"interval"`
	Reasoning  string   `json:"reasoning"`
}

// NewKeyboardHotkeyNode presses a 2 or 3 key shortcut.
func NewKeyboardHotkeyNode(d *Deps) *compose.Lambda {
	return keyboardNode(d, NodeKeyboardHotkey, func(ctx context.Context, v turnView) string {
		var out hotkeyExtraction
		hint := `{"not_related": bool, "args": [string], "reasoning": string}`
		if err := d.structured(ctx, prompts.KeyboardHotkey, prompts.Vars{"Keys": keyList()}, d.humanPrompt(v, false), hint, &out); err != nil {
			return fmt.Sprintf("Failed to execute hotkey: %v", err)
		}
		if out.NotRelated {
			return notRelated(out.Reasoning)
		}
		keys, problem := ValidateHotkey(out.Args)
		if problem != "" {
			return problem
		}
		if err := d.keyboard(ctx, func(ctx context.Context, kb tools.Keyboard) error {
			return kb.Hotkey(ctx, keys...)
		}); err != nil {
			return fmt.Sprintf("Failed to execute hotkey: %v", err)
		}
		return "Executed hotkey: " + strings.Join(keys, " + ")
	})
}

// NewKeyboardPresskeyNode presses a single key.
func NewKeyboardPresskeyNode(d *Deps) *compose.Lambda {
	return keyboardNode(d, NodeKeyboardPresskey, func(ctx context.Context, v turnView) string {
		var out presskeyExtraction
		hint := `{"not_related": bool, "key": string, "reasoning": string}`
		if err := d.structured(ctx, prompts.KeyboardPresskey, prompts.Vars{"Keys": keyList()}, d.humanPrompt(v, false), hint, &out); err != nil {
			return fmt.Sprintf("Failed to press key: %v", err)
		}
		if out.NotRelated {
			return notRelated(out.Reasoning)
		}
		key := strings.ToLower(strings.TrimSpace(out.Key))
		if !AllowedKey(key) {
			return "Invalid keys detected: " + key
		}
		if err := d.keyboard(ctx, func(ctx context.Context, kb tools.Keyboard) error {
			return kb.Press(ctx, key)
		}); err != nil {
			return fmt.Sprintf("Failed to press key: %v", err)
		}
		return "Pressed key: " + key
	})
}

// NewKeyboardWriteNode types text.
func NewKeyboardWriteNode(d *Deps) *compose.Lambda {
	return keyboardNode(d, NodeKeyboardWrite, func(ctx context.Context, v turnView) string {
		var out writeExtraction
		hint := `{"not_related": bool, "text": string, "interval": number, "reasoning": string}`
		if err := d.structured(ctx, prompts.KeyboardWrite, nil, d.humanPrompt(v, false), hint, &out); err != nil {
			return fmt.Sprintf("Failed to type text: %v", err)
		}
		if out.NotRelated {
			return notRelated(out.Reasoning)
		}
		text := out.Text
		n := len([]rune(text))
		switch {
		case strings.TrimSpace(text) == "":
			return "I didn't catch what to type. What should I write?"
		case n > maxTypedText:
			return fmt.Sprintf("That text is too long to type (%d characters, the limit is %d).", n, maxTypedText)
		}
		interval := TypingInterval(out.Interval)
		if err := d.keyboard(ctx, func(ctx context.Context, kb tools.Keyboard) error {
			return kb.Type(ctx, text, interval)
		}); err != nil {
			return fmt.Sprintf("Failed to type text: %v", err)
		}
		return "Typed text: '" + typedSummary(text) + "'"
	})
}

// TypingInterval clamps the per-keystroke delay to 0..1s, 0.05s when unset.
func TypingInterval(seconds *float64) time.Duration {
	v := defaultInterval
	if seconds != nil {
		v = *seconds
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return time.Duration(v * float64(time.Second))
}

func typedSummary(text string) string {
	r := []rune(text)
	if len(r) <= typedPreview {
		return text
	}
	return string(r[:typedPreview]) + "..."
}

func notRelated(reasoning string) string {
	if r := strings.TrimSpace(reasoning); r != "" {
		return r
	}
	return "That doesn't look like something I can do with the keyboard."
}

func (d *Deps) keyboard(ctx context.Context, fn func(context.Context, tools.Keyboard) error) error {
	if d.Keyboard == nil {
		return fmt.Errorf("keyboard control is %w", tools.ErrUnavailable)
	}
	ctx, cancel := d.collaborator(ctx)
	defer cancel()
	return fn(ctx, d.Keyboard)
}

// keyboardNode runs one keyboard action and leaves its outcome as feedback.
func keyboardNode(d *Deps, name string, act func(context.Context, turnView) string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		v, err := view(ctx)
		if err != nil {
			return nil, err
		}
		result := act(ctx, v)
		logx.Debug().Str("thread_id", v.ThreadID).Str("node", name).Str("result", result).Msg("Keyboard action")
		if err := setFeedback(ctx, result); err != nil {
			return nil, err
		}
		return schema.AssistantMessage(result, nil), nil
	})
}
