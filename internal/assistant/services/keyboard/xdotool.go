// Package keyboard sends synthetic key events through xdotool.
package keyboard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	"github.com/voice-assistant/server/internal/assistant/model"
)

// keysyms maps the assistant's key names to X keysyms where they differ.
var keysyms = map[string]string{
	"enter": "Return", "esc": "Escape", "escape": "Escape", "space": "space",
	"tab": "Tab", "backspace": "BackSpace", "delete": "Delete", "insert": "Insert",
	"home": "Home", "end": "End", "pageup": "Prior", "pagedown": "Next",
	"up": "Up", "down": "Down", "left": "Left", "right": "Right",
	"shift": "shift", "shiftleft": "Shift_L", "shiftright": "Shift_R",
	"ctrl": "ctrl", "ctrlleft": "Control_L", "ctrlright": "Control_R",
	"alt": "alt", "altleft": "Alt_L", "altright": "Alt_R", "option": "alt",
	"winleft": "Super_L", "winright": "Super_R", "command": "super",
	"capslock": "Caps_Lock", "numlock": "Num_Lock", "scrolllock": "Scroll_Lock",
	"pause": "Pause", "printscreen": "Print", "apps": "Menu", "menu": "Menu",
	"multiply": "KP_Multiply", "add": "KP_Add", "separator": "KP_Separator",
	"subtract": "KP_Subtract", "decimal": "KP_Decimal", "divide": "KP_Divide",
}

// Runner executes a command. Tests replace it.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

type Xdotool struct {
	run Runner
	// minDelay is the floor for the per-keystroke typing delay.
	minDelay time.Duration
}

func NewXdotool(cfg model.KeyboardConfig) *Xdotool {
	return &Xdotool{run: execRunner, minDelay: cfg.TypeDelay}
}

func NewXdotoolWithRunner(r Runner) *Xdotool {
	return &Xdotool{run: r}
}

// Keysym translates an allow-listed key name to what xdotool expects.
func Keysym(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if s, ok := keysyms[k]; ok {
		return s
	}
	if strings.HasPrefix(k, "numpad") {
		return "KP_" + strings.TrimPrefix(k, "numpad")
	}
	if len(k) >= 2 && k[0] == 'f' {
		if _, err := strconv.Atoi(k[1:]); err == nil {
			return "F" + k[1:]
		}
	}
	return k
}

func (x *Xdotool) Hotkey(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return errors.New("no keys")
	}
	syms := make([]string, len(keys))
	for i, k := range keys {
		syms[i] = Keysym(k)
	}
	return x.run(ctx, "xdotool", "key", "--clearmodifiers", strings.Join(syms, "+"))
}

func (x *Xdotool) Press(ctx context.Context, key string) error {
	return x.run(ctx, "xdotool", "key", "--clearmodifiers", Keysym(key))
}

func (x *Xdotool) Type(ctx context.Context, text string, interval time.Duration) error {
	if interval < x.minDelay {
		interval = x.minDelay
	}
	ms := interval.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return x.run(ctx, "xdotool", "type", "--delay", strconv.FormatInt(ms, 10), "--", text)
}

var _ tools.Keyboard = (*Xdotool)(nil)
