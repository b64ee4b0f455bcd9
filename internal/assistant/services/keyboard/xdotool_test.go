package keyboard

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voice-assistant/server/internal/assistant/model"
)

func TestXdotool(t *testing.T) {
	var got []string
	x := NewXdotoolWithRunner(func(_ context.Context, name string, args ...string) error {
		got = append(got, name+" "+strings.Join(args, " "))
		return nil
	})
	ctx := context.Background()

	require.NoError(t, x.Hotkey(ctx, "ctrl", "shift", "esc"))
	require.NoError(t, x.Press(ctx, "enter"))
	require.NoError(t, x.Type(ctx, "hi there", 50*time.Millisecond))

	assert.Equal(t, []string{
		"xdotool key --clearmodifiers ctrl+shift+Escape",
		"xdotool key --clearmodifiers Return",
		"xdotool type --delay 50 -- hi there",
	}, got)
}

func TestKeysym(t *testing.T) {
	for in, want := range map[string]string{
		"f5":       "F5",
		"numpad7":  "KP_7",
		"a":        "a",
		"PageDown": "Next",
		"winleft":  "Super_L",
	} {
		assert.Equal(t, want, Keysym(in), in)
	}
}

func TestXdotool_TypeDelayFloor(t *testing.T) {
	var got []string
	x := NewXdotool(model.KeyboardConfig{TypeDelay: 30 * time.Millisecond})
	x.run = func(_ context.Context, name string, args ...string) error {
		got = append(got, strings.Join(args, " "))
		return nil
	}

	require.NoError(t, x.Type(context.Background(), "ok", 0))
	require.NoError(t, x.Type(context.Background(), "ok", 200*time.Millisecond))
	assert.Equal(t, []string{"type --delay 30 -- ok", "type --delay 200 -- ok"}, got)
}
