package system

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHost_Commands(t *testing.T) {
	var got []string
	h := NewHostWithRunner(func(_ context.Context, name string, args ...string) error {
		got = append(got, name+" "+strings.Join(args, " "))
		return nil
	})
	ctx := context.Background()

	require.NoError(t, h.SetBrightness(ctx, 40))
	require.NoError(t, h.SetVolume(ctx, 0))
	require.NoError(t, h.QuickSetting(ctx, "airplane", true))
	require.NoError(t, h.QuickSetting(ctx, "bluetooth", true))
	assert.Error(t, h.QuickSetting(ctx, "teleport", true))

	assert.Equal(t, []string{
		"brightnessctl set 40%",
		"pactl set-sink-mute @DEFAULT_SINK@ 1",
		"nmcli radio all off",
		"rfkill unblock bluetooth",
	}, got)
}

func TestHost_Performance(t *testing.T) {
	h := NewHost()
	h.sampleTime = 0
	p, err := h.Performance(context.Background())
	require.NoError(t, err)
	assert.Greater(t, p.MemoryTotalGB, 0.0)
}
