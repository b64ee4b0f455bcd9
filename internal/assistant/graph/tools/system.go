package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const (
	ToolBrightness    = "brightness_control"
	ToolVolume        = "volume_control"
	ToolPerformance   = "system_performance_monitor"
	ToolQuickSettings = "quick_settings"
)

// QuickSettings are the toggles quick_settings accepts.
var QuickSettings = []string{"wifi", "bluetooth", "airplane", "hotspot", "saver", "night"}

type LevelInput struct {
	Level int `json:"level"`
}

type QuickSettingInput struct {
	Setting string `json:"setting"`
	Enable  *bool  `json:"enable,omitempty"`
}

func systemTools(sys System, timeout time.Duration) []tool.InvokableTool {
	levelParams := func(desc string) *schema.ParamsOneOf {
		return params(map[string]*schema.ParameterInfo{"level": integer(desc, true)})
	}

	return []tool.InvokableTool{
		newTextTool(&schema.ToolInfo{
			Name:        ToolBrightness,
			Desc:        "Set display brightness.",
			ParamsOneOf: levelParams("Brightness percentage, 0 to 100."),
		}, "set brightness", timeout, func(ctx context.Context, in *LevelInput) (string, error) {
			if sys == nil {
				return "", ErrUnavailable
			}
			level := clamp(in.Level, 0, 100)
			if err := sys.SetBrightness(ctx, level); err != nil {
				return "", err
			}
			return fmt.Sprintf("Display brightness set to %d%%", level), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolVolume,
			Desc:        "Set system output volume. 0 mutes.",
			ParamsOneOf: levelParams("Volume percentage, 0 to 100."),
		}, "set volume", timeout, func(ctx context.Context, in *LevelInput) (string, error) {
			if sys == nil {
				return "", ErrUnavailable
			}
			level := clamp(in.Level, 0, 100)
			if err := sys.SetVolume(ctx, level); err != nil {
				return "", err
			}
			if level == 0 {
				return "System audio muted", nil
			}
			return fmt.Sprintf("System volume set to %d%%", level), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolPerformance,
			Desc:        "Report CPU, memory, disk and battery usage.",
			ParamsOneOf: noParams(),
		}, "read system performance", timeout, func(ctx context.Context, _ *EmptyInput) (string, error) {
			if sys == nil {
				return "", ErrUnavailable
			}
			p, err := sys.Performance(ctx)
			if err != nil {
				return "", err
			}
			return FormatPerformance(p), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name: ToolQuickSettings,
			Desc: "Turn a quick setting on or off.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"setting": {Type: schema.String, Desc: "Which setting.", Enum: QuickSettings, Required: true},
				"enable":  boolean("true to turn on, false to turn off. Omit to turn on.", false),
			}),
		}, "change quick setting", timeout, func(ctx context.Context, in *QuickSettingInput) (string, error) {
			if sys == nil {
				return "", ErrUnavailable
			}
			setting := strings.ToLower(strings.TrimSpace(in.Setting))
			if !validQuickSetting(setting) {
				return "Invalid setting: " + in.Setting, nil
			}
			on := in.Enable == nil || *in.Enable
			if err := sys.QuickSetting(ctx, setting, on); err != nil {
				return "", err
			}
			state := "off"
			if on {
				state = "on"
			}
			return fmt.Sprintf("%s turned %s", setting, state), nil
		}),
	}
}

func validQuickSetting(s string) bool {
	for _, q := range QuickSettings {
		if q == s {
			return true
		}
	}
	return false
}

// FormatPerformance renders a snapshot as a short report.
func FormatPerformance(p Performance) string {
	lines := []string{
		"System performance:",
		fmt.Sprintf("CPU usage: %.1f%%", p.CPUPercent),
		fmt.Sprintf("Memory usage: %.1f%% (%.1f GB of %.1f GB)", p.MemoryPercent, p.MemoryUsedGB, p.MemoryTotalGB),
		fmt.Sprintf("Disk usage: %.1f%% (%.1f GB free)", p.DiskPercent, p.DiskFreeGB),
	}
	if p.BatteryInfo != "" {
		lines = append(lines, "Battery: "+p.BatteryInfo)
	}
	if p.Uptime > 0 {
		lines = append(lines, "Uptime: "+p.Uptime.Round(time.Minute).String())
	}
	return strings.Join(lines, "\n")
}
