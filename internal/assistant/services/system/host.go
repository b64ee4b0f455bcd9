// Package system changes host settings and samples resource usage.
package system

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/voice-assistant/server/internal/assistant/graph/tools"
)

const gb = 1 << 30

// Runner executes a command. Tests replace it.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Host drives desktop Linux settings through the usual command line tools.
type Host struct {
	run        Runner
	diskPath   string
	sampleTime time.Duration
}

func NewHost() *Host {
	return &Host{run: execRunner, diskPath: "/", sampleTime: 500 * time.Millisecond}
}

func NewHostWithRunner(r Runner) *Host {
	h := NewHost()
	h.run = r
	return h
}

func (h *Host) SetBrightness(ctx context.Context, level int) error {
	return h.run(ctx, "brightnessctl", "set", fmt.Sprintf("%d%%", level))
}

func (h *Host) SetVolume(ctx context.Context, level int) error {
	if level == 0 {
		return h.run(ctx, "pactl", "set-sink-mute", "@DEFAULT_SINK@", "1")
	}
	if err := h.run(ctx, "pactl", "set-sink-mute", "@DEFAULT_SINK@", "0"); err != nil {
		return err
	}
	return h.run(ctx, "pactl", "set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("%d%%", level))
}

func (h *Host) QuickSetting(ctx context.Context, name string, on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	switch name {
	case "wifi":
		return h.run(ctx, "nmcli", "radio", "wifi", state)
	case "bluetooth":
		action := "block"
		if on {
			action = "unblock"
		}
		return h.run(ctx, "rfkill", action, "bluetooth")
	case "airplane":
		// Airplane mode on means every radio off.
		radios := "on"
		if on {
			radios = "off"
		}
		return h.run(ctx, "nmcli", "radio", "all", radios)
	case "hotspot":
		if on {
			return h.run(ctx, "nmcli", "device", "wifi", "hotspot")
		}
		return h.run(ctx, "nmcli", "connection", "down", "Hotspot")
	case "saver":
		profile := "balanced"
		if on {
			profile = "power-saver"
		}
		return h.run(ctx, "powerprofilesctl", "set", profile)
	case "night":
		return h.run(ctx, "gsettings", "set", "org.gnome.settings-daemon.plugins.color", "night-light-enabled", strconv.FormatBool(on))
	default:
		return fmt.Errorf("unknown setting %q", name)
	}
}

func (h *Host) Performance(ctx context.Context) (tools.Performance, error) {
	var p tools.Performance

	cpus, err := cpu.PercentWithContext(ctx, h.sampleTime, false)
	if err != nil {
		return p, fmt.Errorf("cpu usage: %w", err)
	}
	if len(cpus) > 0 {
		p.CPUPercent = cpus[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return p, fmt.Errorf("memory usage: %w", err)
	}
	p.MemoryPercent = vm.UsedPercent
	p.MemoryUsedGB = float64(vm.Used) / gb
	p.MemoryTotalGB = float64(vm.Total) / gb

	if du, err := disk.UsageWithContext(ctx, h.diskPath); err == nil {
		p.DiskPercent = du.UsedPercent
		p.DiskFreeGB = float64(du.Free) / gb
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		p.Uptime = time.Duration(up) * time.Second
	}
	p.BatteryInfo = battery()
	return p, nil
}

// battery reads the first battery under /sys/class/power_supply.
func battery() string {
	matches, _ := filepath.Glob("/sys/class/power_supply/BAT*")
	if len(matches) == 0 {
		return ""
	}
	read := func(name string) string {
		b, err := os.ReadFile(filepath.Join(matches[0], name))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
	capacity := read("capacity")
	if capacity == "" {
		return ""
	}
	if status := read("status"); status != "" {
		return capacity + "% (" + strings.ToLower(status) + ")"
	}
	return capacity + "%"
}

var _ tools.System = (*Host)(nil)
