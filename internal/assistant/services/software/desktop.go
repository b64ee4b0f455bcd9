// Package software finds and launches installed desktop applications.
package software

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/voice-assistant/server/internal/assistant/graph/tools"
)

// DefaultDirs are the XDG application directories scanned for .desktop entries.
func DefaultDirs() []string {
	dirs := []string{"/usr/share/applications", "/usr/local/share/applications", "/var/lib/flatpak/exports/share/applications"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "share", "applications"))
	}
	return dirs
}

type entry struct {
	id   string
	name string
	exec string
}

// Launcher starts an application by desktop id. Tests replace it.
type Launcher func(ctx context.Context, desktopID string) error

func gtkLaunch(_ context.Context, id string) error {
	// Detached from the turn: the app must outlive the request.
	cmd := exec.Command("gtk-launch", id)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("gtk-launch: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Desktop indexes .desktop files once and answers lookups from the index.
type Desktop struct {
	dirs   []string
	launch Launcher

	once  sync.Once
	index []entry
}

func NewDesktop(dirs ...string) *Desktop {
	if len(dirs) == 0 {
		dirs = DefaultDirs()
	}
	return &Desktop{dirs: dirs, launch: gtkLaunch}
}

func (d *Desktop) WithLauncher(l Launcher) *Desktop {
	d.launch = l
	return d
}

func (d *Desktop) load() ([]entry, error) {
	d.once.Do(func() {
		seen := map[string]bool{}
		for _, dir := range d.dirs {
			files, _ := filepath.Glob(filepath.Join(dir, "*.desktop"))
			for _, f := range files {
				e, ok := parseDesktop(f)
				if !ok || seen[e.id] {
					continue
				}
				seen[e.id] = true
				d.index = append(d.index, e)
			}
		}
		sort.Slice(d.index, func(i, j int) bool { return d.index[i].name < d.index[j].name })
	})
	return d.index, nil
}

func parseDesktop(path string) (entry, bool) {
	f, err := os.Open(path)
	if err != nil {
		return entry{}, false
	}
	defer f.Close()

	e := entry{id: strings.TrimSuffix(filepath.Base(path), ".desktop")}
	inMain := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") {
			inMain = line == "[Desktop Entry]"
			continue
		}
		if !inMain {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "Name":
			e.name = strings.TrimSpace(v)
		case "Exec":
			e.exec = strings.TrimSpace(v)
		case "NoDisplay", "Hidden":
			if strings.EqualFold(strings.TrimSpace(v), "true") {
				return entry{}, false
			}
		case "Type":
			if strings.TrimSpace(v) != "Application" {
				return entry{}, false
			}
		}
	}
	return e, e.name != ""
}

// lookup prefers an exact name, then the desktop id, then a substring match.
func lookup(index []entry, name string) (entry, bool) {
	q := strings.ToLower(strings.TrimSpace(name))
	if q == "" {
		return entry{}, false
	}
	for _, e := range index {
		if strings.ToLower(e.name) == q {
			return e, true
		}
	}
	for _, e := range index {
		if strings.ToLower(e.id) == q || strings.HasSuffix(strings.ToLower(e.id), "."+q) {
			return e, true
		}
	}
	for _, e := range index {
		if strings.Contains(strings.ToLower(e.name), q) {
			return e, true
		}
	}
	return entry{}, false
}

func (d *Desktop) Find(ctx context.Context, name string) (tools.App, bool, error) {
	index, err := d.load()
	if err != nil {
		return tools.App{}, false, err
	}
	e, ok := lookup(index, name)
	if !ok {
		return tools.App{}, false, nil
	}
	app := tools.App{Name: e.name, Exec: e.exec}
	app.Running = running(ctx, execName(e.exec))
	return app, true, nil
}

func (d *Desktop) Open(ctx context.Context, name string) (tools.App, error) {
	index, err := d.load()
	if err != nil {
		return tools.App{}, err
	}
	e, ok := lookup(index, name)
	if !ok {
		return tools.App{}, fmt.Errorf("application %q is not installed", name)
	}
	if err := d.launch(ctx, e.id); err != nil {
		return tools.App{}, err
	}
	return tools.App{Name: e.name, Exec: e.exec, Running: true}, nil
}

func (d *Desktop) Installed(context.Context) ([]tools.App, error) {
	index, err := d.load()
	if err != nil {
		return nil, err
	}
	out := make([]tools.App, len(index))
	for i, e := range index {
		out[i] = tools.App{Name: e.name, Exec: e.exec}
	}
	return out, nil
}

// execName returns the binary name of an Exec line without field codes.
func execName(execLine string) string {
	fields := strings.Fields(execLine)
	for _, f := range fields {
		if f == "env" || strings.Contains(f, "=") {
			continue
		}
		return filepath.Base(f)
	}
	return ""
}

func running(ctx context.Context, bin string) bool {
	if bin == "" {
		return false
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false
	}
	for _, p := range procs {
		if n, err := p.NameWithContext(ctx); err == nil && n == bin {
			return true
		}
	}
	return false
}

var _ tools.Software = (*Desktop)(nil)
