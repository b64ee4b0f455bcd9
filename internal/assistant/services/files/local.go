// Package files is a file explorer over a set of allow-listed folders.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	"github.com/voice-assistant/server/internal/assistant/model"
)

var (
	ErrRestricted = errors.New("path is outside the allowed folders")
	ErrClipboard  = errors.New("clipboard is empty")
)

type clip struct {
	path string
	cut  bool
}

// Local keeps explorer tabs in memory and operates on the local disk. Every
// path must resolve inside one of the roots.
type Local struct {
	roots   []string
	maxRead int64

	mu        sync.Mutex
	tabs      []string
	active    int
	clipboard *clip
}

func NewLocal(cfg model.FilesConfig) (*Local, error) {
	roots := cfg.AllowedRoots
	if len(roots) == 0 {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home: %w", err)
		}
		for _, d := range []string{"Desktop", "Documents", "Downloads", "Music", "Pictures", "Videos"} {
			roots = append(roots, filepath.Join(home, d))
		}
	}

	l := &Local{maxRead: cfg.MaxReadBytes}
	if l.maxRead <= 0 {
		l.maxRead = 64 << 10
	}
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", r, err)
		}
		l.roots = append(l.roots, filepath.Clean(abs))
	}
	return l, nil
}

func (l *Local) Roots() []string {
	return append([]string(nil), l.roots...)
}

// resolve cleans p, follows symlinks of the existing prefix and checks it
// stays inside a root.
func (l *Local) resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("path is required")
	}
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	} else if real, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(real, filepath.Base(abs))
	}
	for _, r := range l.roots {
		root := r
		if real, err := filepath.EvalSymlinks(r); err == nil {
			root = real
		}
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrRestricted, p)
}

func (l *Local) isRoot(p string) bool {
	for _, r := range l.roots {
		if real, err := filepath.EvalSymlinks(r); err == nil && real == p || r == p {
			return true
		}
	}
	return false
}

func (l *Local) Tabs(context.Context) ([]tools.Tab, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureTab()
	out := make([]tools.Tab, len(l.tabs))
	for i, p := range l.tabs {
		out[i] = tools.Tab{Index: i, Title: filepath.Base(p), URL: p, Active: i == l.active}
	}
	return out, nil
}

func (l *Local) ensureTab() {
	if len(l.tabs) == 0 && len(l.roots) > 0 {
		l.tabs = []string{l.roots[0]}
		l.active = 0
	}
}

func (l *Local) SwitchTab(_ context.Context, index int) (tools.Tab, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureTab()
	if index < 0 || index >= len(l.tabs) {
		return tools.Tab{}, fmt.Errorf("tab index %d out of range", index)
	}
	l.active = index
	return tools.Tab{Index: index, Title: filepath.Base(l.tabs[index]), URL: l.tabs[index], Active: true}, nil
}

func (l *Local) NewTab(_ context.Context, path string) (tools.Tab, error) {
	dir, err := l.resolve(path)
	if err != nil {
		return tools.Tab{}, err
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return tools.Tab{}, fmt.Errorf("not a folder: %s", path)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tabs = append(l.tabs, dir)
	l.active = len(l.tabs) - 1
	return tools.Tab{Index: l.active, Title: filepath.Base(dir), URL: dir, Active: true}, nil
}

func (l *Local) CloseTab(_ context.Context, index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.tabs) {
		return fmt.Errorf("tab index %d out of range", index)
	}
	l.tabs = append(l.tabs[:index], l.tabs[index+1:]...)
	if l.active >= len(l.tabs) {
		l.active = 0
	}
	return nil
}

// OpenFolder lists dir and shows it in the active tab. Folders sort first.
func (l *Local) OpenFolder(_ context.Context, path string) ([]tools.Entry, error) {
	dir, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]tools.Entry, 0, len(des))
	for _, d := range des {
		if strings.HasPrefix(d.Name(), ".") {
			continue
		}
		e := tools.Entry{Name: d.Name(), IsDir: d.IsDir()}
		if info, err := d.Info(); err == nil && !d.IsDir() {
			e.Size = info.Size()
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureTab()
	if len(l.tabs) > 0 {
		l.tabs[l.active] = dir
	}
	return out, nil
}

// ReadFile returns up to maxRead bytes of a text file.
func (l *Local) ReadFile(_ context.Context, path string) (string, error) {
	p, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, l.maxRead+1))
	if err != nil {
		return "", err
	}
	truncated := int64(len(buf)) > l.maxRead
	if truncated {
		buf = buf[:l.maxRead]
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("%s is not a text file", filepath.Base(p))
	}
	text := string(buf)
	if truncated {
		text += "\n... (truncated)"
	}
	return text, nil
}

func (l *Local) Copy(_ context.Context, path string) error {
	return l.setClip(path, false)
}

func (l *Local) Cut(_ context.Context, path string) error {
	return l.setClip(path, true)
}

func (l *Local) setClip(path string, cut bool) error {
	p, err := l.resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clipboard = &clip{path: p, cut: cut}
	return nil
}

// Paste copies or moves the clipboard item into dir. A cut clears the clipboard.
func (l *Local) Paste(_ context.Context, dir string) (string, error) {
	dest, err := l.resolve(dir)
	if err != nil {
		return "", err
	}
	l.mu.Lock()
	c := l.clipboard
	l.mu.Unlock()
	if c == nil {
		return "", ErrClipboard
	}
	if _, err := l.resolve(c.path); err != nil {
		return "", err
	}

	target := filepath.Join(dest, filepath.Base(c.path))
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("%s already exists", target)
	}
	if strings.HasPrefix(target, c.path+string(filepath.Separator)) {
		return "", errors.New("cannot paste a folder into itself")
	}

	op := "copy"
	if c.cut {
		op = "move"
		if err := os.Rename(c.path, target); err != nil {
			if err := copyTree(c.path, target); err != nil {
				return "", err
			}
			if err := os.RemoveAll(c.path); err != nil {
				return "", err
			}
		}
		l.mu.Lock()
		l.clipboard = nil
		l.mu.Unlock()
	} else if err := copyTree(c.path, target); err != nil {
		return "", err
	}
	return fmt.Sprintf("Pasted '%s' to '%s' using %s operation.", c.path, dest, op), nil
}

func (l *Local) Delete(_ context.Context, path string) error {
	p, err := l.resolve(path)
	if err != nil {
		return err
	}
	if l.isRoot(p) {
		return fmt.Errorf("%w: refusing to delete %s", ErrRestricted, p)
	}
	if _, err := os.Lstat(p); err != nil {
		return err
	}
	return os.RemoveAll(p)
}

func (l *Local) Create(_ context.Context, path string, dir bool) error {
	p, err := l.resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("%s already exists", p)
	}
	if dir {
		return os.MkdirAll(p, 0o755)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// Close forgets the tabs and clipboard, like closing the explorer window.
func (l *Local) Close(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tabs, l.active, l.clipboard = nil, 0, nil
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var _ tools.FileManager = (*Local)(nil)
