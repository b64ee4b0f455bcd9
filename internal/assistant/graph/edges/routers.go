package edges

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/graph/conversations"
	"github.com/voice-assistant/server/internal/assistant/graph/nodes"
	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
	"github.com/voice-assistant/server/internal/assistant/model"
)

// Edge names, used in logs and metrics.
const (
	EdgeRedirector = "redirector"
	EdgeCalendar   = "calendar_router"
	EdgeChrome     = "chrome_router"
	EdgeFiles      = "files_router"
	EdgeKeyboard   = "keyboard_router"
)

// TopLevel maps a non-normal mode to the node that owns it.
func TopLevel(mode model.Mode) (string, bool) {
	switch mode {
	case model.ModeKeyboard:
		return nodes.NodeKeyboard, true
	case model.ModeChrome:
		return nodes.NodeChrome, true
	case model.ModeFileManager:
		return nodes.NodeFiles, true
	default:
		return "", false
	}
}

// NewRedirector builds the top-level router.
func NewRedirector(r *prompts.Renderer, f *conversations.Formatter) *Classifier {
	c := &Classifier{
		Name: EdgeRedirector,
		Labels: []string{
			nodes.NodeChatbot, nodes.NodeSearch, nodes.NodeCalendar, nodes.NodeBrowser, nodes.NodeChrome,
			nodes.NodeFiles, nodes.NodeSystem, nodes.NodeSoftware, nodes.NodeKeyboard, nodes.NodeYouTube,
		},
		Fallback: nodes.NodeChatbot,
	}
	c.Prompt = func(ctx context.Context, v View) ([]*schema.Message, error) {
		return r.Render(ctx, prompts.Redirector, prompts.Vars{"Mode": v.Mode.String()},
			humanPrompt(f.WithTools(v.History), v, c.Labels))
	}
	return c
}

// NewCalendarRouter picks the calendar operation once events have been fetched.
func NewCalendarRouter(r *prompts.Renderer, f *conversations.Formatter) *Classifier {
	c := &Classifier{
		Name:     EdgeCalendar,
		Labels:   []string{nodes.NodeCalendarCreate, nodes.NodeCalendarUpdate, nodes.NodeCalendarDelete, nodes.NodeCalendarFinal},
		Fallback: nodes.NodeCalendarFinal,
	}
	c.Prompt = func(ctx context.Context, v View) ([]*schema.Message, error) {
		return r.Render(ctx, prompts.CalendarRouter, prompts.Vars{"Mode": v.Mode.String()},
			humanPrompt(f.WithoutTools(v.History), v, c.Labels))
	}
	return c
}

// NewChromeRouter picks the Chrome action while Chrome mode is on.
func NewChromeRouter(r *prompts.Renderer, f *conversations.Formatter) *Classifier {
	return newDomainRouter(r, f, EdgeChrome, "Chrome", []labelDoc{
		{nodes.NodeChatbot, "only when the mode is normal or Chrome mode was just exited."},
		{nodes.NodeChromeClose, "close the whole Chrome window."},
		{nodes.NodeChromeTab, "open, switch or close tabs, or open a page in a new tab."},
		{nodes.NodeChromeFunc, "work inside the active tab: open a page, scroll, read or list links."},
	}, chromeKeywords)
}

// NewFilesRouter picks the file manager action while file manager mode is on.
func NewFilesRouter(r *prompts.Renderer, f *conversations.Formatter) *Classifier {
	return newDomainRouter(r, f, EdgeFiles, "file manager", []labelDoc{
		{nodes.NodeChatbot, "only when the mode is normal or file manager mode was just exited."},
		{nodes.NodeFilesClose, "close the file manager window."},
		{nodes.NodeFilesTab, "open, switch or close explorer tabs."},
		{nodes.NodeFilesRead, "open folders, list them or read a file."},
		{nodes.NodeFilesWrite, "copy, cut, paste, delete or create files and folders."},
	}, filesKeywords)
}

// NewKeyboardRouter picks the keyboard action while keyboard mode is on.
func NewKeyboardRouter(r *prompts.Renderer, f *conversations.Formatter) *Classifier {
	return newDomainRouter(r, f, EdgeKeyboard, "keyboard", []labelDoc{
		{nodes.NodeChatbot, "only when the mode is normal or keyboard mode was just exited."},
		{nodes.NodeKeyboardHotkey, "a shortcut of 2 or 3 keys pressed together, like ctrl c or alt tab."},
		{nodes.NodeKeyboardPresskey, "a single key press such as enter, space, escape or an arrow key."},
		{nodes.NodeKeyboardWrite, "typing out text."},
	}, keyboardKeywords)
}

type labelDoc struct {
	label string
	doc   string
}

func newDomainRouter(r *prompts.Renderer, f *conversations.Formatter, name, domain string, docs []labelDoc, kw func(string) (string, bool)) *Classifier {
	labels := make([]string, 0, len(docs))
	var list strings.Builder
	for _, d := range docs {
		labels = append(labels, d.label)
		list.WriteString("- " + d.label + ": " + d.doc + "\n")
	}

	c := &Classifier{
		Name:            name,
		Labels:          labels,
		Fallback:        nodes.NodeChatbot,
		KeywordFallback: kw,
	}
	c.Prompt = func(ctx context.Context, v View) ([]*schema.Message, error) {
		return r.Render(ctx, prompts.DomainRouter, prompts.Vars{
			"Domain": domain,
			"Labels": list.String(),
			"Mode":   v.Mode.String(),
		}, humanPrompt(f.WithoutTools(v.History), v, labels))
	}
	return c
}

func humanPrompt(history string, v View, labels []string) string {
	var b strings.Builder
	b.WriteString(history)
	b.WriteString("\nLatest user message: " + v.Query + "\n")
	if len(v.Hints) > 0 {
		b.WriteString("\nContext:\n")
		for _, h := range v.Hints {
			b.WriteString("- " + h + "\n")
		}
	}
	b.WriteString("\nCurrent mode: " + v.Mode.String() + "\n")
	b.WriteString("Answer with one of: " + strings.Join(labels, ", "))
	return b.String()
}

// ====================== Keyword recovery ======================

func keyboardKeywords(query string) (string, bool) {
	words := wordSet(query)
	q := strings.ToLower(query)
	switch {
	case words.any("press", "hit", "key"):
		return nodes.NodeKeyboardPresskey, true
	case words.any("hotkey", "shortcut", "ctrl", "alt", "shift"):
		return nodes.NodeKeyboardHotkey, true
	case words.any("type", "write") || strings.Contains(q, "enter text") || strings.Contains(q, "write text"):
		return nodes.NodeKeyboardWrite, true
	}
	return "", false
}

func chromeKeywords(query string) (string, bool) {
	words := wordSet(query)
	q := strings.ToLower(query)
	switch {
	case words.any("close", "quit", "exit") && words.any("window", "chrome", "browser"):
		return nodes.NodeChromeClose, true
	case words.any("tab", "tabs"):
		return nodes.NodeChromeTab, true
	case words.any("scroll", "open", "read", "click") || strings.Contains(q, "go to"):
		return nodes.NodeChromeFunc, true
	}
	return "", false
}

func filesKeywords(query string) (string, bool) {
	words := wordSet(query)
	switch {
	case words.any("close", "quit", "exit") && words.any("window", "explorer", "manager"):
		return nodes.NodeFilesClose, true
	case words.any("tab", "tabs"):
		return nodes.NodeFilesTab, true
	case words.any("copy", "cut", "paste", "delete", "remove", "create", "rename", "move", "make"):
		return nodes.NodeFilesWrite, true
	case words.any("read", "open", "show", "list"):
		return nodes.NodeFilesRead, true
	}
	return "", false
}

type words map[string]struct{}

func wordSet(s string) words {
	out := words{}
	for _, w := range conversations.Words(s) {
		out[w] = struct{}{}
	}
	return out
}

func (w words) any(candidates ...string) bool {
	for _, c := range candidates {
		if _, ok := w[c]; ok {
			return true
		}
	}
	return false
}
