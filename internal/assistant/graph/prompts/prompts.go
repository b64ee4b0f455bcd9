package prompts

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/voice-assistant/server/internal/assistant/model"
)

//go:embed template/*.tmpl
var templateFS embed.FS

// Template names, one per node or edge.
const (
	Redirector       = "redirector"
	CalendarRouter   = "calendar_router"
	DomainRouter     = "domain_router"
	Chatbot          = "chatbot"
	Search           = "search"
	Browser          = "browser"
	CalendarQuery    = "calendar_query"
	CalendarCreate   = "calendar_create"
	CalendarUpdate   = "calendar_update"
	CalendarDelete   = "calendar_delete"
	CalendarFinal    = "calendar_final"
	ModeToggle       = "mode_toggle"
	ChromeTab        = "chrome_tab"
	ChromeFunc       = "chrome_func"
	FilesTab         = "files_tab"
	FilesRead        = "files_read"
	FilesWrite       = "files_write"
	System           = "system"
	Software         = "software"
	KeyboardHotkey   = "keyboard_hotkey"
	KeyboardPresskey = "keyboard_presskey"
	KeyboardWrite    = "keyboard_write"
	YouTube          = "youtube"
	HarmfulSoftware  = "harmful_software"
)

const nowLayout = "Monday, January 2, 2006 15:04 MST"

// Vars are the template variables of one render. Common ones are filled in by the Renderer.
type Vars map[string]any

// Renderer owns the prompt templates and the values every prompt shares.
type Renderer struct {
	assistantName string
	loc           *time.Location
	now           func() time.Time
	templates     map[string]string
}

func NewRenderer(cfg model.AssistantConfig) (*Renderer, error) {
	templates := make(map[string]string)
	entries, err := fs.ReadDir(templateFS, "template")
	if err != nil {
		return nil, fmt.Errorf("read prompt templates: %w", err)
	}
	for _, e := range entries {
		b, err := templateFS.ReadFile("template/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read prompt template %s: %w", e.Name(), err)
		}
		templates[strings.TrimSuffix(e.Name(), ".tmpl")] = string(b)
	}

	name := cfg.Name
	if name == "" {
		name = "Jarvis"
	}
	return &Renderer{
		assistantName: name,
		loc:           cfg.Location(),
		now:           time.Now,
		templates:     templates,
	}, nil
}

// WithClock replaces the clock, for tests that depend on the current date.
func (r *Renderer) WithClock(now func() time.Time) *Renderer {
	r.now = now
	return r
}

// Now returns the current time in the assistant's zone.
func (r *Renderer) Now() time.Time {
	return r.now().In(r.loc)
}

func (r *Renderer) Location() *time.Location {
	return r.loc
}

func (r *Renderer) AssistantName() string {
	return r.assistantName
}
