// Package toolstest provides in-memory collaborators for tool, node and graph tests.
package toolstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	"github.com/voice-assistant/server/internal/assistant/model"
)

// Browser is a fake tabbed browser.
type Browser struct {
	mu     sync.Mutex
	tabs   []tools.Tab
	active int
	Closed bool
	Calls  []string
	Err    error
}

func NewBrowser(titles ...string) *Browser {
	b := &Browser{}
	for i, t := range titles {
		b.tabs = append(b.tabs, tools.Tab{Index: i, Title: t, URL: "https://" + strings.ToLower(strings.ReplaceAll(t, " ", "")) + ".test"})
	}
	return b
}

func (b *Browser) record(format string, args ...any) {
	b.Calls = append(b.Calls, fmt.Sprintf(format, args...))
}

func (b *Browser) snapshot() []tools.Tab {
	out := make([]tools.Tab, len(b.tabs))
	for i, t := range b.tabs {
		t.Index = i
		t.Active = i == b.active
		out[i] = t
	}
	return out
}

func (b *Browser) Tabs(context.Context) ([]tools.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	return b.snapshot(), nil
}

func (b *Browser) SwitchTab(_ context.Context, index int) (tools.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("switch %d", index)
	if index < 0 || index >= len(b.tabs) {
		return tools.Tab{}, errors.New("no such tab")
	}
	b.active = index
	return b.snapshot()[index], nil
}

func (b *Browser) NewTab(_ context.Context, url string) (tools.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("new %s", url)
	b.tabs = append(b.tabs, tools.Tab{Title: url, URL: url})
	b.active = len(b.tabs) - 1
	return b.snapshot()[b.active], nil
}

func (b *Browser) CloseTab(_ context.Context, index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("close %d", index)
	if index < 0 || index >= len(b.tabs) {
		return errors.New("no such tab")
	}
	b.tabs = append(b.tabs[:index], b.tabs[index+1:]...)
	if b.active >= len(b.tabs) {
		b.active = len(b.tabs) - 1
	}
	return nil
}

func (b *Browser) Open(_ context.Context, url string) (tools.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("open %s", url)
	if len(b.tabs) == 0 {
		b.tabs = append(b.tabs, tools.Tab{})
	}
	b.tabs[b.active] = tools.Tab{Title: url, URL: url}
	return b.snapshot()[b.active], nil
}

func (b *Browser) Scroll(_ context.Context, direction string, amount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("scroll %s %d", direction, amount)
	return nil
}

func (b *Browser) PageText(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.tabs) == 0 {
		return "", errors.New("no page")
	}
	return "Text of " + b.tabs[b.active].Title, nil
}

func (b *Browser) Links(context.Context) ([]tools.Link, error) {
	return []tools.Link{{Text: "Home", URL: "https://home.test"}}, nil
}

func (b *Browser) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("close window")
	b.Closed = true
	b.tabs = nil
	b.active = 0
	return nil
}

// Calendar is an in-memory calendar that records mutations.
type Calendar struct {
	mu      sync.Mutex
	events  map[string]model.CalendarEventRef
	seq     int
	Created []model.CalendarEventRef
	Updated []string
	Deleted []string
	Err     error
}

func NewCalendar(events ...model.CalendarEventRef) *Calendar {
	c := &Calendar{events: map[string]model.CalendarEventRef{}}
	for _, e := range events {
		c.events[e.ID] = e
	}
	return c
}

func (c *Calendar) List(_ context.Context, start, end time.Time) ([]model.CalendarEventRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	var out []model.CalendarEventRef
	for _, e := range c.events {
		if e.Start.Before(end) && !e.End.Before(start) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (c *Calendar) Create(_ context.Context, ev model.CalendarEventRef) (model.CalendarEventRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return model.CalendarEventRef{}, c.Err
	}
	c.seq++
	ev.ID = fmt.Sprintf("new%d", c.seq)
	c.events[ev.ID] = ev
	c.Created = append(c.Created, ev)
	return ev, nil
}

func (c *Calendar) Update(_ context.Context, id string, p tools.EventPatch) (model.CalendarEventRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.events[id]
	if !ok {
		return model.CalendarEventRef{}, errors.New("event not found")
	}
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.End != nil {
		ev.End = *p.End
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Location != nil {
		ev.Location = *p.Location
	}
	c.events[id] = ev
	c.Updated = append(c.Updated, id)
	return ev, nil
}

func (c *Calendar) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.events[id]; !ok {
		return errors.New("event not found")
	}
	delete(c.events, id)
	c.Deleted = append(c.Deleted, id)
	return nil
}

// Keyboard records key events.
type Keyboard struct {
	mu     sync.Mutex
	Events []string
	Err    error
}

func (k *Keyboard) Hotkey(_ context.Context, keys ...string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Events = append(k.Events, "hotkey "+strings.Join(keys, "+"))
	return k.Err
}

func (k *Keyboard) Press(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Events = append(k.Events, "press "+key)
	return k.Err
}

func (k *Keyboard) Type(_ context.Context, text string, interval time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Events = append(k.Events, fmt.Sprintf("type %q %s", text, interval))
	return k.Err
}

// Files is a fake explorer backed by a flat map of paths.
type Files struct {
	mu      sync.Mutex
	Entries map[string][]tools.Entry
	Content map[string]string
	tabs    []tools.Tab
	Closed  bool
	Calls   []string
}

func NewFiles() *Files {
	return &Files{
		Entries: map[string][]tools.Entry{},
		Content: map[string]string{},
		tabs:    []tools.Tab{{Title: "Home", URL: "/home/user", Active: true}},
	}
}

func (f *Files) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

func (f *Files) Tabs(context.Context) ([]tools.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]tools.Tab(nil), f.tabs...)
	for i := range out {
		out[i].Index = i
	}
	return out, nil
}

func (f *Files) SwitchTab(_ context.Context, i int) (tools.Tab, error) {
	f.record("switch %d", i)
	return tools.Tab{Index: i}, nil
}

func (f *Files) NewTab(_ context.Context, path string) (tools.Tab, error) {
	f.record("new %s", path)
	f.mu.Lock()
	defer f.mu.Unlock()
	t := tools.Tab{Title: path, URL: path}
	f.tabs = append(f.tabs, t)
	return t, nil
}

func (f *Files) CloseTab(_ context.Context, i int) error {
	f.record("close %d", i)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabs = append(f.tabs[:i], f.tabs[i+1:]...)
	return nil
}

func (f *Files) OpenFolder(_ context.Context, path string) ([]tools.Entry, error) {
	f.record("open %s", path)
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.Entries[path]
	if !ok {
		return nil, fmt.Errorf("%s does not exist", path)
	}
	return e, nil
}

func (f *Files) ReadFile(_ context.Context, path string) (string, error) {
	f.record("read %s", path)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Content[path]
	if !ok {
		return "", fmt.Errorf("file not found: %s", path)
	}
	return c, nil
}

func (f *Files) Copy(_ context.Context, path string) error {
	f.record("copy %s", path)
	return nil
}

func (f *Files) Cut(_ context.Context, path string) error {
	f.record("cut %s", path)
	return nil
}

func (f *Files) Paste(_ context.Context, dir string) (string, error) {
	f.record("paste %s", dir)
	return "Pasted into '" + dir + "'", nil
}

func (f *Files) Delete(_ context.Context, path string) error {
	f.record("delete %s", path)
	return nil
}

func (f *Files) Create(_ context.Context, path string, dir bool) error {
	f.record("create %s %t", path, dir)
	return nil
}

func (f *Files) Roots() []string { return []string{"/home/user"} }

func (f *Files) Close(context.Context) error {
	f.record("close window")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// System records settings changes.
type System struct {
	mu         sync.Mutex
	Brightness int
	Volume     int
	Settings   map[string]bool
}

func (s *System) SetBrightness(_ context.Context, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Brightness = level
	return nil
}

func (s *System) SetVolume(_ context.Context, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Volume = level
	return nil
}

func (s *System) Performance(context.Context) (tools.Performance, error) {
	return tools.Performance{CPUPercent: 12.5, MemoryPercent: 40, MemoryUsedGB: 6.4, MemoryTotalGB: 16, DiskPercent: 55, DiskFreeGB: 200}, nil
}

func (s *System) QuickSetting(_ context.Context, name string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Settings == nil {
		s.Settings = map[string]bool{}
	}
	s.Settings[name] = on
	return nil
}

// Software is a fixed application list.
type Software struct {
	Apps   []tools.App
	Opened []string
}

func (s *Software) Find(_ context.Context, name string) (tools.App, bool, error) {
	for _, a := range s.Apps {
		if strings.EqualFold(a.Name, strings.TrimSpace(name)) {
			return a, true, nil
		}
	}
	return tools.App{}, false, nil
}

func (s *Software) Open(ctx context.Context, name string) (tools.App, error) {
	a, ok, _ := s.Find(ctx, name)
	if !ok {
		return tools.App{}, errors.New("not installed")
	}
	s.Opened = append(s.Opened, a.Name)
	return a, nil
}

func (s *Software) Installed(context.Context) ([]tools.App, error) {
	return s.Apps, nil
}

// Search returns canned results.
type Search struct {
	Results []tools.SearchResult
	Err     error
	Queries []string
}

func (s *Search) Web(_ context.Context, q string, limit int) ([]tools.SearchResult, error) {
	s.Queries = append(s.Queries, q)
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Results) > limit {
		return s.Results[:limit], nil
	}
	return s.Results, nil
}

func (s *Search) News(ctx context.Context, q string, limit int) ([]tools.SearchResult, error) {
	return s.Web(ctx, q, limit)
}

func (s *Search) Weather(_ context.Context, city string) (string, error) {
	return "Weather in " + city + ": 21C, clear sky", nil
}

func (s *Search) Wikipedia(_ context.Context, topic string) (string, error) {
	return topic + " is a topic.", nil
}

// Media records played videos.
type Media struct {
	Videos   []tools.Video
	Played   []tools.Video
	Searched []string
}

func (m *Media) SearchVideos(_ context.Context, q string, limit int) ([]tools.Video, error) {
	if len(m.Videos) > limit {
		return m.Videos[:limit], nil
	}
	return m.Videos, nil
}

func (m *Media) Play(_ context.Context, v tools.Video) error {
	m.Played = append(m.Played, v)
	return nil
}

func (m *Media) OpenSearch(_ context.Context, q string) error {
	m.Searched = append(m.Searched, q)
	return nil
}

var (
	_ tools.Browser     = (*Browser)(nil)
	_ tools.Calendar    = (*Calendar)(nil)
	_ tools.Keyboard    = (*Keyboard)(nil)
	_ tools.FileManager = (*Files)(nil)
	_ tools.System      = (*System)(nil)
	_ tools.Software    = (*Software)(nil)
	_ tools.Search      = (*Search)(nil)
	_ tools.Media       = (*Media)(nil)
)
