package tools

import (
	"context"
	"time"

	"github.com/voice-assistant/server/internal/assistant/model"
)

// The interfaces below are the external collaborators the graph drives.
// Concrete implementations live under internal/assistant/services.

type Calendar interface {
	List(ctx context.Context, start, end time.Time) ([]model.CalendarEventRef, error)
	Create(ctx context.Context, ev model.CalendarEventRef) (model.CalendarEventRef, error)
	Update(ctx context.Context, id string, patch EventPatch) (model.CalendarEventRef, error)
	Delete(ctx context.Context, id string) error
}

// EventPatch carries the fields an update changes. Nil fields stay as they are.
type EventPatch struct {
	Title       *string
	Start       *time.Time
	End         *time.Time
	Description *string
	Location    *string
}

// Tab is one browser or explorer tab. Index is 0-based.
type Tab struct {
	Index  int
	Title  string
	URL    string
	Active bool
}

type Link struct {
	Text string
	URL  string
}

type Browser interface {
	Tabs(ctx context.Context) ([]Tab, error)
	SwitchTab(ctx context.Context, index int) (Tab, error)
	NewTab(ctx context.Context, url string) (Tab, error)
	CloseTab(ctx context.Context, index int) error
	Open(ctx context.Context, url string) (Tab, error)
	Scroll(ctx context.Context, direction string, amount int) error
	PageText(ctx context.Context) (string, error)
	Links(ctx context.Context) ([]Link, error)
	Close(ctx context.Context) error
}

// Entry is one directory listing row.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

type FileManager interface {
	Tabs(ctx context.Context) ([]Tab, error)
	SwitchTab(ctx context.Context, index int) (Tab, error)
	NewTab(ctx context.Context, path string) (Tab, error)
	CloseTab(ctx context.Context, index int) error
	OpenFolder(ctx context.Context, path string) ([]Entry, error)
	ReadFile(ctx context.Context, path string) (string, error)
	Copy(ctx context.Context, path string) error
	Cut(ctx context.Context, path string) error
	Paste(ctx context.Context, dir string) (string, error)
	Delete(ctx context.Context, path string) error
	Create(ctx context.Context, path string, dir bool) error
	Roots() []string
	Close(ctx context.Context) error
}

type Keyboard interface {
	Hotkey(ctx context.Context, keys ...string) error
	Press(ctx context.Context, key string) error
	Type(ctx context.Context, text string, interval time.Duration) error
}

// Performance is a host resource snapshot.
type Performance struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsedGB  float64
	MemoryTotalGB float64
	DiskPercent   float64
	DiskFreeGB    float64
	BatteryInfo   string
	Uptime        time.Duration
}

type System interface {
	SetBrightness(ctx context.Context, level int) error
	SetVolume(ctx context.Context, level int) error
	Performance(ctx context.Context) (Performance, error)
	QuickSetting(ctx context.Context, name string, on bool) error
}

// App is an installed desktop application.
type App struct {
	Name    string
	Exec    string
	Running bool
}

type Software interface {
	Find(ctx context.Context, name string) (App, bool, error)
	Open(ctx context.Context, name string) (App, error)
	Installed(ctx context.Context) ([]App, error)
}

// SearchResult is one hit from a web, news or encyclopedia search.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
	Source  string
	Date    string
}

type Search interface {
	Web(ctx context.Context, query string, limit int) ([]SearchResult, error)
	News(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Weather(ctx context.Context, city string) (string, error)
	Wikipedia(ctx context.Context, topic string) (string, error)
}

// Video is a media search hit.
type Video struct {
	Title string
	URL   string
}

type Media interface {
	SearchVideos(ctx context.Context, query string, limit int) ([]Video, error)
	Play(ctx context.Context, v Video) error
	OpenSearch(ctx context.Context, query string) error
}
