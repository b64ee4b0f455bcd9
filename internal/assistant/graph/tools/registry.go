package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
)

// Toolset names. A tool-calling node is bound to exactly one.
const (
	SetSearch     = "search"
	SetBrowser    = "browser"
	SetChromeTab  = "chrome_tab"
	SetChromeFunc = "chrome_func"
	SetFilesTab   = "files_tab"
	SetFilesRead  = "files_read"
	SetFilesWrite = "files_write"
	SetSystem     = "system"
	SetSoftware   = "software"
)

var toolsets = map[string][]string{
	SetSearch:     {ToolWebSearch, ToolNewsSearch, ToolWeather, ToolWikipedia},
	SetBrowser:    {ToolOpenWebsite, ToolReadPage, ToolPageLinks},
	SetChromeTab:  {ToolListTabs, ToolSwitchTab, ToolNewTab, ToolCloseTab},
	SetChromeFunc: {ToolOpenPage, ToolScrollPage, ToolReadPage, ToolPageLinks},
	SetFilesTab:   {ToolListExplorerTabs, ToolSwitchExplorerTab, ToolNewExplorerTab, ToolCloseExplorerTab},
	SetFilesRead:  {ToolOpenFolder, ToolReadFile},
	SetFilesWrite: {ToolCopyItem, ToolCutItem, ToolPasteItem, ToolDeleteItem, ToolCreateItem, ToolOpenFolder},
	SetSystem:     {ToolBrightness, ToolVolume, ToolPerformance, ToolQuickSettings},
	SetSoftware:   {ToolOpenApp, ToolCheckSoftware, ToolCheckHarmful},
}

// Deps are the collaborators tools call into. Nil collaborators yield tools
// that answer "not available".
type Deps struct {
	Search   Search
	Browser  Browser
	Files    FileManager
	System   System
	Software Software
	// Model and Prompts back the harmful software assessment.
	Model   model.BaseChatModel
	Prompts *prompts.Renderer
	Timeout time.Duration
}

type Registry struct {
	byName map[string]tool.InvokableTool
	order  []string
}

func NewRegistry(d Deps) *Registry {
	r := &Registry{byName: map[string]tool.InvokableTool{}}
	groups := [][]tool.InvokableTool{
		searchTools(d.Search, d.Timeout),
		browserTools(d.Browser, d.Timeout),
		fileTools(d.Files, d.Timeout),
		systemTools(d.System, d.Timeout),
		softwareTools(d.Software, d.Model, d.Prompts, d.Timeout),
	}
	for _, g := range groups {
		for _, t := range g {
			info, err := t.Info(context.Background())
			if err != nil {
				continue
			}
			r.byName[info.Name] = t
			r.order = append(r.order, info.Name)
		}
	}
	return r
}

// Infos returns the descriptors of one toolset, in declaration order.
func (r *Registry) Infos(ctx context.Context, set string) ([]*schema.ToolInfo, error) {
	names, ok := toolsets[set]
	if !ok {
		return nil, fmt.Errorf("unknown toolset %q", set)
	}
	infos := make([]*schema.ToolInfo, 0, len(names))
	for _, n := range names {
		t, ok := r.byName[n]
		if !ok {
			return nil, fmt.Errorf("toolset %q: tool %q not registered", set, n)
		}
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool %q info: %w", n, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// All returns every registered tool once, for the shared tools node.
func (r *Registry) All() []tool.BaseTool {
	out := make([]tool.BaseTool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

func (r *Registry) Tool(name string) (tool.InvokableTool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// InSet reports whether a tool belongs to a toolset.
func InSet(set, name string) bool {
	for _, n := range toolsets[set] {
		if n == name {
			return true
		}
	}
	return false
}
