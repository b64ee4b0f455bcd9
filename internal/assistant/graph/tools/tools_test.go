package tools_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	"github.com/voice-assistant/server/internal/assistant/graph/tools/toolstest"
	"github.com/voice-assistant/server/internal/assistant/llm/llmtest"
	"github.com/voice-assistant/server/internal/assistant/model"
)

func run(t *testing.T, r *tools.Registry, name, args string) string {
	t.Helper()
	tl, ok := r.Tool(name)
	require.True(t, ok, name)
	out, err := tl.InvokableRun(context.Background(), args)
	require.NoError(t, err)
	return out
}

func TestCloseTab_ReportsNewActiveTab(t *testing.T) {
	b := toolstest.NewBrowser("Mail", "News", "Docs")
	r := tools.NewRegistry(tools.Deps{Browser: b})

	out := run(t, r, tools.ToolCloseTab, `{"tab_index": 1}`)

	assert.Equal(t, "Closing Tab 2 (News). Switched to Tab 1 (Mail)", out)
	assert.Contains(t, b.Calls, "close 1")
	tabs, _ := b.Tabs(context.Background())
	require.Len(t, tabs, 2)
	assert.True(t, tabs[0].Active)
}

func TestCloseTab_LastTabOpensPlaceholder(t *testing.T) {
	b := toolstest.NewBrowser("Mail")
	out, err := tools.CloseTab(context.Background(), b, 0)
	require.NoError(t, err)
	assert.Equal(t, "new https://www.google.com", b.Calls[0])
	assert.Contains(t, out, "Closing Tab 1 (Mail)")
}

func TestCloseTab_InvalidIndex(t *testing.T) {
	b := toolstest.NewBrowser("Mail", "News")
	out, err := tools.CloseTab(context.Background(), b, 5)
	require.NoError(t, err)
	assert.Equal(t, "Invalid tab index", out)
}

func TestSwitchTab_OneBasedReport(t *testing.T) {
	r := tools.NewRegistry(tools.Deps{Browser: toolstest.NewBrowser("A", "B", "C")})
	assert.Equal(t, "Chrome has switched to tab no: 3", run(t, r, tools.ToolSwitchTab, `{"tab_index": 2}`))
	assert.Contains(t, run(t, r, tools.ToolSwitchTab, `{"tab_index": 9}`), "out of range")
}

func TestNewTab_AddsScheme(t *testing.T) {
	r := tools.NewRegistry(tools.Deps{Browser: toolstest.NewBrowser("A")})
	assert.Equal(t, "New tab opened with URL: https://github.com", run(t, r, tools.ToolNewTab, `{"url": "github.com"}`))
}

func TestToolErrorsBecomeText(t *testing.T) {
	b := toolstest.NewBrowser("A")
	b.Err = errors.New("browser crashed")
	r := tools.NewRegistry(tools.Deps{Browser: b})

	assert.Equal(t, "Failed to list tabs: browser crashed", run(t, r, tools.ToolListTabs, `{}`))
}

func TestMissingCollaboratorIsUnavailable(t *testing.T) {
	r := tools.NewRegistry(tools.Deps{})
	out := run(t, r, tools.ToolVolume, `{"level": 30}`)
	assert.Equal(t, "Failed to set volume: not available on this machine", out)
}

func TestArgumentsAreRepaired(t *testing.T) {
	sys := &toolstest.System{}
	r := tools.NewRegistry(tools.Deps{System: sys})

	out := run(t, r, tools.ToolBrightness, "```json\n{\"level\": 140,}\n```")
	assert.Equal(t, "Display brightness set to 100%", out)
	assert.Equal(t, 100, sys.Brightness)
}

func TestUndecodableArgumentsBecomeText(t *testing.T) {
	s := &toolstest.Search{}
	r := tools.NewRegistry(tools.Deps{Search: s, Browser: toolstest.NewBrowser("A")})

	assert.Equal(t, "Failed to search the web: invalid arguments", run(t, r, tools.ToolWebSearch, `{"query": 42}`))
	assert.Equal(t, "Failed to search the web: invalid arguments", run(t, r, tools.ToolWebSearch, `[1, 2]`))
	assert.Contains(t, run(t, r, tools.ToolOpenWebsite, `{"url": 1}`), "Failed to ")
	assert.Empty(t, s.Queries)
}

func TestVolumeZeroMutes(t *testing.T) {
	sys := &toolstest.System{}
	r := tools.NewRegistry(tools.Deps{System: sys})
	assert.Equal(t, "System audio muted", run(t, r, tools.ToolVolume, `{"level": 0}`))
}

func TestQuickSettings(t *testing.T) {
	sys := &toolstest.System{}
	r := tools.NewRegistry(tools.Deps{System: sys})

	assert.Equal(t, "wifi turned off", run(t, r, tools.ToolQuickSettings, `{"setting": "WiFi", "enable": false}`))
	assert.Equal(t, "bluetooth turned on", run(t, r, tools.ToolQuickSettings, `{"setting": "bluetooth"}`))
	assert.Equal(t, "Invalid setting: teleport", run(t, r, tools.ToolQuickSettings, `{"setting": "teleport"}`))
	assert.Equal(t, map[string]bool{"wifi": false, "bluetooth": true}, sys.Settings)
}

func TestSearchFormatting(t *testing.T) {
	s := &toolstest.Search{Results: []tools.SearchResult{{Title: "Go 1.25", URL: "https://go.dev", Snippet: "Released"}}}
	r := tools.NewRegistry(tools.Deps{Search: s})

	out := run(t, r, tools.ToolWebSearch, `{"query": "go release"}`)
	assert.Contains(t, out, "Found 1 results for 'go release'")
	assert.Contains(t, out, "URL: https://go.dev")

	s.Results = nil
	assert.Equal(t, "No news articles found for 'nothing'", run(t, r, tools.ToolNewsSearch, `{"query": "nothing"}`))
}

func TestFileTools(t *testing.T) {
	fm := toolstest.NewFiles()
	fm.Entries["/home/user/docs"] = []tools.Entry{{Name: "a.txt", Size: 3}, {Name: "sub", IsDir: true}}
	fm.Content["/home/user/docs/a.txt"] = "abc"
	r := tools.NewRegistry(tools.Deps{Files: fm})

	listing := run(t, r, tools.ToolOpenFolder, `{"path": "/home/user/docs"}`)
	assert.Contains(t, listing, "[file] a.txt (3 bytes)")
	assert.Contains(t, listing, "[dir]  sub")
	assert.Equal(t, "abc", run(t, r, tools.ToolReadFile, `{"path": "/home/user/docs/a.txt"}`))
	assert.Equal(t, "Folder created: /home/user/docs/new", run(t, r, tools.ToolCreateItem, `{"path": "/home/user/docs", "name": "new", "item_type": "folder"}`))
	assert.Contains(t, run(t, r, tools.ToolReadFile, `{"path": "/nope"}`), "Failed to read file:")
}

func TestCheckHarmfulSoftware(t *testing.T) {
	rend, err := prompts.NewRenderer(model.AssistantConfig{Timezone: "UTC"})
	require.NoError(t, err)
	m := llmtest.New().On("assess installed applications", llmtest.Text(`{"harmful": [{"name": "CoinMiner", "reason": "crypto miner"}], "summary": "Remove it."}`))
	sw := &toolstest.Software{Apps: []tools.App{{Name: "Firefox"}, {Name: "CoinMiner"}}}
	r := tools.NewRegistry(tools.Deps{Software: sw, Model: m, Prompts: rend})

	out := run(t, r, tools.ToolCheckHarmful, `{}`)
	assert.Contains(t, out, "1. CoinMiner: crypto miner")
	require.Equal(t, 1, m.CallCount())
	assert.Contains(t, m.Calls()[0].System, "- Firefox")
}

func TestOpenApp(t *testing.T) {
	sw := &toolstest.Software{Apps: []tools.App{{Name: "Firefox"}}}
	r := tools.NewRegistry(tools.Deps{Software: sw})
	assert.Equal(t, "Successfully opened Firefox", run(t, r, tools.ToolOpenApp, `{"app_name": "firefox"}`))
	assert.Equal(t, "Application 'gimp' not found in system", run(t, r, tools.ToolOpenApp, `{"app_name": "gimp"}`))
}

func TestRegistryToolsets(t *testing.T) {
	r := tools.NewRegistry(tools.Deps{})
	ctx := context.Background()

	infos, err := r.Infos(ctx, tools.SetChromeTab)
	require.NoError(t, err)
	var names []string
	for _, i := range infos {
		names = append(names, i.Name)
	}
	assert.Equal(t, []string{"list_tabs", "switch_tab", "new_tab", "close_tab"}, names)

	_, err = r.Infos(ctx, "nope")
	assert.Error(t, err)

	seen := map[string]bool{}
	for _, tl := range r.All() {
		info, err := tl.Info(ctx)
		require.NoError(t, err)
		assert.False(t, seen[info.Name], "duplicate %s", info.Name)
		seen[info.Name] = true
	}
	assert.True(t, tools.InSet(tools.SetFilesWrite, tools.ToolOpenFolder))
	assert.False(t, tools.InSet(tools.SetSearch, tools.ToolOpenFolder))
}
