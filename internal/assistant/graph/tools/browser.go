package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const (
	ToolOpenWebsite = "open_website"
	ToolReadPage    = "read_page"
	ToolPageLinks   = "page_links"
	ToolListTabs    = "list_tabs"
	ToolSwitchTab   = "switch_tab"
	ToolNewTab      = "new_tab"
	ToolCloseTab    = "close_tab"
	ToolOpenPage    = "open_page"
	ToolScrollPage  = "scroll_page"

	placeholderURL  = "https://www.google.com"
	maxPageText     = 4000
	maxLinks        = 30
	defaultScrollPx = 500
)

type URLInput struct {
	URL string `json:"url"`
}

type TabInput struct {
	TabIndex int `json:"tab_index"`
}

type ScrollInput struct {
	Direction  string `json:"direction,omitempty"`
	Steps      int    `json:"steps,omitempty"`
	StepHeight int    `json:"step_height,omitempty"`
}

type EmptyInput struct{}

// browserTools returns the tools shared by the browser node and Chrome mode,
// keyed by name.
func browserTools(b Browser, timeout time.Duration) []tool.InvokableTool {
	urlParams := params(map[string]*schema.ParameterInfo{
		"url": str("Full URL to open. https:// is added when missing.", true),
	})
	tabParams := params(map[string]*schema.ParameterInfo{
		"tab_index": integer("0-based tab index as shown by list_tabs.", true),
	})

	return []tool.InvokableTool{
		newTextTool(&schema.ToolInfo{
			Name:        ToolOpenWebsite,
			Desc:        "Open a website in a new browser tab and return its title.",
			ParamsOneOf: urlParams,
		}, "open website", timeout, func(ctx context.Context, in *URLInput) (string, error) {
			if err := needBrowser(b); err != nil {
				return "", err
			}
			url, err := normalizeURL(in.URL)
			if err != nil {
				return "", err
			}
			tab, err := b.NewTab(ctx, url)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Opened '%s' (%s)", tab.URL, tab.Title), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolReadPage,
			Desc:        "Read the visible text of the active tab.",
			ParamsOneOf: noParams(),
		}, "read page", timeout, func(ctx context.Context, _ *EmptyInput) (string, error) {
			if err := needBrowser(b); err != nil {
				return "", err
			}
			text, err := b.PageText(ctx)
			if err != nil {
				return "", err
			}
			text = strings.TrimSpace(text)
			if text == "" {
				return "The page has no readable text.", nil
			}
			return truncateRunes(text, maxPageText), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolPageLinks,
			Desc:        "List the links on the active tab.",
			ParamsOneOf: noParams(),
		}, "list links", timeout, func(ctx context.Context, _ *EmptyInput) (string, error) {
			if err := needBrowser(b); err != nil {
				return "", err
			}
			links, err := b.Links(ctx)
			if err != nil {
				return "", err
			}
			if len(links) == 0 {
				return "No links found on the page.", nil
			}
			var sb strings.Builder
			for i, l := range links {
				if i == maxLinks {
					fmt.Fprintf(&sb, "... and %d more", len(links)-maxLinks)
					break
				}
				fmt.Fprintf(&sb, "%d. %s -> %s\n", i+1, l.Text, l.URL)
			}
			return strings.TrimRight(sb.String(), "\n"), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolListTabs,
			Desc:        "List open Chrome tabs with their 0-based index.",
			ParamsOneOf: noParams(),
		}, "list tabs", timeout, func(ctx context.Context, _ *EmptyInput) (string, error) {
			if err := needBrowser(b); err != nil {
				return "", err
			}
			tabs, err := b.Tabs(ctx)
			if err != nil {
				return "", err
			}
			return FormatTabs(tabs), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolSwitchTab,
			Desc:        "Switch to the Chrome tab at a 0-based index. Tab 1 for the user is index 0.",
			ParamsOneOf: tabParams,
		}, "switch tab", timeout, func(ctx context.Context, in *TabInput) (string, error) {
			if err := needBrowser(b); err != nil {
				return "", err
			}
			tabs, err := b.Tabs(ctx)
			if err != nil {
				return "", err
			}
			if in.TabIndex < 0 || in.TabIndex >= len(tabs) {
				return fmt.Sprintf("Error: Tab index %d out of range (0-%d)", in.TabIndex, len(tabs)-1), nil
			}
			if _, err := b.SwitchTab(ctx, in.TabIndex); err != nil {
				return "", err
			}
			return fmt.Sprintf("Chrome has switched to tab no: %d", in.TabIndex+1), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolNewTab,
			Desc:        "Open a new Chrome tab with a URL.",
			ParamsOneOf: urlParams,
		}, "open new tab", timeout, func(ctx context.Context, in *URLInput) (string, error) {
			if err := needBrowser(b); err != nil {
				return "", err
			}
			url, err := normalizeURL(in.URL)
			if err != nil {
				return "", err
			}
			if _, err := b.NewTab(ctx, url); err != nil {
				return "", err
			}
			return "New tab opened with URL: " + url, nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolCloseTab,
			Desc:        "Close the Chrome tab at a 0-based index. Tab 2 for the user is index 1.",
			ParamsOneOf: tabParams,
		}, "close tab", timeout, func(ctx context.Context, in *TabInput) (string, error) {
			if err := needBrowser(b); err != nil {
				return "", err
			}
			return CloseTab(ctx, b, in.TabIndex)
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolOpenPage,
			Desc:        "Open a URL in the current Chrome tab, replacing the page.",
			ParamsOneOf: urlParams,
		}, "open page", timeout, func(ctx context.Context, in *URLInput) (string, error) {
			if err := needBrowser(b); err != nil {
				return "", err
			}
			url, err := normalizeURL(in.URL)
			if err != nil {
				return "", err
			}
			if _, err := b.Open(ctx, url); err != nil {
				return "", err
			}
			return fmt.Sprintf("Open '%s' success", url), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name: ToolScrollPage,
			Desc: "Scroll the active page up or down in steps.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"direction":   {Type: schema.String, Desc: "up or down (default down).", Enum: []string{"up", "down"}},
				"steps":       integer("Number of steps (default 1, max 20).", false),
				"step_height": integer("Pixels per step (default 500).", false),
			}),
		}, "scroll page", timeout, func(ctx context.Context, in *ScrollInput) (string, error) {
			if err := needBrowser(b); err != nil {
				return "", err
			}
			dir := strings.ToLower(strings.TrimSpace(in.Direction))
			if dir != "up" {
				dir = "down"
			}
			steps := clamp(orDefault(in.Steps, 1), 1, 20)
			height := clamp(orDefault(in.StepHeight, defaultScrollPx), 50, 5000)
			if err := b.Scroll(ctx, dir, steps*height); err != nil {
				return "", err
			}
			return fmt.Sprintf("Scrolled %d steps %s by %dpx each", steps, dir, height), nil
		}),
	}
}

// CloseTab closes the tab at index and reports the tab that is active afterwards.
// Chrome cannot close its last tab without closing the window, so a placeholder
// tab is opened first when only one is left.
func CloseTab(ctx context.Context, b Browser, index int) (string, error) {
	tabs, err := b.Tabs(ctx)
	if err != nil {
		return "", err
	}
	if len(tabs) == 1 {
		if _, err := b.NewTab(ctx, placeholderURL); err != nil {
			return "", err
		}
		if tabs, err = b.Tabs(ctx); err != nil {
			return "", err
		}
	}
	if index < 0 || index >= len(tabs) {
		return "Invalid tab index", nil
	}

	closing := tabs[index]
	if err := b.CloseTab(ctx, index); err != nil {
		return "", err
	}
	active, err := b.SwitchTab(ctx, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Closing Tab %d (%s). Switched to Tab 1 (%s)", index+1, closing.Title, active.Title), nil
}

// FormatTabs renders tabs with the 0-based index the tab tools take.
func FormatTabs(tabs []Tab) string {
	if len(tabs) == 0 {
		return "No tabs are open."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d tab(s) open:\n", len(tabs))
	for _, t := range tabs {
		marker := ""
		if t.Active {
			marker = " (active)"
		}
		fmt.Fprintf(&b, "[%d] %s - %s%s\n", t.Index, t.Title, t.URL, marker)
	}
	return strings.TrimRight(b.String(), "\n")
}

func needBrowser(b Browser) error {
	if b == nil {
		return ErrUnavailable
	}
	return nil
}

func normalizeURL(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", errors.New("url is required")
	}
	if !strings.Contains(u, "://") {
		u = "https://" + u
	}
	return u, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
