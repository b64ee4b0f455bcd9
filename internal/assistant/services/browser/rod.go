// Package browser drives a local Chrome through the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	"github.com/voice-assistant/server/internal/assistant/model"
	logx "github.com/voice-assistant/server/pkg/logger"
)

const (
	homeURL     = "https://www.google.com/"
	loadTimeout = 15 * time.Second
)

// RodBrowser is a single long-lived Chrome window. It launches lazily and is
// relaunched when the previous process went away.
type RodBrowser struct {
	cfg model.BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
	pages   []*rod.Page
	active  int
}

func NewRodBrowser(cfg model.BrowserConfig) *RodBrowser {
	return &RodBrowser{cfg: cfg}
}

func (b *RodBrowser) ensure(ctx context.Context) error {
	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return b.sync()
		}
		logx.Warn().Msg("Browser session is stale; relaunching")
		_ = b.browser.Close()
		b.browser, b.pages, b.active = nil, nil, 0
	}

	l := launcher.New().Headless(b.cfg.Headless).Leakless(true)
	if b.cfg.Bin != "" {
		l = l.Bin(b.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	// The window outlives the turn that opened it, so it is not bound to ctx.
	br := rod.New().ControlURL(controlURL)
	if err := br.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = br

	if err := b.sync(); err != nil {
		return err
	}
	if len(b.pages) == 0 {
		p, err := br.Page(proto.TargetCreateTarget{URL: homeURL})
		if err != nil {
			return fmt.Errorf("open first tab: %w", err)
		}
		b.pages = []*rod.Page{p}
	}
	logx.Info().Str("control_url", controlURL).Msg("Browser launched")
	return ctx.Err()
}

// sync reconciles the tracked tab order with the targets Chrome reports.
// Tabs the user opened by hand are appended at the end.
func (b *RodBrowser) sync() error {
	live, err := b.browser.Pages()
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	byID := make(map[proto.TargetTargetID]*rod.Page, len(live))
	for _, p := range live {
		byID[p.TargetID] = p
	}

	kept := b.pages[:0]
	for _, p := range b.pages {
		if _, ok := byID[p.TargetID]; ok {
			kept = append(kept, p)
			delete(byID, p.TargetID)
		}
	}
	for _, p := range live {
		if _, ok := byID[p.TargetID]; ok {
			kept = append(kept, p)
		}
	}
	b.pages = kept
	if b.active >= len(b.pages) {
		b.active = 0
	}
	return nil
}

func (b *RodBrowser) current() (*rod.Page, error) {
	if len(b.pages) == 0 {
		return nil, errors.New("no open tab")
	}
	return b.pages[b.active], nil
}

func (b *RodBrowser) tab(i int) tools.Tab {
	t := tools.Tab{Index: i, Active: i == b.active}
	if info, err := b.pages[i].Info(); err == nil {
		t.Title, t.URL = info.Title, info.URL
	}
	return t
}

func (b *RodBrowser) Tabs(ctx context.Context) ([]tools.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensure(ctx); err != nil {
		return nil, err
	}
	out := make([]tools.Tab, len(b.pages))
	for i := range b.pages {
		out[i] = b.tab(i)
	}
	return out, nil
}

func (b *RodBrowser) SwitchTab(ctx context.Context, index int) (tools.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensure(ctx); err != nil {
		return tools.Tab{}, err
	}
	if index < 0 || index >= len(b.pages) {
		return tools.Tab{}, fmt.Errorf("tab index %d out of range", index)
	}
	if _, err := b.pages[index].Activate(); err != nil {
		return tools.Tab{}, fmt.Errorf("activate tab: %w", err)
	}
	b.active = index
	return b.tab(index), nil
}

func (b *RodBrowser) NewTab(ctx context.Context, u string) (tools.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensure(ctx); err != nil {
		return tools.Tab{}, err
	}
	p, err := b.browser.Page(proto.TargetCreateTarget{URL: u})
	if err != nil {
		return tools.Tab{}, fmt.Errorf("open tab: %w", err)
	}
	_ = p.Context(ctx).Timeout(loadTimeout).WaitLoad()
	if _, err := p.Activate(); err != nil {
		return tools.Tab{}, fmt.Errorf("activate tab: %w", err)
	}
	b.pages = append(b.pages, p)
	b.active = len(b.pages) - 1
	return b.tab(b.active), nil
}

func (b *RodBrowser) CloseTab(ctx context.Context, index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensure(ctx); err != nil {
		return err
	}
	if index < 0 || index >= len(b.pages) {
		return fmt.Errorf("tab index %d out of range", index)
	}
	if err := b.pages[index].Close(); err != nil {
		return fmt.Errorf("close tab: %w", err)
	}
	b.pages = append(b.pages[:index], b.pages[index+1:]...)
	if b.active >= len(b.pages) {
		b.active = 0
	}
	return nil
}

func (b *RodBrowser) Open(ctx context.Context, u string) (tools.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensure(ctx); err != nil {
		return tools.Tab{}, err
	}
	p, err := b.current()
	if err != nil {
		return tools.Tab{}, err
	}
	page := p.Context(ctx).Timeout(loadTimeout)
	if err := page.Navigate(u); err != nil {
		return tools.Tab{}, fmt.Errorf("navigate: %w", err)
	}
	_ = page.WaitLoad()
	return b.tab(b.active), nil
}

func (b *RodBrowser) Scroll(ctx context.Context, direction string, amount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensure(ctx); err != nil {
		return err
	}
	p, err := b.current()
	if err != nil {
		return err
	}
	if direction == "up" {
		amount = -amount
	}
	_, err = p.Context(ctx).Eval(`(dy) => window.scrollBy({top: dy, behavior: "smooth"})`, amount)
	return err
}

// HTML returns the active tab's document.
func (b *RodBrowser) HTML(ctx context.Context) (string, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensure(ctx); err != nil {
		return "", "", err
	}
	p, err := b.current()
	if err != nil {
		return "", "", err
	}
	html, err := p.Context(ctx).HTML()
	if err != nil {
		return "", "", fmt.Errorf("read page: %w", err)
	}
	base := ""
	if info, err := p.Info(); err == nil {
		base = info.URL
	}
	return html, base, nil
}

func (b *RodBrowser) PageText(ctx context.Context) (string, error) {
	html, _, err := b.HTML(ctx)
	if err != nil {
		return "", err
	}
	return TextOf(html)
}

func (b *RodBrowser) Links(ctx context.Context) ([]tools.Link, error) {
	html, base, err := b.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return LinksOf(html, base)
}

func (b *RodBrowser) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser, b.pages, b.active = nil, nil, 0
	return err
}

// TextOf extracts readable text from an HTML document.
func TextOf(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, svg, iframe").Remove()

	var parts []string
	doc.Find("title, h1, h2, h3, h4, p, li, td, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		if t := collapse(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return collapse(doc.Find("body").Text()), nil
	}
	return strings.Join(parts, "\n"), nil
}

// LinksOf lists anchors with absolute URLs, dropping duplicates and script links.
func LinksOf(html, base string) ([]tools.Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	baseURL, _ := url.Parse(base)

	seen := map[string]bool{}
	var out []tools.Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		if u, err := url.Parse(href); err == nil && baseURL != nil {
			href = baseURL.ResolveReference(u).String()
		}
		if seen[href] {
			return
		}
		seen[href] = true
		text := collapse(s.Text())
		if text == "" {
			text = href
		}
		out = append(out, tools.Link{Text: text, URL: href})
	})
	return out, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var _ tools.Browser = (*RodBrowser)(nil)
