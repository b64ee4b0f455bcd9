package browser

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/voice-assistant/server/internal/assistant/graph/tools"
)

const youtubeBase = "https://www.youtube.com"

var videoIDPattern = regexp.MustCompile(`"videoId":"([A-Za-z0-9_-]{11})"`)

// YouTube finds videos from the public results page and plays them in the
// assistant's browser.
type YouTube struct {
	http    *resty.Client
	browser tools.Browser
}

func NewYouTube(b tools.Browser) *YouTube {
	return &YouTube{
		http: resty.New().
			SetBaseURL(youtubeBase).
			SetTimeout(10*time.Second).
			SetHeader("Accept-Language", "en-US,en;q=0.9").
			SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)"),
		browser: b,
	}
}

func SearchURL(query string) string {
	return youtubeBase + "/results?search_query=" + url.QueryEscape(query)
}

func (y *YouTube) SearchVideos(ctx context.Context, query string, limit int) ([]tools.Video, error) {
	resp, err := y.http.R().
		SetContext(ctx).
		SetQueryParam("search_query", query).
		Get("/results")
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("youtube search: status %d", resp.StatusCode())
	}
	return ParseVideoIDs(resp.String(), limit), nil
}

// ParseVideoIDs pulls video ids out of a results page in order of appearance.
func ParseVideoIDs(page string, limit int) []tools.Video {
	seen := map[string]bool{}
	var out []tools.Video
	for _, m := range videoIDPattern.FindAllStringSubmatch(page, -1) {
		id := m[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, tools.Video{Title: id, URL: youtubeBase + "/watch?v=" + id})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (y *YouTube) Play(ctx context.Context, v tools.Video) error {
	_, err := y.browser.NewTab(ctx, v.URL)
	return err
}

func (y *YouTube) OpenSearch(ctx context.Context, query string) error {
	_, err := y.browser.NewTab(ctx, SearchURL(query))
	return err
}

var _ tools.Media = (*YouTube)(nil)
