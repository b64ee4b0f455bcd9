// Package search answers web, news, weather and encyclopedia queries over HTTP.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	"github.com/voice-assistant/server/internal/assistant/model"
)

// Endpoints are overridable for tests.
type Endpoints struct {
	Serper      string
	NewsAPI     string
	OpenWeather string
	Wikipedia   string
}

var DefaultEndpoints = Endpoints{
	Serper:      "https://google.serper.dev",
	NewsAPI:     "https://newsapi.org/v2",
	OpenWeather: "https://api.openweathermap.org/data/2.5",
	Wikipedia:   "https://en.wikipedia.org/api/rest_v1",
}

var errNoKey = errors.New("API key is not configured")

type Client struct {
	http *resty.Client
	cfg  model.SearchConfig
	ep   Endpoints
}

func New(cfg model.SearchConfig, ep Endpoints) *Client {
	c := resty.New().
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", "voice-assistant/1.0")
	return &Client{http: c, cfg: cfg, ep: ep}
}

func (c *Client) Web(ctx context.Context, query string, limit int) ([]tools.SearchResult, error) {
	if c.cfg.SerperAPIKey == "" {
		return nil, fmt.Errorf("web search: %w", errNoKey)
	}
	var out struct {
		AnswerBox *struct {
			Title  string `json:"title"`
			Answer string `json:"answer"`
			Link   string `json:"link"`
		} `json:"answerBox"`
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"organic"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", c.cfg.SerperAPIKey).
		SetBody(map[string]any{"q": query, "num": limit}).
		SetResult(&out).
		Post(c.ep.Serper + "/search")
	if err := check("web search", resp, err); err != nil {
		return nil, err
	}

	var hits []tools.SearchResult
	if ab := out.AnswerBox; ab != nil && ab.Answer != "" {
		hits = append(hits, tools.SearchResult{Title: ab.Title, URL: ab.Link, Snippet: ab.Answer, Source: "answer"})
	}
	for _, o := range out.Organic {
		hits = append(hits, tools.SearchResult{Title: o.Title, URL: o.Link, Snippet: o.Snippet, Date: o.Date})
	}
	return head(hits, limit), nil
}

func (c *Client) News(ctx context.Context, query string, limit int) ([]tools.SearchResult, error) {
	if c.cfg.NewsAPIKey == "" {
		return nil, fmt.Errorf("news search: %w", errNoKey)
	}
	var out struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
			PublishedAt string `json:"publishedAt"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":        query,
			"sortBy":   "publishedAt",
			"pageSize": fmt.Sprint(limit),
			"apiKey":   c.cfg.NewsAPIKey,
		}).
		SetResult(&out).
		Get(c.ep.NewsAPI + "/everything")
	if err := check("news search", resp, err); err != nil {
		return nil, err
	}
	if out.Status != "" && out.Status != "ok" {
		return nil, fmt.Errorf("news search: %s", out.Message)
	}

	hits := make([]tools.SearchResult, 0, len(out.Articles))
	for _, a := range out.Articles {
		hits = append(hits, tools.SearchResult{Title: a.Title, URL: a.URL, Snippet: a.Description, Source: a.Source.Name, Date: a.PublishedAt})
	}
	return head(hits, limit), nil
}

func (c *Client) Weather(ctx context.Context, city string) (string, error) {
	if c.cfg.OpenWeatherAPIKey == "" {
		return "", fmt.Errorf("weather: %w", errNoKey)
	}
	var out struct {
		Name    string `json:"name"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  int     `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"q": city, "appid": c.cfg.OpenWeatherAPIKey, "units": "metric"}).
		SetResult(&out).
		Get(c.ep.OpenWeather + "/weather")
	if err := check("weather", resp, err); err != nil {
		return "", err
	}

	desc := "unknown conditions"
	if len(out.Weather) > 0 {
		desc = out.Weather[0].Description
	}
	return fmt.Sprintf("Weather in %s: %s, %.1f°C (feels like %.1f°C), humidity %d%%, wind %.1f m/s",
		out.Name, desc, out.Main.Temp, out.Main.FeelsLike, out.Main.Humidity, out.Wind.Speed), nil
}

func (c *Client) Wikipedia(ctx context.Context, topic string) (string, error) {
	var out struct {
		Title   string `json:"title"`
		Extract string `json:"extract"`
		Type    string `json:"type"`
	}
	title := url.PathEscape(strings.ReplaceAll(strings.TrimSpace(topic), " ", "_"))
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(c.ep.Wikipedia + "/page/summary/" + title)
	if resp != nil && resp.StatusCode() == 404 {
		return fmt.Sprintf("No Wikipedia article found for '%s'", topic), nil
	}
	if err := check("wikipedia", resp, err); err != nil {
		return "", err
	}
	if out.Type == "disambiguation" {
		return fmt.Sprintf("'%s' is ambiguous on Wikipedia. %s", out.Title, out.Extract), nil
	}
	return fmt.Sprintf("Page: %s\nSummary: %s", out.Title, out.Extract), nil
}

func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: status %d", op, resp.StatusCode())
	}
	return nil
}

func head(hits []tools.SearchResult, n int) []tools.SearchResult {
	if n > 0 && len(hits) > n {
		return hits[:n]
	}
	return hits
}

var _ tools.Search = (*Client)(nil)
