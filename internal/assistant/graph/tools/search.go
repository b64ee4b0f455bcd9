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
	ToolWebSearch  = "web_search"
	ToolNewsSearch = "news_search"
	ToolWeather    = "weather"
	ToolWikipedia  = "wikipedia"
)

type QueryInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type WeatherInput struct {
	City string `json:"city"`
}

func searchTools(s Search, timeout time.Duration) []tool.InvokableTool {
	queryParams := params(map[string]*schema.ParameterInfo{
		"query":       str("Search keywords.", true),
		"max_results": integer("Maximum number of results (default 5, max 10).", false),
	})

	return []tool.InvokableTool{
		newTextTool(&schema.ToolInfo{
			Name:        ToolWebSearch,
			Desc:        "Search the internet for current information. Returns titles, links and snippets.",
			ParamsOneOf: queryParams,
		}, "search the web", timeout, func(ctx context.Context, in *QueryInput) (string, error) {
			if err := needQuery(s, in.Query); err != nil {
				return "", err
			}
			hits, err := s.Web(ctx, in.Query, clamp(orDefault(in.MaxResults, 5), 1, 10))
			if err != nil {
				return "", err
			}
			return formatResults(fmt.Sprintf("No results found for '%s'", in.Query), fmt.Sprintf("Found %d results for '%s':", len(hits), in.Query), hits), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name:        ToolNewsSearch,
			Desc:        "Search recent news articles for a query. Use when the user asks for news.",
			ParamsOneOf: queryParams,
		}, "search news", timeout, func(ctx context.Context, in *QueryInput) (string, error) {
			if err := needQuery(s, in.Query); err != nil {
				return "", err
			}
			hits, err := s.News(ctx, in.Query, clamp(orDefault(in.MaxResults, 5), 1, 10))
			if err != nil {
				return "", err
			}
			return formatResults(fmt.Sprintf("No news articles found for '%s'", in.Query), fmt.Sprintf("Found %d news articles for '%s':", len(hits), in.Query), hits), nil
		}),

		newTextTool(&schema.ToolInfo{
			Name: ToolWeather,
			Desc: "Current weather for a city.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"city": str("City name, optionally with country code, e.g. London,GB.", true),
			}),
		}, "get weather", timeout, func(ctx context.Context, in *WeatherInput) (string, error) {
			if s == nil {
				return "", ErrUnavailable
			}
			if strings.TrimSpace(in.City) == "" {
				return "", errors.New("city is required")
			}
			return s.Weather(ctx, in.City)
		}),

		newTextTool(&schema.ToolInfo{
			Name: ToolWikipedia,
			Desc: "Look up a topic on Wikipedia and return a short summary.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"query": str("Topic to look up.", true),
			}),
		}, "search Wikipedia", timeout, func(ctx context.Context, in *QueryInput) (string, error) {
			if err := needQuery(s, in.Query); err != nil {
				return "", err
			}
			return s.Wikipedia(ctx, in.Query)
		}),
	}
}

func needQuery(s Search, q string) error {
	if s == nil {
		return ErrUnavailable
	}
	if strings.TrimSpace(q) == "" {
		return errors.New("query is required")
	}
	return nil
}

func formatResults(empty, header string, hits []SearchResult) string {
	if len(hits) == 0 {
		return empty
	}
	var b strings.Builder
	b.WriteString(header + "\n\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s\n", i+1, h.Title)
		if h.Date != "" {
			fmt.Fprintf(&b, "   Published: %s\n", h.Date)
		}
		if h.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", h.Snippet)
		}
		if h.URL != "" {
			fmt.Fprintf(&b, "   URL: %s\n", h.URL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
