package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	logx "github.com/voice-assistant/server/pkg/logger"
)

type youtubeExtraction struct {
	NotRelated   bool   `json:"not_related"`
	SearchText   string `json:"search_text"`
	PlayDirectly bool   `json:"play_directly"`
	Reasoning    string `json:"reasoning"`
}

const youtubeHint = `{"not_related": bool, "search_text": string, "play_directly": bool, "reasoning": string}`

// NewYouTubeNode plays the first match or opens the search results.
func NewYouTubeNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		v, err := view(ctx)
		if err != nil {
			return nil, err
		}
		result := d.youtube(ctx, v)
		logx.Debug().Str("thread_id", v.ThreadID).Str("node", NodeYouTube).Str("result", result).Msg("YouTube action")
		if err := setFeedback(ctx, result); err != nil {
			return nil, err
		}
		return schema.AssistantMessage(result, nil), nil
	})
}

func (d *Deps) youtube(ctx context.Context, v turnView) string {
	var out youtubeExtraction
	if err := d.structured(ctx, prompts.YouTube, nil, d.humanPrompt(v, false), youtubeHint, &out); err != nil {
		return fmt.Sprintf("Failed to search YouTube: %v", err)
	}
	query := strings.TrimSpace(out.SearchText)
	if out.NotRelated || query == "" {
		if r := strings.TrimSpace(out.Reasoning); r != "" {
			return r
		}
		return "What would you like me to play?"
	}
	if d.Media == nil {
		return fmt.Sprintf("Failed to search YouTube: %v", tools.ErrUnavailable)
	}

	ctx, cancel := d.collaborator(ctx)
	defer cancel()

	if out.PlayDirectly {
		videos, err := d.Media.SearchVideos(ctx, query, 1)
		if err != nil {
			logx.Warn().Str("thread_id", v.ThreadID).Err(err).Msg("Video search failed; opening results instead")
		} else if len(videos) > 0 {
			if err := d.Media.Play(ctx, videos[0]); err != nil {
				return fmt.Sprintf("Failed to play video: %v", err)
			}
			title := videos[0].Title
			if title == "" {
				title = query
			}
			return fmt.Sprintf("Playing '%s' on YouTube.", title)
		}
	}
	if err := d.Media.OpenSearch(ctx, query); err != nil {
		return fmt.Sprintf("Failed to search YouTube: %v", err)
	}
	return fmt.Sprintf("Opened YouTube search results for '%s'.", query)
}
