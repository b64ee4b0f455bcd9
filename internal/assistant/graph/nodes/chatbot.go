package nodes

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
	"github.com/voice-assistant/server/internal/assistant/model"
	logx "github.com/voice-assistant/server/pkg/logger"
)

// ChatbotApology is the reply when the response model fails and no note is pending.
const ChatbotApology = "Sorry, I couldn't come up with a response right now. Please try again."

// NewChatbotNode writes the final reply of most turns. It consumes the
// one-shot feedback left by earlier nodes.
func NewChatbotNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) (*schema.Message, error) {
		v, err := view(ctx)
		if err != nil {
			return nil, err
		}
		var feedback string
		if err := withSession(ctx, func(s *model.SessionState) error {
			feedback = s.ConsumeFeedback()
			return nil
		}); err != nil {
			return nil, err
		}

		reply := generateReply(ctx, d, v, feedback)
		msg := schema.AssistantMessage(reply, nil)
		if err := withSession(ctx, func(s *model.SessionState) error {
			s.Append(msg)
			return nil
		}); err != nil {
			return nil, err
		}
		return msg, nil
	})
}

func generateReply(ctx context.Context, d *Deps, v turnView, feedback string) string {
	msgs, err := d.Prompts.Render(ctx, prompts.Chatbot, prompts.Vars{
		"Feedback": feedback,
		"Mode":     v.Mode.String(),
	}, d.humanPrompt(v, true))
	if err == nil {
		var resp *schema.Message
		resp, err = d.Worker.Generate(ctx, msgs)
		if err == nil && resp != nil && strings.TrimSpace(resp.Content) != "" {
			return strings.TrimSpace(resp.Content)
		}
	}

	logx.Error().
		Str("thread_id", v.ThreadID).
		Str("node", NodeChatbot).
		Err(err).
		Msg("Response generation failed")
	if feedback != "" {
		return feedback
	}
	return ChatbotApology
}
