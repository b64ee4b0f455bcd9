package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/model"
	logx "github.com/voice-assistant/server/pkg/logger"
)

// NewInputPreHandler adopts the loaded session as the turn's working copy and
// records the user message.
func NewInputPreHandler() func(context.Context, *model.TurnInput, *model.AppState) (*model.TurnInput, error) {
	return func(ctx context.Context, in *model.TurnInput, s *model.AppState) (*model.TurnInput, error) {
		if in == nil {
			return nil, fmt.Errorf("turn input is nil")
		}
		session := in.Session
		if session == nil {
			session = model.NewSession(in.ThreadID)
		}
		s.Session = session
		s.TurnID = in.TurnID
		// Reset per-turn bookkeeping
		s.Loop = model.LoopState{}
		s.Calendar = model.CalendarOutcome{}
		s.ToolCallIDSeq = 0

		session.Turns++
		if session.Pending != nil && !session.Pending.LiveAt(session.Turns) {
			logx.Debug().
				Str("thread_id", session.ThreadID).
				Str("action", session.Pending.Action).
				Msg("Dropping unanswered confirmation")
			session.Pending = nil
		}
		session.Append(schema.UserMessage(in.Text))
		return in, nil
	}
}

// NewInputNode hands the user message to the top-level router.
func NewInputNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *model.TurnInput) (*schema.Message, error) {
		return schema.UserMessage(in.Text), nil
	})
}

// NewOutputNode ends the turn with the reply and the session to commit.
func NewOutputNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*model.TurnResult, error) {
		out := &model.TurnResult{}
		if in != nil {
			out.Reply = in.Content
		}
		err := withSession(ctx, func(s *model.SessionState) error {
			s.UpdatedAt = time.Now()
			out.Session = s
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}
