package nodes

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/model"
)

var errNoSession = errors.New("graph state has no session")

// turnView is a read-only copy of the parts of the session a node needs.
// Model and collaborator calls run on it, outside the state lock.
type turnView struct {
	ThreadID string
	Query    string
	History  []*schema.Message
	Mode     model.Mode
	Turns    int
	Pending  *model.PendingConfirmation
	Events   []model.CalendarEventRef
}

func view(ctx context.Context) (turnView, error) {
	var v turnView
	err := withSession(ctx, func(s *model.SessionState) error {
		v = turnView{
			ThreadID: s.ThreadID,
			Query:    s.LatestUserText(),
			History:  append([]*schema.Message(nil), s.History...),
			Mode:     s.Mode,
			Turns:    s.Turns,
		}
		if s.Pending != nil {
			p := *s.Pending
			v.Pending = &p
		}
		v.Events, _ = model.GetScratch[[]model.CalendarEventRef](s, model.ScratchCalendarEvents)
		return nil
	})
	return v, err
}

func withState(ctx context.Context, fn func(*model.AppState) error) error {
	return compose.ProcessState(ctx, func(_ context.Context, st *model.AppState) error {
		if st.Session == nil {
			return errNoSession
		}
		return fn(st)
	})
}

func withSession(ctx context.Context, fn func(*model.SessionState) error) error {
	return withState(ctx, func(st *model.AppState) error {
		return fn(st.Session)
	})
}

// setFeedback leaves a one-shot note for the response node.
func setFeedback(ctx context.Context, text string) error {
	return withSession(ctx, func(s *model.SessionState) error {
		s.Feedback = text
		return nil
	})
}
