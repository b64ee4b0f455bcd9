package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voice-assistant/server/internal/assistant/graph/conversations"
	"github.com/voice-assistant/server/internal/assistant/graph/prompts"
	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	"github.com/voice-assistant/server/internal/assistant/model"
	logx "github.com/voice-assistant/server/pkg/logger"
)

// Calendar actions, as recorded in the outcome.
const (
	CalendarActionView   = "view"
	CalendarActionCreate = "create"
	CalendarActionUpdate = "update"
	CalendarActionDelete = "delete"
)

const (
	eventLayout    = "January 02, 2006 at 03:04 PM"
	eventEndLayout = "03:04 PM"
	defaultLength  = time.Hour
)

var isoLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseEventTime reads an ISO timestamp. Values without a zone are taken in loc.
func ParseEventTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// EventSpan renders the time range used in calendar confirmations.
func EventSpan(start, end time.Time) string {
	return start.Format(eventLayout) + " to " + end.Format(eventEndLayout)
}

type rangeExtraction struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

const rangeHint = `{"start_date": "YYYY-MM-DDTHH:MM:SS", "end_date": "YYYY-MM-DDTHH:MM:SS"}`

// NewCalendarQueryNode resolves the requested date range and stores the
// matching events in scratch. A "yes" to a live delete question reuses the
// events already in scratch.
func NewCalendarQueryNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		v, err := view(ctx)
		if err != nil {
			return nil, err
		}
		var affirmed bool
		if err := withSession(ctx, func(s *model.SessionState) error {
			affirmed = conversations.AffirmsPendingDelete(s)
			return nil
		}); err != nil {
			return nil, err
		}
		if affirmed {
			logx.Debug().Str("thread_id", v.ThreadID).Msg("Confirmation reply; reusing fetched events")
			return schema.AssistantMessage(model.FormatEvents(v.Events), nil), nil
		}

		start, end := d.resolveRange(ctx, v)
		if d.Calendar == nil {
			msg := "Failed to fetch events: calendar " + tools.ErrUnavailable.Error()
			if err := setFeedback(ctx, msg); err != nil {
				return nil, err
			}
			return schema.AssistantMessage(msg, nil), nil
		}

		cctx, cancel := d.collaborator(ctx)
		events, err := d.Calendar.List(cctx, start, end)
		cancel()
		if err != nil {
			logx.Error().Str("thread_id", v.ThreadID).Str("node", NodeCalendar).Err(err).Msg("Calendar query failed")
			if err := setFeedback(ctx, fmt.Sprintf("Failed to fetch events: %v", err)); err != nil {
				return nil, err
			}
			events = nil
		}

		err = withSession(ctx, func(s *model.SessionState) error {
			return model.PutScratch(s, model.ScratchCalendarEvents, events)
		})
		if err != nil {
			return nil, err
		}
		logx.Debug().
			Str("thread_id", v.ThreadID).
			Time("start", start).
			Time("end", end).
			Int("events", len(events)).
			Msg("Calendar events fetched")
		return schema.AssistantMessage(model.FormatEvents(events), nil), nil
	})
}

// resolveRange asks the worker for the period; anything unusable means today.
func (d *Deps) resolveRange(ctx context.Context, v turnView) (time.Time, time.Time) {
	loc := d.Prompts.Location()
	now := d.Prompts.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	start, end := dayStart, dayStart.Add(24*time.Hour-time.Second)

	var out rangeExtraction
	if err := d.structured(ctx, prompts.CalendarQuery, nil, d.humanPrompt(v, false), rangeHint, &out); err != nil {
		logx.Warn().Str("thread_id", v.ThreadID).Err(err).Msg("Calendar range extraction failed; using today")
		return start, end
	}
	s, serr := ParseEventTime(out.StartDate, loc)
	e, eerr := ParseEventTime(out.EndDate, loc)
	switch {
	case serr != nil:
		return start, end
	case eerr != nil || !e.After(s):
		// a bare day covers the whole day
		y, m, dd := s.Date()
		return s, time.Date(y, m, dd, 23, 59, 59, 0, loc)
	default:
		return s, e
	}
}

type createExtraction struct {
	CanMake     bool   `json:"can_make"`
	Name        string `json:"name"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Description string `json:"description"`
	Feedback    string `json:"feedback"`
}

const createHint = `{"can_make": bool, "name": string, "start_date": "YYYY-MM-DDTHH:MM:SS", "end_date": "YYYY-MM-DDTHH:MM:SS", "description": string, "feedback": string}`

// NewCalendarCreateNode adds an event once name and start are known.
func NewCalendarCreateNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		v, err := view(ctx)
		if err != nil {
			return nil, err
		}

		var out createExtraction
		if err := d.structured(ctx, prompts.CalendarCreate, nil, d.humanPrompt(v, false), createHint, &out); err != nil {
			return calendarResult(ctx, CalendarActionCreate, fmt.Sprintf("Failed to create event: %v", err))
		}

		ev, problem := out.event(d.Prompts.Location())
		if problem != "" {
			return calendarFeedback(ctx, CalendarActionCreate, problem)
		}
		if d.Calendar == nil {
			return calendarResult(ctx, CalendarActionCreate, "Failed to create event: calendar "+tools.ErrUnavailable.Error())
		}

		cctx, cancel := d.collaborator(ctx)
		created, err := d.Calendar.Create(cctx, ev)
		cancel()
		if err != nil {
			logx.Error().Str("thread_id", v.ThreadID).Str("node", NodeCalendarCreate).Err(err).Msg("Calendar create failed")
			return calendarResult(ctx, CalendarActionCreate, fmt.Sprintf("Failed to create event: %v", err))
		}
		return calendarResult(ctx, CalendarActionCreate,
			fmt.Sprintf("Event '%s' created successfully for %s", created.Title, EventSpan(created.Start, created.End)))
	})
}

// event validates the extraction. A non-empty problem is the feedback to give instead.
func (c createExtraction) event(loc *time.Location) (model.CalendarEventRef, string) {
	ask := func(def string) string {
		if strings.TrimSpace(c.Feedback) != "" {
			return strings.TrimSpace(c.Feedback)
		}
		return def
	}
	if !c.CanMake {
		return model.CalendarEventRef{}, ask("I need a day and a time to create the event. When should it be?")
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return model.CalendarEventRef{}, ask("What should I call the event?")
	}
	start, err := ParseEventTime(c.StartDate, loc)
	if err != nil {
		return model.CalendarEventRef{}, ask("I couldn't work out when the event starts. Which day and time should it be?")
	}
	end := start.Add(defaultLength)
	if strings.TrimSpace(c.EndDate) != "" {
		e, err := ParseEventTime(c.EndDate, loc)
		if err != nil {
			return model.CalendarEventRef{}, "I couldn't work out when the event ends. How long should it be?"
		}
		end = e
	}
	if !end.After(start) {
		return model.CalendarEventRef{}, "The event has to end after it starts. When should it end?"
	}
	return model.CalendarEventRef{
		Title:       name,
		Start:       start,
		End:         end,
		Description: strings.TrimSpace(c.Description),
	}, ""
}

type updateExtraction struct {
	CanMake     bool   `json:"can_make"`
	EventID     string `json:"event_id"`
	Name        string `json:"name"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Description string `json:"description"`
	Feedback    string `json:"feedback"`
}

const updateHint = `{"can_make": bool, "event_id": string, "name": string, "start_date": "YYYY-MM-DDTHH:MM:SS", "end_date": "YYYY-MM-DDTHH:MM:SS", "description": string, "feedback": string}`

// NewCalendarUpdateNode changes one of the fetched events.
func NewCalendarUpdateNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		v, err := view(ctx)
		if err != nil {
			return nil, err
		}
		if len(v.Events) == 0 {
			return calendarFeedback(ctx, CalendarActionUpdate, "I couldn't find any events in that period to update. Which day is the event on?")
		}

		var out updateExtraction
		vars := prompts.Vars{"Events": model.FormatEvents(v.Events)}
		if err := d.structured(ctx, prompts.CalendarUpdate, vars, d.humanPrompt(v, false), updateHint, &out); err != nil {
			return calendarResult(ctx, CalendarActionUpdate, fmt.Sprintf("Failed to update event: %v", err))
		}

		current, patch, problem := out.patch(v.Events, d.Prompts.Location())
		if problem != "" {
			return calendarFeedback(ctx, CalendarActionUpdate, problem)
		}
		if d.Calendar == nil {
			return calendarResult(ctx, CalendarActionUpdate, "Failed to update event: calendar "+tools.ErrUnavailable.Error())
		}

		cctx, cancel := d.collaborator(ctx)
		updated, err := d.Calendar.Update(cctx, current.ID, patch)
		cancel()
		if err != nil {
			logx.Error().Str("thread_id", v.ThreadID).Str("node", NodeCalendarUpdate).Err(err).Msg("Calendar update failed")
			return calendarResult(ctx, CalendarActionUpdate, fmt.Sprintf("Failed to update event: %v", err))
		}

		if err := withSession(ctx, func(s *model.SessionState) error {
			return model.PutScratch(s, model.ScratchCalendarEvents, replaceEvent(v.Events, updated))
		}); err != nil {
			return nil, err
		}
		return calendarResult(ctx, CalendarActionUpdate,
			fmt.Sprintf("Updated '%s' successfully for %s", updated.Title, EventSpan(updated.Start, updated.End)))
	})
}

func (u updateExtraction) patch(events []model.CalendarEventRef, loc *time.Location) (model.CalendarEventRef, tools.EventPatch, string) {
	var patch tools.EventPatch
	ask := func(def string) string {
		if strings.TrimSpace(u.Feedback) != "" {
			return strings.TrimSpace(u.Feedback)
		}
		return def
	}

	current, ok := model.FindEvent(events, u.EventID)
	if !ok {
		return current, patch, ask("Which event would you like to change?")
	}
	if !u.CanMake {
		return current, patch, ask("What would you like to change about '" + current.Title + "'?")
	}

	if name := strings.TrimSpace(u.Name); name != "" && name != current.Title {
		patch.Title = &name
	}
	if desc := strings.TrimSpace(u.Description); desc != "" {
		patch.Description = &desc
	}

	start, end := current.Start, current.End
	if strings.TrimSpace(u.StartDate) != "" {
		s, err := ParseEventTime(u.StartDate, loc)
		if err != nil {
			return current, patch, "I couldn't work out the new start time. When should it start?"
		}
		// keep the original duration when only the start moves
		end = s.Add(current.End.Sub(current.Start))
		if !current.End.After(current.Start) {
			end = s.Add(defaultLength)
		}
		start = s
		patch.Start = &start
	}
	if strings.TrimSpace(u.EndDate) != "" {
		e, err := ParseEventTime(u.EndDate, loc)
		if err != nil {
			return current, patch, "I couldn't work out the new end time. When should it end?"
		}
		end = e
	}
	if !end.Equal(current.End) {
		patch.End = &end
	}
	if !end.After(start) {
		return current, patch, "The event has to end after it starts. When should it end?"
	}
	if patch == (tools.EventPatch{}) {
		return current, patch, ask("What would you like to change about '" + current.Title + "'?")
	}
	return current, patch, ""
}

type deleteExtraction struct {
	CanMake   bool   `json:"can_make"`
	EventID   string `json:"event_id"`
	Confirmed bool   `json:"confirmed"`
	Feedback  string `json:"feedback"`
}

const deleteHint = `{"event_id": string, "confirmed": bool, "can_make": bool, "feedback": string}`

// NewCalendarDeleteNode deletes a fetched event. The delete only happens when
// the id is among the fetched events and the user confirmed: either in the
// same utterance, or by answering a confirmation question asked on the
// previous turn. Otherwise it asks and records the pending confirmation.
func NewCalendarDeleteNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		v, err := view(ctx)
		if err != nil {
			return nil, err
		}

		var affirmed bool
		if err := withSession(ctx, func(s *model.SessionState) error {
			affirmed = conversations.AffirmsPendingDelete(s)
			return nil
		}); err != nil {
			return nil, err
		}

		var (
			target    model.CalendarEventRef
			found     bool
			confirmed bool
		)
		if affirmed {
			target, found = model.FindEvent(v.Events, v.Pending.EventID)
			confirmed = found
		} else {
			if len(v.Events) == 0 {
				return calendarFeedback(ctx, CalendarActionDelete, "I couldn't find any events in that period. Which day is the event on?")
			}
			var out deleteExtraction
			vars := prompts.Vars{"Events": model.FormatEvents(v.Events)}
			if err := d.structured(ctx, prompts.CalendarDelete, vars, d.humanPrompt(v, false), deleteHint, &out); err != nil {
				return calendarResult(ctx, CalendarActionDelete, fmt.Sprintf("Failed to delete event: %v", err))
			}
			target, found = model.FindEvent(v.Events, out.EventID)
			if !found {
				msg := strings.TrimSpace(out.Feedback)
				if msg == "" {
					msg = "Which event would you like to delete?"
				}
				return calendarFeedback(ctx, CalendarActionDelete, msg)
			}
			// the model's word alone is not a confirmation
			confirmed = out.CanMake && out.Confirmed && conversations.HasDeleteConfirmation(v.Query)
		}

		if !found {
			return calendarFeedback(ctx, CalendarActionDelete, "I couldn't find that event anymore. Which event would you like to delete?")
		}
		if !confirmed {
			return askDeleteConfirmation(ctx, target)
		}
		if d.Calendar == nil {
			return calendarResult(ctx, CalendarActionDelete, "Failed to delete event: calendar "+tools.ErrUnavailable.Error())
		}

		cctx, cancel := d.collaborator(ctx)
		err = d.Calendar.Delete(cctx, target.ID)
		cancel()
		if err != nil {
			logx.Error().Str("thread_id", v.ThreadID).Str("node", NodeCalendarDelete).Err(err).Msg("Calendar delete failed")
			return calendarResult(ctx, CalendarActionDelete, fmt.Sprintf("Failed to delete event: %v", err))
		}

		if err := withSession(ctx, func(s *model.SessionState) error {
			s.Pending = nil
			return model.PutScratch(s, model.ScratchCalendarEvents, removeEvent(v.Events, target.ID))
		}); err != nil {
			return nil, err
		}
		logx.Info().Str("thread_id", v.ThreadID).Str("event_id", target.ID).Msg("Calendar event deleted")
		return calendarResult(ctx, CalendarActionDelete,
			fmt.Sprintf("Deleted '%s' scheduled %s.", target.Title, target.When()))
	})
}

// DeleteQuestion is the confirmation asked before deleting ev.
func DeleteQuestion(ev model.CalendarEventRef) string {
	return fmt.Sprintf("I found '%s' scheduled %s. Do you want me to delete it? Reply 'yes' to confirm.", ev.Title, ev.When())
}

func askDeleteConfirmation(ctx context.Context, ev model.CalendarEventRef) (*schema.Message, error) {
	question := DeleteQuestion(ev)
	err := withState(ctx, func(st *model.AppState) error {
		st.Session.Pending = &model.PendingConfirmation{
			Action:      model.PendingDelete,
			EventID:     ev.ID,
			Title:       ev.Title,
			When:        ev.When(),
			AskedAtTurn: st.Session.Turns,
		}
		st.Session.Feedback = question
		st.Calendar = model.CalendarOutcome{Action: CalendarActionDelete}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(question, nil), nil
}

// calendarResult records an operation result and drops any stale feedback.
func calendarResult(ctx context.Context, action, result string) (*schema.Message, error) {
	err := withState(ctx, func(st *model.AppState) error {
		st.Calendar = model.CalendarOutcome{Action: action, Result: result}
		st.Session.Feedback = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(result, nil), nil
}

// calendarFeedback records a request for more information. Nothing was changed.
func calendarFeedback(ctx context.Context, action, feedback string) (*schema.Message, error) {
	err := withState(ctx, func(st *model.AppState) error {
		st.Calendar = model.CalendarOutcome{Action: action}
		st.Session.Feedback = feedback
		return nil
	})
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(feedback, nil), nil
}

// NewCalendarFinalNode joins every calendar flow. Exactly one of the operation
// result and the feedback reaches the reply; a bare query reports the events.
func NewCalendarFinalNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		v, err := view(ctx)
		if err != nil {
			return nil, err
		}

		var (
			outcome model.CalendarOutcome
			asked   bool
		)
		err = withState(ctx, func(st *model.AppState) error {
			o := st.Calendar
			o.Feedback = st.Session.ConsumeFeedback()
			if o.Action == "" {
				o.Action = CalendarActionView
			}
			outcome = o.Normalize(model.FormatEvents(v.Events))
			st.Calendar = outcome
			p := st.Session.Pending
			asked = p != nil && p.AskedAtTurn == st.Session.Turns
			return nil
		})
		if err != nil {
			return nil, err
		}

		reply := outcome.Text()
		if !asked {
			reply = d.calendarReply(ctx, v, outcome)
		}

		msg := schema.AssistantMessage(reply, nil)
		if err := withSession(ctx, func(s *model.SessionState) error {
			s.Append(msg)
			return nil
		}); err != nil {
			return nil, err
		}
		logx.Debug().
			Str("thread_id", v.ThreadID).
			Str("action", outcome.Action).
			Bool("feedback", outcome.Feedback != "").
			Msg("Calendar flow finished")
		return msg, nil
	})
}

// calendarReply phrases the outcome for speech, falling back to the raw text.
func (d *Deps) calendarReply(ctx context.Context, v turnView, o model.CalendarOutcome) string {
	human := d.humanPrompt(v, false) + "\n\nCalendar " + o.Action + " outcome:\n" + o.Text()
	msgs, err := d.Prompts.Render(ctx, prompts.CalendarFinal, nil, human)
	if err == nil {
		var resp *schema.Message
		resp, err = d.Worker.Generate(ctx, msgs)
		if err == nil && resp != nil && strings.TrimSpace(resp.Content) != "" {
			return strings.TrimSpace(resp.Content)
		}
	}
	logx.Warn().Str("thread_id", v.ThreadID).Str("node", NodeCalendarFinal).Err(err).Msg("Calendar reply generation failed; using raw outcome")
	return o.Text()
}

func replaceEvent(events []model.CalendarEventRef, ev model.CalendarEventRef) []model.CalendarEventRef {
	out := make([]model.CalendarEventRef, 0, len(events))
	for _, e := range events {
		if e.ID == ev.ID {
			e = ev
		}
		out = append(out, e)
	}
	return out
}

func removeEvent(events []model.CalendarEventRef, id string) []model.CalendarEventRef {
	out := make([]model.CalendarEventRef, 0, len(events))
	for _, e := range events {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}
