// Package calendar holds the in-process calendar collaborator.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	"github.com/voice-assistant/server/internal/assistant/model"
)

var ErrNotFound = errors.New("event not found")

// Memory keeps events in process, ordered by start time.
type Memory struct {
	mu     sync.RWMutex
	events map[string]model.CalendarEventRef
}

func NewMemory() *Memory {
	return &Memory{events: map[string]model.CalendarEventRef{}}
}

// List returns events overlapping [start, end).
func (m *Memory) List(ctx context.Context, start, end time.Time) ([]model.CalendarEventRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.CalendarEventRef
	for _, e := range m.events {
		if e.Start.Before(end) && e.End.After(start) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (m *Memory) Create(ctx context.Context, ev model.CalendarEventRef) (model.CalendarEventRef, error) {
	if err := ctx.Err(); err != nil {
		return model.CalendarEventRef{}, err
	}
	if err := validate(ev); err != nil {
		return model.CalendarEventRef{}, err
	}
	ev.ID = uuid.NewString()[:8]

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = ev
	return ev, nil
}

func (m *Memory) Update(ctx context.Context, id string, p tools.EventPatch) (model.CalendarEventRef, error) {
	if err := ctx.Err(); err != nil {
		return model.CalendarEventRef{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[id]
	if !ok {
		return model.CalendarEventRef{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.End != nil {
		ev.End = *p.End
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Location != nil {
		ev.Location = *p.Location
	}
	if err := validate(ev); err != nil {
		return model.CalendarEventRef{}, err
	}
	m.events[id] = ev
	return ev, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.events, id)
	return nil
}

func validate(ev model.CalendarEventRef) error {
	if strings.TrimSpace(ev.Title) == "" {
		return errors.New("event title is required")
	}
	if ev.Start.IsZero() || ev.End.IsZero() {
		return errors.New("event start and end are required")
	}
	if !ev.End.After(ev.Start) {
		return errors.New("event end must be after start")
	}
	return nil
}

var _ tools.Calendar = (*Memory)(nil)
