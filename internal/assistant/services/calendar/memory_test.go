package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voice-assistant/server/internal/assistant/graph/tools"
	"github.com/voice-assistant/server/internal/assistant/model"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	late, err := m.Create(ctx, model.CalendarEventRef{Title: "Review", Start: day.Add(15 * time.Hour), End: day.Add(16 * time.Hour)})
	require.NoError(t, err)
	early, err := m.Create(ctx, model.CalendarEventRef{Title: "Standup", Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 15*time.Minute)})
	require.NoError(t, err)
	assert.NotEqual(t, late.ID, early.ID)

	got, err := m.List(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Standup", got[0].Title)

	got, err = m.List(ctx, day.Add(12*time.Hour), day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)

	title := "Design review"
	upd, err := m.Update(ctx, late.ID, tools.EventPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Design review", upd.Title)
	assert.Equal(t, late.Start, upd.Start)

	badEnd := late.Start.Add(-time.Hour)
	_, err = m.Update(ctx, late.ID, tools.EventPatch{End: &badEnd})
	assert.Error(t, err)

	require.NoError(t, m.Delete(ctx, early.ID))
	assert.ErrorIs(t, m.Delete(ctx, early.ID), ErrNotFound)
}

func TestMemory_CreateValidates(t *testing.T) {
	_, err := NewMemory().Create(context.Background(), model.CalendarEventRef{Title: "x"})
	assert.Error(t, err)
}
