package model

import (
	"fmt"
	"strings"
	"time"
)

// CalendarEventRef is an event fetched from the calendar collaborator.
type CalendarEventRef struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
}

// When renders the event's time span for humans.
func (e CalendarEventRef) When() string {
	if e.Start.IsZero() {
		return "at an unknown time"
	}
	s := "on " + e.Start.Format("Monday, January 02 at 03:04 PM")
	if !e.End.IsZero() {
		s += " until " + e.End.Format("03:04 PM")
	}
	return s
}

// FindEvent returns the event with id.
func FindEvent(events []CalendarEventRef, id string) (CalendarEventRef, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return CalendarEventRef{}, false
	}
	for _, e := range events {
		if e.ID == id {
			return e, true
		}
	}
	return CalendarEventRef{}, false
}

// CalendarOutcome is what a calendar sub-flow hands to finalize.
// Exactly one of Result or Feedback is set once finalize has normalised it.
type CalendarOutcome struct {
	Action   string
	Result   string
	Feedback string
}

// Normalize enforces the single-outcome rule. Feedback wins over Result when both
// are set; an empty outcome falls back to listing.
func (o CalendarOutcome) Normalize(listing string) CalendarOutcome {
	switch {
	case o.Feedback != "":
		o.Result = ""
	case o.Result == "":
		o.Result = listing
	}
	return o
}

// Text returns the single message finalize passes to response generation.
func (o CalendarOutcome) Text() string {
	if o.Feedback != "" {
		return o.Feedback
	}
	return o.Result
}

// FormatEvents renders events as a numbered list.
func FormatEvents(events []CalendarEventRef) string {
	if len(events) == 0 {
		return "No events found in the requested range."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d event(s):\n", len(events))
	for i, e := range events {
		fmt.Fprintf(&b, "%d. %s (ID: %s) %s", i+1, e.Title, e.ID, e.When())
		if e.Location != "" {
			fmt.Fprintf(&b, ", at %s", e.Location)
		}
		if e.Description != "" {
			fmt.Fprintf(&b, ". %s", e.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
