package model

import "context"

type CheckpointStore interface {
	// Load returns the session for threadID, or a fresh session when none is stored.
	Load(ctx context.Context, threadID string) (*SessionState, error)

	// Save persists the whole session under its thread id.
	Save(ctx context.Context, session *SessionState) error

	// Delete removes everything stored for threadID.
	Delete(ctx context.Context, threadID string) error
}
