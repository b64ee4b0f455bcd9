package assistant

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/voice-assistant/server/internal/assistant/graph"
	"github.com/voice-assistant/server/internal/assistant/model"
	logx "github.com/voice-assistant/server/pkg/logger"
	"github.com/voice-assistant/server/pkg/metrics"
)

// Apology is the reply of a turn that failed outside any node.
const Apology = "Sorry, I encountered an error. Please try again."

const defaultTurnTimeout = 90 * time.Second

var exitWords = map[string]struct{}{"exit": {}, "quit": {}, "bye": {}}

// IsExit reports whether text is one of the words that end the session.
func IsExit(text string) bool {
	_, ok := exitWords[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// Reply is the outcome of one ProcessTurn call.
type Reply struct {
	Text string
	// Exit is set when the user asked to leave; the graph did not run.
	Exit bool
	// Skipped is set for blank input; nothing was recorded.
	Skipped bool
}

// Assistant runs turns against the graph and owns session persistence.
type Assistant struct {
	runner      graph.Runner
	store       model.CheckpointStore
	turnTimeout time.Duration
	locks       *threadLocks
}

func New(runner graph.Runner, store model.CheckpointStore, cfg model.AssistantConfig) *Assistant {
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = defaultTurnTimeout
	}
	return &Assistant{
		runner:      runner,
		store:       store,
		turnTimeout: timeout,
		locks:       newThreadLocks(),
	}
}

// ProcessTurn never fails: every error ends as an apology in the reply.
// Turns of one thread run one at a time.
func (a *Assistant) ProcessTurn(ctx context.Context, threadID, text string) Reply {
	if IsExit(text) {
		return Reply{Exit: true}
	}
	if strings.TrimSpace(text) == "" {
		return Reply{Skipped: true}
	}

	unlock := a.locks.lock(threadID)
	defer unlock()

	start := time.Now()
	reply, outcome := a.run(ctx, threadID, text)
	metrics.TurnDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return reply
}

func (a *Assistant) run(ctx context.Context, threadID, text string) (Reply, string) {
	loaded, err := a.store.Load(ctx, threadID)
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("Failed to load session")
		return Reply{Text: Apology}, "error"
	}
	if loaded.ThreadID == "" {
		loaded.ThreadID = threadID
	}

	turnID := uuid.NewString()
	result, err := a.invoke(ctx, &model.TurnInput{
		ThreadID: threadID,
		TurnID:   turnID,
		Text:     text,
		Session:  loaded.Clone(),
	})

	switch {
	case ctx.Err() != nil:
		// the host gave up on the turn; leave the thread as it was
		logx.Warn().Err(ctx.Err()).Str("thread_id", threadID).Str("turn_id", turnID).Msg("Turn cancelled")
		return Reply{Text: Apology}, "cancelled"
	case err != nil:
		logx.Error().Err(err).Str("thread_id", threadID).Str("turn_id", turnID).Msg("Turn failed")
		a.commitApology(ctx, loaded, text)
		return Reply{Text: Apology}, "error"
	}

	if err := a.store.Save(ctx, result.Session); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Str("turn_id", turnID).Msg("Failed to save session")
	}

	reply := strings.TrimSpace(result.Reply)
	if reply == "" {
		reply = Apology
	}
	logx.Debug().Str("thread_id", threadID).Str("turn_id", turnID).Int("history", len(result.Session.History)).Msg("Turn completed")
	return Reply{Text: reply}, "ok"
}

// invoke runs the graph under the turn timeout and turns panics into errors.
func (a *Assistant) invoke(ctx context.Context, in *model.TurnInput) (out *model.TurnResult, err error) {
	tctx, cancel := context.WithTimeout(ctx, a.turnTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("thread_id", in.ThreadID).Str("stack", string(debug.Stack())).Msg("Recovered from panic in turn")
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	out, err = a.runner.Invoke(tctx, in)
	if err == nil && (out == nil || out.Session == nil) {
		err = errors.New("graph returned no session")
	}
	return out, err
}

// commitApology records the failed turn on the session as it was loaded.
func (a *Assistant) commitApology(ctx context.Context, loaded *model.SessionState, text string) {
	loaded.Turns++
	loaded.Pending = nil
	loaded.Feedback = ""
	loaded.Append(schema.UserMessage(text), schema.AssistantMessage(Apology, nil))
	loaded.UpdatedAt = time.Now()
	if err := a.store.Save(ctx, loaded); err != nil {
		logx.Error().Err(err).Str("thread_id", loaded.ThreadID).Msg("Failed to save session after error")
	}
}

// Reset forgets everything stored for threadID.
func (a *Assistant) Reset(ctx context.Context, threadID string) error {
	unlock := a.locks.lock(threadID)
	defer unlock()

	if err := a.store.Delete(ctx, threadID); err != nil {
		return fmt.Errorf("reset thread %s: %w", threadID, err)
	}
	logx.Info().Str("thread_id", threadID).Msg("Session reset")
	return nil
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

// threadLocks hands out one mutex per thread id and drops it once unused.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: map[string]*threadLock{}}
}

func (t *threadLocks) lock(threadID string) func() {
	t.mu.Lock()
	l, ok := t.locks[threadID]
	if !ok {
		l = &threadLock{}
		t.locks[threadID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, threadID)
		}
		t.mu.Unlock()
	}
}

func (t *threadLocks) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
