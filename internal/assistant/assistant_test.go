package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/voice-assistant/server/internal/assistant/checkpoint"
	"github.com/voice-assistant/server/internal/assistant/graph"
	"github.com/voice-assistant/server/internal/assistant/graph/nodes"
	"github.com/voice-assistant/server/internal/assistant/llm"
	"github.com/voice-assistant/server/internal/assistant/llm/llmtest"
	"github.com/voice-assistant/server/internal/assistant/model"
)

type runnerFunc func(ctx context.Context, in *model.TurnInput) (*model.TurnResult, error)

func (f runnerFunc) Invoke(ctx context.Context, in *model.TurnInput) (*model.TurnResult, error) {
	return f(ctx, in)
}

// echo answers every turn with "echo: <text>".
func echo(ctx context.Context, in *model.TurnInput) (*model.TurnResult, error) {
	s := in.Session
	s.Turns++
	reply := "echo: " + in.Text
	s.Append(schema.UserMessage(in.Text), schema.AssistantMessage(reply, nil))
	return &model.TurnResult{Reply: reply, Session: s}, nil
}

func testConfig() model.AssistantConfig {
	return model.AssistantConfig{Name: "Jarvis", Timezone: "UTC", TurnTimeout: time.Second}
}

func TestProcessTurn_ExitAndBlankInput(t *testing.T) {
	var calls int
	runner := runnerFunc(func(ctx context.Context, in *model.TurnInput) (*model.TurnResult, error) {
		calls++
		return echo(ctx, in)
	})
	store := checkpoint.NewMemoryStore(8)
	a := New(runner, store, testConfig())
	ctx := context.Background()

	for _, text := range []string{"exit", "EXIT", " Quit ", "bye\n"} {
		r := a.ProcessTurn(ctx, "t1", text)
		assert.True(t, r.Exit, text)
		assert.Empty(t, r.Text, text)
	}
	for _, text := range []string{"", "   ", "\t\n"} {
		r := a.ProcessTurn(ctx, "t1", text)
		assert.True(t, r.Skipped, "%q", text)
	}

	assert.Zero(t, calls)
	assert.Zero(t, store.Len())
	assert.False(t, IsExit("exit please"))
}

func TestProcessTurn_CommitsSession(t *testing.T) {
	store := checkpoint.NewMemoryStore(8)
	a := New(runnerFunc(echo), store, testConfig())
	ctx := context.Background()

	long := strings.Repeat("a", 100_000)
	r := a.ProcessTurn(ctx, "t1", long)
	assert.Equal(t, "echo: "+long, r.Text)

	r = a.ProcessTurn(ctx, "t1", "hello")
	assert.Equal(t, "echo: hello", r.Text)

	s, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Turns)
	assert.Len(t, s.History, 4)
}

func TestProcessTurn_FailureCommitsApology(t *testing.T) {
	tests := []struct {
		name   string
		runner runnerFunc
	}{
		{"error", func(context.Context, *model.TurnInput) (*model.TurnResult, error) {
			return nil, errors.New("graph exploded")
		}},
		{"panic", func(context.Context, *model.TurnInput) (*model.TurnResult, error) {
			panic("nil map")
		}},
		{"no session", func(context.Context, *model.TurnInput) (*model.TurnResult, error) {
			return &model.TurnResult{Reply: "hi"}, nil
		}},
		{"partial writes", func(_ context.Context, in *model.TurnInput) (*model.TurnResult, error) {
			in.Session.Mode = model.ModeChrome
			in.Session.Append(schema.AssistantMessage("half done", nil))
			return nil, errors.New("late failure")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := checkpoint.NewMemoryStore(8)
			a := New(tt.runner, store, testConfig())
			ctx := context.Background()

			r := a.ProcessTurn(ctx, "t1", "open my files")
			assert.Equal(t, Apology, r.Text)

			s, err := store.Load(ctx, "t1")
			require.NoError(t, err)
			require.Len(t, s.History, 2)
			assert.Equal(t, "open my files", s.History[0].Content)
			assert.Equal(t, Apology, s.History[1].Content)
			assert.Equal(t, model.ModeNormal, s.Mode)
			assert.Equal(t, 1, s.Turns)
		})
	}
}

func TestProcessTurn_HostCancellationCommitsNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	runner := runnerFunc(func(rctx context.Context, in *model.TurnInput) (*model.TurnResult, error) {
		cancel()
		<-rctx.Done()
		return nil, rctx.Err()
	})
	store := checkpoint.NewMemoryStore(8)
	a := New(runner, store, testConfig())

	r := a.ProcessTurn(ctx, "t1", "hello")
	assert.Equal(t, Apology, r.Text)
	assert.Zero(t, store.Len())
}

func TestProcessTurn_TurnTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := runnerFunc(func(ctx context.Context, in *model.TurnInput) (*model.TurnResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	store := checkpoint.NewMemoryStore(8)
	cfg := testConfig()
	cfg.TurnTimeout = 20 * time.Millisecond
	a := New(runner, store, cfg)

	r := a.ProcessTurn(context.Background(), "t1", "slow request")
	assert.Equal(t, Apology, r.Text)

	s, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, s.History, 2)
}

func TestProcessTurn_SerializesThread(t *testing.T) {
	defer goleak.VerifyNone(t)

	var inflight, peak int32
	runner := runnerFunc(func(ctx context.Context, in *model.TurnInput) (*model.TurnResult, error) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return echo(ctx, in)
	})
	store := checkpoint.NewMemoryStore(8)
	a := New(runner, store, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.ProcessTurn(context.Background(), "shared", "hi")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
	assert.Zero(t, a.locks.size())

	s, err := store.Load(context.Background(), "shared")
	require.NoError(t, err)
	assert.Equal(t, 8, s.Turns)
	assert.Len(t, s.History, 16)
}

func TestReset(t *testing.T) {
	store := checkpoint.NewMemoryStore(8)
	a := New(runnerFunc(echo), store, testConfig())
	ctx := context.Background()

	a.ProcessTurn(ctx, "t1", "hello")
	require.Equal(t, 1, store.Len())

	require.NoError(t, a.Reset(ctx, "t1"))
	assert.Zero(t, store.Len())
}

func newGraphAssistant(t *testing.T, m *llmtest.Scripted) (*Assistant, *checkpoint.MemoryStore) {
	t.Helper()
	cfg := testConfig()
	cfg.Tools.MaxCalls = 4
	runner, err := graph.Build(context.Background(), graph.Config{
		Models:    &llm.ChatModels{Router: m, Worker: m},
		Assistant: cfg,
	})
	require.NoError(t, err)
	store := checkpoint.NewMemoryStore(8)
	return New(runner, store, cfg), store
}

func TestProcessTurn_RouterTimeout(t *testing.T) {
	m := llmtest.New().
		On("request router for", llmtest.Fail(context.DeadlineExceeded)).
		On("helpful personal voice assistant", llmtest.Fail(context.DeadlineExceeded))
	a, store := newGraphAssistant(t, m)

	r := a.ProcessTurn(context.Background(), "t1", "hi")
	assert.NotEmpty(t, r.Text)
	assert.Equal(t, nodes.ChatbotApology, r.Text)

	s, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, s.History, 2)
	assert.Equal(t, nodes.ChatbotApology, s.History[1].Content)
}

func TestProcessTurn_HistoryOnlyGrows(t *testing.T) {
	m := llmtest.New().
		Always("request router for", llmtest.Text(nodes.NodeChatbot)).
		Always("helpful personal voice assistant", llmtest.Text("Sure."))
	a, store := newGraphAssistant(t, m)
	ctx := context.Background()

	var before []*schema.Message
	for _, text := range []string{"hi", "tell me a joke", "thanks"} {
		r := a.ProcessTurn(ctx, "t1", text)
		require.Equal(t, "Sure.", r.Text)

		s, err := store.Load(ctx, "t1")
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(s.History), len(before)+2)
		if diff := cmp.Diff(before, s.History[:len(before)], cmpopts.IgnoreUnexported(schema.Message{}), cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("earlier history changed (-before +after):\n%s", diff)
		}
		last := s.History[len(s.History)-1]
		assert.Equal(t, schema.Assistant, last.Role)
		assert.Equal(t, text, s.History[len(before)].Content)
		before = s.History
	}
}
