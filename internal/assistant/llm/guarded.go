package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	logx "github.com/voice-assistant/server/pkg/logger"
	"github.com/voice-assistant/server/pkg/metrics"
)

// Guarded wraps a chat model with a per-call deadline, a shared rate limit and
// usage accounting. A hung provider call surfaces as context.DeadlineExceeded.
type Guarded struct {
	inner     model.BaseChatModel
	modelName string
	timeout   time.Duration
	limiter   *rate.Limiter
}

func NewGuarded(inner model.BaseChatModel, modelName string, timeout time.Duration, limiter *rate.Limiter) *Guarded {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &Guarded{inner: inner, modelName: modelName, timeout: timeout, limiter: limiter}
}

func (g *Guarded) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := g.inner.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	g.recordUsage(out)
	return out, nil
}

// Stream is passed through unguarded by the deadline: the caller owns the reader's lifetime.
func (g *Guarded) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.inner.Stream(ctx, input, opts...)
}

func (g *Guarded) recordUsage(out *schema.Message) {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := ComputeCost(usage, ResolvePricing(g.modelName))

	metrics.LLMTokens.WithLabelValues(g.modelName, "prompt").Add(float64(usage.PromptTokens))
	metrics.LLMTokens.WithLabelValues(g.modelName, "completion").Add(float64(usage.CompletionTokens))
	metrics.LLMCostUSD.WithLabelValues(g.modelName).Add(totalC)

	logx.Debug().
		Str("model", g.modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}

// IsTransient reports whether err looks like a network, timeout or quota failure
// rather than a problem with the model's output.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "resource_exhausted", "unavailable", "503", "connection reset"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var _ model.BaseChatModel = (*Guarded)(nil)
