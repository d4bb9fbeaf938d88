package classify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/rowlabel/internal/cache"
	"github.com/ppiankov/rowlabel/internal/llm"
	"github.com/ppiankov/rowlabel/internal/model"
	"github.com/ppiankov/rowlabel/internal/worker"
)

// scriptedProvider replies with the next scripted entry; the last entry repeats
type scriptedProvider struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	delay   time.Duration
	inUse   int32
	maxUse  int32
	lastReq llm.CompletionRequest
}

type reply struct {
	text string
	err  error
}

func (p *scriptedProvider) Name() string                       { return "scripted" }
func (p *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	cur := atomic.AddInt32(&p.inUse, 1)
	defer atomic.AddInt32(&p.inUse, -1)
	for {
		max := atomic.LoadInt32(&p.maxUse)
		if cur <= max || atomic.CompareAndSwapInt32(&p.maxUse, max, cur) {
			break
		}
	}

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	idx := p.calls
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	p.calls++
	p.lastReq = req
	r := p.replies[idx]
	p.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	return &llm.CompletionResponse{Text: r.text}, nil
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type countingLimiter struct {
	acquired int32
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	atomic.AddInt32(&l.acquired, 1)
	return ctx.Err()
}

func testOptions() Options {
	return Options{
		Attempts:    3,
		JitterMin:   time.Millisecond,
		JitterMax:   2 * time.Millisecond,
		MaxInFlight: 50,
	}
}

func TestClassify_FirstAttemptSuccess(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{{text: "2"}}}
	limiter := &countingLimiter{}
	c := New(provider, limiter, testOptions())

	out := c.Classify(context.Background(), "system prompt", "comment")

	require.True(t, out.OK())
	assert.Equal(t, model.LabelNegative, out.Label)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, provider.Calls(), "no retry after a valid label")
	assert.Equal(t, int32(1), atomic.LoadInt32(&limiter.acquired))
	assert.Equal(t, "system prompt", provider.lastReq.System)
	assert.Equal(t, "comment", provider.lastReq.User)
}

func TestClassify_InvalidTokenExhaustsRetries(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	provider := &scriptedProvider{replies: []reply{{text: "maybe"}}}
	limiter := &countingLimiter{}

	opts := testOptions()
	opts.Logger = zap.New(core)
	c := New(provider, limiter, opts)

	out := c.Classify(context.Background(), "p", "comment")

	assert.False(t, out.OK())
	assert.Equal(t, model.OutcomeUnavailable, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, provider.Calls())
	assert.Equal(t, int32(3), atomic.LoadInt32(&limiter.acquired), "limiter acquired before every attempt")
	assert.True(t, errors.Is(out.Err, model.ErrInvalidLabel))
	assert.Equal(t, 3, logs.FilterMessage("classification attempt failed").Len())
}

func TestClassify_RecoversAfterTransportError(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{
		{err: errors.New("connection reset")},
		{text: "7"},
		{text: " 1 \n"},
	}}
	c := New(provider, &countingLimiter{}, testOptions())

	out := c.Classify(context.Background(), "p", "comment")

	require.True(t, out.OK())
	assert.Equal(t, model.LabelPositive, out.Label)
	assert.Equal(t, 3, out.Attempts)
}

func TestClassify_JitterBetweenAttemptsOnly(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{{text: "x"}}}
	opts := testOptions()
	opts.Attempts = 2
	opts.JitterMin = 40 * time.Millisecond
	opts.JitterMax = 40 * time.Millisecond
	c := New(provider, &countingLimiter{}, opts)

	start := time.Now()
	out := c.Classify(context.Background(), "p", "comment")
	elapsed := time.Since(start)

	assert.False(t, out.OK())
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond, "one jitter sleep between two attempts")
	assert.Less(t, elapsed, 80*time.Millisecond, "no jitter sleep after the final attempt")
}

func TestClassify_JitterRange(t *testing.T) {
	c := New(&scriptedProvider{}, &countingLimiter{}, Options{
		JitterMin: time.Second,
		JitterMax: 3 * time.Second,
	})

	for i := 0; i < 200; i++ {
		d := c.jitter()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestClassify_PermitsBoundConcurrency(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{{text: "0"}}, delay: 10 * time.Millisecond}
	opts := testOptions()
	opts.MaxInFlight = 3
	c := New(provider, worker.NewRateLimiter(0), opts)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := c.Classify(context.Background(), "p", "comment")
			assert.True(t, out.OK())
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&provider.maxUse), int32(3))
	assert.Equal(t, 20, provider.Calls())
}

func TestClassify_CancelledContext(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{{text: "1"}}}
	c := New(provider, worker.NewRateLimiter(0), testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := c.Classify(ctx, "p", "comment")

	assert.False(t, out.OK())
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 0, provider.Calls())
}

func TestClassify_CacheHitSkipsRemote(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{{text: "3"}}}
	opts := testOptions()
	opts.Model = "kimi"
	opts.Cache = cache.NewMemoryCache(time.Hour, time.Minute)
	c := New(provider, &countingLimiter{}, opts)

	first := c.Classify(context.Background(), "p", "same comment")
	require.True(t, first.OK())
	assert.False(t, first.Cached)

	second := c.Classify(context.Background(), "p", "same comment")
	require.True(t, second.OK())
	assert.True(t, second.Cached)
	assert.Equal(t, model.LabelNeutral, second.Label)
	assert.Equal(t, 0, second.Attempts)

	assert.Equal(t, 1, provider.Calls())
}

func TestClassify_FailuresAreNotCached(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{{text: "nope"}, {text: "nope"}, {text: "nope"}, {text: "2"}}}
	opts := testOptions()
	opts.Cache = cache.NewMemoryCache(time.Hour, time.Minute)
	c := New(provider, &countingLimiter{}, opts)

	assert.False(t, c.Classify(context.Background(), "p", "comment").OK())

	out := c.Classify(context.Background(), "p", "comment")
	require.True(t, out.OK())
	assert.False(t, out.Cached)
	assert.Equal(t, model.LabelNegative, out.Label)
}

func TestOptionsFromModel(t *testing.T) {
	cfg := model.DefaultConfig()
	opts := OptionsFromModel(cfg)

	assert.Equal(t, 3, opts.Attempts)
	assert.Equal(t, time.Second, opts.JitterMin)
	assert.Equal(t, 3*time.Second, opts.JitterMax)
	assert.Equal(t, 50, opts.MaxInFlight)
	assert.Equal(t, cfg.LLM.Model, opts.Model)
}
