package classify

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ppiankov/rowlabel/internal/cache"
	"github.com/ppiankov/rowlabel/internal/llm"
	"github.com/ppiankov/rowlabel/internal/model"
	"github.com/ppiankov/rowlabel/internal/worker"
)

// Limiter paces remote attempts
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Options configures a Classifier
type Options struct {
	Model       string // used for cache keys only
	Attempts    int
	JitterMin   time.Duration
	JitterMax   time.Duration
	MaxInFlight int
	Labels      model.LabelSet
	Cache       cache.Cache // optional
	Logger      *zap.Logger
}

// OptionsFromModel derives classifier options from the application config
func OptionsFromModel(cfg *model.Config) Options {
	return Options{
		Model:       cfg.LLM.Model,
		Attempts:    cfg.Retry.Attempts,
		JitterMin:   cfg.Retry.JitterMin,
		JitterMax:   cfg.Retry.JitterMax,
		MaxInFlight: cfg.Concurrency.MaxInFlight,
		Labels:      model.DefaultLabels(),
	}
}

// Classifier wraps one remote classification with a concurrency permit,
// rate limiting, retry with jitter, and label validation.
type Classifier struct {
	provider llm.Provider
	limiter  Limiter
	permits  *semaphore.Weighted
	opts     Options
	logger   *zap.Logger
}

// New creates a classifier
func New(provider llm.Provider, limiter Limiter, opts Options) *Classifier {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 50
	}
	if len(opts.Labels) == 0 {
		opts.Labels = model.DefaultLabels()
	}
	if opts.JitterMax < opts.JitterMin {
		opts.JitterMax = opts.JitterMin
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Classifier{
		provider: provider,
		limiter:  limiter,
		permits:  semaphore.NewWeighted(int64(opts.MaxInFlight)),
		opts:     opts,
		logger:   logger,
	}
}

// Classify returns a validated label for text, or an unavailable outcome once
// every attempt has failed. Failures never escape as errors.
func (c *Classifier) Classify(ctx context.Context, systemPrompt, text string) model.Outcome {
	var key string
	if c.opts.Cache != nil {
		key = cache.LabelKey(c.opts.Model, systemPrompt, text)
		if label, ok := c.cached(key); ok {
			return model.Outcome{Status: model.OutcomeLabeled, Label: label, Cached: true}
		}
	}

	// The permit covers every attempt and the jitter between them
	if err := c.permits.Acquire(ctx, 1); err != nil {
		return model.Unavailable(0, err)
	}
	defer c.permits.Release(1)

	var lastErr error
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return model.Unavailable(attempt-1, err)
		}

		label, err := c.attempt(ctx, systemPrompt, text)
		if err == nil {
			if key != "" {
				if cerr := c.opts.Cache.Set(key, []byte(label.String()), 0); cerr != nil {
					c.logger.Warn("label cache write failed", zap.Error(cerr))
				}
			}
			return model.Labeled(label, attempt)
		}

		lastErr = err
		c.logger.Warn("classification attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("attempts", c.opts.Attempts),
			zap.Error(err))

		if ctx.Err() != nil {
			return model.Unavailable(attempt, ctx.Err())
		}

		if attempt < c.opts.Attempts {
			if err := worker.Sleep(ctx, c.jitter()); err != nil {
				return model.Unavailable(attempt, err)
			}
		}
	}

	return model.Unavailable(c.opts.Attempts, lastErr)
}

// attempt issues one remote request and validates its output
func (c *Classifier) attempt(ctx context.Context, systemPrompt, text string) (model.Label, error) {
	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		System: systemPrompt,
		User:   text,
	})
	if err != nil {
		return 0, err
	}

	label, err := c.opts.Labels.Parse(resp.Text)
	if err != nil {
		return 0, fmt.Errorf("model output rejected: %w", err)
	}
	return label, nil
}

func (c *Classifier) cached(key string) (model.Label, bool) {
	raw, found := c.opts.Cache.Get(key)
	if !found {
		return 0, false
	}
	label, err := c.opts.Labels.Parse(string(raw))
	if err != nil {
		return 0, false
	}
	return label, true
}

// jitter draws a uniform delay in [JitterMin, JitterMax]
func (c *Classifier) jitter() time.Duration {
	span := c.opts.JitterMax - c.opts.JitterMin
	if span <= 0 {
		return c.opts.JitterMin
	}
	return c.opts.JitterMin + rand.N(span+1)
}
