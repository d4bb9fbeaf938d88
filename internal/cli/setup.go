package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/rowlabel/internal/cache"
	"github.com/ppiankov/rowlabel/internal/classify"
	"github.com/ppiankov/rowlabel/internal/llm"
	"github.com/ppiankov/rowlabel/internal/logging"
	"github.com/ppiankov/rowlabel/internal/model"
	"github.com/ppiankov/rowlabel/internal/worker"
)

var (
	// ErrMissingAPIKey is returned when the credential environment variable is unset
	ErrMissingAPIKey = errors.New("missing API key")
	// ErrStandardNotFound is returned when the labeling standard file cannot be read
	ErrStandardNotFound = errors.New("labeling standard not found")
)

// resolveAPIKey reads the key from the environment variable named in the config.
// Local ollama servers need no key.
func resolveAPIKey(cfg *model.Config) error {
	if strings.EqualFold(cfg.LLM.Provider, "ollama") {
		cfg.LLM.APIKey = os.Getenv(cfg.LLM.APIKeyEnv)
		return nil
	}

	name := cfg.LLM.APIKeyEnv
	if name == "" {
		return fmt.Errorf("%w: llm.api_key_env is empty", ErrMissingAPIKey)
	}
	key := os.Getenv(name)
	if key == "" {
		return fmt.Errorf("%w: %s environment variable not set", ErrMissingAPIKey, name)
	}
	cfg.LLM.APIKey = key
	return nil
}

// readStandard loads the labeling standard text
func readStandard(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrStandardNotFound, path, err)
	}
	return string(data), nil
}

// newLogger builds the run logger on w
func newLogger(cfg *model.Config, w io.Writer) *zap.Logger {
	return logging.New(cfg.Log, w)
}

// newClassifier wires provider, limiter, permits and the optional cache
func newClassifier(cfg *model.Config, logger *zap.Logger) (*classify.Classifier, llm.Provider, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("create provider: %w", err)
	}

	opts := classify.OptionsFromModel(cfg)
	opts.Logger = logger
	if c := cache.New(cfg.Cache); c != nil {
		opts.Cache = c
		logger.Info("label cache enabled", zap.String("dir", cfg.Cache.Dir))
	}

	limiter := worker.NewRateLimiter(cfg.RateLimit.RequestsPerMinute)
	return classify.New(provider, limiter, opts), provider, nil
}

// checkProvider fails when the provider does not answer a model listing
func checkProvider(ctx context.Context, provider llm.Provider) error {
	if !provider.IsAvailable(ctx) {
		return fmt.Errorf("provider %s is not reachable or rejected the credentials", provider.Name())
	}
	return nil
}
