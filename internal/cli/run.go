package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/rowlabel/internal/dataset"
	"github.com/ppiankov/rowlabel/internal/pipeline"
)

var runCheck bool

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [dataset.csv]",
	Short: "Label every unlabeled row of a CSV dataset",
	Long: `Run labels a CSV dataset in place:
- Skip the leading metadata lines and read the header
- Skip rows that already have a label or have no text
- Classify the remaining rows concurrently under a requests-per-minute budget
- Retry failed or invalid answers with a random delay
- Save the file every batch of completed rows, and once more at the end

Rows the service could not label stay blank; run the command again to retry them.

Example:
  rowlabel run comments.csv --standard standard.md
  rowlabel run comments.csv --workers 20 --rpm 100 --batch-size 50
  rowlabel run comments.csv --provider anthropic --model claude-3-5-haiku-latest --api-key-env ANTHROPIC_API_KEY`,
	Args: cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, runFlagKeys)
	},
	RunE: runLabel,
}

// runFlagKeys maps run flags to config keys
var runFlagKeys = map[string]string{
	"standard":       "dataset.standard_path",
	"input-column":   "dataset.input_column",
	"output-column":  "dataset.output_column",
	"metadata-lines": "dataset.metadata_lines",
	"batch-size":     "dataset.batch_save_size",
	"workers":        "concurrency.workers",
	"max-in-flight":  "concurrency.max_in_flight",
	"rpm":            "rate_limit.requests_per_minute",
	"retries":        "retry.attempts",
	"provider":       "llm.provider",
	"model":          "llm.model",
	"base-url":       "llm.base_url",
	"api-key-env":    "llm.api_key_env",
	"timeout":        "llm.timeout",
	"cache":          "cache.enabled",
	"cache-dir":      "cache.dir",
	"http-proxy":     "http.http_proxy",
	"https-proxy":    "http.https_proxy",
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Dataset flags
	runCmd.Flags().String("standard", "standard.md", "labeling standard file")
	runCmd.Flags().String("input-column", "评论内容", "column holding the text to classify")
	runCmd.Flags().String("output-column", "标注", "column receiving the label")
	runCmd.Flags().Int("metadata-lines", 6, "opaque lines preceding the CSV header")
	runCmd.Flags().Int("batch-size", 20, "save after this many completed rows")

	// Concurrency flags
	runCmd.Flags().Int("workers", 50, "row workers")
	runCmd.Flags().Int("max-in-flight", 50, "maximum concurrent classifications")
	runCmd.Flags().Int("rpm", 200, "requests per minute across all workers (0 = unlimited)")
	runCmd.Flags().Int("retries", 3, "attempts per row")

	// LLM flags
	addLLMFlags(runCmd)

	// Cache and network flags
	runCmd.Flags().Bool("cache", false, "reuse labels for identical texts")
	runCmd.Flags().String("cache-dir", "", "persist the label cache in this directory")
	runCmd.Flags().String("http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	runCmd.Flags().String("https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")

	runCmd.Flags().BoolVar(&runCheck, "check", false, "verify the provider is reachable before labeling")
}

// addLLMFlags registers the provider selection flags shared by run and classify
func addLLMFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "openai", "LLM provider (openai, anthropic, ollama)")
	cmd.Flags().String("model", "kimi-k2-turbo-preview", "model name")
	cmd.Flags().String("base-url", "https://api.moonshot.cn/v1", "OpenAI-compatible endpoint")
	cmd.Flags().String("api-key-env", "MOONSHOT_API_KEY", "environment variable holding the API key")
	cmd.Flags().Duration("timeout", 60*time.Second, "timeout per request")
}

func runLabel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Dataset.Path = args[0]
	}
	if cfg.Dataset.Path == "" {
		return fmt.Errorf("no dataset given: pass a CSV path or set dataset.path")
	}

	logger := newLogger(cfg, os.Stderr)
	defer func() { _ = logger.Sync() }()

	// Configuration problems abort before any remote call
	if err := resolveAPIKey(cfg); err != nil {
		return err
	}
	standard, err := readStandard(cfg.Dataset.StandardPath)
	if err != nil {
		return err
	}

	classifier, provider, err := newClassifier(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runCheck {
		if err := checkProvider(ctx, provider); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Provider %s is reachable\n", provider.Name())
	}

	ds, encoding, err := dataset.Load(cfg.Dataset.Path, cfg.Dataset.MetadataLines)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Rowlabel\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Dataset:      %s (%s, %d rows)\n", cfg.Dataset.Path, encoding, ds.Len())
	fmt.Fprintf(os.Stderr, "  Standard:     %s\n", cfg.Dataset.StandardPath)
	fmt.Fprintf(os.Stderr, "  Columns:      %s -> %s\n", cfg.Dataset.InputColumn, cfg.Dataset.OutputColumn)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", provider.Name(), cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "  Workers:      %d (max in flight %d)\n", cfg.Concurrency.Workers, cfg.Concurrency.MaxInFlight)
	fmt.Fprintf(os.Stderr, "  Rate limit:   %d req/min\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Fprintf(os.Stderr, "  Save every:   %d rows\n", cfg.Dataset.BatchSaveSize)
	fmt.Fprintf(os.Stderr, "\n")

	opts := pipeline.OptionsFromModel(cfg)
	opts.Progress = os.Stderr
	opts.Logger = logger

	p := pipeline.NewPipeline(classifier, standard, opts)
	summary, err := p.Run(ctx, ds, dataset.FileStore{Path: cfg.Dataset.Path})
	if summary != nil {
		printSummary(summary, cfg.Dataset.Path)
	}
	if err != nil {
		return err
	}
	if summary.Interrupted {
		logger.Warn("run interrupted; rerun to label the remaining rows", zap.String("run_id", summary.RunID))
		return fmt.Errorf("interrupted after %d of %d rows: %w", summary.Processed(), summary.Total, context.Canceled)
	}

	return nil
}

func printSummary(s *pipeline.Summary, path string) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Labeling Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Run:              %s\n", s.RunID)
	fmt.Fprintf(os.Stderr, "  Total:            %d rows\n", s.Total)
	fmt.Fprintf(os.Stderr, "  Labeled:          %d\n", s.Labeled)
	fmt.Fprintf(os.Stderr, "  Already labeled:  %d\n", s.AlreadyLabeled)
	fmt.Fprintf(os.Stderr, "  Empty input:      %d\n", s.EmptyInput)
	fmt.Fprintf(os.Stderr, "  Unlabeled:        %d\n", s.Unlabeled)
	fmt.Fprintf(os.Stderr, "  Saves:            %d\n", s.Saves)
	fmt.Fprintf(os.Stderr, "  Duration:         %v\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  Output:           %s\n", path)
	fmt.Fprintf(os.Stderr, "\n")
}
