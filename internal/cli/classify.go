package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rowlabel/internal/llm"
	"github.com/ppiankov/rowlabel/internal/model"
)

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Classify a single text and print its label",
	Long: `Classify sends one text through the same prompt, retry and validation path
used by run, and prints the resulting label. Useful for checking a labeling
standard against sample comments before a full run.

Example:
  rowlabel classify "新国标出台后电动车更安全了" --standard standard.md
  rowlabel classify "..." --print-prompt`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, classifyFlagKeys)
	},
	RunE: runClassify,
}

var classifyPrintPrompt bool

var classifyFlagKeys = map[string]string{
	"standard":    "dataset.standard_path",
	"retries":     "retry.attempts",
	"provider":    "llm.provider",
	"model":       "llm.model",
	"base-url":    "llm.base_url",
	"api-key-env": "llm.api_key_env",
	"timeout":     "llm.timeout",
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().String("standard", "standard.md", "labeling standard file")
	classifyCmd.Flags().Int("retries", 3, "attempts")
	addLLMFlags(classifyCmd)
	classifyCmd.Flags().BoolVar(&classifyPrintPrompt, "print-prompt", false, "print the system prompt to stderr")
}

func runClassify(cmd *cobra.Command, args []string) error {
	text := args[0]
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text is empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stderr)
	defer func() { _ = logger.Sync() }()

	if err := resolveAPIKey(cfg); err != nil {
		return err
	}
	standard, err := readStandard(cfg.Dataset.StandardPath)
	if err != nil {
		return err
	}

	classifier, _, err := newClassifier(cfg, logger)
	if err != nil {
		return err
	}

	prompt := llm.BuildSystemPrompt(standard, model.DefaultLabels())
	if classifyPrintPrompt {
		fmt.Fprintf(os.Stderr, "%s\n", prompt)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	outcome := classifier.Classify(ctx, prompt, text)
	if !outcome.OK() {
		return fmt.Errorf("no label after %d attempts: %w", outcome.Attempts, outcome.Err)
	}

	fmt.Printf("%s\t%s\n", outcome.Label, outcome.Label.Meaning())
	return nil
}
