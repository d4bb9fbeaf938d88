package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/ppiankov/rowlabel/internal/dataset"
	"github.com/ppiankov/rowlabel/internal/llm"
	"github.com/ppiankov/rowlabel/internal/model"
	"github.com/ppiankov/rowlabel/internal/worker"
)

// Options configures a labeling run
type Options struct {
	InputColumn   string
	OutputColumn  string
	BatchSaveSize int
	Workers       int
	Labels        model.LabelSet
	Progress      io.Writer // progress bar destination; nil disables the bar
	Logger        *zap.Logger
}

// OptionsFromModel derives pipeline options from the application config
func OptionsFromModel(cfg *model.Config) Options {
	return Options{
		InputColumn:   cfg.Dataset.InputColumn,
		OutputColumn:  cfg.Dataset.OutputColumn,
		BatchSaveSize: cfg.Dataset.BatchSaveSize,
		Workers:       cfg.Concurrency.Workers,
		Labels:        model.DefaultLabels(),
	}
}

// Summary reports the outcome of one run
type Summary struct {
	RunID          string
	Total          int
	Labeled        int
	AlreadyLabeled int
	EmptyInput     int
	Unlabeled      int
	Saves          int
	Interrupted    bool
	Duration       time.Duration
}

// Processed returns the number of rows that reached completion
func (s *Summary) Processed() int {
	return s.Labeled + s.AlreadyLabeled + s.EmptyInput + s.Unlabeled
}

// Pipeline orchestrates a labeling run over one dataset
type Pipeline struct {
	classifier   Classifier
	systemPrompt string
	opts         Options
	logger       *zap.Logger
}

// NewPipeline creates a pipeline. The system prompt is built once from standard.
func NewPipeline(classifier Classifier, standard string, opts Options) *Pipeline {
	if len(opts.Labels) == 0 {
		opts.Labels = model.DefaultLabels()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchSaveSize <= 0 {
		opts.BatchSaveSize = 20
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		classifier:   classifier,
		systemPrompt: llm.BuildSystemPrompt(standard, opts.Labels),
		opts:         opts,
		logger:       logger,
	}
}

// SystemPrompt returns the instruction sent with every row
func (p *Pipeline) SystemPrompt() string {
	return p.systemPrompt
}

// Run labels every row of ds that still needs a label, checkpointing through store.
// The final save runs even when ctx is cancelled; its failure is the only error
// returned after processing starts.
func (p *Pipeline) Run(ctx context.Context, ds *dataset.Dataset, store dataset.Store) (*Summary, error) {
	if !ds.HasColumn(p.opts.InputColumn) {
		return nil, fmt.Errorf("%w: input column %q", dataset.ErrMissingColumn, p.opts.InputColumn)
	}

	summary := &Summary{
		RunID: uuid.New().String(),
		Total: ds.Len(),
	}
	logger := p.logger.With(zap.String("run_id", summary.RunID))

	if ds.EnsureColumn(p.opts.OutputColumn) {
		logger.Info("created output column", zap.String("column", p.opts.OutputColumn))
	}

	logger.Info("labeling started",
		zap.Int("rows", summary.Total),
		zap.Int("workers", p.opts.Workers),
		zap.Int("batch_save_size", p.opts.BatchSaveSize))

	start := time.Now()
	checkpointer := dataset.NewCheckpointer(store, ds, p.opts.BatchSaveSize, logger)
	bar := p.newProgressBar(summary.Total)

	var labeled, already, empty, unlabeled atomic.Int64
	onDone := func(r RowResult) {
		switch r.Status {
		case model.RowLabeled:
			labeled.Add(1)
		case model.RowAlreadyLabeled:
			already.Add(1)
		case model.RowEmptyInput:
			empty.Add(1)
		default:
			unlabeled.Add(1)
		}
		_ = bar.Add(1)
		checkpointer.Done()
	}

	processor := NewRowProcessor(ds, p.classifier, p.systemPrompt,
		p.opts.InputColumn, p.opts.OutputColumn, onDone, logger)

	batch := worker.NewBatchProcessor(p.opts.Workers)
	batch.ProcessIndexes(ctx, summary.Total, func(ctx context.Context, index int) error {
		return processor.Process(ctx, index).Err
	})

	_ = bar.Finish()

	summary.Interrupted = ctx.Err() != nil
	if summary.Interrupted {
		logger.Warn("run interrupted, saving progress", zap.Error(ctx.Err()))
	}

	flushErr := checkpointer.Flush()

	summary.Labeled = int(labeled.Load())
	summary.AlreadyLabeled = int(already.Load())
	summary.EmptyInput = int(empty.Load())
	summary.Unlabeled = int(unlabeled.Load())
	summary.Saves = checkpointer.Saves()
	summary.Duration = time.Since(start)

	if flushErr != nil {
		logger.Error("final save failed", zap.Error(flushErr))
		return summary, flushErr
	}

	logger.Info("labeling finished",
		zap.Int("labeled", summary.Labeled),
		zap.Int("already_labeled", summary.AlreadyLabeled),
		zap.Int("empty_input", summary.EmptyInput),
		zap.Int("unlabeled", summary.Unlabeled),
		zap.Int("saves", summary.Saves),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

func (p *Pipeline) newProgressBar(total int) *progressbar.ProgressBar {
	w := p.opts.Progress
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Labeling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
}
