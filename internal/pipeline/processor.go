package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/rowlabel/internal/dataset"
	"github.com/ppiankov/rowlabel/internal/model"
)

// Classifier labels one text
type Classifier interface {
	Classify(ctx context.Context, systemPrompt, text string) model.Outcome
}

// RowResult describes how one row finished
type RowResult struct {
	Index   int
	Status  model.RowStatus
	Outcome model.Outcome // zero unless the classifier ran
	Err     error
}

// RowProcessor handles a single row: skip, classify, write back.
type RowProcessor struct {
	ds           *dataset.Dataset
	classifier   Classifier
	systemPrompt string
	inputColumn  string
	outputColumn string
	onDone       func(RowResult)
	logger       *zap.Logger
}

// NewRowProcessor creates a row processor. onDone runs exactly once per processed row.
func NewRowProcessor(ds *dataset.Dataset, classifier Classifier, systemPrompt, inputColumn, outputColumn string, onDone func(RowResult), logger *zap.Logger) *RowProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if onDone == nil {
		onDone = func(RowResult) {}
	}
	return &RowProcessor{
		ds:           ds,
		classifier:   classifier,
		systemPrompt: systemPrompt,
		inputColumn:  inputColumn,
		outputColumn: outputColumn,
		onDone:       onDone,
		logger:       logger,
	}
}

// Process labels row index unless it already has a label or has no text
func (p *RowProcessor) Process(ctx context.Context, index int) (result RowResult) {
	result.Index = index

	defer func() {
		if r := recover(); r != nil {
			result.Status = model.RowUnlabeled
			result.Err = fmt.Errorf("row %d: panic: %v", index, r)
			p.logger.Error("row processing panicked", zap.Int("row", index), zap.Any("panic", r))
		}
		p.onDone(result)
	}()

	current, err := p.ds.Get(index, p.outputColumn)
	if err != nil {
		result.Status = model.RowUnlabeled
		result.Err = err
		return result
	}
	if !dataset.IsBlank(current) {
		result.Status = model.RowAlreadyLabeled
		return result
	}

	text, err := p.ds.Get(index, p.inputColumn)
	if err != nil {
		result.Status = model.RowUnlabeled
		result.Err = err
		return result
	}
	if dataset.IsBlank(text) {
		result.Status = model.RowEmptyInput
		return result
	}

	outcome := p.classifier.Classify(ctx, p.systemPrompt, text)
	result.Outcome = outcome
	if !outcome.OK() {
		result.Status = model.RowUnlabeled
		result.Err = outcome.Err
		p.logger.Warn("row left unlabeled",
			zap.Int("row", index),
			zap.Int("attempts", outcome.Attempts),
			zap.Error(outcome.Err))
		return result
	}

	if err := p.ds.Set(index, p.outputColumn, outcome.Label.String()); err != nil {
		result.Status = model.RowUnlabeled
		result.Err = err
		return result
	}

	result.Status = model.RowLabeled
	p.logger.Debug("row labeled",
		zap.Int("row", index),
		zap.Int("label", int(outcome.Label)),
		zap.Bool("cached", outcome.Cached))
	return result
}
