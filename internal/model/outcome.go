package model

import "errors"

// ErrInvalidLabel marks model output that is not a member of the label set.
// It is a soft failure: the classifier retries instead of propagating it.
var ErrInvalidLabel = errors.New("invalid label")

// OutcomeStatus tells whether a classification produced a label
type OutcomeStatus string

const (
	OutcomeLabeled     OutcomeStatus = "labeled"
	OutcomeUnavailable OutcomeStatus = "unavailable" // retries exhausted or cancelled; row stays blank
)

// Outcome is the result of classifying one text.
// Label is only meaningful when Status is OutcomeLabeled.
type Outcome struct {
	Status   OutcomeStatus
	Label    Label
	Attempts int   // remote attempts made (0 on a cache hit)
	Cached   bool  // label came from the label cache
	Err      error // last failure seen, if any
}

// OK reports whether the outcome carries a validated label
func (o Outcome) OK() bool {
	return o.Status == OutcomeLabeled
}

// Labeled builds a successful outcome
func Labeled(l Label, attempts int) Outcome {
	return Outcome{Status: OutcomeLabeled, Label: l, Attempts: attempts}
}

// Unavailable builds a "no label" outcome
func Unavailable(attempts int, err error) Outcome {
	return Outcome{Status: OutcomeUnavailable, Attempts: attempts, Err: err}
}

// RowStatus classifies how a row finished processing
type RowStatus string

const (
	RowLabeled        RowStatus = "labeled"
	RowAlreadyLabeled RowStatus = "already_labeled"
	RowEmptyInput     RowStatus = "empty_input"
	RowUnlabeled      RowStatus = "unlabeled" // classifier gave up; blank cell means "needs re-run"
)
