package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Label is the category assigned to a row
type Label int

const (
	LabelUseless  Label = 0 // Emotional venting, off-topic, vulgar or unrealistic
	LabelPositive Label = 1 // Useful, positive (explicit or implicit)
	LabelNegative Label = 2 // Useful, negative (explicit or implicit)
	LabelNeutral  Label = 3 // Useful, neutral (mediation, suggestions, public concern, explanation)
)

func (l Label) String() string {
	return strconv.Itoa(int(l))
}

// Meaning returns the human-readable category name
func (l Label) Meaning() string {
	switch l {
	case LabelUseless:
		return "useless"
	case LabelPositive:
		return "useful/positive"
	case LabelNegative:
		return "useful/negative"
	case LabelNeutral:
		return "useful/neutral"
	default:
		return "unknown"
	}
}

// LabelSet is the fixed enumeration of accepted labels
type LabelSet []Label

// DefaultLabels returns the four accepted labels
func DefaultLabels() LabelSet {
	return LabelSet{LabelUseless, LabelPositive, LabelNegative, LabelNeutral}
}

// Contains reports whether l is a member of the set
func (s LabelSet) Contains(l Label) bool {
	for _, v := range s {
		if v == l {
			return true
		}
	}
	return false
}

// Parse converts raw model output into a label.
// The text is trimmed, must be an integer, and must belong to the set.
func (s LabelSet) Parse(raw string) (Label, error) {
	text := strings.TrimSpace(raw)
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidLabel, text)
	}
	l := Label(n)
	if !s.Contains(l) {
		return 0, fmt.Errorf("%w: %d is outside the label set", ErrInvalidLabel, n)
	}
	return l, nil
}
