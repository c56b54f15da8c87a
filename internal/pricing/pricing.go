package pricing

import (
	"errors"
	"sort"
	"strings"
)

// ActionKind identifies a billable provider operation.
type ActionKind string

const (
	KindTextGeneration    ActionKind = "text_generation"
	KindImageGeneration   ActionKind = "image_generation"
	KindCodeGeneration    ActionKind = "code_generation"
	KindDataAnalysis      ActionKind = "data_analysis"
	KindTextSummarization ActionKind = "text_summarization"
	KindSEOOptimization   ActionKind = "seo_optimization"
)

var ErrUnknownActionKind = errors.New("unknown_action_kind")

// defaultCosts is the static cost schedule in credits per action.
var defaultCosts = map[ActionKind]int64{
	KindTextGeneration:    5,
	KindImageGeneration:   10,
	KindCodeGeneration:    8,
	KindDataAnalysis:      15,
	KindTextSummarization: 3,
	KindSEOOptimization:   12,
}

// Table resolves action kinds to their credit cost.
type Table struct {
	costs map[ActionKind]int64
}

// NewTable builds the static pricing table.
func NewTable() *Table {
	costs := make(map[ActionKind]int64, len(defaultCosts))
	for kind, cost := range defaultCosts {
		costs[kind] = cost
	}
	return &Table{costs: costs}
}

// Cost returns the credit cost for the given kind.
func (t *Table) Cost(kind ActionKind) (int64, error) {
	cost, ok := t.costs[kind]
	if !ok {
		return 0, ErrUnknownActionKind
	}
	return cost, nil
}

// ParseKind normalizes and validates a raw action kind string.
func (t *Table) ParseKind(raw string) (ActionKind, error) {
	kind := ActionKind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := t.costs[kind]; !ok {
		return "", ErrUnknownActionKind
	}
	return kind, nil
}

// Kinds returns the supported action kinds in stable order.
func (t *Table) Kinds() []ActionKind {
	kinds := make([]ActionKind, 0, len(t.costs))
	for kind := range t.costs {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
