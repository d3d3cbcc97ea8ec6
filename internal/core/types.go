package core

import (
	"fmt"
	"strings"
)

// Mode controls the minimum and expected range of generated sub-queries.
type Mode string

const (
	ModeSimple  Mode = "simple"
	ModeComplex Mode = "complex"
)

// ParseMode maps user input to a Mode.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "simple", "overview", "ai-overview", "ai_overview":
		return ModeSimple, nil
	case "complex", "ai-mode", "ai_mode":
		return ModeComplex, nil
	case "":
		return "", fmt.Errorf("mode is required (simple or complex)")
	default:
		return "", fmt.Errorf("invalid mode %q (expected simple or complex)", value)
	}
}

// Label returns the human-facing name embedded in the prompt.
func (m Mode) Label() string {
	switch m {
	case ModeComplex:
		return "AI Mode (complex)"
	default:
		return "AI Overview (simple)"
	}
}

// FanoutRequest is the input of a single run.
type FanoutRequest struct {
	Query string `json:"query"`
	Mode  Mode   `json:"mode"`
}

// GenerationDetails is the model's own account of how many queries it meant
// to produce and why.
type GenerationDetails struct {
	TargetQueryCount  *int   `json:"target_query_count,omitempty" yaml:"target_query_count,omitempty"`
	ReasoningForCount string `json:"reasoning_for_count" yaml:"reasoning_for_count"`
}

// ExpandedQuery is one synthetic sub-query.
type ExpandedQuery struct {
	Query      string `json:"query" yaml:"query"`
	Type       string `json:"type" yaml:"type"`
	UserIntent string `json:"user_intent" yaml:"user_intent"`
	Reasoning  string `json:"reasoning" yaml:"reasoning"`
}

// Columns is the fixed column order for tables and exports.
var Columns = []string{"query", "type", "user_intent", "reasoning"}

// Row returns the record's values in Columns order.
func (q ExpandedQuery) Row() []string {
	return []string{q.Query, q.Type, q.UserIntent, q.Reasoning}
}

// FanoutResult is the interpreted model output.
type FanoutResult struct {
	Details *GenerationDetails `json:"generation_details,omitempty" yaml:"generation_details,omitempty"`
	Queries []ExpandedQuery    `json:"expanded_queries" yaml:"expanded_queries"`
}

// ActualCount is the number of queries the model really produced.
func (r FanoutResult) ActualCount() int {
	return len(r.Queries)
}

// DeclaredCount returns the model's target count, if it declared one.
func (r FanoutResult) DeclaredCount() (int, bool) {
	if r.Details == nil || r.Details.TargetQueryCount == nil {
		return 0, false
	}
	return *r.Details.TargetQueryCount, true
}

// CountMismatch reports whether the declared target and the produced count
// diverge. mismatch is always false when no target was declared.
func (r FanoutResult) CountMismatch() (declared, actual int, mismatch bool) {
	declared, hasDeclared := r.DeclaredCount()
	actual = r.ActualCount()
	if !hasDeclared {
		return 0, actual, false
	}
	return declared, actual, declared != actual
}
