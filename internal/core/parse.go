package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// Strategy selects how the JSON object is located in the model output.
type Strategy string

const (
	// StrategyGreedy takes everything from the first '{' to the last '}'.
	// A region that fails to decode is retried with the balanced scanner.
	StrategyGreedy Strategy = "greedy"
	// StrategyBalanced looks for the first complete, decodable object that
	// carries a fan-out key before falling back to the greedy region.
	StrategyBalanced Strategy = "balanced"
)

// ParseStrategy maps user input to a Strategy. Empty means greedy.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case "", StrategyGreedy:
		return StrategyGreedy, nil
	case StrategyBalanced:
		return StrategyBalanced, nil
	default:
		return "", fmt.Errorf("invalid parse strategy %q (expected greedy or balanced)", value)
	}
}

type ParseOptions struct {
	Strategy Strategy
}

// ParseFanout interprets raw model output using the greedy strategy.
func ParseFanout(raw string) (FanoutResult, error) {
	return ParseFanoutWith(raw, ParseOptions{})
}

// ParseFanoutWith interprets raw model output. Under the greedy strategy a
// region that does not decode is reported as ErrMalformedJSON; only the
// balanced strategy searches for another object.
func ParseFanoutWith(raw string, opts ParseOptions) (FanoutResult, error) {
	greedy, ok := extractGreedy(raw)
	if !ok {
		return FanoutResult{}, &ParseError{Kind: ErrNoJSONFound, Raw: raw}
	}

	if opts.Strategy == StrategyBalanced {
		if candidate, ok := extractBalanced(raw); ok {
			return decodeFanout(raw, candidate)
		}
	}

	if err := validateJSON(greedy); err != nil {
		return FanoutResult{}, &ParseError{Kind: ErrMalformedJSON, Raw: raw, Fragment: greedy, Err: err}
	}

	return decodeFanout(raw, greedy)
}

func extractGreedy(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// extractBalanced scans every '{' in order and returns the first balanced,
// valid object that contains generation_details or expanded_queries and is
// not an echo of SchemaExample. Braces inside JSON strings are ignored.
func extractBalanced(raw string) (string, bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}
		end := matchingBrace(raw, i)
		if end < 0 {
			continue
		}
		candidate := raw[i : end+1]
		if !json.Valid([]byte(candidate)) {
			continue
		}
		if hasFanoutKey(gjson.Parse(candidate)) && !isSchemaEcho(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func matchingBrace(raw string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for j := start; j < len(raw); j++ {
		c := raw[j]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return j
				}
			}
		}
	}
	return -1
}

var compactSchema = compactJSON(SchemaExample)

func isSchemaEcho(candidate string) bool {
	return compactJSON(candidate) == compactSchema
}

func compactJSON(fragment string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(fragment)); err != nil {
		return fragment
	}
	return buf.String()
}

func validateJSON(fragment string) error {
	var probe json.RawMessage
	return json.Unmarshal([]byte(fragment), &probe)
}

func hasFanoutKey(obj gjson.Result) bool {
	return obj.Get("generation_details").Exists() || obj.Get("expanded_queries").Exists()
}

func decodeFanout(raw, fragment string) (FanoutResult, error) {
	obj := gjson.Parse(fragment)
	if !obj.IsObject() || !hasFanoutKey(obj) {
		return FanoutResult{}, &ParseError{Kind: ErrNoJSONFound, Raw: raw, Fragment: fragment}
	}

	result := FanoutResult{
		Details: decodeDetails(obj.Get("generation_details")),
		Queries: []ExpandedQuery{},
	}

	queries := obj.Get("expanded_queries")
	if queries.IsArray() {
		queries.ForEach(func(_, item gjson.Result) bool {
			if !item.IsObject() {
				return true
			}
			result.Queries = append(result.Queries, ExpandedQuery{
				Query:      stringValue(item.Get("query")),
				Type:       stringValue(item.Get("type")),
				UserIntent: stringValue(item.Get("user_intent")),
				Reasoning:  stringValue(item.Get("reasoning")),
			})
			return true
		})
	}

	return result, nil
}

func decodeDetails(value gjson.Result) *GenerationDetails {
	if !value.IsObject() {
		return nil
	}
	details := &GenerationDetails{
		ReasoningForCount: stringValue(value.Get("reasoning_for_count")),
	}
	count := value.Get("target_query_count")
	if count.Type == gjson.Number {
		n := count.Float()
		if n == math.Trunc(n) && n >= 0 && n <= math.MaxInt32 {
			target := int(n)
			details.TargetQueryCount = &target
		}
	}
	return details
}

func stringValue(value gjson.Result) string {
	if value.Type != gjson.String {
		return ""
	}
	return value.String()
}
