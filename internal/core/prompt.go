package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	MinQueriesSimple  = 10
	MinQueriesComplex = 20
)

// SchemaExample is appended verbatim to every prompt.
const SchemaExample = `{
  "generation_details": {
    "target_query_count": 12,
    "reasoning_for_count": "The query is moderately complex, so slightly more than the minimum covers its key facets such as X, Y and Z."
  },
  "expanded_queries": [
    {
      "query": "Example query 1...",
      "type": "reformulation",
      "user_intent": "Example intent...",
      "reasoning": "Why this specific query was generated..."
    }
  ]
}`

const DefaultPromptTemplate = "You are simulating the query fan-out process of an advanced generative AI search system (such as Google's AI Mode).\n" +
	"The user's original query is: \"{query}\"\n" +
	"The selected mode is: \"{mode}\"\n\n" +
	"**Your first task is to decide the total number of queries to generate, following the instructions below, and explain why.**\n" +
	"{instruction}\n\n" +
	"**Once you have decided on the number and the reasoning, generate exactly that many unique, synthetic queries.**\n" +
	"The set should include each of the following query transformation types whenever the total allows:\n" +
	"1.  **Reformulations**: ask the same question in a different way.\n" +
	"2.  **Related Queries**: explore adjacent aspects of the topic that are not its core.\n" +
	"3.  **Implicit Queries**: surface background the user did not state but probably wants to know.\n" +
	"4.  **Comparative Queries**: contrast the strengths and weaknesses of different options.\n" +
	"5.  **Entity Expansions**: dig into specific entities (people, places, things) mentioned in the query.\n" +
	"6.  **Personalized Queries**: simulate queries driven by common user needs (for example beginner guides or budget constraints).\n\n" +
	"The 'reasoning' field of every query must explain why that specific query was generated, its type, and how it maps to the user's overall intent.\n" +
	"Do not generate queries that depend on real-time user history or geolocation.\n\n" +
	"**Return exactly one valid JSON object, strictly in the following format:**\n" +
	"{schema}\n"

// MinQueries returns the minimum number of sub-queries requested for mode.
func MinQueries(mode Mode) int {
	if mode == ModeComplex {
		return MinQueriesComplex
	}
	return MinQueriesSimple
}

// CountInstruction is the mode-specific guidance on how many queries to produce.
func CountInstruction(query string, mode Mode) string {
	if mode == ModeComplex {
		minimum := MinQueriesComplex
		return fmt.Sprintf("First, analyze the user query: \"%s\". Based on its complexity and the \"%s\" mode, "+
			"**you must decide on an optimal number of queries to generate.** "+
			"This number must be **at least %d**. "+
			"For a multi-faceted query that calls for exploring different angles, sub-topics, comparisons or deeper implications, "+
			"generate a more comprehensive set, possibly %d-%d queries, or even more if the query is especially broad or deep. "+
			"Briefly explain why you chose that specific number. The queries should be diverse and in-depth.",
			query, mode.Label(), minimum, minimum+5, minimum+10)
	}
	minimum := MinQueriesSimple
	return fmt.Sprintf("First, analyze the user query: \"%s\". Based on its complexity and the \"%s\" mode, "+
		"**you must decide on an optimal number of queries to generate.** "+
		"This number must be **at least %d**. "+
		"For a straightforward query, around %d-%d queries may be enough. "+
		"If the query has several distinct facets or common follow-up questions, aim for %d-%d queries. "+
		"Briefly explain why you chose that specific number. The queries should be well-scoped and highly relevant.",
		query, mode.Label(), minimum, minimum, minimum+2, minimum+3, minimum+5)
}

// BuildPrompt returns the full instruction sent to the model.
func BuildPrompt(query string, mode Mode) string {
	return RenderPromptTemplate(DefaultPromptTemplate, query, mode)
}

// RenderPromptTemplate substitutes template variables for a prompt. All
// placeholders are replaced in a single pass, so braces inside the query are
// never expanded.
func RenderPromptTemplate(template, query string, mode Mode) string {
	replacer := strings.NewReplacer(
		"{query}", query,
		"{mode}", mode.Label(),
		"{min_queries}", strconv.Itoa(MinQueries(mode)),
		"{instruction}", CountInstruction(query, mode),
		"{schema}", SchemaExample,
	)
	return replacer.Replace(template)
}

// ResolvePromptTemplate returns the template stored at path, falling back to
// QFORIA_PROMPT_TEMPLATE_FILE and then to DefaultPromptTemplate.
func ResolvePromptTemplate(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		if envPath := os.Getenv("QFORIA_PROMPT_TEMPLATE_FILE"); strings.TrimSpace(envPath) != "" {
			path = envPath
		}
	}
	if strings.TrimSpace(path) == "" {
		return DefaultPromptTemplate, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt template: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return DefaultPromptTemplate, nil
	}
	return string(data), nil
}
