// Package ai provides response cleaning utilities for handling malformed LLM responses.
package ai

import (
	"strings"
)

// ResponseCleaner handles cleaning and sanitizing LLM responses.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

// CleanJSONArray prepares a model answer that should hold a JSON array.
// It never fails; callers decide what an unparsable result means.
func (rc *ResponseCleaner) CleanJSONArray(response string) string {
	// Step 1: Drop everything outside printable ASCII, newlines included
	response = rc.removeNonPrintable(response)

	// Step 2: Remove markdown code blocks
	response = rc.removeMarkdownBlocks(response)

	// Step 3: Models sometimes separate objects with semicolons
	response = strings.ReplaceAll(response, ";", ",")

	// Step 4: Cut leading or trailing prose around the array
	return rc.extractJSONArray(response)
}

func (rc *ResponseCleaner) removeNonPrintable(response string) string {
	var b strings.Builder
	b.Grow(len(response))
	for i := 0; i < len(response); i++ {
		if c := response[i]; c >= 0x20 && c <= 0x7e {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// removeMarkdownBlocks removes markdown code blocks from the response.
func (rc *ResponseCleaner) removeMarkdownBlocks(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// extractJSONArray keeps the span from the first '[' to the last ']' when the
// response does not already start with an array.
func (rc *ResponseCleaner) extractJSONArray(response string) string {
	if strings.HasPrefix(response, "[") {
		return response
	}
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end <= start {
		return response
	}
	return response[start : end+1]
}
