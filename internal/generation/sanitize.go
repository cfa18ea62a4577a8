package generation

import (
	"regexp"
	"strings"
)

var (
	// fenceTagPattern matches an opening fence with a language tag on a line
	// of its own, capturing the start of the content that follows. A fenced
	// word with nothing after it is prompt text, not a tag.
	fenceTagPattern = regexp.MustCompile("```[A-Za-z0-9_+.-]+[ \t]*\r?\n(\\s*[^`\\s])")
	fencePattern    = regexp.MustCompile("```")
)

// SanitizePrompt strips fenced code block delimiters and collapses every
// whitespace run to a single space.
func SanitizePrompt(prompt string) string {
	prompt = fenceTagPattern.ReplaceAllString(prompt, " ${1}")
	prompt = fencePattern.ReplaceAllString(prompt, " ")
	return strings.Join(strings.Fields(prompt), " ")
}
