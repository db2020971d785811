package agent

import (
	"regexp"
	"strings"
)

var analyzeIntent = regexp.MustCompile(`\b(` +
	`analy[sz](e|es|ed|ing)|analysis|` +
	`explain (this|that|it|these|the highlight\w*|the drawing|my drawing)|` +
	`what(?:'s| is| are) (this|that|these|those)|whats this|` +
	`highlight(ed|s)?|` +
	`describe (this|that|it|these)|` +
	`break (this|that|it) down|break down (this|that)|` +
	`what does (this|that|it) mean` +
	`)\b`)

// IsAnalyzeIntent reports whether text asks about the current annotation.
func IsAnalyzeIntent(text string) bool {
	text = strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	return analyzeIntent.MatchString(text)
}
