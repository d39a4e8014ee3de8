package ingestion

import (
	"regexp"
	"strings"
)

var (
	multiSpace   = regexp.MustCompile(`[ \t]+`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
)

// boilerplatePrefixes are line starts that mark navigation or footer noise
// rather than article body.
var boilerplatePrefixes = []string{
	"cookie",
	"accept all",
	"subscribe to",
	"sign up for",
	"advertisement",
	"share this",
	"related articles",
	"read more:",
}

// CleanText normalizes whitespace and strips obvious boilerplate lines from
// extracted article text.
func CleanText(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(multiSpace.ReplaceAllString(line, " "))
		if line == "" {
			cleaned = append(cleaned, "")
			continue
		}
		if isBoilerplate(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}

	text := strings.Join(cleaned, "\n")
	text = multiNewline.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func isBoilerplate(line string) bool {
	lower := strings.ToLower(line)
	for _, prefix := range boilerplatePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
