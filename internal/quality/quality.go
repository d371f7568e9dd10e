// Package quality flags recovered CV text that looks implausible. Its findings are
// advisory and never stop an analysis.
package quality

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minLength          = 50
	completeLength     = 200
	minMeaningfulWords = 20
	minKeywords        = 3
	minUniqueRatio     = 0.3
)

// Keywords are terms expected in almost any CV.
var Keywords = []string{
	"experience", "education", "skills", "work", "job", "company", "university",
	"degree", "project", "development", "management", "team", "years",
}

// Report lists the quality issues found in a text. IsValid is true when Issues is empty.
type Report struct {
	Filename string
	IsValid  bool
	Issues   []string
}

// Validate checks text length, word density, keyword presence and repetition.
// The result depends only on its inputs.
func Validate(text, filename string) Report {
	report := Report{Filename: filename}

	length := utf8.RuneCountInString(strings.TrimSpace(text))
	if length < minLength {
		report.Issues = append(report.Issues, fmt.Sprintf("text too short: %d characters", length))
	}
	if length < completeLength {
		report.Issues = append(report.Issues, fmt.Sprintf("text may be incomplete: %d characters", length))
	}

	words := normalizedWords(text)

	meaningful := 0
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) > 2 {
			meaningful++
		}
		unique[w] = struct{}{}
	}
	if meaningful < minMeaningfulWords {
		report.Issues = append(report.Issues, fmt.Sprintf("too few meaningful words: %d", meaningful))
	}

	lower := strings.ToLower(text)
	found := 0
	for _, kw := range Keywords {
		if strings.Contains(lower, kw) {
			found++
		}
	}
	if found < minKeywords {
		report.Issues = append(report.Issues, fmt.Sprintf("few CV keywords found: %d of %d", found, len(Keywords)))
	}

	if len(words) > 0 {
		ratio := float64(len(unique)) / float64(len(words))
		if ratio < minUniqueRatio {
			report.Issues = append(report.Issues, fmt.Sprintf("text is highly repetitive: unique word ratio %.2f", ratio))
		}
	}

	report.IsValid = len(report.Issues) == 0
	return report
}

func normalizedWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}
