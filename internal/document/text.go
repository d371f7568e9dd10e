package document

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/spigell/cv-screener/internal/utils"
)

const maxPlaceholderFragment = 500

var (
	inlineSpaceRe = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
)

// PlaceholderMarkers are phrases every placeholder text contains.
var PlaceholderMarkers = []string{
	"could not be automatically extracted",
	"manual review",
}

type plainTextStrategy struct{}

func (plainTextStrategy) Name() string { return "plain_text" }

func (plainTextStrategy) Extract(_ context.Context, doc RawDocument) (Candidate, error) {
	return Candidate{Text: string(doc.Data), PageCount: 1}, nil
}

// cleanText normalizes whitespace while keeping paragraph breaks.
func cleanText(text string) string {
	text = utils.SanitizeText(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpaceRe.ReplaceAllString(line, " "))
	}

	text = strings.Join(lines, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// CountWords returns the number of whitespace-delimited tokens in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

func newResult(text string, pages int, method string, placeholder bool) *ExtractionResult {
	if pages < 1 {
		pages = 1
	}
	return &ExtractionResult{
		Text:        text,
		PageCount:   pages,
		WordCount:   CountWords(text),
		Method:      method,
		Placeholder: placeholder,
	}
}

// placeholderText describes a failed extraction and keeps whatever partial text was found.
func placeholderText(filename string, kind Kind, partial string) string {
	name := strings.TrimSpace(filename)
	if name == "" {
		name = "unnamed document"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CV document: %s\n\n", name)
	fmt.Fprintf(&b, "Text content could not be automatically extracted from this %s file. ", strings.ToUpper(string(kind)))
	b.WriteString("Extraction failed for every supported method, so the candidate's experience, education and skills are unknown. ")
	b.WriteString("Manual review of the original file is recommended before making a decision.")

	partial = strings.TrimSpace(partial)
	if partial != "" {
		runes := []rune(partial)
		if len(runes) > maxPlaceholderFragment {
			partial = string(runes[:maxPlaceholderFragment])
		}
		b.WriteString("\n\nRecovered fragments:\n")
		b.WriteString(partial)
	}

	return cleanText(b.String())
}
