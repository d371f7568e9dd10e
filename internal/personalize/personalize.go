// Package personalize decides whether a generated interview question is grounded
// in the candidate's own CV.
package personalize

import (
	"strings"
	"unicode/utf8"

	"github.com/spigell/cv-screener/internal/signals"
)

// DefaultPhrases are wordings that tie a question to the candidate's CV without
// naming a specific signal.
var DefaultPhrases = []string{
	"i see",
	"your cv",
	"you worked",
	"you mentioned",
	"your background",
	"your experience",
}

const defaultMinSignalLength = 2

// Validator checks questions against extracted signals.
type Validator struct {
	phrases         []string
	minSignalLength int
}

// Option tunes a Validator.
type Option func(*Validator)

// WithPhrases adds personalization phrases on top of DefaultPhrases.
func WithPhrases(phrases ...string) Option {
	return func(v *Validator) {
		for _, p := range phrases {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				v.phrases = append(v.phrases, p)
			}
		}
	}
}

// WithMinSignalLength ignores signals shorter than n runes, so that one-letter
// values do not match every question.
func WithMinSignalLength(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.minSignalLength = n
		}
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{
		phrases:         append([]string(nil), DefaultPhrases...),
		minSignalLength: defaultMinSignalLength,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// IsPersonalized reports whether question names a company, technology, project
// or role from s, or uses one of the personalization phrases. Matches must sit
// on word boundaries, so "go" does not match "goals".
func (v *Validator) IsPersonalized(question string, s signals.CVSignals) bool {
	q := strings.ToLower(question)
	if strings.TrimSpace(q) == "" {
		return false
	}

	groups := [][]string{s.Companies, s.Technologies, s.Projects, s.Roles}
	for _, group := range groups {
		for _, value := range group {
			value = strings.ToLower(strings.TrimSpace(value))
			if utf8.RuneCountInString(value) < v.minSignalLength {
				continue
			}
			if signals.ContainsWord(q, value) {
				return true
			}
		}
	}

	for _, phrase := range v.phrases {
		if signals.ContainsWord(q, phrase) {
			return true
		}
	}
	return false
}

// Ungrounded returns the indexes of questions that are not personalized.
func (v *Validator) Ungrounded(questions []string, s signals.CVSignals) []int {
	var idx []int
	for i, q := range questions {
		if !v.IsPersonalized(q, s) {
			idx = append(idx, i)
		}
	}
	return idx
}
