// Package ai defines the port to the external model that writes interview
// questions and assessments, and the checks its answers must pass.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spigell/cv-screener/internal/personalize"
	"github.com/spigell/cv-screener/internal/posting"
	"github.com/spigell/cv-screener/internal/signals"
)

const (
	QuestionCount           = 3
	DefaultSummaryMinLength = 400
	MinTags                 = 3
)

var (
	ErrResponseInvalid    = errors.New("ai response invalid")
	ErrUngroundedQuestion = errors.New("ai question not grounded in cv")
)

// Request is the context handed to the model for one CV.
type Request struct {
	Filename  string
	CVText    string
	Signals   signals.CVSignals
	Job       posting.Job
	Applicant posting.Applicant
}

// Assessment is the model's structured verdict.
type Assessment struct {
	Score   int      `mapstructure:"score" json:"score"`
	Summary string   `mapstructure:"summary" json:"summary"`
	Tags    []string `mapstructure:"tags" json:"tags"`
}

type Analyst interface {
	Questions(ctx context.Context, req Request) ([]string, error)
	Assess(ctx context.Context, req Request) (*Assessment, error)
}

// ValidationOptions tunes ValidateAssessment.
type ValidationOptions struct {
	SummaryMinLength  int
	RejectRoundScores bool
}

// ValidateQuestions accepts exactly three non-empty questions that each
// reference the CV.
func ValidateQuestions(questions []string, s signals.CVSignals, v *personalize.Validator) error {
	if len(questions) != QuestionCount {
		return fmt.Errorf("%w: expected %d questions, got %d", ErrResponseInvalid, QuestionCount, len(questions))
	}
	for i, q := range questions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("%w: question %d is empty", ErrResponseInvalid, i+1)
		}
	}

	if v == nil {
		v = personalize.New()
	}
	if idx := v.Ungrounded(questions, s); len(idx) > 0 {
		return fmt.Errorf("%w: question %d", ErrUngroundedQuestion, idx[0]+1)
	}
	return nil
}

// ValidateAssessment rejects scores outside [1, 100], short summaries and
// fewer than three tags. Round scores are rejected when opts asks for it,
// since they usually mean the model guessed.
func ValidateAssessment(a *Assessment, opts ValidationOptions) error {
	if a == nil {
		return fmt.Errorf("%w: empty assessment", ErrResponseInvalid)
	}
	if a.Score < 1 || a.Score > 100 {
		return fmt.Errorf("%w: score %d out of range", ErrResponseInvalid, a.Score)
	}
	if opts.RejectRoundScores && a.Score%10 == 0 {
		return fmt.Errorf("%w: round score %d", ErrResponseInvalid, a.Score)
	}

	minLen := opts.SummaryMinLength
	if minLen <= 0 {
		minLen = DefaultSummaryMinLength
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(a.Summary)); n < minLen {
		return fmt.Errorf("%w: summary has %d characters, need %d", ErrResponseInvalid, n, minLen)
	}

	tags := 0
	for _, tag := range a.Tags {
		if strings.TrimSpace(tag) != "" {
			tags++
		}
	}
	if tags < MinTags {
		return fmt.Errorf("%w: %d tags, need %d", ErrResponseInvalid, tags, MinTags)
	}
	return nil
}
