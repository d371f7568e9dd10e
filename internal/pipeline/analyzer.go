// Package pipeline runs a CV through recovery, signal extraction, the AI step
// with its deterministic fallback, and score allocation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/document"
	"github.com/spigell/cv-screener/internal/fallback"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/personalize"
	"github.com/spigell/cv-screener/internal/posting"
	"github.com/spigell/cv-screener/internal/quality"
	"github.com/spigell/cv-screener/internal/scores"
	"github.com/spigell/cv-screener/internal/signals"
)

const DefaultAITimeout = 60 * time.Second

// Source tells where a part of the outcome came from.
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// Outcome is the final result for one CV.
type Outcome struct {
	Filename         string            `json:"filename"`
	MatchScore       int               `json:"score"`
	Summary          string            `json:"summary"`
	Tags             []string          `json:"tags"`
	Questions        []string          `json:"questions"`
	QuestionsSource  Source            `json:"questions_source"`
	AssessmentSource Source            `json:"assessment_source"`
	Method           string            `json:"extraction_method"`
	Placeholder      bool              `json:"placeholder"`
	PageCount        int               `json:"page_count"`
	WordCount        int               `json:"word_count"`
	Quality          quality.Report    `json:"-"`
	Signals          signals.CVSignals `json:"signals"`
}

// Input is one CV with the posting it applies to.
type Input struct {
	Document  document.RawDocument
	Job       posting.Job
	Applicant posting.Applicant
}

// Analyzer processes single documents. It is safe for concurrent use.
type Analyzer struct {
	recoverer  *document.Recoverer
	analyst    ai.Analyst
	fallback   *fallback.Generator
	validator  *personalize.Validator
	validation ai.ValidationOptions
	aiTimeout  time.Duration
	logger     *zap.Logger
}

type Option func(*Analyzer)

// WithAnalyst enables the AI step. Without it every outcome comes from the
// fallback generator.
func WithAnalyst(a ai.Analyst) Option {
	return func(an *Analyzer) { an.analyst = a }
}

func WithAITimeout(d time.Duration) Option {
	return func(an *Analyzer) {
		if d > 0 {
			an.aiTimeout = d
		}
	}
}

func WithValidation(opts ai.ValidationOptions) Option {
	return func(an *Analyzer) { an.validation = opts }
}

func WithRecoverer(r *document.Recoverer) Option {
	return func(an *Analyzer) { an.recoverer = r }
}

func WithFallback(g *fallback.Generator) Option {
	return func(an *Analyzer) { an.fallback = g }
}

func WithPersonalization(v *personalize.Validator) Option {
	return func(an *Analyzer) { an.validator = v }
}

func WithLogger(l *zap.Logger) Option {
	return func(an *Analyzer) { an.logger = logger.OrNop(l) }
}

func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		aiTimeout: DefaultAITimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.recoverer == nil {
		a.recoverer = document.NewRecoverer(document.Options{Logger: a.logger})
	}
	if a.fallback == nil {
		a.fallback = fallback.New(fallback.WithSummaryMinLength(a.validation.SummaryMinLength))
	}
	if a.validator == nil {
		a.validator = personalize.New()
	}
	return a
}

// Analyze produces the outcome for one CV and claims its score in reg.
// Failures of the AI step are absorbed by the fallback generator; only
// recovery and score allocation errors are returned.
func (a *Analyzer) Analyze(ctx context.Context, in Input, reg scores.Registry) (*Outcome, error) {
	filename := in.Document.Filename
	log := a.logger.With(logger.DocumentFields("", in.Job.ID, filename)...)
	return a.analyze(ctx, in, reg, log)
}

func (a *Analyzer) analyze(ctx context.Context, in Input, reg scores.Registry, log *zap.Logger) (*Outcome, error) {
	filename := in.Document.Filename

	extraction, err := a.recoverer.Recover(ctx, in.Document)
	if err != nil {
		return nil, fmt.Errorf("recover %s: %w", filename, err)
	}

	report := quality.Validate(extraction.Text, filename)
	if !report.IsValid {
		log.Warn("extracted text has quality issues", zap.Strings("issues", report.Issues))
	}

	cvSignals := signals.Extract(extraction.Text)
	log.Debug("signals extracted",
		zap.Int("companies", len(cvSignals.Companies)),
		zap.Int("technologies", len(cvSignals.Technologies)),
		zap.String("level", string(cvSignals.ExperienceLevel)),
		zap.Bool("real_content", cvSignals.HasRealContent),
	)

	req := ai.Request{
		Filename:  filename,
		CVText:    extraction.Text,
		Signals:   cvSignals,
		Job:       in.Job,
		Applicant: in.Applicant,
	}

	out := &Outcome{
		Filename:    filename,
		Method:      extraction.Method,
		Placeholder: extraction.Placeholder,
		PageCount:   extraction.PageCount,
		WordCount:   extraction.WordCount,
		Quality:     report,
		Signals:     cvSignals,
	}

	questions, qErr := a.aiQuestions(ctx, req)
	assessment, aErr := a.aiAssessment(ctx, req)

	var mode fallback.Mode
	switch {
	case qErr != nil && aErr != nil:
		mode = fallback.ModeFull
	case qErr != nil:
		mode = fallback.ModeQuestions
	case aErr != nil:
		mode = fallback.ModeAssessment
	}
	if qErr != nil {
		log.Info("using fallback questions", zap.Error(qErr))
	}
	if aErr != nil {
		log.Info("using fallback assessment", zap.Error(aErr))
	}

	var synth fallback.Synthesis
	if mode != "" {
		synth = a.fallback.Synthesize(fallback.Input{
			Signals:   cvSignals,
			CVText:    extraction.Text,
			Applicant: in.Applicant,
			Job:       in.Job,
		}, mode)
	}

	if qErr == nil {
		out.Questions, out.QuestionsSource = questions, SourceAI
	} else {
		out.Questions, out.QuestionsSource = synth.Questions, SourceFallback
	}

	var preferred int
	if aErr == nil {
		preferred = assessment.Score
		out.Summary, out.Tags, out.AssessmentSource = assessment.Summary, assessment.Tags, SourceAI
	} else {
		preferred = synth.Assessment.Score
		out.Summary, out.Tags, out.AssessmentSource = synth.Assessment.Summary, synth.Assessment.Tags, SourceFallback
	}

	score, err := reg.Allocate(ctx, preferred)
	if err != nil {
		return nil, fmt.Errorf("allocate score for %s: %w", filename, err)
	}
	out.MatchScore = score

	log.Info("document analyzed",
		zap.Int("score", score),
		zap.Int("preferred_score", preferred),
		zap.String("questions_source", string(out.QuestionsSource)),
		zap.String("assessment_source", string(out.AssessmentSource)),
		zap.String("method", out.Method),
	)
	return out, nil
}

var errNoAnalyst = fmt.Errorf("%w: ai step disabled", ai.ErrResponseInvalid)

func (a *Analyzer) aiQuestions(ctx context.Context, req ai.Request) ([]string, error) {
	if a.analyst == nil {
		return nil, errNoAnalyst
	}

	ctx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	defer cancel()

	questions, err := a.analyst.Questions(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ai questions: %w", err)
	}
	if err := ai.ValidateQuestions(questions, req.Signals, a.validator); err != nil {
		return nil, err
	}
	return questions, nil
}

func (a *Analyzer) aiAssessment(ctx context.Context, req ai.Request) (*ai.Assessment, error) {
	if a.analyst == nil {
		return nil, errNoAnalyst
	}

	ctx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	defer cancel()

	assessment, err := a.analyst.Assess(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ai assessment: %w", err)
	}
	if err := ai.ValidateAssessment(assessment, a.validation); err != nil {
		return nil, err
	}
	return assessment, nil
}
