package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/logger"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

var (
	//go:embed prompts/system.md
	systemPrompt string
	//go:embed prompts/questions.md
	questionsTemplate string
	//go:embed prompts/assessment.md
	assessmentTemplate string
)

const (
	defaultMaxLogLength = 200
	defaultAttempts     = 2
	maxPromptCVRunes    = 30000
)

var _ ai.Analyst = (*Analyst)(nil)

// Analyst implements ai.Analyst on top of a Gemini generator.
type Analyst struct {
	generator  contentGenerator
	logger     *zap.Logger
	maxLogLen  int
	attempts   int
	validation ai.ValidationOptions
}

type AnalystOption func(*Analyst)

// WithMaxLogLength limits prompt and response previews in debug logs.
func WithMaxLogLength(n int) AnalystOption {
	return func(a *Analyst) {
		if n > 0 {
			a.maxLogLen = n
		}
	}
}

// WithAttempts sets how many times an unusable answer is asked for again.
func WithAttempts(n int) AnalystOption {
	return func(a *Analyst) {
		if n > 0 {
			a.attempts = n
		}
	}
}

// WithValidation sets the checks an assessment must pass before it is returned.
func WithValidation(opts ai.ValidationOptions) AnalystOption {
	return func(a *Analyst) {
		a.validation = opts
	}
}

func NewAnalyst(generator contentGenerator, log *zap.Logger, opts ...AnalystOption) *Analyst {
	a := &Analyst{
		generator: generator,
		logger:    logger.OrNop(log),
		maxLogLen: defaultMaxLogLength,
		attempts:  defaultAttempts,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Questions asks the model for three interview questions.
func (a *Analyst) Questions(ctx context.Context, req ai.Request) ([]string, error) {
	prompt := a.render(questionsTemplate, req)

	var lastErr error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		raw, err := a.generate(ctx, req.Filename, "questions", prompt)
		if err != nil {
			return nil, err
		}

		questions, err := parseQuestions(raw)
		if err == nil {
			if err = checkQuestionCount(questions); err == nil {
				return questions, nil
			}
		}
		lastErr = err
		a.logger.Debug("gemini questions rejected",
			zap.String(logger.FieldDocument, req.Filename),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// Assess asks the model for a score, summary and tags.
func (a *Analyst) Assess(ctx context.Context, req ai.Request) (*ai.Assessment, error) {
	prompt := a.render(assessmentTemplate, req)

	var lastErr error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		raw, err := a.generate(ctx, req.Filename, "assessment", prompt)
		if err != nil {
			return nil, err
		}

		assessment, err := parseAssessment(raw)
		if err == nil {
			if err = ai.ValidateAssessment(assessment, a.validation); err == nil {
				return assessment, nil
			}
		}
		lastErr = err
		a.logger.Debug("gemini assessment rejected",
			zap.String(logger.FieldDocument, req.Filename),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

func (a *Analyst) generate(ctx context.Context, filename, kind, prompt string) (string, error) {
	a.logger.Debug("gemini generate content request",
		zap.String(logger.FieldDocument, filename),
		zap.String("kind", kind),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, a.maxLogLen)),
	)

	raw, err := a.generator.GenerateContent(ctx, systemPrompt, prompt)
	if err != nil {
		return "", err
	}

	a.logger.Debug("gemini generate content response",
		zap.String(logger.FieldDocument, filename),
		zap.String("kind", kind),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, a.maxLogLen)),
	)
	return raw, nil
}

func (a *Analyst) render(template string, req ai.Request) string {
	signalsJSON, err := json.MarshalIndent(req.Signals, "", "  ")
	if err != nil {
		signalsJSON = []byte("{}")
	}

	summaryMin := a.validation.SummaryMinLength
	if summaryMin <= 0 {
		summaryMin = ai.DefaultSummaryMinLength
	}

	job := strings.TrimSpace(req.Job.Text())
	if job == "" {
		job = "not provided"
	}

	return strings.NewReplacer(
		"{{JOB_TITLE}}", req.Job.DisplayTitle(),
		"{{JOB}}", job,
		"{{SIGNALS}}", string(signalsJSON),
		"{{APPLICANT}}", describeApplicant(req),
		"{{FILENAME}}", req.Filename,
		"{{CV_TEXT}}", truncateRunes(req.CVText, maxPromptCVRunes),
		"{{SUMMARY_MIN}}", strconv.Itoa(summaryMin),
	).Replace(template)
}

func describeApplicant(req ai.Request) string {
	p := req.Applicant
	var parts []string
	if v := strings.TrimSpace(p.Name); v != "" {
		parts = append(parts, "name "+v)
	}
	if p.Age > 0 {
		parts = append(parts, fmt.Sprintf("age %d", p.Age))
	}
	if v := strings.TrimSpace(p.Location); v != "" {
		parts = append(parts, "based in "+v)
	}
	if v := strings.TrimSpace(p.Education); v != "" {
		parts = append(parts, "education "+v)
	}
	if v := strings.TrimSpace(p.Motivation); v != "" {
		parts = append(parts, "motivation: "+v)
	}
	if len(parts) == 0 {
		return "no details provided"
	}
	return strings.Join(parts, "; ")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func checkQuestionCount(questions []string) error {
	if len(questions) != ai.QuestionCount {
		return fmt.Errorf("%w: expected %d questions, got %d", ai.ErrResponseInvalid, ai.QuestionCount, len(questions))
	}
	return nil
}

func parseQuestions(raw string) ([]string, error) {
	cleaned := extractJSON(raw)

	var value any
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		return nil, fmt.Errorf("%w: parse questions: %v", ai.ErrResponseInvalid, err)
	}

	var out struct {
		Questions []string `mapstructure:"questions"`
	}
	switch v := value.(type) {
	case []any:
		if err := decodeWeak(v, &out.Questions); err != nil {
			return nil, err
		}
	case map[string]any:
		if err := decodeWeak(v, &out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unexpected questions payload", ai.ErrResponseInvalid)
	}

	questions := make([]string, 0, len(out.Questions))
	for _, q := range out.Questions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	return questions, nil
}

func parseAssessment(raw string) (*ai.Assessment, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("%w: parse assessment: %v", ai.ErrResponseInvalid, err)
	}

	var out ai.Assessment
	if err := decodeWeak(data, &out); err != nil {
		return nil, err
	}
	out.Summary = strings.TrimSpace(out.Summary)
	return &out, nil
}

func decodeWeak(input, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("%w: decode response: %v", ai.ErrResponseInvalid, err)
	}
	return nil
}

// extractJSON strips code fences and returns the outermost JSON object or
// array in raw.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	}

	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return raw
	}
	closing := "}"
	if raw[start] == '[' {
		closing = "]"
	}
	end := strings.LastIndex(raw, closing)
	if end <= start {
		return raw
	}
	return raw[start : end+1]
}
