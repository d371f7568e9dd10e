package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/document"
	"github.com/spigell/cv-screener/internal/fallback"
	"github.com/spigell/cv-screener/internal/posting"
	"github.com/spigell/cv-screener/internal/scores"
)

const sampleCV = `Jane Doe
Senior Software Engineer

Experience
Senior Software Engineer at Acme Corp (2018 - 2024)
Built payment services in Go and Python on AWS with Kubernetes.
Mentored five junior engineers and led the migration to microservices.

Education
BSc Computer Science, University of Leeds

Skills
Go, Python, AWS, Kubernetes, PostgreSQL. 8 years of experience.`

var sampleJob = posting.Job{
	ID:          "backend",
	Title:       "Senior Backend Engineer",
	Description: "We are looking for a senior backend engineer with Python and AWS experience to build payment services.",
}

type fakeAnalyst struct {
	questions    []string
	questionsErr error
	assessment   *ai.Assessment
	assessErr    error
	block        bool
	calls        atomic.Int32
}

func (f *fakeAnalyst) Questions(ctx context.Context, _ ai.Request) ([]string, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.questions, f.questionsErr
}

func (f *fakeAnalyst) Assess(ctx context.Context, _ ai.Request) (*ai.Assessment, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.assessErr != nil {
		return nil, f.assessErr
	}
	a := *f.assessment
	return &a, nil
}

func goodAnalyst(score int) *fakeAnalyst {
	return &fakeAnalyst{
		questions: []string{
			"I see you worked at Acme Corp. What was the hardest payment problem you solved there?",
			"How did you operate Kubernetes clusters in production?",
			"Your CV mentions mentoring. How do you grow junior engineers?",
		},
		assessment: &ai.Assessment{
			Score:   score,
			Summary: strings.Repeat("Strong backend engineer with payments experience. ", 10),
			Tags:    []string{"Senior level", "Python", "AWS"},
		},
	}
}

func textInput(name, text string) Input {
	return Input{
		Document:  document.RawDocument{Data: []byte(text), Filename: name},
		Job:       sampleJob,
		Applicant: posting.Applicant{Name: "Jane Doe", Location: "Leeds"},
	}
}

func TestAnalyzeWithoutAnalystUsesFallback(t *testing.T) {
	analyzer := NewAnalyzer(WithFallback(fallback.New(fallback.WithSeed(1))))

	out, err := analyzer.Analyze(context.Background(), textInput("jane.txt", sampleCV), scores.NewMemoryRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.QuestionsSource != SourceFallback || out.AssessmentSource != SourceFallback {
		t.Fatalf("expected fallback sources, got %s/%s", out.QuestionsSource, out.AssessmentSource)
	}
	if len(out.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %v", out.Questions)
	}
	if out.MatchScore < 25 || out.MatchScore > 90 {
		t.Fatalf("fallback score out of range: %d", out.MatchScore)
	}
	if len([]rune(out.Summary)) < fallback.DefaultSummaryMinLength {
		t.Fatalf("summary too short: %d", len([]rune(out.Summary)))
	}
	if !out.Signals.HasRealContent || out.Method != "plain_text" {
		t.Fatalf("unexpected extraction details: %+v", out)
	}
}

func TestAnalyzeUsesValidAIOutput(t *testing.T) {
	analyst := goodAnalyst(73)
	analyzer := NewAnalyzer(WithAnalyst(analyst))

	out, err := analyzer.Analyze(context.Background(), textInput("jane.txt", sampleCV), scores.NewMemoryRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.QuestionsSource != SourceAI || out.AssessmentSource != SourceAI {
		t.Fatalf("expected ai sources, got %s/%s", out.QuestionsSource, out.AssessmentSource)
	}
	if out.MatchScore != 73 {
		t.Fatalf("expected ai score 73, got %d", out.MatchScore)
	}
	if out.Questions[0] != analyst.questions[0] {
		t.Fatalf("unexpected questions: %v", out.Questions)
	}
}

func TestAnalyzeRejectsUngroundedAndInvalidAIOutput(t *testing.T) {
	tests := []struct {
		name           string
		analyst        *fakeAnalyst
		validation     ai.ValidationOptions
		wantQuestions  Source
		wantAssessment Source
	}{
		{
			name: "generic questions",
			analyst: func() *fakeAnalyst {
				a := goodAnalyst(73)
				a.questions = []string{"Tell me about yourself.", "Why this company?", "Where do you see yourself in five years?"}
				return a
			}(),
			wantQuestions:  SourceFallback,
			wantAssessment: SourceAI,
		},
		{
			name: "round score",
			analyst: func() *fakeAnalyst {
				return goodAnalyst(80)
			}(),
			validation:     ai.ValidationOptions{RejectRoundScores: true},
			wantQuestions:  SourceAI,
			wantAssessment: SourceFallback,
		},
		{
			name: "transport errors",
			analyst: &fakeAnalyst{
				questionsErr: errors.New("503 from upstream"),
				assessErr:    errors.New("503 from upstream"),
			},
			wantQuestions:  SourceFallback,
			wantAssessment: SourceFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := NewAnalyzer(WithAnalyst(tt.analyst), WithValidation(tt.validation))
			out, err := analyzer.Analyze(context.Background(), textInput("jane.txt", sampleCV), scores.NewMemoryRegistry())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.QuestionsSource != tt.wantQuestions || out.AssessmentSource != tt.wantAssessment {
				t.Fatalf("got sources %s/%s", out.QuestionsSource, out.AssessmentSource)
			}
			if len(out.Questions) != 3 || out.Summary == "" || len(out.Tags) < 3 {
				t.Fatalf("incomplete outcome: %+v", out)
			}
		})
	}
}

func TestAnalyzeAITimeoutFallsBack(t *testing.T) {
	analyst := &fakeAnalyst{block: true}
	analyzer := NewAnalyzer(WithAnalyst(analyst), WithAITimeout(10*time.Millisecond))

	start := time.Now()
	out, err := analyzer.Analyze(context.Background(), textInput("jane.txt", sampleCV), scores.NewMemoryRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout was not applied")
	}
	if out.QuestionsSource != SourceFallback || out.AssessmentSource != SourceFallback {
		t.Fatalf("expected fallback after timeout, got %s/%s", out.QuestionsSource, out.AssessmentSource)
	}
}

func TestAnalyzeUnsupportedFormat(t *testing.T) {
	in := textInput("photo.png", "\x89PNG\r\n\x1a\n")
	in.Document.MediaType = "image/png"

	_, err := NewAnalyzer().Analyze(context.Background(), in, scores.NewMemoryRegistry())
	if !errors.Is(err, document.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestAnalyzeLogsQualityIssues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	analyzer := NewAnalyzer(WithLogger(zap.New(core)))

	if _, err := analyzer.Analyze(context.Background(), textInput("short.txt", "Jane Doe"), scores.NewMemoryRegistry()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logs.FilterMessage("extracted text has quality issues").Len() != 1 {
		t.Fatalf("expected a quality warning")
	}
}

func TestBatchAllocatesUniqueScores(t *testing.T) {
	analyzer := NewAnalyzer(WithAnalyst(goodAnalyst(62)))
	batch := NewBatch(analyzer, scores.NewMemoryPool(), WithConcurrency(3))

	items := make([]Item, 5)
	for i := range items {
		items[i] = Item{Document: document.RawDocument{Data: []byte(sampleCV), Filename: string(rune('a'+i)) + ".txt"}}
	}

	for run := 0; run < 2; run++ {
		result, err := batch.Run(context.Background(), sampleJob, items)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if result.PostingID != "backend" || result.ID == "" {
			t.Fatalf("unexpected batch identity: %q %q", result.ID, result.PostingID)
		}

		var got []int
		for _, row := range result.Rows {
			if row.Status != StatusSuccess {
				t.Fatalf("row %s failed: %s", row.Filename, row.Error)
			}
			got = append(got, row.Outcome.MatchScore)
		}
		sort.Ints(got)
		want := []int{60, 61, 62, 63, 64}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("run %d: expected %v, got %v", run, want, got)
			}
		}
	}
}

func TestBatchRecordsFailedDocuments(t *testing.T) {
	batch := NewBatch(NewAnalyzer(), nil)

	items := []Item{
		{Document: document.RawDocument{Data: []byte(sampleCV), Filename: "good.txt"}},
		{Document: document.RawDocument{Data: []byte("GIF89a"), Filename: "bad.gif", MediaType: "image/gif"}},
	}

	result, err := batch.Run(context.Background(), posting.Job{}, items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PostingID != DefaultPostingID {
		t.Fatalf("expected default posting, got %q", result.PostingID)
	}
	if result.Rows[0].Status != StatusSuccess || result.Rows[1].Status != StatusError {
		t.Fatalf("unexpected statuses: %+v", result.Rows)
	}
	if !strings.Contains(result.Rows[1].Error, "unsupported") {
		t.Fatalf("expected unsupported format error, got %q", result.Rows[1].Error)
	}
	if result.Succeeded() != 1 {
		t.Fatalf("expected 1 success, got %d", result.Succeeded())
	}
}

func TestBatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := NewBatch(NewAnalyzer(), nil, WithDelay(time.Millisecond))
	items := []Item{
		{Document: document.RawDocument{Data: []byte(sampleCV), Filename: "a.txt"}},
		{Document: document.RawDocument{Data: []byte(sampleCV), Filename: "b.txt"}},
	}

	result, err := batch.Run(ctx, sampleJob, items)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Succeeded() != 0 || result.Rows[1].Error != "not processed" {
		t.Fatalf("unexpected rows after cancel: %+v", result.Rows)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.txt", "c.png", "d.DOCX", "e.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("content of "+name), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o700); err != nil {
		t.Fatal(err)
	}

	docs, err := LoadDir(dir, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var names []string
	for _, d := range docs {
		names = append(names, d.Filename)
	}
	if strings.Join(names, ",") != "a.txt,b.pdf,d.DOCX" {
		t.Fatalf("unexpected files: %v", names)
	}
	if string(docs[0].Data) != "content of a.txt" {
		t.Fatalf("unexpected data: %q", docs[0].Data)
	}

	if _, err := LoadDir(t.TempDir(), 0); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments, got %v", err)
	}
}
