package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/posting"
	"github.com/spigell/cv-screener/internal/signals"
)

type stubGenerator struct {
	responses  []string
	err        error
	calls      int
	lastSystem string
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, prompt string) (string, error) {
	s.calls++
	s.lastSystem = system
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("no response queued")
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func (s *stubGenerator) Model() string {
	return "stub-model"
}

func testRequest() ai.Request {
	return ai.Request{
		Filename: "jane.pdf",
		CVText:   "Jane Doe. Senior engineer at Acme Corp working with Go and Kubernetes.",
		Signals: signals.CVSignals{
			Companies:    []string{"Acme Corp"},
			Technologies: []string{"go", "kubernetes"},
		},
		Job:       posting.Job{Title: "Platform Engineer", Description: "Build the platform with Go."},
		Applicant: posting.Applicant{Name: "Jane Doe", Age: 31, Location: "Berlin"},
	}
}

func TestAnalystAssess(t *testing.T) {
	summary := strings.Repeat("Strong platform background with Go. ", 15)
	stub := &stubGenerator{responses: []string{"```json\n{\"score\": \"73\", \"summary\": \"" + summary + "\", \"tags\": [\"Go\", \"Senior level\", \"Kubernetes\"]}\n```"}}

	analyst := NewAnalyst(stub, zap.NewNop())
	got, err := analyst.Assess(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Score != 73 {
		t.Fatalf("expected weakly typed score 73, got %d", got.Score)
	}
	if len(got.Tags) != 3 {
		t.Fatalf("unexpected tags: %v", got.Tags)
	}
	if stub.lastSystem != systemPrompt {
		t.Fatalf("expected system prompt to be sent")
	}
	for _, want := range []string{"Platform Engineer", "Build the platform with Go.", "Acme Corp", "jane.pdf", "name Jane Doe; age 31; based in Berlin", "at least 400 characters"} {
		if !strings.Contains(stub.lastPrompt, want) {
			t.Fatalf("prompt should contain %q", want)
		}
	}
	if strings.Contains(stub.lastPrompt, "{{") {
		t.Fatalf("prompt has unreplaced placeholders")
	}
}

func TestAnalystAssessRetriesInvalidAnswer(t *testing.T) {
	summary := strings.Repeat("Detailed review text. ", 25)
	stub := &stubGenerator{responses: []string{
		`{"score": 73, "summary": "too short", "tags": ["a", "b", "c"]}`,
		`{"score": 68, "summary": "` + summary + `", "tags": ["a", "b", "c"]}`,
	}}

	got, err := NewAnalyst(stub, nil).Assess(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Score != 68 || stub.calls != 2 {
		t.Fatalf("expected second answer after retry, got %d after %d calls", got.Score, stub.calls)
	}
}

func TestAnalystAssessRejectsRoundScore(t *testing.T) {
	summary := strings.Repeat("Detailed review text. ", 25)
	stub := &stubGenerator{responses: []string{`{"score": 80, "summary": "` + summary + `", "tags": ["a", "b", "c"]}`}}

	analyst := NewAnalyst(stub, nil, WithAttempts(3), WithValidation(ai.ValidationOptions{RejectRoundScores: true}))
	_, err := analyst.Assess(context.Background(), testRequest())
	if !errors.Is(err, ai.ErrResponseInvalid) {
		t.Fatalf("expected ErrResponseInvalid, got %v", err)
	}
	if stub.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", stub.calls)
	}
}

func TestAnalystGeneratorErrorIsNotRetried(t *testing.T) {
	stub := &stubGenerator{err: errors.New("boom")}

	_, err := NewAnalyst(stub, nil).Questions(context.Background(), testRequest())
	if err == nil || stub.calls != 1 {
		t.Fatalf("expected single failing call, got %v after %d calls", err, stub.calls)
	}
}

func TestAnalystQuestions(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
	}{
		{name: "object", response: `{"questions": ["What did you ship at Acme Corp?", "How do you run Go in production?", "Your experience with Kubernetes?"]}`},
		{name: "bare array", response: `Here you go: ["What did you ship at Acme Corp?", "How do you run Go?", "Kubernetes upgrades?"]`},
		{name: "too few", response: `{"questions": ["Only one?"]}`, wantErr: true},
		{name: "not json", response: `I cannot help with that.`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubGenerator{responses: []string{tt.response}}
			got, err := NewAnalyst(stub, nil, WithAttempts(1)).Questions(context.Background(), testRequest())
			if tt.wantErr {
				if !errors.Is(err, ai.ErrResponseInvalid) {
					t.Fatalf("expected ErrResponseInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != ai.QuestionCount {
				t.Fatalf("expected 3 questions, got %v", got)
			}
		})
	}
}

func TestAnalystLogsPreviews(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	stub := &stubGenerator{responses: []string{`{"questions": ["a at Acme Corp", "b with Go", "c with Kubernetes"]}`}}

	analyst := NewAnalyst(stub, zap.New(core), WithMaxLogLength(20))
	if _, err := analyst.Questions(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.FilterMessage("gemini generate content request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	preview := entries[0].ContextMap()["prompt_preview"].(string)
	if len([]rune(preview)) != 23 || !strings.HasSuffix(preview, "...") {
		t.Fatalf("unexpected preview %q", preview)
	}
	if entries[0].ContextMap()["document"] != "jane.pdf" {
		t.Fatalf("expected document field, got %v", entries[0].ContextMap())
	}
}

func TestExtractJSON(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		"Sure! {\"a\":1} Thanks.":      `{"a":1}`,
		"[1,2]":                        `[1,2]`,
		"no json here":                 "no json here",
		"```\n[\"x\", {\"y\":1}]\n```": `["x", {"y":1}]`,
	}
	for in, want := range tests {
		if got := extractJSON(in); got != want {
			t.Fatalf("extractJSON(%q) = %q, want %q", in, got, want)
		}
	}
}
