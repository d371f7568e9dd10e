package personalize

import (
	"testing"

	"github.com/spigell/cv-screener/internal/signals"
)

func TestIsPersonalized(t *testing.T) {
	s := signals.CVSignals{
		Companies:    []string{"Acme Corp"},
		Technologies: []string{"react", "c"},
		Projects:     []string{"Ledger Sync"},
		Roles:        []string{"senior software engineer"},
	}

	cases := []struct {
		name     string
		question string
		want     bool
	}{
		{name: "company case-insensitive", question: "What did you ship at ACME CORP?", want: true},
		{name: "technology", question: "How do you structure large React codebases?", want: true},
		{name: "project", question: "What was hardest about ledger sync?", want: true},
		{name: "role", question: "What does a Senior Software Engineer owe their team?", want: true},
		{name: "phrase", question: "Looking at your background, why this role?", want: true},
		{name: "generic", question: "What are your strengths and weaknesses?", want: false},
		{name: "short signal ignored", question: "Can you describe a challenge?", want: false},
		{name: "empty", question: "   ", want: false},
	}

	short := signals.CVSignals{Technologies: []string{"ai", "go", "html", "css"}}
	shortCases := []struct {
		name     string
		question string
		want     bool
	}{
		{name: "ai inside a word", question: "Can you explain how you maintain quality under pressure?", want: false},
		{name: "go inside a word", question: "What are your goals for the next five years?", want: false},
		{name: "standalone go", question: "How has Go changed the way you design services?", want: true},
		{name: "standalone ai", question: "Where did AI tooling help your last team?", want: true},
	}

	v := New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := v.IsPersonalized(tc.question, s); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
	for _, tc := range shortCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := v.IsPersonalized(tc.question, short); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestValidatorOptions(t *testing.T) {
	question := "Tell us about the fintech startup on your resume."

	if New().IsPersonalized(question, signals.CVSignals{}) {
		t.Fatalf("paraphrased question should not pass with defaults")
	}
	if !New(WithPhrases(" On Your Resume ")).IsPersonalized(question, signals.CVSignals{}) {
		t.Fatalf("extra phrase should be honoured")
	}

	s := signals.CVSignals{Technologies: []string{"go"}}
	if !New().IsPersonalized("Any go experience?", s) {
		t.Fatalf("two-letter signal should count with defaults")
	}
	if New(WithMinSignalLength(3)).IsPersonalized("Any go experience?", s) {
		t.Fatalf("signal below the minimum length should be ignored")
	}
}

func TestUngrounded(t *testing.T) {
	s := signals.CVSignals{Companies: []string{"Globex"}}
	questions := []string{"Why did you leave Globex?", "What motivates you?", "I see you led a team; how?"}

	got := New().Ungrounded(questions, s)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected only question 1 to be ungrounded, got %v", got)
	}
}
