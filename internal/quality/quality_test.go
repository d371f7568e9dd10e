package quality

import (
	"reflect"
	"strings"
	"testing"
)

const goodCV = `Jane Doe, Senior Backend Engineer.
Experience: seven years of work at Acme Corp building payment services with a distributed team.
Education: BSc Computer Science degree from the University of Leeds.
Skills: Go, PostgreSQL, Kubernetes, observability, incident management and mentoring.
Project highlights include a ledger migration and the development of an internal billing platform.`

func TestValidate(t *testing.T) {
	cases := []struct {
		name       string
		text       string
		wantValid  bool
		wantIssues []string
	}{
		{name: "good cv", text: goodCV, wantValid: true},
		{name: "tiny", text: "hello", wantIssues: []string{"too short", "may be incomplete", "meaningful words", "keywords"}},
		{name: "repetitive", text: strings.Repeat("experience education skills work ", 40), wantIssues: []string{"highly repetitive"}},
		{name: "no keywords", text: strings.Repeat("lorem ipsum dolor sit amet consectetur adipiscing elit sed do eiusmod tempor ", 4),
			wantIssues: []string{"keywords"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := Validate(tc.text, "cv.txt")
			if report.IsValid != tc.wantValid {
				t.Fatalf("expected valid=%v, got %v (%v)", tc.wantValid, report.IsValid, report.Issues)
			}
			if report.IsValid != (len(report.Issues) == 0) {
				t.Fatalf("IsValid must reflect issues: %+v", report)
			}
			for _, want := range tc.wantIssues {
				if !containsIssue(report.Issues, want) {
					t.Fatalf("expected issue containing %q, got %v", want, report.Issues)
				}
			}
		})
	}
}

func TestValidateDeterministic(t *testing.T) {
	inputs := []string{"", "short", goodCV, strings.Repeat("team ", 100)}
	for _, in := range inputs {
		first := Validate(in, "a.txt")
		for i := 0; i < 5; i++ {
			if got := Validate(in, "a.txt"); !reflect.DeepEqual(first, got) {
				t.Fatalf("validate is not deterministic for %q", in)
			}
		}
	}
}

func containsIssue(issues []string, fragment string) bool {
	for _, issue := range issues {
		if strings.Contains(issue, fragment) {
			return true
		}
	}
	return false
}
