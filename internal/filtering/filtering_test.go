package filtering

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-screener/internal/document"
	"github.com/spigell/cv-screener/internal/pipeline"
	"github.com/spigell/cv-screener/internal/report"
)

func item(name, content string) pipeline.Item {
	return pipeline.Item{Document: document.RawDocument{Filename: name, Data: []byte(content)}}
}

func names(items []pipeline.Item) string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Document.Filename)
	}
	return strings.Join(out, ",")
}

func TestFilters(t *testing.T) {
	dir := t.TempDir()

	excludePath := filepath.Join(dir, "exclude.json")
	excluded := &ExcludedDocuments{}
	excluded.Append("manual", "c.pdf")
	if err := excluded.ToFile(excludePath); err != nil {
		t.Fatalf("write exclude file: %v", err)
	}

	resultsPath := filepath.Join(dir, "results.csv")
	rows := []pipeline.Row{
		{Filename: "a.pdf", Status: pipeline.StatusSuccess, Outcome: &pipeline.Outcome{Filename: "a.pdf", MatchScore: 61}},
		{Filename: "b.txt", Status: pipeline.StatusError, Error: "boom"},
	}
	if err := report.SaveCSV(resultsPath, rows); err != nil {
		t.Fatalf("write results: %v", err)
	}

	input := []pipeline.Item{
		item("a.pdf", "alpha"),
		item("b.txt", "beta"),
		item("c.pdf", "gamma"),
		item("copy.txt", "beta"),
		item("blank.md", " \n\t"),
		item("Draft-old.docx", "delta"),
	}

	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{name: "empty", filter: NewEmpty(), want: "a.pdf,b.txt,c.pdf,copy.txt,Draft-old.docx"},
		{name: "duplicates", filter: NewDuplicates(), want: "a.pdf,b.txt,c.pdf,blank.md,Draft-old.docx"},
		{name: "patterns", filter: NewExcludePatterns([]string{"draft-*", " "}), want: "a.pdf,b.txt,c.pdf,copy.txt,blank.md"},
		{name: "no patterns", filter: NewExcludePatterns(nil), want: "a.pdf,b.txt,c.pdf,copy.txt,blank.md,Draft-old.docx"},
		{name: "exclude file", filter: NewExcludeFile(excludePath), want: "a.pdf,b.txt,copy.txt,blank.md,Draft-old.docx"},
		{name: "missing exclude file", filter: NewExcludeFile(filepath.Join(dir, "none.json")), want: "a.pdf,b.txt,c.pdf,copy.txt,blank.md,Draft-old.docx"},
		{name: "analyzed history", filter: NewAnalyzedHistory(resultsPath, false), want: "b.txt,c.pdf,copy.txt,blank.md,Draft-old.docx"},
		{name: "analyzed history ignored", filter: NewAnalyzedHistory(resultsPath, true), want: "a.pdf,b.txt,c.pdf,copy.txt,blank.md,Draft-old.docx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, step, err := tt.filter.Apply(context.Background(), Deps{}, input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if names(got) != tt.want {
				t.Fatalf("want %s, got %s", tt.want, names(got))
			}
			if step.Initial != len(input) || step.Left != len(got) || step.Dropped != len(input)-len(got) {
				t.Fatalf("unexpected step: %+v", step)
			}
		})
	}
}

func TestBadPattern(t *testing.T) {
	_, _, err := NewExcludePatterns([]string{"[a-"}).Apply(context.Background(), Deps{}, []pipeline.Item{item("a.pdf", "x")})
	if !errors.Is(err, filepath.ErrBadPattern) {
		t.Fatalf("expected bad pattern error, got %v", err)
	}
}

func TestExcludedDocumentsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude.json")

	first := &ExcludedDocuments{}
	first.Append("reviewed", "a.pdf", "b.pdf", "a.pdf")
	if err := first.ToFile(path); err != nil {
		t.Fatalf("to file: %v", err)
	}

	loaded, err := LoadExcluded(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded.Append("reviewed", "b.pdf")
	if got := strings.Join(loaded.Filenames(), ","); got != "a.pdf,b.pdf" {
		t.Fatalf("unexpected names %s", got)
	}
	if loaded.Items[0].Reason != "reviewed" || loaded.Items[0].ExcludedAt.IsZero() {
		t.Fatalf("unexpected entry: %+v", loaded.Items[0])
	}

	// A shorter list must not leave trailing bytes of the previous content.
	if err := (&ExcludedDocuments{}).ToFile(path); err != nil {
		t.Fatalf("to file: %v", err)
	}
	if _, err := LoadExcluded(path); err != nil {
		t.Fatalf("reload after truncate: %v", err)
	}

	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadExcluded(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRun(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	steps := []Filter{NewEmpty(), NewDuplicates(), NewExcludePatterns([]string{"*.md"})}
	DisableByName(steps, "duplicates", "testing")

	input := []pipeline.Item{item("a.pdf", "same"), item("b.pdf", "same"), item("c.md", "other"), item("d.txt", "")}
	got, err := Run(context.Background(), Deps{Logger: zap.New(core)}, steps, input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if names(got) != "a.pdf,b.pdf" {
		t.Fatalf("unexpected items %s", names(got))
	}
	if n := logs.FilterMessage("filter disabled").Len(); n != 1 {
		t.Fatalf("expected one disabled entry, got %d", n)
	}
	if n := logs.FilterMessage("filter step").Len(); n != 2 {
		t.Fatalf("expected two step entries, got %d", n)
	}

	statuses := Describe(steps)
	if len(statuses) != 3 || statuses[1].Enabled || statuses[2].Details["patterns"] != "*.md" {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, Deps{}, steps, input); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	if _, err := Run(context.Background(), Deps{}, []Filter{NewExcludePatterns([]string{"["})}, input); err == nil || !strings.HasPrefix(err.Error(), "exclude_patterns:") {
		t.Fatalf("expected wrapped step error, got %v", err)
	}
}
