// Package report orders batch results and renders them as statistics, CSV and
// XLSX.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spigell/cv-screener/internal/pipeline"
)

const (
	HighScore   = 70
	MediumScore = 50
	TopLimit    = 10
)

var manualReviewTags = []string{"manual_review_needed", "analysis_incomplete", "requires_human_assessment"}

// CSVHeader is the column order of WriteCSV.
var CSVHeader = []string{"filename", "score", "summary", "tags", "status", "question_1", "question_2", "question_3"}

// Sorted returns successful rows by descending score followed by failed rows
// in their original order.
func Sorted(rows []pipeline.Row) []pipeline.Row {
	var ok, failed []pipeline.Row
	for _, row := range rows {
		if row.Status == pipeline.StatusSuccess && row.Outcome != nil {
			ok = append(ok, row)
		} else {
			failed = append(failed, row)
		}
	}
	sort.SliceStable(ok, func(i, j int) bool {
		return ok[i].Outcome.MatchScore > ok[j].Outcome.MatchScore
	})
	return append(ok, failed...)
}

// Stats summarizes a batch. Score buckets count successful rows only.
type Stats struct {
	Total      int
	Succeeded  int
	Failed     int
	Average    float64
	High       int
	Medium     int
	Low        int
	MinScore   int
	MaxScore   int
	Top        []pipeline.Row
	FailedRows []pipeline.Row
}

func Summarize(rows []pipeline.Row) Stats {
	sorted := Sorted(rows)
	stats := Stats{Total: len(rows)}

	sum := 0
	for _, row := range sorted {
		if row.Status != pipeline.StatusSuccess || row.Outcome == nil {
			stats.Failed++
			stats.FailedRows = append(stats.FailedRows, row)
			continue
		}
		stats.Succeeded++
		score := row.Outcome.MatchScore
		sum += score
		// Sorted puts the best successful row first.
		if stats.Succeeded == 1 {
			stats.MaxScore = score
		}
		stats.MinScore = score
		switch {
		case score >= HighScore:
			stats.High++
		case score >= MediumScore:
			stats.Medium++
		default:
			stats.Low++
		}
		if len(stats.Top) < TopLimit {
			stats.Top = append(stats.Top, row)
		}
	}
	if stats.Succeeded > 0 {
		stats.Average = float64(sum) / float64(stats.Succeeded)
	}
	return stats
}

// Write prints a plain text summary of s.
func (s Stats) Write(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Total files processed: %d\n", s.Total)
	fmt.Fprintf(&b, "Successfully analyzed: %d\n", s.Succeeded)
	fmt.Fprintf(&b, "Failed to process: %d\n", s.Failed)

	if s.Succeeded > 0 {
		fmt.Fprintf(&b, "Average score: %.1f\n", s.Average)
		fmt.Fprintf(&b, "High scores (%d+): %d\n", HighScore, s.High)
		fmt.Fprintf(&b, "Medium scores (%d-%d): %d\n", MediumScore, HighScore-1, s.Medium)
		fmt.Fprintf(&b, "Low scores (<%d): %d\n", MediumScore, s.Low)

		fmt.Fprintf(&b, "\nTop %d candidates:\n", len(s.Top))
		for i, row := range s.Top {
			fmt.Fprintf(&b, "%2d. %-30s | %3d | %s\n", i+1, row.Filename, row.Outcome.MatchScore, preview(strings.Join(row.Outcome.Tags, ", "), 50))
			fmt.Fprintf(&b, "    Summary: %s\n", preview(row.Outcome.Summary, 100))
		}
	}

	if len(s.FailedRows) > 0 {
		b.WriteString("\nFailed files:\n")
		for _, row := range s.FailedRows {
			fmt.Fprintf(&b, "   %-30s | %s\n", row.Filename, preview(row.Error, 80))
		}
	}

	if s.Succeeded > 0 {
		best := s.Top[0]
		b.WriteString("\nInsights:\n")
		fmt.Fprintf(&b, "   Best candidate: %s (%d)\n", best.Filename, best.Outcome.MatchScore)
		if s.Succeeded > 1 {
			fmt.Fprintf(&b, "   Score range: %d - %d\n", s.MinScore, s.MaxScore)
		}
		fmt.Fprintf(&b, "   Recommended for interview: %d candidates\n", s.High)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func preview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// ManualReviewSummary is the summary recorded for rows that could not be analyzed.
func ManualReviewSummary(row pipeline.Row) string {
	msg := fmt.Sprintf("Analysis of %s could not be completed automatically. ", row.Filename)
	if row.Error != "" {
		msg += fmt.Sprintf("Error: %s. ", row.Error)
	}
	return msg + "Manual review recommended to assess the candidate's qualifications, experience and fit for the role."
}

// WriteCSV writes rows in Sorted order.
func WriteCSV(w io.Writer, rows []pipeline.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range Sorted(rows) {
		if err := cw.Write(csvRecord(row)); err != nil {
			return fmt.Errorf("write csv row %s: %w", row.Filename, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRecord(row pipeline.Row) []string {
	record := make([]string, len(CSVHeader))
	record[0] = row.Filename
	record[4] = string(row.Status)

	if row.Status != pipeline.StatusSuccess || row.Outcome == nil {
		record[2] = ManualReviewSummary(row)
		record[3] = strings.Join(manualReviewTags, ", ")
		return record
	}

	out := row.Outcome
	record[1] = strconv.Itoa(out.MatchScore)
	record[2] = out.Summary
	record[3] = strings.Join(out.Tags, ", ")
	for i := 0; i < 3 && i < len(out.Questions); i++ {
		record[5+i] = out.Questions[i]
	}
	return record
}

// SaveCSV writes rows to path.
func SaveCSV(path string, rows []pipeline.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadAnalyzed reads a CSV written by WriteCSV and returns the file names
// recorded as successfully analyzed. A missing file yields an empty set.
func LoadAnalyzed(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	analyzed := map[string]bool{}
	if len(records) == 0 {
		return analyzed, nil
	}

	nameCol, statusCol := -1, -1
	for i, col := range records[0] {
		switch strings.TrimSpace(col) {
		case "filename":
			nameCol = i
		case "status":
			statusCol = i
		}
	}
	if nameCol < 0 || statusCol < 0 {
		return nil, fmt.Errorf("%s: missing filename or status column", path)
	}

	for _, record := range records[1:] {
		if len(record) <= nameCol || len(record) <= statusCol {
			continue
		}
		if record[statusCol] == string(pipeline.StatusSuccess) {
			analyzed[record[nameCol]] = true
		}
	}
	return analyzed, nil
}
