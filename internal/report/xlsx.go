package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/spigell/cv-screener/internal/pipeline"
	"github.com/spigell/cv-screener/internal/posting"
)

const (
	summarySheet    = "Summary"
	candidatesSheet = "Candidates"
)

var candidateHeaders = []string{"Rank", "File", "Score", "Status", "Tags", "Summary", "Question 1", "Question 2", "Question 3", "Questions source", "Assessment source", "Extraction"}

// SaveXLSX writes a workbook with a summary sheet and a ranked candidates sheet.
func SaveXLSX(path string, result *pipeline.BatchResult, job posting.Job) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(candidatesSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	stats := Summarize(result.Rows)
	if err := writeSummarySheet(f, result, job, stats); err != nil {
		return fmt.Errorf("write summary sheet: %w", err)
	}
	if err := writeCandidatesSheet(f, Sorted(result.Rows)); err != nil {
		return fmt.Errorf("write candidates sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, result *pipeline.BatchResult, job posting.Job, stats Stats) error {
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 25); err != nil {
		return err
	}
	if err := f.SetColWidth(summarySheet, "B", "B", 50); err != nil {
		return err
	}

	rows := [][2]any{
		{"Position", job.DisplayTitle()},
		{"Posting", result.PostingID},
		{"Batch", result.ID},
		{"Generated", result.FinishedAt.Format(time.DateTime)},
		{"Total files", stats.Total},
		{"Analyzed", stats.Succeeded},
		{"Failed", stats.Failed},
		{"Average score", fmt.Sprintf("%.1f", stats.Average)},
		{fmt.Sprintf("High (%d+)", HighScore), stats.High},
		{fmt.Sprintf("Medium (%d-%d)", MediumScore, HighScore-1), stats.Medium},
		{fmt.Sprintf("Low (<%d)", MediumScore), stats.Low},
	}

	for i, row := range rows {
		label := fmt.Sprintf("A%d", i+1)
		if err := f.SetCellValue(summarySheet, label, row[0]); err != nil {
			return err
		}
		if err := f.SetCellStyle(summarySheet, label, label, labelStyle); err != nil {
			return err
		}
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1]); err != nil {
			return err
		}
	}
	return nil
}

func writeCandidatesSheet(f *excelize.File, rows []pipeline.Row) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	bandStyles := map[string]int{}
	for band, color := range map[string]string{"high": "C6EFCE", "medium": "FFEB9C", "low": "FFC7CE", "error": "D9D9D9"} {
		style, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		})
		if err != nil {
			return err
		}
		bandStyles[band] = style
	}

	for col, header := range candidateHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(candidatesSheet, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(candidatesSheet, cell, cell, headerStyle); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(candidatesSheet, "E", "I", 45); err != nil {
		return err
	}

	lastCol, _ := excelize.ColumnNumberToName(len(candidateHeaders))
	for i, row := range rows {
		r := i + 2
		values := candidateValues(i+1, row)
		if err := f.SetSheetRow(candidatesSheet, fmt.Sprintf("A%d", r), &values); err != nil {
			return err
		}
		if err := f.SetCellStyle(candidatesSheet, fmt.Sprintf("A%d", r), fmt.Sprintf("%s%d", lastCol, r), bandStyles[band(row)]); err != nil {
			return err
		}
	}

	if err := f.SetPanes(candidatesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	if len(rows) > 0 {
		return f.AutoFilter(candidatesSheet, fmt.Sprintf("A1:%s%d", lastCol, len(rows)+1), nil)
	}
	return nil
}

func candidateValues(rank int, row pipeline.Row) []any {
	if row.Status != pipeline.StatusSuccess || row.Outcome == nil {
		return []any{rank, row.Filename, "", string(row.Status), strings.Join(manualReviewTags, ", "), ManualReviewSummary(row)}
	}

	out := row.Outcome
	values := []any{rank, row.Filename, out.MatchScore, string(row.Status), strings.Join(out.Tags, ", "), out.Summary}
	for i := 0; i < 3; i++ {
		q := ""
		if i < len(out.Questions) {
			q = out.Questions[i]
		}
		values = append(values, q)
	}
	return append(values, string(out.QuestionsSource), string(out.AssessmentSource), out.Method)
}

func band(row pipeline.Row) string {
	if row.Status != pipeline.StatusSuccess || row.Outcome == nil {
		return "error"
	}
	switch score := row.Outcome.MatchScore; {
	case score >= HighScore:
		return "high"
	case score >= MediumScore:
		return "medium"
	default:
		return "low"
	}
}
