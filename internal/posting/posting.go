// Package posting holds the job and applicant metadata an analysis runs against.
package posting

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// MinDescriptionLength is the shortest job description accepted from a file.
const MinDescriptionLength = 100

// ErrDescriptionTooShort is returned when a job description is too short to analyse against.
var ErrDescriptionTooShort = errors.New("job description too short")

// Job describes the position CVs are screened for.
type Job struct {
	ID           string   `mapstructure:"id" json:"id,omitempty"`
	Title        string   `mapstructure:"title" json:"title,omitempty"`
	Description  string   `mapstructure:"description" json:"description" validate:"required"`
	Requirements string   `mapstructure:"requirements" json:"requirements,omitempty"`
	Keywords     []string `mapstructure:"keywords" json:"keywords,omitempty"`
}

// Text joins every free-text field of the job for keyword matching.
func (j Job) Text() string {
	parts := []string{j.Title, j.Description, j.Requirements, strings.Join(j.Keywords, " ")}
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

// DisplayTitle returns the job title or a neutral stand-in.
func (j Job) DisplayTitle() string {
	if t := strings.TrimSpace(j.Title); t != "" {
		return t
	}
	return "advertised"
}

// Applicant is the metadata submitted alongside a CV. It is only used to fill
// templates and is never parsed.
type Applicant struct {
	Name       string `mapstructure:"name" json:"name,omitempty"`
	Age        int    `mapstructure:"age" json:"age,omitempty" validate:"omitempty,gte=14,lte=100"`
	Location   string `mapstructure:"location" json:"location,omitempty"`
	Education  string `mapstructure:"education" json:"education,omitempty"`
	Motivation string `mapstructure:"motivation" json:"motivation,omitempty"`
}

// LoadJob reads a job description file. The first line becomes the title when
// base has none.
func LoadJob(path string, base Job) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("read job description %s: %w", path, err)
	}

	description := strings.TrimSpace(string(data))
	if n := utf8.RuneCountInString(description); n < MinDescriptionLength {
		return Job{}, fmt.Errorf("%s: %w: %d characters, need %d", path, ErrDescriptionTooShort, n, MinDescriptionLength)
	}

	job := base
	job.Description = description
	if strings.TrimSpace(job.Title) == "" {
		first, _, _ := strings.Cut(description, "\n")
		job.Title = strings.TrimSpace(strings.TrimLeft(first, "# "))
	}
	return job, nil
}
