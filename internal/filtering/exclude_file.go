package filtering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/pipeline"
)

// ExcludedDocument is one entry of an exclude file.
type ExcludedDocument struct {
	Filename   string    `json:"filename"`
	Reason     string    `json:"reason,omitempty"`
	ExcludedAt time.Time `json:"excluded_at"`
}

// ExcludedDocuments is the JSON content of an exclude file.
type ExcludedDocuments struct {
	Items []*ExcludedDocument `json:"items"`
}

// LoadExcluded reads an exclude file. A missing or empty file yields an empty list.
func LoadExcluded(path string) (*ExcludedDocuments, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &ExcludedDocuments{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() == 0 {
		return &ExcludedDocuments{}, nil
	}

	var excluded ExcludedDocuments
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &excluded, nil
}

// Append adds names that are not excluded yet.
func (e *ExcludedDocuments) Append(reason string, names ...string) {
	known := make(map[string]bool, len(e.Items))
	for _, item := range e.Items {
		known[item.Filename] = true
	}
	now := time.Now().UTC()
	for _, name := range names {
		if known[name] {
			continue
		}
		known[name] = true
		e.Items = append(e.Items, &ExcludedDocument{Filename: name, Reason: reason, ExcludedAt: now})
	}
}

func (e *ExcludedDocuments) Filenames() []string {
	names := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		names = append(names, item.Filename)
	}
	return names
}

// ToFile replaces the content of path with e.
func (e *ExcludedDocuments) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

type excludeFileFilter struct {
	toggle
	path string
}

// NewExcludeFile creates a filter that removes documents listed in an exclude file.
func NewExcludeFile(path string) Filter {
	return &excludeFileFilter{path: strings.TrimSpace(path)}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, items []pipeline.Item) ([]pipeline.Item, Step, error) {
	initial := len(items)
	if f.path == "" {
		return items, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	excluded, err := LoadExcluded(f.path)
	if err != nil {
		return nil, Step{}, fmt.Errorf("getting excluded documents from file: %w", err)
	}

	names := make(map[string]bool, len(excluded.Items))
	for _, name := range excluded.Filenames() {
		names[name] = true
	}

	kept, dropped := keep(items, func(item pipeline.Item) bool {
		return !names[item.Document.Filename]
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding documents based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_documents", dropped),
			zap.Int("documents_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
