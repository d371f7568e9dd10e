package filtering

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/pipeline"
)

type patternsFilter struct {
	toggle
	patterns []string
}

// NewExcludePatterns creates a filter that removes documents whose file name
// matches one of the shell patterns, compared case-insensitively.
func NewExcludePatterns(patterns []string) Filter {
	f := &patternsFilter{}
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			f.patterns = append(f.patterns, strings.ToLower(p))
		}
	}
	return f
}

func (f *patternsFilter) Name() string { return "exclude_patterns" }

func (f *patternsFilter) Apply(_ context.Context, deps Deps, items []pipeline.Item) ([]pipeline.Item, Step, error) {
	initial := len(items)
	if len(f.patterns) == 0 {
		return items, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}
	for _, p := range f.patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, Step{}, fmt.Errorf("pattern %q: %w", p, err)
		}
	}

	kept, dropped := keep(items, func(item pipeline.Item) bool {
		name := strings.ToLower(item.Document.Filename)
		for _, p := range f.patterns {
			if ok, _ := filepath.Match(p, name); ok {
				return false
			}
		}
		return true
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding documents by patterns",
			zap.Strings("excluded_patterns", f.patterns),
			zap.Strings("excluded_documents", dropped),
			zap.Int("documents_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *patternsFilter) Status() Status {
	details := map[string]string{}
	if len(f.patterns) > 0 {
		details["patterns"] = strings.Join(f.patterns, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
