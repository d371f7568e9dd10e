package filtering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/pipeline"
	"github.com/spigell/cv-screener/internal/report"
)

const forceFlagSetMsg = "reanalyze flag is set"

type analyzedHistoryFilter struct {
	toggle
	path   string
	ignore bool
}

// NewAnalyzedHistory creates a filter that removes documents recorded as
// successfully analyzed in a previous results CSV. ignore keeps every document.
func NewAnalyzedHistory(resultsCSV string, ignore bool) Filter {
	return &analyzedHistoryFilter{path: strings.TrimSpace(resultsCSV), ignore: ignore}
}

func (f *analyzedHistoryFilter) Name() string { return "analyzed_history" }

func (f *analyzedHistoryFilter) Apply(_ context.Context, deps Deps, items []pipeline.Item) ([]pipeline.Item, Step, error) {
	initial := len(items)
	if f.ignore {
		if deps.Logger != nil {
			deps.Logger.Info("ignoring already analyzed documents", zap.String("reason", forceFlagSetMsg))
		}
		return items, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}
	if f.path == "" {
		return items, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	analyzed, err := report.LoadAnalyzed(f.path)
	if err != nil {
		return nil, Step{}, fmt.Errorf("get analyzed documents: %w", err)
	}

	kept, dropped := keep(items, func(item pipeline.Item) bool {
		return !analyzed[item.Document.Filename]
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding documents based on previous results",
			zap.String("path", f.path),
			zap.Strings("excluded_documents", dropped),
			zap.Int("documents_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *analyzedHistoryFilter) Status() Status {
	details := map[string]string{
		"exclude_analyzed": strconv.FormatBool(!f.ignore),
	}
	if f.path != "" {
		details["path"] = f.path
	}
	reason := f.reason
	if f.ignore {
		reason = "skip requested via flag"
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: reason, Details: details}
}
