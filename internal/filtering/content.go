package filtering

import (
	"bytes"
	"context"
	"crypto/sha256"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/pipeline"
)

type emptyFilter struct {
	toggle
}

// NewEmpty creates a filter that removes documents without any content.
func NewEmpty() Filter {
	return &emptyFilter{}
}

func (f *emptyFilter) Name() string { return "empty" }

func (f *emptyFilter) Apply(_ context.Context, deps Deps, items []pipeline.Item) ([]pipeline.Item, Step, error) {
	initial := len(items)
	kept, dropped := keep(items, func(item pipeline.Item) bool {
		return len(bytes.TrimSpace(item.Document.Data)) > 0
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding empty documents",
			zap.Strings("excluded_documents", dropped),
			zap.Int("documents_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

type duplicatesFilter struct {
	toggle
}

// NewDuplicates creates a filter that keeps only the first of several
// byte-identical documents.
func NewDuplicates() Filter {
	return &duplicatesFilter{}
}

func (f *duplicatesFilter) Name() string { return "duplicates" }

func (f *duplicatesFilter) Apply(_ context.Context, deps Deps, items []pipeline.Item) ([]pipeline.Item, Step, error) {
	initial := len(items)
	seen := make(map[[sha256.Size]byte]string, len(items))
	kept, dropped := keep(items, func(item pipeline.Item) bool {
		sum := sha256.Sum256(item.Document.Data)
		if first, ok := seen[sum]; ok {
			if deps.Logger != nil {
				deps.Logger.Debug("duplicate document",
					zap.String("document", item.Document.Filename),
					zap.String("duplicate_of", first),
				)
			}
			return false
		}
		seen[sum] = item.Document.Filename
		return true
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding duplicate documents",
			zap.Strings("excluded_documents", dropped),
			zap.Int("documents_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}
