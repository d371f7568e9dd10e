package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/cv-screener/internal/document"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/posting"
	"github.com/spigell/cv-screener/internal/scores"
	"github.com/spigell/cv-screener/internal/utils"
)

const (
	DefaultConcurrency = 4
	DefaultMaxFiles    = 200
	DefaultPostingID   = "default"
)

// SupportedExtensions lists the file types picked up from an uploads folder.
var SupportedExtensions = []string{".pdf", ".docx", ".txt", ".md"}

// Status of a batch row.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Item is one CV in a batch.
type Item struct {
	Document  document.RawDocument
	Applicant posting.Applicant
}

// Row is the batch result for one item. Outcome is nil when Status is error.
type Row struct {
	Filename string
	Status   Status
	Error    string
	Outcome  *Outcome
}

// BatchResult holds the rows in input order.
type BatchResult struct {
	ID         string
	PostingID  string
	Rows       []Row
	StartedAt  time.Time
	FinishedAt time.Time
}

// Batch analyzes many CVs against one posting with bounded concurrency.
type Batch struct {
	analyzer    *Analyzer
	pool        *scores.Pool
	concurrency int
	delay       time.Duration
	logger      *zap.Logger
}

type BatchOption func(*Batch)

func WithConcurrency(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithDelay pauses between document starts, which keeps AI request rates down.
func WithDelay(d time.Duration) BatchOption {
	return func(b *Batch) { b.delay = d }
}

func WithBatchLogger(l *zap.Logger) BatchOption {
	return func(b *Batch) { b.logger = logger.OrNop(l) }
}

func NewBatch(analyzer *Analyzer, pool *scores.Pool, opts ...BatchOption) *Batch {
	if pool == nil {
		pool = scores.NewMemoryPool()
	}
	b := &Batch{
		analyzer:    analyzer,
		pool:        pool,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run resets the posting's score registry and analyzes items. Per-document
// failures become error rows. The returned error is set only when the
// registry cannot be reset or ctx ends before all items were started.
func (b *Batch) Run(ctx context.Context, job posting.Job, items []Item) (*BatchResult, error) {
	postingID := strings.TrimSpace(job.ID)
	if postingID == "" {
		postingID = DefaultPostingID
	}

	result := &BatchResult{
		ID:        uuid.NewString(),
		PostingID: postingID,
		Rows:      make([]Row, len(items)),
		StartedAt: time.Now(),
	}
	log := b.logger.With(logger.DocumentFields(result.ID, postingID, "")...)

	reg := b.pool.Get(postingID)
	if err := reg.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset score registry: %w", err)
	}

	for i, item := range items {
		result.Rows[i] = Row{Filename: item.Document.Filename, Status: StatusError, Error: "not processed"}
	}

	log.Info("batch started", zap.Int("documents", len(items)), zap.Int("concurrency", b.concurrency))

	g := new(errgroup.Group)
	g.SetLimit(b.concurrency)

	var runErr error
	for i, item := range items {
		if i > 0 {
			if err := utils.WaitFor(ctx, b.delay); err != nil {
				runErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		g.Go(func() error {
			docLog := b.logger.With(logger.DocumentFields(result.ID, postingID, item.Document.Filename)...)
			outcome, err := b.analyzer.analyze(ctx, Input{
				Document:  item.Document,
				Job:       job,
				Applicant: item.Applicant,
			}, reg, docLog)
			if err != nil {
				docLog.Error("document failed", zap.Error(err))
				result.Rows[i] = Row{Filename: item.Document.Filename, Status: StatusError, Error: err.Error()}
				return nil
			}
			result.Rows[i] = Row{Filename: item.Document.Filename, Status: StatusSuccess, Outcome: outcome}
			return nil
		})
	}
	_ = g.Wait()

	result.FinishedAt = time.Now()
	log.Info("batch finished",
		zap.Int("succeeded", result.Succeeded()),
		zap.Int("failed", len(result.Rows)-result.Succeeded()),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)

	if runErr != nil {
		return result, fmt.Errorf("batch interrupted: %w", runErr)
	}
	return result, nil
}

// Succeeded counts rows with status success.
func (r *BatchResult) Succeeded() int {
	n := 0
	for _, row := range r.Rows {
		if row.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// ErrNoDocuments is returned by LoadDir when the folder holds no supported files.
var ErrNoDocuments = errors.New("no supported documents found")

// LoadDir reads supported files from dir in name order, keeping at most
// maxFiles of them.
func LoadDir(dir string, maxFiles int) ([]document.RawDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read uploads folder: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if supportedExtension(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, dir)
	}
	sort.Strings(names)

	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if len(names) > maxFiles {
		names = names[:maxFiles]
	}

	docs := make([]document.RawDocument, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		docs = append(docs, document.RawDocument{Data: data, Filename: name})
	}
	return docs, nil
}

func supportedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
