package document

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Options configure a Recoverer. Unioffice puts the docx_unioffice strategy
// ahead of the archive readers; it only yields text once SetOfficeLicense
// succeeded.
type Options struct {
	// StrictPDF makes PDFs whose recovered text stays under MinTextLength fail with
	// ErrExtractionBelowThreshold instead of returning a placeholder.
	StrictPDF     bool
	MinTextLength int
	Unioffice     bool
	Logger        *zap.Logger
}

// Recoverer turns raw uploads into text using the strategy chain for their kind.
type Recoverer struct {
	strictPDF bool
	minLength int
	unioffice bool
	logger    *zap.Logger
}

func NewRecoverer(opts Options) *Recoverer {
	minLength := opts.MinTextLength
	if minLength <= 0 {
		minLength = MinTextLength
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recoverer{strictPDF: opts.StrictPDF, minLength: minLength, unioffice: opts.Unioffice, logger: logger}
}

// Recover returns the best text available for doc. It fails for unsupported media
// types and, in strict mode only, for PDFs under the length threshold. DOCX and
// text documents always produce a result.
func (r *Recoverer) Recover(ctx context.Context, doc RawDocument) (*ExtractionResult, error) {
	kind, err := ResolveKind(doc)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With(zap.String("document", doc.Filename), zap.String("kind", string(kind)))

	var result *ExtractionResult
	switch kind {
	case KindText:
		result, err = r.recoverText(ctx, doc, logger)
	case KindPDF:
		result, err = r.recoverPDF(ctx, doc, logger)
	case KindDOCX:
		result = r.recoverDOCX(ctx, doc, logger)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("document recovered",
		zap.String("method", result.Method),
		zap.Int("pages", result.PageCount),
		zap.Int("words", result.WordCount),
		zap.Bool("placeholder", result.Placeholder),
	)

	return result, nil
}

func (r *Recoverer) recoverText(ctx context.Context, doc RawDocument, logger *zap.Logger) (*ExtractionResult, error) {
	chain := &Chain{Strategies: []Strategy{plainTextStrategy{}}, MinLength: 1, Logger: logger}
	res, err := chain.Run(ctx, doc)
	if err != nil {
		return nil, err
	}
	if !res.Accepted {
		return r.placeholder(doc.Filename, KindText, ""), nil
	}
	return newResult(res.Best.Text, 1, res.Method, false), nil
}

func (r *Recoverer) recoverPDF(ctx context.Context, doc RawDocument, logger *zap.Logger) (*ExtractionResult, error) {
	chain := &Chain{Strategies: pdfStrategies(), MinLength: r.minLength, Logger: logger}
	res, err := chain.Run(ctx, doc)
	if err != nil {
		return nil, err
	}
	if res.Accepted {
		return newResult(res.Best.Text, res.Best.PageCount, res.Method, false), nil
	}

	chars := utf8.RuneCountInString(res.Best.Text)
	if r.strictPDF {
		return nil, fmt.Errorf("%s: %w: %d of %d characters", doc.Filename, ErrExtractionBelowThreshold, chars, r.minLength)
	}

	logger.Warn("pdf text below threshold, using placeholder", zap.Int("chars", chars), zap.Int("threshold", r.minLength))
	result := r.placeholder(doc.Filename, KindPDF, res.Best.Text)
	result.PageCount = countPDFPages(doc.Data)
	return result, nil
}

// recoverDOCX never fails. Cancellation and broken archives both end in a placeholder.
func (r *Recoverer) recoverDOCX(ctx context.Context, doc RawDocument, logger *zap.Logger) *ExtractionResult {
	chain := &Chain{Strategies: docxStrategies(r.unioffice), MinLength: r.minLength, Logger: logger}
	res, err := chain.Run(ctx, doc)
	if err != nil {
		logger.Warn("docx recovery interrupted", zap.Error(err))
	}
	if err == nil && res.Accepted {
		return newResult(res.Best.Text, 1, res.Method, false)
	}

	logger.Warn("docx text below threshold, using placeholder", zap.Int("chars", utf8.RuneCountInString(res.Best.Text)))
	return r.placeholder(doc.Filename, KindDOCX, res.Best.Text)
}

func (r *Recoverer) placeholder(filename string, kind Kind, partial string) *ExtractionResult {
	return newResult(placeholderText(filename, kind, partial), 1, "placeholder", true)
}
