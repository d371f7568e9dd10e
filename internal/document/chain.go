package document

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Candidate is the text produced by a single strategy.
type Candidate struct {
	Text      string
	PageCount int
}

// Strategy is one text recovery method.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, doc RawDocument) (Candidate, error)
}

// Step describes the outcome of running a single strategy.
type Step struct {
	Strategy string
	Chars    int
	Accepted bool
	Err      error
}

// Chain runs strategies in order until one yields at least MinLength characters.
type Chain struct {
	Strategies []Strategy
	MinLength  int
	Logger     *zap.Logger
}

// ChainResult is the outcome of a chain run. When no strategy reached the
// threshold, Accepted is false and Best holds the partial text of the earliest
// strategy that finished without error, or the longest failed partial.
type ChainResult struct {
	Accepted bool
	Method   string
	Best     Candidate
	Steps    []Step
}

// Run executes the strategies sequentially. Strategy errors never stop the chain.
func (c *Chain) Run(ctx context.Context, doc RawDocument) (ChainResult, error) {
	var (
		result    ChainResult
		bestClean bool
	)

	for _, strategy := range c.Strategies {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		candidate, err := runStrategy(ctx, strategy, doc)
		candidate.Text = cleanText(candidate.Text)
		chars := utf8.RuneCountInString(candidate.Text)

		step := Step{Strategy: strategy.Name(), Chars: chars, Err: err}
		if err == nil && chars >= c.MinLength {
			step.Accepted = true
		}
		result.Steps = append(result.Steps, step)

		if c.Logger != nil {
			fields := []zap.Field{
				zap.String("strategy", step.Strategy),
				zap.Int("chars", step.Chars),
				zap.Bool("accepted", step.Accepted),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			c.Logger.Debug("recovery step", fields...)
		}

		// Strategies are ordered by fidelity: the first clean partial wins over
		// longer text from cruder strategies, and failed strategies only fill in
		// when nothing clean was seen.
		clean := err == nil && chars > 0
		switch {
		case clean && !bestClean:
			result.Best = candidate
			result.Method = step.Strategy
			bestClean = true
		case !bestClean && chars > utf8.RuneCountInString(result.Best.Text):
			result.Best = candidate
			result.Method = step.Strategy
		}

		if step.Accepted {
			result.Accepted = true
			result.Best = candidate
			result.Method = step.Strategy
			return result, nil
		}
	}

	return result, nil
}

// runStrategy isolates the chain from panics raised by parsers fed hostile input.
func runStrategy(ctx context.Context, strategy Strategy, doc RawDocument) (candidate Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			candidate = Candidate{}
			err = fmt.Errorf("%s panicked: %v", strategy.Name(), r)
		}
	}()

	return strategy.Extract(ctx, doc)
}
