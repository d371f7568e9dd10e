// Package fallback synthesizes interview questions and an assessment from
// extracted CV signals when the AI step is unavailable or its output is rejected.
//
// Output is deterministic for a given random source, which is injected so that
// tests can assert exact results.
package fallback

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/spigell/cv-screener/internal/posting"
	"github.com/spigell/cv-screener/internal/signals"
)

const (
	DefaultSummaryMinLength = 400

	baseScore = 50
	minScore  = 25
	maxScore  = 90
	maxJitter = 10
	minTags   = 6
)

// Mode selects what Synthesize produces.
type Mode string

const (
	ModeQuestions  Mode = "questions"
	ModeAssessment Mode = "assessment"
	ModeFull       Mode = "full"
)

// Input is everything the generator knows about one CV.
type Input struct {
	Signals   signals.CVSignals
	CVText    string
	Applicant posting.Applicant
	Job       posting.Job
}

// Assessment is a score, a narrative summary and descriptive tags.
type Assessment struct {
	Score   int      `json:"score"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// Synthesis holds the parts requested from Synthesize.
type Synthesis struct {
	Questions  []string
	Assessment *Assessment
}

// Generator produces fallback output. It is safe for concurrent use.
type Generator struct {
	mu         sync.Mutex
	rng        *rand.Rand
	summaryMin int
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the generator reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithSource sets the random source directly.
func WithSource(src rand.Source) Option {
	return func(g *Generator) {
		if src != nil {
			g.rng = rand.New(src)
		}
	}
}

// WithSummaryMinLength sets the minimum summary length in characters.
func WithSummaryMinLength(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.summaryMin = n
		}
	}
}

func New(opts ...Option) *Generator {
	now := uint64(time.Now().UnixNano())
	g := &Generator{
		rng:        rand.New(rand.NewPCG(now, now>>1)),
		summaryMin: DefaultSummaryMinLength,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Synthesize returns questions, an assessment or both depending on mode.
func (g *Generator) Synthesize(in Input, mode Mode) Synthesis {
	var out Synthesis
	if mode == ModeQuestions || mode == ModeFull {
		out.Questions = g.Questions(in)
	}
	if mode == ModeAssessment || mode == ModeFull {
		a := g.Assessment(in)
		out.Assessment = &a
	}
	return out
}

// Assessment scores the CV and writes the matching summary and tags.
func (g *Generator) Assessment(in Input) Assessment {
	score := g.Score(in)
	return Assessment{
		Score:   score,
		Summary: g.Summary(in, score),
		Tags:    g.Tags(in),
	}
}

func (g *Generator) intN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

func (g *Generator) perm(n int) []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Perm(n)
}

var wordPatterns sync.Map

// mentions reports whether term occurs in lower-cased text as a whole word.
func mentions(text, term string) bool {
	re, ok := wordPatterns.Load(term)
	if !ok {
		re, _ = wordPatterns.LoadOrStore(term, regexp.MustCompile(`\b`+regexp.QuoteMeta(term)+`\b`))
	}
	return re.(*regexp.Regexp).MatchString(text)
}

func mentionsAny(text string, terms ...string) bool {
	for _, t := range terms {
		if mentions(text, t) {
			return true
		}
	}
	return false
}

func cvCorpus(in Input) string {
	return strings.ToLower(in.CVText + "\n" + in.Applicant.Education + "\n" + strings.Join(in.Signals.Education, "\n"))
}
