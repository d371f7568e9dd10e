// Package signals pulls structured facts out of free CV text with layered
// pattern matching. Every extractor is independent: a failure in one leaves the
// others untouched.
package signals

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spigell/cv-screener/internal/document"
)

const (
	MaxCompanies    = 5
	MaxTechnologies = 8
	MaxRoles        = 5
	MaxEducation    = 5
	MaxProjects     = 5

	// NotSpecified is reported when no explicit years of experience are found.
	NotSpecified = "Not specified"

	realContentLength = 200
)

// ExperienceLevel is the seniority tier inferred from the text.
type ExperienceLevel string

const (
	LevelJunior     ExperienceLevel = "Junior"
	LevelMid        ExperienceLevel = "Mid"
	LevelSenior     ExperienceLevel = "Senior"
	LevelLeadership ExperienceLevel = "Leadership"
)

var contentKeywords = []string{"experience", "work", "education", "skills"}

// CVSignals holds the facts extracted from one CV. Slices are deduplicated and
// keep the order in which values first appear in the text.
type CVSignals struct {
	Companies       []string        `json:"companies"`
	Technologies    []string        `json:"technologies"`
	Roles           []string        `json:"roles"`
	Education       []string        `json:"education"`
	Projects        []string        `json:"projects"`
	ExperienceLevel ExperienceLevel `json:"experience_level"`
	ExperienceYears string          `json:"experience_years"`
	HasRealContent  bool            `json:"has_real_content"`
}

type extractor struct {
	name  string
	apply func(text string, s *CVSignals)
}

var extractors = []extractor{
	{name: "companies", apply: func(text string, s *CVSignals) { s.Companies = Companies(text) }},
	{name: "technologies", apply: func(text string, s *CVSignals) { s.Technologies = Technologies(text) }},
	{name: "roles", apply: func(text string, s *CVSignals) { s.Roles = Roles(text) }},
	{name: "education", apply: func(text string, s *CVSignals) { s.Education = Education(text) }},
	{name: "projects", apply: func(text string, s *CVSignals) { s.Projects = Projects(text) }},
	{name: "experience", apply: func(text string, s *CVSignals) {
		level, years := Experience(text)
		s.ExperienceLevel, s.ExperienceYears = level, years
	}},
	{name: "real_content", apply: func(text string, s *CVSignals) { s.HasRealContent = HasRealContent(text) }},
}

// Extract runs every extractor over text.
func Extract(text string) CVSignals {
	return extract(text, extractors)
}

func extract(text string, list []extractor) CVSignals {
	s := CVSignals{ExperienceLevel: LevelMid, ExperienceYears: NotSpecified}
	for _, e := range list {
		runIsolated(e, text, &s)
	}
	return s
}

// runIsolated keeps a panicking extractor from affecting the others. Extractors
// assign their field only after computing it, so a panic leaves the default.
func runIsolated(e extractor, text string, s *CVSignals) {
	defer func() {
		_ = recover()
	}()
	e.apply(text, s)
}

// HasRealContent reports whether text looks like an actual CV rather than a
// placeholder or a fragment.
func HasRealContent(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range document.PlaceholderMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	if utf8.RuneCountInString(text) <= realContentLength {
		return false
	}
	for _, kw := range contentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type hit struct {
	pos   int
	value string
}

// collect returns the chosen capture group of every match of every pattern.
func collect(text string, group int, patterns ...*regexp.Regexp) []hit {
	var hits []hit
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*group], m[2*group+1]
			if start < 0 {
				continue
			}
			hits = append(hits, hit{pos: start, value: text[start:end]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	return hits
}

// orderedSet keeps the first limit distinct values, compared case-insensitively.
type orderedSet struct {
	limit  int
	seen   map[string]struct{}
	values []string
}

func newOrderedSet(limit int) *orderedSet {
	return &orderedSet{limit: limit, seen: make(map[string]struct{})}
}

func (o *orderedSet) add(value string) {
	if value == "" || len(o.values) >= o.limit {
		return
	}
	key := strings.ToLower(value)
	if _, ok := o.seen[key]; ok {
		return
	}
	o.seen[key] = struct{}{}
	o.values = append(o.values, value)
}

func (o *orderedSet) full() bool { return len(o.values) >= o.limit }

func (o *orderedSet) list() []string {
	if len(o.values) == 0 {
		return nil
	}
	return o.values
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
