package signals

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// technologyVocabulary is matched case-insensitively on word boundaries.
var technologyVocabulary = []string{
	// languages
	"javascript", "typescript", "python", "java", "golang", "c++", "c#", "ruby", "php", "swift",
	"kotlin", "scala", "rust", "perl", "elixir", "haskell", "dart", "matlab", "sql",
	// frameworks and libraries
	"react", "react native", "angular", "vue", "svelte", "node.js", "nodejs", "next.js", "express.js",
	"django", "flask", "fastapi", "rails", "laravel", ".net", "spring boot", "graphql", "jquery",
	"tailwind", "bootstrap", "redux", "flutter", "tensorflow", "pytorch", "pandas", "numpy",
	"scikit-learn", "spark", "hadoop", "kafka", "rabbitmq",
	// databases
	"postgresql", "postgres", "mysql", "mongodb", "redis", "elasticsearch", "sqlite", "oracle",
	"cassandra", "dynamodb", "firebase", "supabase",
	// cloud and devops
	"aws", "azure", "gcp", "google cloud", "heroku", "vercel", "docker", "kubernetes", "terraform",
	"ansible", "jenkins", "gitlab", "github actions", "ci/cd", "linux", "nginx", "git", "prometheus",
	"grafana",
	// web
	"html", "css", "sass", "webpack",
}

// ambiguousTechnologies are ordinary words unless written in their usual casing.
var ambiguousTechnologies = map[string]string{
	"Go":      "go",
	"REST":    "rest",
	"Express": "express",
	"Spring":  "spring",
}

// acronymTechnologies are upper-case abbreviations worth reporting.
var acronymTechnologies = map[string]struct{}{
	"AWS": {}, "GCP": {}, "SQL": {}, "NLP": {}, "ETL": {}, "ML": {}, "AI": {}, "ERP": {}, "CRM": {},
	"SAP": {}, "QA": {}, "TDD": {}, "HTML": {}, "CSS": {}, "SRE": {}, "IOT": {}, "API": {}, "LLM": {},
}

var (
	jsLibraryRe = regexp.MustCompile(`\b([A-Za-z][A-Za-z0-9]*\.js)\b`)
	acronymRe   = regexp.MustCompile(`\b([A-Z]{2,5})\b`)

	technologyIndex = func() map[string]struct{} {
		idx := make(map[string]struct{}, len(technologyVocabulary))
		for _, t := range technologyVocabulary {
			idx[t] = struct{}{}
		}
		return idx
	}()
)

func lookupTechnology(lower string) (string, bool) {
	if _, ok := technologyIndex[lower]; ok {
		return lower, true
	}
	for word, canonical := range ambiguousTechnologies {
		if strings.ToLower(word) == lower {
			return canonical, true
		}
	}
	return "", false
}

// Technologies returns lower-cased technology names in order of first appearance.
func Technologies(text string) []string {
	lower := strings.ToLower(text)

	var hits []hit
	for _, term := range technologyVocabulary {
		if pos := indexWord(lower, term); pos >= 0 {
			hits = append(hits, hit{pos: pos, value: term})
		}
	}
	for word, canonical := range ambiguousTechnologies {
		if pos := indexAmbiguous(text, word); pos >= 0 {
			hits = append(hits, hit{pos: pos, value: canonical})
		}
	}
	for _, h := range collect(text, 1, jsLibraryRe) {
		hits = append(hits, hit{pos: h.pos, value: strings.ToLower(h.value)})
	}
	for _, h := range collect(text, 1, acronymRe) {
		if _, ok := acronymTechnologies[h.value]; ok {
			hits = append(hits, hit{pos: h.pos, value: strings.ToLower(h.value)})
		}
	}

	// Longer terms first on ties so "react native" wins over "react".
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return len(hits[i].value) > len(hits[j].value)
	})

	set := newOrderedSet(MaxTechnologies)
	for _, h := range hits {
		set.add(h.value)
	}
	return set.list()
}

// indexWord returns the first position of term in text that is not glued to
// surrounding letters or digits, or -1.
func indexWord(text, term string) int {
	offset := 0
	for offset <= len(text)-len(term) {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			return -1
		}
		start := offset + idx
		end := start + len(term)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return start
		}
		offset = start + 1
	}
	return -1
}

// ContainsWord reports whether term occurs in text on word boundaries, using
// the same rules as technology matching. Both arguments are compared as given.
func ContainsWord(text, term string) bool {
	return term != "" && indexWord(text, term) >= 0
}

// indexAmbiguous is indexWord for ordinary words that double as technology
// names. Hyphenated uses ("Go-getter") never count, and a sentence-initial hit
// counts only when it reads as a list item ("Go, Python").
func indexAmbiguous(text, word string) int {
	offset := 0
	for offset < len(text) {
		pos := indexWord(text[offset:], word)
		if pos < 0 {
			return -1
		}
		start := offset + pos
		end := start + len(word)
		if technologyContext(text, start, end) {
			return start
		}
		offset = end
	}
	return -1
}

func technologyContext(text string, start, end int) bool {
	if end < len(text) && text[end] == '-' {
		return false
	}
	if !sentenceStart(text, start) {
		return true
	}
	rest := strings.TrimLeft(text[end:], " \t")
	if rest == "" {
		return true
	}
	switch rest[0] {
	case ',', '/', ';', '|', ')', '\n', '\r':
		return true
	}
	return false
}

func sentenceStart(text string, pos int) bool {
	before := strings.TrimRight(text[:pos], " \t")
	if before == "" {
		return true
	}
	switch before[len(before)-1] {
	case '.', '!', '?', '\n', '\r':
		return true
	}
	return false
}

func boundaryBefore(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:pos])
	return !isWordRune(r)
}

func boundaryAfter(text string, pos int) bool {
	if pos >= len(text) {
		return true
	}
	r, size := utf8.DecodeRuneInString(text[pos:])
	if r == '.' && pos+size < len(text) {
		// "vue" in "vue.js" is a different term.
		next, _ := utf8.DecodeRuneInString(text[pos+size:])
		if isWordRune(next) {
			return false
		}
	}
	return !isWordRune(r) && r != '+' && r != '#'
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
