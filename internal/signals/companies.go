package signals

import (
	"regexp"
	"sort"
	"strings"
)

const (
	capWord        = `[A-Z][A-Za-z0-9&'\-]*`
	capName        = capWord + `(?:[ \t]+` + capWord + `){0,3}`
	companySuffix  = `(?:Inc|LLC|Ltd|Limited|Corp|Corporation|Company|Co|Group|GmbH|AG|PLC|Technologies|Technology|Solutions|Systems|Labs|Software|Consulting|Partners|Holdings|Bank|Studios)`
	capsSuffix     = `(?:INC|LLC|LTD|CORP|CORPORATION|GMBH|PLC|GROUP|TECHNOLOGIES|SOLUTIONS|SYSTEMS|LABS)`
	monthOrYear    = `(?:(?:19|20)\d{2}|Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)`
	roleTitleWords = `(?:Engineer|Developer|Manager|Designer|Analyst|Consultant|Architect|Lead|Director|Intern|Scientist|Administrator|Specialist|Programmer|Officer)`
)

var (
	companyAtRe     = regexp.MustCompile(`\b(?:at|with|for)[ \t]+(` + capName + `)`)
	companyPipeRe   = regexp.MustCompile(`(?m)^[ \t]*(?:(?:Company|Employer|Client)[ \t]*:[ \t]*)?(` + capName + `)[ \t]*\|[ \t]*\(?` + monthOrYear)
	companyWorkedRe = regexp.MustCompile(`\b(?:[Ww]orked|[Ww]orking|[Ee]mployed)[ \t]+(?:at|for|with|by)[ \t]+(` + capName + `)`)
	companyRoleAtRe = regexp.MustCompile(roleTitleWords + `s?[ \t]+(?:at|@)[ \t]+(` + capName + `)`)
	companyCapsRe   = regexp.MustCompile(`\b([A-Z][A-Z0-9&]+(?:[ \t]+[A-Z][A-Z0-9&]+){0,3}[ \t]+` + capsSuffix + `)\b`)
	companySuffixRe = regexp.MustCompile(`\b` + companySuffix + `$`)
)

// genericWords start capitalized phrases that are not employers.
var genericWords = map[string]struct{}{
	"i": {}, "a": {}, "an": {}, "the": {}, "my": {}, "our": {}, "this": {}, "present": {}, "current": {},
	"now": {}, "today": {}, "remote": {}, "home": {}, "university": {}, "college": {}, "school": {},
	"institute": {}, "academy": {}, "bachelor": {}, "master": {}, "senior": {}, "junior": {}, "lead": {},
	"team": {}, "project": {}, "projects": {}, "skills": {}, "education": {}, "experience": {}, "summary": {},
	"january": {}, "february": {}, "march": {}, "april": {}, "may": {}, "june": {}, "july": {},
	"august": {}, "september": {}, "october": {}, "november": {}, "december": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {}, "aug": {}, "sep": {}, "oct": {},
	"nov": {}, "dec": {}, "email": {}, "phone": {}, "linkedin": {}, "github": {},
}

// Companies finds employer names. Strong patterns (a corporate suffix, a date
// separator, an explicit employment verb) accept any capitalized name; the loose
// "at/with/for Name" pattern needs the name to carry a corporate suffix or to
// follow "at".
func Companies(text string) []string {
	set := newOrderedSet(MaxCompanies)

	strong := collect(text, 1, companyPipeRe, companyWorkedRe, companyRoleAtRe, companyCapsRe)
	loose := collect(text, 1, companyAtRe)

	strongPos := make(map[int]struct{}, len(strong))
	for _, h := range strong {
		strongPos[h.pos] = struct{}{}
	}

	hits := make([]hit, 0, len(strong)+len(loose))
	hits = append(hits, strong...)
	hits = append(hits, loose...)
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	for _, h := range hits {
		if set.full() {
			break
		}
		name := cleanCompany(h.value)
		if name == "" {
			continue
		}
		if _, ok := strongPos[h.pos]; !ok && !acceptLooseCompany(text, h.pos, name) {
			continue
		}
		set.add(name)
	}

	return set.list()
}

// institutionWords end names of places people study rather than work.
var institutionWords = map[string]struct{}{
	"university": {}, "college": {}, "institute": {}, "school": {}, "academy": {},
}

func acceptLooseCompany(text string, pos int, name string) bool {
	words := strings.Fields(name)
	if _, ok := institutionWords[strings.ToLower(words[len(words)-1])]; ok {
		return false
	}
	if institutionRe.MatchString(name) {
		return false
	}
	if companySuffixRe.MatchString(name) {
		return true
	}
	prefix := strings.TrimRight(text[:pos], " \t")
	return strings.HasSuffix(prefix, " at") || prefix == "at"
}

func cleanCompany(raw string) string {
	name := collapseSpaces(strings.Trim(raw, " \t.,;:-|"))
	if len(name) < 2 || len(name) > 60 {
		return ""
	}

	words := strings.Fields(name)
	if _, ok := genericWords[strings.ToLower(words[0])]; ok {
		return ""
	}
	if _, ok := lookupTechnology(strings.ToLower(name)); ok {
		return ""
	}
	return name
}
