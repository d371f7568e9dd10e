package signals

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	roleQualifier = `(?:senior|junior|lead|principal|staff|chief|head|associate|mid-level|sr\.?|jr\.?)`
	roleField     = `(?:full[- ]?stack|front[- ]?end|back[- ]?end|software|web|mobile|data|devops|cloud|machine learning|ml|qa|test|product|project|ui/ux|ux|ui|security|systems|platform|site reliability|ios|android|embedded|game|network|database|marketing|sales)`
	roleTitle     = `(?:engineer|developer|manager|designer|analyst|architect|scientist|administrator|consultant|lead|specialist|tester|programmer)`
)

var (
	roleFieldRe    = regexp.MustCompile(`\b((?:` + roleQualifier + `[ \t]+)?(?:` + roleField + `[ \t]+){1,2}` + roleTitle + `)s?\b`)
	roleSeniorRe   = regexp.MustCompile(`\b(` + roleQualifier + `[ \t]+` + roleTitle + `)s?\b`)
	roleCompoundRe = regexp.MustCompile(`\b(tech lead|team lead|engineering manager|vp of engineering|head of engineering|product owner|scrum master|cto|cio)\b`)

	degreeRe      = regexp.MustCompile(`(?i)\b(?:bachelor(?:'s)?\b|master(?:'s)?\b|b\.?sc\b\.?|m\.?sc\b\.?|b\.?eng\b\.?|m\.?eng\b\.?|mba\b|ph\.?d\b\.?|doctorate\b)(?:[ \t]+[^\n,;()|.]{0,60})?`)
	degreeCutRe   = regexp.MustCompile(`(?i)[ \t]+(?:from|at|[-–|]|(?:19|20)\d{2})(?:[ \t]|$).*$`)
	knownFieldRe  = regexp.MustCompile(`(?i)\b(computer science|software engineering|information technology|electrical engineering|mechanical engineering|mathematics|physics|data science|business administration|economics|statistics|information systems)\b`)
	institutionRe = regexp.MustCompile(`\b((?:University|College|Institute|School)[ \t]+of[ \t]+[A-Z][A-Za-z]+(?:[ \t]+[A-Z][A-Za-z]+){0,3}|[A-Z][A-Za-z]+(?:[ \t]+[A-Z][A-Za-z]+){0,3}[ \t]+(?:University|College|Institute of Technology|Institute))\b`)
	certRe        = regexp.MustCompile(`(?i)\b((?:[a-z0-9]+[ \t]+){0,2}certified[ \t]+[a-z][a-z\- ]{2,40}|[a-z][a-z\- ]{0,30}[ \t]certification|pmp|cissp|ccna|ckad|cka|itil)\b`)

	projectNamedRe  = regexp.MustCompile(`(?i)\b(?:project|built|developed|created|designed|launched|implemented)[:\s]+(?:an?[ \t]+|the[ \t]+)?([a-z0-9][\w\- ]{2,50}?[ \t](?:application|app|system|platform|tool|website|service|dashboard|engine|api|library|framework|bot|pipeline))\b`)
	projectQuotedRe = regexp.MustCompile(`["“]([A-Z][^"”\n]{2,50})["”]`)
	projectLedRe    = regexp.MustCompile(`\b(?:[Ll]ed|[Mm]anaged|[Ss]pearheaded|[Hh]eaded)[ \t]+(?:the[ \t]+)?([A-Z][\w\-]*(?:[ \t]+[A-Z][\w\-]*){0,4})`)

	yearsRe = regexp.MustCompile(`(?i)\b(\d{1,2})[ \t]*(\+)?[ \t]*(?:years?|yrs?)(?:[ \t]+of)?(?:[ \t]+[a-z\-]+)?[ \t]+experience`)

	seniorLevelRe     = regexp.MustCompile(`\b(?:senior|lead|principal|staff)\b`)
	juniorLevelRe     = regexp.MustCompile(`\b(?:junior|entry|graduate|intern)\b`)
	leadershipLevelRe = regexp.MustCompile(`\b(?:director|manager|head of)\b`)
)

// Roles returns lower-cased job titles that carry a field or a seniority qualifier.
func Roles(text string) []string {
	lower := strings.ToLower(text)
	set := newOrderedSet(MaxRoles)
	for _, h := range collect(lower, 1, roleFieldRe, roleSeniorRe, roleCompoundRe) {
		set.add(collapseSpaces(h.value))
	}
	return set.list()
}

// Education returns degrees, fields of study, institutions and certifications.
func Education(text string) []string {
	set := newOrderedSet(MaxEducation)

	hits := collect(text, 0, degreeRe)
	hits = append(hits, collect(text, 1, knownFieldRe, institutionRe, certRe)...)
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	for _, h := range hits {
		value := degreeCutRe.ReplaceAllString(h.value, "")
		value = collapseSpaces(strings.Trim(value, " \t.,;:-"))
		if len(value) < 2 {
			continue
		}
		if knownFieldRe.MatchString(value) && strings.EqualFold(knownFieldRe.FindString(value), value) {
			value = cases.Title(language.English).String(strings.ToLower(value))
		}
		if containsFold(set.values, value) {
			continue
		}
		set.add(value)
	}
	return set.list()
}

// Projects returns named projects and initiatives.
func Projects(text string) []string {
	set := newOrderedSet(MaxProjects)
	for _, h := range collect(text, 1, projectNamedRe, projectQuotedRe, projectLedRe) {
		value := collapseSpaces(strings.Trim(h.value, " \t.,;:-"))
		if len(value) < 3 {
			continue
		}
		if _, ok := genericWords[strings.ToLower(value)]; ok {
			continue
		}
		set.add(value)
	}
	return set.list()
}

// Experience infers the seniority tier and the stated years of experience.
func Experience(text string) (ExperienceLevel, string) {
	years := NotSpecified
	if m := yearsRe.FindStringSubmatch(text); m != nil {
		unit := "years"
		if m[1] == "1" && m[2] == "" {
			unit = "year"
		}
		years = fmt.Sprintf("%s%s %s", m[1], m[2], unit)
	}

	lower := strings.ToLower(text)
	level := LevelMid
	switch {
	case seniorLevelRe.MatchString(lower):
		level = LevelSenior
	case juniorLevelRe.MatchString(lower):
		level = LevelJunior
	case leadershipLevelRe.MatchString(lower):
		level = LevelLeadership
	}

	return level, years
}

// containsFold reports whether value is already covered by a longer entry.
func containsFold(values []string, value string) bool {
	lv := strings.ToLower(value)
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), lv) {
			return true
		}
	}
	return false
}
