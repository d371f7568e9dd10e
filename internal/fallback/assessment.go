package fallback

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spigell/cv-screener/internal/signals"
)

// scoredTechnologies is the overlap checklist shared by scoring and tagging.
var scoredTechnologies = []struct {
	term string
	tag  string
}{
	{"javascript", "JavaScript"},
	{"react", "React"},
	{"python", "Python"},
	{"java", "Java"},
	{"node", "Node.js"},
	{"aws", "AWS"},
}

var (
	certificationTerms = []string{"certified", "certification", "certificate", "certifications"}
	leadershipTerms    = []string{"leadership", "led", "lead", "manager", "managed", "head of"}
	mentorshipTerms    = []string{"mentor", "mentored", "mentoring", "mentorship", "coached"}
	fullStackTerms     = []string{"full-stack", "full stack", "fullstack"}

	leadingYearsRe = regexp.MustCompile(`^\d+`)
)

var fillerTags = []string{
	"Team player", "Problem solver", "Fast learner", "Clear communicator",
	"Detail oriented", "Adaptable", "Self-motivated", "Collaborative",
}

// RawScore is the score before random jitter and clamping.
func RawScore(in Input) int {
	cv := cvCorpus(in)
	job := strings.ToLower(in.Job.Text())

	score := baseScore
	for _, t := range scoredTechnologies {
		if mentions(cv, t.term) && mentions(job, t.term) {
			score += 5
		}
	}

	switch {
	case mentions(cv, "senior") && mentions(job, "senior"):
		score += 15
	case mentions(cv, "junior") && mentions(job, "junior"):
		score += 10
	}
	if mentions(cv, "computer science") && mentions(job, "computer science") {
		score += 10
	}
	if mentionsAny(cv, certificationTerms...) {
		score += 8
	}
	if mentionsAny(cv, mentorshipTerms...) || mentionsAny(cv, "leadership") {
		score += 7
	}
	return score
}

// Score adds up to ±10 jitter to RawScore and clamps the result to [25, 90].
func (g *Generator) Score(in Input) int {
	score := RawScore(in) + g.intN(2*maxJitter+1) - maxJitter
	return clamp(score, minScore, maxScore)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Summary writes a narrative of at least the configured minimum length.
func (g *Generator) Summary(in Input, score int) string {
	s := in.Signals
	name := strings.TrimSpace(in.Applicant.Name)
	if name == "" {
		name = "The candidate"
	}
	title := in.Job.DisplayTitle()

	var sentences []string

	applied := fmt.Sprintf("%s applied for the %s position", name, title)
	if loc := strings.TrimSpace(in.Applicant.Location); loc != "" {
		applied += fmt.Sprintf(" and is based in %s", loc)
	}
	sentences = append(sentences, applied+".")

	switch {
	case strings.TrimSpace(in.Applicant.Education) != "":
		sentences = append(sentences, fmt.Sprintf("Their stated education is %s.", strings.TrimSpace(in.Applicant.Education)))
	case len(s.Education) > 0:
		sentences = append(sentences, fmt.Sprintf("The CV lists %s as part of their education.", s.Education[0]))
	default:
		sentences = append(sentences, "No formal education details could be confirmed from the submission.")
	}

	if s.ExperienceYears != "" && s.ExperienceYears != signals.NotSpecified {
		sentences = append(sentences, fmt.Sprintf("The CV points to a %s level profile with %s of experience.", strings.ToLower(string(s.ExperienceLevel)), s.ExperienceYears))
	} else {
		sentences = append(sentences, fmt.Sprintf("The CV points to a %s level profile, although the total years of experience are not stated.", strings.ToLower(string(levelOrMid(s.ExperienceLevel)))))
	}

	if len(s.Technologies) > 0 {
		sentences = append(sentences, fmt.Sprintf("Technologies mentioned include %s.", strings.Join(s.Technologies, ", ")))
	}
	if len(s.Companies) > 0 {
		sentences = append(sentences, fmt.Sprintf("Previous employers include %s.", strings.Join(s.Companies, ", ")))
	}

	if strings.TrimSpace(in.Applicant.Motivation) != "" {
		sentences = append(sentences, "A motivation letter was provided, which helps in judging interest in the role and cultural fit.")
	} else {
		sentences = append(sentences, "No motivation letter was provided, so interest in the role should be explored directly.")
	}

	switch {
	case score >= 70:
		sentences = append(sentences,
			"Overall the profile aligns strongly with the requirements of the role and the core skills match what the team needs.",
			"Recommendation: proceed to interview.")
	case score >= 50:
		sentences = append(sentences,
			"The profile shows partial alignment with the role; several requirements are met while others need verification.",
			"Recommendation: detailed review of the CV before deciding on an interview.")
	default:
		sentences = append(sentences,
			"The profile shows limited alignment with the requirements of the role at this stage.",
			"Recommendation: entry-level consideration or a better matched opening.")
	}

	sentences = append(sentences, "This assessment was produced automatically from the signals extracted from the CV.")

	summary := strings.Join(sentences, " ")
	extensions := []string{
		"Interviewers should verify the depth of hands-on experience behind each listed skill.",
		"References from recent employers would help confirm the scope of previous responsibilities.",
		"A short practical exercise could clarify ability in the key technologies for this role.",
		"Career goals and availability should be discussed early in the process.",
	}
	for i := 0; utf8.RuneCountInString(summary) < g.summaryMin; i++ {
		summary += " " + extensions[i%len(extensions)]
	}
	return summary
}

func levelOrMid(level signals.ExperienceLevel) signals.ExperienceLevel {
	if level == "" {
		return signals.LevelMid
	}
	return level
}

// Tags describes the candidate and pads the list with generic tags up to six.
func (g *Generator) Tags(in Input) []string {
	s := in.Signals
	cv := cvCorpus(in)

	var tags []string
	add := func(tag string) {
		for _, existing := range tags {
			if strings.EqualFold(existing, tag) {
				return
			}
		}
		tags = append(tags, tag)
	}

	add(fmt.Sprintf("%s level", levelOrMid(s.ExperienceLevel)))
	if tag := yearsTag(s.ExperienceYears); tag != "" {
		add(tag)
	}
	for _, t := range scoredTechnologies {
		if mentions(cv, t.term) {
			add(t.tag)
		}
	}

	switch {
	case mentions(cv, "computer science"):
		add("Computer Science background")
	case len(s.Education) > 0 || strings.TrimSpace(in.Applicant.Education) != "":
		add("Formal education")
	}

	if mentionsAny(cv, leadershipTerms...) {
		add("Leadership")
	}
	if mentionsAny(cv, mentorshipTerms...) {
		add("Mentorship")
	}
	if mentionsAny(cv, fullStackTerms...) {
		add("Full-stack")
	}
	if loc := strings.TrimSpace(in.Applicant.Location); loc != "" {
		add("Based in " + loc)
	}

	if len(tags) < minTags {
		for _, i := range g.perm(len(fillerTags)) {
			if len(tags) >= minTags {
				break
			}
			add(fillerTags[i])
		}
	}
	return tags
}

func yearsTag(years string) string {
	n, err := strconv.Atoi(leadingYearsRe.FindString(years))
	if err != nil {
		return ""
	}
	switch {
	case n < 2:
		return "0-2 years experience"
	case n < 5:
		return "2-5 years experience"
	case n < 10:
		return "5-10 years experience"
	default:
		return "10+ years experience"
	}
}
