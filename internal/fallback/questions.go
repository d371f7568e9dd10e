package fallback

import (
	"fmt"
	"strings"
)

// jobSkillPrompts maps job keywords to the technology named in the skill question.
var jobSkillPrompts = []struct {
	term string
	name string
}{
	{"react", "React"},
	{"python", "Python"},
	{"javascript", "JavaScript"},
	{"java", "Java"},
	{"node", "Node.js"},
	{"aws", "AWS"},
	{"sql", "SQL"},
	{"go", "Go"},
}

// Questions returns exactly three interview questions.
func (g *Generator) Questions(in Input) []string {
	if !in.Signals.HasRealContent {
		return jobQuestions(in)
	}
	return signalQuestions(in)
}

func jobQuestions(in Input) []string {
	title := in.Job.DisplayTitle()
	job := strings.ToLower(in.Job.Text())

	skill := fmt.Sprintf("Which technical skills would you bring to the %s position, and where have you applied them in practice?", title)
	for _, p := range jobSkillPrompts {
		if mentions(job, p.term) {
			skill = fmt.Sprintf("This role relies on %s. Can you walk us through a project where you used %s and the problems you solved with it?", p.name, p.name)
			break
		}
	}

	return []string{
		fmt.Sprintf("How does your previous experience prepare you for the responsibilities of the %s role?", title),
		skill,
		fmt.Sprintf("What motivates you to apply for the %s position at this point in your career?", title),
	}
}

func signalQuestions(in Input) []string {
	s := in.Signals
	title := in.Job.DisplayTitle()

	var first string
	switch {
	case len(s.Companies) > 0:
		first = fmt.Sprintf("I see you worked at %s. What was the most significant challenge you faced there, and how did you handle it?", s.Companies[0])
	case len(s.Roles) > 0:
		first = fmt.Sprintf("Your CV mentions work as a %s. Which responsibilities from that role would carry over to the %s position?", s.Roles[0], title)
	default:
		first = "What is the most complex technical challenge you have tackled so far, and what did you learn from it?"
	}

	var second string
	switch {
	case len(s.Technologies) > 0:
		second = fmt.Sprintf("You mentioned %s in your CV. Can you describe a concrete problem you solved with it and the trade-offs you considered?", s.Technologies[0])
	case len(s.Projects) > 0:
		second = fmt.Sprintf("Tell us more about %s. What was your personal contribution and what was the outcome?", s.Projects[0])
	default:
		second = "Which professional accomplishment are you most proud of, and what made it difficult?"
	}

	var third string
	switch {
	case len(s.Education) > 0:
		third = fmt.Sprintf("How has your background in %s shaped the way you would approach the %s role?", s.Education[0], title)
	case len(s.Companies) > 1:
		third = fmt.Sprintf("Your career moved from %s to %s. What drove that transition and what did you take with you?", s.Companies[0], s.Companies[1])
	default:
		third = fmt.Sprintf("Why do you think your background makes you a strong fit for the %s role?", title)
	}

	return []string{first, second, third}
}
