package report

import "fmt"

var explanationTemplates = map[Category]string{
	CategoryGaze: "The candidate was flagged for looking away from the screen %d times. " +
		"This may indicate they were reading from notes, looking at another device, or distracted.",
	CategoryPhone: "A phone or mobile device was flagged %d times. " +
		"This could indicate the candidate was using the device during the interview.",
	CategoryPaper: "Printed materials or notes were flagged %d times. " +
		"This may indicate the candidate was referencing notes or documents.",
	CategoryMultiPerson: "Another person or voice was flagged %d times. " +
		"This could be someone assisting the candidate or an environmental factor.",
	CategoryAbsence: "The candidate was flagged as absent from the frame %d times. " +
		"This could indicate they stood up, moved away, or there was a technical issue.",
}

var followUpQuestions = map[Category][]string{
	CategoryGaze: {
		"Can you describe your workspace setup?",
		"Were you referencing any materials during the interview?",
		"Did you experience any technical difficulties?",
	},
	CategoryPhone: {
		"Were you using your phone for anything during the interview?",
		"Do you recall checking your phone at any point?",
		"Was there an emergency or important notification?",
	},
	CategoryPaper: {
		"Were you referencing notes or documentation during the interview?",
		"Can you describe what materials you had with you?",
		"Did you prepare written notes beforehand?",
	},
	CategoryMultiPerson: {
		"Was anyone else present during your interview?",
		"Did anyone enter your space during the session?",
		"Can you describe your interview environment?",
	},
	CategoryAbsence: {
		"Did you need to step away at any point?",
		"Were there any technical issues with your camera?",
		"Did you experience any interruptions?",
	},
}

// FollowUps suggests interviewer questions for a category
func FollowUps(c Category) []string {
	if q, ok := followUpQuestions[c]; ok {
		return append([]string(nil), q...)
	}
	return []string{"Can you provide context for this flag?"}
}

// Explain renders the explanation text for count flags of category c
func Explain(c Category, count int) string {
	if tmpl, ok := explanationTemplates[c]; ok {
		return fmt.Sprintf(tmpl, count)
	}
	return fmt.Sprintf("%d observations of type '%s' were flagged. Please review the session timeline.", count, c)
}

func explain(breakdown map[Category]int, evidence map[Category][]string) []Explanation {
	out := make([]Explanation, 0, len(breakdown))
	for _, c := range sortedCategories(breakdown) {
		out = append(out, Explanation{
			Category:  c,
			Count:     breakdown[c],
			Text:      Explain(c, breakdown[c]),
			Evidence:  evidence[c],
			FollowUps: FollowUps(c),
		})
	}
	return out
}
