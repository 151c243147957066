package judgment

import (
	"strings"
)

const systemPrompt = `You are monitoring a live remote job interview for signs of cheating.
You receive one webcam snapshot of the candidate and the transcript of the interview so far.
Report only what is observable. Do not infer intent or emotion.

Treat as dangerous: another person in frame, a phone or second device in use, reading from notes
or another screen, someone prompting the candidate, or the candidate leaving the frame.

Reply with JSON only, in exactly this shape:
{"events":[{"timestamp":"mm:ss","description":"short objective description","isDangerous":true}]}
Use an empty events array when nothing notable is happening.`

// BuildPrompt renders the user turn for one judgment request
func BuildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("Session time: ")
	b.WriteString(req.Label)
	b.WriteString("\n\n")

	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" {
		transcript = "(no speech yet)"
	}
	b.WriteString("Transcript so far:\n")
	b.WriteString(transcript)
	b.WriteString("\n")

	if summary := strings.TrimSpace(req.Perception); summary != "" {
		b.WriteString("\nLocal detector summary:\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}

	b.WriteString("\nDescribe the snapshot and flag anything dangerous.")
	return b.String()
}
