// Package report builds the post-session review for interviewers from a
// finished session record.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"interview-monitor/pkg/escalation"
	"interview-monitor/pkg/storage"
	"interview-monitor/pkg/timeline"
)

// Category groups flagged observations by what was seen
type Category string

const (
	CategoryGaze        Category = "off_screen_gaze"
	CategoryPhone       Category = "object_phone"
	CategoryPaper       Category = "object_paper"
	CategoryMultiPerson Category = "multi_person"
	CategoryAbsence     Category = "face_absence"
	CategoryOther       Category = "other"
)

// Severity of a flag for review purposes
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Flag is one dangerous timeline entry with its review classification
type Flag struct {
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Label       string   `json:"timestamp"`
	Description string   `json:"description"`
}

// Explanation describes one category of flags for the interviewer
type Explanation struct {
	Category  Category `json:"category"`
	Count     int      `json:"count"`
	Text      string   `json:"explanation"`
	Evidence  []string `json:"evidence"`
	FollowUps []string `json:"suggested_followup"`
}

// Metrics are the numeric totals of a report
type Metrics struct {
	DurationMinutes   float64          `json:"duration_minutes"`
	TotalObservations int              `json:"total_observations"`
	TotalFlags        int              `json:"total_flags"`
	HighSeverityCount int              `json:"high_severity_count"`
	Breakdown         map[Category]int `json:"flag_breakdown"`
	StrikeCount       int              `json:"strike_count"`
	Escalated         bool             `json:"escalated"`
}

// Report is the post-session review document
type Report struct {
	SessionID         string        `json:"session_id"`
	MonitorID         string        `json:"monitor_id"`
	Mode              string        `json:"mode"`
	GeneratedAt       time.Time     `json:"generated_at"`
	StartedAt         time.Time     `json:"started_at"`
	EndedAt           time.Time     `json:"ended_at,omitempty"`
	Summary           string        `json:"summary"`
	Recommendation    string        `json:"recommendation"`
	Metrics           Metrics       `json:"metrics"`
	HighPriorityFlags []Flag        `json:"high_priority_flags"`
	Explanations      []Explanation `json:"explanations"`
}

var keywords = []struct {
	category Category
	words    []string
}{
	{CategoryPhone, []string{"phone", "mobile", "smartphone", "tablet", "second device", "another device", "second screen", "another screen"}},
	{CategoryMultiPerson, []string{"another person", "second person", "other person", "someone", "multiple people", "second voice", "another voice", "whisper", "prompting"}},
	{CategoryPaper, []string{"paper", "notes", "notebook", "book", "document", "reading", "cheat sheet"}},
	{CategoryAbsence, []string{"left the frame", "out of frame", "not visible", "absent", "no face", "stepped away", "leaves the frame"}},
	{CategoryGaze, []string{"looking away", "looks away", "gaze", "glanc", "looking down", "looking left", "looking right", "off screen", "off-screen"}},
}

// Categorize assigns a description to the first matching category
func Categorize(description string) Category {
	d := strings.ToLower(description)
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(d, w) {
				return k.category
			}
		}
	}
	return CategoryOther
}

// SeverityOf rates a category
func SeverityOf(c Category) Severity {
	switch c {
	case CategoryPhone, CategoryMultiPerson, CategoryPaper:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// Build produces the report for record at time now
func Build(record storage.SessionRecord, now time.Time) Report {
	flags := flagsOf(record.Timeline)

	breakdown := make(map[Category]int)
	evidence := make(map[Category][]string)
	var high []Flag
	for _, f := range flags {
		breakdown[f.Category]++
		evidence[f.Category] = append(evidence[f.Category], fmt.Sprintf("%s %s", f.Label, f.Description))
		if f.Severity == SeverityHigh {
			high = append(high, f)
		}
	}

	m := Metrics{
		DurationMinutes:   record.Elapsed.Minutes(),
		TotalObservations: len(record.Timeline),
		TotalFlags:        len(flags),
		HighSeverityCount: len(high),
		Breakdown:         breakdown,
		StrikeCount:       record.Escalation.Count,
		Escalated:         record.Escalation.AlertFired,
	}

	rec := Recommend(len(flags), len(high))

	r := Report{
		SessionID:         record.SessionID,
		MonitorID:         record.MonitorID,
		Mode:              record.Mode,
		GeneratedAt:       now,
		StartedAt:         record.StartedAt,
		EndedAt:           record.EndedAt,
		Recommendation:    rec,
		Metrics:           m,
		HighPriorityFlags: high,
		Explanations:      explain(breakdown, evidence),
	}
	if r.HighPriorityFlags == nil {
		r.HighPriorityFlags = []Flag{}
	}
	r.Summary = summarize(m, high, rec)
	return r
}

func flagsOf(entries []timeline.Entry) []Flag {
	var flags []Flag
	for _, e := range entries {
		if !e.Dangerous {
			continue
		}
		c := Categorize(e.Description)
		flags = append(flags, Flag{
			Category:    c,
			Severity:    SeverityOf(c),
			Label:       e.Label,
			Description: e.Description,
		})
	}
	return flags
}

// Recommend returns the overall recommendation for the flag counts
func Recommend(totalFlags, highSeverity int) string {
	switch {
	case totalFlags == 0:
		return "Session appeared normal. Candidate can proceed to next stage."
	case highSeverity >= 3:
		return "Multiple high-severity flags detected. Recommend follow-up discussion with candidate."
	case highSeverity > 0:
		return "Some concerns noted. Suggest brief follow-up to clarify flagged behaviors."
	default:
		return "Minor flags detected but likely not concerning. Candidate can proceed with note of minor observations."
	}
}

func summarize(m Metrics, high []Flag, recommendation string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Interview session completed with duration of %.1f minutes.\n", m.DurationMinutes)
	fmt.Fprintf(&b, "Total of %d behavioral flags detected during the session.\n", m.TotalFlags)

	if len(high) > 0 {
		fmt.Fprintf(&b, "\n%d high-severity flags require attention:\n", len(high))
		for i, f := range high {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "  - %s %s\n", f.Label, f.Description)
		}
	}

	if len(m.Breakdown) > 0 {
		b.WriteString("\nFlag breakdown:\n")
		for _, c := range sortedCategories(m.Breakdown) {
			fmt.Fprintf(&b, "  - %s: %d occurrences\n", c, m.Breakdown[c])
		}
	} else {
		b.WriteString("\nNo significant flags detected. Session appeared normal.\n")
	}

	if m.Escalated {
		fmt.Fprintf(&b, "\nThe session was escalated at strike %d (%d strikes in total).\n", escalation.Threshold, m.StrikeCount)
	}

	b.WriteString("\nRecommendation: ")
	b.WriteString(recommendation)
	return b.String()
}

func sortedCategories(breakdown map[Category]int) []Category {
	out := make([]Category, 0, len(breakdown))
	for c := range breakdown {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if breakdown[out[i]] != breakdown[out[j]] {
			return breakdown[out[i]] > breakdown[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
