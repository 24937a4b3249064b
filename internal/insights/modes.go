package insights

import (
	"fmt"
	"strings"
)

// Mode names one kind of narrative.
type Mode string

const (
	ModeTakeaways       Mode = "takeaways"
	ModeRecommendations Mode = "recommendations"
	ModeWriterFeedback  Mode = "writer-feedback"
	ModeComparison      Mode = "comparison"
	ModeSources         Mode = "sources"
	ModeMeetingSummary  Mode = "meeting-summary"
)

// Modes lists every mode in presentation order.
var Modes = []Mode{
	ModeTakeaways,
	ModeRecommendations,
	ModeWriterFeedback,
	ModeComparison,
	ModeSources,
	ModeMeetingSummary,
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := templates[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// NeedsAuthor reports whether the mode is about one writer.
func (m Mode) NeedsAuthor() bool { return m == ModeWriterFeedback }

// Datasets returns the minimum and maximum number of datasets the mode
// accepts. Zero max means unbounded.
func (m Mode) Datasets() (least, most int) {
	switch m {
	case ModeComparison:
		return 2, 0
	case ModeSources:
		return 2, 2
	default:
		return 1, 1
	}
}

// Applicable returns the modes that can run over n datasets. Writer
// feedback is included only when an author is named.
func Applicable(n int, author string) []Mode {
	var out []Mode
	for _, m := range Modes {
		least, most := m.Datasets()
		if n < least || (most > 0 && n > most) {
			continue
		}
		if m.NeedsAuthor() && strings.TrimSpace(author) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

type template struct {
	title    string
	task     string
	sections []string
}

const systemPrompt = `You are an audience analyst for a news publisher. You are given pre-computed statistics from a pageview export. Only use the figures you are given; never invent numbers, writers, sections or referrers that do not appear in the data. If a figure is shown as N/A, say it is unavailable.`

var templates = map[Mode]template{
	ModeTakeaways: {
		title:    "Key takeaways",
		task:     "Identify the 3-5 most important takeaways about what drove traffic in this period. Each takeaway should cite the figures it rests on.",
		sections: []string{"takeaways"},
	},
	ModeRecommendations: {
		title:    "Recommendations",
		task:     "Give 3-5 concrete editorial recommendations (topics, sections, formats or timing) grounded in the statistics.",
		sections: []string{"recommendations"},
	},
	ModeWriterFeedback: {
		title:    "Writer feedback",
		task:     "Write constructive feedback for the writer %s. Compare their figures to the overall dataset, name what works and what could improve.",
		sections: []string{"strengths", "improvements"},
	},
	ModeComparison: {
		title:    "Period comparison",
		task:     "Explain how performance changed between the periods. Name the largest changes and their likely drivers from the figures given.",
		sections: []string{"changes", "drivers"},
	},
	ModeSources: {
		title:    "Traffic source comparison",
		task:     "Compare all traffic with traffic excluding one source. Explain which sections depend most on that source and what the remaining audience prefers.",
		sections: []string{"findings"},
	},
	ModeMeetingSummary: {
		title:    "Meeting summary",
		task:     "Prepare a short briefing for the weekly editorial meeting: highlights, concerns and agreed actions.",
		sections: []string{"highlights", "concerns", "actions"},
	},
}

// Title is the display title of the mode.
func (m Mode) Title() string { return templates[m].title }

// Sections are the JSON keys the mode's reply carries besides headline and summary.
func (m Mode) Sections() []string { return templates[m].sections }

func (m Mode) instructions(author string) string {
	t := templates[m]
	task := t.task
	if m.NeedsAuthor() {
		task = fmt.Sprintf(task, author)
	}

	var b strings.Builder
	b.WriteString(task)
	b.WriteString("\n\nRespond with ONLY this JSON:\n{\n")
	b.WriteString(`    "headline": "One sentence summing up the result",` + "\n")
	b.WriteString(`    "summary": "A short paragraph. Use markdown for emphasis."`)
	for _, key := range t.sections {
		fmt.Fprintf(&b, ",\n    %q: [\n        {\"title\": \"Short label\", \"detail\": \"One or two sentences\", \"metric\": \"The figure it rests on\"}\n    ]", key)
	}
	b.WriteString("\n}")
	return b.String()
}
