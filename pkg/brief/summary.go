package brief

import (
	"fmt"
	"strings"
	"time"
)

// SummaryInput carries the project facts printed in the brief summary header.
type SummaryInput struct {
	ProjectTitle string
	ClientName   string
	SubmittedAt  time.Time
}

// Summary renders the submitted brief as markdown.
// questions are listed in questionnaire order; unanswered ones are skipped.
func Summary(q *Questionnaire, in SummaryInput, a Answers, scores []StyleScore) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", in.ProjectTitle)
	if in.ClientName != "" {
		fmt.Fprintf(&b, "**Client:** %s  \n", in.ClientName)
	}
	if !in.SubmittedAt.IsZero() {
		fmt.Fprintf(&b, "**Submitted:** %s\n", in.SubmittedAt.Format("2006-01-02"))
	}
	b.WriteString("\n")

	if len(scores) > 0 {
		b.WriteString("## Style direction\n\n")
		for _, s := range Top(scores, 3) {
			fmt.Fprintf(&b, "- %s: %d%%\n", s.Style, s.Percent)
		}
		b.WriteString("\n")
	}

	for _, sec := range q.Sections {
		var body strings.Builder
		for _, qu := range sec.Questions {
			vals := a[qu.ID]
			if len(vals) == 0 {
				continue
			}
			fmt.Fprintf(&body, "**%s**\n\n", qu.Label)
			if qu.Kind == KindText {
				body.WriteString(quote(vals[0]))
				body.WriteString("\n")
				continue
			}
			for _, v := range vals {
				label := v
				if opt, ok := qu.Option(v); ok && opt.Label != "" {
					label = opt.Label
				}
				fmt.Fprintf(&body, "- %s\n", label)
			}
			body.WriteString("\n")
		}
		if body.Len() == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", sec.Title)
		b.WriteString(body.String())
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// mdPunct are the characters escaped in client text so it can't change the summary structure.
const mdPunct = "\\`*_{}[]()<>#+-.!|~=:"

// quote renders free text as a blockquote with markdown punctuation escaped.
// blank lines are kept as empty quote lines so paragraphs survive.
func quote(text string) string {
	var b strings.Builder
	for line := range strings.SplitSeq(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			b.WriteString(">\n")
			continue
		}
		b.WriteString("> ")
		for _, r := range line {
			if strings.ContainsRune(mdPunct, r) {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteString("\n")
	}
	return b.String()
}
