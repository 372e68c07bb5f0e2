// Package progress prints project phase steppers and status reports to the terminal with color support.
package progress

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/umputun/brieflink/pkg/status"
)

// step colors using fatih/color.
var (
	completedColor = color.New(color.FgGreen)
	currentColor   = color.New(color.FgCyan, color.Bold)
	upcomingColor  = color.New(color.Faint)
	warnColor      = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
	labelColor     = color.New(color.FgWhite)
)

// stepColors maps step states to their colors.
var stepColors = map[status.Step]*color.Color{
	status.StepCompleted: completedColor,
	status.StepCurrent:   currentColor,
	status.StepUpcoming:  upcomingColor,
}

// stepMarkers maps step states to the marker printed before the label.
var stepMarkers = map[status.Step]string{
	status.StepCompleted: "✓",
	status.StepCurrent:   "●",
	status.StepUpcoming:  "○",
}

// Config holds printer configuration.
type Config struct {
	Out     io.Writer // destination, os.Stdout if nil
	NoColor bool      // disable color output (sets color.NoColor globally)
}

// Printer writes stepper and project reports.
type Printer struct {
	out   io.Writer
	plain bool
	now   func() time.Time
}

// Report is the project information printed by Project.
type Report struct {
	ID           string
	Title        string
	ClientName   string
	Status       status.ProjectStatus
	Phase        status.Phase
	UpdatedAt    time.Time
	Revisions    []string // notes of pending revisions
	Deliverables int      // shared deliverables
}

// New creates a printer. output is plain when color is disabled or the destination is not a terminal.
func New(cfg Config) *Printer {
	if cfg.NoColor {
		color.NoColor = true
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out, plain: cfg.NoColor || !isTerminal(out), now: time.Now}
}

// Steps prints the ordered phases marked relative to current.
func (p *Printer) Steps(current status.Phase) {
	for _, st := range status.Steps(current) {
		line := fmt.Sprintf("%s %s", stepMarkers[st.State], st.Label)
		p.write("  %s\n", p.paint(stepColors[st.State], line))
	}
}

// Phases prints the phase model as a numbered list.
func (p *Printer) Phases() {
	for i, ph := range status.Phases() {
		p.write("%d. %-10s %s\n", i+1, ph.Key, p.paint(labelColor, ph.Label))
	}
}

// Project prints a project header, its stepper and the outstanding revisions.
func (p *Printer) Project(r Report) {
	p.write("%s\n", p.paint(currentColor, r.Title))
	if r.ClientName != "" {
		p.write("client:  %s\n", r.ClientName)
	}
	p.write("status:  %s\n", r.Status)
	p.write("phase:   %s\n", r.Phase.Label())
	if !r.UpdatedAt.IsZero() {
		p.write("updated: %s\n", humanize.RelTime(r.UpdatedAt, p.now(), "ago", "from now"))
	}
	p.write("id:      %s\n\n", r.ID)

	p.Steps(r.Phase)

	if r.Deliverables > 0 {
		p.write("\n%s shared with the client\n", humanize.Comma(int64(r.Deliverables))+" "+plural(r.Deliverables, "deliverable"))
	}
	if len(r.Revisions) == 0 {
		return
	}
	p.write("\n%s:\n", plural(len(r.Revisions), "pending revision"))
	width := terminalWidth(p.out)
	for _, note := range r.Revisions {
		wrapped := wrapText(note, width)
		for i, line := range strings.Split(wrapped, "\n") {
			prefix := "  - "
			if i > 0 {
				prefix = "    "
			}
			p.write("%s%s\n", prefix, p.paint(warnColor, line))
		}
	}
}

// Warn writes a warning message in yellow.
func (p *Printer) Warn(format string, args ...any) {
	p.write("%s\n", p.paint(warnColor, "WARN: "+fmt.Sprintf(format, args...)))
}

// Error writes an error message in red.
func (p *Printer) Error(format string, args ...any) {
	p.write("%s\n", p.paint(errorColor, "ERROR: "+fmt.Sprintf(format, args...)))
}

func (p *Printer) paint(c *color.Color, s string) string {
	if p.plain || c == nil {
		return s
	}
	return c.Sprint(s)
}

func (p *Printer) write(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the content width for wrapped notes, using COLUMNS env var or syscall.
// Defaults to 80 if detection fails; 4 columns are reserved for the list prefix.
func terminalWidth(w io.Writer) int {
	const minWidth = 40

	width := 80
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 0 {
			width = n
		}
	} else if f, ok := w.(*os.File); ok {
		if n, _, err := term.GetSize(int(f.Fd())); err == nil && n > 0 {
			width = n
		}
	}
	return max(width-4, minWidth)
}

// wrapText wraps text to specified width, breaking on word boundaries.
func wrapText(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}

	var result strings.Builder
	lineLen := 0
	for i, word := range strings.Fields(text) {
		if i == 0 {
			result.WriteString(word)
			lineLen = len(word)
			continue
		}
		if lineLen+1+len(word) <= width {
			result.WriteString(" ")
			result.WriteString(word)
			lineLen += 1 + len(word)
			continue
		}
		result.WriteString("\n")
		result.WriteString(word)
		lineLen = len(word)
	}
	return result.String()
}
