// Package input collects brief answers interactively in the terminal.
package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"github.com/umputun/brieflink/pkg/brief"
)

// Collector asks a single questionnaire question and returns the picked values.
type Collector interface {
	Ask(ctx context.Context, q brief.Question) ([]string, error)
}

// TerminalCollector implements Collector with fzf for option questions when available,
// falling back to numbered selection.
type TerminalCollector struct {
	stdin  io.Reader // for testing, nil uses os.Stdin
	stdout io.Writer // for testing, nil uses os.Stdout
	fzf    bool
	reader *bufio.Reader
}

// NewTerminalCollector creates a TerminalCollector reading stdin.
func NewTerminalCollector() *TerminalCollector {
	return &TerminalCollector{fzf: hasFzf()}
}

// Fill asks every question of the questionnaire in order and validates the result.
func Fill(ctx context.Context, c Collector, q *brief.Questionnaire) (brief.Answers, error) {
	answers := brief.Answers{}
	for _, qu := range q.Questions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vals, err := c.Ask(ctx, qu)
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", qu.ID, err)
		}
		if len(vals) > 0 {
			answers[qu.ID] = vals
		}
	}
	if err := q.Validate(answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// Ask prints the question and reads an answer, asking again until it is usable.
func (c *TerminalCollector) Ask(ctx context.Context, q brief.Question) ([]string, error) {
	if q.Kind != brief.KindText && len(q.Options) == 0 {
		return nil, errors.New("no options provided")
	}
	if c.fzf && q.Kind != brief.KindText {
		return c.selectWithFzf(ctx, q)
	}

	out := c.out()
	for {
		c.printQuestion(q)
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		vals, err := parseAnswer(q, line)
		if err != nil {
			_, _ = fmt.Fprintf(out, "  %v\n", err)
			continue
		}
		if len(vals) == 0 && q.Required {
			_, _ = fmt.Fprintln(out, "  an answer is required")
			continue
		}
		return vals, nil
	}
}

func (c *TerminalCollector) printQuestion(q brief.Question) {
	out := c.out()
	_, _ = fmt.Fprintln(out)
	label := q.Label
	if !q.Required {
		label += " (optional)"
	}
	_, _ = fmt.Fprintln(out, label)
	if q.Help != "" {
		_, _ = fmt.Fprintf(out, "  %s\n", q.Help)
	}
	for i, opt := range q.Options {
		_, _ = fmt.Fprintf(out, "  %d) %s\n", i+1, opt.Label)
	}
	switch q.Kind {
	case brief.KindChoice:
		_, _ = fmt.Fprintf(out, "Enter number (1-%d): ", len(q.Options))
	case brief.KindMulti:
		_, _ = fmt.Fprintf(out, "Enter numbers separated by commas (1-%d): ", len(q.Options))
	default:
		_, _ = fmt.Fprint(out, "> ")
	}
}

// parseAnswer converts a typed line into option values. text answers are kept as is.
func parseAnswer(q brief.Question, line string) ([]string, error) {
	if line == "" {
		return nil, nil
	}
	if q.Kind == brief.KindText {
		return []string{line}, nil
	}

	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' })
	if q.Kind == brief.KindChoice && len(fields) > 1 {
		return nil, errors.New("pick a single option")
	}
	var res []string
	for _, f := range fields {
		num, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %s", f)
		}
		if num < 1 || num > len(q.Options) {
			return nil, fmt.Errorf("selection out of range: %d (must be 1-%d)", num, len(q.Options))
		}
		if v := q.Options[num-1].Value; !slices.Contains(res, v) {
			res = append(res, v)
		}
	}
	return res, nil
}

// hasFzf checks if fzf is available in PATH.
func hasFzf() bool {
	_, err := exec.LookPath("fzf")
	return err == nil
}

// selectWithFzf picks options with fzf, multi questions allow several selections.
func (c *TerminalCollector) selectWithFzf(ctx context.Context, q brief.Question) ([]string, error) {
	labels := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		labels = append(labels, opt.Label)
	}
	args := []string{"--prompt", q.Label + ": ", "--height", "10", "--layout=reverse"}
	if q.Kind == brief.KindMulti {
		args = append(args, "--multi")
	}

	cmd := exec.CommandContext(ctx, "fzf", args...) //nolint:gosec // fzf is a trusted external tool, label comes from the questionnaire
	cmd.Stdin = strings.NewReader(strings.Join(labels, "\n"))
	cmd.Stderr = os.Stderr

	output, err := cmd.Output()
	if err != nil {
		// fzf returns exit code 130 when user presses Escape
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 130 {
			return nil, errors.New("selection canceled")
		}
		// exit code 1 means nothing matched, fine for optional questions
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && !q.Required {
			return nil, nil
		}
		return nil, fmt.Errorf("fzf selection failed: %w", err)
	}

	var res []string
	for line := range strings.SplitSeq(strings.TrimSpace(string(output)), "\n") {
		if i := slices.Index(labels, strings.TrimSpace(line)); i >= 0 {
			res = append(res, q.Options[i].Value)
		}
	}
	if len(res) == 0 && q.Required {
		return nil, errors.New("no selection made")
	}
	return res, nil
}

func (c *TerminalCollector) readLine() (string, error) {
	if c.reader == nil {
		in := c.stdin
		if in == nil {
			in = os.Stdin
		}
		c.reader = bufio.NewReader(in)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (c *TerminalCollector) out() io.Writer {
	if c.stdout == nil {
		return os.Stdout
	}
	return c.stdout
}
