package input

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/brieflink/pkg/brief"
)

var (
	textQ   = brief.Question{ID: "business", Label: "What does your business do?", Kind: brief.KindText, Required: true}
	choiceQ = brief.Question{ID: "personality", Label: "Pick a personality", Kind: brief.KindChoice, Required: true,
		Options: []brief.Option{{Value: "calm", Label: "Calm"}, {Value: "energetic", Label: "Energetic"}, {Value: "premium", Label: "Premium"}}}
	multiQ = brief.Question{ID: "colors", Label: "Colors", Kind: brief.KindMulti,
		Options: []brief.Option{{Value: "mono", Label: "Mono"}, {Value: "bright", Label: "Bright"}, {Value: "earthy", Label: "Earthy"}}}
)

func TestTerminalCollector_Ask(t *testing.T) {
	tests := []struct {
		name    string
		q       brief.Question
		input   string
		want    []string
		wantErr string
	}{
		{name: "text", q: textQ, input: "  we bake bread \n", want: []string{"we bake bread"}},
		{name: "text required asks again", q: textQ, input: "\nbread\n", want: []string{"bread"}},
		{name: "text without newline", q: textQ, input: "bread", want: []string{"bread"}},
		{name: "choice first", q: choiceQ, input: "1\n", want: []string{"calm"}},
		{name: "choice last", q: choiceQ, input: "3\n", want: []string{"premium"}},
		{name: "choice out of range then valid", q: choiceQ, input: "5\n2\n", want: []string{"energetic"}},
		{name: "choice invalid then valid", q: choiceQ, input: "abc\n1\n", want: []string{"calm"}},
		{name: "choice two numbers then one", q: choiceQ, input: "1,2\n2\n", want: []string{"energetic"}},
		{name: "multi", q: multiQ, input: "1, 3\n", want: []string{"mono", "earthy"}},
		{name: "multi spaces and duplicates", q: multiQ, input: "2 2 1\n", want: []string{"bright", "mono"}},
		{name: "optional skipped", q: multiQ, input: "\n"},
		{name: "input exhausted", q: choiceQ, input: "9\n", wantErr: "read input"},
		{name: "no options", q: brief.Question{ID: "x", Kind: brief.KindChoice}, input: "1\n", wantErr: "no options"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var stdout bytes.Buffer
			c := &TerminalCollector{stdin: strings.NewReader(tc.input), stdout: &stdout}

			got, err := c.Ask(context.Background(), tc.q)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Contains(t, stdout.String(), tc.q.Label)
		})
	}
}

func TestTerminalCollector_Ask_outputFormat(t *testing.T) {
	var stdout bytes.Buffer
	c := &TerminalCollector{stdin: strings.NewReader("2\n"), stdout: &stdout}
	_, err := c.Ask(context.Background(), choiceQ)
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "Pick a personality\n")
	assert.Contains(t, out, "  1) Calm\n")
	assert.Contains(t, out, "  2) Energetic\n")
	assert.Contains(t, out, "  3) Premium\n")
	assert.Contains(t, out, "Enter number (1-3): ")

	stdout.Reset()
	c = &TerminalCollector{stdin: strings.NewReader("1\n"), stdout: &stdout}
	_, err = c.Ask(context.Background(), multiQ)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Colors (optional)")
	assert.Contains(t, stdout.String(), "Enter numbers separated by commas (1-3): ")
}

func TestTerminalCollector_readsAcrossQuestions(t *testing.T) {
	// a single reader is shared, buffered input of later questions is not lost
	c := &TerminalCollector{stdin: strings.NewReader("bread\n3\n1,2\n"), stdout: &bytes.Buffer{}}
	ctx := context.Background()

	v, err := c.Ask(ctx, textQ)
	require.NoError(t, err)
	assert.Equal(t, []string{"bread"}, v)
	v, err = c.Ask(ctx, choiceQ)
	require.NoError(t, err)
	assert.Equal(t, []string{"premium"}, v)
	v, err = c.Ask(ctx, multiQ)
	require.NoError(t, err)
	assert.Equal(t, []string{"mono", "bright"}, v)
}

type fakeCollector struct {
	answers map[string][]string
	err     error
	asked   []string
}

func (f *fakeCollector) Ask(_ context.Context, q brief.Question) ([]string, error) {
	f.asked = append(f.asked, q.ID)
	if f.err != nil {
		return nil, f.err
	}
	return f.answers[q.ID], nil
}

func TestFill(t *testing.T) {
	q, err := brief.Parse([]byte(`
title: Test
sections:
  - title: About
    questions:
      - {id: business, label: Business, kind: text, required: true}
      - id: colors
        label: Colors
        kind: multi
        options: [{value: mono, label: Mono}, {value: bright, label: Bright}]
`))
	require.NoError(t, err)

	t.Run("collects in order", func(t *testing.T) {
		f := &fakeCollector{answers: map[string][]string{"business": {"bakery"}}}
		a, err := Fill(context.Background(), f, q)
		require.NoError(t, err)
		assert.Equal(t, []string{"business", "colors"}, f.asked)
		assert.Equal(t, brief.Answers{"business": {"bakery"}}, a)
	})

	t.Run("validation error", func(t *testing.T) {
		f := &fakeCollector{answers: map[string][]string{"colors": {"mono"}}}
		_, err := Fill(context.Background(), f, q)
		var verr *brief.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "required", verr.Fields["business"])
	})

	t.Run("collector error", func(t *testing.T) {
		f := &fakeCollector{err: errors.New("selection canceled")}
		_, err := Fill(context.Background(), f, q)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "question business")
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		f := &fakeCollector{}
		_, err := Fill(ctx, f, q)
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, f.asked)
	})
}

func TestNewTerminalCollector(t *testing.T) {
	c := NewTerminalCollector()
	assert.NotNil(t, c)
	assert.Nil(t, c.stdin)
	assert.Nil(t, c.stdout)
}
