// Package brief defines the client questionnaire, validates submissions, scores style
// preferences and builds the markdown brief summary.
package brief

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/questionnaire.yml
var defaultsFS embed.FS

// Kind is a question input type.
type Kind string

// question kinds.
const (
	KindText   Kind = "text"   // free-form single answer
	KindChoice Kind = "choice" // exactly one option
	KindMulti  Kind = "multi"  // any number of options
)

// Questionnaire is the full brief a client fills in.
type Questionnaire struct {
	Title    string    `yaml:"title"`
	Intro    string    `yaml:"intro"`
	Sections []Section `yaml:"sections"`
}

// Section groups related questions under a heading.
type Section struct {
	Title     string     `yaml:"title"`
	Questions []Question `yaml:"questions"`
}

// Question is a single questionnaire entry.
type Question struct {
	ID       string   `yaml:"id"`
	Label    string   `yaml:"label"`
	Help     string   `yaml:"help"`
	Kind     Kind     `yaml:"kind"`
	Required bool     `yaml:"required"`
	Options  []Option `yaml:"options"`
}

// Option is a selectable answer for choice and multi questions.
// Styles maps a style name to the weight this option contributes to it.
type Option struct {
	Value  string             `yaml:"value"`
	Label  string             `yaml:"label"`
	Styles map[string]float64 `yaml:"styles"`
}

// Answers maps question id to the submitted values. text and choice questions hold one value.
type Answers map[string][]string

// Default returns the built-in questionnaire.
func Default() (*Questionnaire, error) {
	data, err := defaultsFS.ReadFile("defaults/questionnaire.yml")
	if err != nil {
		return nil, fmt.Errorf("read embedded questionnaire: %w", err)
	}
	return Parse(data)
}

// Load reads a questionnaire from path, or returns the built-in one for an empty path.
func Load(path string) (*Questionnaire, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("read questionnaire %s: %w", path, err)
	}
	q, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("questionnaire %s: %w", path, err)
	}
	return q, nil
}

// Parse decodes and checks a yaml questionnaire.
func Parse(data []byte) (*Questionnaire, error) {
	var q Questionnaire
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	for si := range q.Sections {
		for qi := range q.Sections[si].Questions {
			if q.Sections[si].Questions[qi].Kind == "" {
				q.Sections[si].Questions[qi].Kind = KindText
			}
		}
	}
	if err := q.check(); err != nil {
		return nil, err
	}
	return &q, nil
}

// check verifies the questionnaire definition itself.
func (q *Questionnaire) check() error {
	if len(q.Sections) == 0 {
		return errors.New("questionnaire has no sections")
	}
	seen := map[string]bool{}
	for _, sec := range q.Sections {
		for _, qu := range sec.Questions {
			if qu.ID == "" {
				return fmt.Errorf("question %q in section %q has no id", qu.Label, sec.Title)
			}
			if seen[qu.ID] {
				return fmt.Errorf("duplicate question id %q", qu.ID)
			}
			seen[qu.ID] = true

			switch qu.Kind {
			case KindText:
			case KindChoice, KindMulti:
				if len(qu.Options) == 0 {
					return fmt.Errorf("question %q: %s question needs options", qu.ID, qu.Kind)
				}
			default:
				return fmt.Errorf("question %q: unknown kind %q", qu.ID, qu.Kind)
			}

			for _, opt := range qu.Options {
				if opt.Value == "" {
					return fmt.Errorf("question %q: option without value", qu.ID)
				}
				for style, w := range opt.Styles {
					if w < 0 {
						return fmt.Errorf("question %q option %q: negative weight for %s", qu.ID, opt.Value, style)
					}
				}
			}
		}
	}
	return nil
}

// Questions returns all questions in declaration order.
func (q *Questionnaire) Questions() []Question {
	var res []Question
	for _, sec := range q.Sections {
		res = append(res, sec.Questions...)
	}
	return res
}

// Question returns the question with the given id.
func (q *Questionnaire) Question(id string) (Question, bool) {
	for _, qu := range q.Questions() {
		if qu.ID == id {
			return qu, true
		}
	}
	return Question{}, false
}

// Option returns the option with the given value.
func (qu Question) Option(value string) (Option, bool) {
	for _, opt := range qu.Options {
		if opt.Value == value {
			return opt, true
		}
	}
	return Option{}, false
}

// ValidationError lists per-question problems with a submission.
type ValidationError struct {
	Fields map[string]string // question id -> problem
}

func (e *ValidationError) Error() string {
	ids := make([]string, 0, len(e.Fields))
	for id := range e.Fields {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+": "+e.Fields[id])
	}
	return "invalid answers: " + strings.Join(parts, "; ")
}

// Validate checks a submission against the questionnaire.
// returns *ValidationError when any answer is missing or not among the question options.
func (q *Questionnaire) Validate(a Answers) error {
	fields := map[string]string{}
	for _, qu := range q.Questions() {
		vals := a[qu.ID]
		if len(vals) == 0 {
			if qu.Required {
				fields[qu.ID] = "required"
			}
			continue
		}
		switch qu.Kind {
		case KindText, KindChoice:
			if len(vals) > 1 {
				fields[qu.ID] = "single answer expected"
				continue
			}
		}
		if qu.Kind == KindText {
			continue
		}
		for _, v := range vals {
			if _, ok := qu.Option(v); !ok {
				fields[qu.ID] = fmt.Sprintf("unknown option %q", v)
				break
			}
		}
	}
	for id := range a {
		if _, ok := q.Question(id); !ok {
			fields[id] = "unknown question"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// FromForm extracts answers for known questions from a posted form.
// values are trimmed; blank values are dropped.
func (q *Questionnaire) FromForm(form url.Values) Answers {
	res := Answers{}
	for _, qu := range q.Questions() {
		for _, v := range form[qu.ID] {
			if v = strings.TrimSpace(v); v != "" {
				res[qu.ID] = append(res[qu.ID], v)
			}
		}
	}
	return res
}
