package quiz

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrNotEnoughOptions = errors.New("not enough options")
)

// Kind decides how a question is presented to players.
type Kind string

const (
	KindChoice       Kind = "choice"
	KindAutocomplete Kind = "autocomplete"
)

type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Image string `json:"image,omitempty"`
}

// Question holds a prompt and its canonical answer. For choice quizzes the
// answer is an option ID; for autocomplete quizzes it is the expected text.
type Question struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	Image  string `json:"image,omitempty"`
	Answer string `json:"answer"`
}

type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Image     string     `json:"image,omitempty"`
	Kind      Kind       `json:"kind"`
	Options   []Option   `json:"options"`
	Questions []Question `json:"questions"`
}

// Preview is the catalogue entry shown to clients before a game starts.
type Preview struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Image         string `json:"image,omitempty"`
	Kind          Kind   `json:"kind"`
	QuestionCount int    `json:"questionCount"`
}

// Bank supplies quizzes by ID. Callers may keep the returned quiz; it is
// never shared with another caller.
type Bank interface {
	Load(ctx context.Context, id string) (*Quiz, error)
}

// Shuffler is the subset of *rand.Rand the catalogue needs.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

func (q *Quiz) Preview() Preview {
	return Preview{
		ID:            q.ID,
		Title:         q.Title,
		Image:         q.Image,
		Kind:          q.Kind,
		QuestionCount: len(q.Questions),
	}
}

// Option looks up an option by ID.
func (q *Quiz) Option(id string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Validate checks that a quiz can be played.
func (q *Quiz) Validate() error {
	if q.ID == "" {
		return errors.New("quiz has no id")
	}
	options := make(map[string]bool, len(q.Options))
	for _, o := range q.Options {
		if options[o.ID] {
			return fmt.Errorf("quiz %s: duplicate option id %q", q.ID, o.ID)
		}
		options[o.ID] = true
	}
	switch q.Kind {
	case KindChoice:
		if len(q.Options) < 4 {
			return fmt.Errorf("quiz %s: %w: need at least 4, have %d", q.ID, ErrNotEnoughOptions, len(q.Options))
		}
		for _, question := range q.Questions {
			if _, ok := q.Option(question.Answer); !ok {
				return fmt.Errorf("quiz %s: question %s answer %q is not an option", q.ID, question.ID, question.Answer)
			}
		}
	case KindAutocomplete:
	default:
		return fmt.Errorf("quiz %s: unknown kind %q", q.ID, q.Kind)
	}
	seen := make(map[string]bool, len(q.Questions))
	for _, question := range q.Questions {
		if question.ID == "" {
			return fmt.Errorf("quiz %s: question without id", q.ID)
		}
		if seen[question.ID] {
			return fmt.Errorf("quiz %s: duplicate question id %s", q.ID, question.ID)
		}
		seen[question.ID] = true
	}
	return nil
}

func (q *Quiz) clone() *Quiz {
	cp := *q
	cp.Options = append([]Option(nil), q.Options...)
	cp.Questions = append([]Question(nil), q.Questions...)
	return &cp
}
