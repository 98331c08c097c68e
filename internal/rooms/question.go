package rooms

import (
	"errors"
	"fmt"

	"quizparty/internal/quiz"
)

var errQuestionOutOfRange = errors.New("question index out of range")

// buildQuestionView prepares the client-facing view of question index.
// Choice questions get the correct option plus three random distractors in
// random order. Autocomplete questions expose the quiz's whole option pool.
func buildQuestionView(q *quiz.Quiz, index int, rng Rand) (*QuestionView, error) {
	if index < 0 || index >= len(q.Questions) {
		return nil, errQuestionOutOfRange
	}
	question := q.Questions[index]
	view := &QuestionView{
		ID:     question.ID,
		Index:  index,
		Total:  len(q.Questions),
		Prompt: question.Prompt,
		Image:  question.Image,
		Kind:   q.Kind,
	}

	switch q.Kind {
	case quiz.KindAutocomplete:
		view.Options = append([]quiz.Option(nil), q.Options...)
		return view, nil
	case quiz.KindChoice:
	default:
		return nil, fmt.Errorf("unknown quiz kind %q", q.Kind)
	}

	correct, ok := q.Option(question.Answer)
	if !ok {
		return nil, fmt.Errorf("question %s: answer %q missing from option pool", question.ID, question.Answer)
	}
	wrong := make([]quiz.Option, 0, len(q.Options))
	for _, o := range q.Options {
		if o.ID != correct.ID {
			wrong = append(wrong, o)
		}
	}
	need := choiceOptionCount - 1
	if len(wrong) < need {
		return nil, fmt.Errorf("question %s: %w", question.ID, quiz.ErrNotEnoughOptions)
	}

	// partial Fisher-Yates: the first need entries become the distractors
	for i := 0; i < need; i++ {
		j := i + rng.Intn(len(wrong)-i)
		wrong[i], wrong[j] = wrong[j], wrong[i]
	}
	options := make([]quiz.Option, 0, choiceOptionCount)
	options = append(options, wrong[:need]...)
	options = append(options, correct)
	rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	view.Options = options
	return view, nil
}
