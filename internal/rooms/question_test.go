package rooms

import (
	"errors"
	"testing"

	"quizparty/internal/quiz"
)

func TestBuildQuestionView_Choice(t *testing.T) {
	q := testQuiz()
	rng := NewRand(3)
	for i := 0; i < 50; i++ {
		view, err := buildQuestionView(q, 0, rng)
		if err != nil {
			t.Fatal(err)
		}
		if len(view.Options) != choiceOptionCount {
			t.Fatalf("options = %d, want %d", len(view.Options), choiceOptionCount)
		}
		seen := map[string]bool{}
		correct := 0
		for _, o := range view.Options {
			if seen[o.ID] {
				t.Fatalf("duplicate option %q in %+v", o.ID, view.Options)
			}
			seen[o.ID] = true
			if o.ID == "a" {
				correct++
			}
		}
		if correct != 1 {
			t.Fatalf("correct option appears %d times", correct)
		}
		if view.ID != "q1" || view.Index != 0 || view.Total != 3 || view.Kind != quiz.KindChoice {
			t.Errorf("unexpected view header: %+v", view)
		}
	}
}

func TestBuildQuestionView_OrderVaries(t *testing.T) {
	q := testQuiz()
	rng := NewRand(11)
	first, _ := buildQuestionView(q, 0, rng)
	for i := 0; i < 20; i++ {
		next, _ := buildQuestionView(q, 0, rng)
		for j := range next.Options {
			if next.Options[j].ID != first.Options[j].ID {
				return
			}
		}
	}
	t.Error("option order never changed across 20 generations")
}

func TestBuildQuestionView_Autocomplete(t *testing.T) {
	q := &quiz.Quiz{
		ID:        "ac",
		Kind:      quiz.KindAutocomplete,
		Options:   []quiz.Option{{ID: "x", Label: "X"}, {ID: "y", Label: "Y"}},
		Questions: []quiz.Question{{ID: "q", Prompt: "?", Answer: "X"}},
	}
	view, err := buildQuestionView(q, 0, NewRand(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Options) != 2 || view.Options[0].ID != "x" {
		t.Errorf("autocomplete options = %+v, want the full pool in order", view.Options)
	}
	view.Options[0].ID = "changed"
	if q.Options[0].ID != "x" {
		t.Error("view aliases the quiz option pool")
	}
}

func TestBuildQuestionView_Errors(t *testing.T) {
	q := testQuiz()
	if _, err := buildQuestionView(q, 5, NewRand(1)); !errors.Is(err, errQuestionOutOfRange) {
		t.Errorf("out of range error = %v", err)
	}
	q.Options = q.Options[:3]
	if _, err := buildQuestionView(q, 0, NewRand(1)); !errors.Is(err, quiz.ErrNotEnoughOptions) {
		t.Errorf("small pool error = %v", err)
	}
	q = testQuiz()
	q.Questions[0].Answer = "zzz"
	if _, err := buildQuestionView(q, 0, NewRand(1)); err == nil {
		t.Error("expected error for answer outside the pool")
	}
}
