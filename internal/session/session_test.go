package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"mediqcm/internal/models"
)

func makeQuiz(n int) *models.Quiz {
	questions := make([]models.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, models.Question{
			Prompt:         fmt.Sprintf("Question %d", i+1),
			Options:        []string{"A", "B", "C", "D"},
			CorrectAnswers: []int{0, 2},
			Explanation:    "static explanation",
		})
	}
	return &models.Quiz{
		ID:         "quiz-1",
		Difficulty: models.DifficultyStandard,
		Questions:  questions,
		CreatedAt:  time.Now(),
	}
}

func activeSession(t *testing.T, n int) *State {
	t.Helper()
	s := New()
	s.SetDocument(&models.ExtractedDocument{Text: "course"})
	s.InstallQuiz(makeQuiz(n))
	return s
}

func TestSubmitEmptySelectionRejected(t *testing.T) {
	s := activeSession(t, 3)

	_, err := s.Submit(0, nil)
	if !errors.Is(err, ErrInvalidSubmission) {
		t.Fatalf("expected ErrInvalidSubmission, got %v", err)
	}
	if s.IsSubmitted(0) {
		t.Error("question should remain unanswered after empty submission")
	}
	if s.Answer(0) != nil {
		t.Error("no answer should be recorded")
	}
}

func TestSubmitRecordsAndFinalizes(t *testing.T) {
	s := activeSession(t, 3)

	completed, err := s.Submit(1, []int{2, 0})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if completed {
		t.Error("session should not be completed after one of three")
	}
	if got := s.Answer(1); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("answer not normalized, got %v", got)
	}
	if !s.IsSubmitted(1) {
		t.Error("question should be marked submitted")
	}
}

func TestResubmissionIsNoOp(t *testing.T) {
	s := activeSession(t, 2)

	if _, err := s.Submit(0, []int{0, 2}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := s.Submit(0, []int{1})
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if got := s.Answer(0); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("recorded answer must be immutable, got %v", got)
	}
}

func TestCompletionInAnyOrder(t *testing.T) {
	s := activeSession(t, 4)

	for _, idx := range []int{2, 0, 3} {
		completed, err := s.Submit(idx, []int{0})
		if err != nil {
			t.Fatalf("submit %d: %v", idx, err)
		}
		if completed {
			t.Fatalf("completed too early at index %d", idx)
		}
	}
	if s.Completed() {
		t.Fatal("not all questions submitted yet")
	}

	completed, err := s.Submit(1, []int{0})
	if err != nil {
		t.Fatalf("final submit: %v", err)
	}
	if !completed || !s.Completed() {
		t.Error("session should complete exactly on the last submission")
	}
}

func TestSelectionOutOfRangeFiltered(t *testing.T) {
	s := activeSession(t, 1)

	if _, err := s.Submit(0, []int{7, -1}); !errors.Is(err, ErrInvalidSubmission) {
		t.Fatalf("selection of only invalid indices should be rejected, got %v", err)
	}
	if _, err := s.Submit(0, []int{1, 9}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := s.Answer(0); len(got) != 1 || got[0] != 1 {
		t.Errorf("out-of-range indices should be dropped, got %v", got)
	}
}

func TestNavigationBounds(t *testing.T) {
	s := activeSession(t, 3)

	if err := s.Navigate(2); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if s.Current() != 2 {
		t.Errorf("cursor = %d, want 2", s.Current())
	}
	// Navigation back to an unanswered question is unrestricted.
	if err := s.Navigate(0); err != nil {
		t.Fatalf("navigate back: %v", err)
	}
	if err := s.Navigate(3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	if err := s.Navigate(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestSummaryOnlyWhenCompletedAndCachedOnce(t *testing.T) {
	s := activeSession(t, 2)

	if err := s.SetSummary("too early"); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}

	for idx := 0; idx < 2; idx++ {
		if _, err := s.Submit(idx, []int{0, 2}); err != nil {
			t.Fatalf("submit %d: %v", idx, err)
		}
	}

	if err := s.SetSummary("first"); err != nil {
		t.Fatalf("set summary: %v", err)
	}
	if err := s.SetSummary("second"); err != nil {
		t.Fatalf("second set summary: %v", err)
	}
	if got, ok := s.Summary(); !ok || got != "first" {
		t.Errorf("summary = %q, %v; want cached first value", got, ok)
	}
}

func TestDifficultyFixedWhileQuizActive(t *testing.T) {
	s := New()
	if err := s.SetDifficulty(models.DifficultyHard); err != nil {
		t.Fatalf("set difficulty: %v", err)
	}
	s.InstallQuiz(makeQuiz(1))
	if err := s.SetDifficulty(models.DifficultyEasy); !errors.Is(err, ErrQuizActive) {
		t.Errorf("expected ErrQuizActive, got %v", err)
	}
}

func TestResetKeepsDocumentAndDifficulty(t *testing.T) {
	s := New()
	doc := &models.ExtractedDocument{Text: "course"}
	s.SetDocument(doc)
	if err := s.SetDifficulty(models.DifficultyHard); err != nil {
		t.Fatalf("set difficulty: %v", err)
	}
	quiz := makeQuiz(1)
	quiz.Difficulty = models.DifficultyHard
	s.InstallQuiz(quiz)
	if _, err := s.Submit(0, []int{0, 2}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.SetSummary("done"); err != nil {
		t.Fatalf("set summary: %v", err)
	}

	s.Reset()

	if s.Quiz() != nil {
		t.Error("quiz should be discarded")
	}
	if s.Document() != doc {
		t.Error("extracted document should be retained")
	}
	if s.Difficulty() != models.DifficultyHard {
		t.Errorf("difficulty = %q, want hard", s.Difficulty())
	}
	if _, ok := s.Summary(); ok {
		t.Error("summary should be cleared")
	}
	if s.Completed() {
		t.Error("completion flag should be cleared")
	}
}

func TestInstallQuizReplacesWholesale(t *testing.T) {
	s := activeSession(t, 2)
	if _, err := s.Submit(0, []int{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	s.InstallQuiz(makeQuiz(2))

	if s.IsSubmitted(0) {
		t.Error("submissions from prior quiz must not carry over")
	}
	if s.Current() != 0 {
		t.Errorf("cursor = %d, want 0", s.Current())
	}
}

func TestResultsRequireCompletion(t *testing.T) {
	s := activeSession(t, 2)
	if _, err := s.Results(); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}

	if _, err := s.Submit(0, []int{0, 2}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Submit(1, []int{3}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	results, err := s.Results()
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if !results[0].Correct {
		t.Error("exact correct set should grade correct")
	}
	if results[1].Correct {
		t.Error("wrong selection should grade incorrect")
	}
}
