// Package session holds the single in-memory quiz session: the state
// machine driving generate, answer, grade and summarize, plus the pure
// scoring functions over it. Transitions mutate the one State value in
// place and report errors rather than returning immutable snapshots;
// callers serialize access. Nothing here talks to the network, so the
// whole lifecycle is testable without an HTTP harness.
package session

import (
	"errors"
	"sort"

	"mediqcm/internal/models"
)

var (
	ErrNoDocument        = errors.New("no document has been extracted yet")
	ErrNoQuiz            = errors.New("no quiz is active")
	ErrQuizActive        = errors.New("a quiz is already active")
	ErrIndexOutOfRange   = errors.New("question index out of range")
	ErrInvalidSubmission = errors.New("select at least one option")
	ErrAlreadySubmitted  = errors.New("question was already submitted")
	ErrNotCompleted      = errors.New("session is not completed")
)

// State is the process-wide session. There is exactly one instance and one
// mutator; every user action runs to completion before the next is accepted.
type State struct {
	document   *models.ExtractedDocument
	difficulty models.Difficulty

	quiz      *models.Quiz
	current   int
	answers   map[int][]int
	submitted map[int]bool
	summary   string
	hasSumm   bool
}

// New returns an empty session at the NoQuiz state with the standard
// difficulty preselected.
func New() *State {
	return &State{
		difficulty: models.DifficultyStandard,
		answers:    map[int][]int{},
		submitted:  map[int]bool{},
	}
}

// SetDocument installs a freshly extracted document. Allowed at any point:
// a new upload starts over, discarding any active quiz.
func (s *State) SetDocument(doc *models.ExtractedDocument) {
	s.document = doc
	s.reset()
}

// Document returns the retained extracted document, or nil.
func (s *State) Document() *models.ExtractedDocument { return s.document }

// SetDifficulty selects the generation profile. Fixed once a quiz exists for
// the session.
func (s *State) SetDifficulty(d models.Difficulty) error {
	if s.quiz != nil {
		return ErrQuizActive
	}
	s.difficulty = d
	return nil
}

func (s *State) Difficulty() models.Difficulty { return s.difficulty }

// InstallQuiz replaces the whole quiz state: cursor to zero, answers,
// submissions and summary cleared. The quiz value is owned by the session
// and never mutated afterward.
func (s *State) InstallQuiz(quiz *models.Quiz) {
	s.reset()
	s.quiz = quiz
	s.difficulty = quiz.Difficulty
}

// Reset clears quiz progress while keeping the extracted document and the
// selected difficulty, re-entering NoQuiz so generation can run again.
func (s *State) Reset() { s.reset() }

func (s *State) reset() {
	s.quiz = nil
	s.current = 0
	s.answers = map[int][]int{}
	s.submitted = map[int]bool{}
	s.summary = ""
	s.hasSumm = false
}

// Quiz returns the active quiz, or nil in the NoQuiz state.
func (s *State) Quiz() *models.Quiz { return s.quiz }

// Len returns the number of questions in the active quiz.
func (s *State) Len() int {
	if s.quiz == nil {
		return 0
	}
	return len(s.quiz.Questions)
}

// Current returns the cursor position.
func (s *State) Current() int { return s.current }

// Navigate moves the cursor. Navigation is unrestricted within bounds; a
// submitted question is re-displayed read-only with its recorded answer.
func (s *State) Navigate(idx int) error {
	if s.quiz == nil {
		return ErrNoQuiz
	}
	if idx < 0 || idx >= len(s.quiz.Questions) {
		return ErrIndexOutOfRange
	}
	s.current = idx
	return nil
}

// Question returns the question at idx.
func (s *State) Question(idx int) (models.Question, error) {
	if s.quiz == nil {
		return models.Question{}, ErrNoQuiz
	}
	if idx < 0 || idx >= len(s.quiz.Questions) {
		return models.Question{}, ErrIndexOutOfRange
	}
	return s.quiz.Questions[idx], nil
}

// Submit finalizes the answer for one question. An empty selection is
// rejected with no state change; a second submit for the same index is a
// no-op error and the recorded answer stays immutable. Returns true when
// this submission completed the session.
func (s *State) Submit(idx int, selected []int) (bool, error) {
	if s.quiz == nil {
		return false, ErrNoQuiz
	}
	if idx < 0 || idx >= len(s.quiz.Questions) {
		return false, ErrIndexOutOfRange
	}
	if s.submitted[idx] {
		return false, ErrAlreadySubmitted
	}
	normalized := normalizeSelection(selected, len(s.quiz.Questions[idx].Options))
	if len(normalized) == 0 {
		return false, ErrInvalidSubmission
	}

	s.answers[idx] = normalized
	s.submitted[idx] = true
	return s.Completed(), nil
}

func normalizeSelection(selected []int, optionCount int) []int {
	seen := map[int]bool{}
	var out []int
	for _, i := range selected {
		if i < 0 || i >= optionCount || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// IsSubmitted reports whether the question at idx has been finalized.
func (s *State) IsSubmitted(idx int) bool { return s.submitted[idx] }

// Answer returns a copy of the recorded answer for idx, or nil if the
// question has not been submitted.
func (s *State) Answer(idx int) []int {
	ans, ok := s.answers[idx]
	if !ok {
		return nil
	}
	out := make([]int, len(ans))
	copy(out, ans)
	return out
}

// SubmittedCount returns how many questions have been finalized.
func (s *State) SubmittedCount() int { return len(s.submitted) }

// Completed is true iff every question index has been submitted.
func (s *State) Completed() bool {
	return s.quiz != nil && len(s.submitted) == len(s.quiz.Questions)
}

// SetSummary caches the end-of-session narrative. Only legal once the
// session is completed; the first value wins.
func (s *State) SetSummary(text string) error {
	if !s.Completed() {
		return ErrNotCompleted
	}
	if s.hasSumm {
		return nil
	}
	s.summary = text
	s.hasSumm = true
	return nil
}

// Summary returns the cached narrative and whether one has been set.
func (s *State) Summary() (string, bool) { return s.summary, s.hasSumm }

// Results returns the ordered (question, answer) pairs for a completed
// session, with correctness precomputed.
func (s *State) Results() ([]models.QuestionResult, error) {
	if !s.Completed() {
		return nil, ErrNotCompleted
	}
	results := make([]models.QuestionResult, 0, len(s.quiz.Questions))
	for idx, q := range s.quiz.Questions {
		selected := s.Answer(idx)
		results = append(results, models.QuestionResult{
			Index:    idx,
			Question: q,
			Selected: selected,
			Correct:  IsCorrect(q, selected),
		})
	}
	return results, nil
}
