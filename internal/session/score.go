package session

import "mediqcm/internal/models"

// IsCorrect reports whether the submitted indices exactly match the
// question's correct set. No partial credit: any omission or extra
// selection is incorrect.
func IsCorrect(q models.Question, selected []int) bool {
	if len(selected) != len(uniq(q.CorrectAnswers)) {
		return false
	}
	want := map[int]bool{}
	for _, i := range q.CorrectAnswers {
		want[i] = true
	}
	seen := map[int]bool{}
	for _, i := range selected {
		if !want[i] || seen[i] {
			return false
		}
		seen[i] = true
	}
	return len(seen) == len(want)
}

// Score computes the aggregate (perfect answers, quiz length) over the
// session's recorded answers. Unanswered questions count as incorrect.
func Score(s *State) (correct, total int) {
	if s.quiz == nil {
		return 0, 0
	}
	total = len(s.quiz.Questions)
	for idx, q := range s.quiz.Questions {
		if IsCorrect(q, s.Answer(idx)) {
			correct++
		}
	}
	return correct, total
}

func uniq(values []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
