package session

import (
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"mediqcm/internal/models"
)

// ReviewItem is a suggested revision date for one question, scheduled with
// FSRS: missed questions come back sooner than perfectly answered ones.
type ReviewItem struct {
	QuestionIndex int       `json:"question_index"`
	Prompt        string    `json:"prompt"`
	Correct       bool      `json:"correct"`
	Due           time.Time `json:"due"`
}

// PlanReview builds a review schedule for a completed session. Each question
// starts as a new card and is rated from the session outcome: a perfect
// answer rates Good, anything else rates Again.
func PlanReview(results []models.QuestionResult, now time.Time) []ReviewItem {
	params := fsrs.DefaultParam()

	items := make([]ReviewItem, 0, len(results))
	for _, res := range results {
		rating := fsrs.Again
		if res.Correct {
			rating = fsrs.Good
		}
		scheduling := params.Repeat(fsrs.Card{}, now)
		items = append(items, ReviewItem{
			QuestionIndex: res.Index,
			Prompt:        res.Question.Prompt,
			Correct:       res.Correct,
			Due:           scheduling[rating].Card.Due,
		})
	}
	return items
}
