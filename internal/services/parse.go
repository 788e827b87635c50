package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"mediqcm/internal/models"
)

// ErrMalformedResponse is returned when the service reply cannot be parsed
// into the expected quiz structure, or parses into an empty question list.
var ErrMalformedResponse = errors.New("malformed quiz response")

// expectedQuestionCount is a soft invariant: a different count is accepted
// but flagged.
const expectedQuestionCount = 10

// ExtractJSON removes markdown code block formatting if present and
// extracts the JSON object from the raw model output.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)

	// Remove markdown code blocks like ```json ... ``` or ``` ... ```
	if strings.HasPrefix(content, "```") {
		// Skip past the opening ``` and optional language identifier
		start := 3
		if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}

		if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
			content = content[start : start+endIdx]
		} else {
			// No closing ```, just take everything after the opening
			content = content[start:]
		}
	}

	content = strings.TrimSpace(content)

	// Additional safety: find the first { and last } to extract just the
	// JSON object
	if startIdx := strings.Index(content, "{"); startIdx != -1 {
		if endIdx := strings.LastIndex(content, "}"); endIdx != -1 && endIdx > startIdx {
			content = content[startIdx : endIdx+1]
		}
	}

	return strings.TrimSpace(content)
}

type quizPayload struct {
	Questions []models.Question `json:"questions"`
}

// ParseQuizResponse turns raw model output into a validated question list.
// Questions that violate the option or correct-index invariants are dropped
// and logged rather than clamped: a short quiz beats a silently wrong
// answer key. A response that yields no valid question at all fails with
// ErrMalformedResponse.
func ParseQuizResponse(raw string) ([]models.Question, error) {
	var payload quizPayload
	jsonStr := ExtractJSON(raw)
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	questions := make([]models.Question, 0, len(payload.Questions))
	for i, q := range payload.Questions {
		if err := validateQuestion(q); err != nil {
			log.Printf("rejecting question %d: %v", i+1, err)
			continue
		}
		questions = append(questions, q)
	}

	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no valid questions", ErrMalformedResponse)
	}
	return questions, nil
}

func validateQuestion(q models.Question) error {
	if strings.TrimSpace(q.Prompt) == "" {
		return errors.New("empty question text")
	}
	if len(q.Options) < 4 || len(q.Options) > 5 {
		return fmt.Errorf("expected 4-5 options, got %d", len(q.Options))
	}
	if len(q.CorrectAnswers) == 0 {
		return errors.New("no correct answers")
	}
	for _, idx := range q.CorrectAnswers {
		if idx < 0 || idx >= len(q.Options) {
			return fmt.Errorf("correct answer index %d out of range for %d options", idx, len(q.Options))
		}
	}
	return nil
}
