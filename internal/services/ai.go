package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"mediqcm/internal/models"
)

var (
	// ErrAIUnavailable is returned when the OpenAI integration is not configured.
	ErrAIUnavailable = errors.New("openai integration is not configured")
	// ErrGenerationFailed marks a user-retryable generation failure: the
	// service call failed or its response could not be parsed. No quiz is
	// installed in that case.
	ErrGenerationFailed = errors.New("quiz generation failed")
)

const (
	// maxPromptImages bounds images per generation request beyond the
	// extractor's own cap, to control request size.
	maxPromptImages = 5

	generateTimeout = 2 * time.Minute
	explainTimeout  = 45 * time.Second
)

// AIService talks to the LLM service for quiz generation, per-question
// feedback and the end-of-session summary. It never retries: failed calls
// are retryable by re-invoking the triggering user action.
type AIService struct {
	client *openai.Client
	model  string
	calls  *CallLog
}

func NewAIService(apiKey, model, apiEndpoint string, calls *CallLog) *AIService {
	if apiKey == "" {
		return &AIService{calls: calls}
	}

	cfg := openai.DefaultConfig(apiKey)
	if apiEndpoint != "" {
		cfg.BaseURL = apiEndpoint
	}

	return &AIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		calls:  calls,
	}
}

func (s *AIService) disabled() bool {
	return s.client == nil || s.model == ""
}

// Three fixed instruction profiles control the cognitive complexity of the
// generated questions.
var difficultyProfiles = map[models.Difficulty]string{
	models.DifficultyEasy: `Target foundational knowledge: direct questions on definitions,
classifications and first-line management. Avoid traps and multi-step clinical
reasoning. Suitable for early revision.`,
	models.DifficultyStandard: `Target standard EDN-level clinical reasoning: mix knowledge
questions with short clinical vignettes covering pathophysiology, diagnosis
and treatment. Typical fifth-year (DFASM) difficulty.`,
	models.DifficultyHard: `Target intensive exam preparation: complex clinical cases,
subtle distractors, atypical presentations and management dilemmas requiring
multi-step reasoning. Advanced difficulty.`,
}

const generationSystemPrompt = `You are an expert in medical education who writes EDN-style
multiple choice questions (the French national medical licensing format) for
fifth-year medical students. Your questions test deep understanding and
clinical reasoning, stay faithful to the provided course material, and avoid
ambiguity.

STRICT RULES:
- Exactly 10 questions
- 4 to 5 options per question
- Several correct options per question are the norm (typical of the EDN)
- Clear, precise wording
- Detailed pedagogical explanations`

// GenerateQuiz sends the extracted course plus a difficulty directive to
// the service and parses its reply into a quiz. A failed call, unparseable
// reply or empty question list returns ErrGenerationFailed so the caller
// can tell the user to retry; a parseable reply with a question count other
// than ten is installed anyway and flagged in the returned quiz.
func (s *AIService) GenerateQuiz(ctx context.Context, doc *models.ExtractedDocument, difficulty models.Difficulty) (*models.Quiz, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}

	instruction := fmt.Sprintf(`From the following medical course, generate 10 EDN-style
multiple choice questions.

DIFFICULTY PROFILE:
%s

COURSE:
%s

REQUIREMENTS:
1. Cover the whole course, varying question types
2. Make several options correct for each question
3. Provide detailed, pedagogical explanations

OUTPUT FORMAT (strict JSON):
{"questions":[{"question":"","options":["","","",""],"correct_answers":[0,2],"explanation":""}]}

IMPORTANT: respond ONLY with the JSON, no text before or after.`,
		difficultyProfiles[difficulty], doc.Text)

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: instruction},
	}
	for i, img := range doc.Images {
		if i >= maxPromptImages {
			break
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: fmt.Sprintf("data:image/%s;base64,%s", img.Format, base64.StdEncoding.EncodeToString(img.Data)),
			},
		})
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: generationSystemPrompt,
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		Temperature: 0.4,
		MaxTokens:   8192,
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	started := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	s.record(callKindGenerate, len(instruction), min(len(doc.Images), maxPromptImages), started, err)
	if err != nil {
		return nil, fmt.Errorf("%w: request quiz: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: service returned no choices", ErrGenerationFailed)
	}

	questions, err := ParseQuizResponse(resp.Choices[0].Message.Content)
	if err != nil {
		// Keep the raw response around for debugging
		fmt.Fprintf(os.Stderr, "Failed to parse quiz. Raw response:\n%s\n", resp.Choices[0].Message.Content)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(questions) != expectedQuestionCount {
		log.Printf("quiz generation: expected %d questions, got %d", expectedQuestionCount, len(questions))
	}

	return &models.Quiz{
		ID:         uuid.NewString(),
		Difficulty: difficulty,
		Questions:  questions,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// ExplainAnswer requests a concise pedagogical feedback for one submitted
// answer: which selections were correct, which were wrong, which correct
// options were missed. On any service failure it falls back to the
// question's stored explanation and never surfaces an error.
func (s *AIService) ExplainAnswer(ctx context.Context, q models.Question, selected []int) string {
	if s.disabled() {
		return fallbackExplanation(q)
	}

	prompt := buildFeedbackPrompt(q, selected)

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.4,
		MaxTokens:   1200,
	}

	ctx, cancel := context.WithTimeout(ctx, explainTimeout)
	defer cancel()

	started := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("service returned no choices")
	}
	s.record(callKindExplain, len(prompt), 0, started, err)
	if err != nil {
		log.Printf("feedback generation failed, using stored explanation: %v", err)
		return fallbackExplanation(q)
	}
	return resp.Choices[0].Message.Content
}

// SummarizeSession requests a holistic end-of-session narrative. On failure
// it falls back to a minimal deterministic summary of the score.
func (s *AIService) SummarizeSession(ctx context.Context, results []models.QuestionResult) string {
	correct := 0
	for _, r := range results {
		if r.Correct {
			correct++
		}
	}
	fallback := fmt.Sprintf("Score: %d/%d questions perfectly answered.", correct, len(results))

	if s.disabled() {
		return fallback
	}

	prompt := buildSummaryPrompt(results, correct)

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.5,
		MaxTokens:   1200,
	}

	ctx, cancel := context.WithTimeout(ctx, explainTimeout)
	defer cancel()

	started := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("service returned no choices")
	}
	s.record(callKindSummarize, len(prompt), 0, started, err)
	if err != nil {
		log.Printf("summary generation failed, using score fallback: %v", err)
		return fallback
	}
	return resp.Choices[0].Message.Content
}

func (s *AIService) record(kind callKind, promptChars, imageCount int, started time.Time, err error) {
	s.calls.Record(CallRecord{
		Kind:        kind,
		Model:       s.model,
		PromptChars: promptChars,
		ImageCount:  imageCount,
		Duration:    time.Since(started),
		Err:         err,
	})
}

func fallbackExplanation(q models.Question) string {
	if strings.TrimSpace(q.Explanation) != "" {
		return q.Explanation
	}
	return "Explanation not available."
}

func buildFeedbackPrompt(q models.Question, selected []int) string {
	correct := map[int]bool{}
	for _, i := range q.CorrectAnswers {
		correct[i] = true
	}
	chosen := map[int]bool{}
	for _, i := range selected {
		chosen[i] = true
	}

	var correctSelected, incorrectSelected, missed []string
	for i, opt := range q.Options {
		switch {
		case correct[i] && chosen[i]:
			correctSelected = append(correctSelected, opt)
		case !correct[i] && chosen[i]:
			incorrectSelected = append(incorrectSelected, opt)
		case correct[i] && !chosen[i]:
			missed = append(missed, opt)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nOptions:\n", q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(&b, "%d. %s\n", i, opt)
	}
	fmt.Fprintf(&b, "\nCorrectly selected: %s\n", joinOrNone(correctSelected))
	fmt.Fprintf(&b, "Incorrectly selected: %s\n", joinOrNone(incorrectSelected))
	fmt.Fprintf(&b, "Correct options missed: %s\n", joinOrNone(missed))
	b.WriteString(`
Write a concise, personalized and pedagogical feedback for a fifth-year
medical student that:
1. Acknowledges correct selections (if any)
2. Explains why the incorrect selections are wrong (if any)
3. Covers the missed correct options (if any)
4. Gives the complete medical reasoning

Be supportive but precise. Markdown format, at most 300 words.`)
	return b.String()
}

func buildSummaryPrompt(results []models.QuestionResult, correct int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `A fifth-year medical student just completed a %d-question EDN-style
quiz. Score: %d/%d questions perfectly answered.

RESULTS:
`, len(results), correct, len(results))

	for _, r := range results {
		status := "incorrect or incomplete"
		if r.Correct {
			status = "correct"
		}
		fmt.Fprintf(&b, "\nQuestion %d (%s): %s\n", r.Index+1, status, r.Question.Prompt)
		fmt.Fprintf(&b, "Expected: %s\n", joinOrNone(optionTexts(r.Question, r.Question.CorrectAnswers)))
		fmt.Fprintf(&b, "Given: %s\n", joinOrNone(optionTexts(r.Question, r.Selected)))
	}

	b.WriteString(`
Write a personalized, motivating study summary covering:
1. Overall performance (2-3 sentences)
2. Strengths
3. Weak areas with concrete revision suggestions
4. A word of encouragement matched to the score

Markdown format, at most 400 words.`)
	return b.String()
}

func optionTexts(q models.Question, indices []int) []string {
	var out []string
	for _, i := range indices {
		if i >= 0 && i < len(q.Options) {
			out = append(out, q.Options[i])
		}
	}
	return out
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
