package models

import (
	"strings"
	"time"
)

// FileKind identifies the two supported upload container formats.
type FileKind string

const (
	FileKindWord FileKind = "docx"
	FileKindPDF  FileKind = "pdf"
)

// KindForFilename maps an uploaded filename to a supported FileKind.
// Anything else is rejected before extraction.
func KindForFilename(name string) (FileKind, bool) {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".docx"):
		return FileKindWord, true
	case strings.HasSuffix(strings.ToLower(name), ".pdf"):
		return FileKindPDF, true
	}
	return "", false
}

// Difficulty selects one of the three fixed question generation profiles.
type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyStandard Difficulty = "standard"
	DifficultyHard     Difficulty = "hard"
)

// ParseDifficulty validates a user-supplied difficulty value.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyStandard, DifficultyHard:
		return Difficulty(s), true
	}
	return "", false
}

// DocumentImage is one embedded image, normalized and re-encoded for the
// LLM payload.
type DocumentImage struct {
	Data   []byte // encoded image bytes
	Format string // "jpeg" after normalization
}

// ExtractedDocument is the normalized output of document extraction.
// Created once by the extractor, consumed read-only afterward.
type ExtractedDocument struct {
	Text   string
	Images []DocumentImage
}

// Question is a single EDN-style multiple choice question. Options are
// referenced by index everywhere and must never be reordered after creation.
type Question struct {
	Prompt         string   `json:"question"`
	Options        []string `json:"options"`
	CorrectAnswers []int    `json:"correct_answers"`
	Explanation    string   `json:"explanation"`
}

// Quiz is an ordered set of questions, immutable once generated. A new quiz
// replaces the old one wholesale.
type Quiz struct {
	ID         string     `json:"id"`
	Difficulty Difficulty `json:"difficulty"`
	Questions  []Question `json:"questions"`
	CreatedAt  time.Time  `json:"created_at"`
}

// QuestionResult pairs a question with the answer recorded for it in a
// completed session.
type QuestionResult struct {
	Index    int      `json:"index"`
	Question Question `json:"question"`
	Selected []int    `json:"selected"`
	Correct  bool     `json:"correct"`
}
