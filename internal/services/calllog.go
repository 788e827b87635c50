package services

import (
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
)

type callKind string

const (
	callKindGenerate  callKind = "generate"
	callKindExplain   callKind = "explain"
	callKindSummarize callKind = "summarize"
)

// CallRecord is one LLM interaction, kept for inspection. The log is
// observability only; nothing reads it back at runtime.
type CallRecord struct {
	Kind        callKind
	Model       string
	PromptChars int
	ImageCount  int
	Duration    time.Duration
	Err         error
}

// CallLog writes LLM call records to sqlite. A nil CallLog discards
// records, so the AI service works without a database in tests.
type CallLog struct {
	db *sql.DB
}

func NewCallLog(db *sql.DB) *CallLog {
	return &CallLog{db: db}
}

// Record stores one call. Best effort: a logging failure is itself logged
// and never interferes with the call it describes.
func (l *CallLog) Record(rec CallRecord) {
	if l == nil || l.db == nil {
		return
	}
	errText := ""
	ok := 1
	if rec.Err != nil {
		errText = rec.Err.Error()
		ok = 0
	}
	_, err := l.db.Exec(`
		INSERT INTO llm_calls (id, kind, model, prompt_chars, image_count, duration_ms, ok, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
	`,
		uuid.NewString(), string(rec.Kind), rec.Model, rec.PromptChars, rec.ImageCount,
		rec.Duration.Milliseconds(), ok, errText, time.Now().UTC(),
	)
	if err != nil {
		log.Printf("record llm call: %v", err)
	}
}
