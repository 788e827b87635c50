// Package export renders finished quizzes and session results as printable
// PDF documents.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"mediqcm/internal/models"
	"mediqcm/internal/session"
)

const (
	blankMarker   = "[ ]"
	checkedMarker = "[x]"
)

// QuizPDF renders the quiz for print. With withAnswers false the document
// never reveals correct options; with true every correct option carries a
// checked marker and each question is followed by its correct-option list
// and explanation.
func QuizPDF(quiz *models.Quiz, withAnswers bool) ([]byte, error) {
	pdf, tr := newDoc()

	variant := "Blank version - to fill in"
	if withAnswers {
		variant = "Answer key - revision document"
	}
	writeHeader(pdf, tr, "Medical MCQ - EDN", variant)

	for i, q := range quiz.Questions {
		correct := map[int]bool{}
		for _, idx := range q.CorrectAnswers {
			correct[idx] = true
		}

		pdf.SetFont("Helvetica", "B", 12)
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("Question %d", i+1)), "", "L", false)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr(q.Prompt), "", "L", false)
		pdf.Ln(2)

		for j, opt := range q.Options {
			marker := blankMarker
			style := ""
			if withAnswers && correct[j] {
				marker = checkedMarker
				style = "B"
			}
			pdf.SetFont("Helvetica", style, 11)
			pdf.MultiCell(0, 6, tr(fmt.Sprintf("  %s %s", marker, opt)), "", "L", false)
		}

		if withAnswers {
			pdf.Ln(2)
			pdf.SetFont("Helvetica", "B", 10)
			pdf.MultiCell(0, 5, tr("Correct answer(s): "+strings.Join(optionTexts(q, q.CorrectAnswers), ", ")), "", "L", false)
			pdf.SetFont("Helvetica", "I", 10)
			explanation := q.Explanation
			if strings.TrimSpace(explanation) == "" {
				explanation = "Not available"
			}
			pdf.MultiCell(0, 5, tr("Explanation: "+explanation), "", "L", false)
		}
		pdf.Ln(6)
	}

	return output(pdf)
}

// ResultsPDF renders a completed session: score, summary narrative,
// per-question breakdown with submitted and expected answers, and the
// suggested review dates.
func ResultsPDF(results []models.QuestionResult, summary string, plan []session.ReviewItem) ([]byte, error) {
	pdf, tr := newDoc()
	writeHeader(pdf, tr, "MCQ Session Results", "")

	correct := 0
	for _, r := range results {
		if r.Correct {
			correct++
		}
	}
	pdf.SetFont("Helvetica", "B", 14)
	percent := 0
	if len(results) > 0 {
		percent = correct * 100 / len(results)
	}
	pdf.MultiCell(0, 7, tr(fmt.Sprintf("Score: %d/%d (%d%%)", correct, len(results), percent)), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.MultiCell(0, 6, tr("Personalized summary"), "", "L", false)
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range strings.Split(summary, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 12)
	pdf.MultiCell(0, 6, tr("Answer breakdown"), "", "L", false)
	pdf.Ln(2)

	for _, r := range results {
		status := "Incorrect"
		if r.Correct {
			status = "Correct"
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("%s - Question %d: %s", status, r.Index+1, r.Question.Prompt)), "", "L", false)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr("Your answers: "+joinOrNone(optionTexts(r.Question, r.Selected))), "", "L", false)
		pdf.MultiCell(0, 5, tr("Expected answers: "+joinOrNone(optionTexts(r.Question, r.Question.CorrectAnswers))), "", "L", false)
		pdf.Ln(4)
	}

	if len(plan) > 0 {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.MultiCell(0, 6, tr("Suggested review schedule"), "", "L", false)
		pdf.SetFont("Helvetica", "", 10)
		for _, item := range plan {
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("Question %d: review on %s", item.QuestionIndex+1, item.Due.Format("2006-01-02"))), "", "L", false)
		}
	}

	return output(pdf)
}

func newDoc() (*fpdf.Fpdf, func(string) string) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	// Core fonts are cp1252; the translator maps French accented text.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	return pdf, tr
}

func writeHeader(pdf *fpdf.Fpdf, tr func(string) string, title, subtitle string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, tr(title), "", "C", false)
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, tr("Generated on "+time.Now().Format("2006-01-02 15:04")), "", "C", false)
	if subtitle != "" {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, 5, tr(subtitle), "", "C", false)
	}
	pdf.Ln(6)
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
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
