package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"mediqcm/internal/export"
	"mediqcm/internal/extract"
	"mediqcm/internal/models"
	"mediqcm/internal/services"
	"mediqcm/internal/session"
)

const maxUploadBytes = 32 << 20 // 32 MB

// Server exposes the quiz session over HTTP. The session is single-user:
// a mutex serializes actions so each one runs to completion before the
// next is accepted.
type Server struct {
	mux   *http.ServeMux
	ai    *services.AIService
	state *session.State
	mu    sync.Mutex
}

func NewServer(ai *services.AIService, state *session.State) *Server {
	s := &Server{
		mux:   http.NewServeMux(),
		ai:    ai,
		state: state,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/document", s.handleUploadDocument)
	s.mux.HandleFunc("/api/session", s.handleSession)
	s.mux.HandleFunc("/api/session/difficulty", s.handleSetDifficulty)
	s.mux.HandleFunc("/api/quiz", s.handleQuiz)
	s.mux.HandleFunc("/api/quiz/regenerate", s.handleRegenerate)
	s.mux.HandleFunc("/api/questions/", s.handleQuestionActions)
	s.mux.HandleFunc("/api/results", s.handleResults)
	s.mux.HandleFunc("/api/export/quiz", s.handleExportQuiz)
	s.mux.HandleFunc("/api/export/results", s.handleExportResults)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUploadDocument accepts a .docx or .pdf upload, extracts it and
// retains it for generation. Unsupported kinds are rejected before
// extraction; a new upload discards any active quiz.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	kind, ok := models.KindForFilename(header.Filename)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported file type: upload a .docx or .pdf document")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload")
		return
	}
	if len(data) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	doc, err := extract.Extract(data, kind)
	if err != nil {
		// Extraction failures need a different remediation than generation
		// failures: the user must re-upload a readable document.
		writeError(w, http.StatusUnprocessableEntity, "could not extract the document, try re-uploading it: "+err.Error())
		return
	}

	s.mu.Lock()
	s.state.SetDocument(doc)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"name":   header.Filename,
		"kind":   kind,
		"chars":  len(doc.Text),
		"images": len(doc.Images),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp := map[string]any{
		"difficulty":  s.state.Difficulty(),
		"hasDocument": s.state.Document() != nil,
		"hasQuiz":     s.state.Quiz() != nil,
		"completed":   s.state.Completed(),
	}
	if quiz := s.state.Quiz(); quiz != nil {
		submitted := make([]bool, s.state.Len())
		for i := range submitted {
			submitted[i] = s.state.IsSubmitted(i)
		}
		resp["quizId"] = quiz.ID
		resp["questionCount"] = s.state.Len()
		resp["currentIndex"] = s.state.Current()
		resp["submitted"] = submitted
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetDifficulty(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var body struct {
		Difficulty string `json:"difficulty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	difficulty, ok := models.ParseDifficulty(body.Difficulty)
	if !ok {
		writeError(w, http.StatusBadRequest, "difficulty must be easy, standard or hard")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.SetDifficulty(difficulty); err != nil {
		writeError(w, http.StatusConflict, "difficulty is fixed while a quiz is active")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"difficulty": difficulty})
}

// handleQuiz generates a quiz from the retained document (POST) or returns
// the active quiz without its answer key (GET).
func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleQuizOverview(w, r)
	case http.MethodPost:
		s.generateQuiz(w, r, false)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	s.generateQuiz(w, r, true)
}

func (s *Server) generateQuiz(w http.ResponseWriter, r *http.Request, regenerate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.state.Document()
	if doc == nil {
		writeError(w, http.StatusConflict, "upload a document before generating a quiz")
		return
	}
	// A fresh generation may reselect the difficulty; regeneration keeps it
	// fixed. The prior quiz stays untouched until generation succeeds, so a
	// failed call never installs a partial quiz or loses session state.
	difficulty := s.state.Difficulty()
	if !regenerate {
		var body struct {
			Difficulty string `json:"difficulty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Difficulty != "" {
			parsed, ok := models.ParseDifficulty(body.Difficulty)
			if !ok {
				writeError(w, http.StatusBadRequest, "difficulty must be easy, standard or hard")
				return
			}
			difficulty = parsed
		}
	}

	quiz, err := s.ai.GenerateQuiz(r.Context(), doc, difficulty)
	if err != nil {
		// No partial quiz is installed; the action is retryable as-is.
		switch {
		case errors.Is(err, services.ErrAIUnavailable):
			writeError(w, http.StatusServiceUnavailable, "LLM service is not configured")
		default:
			writeError(w, http.StatusBadGateway, "quiz generation failed, please retry")
		}
		return
	}

	s.state.InstallQuiz(quiz)

	writeJSON(w, http.StatusOK, map[string]any{
		"quizId":        quiz.ID,
		"difficulty":    quiz.Difficulty,
		"questionCount": len(quiz.Questions),
		"countMismatch": len(quiz.Questions) != 10,
	})
}

// handleQuizOverview lists prompts and option counts. Correct answers are
// never included while the session is running.
func (s *Server) handleQuizOverview(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quiz := s.state.Quiz()
	if quiz == nil {
		writeError(w, http.StatusConflict, "no quiz is active")
		return
	}

	type questionOverview struct {
		Index     int    `json:"index"`
		Prompt    string `json:"prompt"`
		Options   int    `json:"options"`
		Submitted bool   `json:"submitted"`
	}
	overview := make([]questionOverview, 0, len(quiz.Questions))
	for i, q := range quiz.Questions {
		overview = append(overview, questionOverview{
			Index:     i,
			Prompt:    q.Prompt,
			Options:   len(q.Options),
			Submitted: s.state.IsSubmitted(i),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quizId":     quiz.ID,
		"difficulty": quiz.Difficulty,
		"questions":  overview,
	})
}

// handleQuestionActions routes /api/questions/{idx} and
// /api/questions/{idx}/answer.
func (s *Server) handleQuestionActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/questions/")
	idxPart, action, _ := strings.Cut(rest, "/")
	idx, err := strconv.Atoi(idxPart)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid question index")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.handleQuestionView(w, r, idx)
	case "answer":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.handleSubmitAnswer(w, r, idx)
	default:
		writeError(w, http.StatusNotFound, "unknown question action")
	}
}

// handleQuestionView shows one question and moves the cursor to it. For a
// submitted question, the recorded answer is re-displayed read-only and the
// feedback text is regenerated on every view (freshness over cost).
func (s *Server) handleQuestionView(w http.ResponseWriter, r *http.Request, idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.Navigate(idx); err != nil {
		writeSessionError(w, err)
		return
	}
	q, _ := s.state.Question(idx)

	resp := map[string]any{
		"index":     idx,
		"prompt":    q.Prompt,
		"options":   q.Options,
		"submitted": s.state.IsSubmitted(idx),
	}
	if s.state.IsSubmitted(idx) {
		selected := s.state.Answer(idx)
		resp["selected"] = selected
		resp["correct"] = session.IsCorrect(q, selected)
		resp["feedback"] = s.ai.ExplainAnswer(r.Context(), q, selected)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSubmitAnswer finalizes one answer and returns correctness plus
// feedback. The feedback call runs exactly once per submission.
func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request, idx int) {
	var body struct {
		Selected []int `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	completed, err := s.state.Submit(idx, body.Selected)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	q, _ := s.state.Question(idx)
	selected := s.state.Answer(idx)

	writeJSON(w, http.StatusOK, map[string]any{
		"index":     idx,
		"selected":  selected,
		"correct":   session.IsCorrect(q, selected),
		"feedback":  s.ai.ExplainAnswer(r.Context(), q, selected),
		"completed": completed,
	})
}

// handleResults reports the completed session: score, breakdown, the cached
// summary (computed once per session) and the FSRS review schedule.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := s.state.Results()
	if err != nil {
		writeSessionError(w, err)
		return
	}

	summary, ok := s.state.Summary()
	if !ok {
		summary = s.ai.SummarizeSession(r.Context(), results)
		if err := s.state.SetSummary(summary); err != nil {
			log.Printf("cache summary: %v", err)
		}
	}

	correct, total := session.Score(s.state)
	writeJSON(w, http.StatusOK, map[string]any{
		"score":      map[string]int{"correct": correct, "total": total},
		"summary":    summary,
		"results":    results,
		"reviewPlan": session.PlanReview(results, time.Now().UTC()),
	})
}

func (s *Server) handleExportQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	withAnswers := r.URL.Query().Get("answers") == "1"

	s.mu.Lock()
	quiz := s.state.Quiz()
	s.mu.Unlock()
	if quiz == nil {
		writeError(w, http.StatusConflict, "no quiz is active")
		return
	}

	data, err := export.QuizPDF(quiz, withAnswers)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	name := "mcq_blank.pdf"
	if withAnswers {
		name = "mcq_answer_key.pdf"
	}
	servePDF(w, name, data)
}

func (s *Server) handleExportResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	s.mu.Lock()
	results, err := s.state.Results()
	if err != nil {
		s.mu.Unlock()
		writeSessionError(w, err)
		return
	}
	// Exporting straight after the last answer still gets the narrative.
	summary, ok := s.state.Summary()
	if !ok {
		summary = s.ai.SummarizeSession(r.Context(), results)
		if err := s.state.SetSummary(summary); err != nil {
			log.Printf("cache summary: %v", err)
		}
	}
	s.mu.Unlock()

	data, err := export.ResultsPDF(results, summary, session.PlanReview(results, time.Now().UTC()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	servePDF(w, "mcq_results.pdf", data)
}

func servePDF(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidSubmission):
		writeError(w, http.StatusBadRequest, "select at least one option")
	case errors.Is(err, session.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, "this question was already submitted")
	case errors.Is(err, session.ErrIndexOutOfRange):
		writeError(w, http.StatusNotFound, "question index out of range")
	case errors.Is(err, session.ErrNoQuiz), errors.Is(err, session.ErrNoDocument):
		writeError(w, http.StatusConflict, "no quiz is active")
	case errors.Is(err, session.ErrNotCompleted):
		writeError(w, http.StatusConflict, "finish all questions first")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write json response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
