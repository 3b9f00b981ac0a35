// Package httpapi exposes document generation, compilation and editing
// sessions over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/jxucoder/latexgen/pkg/compiler"
	"github.com/jxucoder/latexgen/pkg/editor"
	"github.com/jxucoder/latexgen/pkg/eventbus"
	"github.com/jxucoder/latexgen/pkg/generator"
	"github.com/jxucoder/latexgen/pkg/model"
	"github.com/jxucoder/latexgen/pkg/pdfinfo"
	"github.com/jxucoder/latexgen/pkg/processor"
	"github.com/jxucoder/latexgen/pkg/store"
)

// Compiler compiles raw LaTeX and reports installed engines.
type Compiler interface {
	Compile(ctx context.Context, source string, opts compiler.Options) (*compiler.Result, error)
	AvailableEngines(ctx context.Context) []string
}

// Deps are the collaborators the API is built from.
type Deps struct {
	Processor *processor.Processor
	Compiler  Compiler
	Editor    *editor.Editor
	Store     store.SessionStore
	Bus       eventbus.Bus
	Logger    zerolog.Logger
}

// Server serves the HTTP API.
type Server struct {
	deps   Deps
	logger zerolog.Logger
	router chi.Router
}

// New builds the router.
func New(deps Deps) *Server {
	s := &Server{deps: deps, logger: deps.Logger}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", addr).Msg("latexgen API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			// LLM calls plus two engine passes can take several minutes.
			r.Use(middleware.Timeout(10 * time.Minute))
			r.Post("/generate", s.handleGenerate)
			r.Post("/latex", s.handleLaTeX)
			r.Post("/compile", s.handleCompile)
			r.Post("/sessions", s.handleCreateSession)
			r.Post("/sessions/{id}/modify", s.handleModify)
			r.Post("/sessions/{id}/revert", s.handleRevert)
			r.Post("/sessions/{id}/compile", s.handleCompileSession)
		})
		r.Get("/engines", s.handleEngines)
		r.Get("/documents/{name}", s.handleDocument)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/versions", s.handleVersions)
		r.Get("/sessions/{id}/pdf", s.handleSessionPDF)
		r.Get("/sessions/{id}/events", s.handleSessionEvents)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return r
}

// --- Request/Response types ---

type generateRequest struct {
	Prompt   string             `json:"prompt"`
	Context  string             `json:"context,omitempty"`
	Options  *generator.Options `json:"options,omitempty"`
	Filename string             `json:"filename,omitempty"`
	SkipTeX  bool               `json:"skip_tex,omitempty"`
}

func (g generateRequest) request() generator.Request {
	return generator.Request{Prompt: g.Prompt, Context: g.Context, Options: g.Options}
}

type generateResponse struct {
	*processor.Result
	PDFURL string        `json:"pdf_url,omitempty"`
	PDF    *pdfinfo.Info `json:"pdf,omitempty"`
}

type latexResponse struct {
	LaTeX string `json:"latex"`
}

type compileRequest struct {
	LaTeX    string `json:"latex"`
	Filename string `json:"filename,omitempty"`
}

type compileResponse struct {
	*compiler.Result
	PDFURL string `json:"pdf_url,omitempty"`
}

type createSessionRequest struct {
	Prompt       string `json:"prompt"`
	Context      string `json:"context,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
	LaTeX        string `json:"latex,omitempty"`
}

type modifyRequest struct {
	Request string `json:"request"`
	Context string `json:"context,omitempty"`
}

type revertRequest struct {
	Version int `json:"version"`
}

type sessionCompileResponse struct {
	*editor.CompileResult
	PDFURL string `json:"pdf_url,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Stateless generation ---

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	res := s.deps.Processor.GenerateAndCompile(r.Context(), req.request(), processor.Output{
		Filename: req.Filename,
		SkipTeX:  req.SkipTeX,
	})
	resp := generateResponse{Result: res}
	if !res.Success {
		writeJSON(w, failedStageStatus(res.Stage), resp)
		return
	}
	resp.PDFURL = documentURL(res.PDFPath)
	if info, err := pdfinfo.Inspect(res.PDFPath); err == nil {
		resp.PDF = info
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLaTeX(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	latex, err := s.deps.Processor.GenerateLaTeX(r.Context(), req.request())
	if err != nil {
		s.logger.Error().Err(err).Msg("generating LaTeX")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, latexResponse{LaTeX: latex})
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.LaTeX) == "" {
		writeError(w, http.StatusBadRequest, "latex is required")
		return
	}

	name := req.Filename
	if name == "" {
		name = processor.DefaultFilename(generator.Request{Prompt: req.LaTeX})
	}
	out := filepath.Join(s.deps.Processor.OutputDir(), processor.SanitizeFilename(name)+".pdf")

	res, err := s.deps.Compiler.Compile(r.Context(), req.LaTeX, compiler.Options{OutputPath: out})
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, compileResponse{Result: res})
		return
	}
	writeJSON(w, http.StatusOK, compileResponse{Result: res, PDFURL: documentURL(res.PDFPath)})
}

func (s *Server) handleEngines(w http.ResponseWriter, r *http.Request) {
	engines := s.deps.Compiler.AvailableEngines(r.Context())
	if engines == nil {
		engines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"engines": engines})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !strings.HasSuffix(name, ".pdf") {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	path := filepath.Join(s.deps.Processor.OutputDir(), processor.SanitizeFilename(name)+".pdf")
	servePDF(w, r, path)
}

// --- Editing sessions ---

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" && strings.TrimSpace(req.LaTeX) == "" {
		writeError(w, http.StatusBadRequest, "prompt or latex is required")
		return
	}

	latex := req.LaTeX
	if latex == "" {
		var err error
		latex, err = s.deps.Processor.GenerateLaTeX(r.Context(), generator.Request{Prompt: req.Prompt, Context: req.Context})
		if err != nil {
			s.logger.Error().Err(err).Msg("generating initial LaTeX")
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
	}

	name := req.DocumentName
	if name == "" {
		name = "document"
	}
	sess, err := s.deps.Editor.CreateSession(r.Context(), latex, name, req.Prompt)
	if err != nil {
		s.fail(w, err, "creating session")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Editor.List()
	if err != nil {
		s.fail(w, err, "listing sessions")
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Editor.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err, "getting session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.deps.Editor.History(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err, "listing versions")
		return
	}
	if versions == nil {
		versions = []*model.Version{}
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Request) == "" {
		writeError(w, http.StatusBadRequest, "request is required")
		return
	}

	v, err := s.deps.Editor.ApplyModification(r.Context(), chi.URLParam(r, "id"), req.Request, req.Context)
	if err != nil {
		s.fail(w, err, "applying modification")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	var req revertRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Version < 1 {
		writeError(w, http.StatusBadRequest, "version must be a positive number")
		return
	}

	v, err := s.deps.Editor.Revert(r.Context(), chi.URLParam(r, "id"), req.Version)
	if err != nil {
		s.fail(w, err, "reverting session")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleCompileSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.deps.Editor.CompileCurrent(r.Context(), id)
	if err != nil {
		s.fail(w, err, "compiling session")
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusUnprocessableEntity, sessionCompileResponse{CompileResult: res})
		return
	}
	writeJSON(w, http.StatusOK, sessionCompileResponse{
		CompileResult: res,
		PDFURL:        "/api/sessions/" + id + "/pdf?version=" + strconv.Itoa(res.Version),
	})
}

func (s *Server) handleSessionPDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cur, err := s.deps.Editor.Current(id)
	if err != nil {
		s.fail(w, err, "loading session")
		return
	}
	n := cur.Number
	if q := r.URL.Query().Get("version"); q != "" {
		n, err = strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid version")
			return
		}
	}
	v := model.Version{Number: n}
	servePDF(w, r, filepath.Join(s.deps.Editor.SessionPath(id), v.PDFName()))
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.deps.Store.GetSession(id); err != nil {
		s.fail(w, err, "getting session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Subscribe before replaying history so nothing falls in the gap.
	ch, cancel := s.deps.Bus.Subscribe(id)
	defer cancel()

	var lastID int64
	if after := r.Header.Get("Last-Event-ID"); after != "" {
		lastID, _ = strconv.ParseInt(after, 10, 64)
	}
	events, _ := s.deps.Store.GetEvents(id, lastID)
	for _, e := range events {
		writeSSE(w, e)
		lastID = e.ID
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.ID != 0 && event.ID <= lastID {
				continue
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

// --- Helpers ---

// fail maps domain errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, editor.ErrVersionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, generator.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, err.Error())
	case generator.IsProviderError(err):
		s.logger.Error().Err(err).Msg(action)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error().Err(err).Msg(action)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("%s failed", action))
	}
}

// failedStageStatus maps the stage a pipeline run stopped at to a status code.
func failedStageStatus(stage string) int {
	switch stage {
	case processor.StageGenerate:
		return http.StatusBadGateway
	case processor.StageCompile:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func documentURL(pdfPath string) string {
	return "/api/documents/" + filepath.Base(pdfPath)
}

func servePDF(w http.ResponseWriter, r *http.Request, path string) {
	if st, err := os.Stat(path); err != nil || st.IsDir() {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeSSE(w http.ResponseWriter, event *model.Event) {
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.ID, event.Type, string(data))
}

// requestLogger logs one line per request through zerolog.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
