// Package editor manages iterative editing sessions: a document is created
// once and then refined through natural-language modification requests,
// with every revision kept as a numbered version.
package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jxucoder/latexgen/pkg/compiler"
	"github.com/jxucoder/latexgen/pkg/eventbus"
	"github.com/jxucoder/latexgen/pkg/model"
	"github.com/jxucoder/latexgen/pkg/store"
)

// DefaultSessionDir is used when no session directory is configured.
const DefaultSessionDir = "editing_sessions"

const maxSlugLen = 40

// ErrVersionNotFound is returned when reverting to a version that does not exist.
var ErrVersionNotFound = errors.New("version not found")

// Modifier rewrites LaTeX according to a change request.
type Modifier interface {
	Modify(ctx context.Context, current, request, originalPrompt, extraContext string) (string, error)
}

// Compiler turns LaTeX into PDF.
type Compiler interface {
	Compile(ctx context.Context, source string, opts compiler.Options) (*compiler.Result, error)
}

// CompileResult is the outcome of compiling a session's current version.
type CompileResult struct {
	Version  int      `json:"version"`
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	PDFPath  string   `json:"pdf_path,omitempty"`
	Log      string   `json:"log,omitempty"`
	Engine   string   `json:"engine,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Editor coordinates the generator, compiler, store and event bus.
type Editor struct {
	gen    Modifier
	comp   Compiler
	store  store.SessionStore
	bus    eventbus.Bus
	dir    string
	logger zerolog.Logger

	locks sync.Map // session ID -> *sync.Mutex
}

// New creates an Editor rooted at sessionDir. bus may be nil.
func New(gen Modifier, comp Compiler, st store.SessionStore, bus eventbus.Bus, sessionDir string) (*Editor, error) {
	if sessionDir == "" {
		sessionDir = DefaultSessionDir
	}
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session dir: %w", err)
	}
	return &Editor{
		gen:    gen,
		comp:   comp,
		store:  st,
		bus:    bus,
		dir:    sessionDir,
		logger: zerolog.Nop(),
	}, nil
}

// WithLogger sets the logger.
func (e *Editor) WithLogger(logger zerolog.Logger) *Editor {
	e.logger = logger
	return e
}

// SessionPath returns the directory holding a session's vN.tex and vN.pdf files.
func (e *Editor) SessionPath(id string) string {
	return filepath.Join(e.dir, id)
}

// CreateSession starts a session with initialLaTeX as version 1.
func (e *Editor) CreateSession(ctx context.Context, initialLaTeX, documentName, prompt string) (*model.Session, error) {
	if strings.TrimSpace(initialLaTeX) == "" {
		return nil, errors.New("initial LaTeX is empty")
	}
	if documentName == "" {
		documentName = "document"
	}

	now := time.Now().UTC()
	sess := &model.Session{
		ID:             NewSessionID(documentName),
		DocumentName:   documentName,
		OriginalPrompt: prompt,
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	v := &model.Version{
		SessionID:         sess.ID,
		Number:            1,
		LaTeX:             initialLaTeX,
		ChangeDescription: "Initial version",
		CreatedAt:         now,
	}

	if err := e.writeTeX(v); err != nil {
		return nil, err
	}
	if err := e.store.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	if err := e.store.AddVersion(v); err != nil {
		return nil, fmt.Errorf("storing initial version: %w", err)
	}

	e.emit(sess.ID, model.EventStatus, "Session created")
	e.logger.Info().Str("session", sess.ID).Msg("editing session created")
	return sess, nil
}

// ApplyModification asks the model to change the current version and stores
// the result as a new version. On failure the session is left untouched.
func (e *Editor) ApplyModification(ctx context.Context, id, request, extraContext string) (*model.Version, error) {
	unlock := e.lock(id)
	defer unlock()

	sess, cur, err := e.current(id)
	if err != nil {
		return nil, err
	}

	e.emit(id, model.EventStatus, "Applying modification: "+request)
	latex, err := e.gen.Modify(ctx, cur.LaTeX, request, sess.OriginalPrompt, extraContext)
	if err != nil {
		e.emit(id, model.EventError, err.Error())
		return nil, fmt.Errorf("applying modification: %w", err)
	}

	v, err := e.appendVersion(sess, latex, request)
	if err != nil {
		e.emit(id, model.EventError, err.Error())
		return nil, err
	}
	e.emit(id, model.EventDone, fmt.Sprintf("Created version %d", v.Number))
	return v, nil
}

// Revert appends a new version whose content is a copy of version n.
func (e *Editor) Revert(ctx context.Context, id string, n int) (*model.Version, error) {
	unlock := e.lock(id)
	defer unlock()

	sess, err := e.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	target, err := e.store.GetVersion(id, n)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrVersionNotFound, n)
	}
	if err != nil {
		return nil, err
	}

	v, err := e.appendVersion(sess, target.LaTeX, fmt.Sprintf("Reverted to version %d", n))
	if err != nil {
		return nil, err
	}
	e.emit(id, model.EventDone, fmt.Sprintf("Reverted to version %d as version %d", n, v.Number))
	return v, nil
}

// CompileCurrent compiles the current version into <session>/v<N>.pdf.
func (e *Editor) CompileCurrent(ctx context.Context, id string) (*CompileResult, error) {
	_, cur, err := e.current(id)
	if err != nil {
		return nil, err
	}

	e.emit(id, model.EventStatus, fmt.Sprintf("Compiling version %d", cur.Number))
	out := filepath.Join(e.SessionPath(id), cur.PDFName())
	comp, err := e.comp.Compile(ctx, cur.LaTeX, compiler.Options{OutputPath: out})

	res := &CompileResult{Version: cur.Number}
	if comp != nil {
		res.Log = comp.Log
		res.Engine = comp.Engine
		res.Warnings = comp.Warnings
	}
	if err != nil {
		res.Error = "Compilation failed: " + err.Error()
		e.emit(id, model.EventError, res.Error)
		return res, nil
	}
	res.PDFPath = comp.PDFPath
	res.Success = true
	e.emit(id, model.EventDone, fmt.Sprintf("Compiled version %d", cur.Number))
	return res, nil
}

// Current returns the session's current version.
func (e *Editor) Current(id string) (*model.Version, error) {
	_, v, err := e.current(id)
	return v, err
}

// History returns every version of a session, oldest first.
func (e *Editor) History(id string) ([]*model.Version, error) {
	if _, err := e.store.GetSession(id); err != nil {
		return nil, err
	}
	return e.store.ListVersions(id)
}

// List returns all sessions.
func (e *Editor) List() ([]*model.Session, error) {
	return e.store.ListSessions()
}

// Get returns one session.
func (e *Editor) Get(id string) (*model.Session, error) {
	return e.store.GetSession(id)
}

func (e *Editor) current(id string) (*model.Session, *model.Version, error) {
	sess, err := e.store.GetSession(id)
	if err != nil {
		return nil, nil, err
	}
	v, err := e.store.GetVersion(id, sess.CurrentVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("loading current version: %w", err)
	}
	return sess, v, nil
}

func (e *Editor) appendVersion(sess *model.Session, latex, description string) (*model.Version, error) {
	v := &model.Version{
		SessionID:         sess.ID,
		Number:            sess.CurrentVersion + 1,
		LaTeX:             latex,
		ChangeDescription: description,
		CreatedAt:         time.Now().UTC(),
	}
	if err := e.writeTeX(v); err != nil {
		return nil, err
	}
	if err := e.store.AppendVersion(v); err != nil {
		return nil, fmt.Errorf("storing version %d: %w", v.Number, err)
	}
	sess.CurrentVersion = v.Number
	sess.UpdatedAt = v.CreatedAt
	return v, nil
}

func (e *Editor) writeTeX(v *model.Version) error {
	dir := e.SessionPath(v.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, v.TeXName()), []byte(v.LaTeX), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", v.TeXName(), err)
	}
	return nil
}

func (e *Editor) lock(id string) func() {
	m, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// emit persists an event and publishes it on the bus.
func (e *Editor) emit(sessionID, typ, data string) {
	ev := &model.Event{
		SessionID: sessionID,
		Type:      typ,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.AddEvent(ev); err != nil {
		e.logger.Warn().Err(err).Str("session", sessionID).Msg("failed to persist event")
	}
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

// NewSessionID returns "<slug>-<8 hex chars>" for a document name.
func NewSessionID(documentName string) string {
	return Slug(documentName) + "-" + uuid.NewString()[:8]
}

// Slug lowercases name and collapses runs of other characters into dashes.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.Trim(b.String(), "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "document"
	}
	return s
}
