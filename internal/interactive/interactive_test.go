package interactive

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jxucoder/latexgen/pkg/compiler"
	"github.com/jxucoder/latexgen/pkg/editor"
	"github.com/jxucoder/latexgen/pkg/eventbus"
	"github.com/jxucoder/latexgen/pkg/generator"
	"github.com/jxucoder/latexgen/pkg/processor"
	"github.com/jxucoder/latexgen/pkg/store/sqlite"
)

const doc = "\\documentclass{article}\\begin{document}v1\\end{document}"

type fakeModifier struct{ err error }

func (f *fakeModifier) Modify(_ context.Context, current, request, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return strings.Replace(current, "\\end{document}", request+"\\end{document}", 1), nil
}

type fakeCompiler struct{}

func (fakeCompiler) Compile(_ context.Context, _ string, opts compiler.Options) (*compiler.Result, error) {
	if err := os.WriteFile(opts.OutputPath, []byte("%PDF-1.4 stub"), 0o644); err != nil {
		return &compiler.Result{}, err
	}
	return &compiler.Result{PDFPath: opts.OutputPath, Success: true, Engine: "pdflatex"}, nil
}

type fakePipeline struct{ res *processor.Result }

func (f *fakePipeline) GenerateAndCompile(context.Context, generator.Request, processor.Output) *processor.Result {
	return f.res
}

type harness struct {
	ed     *editor.Editor
	mod    *fakeModifier
	out    *bytes.Buffer
	opened []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := &harness{mod: &fakeModifier{}, out: &bytes.Buffer{}}
	h.ed, err = editor.New(h.mod, fakeCompiler{}, st, eventbus.New(0), filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("editor.New: %v", err)
	}
	return h
}

func (h *harness) loop(input string, pipeline Pipeline) *Loop {
	return New(h.ed, pipeline,
		WithInput(strings.NewReader(input)),
		WithOutput(h.out),
		WithOpener(func(path string) error {
			h.opened = append(h.opened, path)
			return nil
		}),
	)
}

func (h *harness) session(t *testing.T) string {
	t.Helper()
	sess, err := h.ed.CreateSession(context.Background(), doc, "cv", "a cv")
	if err != nil {
		t.Fatal(err)
	}
	return sess.ID
}

func (h *harness) assertOutput(t *testing.T, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(h.out.String(), w) {
			t.Errorf("output missing %q\noutput:\n%s", w, h.out.String())
		}
	}
}

// ---------------------------------------------------------------------------
// Start / Resume
// ---------------------------------------------------------------------------

func TestStart_ModifyThenSatisfied(t *testing.T) {
	h := newHarness(t)
	pipeline := &fakePipeline{res: &processor.Result{Success: true, LaTeX: doc}}

	out, err := h.loop("1\nmake it red\nkeep it short\n2\nyes\n", pipeline).
		Start(context.Background(), "a cv", "My CV", "")
	if err != nil {
		t.Fatalf("Start: %v\n%s", err, h.out.String())
	}
	if out.FinalVersion != 2 || !strings.HasPrefix(out.SessionID, "my-cv-") {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if filepath.Base(out.FinalPDF) != "v2.pdf" {
		t.Errorf("final PDF = %q", out.FinalPDF)
	}
	if len(h.opened) != 2 {
		t.Errorf("opened %d PDFs, want 2", len(h.opened))
	}

	cur, err := h.ed.Current(out.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(cur.LaTeX, "make it red") {
		t.Errorf("modification not applied: %q", cur.LaTeX)
	}
	h.assertOutput(t, "Session created", "Document updated to version 2!", "EDITING SESSION COMPLETE")
}

func TestStart_GenerationFailure(t *testing.T) {
	h := newHarness(t)
	pipeline := &fakePipeline{res: &processor.Result{Error: "LaTeX generation failed: quota"}}

	_, err := h.loop("", pipeline).Start(context.Background(), "a cv", "", "")
	if err == nil || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("err = %v", err)
	}
	sessions, _ := h.ed.List()
	if len(sessions) != 0 {
		t.Errorf("no session should be created, got %d", len(sessions))
	}
}

func TestResume_NotFound(t *testing.T) {
	h := newHarness(t)
	if _, err := h.loop("", nil).Resume(context.Background(), "nope"); err == nil {
		t.Fatal("expected error")
	}
}

func TestResume_SaveAndExit(t *testing.T) {
	h := newHarness(t)
	id := h.session(t)

	out, err := h.loop("5\n", nil).Resume(context.Background(), id)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if out.SessionID != id || out.FinalVersion != 1 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	h.assertOutput(t, "Resuming interactive editing session", "Current Version: 1")
}

// ---------------------------------------------------------------------------
// Menu actions
// ---------------------------------------------------------------------------

func TestLoop_Cancel(t *testing.T) {
	h := newHarness(t)
	_, err := h.loop("6\n", nil).Resume(context.Background(), h.session(t))
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestLoop_EndOfInputCancels(t *testing.T) {
	h := newHarness(t)
	_, err := h.loop("", nil).Resume(context.Background(), h.session(t))
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestLoop_SatisfiedDeclinedKeepsEditing(t *testing.T) {
	h := newHarness(t)
	out, err := h.loop("2\nmaybe\nno\n5\n", nil).Resume(context.Background(), h.session(t))
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if out.FinalVersion != 1 {
		t.Errorf("version = %d", out.FinalVersion)
	}
	h.assertOutput(t, "Please enter 'yes' or 'no'.")
	if len(h.opened) != 2 {
		t.Errorf("PDF should be reopened after declining, opened %d", len(h.opened))
	}
}

func TestLoop_InvalidChoiceAndHistory(t *testing.T) {
	h := newHarness(t)
	_, err := h.loop("9\n3\n\n5\n", nil).Resume(context.Background(), h.session(t))
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	h.assertOutput(t,
		"Invalid choice. Please enter a number between 1-6.",
		"VERSION HISTORY",
		"Version 1: Initial version",
		"Press Enter to continue...",
	)
}

func TestLoop_ModifyRequiresText(t *testing.T) {
	h := newHarness(t)
	out, err := h.loop("1\n\nadd a photo\n\n5\n", nil).Resume(context.Background(), h.session(t))
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if out.FinalVersion != 2 {
		t.Errorf("version = %d, want 2", out.FinalVersion)
	}
	h.assertOutput(t, "Please describe the changes you want to make.")
}

func TestLoop_ModifyFailureKeepsVersion(t *testing.T) {
	h := newHarness(t)
	h.mod.err = errors.New("quota exceeded")

	out, err := h.loop("1\nadd a photo\n\n5\n", nil).Resume(context.Background(), h.session(t))
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if out.FinalVersion != 1 {
		t.Errorf("version = %d, want 1", out.FinalVersion)
	}
	h.assertOutput(t, "Failed to apply modifications", "quota exceeded")
}

func TestLoop_Revert(t *testing.T) {
	h := newHarness(t)
	id := h.session(t)
	if _, err := h.ed.ApplyModification(context.Background(), id, "extra", ""); err != nil {
		t.Fatal(err)
	}

	input := "4\n7\nabc\n1\nno\n1\nyes\n5\n"
	out, err := h.loop(input, nil).Resume(context.Background(), id)
	if err != nil {
		t.Fatalf("Resume: %v\n%s", err, h.out.String())
	}
	if out.FinalVersion != 3 {
		t.Errorf("version = %d, want 3", out.FinalVersion)
	}
	cur, _ := h.ed.Current(id)
	if cur.LaTeX != doc {
		t.Errorf("current LaTeX = %q, want version 1 content", cur.LaTeX)
	}
	h.assertOutput(t,
		"Invalid version number. Available versions: [1 2]",
		"Please enter a valid version number.",
		"You're about to revert to Version 1:",
		"Reverted to version 1!",
	)
}

func TestLoop_RevertCancelled(t *testing.T) {
	h := newHarness(t)
	out, err := h.loop("4\ncancel\n5\n", nil).Resume(context.Background(), h.session(t))
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if out.FinalVersion != 1 {
		t.Errorf("version = %d, want 1", out.FinalVersion)
	}
}

func TestLoop_OpenFailureIsReported(t *testing.T) {
	h := newHarness(t)
	l := New(h.ed, nil,
		WithInput(strings.NewReader("5\n")),
		WithOutput(h.out),
		WithOpener(func(string) error { return errors.New("no viewer") }),
	)
	if _, err := l.Resume(context.Background(), h.session(t)); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	h.assertOutput(t, "Failed to open PDF. Please check the file manually.")
}

// ---------------------------------------------------------------------------
// Viewer
// ---------------------------------------------------------------------------

func TestViewerCommand(t *testing.T) {
	tests := []struct {
		goos     string
		wantName string
		wantArgs []string
	}{
		{"linux", "xdg-open", []string{"a.pdf"}},
		{"darwin", "open", []string{"a.pdf"}},
		{"windows", "cmd", []string{"/c", "start", "", "a.pdf"}},
	}
	for _, tt := range tests {
		name, args := viewerCommand(tt.goos, "a.pdf")
		if name != tt.wantName || !reflect.DeepEqual(args, tt.wantArgs) {
			t.Errorf("viewerCommand(%q) = %s %v", tt.goos, name, args)
		}
	}
}

func TestOpenPDF_MissingFile(t *testing.T) {
	if err := OpenPDF(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Fatal("expected error")
	}
}
