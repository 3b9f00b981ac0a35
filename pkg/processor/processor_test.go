package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jxucoder/latexgen/pkg/compiler"
	"github.com/jxucoder/latexgen/pkg/generator"
)

const doc = "\\documentclass{article}\\begin{document}x\\end{document}"

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(_ context.Context, _, _ string) (string, error) {
	return f.response, f.err
}

// fakeCompiler writes a placeholder PDF to the requested output path.
type fakeCompiler struct {
	err      error
	source   string
	compiled []string
}

func (f *fakeCompiler) Compile(_ context.Context, source string, opts compiler.Options) (*compiler.Result, error) {
	f.source = source
	if f.err != nil {
		return &compiler.Result{Log: "FINAL ERROR: boom"}, f.err
	}
	if err := os.WriteFile(opts.OutputPath, []byte("%PDF-1.4"), 0o644); err != nil {
		return &compiler.Result{}, err
	}
	f.compiled = append(f.compiled, opts.OutputPath)
	return &compiler.Result{PDFPath: opts.OutputPath, Log: "SUCCESS", Success: true, Engine: "pdflatex"}, nil
}

func (f *fakeCompiler) CompileFile(ctx context.Context, texPath, _ string) (*compiler.Result, error) {
	data, err := os.ReadFile(texPath)
	if err != nil {
		return &compiler.Result{Log: err.Error()}, err
	}
	out := strings.TrimSuffix(texPath, ".tex") + ".pdf"
	return f.Compile(ctx, string(data), compiler.Options{OutputPath: out})
}

func newProcessor(t *testing.T, llmErr error, compErr error) (*Processor, *fakeCompiler, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "out")
	comp := &fakeCompiler{err: compErr}
	gen := generator.New(&fakeLLM{response: "```latex\n" + doc + "\n```", err: llmErr}, "")
	p, err := New(gen, comp, dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, comp, dir
}

// ---------------------------------------------------------------------------
// GenerateAndCompile
// ---------------------------------------------------------------------------

func TestNew_CreatesOutputDir(t *testing.T) {
	_, _, dir := newProcessor(t, nil, nil)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		t.Fatalf("output dir not created: %v", err)
	}
}

func TestGenerateAndCompile_Success(t *testing.T) {
	p, comp, dir := newProcessor(t, nil, nil)

	res := p.GenerateAndCompile(context.Background(), generator.Request{Prompt: "a letter"}, Output{Filename: "letter"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.TeXPath != filepath.Join(dir, "letter.tex") || res.PDFPath != filepath.Join(dir, "letter.pdf") {
		t.Errorf("paths = %q, %q", res.TeXPath, res.PDFPath)
	}
	tex, err := os.ReadFile(res.TeXPath)
	if err != nil || string(tex) != doc {
		t.Errorf("tex file = %q, %v", tex, err)
	}
	if comp.source != doc {
		t.Errorf("compiled source = %q", comp.source)
	}
	if res.Engine != "pdflatex" || res.Log != "SUCCESS" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestGenerateAndCompile_SkipTeX(t *testing.T) {
	p, _, dir := newProcessor(t, nil, nil)

	res := p.GenerateAndCompile(context.Background(), generator.Request{Prompt: "x"}, Output{Filename: "x", SkipTeX: true})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.TeXPath != "" {
		t.Errorf("TeXPath = %q, want empty", res.TeXPath)
	}
	if _, err := os.Stat(filepath.Join(dir, "x.tex")); !os.IsNotExist(err) {
		t.Error(".tex file should not be written")
	}
}

func TestGenerateAndCompile_DefaultFilename(t *testing.T) {
	p, comp, _ := newProcessor(t, nil, nil)
	req := generator.Request{Prompt: "quarterly report"}

	res := p.GenerateAndCompile(context.Background(), req, Output{})
	want := DefaultFilename(req) + ".pdf"
	if filepath.Base(res.PDFPath) != want {
		t.Errorf("pdf = %q, want %q", filepath.Base(res.PDFPath), want)
	}
	if len(comp.compiled) != 1 {
		t.Errorf("compiled %d times", len(comp.compiled))
	}
}

func TestGenerateAndCompile_GenerationFailure(t *testing.T) {
	p, comp, _ := newProcessor(t, errors.New("rate limited"), nil)

	res := p.GenerateAndCompile(context.Background(), generator.Request{Prompt: "x"}, Output{})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.HasPrefix(res.Error, "LaTeX generation failed: ") || !strings.Contains(res.Error, "rate limited") {
		t.Errorf("Error = %q", res.Error)
	}
	if res.Stage != StageGenerate {
		t.Errorf("Stage = %q, want %q", res.Stage, StageGenerate)
	}
	if res.LaTeX != "" || res.TeXPath != "" || res.PDFPath != "" {
		t.Errorf("no artifacts expected: %+v", res)
	}
	if comp.source != "" {
		t.Error("compiler should not run")
	}
}

func TestGenerateAndCompile_CompilationFailure(t *testing.T) {
	p, _, _ := newProcessor(t, nil, compiler.ErrAllEnginesFailed)

	res := p.GenerateAndCompile(context.Background(), generator.Request{Prompt: "x"}, Output{Filename: "bad"})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.HasPrefix(res.Error, "LaTeX compilation failed: ") {
		t.Errorf("Error = %q", res.Error)
	}
	if res.Stage != StageCompile {
		t.Errorf("Stage = %q, want %q", res.Stage, StageCompile)
	}
	if res.LaTeX != doc || res.TeXPath == "" {
		t.Errorf("LaTeX and TeXPath should be kept: %+v", res)
	}
	if res.Log == "" || res.PDFPath != "" {
		t.Errorf("expected log and no PDF: %+v", res)
	}
}

// ---------------------------------------------------------------------------
// Other operations
// ---------------------------------------------------------------------------

func TestGenerateLaTeX(t *testing.T) {
	p, comp, _ := newProcessor(t, nil, nil)
	latex, err := p.GenerateLaTeX(context.Background(), generator.Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("GenerateLaTeX: %v", err)
	}
	if latex != doc {
		t.Errorf("latex = %q", latex)
	}
	if comp.source != "" {
		t.Error("compiler should not run")
	}
}

func TestCompileExisting(t *testing.T) {
	p, _, _ := newProcessor(t, nil, nil)
	texPath := filepath.Join(t.TempDir(), "paper.tex")
	os.WriteFile(texPath, []byte(doc), 0o644)

	res := p.CompileExisting(context.Background(), texPath)
	if !res.Success || !strings.HasSuffix(res.PDFPath, "paper.pdf") {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestCompileExisting_Failure(t *testing.T) {
	p, _, _ := newProcessor(t, nil, nil)
	res := p.CompileExisting(context.Background(), filepath.Join(t.TempDir(), "missing.tex"))
	if res.Success || !strings.HasPrefix(res.Error, "Compilation failed: ") {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestDefaultFilename(t *testing.T) {
	plain := DefaultFilename(generator.Request{Prompt: "cv"})
	custom := DefaultFilename(generator.Request{Prompt: "cv", Options: &generator.Options{}})

	if !strings.HasPrefix(plain, "document_") || len(plain) != len("document_")+8 {
		t.Errorf("plain = %q", plain)
	}
	if !strings.HasPrefix(custom, "custom_document_") {
		t.Errorf("custom = %q", custom)
	}
	if plain != DefaultFilename(generator.Request{Prompt: "cv"}) {
		t.Error("filename should be stable for the same prompt")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report":           "report",
		"report.tex":       "report",
		"report.PDF":       "report",
		"v1.2":             "v1.2",
		"../../etc/passwd": "passwd",
		"  ":               "document",
		"..":               "document",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
