// Package processor runs the prompt -> LaTeX -> PDF pipeline and writes the
// artifacts into an output directory.
package processor

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jxucoder/latexgen/pkg/compiler"
	"github.com/jxucoder/latexgen/pkg/generator"
)

// DefaultOutputDir is used when no output directory is configured.
const DefaultOutputDir = "output"

// Generator produces LaTeX from a request.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
}

// Compiler turns LaTeX into PDF.
type Compiler interface {
	Compile(ctx context.Context, source string, opts compiler.Options) (*compiler.Result, error)
	CompileFile(ctx context.Context, texPath, outputDir string) (*compiler.Result, error)
}

// Stages a failed Result can stop at.
const (
	StageGenerate = "generate"
	StageSave     = "save"
	StageCompile  = "compile"
)

// Result aggregates generation and compilation. Callers branch on Success.
type Result struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	Stage    string   `json:"stage,omitempty"` // set when Success is false
	LaTeX    string   `json:"latex,omitempty"`
	TeXPath  string   `json:"tex_path,omitempty"`
	PDFPath  string   `json:"pdf_path,omitempty"`
	Log      string   `json:"log,omitempty"`
	Engine   string   `json:"engine,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Output controls how artifacts are named and which are kept.
type Output struct {
	// Filename is the base name without extension. Derived from the prompt if empty.
	Filename string
	// SkipTeX disables writing the .tex file next to the PDF.
	SkipTeX bool
}

// Processor sequences a Generator and a Compiler.
type Processor struct {
	gen       Generator
	comp      Compiler
	outputDir string
	logger    zerolog.Logger
}

// New creates a Processor and makes sure outputDir exists.
func New(gen Generator, comp Compiler, outputDir string, logger zerolog.Logger) (*Processor, error) {
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &Processor{gen: gen, comp: comp, outputDir: outputDir, logger: logger}, nil
}

// OutputDir returns the directory artifacts are written to.
func (p *Processor) OutputDir() string { return p.outputDir }

// GenerateAndCompile generates LaTeX for req, optionally saves the .tex file
// and compiles it to <outputDir>/<name>.pdf.
func (p *Processor) GenerateAndCompile(ctx context.Context, req generator.Request, out Output) *Result {
	name := out.Filename
	if name == "" {
		name = DefaultFilename(req)
	}
	name = SanitizeFilename(name)
	logger := p.logger.With().Str("document", name).Logger()

	logger.Info().Msg("generating LaTeX")
	gen, err := p.gen.Generate(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("generation failed")
		return &Result{Error: "LaTeX generation failed: " + err.Error(), Stage: StageGenerate}
	}

	res := &Result{LaTeX: gen.LaTeX}
	texPath := filepath.Join(p.outputDir, name+".tex")
	pdfPath := filepath.Join(p.outputDir, name+".pdf")

	if !out.SkipTeX {
		if err := os.WriteFile(texPath, []byte(gen.LaTeX), 0o644); err != nil {
			res.Error = fmt.Sprintf("saving LaTeX: %v", err)
			res.Stage = StageSave
			return res
		}
		res.TeXPath = texPath
	}

	logger.Info().Msg("compiling LaTeX")
	comp, err := p.comp.Compile(ctx, gen.LaTeX, compiler.Options{OutputPath: pdfPath})
	if comp != nil {
		res.Log = comp.Log
		res.Engine = comp.Engine
		res.Warnings = comp.Warnings
	}
	if err != nil {
		logger.Error().Err(err).Msg("compilation failed")
		res.Error = "LaTeX compilation failed: " + err.Error()
		res.Stage = StageCompile
		return res
	}

	res.PDFPath = comp.PDFPath
	res.Success = true
	logger.Info().Str("pdf", res.PDFPath).Str("engine", res.Engine).Msg("document ready")
	return res
}

// GenerateLaTeX returns generated LaTeX without compiling it.
func (p *Processor) GenerateLaTeX(ctx context.Context, req generator.Request) (string, error) {
	res, err := p.gen.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return res.LaTeX, nil
}

// CompileExisting compiles a .tex file on disk next to itself.
func (p *Processor) CompileExisting(ctx context.Context, texPath string) *Result {
	res := &Result{TeXPath: texPath}
	comp, err := p.comp.CompileFile(ctx, texPath, "")
	if comp != nil {
		res.Log = comp.Log
		res.Engine = comp.Engine
		res.Warnings = comp.Warnings
	}
	if err != nil {
		res.Error = "Compilation failed: " + err.Error()
		return res
	}
	res.PDFPath = comp.PDFPath
	res.Success = true
	return res
}

// DefaultFilename derives a stable name from the prompt:
// document_<hash>, or custom_document_<hash> when options are set.
func DefaultFilename(req generator.Request) string {
	h := fnv.New32a()
	h.Write([]byte(req.Prompt))
	prefix := "document_"
	if req.Options != nil {
		prefix = "custom_document_"
	}
	return fmt.Sprintf("%s%08x", prefix, h.Sum32())
}

// SanitizeFilename strips directories and a .tex/.pdf extension so a
// caller-provided name always lands inside the output directory.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tex", ".pdf":
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "document"
	}
	return name
}
