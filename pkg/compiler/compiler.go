// Package compiler turns LaTeX source into PDF by shelling out to a locally
// installed engine (pdflatex, xelatex or lualatex).
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultEngine is used when no engine is configured.
	DefaultEngine = "pdflatex"
	// DefaultRunTimeout bounds a single engine invocation.
	DefaultRunTimeout = 120 * time.Second
	// DefaultPasses is the number of runs per engine so references resolve.
	DefaultPasses = 2
	// DefaultVersionTimeout bounds the `--version` check.
	DefaultVersionTimeout = 10 * time.Second

	texName = "document.tex"
	pdfName = "document.pdf"
)

var (
	// ErrEngineNotFound means the engine binary is not on PATH.
	ErrEngineNotFound = errors.New("LaTeX engine not found")
	// ErrAllEnginesFailed means no engine in the chain produced a PDF.
	ErrAllEnginesFailed = errors.New("all LaTeX engines failed")
)

// KnownEngines lists the engines checked by AvailableEngines.
var KnownEngines = []string{"pdflatex", "xelatex", "lualatex"}

// Result is the outcome of a compilation. Log is always populated.
type Result struct {
	PDFPath  string   `json:"pdf_path,omitempty"`
	Log      string   `json:"log"`
	Success  bool     `json:"success"`
	Engine   string   `json:"engine,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Options controls where a compilation happens and where the PDF ends up.
type Options struct {
	// OutputPath receives a copy of the PDF. Parent directories are created.
	OutputPath string
	// WorkDir is used instead of a fresh temp directory.
	WorkDir string
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithRunTimeout bounds each engine invocation.
func WithRunTimeout(d time.Duration) Option {
	return func(c *Compiler) {
		if d > 0 {
			c.runTimeout = d
		}
	}
}

// WithPasses sets how many times each engine runs.
func WithPasses(n int) Option {
	return func(c *Compiler) {
		if n > 0 {
			c.passes = n
		}
	}
}

// WithVersionTimeout bounds the `--version` check.
func WithVersionTimeout(d time.Duration) Option {
	return func(c *Compiler) {
		if d > 0 {
			c.versionTimeout = d
		}
	}
}

// WithFallback toggles trying alternative engines after a failure.
func WithFallback(enabled bool) Option {
	return func(c *Compiler) { c.fallback = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Compiler) { c.logger = logger }
}

// Compiler runs LaTeX engines. It holds no per-call state and is safe for
// concurrent use.
type Compiler struct {
	engine         string
	runTimeout     time.Duration
	passes         int
	versionTimeout time.Duration
	fallback       bool
	logger         zerolog.Logger
}

// New creates a Compiler for the given engine (DefaultEngine if empty).
func New(engine string, opts ...Option) *Compiler {
	if engine == "" {
		engine = DefaultEngine
	}
	c := &Compiler{
		engine:         engine,
		runTimeout:     DefaultRunTimeout,
		passes:         DefaultPasses,
		versionTimeout: DefaultVersionTimeout,
		fallback:       true,
		logger:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Engine returns the primary engine name.
func (c *Compiler) Engine() string { return c.engine }

// FallbackChain returns the engines tried, in order, for a primary engine.
func FallbackChain(engine string) []string {
	switch engine {
	case "pdflatex":
		return []string{"pdflatex", "xelatex", "lualatex"}
	case "xelatex":
		return []string{"xelatex", "lualatex", "pdflatex"}
	case "lualatex":
		return []string{"lualatex", "xelatex", "pdflatex"}
	default:
		return []string{engine}
	}
}

// Validate checks that the primary engine is installed and answers --version.
func (c *Compiler) Validate(ctx context.Context) error {
	out, err := c.version(ctx, c.engine)
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s (install a LaTeX distribution such as TeX Live or MiKTeX)", ErrEngineNotFound, c.engine)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("checking %s: version check timed out", c.engine)
	}
	return fmt.Errorf("LaTeX engine %q is not working properly: %w\noutput: %s", c.engine, err, out)
}

// AvailableEngines returns the known engines that answer --version.
func (c *Compiler) AvailableEngines(ctx context.Context) []string {
	var available []string
	for _, e := range KnownEngines {
		if c.available(ctx, e) {
			available = append(available, e)
		}
	}
	return available
}

func (c *Compiler) available(ctx context.Context, engine string) bool {
	_, err := c.version(ctx, engine)
	return err == nil
}

func (c *Compiler) version(ctx context.Context, engine string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, engine, "--version").CombinedOutput()
	if err != nil && ctx.Err() != nil {
		return string(out), ctx.Err()
	}
	return string(out), err
}

// Compile writes source to document.tex and runs the engine chain until one
// produces a PDF. The returned Result is never nil, so the log is available
// even when an error is returned.
//
// When neither WorkDir nor OutputPath is set the temp directory is kept so
// the returned PDFPath stays valid; callers own its cleanup.
func (c *Compiler) Compile(ctx context.Context, source string, opts Options) (*Result, error) {
	res := &Result{}
	log := &compileLog{}
	defer func() { res.Log = log.String() }()

	dir := opts.WorkDir
	cleanup := false
	if dir == "" {
		tmp, err := os.MkdirTemp("", "latexgen-")
		if err != nil {
			log.add("ERROR: creating work dir: %v", err)
			return res, fmt.Errorf("creating work dir: %w", err)
		}
		dir = tmp
		cleanup = true
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		log.add("ERROR: creating work dir: %v", err)
		return res, fmt.Errorf("creating work dir: %w", err)
	}
	defer func() {
		if cleanup {
			os.RemoveAll(dir)
		}
	}()

	texPath := filepath.Join(dir, texName)
	if err := os.WriteFile(texPath, []byte(source), 0o644); err != nil {
		log.add("ERROR: writing %s: %v", texName, err)
		return res, fmt.Errorf("writing tex file: %w", err)
	}

	engines := []string{c.engine}
	if c.fallback {
		engines = FallbackChain(c.engine)
	}

	pdfPath := filepath.Join(dir, pdfName)
	var lastErr error
	for _, engine := range engines {
		if err := ctx.Err(); err != nil {
			log.add("ERROR: %v", err)
			return res, err
		}
		if !c.available(ctx, engine) {
			log.add("Engine %s not available, skipping...", engine)
			continue
		}

		log.add("\n=== Trying engine: %s ===", engine)
		os.Remove(pdfPath)

		runErr := c.runPasses(ctx, engine, dir, log)
		if !fileExists(pdfPath) {
			log.add("FAILED: No PDF generated with %s", engine)
			if runErr != nil {
				lastErr = runErr
			} else {
				lastErr = fmt.Errorf("%s produced no PDF", engine)
			}
			c.logger.Debug().Str("engine", engine).Err(lastErr).Msg("engine failed")
			continue
		}

		if runErr != nil {
			w := "PDF generated with errors using " + engine
			log.add("WARNING: %s", w)
			res.Warnings = append(res.Warnings, w)
		} else {
			log.add("SUCCESS: PDF generated successfully with %s", engine)
		}
		res.Engine = engine

		final := pdfPath
		if opts.OutputPath != "" {
			if err := copyFile(pdfPath, opts.OutputPath); err != nil {
				log.add("ERROR: copying PDF: %v", err)
				return res, fmt.Errorf("copying PDF to %s: %w", opts.OutputPath, err)
			}
			final = opts.OutputPath
		} else if cleanup {
			cleanup = false
		}

		res.PDFPath = final
		res.Success = true
		c.logger.Info().Str("engine", engine).Str("pdf", final).Msg("compiled LaTeX")
		return res, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no engine available")
	}
	log.add("FINAL ERROR: All LaTeX engines failed. Last error: %v", lastErr)
	return res, fmt.Errorf("%w: %v", ErrAllEnginesFailed, lastErr)
}

// runPasses runs engine c.passes times in dir, stopping at the first failure.
func (c *Compiler) runPasses(ctx context.Context, engine, dir string, log *compileLog) error {
	for run := 1; run <= c.passes; run++ {
		runCtx, cancel := context.WithTimeout(ctx, c.runTimeout)
		cmd := exec.CommandContext(runCtx, engine,
			"-interaction=nonstopmode",
			"-output-directory", dir,
			texName,
		)
		cmd.Dir = dir
		cmd.WaitDelay = 5 * time.Second
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
		cancel()

		log.add("Run %d with %s:", run, engine)
		log.add("%s", stdout.String())
		if stderr.Len() > 0 {
			log.add("STDERR:")
			log.add("%s", stderr.String())
		}

		if timedOut {
			log.add("ERROR: %s compilation timed out after %s", engine, c.runTimeout)
			return fmt.Errorf("%s timed out after %s", engine, c.runTimeout)
		}
		if err != nil {
			log.add("ERROR: LaTeX compilation failed on run %d with %s", run, engine)
			out := stdout.String()
			if strings.Contains(out, "auto expansion is only possible with scalable fonts") {
				log.add("HINT: Font expansion error detected. Trying different engine...")
			}
			if strings.Contains(out, "Undefined control sequence") {
				log.add("HINT: Undefined control sequence detected. This may require specific packages.")
			}
			return fmt.Errorf("%s run %d: %w", engine, run, err)
		}
	}
	return nil
}

// CompileFile compiles an existing .tex file. The PDF is written as
// <base>.pdf into outputDir, which defaults to the file's directory.
func (c *Compiler) CompileFile(ctx context.Context, texPath, outputDir string) (*Result, error) {
	data, err := os.ReadFile(texPath)
	if err != nil {
		return &Result{Log: fmt.Sprintf("ERROR: reading %s: %v", texPath, err)}, fmt.Errorf("reading tex file: %w", err)
	}

	workDir := filepath.Dir(texPath)
	if workDir == "" || workDir == "." {
		if wd, err := os.Getwd(); err == nil {
			workDir = wd
		}
	}
	if outputDir == "" {
		outputDir = workDir
	}

	base := strings.TrimSuffix(filepath.Base(texPath), filepath.Ext(texPath))
	return c.Compile(ctx, string(data), Options{
		OutputPath: filepath.Join(outputDir, base+".pdf"),
		WorkDir:    workDir,
	})
}

type compileLog struct {
	lines []string
}

func (l *compileLog) add(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *compileLog) String() string {
	return strings.Join(l.lines, "\n")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
