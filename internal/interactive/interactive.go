// Package interactive runs the terminal review loop for an editing session:
// the current PDF is opened, the user picks an action from a menu, and the
// session is modified, reverted or finished accordingly.
package interactive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jxucoder/latexgen/pkg/editor"
	"github.com/jxucoder/latexgen/pkg/generator"
	"github.com/jxucoder/latexgen/pkg/model"
	"github.com/jxucoder/latexgen/pkg/pdfinfo"
	"github.com/jxucoder/latexgen/pkg/processor"
)

// ErrCancelled is returned when the user leaves the loop without saving.
var ErrCancelled = errors.New("session cancelled by user")

// Editor is the subset of *editor.Editor the loop drives.
type Editor interface {
	CreateSession(ctx context.Context, initialLaTeX, documentName, prompt string) (*model.Session, error)
	ApplyModification(ctx context.Context, id, request, extraContext string) (*model.Version, error)
	Revert(ctx context.Context, id string, n int) (*model.Version, error)
	CompileCurrent(ctx context.Context, id string) (*editor.CompileResult, error)
	History(id string) ([]*model.Version, error)
	Get(id string) (*model.Session, error)
}

// Pipeline produces the first version of a new document.
type Pipeline interface {
	GenerateAndCompile(ctx context.Context, req generator.Request, out processor.Output) *processor.Result
}

// Opener shows a PDF to the user.
type Opener func(path string) error

// Outcome describes a session the user finished.
type Outcome struct {
	SessionID    string
	FinalVersion int
	FinalPDF     string
}

// Option configures a Loop.
type Option func(*Loop)

// WithInput sets where answers are read from (default os.Stdin).
func WithInput(r io.Reader) Option {
	return func(l *Loop) { l.in = bufio.NewReader(r) }
}

// WithOutput sets where prompts are written (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(l *Loop) { l.out = w }
}

// WithOpener replaces the OS PDF viewer.
func WithOpener(open Opener) Option {
	return func(l *Loop) { l.open = open }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// Loop is an interactive editing loop bound to one terminal.
type Loop struct {
	editor   Editor
	pipeline Pipeline
	in       *bufio.Reader
	out      io.Writer
	open     Opener
	logger   zerolog.Logger
}

// New creates a Loop.
func New(ed Editor, pipeline Pipeline, opts ...Option) *Loop {
	l := &Loop{
		editor:   ed,
		pipeline: pipeline,
		in:       bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		open:     OpenPDF,
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Start generates a document from prompt, opens a session for it and runs
// the review loop.
func (l *Loop) Start(ctx context.Context, prompt, documentName, extraContext string) (*Outcome, error) {
	if documentName == "" {
		documentName = "document"
	}
	l.printf("\n\033[1mStarting interactive document editing\033[0m\n")
	l.printf("Document: %s\n", documentName)
	l.printf("Prompt: %s\n", prompt)
	if extraContext != "" {
		l.printf("Context: %s\n", extraContext)
	}

	l.progress("Generating initial document...")
	res := l.pipeline.GenerateAndCompile(ctx,
		generator.Request{Prompt: prompt, Context: extraContext},
		processor.Output{Filename: documentName},
	)
	if !res.Success {
		return nil, fmt.Errorf("generating initial document: %s", res.Error)
	}

	sess, err := l.editor.CreateSession(ctx, res.LaTeX, documentName, prompt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	l.success("Session created: " + sess.ID)
	return l.run(ctx, sess.ID)
}

// Resume compiles the current version of an existing session and runs the
// review loop.
func (l *Loop) Resume(ctx context.Context, id string) (*Outcome, error) {
	sess, err := l.editor.Get(id)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	l.printf("\n\033[1mResuming interactive editing session\033[0m\n")
	l.printf("Session ID: %s\n", sess.ID)
	l.printf("Document: %s\n", sess.DocumentName)
	l.printf("Current Version: %d\n", sess.CurrentVersion)
	return l.run(ctx, sess.ID)
}

func (l *Loop) run(ctx context.Context, id string) (*Outcome, error) {
	comp, err := l.compile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("compiling current version: %w", err)
	}
	pdf, version := comp.PDFPath, comp.Version

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.showPDF(pdf, version)
		if err := l.open(pdf); err != nil {
			l.logger.Debug().Err(err).Str("pdf", pdf).Msg("opening PDF")
			l.failure("Failed to open PDF. Please check the file manually.")
		}

		action, err := l.menu()
		if err != nil {
			return nil, l.inputClosed(err)
		}

		switch action {
		case "1":
			request, extra, err := l.askModification()
			if err != nil {
				return nil, l.inputClosed(err)
			}
			l.progress("Applying modifications...")
			if _, err := l.editor.ApplyModification(ctx, id, request, extra); err != nil {
				l.failure("Failed to apply modifications: " + err.Error())
				continue
			}
			l.progress("Compiling updated document...")
			comp, err := l.compile(ctx, id)
			if err != nil {
				l.failure("Failed to apply modifications: " + err.Error())
				continue
			}
			pdf, version = comp.PDFPath, comp.Version
			l.success(fmt.Sprintf("Document updated to version %d!", version))

		case "2":
			l.printf("\nGreat! Are you completely satisfied with the current document?\n")
			ok, err := l.confirm("Confirm (yes/no): ")
			if err != nil {
				return nil, l.inputClosed(err)
			}
			if ok {
				return l.finish(id, version, pdf), nil
			}

		case "3":
			if err := l.showHistory(id); err != nil {
				l.failure(err.Error())
				continue
			}
			if _, err := l.readLine("\nPress Enter to continue..."); err != nil {
				return nil, l.inputClosed(err)
			}

		case "4":
			n, err := l.chooseVersion(id)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil, l.inputClosed(err)
				}
				l.failure("Failed to revert: " + err.Error())
				continue
			}
			if n == 0 {
				continue
			}
			l.progress(fmt.Sprintf("Reverting to version %d...", n))
			if _, err := l.editor.Revert(ctx, id, n); err != nil {
				l.failure("Failed to revert: " + err.Error())
				continue
			}
			l.progress("Compiling reverted document...")
			comp, err := l.compile(ctx, id)
			if err != nil {
				l.failure("Failed to revert: " + err.Error())
				continue
			}
			pdf, version = comp.PDFPath, comp.Version
			l.success(fmt.Sprintf("Reverted to version %d!", n))

		case "5":
			return l.finish(id, version, pdf), nil

		case "6":
			l.failure("Session cancelled by user.")
			return nil, ErrCancelled
		}
	}
}

// compile compiles the current version, turning a failed build into an error
// that carries the tail of the log.
func (l *Loop) compile(ctx context.Context, id string) (*editor.CompileResult, error) {
	res, err := l.editor.CompileCurrent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, errors.New(res.Error)
	}
	return res, nil
}

func (l *Loop) menu() (string, error) {
	l.printf("\n%s\n", strings.Repeat("=", 60))
	l.printf("DOCUMENT REVIEW\n")
	l.printf("%s\n", strings.Repeat("=", 60))
	l.printf("Please review the PDF that just opened.\n\n")
	l.printf("What would you like to do?\n")
	l.printf("1. Make changes to the document\n")
	l.printf("2. I'm satisfied with the current version\n")
	l.printf("3. View version history\n")
	l.printf("4. Revert to a previous version\n")
	l.printf("5. Save and exit\n")
	l.printf("6. Cancel without saving\n")

	for {
		choice, err := l.readLine("\nEnter your choice (1-6): ")
		if err != nil {
			return "", err
		}
		switch choice {
		case "1", "2", "3", "4", "5", "6":
			return choice, nil
		}
		l.failure("Invalid choice. Please enter a number between 1-6.")
	}
}

func (l *Loop) askModification() (request, extra string, err error) {
	l.printf("\nDescribe the changes you want to make.\n")
	l.printf("Be specific about what you want to add, remove, or modify, e.g.\n")
	l.printf("  - Add a skills section with Python, Java, and SQL\n")
	l.printf("  - Change the color scheme to blue and grey\n")
	for {
		request, err = l.readLine("\nYour changes: ")
		if err != nil {
			return "", "", err
		}
		if request != "" {
			break
		}
		l.failure("Please describe the changes you want to make.")
	}
	l.printf("\nAny additional context or preferences? (optional)\n")
	extra, err = l.readLine("Additional context: ")
	if err != nil {
		return "", "", err
	}
	return request, extra, nil
}

// chooseVersion returns the confirmed version number, or 0 when the user
// backs out.
func (l *Loop) chooseVersion(id string) (int, error) {
	versions, err := l.editor.History(id)
	if err != nil {
		return 0, err
	}
	l.printVersions(versions)

	for {
		l.printf("Enter the version number to revert to (or 'cancel' to go back):\n")
		choice, err := l.readLine("Version number: ")
		if err != nil {
			return 0, err
		}
		if strings.EqualFold(choice, "cancel") {
			return 0, nil
		}
		n, err := strconv.Atoi(choice)
		if err != nil {
			l.failure("Please enter a valid version number.")
			continue
		}
		target := findVersion(versions, n)
		if target == nil {
			l.failure(fmt.Sprintf("Invalid version number. Available versions: %v", versionNumbers(versions)))
			continue
		}

		l.printf("\nYou're about to revert to Version %d:\n", n)
		l.printf("   Description: %s\n", target.ChangeDescription)
		ok, err := l.confirm("Are you sure? (yes/no): ")
		if err != nil {
			return 0, err
		}
		if ok {
			return n, nil
		}
	}
}

func (l *Loop) showHistory(id string) error {
	versions, err := l.editor.History(id)
	if err != nil {
		return err
	}
	l.printVersions(versions)
	return nil
}

func (l *Loop) printVersions(versions []*model.Version) {
	l.printf("\nVERSION HISTORY\n")
	l.printf("%s\n", strings.Repeat("=", 60))
	for _, v := range versions {
		l.printf("Version %d: %s\n", v.Number, v.ChangeDescription)
		l.printf("   Created: %s\n\n", v.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
}

func (l *Loop) showPDF(path string, version int) {
	l.printf("\nPDF Information:\n")
	l.printf("   File: %s\n", filepath.Base(path))
	l.printf("   Version: %d\n", version)
	if info, err := pdfinfo.Inspect(path); err == nil {
		l.printf("   Pages: %d\n", info.Pages)
		l.printf("   Size: %s\n", pdfinfo.HumanSize(info.Size))
	} else if st, err := os.Stat(path); err == nil {
		l.printf("   Size: %s\n", pdfinfo.HumanSize(st.Size()))
	}
	l.printf("   Location: %s\n", path)
}

func (l *Loop) finish(id string, version int, pdf string) *Outcome {
	l.printf("\n%s\n", strings.Repeat("=", 60))
	l.printf("EDITING SESSION COMPLETE\n")
	l.printf("%s\n", strings.Repeat("=", 60))
	l.printf("Session ID: %s\n", id)
	l.printf("Final Version: %d\n", version)
	l.printf("Final PDF: %s\n", pdf)
	l.printf("Resume later with: latexgen resume %s\n", id)
	return &Outcome{SessionID: id, FinalVersion: version, FinalPDF: pdf}
}

// confirm asks until the answer is yes or no.
func (l *Loop) confirm(prompt string) (bool, error) {
	for {
		answer, err := l.readLine(prompt)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		l.failure("Please enter 'yes' or 'no'.")
	}
}

// readLine prints prompt and returns the trimmed answer. io.EOF is returned
// only when the input ends before any text.
func (l *Loop) readLine(prompt string) (string, error) {
	l.printf("%s", prompt)
	line, err := l.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (l *Loop) inputClosed(err error) error {
	if errors.Is(err, io.EOF) {
		l.printf("\n")
		l.failure("Operation cancelled by user.")
		return ErrCancelled
	}
	return err
}

func (l *Loop) printf(format string, args ...any) {
	fmt.Fprintf(l.out, format, args...)
}

func (l *Loop) success(msg string) { l.printf("\n\033[32m✓\033[0m %s\n", msg) }
func (l *Loop) failure(msg string) { l.printf("\033[31m✗\033[0m %s\n", msg) }
func (l *Loop) progress(msg string) { l.printf("\n... %s\n", msg) }

func findVersion(versions []*model.Version, n int) *model.Version {
	for _, v := range versions {
		if v.Number == n {
			return v
		}
	}
	return nil
}

func versionNumbers(versions []*model.Version) []int {
	nums := make([]int, 0, len(versions))
	for _, v := range versions {
		nums = append(nums, v.Number)
	}
	return nums
}
