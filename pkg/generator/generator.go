// Package generator turns natural-language requests into LaTeX source using
// an LLM provider.
package generator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jxucoder/latexgen/pkg/llm"
)

var (
	// ErrEmptyPrompt is returned when a request carries no prompt text.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrEmptyResponse is returned when the provider answered with no LaTeX.
	ErrEmptyResponse = errors.New("model returned no LaTeX")
)

// ProviderError wraps a failed call to the LLM provider.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err came from the provider, either as a
// failed call or as an answer without LaTeX.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) || errors.Is(err, ErrEmptyResponse)
}

const (
	beginMarker = `\documentclass`
	endMarker   = `\end{document}`
)

// Options are formatting hints folded into the prompt context.
type Options struct {
	DocumentClass string            `json:"document_class,omitempty" yaml:"document_class"`
	Packages      []string          `json:"packages,omitempty" yaml:"packages"`
	Settings      map[string]string `json:"settings,omitempty" yaml:"settings"`
}

// Request is a single generation request.
type Request struct {
	Prompt  string   `json:"prompt"`
	Context string   `json:"context,omitempty"`
	Options *Options `json:"options,omitempty"`
}

// Result is the outcome of a generation call.
type Result struct {
	LaTeX   string `json:"latex"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Generator formats prompts, calls the LLM and cleans its answer.
type Generator struct {
	llm          llm.Client
	systemPrompt string
	logger       zerolog.Logger
}

// New creates a Generator. Pass an empty systemPrompt to use DefaultSystemPrompt.
func New(client llm.Client, systemPrompt string) *Generator {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Generator{llm: client, systemPrompt: systemPrompt, logger: zerolog.Nop()}
}

// WithLogger sets the logger used for request tracing.
func (g *Generator) WithLogger(logger zerolog.Logger) *Generator {
	g.logger = logger
	return g
}

// Generate asks the model for a LaTeX document matching req.
// On failure the returned Result is non-nil and carries the error text.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return &Result{Error: ErrEmptyPrompt.Error()}, ErrEmptyPrompt
	}

	user := BuildUserPrompt(req)
	g.logger.Debug().Int("prompt_len", len(user)).Msg("requesting LaTeX from model")

	raw, err := g.llm.Complete(ctx, g.systemPrompt, user)
	if err != nil {
		err = &ProviderError{Err: fmt.Errorf("generating LaTeX: %w", err)}
		return &Result{Error: err.Error()}, err
	}

	latex := Clean(raw)
	if latex == "" {
		return &Result{Error: ErrEmptyResponse.Error()}, ErrEmptyResponse
	}

	g.logger.Debug().Int("latex_len", len(latex)).Msg("model returned LaTeX")
	return &Result{LaTeX: latex, Success: true}, nil
}

// Modify applies a change request to an existing document and returns the
// full revised source.
func (g *Generator) Modify(ctx context.Context, current, request, originalPrompt, extraContext string) (string, error) {
	if strings.TrimSpace(request) == "" {
		return "", ErrEmptyPrompt
	}
	prompt := fmt.Sprintf(modificationTemplate, originalPrompt, current, request)
	if extraContext != "" {
		prompt += "\n\nADDITIONAL CONTEXT: " + extraContext
	}

	res, err := g.Generate(ctx, Request{
		Prompt:  prompt,
		Context: "This is a modification to an existing document. Original prompt: " + originalPrompt,
	})
	if err != nil {
		return "", err
	}
	return res.LaTeX, nil
}

// BuildUserPrompt renders the user turn: option lines and free-form context
// under "Additional context", followed by the request itself.
func BuildUserPrompt(req Request) string {
	var ctxLines []string
	if req.Options != nil {
		ctxLines = append(ctxLines, req.Options.lines()...)
	}
	if c := strings.TrimSpace(req.Context); c != "" {
		ctxLines = append(ctxLines, c)
	}

	var b strings.Builder
	if len(ctxLines) > 0 {
		b.WriteString("Additional context: ")
		b.WriteString(strings.Join(ctxLines, "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString("User request: ")
	b.WriteString(strings.TrimSpace(req.Prompt))
	return b.String()
}

func (o *Options) lines() []string {
	class := o.DocumentClass
	if class == "" {
		class = "article"
	}
	lines := []string{"Use document class: " + class}
	if len(o.Packages) > 0 {
		lines = append(lines, "Include these packages: "+strings.Join(o.Packages, ", "))
	}
	if len(o.Settings) > 0 {
		keys := make([]string, 0, len(o.Settings))
		for k := range o.Settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+": "+o.Settings[k])
		}
		lines = append(lines, "Apply these settings: "+strings.Join(pairs, ", "))
	}
	return lines
}

// Clean strips Markdown fences and any prose surrounding the document.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = stripFenceTag(s[len("```"):])
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}

	start := strings.Index(s, beginMarker)
	end := strings.LastIndex(s, endMarker)
	if start >= 0 && end > start {
		s = s[start : end+len(endMarker)]
	}
	return strings.TrimSpace(s)
}

// stripFenceTag drops the language tag that may follow an opening fence.
// Source that starts on the fence line is kept.
func stripFenceTag(s string) string {
	line, rest, found := strings.Cut(s, "\n")
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "latex", "tex":
		if !found {
			return ""
		}
		return rest
	}
	return s
}
