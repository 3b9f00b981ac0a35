// Package channel defines the chat transports that accept document requests
// and deliver the resulting PDFs.
package channel

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/jxucoder/latexgen/pkg/generator"
	"github.com/jxucoder/latexgen/pkg/processor"
)

// Channel is an input/output transport (Telegram, Slack, GitHub Issues).
type Channel interface {
	Name() string
	Run(ctx context.Context) error
}

// Pipeline is the part of the processor a channel drives.
type Pipeline interface {
	GenerateAndCompile(ctx context.Context, req generator.Request, out processor.Output) *processor.Result
	GenerateLaTeX(ctx context.Context, req generator.Request) (string, error)
}

// Truncate shortens s to at most max runes, ending with "..." when cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}

// LogTail returns the last max runes of a compiler log, prefixed with
// "..." when earlier output was dropped.
func LogTail(log string, max int) string {
	log = strings.TrimSpace(log)
	runes := []rune(log)
	if len(runes) <= max {
		return log
	}
	return "..." + string(runes[len(runes)-max:])
}

// Title derives a short document title from a prompt.
func Title(prompt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	return Truncate(line, 60)
}
