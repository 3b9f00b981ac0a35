package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jxucoder/latexgen/pkg/pdfinfo"
	"github.com/jxucoder/latexgen/pkg/processor"
)

// maxLogLines bounds how much of a compiler log is echoed on failure.
const maxLogLines = 40

func printSuccess(msg string) {
	fmt.Printf("\033[32m✓\033[0m \033[1m%s\033[0m\n", msg)
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", msg)
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Printf("\033[33m!\033[0m  %s\n", w)
	}
}

// printPDF prints the PDF path with its page count and size when readable.
func printPDF(path string) {
	fmt.Printf("  PDF file:   %s\n", path)
	info, err := pdfinfo.Inspect(path)
	if err != nil {
		return
	}
	fmt.Printf("  Pages:      %d\n", info.Pages)
	fmt.Printf("  Size:       %s\n", pdfinfo.HumanSize(info.Size))
}

// printResult reports a generate-and-compile result. It returns an error
// for failed results so the command exits non-zero.
func printResult(res *processor.Result, heading string, showLaTeX bool) error {
	if !res.Success {
		if res.LaTeX != "" {
			fmt.Println("\n\033[1mGenerated LaTeX code (for debugging):\033[0m")
			fmt.Println(res.LaTeX)
		}
		printLogTail(res.Log)
		return fmt.Errorf("%s", res.Error)
	}

	printSuccess(heading)
	if res.TeXPath != "" {
		fmt.Printf("  LaTeX file: %s\n", res.TeXPath)
	}
	printPDF(res.PDFPath)
	if res.Engine != "" {
		fmt.Printf("  Engine:     %s\n", res.Engine)
	}
	printWarnings(res.Warnings)
	if showLaTeX {
		fmt.Println("\n\033[1mGenerated LaTeX code:\033[0m")
		fmt.Println(res.LaTeX)
	}
	return nil
}

// printLogTail prints the last maxLogLines lines of a compiler log.
func printLogTail(log string) {
	log = strings.TrimSpace(log)
	if log == "" {
		return
	}
	lines := strings.Split(log, "\n")
	if len(lines) > maxLogLines {
		lines = lines[len(lines)-maxLogLines:]
	}
	fmt.Println("\n\033[1mCompilation log:\033[0m")
	fmt.Println(strings.Join(lines, "\n"))
}
