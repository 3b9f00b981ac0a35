package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jxucoder/latexgen/pkg/generator"
	"github.com/jxucoder/latexgen/pkg/processor"
)

var (
	genOutput  string
	genContext string
	genNoTeX   bool
	genShow    bool

	latexOutput  string
	latexContext string

	customOutput   string
	customContext  string
	customDocClass string
	customPackages string
	customSettings map[string]string
)

var generateCmd = &cobra.Command{
	Use:   "generate PROMPT",
	Short: "Generate a LaTeX document and compile it to PDF",
	Long: `Generate a LaTeX document from a prompt and compile it to PDF.

  latexgen generate "a one page cover letter" -o letter
  latexgen generate "a modern CV" -c "5 years of Go experience" --no-tex`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

var latexOnlyCmd = &cobra.Command{
	Use:   "latex-only PROMPT",
	Short: "Generate LaTeX source without compiling it",
	Args:  cobra.ExactArgs(1),
	RunE:  runLaTeXOnly,
}

var compileCmd = &cobra.Command{
	Use:   "compile TEX_FILE",
	Short: "Compile an existing .tex file to PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

var customCmd = &cobra.Command{
	Use:   "custom PROMPT",
	Short: "Generate a document with explicit formatting options",
	Long: `Generate a document with an explicit class, packages and settings.

  latexgen custom "lab report" --doc-class report --packages amsmath,graphicx --setting fontsize=11pt`,
	Args: cobra.ExactArgs(1),
	RunE: runCustom,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the API key and installed LaTeX engines",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "Output file name without extension")
	generateCmd.Flags().StringVarP(&genContext, "context", "c", "", "Additional context for the model")
	generateCmd.Flags().BoolVar(&genNoTeX, "no-tex", false, "Do not keep the .tex file")
	generateCmd.Flags().BoolVar(&genShow, "show-latex", false, "Print the generated LaTeX")

	latexOnlyCmd.Flags().StringVarP(&latexOutput, "output", "o", "", "Write the LaTeX to this file instead of stdout")
	latexOnlyCmd.Flags().StringVarP(&latexContext, "context", "c", "", "Additional context for the model")

	customCmd.Flags().StringVarP(&customOutput, "output", "o", "", "Output file name without extension")
	customCmd.Flags().StringVarP(&customContext, "context", "c", "", "Additional context for the model")
	customCmd.Flags().StringVar(&customDocClass, "doc-class", "article", "Document class")
	customCmd.Flags().StringVar(&customPackages, "packages", "", "Comma-separated packages to include")
	customCmd.Flags().StringToStringVar(&customSettings, "setting", nil, "Formatting setting as key=value (repeatable)")

	rootCmd.AddCommand(generateCmd, latexOnlyCmd, compileCmd, customCmd, checkCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	res := app.Processor().GenerateAndCompile(cmd.Context(),
		generator.Request{Prompt: args[0], Context: genContext},
		processor.Output{Filename: genOutput, SkipTeX: genNoTeX},
	)
	return printResult(res, "Generation and compilation successful!", genShow)
}

func runLaTeXOnly(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	latex, err := app.Processor().GenerateLaTeX(cmd.Context(), generator.Request{Prompt: args[0], Context: latexContext})
	if err != nil {
		return err
	}
	if latexOutput == "" {
		fmt.Println(latex)
		return nil
	}
	if dir := filepath.Dir(latexOutput); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(latexOutput, []byte(latex), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", latexOutput, err)
	}
	printSuccess("LaTeX generation successful!")
	fmt.Printf("  LaTeX file: %s\n", latexOutput)
	return nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	comp, err := newCompiler()
	if err != nil {
		return err
	}
	res, err := comp.CompileFile(cmd.Context(), args[0], "")
	if err != nil {
		printLogTail(res.Log)
		return fmt.Errorf("compilation failed: %w", err)
	}
	printSuccess("Compilation successful!")
	printPDF(res.PDFPath)
	fmt.Printf("  Engine:     %s\n", res.Engine)
	printWarnings(res.Warnings)
	return nil
}

func runCustom(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	req := generator.Request{
		Prompt:  args[0],
		Context: customContext,
		Options: &generator.Options{
			DocumentClass: customDocClass,
			Packages:      splitList(customPackages),
			Settings:      customSettings,
		},
	}
	res := app.Processor().GenerateAndCompile(cmd.Context(), req, processor.Output{Filename: customOutput})
	return printResult(res, "Custom document generation successful!", false)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	comp, err := newCompiler()
	if err != nil {
		return err
	}

	fmt.Println("\033[1mChecking system requirements...\033[0m")
	fmt.Println()

	ok := true
	provider := cfg.ResolvedProvider()
	if err := cfg.Validate(); err != nil {
		printError(err.Error())
		ok = false
	} else {
		printSuccess(fmt.Sprintf("API key for %s is set", provider))
	}

	engines := comp.AvailableEngines(cmd.Context())
	if len(engines) == 0 {
		printError("No LaTeX engines found (install TeX Live or MiKTeX)")
		ok = false
	} else {
		printSuccess("LaTeX installation found")
		fmt.Printf("  Available engines: %s\n", strings.Join(engines, ", "))
		if err := comp.Validate(cmd.Context()); err != nil {
			fmt.Printf("\033[33m!\033[0m  Configured engine: %v\n", err)
		}
	}

	if !ok {
		return fmt.Errorf("system check failed")
	}
	return nil
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
