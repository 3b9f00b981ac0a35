// latexgen
//
// Generate LaTeX documents from natural-language prompts and compile them
// to PDF with a locally installed TeX engine.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jxucoder/latexgen"
	"github.com/jxucoder/latexgen/internal/config"
	"github.com/jxucoder/latexgen/internal/logging"
	"github.com/jxucoder/latexgen/pkg/compiler"
)

var version = "dev"

// Global flags shared by every command.
var (
	apiKey     string
	engineFlag string
	outputDir  string
	sessionDir string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "latexgen",
	Short: "latexgen - LaTeX documents from prompts",
	Long: `latexgen turns a natural-language prompt into LaTeX and compiles it to PDF.

  latexgen config setup                       Set up API keys (first time)
  latexgen generate "a one page CV"           Generate and compile a document
  latexgen edit "a modern CV" -n resume       Edit a document interactively
  latexgen check                              Check API key and TeX engines
  latexgen serve                              Start the HTTP API and bots`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&apiKey, "api-key", "", "API key for the selected provider (overrides the environment)")
	pf.StringVarP(&engineFlag, "engine", "e", "", "LaTeX engine: pdflatex, xelatex or lualatex")
	pf.StringVar(&outputDir, "output-dir", "", "Directory for generated .tex and .pdf files")
	pf.StringVar(&sessionDir, "session-dir", "", "Directory for editing session files")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		switch cfg.ResolvedProvider() {
		case config.ProviderOpenAI:
			cfg.OpenAIAPIKey = apiKey
		case config.ProviderAnthropic:
			cfg.AnthropicAPIKey = apiKey
		default:
			cfg.GeminiAPIKey = apiKey
		}
	}
	if engineFlag != "" {
		cfg.Engine = engineFlag
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if sessionDir != "" {
		cfg.SessionDir = sessionDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// newLogger returns the stderr console logger for cfg.
func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.NewConsole(cfg.LogLevel)
}

// loadApp builds the full application. Callers must Close it.
func loadApp() (*latexgen.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return latexgen.NewBuilder().
		WithConfig(cfg).
		WithLogger(newLogger(cfg)).
		Build()
}

// newCompiler builds a compiler from the configuration alone, for commands
// that never call the LLM.
func newCompiler() (*compiler.Compiler, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return compiler.New(cfg.Engine,
		compiler.WithRunTimeout(cfg.CompileTimeout),
		compiler.WithLogger(newLogger(cfg)),
	), nil
}
