package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jxucoder/latexgen/internal/config"
	"github.com/jxucoder/latexgen/pkg/compiler"
)

// configKey describes a single configuration value.
type configKey struct {
	Key    string
	Desc   string
	Secret bool
	Prefix string // expected prefix for validation (e.g. "xoxb-"), empty = no check
}

// allConfigKeys lists every configurable value in display order.
var allConfigKeys = []configKey{
	{"GEMINI_API_KEY", "Google Gemini API key", true, ""},
	{"OPENAI_API_KEY", "OpenAI API key", true, "sk-"},
	{"ANTHROPIC_API_KEY", "Anthropic API key", true, "sk-ant-"},
	{"LATEXGEN_PROVIDER", "LLM provider (gemini, openai, anthropic, auto)", false, ""},
	{"LATEXGEN_MODEL", "Model override for the selected provider", false, ""},
	{"LATEXGEN_ENGINE", "LaTeX engine (pdflatex, xelatex, lualatex)", false, ""},
	{"LATEXGEN_OUTPUT_DIR", "Directory for generated documents", false, ""},
	{"TELEGRAM_BOT_TOKEN", "Telegram bot token (from @BotFather)", true, ""},
	{"SLACK_BOT_TOKEN", "Slack Bot User OAuth Token (xoxb-...)", true, "xoxb-"},
	{"SLACK_APP_TOKEN", "Slack App-Level Token (xapp-...)", true, "xapp-"},
	{"GITHUB_TOKEN", "GitHub token for publishing (repo scope)", true, ""},
	{"GITHUB_WEBHOOK_SECRET", "GitHub Issues webhook secret", true, ""},
}

var validProviders = map[string]bool{
	config.ProviderGemini: true, config.ProviderOpenAI: true, config.ProviderAnthropic: true, config.ProviderAuto: true,
}

// ---------------------------------------------------------------------------
// Cobra commands
// ---------------------------------------------------------------------------

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage latexgen configuration",
	Long: `Manage latexgen configuration (API keys, engine, bot tokens).

Configuration is stored in ~/.latexgen/config.env and can be overridden
by environment variables.

  latexgen config setup              Interactive setup wizard
  latexgen config set KEY VALUE      Set a single config value
  latexgen config show               Show current configuration
  latexgen config path               Print config file path`,
}

var (
	setupNonInteractive bool
	setupAPIKey         string
	setupProvider       string
	setupEngine         string
)

var configSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Long: `Guided setup that walks you through configuring latexgen step by step.

Non-interactive mode for CI/scripting:
  latexgen config setup --non-interactive --provider=gemini --api-key=xxx --engine=xelatex`,
	RunE: runConfigSetup,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a config value",
	Long: `Set a single configuration value. Example:
  latexgen config set GEMINI_API_KEY xxxxxxxxxxxx`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display all configured values. Secrets are masked.",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(config.FilePath())
		return nil
	},
}

func init() {
	configSetupCmd.Flags().BoolVar(&setupNonInteractive, "non-interactive", false, "Run without prompts (requires --api-key)")
	configSetupCmd.Flags().StringVar(&setupAPIKey, "api-key", "", "API key for --provider (non-interactive mode)")
	configSetupCmd.Flags().StringVar(&setupProvider, "provider", config.ProviderGemini, "Provider: gemini, openai, anthropic")
	configSetupCmd.Flags().StringVar(&setupEngine, "engine", "", "LaTeX engine: pdflatex, xelatex, lualatex")

	configCmd.AddCommand(configSetupCmd, configSetCmd, configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// effectiveValue returns the current value for a key, preferring env vars over config file.
func effectiveValue(key string, fileValues map[string]string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fileValues[key]
}

// maskSecret masks a secret string, showing only the first 4 and last 4 characters.
func maskSecret(s string) string {
	if len(s) <= 12 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// findKey looks up a configKey by name.
func findKey(name string) configKey {
	for _, ck := range allConfigKeys {
		if ck.Key == name {
			return ck
		}
	}
	return configKey{Key: name}
}

// keyForProvider maps a provider name to its API key variable.
func keyForProvider(provider string) string {
	switch provider {
	case config.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case config.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

func validEngine(name string) bool {
	for _, e := range compiler.KnownEngines {
		if e == name {
			return true
		}
	}
	return false
}

// printSummaryLine prints a check or cross for a config section.
func printSummaryLine(label string, ok bool) {
	if ok {
		fmt.Printf("  \033[32m✓\033[0m %-12s configured\n", label)
	} else {
		fmt.Printf("  \033[90m-\033[0m %-12s not configured\n", label)
	}
}

// ---------------------------------------------------------------------------
// Interactive helpers
// ---------------------------------------------------------------------------

// wizard holds shared state for the interactive setup.
type wizard struct {
	reader     *bufio.Reader
	out        io.Writer
	fileValues map[string]string
	changed    int // number of values the user entered or changed
}

func newWizard(in io.Reader, out io.Writer, fileValues map[string]string) *wizard {
	return &wizard{reader: bufio.NewReader(in), out: out, fileValues: fileValues}
}

func (w *wizard) printf(format string, args ...any) {
	fmt.Fprintf(w.out, format, args...)
}

func (w *wizard) readLine() (string, error) {
	input, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && input != "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// askYesNo asks a yes/no question and returns true for yes.
func (w *wizard) askYesNo(prompt string, defaultYes bool) (bool, error) {
	hint := "[Y/n]"
	if !defaultYes {
		hint = "[y/N]"
	}
	w.printf("  %s %s ", prompt, hint)
	input, err := w.readLine()
	if err != nil {
		return false, err
	}
	input = strings.ToLower(input)
	if input == "" {
		return defaultYes, nil
	}
	return input == "y" || input == "yes", nil
}

// askValue prompts for a single config value with validation.
// Returns true if a new value was accepted.
func (w *wizard) askValue(ck configKey) (bool, error) {
	current := effectiveValue(ck.Key, w.fileValues)

	status := "\033[31m✗ not set\033[0m"
	if current != "" {
		if ck.Secret {
			status = fmt.Sprintf("\033[32m✓ set\033[0m (%s)", maskSecret(current))
		} else {
			status = fmt.Sprintf("\033[32m✓ set\033[0m (%s)", current)
		}
	}
	w.printf("  %s  %s\n", ck.Key, status)
	if ck.Desc != "" {
		w.printf("  %s\n", ck.Desc)
	}

	for {
		w.printf("  Paste value (Enter to keep): ")
		input, err := w.readLine()
		if err != nil {
			return false, err
		}
		if input == "" {
			return false, nil
		}
		if ck.Prefix != "" && !strings.HasPrefix(input, ck.Prefix) {
			w.printf("  \033[33m!\033[0m  That doesn't look right, expected prefix %q. Try again or press Enter to skip.\n", ck.Prefix)
			continue
		}

		w.fileValues[ck.Key] = input
		w.changed++
		w.printf("  \033[32m✓ saved\033[0m\n")
		return true, nil
	}
}

// askChoice prompts until the answer is empty (keep) or accepted by valid.
func (w *wizard) askChoice(key, label string, valid func(string) bool) error {
	current := effectiveValue(key, w.fileValues)
	w.printf("  Current: %s\n", current)
	for {
		w.printf("  %s (Enter to keep): ", label)
		input, err := w.readLine()
		if err != nil {
			return err
		}
		if input == "" {
			return nil
		}
		if !valid(input) {
			w.printf("  \033[33m!\033[0m  Unknown value %q.\n", input)
			continue
		}
		w.fileValues[key] = input
		w.changed++
		w.printf("  \033[32m✓ saved\033[0m\n")
		return nil
	}
}

// ---------------------------------------------------------------------------
// Setup wizard (guided, multi-step)
// ---------------------------------------------------------------------------

func runConfigSetup(cmd *cobra.Command, args []string) error {
	fileValues, err := config.ReadFile(config.FilePath())
	if err != nil {
		return err
	}
	if setupNonInteractive {
		return runNonInteractiveSetup(fileValues)
	}
	w := newWizard(os.Stdin, os.Stdout, fileValues)
	if err := w.run(cmd.Context()); err != nil {
		return err
	}
	if err := config.WriteFile(config.FilePath(), w.fileValues); err != nil {
		return err
	}
	w.summary()
	return nil
}

func (w *wizard) run(ctx context.Context) error {
	w.printf("\n  \033[1mlatexgen Setup\033[0m\n")
	w.printf("  ──────────────\n")
	w.printf("  This wizard will walk you through configuring latexgen.\n")
	w.printf("  Press Enter at any prompt to keep the current value.\n\n")

	// Step 1: provider keys.
	w.printf("  \033[1mStep 1 of 5: LLM API Key (at least one required)\033[0m\n")
	w.printf("  latexgen sends your prompt to Gemini, OpenAI or Anthropic.\n")
	w.printf("  Gemini keys: \033[4mhttps://aistudio.google.com/apikey\033[0m\n\n")
	for _, key := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"} {
		if _, err := w.askValue(findKey(key)); err != nil {
			return err
		}
		w.printf("\n")
	}
	if effectiveValue("GEMINI_API_KEY", w.fileValues) == "" &&
		effectiveValue("OPENAI_API_KEY", w.fileValues) == "" &&
		effectiveValue("ANTHROPIC_API_KEY", w.fileValues) == "" {
		w.printf("  \033[33m!\033[0m  Warning: no API key configured. You'll need one to generate documents.\n\n")
	}

	// Step 2: provider.
	w.printf("  \033[1mStep 2 of 5: Provider\033[0m\n")
	w.printf("  Options: gemini, openai, anthropic, auto (first key found)\n")
	if err := w.askChoice("LATEXGEN_PROVIDER", "Provider", func(s string) bool { return validProviders[s] }); err != nil {
		return err
	}
	w.printf("\n")

	// Step 3: engine.
	w.printf("  \033[1mStep 3 of 5: LaTeX Engine\033[0m\n")
	engines := compiler.New("").AvailableEngines(ctx)
	if len(engines) == 0 {
		w.printf("  \033[33m!\033[0m  No LaTeX engine found on PATH. Install TeX Live or MiKTeX.\n")
	} else {
		w.printf("  \033[32m✓\033[0m Installed: %s\n", strings.Join(engines, ", "))
	}
	if err := w.askChoice("LATEXGEN_ENGINE", "Engine", validEngine); err != nil {
		return err
	}
	w.printf("\n")

	// Step 4: chat bots.
	w.printf("  \033[1mStep 4 of 5: Chat Bots (optional)\033[0m\n")
	doTelegram, err := w.askYesNo("Set up Telegram?", false)
	if err != nil {
		return err
	}
	if doTelegram {
		if _, err := w.askValue(findKey("TELEGRAM_BOT_TOKEN")); err != nil {
			return err
		}
	}
	doSlack, err := w.askYesNo("Set up Slack (Socket Mode)?", false)
	if err != nil {
		return err
	}
	if doSlack {
		for _, key := range []string{"SLACK_BOT_TOKEN", "SLACK_APP_TOKEN"} {
			if _, err := w.askValue(findKey(key)); err != nil {
				return err
			}
		}
	}
	w.printf("\n")

	// Step 5: GitHub.
	w.printf("  \033[1mStep 5 of 5: GitHub (optional)\033[0m\n")
	w.printf("  Publish documents to a repository and answer labelled issues.\n")
	doGitHub, err := w.askYesNo("Set up GitHub?", false)
	if err != nil {
		return err
	}
	if doGitHub {
		for _, key := range []string{"GITHUB_TOKEN", "GITHUB_WEBHOOK_SECRET"} {
			if _, err := w.askValue(findKey(key)); err != nil {
				return err
			}
		}
	}
	w.printf("\n")
	return nil
}

func (w *wizard) summary() {
	fmt.Println("  \033[1mConfiguration Summary\033[0m")
	fmt.Println("  ────────────────────")
	printSummaryLine("Gemini", effectiveValue("GEMINI_API_KEY", w.fileValues) != "")
	printSummaryLine("OpenAI", effectiveValue("OPENAI_API_KEY", w.fileValues) != "")
	printSummaryLine("Anthropic", effectiveValue("ANTHROPIC_API_KEY", w.fileValues) != "")
	printSummaryLine("Telegram", effectiveValue("TELEGRAM_BOT_TOKEN", w.fileValues) != "")
	printSummaryLine("Slack", effectiveValue("SLACK_BOT_TOKEN", w.fileValues) != "" &&
		effectiveValue("SLACK_APP_TOKEN", w.fileValues) != "")
	printSummaryLine("GitHub", effectiveValue("GITHUB_TOKEN", w.fileValues) != "")
	fmt.Println()
	fmt.Printf("  Saved to %s (%d value(s) changed)\n\n", config.FilePath(), w.changed)

	fmt.Println("  \033[1mNext Steps\033[0m")
	fmt.Println("  ──────────")
	fmt.Println("  1. Check your setup:   latexgen check")
	fmt.Println("  2. Generate a PDF:     latexgen generate \"a one page CV\"")
	fmt.Println("  3. Start the server:   latexgen serve")
	fmt.Println()
}

// runNonInteractiveSetup handles --non-interactive mode.
func runNonInteractiveSetup(fileValues map[string]string) error {
	if setupAPIKey == "" {
		return fmt.Errorf("--api-key is required in non-interactive mode")
	}
	if !validProviders[setupProvider] || setupProvider == config.ProviderAuto {
		return fmt.Errorf("unknown provider %q; valid: gemini, openai, anthropic", setupProvider)
	}
	fileValues[keyForProvider(setupProvider)] = setupAPIKey
	fileValues["LATEXGEN_PROVIDER"] = setupProvider

	if setupEngine != "" {
		if !validEngine(setupEngine) {
			return fmt.Errorf("unknown engine %q; valid: %s", setupEngine, strings.Join(compiler.KnownEngines, ", "))
		}
		fileValues["LATEXGEN_ENGINE"] = setupEngine
	}

	if err := config.WriteFile(config.FilePath(), fileValues); err != nil {
		return err
	}
	fmt.Printf("Config written to %s\n", config.FilePath())
	return nil
}

// ---------------------------------------------------------------------------
// config set / config show
// ---------------------------------------------------------------------------

// runConfigSet sets a single key=value in the config file.
func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	fileValues, err := config.ReadFile(config.FilePath())
	if err != nil {
		return err
	}
	fileValues[key] = value
	if err := config.WriteFile(config.FilePath(), fileValues); err != nil {
		return err
	}

	if findKey(key).Secret {
		fmt.Printf("Set %s = %s\n", key, maskSecret(value))
	} else {
		fmt.Printf("Set %s = %s\n", key, value)
	}
	return nil
}

// runConfigShow displays the current effective configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	fileValues, err := config.ReadFile(config.FilePath())
	if err != nil {
		return err
	}

	fmt.Printf("Config file: %s\n\n", config.FilePath())
	known := make(map[string]bool)
	for _, ck := range allConfigKeys {
		known[ck.Key] = true
		printConfigLine(ck, fileValues)
	}

	var extras []string
	for k := range fileValues {
		if !known[k] {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		printConfigLine(configKey{Key: k}, fileValues)
	}
	return nil
}

func printConfigLine(ck configKey, fileValues map[string]string) {
	value := effectiveValue(ck.Key, fileValues)
	source := ""
	if os.Getenv(ck.Key) != "" {
		source = " (from env)"
	} else if fileValues[ck.Key] != "" {
		source = " (from config file)"
	}

	display := "(not set)"
	if value != "" {
		if ck.Secret {
			display = maskSecret(value)
		} else {
			display = value
		}
	}
	fmt.Printf("  %-25s %s%s\n", ck.Key, display, source)
}
