package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jxucoder/latexgen"
	"github.com/jxucoder/latexgen/internal/interactive"
	"github.com/jxucoder/latexgen/pkg/store"
)

var (
	editName    string
	editContext string
)

var editCmd = &cobra.Command{
	Use:   "edit PROMPT",
	Short: "Generate a document and refine it interactively",
	Long: `Generate a document, open the PDF and refine it through a review menu.
Every change is kept as a numbered version that can be reverted.

  latexgen edit "a modern CV for a backend engineer" -n resume`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

var resumeCmd = &cobra.Command{
	Use:   "resume SESSION_ID",
	Short: "Resume an interactive editing session",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List editing sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var sessionInfoCmd = &cobra.Command{
	Use:   "session-info SESSION_ID",
	Short: "Show a session and its version history",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionInfo,
}

func init() {
	editCmd.Flags().StringVarP(&editName, "name", "n", "", "Document name (default \"document\")")
	editCmd.Flags().StringVarP(&editContext, "context", "c", "", "Additional context for the model")

	rootCmd.AddCommand(editCmd, resumeCmd, sessionsCmd, sessionInfoCmd)
}

func runEdit(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	loop := interactive.New(app.Editor(), app.Processor())
	out, err := loop.Start(cmd.Context(), args[0], editName, editContext)
	return reportOutcome(out, err)
}

func runResume(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	loop := interactive.New(app.Editor(), app.Processor())
	out, err := loop.Resume(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("session %s not found", args[0])
	}
	return reportOutcome(out, err)
}

func reportOutcome(out *interactive.Outcome, err error) error {
	if err != nil {
		return err
	}
	fmt.Println()
	printSuccess("Interactive editing session completed successfully!")
	fmt.Printf("  Final PDF:  %s\n", out.FinalPDF)
	fmt.Printf("  Session ID: %s\n", out.SessionID)
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := latexgen.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return listSessions(os.Stdout, st)
}

func runSessionInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := latexgen.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return printSessionInfo(os.Stdout, st, cfg.SessionDir, args[0])
}

// listSessions and printSessionInfo only read the store, so they work
// without an LLM provider configured.
func listSessions(out io.Writer, st store.SessionStore) error {
	sessions, err := st.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No editing sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDOCUMENT\tVERSION\tCREATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\tv%d\t%s\n",
			s.ID,
			s.DocumentName,
			s.CurrentVersion,
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func printSessionInfo(out io.Writer, st store.SessionStore, sessionDir, id string) error {
	sess, err := st.GetSession(id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return err
	}
	versions, err := st.ListVersions(sess.ID)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\033[1mSession Information\033[0m")
	fmt.Fprintf(out, "  Session ID:      %s\n", sess.ID)
	fmt.Fprintf(out, "  Document Name:   %s\n", sess.DocumentName)
	fmt.Fprintf(out, "  Created:         %s\n", sess.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Current Version: %d\n", sess.CurrentVersion)
	fmt.Fprintf(out, "  Total Versions:  %d\n", len(versions))
	fmt.Fprintf(out, "  Original Prompt: %s\n", sess.OriginalPrompt)
	fmt.Fprintf(out, "  Directory:       %s\n", filepath.Join(sessionDir, sess.ID))

	fmt.Fprintln(out, "\n\033[1mVersion History\033[0m")
	for _, v := range versions {
		fmt.Fprintf(out, "  v%d: %s (%s)\n", v.Number, v.ChangeDescription, v.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
