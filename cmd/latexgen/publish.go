package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	publish "github.com/jxucoder/latexgen/pkg/publish/github"
)

var (
	publishRepo   string
	publishPath   string
	publishBranch string
)

var publishCmd = &cobra.Command{
	Use:   "publish SESSION_ID",
	Short: "Commit a session's current .tex and .pdf to a GitHub repository",
	Long: `Compile the current version of a session and commit <name>.tex and
<name>.pdf to a GitHub repository. Requires GITHUB_TOKEN.

  latexgen publish resume-1a2b3c4d --repo octo/docs --path cv --branch main`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishRepo, "repo", "", "Target repository (owner/repo)")
	publishCmd.Flags().StringVar(&publishPath, "path", "documents", "Directory inside the repository")
	publishCmd.Flags().StringVar(&publishBranch, "branch", "", "Branch (default: the repository's default branch)")
	publishCmd.MarkFlagRequired("repo")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	pub := app.Publisher()
	if pub == nil {
		return fmt.Errorf("GITHUB_TOKEN is required (run: latexgen config set GITHUB_TOKEN <token>)")
	}

	ed := app.Editor()
	sess, err := ed.Get(args[0])
	if err != nil {
		return fmt.Errorf("session %s: %w", args[0], err)
	}
	comp, err := ed.CompileCurrent(cmd.Context(), sess.ID)
	if err != nil {
		return err
	}
	if !comp.Success {
		printLogTail(comp.Log)
		return fmt.Errorf("%s", comp.Error)
	}
	cur, err := ed.Current(sess.ID)
	if err != nil {
		return err
	}
	pdf, err := os.ReadFile(comp.PDFPath)
	if err != nil {
		return fmt.Errorf("reading PDF: %w", err)
	}

	published, err := pub.Publish(cmd.Context(), publish.Options{
		Repo:    publishRepo,
		Branch:  publishBranch,
		Dir:     publishPath,
		Message: fmt.Sprintf("Publish %s (version %d)", sess.DocumentName, cur.Number),
	},
		publish.File{Path: sess.ID + ".tex", Content: []byte(cur.LaTeX)},
		publish.File{Path: sess.ID + ".pdf", Content: pdf},
	)
	if err != nil {
		return err
	}

	printSuccess(fmt.Sprintf("Published version %d to %s", cur.Number, publishRepo))
	for _, p := range published {
		action := "updated"
		if p.Created {
			action = "created"
		}
		fmt.Printf("  %-8s %s\n", action, p.HTMLURL)
	}
	return nil
}
