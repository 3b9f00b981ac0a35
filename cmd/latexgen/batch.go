package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jxucoder/latexgen/pkg/batch"
)

var batchConcurrency int

var batchCmd = &cobra.Command{
	Use:   "batch DIR",
	Short: "Generate every document described by the YAML jobs in DIR",
	Long: `Generate one document per *.yaml or *.yml job file in DIR.

A job file looks like:

  name: cover-letter
  prompt: a one page cover letter for a Go position
  context: keep it formal
  document_class: letter
  packages: [geometry]
  settings:
    margin: 1in`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "j", 0, "Jobs run in parallel (default LATEXGEN_BATCH_CONCURRENCY or 2)")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	n := batchConcurrency
	if n == 0 {
		n = app.Config().BatchConcurrency
	}
	runner := batch.New(args[0], app.Processor(), n, newLogger(app.Config()))

	jobs, err := runner.LoadJobs()
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Printf("No job files found in %s\n", args[0])
		return nil
	}
	fmt.Printf("Running %d job(s) from %s\n\n", len(jobs), args[0])

	results, err := runner.RunJobs(cmd.Context(), jobs)
	if err != nil {
		return err
	}

	failed := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTATUS\tOUTPUT")
	for _, r := range results {
		if r.Result == nil {
			continue
		}
		if r.Result.Success {
			fmt.Fprintf(w, "%s\t\033[32mok\033[0m\t%s\n", r.Job, r.Result.PDFPath)
			continue
		}
		failed++
		fmt.Fprintf(w, "%s\t\033[31mfailed\033[0m\t%s\n", r.Job, r.Result.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d job(s) failed", failed, len(results))
	}
	fmt.Println()
	printSuccess(fmt.Sprintf("All %d job(s) completed", len(results)))
	return nil
}
