// Package batch generates many documents from YAML job files in a directory.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/jxucoder/latexgen/pkg/generator"
	"github.com/jxucoder/latexgen/pkg/processor"
)

// Pipeline generates and compiles one document.
type Pipeline interface {
	GenerateAndCompile(ctx context.Context, req generator.Request, out processor.Output) *processor.Result
}

// Job describes one document to generate.
type Job struct {
	Name          string            `yaml:"name"`
	Prompt        string            `yaml:"prompt"`
	Context       string            `yaml:"context"`
	DocumentClass string            `yaml:"document_class"`
	Packages      []string          `yaml:"packages"`
	Settings      map[string]string `yaml:"settings"`
	SkipTeX       bool              `yaml:"skip_tex"`
}

// Request converts the job into a generator request. Options are attached
// only when the job sets any of them.
func (j Job) Request() generator.Request {
	req := generator.Request{Prompt: j.Prompt, Context: j.Context}
	if j.DocumentClass != "" || len(j.Packages) > 0 || len(j.Settings) > 0 {
		req.Options = &generator.Options{
			DocumentClass: j.DocumentClass,
			Packages:      j.Packages,
			Settings:      j.Settings,
		}
	}
	return req
}

// JobResult pairs a job name with its pipeline result.
type JobResult struct {
	Job    string            `json:"job"`
	Result *processor.Result `json:"result"`
}

// Runner loads jobs from a directory and runs them through a Pipeline.
type Runner struct {
	jobsDir     string
	pipeline    Pipeline
	concurrency int
	logger      zerolog.Logger
}

// New creates a Runner. Concurrency below 1 runs jobs one at a time.
func New(jobsDir string, pipeline Pipeline, concurrency int, logger zerolog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{jobsDir: jobsDir, pipeline: pipeline, concurrency: concurrency, logger: logger}
}

// LoadJobs reads all .yaml and .yml files from the jobs directory, sorted by
// file name. A missing directory yields no jobs.
func (r *Runner) LoadJobs() ([]Job, error) {
	entries, err := os.ReadDir(r.jobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading jobs directory: %w", err)
	}

	var jobs []Job
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		job, err := parseJobFile(filepath.Join(r.jobsDir, name))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		if job.Name == "" {
			job.Name = strings.TrimSuffix(name, ext)
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// Run loads every job and executes it. Per-job failures are reported in the
// results; the error is non-nil only when loading fails or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) ([]JobResult, error) {
	jobs, err := r.LoadJobs()
	if err != nil {
		return nil, err
	}
	return r.RunJobs(ctx, jobs)
}

// RunJobs executes the given jobs, preserving their order in the results.
func (r *Runner) RunJobs(ctx context.Context, jobs []Job) ([]JobResult, error) {
	results := make([]JobResult, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.logger.Info().Str("job", job.Name).Msg("running batch job")
			res := r.pipeline.GenerateAndCompile(ctx, job.Request(), processor.Output{
				Filename: job.Name,
				SkipTeX:  job.SkipTeX,
			})
			if !res.Success {
				r.logger.Warn().Str("job", job.Name).Str("error", res.Error).Msg("batch job failed")
			}
			results[i] = JobResult{Job: job.Name, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func parseJobFile(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if strings.TrimSpace(job.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	return &job, nil
}
