// Package github provides a GitHub Issues webhook channel for latexgen.
//
// When an issue is opened or labeled with the trigger label (default
// "latexgen"), the issue title and body become the document request. The
// .tex and .pdf are committed to the repository and linked in a comment.
//
// Setup:
//  1. Create a GitHub webhook pointing at <server>/api/webhooks/github-issues
//  2. Select "Issues" events and give the webhook a secret
//  3. Set GITHUB_TOKEN and GITHUB_WEBHOOK_SECRET; the channel only starts
//     when both are set
//  4. Optionally set GITHUB_ISSUES_TRIGGER_LABEL (default "latexgen")
package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jxucoder/latexgen/pkg/channel"
	"github.com/jxucoder/latexgen/pkg/generator"
	"github.com/jxucoder/latexgen/pkg/processor"
	publish "github.com/jxucoder/latexgen/pkg/publish/github"
)

// DefaultTriggerLabel marks issues that should be turned into documents.
const DefaultTriggerLabel = "latexgen"

const maxLogTail = 2000

// Publisher commits files and comments on issues.
type Publisher interface {
	Publish(ctx context.Context, opts publish.Options, files ...publish.File) ([]publish.Published, error)
	Comment(ctx context.Context, repo string, number int, body string) error
}

// Channel is a webhook-based GitHub Issues channel.
type Channel struct {
	secret       string // webhook HMAC secret
	triggerLabel string
	dir          string
	pipeline     channel.Pipeline
	publisher    Publisher
	logger       zerolog.Logger
	addr         string
	baseCtx      context.Context
}

var _ channel.Channel = (*Channel)(nil)

// Option configures the GitHub Issues channel.
type Option func(*Channel)

// WithAddr sets the listen address for the webhook server (default ":7092").
func WithAddr(addr string) Option {
	return func(c *Channel) { c.addr = addr }
}

// WithDir sets the repository directory documents are committed under
// (default "documents").
func WithDir(dir string) Option {
	return func(c *Channel) { c.dir = dir }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Channel) { c.logger = logger }
}

// New creates a new GitHub Issues webhook channel.
func New(secret, triggerLabel string, pipeline channel.Pipeline, publisher Publisher, opts ...Option) *Channel {
	if triggerLabel == "" {
		triggerLabel = DefaultTriggerLabel
	}
	c := &Channel{
		secret:       secret,
		triggerLabel: strings.ToLower(triggerLabel),
		dir:          "documents",
		pipeline:     pipeline,
		publisher:    publisher,
		logger:       zerolog.Nop(),
		addr:         ":7092",
		baseCtx:      context.Background(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With().Str("channel", "github-issues").Logger()
	return c
}

// Name returns the channel name.
func (c *Channel) Name() string { return "github-issues" }

// Run starts the webhook HTTP server. Blocks until ctx is done.
func (c *Channel) Run(ctx context.Context) error {
	c.baseCtx = ctx
	mux := http.NewServeMux()
	mux.HandleFunc("/api/webhooks/github-issues", c.handleWebhook)

	srv := &http.Server{Addr: c.addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	c.logger.Info().Str("addr", c.addr).Msg("GitHub Issues webhook listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- Webhook handling ---

// issuesPayload is the subset of GitHub issues webhook fields we use.
type issuesPayload struct {
	Action     string  `json:"action"`
	Issue      issue   `json:"issue"`
	Label      *label  `json:"label,omitempty"` // present when action is "labeled"
	Repository repoRef `json:"repository"`
}

type issue struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	Labels []label `json:"labels"`
}

type label struct {
	Name string `json:"name"`
}

type repoRef struct {
	FullName string `json:"full_name"`
}

func (c *Channel) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if c.secret != "" && !c.verifySignature(r, body) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if r.Header.Get("X-GitHub-Event") != "issues" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var payload issuesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	switch payload.Action {
	case "opened":
		if !c.hasTriggerLabel(payload.Issue.Labels) {
			w.WriteHeader(http.StatusOK)
			return
		}
	case "labeled":
		if payload.Label == nil || strings.ToLower(payload.Label.Name) != c.triggerLabel {
			w.WriteHeader(http.StatusOK)
			return
		}
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	go c.processIssue(c.baseCtx, payload.Repository.FullName, payload.Issue)
	w.WriteHeader(http.StatusAccepted)
}

func (c *Channel) verifySignature(r *http.Request, body []byte) bool {
	sig := r.Header.Get("X-Hub-Signature-256")
	if sig == "" {
		return false
	}
	sig = strings.TrimPrefix(sig, "sha256=")
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}

func (c *Channel) hasTriggerLabel(labels []label) bool {
	for _, l := range labels {
		if strings.ToLower(l.Name) == c.triggerLabel {
			return true
		}
	}
	return false
}

// processIssue generates the document, commits it and reports back.
func (c *Channel) processIssue(ctx context.Context, repo string, is issue) {
	logger := c.logger.With().Str("repo", repo).Int("issue", is.Number).Logger()
	prompt := is.Title
	if strings.TrimSpace(is.Body) != "" {
		prompt += "\n\n" + is.Body
	}

	name := fmt.Sprintf("issue-%d", is.Number)
	res := c.pipeline.GenerateAndCompile(ctx, generator.Request{Prompt: prompt}, processor.Output{Filename: name})
	if !res.Success {
		logger.Warn().Str("error", res.Error).Msg("document request failed")
		msg := "Document generation failed: " + res.Error
		if res.Log != "" {
			msg += fmt.Sprintf("\n\n<details><summary>Compiler log</summary>\n\n```\n%s\n```\n</details>", channel.LogTail(res.Log, maxLogTail))
		}
		c.comment(ctx, repo, is.Number, msg)
		return
	}

	pdf, err := os.ReadFile(res.PDFPath)
	if err != nil {
		logger.Error().Err(err).Msg("reading PDF")
		c.comment(ctx, repo, is.Number, "Document compiled but the PDF could not be read.")
		return
	}

	published, err := c.publisher.Publish(ctx, publish.Options{
		Repo:    repo,
		Dir:     c.dir,
		Message: fmt.Sprintf("Add document for #%d", is.Number),
	},
		publish.File{Path: name + ".tex", Content: []byte(res.LaTeX)},
		publish.File{Path: name + ".pdf", Content: pdf},
	)
	if err != nil {
		logger.Error().Err(err).Msg("publishing document")
		c.comment(ctx, repo, is.Number, fmt.Sprintf("Document compiled but could not be committed: %s", err))
		return
	}

	c.comment(ctx, repo, is.Number, resultComment(res, published))
}

func resultComment(res *processor.Result, published []publish.Published) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document ready (compiled with %s):\n\n", res.Engine)
	for _, p := range published {
		fmt.Fprintf(&b, "- [%s](%s)\n", p.Path, p.HTMLURL)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "\n> Warning: %s", w)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Channel) comment(ctx context.Context, repo string, number int, body string) {
	if err := c.publisher.Comment(ctx, repo, number, body); err != nil {
		c.logger.Error().Err(err).Str("repo", repo).Int("issue", number).Msg("failed to post comment")
	}
}
