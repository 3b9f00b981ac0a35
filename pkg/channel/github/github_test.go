package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jxucoder/latexgen/pkg/generator"
	"github.com/jxucoder/latexgen/pkg/processor"
	publish "github.com/jxucoder/latexgen/pkg/publish/github"
)

// stubPipeline records prompts and returns a fixed result.
type stubPipeline struct {
	mu      sync.Mutex
	result  *processor.Result
	prompts []string
	outs    []processor.Output
}

func (s *stubPipeline) GenerateAndCompile(_ context.Context, req generator.Request, out processor.Output) *processor.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, req.Prompt)
	s.outs = append(s.outs, out)
	if s.result == nil {
		return &processor.Result{Error: "LaTeX generation failed: stub"}
	}
	return s.result
}

func (s *stubPipeline) GenerateLaTeX(context.Context, generator.Request) (string, error) {
	return "", errors.New("not used")
}

// stubPublisher records commits and comments.
type stubPublisher struct {
	mu         sync.Mutex
	opts       publish.Options
	files      []publish.File
	comments   []string
	publishErr error
}

func (s *stubPublisher) Publish(_ context.Context, opts publish.Options, files ...publish.File) ([]publish.Published, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
	s.files = files
	if s.publishErr != nil {
		return nil, s.publishErr
	}
	var out []publish.Published
	for _, f := range files {
		p := opts.Dir + "/" + f.Path
		out = append(out, publish.Published{Path: p, HTMLURL: "https://github.com/" + opts.Repo + "/blob/main/" + p, Created: true})
	}
	return out, nil
}

func (s *stubPublisher) Comment(_ context.Context, _ string, _ int, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, body)
	return nil
}

func makePayload(t *testing.T, action string, labels []string, labeledName string) []byte {
	t.Helper()
	var ls []label
	for _, l := range labels {
		ls = append(ls, label{Name: l})
	}
	p := issuesPayload{
		Action: action,
		Issue: issue{
			Number: 42,
			Title:  "Test issue",
			Body:   "some body",
			Labels: ls,
		},
		Repository: repoRef{FullName: "owner/repo"},
	}
	if labeledName != "" {
		p.Label = &label{Name: labeledName}
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func post(ch *Channel, event string, body []byte, sig string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github-issues", strings.NewReader(string(body)))
	req.Header.Set("X-GitHub-Event", event)
	if sig != "" {
		req.Header.Set("X-Hub-Signature-256", sig)
	}
	w := httptest.NewRecorder()
	ch.handleWebhook(w, req)
	return w.Code
}

// ---------------------------------------------------------------------------
// Webhook filtering
// ---------------------------------------------------------------------------

func TestWebhookSignatureVerification(t *testing.T) {
	ch := New("my-secret", "", &stubPipeline{}, &stubPublisher{})
	body := makePayload(t, "opened", []string{"latexgen"}, "")

	if code := post(ch, "issues", body, ""); code != http.StatusUnauthorized {
		t.Errorf("missing sig: got %d, want %d", code, http.StatusUnauthorized)
	}
	if code := post(ch, "issues", body, "sha256=deadbeef"); code != http.StatusUnauthorized {
		t.Errorf("wrong sig: got %d, want %d", code, http.StatusUnauthorized)
	}
	if code := post(ch, "issues", body, signPayload("my-secret", body)); code != http.StatusAccepted {
		t.Errorf("correct sig: got %d, want %d", code, http.StatusAccepted)
	}
}

func TestWebhookLabelFiltering(t *testing.T) {
	ch := New("", "", &stubPipeline{}, &stubPublisher{})

	if code := post(ch, "issues", makePayload(t, "opened", []string{"bug"}, ""), ""); code != http.StatusOK {
		t.Errorf("no label: got %d, want %d", code, http.StatusOK)
	}
	if code := post(ch, "issues", makePayload(t, "opened", []string{"LaTeXGen"}, ""), ""); code != http.StatusAccepted {
		t.Errorf("with label: got %d, want %d", code, http.StatusAccepted)
	}
}

func TestWebhookLabeledAction(t *testing.T) {
	ch := New("", "docs", &stubPipeline{}, &stubPublisher{})

	if code := post(ch, "issues", makePayload(t, "labeled", []string{"bug", "docs"}, "bug"), ""); code != http.StatusOK {
		t.Errorf("labeled non-trigger: got %d, want %d", code, http.StatusOK)
	}
	if code := post(ch, "issues", makePayload(t, "labeled", []string{"bug", "docs"}, "docs"), ""); code != http.StatusAccepted {
		t.Errorf("labeled trigger: got %d, want %d", code, http.StatusAccepted)
	}
}

func TestWebhookIgnoredEvents(t *testing.T) {
	ch := New("", "", &stubPipeline{}, &stubPublisher{})
	body := makePayload(t, "opened", []string{"latexgen"}, "")

	for _, action := range []string{"edited", "closed"} {
		if code := post(ch, "issues", makePayload(t, action, []string{"latexgen"}, ""), ""); code != http.StatusOK {
			t.Errorf("%s action: got %d, want %d", action, code, http.StatusOK)
		}
	}
	if code := post(ch, "push", body, ""); code != http.StatusOK {
		t.Errorf("push event: got %d, want %d", code, http.StatusOK)
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	ch := New("", "", &stubPipeline{}, &stubPublisher{})
	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/github-issues", nil)
	w := httptest.NewRecorder()
	ch.handleWebhook(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: got %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

// ---------------------------------------------------------------------------
// processIssue
// ---------------------------------------------------------------------------

func TestProcessIssue_PublishesAndComments(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "issue-42.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	pipe := &stubPipeline{result: &processor.Result{Success: true, LaTeX: "\\documentclass{article}", PDFPath: pdf, Engine: "pdflatex"}}
	pub := &stubPublisher{}
	ch := New("", "", pipe, pub, WithDir("papers"))

	ch.processIssue(context.Background(), "owner/repo", issue{Number: 42, Title: "A poster", Body: "A1 size"})

	if len(pipe.prompts) != 1 || pipe.prompts[0] != "A poster\n\nA1 size" {
		t.Errorf("prompts = %q", pipe.prompts)
	}
	if pipe.outs[0].Filename != "issue-42" {
		t.Errorf("filename = %q", pipe.outs[0].Filename)
	}
	if pub.opts.Repo != "owner/repo" || pub.opts.Dir != "papers" || !strings.Contains(pub.opts.Message, "#42") {
		t.Errorf("publish options = %+v", pub.opts)
	}
	if len(pub.files) != 2 || pub.files[0].Path != "issue-42.tex" || string(pub.files[1].Content) != "%PDF-1.4" {
		t.Errorf("files = %+v", pub.files)
	}
	if len(pub.comments) != 1 || !strings.Contains(pub.comments[0], "papers/issue-42.pdf") {
		t.Errorf("comments = %q", pub.comments)
	}
}

func TestProcessIssue_FailureComments(t *testing.T) {
	pipe := &stubPipeline{result: &processor.Result{Error: "LaTeX compilation failed: x", Log: "! Missing $ inserted."}}
	pub := &stubPublisher{}
	New("", "", pipe, pub).processIssue(context.Background(), "owner/repo", issue{Number: 1, Title: "t"})

	if pub.files != nil {
		t.Error("nothing should be published on failure")
	}
	if len(pub.comments) != 1 || !strings.Contains(pub.comments[0], "Missing $ inserted") {
		t.Errorf("comments = %q", pub.comments)
	}
}

func TestProcessIssue_PublishError(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "issue-3.pdf")
	os.WriteFile(pdf, []byte("%PDF"), 0o644)
	pipe := &stubPipeline{result: &processor.Result{Success: true, PDFPath: pdf}}
	pub := &stubPublisher{publishErr: errors.New("403 forbidden")}
	New("", "", pipe, pub).processIssue(context.Background(), "owner/repo", issue{Number: 3, Title: "t"})

	if len(pub.comments) != 1 || !strings.Contains(pub.comments[0], "403 forbidden") {
		t.Errorf("comments = %q", pub.comments)
	}
}
