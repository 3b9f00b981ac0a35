package slack

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/jxucoder/latexgen/pkg/generator"
	"github.com/jxucoder/latexgen/pkg/processor"
)

type post struct {
	channel, text, threadTS string
}

type upload struct {
	params slack.UploadFileV2Parameters
	body   string
}

// fakePoster records posts and uploads instead of calling Slack.
type fakePoster struct {
	mu        sync.Mutex
	posts     []post
	uploads   []upload
	uploadErr error
}

func (f *fakePoster) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	_, values, err := slack.UnsafeApplyMsgOptions("", channelID, "", options...)
	if err != nil {
		return "", "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post{channel: channelID, text: values.Get("text"), threadTS: values.Get("thread_ts")})
	return channelID, "1.0", nil
}

func (f *fakePoster) UploadFileV2(params slack.UploadFileV2Parameters) (*slack.FileSummary, error) {
	u := upload{params: params, body: params.Content}
	if params.Reader != nil {
		b, _ := io.ReadAll(params.Reader)
		u.body = string(b)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, u)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &slack.FileSummary{ID: "F1"}, nil
}

type fakePipeline struct {
	result  *processor.Result
	latex   string
	err     error
	prompts []string
}

func (f *fakePipeline) GenerateAndCompile(_ context.Context, req generator.Request, _ processor.Output) *processor.Result {
	f.prompts = append(f.prompts, req.Prompt)
	return f.result
}

func (f *fakePipeline) GenerateLaTeX(_ context.Context, req generator.Request) (string, error) {
	f.prompts = append(f.prompts, req.Prompt)
	return f.latex, f.err
}

func mention(text string) *slackevents.AppMentionEvent {
	return &slackevents.AppMentionEvent{Channel: "C1", Text: text, TimeStamp: "111.222"}
}

// ---------------------------------------------------------------------------
// parseMention
// ---------------------------------------------------------------------------

func TestParseMention(t *testing.T) {
	tests := []struct {
		in         string
		prompt     string
		sourceOnly bool
	}{
		{"<@U123> a cover letter", "a cover letter", false},
		{"<@U123>   latex a short memo", "a short memo", true},
		{"<@U123> LaTeX: poster", "poster", true},
		{"<@U123> latexify my notes", "latexify my notes", false},
		{"<@U123>", "", false},
		{"plain text", "plain text", false},
	}
	for _, tt := range tests {
		prompt, src := parseMention(tt.in)
		if prompt != tt.prompt || src != tt.sourceOnly {
			t.Errorf("parseMention(%q) = %q, %v; want %q, %v", tt.in, prompt, src, tt.prompt, tt.sourceOnly)
		}
	}
}

// ---------------------------------------------------------------------------
// handleMention
// ---------------------------------------------------------------------------

func TestHandleMention_UploadsPDF(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "slack_111_222.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	api := &fakePoster{}
	p := &fakePipeline{result: &processor.Result{Success: true, PDFPath: pdf, Engine: "pdflatex", Warnings: []string{"PDF generated with errors using pdflatex"}}}
	b := newBot(api, p, zerolog.Nop())

	b.handleMention(context.Background(), mention("<@U1> a poster"))

	if len(p.prompts) != 1 || p.prompts[0] != "a poster" {
		t.Fatalf("prompts = %v", p.prompts)
	}
	if len(api.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(api.uploads))
	}
	u := api.uploads[0]
	if u.params.Filename != "slack_111_222.pdf" || u.params.ThreadTimestamp != "111.222" || u.params.Channel != "C1" {
		t.Errorf("unexpected upload params: %+v", u.params)
	}
	if u.body != "%PDF-1.4 fake" || u.params.FileSize != len(u.body) {
		t.Errorf("uploaded %q (size %d)", u.body, u.params.FileSize)
	}
	if !strings.Contains(u.params.InitialComment, ":warning:") {
		t.Errorf("comment = %q", u.params.InitialComment)
	}
	if len(api.posts) != 1 || api.posts[0].threadTS != "111.222" {
		t.Errorf("posts = %+v", api.posts)
	}
}

func TestHandleMention_ThreadReply(t *testing.T) {
	api := &fakePoster{}
	b := newBot(api, &fakePipeline{}, zerolog.Nop())
	ev := mention("<@U1>")
	ev.ThreadTimeStamp = "100.000"

	b.handleMention(context.Background(), ev)

	if len(api.posts) != 1 || api.posts[0].threadTS != "100.000" {
		t.Errorf("posts = %+v", api.posts)
	}
}

func TestHandleMention_Failure(t *testing.T) {
	api := &fakePoster{}
	p := &fakePipeline{result: &processor.Result{Error: "LaTeX compilation failed: boom", Log: "FINAL ERROR: All LaTeX engines failed"}}
	newBot(api, p, zerolog.Nop()).handleMention(context.Background(), mention("<@U1> x"))

	if len(api.uploads) != 0 {
		t.Error("nothing should be uploaded on failure")
	}
	last := api.posts[len(api.posts)-1].text
	if !strings.Contains(last, "LaTeX compilation failed") || !strings.Contains(last, "FINAL ERROR") {
		t.Errorf("failure post = %q", last)
	}
}

func TestHandleMention_SourceOnly(t *testing.T) {
	api := &fakePoster{}
	p := &fakePipeline{latex: "\\documentclass{article}"}
	newBot(api, p, zerolog.Nop()).handleMention(context.Background(), mention("<@U1> latex a memo"))

	if len(api.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(api.uploads))
	}
	if u := api.uploads[0]; u.params.Filename != "document.tex" || u.body != "\\documentclass{article}" {
		t.Errorf("unexpected upload: %+v", u.params)
	}
}

func TestHandleMention_SourceOnlyUploadFallsBackToPost(t *testing.T) {
	api := &fakePoster{uploadErr: errors.New("missing_scope")}
	p := &fakePipeline{latex: "\\documentclass{article}"}
	newBot(api, p, zerolog.Nop()).handleMention(context.Background(), mention("<@U1> latex a memo"))

	if len(api.posts) != 1 || !strings.Contains(api.posts[0].text, "\\documentclass{article}") {
		t.Errorf("posts = %+v", api.posts)
	}
}
