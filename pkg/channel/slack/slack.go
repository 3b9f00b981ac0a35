// Package slack provides a Slack bot channel for latexgen using Socket Mode.
package slack

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/jxucoder/latexgen/pkg/channel"
	"github.com/jxucoder/latexgen/pkg/generator"
	"github.com/jxucoder/latexgen/pkg/pdfinfo"
	"github.com/jxucoder/latexgen/pkg/processor"
)

const maxLogTail = 2500

// poster is the subset of *slack.Client used to reply in threads.
type poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2(params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// Bot is the Slack Socket Mode bot for latexgen.
type Bot struct {
	api          poster
	socketClient *socketmode.Client
	pipeline     channel.Pipeline
	logger       zerolog.Logger
}

var _ channel.Channel = (*Bot)(nil)

// NewBot creates a new Slack Socket Mode bot.
func NewBot(botToken, appToken string, pipeline channel.Pipeline, logger zerolog.Logger) *Bot {
	api := slack.New(
		botToken,
		slack.OptionAppLevelToken(appToken),
	)

	b := newBot(api, pipeline, logger)
	b.socketClient = socketmode.New(
		api,
		socketmode.OptionLog(log.New(b.logger, "slack-socketmode: ", 0)),
	)
	return b
}

func newBot(api poster, pipeline channel.Pipeline, logger zerolog.Logger) *Bot {
	return &Bot{api: api, pipeline: pipeline, logger: logger.With().Str("channel", "slack").Logger()}
}

// Name returns the channel name.
func (b *Bot) Name() string { return "slack" }

// Run connects to Slack via Socket Mode and processes events.
func (b *Bot) Run(ctx context.Context) error {
	go b.eventLoop(ctx)
	b.logger.Info().Msg("Slack bot connecting via Socket Mode")
	return b.socketClient.RunContext(ctx)
}

func (b *Bot) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.socketClient.Events:
			if !ok {
				return
			}
			b.handleEvent(ctx, evt)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.logger.Debug().Msg("connecting")
	case socketmode.EventTypeConnected:
		b.logger.Info().Msg("connected")
	case socketmode.EventTypeConnectionError:
		b.logger.Warn().Msg("connection error, will retry")
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		b.socketClient.Ack(*evt.Request)

		if eventsAPIEvent.Type == slackevents.CallbackEvent {
			if ev, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.AppMentionEvent); ok {
				go b.handleMention(ctx, ev)
			}
		}
	case socketmode.EventTypeInteractive:
		b.socketClient.Ack(*evt.Request)
	}
}

// handleMention treats the mention text as a document request. A leading
// "latex" keyword returns the source instead of a PDF.
func (b *Bot) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	threadTS := ev.TimeStamp
	if ev.ThreadTimeStamp != "" {
		threadTS = ev.ThreadTimeStamp
	}

	prompt, sourceOnly := parseMention(ev.Text)
	if prompt == "" {
		b.postThread(ev.Channel, threadTS,
			"Please describe the document. Example:\n`@latexgen a one page cover letter for a Go developer`\n"+
				"Start with `latex` to get the source only.")
		return
	}

	if sourceOnly {
		b.replyLaTeX(ctx, ev.Channel, threadTS, prompt)
		return
	}

	b.postThread(ev.Channel, threadTS, fmt.Sprintf(":gear: Generating *%s*...", channel.Title(prompt)))

	res := b.pipeline.GenerateAndCompile(ctx, generator.Request{Prompt: prompt}, processor.Output{
		Filename: "slack_" + strings.ReplaceAll(threadTS, ".", "_"),
		SkipTeX:  true,
	})
	if !res.Success {
		b.logger.Warn().Str("slack_channel", ev.Channel).Str("error", res.Error).Msg("document request failed")
		msg := fmt.Sprintf(":x: *Error:* %s", res.Error)
		if res.Log != "" {
			msg += fmt.Sprintf("\n```\n%s\n```", channel.LogTail(res.Log, maxLogTail))
		}
		b.postThread(ev.Channel, threadTS, msg)
		return
	}

	if err := b.uploadPDF(ev.Channel, threadTS, prompt, res); err != nil {
		b.logger.Error().Err(err).Msg("failed to upload PDF")
		b.postThread(ev.Channel, threadTS, fmt.Sprintf(":x: Could not upload the PDF: %s", err))
	}
}

func (b *Bot) replyLaTeX(ctx context.Context, channelID, threadTS, prompt string) {
	latex, err := b.pipeline.GenerateLaTeX(ctx, generator.Request{Prompt: prompt})
	if err != nil {
		b.postThread(channelID, threadTS, fmt.Sprintf(":x: LaTeX generation failed: %s", err))
		return
	}
	_, err = b.api.UploadFileV2(slack.UploadFileV2Parameters{
		Content:         latex,
		FileSize:        len(latex),
		Filename:        "document.tex",
		Title:           channel.Title(prompt),
		Channel:         channelID,
		ThreadTimestamp: threadTS,
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to upload LaTeX")
		b.postThread(channelID, threadTS, fmt.Sprintf("```\n%s\n```", channel.Truncate(latex, 3000)))
	}
}

func (b *Bot) uploadPDF(channelID, threadTS, prompt string, res *processor.Result) error {
	f, err := os.Open(res.PDFPath)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}

	comment := ":white_check_mark: Compiled with " + res.Engine
	if info, err := pdfinfo.Inspect(res.PDFPath); err == nil {
		comment += fmt.Sprintf(" (%d page(s), %s)", info.Pages, pdfinfo.HumanSize(info.Size))
	}
	for _, w := range res.Warnings {
		comment += "\n:warning: " + w
	}

	_, err = b.api.UploadFileV2(slack.UploadFileV2Parameters{
		Reader:          f,
		FileSize:        int(st.Size()),
		Filename:        filepath.Base(res.PDFPath),
		Title:           channel.Title(prompt),
		InitialComment:  comment,
		Channel:         channelID,
		ThreadTimestamp: threadTS,
	})
	return err
}

func (b *Bot) postThread(channelID, threadTS, text string) {
	_, _, err := b.api.PostMessage(channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		b.logger.Error().Err(err).Str("slack_channel", channelID).Msg("failed to post message")
	}
}

// parseMention drops the leading bot mention and detects the "latex" keyword.
func parseMention(text string) (prompt string, sourceOnly bool) {
	prompt = strings.TrimSpace(text)
	if strings.HasPrefix(prompt, "<@") {
		if idx := strings.Index(prompt, ">"); idx >= 0 {
			prompt = strings.TrimSpace(prompt[idx+1:])
		}
	}
	first, rest, _ := strings.Cut(prompt, " ")
	if strings.EqualFold(strings.TrimSuffix(first, ":"), "latex") {
		return strings.TrimSpace(rest), true
	}
	return prompt, false
}
