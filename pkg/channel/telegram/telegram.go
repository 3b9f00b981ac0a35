// Package telegram provides a Telegram bot channel for latexgen.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/jxucoder/latexgen/pkg/channel"
	"github.com/jxucoder/latexgen/pkg/generator"
	"github.com/jxucoder/latexgen/pkg/pdfinfo"
	"github.com/jxucoder/latexgen/pkg/processor"
)

// maxLogTail keeps failure replies under Telegram's 4096 character limit.
const maxLogTail = 3500

// sender is the subset of *tgbotapi.BotAPI used to reply.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot is the Telegram bot for latexgen.
type Bot struct {
	api      *tgbotapi.BotAPI
	send     sender
	pipeline channel.Pipeline
	logger   zerolog.Logger
}

var _ channel.Channel = (*Bot)(nil)

// NewBot creates a new Telegram bot.
func NewBot(token string, pipeline channel.Pipeline, logger zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating Telegram bot: %w", err)
	}
	logger.Info().Str("bot", api.Self.UserName).Msg("Telegram bot authorized")

	b := newBot(api, pipeline, logger)
	b.api = api
	return b, nil
}

func newBot(s sender, pipeline channel.Pipeline, logger zerolog.Logger) *Bot {
	return &Bot{send: s, pipeline: pipeline, logger: logger.With().Str("channel", "telegram").Logger()}
}

// Name returns the channel name.
func (b *Bot) Name() string { return "telegram" }

// Run starts the long-polling loop. Blocks until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info().Msg("Telegram bot listening for messages")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				go b.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chatID := msg.Chat.ID

	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, chatID, msg.MessageID, text)
		return
	}
	b.handleGenerate(ctx, chatID, msg.MessageID, text)
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, replyTo int, text string) {
	parts := strings.Fields(text)
	cmd := strings.ToLower(parts[0])
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	arg := strings.TrimSpace(strings.TrimPrefix(text, parts[0]))

	switch cmd {
	case "/start", "/help":
		b.sendHelp(chatID, replyTo)
	case "/pdf":
		if arg == "" {
			b.sendReply(chatID, replyTo, "Usage: `/pdf a one page cover letter`")
			return
		}
		b.handleGenerate(ctx, chatID, replyTo, arg)
	case "/latex":
		if arg == "" {
			b.sendReply(chatID, replyTo, "Usage: `/latex a two column article about Go`")
			return
		}
		b.handleLaTeX(ctx, chatID, replyTo, arg)
	default:
		b.sendReply(chatID, replyTo, fmt.Sprintf("Unknown command `%s`\\. Try /help", escapeMarkdown(cmd)))
	}
}

// handleGenerate runs the full pipeline and replies with the PDF, or with
// the error and the tail of the compiler log.
func (b *Bot) handleGenerate(ctx context.Context, chatID int64, replyTo int, prompt string) {
	b.sendChatAction(chatID, tgbotapi.ChatUploadDocument)
	b.sendReply(chatID, replyTo, fmt.Sprintf("⚙ Generating _%s_\\.\\.\\.", escapeMarkdown(channel.Title(prompt))))

	res := b.pipeline.GenerateAndCompile(ctx, generator.Request{Prompt: prompt}, processor.Output{
		Filename: fmt.Sprintf("telegram_%d_%d", chatID, replyTo),
		SkipTeX:  true,
	})
	if !res.Success {
		b.logger.Warn().Int64("chat", chatID).Str("error", res.Error).Msg("document request failed")
		reply := fmt.Sprintf("❌ %s", escapeMarkdown(res.Error))
		if res.Log != "" {
			reply += fmt.Sprintf("\n\n```\n%s\n```", escapeMarkdown(channel.LogTail(res.Log, maxLogTail)))
		}
		b.sendReply(chatID, replyTo, reply)
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(res.PDFPath))
	doc.ReplyToMessageID = replyTo
	doc.Caption = caption(res)
	if _, err := b.send.Send(doc); err != nil {
		b.logger.Error().Err(err).Int64("chat", chatID).Msg("failed to send PDF")
		b.sendReply(chatID, replyTo, fmt.Sprintf("❌ Could not upload the PDF: %s", escapeMarkdown(err.Error())))
	}
}

// handleLaTeX replies with the generated source as a .tex attachment.
func (b *Bot) handleLaTeX(ctx context.Context, chatID int64, replyTo int, prompt string) {
	b.sendChatAction(chatID, tgbotapi.ChatTyping)

	latex, err := b.pipeline.GenerateLaTeX(ctx, generator.Request{Prompt: prompt})
	if err != nil {
		b.sendReply(chatID, replyTo, fmt.Sprintf("❌ LaTeX generation failed: %s", escapeMarkdown(err.Error())))
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "document.tex", Bytes: []byte(latex)})
	doc.ReplyToMessageID = replyTo
	doc.Caption = channel.Title(prompt)
	if _, err := b.send.Send(doc); err != nil {
		b.logger.Error().Err(err).Int64("chat", chatID).Msg("failed to send LaTeX")
	}
}

func caption(res *processor.Result) string {
	parts := []string{"Compiled with " + res.Engine}
	if info, err := pdfinfo.Inspect(res.PDFPath); err == nil {
		parts = append(parts, fmt.Sprintf("%d page(s), %s", info.Pages, pdfinfo.HumanSize(info.Size)))
	}
	if len(res.Warnings) > 0 {
		parts = append(parts, "⚠ "+strings.Join(res.Warnings, "; "))
	}
	return strings.Join(parts, "\n")
}

func (b *Bot) sendHelp(chatID int64, replyTo int) {
	b.sendReply(chatID, replyTo, ""+
		"*latexgen* turns a description into a PDF\\.\n\n"+
		"Just send a message describing the document:\n"+
		"`a modern CV for a backend engineer`\n\n"+
		"*Commands:*\n"+
		"/pdf \\<description\\> \\-\\- Generate and compile a PDF\n"+
		"/latex \\<description\\> \\-\\- Return the LaTeX source only\n"+
		"/help \\-\\- Show this message")
}

func (b *Bot) sendChatAction(chatID int64, action string) {
	b.send.Send(tgbotapi.NewChatAction(chatID, action))
}

func (b *Bot) sendReply(chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := b.send.Send(msg); err != nil {
		b.logger.Warn().Err(err).Msg("failed to send message, retrying as plain text")
		msg.ParseMode = ""
		msg.Text = stripMarkdown(text)
		b.send.Send(msg)
	}
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]",
		"(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`",
		">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
		"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}",
		".", "\\.", "!", "\\!",
	)
	return replacer.Replace(s)
}

func stripMarkdown(s string) string {
	r := strings.NewReplacer(
		"\\\\", "\\",
		"\\*", "*", "\\_", "_", "\\[", "[", "\\]", "]",
		"\\(", "(", "\\)", ")", "\\~", "~", "\\`", "`",
		"\\>", ">", "\\#", "#", "\\+", "+", "\\-", "-",
		"\\=", "=", "\\|", "|", "\\{", "{", "\\}", "}",
		"\\.", ".", "\\!", "!",
	)
	return r.Replace(s)
}
