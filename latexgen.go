// Package latexgen is the top-level entry point for a latexgen application.
//
// Use the Builder to compose an application from configuration:
//
//	cfg, _ := config.Load()
//	app, err := latexgen.NewBuilder().WithConfig(cfg).Build()
//	app.Start(ctx)
//
// Or replace individual components:
//
//	app, err := latexgen.NewBuilder().
//	    WithConfig(cfg).
//	    WithLLM(myClient).
//	    WithStore(myStore).
//	    Build()
package latexgen

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/jxucoder/latexgen/internal/config"
	"github.com/jxucoder/latexgen/internal/httpapi"
	"github.com/jxucoder/latexgen/pkg/channel"
	ghChannel "github.com/jxucoder/latexgen/pkg/channel/github"
	slackChannel "github.com/jxucoder/latexgen/pkg/channel/slack"
	telegramChannel "github.com/jxucoder/latexgen/pkg/channel/telegram"
	"github.com/jxucoder/latexgen/pkg/compiler"
	"github.com/jxucoder/latexgen/pkg/editor"
	"github.com/jxucoder/latexgen/pkg/eventbus"
	"github.com/jxucoder/latexgen/pkg/generator"
	"github.com/jxucoder/latexgen/pkg/llm"
	llmAnthropic "github.com/jxucoder/latexgen/pkg/llm/anthropic"
	llmGemini "github.com/jxucoder/latexgen/pkg/llm/gemini"
	llmOpenAI "github.com/jxucoder/latexgen/pkg/llm/openai"
	"github.com/jxucoder/latexgen/pkg/processor"
	publish "github.com/jxucoder/latexgen/pkg/publish/github"
	"github.com/jxucoder/latexgen/pkg/store"
	sqliteStore "github.com/jxucoder/latexgen/pkg/store/sqlite"
)

// ErrNoProvider is returned when no LLM client is set and none can be built
// from the configuration.
var ErrNoProvider = errors.New("no LLM provider configured")

// Builder constructs a latexgen App.
type Builder struct {
	config   *config.Config
	logger   zerolog.Logger
	llm      llm.Client
	compiler *compiler.Compiler
	store    store.SessionStore
	bus      eventbus.Bus
	channels []channel.Channel
	// configChannels enables the Telegram, Slack and GitHub channels
	// derived from the configuration.
	configChannels bool
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{logger: zerolog.Nop()}
}

// WithConfig sets the application configuration.
func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	b.config = cfg
	return b
}

// WithLogger sets the logger handed to every component.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithLLM sets the LLM client instead of selecting one from the config.
func (b *Builder) WithLLM(client llm.Client) *Builder {
	b.llm = client
	return b
}

// WithCompiler sets the LaTeX compiler.
func (b *Builder) WithCompiler(c *compiler.Compiler) *Builder {
	b.compiler = c
	return b
}

// WithStore sets the session store implementation.
func (b *Builder) WithStore(s store.SessionStore) *Builder {
	b.store = s
	return b
}

// WithBus sets the event bus implementation.
func (b *Builder) WithBus(bus eventbus.Bus) *Builder {
	b.bus = bus
	return b
}

// WithChannel adds a channel to the application.
func (b *Builder) WithChannel(ch channel.Channel) *Builder {
	b.channels = append(b.channels, ch)
	return b
}

// WithConfiguredChannels adds the chat and webhook channels whose tokens
// are present in the configuration. Only `serve` wants them.
func (b *Builder) WithConfiguredChannels() *Builder {
	b.configChannels = true
	return b
}

// Build creates the App. Missing components are filled with defaults.
func (b *Builder) Build() (*App, error) {
	if err := applyDefaults(b); err != nil {
		return nil, err
	}

	gen := generator.New(b.llm, "").WithLogger(b.logger)
	proc, err := processor.New(gen, b.compiler, b.config.OutputDir, b.logger)
	if err != nil {
		b.store.Close()
		return nil, err
	}
	ed, err := editor.New(gen, b.compiler, b.store, b.bus, b.config.SessionDir)
	if err != nil {
		b.store.Close()
		return nil, err
	}
	ed.WithLogger(b.logger)

	app := &App{
		config:    b.config,
		logger:    b.logger,
		compiler:  b.compiler,
		processor: proc,
		editor:    ed,
		store:     b.store,
		channels:  b.channels,
	}
	if b.config.GitHubToken != "" {
		app.publisher = publish.New(b.config.GitHubToken)
	}
	app.api = httpapi.New(httpapi.Deps{
		Processor: proc,
		Compiler:  b.compiler,
		Editor:    ed,
		Store:     b.store,
		Bus:       b.bus,
		Logger:    b.logger,
	})

	if b.configChannels {
		chs, err := configuredChannels(b.config, proc, app.publisher, b.logger)
		if err != nil {
			b.store.Close()
			return nil, err
		}
		app.channels = append(app.channels, chs...)
	}
	return app, nil
}

// App is an assembled latexgen application.
type App struct {
	config    *config.Config
	logger    zerolog.Logger
	compiler  *compiler.Compiler
	processor *processor.Processor
	editor    *editor.Editor
	store     store.SessionStore
	publisher *publish.Client
	api       *httpapi.Server
	channels  []channel.Channel
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.config }

// Compiler returns the LaTeX compiler.
func (a *App) Compiler() *compiler.Compiler { return a.compiler }

// Processor returns the generate-and-compile pipeline.
func (a *App) Processor() *processor.Processor { return a.processor }

// Editor returns the editing-session manager.
func (a *App) Editor() *editor.Editor { return a.editor }

// Publisher returns the GitHub publisher, or nil without GITHUB_TOKEN.
func (a *App) Publisher() *publish.Client { return a.publisher }

// API returns the HTTP API handler.
func (a *App) API() *httpapi.Server { return a.api }

// Channels returns the channels started by Start.
func (a *App) Channels() []channel.Channel { return a.channels }

// Close releases the session store.
func (a *App) Close() error { return a.store.Close() }

// Start starts the HTTP API and all channels. Blocks until ctx is done.
func (a *App) Start(ctx context.Context) error {
	for _, ch := range a.channels {
		ch := ch
		go func() {
			a.logger.Info().Str("channel", ch.Name()).Msg("starting channel")
			if err := ch.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error().Err(err).Str("channel", ch.Name()).Msg("channel stopped")
			}
		}()
	}

	err := a.api.ListenAndServe(ctx, a.config.ServerAddr)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	return err
}

// NewLLM builds the LLM client selected by cfg.
func NewLLM(cfg *config.Config) (llm.Client, error) {
	provider := cfg.ResolvedProvider()
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("%w: %v", ErrNoProvider, cfg.Validate())
	}

	switch provider {
	case config.ProviderGemini:
		model := cfg.Model
		if model == "" {
			model = cfg.GeminiModel
		}
		return llmGemini.New(key, model, llmGemini.WithTimeout(cfg.RequestTimeout)), nil
	case config.ProviderOpenAI:
		var opts []option.RequestOption
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
		}
		return llmOpenAI.New(key, cfg.Model, cfg.RequestTimeout, opts...), nil
	case config.ProviderAnthropic:
		return llmAnthropic.New(key, cfg.Model, cfg.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// configuredChannels builds every channel whose credentials are configured.
func configuredChannels(cfg *config.Config, proc *processor.Processor, pub *publish.Client, logger zerolog.Logger) ([]channel.Channel, error) {
	var chs []channel.Channel
	if cfg.TelegramEnabled() {
		bot, err := telegramChannel.NewBot(cfg.TelegramBotToken, proc, logger)
		if err != nil {
			return nil, fmt.Errorf("starting telegram bot: %w", err)
		}
		chs = append(chs, bot)
	}
	if cfg.SlackEnabled() {
		chs = append(chs, slackChannel.NewBot(cfg.SlackBotToken, cfg.SlackAppToken, proc, logger))
	}
	if cfg.GitHubIssuesEnabled() && pub != nil {
		chs = append(chs, ghChannel.New(
			cfg.GitHubWebhookSecret,
			cfg.GitHubTriggerLabel,
			proc,
			pub,
			ghChannel.WithAddr(cfg.GitHubWebhookAddr),
			ghChannel.WithLogger(logger),
		))
	}
	return chs, nil
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// OpenStore opens the SQLite session store configured in cfg. It needs no
// LLM provider, so read-only tools can use it directly.
func OpenStore(cfg *config.Config) (*sqliteStore.Store, error) {
	if cfg.DatabasePath == "" {
		return nil, errors.New("database path is not configured")
	}
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	st, err := sqliteStore.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return st, nil
}

// applyDefaults fills in missing fields on the builder.
func applyDefaults(b *Builder) error {
	if b.config == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		b.config = cfg
	}
	if b.config.OutputDir == "" {
		b.config.OutputDir = processor.DefaultOutputDir
	}
	if b.config.SessionDir == "" {
		b.config.SessionDir = editor.DefaultSessionDir
	}
	if b.config.ServerAddr == "" {
		b.config.ServerAddr = ":7080"
	}

	// LLM before the store so a missing key does not leave an open database.
	if b.llm == nil {
		client, err := NewLLM(b.config)
		if err != nil {
			return err
		}
		b.llm = client
	}

	if b.compiler == nil {
		b.compiler = compiler.New(b.config.Engine,
			compiler.WithRunTimeout(b.config.CompileTimeout),
			compiler.WithLogger(b.logger),
		)
	}

	if b.store == nil {
		st, err := OpenStore(b.config)
		if err != nil {
			return err
		}
		b.store = st
	}

	if b.bus == nil {
		b.bus = eventbus.New(eventbus.DefaultBuffer)
	}
	return nil
}
