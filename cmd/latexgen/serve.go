package main

import (
	"github.com/spf13/cobra"

	"github.com/jxucoder/latexgen"
	"github.com/jxucoder/latexgen/internal/logging"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the configured bots",
	Long: `Start the HTTP API. Telegram, Slack and the GitHub Issues webhook
start alongside it when their tokens are configured.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default LATEXGEN_ADDR or :7080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.ServerAddr = serveAddr
	}

	// A server logs JSON lines rather than console output.
	logger := logging.New(cfg.LogLevel, nil)
	app, err := latexgen.NewBuilder().
		WithConfig(cfg).
		WithLogger(logger).
		WithConfiguredChannels().
		Build()
	if err != nil {
		return err
	}

	if err := app.Compiler().Validate(cmd.Context()); err != nil {
		logger.Warn().Err(err).Msg("LaTeX engine check failed; compilation requests will fail")
	}
	for _, ch := range app.Channels() {
		logger.Info().Str("channel", ch.Name()).Msg("channel enabled")
	}
	return app.Start(cmd.Context())
}
