package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"jarvis/internal/agenda"
	"jarvis/internal/asana"
	"jarvis/internal/capture"
	"jarvis/internal/config"
	"jarvis/internal/ledger"
	"jarvis/internal/perception"
	"jarvis/internal/telegram"
	"jarvis/internal/transcribe"
)

// Version is set at build time.
var Version = "0.3.0"

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "jarvis",
	Short: "jarvis - Telegram capture assistant for Asana",
	Long: `jarvis turns Telegram messages into classified Asana tasks.

Text and voice notes are classified by an LLM into a project, priority,
summary, and kind, then filed into the matching board section. A local
ledger deduplicates retried messages so every capture lands exactly once.

Run "jarvis serve" to start the bot.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// app bundles the wired components a command needs.
type app struct {
	cfg         *config.Config
	ledger      *ledger.Ledger
	directory   *asana.Directory
	agenda      *agenda.Agenda
	pipeline    *capture.Pipeline
	transcriber *transcribe.Transcriber
}

func (a *app) Close() {
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
}

// buildApp loads config and wires the capture stack.
func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	led, err := ledger.Open(cfg.Ledger.DatabasePath, cfg.GetStaleAfter())
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	llm, err := perception.NewClientFromConfig(perception.ProviderConfig{
		Provider:    perception.Provider(cfg.LLM.Provider),
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.GetLLMTimeout(),
	})
	if err != nil {
		led.Close()
		return nil, err
	}
	classifier := perception.NewClassifier(llm, logger)

	asanaClient := asana.NewClient(cfg.Asana.AccessToken)
	directory := asana.NewDirectory(asanaClient, cfg.Asana.ProjectGID,
		cfg.Asana.FieldName, cfg.Asana.CachePath, logger)
	creator := asana.NewCreator(asanaClient, directory, cfg.Asana.ProjectGID, logger)

	pipeline := capture.NewPipeline(led, classifier, directory, creator, logger)
	board := agenda.New(asanaClient, directory, cfg.Asana.FieldName, logger)

	var transcriber *transcribe.Transcriber
	if cfg.Transcription.APIKey != "" {
		transcriber, err = transcribe.New(transcribe.Config{
			APIKey:   cfg.Transcription.APIKey,
			Model:    cfg.Transcription.Model,
			Language: cfg.Transcription.Language,
			Timeout:  cfg.GetTranscriptionTimeout(),
		})
		if err != nil {
			led.Close()
			return nil, err
		}
	}

	return &app{
		cfg:         cfg,
		ledger:      led,
		directory:   directory,
		agenda:      board,
		pipeline:    pipeline,
		transcriber: transcriber,
	}, nil
}

// serveCmd runs the Telegram bot
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot",
	Long: `Starts the capture bot. By default it long-polls the Telegram Bot API;
with telegram.webhook_listen set it serves a webhook endpoint instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		api, err := telegram.NewAPI(telegram.APIConfig{
			Token:   a.cfg.Telegram.BotToken,
			Timeout: a.cfg.GetPollTimeout() + 20*time.Second,
		})
		if err != nil {
			return err
		}

		bot, err := telegram.NewBot(telegram.BotConfig{
			API:           api,
			Pipeline:      a.pipeline,
			Agenda:        a.agenda,
			Transcriber:   a.transcriber,
			Refresher:     a.directory,
			AllowedChatID: a.cfg.Telegram.AllowedChatID,
			PollTimeout:   a.cfg.GetPollTimeout(),
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("jarvis starting", zap.String("version", Version))

		if a.cfg.Telegram.WebhookListen != "" {
			server := telegram.NewWebhookServer(bot,
				a.cfg.Telegram.WebhookListen, a.cfg.Telegram.WebhookPath, logger)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Start(gctx) })
			if err := g.Wait(); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		}

		if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

// captureCmd runs one message through the pipeline from the command line
var captureCmd = &cobra.Command{
	Use:   "capture [text]",
	Short: "Capture a single message without Telegram",
	Long: `Classifies the given text and creates the Asana task directly.
Useful for testing the pipeline and for scripting.

Example:
  jarvis capture "Preparar propuesta para el cliente antes del viernes"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		text := ""
		for i, arg := range args {
			if i > 0 {
				text += " "
			}
			text += arg
		}

		now := time.Now().UTC()
		conf, err := a.pipeline.Capture(cmd.Context(), capture.Message{
			Source:     "cli",
			ExternalID: now.Format(time.RFC3339Nano),
			Text:       text,
			ReceivedAt: now,
		})
		if err != nil {
			return err
		}

		fmt.Println(telegram.FormatConfirmation(*conf))
		return nil
	},
}

// refreshCmd re-discovers the Asana directory
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-discover Asana section and field GIDs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.directory.Refresh(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Asana directory refreshed.")
		return nil
	},
}

// agendaCmd prints section listings or the weekly summary
var agendaCmd = &cobra.Command{
	Use:   "agenda [hoy|semana|backlog|resumen]",
	Short: "Show pending tasks or the weekly summary",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		view := "hoy"
		if len(args) > 0 {
			view = args[0]
		}

		switch view {
		case "hoy", "semana", "backlog":
			section := map[string]string{
				"hoy": "Hoy", "semana": "Semana", "backlog": "Backlog",
			}[view]
			items, err := a.agenda.ListSection(cmd.Context(), section)
			if err != nil {
				return err
			}
			fmt.Println(telegram.FormatSectionListing(section, items))
		case "resumen":
			summary, err := a.agenda.WeeklySummary(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Println(telegram.FormatWeeklySummary(summary))
		default:
			return fmt.Errorf("unknown view: %s (valid: hoy, semana, backlog, resumen)", view)
		}
		return nil
	},
}

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("jarvis %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "jarvis.yaml", "Path to config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(agendaCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
