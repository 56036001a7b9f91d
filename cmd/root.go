package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/legal-assistant/wordkit/internal/app"
	"github.com/legal-assistant/wordkit/internal/config"
	"github.com/legal-assistant/wordkit/internal/db"
	"github.com/legal-assistant/wordkit/internal/format"
	"github.com/legal-assistant/wordkit/internal/logging"
	"github.com/legal-assistant/wordkit/internal/settings"
	"github.com/legal-assistant/wordkit/internal/status"
)

// Version is set at build time.
var Version = "dev"

// runtime holds what PersistentPreRunE set up for the running command.
type runtime struct {
	cfg    *config.Config
	conn   *sql.DB
	store  *settings.Store
	app    *app.App
	output format.OutputFormat
}

var rt *runtime

var rootCmd = &cobra.Command{
	Use:   "wordkit",
	Short: "Apply AI-suggested edits to legal documents",
	Long: `wordkit asks a legal assistant to improve, draft, or proofread the selected
part of a document and applies the suggested edits: replacements, inserted
clauses, and comments anchored to the quoted text. Changes are tracked when
the document supports it and every run is recorded in a local history.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" || cmd.Name() == cobra.ShellCompRequestCmd {
		return nil
	}

	// Setup logging
	lvl := new(slog.LevelVar)
	textHandler := slog.NewTextHandler(logging.NewSlogWriter(), &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(logging.NewRunIDHandler(textHandler)))

	// Load the config
	debug, _ := cmd.Flags().GetBool("debug")
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		if err := os.Chdir(cwd); err != nil {
			return fmt.Errorf("failed to change directory: %v", err)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %v", err)
	}
	cfg, err := config.Load(cwd, debug)
	if err != nil {
		return err
	}
	if cfg.Debug {
		lvl.Set(slog.LevelDebug)
	}
	if cmd.Flags().Changed("profile") {
		cfg.Profile, _ = cmd.Flags().GetString("profile")
	}

	outputFormatStr, _ := cmd.Flags().GetString("output-format")
	outputFormat := format.OutputFormat(outputFormatStr)
	if !outputFormat.IsValid() {
		return fmt.Errorf("invalid output format: %s", outputFormatStr)
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		setupVerboseLogging(os.Stderr)
	}

	ctx := cmd.Context()

	// Connect DB, this will also run migrations
	dataDir := cfg.DataDirectory()
	conn, err := db.Connect(ctx, dataDir)
	if err != nil {
		return err
	}
	rt = &runtime{cfg: cfg, conn: conn, output: outputFormat}

	if err := logging.InitService(conn); err != nil {
		slog.Error("Failed to initialize logging service", "error", err)
		return err
	}

	store, err := settings.OpenDir(ctx, filepath.Join(dataDir, "settings"), cfg.Profile)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	rt.store = store

	printer := newStatusPrinter(cmd.ErrOrStderr(), quiet)
	status.InitService(printer)

	a, err := app.New(ctx, conn, cfg, store, app.WithStatus(printer))
	if err != nil {
		slog.Error("Failed to create app", "error", err)
		return err
	}
	rt.app = a
	return nil
}

// shutdown releases what setup acquired. It runs even when the command
// failed.
func shutdown() {
	if rt == nil {
		return
	}
	if rt.app != nil {
		rt.app.Shutdown()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			slog.Warn("Failed to close settings", "error", err)
		}
	}
	logging.Flush(2 * time.Second)
	if rt.conn != nil {
		rt.conn.Close()
	}
	rt = nil
}

// reauthHint points the user at login when their token was rejected.
func reauthHint(err error) error {
	if errors.Is(err, app.ErrReauthenticate) || errors.Is(err, app.ErrNotSignedIn) {
		return fmt.Errorf("%w (run `wordkit login`)", err)
	}
	return err
}

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	shutdown()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().StringP("output-format", "f", "text", "Output format (text, json)")
	rootCmd.PersistentFlags().String("profile", settings.DefaultProfile, "Settings profile holding the sign in")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only show errors and critical messages")
	rootCmd.PersistentFlags().BoolP("verbose", "", false, "Display logs to stderr")

	// Make quiet and verbose mutually exclusive
	rootCmd.MarkFlagsMutuallyExclusive("quiet", "verbose")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(improveCmd, draftCmd, proofreadCmd, applyCmd)
	rootCmd.AddCommand(historyCmd)
}
