package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forPelevin/tubebite/internal/api"
	"github.com/forPelevin/tubebite/internal/logging"
	"github.com/forPelevin/tubebite/internal/pipeline"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	cmd.Flags().String("addr", "", "Listen address (overrides config)")
	cmd.Flags().Bool("migrate", false, "Apply database migrations before serving")
	return cmd
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := pipeline.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		applied, err := app.Migrate(ctx)
		if err != nil {
			app.Close()
			return err
		}
		log.Info().Strs("applied", applied).Msg("migrations done")
	}

	stopPurge, err := app.Purger.Start(cfg.Housekeeping.Schedule)
	if err != nil {
		app.Close()
		return err
	}
	defer stopPurge()

	srv := api.New(api.Deps{
		Runs:           app.Orchestrator,
		History:        app.History,
		Purger:         app.Purger,
		UploadDir:      filepath.Join(cfg.ScratchDir, "uploads"),
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MediaDir:       app.MediaDir,
		Log:            logging.WithComponent(log, "http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("listening")
		errCh <- srv.Listen(cfg.Addr)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), pipeline.ShutdownTimeout)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	return errors.Join(serveErr, pipeline.ShutdownWithTimeout(app))
}
