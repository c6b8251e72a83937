package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ThatSaxyDev/telling-logger-go/internal/collector"
	"github.com/ThatSaxyDev/telling-logger-go/internal/config"
	"github.com/ThatSaxyDev/telling-logger-go/internal/logger"
)

func newCollectCmd() *cobra.Command {
	var (
		port       string
		failStatus int
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run a local collector that receives and narrates event batches",
		Long: `Starts an HTTP collector on the given port. It validates the API key,
decompresses gzipped batches, and logs every event it receives.

Configuration comes from TELLING_* environment variables; flags override.
Set --fail-status (or TELLING_FAIL_STATUS) to make the collector answer
every batch with that status, which exercises the SDK's retry, backoff
and credential-disable behavior.`,
		Example: `  telling collect
  telling collect --port 9090
  TELLING_API_KEY=secret telling collect --fail-status 503`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.CollectorPort = port
			}
			if failStatus != 0 {
				cfg.FailStatus = failStatus
			}

			log, err := logger.New(cfg.Environment)
			if err != nil {
				return err
			}
			defer log.Sync()

			handler := collector.NewHandler(collector.Config{
				APIKey:     cfg.APIKey,
				FailStatus: cfg.FailStatus,
			}, log)

			srv := &http.Server{
				Addr:    ":" + cfg.CollectorPort,
				Handler: handler,
			}

			log.Info("Collector listening",
				zap.String("port", cfg.CollectorPort),
				zap.Int("fail_status", cfg.FailStatus))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info("Shutting down collector")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "port to listen on (default from TELLING_COLLECTOR_PORT)")
	cmd.Flags().IntVar(&failStatus, "fail-status", 0, "answer every batch with this status instead of 200")

	return cmd
}
