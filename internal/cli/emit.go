package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ThatSaxyDev/telling-logger-go/internal/config"
	"github.com/ThatSaxyDev/telling-logger-go/internal/storage"
	"github.com/ThatSaxyDev/telling-logger-go/pkg/telling"
)

func newEmitCmd() *cobra.Command {
	var (
		endpoint string
		count    int
		userID   string
		crash    bool
		wait     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Drive the pipeline end to end against a collector",
		Long: `Initializes a pipeline client, emits a stream of analytics events
(optionally capped with a crash), flushes, and exits. Pair it with the
collect command to watch batches arrive.

Unsent events persist between runs: the store is file-backed under
TELLING_STORAGE_DIR, or Redis when TELLING_REDIS_ADDR is set. Kill a run
mid-flight and the next run delivers what the first one buffered.`,
		Example: `  telling emit --endpoint http://localhost:8080/events --count 30
  telling emit --endpoint http://localhost:8080/events --user user42 --crash
  TELLING_REDIS_ADDR=localhost:6379 telling emit --endpoint http://localhost:8080/events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint == "" {
				return errors.New("--endpoint is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, err := newStore(cfg)
			if err != nil {
				return err
			}

			client := telling.New()
			client.Init(cfg.APIKey, telling.Options{
				Endpoint:   endpoint,
				Debug:      true,
				AppVersion: "0.0.0-dev",
				Store:      store,
			})
			defer client.Dispose()

			for i := 0; i < count; i++ {
				client.Event("emit_tick", map[string]any{"tick": i})
			}
			if userID != "" {
				client.SetUser(userID, "", "")
				client.Event("emit_identified", nil)
			}
			if crash {
				client.CaptureException(
					fmt.Errorf("synthetic crash after %d events", count),
					map[string]any{"source": "emit"})
			}

			client.Flush()

			// Delivery is asynchronous; give the flush a moment to land.
			time.Sleep(wait)
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "collector URL to deliver batches to")
	cmd.Flags().IntVar(&count, "count", 25, "number of analytics events to emit")
	cmd.Flags().StringVar(&userID, "user", "", "identify as this user before finishing")
	cmd.Flags().BoolVar(&crash, "crash", false, "capture a synthetic exception at the end")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "how long to wait for delivery before exiting")

	return cmd
}

// newStore picks the durable backend: Redis when configured, local files
// otherwise.
func newStore(cfg *config.Config) (storage.Store, error) {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return storage.NewRedis(client, "telling"), nil
	}
	return storage.NewFile(cfg.StorageDir)
}
