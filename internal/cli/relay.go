package cli

import (
	"matchmate-chat/internal/redis"
	"matchmate-chat/internal/relay"
	"matchmate-chat/internal/storage"

	"github.com/spf13/cobra"
)

func init() {
	relayCmd.Flags().String("port", "", "listen port (overrides RELAY_PORT)")
	rootCmd.AddCommand(relayCmd)
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the development chat relay",
	Long: `relay serves the chat REST API and realtime socket from memory.
With REDIS_ADDR set, several relays share rooms; with S3_BUCKET set, media
goes to the bucket instead of memory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, l := setup(cmd)
		defer l.Sync()

		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Relay.Port = port
		}

		ctx, stop := runContext(cmd.Context())
		defer stop()

		var opts []relay.Option
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		if rdb != nil {
			defer rdb.Close()
			opts = append(opts, relay.WithRedis(rdb))
			l.Infof("Sharing rooms through redis at %s", cfg.Redis.Addr)
		}

		if storage.Enabled(cfg.S3) {
			store, err := storage.NewS3Store(ctx, cfg.S3)
			if err != nil {
				return err
			}
			opts = append(opts, relay.WithMediaStore(store))
			l.Infof("Storing media in bucket %s", cfg.S3.Bucket)
		}

		return relay.New(cfg, l, opts...).Run(ctx)
	},
}
