package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"matchmate-chat/config"
	"matchmate-chat/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "matchchat",
	Short: "Matchmate chat client and development relay",
	Long: `matchchat opens a realtime conversation with a match from the terminal,
and can run the development relay the client talks to.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log at debug level to stderr")
}

// setup loads configuration and the logger shared by every subcommand.
func setup(cmd *cobra.Command) (*config.Config, *logger.Logger) {
	cfg := config.LoadConfig()
	mode := cfg.AppMode
	if verbose(cmd) {
		mode = logger.DevelopmentMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)
	return cfg, l
}

func verbose(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("verbose")
	return v
}

func runContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
