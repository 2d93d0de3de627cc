// Command restorectl drives the workshop chat and cache from a terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/heirloom-restoration/workshop/internal/apperr"
	"github.com/heirloom-restoration/workshop/internal/client"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

var (
	serverURL  string
	adminToken string
	verbose    bool
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:           "restorectl",
	Short:         "Talk to the workshop API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("RESTORE_API_URL", "http://localhost:8080"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&adminToken, "token", os.Getenv("RESTORE_ADMIN_TOKEN"), "admin JWT; acts as staff when set")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log requests and retries")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	chatCmd.AddCommand(chatStartCmd, chatSendCmd, chatWatchCmd, chatListCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd, cacheStatsCmd)
	rootCmd.AddCommand(chatCmd, cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%s", describe(err))
		os.Exit(1)
	}
}

// newAPIClient is replaced in tests.
var newAPIClient = func() *client.Client {
	opts := []client.Option{client.WithLogger(newLogger())}
	if adminToken != "" {
		opts = append(opts, client.WithToken(adminToken))
	}
	return client.New(serverURL, opts...)
}

func newLogger() *logger.Logger {
	if !verbose {
		return logger.NewNop()
	}
	log, err := logger.NewDevelopment()
	if err != nil {
		return logger.NewNop()
	}
	return log
}

func describe(err error) string {
	if code := apperr.CodeOf(err); code != apperr.CodeUnexpected {
		return fmt.Sprintf("%s (%s)", apperr.Message(err), code)
	}
	return err.Error()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
