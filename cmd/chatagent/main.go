// Command chatagent runs the tool-using chat agent: an HTTP API server and a
// terminal client for it.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/IMBotPlatform/ChatAgent/pkg/client"
	"github.com/IMBotPlatform/ChatAgent/pkg/config"
)

var version = "1.0.0"

// rootOptions 是所有子命令共享的全局参数。
type rootOptions struct {
	configPath string
	logLevel   string
	serverURL  string

	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "chatagent",
		Short: "Tool-using chat agent with persistent history",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (environment variables override it)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&opts.serverURL, "server", envOr("CHATAGENT_SERVER", client.DefaultBaseURL), "API base URL used by client commands")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newSessionsCmd(opts),
		newHistoryCmd(opts),
		newClearCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	for _, w := range cfg.Warnings {
		o.logger.Warn().Msg(w)
	}
	return cfg, nil
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.serverURL)
}

// newLogger 返回写到 stderr 的 console logger。
func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
