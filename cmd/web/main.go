package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"quizparty/internal/config"
	"quizparty/internal/server"
)

func newCmd() *cobra.Command {
	v := config.New()
	var envFile string

	cmd := &cobra.Command{
		Use:           "quizparty",
		Short:         "Real-time multiplayer quiz rooms over WebSockets.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFile(envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromViper(v)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return server.Run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&envFile, "env-file", ".env", "file of KEY=value pairs loaded before reading the environment")
	config.BindFlags(fs, v)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
