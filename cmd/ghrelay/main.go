package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ghrelay/internal/app"
	"ghrelay/internal/config"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "ghrelay",
		Short:         "GitHub → Telegram relay: webhook notifications, bot commands, dashboard",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "checkconfig",
		Short: "Validate the environment configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.FromEnv(); err != nil {
				return err
			}
			fmt.Println("configuration ok")
			return nil
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx)
		return err
	}

	// Block until a signal arrives or a component fails fatally.
	<-a.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		return err
	}
	return a.Err()
}
