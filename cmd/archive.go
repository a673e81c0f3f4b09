/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rainwatch/apiserver/config"
	"github.com/rainwatch/apiserver/internal/archive"
	"github.com/rainwatch/apiserver/internal/logging"
	"github.com/rainwatch/apiserver/internal/mq"
	"github.com/rainwatch/apiserver/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// archiveCmd represents the archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Copies stored predictions to object storage",
	Long: `Consumes prediction events and keeps one JSON object per principal,
area and day in the configured bucket, removing it when the prediction is
deleted. Usage:

	EVENTS_BACKEND=rabbitmq rainwatch archive
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		logger, err := logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events, err := mq.Open(ctx, cfg.Events)
		if err != nil {
			return err
		}
		if events == nil {
			return errors.New("EVENTS_BACKEND must be set to run the archiver")
		}
		defer events.Close()

		objects, err := storage.Open(ctx, cfg.Archive)
		if err != nil {
			return err
		}
		if closer, ok := objects.(io.Closer); ok {
			defer closer.Close()
		}

		logger.Info("archiver started",
			zap.String("events", cfg.Events.Backend),
			zap.String("storage", cfg.Archive.Backend),
		)
		err = archive.NewWorker(events, objects, cfg.Events.Channel, logger).Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}
