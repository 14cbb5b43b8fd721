package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agentgate/internal/brain"
	"agentgate/internal/dispatch"
	"agentgate/internal/metrics"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume dispatched envelopes from Kafka or AMQP and answer them",
		Long:  "The agent side of the kafka and amqp dispatch backends: every envelope on the queue runs through the brain pipeline.",
		RunE:  runWorker,
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logClose, err := setupLogger(cfg.General)
	if err != nil {
		return err
	}
	defer logClose.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer, err := dispatch.NewConsumer(cfg.Dispatch, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	b, err := brain.FromConfig(ctx, cfg, metrics.Default, logger)
	if err != nil {
		return fmt.Errorf("brain: %w", err)
	}
	defer b.Close()

	local := dispatch.NewLocal(b, nil, logger)
	logger.Info("worker started", "backend", cfg.Dispatch.Backend)

	err = consumer.Run(ctx, local.Forward)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer: %w", err)
	}
	logger.Info("worker stopped")
	return nil
}
