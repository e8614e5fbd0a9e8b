package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/subflow/internal/config"
	"github.com/MimeLyc/subflow/internal/mq"
	"github.com/MimeLyc/subflow/internal/service"
	"github.com/MimeLyc/subflow/pkg/log"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var amqpURL string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume translation commands from RabbitMQ and publish the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(func(c *config.Config) {
				if amqpURL != "" {
					c.AMQP.URL = amqpURL
				}
			})
			if err != nil {
				return err
			}
			return runWorker(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&amqpURL, "amqp-url", "", "RabbitMQ connection URL")

	return cmd
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.AMQP.URL == "" {
		return errors.New("amqp url is required (set AMQP_URL or --amqp-url)")
	}

	defaults, err := service.DefaultsFromConfig(cfg)
	if err != nil {
		return err
	}

	var pipelineOpts []service.PipelineOption
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		pipelineOpts = append(pipelineOpts, service.WithCheckpoints(store))
	}
	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	if c != nil {
		defer c.Close()
		pipelineOpts = append(pipelineOpts, service.WithCache(c))
	}

	log.Info("Connecting to RabbitMQ")
	producer, err := mq.NewProducer(cfg.AMQP.URL)
	if err != nil {
		return err
	}
	defer producer.Close()

	consumer, err := mq.NewConsumer(cfg.AMQP.URL, cfg.AMQP.RequestQueue)
	if err != nil {
		return err
	}
	defer consumer.Close()

	deliveries, err := consumer.Deliveries()
	if err != nil {
		return err
	}

	worker := mq.NewWorker(service.NewPipelineFromConfig(cfg, pipelineOpts...), producer, cfg.AMQP.ResultQueue, defaults)
	if err := worker.Run(ctx, deliveries); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
