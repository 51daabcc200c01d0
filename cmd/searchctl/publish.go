package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gmaxsoft/elasticsearch-project/internal/catalog"
	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/internal/event"
	pkgkafka "github.com/gmaxsoft/elasticsearch-project/pkg/kafka"
)

type publishOptions struct {
	brokers  []string
	metadata map[string]string
}

func newPublishCmd(opts *rootOptions) *cobra.Command {
	popts := &publishOptions{}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish catalog change events to Kafka",
	}
	cmd.PersistentFlags().StringSliceVar(&popts.brokers, "brokers", []string{"localhost:9092"}, "Kafka brokers")
	cmd.PersistentFlags().StringToStringVar(&popts.metadata, "meta", nil, "metadata added to every event (key=value,...)")

	cmd.AddCommand(&cobra.Command{
		Use:   "upsert <products.json>",
		Short: "Publish one upserted event per product in the file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			products, err := catalog.NewFileSource(args[0]).Load(cmd.Context())
			if err != nil {
				return err
			}
			return withPublisher(cmd, opts, popts, func(pub *event.Publisher, correlationID string) error {
				for _, p := range products {
					if err := pub.ProductUpserted(cmd.Context(), p, correlationID); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %d upserted events\n", len(products))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>...",
		Short: "Publish a deleted event for each product id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPublisher(cmd, opts, popts, func(pub *event.Publisher, correlationID string) error {
				for _, id := range args {
					if err := pub.ProductDeleted(cmd.Context(), domain.ProductID(strings.TrimSpace(id)), correlationID); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %d deleted events\n", len(args))
				return nil
			})
		},
	})

	return cmd
}

func withPublisher(cmd *cobra.Command, opts *rootOptions, popts *publishOptions, fn func(*event.Publisher, string) error) error {
	if err := pkgkafka.PingBrokers(cmd.Context(), popts.brokers); err != nil {
		return err
	}
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(popts.brokers), opts.logger(cmd))
	defer func() { _ = producer.Close() }()

	return fn(newEventPublisher(producer, popts.metadata), uuid.NewString())
}

func newEventPublisher(sender event.Sender, metadata map[string]string) *event.Publisher {
	opts := make([]event.PublisherOption, 0, len(metadata))
	for k, v := range metadata {
		opts = append(opts, event.WithMetadata(k, v))
	}
	return event.NewPublisher(sender, "searchctl", opts...)
}
