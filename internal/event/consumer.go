package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	apperrors "github.com/gmaxsoft/elasticsearch-project/pkg/errors"
	pkgkafka "github.com/gmaxsoft/elasticsearch-project/pkg/kafka"
)

// Kafka topics for catalog change events.
var (
	TopicProductUpserted = pkgkafka.Topic("product", "upserted")
	TopicProductDeleted  = pkgkafka.Topic("product", "deleted")
)

// AggregateProduct is the aggregate type carried by product events.
const AggregateProduct = "product"

// ProductDeletedData is the payload of a product.deleted event.
type ProductDeletedData struct {
	ID domain.ProductID `json:"id"`
}

// Indexer applies single-product changes to the search index.
type Indexer interface {
	Upsert(ctx context.Context, p domain.Product) error
	Remove(ctx context.Context, id string) error
}

// Consumer handles Kafka events related to catalog changes.
type Consumer struct {
	indexer Indexer
	logger  *slog.Logger
}

// NewConsumer creates a new catalog event consumer.
func NewConsumer(indexer Indexer, logger *slog.Logger) *Consumer {
	return &Consumer{
		indexer: indexer,
		logger:  logger,
	}
}

// Topics lists the topics Handle understands.
func (c *Consumer) Topics() []string {
	return []string{TopicProductUpserted, TopicProductDeleted}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductUpserted:
		return c.handleProductUpserted(ctx, event)
	case TopicProductDeleted:
		return c.handleProductDeleted(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleProductUpserted(ctx context.Context, event *pkgkafka.Event) error {
	var p domain.Product
	if err := event.UnmarshalData(&p); err != nil {
		c.logger.WarnContext(ctx, "dropping malformed product.upserted event",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := c.indexer.Upsert(ctx, p); err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			c.logger.WarnContext(ctx, "product rejected by index",
				slog.String("product_id", p.ID.String()),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("index product from upserted event: %w", err)
	}

	c.logger.InfoContext(ctx, "indexed product from upserted event",
		slog.String("product_id", p.ID.String()),
		slog.String("source", event.Source),
		slog.Any("metadata", event.Metadata),
	)
	return nil
}

func (c *Consumer) handleProductDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		c.logger.WarnContext(ctx, "dropping malformed product.deleted event",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	id := strings.TrimSpace(data.ID.String())
	if id == "" {
		c.logger.WarnContext(ctx, "product.deleted event without id", slog.String("event_id", event.EventID))
		return nil
	}

	if err := c.indexer.Remove(ctx, id); err != nil {
		return fmt.Errorf("delete product from deleted event: %w", err)
	}

	c.logger.InfoContext(ctx, "removed product from deleted event",
		slog.String("product_id", id),
		slog.String("source", event.Source),
		slog.Any("metadata", event.Metadata),
	)
	return nil
}
