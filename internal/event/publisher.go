package event

import (
	"context"
	"fmt"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	pkgkafka "github.com/gmaxsoft/elasticsearch-project/pkg/kafka"
)

// Sender publishes one event to a topic.
type Sender interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Publisher emits catalog change events.
type Publisher struct {
	sender   Sender
	source   string
	metadata map[string]string
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithMetadata stamps every published event with key=value metadata.
func WithMetadata(key, value string) PublisherOption {
	return func(p *Publisher) {
		if p.metadata == nil {
			p.metadata = make(map[string]string)
		}
		p.metadata[key] = value
	}
}

// NewPublisher creates a publisher that stamps events with source.
func NewPublisher(sender Sender, source string, opts ...PublisherOption) *Publisher {
	p := &Publisher{sender: sender, source: source}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProductUpserted publishes p on the upserted topic.
func (p *Publisher) ProductUpserted(ctx context.Context, product domain.Product, correlationID string) error {
	ev, err := pkgkafka.NewEvent(TopicProductUpserted, product.ID.String(), AggregateProduct, p.source, product)
	if err != nil {
		return fmt.Errorf("build product.upserted event: %w", err)
	}
	return p.send(ctx, TopicProductUpserted, ev, correlationID)
}

// ProductDeleted publishes a deletion of id.
func (p *Publisher) ProductDeleted(ctx context.Context, id domain.ProductID, correlationID string) error {
	ev, err := pkgkafka.NewEvent(TopicProductDeleted, id.String(), AggregateProduct, p.source, ProductDeletedData{ID: id})
	if err != nil {
		return fmt.Errorf("build product.deleted event: %w", err)
	}
	return p.send(ctx, TopicProductDeleted, ev, correlationID)
}

func (p *Publisher) send(ctx context.Context, topic string, ev *pkgkafka.Event, correlationID string) error {
	if correlationID != "" {
		ev = ev.WithCorrelationID(correlationID)
	}
	for k, v := range p.metadata {
		ev = ev.WithMetadata(k, v)
	}
	if err := p.sender.Publish(ctx, topic, ev); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
