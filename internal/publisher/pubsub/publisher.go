// Package pubsub implements a Google Cloud Pub/Sub publisher for lead events.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config maps event names (such as "lead.created") onto Pub/Sub topic IDs.
type Config struct {
	ProjectID    string            `mapstructure:"project_id"`
	DefaultTopic string            `mapstructure:"default_topic"`
	Topics       map[string]string `mapstructure:"topics"`
}

// Publisher publishes JSON payloads, one Pub/Sub publisher per topic.
type Publisher struct {
	client *pubsub.Client
	cfg    Config
	logger *zap.Logger
	tracer trace.Tracer

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// New creates a Publisher over an existing client.
func New(client *pubsub.Client, cfg Config, logger *zap.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if cfg.DefaultTopic == "" && len(cfg.Topics) == 0 {
		return nil, errors.New("pubsub.default_topic or pubsub.topics is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:     client,
		cfg:        cfg,
		logger:     logger.Named("pubsub"),
		tracer:     otel.Tracer("leadwatch/publisher"),
		publishers: make(map[string]*pubsub.Publisher),
	}, nil
}

// Publish marshals payload to JSON and publishes it to the topic mapped from event.
func (p *Publisher) Publish(ctx context.Context, event string, payload any) (string, error) {
	topicID := p.topicFor(event)
	if topicID == "" {
		return "", fmt.Errorf("no pubsub topic configured for %q", event)
	}

	ctx, span := p.tracer.Start(ctx, "pubsub.publish", trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "gcp_pubsub"),
			attribute.String("messaging.destination.name", topicID),
			attribute.String("leadwatch.event", event),
		))
	defer span.End()

	msg, err := buildMessage(ctx, event, payload)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	id, err := p.publisher(topicID).Publish(ctx, msg).Get(ctx)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("publish %s: %w", event, err)
	}
	p.logger.Debug("event published", zap.String("event", event), zap.String("topic", topicID), zap.String("message_id", id))
	return id, nil
}

// Close flushes and stops every topic publisher.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, pub := range p.publishers {
		pub.Stop()
		delete(p.publishers, id)
	}
}

func (p *Publisher) topicFor(event string) string {
	if id, ok := p.cfg.Topics[event]; ok && id != "" {
		return id
	}
	return p.cfg.DefaultTopic
}

func (p *Publisher) publisher(topicID string) *pubsub.Publisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	pub, ok := p.publishers[topicID]
	if !ok {
		pub = p.client.Publisher(topicID)
		p.publishers[topicID] = pub
	}
	return pub
}

func buildMessage(ctx context.Context, event string, payload any) (*pubsub.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event": event},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})
	return msg, nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
