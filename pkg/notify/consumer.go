package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lms/pkg/config"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type sink interface {
	Dispatch(n Notification)
}

// Consumer reads published notifications from Kafka and hands them to a
// local dispatcher for delivery.
type Consumer struct {
	group  sarama.ConsumerGroup
	topics []string
	sink   sink
	logger *zap.Logger
}

func NewConsumer(cfg *config.Config, dispatcher *Dispatcher, logger *zap.Logger) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.KafkaClientID
	sc.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true
	sc.Version = sarama.V2_8_0_0
	sc.Net.DialTimeout = 10 * time.Second
	sc.Net.ReadTimeout = 10 * time.Second
	sc.Net.WriteTimeout = 10 * time.Second

	group, err := sarama.NewConsumerGroup(cfg.KafkaBrokers, cfg.KafkaGroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		group:  group,
		topics: []string{cfg.KafkaTopicNotifications},
		sink:   dispatcher,
		logger: logger,
	}, nil
}

// Run blocks consuming until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("Consumer error", zap.Error(err))
		}
	}()

	handler := &consumerGroupHandler{sink: c.sink, logger: c.logger}
	c.logger.Info("Kafka consumer started", zap.Strings("topics", c.topics))

	for {
		if err := c.group.Consume(ctx, c.topics, handler); err != nil {
			return fmt.Errorf("consume: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type consumerGroupHandler struct {
	sink   sink
	logger *zap.Logger
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			h.handle(message)
			// Delivery retries live in the dispatcher, so the offset can
			// advance as soon as the message is queued. Mail still queued
			// when the process dies is not redelivered.
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *consumerGroupHandler) handle(message *sarama.ConsumerMessage) {
	if eventType := headerValue(message.Headers, "event-type"); eventType != decisionEventType {
		h.logger.Warn("Skipping message with unexpected event type",
			zap.String("event_type", eventType),
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
		)
		return
	}

	var n Notification
	if err := json.Unmarshal(message.Value, &n); err != nil {
		h.logger.Error("Failed to decode notification",
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
			zap.Error(err),
		)
		return
	}
	h.sink.Dispatch(n)
}

func headerValue(headers []*sarama.RecordHeader, key string) string {
	for _, h := range headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
