package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"autoposter/internal/config"
	"autoposter/internal/domain"
)

// RabbitMQ emits content lifecycle events for downstream consumers
// (analytics, notifications). Publishing is best-effort; a failed event
// never blocks or fails the posting pipeline.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

func NewRabbitMQ(cfg config.RabbitMQConfig, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// ContentEventMessage is the wire format for content lifecycle events.
// Event is "scheduled", "posted", "failed" or "cancelled".
type ContentEventMessage struct {
	Event           string          `json:"event"`
	ItemID          int64           `json:"item_id"`
	UserID          int64           `json:"user_id"`
	AutomationID    *int64          `json:"automation_id,omitempty"`
	SocialAccountID int64           `json:"social_account_id"`
	Status          string          `json:"status"`
	PlatformPostID  *string         `json:"platform_post_id,omitempty"`
	ScheduledFor    time.Time       `json:"scheduled_for"`
	PostedAt        *time.Time      `json:"posted_at,omitempty"`
	RetryCount      int             `json:"retry_count"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	EngagementData  json.RawMessage `json:"engagement_data,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

func (r *RabbitMQ) PublishItemEvent(ctx context.Context, item *domain.ContentItem, event string) error {
	msg := ContentEventMessage{
		Event:           event,
		ItemID:          item.ID,
		UserID:          item.UserID,
		AutomationID:    item.AutomationID,
		SocialAccountID: item.SocialAccountID,
		Status:          string(item.Status),
		PlatformPostID:  item.PlatformPostID,
		ScheduledFor:    item.ScheduledFor,
		PostedAt:        item.PostedAt,
		RetryCount:      item.RetryCount,
		ErrorMessage:    item.ErrorMessage,
		EngagementData:  item.EngagementData,
		Timestamp:       time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published content event",
		"item_id", item.ID,
		"event", event,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
