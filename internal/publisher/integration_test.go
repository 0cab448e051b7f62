//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"autoposter/internal/config"
	"autoposter/internal/domain"
	"autoposter/testdata/utils"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	cfg := config.RabbitMQConfig{
		URL:        s.amqpURL,
		Exchange:   "test-exchange",
		RoutingKey: "test-routing-key",
		QueueName:  "test-queue",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.NoError(err)
	s.NotNil(pub)

	err = pub.Close()
	s.NoError(err)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_ScheduledEvent() {
	cfg := config.RabbitMQConfig{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-scheduled",
		RoutingKey: "test-routing-key-scheduled",
		QueueName:  "test-queue-scheduled",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	automationID := int64(42)
	item := &domain.ContentItem{
		ID:              1,
		UserID:          7,
		AutomationID:    &automationID,
		SocialAccountID: 11,
		Content:         "scheduled post",
		Hashtags:        []string{"#go"},
		ScheduledFor:    time.Now().Add(5 * time.Minute).Truncate(time.Millisecond),
		Status:          domain.ContentScheduled,
	}

	err = pub.PublishItemEvent(s.ctx, item, "scheduled")
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.NotNil(msg)

	var received ContentEventMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal("scheduled", received.Event)
	s.Equal(int64(1), received.ItemID)
	s.Equal(int64(7), received.UserID)
	s.NotNil(received.AutomationID)
	s.Equal(int64(42), *received.AutomationID)
	s.Equal(string(domain.ContentScheduled), received.Status)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PostedEvent() {
	cfg := config.RabbitMQConfig{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-posted",
		RoutingKey: "test-routing-key-posted",
		QueueName:  "test-queue-posted",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	postedAt := time.Now().Truncate(time.Millisecond)
	item := &domain.ContentItem{
		ID:              2,
		UserID:          7,
		SocialAccountID: 11,
		Content:         "published post",
		ScheduledFor:    postedAt.Add(-time.Minute),
		Status:          domain.ContentPosted,
		PlatformPostID:  utils.Ptr("tw-987"),
		PostedAt:        &postedAt,
		RetryCount:      2,
	}

	err = pub.PublishItemEvent(s.ctx, item, "posted")
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.NotNil(msg)

	s.Equal("application/json", msg.ContentType)

	var received ContentEventMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal("posted", received.Event)
	s.Equal(string(domain.ContentPosted), received.Status)
	s.NotNil(received.PlatformPostID)
	s.Equal("tw-987", *received.PlatformPostID)
	s.NotNil(received.PostedAt)
	s.Equal(2, received.RetryCount)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_FailedEventCarriesError() {
	cfg := config.RabbitMQConfig{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-failed",
		RoutingKey: "test-routing-key-failed",
		QueueName:  "test-queue-failed",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	item := &domain.ContentItem{
		ID:              3,
		UserID:          7,
		SocialAccountID: 11,
		Content:         "doomed post",
		ScheduledFor:    time.Now().Truncate(time.Millisecond),
		Status:          domain.ContentFailed,
		ErrorMessage:    utils.Ptr("duplicate post rejected"),
		RetryCount:      5,
	}

	err = pub.PublishItemEvent(s.ctx, item, "failed")
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.NotNil(msg)

	var received ContentEventMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal("failed", received.Event)
	s.NotNil(received.ErrorMessage)
	s.Equal("duplicate post rejected", *received.ErrorMessage)
	s.Equal(5, received.RetryCount)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_MessagePersistence() {
	cfg := config.RabbitMQConfig{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-persist",
		RoutingKey: "test-routing-key-persist",
		QueueName:  "test-queue-persist",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	item := &domain.ContentItem{
		ID:              4,
		UserID:          7,
		SocialAccountID: 11,
		Content:         "durable post",
		ScheduledFor:    time.Now().Truncate(time.Millisecond),
		Status:          domain.ContentScheduled,
	}

	err = pub.PublishItemEvent(s.ctx, item, "scheduled")
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.NotNil(msg)

	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg config.RabbitMQConfig) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
