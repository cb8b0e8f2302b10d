package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bft-labs/hybrid-chain-logger/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher streams group summaries as JSON messages on one topic.
type Publisher struct {
	pub         message.Publisher
	redisClient redis.UniversalClient
	topic       string
	logger      *zap.Logger
}

// NewRedis publishes to a Redis stream named topic.
func NewRedis(redisClient redis.UniversalClient, topic string, logger *zap.Logger) (*Publisher, error) {
	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		NewWatermillLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create redis stream publisher: %w", err)
	}

	p := New(pub, topic, logger)
	p.redisClient = redisClient
	return p, nil
}

// New wraps any watermill publisher.
func New(pub message.Publisher, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{
		pub:    pub,
		topic:  topic,
		logger: logger,
	}
}

// Deliver publishes one summary. The message carries the group's end
// height in its metadata.
func (p *Publisher) Deliver(ctx context.Context, summary types.GroupSummary) error {
	start := time.Now()

	payload, err := json.Marshal(summary.ToResponse())
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	msgUUID := watermill.NewUUID()
	msg := message.NewMessage(msgUUID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("start_height", strconv.FormatUint(summary.StartHeight, 10))
	msg.Metadata.Set("end_height", strconv.FormatUint(summary.EndHeight, 10))

	err = p.pub.Publish(p.topic, msg)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("summary publish failed",
			zap.Uint64("end_height", summary.EndHeight),
			zap.String("msg_uuid", msgUUID),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.Error(err),
		)
		return fmt.Errorf("publish summary: %w", err)
	}

	p.logger.Debug("summary publish ok",
		zap.Uint64("end_height", summary.EndHeight),
		zap.String("msg_uuid", msgUUID),
		zap.Int64("duration_ms", duration.Milliseconds()),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.pub.Close()
}

// QueueLength returns the number of messages in the Redis stream.
func (p *Publisher) QueueLength(ctx context.Context) (int64, error) {
	if p.redisClient == nil {
		return 0, fmt.Errorf("publisher has no redis client")
	}
	return p.redisClient.XLen(ctx, p.topic).Result()
}

func (p *Publisher) Topic() string {
	return p.topic
}
