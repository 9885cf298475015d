package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/logofresh/studio-renderer/internal/config"
	"github.com/logofresh/studio-renderer/pkg/models"
)

// ExportRequestStream is the stream export requests are queued on
const ExportRequestStream = "logostudio:export_requests"

// SessionChannel returns the pub/sub channel for a session's results and events
func SessionChannel(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// Client wraps the Redis client for stream and pub/sub operations
type Client struct {
	client *redis.Client
	config config.RedisConfig
	logger *zap.Logger
	ctx    context.Context
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewClientFromRedis(rdb, cfg, logger), nil
}

// NewClientFromRedis wraps an existing connection
func NewClientFromRedis(rdb *redis.Client, cfg config.RedisConfig, logger *zap.Logger) *Client {
	// Generate consumer name if not provided
	if cfg.ConsumerName == "" {
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "unknown"
		}
		cfg.ConsumerName = fmt.Sprintf("%s-%d", hostname, time.Now().UnixNano())
	}

	client := &Client{
		client: rdb,
		config: cfg,
		logger: logger,
		ctx:    context.Background(),
	}

	logger.Info("Connected to Redis",
		zap.String("addr", cfg.Addr),
		zap.String("consumer_group", cfg.ConsumerGroup),
		zap.String("consumer_name", cfg.ConsumerName))

	if err := client.initializeConsumerGroup(); err != nil {
		logger.Warn("Failed to initialize consumer group", zap.Error(err))
	}

	return client
}

// Redis returns the underlying connection so other stores can share it
func (c *Client) Redis() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// PublishExportResult publishes an export result to the session channel
func (c *Client) PublishExportResult(ctx context.Context, result *models.ExportResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal export result: %w", err)
	}

	channel := SessionChannel(result.SessionID)

	if err := c.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}

	c.logger.Debug("Published export result",
		zap.String("channel", channel),
		zap.String("session_id", result.SessionID),
		zap.String("uuid", result.UUID))

	return nil
}

// PublishImageChanged broadcasts a working logo change to the session channel
func (c *Client) PublishImageChanged(ctx context.Context, event models.ImageChangedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal image change: %w", err)
	}

	channel := SessionChannel(event.SessionID)

	if err := c.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}

	c.logger.Debug("Published image change",
		zap.String("channel", channel),
		zap.String("source", event.Source))

	return nil
}

// initializeConsumerGroup creates the consumer group for the export requests stream
func (c *Client) initializeConsumerGroup() error {
	// "0" delivers requests queued before the group existed
	err := c.client.XGroupCreateMkStream(c.ctx, ExportRequestStream, c.config.ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Consumer group initialized",
		zap.String("stream", ExportRequestStream),
		zap.String("group", c.config.ConsumerGroup))

	return nil
}

// EnqueueExport adds an export request to the stream
func (c *Client) EnqueueExport(ctx context.Context, request *models.ExportRequest) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal export request: %w", err)
	}

	id, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: ExportRequestStream,
		Values: map[string]interface{}{"payload": string(body)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add export request: %w", err)
	}
	return id, nil
}

// ReadFromStream reads messages from the export requests stream using the consumer group
func (c *Client) ReadFromStream(ctx context.Context, count int64, block time.Duration) ([]redis.XStream, error) {
	// ">" means only new messages not yet delivered to other consumers
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.ConsumerGroup,
		Consumer: c.config.ConsumerName,
		Streams:  []string{ExportRequestStream, ">"},
		Count:    count,
		Block:    block,
		NoAck:    false,
	}).Result()

	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	return streams, nil
}

// AcknowledgeMessage acknowledges a message from the stream
func (c *Client) AcknowledgeMessage(ctx context.Context, messageID string) error {
	err := c.client.XAck(ctx, ExportRequestStream, c.config.ConsumerGroup, messageID).Err()
	if err != nil {
		return fmt.Errorf("failed to acknowledge message %s: %w", messageID, err)
	}

	return nil
}

// IsHealthy checks if Redis connection is healthy
func (c *Client) IsHealthy() bool {
	return c.client.Ping(c.ctx).Err() == nil
}
