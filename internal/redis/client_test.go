package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/logofresh/studio-renderer/internal/config"
	"github.com/logofresh/studio-renderer/pkg/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := config.RedisConfig{
		Addr:          mr.Addr(),
		ConsumerGroup: "test-group",
		ConsumerName:  "test-consumer",
	}
	return NewClientFromRedis(rdb, cfg, zap.NewNop())
}

func subscribe(t *testing.T, c *Client, sessionID string) *redis.PubSub {
	t.Helper()

	ctx := context.Background()
	sub := c.Redis().Subscribe(ctx, SessionChannel(sessionID))
	t.Cleanup(func() { sub.Close() })

	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	return sub
}

func receive(t *testing.T, sub *redis.PubSub) *redis.Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("Failed to receive message: %v", err)
	}
	return msg
}

func TestPublishExportResult(t *testing.T) {
	c := newTestClient(t)
	sub := subscribe(t, c, "abc")

	err := c.PublishExportResult(context.Background(), &models.ExportResult{
		Type:      models.TypeExportResult,
		UUID:      "req-1",
		SessionID: "abc",
		Filename:  "acme-solid.png",
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg := receive(t, sub)
	if msg.Channel != "session:abc" {
		t.Errorf("Expected channel session:abc, got %s", msg.Channel)
	}
	var got models.ExportResult
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if got.UUID != "req-1" || got.Filename != "acme-solid.png" {
		t.Errorf("Unexpected result: %+v", got)
	}
}

func TestPublishImageChanged(t *testing.T) {
	c := newTestClient(t)
	sub := subscribe(t, c, "abc")

	err := c.PublishImageChanged(context.Background(), models.ImageChangedEvent{
		Type:      models.TypeImageChanged,
		SessionID: "abc",
		Source:    "background_removal",
		Width:     10,
		Height:    5,
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	var got models.ImageChangedEvent
	if err := json.Unmarshal([]byte(receive(t, sub).Payload), &got); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if got.Type != models.TypeImageChanged || got.Source != "background_removal" {
		t.Errorf("Unexpected event: %+v", got)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	id, err := c.EnqueueExport(ctx, &models.ExportRequest{
		Type:      models.TypeExportRequest,
		UUID:      "req-1",
		SessionID: "abc",
		Format:    "webp",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	streams, err := c.ReadFromStream(ctx, 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("Expected one message, got %+v", streams)
	}
	if streams[0].Messages[0].ID != id {
		t.Errorf("Expected message %s, got %s", id, streams[0].Messages[0].ID)
	}

	if err := c.AcknowledgeMessage(ctx, id); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	pending, err := c.Redis().XPending(ctx, ExportRequestStream, "test-group").Result()
	if err != nil {
		t.Fatalf("XPending failed: %v", err)
	}
	if pending.Count != 0 {
		t.Errorf("Expected no pending messages, got %d", pending.Count)
	}
}

func TestConsumerGroupCreationIsIdempotent(t *testing.T) {
	c := newTestClient(t)
	if err := c.initializeConsumerGroup(); err != nil {
		t.Errorf("Expected existing group to be accepted, got %v", err)
	}
}

// --- Consumer ---

type stubHandler struct {
	result *models.ExportResult
	err    error
	got    []*models.ExportRequest
}

func (s *stubHandler) Handle(ctx context.Context, request *models.ExportRequest) (*models.ExportResult, error) {
	s.got = append(s.got, request)
	return s.result, s.err
}

func readOne(t *testing.T, c *Client) redis.XMessage {
	t.Helper()
	streams, err := c.ReadFromStream(context.Background(), 1, 100*time.Millisecond)
	if err != nil || len(streams) == 0 || len(streams[0].Messages) == 0 {
		t.Fatalf("Expected a stream message, got %v (%v)", streams, err)
	}
	return streams[0].Messages[0]
}

func pendingCount(t *testing.T, c *Client) int64 {
	t.Helper()
	pending, err := c.Redis().XPending(context.Background(), ExportRequestStream, "test-group").Result()
	if err != nil {
		t.Fatalf("XPending failed: %v", err)
	}
	return pending.Count
}

func TestConsumer_PublishesAndAcks(t *testing.T) {
	c := newTestClient(t)
	sub := subscribe(t, c, "abc")
	handler := &stubHandler{result: &models.ExportResult{
		Type:      models.TypeExportResult,
		UUID:      "req-1",
		SessionID: "abc",
		Info:      "PNG • 1.0KB • 2x",
	}}
	consumer := NewConsumer(c, handler, zap.NewNop())

	if _, err := c.EnqueueExport(context.Background(), &models.ExportRequest{
		Type: models.TypeExportRequest, UUID: "req-1", SessionID: "abc", Format: "png",
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	consumer.handleStreamMessage(readOne(t, c))

	if len(handler.got) != 1 || handler.got[0].Format != "png" {
		t.Fatalf("Expected handler to receive the request, got %+v", handler.got)
	}
	var got models.ExportResult
	if err := json.Unmarshal([]byte(receive(t, sub).Payload), &got); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if got.Info != "PNG • 1.0KB • 2x" {
		t.Errorf("Unexpected result: %+v", got)
	}
	if n := pendingCount(t, c); n != 0 {
		t.Errorf("Expected message to be acknowledged, %d pending", n)
	}
}

func TestConsumer_HandlerErrorStillPublishes(t *testing.T) {
	c := newTestClient(t)
	sub := subscribe(t, c, "abc")
	consumer := NewConsumer(c, &stubHandler{err: errors.New("invalid request type: x")}, zap.NewNop())

	if _, err := c.EnqueueExport(context.Background(), &models.ExportRequest{Type: "x", UUID: "req-2", SessionID: "abc"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	consumer.handleStreamMessage(readOne(t, c))

	var got models.ExportResult
	if err := json.Unmarshal([]byte(receive(t, sub).Payload), &got); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if got.UUID != "req-2" || got.Error == "" {
		t.Errorf("Expected error result, got %+v", got)
	}
}

func TestConsumer_BadPayloadIsAcked(t *testing.T) {
	c := newTestClient(t)
	handler := &stubHandler{}
	consumer := NewConsumer(c, handler, zap.NewNop())

	ctx := context.Background()
	if err := c.Redis().XAdd(ctx, &redis.XAddArgs{
		Stream: ExportRequestStream,
		Values: map[string]interface{}{"payload": "{not json"},
	}).Err(); err != nil {
		t.Fatalf("XAdd failed: %v", err)
	}

	consumer.handleStreamMessage(readOne(t, c))

	if len(handler.got) != 0 {
		t.Error("Expected handler not to be called")
	}
	if n := pendingCount(t, c); n != 0 {
		t.Errorf("Expected bad message to be acknowledged, %d pending", n)
	}
}

func TestConsumer_StartStop(t *testing.T) {
	c := newTestClient(t)
	consumer := NewConsumer(c, &stubHandler{}, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- consumer.Start() }()

	time.Sleep(50 * time.Millisecond)
	consumer.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Consumer did not stop")
	}
}
