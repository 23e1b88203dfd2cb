package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if err := mockArgs.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	return m.Called(ctx, id, err).Error(0)
}

func (m *MockOutboxRepository) Counts(ctx context.Context) (int64, int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func offerEvent(offerID string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "offer",
		AggregateID:   offerID,
		EventType:     "OFFER_EXTRACTED",
		Payload:       json.RawMessage(`{"offer_id":"` + offerID + `","records":[{"sku":"Red"}]}`),
		TargetStream:  DefaultTargetStream,
		CreatedAt:     time.Now(),
	}
}

func newTestRelay(redisClient RedisClient, outbox OutboxRepo) *Relay {
	return NewRelay(outbox, redisClient, nil, RelayConfig{PollInterval: 50 * time.Millisecond, BatchSize: 10})
}

func TestRelay_ProcessEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks every event", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		events := []*OutboxEvent{offerEvent("610947572360"), offerEvent("610947572361")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		for _, event := range events {
			mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
				return args.Stream == DefaultTargetStream &&
					args.Values.(map[string]any)["event_type"] == "OFFER_EXTRACTED" &&
					args.Values.(map[string]any)["aggregate_id"] == event.AggregateID
			})).Return(nil)
			mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)
		}

		require.NoError(t, relay.processEvents(ctx))

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("marks failed on publish error", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		event := offerEvent("610947572360")
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("redis connection failed"))
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.MatchedBy(func(err error) bool {
			return err.Error() == "failed to publish to redis: redis connection failed"
		})).Return(nil)

		assert.NoError(t, relay.processEvents(ctx))

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("malformed payload is never published", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		event := offerEvent("1")
		event.Payload = json.RawMessage(`{"offer_id":`)
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil)

		assert.NoError(t, relay.processEvents(ctx))
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("empty batch", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		require.NoError(t, relay.processEvents(ctx))
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("continues after one event fails", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		events := []*OutboxEvent{offerEvent("1001"), offerEvent("1002")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Values.(map[string]any)["aggregate_id"] == "1001"
		})).Return(errors.New("redis error"))
		mockOutbox.On("MarkFailed", ctx, events[0].ID, mock.Anything).Return(nil)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Values.(map[string]any)["aggregate_id"] == "1002"
		})).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, events[1].ID).Return(nil)

		require.NoError(t, relay.processEvents(ctx))

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("pending lookup error", func(t *testing.T) {
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(new(MockRedisClient), mockOutbox)

		mockOutbox.On("GetPending", ctx, 10).Return(nil, errors.New("connection reset"))
		assert.Error(t, relay.processEvents(ctx))
	})
}

func TestRelay_Envelope(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	relay := newTestRelay(mockRedis, new(MockOutboxRepository))

	event := offerEvent("610947572360")

	var captured map[string]any
	mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
		raw, ok := args.Values.(map[string]any)["data"].(string)
		return ok && json.Unmarshal([]byte(raw), &captured) == nil
	})).Return(nil)

	require.NoError(t, relay.publish(ctx, event))

	assert.Equal(t, event.ID.String(), captured["id"])
	assert.Equal(t, "OFFER_EXTRACTED", captured["type"])
	assert.Equal(t, "offer", captured["aggregate_type"])
	assert.Equal(t, "610947572360", captured["aggregate_id"])

	payload, ok := captured["payload"].(map[string]any)
	require.True(t, ok, "payload is embedded as an object")
	assert.Equal(t, "610947572360", payload["offer_id"])

	metadata, ok := captured["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "offer-scraper", metadata["source"])
}

func TestRelay_Backlog(t *testing.T) {
	ctx := context.Background()
	mockOutbox := new(MockOutboxRepository)
	relay := newTestRelay(new(MockRedisClient), mockOutbox)

	mockOutbox.On("Counts", ctx).Return(int64(3), int64(1), nil)

	pending, dead, err := relay.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)
	assert.Equal(t, int64(1), dead)
}

func TestRelay_Start(t *testing.T) {
	mockOutbox := new(MockOutboxRepository)
	relay := newTestRelay(new(MockRedisClient), mockOutbox)

	mockOutbox.On("GetPending", mock.Anything, 10).Return([]*OutboxEvent{}, nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- relay.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancellation")
	}
}

func TestNextRetryTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(2*time.Second), nextRetryTime(now, 1))
	assert.Equal(t, now.Add(16*time.Second), nextRetryTime(now, 4))
	assert.Equal(t, now.Add(5*time.Minute), nextRetryTime(now, 12))
}

func TestOutboxEventValidate(t *testing.T) {
	valid := offerEvent("1")
	assert.NoError(t, valid.validate())

	noType := offerEvent("1")
	noType.AggregateType = ""
	assert.ErrorIs(t, noType.validate(), ErrInvalidEvent)

	noEvent := offerEvent("1")
	noEvent.EventType = ""
	assert.ErrorIs(t, noEvent.validate(), ErrInvalidEvent)

	noPayload := offerEvent("1")
	noPayload.Payload = nil
	assert.ErrorIs(t, noPayload.validate(), ErrInvalidEvent)
}
