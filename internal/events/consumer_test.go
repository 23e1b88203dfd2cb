package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/maltedev/offer-scraper/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStreamClient struct {
	mock.Mock
}

func (m *MockStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if err := m.Called(ctx, stream, group, start).Error(0); err != nil {
		cmd.SetErr(err)
	}
	return cmd
}

func (m *MockStreamClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	args := m.Called(ctx, a)
	cmd := redis.NewXStreamSliceCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(args.Get(0).([]redis.XStream))
	}
	return cmd
}

func (m *MockStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	m.Called(ctx, stream, group, ids)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func envelope(t *testing.T, eventType string, payload any) map[string]any {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"id":      "evt-1",
		"type":    eventType,
		"payload": payload,
	})
	require.NoError(t, err)
	return map[string]any{"data": string(data), "event_type": eventType}
}

func TestDecodeMessage(t *testing.T) {
	payload := OfferExtractedPayload{
		EventType: "OFFER_EXTRACTED",
		OfferID:   "610947572360",
		Records:   []models.Record{record("610947572360", "Red")},
	}

	got, err := DecodeMessage(redis.XMessage{ID: "1-0", Values: envelope(t, "OFFER_EXTRACTED", payload)})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "610947572360", got.OfferID)
	require.Len(t, got.Records, 1)
	assert.Equal(t, 9.99, got.Records[0].Price)

	other, err := DecodeMessage(redis.XMessage{ID: "2-0", Values: envelope(t, "SOMETHING_ELSE", map[string]any{})})
	assert.NoError(t, err)
	assert.Nil(t, other)

	tests := map[string]map[string]any{
		"no data":       {"event_type": "OFFER_EXTRACTED"},
		"invalid json":  {"data": `{"type":`},
		"payload array": envelope(t, "OFFER_EXTRACTED", []int{1}),
		"no offer id":   envelope(t, "OFFER_EXTRACTED", map[string]any{"records": []any{}}),
	}
	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage(redis.XMessage{ID: "3-0", Values: values})
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestConsumerRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := new(MockStreamClient)
	cfg := ConsumerConfig{Stream: "stream:offer_records", Group: "sheet-writers"}

	good := redis.XMessage{ID: "1-0", Values: envelope(t, "OFFER_EXTRACTED", OfferExtractedPayload{OfferID: "1001"})}
	failing := redis.XMessage{ID: "2-0", Values: envelope(t, "OFFER_EXTRACTED", OfferExtractedPayload{OfferID: "1002"})}
	broken := redis.XMessage{ID: "3-0", Values: map[string]any{"data": "nope"}}

	client.On("XGroupCreateMkStream", mock.Anything, cfg.Stream, cfg.Group, "0").
		Return(errors.New("BUSYGROUP Consumer Group name already exists"))
	client.On("XReadGroup", mock.Anything, mock.Anything).
		Return([]redis.XStream{{Stream: cfg.Stream, Messages: []redis.XMessage{good, failing, broken}}}, nil).Once()
	client.On("XAck", mock.Anything, cfg.Stream, cfg.Group, mock.Anything).Return()

	var handled []string
	handler := func(ctx context.Context, p *OfferExtractedPayload) error {
		handled = append(handled, p.OfferID)
		if p.OfferID == "1002" {
			return errors.New("sheet locked")
		}
		return nil
	}

	c := NewConsumer(client, cfg, func(ctx context.Context, p *OfferExtractedPayload) error {
		err := handler(ctx, p)
		if len(handled) == 2 {
			cancel()
		}
		return err
	}, nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	assert.Equal(t, []string{"1001", "1002"}, handled)
	client.AssertCalled(t, "XAck", mock.Anything, cfg.Stream, cfg.Group, []string{"1-0"})
	client.AssertCalled(t, "XAck", mock.Anything, cfg.Stream, cfg.Group, []string{"3-0"})
	client.AssertNotCalled(t, "XAck", mock.Anything, cfg.Stream, cfg.Group, []string{"2-0"})
}

func TestConsumerGroupCreateError(t *testing.T) {
	client := new(MockStreamClient)
	client.On("XGroupCreateMkStream", mock.Anything, "s", "g", "0").Return(errors.New("NOPERM"))

	c := NewConsumer(client, ConsumerConfig{Stream: "s", Group: "g"}, nil, nil)
	assert.Error(t, c.Run(context.Background()))
}
