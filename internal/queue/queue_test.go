package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueueOrdering(t *testing.T) {
	q := NewInMemoryQueue()

	require.NoError(t, q.Push(NewTask("1001", 0)))
	require.NoError(t, q.Push(NewTask("1002", 5)))
	require.NoError(t, q.Push(NewTask("1003", 0)))
	require.NoError(t, q.Push(NewTask("1004", 5)))
	assert.Equal(t, 4, q.Size())

	var order []string
	for q.Size() > 0 {
		task, err := q.Pop(context.Background())
		require.NoError(t, err)
		order = append(order, task.OfferID)
	}

	assert.Equal(t, []string{"1002", "1004", "1001", "1003"}, order)
}

func TestInMemoryQueueClose(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(NewTask("1001", 0)))
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(NewTask("1002", 0)), ErrQueueClosed)

	task, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1001", task.OfferID)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestInMemoryQueuePopBlocksUntilPush(t *testing.T) {
	q := NewInMemoryQueue()

	got := make(chan *Task, 1)
	go func() {
		task, err := q.Pop(context.Background())
		if err == nil {
			got <- task
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(NewTask("610947572360", 0)))

	select {
	case task := <-got:
		assert.Equal(t, "610947572360", task.OfferID)
		assert.NotEmpty(t, task.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestInMemoryQueuePopHonoursContext(t *testing.T) {
	q := NewInMemoryQueue()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = q.TryPop()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}
