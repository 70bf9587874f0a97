package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haven/internal/audit/models"
)

func alert(title string) models.Alert {
	return models.Alert{Kind: models.AlertCriticalEvent, Title: title}
}

func titles(alerts []models.Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.Title
	}
	return out
}

func TestRingBuffer_FIFO(t *testing.T) {
	b := NewRingBuffer(4)
	for _, s := range []string{"a", "b", "c"} {
		assert.False(t, b.Enqueue(alert(s)))
	}

	assert.Equal(t, []string{"a", "b"}, titles(b.DequeueBatch(2)))
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, []string{"c"}, titles(b.DequeueBatch(10)))
	assert.Nil(t, b.DequeueBatch(1))
}

func TestRingBuffer_DropsOldestWhenFull(t *testing.T) {
	b := NewRingBuffer(2)
	b.Enqueue(alert("a"))
	b.Enqueue(alert("b"))
	require.True(t, b.Enqueue(alert("c")))

	assert.Equal(t, int64(1), b.Dropped())
	assert.Equal(t, []string{"b", "c"}, titles(b.DequeueBatch(5)))
}

func TestRingBuffer_WrapsAround(t *testing.T) {
	b := NewRingBuffer(3)
	b.Enqueue(alert("a"))
	b.Enqueue(alert("b"))
	b.DequeueBatch(2)
	b.Enqueue(alert("c"))
	b.Enqueue(alert("d"))
	b.Enqueue(alert("e"))

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []string{"c", "d", "e"}, titles(b.DequeueBatch(3)))
}

func TestNewRingBuffer_DefaultCapacity(t *testing.T) {
	b := NewRingBuffer(0)
	assert.Equal(t, DefaultBufferSize, b.capacity)
}
