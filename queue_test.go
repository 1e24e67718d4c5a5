package link

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueFIFO(t *testing.T) {
	q := newQueue(100)

	for i := 0; i < 100; i++ {
		assert.Zero(t, q.push([]byte(fmt.Sprint(i))))
	}

	assert.Equal(t, 100, q.len())

	for i := 0; i < 100; i++ {
		assert.Equal(t, fmt.Sprint(i), string(q.pop()))
	}

	assert.Nil(t, q.pop())
}

func TestQueueDropsOldest(t *testing.T) {
	q := newQueue(100)

	dropped := 0
	for i := 0; i < 150; i++ {
		dropped += q.push([]byte(fmt.Sprint(i)))
	}

	assert.Equal(t, 50, dropped)
	assert.Equal(t, 100, q.len())

	for i := 50; i < 150; i++ {
		assert.Equal(t, fmt.Sprint(i), string(q.pop()))
	}

	assert.Zero(t, q.len())
}

func TestQueueInterleaved(t *testing.T) {
	q := newQueue(3)

	q.push([]byte("a"))
	q.push([]byte("b"))
	assert.Equal(t, "a", string(q.pop()))

	q.push([]byte("c"))
	q.push([]byte("d"))
	q.push([]byte("e"))

	assert.Equal(t, "c", string(q.pop()))
	assert.Equal(t, "d", string(q.pop()))
	assert.Equal(t, "e", string(q.pop()))
	assert.Nil(t, q.pop())
}

func TestQueueClear(t *testing.T) {
	q := newQueue(10)

	q.push([]byte("a"))
	q.clear()

	assert.Zero(t, q.len())
	assert.Nil(t, q.pop())
}
