package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowConsumesTokens(t *testing.T) {
	l := New(time.Minute)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("key-1", 5), "request %d should pass", i)
	}
	assert.False(t, l.Allow("key-1", 5))
}

func TestAllowIsPerKey(t *testing.T) {
	l := New(time.Minute)

	for i := 0; i < 3; i++ {
		l.Allow("busy", 3)
	}
	assert.False(t, l.Allow("busy", 3))
	assert.True(t, l.Allow("idle", 3))
}

func TestAllowRefills(t *testing.T) {
	// 1000 tokens per second, so a short sleep restores capacity.
	l := New(time.Second)

	for i := 0; i < 1000; i++ {
		l.Allow("key-1", 1000)
	}
	assert.False(t, l.Allow("key-1", 1000))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.Allow("key-1", 1000))
}
