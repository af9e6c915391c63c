package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnlineTracking(t *testing.T) {
	p := NewPresence()

	p.SetOnline(3)
	p.SetOnline(1)
	p.SetOnline(3)
	assert.True(t, p.IsOnline(3))
	assert.Equal(t, []int{1, 3}, p.Online())

	p.SetOffline(3)
	assert.False(t, p.IsOnline(3))
	assert.Equal(t, []int{1}, p.Online())
}

func TestTypingStartStop(t *testing.T) {
	p := NewPresence()
	p.setSelf(1)

	p.ApplyTypingStart("conv-1", 2)
	p.ApplyTypingStart("conv-1", 3)
	assert.Equal(t, []int{2, 3}, p.TypingUsers("conv-1"))
	assert.Nil(t, p.TypingUsers("conv-2"))

	p.ApplyTypingStop("conv-1", 2)
	assert.Equal(t, []int{3}, p.TypingUsers("conv-1"))
	assert.Equal(t, 1, p.timers.pending())
}

func TestTypingIgnoresSelf(t *testing.T) {
	p := NewPresence()
	p.setSelf(1)

	p.ApplyTypingStart("conv-1", 1)
	assert.Empty(t, p.TypingUsers("conv-1"))
	assert.Equal(t, 0, p.timers.pending())
}

func TestTypingAutoExpires(t *testing.T) {
	p := NewPresence()
	p.setSelf(1)
	p.expiry = 20 * time.Millisecond

	p.ApplyTypingStart("conv-1", 2)
	require.Equal(t, []int{2}, p.TypingUsers("conv-1"))

	assert.Eventually(t, func() bool {
		return len(p.TypingUsers("conv-1")) == 0
	}, time.Second, 5*time.Millisecond, "typing state must expire without a stop signal")
	assert.Equal(t, 0, p.timers.pending())
}

func TestTypingStartRefreshesExpiry(t *testing.T) {
	p := NewPresence()
	p.setSelf(1)
	p.expiry = 60 * time.Millisecond

	p.ApplyTypingStart("conv-1", 2)
	time.Sleep(40 * time.Millisecond)
	p.ApplyTypingStart("conv-1", 2)
	time.Sleep(40 * time.Millisecond)

	// 80ms after the first signal, but only 40ms after the refresh.
	assert.Equal(t, []int{2}, p.TypingUsers("conv-1"))
}

func TestPresenceTeardown(t *testing.T) {
	p := NewPresence()
	p.setSelf(1)

	p.SetOnline(2)
	p.ApplyTypingStart("conv-1", 2)
	p.ApplyTypingStart("conv-2", 3)
	require.Equal(t, 2, p.timers.pending())

	p.Teardown()
	assert.Equal(t, 0, p.timers.pending())
	assert.Empty(t, p.Online())
	assert.Empty(t, p.TypingUsers("conv-1"))
}
