package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotifyThrottlesPerKey(t *testing.T) {
	var shown []string
	n := NewNotifier(func(severity Severity, message string) {
		shown = append(shown, message)
	})

	now := time.Unix(1700000000, 0)
	n.now = func() time.Time { return now }

	assert.True(t, n.Notify("conv:a", "first", SeverityInfo, 5*time.Second))
	assert.False(t, n.Notify("conv:a", "second", SeverityInfo, 5*time.Second))
	assert.False(t, n.Notify("conv:a", "third", SeverityInfo, 5*time.Second))
	assert.Equal(t, []string{"first"}, shown)

	// A different key has its own budget.
	assert.True(t, n.Notify("conv:b", "other", SeverityInfo, 5*time.Second))

	// Once the window elapses, the key may fire again.
	now = now.Add(5 * time.Second)
	assert.True(t, n.Notify("conv:a", "fourth", SeverityInfo, 5*time.Second))

	assert.Equal(t, []string{"first", "other", "fourth"}, shown)
}

func TestNotifyDefaultWindow(t *testing.T) {
	count := 0
	n := NewNotifier(func(Severity, string) { count++ })
	now := time.Unix(1700000000, 0)
	n.now = func() time.Time { return now }

	assert.True(t, n.Notify("k", "a", SeverityError, 0))
	assert.False(t, n.Notify("k", "b", SeverityError, 0))
	now = now.Add(4 * time.Second)
	assert.False(t, n.Notify("k", "c", SeverityError, 0))
	now = now.Add(time.Second)
	assert.True(t, n.Notify("k", "d", SeverityError, 0))
	assert.Equal(t, 2, count)
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "info", SeverityInfo.String())
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "error", SeverityError.String())
}
