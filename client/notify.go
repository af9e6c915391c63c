package client

import (
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// NotifyFunc receives user-facing notifications that survived throttling.
type NotifyFunc func(severity Severity, message string)

// Notifier rate-limits notifications per event key so bursts of same-type
// events (e.g. many messages in one conversation) produce a single toast.
type Notifier struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	sink     NotifyFunc
	now      func() time.Time
}

func NewNotifier(sink NotifyFunc) *Notifier {
	if sink == nil {
		sink = func(severity Severity, message string) {
			log.Printf("[%s] %s", severity, message)
		}
	}
	return &Notifier{
		limiters: make(map[string]*rate.Limiter),
		sink:     sink,
		now:      time.Now,
	}
}

// Notify shows the notification unless the same key fired within window.
// Reports whether the notification was shown.
func (n *Notifier) Notify(key, message string, severity Severity, window time.Duration) bool {
	if window <= 0 {
		window = 5 * time.Second
	}

	n.mu.Lock()
	lim, ok := n.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(window), 1)
		n.limiters[key] = lim
	} else if lim.Limit() != rate.Every(window) {
		lim.SetLimit(rate.Every(window))
	}
	allowed := lim.AllowN(n.now(), 1)
	n.mu.Unlock()

	if !allowed {
		return false
	}
	n.sink(severity, message)
	return true
}
