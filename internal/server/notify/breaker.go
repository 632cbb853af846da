package notify

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filegate/internal/logging"
	"github.com/sony/gobreaker"
)

// BreakerSender fails fast while the wrapped provider keeps failing.
type BreakerSender struct {
	cb   *gobreaker.CircuitBreaker
	next Sender
}

// NewBreakerSender opens after maxFailures consecutive errors and probes
// again after timeout.
func NewBreakerSender(name string, next Sender, maxFailures uint32, timeout time.Duration, l logging.Logger) *BreakerSender {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			l.Warn(context.Background(), "circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerSender{cb: gobreaker.NewCircuitBreaker(st), next: next}
}

func (b *BreakerSender) Send(ctx context.Context, destination, code string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, destination, code)
	})
	return err
}
