package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/filegate/internal/logging"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestBreakerSender_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &recordingSender{err: errors.New("provider down")}
	b := NewBreakerSender("sms", inner, 3, time.Minute, logging.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.EqualError(t, b.Send(ctx, "+1", "1"), "provider down")
	}

	err := b.Send(ctx, "+1", "1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, inner.dests, 3, "open breaker must not reach the provider")
}

func TestBreakerSender_PassesThroughSuccess(t *testing.T) {
	inner := &recordingSender{}
	b := NewBreakerSender("email", inner, 3, time.Minute, logging.Nop())

	assert.NoError(t, b.Send(context.Background(), "a@b.c", "42"))
	assert.Equal(t, []string{"42"}, inner.codes)
}
