// Package notify delivers OTP codes over the deployment's configured channel.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/dmitrijs2005/filegate/internal/logging"
	"github.com/dmitrijs2005/filegate/internal/server/config"
	"github.com/dmitrijs2005/filegate/internal/server/models"
)

// Sender delivers one code to one destination (a phone number or an email
// address, depending on the implementation).
type Sender interface {
	Send(ctx context.Context, destination, code string) error
}

// Dispatcher routes codes to the Sender of a single, statically configured
// channel. Failures are not retried.
type Dispatcher struct {
	channel string
	sender  Sender
	timeout time.Duration
	logger  logging.Logger
}

func NewDispatcher(channel string, sender Sender, timeout time.Duration, l logging.Logger) *Dispatcher {
	return &Dispatcher{
		channel: channel,
		sender:  sender,
		timeout: timeout,
		logger:  l.With("module", "notify", "channel", channel),
	}
}

// Channel returns the configured channel name.
func (d *Dispatcher) Channel() string {
	return d.channel
}

// Destination returns the contact of user for the configured channel, or ""
// when the user has none.
func (d *Dispatcher) Destination(user *models.User) string {
	if d.channel == config.ChannelSMS {
		return user.Phone
	}
	return user.Email
}

// Dispatch sends code to user. A missing contact is common.ErrMissingField;
// any transport problem is common.ErrDispatchFailure.
func (d *Dispatcher) Dispatch(ctx context.Context, user *models.User, code string) error {
	dest := d.Destination(user)
	if dest == "" {
		return fmt.Errorf("%w: no %s contact for %s", common.ErrMissingField, d.channel, user.Identity)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.sender.Send(ctx, dest, code); err != nil {
		d.logger.Error(ctx, "otp dispatch failed", "identity", user.Identity, "error", err)
		return fmt.Errorf("%w: %v", common.ErrDispatchFailure, err)
	}

	d.logger.Info(ctx, "otp dispatched", "identity", user.Identity)
	return nil
}

func messageText(code string) string {
	return "Your OTP code: " + code
}
