// Package dispatch routes rendered reminders to the transport for their channel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"golang.org/x/time/rate"
)

var ErrNoTransport = errors.New("no transport configured for channel")

// Transport delivers one message and returns the provider's id for it.
type Transport interface {
	Send(ctx context.Context, recipient, subject, body string) (string, error)
}

type Message struct {
	Subject string
	Body    string
}

type Receipt struct {
	Channel    model.Channel
	ProviderID string
}

type Dispatcher struct {
	transports map[model.Channel]Transport
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New builds a dispatcher. perSecond <= 0 disables throttling.
func New(transports map[model.Channel]Transport, perSecond float64, logger *slog.Logger) *Dispatcher {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return &Dispatcher{transports: transports, limiter: limiter, logger: logger}
}

func (d *Dispatcher) Send(ctx context.Context, ch model.Channel, recipient string, msg Message) (Receipt, error) {
	t, ok := d.transports[ch]
	if !ok || t == nil {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNoTransport, ch)
	}
	if recipient == "" {
		return Receipt{}, fmt.Errorf("%s: empty recipient", ch)
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return Receipt{}, fmt.Errorf("%s: throttle: %w", ch, err)
	}

	providerID, err := t.Send(ctx, recipient, msg.Subject, msg.Body)
	if err != nil {
		d.logger.Warn("reminder send failed", "channel", ch, "err", err)
		return Receipt{Channel: ch}, err
	}
	return Receipt{Channel: ch, ProviderID: providerID}, nil
}
