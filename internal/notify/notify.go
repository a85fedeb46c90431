// Package notify dispatches outbound notifications (email, telegram, sms)
// through bounded per-channel queues, so a slow or failing downstream
// channel backpressures its own senders without blocking the others.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Channel identifies which downstream a Message is headed for.
type Channel int

const (
	ChannelEmail Channel = iota
	ChannelTelegram
	ChannelSMS
)

func (c Channel) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelTelegram:
		return "telegram"
	case ChannelSMS:
		return "sms"
	default:
		return "unknown"
	}
}

// Message is one notification queued for delivery.
type Message struct {
	Channel   Channel
	Recipient string
	Subject   string
	Body      string
}

// Sender delivers a single Message. Implementations are external
// collaborators (SMTP, Telegram bot API, Twilio); this package only owns
// the queueing and retry contract around them.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrQueueFull is returned by Enqueue when a channel's queue is saturated;
// callers decide whether to drop or surface the failure.
var ErrQueueFull = errors.New("notify: queue full")

const (
	defaultQueueCapacity = 256
	maxAttempts          = 3
	baseBackoff          = 500 * time.Millisecond
)

// Dispatcher owns one bounded queue and one drain goroutine per channel
// kind, each backed by its own Sender.
type Dispatcher struct {
	queues map[Channel]chan Message
	log    *logrus.Logger
}

// NewDispatcher builds a Dispatcher with a bounded queue per entry in
// senders and starts no goroutines until Run is called.
func NewDispatcher(senders map[Channel]Sender, log *logrus.Logger) *Dispatcher {
	if log == nil {
		log = logrus.New()
	}
	d := &Dispatcher{queues: map[Channel]chan Message{}, log: log}
	for ch := range senders {
		d.queues[ch] = make(chan Message, defaultQueueCapacity)
	}
	return d
}

// Enqueue queues msg on its channel's queue, returning ErrQueueFull
// immediately rather than blocking the caller if the queue is saturated.
func (d *Dispatcher) Enqueue(msg Message) error {
	q, ok := d.queues[msg.Channel]
	if !ok {
		return fmt.Errorf("notify: no queue configured for channel %s", msg.Channel)
	}
	select {
	case q <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts one drain goroutine per configured channel, returning once
// ctx is cancelled and every drain goroutine has exited.
func (d *Dispatcher) Run(ctx context.Context, senders map[Channel]Sender) {
	done := make(chan struct{}, len(d.queues))
	for ch, q := range d.queues {
		sender := senders[ch]
		go func(ch Channel, q chan Message, sender Sender) {
			d.drain(ctx, ch, q, sender)
			done <- struct{}{}
		}(ch, q, sender)
	}
	for range d.queues {
		<-done
	}
}

func (d *Dispatcher) drain(ctx context.Context, ch Channel, q chan Message, sender Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q:
			d.deliver(ctx, sender, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sender Sender, msg Message) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := sender.Send(ctx, msg); err != nil {
			lastErr = err
			d.log.WithError(err).WithFields(logrus.Fields{
				"channel": msg.Channel, "recipient": msg.Recipient, "attempt": attempt,
			}).Warn("notification send failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(baseBackoff * time.Duration(attempt)):
			}
			continue
		}
		return
	}
	d.log.WithError(lastErr).WithFields(logrus.Fields{
		"channel": msg.Channel, "recipient": msg.Recipient,
	}).Error("notification dropped after max attempts")
}
