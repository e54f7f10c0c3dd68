package notify

import (
	"context"
	"sync"
	"time"

	"cancelflow-be/internal/pkg/logger"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelEvent Channel = "event"
)

// AllChannels is used when Notify is called without an explicit channel list.
var AllChannels = []Channel{ChannelPush, ChannelEmail, ChannelEvent}

// Recipient identifies who a notification is for. Email may be empty, in which
// case the email channel skips it.
type Recipient struct {
	UserID uuid.UUID
	Email  string
}

type Notification struct {
	To      Recipient
	Type    string
	Payload map[string]interface{}
	SentAt  time.Time
}

// Sender delivers a notification over one channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Notifier fans a notification out to its channels in the background.
// Delivery failures are logged and never reach the caller.
type Notifier struct {
	senders map[Channel]Sender
	timeout time.Duration
	logger  logger.ILogger
	wg      sync.WaitGroup
}

func NewNotifier(timeout time.Duration, log logger.ILogger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{senders: make(map[Channel]Sender), timeout: timeout, logger: log}
}

// Register wires a channel. Call before the first Notify.
func (n *Notifier) Register(channel Channel, sender Sender) {
	n.senders[channel] = sender
}

func (n *Notifier) Notify(ctx context.Context, to Recipient, notificationType string, payload map[string]interface{}, channels ...Channel) {
	if len(channels) == 0 {
		channels = AllChannels
	}
	notification := Notification{To: to, Type: notificationType, Payload: payload, SentAt: time.Now().UTC()}
	base := context.WithoutCancel(ctx)

	for _, channel := range channels {
		sender, ok := n.senders[channel]
		if !ok {
			continue
		}
		n.wg.Add(1)
		go func(channel Channel, sender Sender) {
			defer n.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					n.logger.Error("Notifier", "Channel panicked", map[string]interface{}{"channel": string(channel), "panic": r})
				}
			}()

			sendCtx, cancel := context.WithTimeout(base, n.timeout)
			defer cancel()
			if err := sender.Send(sendCtx, notification); err != nil {
				n.logger.Warn("Notifier", "Delivery failed", map[string]interface{}{
					"channel": string(channel),
					"type":    notificationType,
					"user_id": to.UserID.String(),
					"error":   err.Error(),
				})
			}
		}(channel, sender)
	}
}

// Wait blocks until in-flight deliveries finish or ctx ends.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
