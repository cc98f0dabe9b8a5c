// Package bus decouples the chat core from the channels that mirror rooms
// to external services. Inbound messages flow from channels to the core,
// outbound agent replies fan out to every subscribed channel.
package bus

import (
	"context"
	"log"
	"sync"
	"time"
)

type InboundMessage struct {
	Channel   string
	SenderID  string
	Sender    string
	RoomID    string
	Content   string
	Timestamp time.Time
}

type OutboundMessage struct {
	RoomID  string
	Content string
	ReplyTo string
}

type subscriber struct {
	name    string
	handler func(context.Context, OutboundMessage) error
}

type MessageBus struct {
	Inbound chan InboundMessage

	outbound chan OutboundMessage
	mu       sync.RWMutex
	subs     []subscriber
}

func NewMessageBus(bufSize int) *MessageBus {
	if bufSize <= 0 {
		bufSize = 1
	}
	return &MessageBus{
		Inbound:  make(chan InboundMessage, bufSize),
		outbound: make(chan OutboundMessage, bufSize),
	}
}

// SubscribeOutbound registers a handler for agent replies. Handlers run
// sequentially per message; a failing handler is logged, not retried.
func (b *MessageBus) SubscribeOutbound(name string, handler func(context.Context, OutboundMessage) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscriber{name: name, handler: handler})
}

// PublishOutbound hands a reply to the dispatcher. It never blocks the
// caller: a full queue drops the message with a warning.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	default:
		log.Printf("[bus] warning: outbound queue full, dropping message for room %s", msg.RoomID)
	}
}

// DispatchOutbound pumps replies to subscribers until ctx is cancelled.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbound:
			b.mu.RLock()
			subs := make([]subscriber, len(b.subs))
			copy(subs, b.subs)
			b.mu.RUnlock()

			for _, sub := range subs {
				if err := sub.handler(ctx, msg); err != nil {
					log.Printf("[bus] warning: deliver to %s: %v", sub.name, err)
				}
			}
		}
	}
}
