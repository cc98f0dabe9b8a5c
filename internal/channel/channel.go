// Package channel mirrors chat rooms to external messengers. Each channel
// feeds user messages into the bus and delivers agent replies back out.
package channel

import (
	"context"

	"github.com/bonfirelabs/bonfire/internal/bus"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// BaseChannel carries the pieces every channel shares: its name, the bus
// and the sender allowlist.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		allowed[id] = true
	}
	return BaseChannel{name: name, bus: b, allowFrom: allowed}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) Bus() *bus.MessageBus {
	return c.bus
}

// IsAllowed reports whether a sender may talk to the agent. An empty
// allowlist admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	return c.allowFrom[senderID]
}
