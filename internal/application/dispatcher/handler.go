package dispatcher

import (
	"context"

	"github.com/garyjia/procurement/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a subscription; Handler is nil in listings
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
