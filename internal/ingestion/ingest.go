package ingestion

import (
	"context"
	"fmt"

	"CoverLedger/internal/event"
)

// CommandIngest provides direct command injection for the HTTP surface and
// admin tooling. High-throughput producers go through NATS; this path shares
// the same typed-event channel into the core, so ordering and idempotency
// behave identically.
type CommandIngest struct {
	eventChan chan<- event.Event
}

func NewCommandIngest(eventChan chan<- event.Event) *CommandIngest {
	return &CommandIngest{eventChan: eventChan}
}

// Submit queues a typed command for the core. Blocks under backpressure
// until the core drains or the caller's context expires.
func (s *CommandIngest) Submit(ctx context.Context, evt event.Event) error {
	if evt == nil {
		return fmt.Errorf("nil event")
	}
	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
