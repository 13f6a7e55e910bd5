package relay

import (
	"context"

	"whatsapp-relay-bot/types"
	"whatsapp-relay-bot/utils"

	"github.com/rs/zerolog"
)

// Dispatcher feeds inbound events into a single consumer goroutine. Event
// callbacks from the client return immediately and processing never runs
// re-entrant with a pending restart.
type Dispatcher struct {
	queue    chan types.InboundEvent
	pipeline *Pipeline
	log      zerolog.Logger
}

func NewDispatcher(pipeline *Pipeline, buffer int, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:    make(chan types.InboundEvent, buffer),
		pipeline: pipeline,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// Enqueue hands an event to the worker. Drops with a warning when the queue
// is full rather than blocking the client's event loop.
func (d *Dispatcher) Enqueue(evt types.InboundEvent) {
	select {
	case d.queue <- evt:
		utils.QueueLength.Inc()
	default:
		utils.MessagesDropped.Inc()
		d.log.Warn().Str("id", evt.ID).Msg("Relay queue full, dropping message")
	}
}

// Run processes events until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-d.queue:
			utils.QueueLength.Dec()
			d.pipeline.Process(ctx, evt)
		}
	}
}
