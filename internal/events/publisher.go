package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// BusPublisher implements domain.EventPublisher on top of an EventBus. Each
// event is broadcast on Channel and appended to Stream for replay.
type BusPublisher struct {
	bus    domain.EventBus
	logger *slog.Logger
}

// NewBusPublisher creates a BusPublisher writing to bus.
func NewBusPublisher(bus domain.EventBus, logger *slog.Logger) *BusPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusPublisher{bus: bus, logger: logger.With(slog.String("component", "event_publisher"))}
}

// PublishEvent encodes ev and sends it to the bus. Both the broadcast and
// the stream append are attempted; their errors are joined.
func (p *BusPublisher) PublishEvent(ctx context.Context, ev domain.LedgerEvent) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	var errs []error
	if err := p.bus.Publish(ctx, Channel, payload); err != nil {
		errs = append(errs, err)
	}
	if err := p.bus.StreamAppend(ctx, Stream, payload); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("events: publish seq %d: %w", ev.Entry.Seq, errors.Join(errs...))
	}
	p.logger.Debug("event published",
		slog.String("type", string(ev.Type)),
		slog.Uint64("seq", ev.Entry.Seq),
	)
	return nil
}

// Subscribe returns decoded events from the bus until ctx ends. Payloads
// that fail to decode are logged and dropped.
func Subscribe(ctx context.Context, bus domain.EventBus, logger *slog.Logger) (<-chan domain.LedgerEvent, error) {
	raw, err := bus.Subscribe(ctx, Channel)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	out := make(chan domain.LedgerEvent, 64)
	go func() {
		defer close(out)
		for payload := range raw {
			ev, err := Decode(payload)
			if err != nil {
				logger.Warn("dropping undecodable event", slog.String("error", err.Error()))
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

var _ domain.EventPublisher = (*BusPublisher)(nil)
