// Package notify forwards ledger events to operator chat channels
// (Telegram, Discord). Delivery is filtered by event name so operators
// receive only the alerts they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// Event names accepted in the notify.events configuration.
const (
	EventMarketCreated   = "market_created"
	EventBetPlaced       = "bet_placed"
	EventMarketResolved  = "market_resolved"
	EventWinningsClaimed = "winnings_claimed"
)

// DefaultEvents is used when no events are configured.
var DefaultEvents = []string{EventMarketCreated, EventMarketResolved, EventWinningsClaimed}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that delivers to senders. Only the named
// events are forwarded by Notify; an empty list selects DefaultEvents.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	if len(events) == 0 {
		events = DefaultEvents
	}
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Run forwards events until the channel closes or ctx ends. Delivery
// failures are logged and never stop the loop.
func (n *Notifier) Run(ctx context.Context, events <-chan domain.LedgerEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := n.NotifyEvent(ctx, ev); err != nil {
				n.logger.WarnContext(ctx, "event notification failed",
					slog.Uint64("seq", ev.Entry.Seq),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// NotifyEvent formats ev and sends it if its event name is enabled.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.LedgerEvent) error {
	name, title, message := Format(ev)
	return n.Notify(ctx, name, title, message)
}

// Notify sends a notification to all senders if event is enabled.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender; one failure does not prevent delivery to
// the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Format renders ev as an event name, title and message body.
func Format(ev domain.LedgerEvent) (name, title, message string) {
	e := ev.Entry
	switch ev.Type {
	case domain.OpCreateMarket:
		return EventMarketCreated,
			fmt.Sprintf("Market #%d created", e.MarketID),
			fmt.Sprintf("Creator: %s", e.Principal)
	case domain.OpPlaceBet:
		side := "NO"
		if e.IsYes != nil && *e.IsYes {
			side = "YES"
		}
		return EventBetPlaced,
			fmt.Sprintf("Bet on market #%d", e.MarketID),
			fmt.Sprintf("%s staked %s on %s", e.Principal, amountOrZero(e.Amount), side)
	case domain.OpResolveMarket:
		outcome := "NO"
		if e.Outcome != nil && *e.Outcome {
			outcome = "YES"
		}
		return EventMarketResolved,
			fmt.Sprintf("Market #%d resolved", e.MarketID),
			fmt.Sprintf("Outcome: %s", outcome)
	case domain.OpClaimWinnings:
		return EventWinningsClaimed,
			fmt.Sprintf("Winnings claimed on market #%d", e.MarketID),
			fmt.Sprintf("%s claimed %s", e.Principal, amountOrZero(e.Winnings))
	default:
		return string(ev.Type), string(ev.Type), fmt.Sprintf("seq %d", e.Seq)
	}
}

func amountOrZero(a *domain.Amount) string {
	if a == nil {
		return "0"
	}
	return a.String()
}
