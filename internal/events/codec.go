// Package events encodes ledger events for transport and fans them out to
// an EventBus after each committed operation.
package events

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Channel and stream names used on the bus.
const (
	Channel = "ledger:events"
	Stream  = "ledger:events:stream"
)

// Encode serialises ev as a protobuf Struct. Integers and amounts travel as
// decimal strings so values above 2^53 survive the float64 number type.
func Encode(ev domain.LedgerEvent) ([]byte, error) {
	s, err := ToStruct(ev)
	if err != nil {
		return nil, err
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s: %w", ev.Type, err)
	}
	return b, nil
}

// ToStruct converts ev to its structpb form.
func ToStruct(ev domain.LedgerEvent) (*structpb.Struct, error) {
	e := ev.Entry
	m := map[string]any{
		"type":      string(ev.Type),
		"seq":       strconv.FormatUint(e.Seq, 10),
		"op_id":     e.OpID,
		"market_id": strconv.FormatUint(e.MarketID, 10),
		"principal": string(e.Principal),
		"at":        e.At.UTC().Format(time.RFC3339Nano),
	}
	if e.IsYes != nil {
		m["is_yes"] = *e.IsYes
	}
	if e.Outcome != nil {
		m["outcome"] = *e.Outcome
	}
	if e.Amount != nil {
		m["amount"] = e.Amount.String()
	}
	if e.Winnings != nil {
		m["winnings"] = e.Winnings.String()
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("events: build struct for %s: %w", ev.Type, err)
	}
	return s, nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (domain.LedgerEvent, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return domain.LedgerEvent{}, fmt.Errorf("events: unmarshal: %w", err)
	}
	return FromStruct(&s)
}

// FromStruct rebuilds a LedgerEvent from its structpb form.
func FromStruct(s *structpb.Struct) (domain.LedgerEvent, error) {
	f := s.GetFields()
	str := func(k string) string { return f[k].GetStringValue() }

	var ev domain.LedgerEvent
	ev.Type = domain.OpType(str("type"))
	ev.Entry.Type = ev.Type
	ev.Entry.OpID = str("op_id")
	ev.Entry.Principal = domain.Principal(str("principal"))

	var err error
	if ev.Entry.Seq, err = strconv.ParseUint(str("seq"), 10, 64); err != nil {
		return domain.LedgerEvent{}, fmt.Errorf("events: seq: %w", err)
	}
	if ev.Entry.MarketID, err = strconv.ParseUint(str("market_id"), 10, 64); err != nil {
		return domain.LedgerEvent{}, fmt.Errorf("events: market_id: %w", err)
	}
	if at := str("at"); at != "" {
		if ev.Entry.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return domain.LedgerEvent{}, fmt.Errorf("events: at: %w", err)
		}
	}
	if v, ok := f["is_yes"]; ok {
		b := v.GetBoolValue()
		ev.Entry.IsYes = &b
	}
	if v, ok := f["outcome"]; ok {
		b := v.GetBoolValue()
		ev.Entry.Outcome = &b
	}
	if ev.Entry.Amount, err = optionalAmount(f, "amount"); err != nil {
		return domain.LedgerEvent{}, err
	}
	if ev.Entry.Winnings, err = optionalAmount(f, "winnings"); err != nil {
		return domain.LedgerEvent{}, err
	}
	return ev, nil
}

func optionalAmount(f map[string]*structpb.Value, key string) (*domain.Amount, error) {
	v, ok := f[key]
	if !ok {
		return nil, nil
	}
	a, err := domain.ParseAmount(v.GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("events: %s: %w", key, err)
	}
	return &a, nil
}
