package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

func TestEncodeDecode(t *testing.T) {
	yes := true
	amt := domain.MaxAmount()
	ev := domain.LedgerEvent{
		Type: domain.OpPlaceBet,
		Entry: domain.JournalEntry{
			Seq:       1 << 60,
			OpID:      "op-1",
			Type:      domain.OpPlaceBet,
			MarketID:  ^uint64(0),
			Principal: "0xAbC",
			IsYes:     &yes,
			Amount:    &amt,
			At:        time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
		},
	}
	b, err := Encode(ev)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != ev.Type || got.Entry.Seq != ev.Entry.Seq || got.Entry.MarketID != ev.Entry.MarketID {
		t.Errorf("header = %+v, want %+v", got, ev)
	}
	if got.Entry.IsYes == nil || !*got.Entry.IsYes || got.Entry.Outcome != nil {
		t.Errorf("flags = %v %v", got.Entry.IsYes, got.Entry.Outcome)
	}
	if got.Entry.Amount == nil || got.Entry.Amount.Cmp(amt) != 0 || got.Entry.Winnings != nil {
		t.Errorf("amounts = %v %v", got.Entry.Amount, got.Entry.Winnings)
	}
	if !got.Entry.At.Equal(ev.Entry.At) {
		t.Errorf("at = %v, want %v", got.Entry.At, ev.Entry.At)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("Decode accepted garbage")
	}
}

func TestLocalBusPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewLocalBus()

	exact, _ := bus.Subscribe(ctx, Channel)
	pattern, _ := bus.Subscribe(ctx, "ledger:*")
	other, _ := bus.Subscribe(ctx, "other")

	if err := bus.Publish(ctx, Channel, []byte("hi")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for name, ch := range map[string]<-chan []byte{"exact": exact, "pattern": pattern} {
		select {
		case got := <-ch:
			if string(got) != "hi" {
				t.Errorf("%s got %q", name, got)
			}
		case <-time.After(time.Second):
			t.Errorf("%s subscriber received nothing", name)
		}
	}
	select {
	case got := <-other:
		t.Errorf("unrelated subscriber got %q", got)
	default:
	}

	cancel()
	select {
	case _, ok := <-exact:
		if ok {
			t.Error("channel still open after cancel")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after cancel")
	}
}

func TestLocalBusStream(t *testing.T) {
	ctx := context.Background()
	bus := NewLocalBus()
	for _, p := range []string{"a", "b", "c"} {
		if err := bus.StreamAppend(ctx, Stream, []byte(p)); err != nil {
			t.Fatalf("StreamAppend: %v", err)
		}
	}
	all, _ := bus.StreamRead(ctx, Stream, "0", 0)
	if len(all) != 3 || string(all[0].Payload) != "a" {
		t.Fatalf("read all = %+v", all)
	}
	next, _ := bus.StreamRead(ctx, Stream, all[0].ID, 1)
	if len(next) != 1 || string(next[0].Payload) != "b" {
		t.Errorf("read after first = %+v", next)
	}
	if tail, _ := bus.StreamRead(ctx, Stream, "$", 10); len(tail) != 0 {
		t.Errorf("read $ = %+v", tail)
	}
}

type failingBus struct{ *LocalBus }

func (failingBus) StreamAppend(context.Context, string, []byte) error {
	return errors.New("stream down")
}

func TestBusPublisherDeliversAndReportsErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewLocalBus()
	evs, err := Subscribe(ctx, bus, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ev := domain.LedgerEvent{Type: domain.OpCreateMarket, Entry: domain.JournalEntry{Seq: 1, MarketID: 1, Principal: "c"}}
	if err := NewBusPublisher(bus, nil).PublishEvent(ctx, ev); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}
	select {
	case got := <-evs:
		if got.Type != domain.OpCreateMarket || got.Entry.MarketID != 1 {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	if msgs, _ := bus.StreamRead(ctx, Stream, "0", 0); len(msgs) != 1 {
		t.Errorf("stream has %d entries, want 1", len(msgs))
	}

	err = NewBusPublisher(failingBus{bus}, nil).PublishEvent(ctx, ev)
	if err == nil {
		t.Fatal("PublishEvent with failing stream returned nil")
	}
}
