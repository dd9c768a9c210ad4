package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/events"
)

func startHub(t *testing.T) (*Hub, *events.LocalBus, *httptest.Server) {
	t.Helper()
	bus := events.NewLocalBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "server"})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return hub, bus, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if kind != websocket.TextMessage || !strings.Contains(string(msg), `"service_status"`) {
		t.Fatalf("first frame = %d %s", kind, msg)
	}
	return conn
}

func publish(t *testing.T, bus *events.LocalBus, marketID uint64) {
	t.Helper()
	data, err := events.Encode(domain.LedgerEvent{
		Type:  domain.OpPlaceBet,
		Entry: domain.JournalEntry{Seq: marketID, MarketID: marketID, Principal: "bob", At: time.Now()},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := bus.Publish(context.Background(), events.Channel, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.LedgerEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("event frame kind = %d, want binary", kind)
	}
	ev, err := events.Decode(msg)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return ev
}

func TestHubRelaysEvents(t *testing.T) {
	hub, bus, srv := startHub(t)
	conn := dial(t, srv, "")

	publish(t, bus, 7)
	ev := readEvent(t, conn)
	if ev.Type != domain.OpPlaceBet || ev.Entry.MarketID != 7 || ev.Entry.Principal != "bob" {
		t.Fatalf("event = %+v", ev)
	}
	if n := hub.ClientCount(); n != 1 {
		t.Fatalf("ClientCount = %d, want 1", n)
	}
}

func TestHubFiltersByMarketTopic(t *testing.T) {
	_, bus, srv := startHub(t)
	conn := dial(t, srv, "?topics="+MarketTopic(2))

	publish(t, bus, 1)
	publish(t, bus, 2)
	if ev := readEvent(t, conn); ev.Entry.MarketID != 2 {
		t.Fatalf("first delivered market = %d, want 2", ev.Entry.MarketID)
	}
}

func TestIsSubscribedAnyWildcard(t *testing.T) {
	c := &client{subs: map[string]bool{"market:*": true}}
	if !c.isSubscribedAny([]string{TopicAll, MarketTopic(12)}) {
		t.Error("market:* should match market:12")
	}
	c = &client{subs: map[string]bool{MarketTopic(3): true}}
	if c.isSubscribedAny([]string{TopicAll, MarketTopic(33)}) {
		t.Error("market:3 should not match market:33")
	}
}

func TestHubReplaysStream(t *testing.T) {
	_, bus, srv := startHub(t)
	for id := uint64(1); id <= 3; id++ {
		data, err := events.Encode(domain.LedgerEvent{
			Type:  domain.OpCreateMarket,
			Entry: domain.JournalEntry{Seq: id, MarketID: id, Principal: "alice", At: time.Now()},
		})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if err := bus.StreamAppend(context.Background(), events.Stream, data); err != nil {
			t.Fatalf("StreamAppend: %v", err)
		}
	}

	conn := dial(t, srv, "?after=0&topics=market:*")
	for want := uint64(1); want <= 3; want++ {
		if ev := readEvent(t, conn); ev.Entry.Seq != want {
			t.Fatalf("replayed seq = %d, want %d", ev.Entry.Seq, want)
		}
	}
}
