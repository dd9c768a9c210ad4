package events

import (
	"context"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// localStreamMaxLen bounds each in-process stream.
const localStreamMaxLen = 10000

// LocalBus is an in-process EventBus used when Redis is not configured.
// Slow subscribers lose messages rather than blocking publishers.
type LocalBus struct {
	mu      sync.RWMutex
	subs    map[int]localSub
	nextSub int
	streams map[string][]domain.StreamMessage
	seq     map[string]uint64
}

type localSub struct {
	pattern string
	ch      chan []byte
}

// NewLocalBus creates an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{
		subs:    make(map[int]localSub),
		streams: make(map[string][]domain.StreamMessage),
		seq:     make(map[string]uint64),
	}
}

// Publish delivers payload to every subscriber whose channel or pattern
// matches.
func (b *LocalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		cp := append([]byte(nil), payload...)
		select {
		case s.ch <- cp:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscription that is removed when ctx ends.
func (b *LocalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = localSub{pattern: channel, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// StreamAppend appends payload to stream, trimming the oldest entries past
// localStreamMaxLen.
func (b *LocalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq[stream]++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatUint(b.seq[stream], 10) + "-0",
		Payload: append([]byte(nil), payload...),
	})
	if len(msgs) > localStreamMaxLen {
		msgs = msgs[len(msgs)-localStreamMaxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count messages with IDs after lastID. "0", "0-0"
// and "" read from the beginning; "$" returns nothing.
func (b *LocalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	if lastID == "$" {
		return nil, nil
	}
	after := streamSeq(lastID)

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		if streamSeq(m.ID) <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

func streamSeq(id string) uint64 {
	head, _, _ := strings.Cut(id, "-")
	n, _ := strconv.ParseUint(head, 10, 64)
	return n
}

var _ domain.EventBus = (*LocalBus)(nil)
