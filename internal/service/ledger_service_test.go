package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/ledger"
	"github.com/alanyoungcy/parimarket/internal/store/memory"
)

type countingLock struct {
	mu       sync.Mutex
	acquired int
	released int
	err      error
}

func (l *countingLock) AcquireWait(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if key != WriterLockKey {
		return nil, errors.New("unexpected key " + key)
	}
	l.acquired++
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

type recordingViews struct {
	mu  sync.Mutex
	ids []uint64
}

func (r *recordingViews) Invalidate(_ context.Context, id uint64) error {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecuteLocksAndInvalidates(t *testing.T) {
	ctx := context.Background()
	lock := &countingLock{}
	views := &recordingViews{}
	svc := NewLedgerService(ledger.NewEngine(memory.New(), discardLogger()), views, discardLogger(),
		WithWriterLock(lock, time.Second))

	resp, err := svc.Execute(ctx, "c", ledger.CreateMarket{Question: "Q?"})
	if err != nil || resp.MarketID != 1 {
		t.Fatalf("create = %+v, %v", resp, err)
	}
	if _, err := svc.Execute(ctx, "x", ledger.PlaceBet{MarketID: 1, IsYes: true, Amount: domain.NewAmount(5)}); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if _, err := svc.Execute(ctx, "x", ledger.PlaceBet{MarketID: 1, IsYes: true, Amount: domain.NewAmount(5)}); !errors.Is(err, domain.ErrDuplicateBet) {
		t.Fatalf("duplicate bet = %v", err)
	}

	if lock.acquired != 3 || lock.released != 3 {
		t.Errorf("lock acquired/released = %d/%d, want 3/3", lock.acquired, lock.released)
	}
	if len(views.ids) != 2 || views.ids[0] != 1 || views.ids[1] != 1 {
		t.Errorf("invalidated = %v, want [1 1]", views.ids)
	}
}

func TestExecuteFailsWithoutLock(t *testing.T) {
	lock := &countingLock{err: domain.ErrContextDone}
	svc := NewLedgerService(ledger.NewEngine(memory.New(), discardLogger()), nil, discardLogger(),
		WithWriterLock(lock, time.Second))
	_, err := svc.Execute(context.Background(), "c", ledger.CreateMarket{Question: "Q?"})
	if !errors.Is(err, domain.ErrContextDone) {
		t.Fatalf("Execute = %v, want ErrContextDone", err)
	}
	if _, ok := domain.KindOf(err); ok {
		t.Error("lock failure reported as a ledger rejection")
	}
}

func TestExecuteConcurrent(t *testing.T) {
	ctx := context.Background()
	svc := NewLedgerService(ledger.NewEngine(memory.New(), discardLogger()), nil, discardLogger())
	if _, err := svc.Execute(ctx, "c", ledger.CreateMarket{Question: "Q?"}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := domain.Principal("p" + string(rune('a'+i)))
			if _, err := svc.Execute(ctx, p, ledger.PlaceBet{MarketID: 1, IsYes: i%2 == 0, Amount: domain.NewAmount(10)}); err != nil {
				t.Errorf("bet %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	snap, err := svc.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	m := snap.Markets[0]
	if m.YesPool.String() != "100" || m.NoPool.String() != "100" || len(snap.Bets) != 20 {
		t.Errorf("after concurrent bets: yes=%s no=%s bets=%d", m.YesPool, m.NoPool, len(snap.Bets))
	}
}
