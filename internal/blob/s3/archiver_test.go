package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/ledger"
	"github.com/alanyoungcy/parimarket/internal/store/memory"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: make(map[string][]byte)} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[path] = b
	m.mu.Unlock()
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Snapshots(_ context.Context, prefix string) ([]SnapshotObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SnapshotObject
	for k, v := range m.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if obj, ok := parseSnapshotKey(k); ok {
			obj.Size = int64(len(v))
			out = append(out, obj)
		}
	}
	sortSnapshots(out)
	return out, nil
}

func (m *memBlobs) Load(_ context.Context, key string) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	var snap domain.Snapshot
	err := json.Unmarshal(b, &snap)
	return snap, err
}

func (m *memBlobs) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	delete(m.objects, path)
	m.mu.Unlock()
	return nil
}

func (m *memBlobs) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSnapshotAndLatest(t *testing.T) {
	ctx := context.Background()
	eng := ledger.NewEngine(memory.New(), testLogger())
	id, err := eng.CreateMarket(ctx, "c", "Q?", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.PlaceBet(ctx, "x", id, true, domain.NewAmount(100)); err != nil {
		t.Fatal(err)
	}

	blobs := newMemBlobs()
	arch := NewSnapshotArchiver(eng, blobs, ArchiverConfig{Prefix: "/snaps/"}, testLogger())
	arch.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	if _, err := arch.Latest(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Latest on empty bucket = %v, want ErrNotFound", err)
	}

	info, err := arch.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !strings.HasPrefix(info.Path, "snaps/2026/03/01/ledger-1772366400-") || !strings.HasSuffix(info.Path, ".json") {
		t.Errorf("path = %q", info.Path)
	}
	if info.Markets != 1 || info.Bets != 1 || info.Size == 0 {
		t.Errorf("info = %+v", info)
	}

	snap, err := arch.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if snap.NextMarketID != 2 || len(snap.Markets) != 1 || snap.Markets[0].YesPool.String() != "100" || len(snap.Journal) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	restored := memory.New()
	if err := restored.Restore(ctx, snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if err := ledger.NewEngine(restored, testLogger()).PlaceBet(ctx, "x", id, false, domain.NewAmount(1)); !errors.Is(err, domain.ErrDuplicateBet) {
		t.Errorf("bet after restore = %v, want ErrDuplicateBet", err)
	}
}

func TestSnapshotRetention(t *testing.T) {
	ctx := context.Background()
	eng := ledger.NewEngine(memory.New(), testLogger())
	blobs := newMemBlobs()
	blobs.objects["snapshots/readme.txt"] = []byte("not a snapshot")

	arch := NewSnapshotArchiver(eng, blobs, ArchiverConfig{Retain: 2}, testLogger())
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		arch.now = func() time.Time { return at }
		if _, err := arch.Snapshot(ctx); err != nil {
			t.Fatalf("Snapshot %d: %v", i, err)
		}
	}

	keys := blobs.keys()
	if len(keys) != 3 {
		t.Fatalf("objects = %v, want 2 snapshots and the readme", keys)
	}
	for i, day := range []string{"2026/03/03", "2026/03/04"} {
		if !strings.Contains(keys[i], day) {
			t.Errorf("kept %q, want day %s", keys[i], day)
		}
	}
}

type failingExporter struct{}

func (failingExporter) Export(context.Context) (domain.Snapshot, error) {
	return domain.Snapshot{}, fmt.Errorf("boom")
}

func TestSnapshotExportFailure(t *testing.T) {
	blobs := newMemBlobs()
	arch := NewSnapshotArchiver(failingExporter{}, blobs, ArchiverConfig{}, testLogger())
	if _, err := arch.Snapshot(context.Background()); err == nil {
		t.Fatal("Snapshot succeeded with failing exporter")
	}
	if len(blobs.keys()) != 0 {
		t.Errorf("objects written on failure: %v", blobs.keys())
	}
}

func TestParseSnapshotKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := "7f1c2a9e-6b1d-4c55-9d7e-0a3f5c1b2e4d"
	key := snapshotKey("snapshots", at, id)
	if key != "snapshots/2026/03/01/ledger-1772366400-"+id+".json" {
		t.Fatalf("snapshotKey = %q", key)
	}
	obj, ok := parseSnapshotKey(key)
	if !ok || obj.ID != id || !obj.TakenAt.Equal(at) || obj.Key != key {
		t.Errorf("parseSnapshotKey(%q) = %+v, %v", key, obj, ok)
	}

	for _, bad := range []string{
		"snapshots/readme.txt",
		"snapshots/2026/03/01/ledger-1772366400-" + id + ".json.tmp",
		"snapshots/2026/03/01/ledger-notatime-" + id + ".json",
		"snapshots/2026/03/01/ledger-1772366400-nope.json",
		"snapshots/2026/03/01/market-1772366400-" + id + ".json",
	} {
		if _, ok := parseSnapshotKey(bad); ok {
			t.Errorf("parseSnapshotKey(%q) accepted", bad)
		}
	}
}

func TestSortSnapshotsByTime(t *testing.T) {
	id := "7f1c2a9e-6b1d-4c55-9d7e-0a3f5c1b2e4d"
	// A prefix change between days must not reorder snapshots.
	newer, _ := parseSnapshotKey(snapshotKey("a", time.Unix(2000, 0), id))
	older, _ := parseSnapshotKey(snapshotKey("b", time.Unix(1000, 0), id))
	objs := []SnapshotObject{newer, older}
	sortSnapshots(objs)
	if objs[0].Key != older.Key {
		t.Errorf("order = %v", objs)
	}
}
