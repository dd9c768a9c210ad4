package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// multipartThreshold is the snapshot size above which uploads switch to
// the multipart manager.
const multipartThreshold = 16 * 1024 * 1024

// Exporter produces a consistent copy of the ledger.
type Exporter interface {
	Export(ctx context.Context) (domain.Snapshot, error)
}

// SnapshotStore is the bucket access the archiver needs.
type SnapshotStore interface {
	domain.BlobWriter
	Snapshots(ctx context.Context, prefix string) ([]SnapshotObject, error)
	Load(ctx context.Context, key string) (domain.Snapshot, error)
	Delete(ctx context.Context, key string) error
}

// Blobs is the Reader and Writer of one client, usable as a SnapshotStore.
type Blobs struct {
	*Reader
	*Writer
}

// NewBlobs returns the full blob access of c.
func NewBlobs(c *Client) *Blobs {
	return &Blobs{Reader: NewReader(c), Writer: NewWriter(c)}
}

var _ SnapshotStore = (*Blobs)(nil)

// ArchiverConfig configures a SnapshotArchiver.
type ArchiverConfig struct {
	// Prefix is the key prefix, e.g. "snapshots".
	Prefix string
	// Retain keeps only the newest N snapshots. Zero keeps all of them.
	Retain int
}

// SnapshotArchiver implements domain.Archiver. Snapshots are JSON
// documents stored under the keys built by snapshotKey.
type SnapshotArchiver struct {
	source Exporter
	blobs  SnapshotStore
	cfg    ArchiverConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSnapshotArchiver creates a SnapshotArchiver.
func NewSnapshotArchiver(source Exporter, blobs SnapshotStore, cfg ArchiverConfig, logger *slog.Logger) *SnapshotArchiver {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.Prefix == "" {
		cfg.Prefix = "snapshots"
	}
	return &SnapshotArchiver{
		source: source,
		blobs:  blobs,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "snapshot_archiver")),
		now:    time.Now,
	}
}

// Snapshot exports the ledger and uploads it.
func (a *SnapshotArchiver) Snapshot(ctx context.Context) (domain.SnapshotInfo, error) {
	snap, err := a.source.Export(ctx)
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("s3blob: snapshot export: %w", err)
	}

	buf, err := json.Marshal(snap)
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("s3blob: snapshot marshal: %w", err)
	}

	now := a.now().UTC()
	key := snapshotKey(a.cfg.Prefix, now, uuid.NewString())
	if len(buf) > multipartThreshold {
		err = a.blobs.PutMultipart(ctx, key, bytes.NewReader(buf), 0)
	} else {
		err = a.blobs.Put(ctx, key, bytes.NewReader(buf), "application/json")
	}
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("s3blob: snapshot upload: %w", err)
	}

	info := domain.SnapshotInfo{
		Path:      key,
		Size:      int64(len(buf)),
		Markets:   len(snap.Markets),
		Bets:      len(snap.Bets),
		CreatedAt: now,
	}
	a.logger.InfoContext(ctx, "snapshot stored",
		slog.String("path", key),
		slog.Int64("bytes", info.Size),
		slog.Int("markets", info.Markets),
		slog.Int("bets", info.Bets),
	)

	if a.cfg.Retain > 0 {
		if err := a.prune(ctx); err != nil {
			// The new snapshot is stored; pruning is retried next time.
			a.logger.WarnContext(ctx, "snapshot prune failed", slog.String("error", err.Error()))
		}
	}
	return info, nil
}

// Latest loads the newest stored snapshot. It returns domain.ErrNotFound
// when none exists.
func (a *SnapshotArchiver) Latest(ctx context.Context) (domain.Snapshot, error) {
	objs, err := a.blobs.Snapshots(ctx, a.cfg.Prefix+"/")
	if err != nil {
		return domain.Snapshot{}, err
	}
	if len(objs) == 0 {
		return domain.Snapshot{}, fmt.Errorf("s3blob: latest snapshot under %s: %w", a.cfg.Prefix, domain.ErrNotFound)
	}
	latest := objs[len(objs)-1]
	snap, err := a.blobs.Load(ctx, latest.Key)
	if err != nil {
		return domain.Snapshot{}, err
	}
	a.logger.DebugContext(ctx, "snapshot loaded",
		slog.String("path", latest.Key),
		slog.Time("taken_at", latest.TakenAt),
	)
	return snap, nil
}

func (a *SnapshotArchiver) prune(ctx context.Context) error {
	objs, err := a.blobs.Snapshots(ctx, a.cfg.Prefix+"/")
	if err != nil {
		return err
	}
	if len(objs) <= a.cfg.Retain {
		return nil
	}
	var errs []error
	for _, obj := range objs[:len(objs)-a.cfg.Retain] {
		if err := a.blobs.Delete(ctx, obj.Key); err != nil {
			errs = append(errs, err)
			continue
		}
		a.logger.DebugContext(ctx, "snapshot pruned", slog.String("path", obj.Key))
	}
	return errors.Join(errs...)
}

var _ domain.Archiver = (*SnapshotArchiver)(nil)
