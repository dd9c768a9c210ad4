package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// SnapshotInfo describes a stored ledger snapshot.
type SnapshotInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Markets   int       `json:"markets"`
	Bets      int       `json:"bets"`
	CreatedAt time.Time `json:"created_at"`
}

// Archiver persists ledger snapshots to cold storage.
type Archiver interface {
	Snapshot(ctx context.Context) (SnapshotInfo, error)
	Latest(ctx context.Context) (Snapshot, error)
}
