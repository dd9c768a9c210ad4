package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// SnapshotObject is a stored snapshot as seen in a bucket listing.
type SnapshotObject struct {
	Key     string
	ID      string
	TakenAt time.Time
	Size    int64
}

// snapshotKey builds the object key for a snapshot taken at t:
//
//	<prefix>/2026/03/01/ledger-1772323200-7f1c....json
//
// The zero-padded unix time keeps lexical key order chronological.
func snapshotKey(prefix string, t time.Time, id string) string {
	return fmt.Sprintf("%s/%s/ledger-%010d-%s.json", prefix, t.Format("2006/01/02"), t.Unix(), id)
}

// parseSnapshotKey reports whether key names a snapshot written by
// snapshotKey and extracts its time and id.
func parseSnapshotKey(key string) (SnapshotObject, bool) {
	name, ok := strings.CutPrefix(path.Base(key), "ledger-")
	if !ok {
		return SnapshotObject{}, false
	}
	name, ok = strings.CutSuffix(name, ".json")
	if !ok {
		return SnapshotObject{}, false
	}
	unix, id, ok := strings.Cut(name, "-")
	if !ok {
		return SnapshotObject{}, false
	}
	secs, err := strconv.ParseInt(unix, 10, 64)
	if err != nil || secs < 0 {
		return SnapshotObject{}, false
	}
	if _, err := uuid.Parse(id); err != nil {
		return SnapshotObject{}, false
	}
	return SnapshotObject{Key: key, ID: id, TakenAt: time.Unix(secs, 0).UTC()}, true
}

// sortSnapshots orders objects oldest first.
func sortSnapshots(objs []SnapshotObject) {
	sort.Slice(objs, func(i, j int) bool {
		if !objs[i].TakenAt.Equal(objs[j].TakenAt) {
			return objs[i].TakenAt.Before(objs[j].TakenAt)
		}
		return objs[i].Key < objs[j].Key
	})
}

// Reader loads ledger snapshots from an S3-compatible bucket.
type Reader struct {
	client *s3.Client
	bucket string
}

// NewReader creates a Reader over the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// Snapshots lists the snapshot objects under prefix, oldest first. Other
// objects sharing the prefix are ignored.
func (r *Reader) Snapshots(ctx context.Context, prefix string) ([]SnapshotObject, error) {
	var objs []SnapshotObject
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list snapshots under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			so, ok := parseSnapshotKey(aws.ToString(obj.Key))
			if !ok {
				continue
			}
			so.Size = aws.ToInt64(obj.Size)
			objs = append(objs, so)
		}
	}
	sortSnapshots(objs)
	return objs, nil
}

// Load fetches and decodes the snapshot stored at key. It returns
// domain.ErrNotFound when the object is gone.
func (r *Reader) Load(ctx context.Context, key string) (domain.Snapshot, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return domain.Snapshot{}, fmt.Errorf("s3blob: load %s: %w", key, domain.ErrNotFound)
		}
		return domain.Snapshot{}, fmt.Errorf("s3blob: load %s: %w", key, err)
	}
	defer out.Body.Close()

	var snap domain.Snapshot
	if err := json.NewDecoder(out.Body).Decode(&snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("s3blob: decode snapshot %s: %w", key, err)
	}
	return snap, nil
}

// Delete removes the snapshot at key. Deleting a missing key succeeds.
func (r *Reader) Delete(ctx context.Context, key string) error {
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3blob: delete %s: %w", key, err)
	}
	return nil
}

// isNotFound matches NoSuchKey and plain 404 responses from S3-compatible
// providers.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}
