// Package archive saves and loads serialized contract snapshots on a blob
// store. Keys sort chronologically, so the last listed entry is the newest.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tracefood/internal/blob"
	"tracefood/pkg/domain"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "snapshots/"

const (
	contentType  = "application/json"
	keyTimestamp = "20060102T150405.000000000Z"
	metaLots     = "lots"
	metaInit     = "initialized"
)

// Entry describes an archived snapshot.
type Entry struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
	Lots        int       `json:"lots"`
	Initialized bool      `json:"initialized"`
}

// Archive writes snapshots under a key prefix.
type Archive struct {
	store  blob.Store
	prefix string
	now    func() time.Time
}

// Option customizes an Archive.
type Option func(*Archive)

// WithPrefix overrides DefaultPrefix. A trailing slash is added when missing.
func WithPrefix(prefix string) Option {
	return func(a *Archive) {
		if prefix == "" {
			return
		}
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// WithClock sets the time source used to name new entries.
func WithClock(now func() time.Time) Option {
	return func(a *Archive) {
		if now != nil {
			a.now = now
		}
	}
}

// New wraps store.
func New(store blob.Store, opts ...Option) *Archive {
	a := &Archive{store: store, prefix: DefaultPrefix, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Store returns the underlying blob store.
func (a *Archive) Store() blob.Store { return a.store }

// Save writes snapshot as a new entry.
func (a *Archive) Save(ctx context.Context, snapshot domain.Snapshot) (Entry, error) {
	snap := domain.CloneSnapshot(snapshot)
	payload, err := json.Marshal(snap)
	if err != nil {
		return Entry{}, fmt.Errorf("encode snapshot: %w", err)
	}
	created := a.now().UTC()
	key := a.prefix + created.Format(keyTimestamp) + "-" + uuid.NewString()[:8] + ".json"
	info, err := a.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			metaLots: strconv.Itoa(len(snap.LotIDs)),
			metaInit: strconv.FormatBool(snap.Initialized()),
		},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("archive snapshot: %w", err)
	}
	return entryFromInfo(a.prefix, info), nil
}

// List returns the archived entries oldest first.
func (a *Archive) List(ctx context.Context) ([]Entry, error) {
	infos, err := a.store.List(ctx, a.prefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if !strings.HasSuffix(info.Key, ".json") {
			continue
		}
		out = append(out, entryFromInfo(a.prefix, info))
	}
	return out, nil
}

// Latest returns the newest entry; ok is false when the archive is empty.
func (a *Archive) Latest(ctx context.Context) (Entry, bool, error) {
	entries, err := a.List(ctx)
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[len(entries)-1], true, nil
}

// Load reads and decodes the snapshot stored at key.
func (a *Archive) Load(ctx context.Context, key string) (domain.Snapshot, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	defer rc.Close()
	var snap domain.Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return domain.CloneSnapshot(snap), nil
}

// URL returns a download link for key when the backend supports one.
func (a *Archive) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return a.store.PresignURL(ctx, key, blob.SignedURLOptions{Expiry: expiry})
}

// Prune deletes all but the newest keep entries and returns the removed ones
// oldest first.
func (a *Archive) Prune(ctx context.Context, keep int) ([]Entry, error) {
	if keep < 1 {
		return nil, fmt.Errorf("prune: keep must be at least 1, got %d", keep)
	}
	entries, err := a.List(ctx)
	if err != nil || len(entries) <= keep {
		return nil, err
	}
	stale := entries[:len(entries)-keep]
	removed := make([]Entry, 0, len(stale))
	for _, e := range stale {
		if _, err := a.store.Delete(ctx, e.Key); err != nil {
			return removed, fmt.Errorf("prune %s: %w", e.Key, err)
		}
		removed = append(removed, e)
	}
	return removed, nil
}

func entryFromInfo(prefix string, info blob.Info) Entry {
	e := Entry{Key: info.Key, Size: info.Size, CreatedAt: info.LastModified}
	name := strings.TrimPrefix(info.Key, prefix)
	if i := strings.IndexByte(name, '-'); i > 0 {
		if ts, err := time.Parse(keyTimestamp, name[:i]); err == nil {
			e.CreatedAt = ts
		}
	}
	if v, ok := info.Metadata[metaLots]; ok {
		e.Lots, _ = strconv.Atoi(v)
	}
	if v, ok := info.Metadata[metaInit]; ok {
		e.Initialized, _ = strconv.ParseBool(v)
	}
	return e
}
