package store

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fleetkit/napi/internal/domain"
)

// Memory is an in-process Store used by tests and by the in-memory-only
// deployment mode. It guards all buckets with a single mutex; commit
// atomicity is achieved by validating every item before mutating any of
// them, mirroring the all-or-nothing contract real backends provide via
// a single SQL transaction.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]map[string]*Record
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]map[string]*Record)}
}

func (m *Memory) bucket(name string) map[string]*Record {
	b, ok := m.buckets[name]
	if !ok {
		b = make(map[string]*Record)
		m.buckets[name] = b
	}
	return b
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, bucket, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.bucket(bucket)[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Commit implements Store. It validates every item's expected version
// against current state before applying any mutation, so a conflict on
// item N leaves items 0..N-1 untouched.
func (m *Memory) Commit(ctx context.Context, batch domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range batch {
		b := m.bucket(item.Bucket)
		existing, exists := b[item.Key]
		switch item.Op {
		case domain.OpPut:
			if item.Unique {
				if exists {
					return &ConflictError{Kind: KindUniqueConflict, Bucket: item.Bucket, Key: item.Key}
				}
				continue
			}
			if item.ExpectVersion == "" {
				if exists {
					return &ConflictError{Kind: KindVersionConflict, Bucket: item.Bucket, Key: item.Key}
				}
				continue
			}
			if !exists || existing.Version != item.ExpectVersion {
				return &ConflictError{Kind: KindVersionConflict, Bucket: item.Bucket, Key: item.Key}
			}
		case domain.OpDelete:
			if !exists || (item.ExpectVersion != "" && existing.Version != item.ExpectVersion) {
				return &ConflictError{Kind: KindVersionConflict, Bucket: item.Bucket, Key: item.Key}
			}
		}
	}

	for _, item := range batch {
		b := m.bucket(item.Bucket)
		switch item.Op {
		case domain.OpPut:
			raw, err := json.Marshal(item.Value)
			if err != nil {
				return &ConflictError{Kind: KindFatal, Bucket: item.Bucket, Key: item.Key, Err: err}
			}
			b[item.Key] = &Record{Value: raw, Version: newVersion()}
		case domain.OpDelete:
			delete(b, item.Key)
		}
	}
	return nil
}

// List implements Store.
func (m *Memory) List(ctx context.Context, bucket string, filter ListFilter) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bucket(bucket)
	keys := make([]string, 0, len(b))
	for k := range b {
		if filter.Prefix != "" && !strings.HasPrefix(k, filter.Prefix) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*Record, 0, len(keys))
	for _, k := range keys {
		cp := *b[k]
		out = append(out, &cp)
	}
	return out, nil
}

func newVersion() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("%x", buf)
}
