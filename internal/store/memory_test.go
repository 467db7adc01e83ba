package store

import (
	"context"
	"testing"

	"github.com/fleetkit/napi/internal/domain"
)

func TestMemory_GetNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "b", "k")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemory_CommitPutThenGet(t *testing.T) {
	m := NewMemory()
	batch := domain.Batch{{Op: domain.OpPut, Bucket: "b", Key: "k", Value: map[string]string{"a": "1"}}}
	if err := m.Commit(context.Background(), batch); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	rec, err := m.Get(context.Background(), "b", "k")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if rec.Version == "" {
		t.Fatalf("expected non-empty version")
	}
}

func TestMemory_UniqueConflict(t *testing.T) {
	m := NewMemory()
	batch := domain.Batch{{Op: domain.OpPut, Bucket: "b", Key: "k", Value: 1, Unique: true}}
	if err := m.Commit(context.Background(), batch); err != nil {
		t.Fatalf("unexpected error on first commit: %v", err)
	}
	err := m.Commit(context.Background(), batch)
	if !IsUniqueConflictOn(err, "b", "k") {
		t.Fatalf("expected unique conflict, got %v", err)
	}
}

func TestMemory_VersionConflict(t *testing.T) {
	m := NewMemory()
	_ = m.Commit(context.Background(), domain.Batch{{Op: domain.OpPut, Bucket: "b", Key: "k", Value: 1, Unique: true}})
	err := m.Commit(context.Background(), domain.Batch{{Op: domain.OpPut, Bucket: "b", Key: "k", Value: 2, ExpectVersion: "stale"}})
	if !IsVersionConflictOn(err, "b", "k") {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestMemory_CommitAllOrNothing(t *testing.T) {
	m := NewMemory()
	_ = m.Commit(context.Background(), domain.Batch{{Op: domain.OpPut, Bucket: "b", Key: "exists", Value: 1, Unique: true}})

	batch := domain.Batch{
		{Op: domain.OpPut, Bucket: "b", Key: "fresh", Value: 1, Unique: true},
		{Op: domain.OpPut, Bucket: "b", Key: "exists", Value: 2, Unique: true}, // conflicts
	}
	if err := m.Commit(context.Background(), batch); err == nil {
		t.Fatalf("expected batch to fail atomically")
	}
	if _, err := m.Get(context.Background(), "b", "fresh"); !IsNotFound(err) {
		t.Fatalf("expected 'fresh' to not have been applied, got err=%v", err)
	}
}

func TestMemory_List(t *testing.T) {
	m := NewMemory()
	_ = m.Commit(context.Background(), domain.Batch{
		{Op: domain.OpPut, Bucket: "b", Key: "a1", Value: 1, Unique: true},
		{Op: domain.OpPut, Bucket: "b", Key: "a2", Value: 2, Unique: true},
		{Op: domain.OpPut, Bucket: "b", Key: "z1", Value: 3, Unique: true},
	})
	recs, err := m.List(context.Background(), "b", ListFilter{Prefix: "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
}

func TestMemory_DeleteRequiresVersionMatch(t *testing.T) {
	m := NewMemory()
	_ = m.Commit(context.Background(), domain.Batch{{Op: domain.OpPut, Bucket: "b", Key: "k", Value: 1, Unique: true}})
	rec, _ := m.Get(context.Background(), "b", "k")

	err := m.Commit(context.Background(), domain.Batch{{Op: domain.OpDelete, Bucket: "b", Key: "k", ExpectVersion: "wrong"}})
	if !IsVersionConflictOn(err, "b", "k") {
		t.Fatalf("expected version conflict on stale delete, got %v", err)
	}

	if err := m.Commit(context.Background(), domain.Batch{{Op: domain.OpDelete, Bucket: "b", Key: "k", ExpectVersion: rec.Version}}); err != nil {
		t.Fatalf("unexpected error on correct delete: %v", err)
	}
	if _, err := m.Get(context.Background(), "b", "k"); !IsNotFound(err) {
		t.Fatalf("expected record gone after delete")
	}
}
