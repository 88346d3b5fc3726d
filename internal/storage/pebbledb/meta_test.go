package pebbledb

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/strata-db/strata/internal/storage"
)

var metaOwner = storage.Owner{Kind: storage.OwnerSystem, ID: 1}

func TestMetaSetGetRemove(t *testing.T) {
	m := testDB(t).Meta()

	k := key(metaOwner, "checkpoint")
	if _, ok, err := m.Get(k); ok || err != nil {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	if err := m.Set(k, []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, ok, err := m.Get(k)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(value) != "v1" {
		t.Errorf("expected v1, got %q", value)
	}

	if err := m.Set(k, []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if value, _, _ = m.Get(k); string(value) != "v2" {
		t.Errorf("expected overwrite to v2, got %q", value)
	}

	if err := m.Remove(k); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ = m.Get(k); ok {
		t.Error("expected key gone after remove")
	}

	// Removing an absent key is not an error.
	if err := m.Remove(k); err != nil {
		t.Errorf("remove absent: %v", err)
	}
}

func TestMetaSeparateFromRows(t *testing.T) {
	db := testDB(t)
	s, m := db.Rows(), db.Meta()

	// The same encoded key lives independently in both views.
	k := key(metaOwner, "shared")
	mustCommit(t, s, 1, storage.NewSetDelta(k, []byte("row")))
	if err := m.Set(k, []byte("meta")); err != nil {
		t.Fatalf("set: %v", err)
	}

	item, ok, err := s.Get(k, 1)
	if err != nil || !ok || string(item.Value) != "row" {
		t.Errorf("expected row value, got %+v ok=%v err=%v", item, ok, err)
	}
	value, ok, err := m.Get(k)
	if err != nil || !ok || string(value) != "meta" {
		t.Errorf("expected meta value, got %q ok=%v err=%v", value, ok, err)
	}

	if err := m.Remove(k); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := s.Get(k, 1); !ok {
		t.Error("expected row untouched by meta remove")
	}
}

func TestMetaRange(t *testing.T) {
	m := testDB(t).Meta()

	for i := 0; i < 5; i++ {
		k := key(metaOwner, fmt.Sprintf("k%d", i))
		if err := m.Set(k, []byte{byte('0' + i)}); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	it, err := m.Range(storage.FullRange(), 2)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	items := collect(t, it)
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	for i, item := range items {
		if item.Version != 0 || item.Tombstone {
			t.Errorf("item %d: expected unversioned live item, got %+v", i, item)
		}
		if string(item.Value) != string(byte('0'+i)) {
			t.Errorf("item %d: expected %q, got %q", i, byte('0'+i), item.Value)
		}
	}

	r := storage.NewKeyRange(key(metaOwner, "k1"), key(metaOwner, "k4"))
	it, err = m.Range(r, 0)
	if err != nil {
		t.Fatalf("bounded range: %v", err)
	}
	items = collect(t, it)
	if len(items) != 3 {
		t.Fatalf("expected 3 items in [k1, k4), got %d", len(items))
	}

	rev, err := m.RangeRev(r, 0)
	if err != nil {
		t.Fatalf("range rev: %v", err)
	}
	items = collect(t, rev)
	if len(items) != 3 {
		t.Fatalf("expected 3 reverse items, got %d", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i-1].Key.Compare(items[i].Key) <= 0 {
			t.Errorf("reverse keys out of order at %d", i)
		}
	}
}

func TestMetaIteratorIsolation(t *testing.T) {
	m := testDB(t).Meta()

	if err := m.Set(key(metaOwner, "a"), []byte("a")); err != nil {
		t.Fatalf("set: %v", err)
	}

	it, err := m.Range(storage.FullRange(), 0)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if err := m.Set(key(metaOwner, "b"), []byte("b")); err != nil {
		t.Fatalf("set during scan: %v", err)
	}

	items := collect(t, it)
	if len(items) != 1 {
		t.Fatalf("expected snapshot of 1 item, got %d", len(items))
	}

	it, err = m.Range(storage.FullRange(), 0)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if items = collect(t, it); len(items) != 2 {
		t.Fatalf("expected 2 items in a fresh scan, got %d", len(items))
	}
}

func TestMetaPersistsAcrossReopen(t *testing.T) {
	fs := vfs.NewMem()
	cfg := DefaultConfig("strata-test")
	cfg.FS = fs

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	k := key(metaOwner, "durable")
	if err := db.Meta().Set(k, []byte("kept")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	value, ok, err := db.Meta().Get(k)
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if string(value) != "kept" {
		t.Errorf("expected kept, got %q", value)
	}
}

func TestMetaClosed(t *testing.T) {
	m := testDB(t).Meta()
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("expected idempotent close, got %v", err)
	}

	if _, _, err := m.Get(key(metaOwner, "a")); !errors.Is(err, storage.ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed from Get, got %v", err)
	}
	if err := m.Set(key(metaOwner, "a"), nil); !errors.Is(err, storage.ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed from Set, got %v", err)
	}
	if err := m.Remove(key(metaOwner, "a")); !errors.Is(err, storage.ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed from Remove, got %v", err)
	}
	if _, err := m.Range(storage.FullRange(), 0); !errors.Is(err, storage.ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed from Range, got %v", err)
	}
}
