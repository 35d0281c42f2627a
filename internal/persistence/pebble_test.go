package persistence

import (
	"errors"
	"testing"

	pebblestore "github.com/rzbill/strom/internal/storage/pebble"
)

func openTestDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	return db
}

func TestPebblePublishAndIterate(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	p, err := NewPebble[string](db, "orders", JSONCodec[string]{})
	if err != nil {
		t.Fatalf("open persister: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, e := range want {
		pos, err := p.PublishAt(e, Micros(100*(i+1)))
		if err != nil {
			t.Fatalf("publish %q: %v", e, err)
		}
		if pos.Index != uint64(i) {
			t.Fatalf("index %d, want %d", pos.Index, i)
		}
	}
	it := p.Iterate(0, 3)
	var got []string
	for it.Next() {
		got = append(got, it.Entry().Entry)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("iterator: %v", err)
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("iterated %v, want %v", got, want)
	}
}

func TestPebbleRecoversAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	p, err := NewPebble[string](db, "orders", JSONCodec[string]{})
	if err != nil {
		t.Fatalf("open persister: %v", err)
	}
	if _, err := p.PublishAt("a", 100); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := p.PublishAt("b", 200); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.UpdateHeadAt(500); err != nil {
		t.Fatalf("update head: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	db2 := openTestDB(t, dir)
	t.Cleanup(func() { _ = db2.Close() })
	p2, err := NewPebble[string](db2, "orders", JSONCodec[string]{})
	if err != nil {
		t.Fatalf("reopen persister: %v", err)
	}
	if got := p2.Size(); got != 2 {
		t.Fatalf("size %d after reopen, want 2", got)
	}
	if head := p2.CurrentHead(); head != 500 {
		t.Fatalf("head %d after reopen, want 500", head)
	}
	hl := p2.HeadAndLast()
	if hl.Last == nil || hl.Last.Index != 1 || hl.Last.Us != 200 {
		t.Fatalf("unexpected last after reopen: %+v", hl.Last)
	}
	pos, err := p2.Publish("c")
	if err != nil {
		t.Fatalf("publish after reopen: %v", err)
	}
	if pos.Index != 2 || pos.Us <= 500 {
		t.Fatalf("post-reopen publish got %+v", pos)
	}
}

func TestPebbleStreamsAreIsolatedByName(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	a, err := NewPebble[string](db, "a", JSONCodec[string]{})
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	b, err := NewPebble[string](db, "b", JSONCodec[string]{})
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	if _, err := a.PublishAt("only-a", 100); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := b.Size(); got != 0 {
		t.Fatalf("stream b sees %d entries, want 0", got)
	}
	it := b.Iterate(0, 1)
	if it.Next() {
		t.Fatalf("stream b iterated an entry: %+v", it.Entry())
	}
	_ = it.Close()
}

func TestPebbleTimestampRules(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	p, err := NewPebble[string](db, "s", JSONCodec[string]{})
	if err != nil {
		t.Fatalf("open persister: %v", err)
	}
	if _, err := p.PublishAt("a", 200); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := p.PublishAt("b", 200); !errors.Is(err, ErrInconsistentTimestamp) {
		t.Fatalf("want ErrInconsistentTimestamp, got %v", err)
	}
	if err := p.UpdateHeadAt(100); !errors.Is(err, ErrHeadWouldRegress) {
		t.Fatalf("want ErrHeadWouldRegress, got %v", err)
	}
	if got := p.Size(); got != 1 {
		t.Fatalf("size %d, want 1", got)
	}
}

func TestPebbleIndexRangeByTimestamp(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	p, err := NewPebble[string](db, "s", JSONCodec[string]{})
	if err != nil {
		t.Fatalf("open persister: %v", err)
	}
	for _, us := range []Micros{100, 200, 300} {
		if _, err := p.PublishAt("e", us); err != nil {
			t.Fatalf("publish @%d: %v", us, err)
		}
	}
	first, second := p.IndexRangeByTimestamp(200, 0)
	if first != 1 || second != 3 {
		t.Fatalf("range(200,0) = (%d,%d), want (1,3)", first, second)
	}
	first, second = p.IndexRangeByTimestamp(150, 250)
	if first != 1 || second != 2 {
		t.Fatalf("range(150,250) = (%d,%d), want (1,2)", first, second)
	}
}
