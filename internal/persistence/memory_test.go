package persistence

import (
	"errors"
	"sync"
	"testing"
)

func TestMemoryPublishAssignsDenseIncreasing(t *testing.T) {
	m := NewMemory[string]()
	var prev Micros
	for i := 0; i < 100; i++ {
		pos, err := m.Publish("e")
		if err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
		if pos.Index != uint64(i) {
			t.Fatalf("index %d, want %d", pos.Index, i)
		}
		if pos.Us <= prev {
			t.Fatalf("us %d not greater than previous %d", pos.Us, prev)
		}
		prev = pos.Us
	}
	if got := m.Size(); got != 100 {
		t.Fatalf("size %d, want 100", got)
	}
	if head := m.CurrentHead(); head != prev {
		t.Fatalf("head %d, want %d", head, prev)
	}
}

func TestMemoryPublishAtRejectsStaleTimestamp(t *testing.T) {
	m := NewMemory[string]()
	if _, err := m.PublishAt("a", 200); err != nil {
		t.Fatalf("publish a: %v", err)
	}
	if _, err := m.PublishAt("b", 100); !errors.Is(err, ErrInconsistentTimestamp) {
		t.Fatalf("want ErrInconsistentTimestamp, got %v", err)
	}
	if _, err := m.PublishAt("b", 200); !errors.Is(err, ErrInconsistentTimestamp) {
		t.Fatalf("equal timestamp: want ErrInconsistentTimestamp, got %v", err)
	}
	if got := m.Size(); got != 1 {
		t.Fatalf("size %d after failed publishes, want 1", got)
	}
}

func TestMemoryHeadRules(t *testing.T) {
	m := NewMemory[string]()
	if _, err := m.PublishAt("a", 200); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := m.UpdateHeadAt(500); err != nil {
		t.Fatalf("update head: %v", err)
	}
	if _, err := m.PublishAt("b", 300); !errors.Is(err, ErrHeadAlreadyPast) {
		t.Fatalf("want ErrHeadAlreadyPast, got %v", err)
	}
	if err := m.UpdateHeadAt(400); !errors.Is(err, ErrHeadWouldRegress) {
		t.Fatalf("want ErrHeadWouldRegress, got %v", err)
	}
	// Equal head is a no-op, not a regression.
	if err := m.UpdateHeadAt(500); err != nil {
		t.Fatalf("equal head update: %v", err)
	}
	hl := m.HeadAndLast()
	if hl.Head != 500 || hl.Last == nil || hl.Last.Us != 200 || hl.Last.Index != 0 {
		t.Fatalf("unexpected snapshot: %+v", hl)
	}
}

func TestMemoryAutoTimestampRespectsHead(t *testing.T) {
	m := NewMemory[string]()
	far := Now() + 1_000_000_000
	if err := m.UpdateHeadAt(far); err != nil {
		t.Fatalf("update head: %v", err)
	}
	pos, err := m.Publish("a")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if pos.Us <= far {
		t.Fatalf("auto timestamp %d did not advance past head %d", pos.Us, far)
	}
}

func TestMemoryIterateBounds(t *testing.T) {
	m := NewMemory[string]()
	for _, e := range []string{"a", "b", "c"} {
		if _, err := m.Publish(e); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	it := m.Iterate(1, 3)
	defer it.Close()
	var got []string
	for it.Next() {
		got = append(got, it.Entry().Entry)
	}
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("iterate [1,3): %v", got)
	}
}

func TestMemoryIterateToleratesConcurrentAppends(t *testing.T) {
	m := NewMemory[int]()
	for i := 0; i < 10; i++ {
		if _, err := m.Publish(i); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 10; i < 200; i++ {
			if _, err := m.Publish(i); err != nil {
				return
			}
		}
	}()
	it := m.Iterate(0, 10)
	var count int
	for it.Next() {
		if it.Entry().Entry != count {
			t.Errorf("entry %d out of order: %v", count, it.Entry().Entry)
		}
		count++
	}
	_ = it.Close()
	wg.Wait()
	if count != 10 {
		t.Fatalf("iterated %d entries, want 10", count)
	}
}

func TestMemoryIndexRangeByTimestamp(t *testing.T) {
	m := NewMemory[string]()
	for _, us := range []Micros{100, 200, 300} {
		if _, err := m.PublishAt("e", us); err != nil {
			t.Fatalf("publish @%d: %v", us, err)
		}
	}
	cases := []struct {
		from, to      Micros
		first, second uint64
	}{
		{200, 0, 1, 3},
		{150, 250, 1, 2},
		{1, 99, 0, 0},
		{301, 0, 3, 3},
		{100, 300, 0, 3},
	}
	for _, c := range cases {
		first, second := m.IndexRangeByTimestamp(c.from, c.to)
		if first != c.first || second != c.second {
			t.Fatalf("range(%d,%d) = (%d,%d), want (%d,%d)", c.from, c.to, first, second, c.first, c.second)
		}
	}
}
