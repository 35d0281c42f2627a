package persistence

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/strom/internal/storage/pebble"
)

// Pebble is a Persister storing entries in a shared Pebble database, one
// stream per key prefix. The store's fsync policy decides durability of each
// publish.
//
// Keyspace (lexicographically sortable):
//   - stream/{name}/m           (meta: size | last_us | head)
//   - stream/{name}/e/{seq_be8} (entries)
//
// Entry values: us(8B BE) | payload | crc32c(us|payload).
type Pebble[E any] struct {
	mu    sync.Mutex
	db    *pebblestore.DB
	name  string
	codec Codec[E]

	size   uint64
	lastUs Micros
	head   Micros
}

var _ Persister[struct{}] = (*Pebble[struct{}])(nil)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// NewPebble opens the persister for one named stream, recovering size, last,
// and head from its meta record.
func NewPebble[E any](db *pebblestore.DB, name string, codec Codec[E]) (*Pebble[E], error) {
	p := &Pebble[E]{db: db, name: name, codec: codec}
	meta, err := db.Get(p.metaKey())
	if err == nil {
		if len(meta) < 24 {
			return nil, fmt.Errorf("%w: stream %q: short meta record", ErrCorruptJournal, name)
		}
		p.size = binary.BigEndian.Uint64(meta[0:8])
		p.lastUs = Micros(binary.BigEndian.Uint64(meta[8:16]))
		p.head = Micros(binary.BigEndian.Uint64(meta[16:24]))
	} else if err != pebblestore.ErrNotFound {
		return nil, err
	}
	return p, nil
}

func (p *Pebble[E]) metaKey() []byte {
	k := make([]byte, 0, len(p.name)+16)
	k = append(k, "stream/"...)
	k = append(k, p.name...)
	k = append(k, "/m"...)
	return k
}

func (p *Pebble[E]) entryKey(seq uint64) []byte {
	k := make([]byte, 0, len(p.name)+24)
	k = append(k, "stream/"...)
	k = append(k, p.name...)
	k = append(k, "/e/"...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(k, b[:]...)
}

func encodeEntryValue(us Micros, payload []byte) []byte {
	out := make([]byte, 0, 8+len(payload)+4)
	var usb [8]byte
	binary.BigEndian.PutUint64(usb[:], uint64(us))
	out = append(out, usb[:]...)
	out = append(out, payload...)
	crc := crc32.Update(0, castagnoli, out)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

func decodeEntryValue(b []byte) (Micros, []byte, bool) {
	if len(b) < 8+4 {
		return 0, nil, false
	}
	body := b[:len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Update(0, castagnoli, body) != expect {
		return 0, nil, false
	}
	us := Micros(binary.BigEndian.Uint64(body[:8]))
	return us, append([]byte(nil), body[8:]...), true
}

func (p *Pebble[E]) writeMeta(b *pebble.Batch, size uint64, lastUs, head Micros) error {
	var meta [24]byte
	binary.BigEndian.PutUint64(meta[0:8], size)
	binary.BigEndian.PutUint64(meta[8:16], uint64(lastUs))
	binary.BigEndian.PutUint64(meta[16:24], uint64(head))
	return b.Set(p.metaKey(), meta[:], nil)
}

// Mutex implements Persister.
func (p *Pebble[E]) Mutex() *sync.Mutex { return &p.mu }

// Publish implements Persister.
func (p *Pebble[E]) Publish(entry E) (IdxTs, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PublishLocked(entry)
}

// PublishLocked implements Persister.
func (p *Pebble[E]) PublishLocked(entry E) (IdxTs, error) {
	return p.PublishAtLocked(entry, autoPublishUs(p.lastLocked(), p.head))
}

// PublishAt implements Persister.
func (p *Pebble[E]) PublishAt(entry E, us Micros) (IdxTs, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PublishAtLocked(entry, us)
}

// PublishAtLocked implements Persister.
func (p *Pebble[E]) PublishAtLocked(entry E, us Micros) (IdxTs, error) {
	if last := p.lastLocked(); last != nil && us <= last.Us {
		return IdxTs{}, ErrInconsistentTimestamp
	}
	if us < p.head {
		return IdxTs{}, ErrHeadAlreadyPast
	}
	payload, err := p.codec.Encode(entry)
	if err != nil {
		return IdxTs{}, err
	}

	b := p.db.NewBatch()
	defer b.Close()
	seq := p.size
	if err := b.Set(p.entryKey(seq), encodeEntryValue(us, payload), nil); err != nil {
		return IdxTs{}, err
	}
	if err := p.writeMeta(b, seq+1, us, us); err != nil {
		return IdxTs{}, err
	}
	if err := p.db.CommitBatch(b); err != nil {
		return IdxTs{}, err
	}

	p.size = seq + 1
	p.lastUs = us
	p.head = us
	return IdxTs{Index: seq, Us: us}, nil
}

// UpdateHead implements Persister.
func (p *Pebble[E]) UpdateHead() (Micros, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.UpdateHeadLocked()
}

// UpdateHeadLocked implements Persister.
func (p *Pebble[E]) UpdateHeadLocked() (Micros, error) {
	us := autoHeadUs(p.head)
	if err := p.commitHead(us); err != nil {
		return 0, err
	}
	return us, nil
}

// UpdateHeadAt implements Persister.
func (p *Pebble[E]) UpdateHeadAt(us Micros) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.UpdateHeadAtLocked(us)
}

// UpdateHeadAtLocked implements Persister.
func (p *Pebble[E]) UpdateHeadAtLocked(us Micros) error {
	if us < p.head {
		return ErrHeadWouldRegress
	}
	return p.commitHead(us)
}

func (p *Pebble[E]) commitHead(us Micros) error {
	b := p.db.NewBatch()
	defer b.Close()
	if err := p.writeMeta(b, p.size, p.lastUs, us); err != nil {
		return err
	}
	if err := p.db.CommitBatch(b); err != nil {
		return err
	}
	p.head = us
	return nil
}

// Size implements Persister.
func (p *Pebble[E]) Size() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// SizeLocked implements Persister.
func (p *Pebble[E]) SizeLocked() uint64 { return p.size }

// HeadAndLast implements Persister.
func (p *Pebble[E]) HeadAndLast() HeadAndLast {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HeadAndLastLocked()
}

// HeadAndLastLocked implements Persister.
func (p *Pebble[E]) HeadAndLastLocked() HeadAndLast {
	return HeadAndLast{Head: p.head, Last: p.lastLocked()}
}

// CurrentHead implements Persister.
func (p *Pebble[E]) CurrentHead() Micros {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head
}

// CurrentHeadLocked implements Persister.
func (p *Pebble[E]) CurrentHeadLocked() Micros { return p.head }

// Iterate implements Persister.
func (p *Pebble[E]) Iterate(begin, end uint64) Iterator[E] {
	return &pebbleIterator[E]{p: p, next: begin, end: end}
}

// IndexRangeByTimestamp implements Persister. Both bounds are found by
// binary search over the (strictly increasing) per-entry timestamps using
// random access by sequence.
func (p *Pebble[E]) IndexRangeByTimestamp(from, to Micros) (uint64, uint64) {
	p.mu.Lock()
	size := p.size
	p.mu.Unlock()

	first := p.searchUs(size, func(us Micros) bool { return us >= from })
	second := size
	if to > 0 {
		second = p.searchUs(size, func(us Micros) bool { return us > to })
	}
	return first, second
}

func (p *Pebble[E]) searchUs(size uint64, pred func(Micros) bool) uint64 {
	lo, hi := uint64(0), size
	for lo < hi {
		mid := lo + (hi-lo)/2
		us, ok := p.entryUs(mid)
		if !ok || pred(us) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (p *Pebble[E]) entryUs(seq uint64) (Micros, bool) {
	val, err := p.db.Get(p.entryKey(seq))
	if err != nil || len(val) < 8 {
		return 0, false
	}
	return Micros(binary.BigEndian.Uint64(val[:8])), true
}

// Close implements Persister. The shared database is owned by the caller.
func (p *Pebble[E]) Close() error { return nil }

func (p *Pebble[E]) lastLocked() *IdxTs {
	if p.size == 0 {
		return nil
	}
	return &IdxTs{Index: p.size - 1, Us: p.lastUs}
}

type pebbleIterator[E any] struct {
	p    *Pebble[E]
	iter *pebble.Iterator
	next uint64
	end  uint64
	cur  IndexedEntry[E]
	err  error
}

func (it *pebbleIterator[E]) Next() bool {
	if it.err != nil || it.next >= it.end {
		return false
	}
	if it.iter == nil {
		iter, err := it.p.db.NewIter(&pebble.IterOptions{
			LowerBound: it.p.entryKey(it.next),
			UpperBound: it.p.entryKey(it.end),
		})
		if err != nil {
			it.err = err
			return false
		}
		it.iter = iter
		if !it.iter.First() {
			return false
		}
	} else if !it.iter.Next() {
		return false
	}
	key := it.iter.Key()
	seq := binary.BigEndian.Uint64(key[len(key)-8:])
	us, payload, ok := decodeEntryValue(it.iter.Value())
	if !ok {
		it.err = fmt.Errorf("%w: stream %q: bad checksum at %d", ErrCorruptJournal, it.p.name, seq)
		return false
	}
	entry, err := it.p.codec.Decode(payload)
	if err != nil {
		it.err = err
		return false
	}
	it.cur = IndexedEntry[E]{IdxTs: IdxTs{Index: seq, Us: us}, Entry: entry}
	it.next = seq + 1
	return true
}

func (it *pebbleIterator[E]) Entry() IndexedEntry[E] { return it.cur }

func (it *pebbleIterator[E]) Close() error {
	if it.iter != nil {
		closeErr := it.iter.Close()
		it.iter = nil
		if it.err == nil {
			it.err = closeErr
		}
	}
	return it.err
}
