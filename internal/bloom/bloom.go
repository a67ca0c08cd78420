// Package bloom implements the per-shard negative-lookup filter described
// in spec §4.7: a probabilistic set of entity identifiers known to exist,
// consulted through shardengine.Engine.MightContain to answer "definitely
// absent" for identifiers never written to the shard. False positives are tolerated by
// construction; false negatives must never occur, which is why Add always
// sets every one of the k bits before MightExist is asked to trust them.
package bloom

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/dreamware/tripledb/internal/errs"
)

// Filter is a per-shard Bloom filter over entity identifiers.
type Filter struct {
	bits       []uint64
	mBits      uint64
	kHashes    uint64
	count      uint64
	capacity   uint64
	fpRate     float64
}

// New derives (mBits, kHashes) from (capacity, targetFalsePositiveRate) using
// the standard optimal-parameters formulas and returns an empty Filter.
func New(capacity uint64, targetFalsePositiveRate float64) *Filter {
	if capacity == 0 {
		capacity = 1
	}
	if targetFalsePositiveRate <= 0 || targetFalsePositiveRate >= 1 {
		targetFalsePositiveRate = 0.01
	}

	mBits := optimalBits(capacity, targetFalsePositiveRate)
	kHashes := optimalHashes(mBits, capacity)

	words := (mBits + 63) / 64
	return &Filter{
		bits:     make([]uint64, words),
		mBits:    mBits,
		kHashes:  kHashes,
		capacity: capacity,
		fpRate:   targetFalsePositiveRate,
	}
}

func optimalBits(n uint64, p float64) uint64 {
	m := -1 * float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	if m < 1 {
		m = 1
	}
	return uint64(math.Ceil(m))
}

func optimalHashes(m, n uint64) uint64 {
	k := (float64(m) / float64(n)) * math.Ln2
	if k < 1 {
		k = 1
	}
	return uint64(math.Round(k))
}

// Add marks id as present. It always sets all k bits, so a subsequent
// MightExist(id) can never observe a false negative.
func (f *Filter) Add(id string) {
	h1, h2 := doubleHash(id)
	for i := uint64(0); i < f.kHashes; i++ {
		bit := f.indexFor(h1, h2, i)
		f.bits[bit/64] |= 1 << (bit % 64)
	}
	f.count++
}

// MightExist reports whether id may be present. false is a certain answer
// ("definitely absent"); true may be a false positive.
func (f *Filter) MightExist(id string) bool {
	h1, h2 := doubleHash(id)
	for i := uint64(0); i < f.kHashes; i++ {
		bit := f.indexFor(h1, h2, i)
		if f.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

func (f *Filter) indexFor(h1, h2 uint64, i uint64) uint64 {
	// Kirsch-Mitzenmacher double hashing: simulate k independent hash
	// functions from two, avoiding k separate hash computations per
	// lookup.
	return (h1 + i*h2) % f.mBits
}

func doubleHash(id string) (uint64, uint64) {
	h1 := xxhash.Sum64String(id)
	h2 := xxhash.Sum64String(id + "\x00bloom-salt")
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}

// Reset clears the filter back to empty, keeping its (mBits, kHashes,
// capacity, fpRate) parameters. The shard engine does not call it: flush
// adds the new chunk's subjects to the existing filter.
func (f *Filter) Reset() {
	for i := range f.bits {
		f.bits[i] = 0
	}
	f.count = 0
}

// EstimatedCount returns the number of Add calls observed since the last
// Reset — an upper bound on distinct elements, not an exact cardinality.
func (f *Filter) EstimatedCount() uint64 { return f.count }

// Capacity returns the configured element capacity the filter's (mBits,
// kHashes) parameters were derived from.
func (f *Filter) Capacity() uint64 { return f.capacity }

// Snapshot serializes the filter's bit array and parameters for
// persistence (the shard engine stores it as one row of its sqlite
// engine_state table).
func (f *Filter) Snapshot() []byte {
	out := make([]byte, 8*4+8*len(f.bits))
	binary.LittleEndian.PutUint64(out[0:], f.mBits)
	binary.LittleEndian.PutUint64(out[8:], f.kHashes)
	binary.LittleEndian.PutUint64(out[16:], f.capacity)
	binary.LittleEndian.PutUint64(out[24:], f.count)
	for i, w := range f.bits {
		binary.LittleEndian.PutUint64(out[32+i*8:], w)
	}
	return out
}

// Load reconstructs a Filter from bytes produced by Snapshot.
func Load(data []byte) (*Filter, error) {
	if len(data) < 32 || (len(data)-32)%8 != 0 {
		return nil, errs.New(errs.Internal, "corrupted bloom filter snapshot")
	}
	f := &Filter{
		mBits:    binary.LittleEndian.Uint64(data[0:]),
		kHashes:  binary.LittleEndian.Uint64(data[8:]),
		capacity: binary.LittleEndian.Uint64(data[16:]),
		count:    binary.LittleEndian.Uint64(data[24:]),
	}
	words := (len(data) - 32) / 8
	f.bits = make([]uint64, words)
	for i := range f.bits {
		f.bits[i] = binary.LittleEndian.Uint64(data[32+i*8:])
	}
	return f, nil
}
