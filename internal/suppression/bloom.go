package suppression

import (
	"crypto/md5"
	"encoding/binary"
	"math"
	"strings"
)

// emailHash is the 16-byte MD5 of a normalized (lowercased, trimmed) email
// address. Fixed-size arrays avoid string-header overhead when caches hold
// millions of addresses.
type emailHash [16]byte

func hashEmail(email string) emailHash {
	normalized := strings.ToLower(strings.TrimSpace(email))
	return md5.Sum([]byte(normalized))
}

// bloomFilter is a probabilistic membership test over suppressed addresses.
// False positives fall through to the backing store; false negatives never
// happen, so no suppressed address is ever missed.
type bloomFilter struct {
	bits      []uint64
	size      uint64
	hashCount uint
	count     uint64
}

// newBloomFilter sizes the filter for the expected element count at the
// given false positive rate (m = -n·ln(p)/ln(2)², k = (m/n)·ln(2)).
func newBloomFilter(expected uint64, fpRate float64) *bloomFilter {
	if expected == 0 {
		expected = 1000
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.001
	}

	n := float64(expected)
	m := uint64(-n * math.Log(fpRate) / (math.Ln2 * math.Ln2))
	if m < 64 {
		m = 64
	}
	m = ((m + 63) / 64) * 64

	k := uint((float64(m) / n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}

	return &bloomFilter{
		bits:      make([]uint64, m/64),
		size:      m,
		hashCount: k,
	}
}

func (bf *bloomFilter) add(h emailHash) {
	for i := uint(0); i < bf.hashCount; i++ {
		pos := bf.hash(h, i) % bf.size
		bf.bits[pos/64] |= 1 << (pos % 64)
	}
	bf.count++
}

// mayContain returns false only when the hash is definitely not in the set.
func (bf *bloomFilter) mayContain(h emailHash) bool {
	for i := uint(0); i < bf.hashCount; i++ {
		pos := bf.hash(h, i) % bf.size
		if bf.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// hash derives the i-th hash via double hashing over the two 8-byte halves
// of the MD5: h_i(x) = h1(x) + i·h2(x).
func (bf *bloomFilter) hash(h emailHash, i uint) uint64 {
	h1 := binary.LittleEndian.Uint64(h[:8])
	h2 := binary.LittleEndian.Uint64(h[8:])
	return h1 + uint64(i)*h2
}
