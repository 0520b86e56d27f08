package service

import (
	"hash/fnv"
	"math"
	"sync"
)

// ExistenceFilter is a Bloom filter over SKUs known to the ledger. It lets
// the price path reject lookups for keys that were never taken in without
// touching the cache or the external sources. False positives fall through
// to the normal path; false negatives cannot occur.
type ExistenceFilter struct {
	mu   sync.RWMutex
	bits []uint64
	m    uint64
	k    int
}

func NewExistenceFilter(expectedItems int, falsePositiveRate float64) *ExistenceFilter {
	if expectedItems < 1 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	n := float64(expectedItems)
	m := uint64(math.Ceil(-n * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	if m < 64 {
		m = 64
	}
	k := int(math.Round(float64(m) / n * math.Ln2))
	if k < 1 {
		k = 1
	}

	return &ExistenceFilter{
		bits: make([]uint64, (m+63)/64),
		m:    m,
		k:    k,
	}
}

func (f *ExistenceFilter) Add(key string) {
	h1, h2 := hashPair(key)

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % f.m
		f.bits[pos/64] |= 1 << (pos % 64)
	}
}

func (f *ExistenceFilter) MightContain(key string) bool {
	h1, h2 := hashPair(key)

	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := 0; i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % f.m
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

func hashPair(key string) (uint64, uint64) {
	a := fnv.New64a()
	a.Write([]byte(key))
	h1 := a.Sum64()

	b := fnv.New64()
	b.Write([]byte(key))
	h2 := b.Sum64() | 1 // odd, so the double-hash stride cycles

	return h1, h2
}
