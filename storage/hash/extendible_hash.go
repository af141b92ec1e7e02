/*
In-memory hash table using extendible hashing.

The buffer manager uses this as its page table: it has to map a page id to its
frame quickly, or report that the page id does not match any currently-buffered
page. The table is generic so tests (and other callers) can instantiate it with
plain keys.

Extendible hashing keeps a directory of 2^I slots (I is the global depth), each
pointing to a bucket. A bucket with local depth J is shared by the 2^(I-J)
directory slots which agree on its low J hash bits. When a bucket overflows,
only that bucket splits; when the overflowing bucket's local depth already
equals the global depth, the directory doubles first. Splits stay confined to
the overflowing chain, so there is no global rehash.
*/
package hash

import "sync"

// maxLocalDepth bounds directory growth
// when every key in an over-full bucket collides on maxLocalDepth low hash bits,
// further splitting cannot separate them, so the bucket absorbs the insert instead
const maxLocalDepth = 30

// HashFunc is a stable hash of K
// the directory index is the hash value's low I bits
type HashFunc[K comparable] func(K) uint64

// Table is an extendible hash table
// a single mutex serializes all operations. contention is expected to be low
// because the buffer manager serializes on its own latch
type Table[K comparable, V any] struct {
	mu sync.Mutex
	// hash is the stable hash of key
	hash HashFunc[K]
	// globalDepth is how many low hash bits index the directory
	globalDepth int
	// dir maps directory slot to bucket index. len(dir) == 2^globalDepth
	dir []int
	// buckets are append-only. splits add buckets, Remove never merges them
	buckets []*bucket[K, V]
	// bucketCapacity is how many entries a bucket holds before it splits
	bucketCapacity int
}

// bucket holds the entries whose low localDepth hash bits agree
type bucket[K comparable, V any] struct {
	localDepth int
	entries    map[K]V
}

// NewTable initializes the table with global depth 1: a two-slot directory
// pointing at two empty buckets of local depth 1
func NewTable[K comparable, V any](bucketCapacity int, hash HashFunc[K]) *Table[K, V] {
	if bucketCapacity < 1 {
		bucketCapacity = 1
	}
	return &Table[K, V]{
		hash:           hash,
		globalDepth:    1,
		dir:            []int{0, 1},
		buckets:        []*bucket[K, V]{newBucket[K, V](1), newBucket[K, V](1)},
		bucketCapacity: bucketCapacity,
	}
}

func newBucket[K comparable, V any](localDepth int) *bucket[K, V] {
	return &bucket[K, V]{
		localDepth: localDepth,
		entries:    make(map[K]V),
	}
}

// dirIndex returns the directory slot for the key under the current global depth
func (t *Table[K, V]) dirIndex(key K) int {
	return int(t.hash(key) & ((1 << t.globalDepth) - 1))
}

// Find returns the value currently bound to the key
func (t *Table[K, V]) Find(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.buckets[t.dir[t.dirIndex(key)]]
	v, ok := b.entries[key]
	return v, ok
}

// Insert upserts the binding. the target bucket splits until the key fits,
// doubling the directory when the bucket's local depth has caught up with the
// global depth
func (t *Table[K, V]) Insert(key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		bi := t.dir[t.dirIndex(key)]
		b := t.buckets[bi]
		if _, ok := b.entries[key]; ok {
			// upsert never needs a split
			b.entries[key] = value
			return
		}
		if len(b.entries) < t.bucketCapacity || !t.canSplit(b, key) {
			// either there is room, or no split can separate these hashes:
			// the bucket absorbs the entry beyond its nominal capacity
			b.entries[key] = value
			return
		}
		t.split(bi)
	}
}

// canSplit checks whether splitting the bucket can make progress for the key.
// when every resident hash agrees with the key's hash on all maxLocalDepth low
// bits, no reachable depth separates them and splitting would only double the
// directory forever
func (t *Table[K, V]) canSplit(b *bucket[K, V], key K) bool {
	if b.localDepth >= maxLocalDepth {
		return false
	}
	mask := uint64(1<<maxLocalDepth) - 1
	hk := t.hash(key) & mask
	for k := range b.entries {
		if t.hash(k)&mask != hk {
			return true
		}
	}
	return false
}

// Remove removes any binding for the key. the directory never shrinks
func (t *Table[K, V]) Remove(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.buckets[t.dir[t.dirIndex(key)]]
	if _, ok := b.entries[key]; !ok {
		return false
	}
	delete(b.entries, key)
	return true
}

// split splits the bucket at index bi
// after the split, bit localDepth-1 of the hash distinguishes the old bucket
// from its new sibling; every directory slot with that bit set is redirected
func (t *Table[K, V]) split(bi int) {
	b := t.buckets[bi]
	if b.localDepth == t.globalDepth {
		// the directory cannot distinguish a sibling yet, so double it:
		// slot i+2^I starts as a copy of slot i
		t.dir = append(t.dir, t.dir...)
		t.globalDepth++
	}

	b.localDepth++
	sibling := newBucket[K, V](b.localDepth)
	t.buckets = append(t.buckets, sibling)
	si := len(t.buckets) - 1

	// redirect the directory slots whose new distinguishing bit is set
	bit := 1 << (b.localDepth - 1)
	for i, target := range t.dir {
		if target == bi && i&bit != 0 {
			t.dir[i] = si
		}
	}

	// rehash the old bucket's entries between the pair
	for k, v := range b.entries {
		if t.dir[t.dirIndex(k)] == si {
			delete(b.entries, k)
			sibling.entries[k] = v
		}
	}
}

// GlobalDepth returns global depth of the table
func (t *Table[K, V]) GlobalDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalDepth
}

// LocalDepth returns local depth of the bucket
func (t *Table[K, V]) LocalDepth(bucketID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buckets[bucketID].localDepth
}

// NumBuckets returns current number of buckets in the table
func (t *Table[K, V]) NumBuckets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}
