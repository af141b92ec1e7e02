package hash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// identity lets tests choose directory indexes directly
func identity(k uint64) uint64 {
	return k
}

func TestInitialState(t *testing.T) {
	tbl := NewTable[uint64, string](2, identity)
	assert.Equal(t, 1, tbl.GlobalDepth())
	assert.Equal(t, 2, tbl.NumBuckets())
	assert.Equal(t, 1, tbl.LocalDepth(0))
	assert.Equal(t, 1, tbl.LocalDepth(1))
}

func TestInsertAndFind(t *testing.T) {
	tbl := NewTable[uint64, string](4, identity)

	_, ok := tbl.Find(1)
	assert.False(t, ok)

	tbl.Insert(1, "one")
	v, ok := tbl.Find(1)
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	// upsert rebinds
	tbl.Insert(1, "uno")
	v, ok = tbl.Find(1)
	assert.True(t, ok)
	assert.Equal(t, "uno", v)
}

func TestRemove(t *testing.T) {
	tbl := NewTable[uint64, string](4, identity)
	tbl.Insert(7, "seven")

	assert.True(t, tbl.Remove(7))
	_, ok := tbl.Find(7)
	assert.False(t, ok)

	// removing an absent key reports false
	assert.False(t, tbl.Remove(7))

	// the directory never shrinks
	assert.Equal(t, 1, tbl.GlobalDepth())
}

func TestSplitGrowsDirectory(t *testing.T) {
	// bucket capacity 2. hashes 0b00 and 0b10 collide at depth 1, so the third
	// key into that bucket forces a split which doubles the directory
	tbl := NewTable[uint64, string](2, identity)
	tbl.Insert(0b00, "a")
	tbl.Insert(0b10, "b")
	tbl.Insert(0b100, "c")

	assert.Equal(t, 2, tbl.GlobalDepth())
	assert.Equal(t, 3, tbl.NumBuckets())
	for _, tt := range []struct {
		key      uint64
		expected string
	}{
		{0b00, "a"},
		{0b10, "b"},
		{0b100, "c"},
	} {
		v, ok := tbl.Find(tt.key)
		assert.True(t, ok)
		assert.Equal(t, tt.expected, v)
	}
}

func TestRepeatedCollisionsGrowDepth(t *testing.T) {
	// bucket capacity 1 forces a split on every collision. keys sharing all
	// low bits keep colliding until enough hash bits distinguish them
	tbl := NewTable[uint64, int](1, identity)
	keys := []uint64{0, 4, 8}
	for i, k := range keys {
		tbl.Insert(k, i)
	}

	assert.GreaterOrEqual(t, tbl.GlobalDepth(), 3)
	for i, k := range keys {
		v, ok := tbl.Find(k)
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestDepthInvariants(t *testing.T) {
	tbl := NewTable[uint64, int](2, identity)
	for i := uint64(0); i < 256; i++ {
		tbl.Insert(i, int(i))
	}

	// |buckets| <= 2^I and J[b] <= I for every bucket
	assert.LessOrEqual(t, tbl.NumBuckets(), 1<<tbl.GlobalDepth())
	for b := 0; b < tbl.NumBuckets(); b++ {
		assert.LessOrEqual(t, tbl.LocalDepth(b), tbl.GlobalDepth())
	}
	for i := uint64(0); i < 256; i++ {
		v, ok := tbl.Find(i)
		assert.True(t, ok, fmt.Sprintf("key %d", i))
		assert.Equal(t, int(i), v)
	}
}

func TestIdenticalHashesRespectDepthCap(t *testing.T) {
	// every key hashes to the same value, so no amount of splitting can
	// separate them. the bucket must absorb them instead of splitting forever
	same := func(k uint64) uint64 { return 5 }
	tbl := NewTable[uint64, int](1, same)
	for i := uint64(0); i < 8; i++ {
		tbl.Insert(i, int(i))
	}
	for i := uint64(0); i < 8; i++ {
		v, ok := tbl.Find(i)
		assert.True(t, ok)
		assert.Equal(t, int(i), v)
	}
	// futile splits never happen, so the directory stays put
	assert.Equal(t, 1, tbl.GlobalDepth())
	assert.Equal(t, 2, tbl.NumBuckets())
}
