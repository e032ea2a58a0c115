package bitset

import "math/bits"

const (
	wordBits   = 64
	blockWords = 32 // 256 bytes
	blockBits  = blockWords * wordBits
)

// SparseBitSet is a set of uint32 elements optimized for sparse
// membership over a large id space.
type SparseBitSet struct {
	blocks map[uint32][]uint64
}

// NewSparse creates a new sparse bitset. The initial capacity can be
// specified using the size parameter, which can be zero if you want the
// set to grow dynamically.
func NewSparse(size int) *SparseBitSet {
	return &SparseBitSet{blocks: make(map[uint32][]uint64, size/blockBits)}
}

// Add adds x to the set.
func (s *SparseBitSet) Add(x uint32) {
	i := x / blockBits
	block, exists := s.blocks[i]
	if !exists {
		block = make([]uint64, blockWords)
		s.blocks[i] = block
	}
	block[(x%blockBits)/wordBits] |= uint64(1) << (x % wordBits)
}

// Remove removes x from the set.
func (s *SparseBitSet) Remove(x uint32) {
	block, exists := s.blocks[x/blockBits]
	if !exists {
		return
	}
	block[(x%blockBits)/wordBits] &^= uint64(1) << (x % wordBits)
}

// Contains returns true if the set contains x.
func (s *SparseBitSet) Contains(x uint32) bool {
	block, exists := s.blocks[x/blockBits]
	if !exists {
		return false
	}
	return block[(x%blockBits)/wordBits]&(uint64(1)<<(x%wordBits)) != 0
}

// Union updates the set to include all elements from s2.
func (s *SparseBitSet) Union(s2 *SparseBitSet) {
	for i, block2 := range s2.blocks {
		block, exists := s.blocks[i]
		if !exists {
			block = make([]uint64, blockWords)
			copy(block, block2)
			s.blocks[i] = block
			continue
		}
		for j, mask := range block2 {
			block[j] |= mask
		}
	}
}

// Len computes the number of elements in the set. It executes in time
// proportional to the number of blocks.
func (s *SparseBitSet) Len() int {
	var n int
	for _, block := range s.blocks {
		for _, w := range block {
			n += bits.OnesCount64(w)
		}
	}
	return n
}
