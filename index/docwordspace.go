package index

import "math"

// DocWordsSpace tracks which (termID, position) pairs occurred in the
// current document. It is reset once per candidate document by bumping
// a generation counter; the backing array is only cleared when the
// counter wraps.
type DocWordsSpace struct {
	stride int // positions per term, maxPos+1
	marks  []uint16
	gen    uint16
}

// NewDocWordsSpace creates a words space for positions up to maxPos.
func NewDocWordsSpace(maxPos uint16) *DocWordsSpace {
	return &DocWordsSpace{stride: int(maxPos) + 1, gen: 1}
}

// Reset invalidates all marks for a new document.
func (d *DocWordsSpace) Reset() {
	if d.gen == math.MaxUint16 {
		for i := range d.marks {
			d.marks[i] = 0
		}
		d.gen = 1 // not 0: cleared slots must not read as current
		return
	}
	d.gen++
}

// Set marks (termID, pos) as present in the current document.
// Positions beyond the indexed maximum are ignored.
func (d *DocWordsSpace) Set(termID uint16, pos uint16) {
	if int(pos) >= d.stride {
		return
	}
	idx := int(termID)*d.stride + int(pos)
	if idx >= len(d.marks) {
		grown := make([]uint16, (int(termID)+8)*d.stride)
		copy(grown, d.marks)
		d.marks = grown
	}
	d.marks[idx] = d.gen
}

// Test returns true iff (termID, pos) was set since the last Reset.
func (d *DocWordsSpace) Test(termID uint16, pos uint16) bool {
	if int(pos) >= d.stride {
		return false
	}
	idx := int(termID)*d.stride + int(pos)
	if idx >= len(d.marks) {
		return false
	}
	return d.marks[idx] == d.gen
}
