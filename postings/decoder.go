package postings

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/andy-wagner/Trinity/index"
	"github.com/andy-wagner/Trinity/util/intcodec"
)

// Decoder streams one term's posting list. Hits are decoded lazily:
// Next and Seek only account for the hits they pass over
// (skippedHits); the positions stream is not touched until
// MaterializeHits needs it or a block boundary forces a drain.
//
// A corrupt chunk makes the decoder fail sticky: Next and Seek return
// false, the current document becomes the end sentinel and Err reports
// the failure, which fails the whole query.
type Decoder struct {
	chunk    []byte // the full term chunk
	dataEnd  int    // end of the document blocks (skip list excluded)
	hitsBase []byte // the term's slice of the positions region

	p        []byte // unread document-block bytes
	hits     []byte // unread hit-block bytes
	payloads []byte // unread payload bytes of the current hits block

	totalDocuments uint32
	totalHits      uint32
	docsLeft       uint32
	hitsLeft       uint32
	skippedHits    uint32

	docDeltas          [BlockSize]uint32
	docFreqs           [BlockSize]uint32
	hitsPositionDeltas [BlockSize]uint32
	hitsPayloadLengths [BlockSize]uint32

	docsIndex    int
	bufferedDocs int
	hitsIndex    int
	bufferedHits int

	skiplist    []skipEntry
	skipListIdx int

	lastDocID uint32
	cur       index.Document
	exhausted bool
	err       error
}

var _ index.Decoder = (*Decoder)(nil)

func failedDecoder(err error) *Decoder {
	d := &Decoder{}
	d.fail(err)
	return d
}

func emptyDecoder() *Decoder {
	d := &Decoder{}
	d.finalize()
	return d
}

func (d *Decoder) fail(err error) bool {
	if d.err == nil {
		d.err = err
	}
	d.finalize()
	return false
}

func (d *Decoder) finalize() {
	d.exhausted = true
	d.cur = index.Document{ID: math.MaxUint32}
}

// Err reports a decode failure, nil if the stream is healthy.
func (d *Decoder) Err() error { return d.err }

// Document returns the current document.
func (d *Decoder) Document() index.Document { return d.cur }

// Begin positions the decoder at the first document.
func (d *Decoder) Begin() {
	if d.err != nil || d.exhausted {
		return
	}
	if len(d.p) == 0 {
		d.endOfBlocks()
		return
	}
	d.refillDocuments()
}

// endOfBlocks handles running out of document-block bytes: a clean end
// when every document was delivered, truncation otherwise.
func (d *Decoder) endOfBlocks() bool {
	if d.docsLeft > 0 {
		return d.fail(errors.Wrap(ErrInvalidChunk, "document blocks truncated"))
	}
	d.finalize()
	return false
}

func (d *Decoder) updateCur() {
	d.cur.ID = d.lastDocID + d.docDeltas[d.docsIndex]
	d.cur.Freq = d.docFreqs[d.docsIndex]
}

func (d *Decoder) refillDocuments() bool {
	if d.docsLeft >= BlockSize {
		var err error
		if d.p, err = intcodec.DecodeBlock(d.p, d.docDeltas[:]); err != nil {
			return d.fail(errors.Wrap(err, "document deltas"))
		}
		if d.p, err = intcodec.DecodeBlock(d.p, d.docFreqs[:]); err != nil {
			return d.fail(errors.Wrap(err, "document freqs"))
		}
		d.bufferedDocs = BlockSize
		d.docsLeft -= BlockSize
	} else {
		n := int(d.docsLeft)
		if n == 0 {
			return d.fail(errors.Wrap(ErrInvalidChunk, "trailing bytes after the last document"))
		}
		for i := 0; i < n; i++ {
			v, m := intcodec.Uvarint32(d.p)
			if m <= 0 {
				return d.fail(errors.Wrap(ErrInvalidChunk, "trailing document block"))
			}
			d.p = d.p[m:]
			d.docDeltas[i] = v >> 1
			if v&1 != 0 {
				d.docFreqs[i] = 1
			} else {
				f, m := intcodec.Uvarint32(d.p)
				if m <= 0 {
					return d.fail(errors.Wrap(ErrInvalidChunk, "trailing document block"))
				}
				d.p = d.p[m:]
				d.docFreqs[i] = f
			}
		}
		d.bufferedDocs = n
		d.docsLeft = 0
	}
	d.docsIndex = 0
	d.updateCur()
	return true
}

func (d *Decoder) refillHits() bool {
	if d.hitsLeft >= BlockSize {
		var err error
		if d.hits, err = intcodec.DecodeBlock(d.hits, d.hitsPositionDeltas[:]); err != nil {
			return d.fail(errors.Wrap(err, "hit position deltas"))
		}
		if d.hits, err = intcodec.DecodeBlock(d.hits, d.hitsPayloadLengths[:]); err != nil {
			return d.fail(errors.Wrap(err, "hit payload lengths"))
		}
		payloadsLen, m := intcodec.Uvarint32(d.hits)
		if m <= 0 || int(payloadsLen) > len(d.hits)-m {
			return d.fail(errors.Wrap(ErrInvalidChunk, "hit payloads length"))
		}
		d.hits = d.hits[m:]
		d.payloads = d.hits[:payloadsLen]
		d.hits = d.hits[payloadsLen:]
		d.bufferedHits = BlockSize
		d.hitsLeft -= BlockSize
	} else {
		n := int(d.hitsLeft)
		var payloadLen uint32
		total := 0
		for i := 0; i < n; i++ {
			v, m := intcodec.Uvarint32(d.hits)
			if m <= 0 {
				return d.fail(errors.Wrap(ErrInvalidChunk, "trailing hit block"))
			}
			d.hits = d.hits[m:]
			if v&1 != 0 {
				if len(d.hits) == 0 {
					return d.fail(errors.Wrap(ErrInvalidChunk, "trailing hit block"))
				}
				payloadLen = uint32(d.hits[0])
				d.hits = d.hits[1:]
			}
			d.hitsPositionDeltas[i] = v >> 1
			d.hitsPayloadLengths[i] = payloadLen
			total += int(payloadLen)
		}
		if total > len(d.hits) {
			return d.fail(errors.Wrap(ErrInvalidChunk, "trailing hit payloads"))
		}
		d.payloads = d.hits[:total]
		d.hits = d.hits[total:]
		d.bufferedHits = n
		d.hitsLeft = 0
	}
	d.hitsIndex = 0
	return true
}

// skipHits drains n hits that Next or Seek passed over without
// materializing.
func (d *Decoder) skipHits(n uint32) bool {
	for rem := n; rem > 0; {
		if d.bufferedHits > 0 && uint32(d.bufferedHits-d.hitsIndex) == rem {
			// The remainder consumes the buffered block exactly;
			// the next refill re-derives the payload cursor.
			d.skippedHits -= rem
			d.hitsIndex = 0
			d.bufferedHits = 0
			return true
		}
		if d.hitsIndex == d.bufferedHits {
			if d.hitsLeft == 0 {
				return d.fail(errors.Wrap(ErrInvalidChunk, "more hits referenced than encoded"))
			}
			if !d.refillHits() {
				return false
			}
		}
		step := uint32(d.bufferedHits - d.hitsIndex)
		if rem < step {
			step = rem
		}
		var sum uint32
		for i := uint32(0); i < step; i++ {
			sum += d.hitsPayloadLengths[d.hitsIndex]
			d.hitsIndex++
		}
		if int(sum) > len(d.payloads) {
			return d.fail(errors.Wrap(ErrInvalidChunk, "hit payloads overflow"))
		}
		d.payloads = d.payloads[sum:]
		d.skippedHits -= step
		rem -= step
	}
	return true
}

func (d *Decoder) decodeNextBlock() bool {
	if d.skippedHits > 0 && !d.skipHits(d.skippedHits) {
		return false
	}
	return d.refillDocuments()
}

// Next advances to the next document; false means the stream is
// exhausted (or failed, see Err).
func (d *Decoder) Next() bool {
	if d.err != nil || d.exhausted {
		return false
	}
	if d.bufferedDocs == 0 { // not yet begun
		d.Begin()
		return !d.exhausted
	}

	d.skippedHits += d.docFreqs[d.docsIndex]
	d.lastDocID += d.docDeltas[d.docsIndex]
	d.docsIndex++

	if d.docsIndex == d.bufferedDocs {
		if len(d.p) == 0 {
			return d.endOfBlocks()
		}
		return d.decodeNextBlock()
	}

	d.updateCur()
	return true
}

// skiplistSearch finds the last usable skip-list entry with
// lastDocID < target, -1 if there is none ahead of the cursor.
func (d *Decoder) skiplistSearch(target uint32) int {
	lo := d.skipListIdx
	n := len(d.skiplist) - lo
	for h := n / 2; h > 0; h = n / 2 {
		if d.skiplist[lo+h].lastDocID < target {
			lo += h
		}
		n -= h
	}
	if target > d.skiplist[lo].lastDocID {
		return lo
	}
	return -1
}

func (d *Decoder) skipTo(i int) bool {
	r := d.skiplist[i]
	d.skipListIdx = i + 1

	if int(r.indexOffset) > d.dataEnd || r.lastHitsBlockOffset > uint32(len(d.hitsBase)) {
		return d.fail(errors.Wrap(ErrInvalidChunk, "skip-list entry out of range"))
	}

	d.p = d.chunk[r.indexOffset:d.dataEnd]
	d.hits = d.hitsBase[r.lastHitsBlockOffset:]
	d.payloads = nil
	d.lastDocID = r.lastDocID
	d.docsLeft = d.totalDocuments - r.totalDocumentsSoFar
	d.hitsLeft = d.totalHits - r.totalHitsSoFar
	d.skippedHits = 0
	d.bufferedHits = 0
	d.hitsIndex = 0

	if !d.refillDocuments() {
		return false
	}
	if !d.refillHits() {
		return false
	}
	d.skippedHits = uint32(r.curHitsBlockHits)
	if d.skippedHits > 0 && !d.skipHits(d.skippedHits) {
		return false
	}
	return true
}

// Seek advances to the first document >= target. It returns true iff
// it landed exactly on target.
func (d *Decoder) Seek(target uint32) bool {
	for {
		if d.err != nil || d.exhausted {
			return false
		}

		if d.docsIndex == d.bufferedDocs {
			if len(d.p) == 0 {
				return d.endOfBlocks()
			}
			if d.skipListIdx != len(d.skiplist) {
				if i := d.skiplistSearch(target); i >= 0 {
					if !d.skipTo(i) {
						return false
					}
					continue
				}
			}
			if !d.decodeNextBlock() {
				return false
			}
			continue
		}

		if d.cur.ID >= target {
			return d.cur.ID == target
		}

		d.skippedHits += d.docFreqs[d.docsIndex]
		d.lastDocID += d.docDeltas[d.docsIndex]
		d.docsIndex++
		if d.docsIndex < d.bufferedDocs {
			d.updateCur()
		}
	}
}

// MaterializeHits decodes the current document's hits into th,
// cumulatively summing position deltas, and marks every non-zero
// position in dws (when given). Afterwards the document's freq slot is
// zeroed so a later Next does not count those hits again.
func (d *Decoder) MaterializeHits(termID uint16, dws *index.DocWordsSpace, th *index.TermHits) {
	if d.err != nil || d.exhausted {
		th.SetFreq(0)
		return
	}

	freq := d.docFreqs[d.docsIndex]
	if d.skippedHits > 0 && !d.skipHits(d.skippedHits) {
		th.SetFreq(0)
		return
	}

	th.SetFreq(int(freq))
	out := th.Hits[:0]

	var pos uint32
	for rem := freq; rem > 0; {
		if d.hitsIndex == d.bufferedHits {
			if d.hitsLeft == 0 {
				d.fail(errors.Wrap(ErrInvalidChunk, "more hits referenced than encoded"))
				th.SetFreq(0)
				return
			}
			if !d.refillHits() {
				th.SetFreq(0)
				return
			}
		}
		n := uint32(d.bufferedHits - d.hitsIndex)
		if rem < n {
			n = rem
		}
		for i := uint32(0); i < n; i++ {
			pos += d.hitsPositionDeltas[d.hitsIndex]
			pl := d.hitsPayloadLengths[d.hitsIndex]
			var payload uint64
			if pl > 0 {
				if int(pl) > len(d.payloads) {
					d.fail(errors.Wrap(ErrInvalidChunk, "hit payloads overflow"))
					th.SetFreq(0)
					return
				}
				for j := uint32(0); j < pl; j++ {
					payload |= uint64(d.payloads[j]) << (8 * j)
				}
				d.payloads = d.payloads[pl:]
			}
			out = append(out, index.Hit{Pos: uint16(pos), PayloadLen: uint8(pl), Payload: payload})
			if pos != 0 && dws != nil {
				dws.Set(termID, uint16(pos))
			}
			d.hitsIndex++
		}
		rem -= n
	}

	th.Hits = out
	d.docFreqs[d.docsIndex] = 0
	d.cur.Freq = 0
}

func parseSkiplist(data []byte) []skipEntry {
	entries := make([]skipEntry, len(data)/skiplistEntrySize)
	for i := range entries {
		p := data[i*skiplistEntrySize:]
		entries[i] = skipEntry{
			indexOffset:         binary.LittleEndian.Uint32(p[0:]),
			lastDocID:           binary.LittleEndian.Uint32(p[4:]),
			lastHitsBlockOffset: binary.LittleEndian.Uint32(p[8:]),
			totalDocumentsSoFar: binary.LittleEndian.Uint32(p[12:]),
			totalHitsSoFar:      binary.LittleEndian.Uint32(p[16:]),
			curHitsBlockHits:    binary.LittleEndian.Uint16(p[20:]),
		}
	}
	return entries
}
