package postings

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/andy-wagner/Trinity/index"
	"github.com/andy-wagner/Trinity/util/intcodec"
)

type skipEntry struct {
	// indexOffset is the block's start relative to the term chunk.
	indexOffset uint32
	// lastDocID is the last document id before the block.
	lastDocID uint32
	// lastHitsBlockOffset is the start of the current hits block,
	// relative to the term's positions chunk.
	lastHitsBlockOffset uint32
	totalDocumentsSoFar uint32
	totalHitsSoFar      uint32
	// curHitsBlockHits is how many hits of the current hits block
	// belong to documents at or before lastDocID, so a reader
	// jumping here can skip them.
	curHitsBlockHits uint16
}

// Encoder writes one term's posting list at a time into its session.
// Call BeginTerm, then for each document (in increasing id order)
// BeginDocument, NewHit for each hit (non-decreasing positions) and
// EndDocument, and finally EndTerm.
type Encoder struct {
	sess *IndexSession

	lastDocID    uint32
	lastPosition uint32

	buffered    int // documents in the rolling arrays
	pendingHits int // hits in the rolling arrays

	sumHits       uint32
	termDocuments uint32

	termIndexOffset     int
	termPositionsOffset uint64

	lastHitsBlockOffset    uint32
	lastHitsBlockTotalHits uint32

	skiplistCountdown int
	skiplist          []skipEntry
	curBlock          skipEntry

	docDeltas       [BlockSize]uint32
	docFreqs        [BlockSize]uint32
	hitPosDeltas    [BlockSize]uint32
	hitPayloadSizes [BlockSize]uint32
	payloadsBuf     []byte
}

// BeginTerm starts a new term and reserves its header slot, which
// EndTerm back-patches.
func (e *Encoder) BeginTerm() {
	s := e.sess

	e.lastDocID = 0
	e.lastPosition = 0
	e.buffered = 0
	e.pendingHits = 0
	e.sumHits = 0
	e.termDocuments = 0
	e.termIndexOffset = len(s.indexOut)
	e.termPositionsOffset = s.positionsOffset()
	e.lastHitsBlockOffset = 0
	e.lastHitsBlockTotalHits = 0
	e.skiplistCountdown = SkiplistStep
	e.skiplist = e.skiplist[:0]
	e.payloadsBuf = e.payloadsBuf[:0]

	s.indexOut = appendUint32(s.indexOut, uint32(e.termPositionsOffset))
	s.indexOut = appendUint32(s.indexOut, 0) // sumHits
	s.indexOut = appendUint32(s.indexOut, 0) // positionsChunkSize
	s.indexOut = appendUint16(s.indexOut, 0) // skipListSize
}

func (e *Encoder) outputBlock() {
	s := e.sess

	e.skiplistCountdown--
	if e.skiplistCountdown == 0 {
		if len(e.skiplist) < math.MaxUint16 {
			e.skiplist = append(e.skiplist, e.curBlock)
		}
		e.skiplistCountdown = SkiplistStep
	}

	s.indexOut = intcodec.EncodeBlock(s.indexOut, e.docDeltas[:])
	s.indexOut = intcodec.EncodeBlock(s.indexOut, e.docFreqs[:])
	e.buffered = 0
}

// BeginDocument starts a new document; ids must strictly increase.
func (e *Encoder) BeginDocument(docID uint32) error {
	if docID <= e.lastDocID {
		return errors.Errorf("postings: document ids must increase, got %d after %d", docID, e.lastDocID)
	}

	if e.buffered == BlockSize {
		e.outputBlock()
	}
	if e.buffered == 0 {
		e.curBlock = skipEntry{
			indexOffset:         uint32(len(e.sess.indexOut) - e.termIndexOffset),
			lastDocID:           e.lastDocID,
			totalDocumentsSoFar: e.termDocuments,
			lastHitsBlockOffset: e.lastHitsBlockOffset,
			totalHitsSoFar:      e.lastHitsBlockTotalHits,
			curHitsBlockHits:    uint16(e.pendingHits),
		}
	}

	e.docDeltas[e.buffered] = docID - e.lastDocID
	e.docFreqs[e.buffered] = 0
	e.termDocuments++
	e.lastDocID = docID
	e.lastPosition = 0
	return nil
}

// NewHit records one hit of the current document. The (0, empty) pair
// is a placeholder and is dropped.
func (e *Encoder) NewHit(pos uint32, payload []byte) error {
	if pos == 0 && len(payload) == 0 {
		return nil
	}
	if pos < e.lastPosition {
		return errors.Errorf("postings: positions must not decrease, got %d after %d", pos, e.lastPosition)
	}
	if len(payload) > MaxPayloadSize {
		return errors.Errorf("postings: payload of %d bytes exceeds the %d byte limit", len(payload), MaxPayloadSize)
	}

	e.docFreqs[e.buffered]++
	e.hitPosDeltas[e.pendingHits] = pos - e.lastPosition
	e.hitPayloadSizes[e.pendingHits] = uint32(len(payload))
	e.lastPosition = pos
	e.payloadsBuf = append(e.payloadsBuf, payload...)

	e.pendingHits++
	if e.pendingHits == BlockSize {
		e.outputHitsBlock()
	}
	return nil
}

func (e *Encoder) outputHitsBlock() {
	s := e.sess

	e.sumHits += uint32(e.pendingHits)
	s.positionsOut = intcodec.EncodeBlock(s.positionsOut, e.hitPosDeltas[:])
	s.positionsOut = intcodec.EncodeBlock(s.positionsOut, e.hitPayloadSizes[:])
	s.positionsOut = intcodec.AppendUvarint32(s.positionsOut, uint32(len(e.payloadsBuf)))
	s.positionsOut = append(s.positionsOut, e.payloadsBuf...)
	e.payloadsBuf = e.payloadsBuf[:0]

	e.lastHitsBlockTotalHits = e.sumHits
	e.lastHitsBlockOffset = uint32(s.positionsOffset() - e.termPositionsOffset)
	e.pendingHits = 0
}

// EndDocument finishes the current document.
func (e *Encoder) EndDocument() {
	e.buffered++
}

// EndTerm flushes the remaining documents and hits using the trailing
// layouts, back-patches the term header and appends the skip list. It
// returns the term context locating the finished chunk.
func (e *Encoder) EndTerm() (index.TermCtx, error) {
	s := e.sess

	e.sumHits += uint32(e.pendingHits)

	if e.buffered == BlockSize {
		e.outputBlock()
	} else {
		for i := 0; i < e.buffered; i++ {
			delta, freq := e.docDeltas[i], e.docFreqs[i]
			if freq == 1 {
				s.indexOut = intcodec.AppendUvarint32(s.indexOut, delta<<1|1)
			} else {
				s.indexOut = intcodec.AppendUvarint32(s.indexOut, delta<<1)
				s.indexOut = intcodec.AppendUvarint32(s.indexOut, freq)
			}
		}
	}

	binary.LittleEndian.PutUint32(s.indexOut[e.termIndexOffset+4:], e.sumHits)

	if e.pendingHits > 0 {
		var lastPayloadLen uint32
		for i := 0; i < e.pendingHits; i++ {
			posDelta, payloadLen := e.hitPosDeltas[i], e.hitPayloadSizes[i]
			if payloadLen != lastPayloadLen {
				lastPayloadLen = payloadLen
				s.positionsOut = intcodec.AppendUvarint32(s.positionsOut, posDelta<<1|1)
				s.positionsOut = append(s.positionsOut, byte(payloadLen))
			} else {
				s.positionsOut = intcodec.AppendUvarint32(s.positionsOut, posDelta<<1)
			}
		}
		s.positionsOut = append(s.positionsOut, e.payloadsBuf...)
		e.payloadsBuf = e.payloadsBuf[:0]
		e.pendingHits = 0
	}

	binary.LittleEndian.PutUint32(s.indexOut[e.termIndexOffset+8:], uint32(s.positionsOffset()-e.termPositionsOffset))
	binary.LittleEndian.PutUint16(s.indexOut[e.termIndexOffset+12:], uint16(len(e.skiplist)))

	for _, it := range e.skiplist {
		s.indexOut = appendUint32(s.indexOut, it.indexOffset)
		s.indexOut = appendUint32(s.indexOut, it.lastDocID)
		s.indexOut = appendUint32(s.indexOut, it.lastHitsBlockOffset)
		s.indexOut = appendUint32(s.indexOut, it.totalDocumentsSoFar)
		s.indexOut = appendUint32(s.indexOut, it.totalHitsSoFar)
		s.indexOut = appendUint16(s.indexOut, it.curHitsBlockHits)
	}
	e.skiplist = e.skiplist[:0]

	tctx := index.TermCtx{
		Documents: e.termDocuments,
		Chunk: index.ChunkRange{
			Offset: uint64(e.termIndexOffset),
			Size:   uint32(len(s.indexOut) - e.termIndexOffset),
		},
	}

	if s.fs != nil && s.FlushThreshold > 0 && len(s.positionsOut) > s.FlushThreshold {
		if err := s.flushPositions(); err != nil {
			return tctx, err
		}
	}
	return tctx, nil
}
