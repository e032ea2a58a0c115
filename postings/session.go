// Package postings implements the block-compressed postings codec: a
// per-term encoder and skip-listed decoder over two append-only
// regions, the postings region (document blocks) and the positions
// region (hit blocks with payloads).
package postings

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/andy-wagner/Trinity/index"
	"github.com/andy-wagner/Trinity/util/intcodec"
	"github.com/andy-wagner/Trinity/util/vfs"
)

const (
	// BlockSize is the number of documents (or hits) per compressed block.
	BlockSize = intcodec.BlockSize

	// SkiplistStep emits one skip-list entry every that many full
	// document blocks.
	SkiplistStep = 1

	// MaxPayloadSize bounds the opaque per-hit payload.
	MaxPayloadSize = 8

	termHeaderSize    = 14 // hitsDataOffset u32, sumHits u32, positionsChunkSize u32, skipListSize u16
	skiplistEntrySize = 22

	postingsFileName = "postings.data"
	hitsFileName     = "hits.data"
	termsFileName    = "terms.json"
)

var (
	ErrInvalidChunk = errors.New("postings: invalid term chunk")
)

// IndexSession owns the output buffers shared by all encoders of one
// indexing run. The positions region can be flushed to hits.data
// incrementally; the postings region stays in memory until the segment
// is written (term headers are back-patched in place).
type IndexSession struct {
	fs vfs.FileSystem

	indexOut         []byte
	positionsOut     []byte
	positionsFlushed uint64
	positionsFile    vfs.AtomicFile

	// FlushThreshold flushes buffered positions data to hits.data
	// once it grows beyond this many bytes. Zero disables
	// incremental flushing.
	FlushThreshold int
}

// NewIndexSession creates a session. fs may be nil for a purely
// in-memory run; End is then a no-op and PositionsData returns the
// whole positions region.
func NewIndexSession(fs vfs.FileSystem) *IndexSession {
	return &IndexSession{fs: fs}
}

// NewEncoder creates a per-term encoder writing into this session.
func (s *IndexSession) NewEncoder() *Encoder {
	return &Encoder{sess: s}
}

// IndexData returns the postings region written so far.
func (s *IndexSession) IndexData() []byte { return s.indexOut }

// PositionsData returns the in-memory positions region. It is only the
// complete region if nothing has been flushed to hits.data.
func (s *IndexSession) PositionsData() []byte { return s.positionsOut }

func (s *IndexSession) positionsOffset() uint64 {
	return s.positionsFlushed + uint64(len(s.positionsOut))
}

func (s *IndexSession) flushPositions() error {
	if s.positionsFile == nil {
		file, err := s.fs.CreateAtomicFile(hitsFileName)
		if err != nil {
			return errors.Wrap(err, "failed to create hits.data")
		}
		s.positionsFile = file
	}
	if _, err := s.positionsFile.Write(s.positionsOut); err != nil {
		return errors.Wrap(err, "failed to write hits.data")
	}
	s.positionsFlushed += uint64(len(s.positionsOut))
	s.positionsOut = s.positionsOut[:0]
	return nil
}

// End flushes the remaining positions data and commits hits.data.
func (s *IndexSession) End() error {
	if s.fs == nil {
		return nil
	}
	if err := s.flushPositions(); err != nil {
		return err
	}
	err := s.positionsFile.Commit()
	s.positionsFile.Close()
	s.positionsFile = nil
	if err != nil {
		return errors.Wrap(err, "failed to commit hits.data")
	}
	return nil
}

// AppendIndexChunk relocates a term chunk from another proxy into this
// session wholesale, copying its positions data and rewriting only the
// hits-data offset in the header. This is the fast path for merging a
// term that exists in a single participant.
func (s *IndexSession) AppendIndexChunk(src *AccessProxy, tctx index.TermCtx) (index.ChunkRange, error) {
	chunk, err := src.chunk(tctx)
	if err != nil {
		return index.ChunkRange{}, err
	}

	hitsDataOffset := binary.LittleEndian.Uint32(chunk[0:])
	sumHits := binary.LittleEndian.Uint32(chunk[4:])
	positionsChunkSize := binary.LittleEndian.Uint32(chunk[8:])
	skiplistSize := binary.LittleEndian.Uint16(chunk[12:])

	if uint64(hitsDataOffset)+uint64(positionsChunkSize) > uint64(len(src.hits)) {
		return index.ChunkRange{}, errors.Wrap(ErrInvalidChunk, "positions chunk out of range")
	}

	o := uint64(len(s.indexOut))
	newHitsDataOffset := s.positionsOffset()
	s.positionsOut = append(s.positionsOut, src.hits[hitsDataOffset:hitsDataOffset+positionsChunkSize]...)

	s.indexOut = appendUint32(s.indexOut, uint32(newHitsDataOffset))
	s.indexOut = appendUint32(s.indexOut, sumHits)
	s.indexOut = appendUint32(s.indexOut, positionsChunkSize)
	s.indexOut = appendUint16(s.indexOut, skiplistSize)
	s.indexOut = append(s.indexOut, chunk[termHeaderSize:]...)

	return index.ChunkRange{Offset: o, Size: tctx.Chunk.Size}, nil
}

func appendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendUint16(dst []byte, v uint16) []byte {
	return append(dst, byte(v), byte(v>>8))
}
