package postings

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/andy-wagner/Trinity/index"
	"github.com/andy-wagner/Trinity/util/vfs"
)

// AccessProxy owns the mapped postings and hits regions of one
// segment. Decoders borrow slices of the regions and must not outlive
// the proxy.
type AccessProxy struct {
	idx    []byte
	hits   []byte
	mapped []*vfs.MappedFile
}

// NewAccessProxy wraps in-memory postings and hits regions.
func NewAccessProxy(indexData, hitsData []byte) *AccessProxy {
	return &AccessProxy{idx: indexData, hits: hitsData}
}

// OpenAccessProxy maps a segment's postings.data and hits.data. A
// missing hits.data is not an error: the segment then simply has no
// positions.
func OpenAccessProxy(fs vfs.FileSystem) (*AccessProxy, error) {
	idx, err := fs.MapFile(postingsFileName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to map postings.data")
	}

	proxy := &AccessProxy{idx: idx.Data, mapped: []*vfs.MappedFile{idx}}

	hits, err := fs.MapFile(hitsFileName)
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			proxy.Close()
			return nil, errors.Wrap(err, "failed to map hits.data")
		}
	} else {
		proxy.hits = hits.Data
		proxy.mapped = append(proxy.mapped, hits)
	}

	return proxy, nil
}

// Close unmaps the regions. All decoders over them must be gone.
func (a *AccessProxy) Close() error {
	var first error
	for _, m := range a.mapped {
		if err := m.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.mapped = nil
	return first
}

func (a *AccessProxy) chunk(tctx index.TermCtx) ([]byte, error) {
	off, size := tctx.Chunk.Offset, uint64(tctx.Chunk.Size)
	if off+size > uint64(len(a.idx)) {
		return nil, errors.Wrap(ErrInvalidChunk, "chunk out of range")
	}
	chunk := a.idx[off : off+size]
	if len(chunk) < termHeaderSize {
		return nil, errors.Wrap(ErrInvalidChunk, "chunk smaller than its header")
	}
	return chunk, nil
}

// NewDecoder opens a decoder over one term chunk. An empty term
// context yields an exhausted decoder; a malformed one yields a failed
// decoder whose error surfaces through Err.
func (a *AccessProxy) NewDecoder(tctx index.TermCtx) *Decoder {
	if tctx.Documents == 0 && tctx.Chunk.Size == 0 {
		return emptyDecoder()
	}

	chunk, err := a.chunk(tctx)
	if err != nil {
		return failedDecoder(err)
	}

	hitsDataOffset := binary.LittleEndian.Uint32(chunk[0:])
	totalHits := binary.LittleEndian.Uint32(chunk[4:])
	positionsChunkSize := binary.LittleEndian.Uint32(chunk[8:])
	skiplistSize := int(binary.LittleEndian.Uint16(chunk[12:]))

	dataEnd := len(chunk) - skiplistSize*skiplistEntrySize
	if dataEnd < termHeaderSize {
		return failedDecoder(errors.Wrap(ErrInvalidChunk, "skip list larger than the chunk"))
	}
	if uint64(hitsDataOffset)+uint64(positionsChunkSize) > uint64(len(a.hits)) {
		return failedDecoder(errors.Wrap(ErrInvalidChunk, "positions chunk out of range"))
	}

	hitsBase := a.hits[hitsDataOffset : hitsDataOffset+positionsChunkSize]

	d := &Decoder{
		chunk:          chunk,
		dataEnd:        dataEnd,
		hitsBase:       hitsBase,
		p:              chunk[termHeaderSize:dataEnd],
		hits:           hitsBase,
		totalDocuments: tctx.Documents,
		totalHits:      totalHits,
		docsLeft:       tctx.Documents,
		hitsLeft:       totalHits,
	}
	if skiplistSize > 0 {
		d.skiplist = parseSkiplist(chunk[dataEnd:])
	}
	return d
}
