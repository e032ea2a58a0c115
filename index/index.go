// Package index defines the types shared between the query execution
// engine and the postings codec: the index source and decoder
// interfaces, matched-document reporting, per-term hit buffers and the
// per-document words space used by phrase matching.
package index

import (
	"github.com/andy-wagner/Trinity/util/bitset"
)

// ChunkRange locates a term's chunk inside the postings region.
type ChunkRange struct {
	Offset uint64
	Size   uint32
}

// TermCtx describes one term of an index source.
type TermCtx struct {
	// Documents is the number of documents the term appears in.
	Documents uint32
	// Chunk is the term's postings chunk.
	Chunk ChunkRange
}

// Document is the current document of a postings decoder.
type Document struct {
	ID   uint32
	Freq uint32
}

// Source resolves terms and opens postings decoders. Implementations
// must be safe for concurrent readers; the engine itself never writes
// through a Source.
type Source interface {
	// ResolveTerm returns the source's id for a term, 0 if unknown.
	ResolveTerm(term string) uint32

	// TermCtx returns the term context for a resolved term id.
	TermCtx(termID uint32) TermCtx

	// NewPostingsDecoder opens a decoder over the term's chunk.
	NewPostingsDecoder(tctx TermCtx) Decoder

	// MaxIndexedPosition is the highest token position the source
	// indexes; it bounds the doc-words space.
	MaxIndexedPosition() uint16
}

// Decoder streams one term's posting list.
type Decoder interface {
	// Begin positions the decoder at the first document.
	Begin()

	// Next advances to the next document; false means exhausted.
	Next() bool

	// Seek advances to the first document >= docID and returns true
	// iff it landed exactly on docID.
	Seek(docID uint32) bool

	// MaterializeHits decodes the current document's hits into th,
	// marking non-zero positions in dws when dws is not nil.
	MaterializeHits(termID uint16, dws *DocWordsSpace, th *TermHits)

	// Document returns the current document. After the stream is
	// exhausted its ID is MaxUint32.
	Document() Document

	// Err reports a decode failure. Once set, Next and Seek return
	// false; the error fails the whole query.
	Err() error
}

// Hit is one occurrence of a term in a document.
type Hit struct {
	Pos        uint16
	PayloadLen uint8
	Payload    uint64
}

// TermHits buffers the hits of one term for one document. DocSeq
// records the document generation the buffer was last populated at, so
// stale buffers are detected without clearing.
type TermHits struct {
	Hits   []Hit
	DocSeq uint16
}

// SetFreq resizes the buffer to hold n hits.
func (th *TermHits) SetFreq(n int) {
	if cap(th.Hits) < n {
		th.Hits = make([]Hit, n)
	} else {
		th.Hits = th.Hits[:n]
	}
}

// QueryTermInstance is one occurrence of a term in the original query.
type QueryTermInstance struct {
	// Index is the token's position within the original query.
	Index uint16
	// Rep is the repetition count for the same token.
	Rep uint8
	// Flags is passed through to scoring.
	Flags uint8
}

// QueryTermInstances collects all occurrences of one distinct term in
// the original, pre-optimization query.
type QueryTermInstances struct {
	TermID    uint16
	Token     string
	Instances []QueryTermInstance
}

// MatchedQueryTerm is one term that matched the current document.
type MatchedQueryTerm struct {
	Instances *QueryTermInstances
	Hits      *TermHits
}

// MatchedDocument is one document matched by a query, together with the
// terms that matched it.
type MatchedDocument struct {
	ID    uint32
	Terms []MatchedQueryTerm
}

// ConsiderResponse is the filter's verdict after each matched document.
type ConsiderResponse int

const (
	Continue ConsiderResponse = iota
	Abort
)

// MatchesFilter consumes matched documents. Returning Abort terminates
// the query cleanly.
type MatchesFilter interface {
	Consider(doc *MatchedDocument, dws *DocWordsSpace) ConsiderResponse
}

// MaskedDocumentsRegistry reports documents that must be skipped
// (deleted or superseded by a later segment).
type MaskedDocumentsRegistry interface {
	Test(docID uint32) bool
}

type maskedRegistry struct {
	deleted *bitset.SparseBitSet
}

// NewMaskedRegistry builds a registry over a set of deleted documents.
func NewMaskedRegistry(deleted *bitset.SparseBitSet) MaskedDocumentsRegistry {
	return &maskedRegistry{deleted: deleted}
}

func (r *maskedRegistry) Test(docID uint32) bool {
	return r.deleted.Contains(docID)
}
