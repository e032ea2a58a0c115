package postings

import (
	"encoding/json"
	"io"
	"log"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"go4.org/sort"

	"github.com/andy-wagner/Trinity/index"
	"github.com/andy-wagner/Trinity/util/bitset"
	"github.com/andy-wagner/Trinity/util/vfs"
)

// TermMeta locates one term inside a segment.
type TermMeta struct {
	Documents uint32 `json:"docs"`
	Offset    uint64 `json:"offset"`
	Size      uint32 `json:"size"`
}

// SegmentMeta is the persisted segment descriptor, stored as
// terms.json next to the data files.
type SegmentMeta struct {
	NumDocs     int                 `json:"ndocs"`
	MaxPosition uint16              `json:"maxpos"`
	Checksum    uint64              `json:"checksum"`
	Terms       map[string]TermMeta `json:"terms"`
}

// Segment is an immutable, fully written term index. It implements
// index.Source; any number of queries may read it concurrently.
type Segment struct {
	Meta  SegmentMeta
	proxy *AccessProxy

	termIDs  map[string]uint32 // token -> dense 1-based source term id
	termCtxs []index.TermCtx
}

var _ index.Source = (*Segment)(nil)

func newSegment(meta SegmentMeta, proxy *AccessProxy) *Segment {
	tokens := make([]string, 0, len(meta.Terms))
	for token := range meta.Terms {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	s := &Segment{
		Meta:     meta,
		proxy:    proxy,
		termIDs:  make(map[string]uint32, len(tokens)),
		termCtxs: make([]index.TermCtx, len(tokens)),
	}
	for i, token := range tokens {
		tm := meta.Terms[token]
		s.termIDs[token] = uint32(i + 1)
		s.termCtxs[i] = index.TermCtx{
			Documents: tm.Documents,
			Chunk:     index.ChunkRange{Offset: tm.Offset, Size: tm.Size},
		}
	}
	return s
}

// Open opens a previously written segment, mapping its data files.
func Open(fs vfs.FileSystem) (*Segment, error) {
	file, err := fs.OpenFile(termsFileName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open terms.json")
	}
	var meta SegmentMeta
	err = json.NewDecoder(file).Decode(&meta)
	file.Close()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse terms.json")
	}

	proxy, err := OpenAccessProxy(fs)
	if err != nil {
		return nil, err
	}

	if sum := xxhash.Sum64(proxy.idx); sum != meta.Checksum {
		proxy.Close()
		return nil, errors.Errorf("postings.data checksum mismatch: got %016x, want %016x", sum, meta.Checksum)
	}

	return newSegment(meta, proxy), nil
}

// Close unmaps the segment's data files.
func (s *Segment) Close() error {
	return s.proxy.Close()
}

func (s *Segment) ResolveTerm(term string) uint32 {
	return s.termIDs[term]
}

func (s *Segment) TermCtx(termID uint32) index.TermCtx {
	if termID == 0 || int(termID) > len(s.termCtxs) {
		return index.TermCtx{}
	}
	return s.termCtxs[termID-1]
}

func (s *Segment) NewPostingsDecoder(tctx index.TermCtx) index.Decoder {
	return s.proxy.NewDecoder(tctx)
}

func (s *Segment) MaxIndexedPosition() uint16 {
	return s.Meta.MaxPosition
}

// NumDocs returns the number of indexed documents.
func (s *Segment) NumDocs() int { return s.Meta.NumDocs }

// NumTerms returns the number of distinct terms.
func (s *Segment) NumTerms() int { return len(s.termCtxs) }

type hitEntry struct {
	docID   uint32
	pos     uint16
	payload []byte
}

// SegmentWriter accumulates (docID, term, position, payload) hits and
// encodes them into a segment. Positions are 1-based; position 0 is
// the placeholder the codec drops.
type SegmentWriter struct {
	postings map[string][]hitEntry
	docs     *bitset.SparseBitSet
	maxPos   uint16
}

func NewSegmentWriter() *SegmentWriter {
	return &SegmentWriter{
		postings: make(map[string][]hitEntry),
		docs:     bitset.NewSparse(0),
	}
}

// Add records one hit. The payload may be up to MaxPayloadSize bytes
// and is copied.
func (w *SegmentWriter) Add(docID uint32, token string, pos uint16, payload []byte) {
	if len(payload) > 0 {
		payload = append([]byte(nil), payload...)
	}
	w.postings[token] = append(w.postings[token], hitEntry{docID: docID, pos: pos, payload: payload})
	w.docs.Add(docID)
	if pos > w.maxPos {
		w.maxPos = pos
	}
}

func (w *SegmentWriter) encode(sess *IndexSession) (SegmentMeta, error) {
	meta := SegmentMeta{
		NumDocs:     w.docs.Len(),
		MaxPosition: w.maxPos,
		Terms:       make(map[string]TermMeta, len(w.postings)),
	}

	tokens := make([]string, 0, len(w.postings))
	for token := range w.postings {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	enc := sess.NewEncoder()
	for _, token := range tokens {
		entries := w.postings[token]
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].docID < entries[j].docID ||
				(entries[i].docID == entries[j].docID && entries[i].pos < entries[j].pos)
		})

		enc.BeginTerm()
		for i := 0; i < len(entries); {
			docID := entries[i].docID
			if err := enc.BeginDocument(docID); err != nil {
				return meta, err
			}
			for ; i < len(entries) && entries[i].docID == docID; i++ {
				if err := enc.NewHit(uint32(entries[i].pos), entries[i].payload); err != nil {
					return meta, err
				}
			}
			enc.EndDocument()
		}
		tctx, err := enc.EndTerm()
		if err != nil {
			return meta, err
		}
		meta.Terms[token] = TermMeta{
			Documents: tctx.Documents,
			Offset:    tctx.Chunk.Offset,
			Size:      tctx.Chunk.Size,
		}
	}

	meta.Checksum = xxhash.Sum64(sess.IndexData())
	return meta, nil
}

// Segment encodes the accumulated postings into an in-memory segment.
func (w *SegmentWriter) Segment() (*Segment, error) {
	sess := NewIndexSession(nil)
	meta, err := w.encode(sess)
	if err != nil {
		return nil, err
	}
	return newSegment(meta, NewAccessProxy(sess.IndexData(), sess.PositionsData())), nil
}

// Write encodes the accumulated postings and persists the segment
// atomically into fs, then opens it from there.
func (w *SegmentWriter) Write(fs vfs.FileSystem) (*Segment, error) {
	started := time.Now()

	sess := NewIndexSession(fs)
	meta, err := w.encode(sess)
	if err != nil {
		return nil, err
	}

	err = vfs.WriteFile(fs, postingsFileName, func(out io.Writer) error {
		_, err := out.Write(sess.IndexData())
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to write postings.data")
	}

	if err = sess.End(); err != nil {
		return nil, err
	}

	err = vfs.WriteFile(fs, termsFileName, func(out io.Writer) error {
		return json.NewEncoder(out).Encode(&meta)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to write terms.json")
	}

	log.Printf("wrote segment (docs=%v, terms=%v, checksum=0x%016x, duration=%s)",
		meta.NumDocs, len(meta.Terms), meta.Checksum, time.Since(started))

	return Open(fs)
}
