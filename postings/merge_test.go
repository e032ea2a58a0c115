package postings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy-wagner/Trinity/index"
	"github.com/andy-wagner/Trinity/util/bitset"
)

func encodeList(t *testing.T, docs []testDoc) (*AccessProxy, index.TermCtx) {
	sess := NewIndexSession(nil)
	enc := sess.NewEncoder()
	enc.BeginTerm()
	for _, doc := range docs {
		require.NoError(t, enc.BeginDocument(doc.id))
		for _, h := range doc.hits {
			require.NoError(t, enc.NewHit(uint32(h.pos), h.payload))
		}
		enc.EndDocument()
	}
	tctx, err := enc.EndTerm()
	require.NoError(t, err)
	return NewAccessProxy(sess.IndexData(), sess.PositionsData()), tctx
}

func decodeList(t *testing.T, proxy *AccessProxy, tctx index.TermCtx) []testDoc {
	dec := proxy.NewDecoder(tctx)
	dec.Begin()
	var out []testDoc
	var th index.TermHits
	for !dec.exhausted {
		doc := testDoc{id: dec.Document().ID}
		dec.MaterializeHits(0, nil, &th)
		require.NoError(t, dec.Err())
		for _, h := range th.Hits {
			var payload []byte
			for i := uint8(0); i < h.PayloadLen; i++ {
				payload = append(payload, byte(h.Payload>>(8*i)))
			}
			doc.hits = append(doc.hits, testHit{pos: h.Pos, payload: payload})
		}
		out = append(out, doc)
		dec.Next()
	}
	require.NoError(t, dec.Err())
	return out
}

func TestMergeTerm(t *testing.T) {
	a := []testDoc{
		{id: 1, hits: []testHit{{pos: 1, payload: nil}, {pos: 4, payload: []byte{1, 2}}}},
		{id: 5, hits: []testHit{{pos: 2, payload: nil}}},
	}
	b := []testDoc{
		{id: 3, hits: []testHit{{pos: 7, payload: []byte{9}}}},
		{id: 5, hits: []testHit{{pos: 9, payload: nil}}}, // stale duplicate of a's doc 5
		{id: 8, hits: []testHit{{pos: 1, payload: nil}}},
	}

	proxyA, tctxA := encodeList(t, a)
	proxyB, tctxB := encodeList(t, b)

	sess := NewIndexSession(nil)
	enc := sess.NewEncoder()
	enc.BeginTerm()
	err := MergeTerm([]MergeParticipant{
		{Proxy: proxyA, TermCtx: tctxA},
		{Proxy: proxyB, TermCtx: tctxB},
	}, enc)
	require.NoError(t, err)
	tctx, err := enc.EndTerm()
	require.NoError(t, err)

	merged := decodeList(t, NewAccessProxy(sess.IndexData(), sess.PositionsData()), tctx)
	expected := []testDoc{a[0], b[0], a[1], b[2]}
	assert.Equal(t, expected, merged)
}

func TestMergeTerm_Masked(t *testing.T) {
	a := []testDoc{
		{id: 1, hits: []testHit{{pos: 1}}},
		{id: 2, hits: []testHit{{pos: 1}}},
		{id: 3, hits: []testHit{{pos: 1}}},
	}
	proxyA, tctxA := encodeList(t, a)

	deleted := bitset.NewSparse(0)
	deleted.Add(2)

	sess := NewIndexSession(nil)
	enc := sess.NewEncoder()
	enc.BeginTerm()
	err := MergeTerm([]MergeParticipant{
		{Proxy: proxyA, TermCtx: tctxA, Masked: index.NewMaskedRegistry(deleted)},
	}, enc)
	require.NoError(t, err)
	tctx, err := enc.EndTerm()
	require.NoError(t, err)

	merged := decodeList(t, NewAccessProxy(sess.IndexData(), sess.PositionsData()), tctx)
	require.Len(t, merged, 2)
	assert.Equal(t, uint32(1), merged[0].id)
	assert.Equal(t, uint32(3), merged[1].id)
}

func TestMergeTerm_RoundTripLarge(t *testing.T) {
	docs, proxy, tctx := buildTermList(t, 600, 11)

	sess := NewIndexSession(nil)
	enc := sess.NewEncoder()
	enc.BeginTerm()
	require.NoError(t, MergeTerm([]MergeParticipant{{Proxy: proxy, TermCtx: tctx}}, enc))
	mergedCtx, err := enc.EndTerm()
	require.NoError(t, err)
	require.Equal(t, uint32(len(docs)), mergedCtx.Documents)

	merged := decodeList(t, NewAccessProxy(sess.IndexData(), sess.PositionsData()), mergedCtx)
	require.Len(t, merged, len(docs))
	for i := range docs {
		assert.Equal(t, docs[i].id, merged[i].id, "document %d", i)
		assert.Len(t, merged[i].hits, len(docs[i].hits), "document %d", i)
	}
}

func TestAppendIndexChunk(t *testing.T) {
	docs, proxy, tctx := buildTermList(t, 400, 12)

	sess := NewIndexSession(nil)
	// shift the destination regions so relocation is visible
	sess.indexOut = append(sess.indexOut, 0xee, 0xee, 0xee)
	sess.positionsOut = append(sess.positionsOut, 0xdd)

	chunk, err := sess.AppendIndexChunk(proxy, tctx)
	require.NoError(t, err)
	assert.Equal(t, tctx.Chunk.Size, chunk.Size)

	relocated := index.TermCtx{Documents: tctx.Documents, Chunk: chunk}
	merged := decodeList(t, NewAccessProxy(sess.IndexData(), sess.PositionsData()), relocated)
	require.Len(t, merged, len(docs))
	for i := range docs {
		assert.Equal(t, docs[i].id, merged[i].id, "document %d", i)
	}
}
