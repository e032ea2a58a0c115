package postings

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy-wagner/Trinity/index"
	"github.com/andy-wagner/Trinity/util/vfs"
)

func writeTestSegment(t *testing.T) *SegmentWriter {
	w := NewSegmentWriter()
	w.Add(1, "apple", 1, nil)
	w.Add(1, "phone", 2, []byte{0xab})
	w.Add(2, "apple", 1, nil)
	w.Add(2, "banana", 2, nil)
	w.Add(3, "banana", 1, nil)
	w.Add(3, "phone", 2, nil)
	return w
}

func collectDocs(t *testing.T, src index.Source, term string) []uint32 {
	id := src.ResolveTerm(term)
	if id == 0 {
		return nil
	}
	dec := src.NewPostingsDecoder(src.TermCtx(id))
	dec.Begin()
	var out []uint32
	for {
		doc := dec.Document()
		if doc.ID == 0xffffffff {
			break
		}
		out = append(out, doc.ID)
		if !dec.Next() {
			break
		}
	}
	require.NoError(t, dec.Err())
	return out
}

func verifySegment(t *testing.T, s *Segment) {
	assert.Equal(t, 3, s.Meta.NumDocs)
	assert.Equal(t, uint16(2), s.MaxIndexedPosition())

	assert.Equal(t, []uint32{1, 2}, collectDocs(t, s, "apple"))
	assert.Equal(t, []uint32{2, 3}, collectDocs(t, s, "banana"))
	assert.Equal(t, []uint32{1, 3}, collectDocs(t, s, "phone"))
	assert.Empty(t, collectDocs(t, s, "pear"))
	assert.Equal(t, uint32(0), s.ResolveTerm("pear"))

	// payloads survive the round trip
	id := s.ResolveTerm("phone")
	tctx := s.TermCtx(id)
	assert.Equal(t, uint32(2), tctx.Documents)
	dec := s.NewPostingsDecoder(tctx)
	dec.Begin()
	var th index.TermHits
	dec.MaterializeHits(1, nil, &th)
	require.NoError(t, dec.Err())
	require.Len(t, th.Hits, 1)
	assert.Equal(t, uint16(2), th.Hits[0].Pos)
	assert.Equal(t, uint8(1), th.Hits[0].PayloadLen)
	assert.Equal(t, uint64(0xab), th.Hits[0].Payload)
}

func TestSegment_Memory(t *testing.T) {
	s, err := writeTestSegment(t).Segment()
	require.NoError(t, err)
	verifySegment(t, s)
}

func TestSegment_WriteAndOpen(t *testing.T) {
	fs := vfs.CreateMemDir()
	s, err := writeTestSegment(t).Write(fs)
	require.NoError(t, err)
	verifySegment(t, s)

	reopened, err := Open(fs)
	require.NoError(t, err)
	verifySegment(t, reopened)
}

func TestSegment_ChecksumMismatch(t *testing.T) {
	fs := vfs.CreateMemDir()
	_, err := writeTestSegment(t).Write(fs)
	require.NoError(t, err)

	// corrupt one byte of the postings region
	mapped, err := fs.MapFile(postingsFileName)
	require.NoError(t, err)
	data := append([]byte(nil), mapped.Data...)
	data[len(data)/2] ^= 0xff
	require.NoError(t, vfs.WriteFile(fs, postingsFileName, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}))

	_, err = Open(fs)
	assert.Error(t, err)
}
