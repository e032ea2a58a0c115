package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy-wagner/Trinity/postings"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"apple", "phone", "16gb"}, tokenize("Apple phone, 16GB!"))
	assert.Empty(t, tokenize("  ...  "))
}

func TestIndexDocuments(t *testing.T) {
	input := `{"id": 1, "text": "apple phone"}
{"id": 2, "text": "apple banana"}

{"id": 3, "text": "banana phone"}
`
	w := postings.NewSegmentWriter()
	n, err := indexDocuments(w, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	segment, err := w.Segment()
	require.NoError(t, err)
	assert.Equal(t, 3, segment.NumDocs())
	assert.Equal(t, 3, segment.NumTerms())
	assert.Equal(t, uint32(2), segment.TermCtx(segment.ResolveTerm("apple")).Documents)
}

func TestIndexDocuments_Invalid(t *testing.T) {
	w := postings.NewSegmentWriter()
	_, err := indexDocuments(w, strings.NewReader("{broken"))
	assert.Error(t, err)

	_, err = indexDocuments(w, strings.NewReader(`{"text": "no id"}`))
	assert.Error(t, err)
}
