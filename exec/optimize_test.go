package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy-wagner/Trinity/postings"
	"github.com/andy-wagner/Trinity/query"
)

func TestReorder_LeafFirst(t *testing.T) {
	// (a OR b) AND c  =>  c AND (a OR b): the leaf short-circuits
	n, err := query.Parse("(a OR b) AND c")
	require.NoError(t, err)
	reorderRoot(n)
	assert.Equal(t, "(c AND (a OR b))", n.String())
}

func TestReorder_PushNotDown(t *testing.T) {
	// ((pizza AND (sf OR toppings)) NOT onions)
	// => ((pizza NOT onions) AND (sf OR toppings))
	n, err := query.Parse("(pizza AND (sf OR toppings)) NOT onions")
	require.NoError(t, err)
	reorderRoot(n)
	assert.Equal(t, "((pizza NOT onions) AND (sf OR toppings))", n.String())
}

func TestOptimize_CheaperSideFirst(t *testing.T) {
	w := postings.NewSegmentWriter()
	for id := uint32(1); id <= 100; id++ {
		w.Add(id, "common", 1, nil)
	}
	w.Add(50, "rare", 2, nil)
	src, err := w.Segment()
	require.NoError(t, err)

	rc := newRuntimeCtx(src)
	n, err := query.Parse("common AND rare")
	require.NoError(t, err)
	n = optimize(n, rc)
	require.NotNil(t, n)
	assert.Equal(t, "(rare AND common)", n.String())
}

func TestOptimize_UnknownTermFolds(t *testing.T) {
	rc := newRuntimeCtx(testSource(t))

	n, err := query.Parse("apple AND pear")
	require.NoError(t, err)
	n = optimize(n, rc)
	require.NotNil(t, n)
	assert.Equal(t, query.TypeConstFalse, n.Type)

	n, err = query.Parse("apple OR pear")
	require.NoError(t, err)
	n = optimize(n, rc)
	require.NotNil(t, n)
	assert.Equal(t, "apple", n.String())

	n, err = query.Parse("pear OR quince")
	require.NoError(t, err)
	n = optimize(n, rc)
	if n != nil {
		assert.Equal(t, query.TypeConstFalse, n.Type)
	}
}

func TestOptimize_PhraseWithUnknownTerm(t *testing.T) {
	rc := newRuntimeCtx(testSource(t))

	n, err := query.Parse(`"apple pear"`)
	require.NoError(t, err)
	n = optimize(n, rc)
	if n != nil {
		assert.Equal(t, query.TypeConstFalse, n.Type)
	}
}

func TestCompile_FusesRuns(t *testing.T) {
	rc := newRuntimeCtx(testSource(t))

	n, err := query.Parse("apple banana phone")
	require.NoError(t, err)
	compiled := compile(n, rc)
	assert.Equal(t, opMatchAllTerms, compiled.op)
	assert.Len(t, compiled.run, 3)

	n, err = query.Parse("apple OR banana OR phone")
	require.NoError(t, err)
	compiled = compile(n, rc)
	assert.Equal(t, opMatchAnyTerms, compiled.op)
	assert.Len(t, compiled.run, 3)

	// NOT never fuses
	n, err = query.Parse("apple NOT banana")
	require.NoError(t, err)
	compiled = compile(n, rc)
	assert.Equal(t, opLogicalNot, compiled.op)

	// mixed shapes fall back to the logical opcodes
	n, err = query.Parse(`apple AND "banana phone"`)
	require.NoError(t, err)
	compiled = compile(n, rc)
	assert.Equal(t, opLogicalAnd, compiled.op)
}

func TestCompile_DenseTermIDs(t *testing.T) {
	rc := newRuntimeCtx(testSource(t))

	n, err := query.Parse("apple banana apple phone")
	require.NoError(t, err)
	compile(n, rc)

	assert.Len(t, rc.termsDict, 3)
	seen := map[uint16]bool{}
	for _, id := range rc.termsDict {
		assert.True(t, id >= 1 && id <= 3, "ids must be dense and 1-based, got %d", id)
		assert.False(t, seen[id])
		seen[id] = true
	}
	for _, id := range rc.termsDict {
		assert.NotNil(t, rc.decoders[id], "decoder slots must exist before execution")
	}
}
