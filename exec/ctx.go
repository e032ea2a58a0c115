// Package exec compiles abstract query trees into a small tree of
// typed execution nodes and evaluates them, one candidate document at
// a time, against an index source.
package exec

import (
	"math"

	"github.com/andy-wagner/Trinity/index"
	"github.com/andy-wagner/Trinity/query"
)

// runtimeCtx is built by the compiler and owned by one query
// execution. It maps query tokens to dense session-local term ids
// (1-based; 0 is the reserved "missing" id), holds the per-term
// decoder slots and hit buffers, and tracks the per-document capture
// state.
type runtimeCtx struct {
	src index.Source
	dws *index.DocWordsSpace

	termsDict  map[string]uint16
	idToTerm   map[uint16]string
	toIndexSrc map[uint16]uint32

	// decoders and termHits are indexed by session-local term id;
	// slot 0 stays nil.
	decoders []index.Decoder
	termHits []*index.TermHits

	originalQueryTermInstances []*index.QueryTermInstances
	curDocQueryTokensCaptured  []uint16

	matched   index.MatchedDocument
	curDocID  uint32
	curDocSeq uint16
}

func newRuntimeCtx(src index.Source) *runtimeCtx {
	return &runtimeCtx{
		src:        src,
		dws:        index.NewDocWordsSpace(src.MaxIndexedPosition()),
		termsDict:  make(map[string]uint16),
		idToTerm:   make(map[uint16]string),
		toIndexSrc: make(map[uint16]uint32),
	}
}

// resolveTerm assigns (or returns) the session-local id of a token and
// records its translation into the index source's term-id space.
func (rc *runtimeCtx) resolveTerm(token string) uint16 {
	if id, ok := rc.termsDict[token]; ok {
		return id
	}
	id := uint16(len(rc.termsDict) + 1)
	rc.termsDict[token] = id
	rc.idToTerm[id] = token
	rc.toIndexSrc[id] = rc.src.ResolveTerm(token)
	return id
}

func (rc *runtimeCtx) termCtx(termID uint16) index.TermCtx {
	return rc.src.TermCtx(rc.toIndexSrc[termID])
}

// prepareDecoder lazily opens the decoder slot of a term. Every
// execution node referencing a term id is compiled after this ran for
// it.
func (rc *runtimeCtx) prepareDecoder(termID uint16) {
	if int(termID) >= len(rc.decoders) {
		grown := make([]index.Decoder, termID+8)
		copy(grown, rc.decoders)
		rc.decoders = grown
		grownHits := make([]*index.TermHits, termID+8)
		copy(grownHits, rc.termHits)
		rc.termHits = grownHits
	}
	if rc.decoders[termID] == nil {
		rc.decoders[termID] = rc.src.NewPostingsDecoder(rc.termCtx(termID))
		rc.termHits[termID] = &index.TermHits{}
	}
}

func (rc *runtimeCtx) tokenEvalCost(token string) uint32 {
	termID := rc.resolveTerm(token)
	if rc.toIndexSrc[termID] == 0 {
		return math.MaxUint32
	}
	if ctx := rc.termCtx(termID); ctx.Documents != 0 {
		return ctx.Documents
	}
	return math.MaxUint32
}

func (rc *runtimeCtx) phraseEvalCost(p *query.Phrase) uint32 {
	var sum uint32
	for _, token := range p.Tokens {
		cost := rc.tokenEvalCost(token)
		if cost == math.MaxUint32 {
			return math.MaxUint32
		}
		sum += cost
	}
	return sum
}

func (rc *runtimeCtx) materializeTermHitsImpl(termID uint16) {
	th := rc.termHits[termID]
	th.DocSeq = rc.curDocSeq
	rc.decoders[termID].MaterializeHits(termID, rc.dws, th)
}

// materializeTermHits decodes a term's hits for the current document
// unless its buffer is already current.
func (rc *runtimeCtx) materializeTermHits(termID uint16) *index.TermHits {
	th := rc.termHits[termID]
	if th.DocSeq != rc.curDocSeq {
		rc.materializeTermHitsImpl(termID)
	}
	return th
}

// captureMatchedTerm records a matched term into the matched document,
// at most once per document. Terms that occur only in NOT branches
// have no original-query instances and are dropped.
func (rc *runtimeCtx) captureMatchedTerm(termID uint16) {
	qti := rc.originalQueryTermInstances[termID]
	if qti == nil {
		return
	}
	if rc.curDocQueryTokensCaptured[termID] == rc.curDocSeq {
		return
	}
	rc.curDocQueryTokensCaptured[termID] = rc.curDocSeq

	// Materialization is deferred: the predicate may still fail this
	// document, in which case decoding the hits would be wasted.
	rc.matched.Terms = append(rc.matched.Terms, index.MatchedQueryTerm{
		Instances: qti,
		Hits:      rc.termHits[termID],
	})
}

// reset prepares the per-document state for a new candidate.
func (rc *runtimeCtx) reset(docID uint32) {
	rc.curDocID = docID
	rc.dws.Reset()
	rc.matched.Terms = rc.matched.Terms[:0]

	if rc.curDocSeq == math.MaxUint16 {
		for i := range rc.curDocQueryTokensCaptured {
			rc.curDocQueryTokensCaptured[i] = 0
		}
		for _, th := range rc.termHits {
			if th != nil {
				th.DocSeq = 0
			}
		}
		rc.curDocSeq = 1 // not 0: cleared slots must not read as current
	} else {
		rc.curDocSeq++
	}
}
