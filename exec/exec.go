package exec

import (
	"math"

	"github.com/pkg/errors"
	"go4.org/sort"

	"github.com/andy-wagner/Trinity/index"
	"github.com/andy-wagner/Trinity/query"
)

// queryTermInstance is one token occurrence of the original query,
// captured before any rewriting so scoring sees the user's intent.
type queryTermInstance struct {
	token string
	index uint16
	rep   uint8
	flags uint8
}

// collectOriginalTokenInstances walks the unoptimized tree and
// collects every token occurrence outside NOT branches. Terms living
// only under a NOT never get original-query instances, which silently
// drops their captures later.
func collectOriginalTokenInstances(root *query.Node) []queryTermInstance {
	var out []queryTermInstance
	stack := []*query.Node{root}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n.Type {
		case query.TypeToken, query.TypePhrase:
			p := n.Phrase
			rep := uint8(1)
			if len(p.Tokens) == 1 {
				rep = p.Rep
			}
			pos := p.Index
			for _, token := range p.Tokens {
				out = append(out, queryTermInstance{token: token, index: pos, rep: rep, flags: p.Flags})
				pos++
			}

		case query.TypeUnaryOp:
			if n.Op != query.Not {
				stack = append(stack, n.Expr)
			}

		case query.TypeConstTrue:
			stack = append(stack, n.Expr)

		case query.TypeBinOp:
			switch n.Op {
			case query.And, query.StrictAnd, query.Or:
				stack = append(stack, n.Lhs, n.Rhs)
			case query.Not:
				stack = append(stack, n.Lhs)
			}
		}
	}
	return out
}

// buildOriginalQueryTermInstances groups the collected occurrences per
// distinct term actually referenced by the compiled query, ordered by
// query position.
func (rc *runtimeCtx) buildOriginalQueryTermInstances(collected []queryTermInstance) {
	maxTermIDPlus1 := len(rc.termsDict) + 1
	rc.originalQueryTermInstances = make([]*index.QueryTermInstances, maxTermIDPlus1)

	sort.Slice(collected, func(i, j int) bool { return collected[i].token < collected[j].token })

	for i := 0; i < len(collected); {
		token := collected[i].token
		j := i
		for j < len(collected) && collected[j].token == token {
			j++
		}
		group := collected[i:j]
		i = j

		termID, ok := rc.termsDict[token]
		if !ok {
			// the original token is not used in the optimized query
			continue
		}

		sort.Slice(group, func(a, b int) bool { return group[a].index < group[b].index })

		qti := &index.QueryTermInstances{
			TermID:    termID,
			Token:     token,
			Instances: make([]index.QueryTermInstance, len(group)),
		}
		for k, it := range group {
			qti.Instances[k] = index.QueryTermInstance{Index: it.index, Rep: it.rep, Flags: it.flags}
		}
		rc.originalQueryTermInstances[termID] = qti
	}
}

// leaderTokens picks the tokens whose decoders drive the candidate
// scan: one per leader leaf, with phrases contributing their rarest
// term. The result is sorted and deduplicated.
func (rc *runtimeCtx) leaderTokens(leaders []*query.Node) []string {
	tokens := make([]string, 0, len(leaders))

	for _, n := range leaders {
		p := n.Phrase
		if len(p.Tokens) == 1 {
			tokens = append(tokens, p.Tokens[0])
			continue
		}

		token := p.Tokens[0]
		low := rc.termCtx(rc.resolveTerm(token)).Documents
		for _, t := range p.Tokens[1:] {
			if docs := rc.termCtx(rc.resolveTerm(t)).Documents; docs < low {
				token = t
				low = docs
				if low == 0 {
					break
				}
			}
		}
		tokens = append(tokens, token)
	}

	sort.Strings(tokens)
	n := 0
	for i, t := range tokens {
		if i == 0 || t != tokens[i-1] {
			tokens[n] = t
			n++
		}
	}
	return tokens[:n]
}

// Exec evaluates a query against an index source and streams the
// matching documents to filter. The registry masks deleted documents;
// it may be nil. Exec returns an error only for decoder failures;
// unsatisfiable queries return no matches and no error.
func Exec(root *query.Node, src index.Source, masked index.MaskedDocumentsRegistry, filter index.MatchesFilter) error {
	if root == nil {
		return nil
	}

	// Work on a copy: both the optimizer and the compiler rewrite
	// the tree.
	q := query.Normalize(root.Copy())
	if q == nil {
		return nil
	}

	// Token instances must be captured before optimization moves or
	// drops nodes.
	collected := collectOriginalTokenInstances(q)

	rc := newRuntimeCtx(src)

	q = optimize(q, rc)
	if q == nil || q.Type == query.TypeConstFalse {
		return nil
	}

	rootNode := compile(q, rc)

	leaders := query.LeaderNodes(q)
	if len(leaders) == 0 {
		return nil
	}

	var leaderDecoders []index.Decoder
	for _, token := range rc.leaderTokens(leaders) {
		termID := rc.resolveTerm(token)
		rc.prepareDecoder(termID)
		dec := rc.decoders[termID]
		dec.Begin()
		leaderDecoders = append(leaderDecoders, dec)
	}

	rc.buildOriginalQueryTermInstances(collected)

	maxTermIDPlus1 := len(rc.termsDict) + 1
	rc.curDocQueryTokensCaptured = make([]uint16, maxTermIDPlus1)
	rc.matched.Terms = make([]index.MatchedQueryTerm, 0, maxTermIDPlus1)
	rc.curDocSeq = math.MaxUint16

	toAdvance := make([]int, 0, len(leaderDecoders))

	for len(leaderDecoders) > 0 {
		docID := leaderDecoders[0].Document().ID
		toAdvance = append(toAdvance[:0], 0)

		for i := 1; i < len(leaderDecoders); i++ {
			switch did := leaderDecoders[i].Document().ID; {
			case did < docID:
				docID = did
				toAdvance = append(toAdvance[:0], i)
			case did == docID:
				toAdvance = append(toAdvance, i)
			}
		}

		if masked == nil || !masked.Test(docID) {
			rc.reset(docID)

			if rc.eval(&rootNode) {
				rc.matched.ID = docID

				// Deferred hit materialization for every captured
				// term whose buffer is still stale.
				for _, mt := range rc.matched.Terms {
					rc.materializeTermHits(mt.Instances.TermID)
				}

				if filter.Consider(&rc.matched, rc.dws) == index.Abort {
					break
				}
			}
		}

		for i := len(toAdvance) - 1; i >= 0; i-- {
			idx := toAdvance[i]
			if !leaderDecoders[idx].Next() {
				leaderDecoders = append(leaderDecoders[:idx], leaderDecoders[idx+1:]...)
			}
		}
	}

	for termID, dec := range rc.decoders {
		if dec == nil {
			continue
		}
		if err := dec.Err(); err != nil {
			return errors.Wrapf(err, "decoder for term %q failed", rc.idToTerm[uint16(termID)])
		}
	}
	return nil
}
