package exec

import (
	"github.com/andy-wagner/Trinity/query"
)

// opcode selects the implementation of one execution node. The
// compiled query is a small tree of these, dispatched by a switch in
// eval.
type opcode uint8

const (
	opNoop opcode = iota // always false
	opMatchTerm
	opMatchPhrase
	opMatchAllTerms // fused AND run
	opMatchAnyTerms // fused OR run
	opLogicalAnd
	opLogicalOr
	opLogicalNot
	opUnaryAnd
	opUnaryNot
	opConstTrueExpr
)

// execNode is one node of the compiled tree: an opcode plus the
// payload variant it dispatches on.
type execNode struct {
	op     opcode
	termID uint16     // opMatchTerm
	run    []uint16   // opMatchAllTerms, opMatchAnyTerms
	binop  *binopCtx  // opLogicalAnd, opLogicalOr, opLogicalNot
	expr   *execNode  // opUnaryAnd, opUnaryNot, opConstTrueExpr
	phrase *phraseCtx // opMatchPhrase
}

type binopCtx struct {
	lhs, rhs execNode
}

type phraseCtx struct {
	termIDs []uint16
	index   uint16
	rep     uint8
	flags   uint8
}

func (rc *runtimeCtx) registerToken(p *query.Phrase) uint16 {
	termID := rc.resolveTerm(p.Tokens[0])
	rc.prepareDecoder(termID)
	return termID
}

func (rc *runtimeCtx) registerPhrase(p *query.Phrase) *phraseCtx {
	ctx := &phraseCtx{
		termIDs: make([]uint16, len(p.Tokens)),
		index:   p.Index,
		rep:     p.Rep,
		flags:   p.Flags,
	}
	for i, token := range p.Tokens {
		id := rc.resolveTerm(token)
		rc.prepareDecoder(id)
		ctx.termIDs[i] = id
	}
	return ctx
}

func termsRun(ids ...uint16) []uint16 {
	return ids
}

// compile lowers an optimized query tree to execution nodes,
// post-order. Consecutive MatchTerm children joined by AND or OR are
// fused into a single terms-run opcode so evaluating the run is one
// dispatch instead of one per term; NOT operands never fuse.
func compile(n *query.Node, rc *runtimeCtx) execNode {
	switch n.Type {
	case query.TypeToken:
		return execNode{op: opMatchTerm, termID: rc.registerToken(n.Phrase)}

	case query.TypePhrase:
		if len(n.Phrase.Tokens) == 1 {
			return execNode{op: opMatchTerm, termID: rc.registerToken(n.Phrase)}
		}
		return execNode{op: opMatchPhrase, phrase: rc.registerPhrase(n.Phrase)}

	case query.TypeBinOp:
		ctx := &binopCtx{lhs: compile(n.Lhs, rc), rhs: compile(n.Rhs, rc)}
		switch n.Op {
		case query.And, query.StrictAnd:
			if fused, ok := fuseRun(ctx, opMatchAllTerms); ok {
				return fused
			}
			return execNode{op: opLogicalAnd, binop: ctx}

		case query.Or:
			if fused, ok := fuseRun(ctx, opMatchAnyTerms); ok {
				return fused
			}
			return execNode{op: opLogicalOr, binop: ctx}

		case query.Not:
			return execNode{op: opLogicalNot, binop: ctx}
		}

	case query.TypeUnaryOp:
		expr := compile(n.Expr, rc)
		if n.Op == query.Not {
			return execNode{op: opUnaryNot, expr: &expr}
		}
		return execNode{op: opUnaryAnd, expr: &expr}

	case query.TypeConstTrue:
		expr := compile(n.Expr, rc)
		return execNode{op: opConstTrueExpr, expr: &expr}
	}

	// ConstFalse and anything Normalize should have removed.
	return execNode{op: opNoop}
}

// fuseRun merges MatchTerm children and existing runs of the wanted
// kind into one terms-run, order-preserving (lhs terms first).
func fuseRun(ctx *binopCtx, runOp opcode) (execNode, bool) {
	lhs, rhs := &ctx.lhs, &ctx.rhs

	switch {
	case lhs.op == opMatchTerm && rhs.op == opMatchTerm:
		return execNode{op: runOp, run: termsRun(lhs.termID, rhs.termID)}, true

	case lhs.op == opMatchTerm && rhs.op == runOp:
		run := make([]uint16, 0, len(rhs.run)+1)
		run = append(run, lhs.termID)
		run = append(run, rhs.run...)
		return execNode{op: runOp, run: run}, true

	case lhs.op == runOp && rhs.op == opMatchTerm:
		run := make([]uint16, 0, len(lhs.run)+1)
		run = append(run, lhs.run...)
		run = append(run, rhs.termID)
		return execNode{op: runOp, run: run}, true

	case lhs.op == runOp && rhs.op == runOp:
		run := make([]uint16, 0, len(lhs.run)+len(rhs.run))
		run = append(run, lhs.run...)
		run = append(run, rhs.run...)
		return execNode{op: runOp, run: run}, true
	}

	return execNode{}, false
}
