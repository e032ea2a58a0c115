package exec

import (
	"math"

	"github.com/andy-wagner/Trinity/query"
)

// optimize rewrites the query copy in place: a heuristic reorder pass
// followed by cost-based passes until a fixpoint, normalizing between
// iterations. It returns the new root, nil when nothing is left to
// evaluate.
func optimize(root *query.Node, rc *runtimeCtx) *query.Node {
	reorderRoot(root)
	return optimizeBinops(root, rc)
}

// reorder swaps binop operands on shape alone, so cheap leaves are
// evaluated before nested subtrees and can short-circuit them.
func reorder(n *query.Node, dirty *bool) {
	if n == nil || n.Type != query.TypeBinOp {
		return
	}

	lhs, rhs := n.Lhs, n.Rhs
	reorder(lhs, dirty)
	reorder(rhs, dirty)

	switch n.Op {
	case query.And, query.StrictAnd:
		if lhs.Type == query.TypeBinOp && rhs.IsLeaf() {
			n.Lhs, n.Rhs = rhs, lhs
			*dirty = true
		}

	case query.Not:
		// ((pizza AND (sf OR "san francisco")) NOT onions)
		// => ((pizza NOT onions) AND (sf OR "san francisco"))
		// The NOT leaf is cheaper to test than the nested binop.
		if rhs.IsLeaf() && lhs.Type == query.TypeBinOp {
			llhs, lrhs := lhs.Lhs, lhs.Rhs
			if llhs.IsLeaf() && lrhs.Type == query.TypeBinOp &&
				(lhs.Op == query.And || lhs.Op == query.StrictAnd) {
				saved := lhs.Op
				lhs.Rhs = rhs
				lhs.Op = query.Not
				n.Op = saved
				n.Rhs = lrhs
				*dirty = true
			}
		}
	}
}

func reorderRoot(root *query.Node) {
	for {
		dirty := false
		reorder(root, &dirty)
		if !dirty {
			return
		}
	}
}

// optimizeBinopsPass computes the estimated evaluation cost of each
// subtree from the index source's document frequencies, folds absent
// terms to ConstFalse, propagates ConstFalse through binops and swaps
// operands so the cheaper side runs first. NOT operands are never
// swapped.
func optimizeBinopsPass(n *query.Node, updates *bool, rc *runtimeCtx) uint32 {
	switch n.Type {
	case query.TypeToken:
		cost := rc.tokenEvalCost(n.Phrase.Tokens[0])
		if cost == math.MaxUint32 {
			n.SetConstFalse()
			*updates = true
		}
		return cost

	case query.TypePhrase:
		cost := rc.phraseEvalCost(n.Phrase)
		if cost == math.MaxUint32 {
			n.SetConstFalse()
			*updates = true
		}
		return cost

	case query.TypeBinOp:
		lhsCost := optimizeBinopsPass(n.Lhs, updates, rc)
		if lhsCost == math.MaxUint32 && (n.Op == query.And || n.Op == query.StrictAnd) {
			n.SetConstFalse()
			*updates = true
			return math.MaxUint32
		}

		rhsCost := optimizeBinopsPass(n.Rhs, updates, rc)
		if rhsCost == math.MaxUint32 && lhsCost == math.MaxUint32 && n.Op == query.Or {
			n.SetConstFalse()
			*updates = true
			return math.MaxUint32
		}

		if rhsCost < lhsCost && n.Op != query.Not {
			n.Lhs, n.Rhs = n.Rhs, n.Lhs
		}
		return lhsCost + rhsCost

	case query.TypeConstTrue:
		if cost := optimizeBinopsPass(n.Expr, updates, rc); cost == math.MaxUint32 {
			n.SetDummy()
			*updates = true
			// Dummy costs nothing, not MaxUint32: the wrapper was
			// always true, it never made its parent unsatisfiable.
			return 0
		}
		// The near-maximal cost keeps ConstTrue wrappers out of the
		// driving position: a parent binop never swaps them ahead of
		// a sibling that can match, while such a sibling on their
		// right is swapped ahead of them.
		return math.MaxUint32 - 1

	case query.TypeUnaryOp:
		cost := optimizeBinopsPass(n.Expr, updates, rc)
		if cost == math.MaxUint32 {
			n.SetConstFalse()
			*updates = true
		}
		return cost

	case query.TypeConstFalse:
		return math.MaxUint32
	}

	return 0
}

func optimizeBinops(root *query.Node, rc *runtimeCtx) *query.Node {
	for root != nil {
		updates := false
		optimizeBinopsPass(root, &updates, rc)
		if !updates {
			break
		}
		root = query.Normalize(root)
	}
	return root
}
