package query

// LeaderNodes returns the leaf nodes whose posting lists drive the
// candidate-document scan: a set of leaves such that every matching
// document contains at least one of them.
//
// The traversal tracks whether a subtree is "non-optional", i.e. a
// match of the subtree implies a match of one of its leaves. AND needs
// only one non-optional side; OR needs both (a document may match via
// either branch); NOT is driven by its lhs. Negated subtrees and
// ConstTrue wrappers are optional: their leaves never constrain the
// candidate set.
func LeaderNodes(root *Node) []*Node {
	leaders, _ := leaderNodes(root)
	return leaders
}

func leaderNodes(n *Node) ([]*Node, bool) {
	if n == nil {
		return nil, false
	}

	switch n.Type {
	case TypeToken, TypePhrase:
		return []*Node{n}, true

	case TypeBinOp:
		switch n.Op {
		case And, StrictAnd:
			if leaders, ok := leaderNodes(n.Lhs); ok {
				return leaders, true
			}
			return leaderNodes(n.Rhs)

		case Or:
			lhs, ok := leaderNodes(n.Lhs)
			if !ok {
				return nil, false
			}
			rhs, ok := leaderNodes(n.Rhs)
			if !ok {
				return nil, false
			}
			return append(lhs, rhs...), true

		case Not:
			return leaderNodes(n.Lhs)
		}

	case TypeUnaryOp:
		if n.Op == Not {
			return nil, false
		}
		return leaderNodes(n.Expr)
	}

	// ConstTrue, ConstFalse, Dummy
	return nil, false
}
