package query

// Normalize removes Dummy nodes and empty leaves, drops ConstFalse
// operands of OR and a ConstFalse rhs of NOT, folds AND with a
// ConstFalse operand, NOT with a ConstFalse lhs and unary operators over
// ConstFalse into ConstFalse, and collapses binary operators left with
// one operand. It returns the new root: nil if nothing is left, a
// ConstFalse node if the query cannot match.
func Normalize(n *Node) *Node {
	if n == nil {
		return nil
	}

	switch n.Type {
	case TypeToken, TypePhrase:
		if n.Phrase == nil || len(n.Phrase.Tokens) == 0 {
			return nil
		}
		return n

	case TypeConstFalse:
		return n

	case TypeDummy:
		return nil

	case TypeConstTrue:
		n.Expr = Normalize(n.Expr)
		if n.Expr == nil || n.Expr.Type == TypeConstFalse {
			// Nothing left to evaluate for side effects.
			return nil
		}
		return n

	case TypeUnaryOp:
		n.Expr = Normalize(n.Expr)
		if n.Expr == nil {
			return nil
		}
		if n.Expr.Type == TypeConstFalse {
			n.SetConstFalse()
		}
		return n

	case TypeBinOp:
		n.Lhs = Normalize(n.Lhs)
		n.Rhs = Normalize(n.Rhs)

		switch n.Op {
		case And, StrictAnd:
			if n.Lhs == nil {
				return n.Rhs
			}
			if n.Rhs == nil {
				return n.Lhs
			}
			if n.Lhs.Type == TypeConstFalse || n.Rhs.Type == TypeConstFalse {
				n.SetConstFalse()
			}

		case Or:
			if n.Lhs == nil {
				return n.Rhs
			}
			if n.Rhs == nil {
				return n.Lhs
			}
			if n.Lhs.Type == TypeConstFalse {
				return n.Rhs
			}
			if n.Rhs.Type == TypeConstFalse {
				return n.Lhs
			}

		case Not:
			if n.Lhs == nil {
				return nil
			}
			if n.Lhs.Type == TypeConstFalse {
				n.SetConstFalse()
				return n
			}
			if n.Rhs == nil || n.Rhs.Type == TypeConstFalse {
				return n.Lhs
			}
		}
		return n
	}

	return n
}
