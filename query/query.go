// Package query defines the abstract query tree consumed by the
// execution engine, its normalization rules and leader-term selection,
// plus a minimal parser for embedding programs.
package query

import (
	"fmt"
	"strings"
)

// Operator is a boolean query operator. Not means "lhs AND NOT rhs".
type Operator int

const (
	And Operator = iota
	StrictAnd
	Or
	Not
)

func (op Operator) String() string {
	switch op {
	case And:
		return "AND"
	case StrictAnd:
		return "AND!"
	case Or:
		return "OR"
	case Not:
		return "NOT"
	}
	return "?"
}

// NodeType tags the variants of a query tree node.
type NodeType int

const (
	// TypeToken is a single-term leaf.
	TypeToken NodeType = iota
	// TypePhrase is an ordered multi-term leaf.
	TypePhrase
	// TypeBinOp combines Lhs and Rhs with Op.
	TypeBinOp
	// TypeUnaryOp applies Op to Expr.
	TypeUnaryOp
	// TypeConstTrue evaluates Expr for its side effects but is
	// always true.
	TypeConstTrue
	// TypeConstFalse never matches.
	TypeConstFalse
	// TypeDummy contributes nothing and is removed by Normalize.
	TypeDummy
)

// Phrase is an ordered sequence of tokens with query-position metadata.
type Phrase struct {
	Tokens []string
	// Index is the position of the first token within the original
	// query.
	Index uint16
	// Rep is the repetition count for the same token.
	Rep uint8
	// Flags is opaque to the engine and passed through to scoring.
	Flags uint8
}

// Node is one node of the abstract query tree. Which fields are
// meaningful depends on Type.
type Node struct {
	Type     NodeType
	Op       Operator
	Lhs, Rhs *Node
	Expr     *Node
	Phrase   *Phrase
}

// NewToken builds a single-term leaf.
func NewToken(token string) *Node {
	return &Node{Type: TypeToken, Phrase: &Phrase{Tokens: []string{token}, Rep: 1}}
}

// NewPhrase builds a phrase leaf; a single token collapses to a token
// leaf.
func NewPhrase(tokens ...string) *Node {
	if len(tokens) == 1 {
		return NewToken(tokens[0])
	}
	return &Node{Type: TypePhrase, Phrase: &Phrase{Tokens: tokens, Rep: 1}}
}

// NewBinOp combines two subtrees.
func NewBinOp(op Operator, lhs, rhs *Node) *Node {
	return &Node{Type: TypeBinOp, Op: op, Lhs: lhs, Rhs: rhs}
}

// NewUnaryOp applies an operator to a subtree.
func NewUnaryOp(op Operator, expr *Node) *Node {
	return &Node{Type: TypeUnaryOp, Op: op, Expr: expr}
}

// NewConstTrue wraps a subtree that is evaluated only for its side
// effects.
func NewConstTrue(expr *Node) *Node {
	return &Node{Type: TypeConstTrue, Expr: expr}
}

// NewConstFalse builds a node that never matches.
func NewConstFalse() *Node {
	return &Node{Type: TypeConstFalse}
}

// IsLeaf reports whether the node is a token or phrase.
func (n *Node) IsLeaf() bool {
	return n.Type == TypeToken || n.Type == TypePhrase
}

// SetConstFalse rewrites the node in place to a ConstFalse.
func (n *Node) SetConstFalse() {
	*n = Node{Type: TypeConstFalse}
}

// SetDummy rewrites the node in place to a Dummy.
func (n *Node) SetDummy() {
	*n = Node{Type: TypeDummy}
}

// Copy deep-copies the tree, so the engine can rewrite its own copy.
func (n *Node) Copy() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Type: n.Type, Op: n.Op}
	c.Lhs = n.Lhs.Copy()
	c.Rhs = n.Rhs.Copy()
	c.Expr = n.Expr.Copy()
	if n.Phrase != nil {
		p := *n.Phrase
		p.Tokens = append([]string(nil), n.Phrase.Tokens...)
		c.Phrase = &p
	}
	return c
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Type {
	case TypeToken:
		return n.Phrase.Tokens[0]
	case TypePhrase:
		return `"` + strings.Join(n.Phrase.Tokens, " ") + `"`
	case TypeBinOp:
		return fmt.Sprintf("(%v %v %v)", n.Lhs, n.Op, n.Rhs)
	case TypeUnaryOp:
		return fmt.Sprintf("(%v %v)", n.Op, n.Expr)
	case TypeConstTrue:
		return fmt.Sprintf("<true %v>", n.Expr)
	case TypeConstFalse:
		return "<false>"
	case TypeDummy:
		return "<dummy>"
	}
	return "<invalid>"
}
