package transform

import (
	"github.com/glowlang/glow/ast"
	"github.com/glowlang/glow/internal/vars"
)

// normalizeCompare rewrites "a > b" to "b < a" and "a >= b" to "b <= a".
// After this pass runs over the whole tree, only Eq/Neq/Lt/Lte remain;
// this halves the number of compare opcodes the VM needs to implement.
func normalizeCompare(n ast.Node, _ *vars.Table) (ast.Node, error) {
	c, ok := n.(*ast.Compare)
	if !ok {
		return n, nil
	}
	switch c.Op {
	case ast.CompareGt:
		return &ast.Compare{Op: ast.CompareLt, Op1: c.Op2, Op2: c.Op1}, nil
	case ast.CompareGte:
		return &ast.Compare{Op: ast.CompareLte, Op1: c.Op2, Op2: c.Op1}, nil
	default:
		return c, nil
	}
}

// NormalizeCompare runs normalizeCompare bottom-up over the whole tree.
func NormalizeCompare(n ast.Node, table *vars.Table) (ast.Node, error) {
	return Map(n, table, normalizeCompare)
}
