package transform

import (
	"github.com/glowlang/glow/ast"
	"github.com/glowlang/glow/internal/vars"
)

// lowerBetween rewrites "between(value, low, high)" into a temp variable
// holding value (evaluated exactly once) plus a compound compare. Runs
// after compare normalization, so it only ever emits Lte/Lt, never Gte/Gt.
func lowerBetween(n ast.Node, table *vars.Table) (ast.Node, error) {
	b, ok := n.(*ast.Between)
	if !ok {
		return n, nil
	}

	name, err := table.NewSynthetic()
	if err != nil {
		return nil, err
	}

	return &ast.Sequence{Items: []ast.Node{
		&ast.SetVariable{Name: name, Value: b.Value},
		&ast.Logic{
			Op:  ast.LogicAnd,
			Op1: &ast.Compare{Op: ast.CompareLte, Op1: b.Low, Op2: &ast.GetVariable{Name: name}},
			Op2: &ast.Compare{Op: ast.CompareLt, Op1: &ast.GetVariable{Name: name}, Op2: b.High},
		},
	}}, nil
}

// LowerBetween runs lowerBetween bottom-up over the whole tree.
func LowerBetween(n ast.Node, table *vars.Table) (ast.Node, error) {
	return Map(n, table, lowerBetween)
}
