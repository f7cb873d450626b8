package transform

import (
	"github.com/glowlang/glow/ast"
	"github.com/glowlang/glow/internal/vars"
)

// lowerLoops rewrites While/Until/For/Repeat to the single Loop construct
// plus If/Break. Must run after compare normalization and between
// lowering so that every comparison it synthesizes can be expressed with
// the already-reduced Eq/Neq/Lt/Lte set.
func lowerLoops(n ast.Node, table *vars.Table) (ast.Node, error) {
	switch n := n.(type) {
	case *ast.While:
		return &ast.Loop{Body: &ast.Sequence{Items: []ast.Node{
			&ast.If{Branches: []ast.Branch{{
				Condition: &ast.Not{Value: n.Condition},
				Body:      &ast.Break{},
			}}},
			n.Body,
		}}}, nil

	case *ast.Until:
		return &ast.Loop{Body: &ast.Sequence{Items: []ast.Node{
			&ast.If{Branches: []ast.Branch{{
				Condition: n.Condition,
				Body:      &ast.Break{},
			}}},
			n.Body,
		}}}, nil

	case *ast.For:
		return lowerFor(n, table)

	case *ast.Repeat:
		counter, err := table.NewSynthetic()
		if err != nil {
			return nil, err
		}
		return lowerFor(&ast.For{
			Variable: counter,
			From:     &ast.Literal{Value: 0},
			To:       n.Times,
			By:       &ast.Literal{Value: 1},
			Body:     n.Body,
		}, table)

	default:
		return n, nil
	}
}

// lowerFor implements "for i = from to to by by { body }": it evaluates
// from, to and by exactly once (by and to into synthetic temps, from into
// i), and the loop body sees i already incremented so the first iteration
// lands on from.
func lowerFor(f *ast.For, table *vars.Table) (ast.Node, error) {
	by := f.By
	if by == nil {
		by = &ast.Literal{Value: 1}
	}

	byVar, err := table.NewSynthetic()
	if err != nil {
		return nil, err
	}
	toVar, err := table.NewSynthetic()
	if err != nil {
		return nil, err
	}

	return &ast.Sequence{Items: []ast.Node{
		&ast.SetVariable{Name: byVar, Value: by},
		&ast.SetVariable{Name: toVar, Value: f.To},
		&ast.SetVariable{
			Name: f.Variable,
			Value: &ast.Arithmetic{
				Op:  ast.ArithSub,
				Op1: f.From,
				Op2: &ast.GetVariable{Name: byVar},
			},
		},
		&ast.Loop{Body: &ast.Sequence{Items: []ast.Node{
			&ast.SetVariable{
				Name: f.Variable,
				Value: &ast.Arithmetic{
					Op:  ast.ArithAdd,
					Op1: &ast.GetVariable{Name: f.Variable},
					Op2: &ast.GetVariable{Name: byVar},
				},
			},
			&ast.If{Branches: []ast.Branch{{
				Condition: &ast.Compare{
					Op:  ast.CompareLte,
					Op1: &ast.GetVariable{Name: toVar},
					Op2: &ast.GetVariable{Name: f.Variable},
				},
				Body: &ast.Break{},
			}}},
			f.Body,
		}}},
	}}, nil
}

// LowerLoops runs lowerLoops bottom-up over the whole tree. Because
// lowerFor and the Repeat case build new For/Loop subtrees that are
// already fully lowered by construction, a single bottom-up pass suffices
// even though it sometimes synthesizes nodes of a kind it also matches on.
func LowerLoops(n ast.Node, table *vars.Table) (ast.Node, error) {
	return Map(n, table, lowerLoops)
}
