// Package transform implements the desugaring passes: compare
// normalization, between-lowering, and loop-lowering, applied in that
// fixed order. Each pass is a total, bottom-up, match-and-rebuild walk:
// it never mutates a node, it replaces it with an equivalent one built
// from already-transformed children.
package transform

import (
	"fmt"

	"github.com/glowlang/glow/ast"
	"github.com/glowlang/glow/internal/vars"
)

// VisitFunc is applied to a node after its children have already been
// mapped, and returns its (possibly different) replacement.
type VisitFunc func(ast.Node, *vars.Table) (ast.Node, error)

// Map rebuilds n bottom-up: children are mapped first (recursively),
// then visit runs on the node with its new children.
func Map(n ast.Node, table *vars.Table, visit VisitFunc) (ast.Node, error) {
	mapped, err := mapChildren(n, table, visit)
	if err != nil {
		return nil, err
	}
	return visit(mapped, table)
}

func mapOne(n ast.Node, table *vars.Table, visit VisitFunc) (ast.Node, error) {
	if n == nil {
		return nil, nil
	}
	return Map(n, table, visit)
}

// mapChildren rebuilds n with each child replaced by its mapped form,
// without itself invoking visit on n. It is the one place in the package
// that knows every node shape, mirroring ast.Children but producing new
// nodes rather than just listing them.
func mapChildren(n ast.Node, table *vars.Table, visit VisitFunc) (ast.Node, error) {
	switch n := n.(type) {
	case *ast.Sequence:
		items := make([]ast.Node, len(n.Items))
		for i, item := range n.Items {
			m, err := Map(item, table, visit)
			if err != nil {
				return nil, err
			}
			items[i] = m
		}
		return &ast.Sequence{Items: items}, nil

	case *ast.Naked:
		value, err := Map(n.Value, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Naked{Value: value}, nil

	case *ast.Compare:
		op1, err := Map(n.Op1, table, visit)
		if err != nil {
			return nil, err
		}
		op2, err := Map(n.Op2, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Compare{Op: n.Op, Op1: op1, Op2: op2}, nil

	case *ast.Logic:
		op1, err := Map(n.Op1, table, visit)
		if err != nil {
			return nil, err
		}
		op2, err := Map(n.Op2, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Logic{Op: n.Op, Op1: op1, Op2: op2}, nil

	case *ast.Not:
		value, err := Map(n.Value, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Not{Value: value}, nil

	case *ast.LiteralBoolean:
		return n, nil

	case *ast.If:
		branches := make([]ast.Branch, len(n.Branches))
		for i, b := range n.Branches {
			cond, err := mapOne(b.Condition, table, visit)
			if err != nil {
				return nil, err
			}
			body, err := Map(b.Body, table, visit)
			if err != nil {
				return nil, err
			}
			branches[i] = ast.Branch{Condition: cond, Body: body}
		}
		return &ast.If{Branches: branches}, nil

	case *ast.Repeat:
		times, err := Map(n.Times, table, visit)
		if err != nil {
			return nil, err
		}
		body, err := Map(n.Body, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Repeat{Times: times, Body: body}, nil

	case *ast.Until:
		cond, err := Map(n.Condition, table, visit)
		if err != nil {
			return nil, err
		}
		body, err := Map(n.Body, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Until{Condition: cond, Body: body}, nil

	case *ast.While:
		cond, err := Map(n.Condition, table, visit)
		if err != nil {
			return nil, err
		}
		body, err := Map(n.Body, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.While{Condition: cond, Body: body}, nil

	case *ast.For:
		from, err := Map(n.From, table, visit)
		if err != nil {
			return nil, err
		}
		to, err := Map(n.To, table, visit)
		if err != nil {
			return nil, err
		}
		by, err := mapOne(n.By, table, visit)
		if err != nil {
			return nil, err
		}
		body, err := Map(n.Body, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.For{Variable: n.Variable, From: from, To: to, By: by, Body: body}, nil

	case *ast.Loop:
		body, err := Map(n.Body, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Loop{Body: body}, nil

	case *ast.Break, *ast.Continue, *ast.Literal, *ast.GetVariable, *ast.Len:
		return n, nil

	case *ast.Arithmetic:
		op1, err := Map(n.Op1, table, visit)
		if err != nil {
			return nil, err
		}
		op2, err := Map(n.Op2, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Arithmetic{Op: n.Op, Op1: op1, Op2: op2}, nil

	case *ast.Between:
		value, err := Map(n.Value, table, visit)
		if err != nil {
			return nil, err
		}
		low, err := Map(n.Low, table, visit)
		if err != nil {
			return nil, err
		}
		high, err := Map(n.High, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Between{Value: value, Low: low, High: high}, nil

	case *ast.Rand:
		min, err := Map(n.Min, table, visit)
		if err != nil {
			return nil, err
		}
		max, err := Map(n.Max, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Rand{Min: min, Max: max}, nil

	case *ast.SetVariable:
		value, err := Map(n.Value, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.SetVariable{Name: n.Name, Value: value}, nil

	case *ast.Get:
		index, err := Map(n.Index, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Get{Index: index, Channel: n.Channel}, nil

	case *ast.Set:
		index, err := Map(n.Index, table, visit)
		if err != nil {
			return nil, err
		}
		red, err := Map(n.Red, table, visit)
		if err != nil {
			return nil, err
		}
		green, err := Map(n.Green, table, visit)
		if err != nil {
			return nil, err
		}
		blue, err := Map(n.Blue, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Set{Index: index, Red: red, Green: green, Blue: blue}, nil

	case *ast.Sleep:
		delay, err := Map(n.Delay, table, visit)
		if err != nil {
			return nil, err
		}
		return &ast.Sleep{Delay: delay}, nil

	default:
		return nil, fmt.Errorf("transform: unhandled node type %T", n)
	}
}
