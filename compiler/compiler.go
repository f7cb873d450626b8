// Package compiler is the compilation driver: it runs the desugaring
// passes in their fixed order, builds the final variable table, walks the
// resulting tree emitting bytecode, and assembles the result into a
// persistable Executable. It is the only package that wires ast,
// internal/transform, internal/codegen and bytecode together.
package compiler

import (
	"errors"
	"fmt"

	"github.com/glowlang/glow/ast"
	"github.com/glowlang/glow/bytecode"
	"github.com/glowlang/glow/internal/codegen"
	"github.com/glowlang/glow/internal/transform"
	"github.com/glowlang/glow/internal/vars"
)

// StackSize is the fixed compile-time operand stack capacity every
// Executable is assembled with.
const StackSize = 100

// ErrUnexpectedNode is returned when the AST being walked still contains a
// node kind the desugaring passes are supposed to have eliminated (Between,
// While, Until, For, Repeat, or a Compare using Gt/Gte). A well-formed call
// through Compile never triggers this; it exists because CompileBody also
// accepts an already-transformed tree directly, and a caller that skips a
// pass has a bug worth surfacing loudly rather than silently miscompiling.
var ErrUnexpectedNode = errors.New("compiler: node kind must be desugared before code generation")

// Compile runs the full pipeline over prog: desugaring, variable table
// construction, code generation, and executable assembly.
func Compile(prog *ast.Program) (*bytecode.Executable, error) {
	table, err := vars.New(prog.Variables)
	if err != nil {
		return nil, fmt.Errorf("compiler: building variable table: %w", err)
	}

	body := prog.Body
	for _, pass := range []func(ast.Node, *vars.Table) (ast.Node, error){
		transform.NormalizeCompare,
		transform.LowerBetween,
		transform.LowerLoops,
	} {
		body, err = pass(body, table)
		if err != nil {
			return nil, fmt.Errorf("compiler: desugaring: %w", err)
		}
	}

	code, err := CompileBody(body, table)
	if err != nil {
		return nil, err
	}
	return bytecode.New(StackSize, uint32(table.Len()), code), nil
}

// CompileBody walks an already-desugared tree and returns its code. It is
// exposed separately from Compile so tests can drive codegen on a
// hand-built tree without also exercising the transform passes.
func CompileBody(body ast.Node, table *vars.Table) ([]bytecode.OpCode, error) {
	g := codegen.New()
	if err := emit(g, table, body); err != nil {
		return nil, err
	}
	return g.Build()
}

// emit compiles n, appending its instructions to g. Every node leaves the
// operand stack exactly as it found it except the handful that are
// themselves expressions (Compare, Logic, Not, LiteralBoolean, Literal,
// Arithmetic, Rand, GetVariable, Len, Get), which leave exactly one more
// value than they found, and a Sequence whose last item is one of them (the
// shape Between lowers to), which does the same.
func emit(g *codegen.Generator, table *vars.Table, n ast.Node) error {
	switch n := n.(type) {
	case *ast.Sequence:
		for _, item := range n.Items {
			if err := emit(g, table, item); err != nil {
				return err
			}
		}
		return nil

	case *ast.Naked:
		if err := emit(g, table, n.Value); err != nil {
			return err
		}
		g.Emit(bytecode.Simple(bytecode.Pop))
		return nil

	case *ast.Compare:
		op, err := compareOpcode(n.Op)
		if err != nil {
			return err
		}
		if err := emit(g, table, n.Op1); err != nil {
			return err
		}
		if err := emit(g, table, n.Op2); err != nil {
			return err
		}
		g.Emit(bytecode.Simple(op))
		return nil

	case *ast.Logic:
		op := bytecode.And
		if n.Op == ast.LogicOr {
			op = bytecode.Or
		}
		if err := emit(g, table, n.Op1); err != nil {
			return err
		}
		if err := emit(g, table, n.Op2); err != nil {
			return err
		}
		g.Emit(bytecode.Simple(op))
		return nil

	case *ast.Not:
		if err := emit(g, table, n.Value); err != nil {
			return err
		}
		g.Emit(bytecode.Simple(bytecode.Not))
		return nil

	case *ast.LiteralBoolean:
		value := int32(0)
		if n.Value {
			value = 1
		}
		oc, err := bytecode.NewPushConstant(value)
		if err != nil {
			return err
		}
		g.Emit(oc)
		return nil

	case *ast.If:
		return emitIf(g, table, n)

	case *ast.Loop:
		g.BeginLoop()
		if err := emit(g, table, n.Body); err != nil {
			return err
		}
		if err := g.EmitContinue(); err != nil {
			return err
		}
		return g.EndLoop()

	case *ast.Break:
		return g.EmitBreak()

	case *ast.Continue:
		return g.EmitContinue()

	case *ast.Literal:
		oc, err := bytecode.NewPushConstant(n.Value)
		if err != nil {
			return err
		}
		g.Emit(oc)
		return nil

	case *ast.Arithmetic:
		op, err := arithmeticOpcode(n.Op)
		if err != nil {
			return err
		}
		if err := emit(g, table, n.Op1); err != nil {
			return err
		}
		if err := emit(g, table, n.Op2); err != nil {
			return err
		}
		g.Emit(bytecode.Simple(op))
		return nil

	case *ast.Rand:
		if err := emit(g, table, n.Min); err != nil {
			return err
		}
		if err := emit(g, table, n.Max); err != nil {
			return err
		}
		g.Emit(bytecode.Simple(bytecode.Rand))
		return nil

	case *ast.GetVariable:
		index, err := table.IndexOf(n.Name)
		if err != nil {
			return err
		}
		g.Emit(bytecode.NewPushVariable(index))
		return nil

	case *ast.SetVariable:
		index, err := table.IndexOf(n.Name)
		if err != nil {
			return err
		}
		if err := emit(g, table, n.Value); err != nil {
			return err
		}
		g.Emit(bytecode.NewPopVariable(index))
		return nil

	case *ast.Len:
		g.Emit(bytecode.Simple(bytecode.Len))
		return nil

	case *ast.Get:
		if err := emit(g, table, n.Index); err != nil {
			return err
		}
		op, err := getChannelOpcode(n.Channel)
		if err != nil {
			return err
		}
		g.Emit(bytecode.Simple(op))
		return nil

	case *ast.Set:
		if err := emit(g, table, n.Index); err != nil {
			return err
		}
		if err := emit(g, table, n.Red); err != nil {
			return err
		}
		if err := emit(g, table, n.Green); err != nil {
			return err
		}
		if err := emit(g, table, n.Blue); err != nil {
			return err
		}
		g.Emit(bytecode.Simple(bytecode.Set))
		return nil

	case *ast.Sleep:
		if err := emit(g, table, n.Delay); err != nil {
			return err
		}
		g.Emit(bytecode.Simple(bytecode.Sleep))
		return nil

	case *ast.Between, *ast.While, *ast.Until, *ast.For, *ast.Repeat:
		return fmt.Errorf("%w: %T", ErrUnexpectedNode, n)

	default:
		return fmt.Errorf("compiler: unhandled node type %T", n)
	}
}

// emitIf implements the if/else-if/else branch-chain protocol: each
// conditional branch tests its condition, jumps into its body on true or
// falls through to the next branch's test on false, and every body's exit
// jumps to the common end address patched in once the whole chain is
// known.
func emitIf(g *codegen.Generator, table *vars.Table, n *ast.If) error {
	type pending struct {
		pos int
		h   codegen.Handle
	}
	var ends []pending

	for _, b := range n.Branches {
		if b.Condition == nil {
			if err := emit(g, table, b.Body); err != nil {
				return err
			}
			continue
		}

		if err := emit(g, table, b.Condition); err != nil {
			return err
		}

		jumpIfPos := g.Here()
		jumpIfH := g.Emit(bytecode.OpCode{Op: bytecode.JumpIf})
		jumpNextPos := g.Here()
		jumpNextH := g.Emit(bytecode.OpCode{Op: bytecode.Jump})

		thenStart := g.Here()
		rel, err := g.RelativeFrom(jumpIfPos, thenStart)
		if err != nil {
			return err
		}
		if err := g.PatchJumpIf(jumpIfH, rel); err != nil {
			return err
		}

		if err := emit(g, table, b.Body); err != nil {
			return err
		}

		endPos := g.Here()
		endH := g.Emit(bytecode.OpCode{Op: bytecode.Jump})
		ends = append(ends, pending{pos: endPos, h: endH})

		nextStart := g.Here()
		rel, err = g.RelativeFrom(jumpNextPos, nextStart)
		if err != nil {
			return err
		}
		if err := g.PatchJump(jumpNextH, rel); err != nil {
			return err
		}
	}

	final := g.Here()
	for _, p := range ends {
		rel, err := g.RelativeFrom(p.pos, final)
		if err != nil {
			return err
		}
		if err := g.PatchJump(p.h, rel); err != nil {
			return err
		}
	}
	return nil
}

func compareOpcode(op ast.CompareOp) (bytecode.Op, error) {
	switch op {
	case ast.CompareEq:
		return bytecode.Equal, nil
	case ast.CompareNeq:
		return bytecode.NotEqual, nil
	case ast.CompareLt:
		return bytecode.Less, nil
	case ast.CompareLte:
		return bytecode.LessEqual, nil
	default:
		return 0, fmt.Errorf("%w: compare op %q must be normalized to lt/lte first", ErrUnexpectedNode, op)
	}
}

func arithmeticOpcode(op ast.ArithmeticOp) (bytecode.Op, error) {
	switch op {
	case ast.ArithAdd:
		return bytecode.Add, nil
	case ast.ArithSub:
		return bytecode.Sub, nil
	case ast.ArithMul:
		return bytecode.Mul, nil
	case ast.ArithDiv:
		return bytecode.Div, nil
	case ast.ArithMod:
		return bytecode.Mod, nil
	case ast.ArithPow:
		return bytecode.Pow, nil
	default:
		return 0, fmt.Errorf("compiler: unknown arithmetic op %q", op)
	}
}

func getChannelOpcode(ch ast.Channel) (bytecode.Op, error) {
	switch ch {
	case ast.ChannelRed:
		return bytecode.GetRed, nil
	case ast.ChannelGreen:
		return bytecode.GetGreen, nil
	case ast.ChannelBlue:
		return bytecode.GetBlue, nil
	default:
		return 0, fmt.Errorf("compiler: unknown channel %q", ch)
	}
}
