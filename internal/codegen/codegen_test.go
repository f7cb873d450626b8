package codegen_test

import (
	"testing"

	"github.com/glowlang/glow/bytecode"
	"github.com/glowlang/glow/internal/codegen"
	"github.com/stretchr/testify/require"
)

func TestEmitHereAndPatch(t *testing.T) {
	g := codegen.New()
	g.Emit(bytecode.Simple(bytecode.Pop))
	require.Equal(t, 1, g.Here())

	h := g.Emit(bytecode.OpCode{Op: bytecode.Jump, Operand: 0})
	g.Emit(bytecode.Simple(bytecode.Pop))

	rel, err := g.RelativeFrom(1, g.Here())
	require.NoError(t, err)
	require.NoError(t, g.PatchJump(h, rel))

	code, err := g.Build()
	require.NoError(t, err)
	require.Equal(t, bytecode.OpCode{Op: bytecode.Jump, Operand: 2}, code[1])
}

func TestLoopBreakContinuePatching(t *testing.T) {
	g := codegen.New()
	g.BeginLoop()
	require.NoError(t, g.EmitContinue()) // index 0: jump back to 0 -> offset 0
	require.NoError(t, g.EmitBreak())    // index 1: placeholder
	g.Emit(bytecode.Simple(bytecode.Pop))
	require.NoError(t, g.EndLoop()) // end = 3, patches index 1 to offset 2

	code, err := g.Build()
	require.NoError(t, err)
	require.Equal(t, bytecode.OpCode{Op: bytecode.Jump, Operand: 0}, code[0])
	require.Equal(t, bytecode.OpCode{Op: bytecode.Jump, Operand: 2}, code[1])
}

func TestBreakOutsideLoopIsError(t *testing.T) {
	g := codegen.New()
	require.ErrorIs(t, g.EmitBreak(), codegen.ErrBreakOutsideLoop)
	require.ErrorIs(t, g.EmitContinue(), codegen.ErrContinueOutsideLoop)
}

func TestDanglingLoopFailsBuild(t *testing.T) {
	g := codegen.New()
	g.BeginLoop()
	_, err := g.Build()
	require.ErrorIs(t, err, codegen.ErrDanglingLoop)
}

func TestRelativeFromOutOfRange(t *testing.T) {
	g := codegen.New()
	_, err := g.RelativeFrom(0, bytecode.Imm24Max+100)
	require.ErrorIs(t, err, codegen.ErrJumpOutOfRange)
}

func TestNestedLoops(t *testing.T) {
	g := codegen.New()
	g.BeginLoop()
	g.BeginLoop()
	require.NoError(t, g.EmitBreak()) // breaks innermost
	require.NoError(t, g.EndLoop())
	require.NoError(t, g.EmitBreak()) // breaks outer
	require.NoError(t, g.EndLoop())

	_, err := g.Build()
	require.NoError(t, err)
}
