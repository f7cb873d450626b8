// Package codegen is the code generator: it owns the growable opcode
// stream, hands out patchable handles for forward jumps, and tracks the
// stack of loop frames that gives Break/Continue somewhere to back-patch
// to. It has no knowledge of the AST; package compiler drives it node by
// node.
package codegen

import (
	"errors"
	"fmt"

	"github.com/glowlang/glow/bytecode"
)

// ErrJumpOutOfRange is returned when a relative jump offset would not fit
// the 24-bit signed operand.
var ErrJumpOutOfRange = errors.New("codegen: jump offset out of range")

// ErrDanglingLoop is returned by Build if a BeginLoop was never matched by
// an EndLoop.
var ErrDanglingLoop = errors.New("codegen: dangling loop frame at end of program")

// ErrBreakOutsideLoop and ErrContinueOutsideLoop guard EmitBreak/
// EmitContinue: using either outside a loop frame is an error, though not
// one of the named runtime error kinds, since a well-formed post-transform
// AST never produces one.
var (
	ErrBreakOutsideLoop    = errors.New("codegen: break outside of a loop")
	ErrContinueOutsideLoop = errors.New("codegen: continue outside of a loop")
)

// Handle is a patchable reference to a previously emitted Jump or JumpIf,
// identified by its index in the code stream. It is valid only for the
// Generator that produced it.
type Handle struct{ index int }

// Generator accumulates the emitted opcode stream for one compiled
// program.
type Generator struct {
	code  []bytecode.OpCode
	loops []*loopFrame
}

// loopFrame records a loop's start (for Continue) and the still-unresolved
// Break jumps emitted inside it (resolved once the loop's body is fully
// compiled and its end address is known).
type loopFrame struct {
	labelBegin    int
	pendingBreaks []Handle
}

// New returns an empty Generator.
func New() *Generator {
	return &Generator{}
}

// Emit appends op to the code stream and returns a handle to it.
func (g *Generator) Emit(op bytecode.OpCode) Handle {
	idx := len(g.code)
	g.code = append(g.code, op)
	return Handle{index: idx}
}

// Here returns the index the next Emit will land on.
func (g *Generator) Here() int {
	return len(g.code)
}

// RelativeFrom computes the relative offset from the instruction at index
// from to the instruction at index to, bounded to the 24-bit signed
// operand range.
func (g *Generator) RelativeFrom(from, to int) (int32, error) {
	rel := int64(to) - int64(from)
	if rel < bytecode.Imm24Min || rel > bytecode.Imm24Max {
		return 0, fmt.Errorf("%w: %d -> %d is %d", ErrJumpOutOfRange, from, to, rel)
	}
	return int32(rel), nil
}

// PatchJump overwrites the Jump previously emitted at h with the given
// relative offset.
func (g *Generator) PatchJump(h Handle, relative int32) error {
	op, err := bytecode.NewJump(relative)
	if err != nil {
		return err
	}
	g.code[h.index] = op
	return nil
}

// PatchJumpIf overwrites the JumpIf previously emitted at h with the given
// relative offset.
func (g *Generator) PatchJumpIf(h Handle, relative int32) error {
	op, err := bytecode.NewJumpIf(relative)
	if err != nil {
		return err
	}
	g.code[h.index] = op
	return nil
}

// BeginLoop pushes a new loop frame whose label_begin is the current
// write position. Must be matched by EndLoop.
func (g *Generator) BeginLoop() {
	g.loops = append(g.loops, &loopFrame{labelBegin: g.Here()})
}

// EndLoop pops the current loop frame and patches every pending Break
// jump inside it to land just past the loop.
func (g *Generator) EndLoop() error {
	if len(g.loops) == 0 {
		return errors.New("codegen: EndLoop called without BeginLoop")
	}
	frame := g.loops[len(g.loops)-1]
	g.loops = g.loops[:len(g.loops)-1]

	end := g.Here()
	for _, h := range frame.pendingBreaks {
		rel, err := g.RelativeFrom(h.index, end)
		if err != nil {
			return err
		}
		if err := g.PatchJump(h, rel); err != nil {
			return err
		}
	}
	return nil
}

// EmitBreak emits a placeholder Jump out of the innermost loop frame,
// to be patched once that loop's EndLoop runs.
func (g *Generator) EmitBreak() error {
	frame := g.currentLoop()
	if frame == nil {
		return ErrBreakOutsideLoop
	}
	h := g.Emit(bytecode.OpCode{Op: bytecode.Jump, Operand: 0})
	frame.pendingBreaks = append(frame.pendingBreaks, h)
	return nil
}

// EmitContinue emits a Jump back to the innermost loop frame's start.
func (g *Generator) EmitContinue() error {
	frame := g.currentLoop()
	if frame == nil {
		return ErrContinueOutsideLoop
	}
	rel, err := g.RelativeFrom(g.Here(), frame.labelBegin)
	if err != nil {
		return err
	}
	op, err := bytecode.NewJump(rel)
	if err != nil {
		return err
	}
	g.Emit(op)
	return nil
}

func (g *Generator) currentLoop() *loopFrame {
	if len(g.loops) == 0 {
		return nil
	}
	return g.loops[len(g.loops)-1]
}

// Build returns the finished opcode stream. It fails with ErrDanglingLoop
// if any BeginLoop was never closed by EndLoop.
func (g *Generator) Build() ([]bytecode.OpCode, error) {
	if len(g.loops) != 0 {
		return nil, ErrDanglingLoop
	}
	return g.code, nil
}
