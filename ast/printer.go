package ast

import (
	"fmt"
	"io"
	"strings"
)

// Print writes an indented tree dump of prog to w, one node per line. It
// mirrors the disassembly-style dump used elsewhere in this module
// (bytecode.Executable.String) so a program can be inspected before and
// after compilation in a consistent shape.
func Print(w io.Writer, prog *Program) error {
	p := &printer{w: w}
	for _, v := range prog.Variables {
		p.printf(0, "Variable(%s)", v)
	}
	p.printf(0, "")
	Walk(p, prog.Body)
	return p.err
}

type printer struct {
	w     io.Writer
	depth int
	err   error
}

func (p *printer) Visit(n Node, dir VisitDirection) Visitor {
	if dir == VisitExit {
		p.depth--
		return nil
	}
	p.printNode(n)
	p.depth++
	return p
}

func (p *printer) printNode(n Node) {
	p.printf(p.depth, "%s", describe(n))
}

func (p *printer) printf(depth int, format string, args ...any) {
	if p.err != nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	_, p.err = fmt.Fprintf(p.w, "%s%s\n", indent, fmt.Sprintf(format, args...))
}

// describe renders a single node's own label, excluding its children (those
// are printed by the surrounding Walk). It deliberately does not recurse.
func describe(n Node) string {
	switch n := n.(type) {
	case *Sequence:
		return "Sequence"
	case *Naked:
		return "Naked"
	case *Compare:
		return fmt.Sprintf("Compare(%s)", n.Op)
	case *Logic:
		return fmt.Sprintf("Logic(%s)", n.Op)
	case *Not:
		return "Not"
	case *LiteralBoolean:
		return fmt.Sprintf("LiteralBoolean(%t)", n.Value)
	case *If:
		return fmt.Sprintf("If(%d branches)", len(n.Branches))
	case *Repeat:
		return "Repeat"
	case *Until:
		return "Until"
	case *While:
		return "While"
	case *For:
		return fmt.Sprintf("For(%s)", n.Variable)
	case *Loop:
		return "Loop"
	case *Break:
		return "Break"
	case *Continue:
		return "Continue"
	case *Literal:
		return fmt.Sprintf("Literal(%d)", n.Value)
	case *Arithmetic:
		return fmt.Sprintf("Arithmetic(%s)", n.Op)
	case *Between:
		return "Between"
	case *Rand:
		return "Rand"
	case *GetVariable:
		return fmt.Sprintf("GetVariable(%s)", n.Name)
	case *SetVariable:
		return fmt.Sprintf("SetVariable(%s)", n.Name)
	case *Len:
		return "Len"
	case *Get:
		return fmt.Sprintf("Get(%s)", n.Channel)
	case *Set:
		return "Set"
	case *Sleep:
		return "Sleep"
	default:
		return fmt.Sprintf("<unknown %T>", n)
	}
}
