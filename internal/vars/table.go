// Package vars implements the compiler's variable table: a bijection
// between user- and compiler-introduced variable names and the dense
// small-integer indices the bytecode addresses locals by.
package vars

import (
	"errors"
	"fmt"

	"github.com/dolthub/swiss"
)

// MaxVariables is the largest number of variables a Table can hold; the
// bytecode addresses locals with a single unsigned byte.
const MaxVariables = 256

// ErrTooManyVariables is returned by New when given more than 255 names,
// and by NewSynthetic when the table already holds MaxVariables entries.
var ErrTooManyVariables = errors.New("vars: too many variables (max 255)")

// ErrUnknownVariable is returned by IndexOf for a name never declared or
// synthesized.
var ErrUnknownVariable = errors.New("vars: unknown variable")

// Table is a name <-> index bijection. The name-to-index side is backed
// by a swiss table rather than a builtin map, the same open-addressing
// hash map lang/machine/map.go uses for its language-level Map value:
// this table is rebuilt once per compile and probed on every
// GetVariable/SetVariable node, so it is worth the same choice.
type Table struct {
	byName  *swiss.Map[string, uint8]
	byIndex []string
}

// New builds a Table from the user-declared variable names, in order.
// Fails with ErrTooManyVariables if there are more than 255.
func New(names []string) (*Table, error) {
	if len(names) >= MaxVariables {
		return nil, ErrTooManyVariables
	}
	t := &Table{
		byName:  swiss.NewMap[string, uint8](uint32(len(names))),
		byIndex: append([]string(nil), names...),
	}
	for i, name := range names {
		t.byName.Put(name, uint8(i))
	}
	return t, nil
}

// IndexOf returns the dense index assigned to name.
func (t *Table) IndexOf(name string) (uint8, error) {
	idx, ok := t.byName.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
	}
	return idx, nil
}

// Len returns the current number of entries.
func (t *Table) Len() int { return len(t.byIndex) }

// Names returns the variable names in index order. The returned slice must
// not be mutated by the caller.
func (t *Table) Names() []string { return t.byIndex }

// NewSynthetic appends a compiler-introduced temporary named "$$var_N",
// where N is the table's size before the call, and returns its name. The
// "$$" prefix is reserved by convention for synthetics; callers that
// decode a user-supplied program are responsible for rejecting any
// declared name that collides with it.
func (t *Table) NewSynthetic() (string, error) {
	if len(t.byIndex) >= MaxVariables {
		return "", ErrTooManyVariables
	}
	index := len(t.byIndex)
	name := fmt.Sprintf("$$var_%d", index)
	t.byIndex = append(t.byIndex, name)
	t.byName.Put(name, uint8(index))
	return name, nil
}
