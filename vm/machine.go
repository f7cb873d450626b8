// Package vm implements the stack-based virtual machine and the host API
// contract it calls out to. Machine is driven one tick at a time by
// package runtime; it never spawns a goroutine or blocks.
package vm

import (
	"errors"
	"fmt"
	"time"

	"github.com/glowlang/glow/bytecode"
)

// State is the VM's run state: Stopped until a program is loaded,
// Running until it halts normally, errors, or is reloaded.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// InstructionLimit bounds how many instructions a single Tick may execute,
// guarding against a pure-compute infinite loop freezing the driver.
const InstructionLimit = 10_000

// Runtime error kinds. All are returned wrapped with fmt.Errorf so
// errors.Is still matches the sentinel.
var (
	ErrStackOverflow  = errors.New("vm: stack overflow")
	ErrStackUnderflow = errors.New("vm: stack underflow")
	ErrBadLocal       = errors.New("vm: invalid local index")
	ErrBadJump        = errors.New("vm: jump target out of range")
	ErrInvalidOperand = errors.New("vm: invalid operand")
	ErrDivideByZero   = errors.New("vm: division or modulus by zero")
	ErrRuntimeLimit   = errors.New("vm: exceeded per-tick instruction limit")
)

// HostAPI is the narrow capability set the VM calls into. All four
// calls are synchronous and non-blocking; the VM never retries or times
// them out.
type HostAPI interface {
	// Rand returns a value uniformly distributed in [min, max]. Callers
	// (compiled programs) are trusted to pass min <= max.
	Rand(min, max int32) int32
	// Len returns the number of addressable light slots.
	Len() int
	// Get returns the channel values at index. The implementation may
	// panic if index is out of range; the VM validates before calling.
	Get(index int) (r, g, b uint8)
	// Set updates all three channels of the light at index.
	Set(index int, r, g, b uint8)
}

// Machine is one VM instance: a fixed-size operand stack, a fixed-size
// locals array, the loaded code, and a reference to the host.
type Machine struct {
	stack  []int32
	sp     int
	locals []int32
	code   []bytecode.OpCode
	ip     int

	state          State
	wakeupDeadline time.Time

	api HostAPI
}

// New returns a Machine in the Stopped state, bound to api for the rest of
// its life. Call Load to give it a program to run.
func New(api HostAPI) *Machine {
	return &Machine{api: api, state: Stopped}
}

// State reports the VM's current run state.
func (m *Machine) State() State { return m.state }

// Load installs exe, resetting the stack and zero-filling locals, and
// transitions to Running. Loading a new executable atomically drops
// whatever was previously in flight: there is no partial state left
// over from the prior program.
func (m *Machine) Load(exe *bytecode.Executable) {
	m.stack = make([]int32, exe.StackSize)
	m.sp = 0
	m.locals = make([]int32, exe.LocalsSize)
	m.code = exe.Code
	m.ip = 0
	m.wakeupDeadline = time.Time{}
	m.state = Running
}

// Tick runs the fetch-decode-execute loop until the VM sleeps past now,
// halts, errors, or hits InstructionLimit for this call. A non-nil error
// means the VM has transitioned to Stopped; nil means it is either still
// Running (sleeping until a later deadline) or halted normally.
func (m *Machine) Tick(now time.Time) error {
	if m.state != Running {
		return nil
	}

	steps := 0
	for {
		if now.Before(m.wakeupDeadline) {
			return nil
		}

		steps++
		if steps > InstructionLimit {
			m.state = Stopped
			return ErrRuntimeLimit
		}

		if m.ip >= len(m.code) {
			m.state = Stopped
			return nil
		}

		thisIP := m.ip
		op := m.code[m.ip]
		m.ip++

		if err := m.execute(op, thisIP, now); err != nil {
			m.state = Stopped
			return err
		}
	}
}

func (m *Machine) execute(oc bytecode.OpCode, thisIP int, now time.Time) error {
	switch oc.Op {
	case bytecode.PushConstant:
		return m.push(oc.Operand)

	case bytecode.PushVariable:
		v, err := m.getLocal(oc.Operand)
		if err != nil {
			return err
		}
		return m.push(v)

	case bytecode.PopVariable:
		v, err := m.pop()
		if err != nil {
			return err
		}
		return m.setLocal(oc.Operand, v)

	case bytecode.Pop:
		_, err := m.pop()
		return err

	case bytecode.Equal, bytecode.NotEqual, bytecode.Less, bytecode.LessEqual:
		b, a, err := m.pop2()
		if err != nil {
			return err
		}
		var result bool
		switch oc.Op {
		case bytecode.Equal:
			result = a == b
		case bytecode.NotEqual:
			result = a != b
		case bytecode.Less:
			result = a < b
		case bytecode.LessEqual:
			result = a <= b
		}
		return m.pushBool(result)

	case bytecode.And, bytecode.Or:
		b, a, err := m.pop2()
		if err != nil {
			return err
		}
		var result bool
		if oc.Op == bytecode.And {
			result = truthy(a) && truthy(b)
		} else {
			result = truthy(a) || truthy(b)
		}
		return m.pushBool(result)

	case bytecode.Not:
		a, err := m.pop()
		if err != nil {
			return err
		}
		return m.pushBool(!truthy(a))

	case bytecode.Jump:
		return m.jump(oc, thisIP)

	case bytecode.JumpIf:
		cond, err := m.pop()
		if err != nil {
			return err
		}
		if truthy(cond) {
			return m.jump(oc, thisIP)
		}
		return nil

	case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div, bytecode.Mod, bytecode.Pow:
		b, a, err := m.pop2()
		if err != nil {
			return err
		}
		result, err := arithmetic(oc.Op, a, b)
		if err != nil {
			return err
		}
		return m.push(result)

	case bytecode.Rand:
		max, min, err := m.pop2()
		if err != nil {
			return err
		}
		return m.push(m.api.Rand(min, max))

	case bytecode.Len:
		return m.push(int32(m.api.Len()))

	case bytecode.GetRed, bytecode.GetGreen, bytecode.GetBlue:
		index, err := m.pop()
		if err != nil {
			return err
		}
		if err := m.checkLightIndex(index); err != nil {
			return err
		}
		r, g, b := m.api.Get(int(index))
		switch oc.Op {
		case bytecode.GetRed:
			return m.push(int32(r))
		case bytecode.GetGreen:
			return m.push(int32(g))
		default:
			return m.push(int32(b))
		}

	case bytecode.Set:
		return m.execSet()

	case bytecode.Sleep:
		delay, err := m.pop()
		if err != nil {
			return err
		}
		m.wakeupDeadline = now.Add(time.Duration(delay) * time.Millisecond)
		return nil

	default:
		return fmt.Errorf("vm: unimplemented opcode %s", oc.Op)
	}
}

// execSet pops blue, green, red, index (the reverse of the order the
// compiler pushes them in) and validates each before calling the host.
func (m *Machine) execSet() error {
	blue, err := m.pop()
	if err != nil {
		return err
	}
	green, err := m.pop()
	if err != nil {
		return err
	}
	red, err := m.pop()
	if err != nil {
		return err
	}
	index, err := m.pop()
	if err != nil {
		return err
	}
	if err := m.checkLightIndex(index); err != nil {
		return err
	}
	for _, ch := range [...]int32{red, green, blue} {
		if ch < 0 || ch > 255 {
			return fmt.Errorf("%w: color channel %d out of range 0-255", ErrInvalidOperand, ch)
		}
	}
	m.api.Set(int(index), uint8(red), uint8(green), uint8(blue))
	return nil
}

// checkLightIndex validates index against the host's actual light count
// before it reaches Get/Set, which are free to assume an in-range index.
func (m *Machine) checkLightIndex(index int32) error {
	if index < 0 || int(index) >= m.api.Len() {
		return fmt.Errorf("%w: light index %d out of range 0-%d", ErrInvalidOperand, index, m.api.Len())
	}
	return nil
}

func (m *Machine) jump(oc bytecode.OpCode, thisIP int) error {
	target := thisIP + int(oc.Operand)
	if target < 0 || target >= len(m.code) {
		return fmt.Errorf("%w: %d + %d = %d, code length %d", ErrBadJump, thisIP, oc.Operand, target, len(m.code))
	}
	m.ip = target
	return nil
}

func (m *Machine) push(v int32) error {
	if m.sp >= len(m.stack) {
		return ErrStackOverflow
	}
	m.stack[m.sp] = v
	m.sp++
	return nil
}

func (m *Machine) pop() (int32, error) {
	if m.sp == 0 {
		return 0, ErrStackUnderflow
	}
	m.sp--
	return m.stack[m.sp], nil
}

// pop2 pops the top two stack values, returning (top, second-from-top) so
// callers can name them (b, a) to match the source-order Op1, Op2 they
// were pushed in.
func (m *Machine) pop2() (top, second int32, err error) {
	top, err = m.pop()
	if err != nil {
		return 0, 0, err
	}
	second, err = m.pop()
	if err != nil {
		return 0, 0, err
	}
	return top, second, nil
}

func (m *Machine) pushBool(v bool) error {
	if v {
		return m.push(1)
	}
	return m.push(0)
}

func (m *Machine) getLocal(index int32) (int32, error) {
	if index < 0 || int(index) >= len(m.locals) {
		return 0, fmt.Errorf("%w: index %d", ErrBadLocal, index)
	}
	return m.locals[index], nil
}

func (m *Machine) setLocal(index int32, v int32) error {
	if index < 0 || int(index) >= len(m.locals) {
		return fmt.Errorf("%w: index %d", ErrBadLocal, index)
	}
	m.locals[index] = v
	return nil
}

func truthy(v int32) bool { return v != 0 }

func arithmetic(op bytecode.Op, a, b int32) (int32, error) {
	switch op {
	case bytecode.Add:
		return a + b, nil
	case bytecode.Sub:
		return a - b, nil
	case bytecode.Mul:
		return a * b, nil
	case bytecode.Div:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	case bytecode.Mod:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a % b, nil
	case bytecode.Pow:
		if b < 0 {
			return 0, fmt.Errorf("%w: negative exponent %d", ErrInvalidOperand, b)
		}
		return powInt32(a, b), nil
	default:
		return 0, fmt.Errorf("vm: unknown arithmetic opcode %s", op)
	}
}

// powInt32 computes base**exp by squaring, with 32-bit signed wraparound
// at each multiplication step, exp assumed non-negative. Squaring keeps a
// single Pow opcode's cost logarithmic in exp rather than linear, so one
// dispatch can never itself stall the driver regardless of how large a
// runtime-computed exponent is.
func powInt32(base, exp int32) int32 {
	var result int32 = 1
	for exp > 0 {
		if exp&1 != 0 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}
