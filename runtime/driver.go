// Package runtime is the tick driver: it owns one vm.Machine, loads
// executables into it, and advances it once per call to Tick, matching the
// original render-loop coupling between the VM and the host light state.
package runtime

import (
	"fmt"
	"log"
	"time"

	"github.com/glowlang/glow/bytecode"
	"github.com/glowlang/glow/vm"
	"github.com/google/uuid"
)

// Driver couples a vm.Machine to its host lights: whenever the machine
// stops being Running after a tick, the driver clears every light to black
// so a halted program never leaves stale state on screen. Load itself does
// not clear the lights.
type Driver struct {
	machine *vm.Machine
	host    vm.HostAPI
	logger  *log.Logger

	runID uuid.UUID
}

// New returns a Driver over host, logging to logger. A nil logger defaults
// to log.Default(), matching how the rest of this module treats logging as
// an optional, injectable concern rather than a required dependency.
func New(host vm.HostAPI, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{
		machine: vm.New(host),
		host:    host,
		logger:  logger,
	}
}

// Load installs exe into the underlying machine and assigns this run a
// fresh identifier, logged alongside every subsequent error so multiple
// loads in the same process log stream stay distinguishable.
func (d *Driver) Load(exe *bytecode.Executable) {
	d.runID = uuid.New()
	d.logger.Printf("run %s: loading executable (stack_size=%d locals_size=%d code_len=%d)",
		d.runID, exe.StackSize, exe.LocalsSize, len(exe.Code))
	d.machine.Load(exe)
}

// RunID returns the identifier assigned by the most recent Load. It is the
// zero UUID if Load has never been called.
func (d *Driver) RunID() uuid.UUID { return d.runID }

// State reports the underlying machine's run state.
func (d *Driver) State() vm.State { return d.machine.State() }

// Tick advances the machine once. If the machine was Running before the
// call and is not Running after it (normal halt, RuntimeLimit, or any
// other runtime error), the driver resets every host light to off so the
// next program that loads starts from a clean canvas. The error
// returned, if any, is the runtime error that caused the halt; a normal
// halt or a tick that leaves the machine still Running both return nil.
func (d *Driver) Tick(now time.Time) error {
	wasRunning := d.machine.State() == vm.Running
	if !wasRunning {
		return nil
	}

	err := d.machine.Tick(now)
	if err != nil {
		d.logger.Printf("run %s: runtime error: %v", d.runID, err)
	}

	if d.machine.State() != vm.Running {
		d.resetLights()
	}
	return err
}

func (d *Driver) resetLights() {
	n := d.host.Len()
	for i := 0; i < n; i++ {
		d.host.Set(i, 0, 0, 0)
	}
}

// LoadText is a convenience wrapper decoding the compiler's base64 textual
// form before loading it.
func (d *Driver) LoadText(text string) error {
	exe, err := bytecode.FromText(text)
	if err != nil {
		return fmt.Errorf("runtime: loading executable: %w", err)
	}
	d.Load(exe)
	return nil
}
