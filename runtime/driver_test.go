package runtime_test

import (
	"testing"
	"time"

	"github.com/glowlang/glow/bytecode"
	"github.com/glowlang/glow/runtime"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	lights [][3]uint8
}

func newFakeHost(n int) *fakeHost {
	h := &fakeHost{lights: make([][3]uint8, n)}
	for i := range h.lights {
		h.lights[i] = [3]uint8{9, 9, 9} // non-zero, so a reset is observable
	}
	return h
}

func (h *fakeHost) Rand(min, max int32) int32 { return min }
func (h *fakeHost) Len() int                  { return len(h.lights) }
func (h *fakeHost) Get(index int) (r, g, b uint8) {
	l := h.lights[index]
	return l[0], l[1], l[2]
}
func (h *fakeHost) Set(index int, r, g, b uint8) {
	h.lights[index] = [3]uint8{r, g, b}
}

func TestDriverResetsLightsOnNormalHalt(t *testing.T) {
	host := newFakeHost(3)
	d := runtime.New(host, nil)
	d.Load(bytecode.New(10, 0, nil))

	require.NoError(t, d.Tick(time.Now()))
	for i := range host.lights {
		require.Equal(t, [3]uint8{0, 0, 0}, host.lights[i])
	}
}

func TestDriverResetsLightsOnRuntimeError(t *testing.T) {
	host := newFakeHost(2)
	d := runtime.New(host, nil)
	jump, err := bytecode.NewJump(0)
	require.NoError(t, err)
	d.Load(bytecode.New(10, 0, []bytecode.OpCode{jump}))

	tickErr := d.Tick(time.Now())
	require.Error(t, tickErr)
	for i := range host.lights {
		require.Equal(t, [3]uint8{0, 0, 0}, host.lights[i])
	}
}

func TestDriverLeavesLightsAloneWhileStillRunning(t *testing.T) {
	host := newFakeHost(1)
	d := runtime.New(host, nil)
	delay, err := bytecode.NewPushConstant(1000)
	require.NoError(t, err)
	d.Load(bytecode.New(10, 0, []bytecode.OpCode{delay, bytecode.Simple(bytecode.Sleep)}))

	require.NoError(t, d.Tick(time.Now()))
	require.Equal(t, [3]uint8{9, 9, 9}, host.lights[0])
}

func TestRunIDChangesOnEachLoad(t *testing.T) {
	host := newFakeHost(1)
	d := runtime.New(host, nil)
	d.Load(bytecode.New(10, 0, nil))
	first := d.RunID()
	d.Load(bytecode.New(10, 0, nil))
	require.NotEqual(t, first, d.RunID())
}

func TestLoadTextRejectsBadPayload(t *testing.T) {
	host := newFakeHost(1)
	d := runtime.New(host, nil)
	require.Error(t, d.LoadText("not valid base64!!"))
}
