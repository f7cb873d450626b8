package runtime_test

import (
	"testing"
	"time"

	"github.com/glowlang/glow/ast"
	"github.com/glowlang/glow/compiler"
	"github.com/glowlang/glow/runtime"
	"github.com/glowlang/glow/vm"
	"github.com/stretchr/testify/require"
)

// These drive ast.Program all the way through compiler.Compile and into a
// vm.Machine, matching the six end-to-end scenarios programs are expected
// to behave like in practice: the package tests above check each stage in
// isolation, these check the whole pipeline wired together. A
// runtime.Driver clears every light once a program halts, so light effects
// are read from a bare machine; the runtime-limit scenario runs through a
// Driver to check that reset.

func compileAndLoad(t *testing.T, host vm.HostAPI, prog *ast.Program) *vm.Machine {
	t.Helper()
	exe, err := compiler.Compile(prog)
	require.NoError(t, err)
	m := vm.New(host)
	m.Load(exe)
	return m
}

func TestPipelineForLoopSetsEachLight(t *testing.T) {
	host := newFakeHost(3)
	prog := &ast.Program{
		Variables: []string{"i"},
		Body: &ast.For{
			Variable: "i",
			From:     &ast.Literal{Value: 0},
			To:       &ast.Literal{Value: 3},
			By:       &ast.Literal{Value: 1},
			Body: &ast.Set{
				Index: &ast.GetVariable{Name: "i"},
				Red:   &ast.Literal{Value: 255},
				Green: &ast.Literal{Value: 0},
				Blue:  &ast.Literal{Value: 0},
			},
		},
	}
	d := compileAndLoad(t, host, prog)

	require.NoError(t, d.Tick(time.Now()))
	require.Equal(t, vm.Stopped, d.State())
	for i := range host.lights {
		require.Equal(t, [3]uint8{255, 0, 0}, host.lights[i])
	}
}

func TestPipelineWhileLoopCountsUp(t *testing.T) {
	host := newFakeHost(1)
	prog := &ast.Program{
		Variables: []string{"x"},
		Body: &ast.Sequence{Items: []ast.Node{
			&ast.While{
				Condition: &ast.Compare{Op: ast.CompareLt, Op1: &ast.GetVariable{Name: "x"}, Op2: &ast.Literal{Value: 10}},
				Body: &ast.SetVariable{
					Name:  "x",
					Value: &ast.Arithmetic{Op: ast.ArithAdd, Op1: &ast.GetVariable{Name: "x"}, Op2: &ast.Literal{Value: 1}},
				},
			},
			&ast.Set{
				Index: &ast.Literal{Value: 0},
				Red:   &ast.GetVariable{Name: "x"},
				Green: &ast.Literal{Value: 0},
				Blue:  &ast.Literal{Value: 0},
			},
		}},
	}
	d := compileAndLoad(t, host, prog)

	require.NoError(t, d.Tick(time.Now()))
	require.Equal(t, vm.Stopped, d.State())
	require.Equal(t, [3]uint8{10, 0, 0}, host.lights[0])
}

func TestPipelineNestedIfElseIfPicksMatchingBranch(t *testing.T) {
	host := newFakeHost(1)
	prog := &ast.Program{
		Variables: []string{"result"},
		Body: &ast.Sequence{Items: []ast.Node{
			&ast.If{Branches: []ast.Branch{
				{
					Condition: &ast.Compare{Op: ast.CompareGt, Op1: &ast.Literal{Value: 5}, Op2: &ast.Literal{Value: 10}},
					Body:      &ast.SetVariable{Name: "result", Value: &ast.Literal{Value: 1}},
				},
				{
					Condition: &ast.Compare{Op: ast.CompareEq, Op1: &ast.Literal{Value: 5}, Op2: &ast.Literal{Value: 5}},
					Body:      &ast.SetVariable{Name: "result", Value: &ast.Literal{Value: 2}},
				},
				{
					Condition: nil,
					Body:      &ast.SetVariable{Name: "result", Value: &ast.Literal{Value: 3}},
				},
			}},
			&ast.Set{
				Index: &ast.Literal{Value: 0},
				Red:   &ast.GetVariable{Name: "result"},
				Green: &ast.Literal{Value: 0},
				Blue:  &ast.Literal{Value: 0},
			},
		}},
	}
	d := compileAndLoad(t, host, prog)

	require.NoError(t, d.Tick(time.Now()))
	require.Equal(t, [3]uint8{2, 0, 0}, host.lights[0])
}

func TestPipelineSleepThenSetSuspendsAcrossTicks(t *testing.T) {
	host := newFakeHost(1)
	prog := &ast.Program{
		Body: &ast.Sequence{Items: []ast.Node{
			&ast.Sleep{Delay: &ast.Literal{Value: 100}},
			&ast.Set{
				Index: &ast.Literal{Value: 0},
				Red:   &ast.Literal{Value: 255},
				Green: &ast.Literal{Value: 0},
				Blue:  &ast.Literal{Value: 0},
			},
		}},
	}
	start := time.Now()
	d := compileAndLoad(t, host, prog)

	require.NoError(t, d.Tick(start))
	require.Equal(t, vm.Running, d.State())
	require.Equal(t, [3]uint8{9, 9, 9}, host.lights[0]) // untouched, still sleeping

	require.NoError(t, d.Tick(start.Add(200*time.Millisecond)))
	require.Equal(t, vm.Stopped, d.State())
	require.Equal(t, [3]uint8{255, 0, 0}, host.lights[0])
}

func TestPipelineBetweenGatesASet(t *testing.T) {
	host := newFakeHost(1)
	prog := &ast.Program{
		Variables: []string{"x"},
		Body: &ast.Sequence{Items: []ast.Node{
			&ast.SetVariable{Name: "x", Value: &ast.Literal{Value: 5}},
			&ast.If{Branches: []ast.Branch{{
				Condition: &ast.Between{Value: &ast.GetVariable{Name: "x"}, Low: &ast.Literal{Value: 0}, High: &ast.Literal{Value: 10}},
				Body: &ast.Set{
					Index: &ast.Literal{Value: 0},
					Red:   &ast.Literal{Value: 255},
					Green: &ast.Literal{Value: 0},
					Blue:  &ast.Literal{Value: 0},
				},
			}}},
		}},
	}
	d := compileAndLoad(t, host, prog)

	require.NoError(t, d.Tick(time.Now()))
	require.Equal(t, [3]uint8{255, 0, 0}, host.lights[0])
}

func TestPipelineEmptyInfiniteLoopHitsRuntimeLimit(t *testing.T) {
	host := newFakeHost(1)
	prog := &ast.Program{Body: &ast.Loop{Body: &ast.Sequence{}}}
	exe, err := compiler.Compile(prog)
	require.NoError(t, err)
	d := runtime.New(host, nil)
	d.Load(exe)

	err = d.Tick(time.Now())
	require.ErrorIs(t, err, vm.ErrRuntimeLimit)
	require.Equal(t, vm.Stopped, d.State())
	require.Equal(t, [3]uint8{0, 0, 0}, host.lights[0]) // driver reset on abnormal halt
}
