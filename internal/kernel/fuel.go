package kernel

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
)

// perCallFuelCost is the fixed charge levied against a fuel budget for
// every guest function-call entry. wazero has no per-instruction fuel
// counter the way wasmtime does; this is the documented approximation
// that stands in for true instruction metering (see SPEC_FULL.md §4).
const perCallFuelCost = 1

// fuelBudget is a single invocation's remaining fuel, shared between the
// function listener that decrements it and the caller that reads the
// final consumption back after the call returns.
type fuelBudget struct {
	remaining atomic.Int64
	exhausted atomic.Bool
}

func newFuelBudget(max uint64) *fuelBudget {
	b := &fuelBudget{}
	b.remaining.Store(int64(max))
	return b
}

func (b *fuelBudget) consumed(max uint64) uint64 {
	r := b.remaining.Load()
	if r < 0 {
		return max
	}
	return max - uint64(r)
}

// fuelListenerFactory builds one fuelListener per exported/defined
// function, all sharing the invocation's fuelBudget and its cancel func.
type fuelListenerFactory struct {
	budget *fuelBudget
	cancel context.CancelFunc
}

func (f *fuelListenerFactory) NewListener(api.FunctionDefinition) experimental.FunctionListener {
	return &fuelListener{budget: f.budget, cancel: f.cancel}
}

type fuelListener struct {
	budget *fuelBudget
	cancel context.CancelFunc
}

// Before charges perCallFuelCost against the budget. The instant the
// budget goes negative it cancels the invocation's context; because the
// engine is configured WithCloseOnContextDone, wazero traps the in-flight
// call rather than letting it run to completion.
func (l *fuelListener) Before(ctx context.Context, _ api.Module, _ api.FunctionDefinition, _ []uint64, _ experimental.StackIterator) context.Context {
	remaining := l.budget.remaining.Add(-perCallFuelCost)
	if remaining < 0 && !l.budget.exhausted.Swap(true) {
		l.cancel()
	}
	return ctx
}

func (l *fuelListener) After(context.Context, api.Module, api.FunctionDefinition, error, []uint64) {}

// withFuelBudget attaches a fuel-metering listener factory to a
// cancelable child of ctx, returning the context to instantiate/invoke
// with and the budget to inspect afterward.
func withFuelBudget(ctx context.Context, max uint64) (context.Context, context.CancelFunc, *fuelBudget) {
	ctx, cancel := context.WithCancel(ctx)
	budget := newFuelBudget(max)
	ctx = experimental.WithFunctionListenerFactory(ctx, &fuelListenerFactory{budget: budget, cancel: cancel})
	return ctx, cancel, budget
}
