// Package scriptrt is the embedded sandboxed script runtime host: it
// builds a fresh goja.Runtime per script run, injects the intrinsic
// modules (internal/modules), and drives cooperative, quantum-bounded
// execution so a single script can never block a world tick.
package scriptrt

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/mailtwo/nexus-link-sub005/internal/modules"
)

// Quantum is the bounded wall-clock slice a script (or its registered
// per-tick callback) may run for before being interrupted.
const Quantum = 5 * time.Millisecond

// Result mirrors the envelope execute() returns.
type Result struct {
	OK     bool
	Code   string
	Err    string
	Values map[string]interface{}
}

// Run is a single script's live state across its (possibly many) slices.
// A script may register a per-tick callback via `process.onTick(fn)`; if
// it never does, Start runs it to completion in one slice and there is
// nothing left to Step.
type Run struct {
	vm        *goja.Runtime
	onTick    goja.Callable
	cancelled bool
	finished  bool
}

// Cancelled reports whether interruptTerminalProgram has marked this run
// for cancellation.
func (r *Run) Cancelled() bool { return r.cancelled }

// Finished reports whether the script has no further ticks to run.
func (r *Run) Finished() bool { return r.finished }

// runUnderQuantum executes fn with vm.Interrupt armed to fire after
// Quantum, translating an interruption into a non-fatal result rather
// than a host panic.
func runUnderQuantum(vm *goja.Runtime, fn func() (goja.Value, error)) (goja.Value, error) {
	timer := time.AfterFunc(Quantum, func() {
		vm.Interrupt("quantum exceeded")
	})
	defer timer.Stop()

	return fn()
}

// Start compiles and runs a script's top-level code.
// argv is bound as the `argv` global; host-backed intrinsic modules are
// installed scoped to ctx. If the script panics, throws, or is
// interrupted, the result carries a captured error rather than
// propagating.
func Start(source string, ctx modules.ScriptContext, argv []string, host modules.Host) (*Run, Result) {
	vm := goja.New()
	modules.Install(vm, host, ctx)
	vm.Set("argv", argv)

	processObj := vm.NewObject()
	run := &Run{vm: vm}
	processObj.Set("onTick", func(call goja.FunctionCall) goja.Value {
		if fn, ok := goja.AssertFunction(call.Arguments[0]); ok {
			run.onTick = fn
		}
		return goja.Undefined()
	})
	vm.Set("process", processObj)

	res := safeRun(vm, func() (goja.Value, error) {
		return runUnderQuantum(vm, func() (goja.Value, error) {
			return vm.RunString(source)
		})
	})

	if run.onTick == nil {
		run.finished = true
	}
	return run, res
}

// Step runs one quantum-bounded invocation of the script's registered
// onTick callback, if any. Called by the world tick loop while the
// attached process is Running.
func Step(r *Run, ctx modules.ScriptContext, host modules.Host) Result {
	if r.cancelled {
		r.finished = true
		return Result{OK: false, Code: "ERR_INTERNAL_ERROR", Err: "cancelled"}
	}
	if r.onTick == nil {
		r.finished = true
		return Result{OK: true, Code: "OK"}
	}

	return safeRun(r.vm, func() (goja.Value, error) {
		return runUnderQuantum(r.vm, func() (goja.Value, error) {
			return r.onTick(goja.Undefined())
		})
	})
}

// Cancel marks a run Canceled; the next Step call observes it and stops
// invoking the callback.
func Cancel(r *Run) {
	r.cancelled = true
	r.vm.Interrupt("cancelled")
}

func safeRun(vm *goja.Runtime, fn func() (goja.Value, error)) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{OK: false, Code: "ERR_INTERNAL_ERROR", Err: fmt.Sprintf("panic: %v", p)}
		}
	}()

	v, err := fn()
	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return Result{OK: false, Code: "ERR_INTERNAL_ERROR", Err: "quantum exceeded"}
		}
		return Result{OK: false, Code: "ERR_INTERNAL_ERROR", Err: err.Error()}
	}

	if v != nil {
		if m, ok := v.Export().(map[string]interface{}); ok {
			code, _ := m["code"].(string)
			errMsg, _ := m["err"].(string)
			return Result{OK: intrinsicOK(m["ok"]), Code: code, Err: errMsg, Values: m}
		}
	}
	return Result{OK: true, Code: "OK"}
}

// intrinsicOK normalizes a result map's ok field, which arrives as a
// native int from a host-built map passed through untouched, or as an
// int64/float64/bool once script code has produced or reshaped it.
func intrinsicOK(v interface{}) bool {
	switch ok := v.(type) {
	case bool:
		return ok
	case int:
		return ok == 1
	case int64:
		return ok == 1
	case float64:
		return ok == 1
	}
	return false
}
