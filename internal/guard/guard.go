// Package guard compiles and evaluates the boolean guard expressions
// attached to event handlers. Guards are short JavaScript boolean
// expressions evaluated against the firing event and the scenario's flag
// state, reusing the same goja engine internal/scriptrt embeds rather
// than a second hand-rolled expression parser: one JS evaluator serves
// both.
package guard

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// PerCallBudget is the per-guard-call wall-clock budget.
const PerCallBudget = 16_600 * time.Microsecond

// Compiled is a parsed guard expression, ready for repeated evaluation.
type Compiled struct {
	src     string
	program *goja.Program
}

// Compile parses a guard expression. Compile failures are returned to
// the caller, who must log them and treat the guard as always-false
// rather than propagate the error into dispatch.
func Compile(expr string) (*Compiled, error) {
	prog, err := goja.Compile("<guard>", expr, false)
	if err != nil {
		return nil, fmt.Errorf("guard compile error: %w", err)
	}
	return &Compiled{src: expr, program: prog}, nil
}

// EvalResult carries a guard's outcome plus whether it was forced false by
// a timeout, so callers can log distinctly from an ordinary falsy result.
type EvalResult struct {
	Value     bool
	TimedOut  bool
	Elapsed   time.Duration
	EvalError error
}

// Eval runs the compiled guard with evt and flags bound into scope,
// enforcing PerCallBudget via goja's cooperative interrupt mechanism
// (Runtime.Interrupt), the same cancellation primitive the script
// runtime uses for script quanta. A guard that exceeds budget or panics
// reports EvalError; any other result value is folded to a boolean by
// JavaScript truthiness.
func (c *Compiled) Eval(evt map[string]interface{}, flags map[string]interface{}) EvalResult {
	vm := goja.New()
	vm.Set("event", evt)
	vm.Set("flags", flags)

	done := make(chan struct{})
	timer := time.AfterFunc(PerCallBudget, func() {
		vm.Interrupt("guard timed out")
	})
	defer timer.Stop()

	start := time.Now()
	var result EvalResult

	func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				result.EvalError = fmt.Errorf("guard panic: %v", r)
			}
		}()

		v, err := vm.RunProgram(c.program)
		result.Elapsed = time.Since(start)
		if err != nil {
			if ie, ok := err.(*goja.InterruptedError); ok {
				result.TimedOut = true
				result.EvalError = ie
				return
			}
			result.EvalError = err
			return
		}
		result.Value = v.ToBoolean()
	}()

	return result
}

// Truthy is a convenience for dispatch sites that only care about the
// final boolean, folding a compile/eval failure into false.
func Truthy(c *Compiled, evt map[string]interface{}, flags map[string]interface{}) bool {
	if c == nil {
		return true // no guard attached: unconditionally fires
	}
	res := c.Eval(evt, flags)
	return res.EvalError == nil && res.Value
}
