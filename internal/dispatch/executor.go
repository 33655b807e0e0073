// Package dispatch delivers completion callbacks on a chosen execution context.
package dispatch

// Executor runs completion callbacks. Every callback handed to one Executor
// observes the same execution context.
type Executor interface {
	Execute(fn func())
}

// Immediate runs callbacks on the calling goroutine.
type Immediate struct{}

// Execute calls fn directly.
func (Immediate) Execute(fn func()) { fn() }

// Func adapts a function to the Executor interface.
type Func func(fn func())

// Execute calls f(fn).
func (f Func) Execute(fn func()) { f(fn) }
