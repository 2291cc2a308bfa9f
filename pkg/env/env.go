// Package env implements variable binding and lookup: a chain of
// frames, each a Cell of (variable-list, value-list), with new
// bindings prepended for O(1) insert.
package env

import (
	"fmt"

	"katvm/pkg/heap"
)

// Extend prepends a new frame binding vars to vals on top of base.
func Extend(vm *heap.VM, vars, vals, base *heap.Value) *heap.Value {
	root := vm.PushRoot(&vars, &vals, &base)
	defer root.Pop()
	frame := vm.NewCell(vars, vals)
	frameRoot := vm.PushRoot(&frame)
	defer frameRoot.Pop()
	return vm.NewCell(frame, base)
}

func firstFrame(env *heap.Value) *heap.Value  { return env.Car }
func enclosing(env *heap.Value) *heap.Value   { return env.Cdr }
func frameVars(frame *heap.Value) *heap.Value { return frame.Car }
func frameVals(frame *heap.Value) *heap.Value { return frame.Cdr }

// Lookup searches env innermost-frame-first for sym, compared by
// pointer identity (sym is always an interned symbol). Returns the
// bound value, or an "unbound variable" error.
func Lookup(vm *heap.VM, sym, env *heap.Value) (*heap.Value, error) {
	for heap.IsCell(env) {
		frame := firstFrame(env)
		vars, vals := frameVars(frame), frameVals(frame)
		for heap.IsCell(vars) {
			if vars.Car == sym {
				return vals.Car, nil
			}
			vars, vals = vars.Cdr, vals.Cdr
		}
		env = enclosing(env)
	}
	return nil, fmt.Errorf("unbound variable: %s", sym.Str)
}

// Define binds sym to val in env's innermost frame: replaces the
// existing binding if sym is already bound there, else prepends a new
// one.
func Define(vm *heap.VM, sym, val, env *heap.Value) {
	frame := firstFrame(env)
	vars, vals := frameVars(frame), frameVals(frame)
	for heap.IsCell(vars) {
		if vars.Car == sym {
			vals.Car = val
			return
		}
		vars, vals = vars.Cdr, vals.Cdr
	}
	addBinding(vm, sym, val, frame)
}

func addBinding(vm *heap.VM, sym, val, frame *heap.Value) {
	root := vm.PushRoot(&sym, &val, &frame)
	defer root.Pop()
	newVars := vm.NewCell(sym, frameVars(frame))
	varsRoot := vm.PushRoot(&newVars)
	newVals := vm.NewCell(val, frameVals(frame))
	varsRoot.Pop()
	frame.Car = newVars
	frame.Cdr = newVals
}

// Set mutates the nearest existing binding of sym, walking frames
// innermost-first. Returns an "unbound variable" error if sym is never
// bound in env.
func Set(vm *heap.VM, sym, val, env *heap.Value) error {
	for heap.IsCell(env) {
		frame := firstFrame(env)
		vars, vals := frameVars(frame), frameVals(frame)
		for heap.IsCell(vars) {
			if vars.Car == sym {
				vals.Car = val
				return nil
			}
			vars, vals = vars.Cdr, vals.Cdr
		}
		env = enclosing(env)
	}
	return fmt.Errorf("unbound variable: %s", sym.Str)
}
