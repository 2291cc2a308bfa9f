package env

import (
	"testing"

	"katvm/pkg/heap"
)

func newTestVM() *heap.VM {
	vm := heap.NewVM()
	vm.Init()
	return vm
}

func TestLookupUnbound(t *testing.T) {
	vm := newTestVM()
	sym := vm.Intern("x")

	if _, err := Lookup(vm, sym, vm.GlobalEnv); err == nil {
		t.Errorf("Lookup of unbound variable returned no error")
	}
}

func TestDefineThenLookup(t *testing.T) {
	vm := newTestVM()
	sym := vm.Intern("x")
	val := vm.NewFixnum(7)

	Define(vm, sym, val, vm.GlobalEnv)

	got, err := Lookup(vm, sym, vm.GlobalEnv)
	if err != nil {
		t.Fatalf("Lookup after Define: %v", err)
	}
	if got != val {
		t.Errorf("Lookup = %v, want the defined value", got)
	}
}

func TestDefineReplacesExistingBinding(t *testing.T) {
	vm := newTestVM()
	sym := vm.Intern("x")
	Define(vm, sym, vm.NewFixnum(1), vm.GlobalEnv)
	Define(vm, sym, vm.NewFixnum(2), vm.GlobalEnv)

	got, err := Lookup(vm, sym, vm.GlobalEnv)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Int != 2 {
		t.Errorf("Lookup = %d, want 2 (the most recent define)", got.Int)
	}
}

func TestSetMutatesNearestBinding(t *testing.T) {
	vm := newTestVM()
	sym := vm.Intern("x")
	Define(vm, sym, vm.NewFixnum(1), vm.GlobalEnv)

	inner := Extend(vm, vm.Nil, vm.Nil, vm.GlobalEnv)
	if err := Set(vm, sym, vm.NewFixnum(9), inner); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := Lookup(vm, sym, inner)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Int != 9 {
		t.Errorf("Lookup after Set = %d, want 9", got.Int)
	}
}

func TestSetUnboundFails(t *testing.T) {
	vm := newTestVM()
	sym := vm.Intern("never-defined")
	if err := Set(vm, sym, vm.NewFixnum(1), vm.GlobalEnv); err == nil {
		t.Errorf("Set of unbound variable returned no error")
	}
}

func TestExtendShadowsOuterFrame(t *testing.T) {
	vm := newTestVM()
	sym := vm.Intern("x")
	Define(vm, sym, vm.NewFixnum(1), vm.GlobalEnv)

	params := vm.NewCell(sym, vm.Nil)
	args := vm.NewCell(vm.NewFixnum(2), vm.Nil)
	inner := Extend(vm, params, args, vm.GlobalEnv)

	got, err := Lookup(vm, sym, inner)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Int != 2 {
		t.Errorf("Lookup in inner frame = %d, want 2 (shadowing outer)", got.Int)
	}

	outerGot, err := Lookup(vm, sym, vm.GlobalEnv)
	if err != nil {
		t.Fatalf("Lookup in outer frame: %v", err)
	}
	if outerGot.Int != 1 {
		t.Errorf("outer binding disturbed: got %d, want 1", outerGot.Int)
	}
}
