package printer

import (
	"testing"

	"katvm/pkg/heap"
)

func newTestVM() *heap.VM {
	vm := heap.NewVM()
	vm.Init()
	return vm
}

func TestStringAtoms(t *testing.T) {
	vm := newTestVM()
	tests := []struct {
		v    *heap.Value
		want string
	}{
		{vm.NewFixnum(42), "42"},
		{vm.NewFixnum(-7), "-7"},
		{vm.True, "#t"},
		{vm.False, "#f"},
		{vm.Nil, "()"},
		{vm.NewString("hi\n\"q\"\\x"), `"hi\n\"q\"\\x"`},
		{vm.NewChar(' '), "#\\space"},
		{vm.NewChar('\n'), "#\\newline"},
		{vm.NewChar('\t'), "#\\tab"},
		{vm.NewChar('a'), "#\\a"},
		{vm.Intern("foo"), "foo"},
		{vm.Eof, "#<eof>"},
	}
	for _, tt := range tests {
		if got := String(tt.v); got != tt.want {
			t.Errorf("String(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestStringLists(t *testing.T) {
	vm := newTestVM()
	list := vm.NewCell(vm.NewFixnum(1), vm.NewCell(vm.NewFixnum(2), vm.Nil))
	if got := String(list); got != "(1 2)" {
		t.Errorf("String(list) = %q, want (1 2)", got)
	}

	dotted := vm.NewCell(vm.NewFixnum(1), vm.NewFixnum(2))
	if got := String(dotted); got != "(1 . 2)" {
		t.Errorf("String(dotted) = %q, want (1 . 2)", got)
	}
}

func TestStringProceduresAndPorts(t *testing.T) {
	vm := newTestVM()
	prim := vm.NewPrimProc("car", func(vm *heap.VM, args *heap.Value) (*heap.Value, error) { return nil, nil })
	if got := String(prim); got != "#<primitive-procedure>" {
		t.Errorf("String(prim) = %q, want #<primitive-procedure>", got)
	}

	comp := vm.NewCompProc(vm.Nil, vm.Nil, vm.GlobalEnv)
	if got := String(comp); got != "#<compound-procedure>" {
		t.Errorf("String(comp) = %q, want #<compound-procedure>", got)
	}

	if got := String(vm.Stdin); got != "#<input-port>" {
		t.Errorf("String(Stdin) = %q, want #<input-port>", got)
	}
	if got := String(vm.Stdout); got != "#<output-port>" {
		t.Errorf("String(Stdout) = %q, want #<output-port>", got)
	}
}
