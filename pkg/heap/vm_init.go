package heap

import "os"

// Init constructs the permanent singletons, interns the special-form
// keyword symbols, and builds the initial (empty) global environment
// frame. It must run before any reading or evaluation.
func (vm *VM) Init() {
	vm.strings = newInterner(TagString)
	vm.symbols = newInterner(TagSymbol)

	vm.Nil = vm.alloc(TagNil)
	vm.True = vm.alloc(TagBool)
	vm.True.Bool = true
	vm.False = vm.alloc(TagBool)
	vm.False.Bool = false
	vm.Eof = vm.alloc(TagEof)

	vm.PushStackRoot(vm.Nil)
	vm.PushStackRoot(vm.True)
	vm.PushStackRoot(vm.False)
	vm.PushStackRoot(vm.Eof)

	vm.SymQuote = vm.internSpecial("quote")
	vm.SymDefine = vm.internSpecial("define")
	vm.SymSet = vm.internSpecial("set!")
	vm.SymIf = vm.internSpecial("if")
	vm.SymLambda = vm.internSpecial("lambda")
	vm.SymBegin = vm.internSpecial("begin")
	vm.SymCond = vm.internSpecial("cond")
	vm.SymElse = vm.internSpecial("else")
	vm.SymLet = vm.internSpecial("let")
	vm.SymAnd = vm.internSpecial("and")
	vm.SymOr = vm.internSpecial("or")
	vm.SymOk = vm.internSpecial("ok")
	vm.SymEval = vm.internSpecial("eval")
	vm.SymApply = vm.internSpecial("apply")

	// EMPTY_ENV is Nil; GLOBAL_ENV wraps one frame, initially empty.
	frame := vm.NewCell(vm.Nil, vm.Nil)
	frameRoot := vm.PushRoot(&frame)
	vm.GlobalEnv = vm.NewCell(frame, vm.Nil)
	frameRoot.Pop()
	vm.PushStackRoot(vm.GlobalEnv)

	vm.Stdin = vm.NewInputPort(os.Stdin)
	vm.PushStackRoot(vm.Stdin)
	vm.Stdout = vm.NewOutputPort(os.Stdout)
	vm.PushStackRoot(vm.Stdout)
}

func (vm *VM) internSpecial(name string) *Value {
	s := vm.Intern(name)
	vm.PushStackRoot(s)
	return s
}
