// Primitive procedure registration for this interpreter's fixed Scheme
// subset: type predicates, conversions, arithmetic, pair/list
// operations, equality, eval/apply, environment constructors, and I/O.
package eval

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"katvm/pkg/env"
	"katvm/pkg/heap"
	"katvm/pkg/printer"
	"katvm/pkg/reader"
)

// Register binds every built-in procedure into the initial global
// frame. Must run once, after vm.Init(), before any evaluation.
func Register(vm *heap.VM) {
	// Type predicates.
	def(vm, "null?", predicate("null?", heap.IsNil))
	def(vm, "boolean?", predicate("boolean?", heap.IsBool))
	def(vm, "symbol?", predicate("symbol?", heap.IsSymbol))
	def(vm, "integer?", predicate("integer?", heap.IsFixnum))
	def(vm, "char?", predicate("char?", heap.IsChar))
	def(vm, "string?", predicate("string?", heap.IsString))
	def(vm, "pair?", predicate("pair?", heap.IsCell))
	def(vm, "procedure?", predicate("procedure?", heap.IsProcedure))
	def(vm, "eof-object?", predicate("eof-object?", heap.IsEof))
	def(vm, "input-port?", predicate("input-port?", heap.IsInputPort))
	def(vm, "output-port?", predicate("output-port?", heap.IsOutputPort))

	// Conversions.
	def(vm, "char->integer", charToInteger)
	def(vm, "integer->char", integerToChar)
	def(vm, "number->string", numberToString)
	def(vm, "string->number", stringToNumber)
	def(vm, "symbol->string", symbolToString)
	def(vm, "string->symbol", stringToSymbol)

	// Arithmetic over fixnums.
	def(vm, "+", addProc)
	def(vm, "-", subProc)
	def(vm, "*", mulProc)
	def(vm, "quotient", quotientProc)
	def(vm, "remainder", remainderProc)
	def(vm, "=", chainCompare("=", func(a, b int64) bool { return a == b }))
	def(vm, "<", chainCompare("<", func(a, b int64) bool { return a < b }))
	def(vm, ">", chainCompare(">", func(a, b int64) bool { return a > b }))

	// Pair/list.
	def(vm, "cons", consProc)
	def(vm, "car", carProc)
	def(vm, "cdr", cdrProc)
	def(vm, "set-car!", setCarProc)
	def(vm, "set-cdr!", setCdrProc)
	def(vm, "list", listProc)

	// Equality.
	def(vm, "eq?", eqProc)

	// Control: eval/apply are ordinary primitive bindings whose bodies
	// never run; the evaluator's application dispatch intercepts them
	// by identity (see dispatch in eval.go) before ever calling Prim.
	vm.EvalProc = def(vm, "eval", neverCalled("eval"))
	vm.ApplyProc = def(vm, "apply", neverCalled("apply"))

	// Environment constructors.
	def(vm, "interaction-environment", interactionEnvironmentProc)
	def(vm, "null-environment", nullEnvironmentProc)
	def(vm, "environment", environmentProc)

	// I/O.
	def(vm, "load", loadProc)
	def(vm, "open-input-port", openInputPortProc)
	def(vm, "close-input-port", closeInputPortProc)
	def(vm, "open-output-port", openOutputPortProc)
	def(vm, "close-output-port", closeOutputPortProc)
	def(vm, "read", readProc)
	def(vm, "read-char", readCharProc)
	def(vm, "peek-char", peekCharProc)
	def(vm, "write", writeProc)
	def(vm, "write-char", writeCharProc)

	// Error/utility.
	def(vm, "error", errorProc)
	def(vm, "current-time-millis", currentTimeMillisProc)
}

func def(vm *heap.VM, name string, fn heap.PrimFn) *heap.Value {
	p := vm.NewPrimProc(name, fn)
	sym := vm.Intern(name)
	env.Define(vm, sym, p, vm.GlobalEnv)
	return p
}

func boolVal(vm *heap.VM, b bool) *heap.Value {
	if b {
		return vm.True
	}
	return vm.False
}

func requireArgs(args *heap.Value, n int, name string) ([]*heap.Value, error) {
	elems := heap.ListToSlice(args)
	if len(elems) != n {
		return nil, fmt.Errorf("arity: %s expects %d argument(s), got %d", name, n, len(elems))
	}
	return elems, nil
}

func requireMinArgs(args *heap.Value, min int, name string) ([]*heap.Value, error) {
	elems := heap.ListToSlice(args)
	if len(elems) < min {
		return nil, fmt.Errorf("arity: %s expects at least %d argument(s), got %d", name, min, len(elems))
	}
	return elems, nil
}

func predicate(name string, test func(*heap.Value) bool) heap.PrimFn {
	return func(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
		a, err := requireArgs(args, 1, name)
		if err != nil {
			return nil, err
		}
		return boolVal(vm, test(a[0])), nil
	}
}

func neverCalled(name string) heap.PrimFn {
	return func(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
		return nil, fmt.Errorf("internal error: %s's body should never run; the evaluator intercepts it", name)
	}
}

// --- conversions ---

func charToInteger(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "char->integer")
	if err != nil {
		return nil, err
	}
	if !heap.IsChar(a[0]) {
		return nil, fmt.Errorf("type: char->integer expects a char, got %s", printer.String(a[0]))
	}
	return vm.NewFixnum(a[0].Int), nil
}

func integerToChar(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "integer->char")
	if err != nil {
		return nil, err
	}
	if !heap.IsFixnum(a[0]) {
		return nil, fmt.Errorf("type: integer->char expects an integer, got %s", printer.String(a[0]))
	}
	return vm.NewChar(byte(a[0].Int)), nil
}

func numberToString(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "number->string")
	if err != nil {
		return nil, err
	}
	if !heap.IsFixnum(a[0]) {
		return nil, fmt.Errorf("type: number->string expects an integer, got %s", printer.String(a[0]))
	}
	return vm.NewString(strconv.FormatInt(a[0].Int, 10)), nil
}

func stringToNumber(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "string->number")
	if err != nil {
		return nil, err
	}
	if !heap.IsString(a[0]) {
		return nil, fmt.Errorf("type: string->number expects a string, got %s", printer.String(a[0]))
	}
	n, err := strconv.ParseInt(a[0].Str, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("string->number: %q is not a decimal fixnum", a[0].Str)
	}
	return vm.NewFixnum(n), nil
}

func symbolToString(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "symbol->string")
	if err != nil {
		return nil, err
	}
	if !heap.IsSymbol(a[0]) {
		return nil, fmt.Errorf("type: symbol->string expects a symbol, got %s", printer.String(a[0]))
	}
	return vm.NewString(a[0].Str), nil
}

func stringToSymbol(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "string->symbol")
	if err != nil {
		return nil, err
	}
	if !heap.IsString(a[0]) {
		return nil, fmt.Errorf("type: string->symbol expects a string, got %s", printer.String(a[0]))
	}
	return vm.Intern(a[0].Str), nil
}

// --- arithmetic ---

func fixnums(args []*heap.Value, name string) ([]int64, error) {
	ns := make([]int64, len(args))
	for i, a := range args {
		if !heap.IsFixnum(a) {
			return nil, fmt.Errorf("type: %s expects an integer, got %s", name, printer.String(a))
		}
		ns[i] = a.Int
	}
	return ns, nil
}

func addProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	ns, err := fixnums(heap.ListToSlice(args), "+")
	if err != nil {
		return nil, err
	}
	var sum int64
	for _, n := range ns {
		sum += n
	}
	return vm.NewFixnum(sum), nil
}

func subProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireMinArgs(args, 1, "-")
	if err != nil {
		return nil, err
	}
	ns, err := fixnums(a, "-")
	if err != nil {
		return nil, err
	}
	if len(ns) == 1 {
		return vm.NewFixnum(-ns[0]), nil
	}
	result := ns[0]
	for _, n := range ns[1:] {
		result -= n
	}
	return vm.NewFixnum(result), nil
}

func mulProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	ns, err := fixnums(heap.ListToSlice(args), "*")
	if err != nil {
		return nil, err
	}
	var product int64 = 1
	for _, n := range ns {
		product *= n
	}
	return vm.NewFixnum(product), nil
}

func quotientProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 2, "quotient")
	if err != nil {
		return nil, err
	}
	ns, err := fixnums(a, "quotient")
	if err != nil {
		return nil, err
	}
	if ns[1] == 0 {
		return nil, errors.New("quotient: division by zero")
	}
	return vm.NewFixnum(ns[0] / ns[1]), nil
}

func remainderProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 2, "remainder")
	if err != nil {
		return nil, err
	}
	ns, err := fixnums(a, "remainder")
	if err != nil {
		return nil, err
	}
	if ns[1] == 0 {
		return nil, errors.New("remainder: division by zero")
	}
	return vm.NewFixnum(ns[0] % ns[1]), nil
}

func chainCompare(name string, ok func(a, b int64) bool) heap.PrimFn {
	return func(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
		a, err := requireMinArgs(args, 1, name)
		if err != nil {
			return nil, err
		}
		ns, err := fixnums(a, name)
		if err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(ns); i++ {
			if !ok(ns[i], ns[i+1]) {
				return vm.False, nil
			}
		}
		return vm.True, nil
	}
}

// --- pair/list ---

func consProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 2, "cons")
	if err != nil {
		return nil, err
	}
	return vm.NewCell(a[0], a[1]), nil
}

func carProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "car")
	if err != nil {
		return nil, err
	}
	if !heap.IsCell(a[0]) {
		return nil, fmt.Errorf("type: car expects a pair, got %s", printer.String(a[0]))
	}
	return a[0].Car, nil
}

func cdrProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "cdr")
	if err != nil {
		return nil, err
	}
	if !heap.IsCell(a[0]) {
		return nil, fmt.Errorf("type: cdr expects a pair, got %s", printer.String(a[0]))
	}
	return a[0].Cdr, nil
}

func setCarProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 2, "set-car!")
	if err != nil {
		return nil, err
	}
	if !heap.IsCell(a[0]) {
		return nil, fmt.Errorf("type: set-car! expects a pair, got %s", printer.String(a[0]))
	}
	a[0].Car = a[1]
	return vm.SymOk, nil
}

func setCdrProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 2, "set-cdr!")
	if err != nil {
		return nil, err
	}
	if !heap.IsCell(a[0]) {
		return nil, fmt.Errorf("type: set-cdr! expects a pair, got %s", printer.String(a[0]))
	}
	a[0].Cdr = a[1]
	return vm.SymOk, nil
}

// listProc's argument list is already the list of evaluated arguments,
// so `list` is simply the identity function on it. A direct call
// receives a freshly allocated list; through `apply`, the final list
// argument is shared as the tail of the result.
func listProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	return args, nil
}

// --- equality ---

func eqProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 2, "eq?")
	if err != nil {
		return nil, err
	}
	return boolVal(vm, eqValues(a[0], a[1])), nil
}

// eqValues compares by value for Fixnum/Char, and by pointer identity
// for everything else. Interned String/Symbol values make identity
// comparison correct for them too.
func eqValues(a, b *heap.Value) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case heap.TagFixnum, heap.TagChar:
		return a.Int == b.Int
	default:
		return false
	}
}

// --- environment constructors ---

func interactionEnvironmentProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	if _, err := requireArgs(args, 0, "interaction-environment"); err != nil {
		return nil, err
	}
	return vm.GlobalEnv, nil
}

func nullEnvironmentProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	if _, err := requireArgs(args, 0, "null-environment"); err != nil {
		return nil, err
	}
	return vm.Nil, nil
}

func environmentProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	if _, err := requireArgs(args, 0, "environment"); err != nil {
		return nil, err
	}
	return env.Extend(vm, vm.Nil, vm.Nil, vm.Nil), nil
}

// --- I/O ---

// portArg resolves the port argument: the car of args when args is
// non-nil, else the default standard input/output port.
func portArg(vm *heap.VM, args *heap.Value, name string, isInput bool) (*heap.Value, error) {
	n := heap.ListLen(args)
	if n > 1 {
		return nil, fmt.Errorf("arity: %s expects at most 1 argument, got %d", name, n)
	}
	if n == 0 {
		if isInput {
			return vm.Stdin, nil
		}
		return vm.Stdout, nil
	}
	p := args.Car
	if isInput && !heap.IsInputPort(p) {
		return nil, fmt.Errorf("type: %s expects an input-port, got %s", name, printer.String(p))
	}
	if !isInput && !heap.IsOutputPort(p) {
		return nil, fmt.Errorf("type: %s expects an output-port, got %s", name, printer.String(p))
	}
	return p, nil
}

func openInputPortProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "open-input-port")
	if err != nil {
		return nil, err
	}
	if !heap.IsString(a[0]) {
		return nil, fmt.Errorf("type: open-input-port expects a string, got %s", printer.String(a[0]))
	}
	f, err := os.Open(a[0].Str)
	if err != nil {
		return nil, fmt.Errorf("open-input-port: %w", err)
	}
	return vm.NewInputPort(f), nil
}

func closeInputPortProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "close-input-port")
	if err != nil {
		return nil, err
	}
	if !heap.IsInputPort(a[0]) {
		return nil, fmt.Errorf("type: close-input-port expects an input-port, got %s", printer.String(a[0]))
	}
	if err := a[0].Close(); err != nil {
		return nil, fmt.Errorf("close-input-port: %w", err)
	}
	return vm.SymOk, nil
}

func openOutputPortProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "open-output-port")
	if err != nil {
		return nil, err
	}
	if !heap.IsString(a[0]) {
		return nil, fmt.Errorf("type: open-output-port expects a string, got %s", printer.String(a[0]))
	}
	f, err := os.Create(a[0].Str)
	if err != nil {
		return nil, fmt.Errorf("open-output-port: %w", err)
	}
	return vm.NewOutputPort(f), nil
}

func closeOutputPortProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "close-output-port")
	if err != nil {
		return nil, err
	}
	if !heap.IsOutputPort(a[0]) {
		return nil, fmt.Errorf("type: close-output-port expects an output-port, got %s", printer.String(a[0]))
	}
	if err := a[0].Close(); err != nil {
		return nil, fmt.Errorf("close-output-port: %w", err)
	}
	return vm.SymOk, nil
}

func readProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	port, err := portArg(vm, args, "read", true)
	if err != nil {
		return nil, err
	}
	return reader.New(vm, port.BufReader()).Read()
}

// readCharProc returns the next character, or the Eof sentinel when
// the stream is exhausted.
func readCharProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	port, err := portArg(vm, args, "read-char", true)
	if err != nil {
		return nil, err
	}
	b, err := port.ReadByte()
	if err == io.EOF {
		return vm.Eof, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read-char: %w", err)
	}
	return vm.NewChar(b), nil
}

func peekCharProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	port, err := portArg(vm, args, "peek-char", true)
	if err != nil {
		return nil, err
	}
	b, err := port.PeekByte()
	if err == io.EOF {
		return vm.Eof, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek-char: %w", err)
	}
	return vm.NewChar(b), nil
}

func writeProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	if !heap.IsCell(args) {
		return nil, fmt.Errorf("arity: write expects 1 or 2 arguments, got 0")
	}
	port, err := portArg(vm, args.Cdr, "write", false)
	if err != nil {
		return nil, err
	}
	if err := port.WriteString(printer.String(args.Car)); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return vm.SymOk, nil
}

func writeCharProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	if !heap.IsCell(args) {
		return nil, fmt.Errorf("arity: write-char expects 1 or 2 arguments, got 0")
	}
	c := args.Car
	if !heap.IsChar(c) {
		return nil, fmt.Errorf("type: write-char expects a char, got %s", printer.String(c))
	}
	port, err := portArg(vm, args.Cdr, "write-char", false)
	if err != nil {
		return nil, err
	}
	if err := port.WriteString(string(byte(c.Int))); err != nil {
		return nil, fmt.Errorf("write-char: %w", err)
	}
	return vm.SymOk, nil
}

// loadProc reads successive forms from a file, evaluates each in the
// global environment, and returns the last result.
func loadProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	a, err := requireArgs(args, 1, "load")
	if err != nil {
		return nil, err
	}
	if !heap.IsString(a[0]) {
		return nil, fmt.Errorf("type: load expects a string, got %s", printer.String(a[0]))
	}
	f, err := os.Open(a[0].Str)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer f.Close()

	rd := reader.New(vm, f)
	result := vm.SymOk
	resultRoot := vm.PushRoot(&result)
	defer resultRoot.Pop()
	for {
		form, err := rd.Read()
		if err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
		if heap.IsEof(form) {
			return result, nil
		}
		formRoot := vm.PushRoot(&form)
		result, err = Eval(vm, form, vm.GlobalEnv)
		formRoot.Pop()
		if err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
	}
}

func errorProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	parts := make([]string, 0, heap.ListLen(args))
	for _, a := range heap.ListToSlice(args) {
		if heap.IsString(a) {
			parts = append(parts, a.Str)
		} else {
			parts = append(parts, printer.String(a))
		}
	}
	return nil, errors.New(strings.Join(parts, " "))
}

func currentTimeMillisProc(vm *heap.VM, args *heap.Value) (*heap.Value, error) {
	if _, err := requireArgs(args, 0, "current-time-millis"); err != nil {
		return nil, err
	}
	return vm.NewFixnum(time.Now().UnixMilli()), nil
}
