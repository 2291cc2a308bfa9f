package eval

import (
	"strings"
	"testing"

	"katvm/pkg/heap"
	"katvm/pkg/printer"
	"katvm/pkg/reader"
)

func newTestVM() *heap.VM {
	vm := heap.NewVM()
	vm.Init()
	Register(vm)
	return vm
}

// evalAll evaluates every top-level form in input in order against vm's
// global environment and returns the printed results, one per form,
// mirroring a sequence of REPL interactions.
func evalAll(t *testing.T, vm *heap.VM, input string) []string {
	t.Helper()
	rd := reader.New(vm, strings.NewReader(input))
	var results []string
	for {
		form, err := rd.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if heap.IsEof(form) {
			return results
		}
		v, err := Eval(vm, form, vm.GlobalEnv)
		if err != nil {
			t.Fatalf("Eval(%q): %v", input, err)
		}
		results = append(results, printer.String(v))
	}
}

// mustRead parses a single top-level form against vm, failing the test
// on any lex/parse error. The returned form's symbols are interned
// against vm, so it must be evaluated against that same vm.
func mustRead(t *testing.T, vm *heap.VM, input string) *heap.Value {
	t.Helper()
	form, err := reader.New(vm, strings.NewReader(input)).Read()
	if err != nil {
		t.Fatalf("Read(%q): %v", input, err)
	}
	return form
}

func evalOne(t *testing.T, vm *heap.VM, input string) string {
	t.Helper()
	results := evalAll(t, vm, input)
	if len(results) != 1 {
		t.Fatalf("evalOne(%q): got %d results, want 1", input, len(results))
	}
	return results[0]
}

func TestArithmetic(t *testing.T) {
	vm := newTestVM()
	tests := []struct {
		input string
		want  string
	}{
		{"(+ 1 2 3)", "6"},
		{"(+)", "0"},
		{"(*)", "1"},
		{"(- 5)", "-5"},
		{"(- 10 3 2)", "5"},
		{"(* 2 3 4)", "24"},
		{"(quotient 7 2)", "3"},
		{"(remainder 7 2)", "1"},
		{"(= 1 1 1)", "#t"},
		{"(< 1 2 3)", "#t"},
		{"(< 1 3 2)", "#f"},
		{"(> 3 2 1)", "#t"},
	}
	for _, tt := range tests {
		if got := evalOne(t, vm, tt.input); got != tt.want {
			t.Errorf("eval(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestFactorialRecursion(t *testing.T) {
	vm := newTestVM()
	results := evalAll(t, vm, `
		(define (fact n) (if (= n 0) 1 (* n (fact (- n 1)))))
		(fact 10)
	`)
	if len(results) != 2 || results[0] != "ok" || results[1] != "3628800" {
		t.Errorf("factorial scenario = %v, want [ok 3628800]", results)
	}
}

func TestLet(t *testing.T) {
	vm := newTestVM()
	if got := evalOne(t, vm, "(let ((x 1) (y 2)) (+ x y))"); got != "3" {
		t.Errorf("let scenario = %s, want 3", got)
	}
}

func TestSetCarMutation(t *testing.T) {
	vm := newTestVM()
	results := evalAll(t, vm, `
		(define p (cons 1 2))
		(set-car! p 9)
		(car p)
	`)
	want := []string{"ok", "ok", "9"}
	for i, w := range want {
		if i >= len(results) || results[i] != w {
			t.Errorf("set-car! scenario = %v, want %v", results, want)
			break
		}
	}
}

func TestCondWithElse(t *testing.T) {
	vm := newTestVM()
	got := evalOne(t, vm, "(cond ((= 1 2) 'a) ((eq? 'x 'x) 'b) (else 'c))")
	if got != "b" {
		t.Errorf("cond scenario = %s, want b", got)
	}
}

func TestAndOr(t *testing.T) {
	vm := newTestVM()
	tests := []struct {
		input string
		want  string
	}{
		{"(and)", "#t"},
		{"(or)", "#f"},
		{"(and 1 2 3)", "3"},
		{"(and 1 #f 3)", "#f"},
		{"(or #f #f 5)", "5"},
		{"(or #f #f)", "#f"},
	}
	for _, tt := range tests {
		if got := evalOne(t, vm, tt.input); got != tt.want {
			t.Errorf("eval(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestIfWithoutAlternate(t *testing.T) {
	vm := newTestVM()
	if got := evalOne(t, vm, "(if #f 1)"); got != "#f" {
		t.Errorf("(if #f 1) = %s, want #f", got)
	}
}

func TestArityErrorOnCompoundProcedure(t *testing.T) {
	vm := newTestVM()
	rd := reader.New(vm, strings.NewReader("((lambda (x y) x) 1)"))
	form, err := rd.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := Eval(vm, form, vm.GlobalEnv); err == nil {
		t.Errorf("arity mismatch on compound procedure call returned no error")
	}
}

func TestUnboundVariableError(t *testing.T) {
	vm := newTestVM()
	rd := reader.New(vm, strings.NewReader("never-bound"))
	form, err := rd.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := Eval(vm, form, vm.GlobalEnv); err == nil {
		t.Errorf("lookup of unbound variable returned no error")
	}
}

func TestApplicationOfNilIsError(t *testing.T) {
	vm := newTestVM()
	if _, err := Eval(vm, vm.Nil, vm.GlobalEnv); err == nil {
		t.Errorf("evaluating () returned no error")
	}
}

func TestQuote(t *testing.T) {
	vm := newTestVM()
	if got := evalOne(t, vm, "(quote (1 2 3))"); got != "(1 2 3)" {
		t.Errorf("quote = %s, want (1 2 3)", got)
	}
	if got := evalOne(t, vm, "'(a b)"); got != "(a b)" {
		t.Errorf("'(a b) = %s, want (a b)", got)
	}
}

func TestSetBang(t *testing.T) {
	vm := newTestVM()
	results := evalAll(t, vm, `
		(define x 1)
		(set! x 2)
		x
	`)
	want := []string{"ok", "ok", "2"}
	for i, w := range want {
		if i >= len(results) || results[i] != w {
			t.Errorf("set! scenario = %v, want %v", results, want)
			break
		}
	}
}

func TestEvalAndApplyPrimitivesAreIntercepted(t *testing.T) {
	vm := newTestVM()
	if got := evalOne(t, vm, "(apply + (list 1 2 3))"); got != "6" {
		t.Errorf("apply scenario = %s, want 6", got)
	}
	if got := evalOne(t, vm, "(apply + 1 2 (list 3 4))"); got != "10" {
		t.Errorf("apply with leading args = %s, want 10", got)
	}
	if got := evalOne(t, vm, "(eval '(+ 1 2) (interaction-environment))"); got != "3" {
		t.Errorf("eval scenario = %s, want 3", got)
	}
}

func TestEqIdentityAndValue(t *testing.T) {
	vm := newTestVM()
	tests := []struct {
		input string
		want  string
	}{
		{"(eq? 'a 'a)", "#t"},
		{"(eq? 1 1)", "#t"},
		{"(eq? #\\a #\\a)", "#t"},
		{"(eq? (cons 1 2) (cons 1 2))", "#f"},
	}
	for _, tt := range tests {
		if got := evalOne(t, vm, tt.input); got != tt.want {
			t.Errorf("eval(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestRoundTripConversions(t *testing.T) {
	vm := newTestVM()
	tests := []struct {
		input string
		want  string
	}{
		{"(string->symbol (symbol->string 'abc))", "abc"},
		{"(integer->char (char->integer #\\Q))", "#\\Q"},
		{"(string->number (number->string 42))", "42"},
	}
	for _, tt := range tests {
		if got := evalOne(t, vm, tt.input); got != tt.want {
			t.Errorf("eval(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestDeepRecursionDoesNotOverflowNativeStack(t *testing.T) {
	vm := newTestVM()
	results := evalAll(t, vm, `
		(define (loop n acc) (if (= n 0) acc (loop (- n 1) (+ acc 1))))
		(loop 200000 0)
	`)
	if len(results) != 2 || results[1] != "200000" {
		t.Errorf("tail-recursive loop scenario = %v, want [... 200000]", results)
	}
}

func TestGCStressDuringEvaluation(t *testing.T) {
	vm := newTestVM()
	results := evalAll(t, vm, `
		(define (build n) (if (= n 0) '() (cons n (build (- n 1)))))
		(define (consloop n) (if (= n 0) 'done (begin (build 50) (consloop (- n 1)))))
		(consloop 2000)
	`)
	if len(results) != 3 || results[2] != "done" {
		t.Errorf("GC stress scenario = %v, want [... done]", results)
	}
}
