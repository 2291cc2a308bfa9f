// Package eval implements the trampolined evaluator, its special
// forms, and application dispatch.
package eval

import (
	"fmt"

	"katvm/pkg/env"
	"katvm/pkg/heap"
	"katvm/pkg/printer"
)

// Eval evaluates expr in environment, reusing its own stack frame for
// every tail position (if branches, the last expression of
// begin/and/or/cond, the reduced let form, and an applied compound
// procedure's body) instead of recursing, so tail calls run in
// constant native stack space.
func Eval(vm *heap.VM, expr, environment *heap.Value) (*heap.Value, error) {
	root := vm.PushRoot(&expr, &environment)
	defer root.Pop()

	for {
		switch {
		case isSelfEvaluating(expr):
			return expr, nil

		case heap.IsSymbol(expr):
			return env.Lookup(vm, expr, environment)

		case heap.IsNil(expr):
			return nil, fmt.Errorf("unknown application: ()")

		case !heap.IsCell(expr):
			return nil, fmt.Errorf("cannot evaluate unknown expression type: %s", printer.String(expr))

		case isTagged(expr, vm.SymQuote):
			if heap.ListLen(expr) != 2 {
				return nil, fmt.Errorf("bad quote form: %s", printer.String(expr))
			}
			return heap.Cadr(expr), nil

		case isTagged(expr, vm.SymSet):
			if heap.ListLen(expr) != 3 {
				return nil, fmt.Errorf("bad set! form: %s", printer.String(expr))
			}
			val, err := Eval(vm, heap.Caddr(expr), environment)
			if err != nil {
				return nil, err
			}
			if err := env.Set(vm, heap.Cadr(expr), val, environment); err != nil {
				return nil, err
			}
			return vm.SymOk, nil

		case isTagged(expr, vm.SymDefine):
			sym, valExpr, err := desugarDefine(vm, expr)
			if err != nil {
				return nil, err
			}
			val, err := Eval(vm, valExpr, environment)
			if err != nil {
				return nil, err
			}
			env.Define(vm, sym, val, environment)
			return vm.SymOk, nil

		case isTagged(expr, vm.SymIf):
			if n := heap.ListLen(expr); n != 3 && n != 4 {
				return nil, fmt.Errorf("bad if form: %s", printer.String(expr))
			}
			pred, err := Eval(vm, heap.Cadr(expr), environment)
			if err != nil {
				return nil, err
			}
			if pred == vm.True {
				expr = heap.Caddr(expr)
				continue
			}
			alt := heap.Cdddr(expr)
			if heap.IsCell(alt) {
				expr = alt.Car
				continue
			}
			return vm.False, nil

		case isTagged(expr, vm.SymCond):
			next, err := expandCondClauses(vm, expr.Cdr)
			if err != nil {
				return nil, err
			}
			expr = next
			continue

		case isTagged(expr, vm.SymLet):
			next, err := desugarLet(vm, expr)
			if err != nil {
				return nil, err
			}
			expr = next
			continue

		case isTagged(expr, vm.SymAnd):
			operands := expr.Cdr
			if heap.IsNil(operands) {
				return vm.True, nil
			}
			for heap.IsCell(operands.Cdr) {
				v, err := Eval(vm, operands.Car, environment)
				if err != nil {
					return nil, err
				}
				if v == vm.False {
					return vm.False, nil
				}
				operands = operands.Cdr
			}
			expr = operands.Car
			continue

		case isTagged(expr, vm.SymOr):
			operands := expr.Cdr
			if heap.IsNil(operands) {
				return vm.False, nil
			}
			for heap.IsCell(operands.Cdr) {
				v, err := Eval(vm, operands.Car, environment)
				if err != nil {
					return nil, err
				}
				if v != vm.False {
					return v, nil
				}
				operands = operands.Cdr
			}
			expr = operands.Car
			continue

		case isTagged(expr, vm.SymLambda):
			if heap.ListLen(expr) < 2 {
				return nil, fmt.Errorf("bad lambda form: %s", printer.String(expr))
			}
			params := heap.Cadr(expr)
			body := heap.Cddr(expr)
			return vm.NewCompProc(params, body, environment), nil

		case isTagged(expr, vm.SymBegin):
			seq := expr.Cdr
			if heap.IsNil(seq) {
				return vm.SymOk, nil
			}
			for heap.IsCell(seq.Cdr) {
				if _, err := Eval(vm, seq.Car, environment); err != nil {
					return nil, err
				}
				seq = seq.Cdr
			}
			expr = seq.Car
			continue

		default:
			fn, err := Eval(vm, expr.Car, environment)
			if err != nil {
				return nil, err
			}
			fnRoot := vm.PushRoot(&fn)
			args, err := evalList(vm, expr.Cdr, environment)
			fnRoot.Pop()
			if err != nil {
				return nil, err
			}

			argsRoot := vm.PushRoot(&fn, &args)
			result, tail, err := dispatch(vm, fn, args, &expr, &environment)
			argsRoot.Pop()
			if err != nil {
				return nil, err
			}
			if tail {
				continue
			}
			return result, nil
		}
	}
}

func isSelfEvaluating(v *heap.Value) bool {
	return heap.IsBool(v) || heap.IsFixnum(v) || heap.IsChar(v) || heap.IsString(v)
}

// isTagged reports whether v is a non-empty list whose head is tag,
// compared by symbol identity (symbols are interned, so no string
// comparison is needed). Special forms are matched before any variable
// lookup, so a local binding of a keyword's name does not shadow it.
func isTagged(v *heap.Value, tag *heap.Value) bool {
	return heap.IsCell(v) && v.Car == tag
}

// desugarDefine returns the bound symbol and the (unevaluated) value
// expression for both `(define v e)` and the shorthand
// `(define (f p...) body...)`.
func desugarDefine(vm *heap.VM, expr *heap.Value) (*heap.Value, *heap.Value, error) {
	if heap.ListLen(expr) < 3 {
		return nil, nil, fmt.Errorf("bad define form: %s", printer.String(expr))
	}
	target := heap.Cadr(expr)
	if heap.IsCell(target) {
		if !heap.IsSymbol(target.Car) {
			return nil, nil, fmt.Errorf("bad define form: %s", printer.String(expr))
		}
		name := target.Car
		params := target.Cdr
		body := heap.Cddr(expr)
		lambdaRoot := vm.PushRoot(&params, &body)
		lambdaExpr := vm.NewCell(vm.SymLambda, vm.NewCell(params, body))
		lambdaRoot.Pop()
		return name, lambdaExpr, nil
	}
	if !heap.IsSymbol(target) {
		return nil, nil, fmt.Errorf("bad define form: %s", printer.String(expr))
	}
	if heap.ListLen(expr) != 3 {
		return nil, nil, fmt.Errorf("bad define form: %s", printer.String(expr))
	}
	return target, heap.Caddr(expr), nil
}

// expandCondClauses desugars a `cond` clause list into nested `if`
// expressions.
func expandCondClauses(vm *heap.VM, clauses *heap.Value) (*heap.Value, error) {
	if heap.IsNil(clauses) {
		return vm.False, nil
	}
	if !heap.IsCell(clauses) {
		return nil, fmt.Errorf("bad cond form")
	}
	clause := clauses.Car
	rest := clauses.Cdr
	if !heap.IsCell(clause) {
		return nil, fmt.Errorf("bad cond clause: %s", printer.String(clause))
	}
	pred := clause.Car
	actions := clause.Cdr

	if pred == vm.SymElse {
		if !heap.IsNil(rest) {
			return nil, fmt.Errorf("else clause must be last in cond")
		}
		return makeBegin(vm, actions), nil
	}

	restRoot := vm.PushRoot(&pred, &actions)
	restExpr, err := expandCondClauses(vm, rest)
	restRoot.Pop()
	if err != nil {
		return nil, err
	}

	root := vm.PushRoot(&pred, &actions, &restExpr)
	defer root.Pop()
	conseq := makeBegin(vm, actions)
	return makeIf(vm, pred, conseq, restExpr), nil
}

func makeIf(vm *heap.VM, pred, conseq, alt *heap.Value) *heap.Value {
	root := vm.PushRoot(&pred, &conseq, &alt)
	defer root.Pop()
	tail := vm.NewCell(alt, vm.Nil)
	tail = vm.NewCell(conseq, tail)
	tail = vm.NewCell(pred, tail)
	return vm.NewCell(vm.SymIf, tail)
}

// makeBegin wraps a body list in `(begin ...)` unless it is already a
// single expression, in which case it is returned unwrapped.
func makeBegin(vm *heap.VM, body *heap.Value) *heap.Value {
	if heap.IsCell(body) && heap.IsNil(body.Cdr) {
		return body.Car
	}
	return vm.NewCell(vm.SymBegin, body)
}

// desugarLet rewrites `(let ((v e)...) body...)` into
// `((lambda (v...) body...) e...)`.
func desugarLet(vm *heap.VM, expr *heap.Value) (*heap.Value, error) {
	if heap.ListLen(expr) < 2 {
		return nil, fmt.Errorf("bad let form: %s", printer.String(expr))
	}
	bindings := heap.Cadr(expr)
	body := heap.Cddr(expr)

	var params, args []*heap.Value
	b := bindings
	for heap.IsCell(b) {
		bind := b.Car
		if !heap.IsCell(bind) || !heap.IsCell(bind.Cdr) {
			return nil, fmt.Errorf("bad let binding")
		}
		params = append(params, bind.Car)
		args = append(args, bind.Cdr.Car)
		b = b.Cdr
	}

	paramsList := sliceToList(vm, params)
	listRoot := vm.PushRoot(&paramsList, &body)
	argsList := sliceToList(vm, args)
	listRoot.Pop()

	root := vm.PushRoot(&paramsList, &body, &argsList)
	defer root.Pop()
	lambdaExpr := vm.NewCell(vm.SymLambda, vm.NewCell(paramsList, body))
	lambdaRoot := vm.PushRoot(&lambdaExpr)
	defer lambdaRoot.Pop()
	return vm.NewCell(lambdaExpr, argsList), nil
}

func sliceToList(vm *heap.VM, items []*heap.Value) *heap.Value {
	result := vm.Nil
	resultRoot := vm.PushRoot(&result)
	defer resultRoot.Pop()
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		itemRoot := vm.PushRoot(&item)
		result = vm.NewCell(item, result)
		itemRoot.Pop()
	}
	return result
}

// evalList evaluates each expression in list, in order, producing a
// freshly allocated list of the results. Each intermediate result is
// rooted locally so it survives a collection triggered by evaluating
// the rest of the list.
func evalList(vm *heap.VM, list, environment *heap.Value) (*heap.Value, error) {
	if !heap.IsCell(list) {
		return vm.Nil, nil
	}
	carVal, err := Eval(vm, list.Car, environment)
	if err != nil {
		return nil, err
	}
	carRoot := vm.PushRoot(&carVal)
	restVal, err := evalList(vm, list.Cdr, environment)
	carRoot.Pop()
	if err != nil {
		return nil, err
	}
	root := vm.PushRoot(&carVal, &restVal)
	defer root.Pop()
	return vm.NewCell(carVal, restVal), nil
}

// dispatch applies fn to the already-evaluated args. If fn is `eval` or
// a compound procedure, it sets *expr/*environment for the caller to
// continue the trampoline in tail position and returns tail=true;
// `apply` splices its arguments and dispatches again on its target.
// Otherwise it returns the final result.
func dispatch(vm *heap.VM, fn, args *heap.Value, expr, environment **heap.Value) (*heap.Value, bool, error) {
	root := vm.PushRoot(&fn, &args)
	defer root.Pop()

	switch {
	case fn == vm.EvalProc:
		if heap.ListLen(args) != 2 {
			return nil, false, fmt.Errorf("arity: eval expects 2 arguments, got %d", heap.ListLen(args))
		}
		*expr = args.Car
		*environment = heap.Cadr(args)
		return nil, true, nil

	case fn == vm.ApplyProc:
		if heap.ListLen(args) < 1 {
			return nil, false, fmt.Errorf("arity: apply expects at least 1 argument")
		}
		target := args.Car
		spliced, err := spliceApplyArgs(vm, args.Cdr)
		if err != nil {
			return nil, false, err
		}
		return dispatch(vm, target, spliced, expr, environment)

	case heap.IsPrimProc(fn):
		v, err := fn.Prim(vm, args)
		return v, false, err

	case heap.IsCompProc(fn):
		nparams, nargs := heap.ListLen(fn.Params), heap.ListLen(args)
		if nparams != nargs {
			return nil, false, fmt.Errorf("arity: procedure expects %d arguments, got %d", nparams, nargs)
		}
		newEnv := env.Extend(vm, fn.Params, args, fn.Env)
		envRoot := vm.PushRoot(&newEnv)
		*expr = vm.NewCell(vm.SymBegin, fn.Body)
		envRoot.Pop()
		*environment = newEnv
		return nil, true, nil

	default:
		return nil, false, fmt.Errorf("the object %s is not applicable", printer.String(fn))
	}
}

// spliceApplyArgs builds apply's actual argument list: every element of
// rest except the last, followed by the elements of the last (which
// must be a proper list).
func spliceApplyArgs(vm *heap.VM, rest *heap.Value) (*heap.Value, error) {
	if heap.IsNil(rest) {
		return nil, fmt.Errorf("arity: apply expects a final list argument")
	}
	elems := heap.ListToSlice(rest)
	last := elems[len(elems)-1]
	if !heap.IsNil(last) && !heap.IsCell(last) {
		return nil, fmt.Errorf("apply: last argument must be a list")
	}
	preceding := elems[:len(elems)-1]

	result := last
	resultRoot := vm.PushRoot(&result)
	defer resultRoot.Pop()
	for i := len(preceding) - 1; i >= 0; i-- {
		item := preceding[i]
		itemRoot := vm.PushRoot(&item, &result)
		result = vm.NewCell(item, result)
		itemRoot.Pop()
	}
	return result, nil
}
