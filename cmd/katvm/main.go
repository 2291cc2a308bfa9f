// Command katvm is the REPL entry point: an optional source file loaded
// before the prompt loop starts, then a read-eval-print loop over
// standard input.
package main

import (
	"bufio"
	"fmt"
	"os"

	"katvm/pkg/env"
	"katvm/pkg/eval"
	"katvm/pkg/heap"
	"katvm/pkg/printer"
	"katvm/pkg/reader"
)

func main() {
	os.Exit(run())
}

func run() int {
	vm := heap.NewVM()
	vm.Init()
	eval.Register(vm)

	if len(os.Args) > 2 {
		fmt.Fprintln(os.Stderr, "usage: katvm [file]")
		return 1
	}
	if len(os.Args) == 2 {
		sym := vm.Intern("load")
		loadProc, err := env.Lookup(vm, sym, vm.GlobalEnv)
		if err != nil {
			fmt.Fprintln(os.Stderr, "katvm: internal error: load is unbound")
			return 1
		}
		filename := vm.NewString(os.Args[1])
		arglist := vm.NewCell(filename, vm.Nil)
		if _, err := loadProc.Prim(vm, arglist); err != nil {
			fmt.Fprintf(os.Stderr, "katvm: %s\n", err)
			return 1
		}
	}

	repl(vm, os.Stdin, os.Stdout)
	return 0
}

// repl runs a `kat> ` prompt, one read, one eval, one printed result
// with a trailing newline per iteration. On a recoverable error, the
// message is written and the remainder of the input line is discarded
// before the next prompt; clean end of input ends the loop.
func repl(vm *heap.VM, in *os.File, out *os.File) {
	w := bufio.NewWriter(out)
	defer w.Flush()
	rd := reader.New(vm, in)

	for {
		fmt.Fprint(w, "kat> ")
		w.Flush()

		form, err := rd.Read()
		if err != nil {
			fmt.Fprintf(w, "error: %s\n", err)
			rd.DiscardLine()
			w.Flush()
			continue
		}
		if heap.IsEof(form) {
			return
		}

		result, err := eval.Eval(vm, form, vm.GlobalEnv)
		if err != nil {
			fmt.Fprintf(w, "error: %s\n", err)
			rd.DiscardLine()
			w.Flush()
			continue
		}

		printer.Fprint(w, result)
		fmt.Fprintln(w)
		w.Flush()
	}
}
