package heap

// Interner maps textual keys to a single canonical Value. Two lookups
// with the same key return the same Value, so equality of interned
// strings/symbols reduces to pointer identity throughout the evaluator.
//
// The Interner's own table is itself a GC root: every Value it holds
// must survive collection even if nothing else on the heap references
// it, so a symbol or string stays canonical for the VM's lifetime.
type Interner struct {
	tag     Tag
	entries map[string]*Value
}

func newInterner(tag Tag) *Interner {
	return &Interner{tag: tag, entries: make(map[string]*Value)}
}

// intern returns the canonical Value for key, allocating one via vm if
// this is the first time key has been seen.
func (in *Interner) intern(vm *VM, key string) *Value {
	if v, ok := in.entries[key]; ok {
		return v
	}
	v := vm.alloc(in.tag)
	v.Str = key
	in.entries[key] = v
	return v
}

func (in *Interner) markRoots(vm *VM) {
	for _, v := range in.entries {
		vm.mark(v)
	}
}

// NewString returns the canonical Value for the given string, interning
// it if this is the first occurrence.
func (vm *VM) NewString(s string) *Value { return vm.strings.intern(vm, s) }

// Intern returns the canonical symbol Value for the given name.
func (vm *VM) Intern(name string) *Value { return vm.symbols.intern(vm, name) }
