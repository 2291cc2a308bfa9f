// Package reader implements a lexer/parser that consumes bytes from a
// byte-oriented input producer and allocates Values directly on the
// VM's heap.
package reader

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"katvm/pkg/heap"
)

// Reader reads successive top-level S-expressions from an underlying
// byte stream, allocating their values on vm's heap.
type Reader struct {
	vm *heap.VM
	r  *bufio.Reader
}

// New wraps r as a Reader that allocates on vm.
func New(vm *heap.VM, r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{vm: vm, r: br}
}

// DiscardLine consumes up to and including the next newline, or end of
// input. The REPL calls this after a recoverable read error to
// resynchronize on the next prompt.
func (rd *Reader) DiscardLine() {
	for {
		b, err := rd.r.ReadByte()
		if err != nil || b == '\n' {
			return
		}
	}
}

func isDelimiter(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '(', ')', '"', ';':
		return true
	default:
		return false
	}
}

func isInitial(b byte) bool {
	if b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' {
		return true
	}
	switch b {
	case '*', '/', '>', '<', '=', '?', '!':
		return true
	default:
		return false
	}
}

func isSymbolContinue(b byte) bool {
	return isInitial(b) || isDigit(b) || b == '+' || b == '-'
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// Read parses and returns one top-level Value, or vm.Eof if the stream
// is exhausted before any token starts. A malformed token returns a
// non-nil error describing the lex/parse failure.
func (rd *Reader) Read() (*heap.Value, error) {
	if err := rd.skipAtmosphere(); err != nil {
		return nil, err
	}
	b, err := rd.r.ReadByte()
	if err == io.EOF {
		return rd.vm.Eof, nil
	}
	if err != nil {
		return nil, err
	}
	return rd.readFrom(b)
}

// skipAtmosphere consumes whitespace and `;`-to-newline comments.
func (rd *Reader) skipAtmosphere() error {
	for {
		b, err := rd.r.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
			continue
		case b == ';':
			for {
				c, err := rd.r.ReadByte()
				if err == io.EOF || c == '\n' {
					break
				}
				if err != nil {
					return err
				}
			}
			continue
		default:
			return rd.r.UnreadByte()
		}
	}
}

// readFrom parses the value that starts with the already-consumed byte
// b.
func (rd *Reader) readFrom(b byte) (*heap.Value, error) {
	switch {
	case b == '#':
		return rd.readHash()
	case b == '"':
		return rd.readString()
	case b == '(':
		return rd.readList()
	case b == ')':
		return nil, errors.New("unexpected ')'")
	case b == '\'':
		return rd.readQuoted()
	case b == '-' && rd.peekIsDigit():
		return rd.readNumber(b)
	case isDigit(b):
		return rd.readNumber(b)
	case isInitial(b) || b == '+' || b == '-':
		return rd.readSymbolOrSign(b)
	default:
		return nil, fmt.Errorf("unexpected character %q", b)
	}
}

func (rd *Reader) peekIsDigit() bool {
	b, err := rd.r.Peek(1)
	return err == nil && isDigit(b[0])
}

func (rd *Reader) readQuoted() (*heap.Value, error) {
	v, err := rd.Read()
	if err != nil {
		return nil, err
	}
	if heap.IsEof(v) {
		return nil, errors.New("unexpected end of input after '\\''")
	}
	root := rd.vm.PushRoot(&v)
	defer root.Pop()
	rest := rd.vm.NewCell(v, rd.vm.Nil)
	return rd.vm.NewCell(rd.vm.SymQuote, rest), nil
}

func (rd *Reader) readHash() (*heap.Value, error) {
	b, err := rd.r.ReadByte()
	if err != nil {
		return nil, errors.New("unterminated '#' literal")
	}
	switch b {
	case 't':
		return rd.vm.True, nil
	case 'f':
		return rd.vm.False, nil
	case '\\':
		return rd.readCharLiteral()
	default:
		return nil, fmt.Errorf("unknown literal #%c", b)
	}
}

func (rd *Reader) readCharLiteral() (*heap.Value, error) {
	b, err := rd.r.ReadByte()
	if err != nil {
		return nil, errors.New("incomplete character literal")
	}
	named := func(rest string, value byte) (*heap.Value, error) {
		for i := 0; i < len(rest); i++ {
			c, err := rd.r.ReadByte()
			if err != nil || c != rest[i] {
				return nil, fmt.Errorf("bad character literal")
			}
		}
		if err := rd.expectDelimiterAhead(); err != nil {
			return nil, err
		}
		return rd.vm.NewChar(value), nil
	}
	switch b {
	case 's':
		if rd.peekByteIs('p') {
			return named("pace", ' ')
		}
	case 'n':
		if rd.peekByteIs('e') {
			return named("ewline", '\n')
		}
	case 't':
		if rd.peekByteIs('a') {
			return named("ab", '\t')
		}
	}
	if err := rd.expectDelimiterAhead(); err != nil {
		return nil, err
	}
	return rd.vm.NewChar(b), nil
}

func (rd *Reader) peekByteIs(want byte) bool {
	b, err := rd.r.Peek(1)
	return err == nil && b[0] == want
}

// expectDelimiterAhead requires the next byte (not consumed) to be a
// delimiter or end of input.
func (rd *Reader) expectDelimiterAhead() error {
	b, err := rd.r.Peek(1)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	if !isDelimiter(b[0]) {
		return fmt.Errorf("character not followed by delimiter")
	}
	return nil
}

func (rd *Reader) readNumber(first byte) (*heap.Value, error) {
	var buf []byte
	buf = append(buf, first)
	for {
		b, err := rd.r.Peek(1)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !isDigit(b[0]) {
			break
		}
		rd.r.ReadByte()
		buf = append(buf, b[0])
	}
	if err := rd.expectDelimiterAhead(); err != nil {
		return nil, errors.New("number not followed by delimiter")
	}
	n, err := parseFixnum(buf)
	if err != nil {
		return nil, err
	}
	return rd.vm.NewFixnum(n), nil
}

func (rd *Reader) readSymbolOrSign(first byte) (*heap.Value, error) {
	if (first == '+' || first == '-') && rd.atDelimiterAhead() {
		return rd.vm.Intern(string(first)), nil
	}
	var buf []byte
	buf = append(buf, first)
	for {
		b, err := rd.r.Peek(1)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !isSymbolContinue(b[0]) {
			break
		}
		rd.r.ReadByte()
		buf = append(buf, b[0])
	}
	if err := rd.expectDelimiterAhead(); err != nil {
		return nil, errors.New("symbol not followed by delimiter")
	}
	return rd.vm.Intern(string(buf)), nil
}

func (rd *Reader) atDelimiterAhead() bool {
	b, err := rd.r.Peek(1)
	if err == io.EOF {
		return true
	}
	return err == nil && isDelimiter(b[0])
}

func (rd *Reader) readString() (*heap.Value, error) {
	var buf []byte
	for {
		b, err := rd.r.ReadByte()
		if err != nil {
			return nil, errors.New("unterminated string")
		}
		if b == '"' {
			return rd.vm.NewString(string(buf)), nil
		}
		if b == '\\' {
			esc, err := rd.r.ReadByte()
			if err != nil {
				return nil, errors.New("unterminated string")
			}
			switch esc {
			case 'n':
				buf = append(buf, '\n')
			case '\\':
				buf = append(buf, '\\')
			case '"':
				buf = append(buf, '"')
			default:
				return nil, fmt.Errorf("unknown string escape '\\%c'", esc)
			}
			continue
		}
		buf = append(buf, b)
	}
}

// readList parses the contents of a list after the opening '(' has
// already been consumed: zero or more expressions, an optional dotted
// tail, then a closing ')'.
func (rd *Reader) readList() (*heap.Value, error) {
	if err := rd.skipAtmosphere(); err != nil {
		return nil, err
	}
	b, err := rd.r.ReadByte()
	if err != nil {
		return nil, errors.New("missing closing ')'")
	}
	if b == ')' {
		return rd.vm.Nil, nil
	}
	rd.r.UnreadByte()

	car, err := rd.readExprByte()
	if err != nil {
		return nil, err
	}
	carRoot := rd.vm.PushRoot(&car)
	defer carRoot.Pop()

	if err := rd.skipAtmosphere(); err != nil {
		return nil, err
	}
	b, err = rd.r.ReadByte()
	if err != nil {
		return nil, errors.New("missing closing ')'")
	}
	if b == '.' {
		if !rd.atDelimiterAhead() {
			return nil, errors.New("dot not followed by delimiter")
		}
		cdr, err := rd.Read()
		if err != nil {
			return nil, err
		}
		if heap.IsEof(cdr) {
			return nil, errors.New("missing closing ')'")
		}
		cdrRoot := rd.vm.PushRoot(&cdr)
		defer cdrRoot.Pop()
		if err := rd.skipAtmosphere(); err != nil {
			return nil, err
		}
		b, err = rd.r.ReadByte()
		if err != nil || b != ')' {
			return nil, errors.New("missing closing ')'")
		}
		return rd.vm.NewCell(car, cdr), nil
	}
	rd.r.UnreadByte()
	cdr, err := rd.readList()
	if err != nil {
		return nil, err
	}
	cdrRoot := rd.vm.PushRoot(&cdr)
	defer cdrRoot.Pop()
	return rd.vm.NewCell(car, cdr), nil
}

// readExprByte reads the next byte and parses the expression it starts.
func (rd *Reader) readExprByte() (*heap.Value, error) {
	b, err := rd.r.ReadByte()
	if err != nil {
		return nil, errors.New("missing closing ')'")
	}
	return rd.readFrom(b)
}

func parseFixnum(buf []byte) (int64, error) {
	neg := false
	i := 0
	if buf[0] == '-' {
		neg = true
		i = 1
	}
	var n int64
	for ; i < len(buf); i++ {
		n = n*10 + int64(buf[i]-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}
