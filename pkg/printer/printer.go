// Package printer writes Values in Scheme-conformant external form,
// the inverse of the reader for every textually representable value.
package printer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"katvm/pkg/heap"
)

// Fprint writes v's external representation to w.
func Fprint(w io.Writer, v *heap.Value) error {
	_, err := io.WriteString(w, String(v))
	return err
}

// String returns v's external representation.
func String(v *heap.Value) string {
	var b strings.Builder
	write(&b, v)
	return b.String()
}

func write(b *strings.Builder, v *heap.Value) {
	switch v.Tag {
	case heap.TagFixnum:
		b.WriteString(strconv.FormatInt(v.Int, 10))
	case heap.TagBool:
		if v.Bool {
			b.WriteString("#t")
		} else {
			b.WriteString("#f")
		}
	case heap.TagChar:
		writeChar(b, byte(v.Int))
	case heap.TagString:
		writeString(b, v.Str)
	case heap.TagSymbol:
		b.WriteString(v.Str)
	case heap.TagNil:
		b.WriteString("()")
	case heap.TagCell:
		b.WriteByte('(')
		writeCell(b, v)
		b.WriteByte(')')
	case heap.TagPrimProc:
		b.WriteString("#<primitive-procedure>")
	case heap.TagCompProc:
		b.WriteString("#<compound-procedure>")
	case heap.TagInputPort:
		b.WriteString("#<input-port>")
	case heap.TagOutputPort:
		b.WriteString("#<output-port>")
	case heap.TagEof:
		b.WriteString("#<eof>")
	default:
		fmt.Fprintf(b, "#<unknown:%s>", v.Tag)
	}
}

func writeCell(b *strings.Builder, v *heap.Value) {
	write(b, v.Car)
	rest := v.Cdr
	if heap.IsCell(rest) {
		b.WriteByte(' ')
		writeCell(b, rest)
	} else if !heap.IsNil(rest) {
		b.WriteString(" . ")
		write(b, rest)
	}
}

func writeChar(b *strings.Builder, c byte) {
	switch c {
	case '\n':
		b.WriteString("#\\newline")
	case ' ':
		b.WriteString("#\\space")
	case '\t':
		b.WriteString("#\\tab")
	default:
		b.WriteString("#\\")
		b.WriteByte(c)
	}
}

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			b.WriteString("\\n")
		case '\\':
			b.WriteString("\\\\")
		case '"':
			b.WriteString("\\\"")
		default:
			b.WriteByte(s[i])
		}
	}
	b.WriteByte('"')
}
