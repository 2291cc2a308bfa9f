package heap

import (
	"bufio"
	"io"
)

// portReader buffers an input port so PeekByte can look one byte ahead
// without consuming it, and so the reader package can pull bytes one at
// a time.
type portReader struct {
	r      *bufio.Reader
	closer io.Closer
}

type portWriter struct {
	w      io.Writer
	closer io.Closer
}

// NewInputPort wraps r as an owned, closable input port Value.
func (vm *VM) NewInputPort(r io.Reader) *Value {
	closer, _ := r.(io.Closer)
	p := &Port{reader: &portReader{r: bufio.NewReader(r), closer: closer}}
	return vm.newPort(TagInputPort, p)
}

// NewOutputPort wraps w as an owned, closable output port Value.
func (vm *VM) NewOutputPort(w io.Writer) *Value {
	closer, _ := w.(io.Closer)
	p := &Port{writer: &portWriter{w: w, closer: closer}}
	return vm.newPort(TagOutputPort, p)
}

// Closed reports whether the port's underlying stream has been closed.
func (v *Value) Closed() bool {
	return v.Port == nil || v.Port.closed
}

// Close detaches the port's stream. The Value remains live until swept.
func (v *Value) Close() error {
	return v.Port.close()
}

func (p *Port) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	var err error
	if p.reader != nil && p.reader.closer != nil {
		err = p.reader.closer.Close()
	}
	if p.writer != nil && p.writer.closer != nil {
		if werr := p.writer.closer.Close(); err == nil {
			err = werr
		}
	}
	return err
}

// ReadByte reads the next byte from an input port, or reports io.EOF.
func (v *Value) ReadByte() (byte, error) {
	if v.Closed() {
		return 0, io.ErrClosedPipe
	}
	return v.Port.reader.r.ReadByte()
}

// PeekByte looks at the next byte without consuming it.
func (v *Value) PeekByte() (byte, error) {
	if v.Closed() {
		return 0, io.ErrClosedPipe
	}
	b, err := v.Port.reader.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// UnreadByte pushes the most recently read byte back onto the port.
func (v *Value) UnreadByte() error {
	return v.Port.reader.r.UnreadByte()
}

// BufReader exposes the port's underlying buffered reader, so a fresh
// reader.Reader can be built on top of it per call while still seeing
// the same stream position (and look-ahead buffer) as the previous
// call, since *bufio.Reader carries its own position.
func (v *Value) BufReader() *bufio.Reader {
	return v.Port.reader.r
}

// WriteString writes s to an output port.
func (v *Value) WriteString(s string) error {
	if v.Closed() {
		return io.ErrClosedPipe
	}
	_, err := io.WriteString(v.Port.writer.w, s)
	return err
}
