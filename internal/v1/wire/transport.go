package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"
)

// recordTerminator is the two-byte sequence that ends every record on the
// wire. Writes put it into the same buffered writer as the record and flush
// both together under writeMu, so records from concurrent callers never
// interleave.
var recordTerminator = []byte("\r\n")

// ErrMalformedRecord wraps a TransportReadError caused by syntactically
// invalid JSON or an unrecognized tag. The caller should log it and keep
// reading; the connection stays open.
var ErrMalformedRecord = fmt.Errorf("wire: malformed record")

// Conn is the minimal connection surface the transport needs; satisfied by
// net.Conn in production and by an in-memory pipe in tests.
type Conn interface {
	io.Reader
	io.Writer
}

// Transport frames JSON records over a byte stream, one per line.
// ReadCommand is intended for a single reader goroutine; WriteEvent
// serializes concurrent callers behind writeMu.
type Transport struct {
	r *bufio.Reader

	writeMu sync.Mutex
	w       *bufio.Writer
}

// NewTransport wraps conn with buffered line framing.
func NewTransport(conn Conn) *Transport {
	return &Transport{
		r: bufio.NewReader(conn),
		w: bufio.NewWriter(conn),
	}
}

// ReadCommand blocks for the next framed record and decodes it as a
// Command. It returns io.EOF when the peer closes the connection. A
// syntactically malformed or unknown-tag record yields ErrMalformedRecord
// wrapping the underlying cause; the caller should log and call
// ReadCommand again rather than tearing down the session.
func (t *Transport) ReadCommand() (Command, error) {
	line, err := t.r.ReadBytes('\n')
	if err != nil {
		if len(line) == 0 {
			return Command{}, err
		}
		// Fall through: treat a trailing partial line before EOF as
		// malformed rather than silently dropping it.
	}
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		if err != nil {
			return Command{}, err
		}
		return t.ReadCommand()
	}

	cmd, decodeErr := DecodeCommand(line)
	if decodeErr != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedRecord, decodeErr)
	}
	return cmd, nil
}

// WriteEvent encodes evt and writes it as one framed record. Per record it
// buffers the encoded JSON and the terminator, then flushes, all while
// holding writeMu, so two records can never interleave on the connection.
func (t *Transport) WriteEvent(evt Event) error {
	b, err := EncodeEvent(evt)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.w.Write(b); err != nil {
		return fmt.Errorf("wire: write event: %w", err)
	}
	if _, err := t.w.Write(recordTerminator); err != nil {
		return fmt.Errorf("wire: write event: %w", err)
	}
	if err := t.w.Flush(); err != nil {
		return fmt.Errorf("wire: write event: %w", err)
	}
	return nil
}
