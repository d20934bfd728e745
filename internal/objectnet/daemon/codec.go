// Package daemon implements the local control plane described in
// section 4.G: a length-prefixed framed request/response protocol
// over a Unix domain socket, dispatched against a node manager.
package daemon

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
)

// writeFrame writes payload prefixed with its big-endian uint32
// length, the same framing convention used by the object-transfer and
// query stream protocols.
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return buf, nil
}

// bodyWriter/bodyReader are the daemon package's own copy of the
// deterministic record codec used throughout the wire layer (see
// envelope/codec.go and swarm/codec.go), since request/response
// payloads here are daemon-local shapes, not registry-dispatched
// envelope bodies.
type bodyWriter struct {
	buf []byte
}

func (w *bodyWriter) uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *bodyWriter) bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *bodyWriter) bytes(b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w.buf = append(w.buf, lenBuf[:]...)
	w.buf = append(w.buf, b...)
}

func (w *bodyWriter) string(s string) {
	w.bytes([]byte(s))
}

func (w *bodyWriter) stringSlice(ss []string) {
	w.uint8(uint8(len(ss)))
	for _, s := range ss {
		w.string(s)
	}
}

type bodyReader struct {
	buf []byte
}

func (r *bodyReader) uint8() (uint8, error) {
	if len(r.buf) < 1 {
		return 0, objerr.ErrDecode
	}
	v := r.buf[0]
	r.buf = r.buf[1:]
	return v, nil
}

func (r *bodyReader) bool() (bool, error) {
	v, err := r.uint8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (r *bodyReader) bytes() ([]byte, error) {
	if len(r.buf) < 4 {
		return nil, objerr.ErrDecode
	}
	n := binary.BigEndian.Uint32(r.buf[:4])
	rest := r.buf[4:]
	if uint32(len(rest)) < n {
		return nil, objerr.ErrDecode
	}
	out := append([]byte(nil), rest[:n]...)
	r.buf = rest[n:]
	return out, nil
}

func (r *bodyReader) string() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *bodyReader) stringSlice() ([]string, error) {
	n, err := r.uint8()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]string, 0, n)
	for i := uint8(0); i < n; i++ {
		s, err := r.string()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *bodyReader) done() error {
	if len(r.buf) != 0 {
		return fmt.Errorf("trailing bytes after decode: %w", objerr.ErrDecode)
	}
	return nil
}
