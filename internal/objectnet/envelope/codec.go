package envelope

import (
	"encoding/binary"
	"fmt"

	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
)

// bodyWriter accumulates a record's fields in fixed order, length-prefixing
// every variable-length field. Maps are never used at the wire level.
type bodyWriter struct {
	buf []byte
}

func (w *bodyWriter) bytes(b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w.buf = append(w.buf, lenBuf[:]...)
	w.buf = append(w.buf, b...)
}

func (w *bodyWriter) hash(h Hash) {
	w.buf = append(w.buf, h[:]...)
}

func (w *bodyWriter) optionalHash(h *Hash) {
	if h == nil {
		w.buf = append(w.buf, 0)
		return
	}
	w.buf = append(w.buf, 1)
	w.hash(*h)
}

func (w *bodyWriter) string(s string) {
	w.bytes([]byte(s))
}

func (w *bodyWriter) uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *bodyWriter) envelope(e Envelope) {
	w.bytes(Serialize(e))
}

type bodyReader struct {
	buf []byte
}

func (r *bodyReader) bytes() ([]byte, error) {
	if len(r.buf) < 4 {
		return nil, objerr.ErrDecode
	}
	n := binary.BigEndian.Uint32(r.buf[:4])
	r.buf = r.buf[4:]
	if uint32(len(r.buf)) < n {
		return nil, objerr.ErrDecode
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out, nil
}

func (r *bodyReader) hash() (Hash, error) {
	if len(r.buf) < 32 {
		return Hash{}, objerr.ErrDecode
	}
	var h Hash
	copy(h[:], r.buf[:32])
	r.buf = r.buf[32:]
	return h, nil
}

func (r *bodyReader) optionalHash() (*Hash, error) {
	if len(r.buf) < 1 {
		return nil, objerr.ErrDecode
	}
	present := r.buf[0]
	r.buf = r.buf[1:]
	if present == 0 {
		return nil, nil
	}
	h, err := r.hash()
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *bodyReader) string() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *bodyReader) uint32() (uint32, error) {
	if len(r.buf) < 4 {
		return 0, objerr.ErrDecode
	}
	v := binary.BigEndian.Uint32(r.buf[:4])
	r.buf = r.buf[4:]
	return v, nil
}

func (r *bodyReader) envelope() (Envelope, error) {
	raw, err := r.bytes()
	if err != nil {
		return Envelope{}, err
	}
	env, rest, err := Deserialize(raw)
	if err != nil {
		return Envelope{}, err
	}
	if len(rest) != 0 {
		return Envelope{}, fmt.Errorf("decode nested envelope: trailing bytes: %w", objerr.ErrDecode)
	}
	return env, nil
}

func (r *bodyReader) done() error {
	if len(r.buf) != 0 {
		return fmt.Errorf("decode: trailing bytes: %w", objerr.ErrDecode)
	}
	return nil
}
