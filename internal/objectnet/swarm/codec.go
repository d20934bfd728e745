package swarm

import (
	"encoding/binary"
	"fmt"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
)

// bodyWriter/bodyReader mirror the envelope package's record codec for
// the swarm's own wire messages (stream protocol request/response
// frames), which are not registry-dispatched objects and so are not
// expressed as envelope.Encodable values.
type bodyWriter struct {
	buf []byte
}

func (w *bodyWriter) hash(h envelope.Hash) {
	w.buf = append(w.buf, h[:]...)
}

func (w *bodyWriter) uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *bodyWriter) envelope(e envelope.Envelope) {
	raw := envelope.Serialize(e)
	w.uint32(uint32(len(raw)))
	w.buf = append(w.buf, raw...)
}

type bodyReader struct {
	buf []byte
}

func (r *bodyReader) hash() (envelope.Hash, error) {
	if len(r.buf) < 32 {
		return envelope.Hash{}, objerr.ErrDecode
	}
	var h envelope.Hash
	copy(h[:], r.buf[:32])
	r.buf = r.buf[32:]
	return h, nil
}

func (r *bodyReader) uint32() (uint32, error) {
	if len(r.buf) < 4 {
		return 0, objerr.ErrDecode
	}
	v := binary.BigEndian.Uint32(r.buf[:4])
	r.buf = r.buf[4:]
	return v, nil
}

func (r *bodyReader) envelope() (envelope.Envelope, error) {
	n, err := r.uint32()
	if err != nil {
		return envelope.Envelope{}, err
	}
	if uint32(len(r.buf)) < n {
		return envelope.Envelope{}, objerr.ErrDecode
	}
	raw := r.buf[:n]
	r.buf = r.buf[n:]
	env, rest, err := envelope.Deserialize(raw)
	if err != nil {
		return envelope.Envelope{}, err
	}
	if len(rest) != 0 {
		return envelope.Envelope{}, fmt.Errorf("decode nested envelope: trailing bytes: %w", objerr.ErrDecode)
	}
	return env, nil
}
