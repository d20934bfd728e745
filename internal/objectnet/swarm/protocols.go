package swarm

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
)

const (
	objectTransferProtocol protocol.ID = "/liberum/object-transfer/1.0.0"
	queryProtocol          protocol.ID = "/liberum/query/1.0.0"
)

// writeFrame writes payload length-prefixed with a big-endian uint32, the
// same framing convention the rest of the wire layer uses.
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// objectTransferRequest serves both the push (SendObject) and pull
// (GetObject) commands over one protocol: HasEnvelope distinguishes a
// push (envelope attached, responder stores and acks) from a pull
// (envelope absent, responder looks ID up and returns it).
type objectTransferRequest struct {
	ID          envelope.Hash
	HasEnvelope bool
	Env         envelope.Envelope
}

func (r objectTransferRequest) encode() []byte {
	var w bodyWriter
	w.hash(r.ID)
	if r.HasEnvelope {
		w.buf = append(w.buf, 1)
		w.envelope(r.Env)
	} else {
		w.buf = append(w.buf, 0)
	}
	return w.buf
}

func decodeObjectTransferRequest(data []byte) (objectTransferRequest, error) {
	r := bodyReader{buf: data}
	id, err := r.hash()
	if err != nil {
		return objectTransferRequest{}, err
	}
	if len(r.buf) < 1 {
		return objectTransferRequest{}, objerr.ErrDecode
	}
	has := r.buf[0] != 0
	r.buf = r.buf[1:]
	req := objectTransferRequest{ID: id, HasEnvelope: has}
	if has {
		env, err := r.envelope()
		if err != nil {
			return objectTransferRequest{}, err
		}
		req.Env = env
	}
	return req, nil
}

type objectTransferResponse struct {
	ID    envelope.Hash
	Found bool
	Env   envelope.Envelope
}

func (r objectTransferResponse) encode() []byte {
	var w bodyWriter
	w.hash(r.ID)
	if r.Found {
		w.buf = append(w.buf, 1)
		w.envelope(r.Env)
	} else {
		w.buf = append(w.buf, 0)
	}
	return w.buf
}

func decodeObjectTransferResponse(data []byte) (objectTransferResponse, error) {
	r := bodyReader{buf: data}
	id, err := r.hash()
	if err != nil {
		return objectTransferResponse{}, err
	}
	if len(r.buf) < 1 {
		return objectTransferResponse{}, objerr.ErrDecode
	}
	found := r.buf[0] != 0
	r.buf = r.buf[1:]
	resp := objectTransferResponse{ID: id, Found: found}
	if found {
		env, err := r.envelope()
		if err != nil {
			return objectTransferResponse{}, err
		}
		resp.Env = env
	}
	return resp, nil
}

type queryRequest struct {
	QueryEnv envelope.Envelope
}

func (r queryRequest) encode() []byte {
	var w bodyWriter
	w.envelope(r.QueryEnv)
	return w.buf
}

func decodeQueryRequest(data []byte) (queryRequest, error) {
	r := bodyReader{buf: data}
	env, err := r.envelope()
	if err != nil {
		return queryRequest{}, err
	}
	return queryRequest{QueryEnv: env}, nil
}

type queryResponse struct {
	Results []envelope.Envelope
}

func (r queryResponse) encode() []byte {
	var w bodyWriter
	w.uint32(uint32(len(r.Results)))
	for _, e := range r.Results {
		w.envelope(e)
	}
	return w.buf
}

func decodeQueryResponse(data []byte) (queryResponse, error) {
	r := bodyReader{buf: data}
	n, err := r.uint32()
	if err != nil {
		return queryResponse{}, err
	}
	results := make([]envelope.Envelope, 0, n)
	for i := uint32(0); i < n; i++ {
		env, err := r.envelope()
		if err != nil {
			return queryResponse{}, err
		}
		results = append(results, env)
	}
	return queryResponse{Results: results}, nil
}

// handleObjectTransferStream is installed as the object-transfer stream
// handler. It recomputes the hash of a pushed envelope and rejects a
// mismatch (logging and dropping the stream), or resolves a pull request
// from the vault.
func (s *Swarm) handleObjectTransferStream(stream network.Stream) {
	defer stream.Close()

	raw, err := readFrame(stream)
	if err != nil {
		s.log.WithError(err).Debug("object-transfer: read request frame failed")
		return
	}
	req, err := decodeObjectTransferRequest(raw)
	if err != nil {
		s.log.WithError(err).Debug("object-transfer: decode request failed")
		return
	}

	if req.HasEnvelope {
		if envelope.HashOf(req.Env) != req.ID {
			s.log.Warn("object-transfer: pushed envelope hash mismatch, dropping")
			return
		}
		if _, _, err := s.registry.Store(req.Env, s.vault); err != nil {
			s.log.WithError(err).Debug("object-transfer: store pushed object failed")
			_ = writeFrame(stream, objectTransferResponse{ID: req.ID, Found: false}.encode())
			return
		}
		_ = writeFrame(stream, objectTransferResponse{ID: req.ID, Found: true, Env: req.Env}.encode())
		return
	}

	env, ok, err := s.vault.LoadObject(req.ID)
	if err != nil {
		s.log.WithError(err).Debug("object-transfer: load requested object failed")
		ok = false
	}
	_ = writeFrame(stream, objectTransferResponse{ID: req.ID, Found: ok, Env: env}.encode())
}

// handleQueryStream is installed as the query stream handler: it runs
// the query pipeline against the local vault and responds with the
// resolved envelope set.
func (s *Swarm) handleQueryStream(stream network.Stream) {
	defer stream.Close()

	raw, err := readFrame(stream)
	if err != nil {
		s.log.WithError(err).Debug("query: read request frame failed")
		return
	}
	req, err := decodeQueryRequest(raw)
	if err != nil {
		s.log.WithError(err).Debug("query: decode request failed")
		return
	}

	results, err := s.registry.Query(req.QueryEnv, s.vault)
	if err != nil {
		s.log.WithError(err).Debug("query: pipeline failed")
		results = nil
	}
	_ = writeFrame(stream, queryResponse{Results: results}.encode())
}

func fmtProtoErr(proto protocol.ID, err error) error {
	return fmt.Errorf("%s: %w", proto, err)
}
