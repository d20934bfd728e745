package envelope

import "github.com/liberum-neto/objectnet/internal/objectnet/objerr"

// Registered type_uuids. Each is a fixed, random v4 UUID chosen once and
// never reused; changing one of these breaks compatibility with every
// object already on the network.
var (
	SignedObjectType      = TypeUUID{0x5a, 0x1d, 0x0b, 0x2e, 0x9c, 0x4f, 0x4a, 0x11, 0x8e, 0x02, 0x1b, 0x3c, 0x7d, 0x4e, 0x5f, 0x60}
	PinObjectType         = TypeUUID{0x8b, 0x2e, 0x5c, 0x71, 0x1f, 0x4a, 0x48, 0x9d, 0x9b, 0x3a, 0x2d, 0x6e, 0x8f, 0x10, 0x22, 0x33}
	PlainFileType         = TypeUUID{0xc3, 0x44, 0x7e, 0x9a, 0x2b, 0x5d, 0x46, 0x3f, 0xa1, 0x0c, 0x4e, 0x7f, 0x90, 0x21, 0x32, 0x43}
	SimpleIDQueryType     = TypeUUID{0xd7, 0x55, 0x8f, 0x0b, 0x3c, 0x6e, 0x47, 0x50, 0xb2, 0x1d, 0x5f, 0x80, 0xa1, 0x32, 0x43, 0x54}
	PinQueryType          = TypeUUID{0xe1, 0x66, 0x90, 0x1c, 0x4d, 0x7f, 0x48, 0x61, 0xc3, 0x2e, 0x60, 0x91, 0xb2, 0x43, 0x54, 0x65}
	DeleteObjectQueryType = TypeUUID{0xf2, 0x77, 0xa1, 0x2d, 0x5e, 0x80, 0x49, 0x72, 0xd4, 0x3f, 0x71, 0xa2, 0xc3, 0x54, 0x65, 0x76}
	ResultObjectType      = TypeUUID{0x03, 0x88, 0xb2, 0x3e, 0x6f, 0x91, 0x4a, 0x83, 0xe5, 0x40, 0x82, 0xb3, 0xd4, 0x65, 0x76, 0x87}
	GroupObjectType       = TypeUUID{0x14, 0x99, 0xc3, 0x4f, 0x70, 0xa2, 0x4b, 0x94, 0xf6, 0x51, 0x93, 0xc4, 0xe5, 0x76, 0x87, 0x98}
)

// SignedObject wraps an inner envelope with an Ed25519 signature over the
// inner envelope's canonical serialization. It is the only envelope kind
// the store pipeline accepts at the outermost level (ErrNotSigned
// otherwise).
type SignedObject struct {
	Inner     Envelope
	Signature []byte
	PublicKey []byte
}

func (SignedObject) TypeUUID() TypeUUID { return SignedObjectType }

func (s SignedObject) EncodeBody() ([]byte, error) {
	var w bodyWriter
	w.envelope(s.Inner)
	w.bytes(s.Signature)
	w.bytes(s.PublicKey)
	return w.buf, nil
}

func (s *SignedObject) DecodeBody(body []byte) error {
	r := bodyReader{buf: body}
	inner, err := r.envelope()
	if err != nil {
		return err
	}
	sig, err := r.bytes()
	if err != nil {
		return err
	}
	pub, err := r.bytes()
	if err != nil {
		return err
	}
	if err := r.done(); err != nil {
		return err
	}
	s.Inner, s.Signature, s.PublicKey = inner, sig, pub
	return nil
}

// PlainFile is a named byte blob: the only file-transfer payload kind.
type PlainFile struct {
	Name    string
	Content []byte
}

func (PlainFile) TypeUUID() TypeUUID { return PlainFileType }

func (f PlainFile) EncodeBody() ([]byte, error) {
	var w bodyWriter
	w.string(f.Name)
	w.bytes(f.Content)
	return w.buf, nil
}

func (f *PlainFile) DecodeBody(body []byte) error {
	r := bodyReader{buf: body}
	name, err := r.string()
	if err != nil {
		return err
	}
	content, err := r.bytes()
	if err != nil {
		return err
	}
	if err := r.done(); err != nil {
		return err
	}
	f.Name, f.Content = name, content
	return nil
}

// PinObject asserts a typed directed edge from PinnedID to the hash of
// Inner, optionally labeled by Relation. It is stored both as a regular
// object (by its own hash) and as a pin_edge row, per the edge-table
// consistency invariant.
type PinObject struct {
	PinnedID Hash
	Relation *Hash
	Inner    Envelope
}

func (PinObject) TypeUUID() TypeUUID { return PinObjectType }

func (p PinObject) EncodeBody() ([]byte, error) {
	var w bodyWriter
	w.hash(p.PinnedID)
	w.optionalHash(p.Relation)
	w.envelope(p.Inner)
	return w.buf, nil
}

func (p *PinObject) DecodeBody(body []byte) error {
	r := bodyReader{buf: body}
	pinned, err := r.hash()
	if err != nil {
		return err
	}
	relation, err := r.optionalHash()
	if err != nil {
		return err
	}
	inner, err := r.envelope()
	if err != nil {
		return err
	}
	if err := r.done(); err != nil {
		return err
	}
	p.PinnedID, p.Relation, p.Inner = pinned, relation, inner
	return nil
}

// SimpleIDQuery resolves to the singleton set {ID}.
type SimpleIDQuery struct {
	ID Hash
}

func (SimpleIDQuery) TypeUUID() TypeUUID { return SimpleIDQueryType }

func (q SimpleIDQuery) EncodeBody() ([]byte, error) {
	var w bodyWriter
	w.hash(q.ID)
	return w.buf, nil
}

func (q *SimpleIDQuery) DecodeBody(body []byte) error {
	r := bodyReader{buf: body}
	id, err := r.hash()
	if err != nil {
		return err
	}
	if err := r.done(); err != nil {
		return err
	}
	q.ID = id
	return nil
}

// PinQuery narrows the result set to hashes of pins matching the given
// edge pattern. PinnedID and Relation are optional filters that combine
// as an intersection, per the vault's match_pins semantics. Inner names
// the "to" side of the edge and is carried on the wire, but the query
// pipeline does not filter on it.
type PinQuery struct {
	PinnedID *Hash
	Relation *Hash
	Inner    *Envelope
}

func (PinQuery) TypeUUID() TypeUUID { return PinQueryType }

func (q PinQuery) EncodeBody() ([]byte, error) {
	var w bodyWriter
	w.optionalHash(q.PinnedID)
	w.optionalHash(q.Relation)
	if q.Inner == nil {
		w.buf = append(w.buf, 0)
	} else {
		w.buf = append(w.buf, 1)
		w.envelope(*q.Inner)
	}
	return w.buf, nil
}

func (q *PinQuery) DecodeBody(body []byte) error {
	r := bodyReader{buf: body}
	pinned, err := r.optionalHash()
	if err != nil {
		return err
	}
	relation, err := r.optionalHash()
	if err != nil {
		return err
	}
	if len(r.buf) < 1 {
		return objerr.ErrDecode
	}
	present := r.buf[0]
	r.buf = r.buf[1:]
	var inner *Envelope
	if present != 0 {
		env, err := r.envelope()
		if err != nil {
			return err
		}
		inner = &env
	}
	if err := r.done(); err != nil {
		return err
	}
	q.PinnedID, q.Relation, q.Inner = pinned, relation, inner
	return nil
}

// DeleteObjectQuery requests deletion of the object addressed by ID. It
// must appear inside a SignedObject, and the delete succeeds only if
// that wrapper's own verified signer matches the signing key of the
// stored target object — checked by the query pipeline against the
// wrapper's signature, not by this type's codec. VerifyingKey is kept on
// the wire for protocol compatibility but carries no authorization
// weight: it is a field the requester sets themselves, so the pipeline
// never trusts it to decide who is allowed to delete.
type DeleteObjectQuery struct {
	ID           Hash
	VerifyingKey []byte
}

func (DeleteObjectQuery) TypeUUID() TypeUUID { return DeleteObjectQueryType }

func (q DeleteObjectQuery) EncodeBody() ([]byte, error) {
	var w bodyWriter
	w.hash(q.ID)
	w.bytes(q.VerifyingKey)
	return w.buf, nil
}

func (q *DeleteObjectQuery) DecodeBody(body []byte) error {
	r := bodyReader{buf: body}
	id, err := r.hash()
	if err != nil {
		return err
	}
	key, err := r.bytes()
	if err != nil {
		return err
	}
	if err := r.done(); err != nil {
		return err
	}
	q.ID, q.VerifyingKey = id, key
	return nil
}

// ResultObject reports the outcome of a query-pipeline side effect (a
// delete request, currently the only query kind that has one).
type ResultObject struct {
	OK      bool
	Message string
}

func (ResultObject) TypeUUID() TypeUUID { return ResultObjectType }

func (r ResultObject) EncodeBody() ([]byte, error) {
	var w bodyWriter
	if r.OK {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	w.string(r.Message)
	return w.buf, nil
}

func (res *ResultObject) DecodeBody(body []byte) error {
	if len(body) < 1 {
		return objerr.ErrDecode
	}
	r := bodyReader{buf: body[1:]}
	msg, err := r.string()
	if err != nil {
		return err
	}
	if err := r.done(); err != nil {
		return err
	}
	res.OK = body[0] != 0
	res.Message = msg
	return nil
}

// GroupObject bundles an ordered list of member envelopes under one hash.
// The store pipeline recurses into every member so each still resolves
// individually by its own hash; a group is otherwise an ordinary
// immutable object.
type GroupObject struct {
	Members []Envelope
}

func (GroupObject) TypeUUID() TypeUUID { return GroupObjectType }

func (g GroupObject) EncodeBody() ([]byte, error) {
	var w bodyWriter
	w.uint32(uint32(len(g.Members)))
	for _, m := range g.Members {
		w.envelope(m)
	}
	return w.buf, nil
}

func (g *GroupObject) DecodeBody(body []byte) error {
	r := bodyReader{buf: body}
	n, err := r.uint32()
	if err != nil {
		return err
	}
	members := make([]Envelope, 0, n)
	for i := uint32(0); i < n; i++ {
		env, err := r.envelope()
		if err != nil {
			return err
		}
		members = append(members, env)
	}
	if err := r.done(); err != nil {
		return err
	}
	g.Members = members
	return nil
}
