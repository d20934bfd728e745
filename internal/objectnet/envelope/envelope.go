// Package envelope implements the content-addressed, self-describing typed
// object format described in section 4.A of the design: a fixed field order,
// tag-and-length-prefixed binary codec, blake3 hashing and Ed25519 signing
// over envelopes.
//
// Wire format is deterministic and, per the codec invariant, the integer
// endianness choice below must never change once objects exist on the
// network: all fixed-width integers are big-endian.
package envelope

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
	"lukechampine.com/blake3"

	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
)

// Hash is the 32-byte blake3 digest of a serialized envelope. It is the
// universal object identity.
type Hash [32]byte

// String renders h in the base58 form used at every network and storage
// boundary (section 6).
func (h Hash) String() string {
	return base58.Encode(h[:])
}

// ParseHash decodes a base58-encoded hash string.
func ParseHash(s string) (Hash, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Hash{}, fmt.Errorf("parse hash: %w", err)
	}
	if len(b) != 32 {
		return Hash{}, fmt.Errorf("parse hash: want 32 bytes, got %d", len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// TypeUUID is a stable 128-bit identifier assigned per object kind.
type TypeUUID [16]byte

func (u TypeUUID) String() string {
	return fmt.Sprintf("%x", u[:])
}

// Envelope is the universal record: a type tag plus an opaque,
// length-prefixed body. Nesting (signed-object, group-object, ...) is
// achieved by serializing an inner Envelope as the body of an outer one.
type Envelope struct {
	TypeUUID TypeUUID
	Body     []byte
}

// Wrap serializes value with the codec and tags it with typeUUID.
func Wrap(typeUUID TypeUUID, value Encodable) (Envelope, error) {
	body, err := value.EncodeBody()
	if err != nil {
		return Envelope{}, fmt.Errorf("wrap: %w", err)
	}
	return Envelope{TypeUUID: typeUUID, Body: body}, nil
}

// Encodable is implemented by every concrete object kind that can be carried
// as an envelope body.
type Encodable interface {
	// TypeUUID returns this value's registered type tag.
	TypeUUID() TypeUUID
	// EncodeBody serializes the value's fields, without the envelope header.
	EncodeBody() ([]byte, error)
}

// Decodable is implemented by the destination type of Unwrap.
type Decodable interface {
	Encodable
	// DecodeBody populates the value's fields from a serialized body.
	DecodeBody([]byte) error
}

// Unwrap decodes env's body into dst, failing with ErrWrongType if the
// envelope's tag does not match dst's registered type.
func Unwrap(env Envelope, dst Decodable) error {
	if env.TypeUUID != dst.TypeUUID() {
		return fmt.Errorf("unwrap: got %s want %s: %w", env.TypeUUID, dst.TypeUUID(), objerr.ErrWrongType)
	}
	if err := dst.DecodeBody(env.Body); err != nil {
		return fmt.Errorf("unwrap %s: %w", dst.TypeUUID(), err)
	}
	return nil
}

// Serialize renders env in the canonical wire form:
//
//	[16]byte type_uuid
//	uint32   len(body)  (big-endian)
//	[]byte   body
func Serialize(env Envelope) []byte {
	buf := make([]byte, 0, 16+4+len(env.Body))
	buf = append(buf, env.TypeUUID[:]...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(env.Body)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, env.Body...)
	return buf
}

// Deserialize parses the canonical wire form produced by Serialize.
func Deserialize(data []byte) (Envelope, []byte, error) {
	if len(data) < 20 {
		return Envelope{}, nil, fmt.Errorf("deserialize envelope: truncated header: %w", objerr.ErrDecode)
	}
	var env Envelope
	copy(env.TypeUUID[:], data[:16])
	bodyLen := binary.BigEndian.Uint32(data[16:20])
	rest := data[20:]
	if uint32(len(rest)) < bodyLen {
		return Envelope{}, nil, fmt.Errorf("deserialize envelope: truncated body: %w", objerr.ErrDecode)
	}
	env.Body = append([]byte(nil), rest[:bodyLen]...)
	return env, rest[bodyLen:], nil
}

// HashOf computes the blake3 digest of env's canonical serialization.
func HashOf(env Envelope) Hash {
	sum := blake3.Sum256(Serialize(env))
	return Hash(sum)
}

// Sign produces a signed envelope wrapping inner, signed with priv over the
// serialized inner bytes (not the hash — sign and verify must compute the
// same payload).
func Sign(inner Envelope, priv ed25519.PrivateKey) SignedObject {
	payload := Serialize(inner)
	sig := ed25519.Sign(priv, payload)
	return SignedObject{
		Inner:     inner,
		Signature: sig,
		PublicKey: append(ed25519.PublicKey(nil), priv.Public().(ed25519.PublicKey)...),
	}
}

// Verify checks so.Signature against the serialized inner envelope using
// so.PublicKey.
func Verify(so SignedObject) bool {
	return VerifyWithKey(so, so.PublicKey)
}

// VerifyWithKey checks so.Signature against the serialized inner envelope
// using an externally supplied public key rather than so.PublicKey.
func VerifyWithKey(so SignedObject, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	payload := Serialize(so.Inner)
	return ed25519.Verify(pub, payload, so.Signature)
}

// Equal reports whether two envelopes are bytewise identical.
func Equal(a, b Envelope) bool {
	return a.TypeUUID == b.TypeUUID && bytes.Equal(a.Body, b.Body)
}
