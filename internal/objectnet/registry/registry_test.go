package registry

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
)

// memVault is a minimal in-memory Vault used to exercise the pipelines
// without a real storage engine.
type memVault struct {
	objects map[envelope.Hash]envelope.Envelope
	pins    []pinRow
}

type pinRow struct {
	main, from, to envelope.Hash
	relation        *envelope.Hash
}

func newMemVault() *memVault {
	return &memVault{objects: make(map[envelope.Hash]envelope.Envelope)}
}

func (v *memVault) StoreObject(hash envelope.Hash, env envelope.Envelope) (bool, error) {
	_, existed := v.objects[hash]
	v.objects[hash] = env
	return !existed, nil
}

func (v *memVault) LoadObject(hash envelope.Hash) (envelope.Envelope, bool, error) {
	env, ok := v.objects[hash]
	return env, ok, nil
}

func (v *memVault) DeleteObject(hash envelope.Hash) (bool, error) {
	if _, ok := v.objects[hash]; !ok {
		return false, nil
	}
	delete(v.objects, hash)
	kept := v.pins[:0]
	for _, p := range v.pins {
		if p.main != hash {
			kept = append(kept, p)
		}
	}
	v.pins = kept
	return true, nil
}

func (v *memVault) StorePin(mainHash, fromHash, toHash envelope.Hash, relation *envelope.Hash) error {
	v.pins = append(v.pins, pinRow{main: mainHash, from: fromHash, to: toHash, relation: relation})
	return nil
}

func (v *memVault) MatchPins(mainScope []envelope.Hash, from, relation *envelope.Hash) ([]envelope.Hash, error) {
	scope := make(map[envelope.Hash]bool)
	for _, h := range mainScope {
		scope[h] = true
	}
	var out []envelope.Hash
	for _, p := range v.pins {
		if mainScope != nil && !scope[p.main] {
			continue
		}
		if from != nil && p.from != *from {
			continue
		}
		if relation != nil && (p.relation == nil || *p.relation != *relation) {
			continue
		}
		out = append(out, p.main)
	}
	return out, nil
}

func signedPlainFile(t *testing.T, priv ed25519.PrivateKey, name string, content []byte) envelope.Envelope {
	t.Helper()
	inner, err := envelope.Wrap(envelope.PlainFileType, envelope.PlainFile{Name: name, Content: content})
	if err != nil {
		t.Fatalf("wrap plain file: %v", err)
	}
	signed := envelope.Sign(inner, priv)
	env, err := envelope.Wrap(envelope.SignedObjectType, signed)
	if err != nil {
		t.Fatalf("wrap signed object: %v", err)
	}
	return env
}

func TestStoreRequiresSignedOutermost(t *testing.T) {
	r := NewDefault()
	v := newMemVault()

	env, err := envelope.Wrap(envelope.PlainFileType, envelope.PlainFile{Name: "x"})
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	if _, _, err := r.Store(env, v); err == nil {
		t.Fatal("expected NotSigned error for an unsigned outermost envelope")
	}
}

func TestPublishStoreQueryFlow(t *testing.T) {
	r := NewDefault()
	v := newMemVault()

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	content := make([]byte, 4096)
	for i := range content {
		content[i] = 0x41
	}
	env := signedPlainFile(t, priv, "file.bin", content)

	keys, err := r.Publish(env)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != envelope.HashOf(env) {
		t.Fatalf("expected one publish key (the outer hash), got %v", keys)
	}

	id, added, err := r.Store(env, v)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if id != envelope.HashOf(env) {
		t.Fatalf("expected store to return the outer hash")
	}
	if !added {
		t.Fatal("expected first store to report added")
	}

	if _, added, err := r.Store(env, v); err != nil {
		t.Fatalf("second Store failed: %v", err)
	} else if added {
		t.Fatal("expected second store of the same envelope to report already existed")
	}

	query, err := envelope.Wrap(envelope.SimpleIDQueryType, envelope.SimpleIDQuery{ID: id})
	if err != nil {
		t.Fatalf("wrap query failed: %v", err)
	}
	results, err := r.Query(query, v)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}

	var got envelope.SignedObject
	if err := envelope.Unwrap(results[0], &got); err != nil {
		t.Fatalf("unwrap result failed: %v", err)
	}
	var file envelope.PlainFile
	if err := envelope.Unwrap(got.Inner, &file); err != nil {
		t.Fatalf("unwrap plain file failed: %v", err)
	}
	if file.Name != "file.bin" || string(file.Content) != string(content) {
		t.Fatalf("downloaded file mismatch")
	}
}

func TestPinQueryResolution(t *testing.T) {
	r := NewDefault()
	v := newMemVault()

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	target := signedPlainFile(t, priv, "target", []byte("t"))
	if _, _, err := r.Store(target, v); err != nil {
		t.Fatalf("store target failed: %v", err)
	}
	targetHash := envelope.HashOf(target)

	var relation envelope.Hash
	relation[0] = 0xAA
	var otherRelation envelope.Hash
	otherRelation[0] = 0xBB

	pin := envelope.PinObject{PinnedID: targetHash, Relation: &relation, Inner: target}
	pinInner, err := envelope.Wrap(envelope.PinObjectType, pin)
	if err != nil {
		t.Fatalf("wrap pin failed: %v", err)
	}
	signedPin := envelope.Sign(pinInner, priv)
	pinEnv, err := envelope.Wrap(envelope.SignedObjectType, signedPin)
	if err != nil {
		t.Fatalf("wrap signed pin failed: %v", err)
	}

	pinHash, _, err := r.Store(pinEnv, v)
	if err != nil {
		t.Fatalf("store pin failed: %v", err)
	}
	// the pin_edge row is keyed by the PinObject's own hash, not the
	// hash of the outer signed wrapper.
	pinMainHash := envelope.HashOf(pinInner)
	_ = pinHash

	q1 := envelope.PinQuery{PinnedID: &targetHash, Relation: &relation}
	q1Env, err := envelope.Wrap(envelope.PinQueryType, q1)
	if err != nil {
		t.Fatalf("wrap query failed: %v", err)
	}
	results, err := r.Query(q1Env, v)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 1 || envelope.HashOf(results[0]) != pinMainHash {
		t.Fatalf("expected the pin's own hash, got %d results", len(results))
	}

	q2 := envelope.PinQuery{PinnedID: &targetHash, Relation: &otherRelation}
	q2Env, err := envelope.Wrap(envelope.PinQueryType, q2)
	if err != nil {
		t.Fatalf("wrap query failed: %v", err)
	}
	results2, err := r.Query(q2Env, v)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results2) != 0 {
		t.Fatalf("expected no results for mismatched relation, got %d", len(results2))
	}
}

// signedDeleteQuery builds a DeleteObjectQuery for id, claiming
// claimedKey as its VerifyingKey field, and signs the wrapping
// SignedObject with priv — which need not be the key that generated
// claimedKey, so callers can exercise a request whose claimed identity
// and actual signer disagree.
func signedDeleteQuery(t *testing.T, priv ed25519.PrivateKey, id envelope.Hash, claimedKey []byte) envelope.Envelope {
	t.Helper()
	inner, err := envelope.Wrap(envelope.DeleteObjectQueryType, envelope.DeleteObjectQuery{ID: id, VerifyingKey: claimedKey})
	if err != nil {
		t.Fatalf("wrap delete query: %v", err)
	}
	signed := envelope.Sign(inner, priv)
	env, err := envelope.Wrap(envelope.SignedObjectType, signed)
	if err != nil {
		t.Fatalf("wrap signed delete query: %v", err)
	}
	return env
}

func TestDeleteObjectQuerySucceedsAndFails(t *testing.T) {
	r := NewDefault()
	v := newMemVault()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	env := signedPlainFile(t, priv, "secret", []byte("x"))
	id, _, err := r.Store(env, v)
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}

	_, otherPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	// otherPriv claims pub (the real target signer) as its VerifyingKey,
	// but the pipeline must authorize against whoever actually signed
	// this request, not against that self-declared field.
	badQuery := signedDeleteQuery(t, otherPriv, id, pub)
	results, err := r.Query(badQuery, v)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result object")
	}
	var res envelope.ResultObject
	if err := envelope.Unwrap(results[0], &res); err != nil {
		t.Fatalf("unwrap result failed: %v", err)
	}
	if res.OK {
		t.Fatal("expected delete to fail when signed by a key other than the target's signer")
	}
	if _, ok, _ := v.LoadObject(id); !ok {
		t.Fatal("expected object to still exist after a failed delete")
	}

	goodQuery := signedDeleteQuery(t, priv, id, pub)
	results, err = r.Query(goodQuery, v)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if err := envelope.Unwrap(results[0], &res); err != nil {
		t.Fatalf("unwrap result failed: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected delete to succeed, got message %q", res.Message)
	}
	if _, ok, _ := v.LoadObject(id); ok {
		t.Fatal("expected object to be gone after a successful delete")
	}
}

func TestDeleteObjectQueryRejectsUnsignedRequest(t *testing.T) {
	r := NewDefault()
	v := newMemVault()

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	env := signedPlainFile(t, priv, "secret", []byte("x"))
	id, _, err := r.Store(env, v)
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}

	bareQuery, err := envelope.Wrap(envelope.DeleteObjectQueryType, envelope.DeleteObjectQuery{ID: id})
	if err != nil {
		t.Fatalf("wrap query failed: %v", err)
	}
	if _, err := r.Query(bareQuery, v); !errors.Is(err, objerr.ErrNotSigned) {
		t.Fatalf("expected ErrNotSigned for a bare top-level delete query, got %v", err)
	}
	if _, ok, _ := v.LoadObject(id); !ok {
		t.Fatal("expected object to still exist")
	}
}

func TestGroupObjectRecursesIntoMembers(t *testing.T) {
	r := NewDefault()
	v := newMemVault()

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	a, err := envelope.Wrap(envelope.PlainFileType, envelope.PlainFile{Name: "a"})
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	b, err := envelope.Wrap(envelope.PlainFileType, envelope.PlainFile{Name: "b"})
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	group, err := envelope.Wrap(envelope.GroupObjectType, envelope.GroupObject{Members: []envelope.Envelope{a, b}})
	if err != nil {
		t.Fatalf("wrap group failed: %v", err)
	}
	signed := envelope.Sign(group, priv)
	env, err := envelope.Wrap(envelope.SignedObjectType, signed)
	if err != nil {
		t.Fatalf("wrap signed group failed: %v", err)
	}

	if _, _, err := r.Store(env, v); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	for _, member := range []envelope.Envelope{a, b} {
		if _, ok, _ := v.LoadObject(envelope.HashOf(member)); !ok {
			t.Fatalf("expected member %s to resolve individually", envelope.HashOf(member))
		}
	}
	if _, ok, _ := v.LoadObject(envelope.HashOf(group)); !ok {
		t.Fatal("expected the group envelope itself to resolve by its own hash")
	}
}
