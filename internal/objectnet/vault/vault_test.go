package vault

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
	"github.com/liberum-neto/objectnet/internal/testutil"
)

func openTestVault(t *testing.T) *Vault {
	t.Helper()
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	t.Cleanup(func() { sb.Cleanup() })

	v, err := Open(filepath.Join(sb.Root, "vault.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func signedEnvelope(t *testing.T, name string, content []byte) envelope.Envelope {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	inner, err := envelope.Wrap(envelope.PlainFileType, envelope.PlainFile{Name: name, Content: content})
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	signed := envelope.Sign(inner, priv)
	env, err := envelope.Wrap(envelope.SignedObjectType, signed)
	if err != nil {
		t.Fatalf("Wrap signed failed: %v", err)
	}
	return env
}

func TestStoreLoadObjectRoundTrips(t *testing.T) {
	v := openTestVault(t)
	env := signedEnvelope(t, "a.txt", []byte("hello"))
	hash := envelope.HashOf(env)

	if _, err := v.StoreObject(hash, env); err != nil {
		t.Fatalf("StoreObject failed: %v", err)
	}
	got, ok, err := v.LoadObject(hash)
	if err != nil {
		t.Fatalf("LoadObject failed: %v", err)
	}
	if !ok {
		t.Fatal("expected object to be found")
	}
	if !envelope.Equal(got, env) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestStoreObjectIsIdempotent(t *testing.T) {
	v := openTestVault(t)
	env := signedEnvelope(t, "a.txt", []byte("hello"))
	hash := envelope.HashOf(env)

	added, err := v.StoreObject(hash, env)
	if err != nil {
		t.Fatalf("first StoreObject failed: %v", err)
	}
	if !added {
		t.Fatal("expected first StoreObject to report added")
	}
	added, err = v.StoreObject(hash, env)
	if err != nil {
		t.Fatalf("second StoreObject failed: %v", err)
	}
	if added {
		t.Fatal("expected second StoreObject to report already existed")
	}
	objs, err := v.ListTypedObjects()
	if err != nil {
		t.Fatalf("ListTypedObjects failed: %v", err)
	}
	if len(objs) != 1 {
		t.Fatalf("expected exactly one row after duplicate store, got %d", len(objs))
	}
}

func TestLoadObjectMissingReturnsNotFound(t *testing.T) {
	v := openTestVault(t)
	var hash envelope.Hash
	hash[0] = 1
	_, ok, err := v.LoadObject(hash)
	if err != nil {
		t.Fatalf("LoadObject failed: %v", err)
	}
	if ok {
		t.Fatal("expected missing object to report not found")
	}
}

func TestDeleteObjectCascadesPinEdges(t *testing.T) {
	v := openTestVault(t)
	env := signedEnvelope(t, "a.txt", []byte("x"))
	hash := envelope.HashOf(env)
	if _, err := v.StoreObject(hash, env); err != nil {
		t.Fatalf("StoreObject failed: %v", err)
	}

	var from, to, relation envelope.Hash
	from[0], to[0], relation[0] = 1, 2, 3
	if err := v.StorePin(hash, from, to, &relation); err != nil {
		t.Fatalf("StorePin failed: %v", err)
	}

	removed, err := v.DeleteObject(hash)
	if err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}
	if !removed {
		t.Fatal("expected object to be removed")
	}

	matches, err := v.MatchPins(nil, &from, &relation)
	if err != nil {
		t.Fatalf("MatchPins failed: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected pin edges to cascade-delete, got %d", len(matches))
	}

	if _, ok, _ := v.LoadObject(hash); ok {
		t.Fatal("expected object to be gone")
	}
}

func TestDeleteObjectMissingReportsFalse(t *testing.T) {
	v := openTestVault(t)
	var hash envelope.Hash
	hash[0] = 9
	removed, err := v.DeleteObject(hash)
	if err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}
	if removed {
		t.Fatal("expected delete of missing object to report false")
	}
}

func TestMatchPinsFilters(t *testing.T) {
	v := openTestVault(t)
	var main1, main2, from, relA, relB envelope.Hash
	main1[0], main2[0], from[0], relA[0], relB[0] = 1, 2, 3, 4, 5
	var to envelope.Hash
	to[0] = 6

	if err := v.StorePin(main1, from, to, &relA); err != nil {
		t.Fatalf("StorePin failed: %v", err)
	}
	if err := v.StorePin(main2, from, to, &relB); err != nil {
		t.Fatalf("StorePin failed: %v", err)
	}

	matches, err := v.MatchPins(nil, &from, &relA)
	if err != nil {
		t.Fatalf("MatchPins failed: %v", err)
	}
	if len(matches) != 1 || matches[0] != main1 {
		t.Fatalf("expected only main1 to match relation A, got %v", matches)
	}

	matches, err = v.MatchPins([]envelope.Hash{main2}, &from, nil)
	if err != nil {
		t.Fatalf("MatchPins with scope failed: %v", err)
	}
	if len(matches) != 1 || matches[0] != main2 {
		t.Fatalf("expected scope to restrict to main2, got %v", matches)
	}
}

func TestListTypedObjects(t *testing.T) {
	v := openTestVault(t)
	a := signedEnvelope(t, "a", []byte("x"))
	b := signedEnvelope(t, "b", []byte("y"))
	if _, err := v.StoreObject(envelope.HashOf(a), a); err != nil {
		t.Fatalf("StoreObject failed: %v", err)
	}
	if _, err := v.StoreObject(envelope.HashOf(b), b); err != nil {
		t.Fatalf("StoreObject failed: %v", err)
	}

	objs, err := v.ListTypedObjects()
	if err != nil {
		t.Fatalf("ListTypedObjects failed: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("expected 2 typed objects, got %d", len(objs))
	}
	for _, o := range objs {
		if o.TypeUUID != envelope.SignedObjectType {
			t.Fatalf("expected SignedObjectType, got %x", o.TypeUUID)
		}
	}
}
