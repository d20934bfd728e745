package swarm

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
	"github.com/liberum-neto/objectnet/internal/objectnet/registry"
)

// memVault is a minimal in-memory registry.Vault for swarm tests, kept
// independent of the registry package's own test fake.
type memVault struct {
	objects map[envelope.Hash]envelope.Envelope
}

func newMemVault() *memVault { return &memVault{objects: make(map[envelope.Hash]envelope.Envelope)} }

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
	_, ok := v.objects[hash]
	delete(v.objects, hash)
	return ok, nil
}
func (v *memVault) StorePin(mainHash, fromHash, toHash envelope.Hash, relation *envelope.Hash) error {
	return nil
}
func (v *memVault) MatchPins(mainScope []envelope.Hash, from, relation *envelope.Hash) ([]envelope.Hash, error) {
	return nil, nil
}

func newTestSwarm(t *testing.T) (*Swarm, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	lpPriv, _, err := libp2pcrypto.KeyPairFromStdKey(priv)
	if err != nil {
		t.Fatalf("KeyPairFromStdKey failed: %v", err)
	}
	_ = pub

	reg := registry.NewDefault()
	v := newMemVault()
	log := logrus.NewEntry(logrus.New())

	s, err := New(lpPriv, Config{ListenAddr: "/ip4/127.0.0.1/tcp/0"}, reg, v, log)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, priv
}

func TestSwarmDialAndSendObject(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, aPriv := newTestSwarm(t)
	b, _ := newTestSwarm(t)
	go a.Run(ctx)
	go b.Run(ctx)

	bAddrs := b.host.Addrs()
	if len(bAddrs) == 0 {
		t.Fatal("expected b to have at least one listen address")
	}
	bInfo := peer.AddrInfo{ID: b.host.ID(), Addrs: bAddrs}

	dialReply := make(chan error, 1)
	a.Commands() <- DialCommand{PeerID: bInfo.ID, Addr: bInfo.Addrs[0], Reply: dialReply}
	if err := <-dialReply; err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	inner, err := envelope.Wrap(envelope.PlainFileType, envelope.PlainFile{Name: "f", Content: []byte("payload")})
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	signed := envelope.Sign(inner, aPriv)
	env, err := envelope.Wrap(envelope.SignedObjectType, signed)
	if err != nil {
		t.Fatalf("wrap signed failed: %v", err)
	}
	id := envelope.HashOf(env)

	sendReply := make(chan error, 1)
	a.Commands() <- SendObjectCommand{Peer: bInfo.ID, Env: env, ID: id, Reply: sendReply}
	if err := <-sendReply; err != nil {
		t.Fatalf("send object failed: %v", err)
	}

	stored, ok, err := b.vault.LoadObject(id)
	if err != nil {
		t.Fatalf("load object on b failed: %v", err)
	}
	if !ok {
		t.Fatal("expected b's vault to contain the pushed object")
	}
	if !envelope.Equal(stored, env) {
		t.Fatal("pushed object mismatch")
	}

	getReply := make(chan GetObjectResult, 1)
	a.Commands() <- GetObjectCommand{Peer: bInfo.ID, ID: id, Reply: getReply}
	res := <-getReply
	if res.Err != nil {
		t.Fatalf("get object failed: %v", res.Err)
	}
	if !envelope.Equal(res.Env, env) {
		t.Fatal("fetched object mismatch")
	}
}

func TestSwarmQueryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, _ := newTestSwarm(t)
	b, bPriv := newTestSwarm(t)
	go a.Run(ctx)
	go b.Run(ctx)

	bAddrs := b.host.Addrs()
	bInfo := peer.AddrInfo{ID: b.host.ID(), Addrs: bAddrs}

	dialReply := make(chan error, 1)
	a.Commands() <- DialCommand{PeerID: bInfo.ID, Addr: bInfo.Addrs[0], Reply: dialReply}
	if err := <-dialReply; err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	inner, err := envelope.Wrap(envelope.PlainFileType, envelope.PlainFile{Name: "f", Content: []byte("x")})
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	signed := envelope.Sign(inner, bPriv)
	env, err := envelope.Wrap(envelope.SignedObjectType, signed)
	if err != nil {
		t.Fatalf("wrap signed failed: %v", err)
	}
	id := envelope.HashOf(env)
	if _, err := b.vault.StoreObject(id, env); err != nil {
		t.Fatalf("seed b's vault failed: %v", err)
	}

	query, err := envelope.Wrap(envelope.SimpleIDQueryType, envelope.SimpleIDQuery{ID: id})
	if err != nil {
		t.Fatalf("wrap query failed: %v", err)
	}
	queryReply := make(chan QueryResult, 1)
	a.Commands() <- QueryCommand{Peer: bInfo.ID, QueryEnv: query, Reply: queryReply}
	res := <-queryReply
	if res.Err != nil {
		t.Fatalf("query failed: %v", res.Err)
	}
	if len(res.Results) != 1 || !envelope.Equal(res.Results[0], env) {
		t.Fatalf("unexpected query results: %+v", res.Results)
	}
}
