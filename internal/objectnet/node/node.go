// Package node implements the per-node actor described in section 4.E:
// a single-mailbox owner of a keypair, configuration, vault handle and
// swarm command channel. Every operation is a message with a typed
// reply, so the node's mutable state never needs its own locks.
package node

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"sync"
	"time"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
	"github.com/liberum-neto/objectnet/internal/objectnet/registry"
	"github.com/liberum-neto/objectnet/internal/objectnet/swarm"
	"github.com/liberum-neto/objectnet/internal/objectnet/vault"
	"github.com/liberum-neto/objectnet/pkg/config"
)

// State is one of the node actor's lifecycle states.
type State int

const (
	Unstarted State = iota
	Starting
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const defaultDialTimeout = 10 * time.Second

// Node is a single-mailbox actor owning one identity's keypair,
// configuration, vault handle and swarm command channel.
type Node struct {
	Name string

	pub ed25519.PublicKey // retained for GetPeerId's pure path
	ed  ed25519.PrivateKey
	cfg config.Config

	vault    *vault.Vault
	registry *registry.Registry
	sw       *swarm.Swarm
	swCancel context.CancelFunc

	mailbox chan func()
	state   State
	log     *logrus.Entry

	published []envelope.Hash

	closeOnce sync.Once
}

// New constructs a node in the Unstarted state and starts its mailbox
// loop, so it can immediately accept a Start message.
func New(name string, priv ed25519.PrivateKey, cfg config.Config, v *vault.Vault, log *logrus.Entry) *Node {
	n := &Node{
		Name:     name,
		ed:       priv,
		pub:      priv.Public().(ed25519.PublicKey),
		cfg:      cfg,
		vault:    v,
		registry: registry.NewDefault(),
		mailbox:  make(chan func(), 16),
		state:    Unstarted,
		log:      log.WithField("node", name),
	}
	go n.runMailbox()
	return n
}

func (n *Node) runMailbox() {
	for fn := range n.mailbox {
		fn()
	}
}

func (n *Node) ask(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case n.mailbox <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cfg returns a copy of the node's current configuration. It is a pure
// read and does not touch the mailbox, matching GetPeerId's style.
func (n *Node) Cfg() config.Config {
	return n.cfg
}

// notRunningErr reports why an operation requiring Running was refused:
// ErrShuttingDown once the node has left Running (Stop runs as a single
// mailbox turn, so a call queued behind it observes Stopped, not
// Stopping), ErrNotStarted for a node that was never started. Per
// section 5, a pending operation caught by a graceful shutdown resolves
// as shutting down, not as never having started.
func (n *Node) notRunningErr() error {
	if n.state == Stopping || n.state == Stopped {
		return objerr.ErrShuttingDown
	}
	return objerr.ErrNotStarted
}

// ParsePeerAddr parses a peer ID string and a multiaddr string as
// received over the daemon's control plane, for Dial.
func ParsePeerAddr(peerID, addr string) (peer.ID, multiaddr.Multiaddr, error) {
	id, err := peer.Decode(peerID)
	if err != nil {
		return "", nil, fmt.Errorf("parse peer id: %w", err)
	}
	a, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return "", nil, fmt.Errorf("parse multiaddr: %w", err)
	}
	return id, a, nil
}

// GetPeerId returns peer_id(keypair.public). It is a pure function of
// the node's identity and does not touch the mailbox.
func (n *Node) GetPeerId() (peer.ID, error) {
	pub, err := libp2pcrypto.UnmarshalEd25519PublicKey(n.pub)
	if err != nil {
		return "", fmt.Errorf("derive peer id: %w", err)
	}
	return peer.IDFromPublicKey(pub)
}

// Start spawns the node's swarm loop, transitioning
// Unstarted -> Starting -> Running, or Starting -> Stopped on failure.
func (n *Node) Start(ctx context.Context) error {
	var startErr error
	err := n.ask(ctx, func() {
		if n.state != Unstarted {
			startErr = objerr.ErrAlreadyStarted
			return
		}
		n.state = Starting

		lpPriv, _, err := libp2pcrypto.KeyPairFromStdKey(n.ed)
		if err != nil {
			n.state = Stopped
			startErr = fmt.Errorf("derive libp2p identity: %w", err)
			return
		}

		sw, err := swarm.New(lpPriv, swarm.Config{
			ListenAddr:     n.cfg.Network.ListenAddr,
			BootstrapPeers: n.cfg.Network.BootstrapPeers,
		}, n.registry, n.vault, n.log)
		if err != nil {
			n.state = Stopped
			startErr = fmt.Errorf("start swarm: %w", err)
			return
		}

		swarmCtx, cancel := context.WithCancel(context.Background())
		n.sw = sw
		n.swCancel = cancel
		go sw.Run(swarmCtx)
		go n.watchSwarmDeath(sw.Done())

		if len(n.cfg.Network.BootstrapPeers) > 0 {
			if err := sw.Bootstrap(swarmCtx, n.cfg.Network.BootstrapPeers); err != nil {
				n.log.WithError(err).Warn("bootstrap reported errors")
			}
		}

		n.state = Running
	})
	if err != nil {
		return err
	}
	return startErr
}

// watchSwarmDeath stops the node gracefully if the swarm loop exits on
// its own, outside of a deliberate Stop.
func (n *Node) watchSwarmDeath(done <-chan struct{}) {
	<-done
	_ = n.ask(context.Background(), func() {
		if n.state == Running {
			n.state = Stopped
			n.log.Warn("swarm died unexpectedly; node stopped")
		}
	})
}

// Stop flushes the swarm-kill command and waits for acknowledgement,
// transitioning Running -> Stopping -> Stopped.
func (n *Node) Stop(ctx context.Context) error {
	var stopErr error
	err := n.ask(ctx, func() {
		if n.state != Running {
			stopErr = n.notRunningErr()
			return
		}
		n.state = Stopping
		reply := make(chan struct{})
		n.sw.Commands() <- swarm.KillCommand{Reply: reply}
		<-reply
		n.swCancel()
		n.state = Stopped
	})
	if err != nil {
		return err
	}
	return stopErr
}

// GetAddresses asks the swarm for its current listen addresses.
func (n *Node) GetAddresses(ctx context.Context) ([]multiaddr.Multiaddr, error) {
	var (
		addrs []multiaddr.Multiaddr
		opErr error
	)
	err := n.ask(ctx, func() {
		if n.state != Running {
			opErr = n.notRunningErr()
			return
		}
		reply := make(chan []multiaddr.Multiaddr, 1)
		n.sw.Commands() <- swarm.GetListenAddressesCommand{Reply: reply}
		addrs = <-reply
	})
	if err != nil {
		return nil, err
	}
	return addrs, opErr
}

// Dial connects to peerID at addr, bounded by a per-dial deadline.
func (n *Node) Dial(ctx context.Context, peerID peer.ID, addr multiaddr.Multiaddr) error {
	var opErr error
	err := n.ask(ctx, func() {
		if n.state != Running {
			opErr = n.notRunningErr()
			return
		}
		dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
		defer cancel()
		reply := make(chan error, 1)
		n.sw.Commands() <- swarm.DialCommand{PeerID: peerID, Addr: addr, Reply: reply}
		select {
		case opErr = <-reply:
		case <-dialCtx.Done():
			opErr = objerr.ErrDialTimeout
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// PublishFile reads path, wraps it as a signed PlainFile envelope,
// stores it locally, DHT-publishes under its hash, and returns the
// resulting hash.
func (n *Node) PublishFile(ctx context.Context, path string) (envelope.Hash, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return envelope.Hash{}, fmt.Errorf("read file: %w", err)
	}
	name := path
	if idx := lastSlash(path); idx >= 0 {
		name = path[idx+1:]
	}
	inner, err := envelope.Wrap(envelope.PlainFileType, envelope.PlainFile{Name: name, Content: content})
	if err != nil {
		return envelope.Hash{}, err
	}
	signed := envelope.Sign(inner, n.ed)
	env, err := envelope.Wrap(envelope.SignedObjectType, signed)
	if err != nil {
		return envelope.Hash{}, err
	}
	return n.publishAndStore(ctx, env)
}

// ProvideObject hashes env, runs the publish pipeline, and issues
// start_providing for every emitted key.
func (n *Node) ProvideObject(ctx context.Context, env envelope.Envelope) error {
	_, err := n.publishAndStore(ctx, env)
	return err
}

func (n *Node) publishAndStore(ctx context.Context, env envelope.Envelope) (envelope.Hash, error) {
	var (
		id    envelope.Hash
		opErr error
	)
	err := n.ask(ctx, func() {
		if n.state != Running {
			opErr = n.notRunningErr()
			return
		}
		storedID, added, err := n.registry.Store(env, n.vault)
		if err != nil {
			opErr = err
			return
		}
		if !added {
			n.log.Debugf("publish: object %s already stored", storedID)
		}
		keys, err := n.registry.Publish(env)
		if err != nil {
			opErr = err
			return
		}
		value := envelope.Serialize(env)
		for _, key := range keys {
			putReply := make(chan error, 1)
			n.sw.Commands() <- swarm.PublishRecordCommand{Key: key, Value: value, Reply: putReply}
			if err := <-putReply; err != nil {
				n.log.WithError(err).Warnf("publish_record failed for key %s", key)
			}

			provReply := make(chan error, 1)
			n.sw.Commands() <- swarm.StartProvidingCommand{Key: key, Reply: provReply}
			if err := <-provReply; err != nil {
				n.log.WithError(err).Warnf("start_providing failed for key %s", key)
			}
		}
		n.published = append(n.published, storedID)
		id = storedID
	})
	if err != nil {
		return envelope.Hash{}, err
	}
	return id, opErr
}

// GetProviders issues one Kademlia provider query and returns the first
// non-empty result.
func (n *Node) GetProviders(ctx context.Context, id envelope.Hash) ([]peer.AddrInfo, error) {
	var (
		providers []peer.AddrInfo
		opErr     error
	)
	err := n.ask(ctx, func() {
		if n.state != Running {
			opErr = n.notRunningErr()
			return
		}
		reply := make(chan swarm.GetProvidersResult, 1)
		n.sw.Commands() <- swarm.GetProvidersCommand{Key: id, Reply: reply}
		res := <-reply
		providers, opErr = res.Providers, res.Err
	})
	if err != nil {
		return nil, err
	}
	return providers, opErr
}

// DownloadFile fetches providers for id, tries each in turn, validates
// the hash on receipt, and unwraps the result to a PlainFile. The first
// successful peer wins.
func (n *Node) DownloadFile(ctx context.Context, id envelope.Hash) (envelope.PlainFile, error) {
	providers, err := n.GetProviders(ctx, id)
	if err != nil {
		return envelope.PlainFile{}, err
	}
	if len(providers) == 0 {
		return envelope.PlainFile{}, objerr.ErrNoProviders
	}

	var (
		file  envelope.PlainFile
		found bool
		opErr error
	)
	for _, p := range providers {
		err := n.ask(ctx, func() {
			if n.state != Running {
				opErr = n.notRunningErr()
				return
			}
			reply := make(chan swarm.GetObjectResult, 1)
			n.sw.Commands() <- swarm.GetObjectCommand{Peer: p.ID, ID: id, Reply: reply}
			res := <-reply
			if res.Err != nil {
				opErr = res.Err
				return
			}
			var so envelope.SignedObject
			if err := envelope.Unwrap(res.Env, &so); err != nil {
				opErr = err
				return
			}
			var f envelope.PlainFile
			if err := envelope.Unwrap(so.Inner, &f); err != nil {
				opErr = err
				return
			}
			file, found, opErr = f, true, nil
		})
		if err != nil {
			return envelope.PlainFile{}, err
		}
		if found {
			return file, nil
		}
	}
	if opErr != nil {
		return envelope.PlainFile{}, opErr
	}
	return envelope.PlainFile{}, objerr.ErrNoProviders
}

// GetPublishedObjects delegates to the vault's typed object listing.
func (n *Node) GetPublishedObjects(ctx context.Context) ([]vault.TypedObject, error) {
	return n.vault.ListTypedObjects()
}

// DeleteObject builds a DeleteObjectQuery naming id and this node's own
// verifying key, signs it with this node's own identity, and runs it
// through the local query pipeline. This is the dispatcher's local
// delete path (section 6): the requester is trusted by virtue of
// reaching the node's own mailbox, so the node signs on its behalf
// rather than requiring a pre-signed query from the caller.
func (n *Node) DeleteObject(ctx context.Context, id envelope.Hash) (envelope.ResultObject, error) {
	var (
		result envelope.ResultObject
		opErr  error
	)
	err := n.ask(ctx, func() {
		if n.state != Running {
			opErr = n.notRunningErr()
			return
		}
		inner, err := envelope.Wrap(envelope.DeleteObjectQueryType, envelope.DeleteObjectQuery{
			ID:           id,
			VerifyingKey: append(ed25519.PublicKey(nil), n.pub...),
		})
		if err != nil {
			opErr = err
			return
		}
		signed := envelope.Sign(inner, n.ed)
		query, err := envelope.Wrap(envelope.SignedObjectType, signed)
		if err != nil {
			opErr = err
			return
		}
		results, err := n.registry.Query(query, n.vault)
		if err != nil {
			opErr = err
			return
		}
		if len(results) != 1 {
			opErr = fmt.Errorf("delete object %s: expected one result, got %d", id, len(results))
			return
		}
		if err := envelope.Unwrap(results[0], &result); err != nil {
			opErr = err
			return
		}
	})
	if err != nil {
		return envelope.ResultObject{}, err
	}
	return result, opErr
}

// CurrentState reports the node's lifecycle state.
func (n *Node) CurrentState(ctx context.Context) (State, error) {
	var s State
	err := n.ask(ctx, func() { s = n.state })
	return s, err
}

func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return i
		}
	}
	return -1
}
