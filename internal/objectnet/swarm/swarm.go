// Package swarm owns the network stack: a single event loop multiplexing
// inbound commands from the node actor against a libp2p host, a
// Kademlia DHT and the object-transfer/query stream protocols, per
// section 4.D.
package swarm

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/core/routing"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
	"github.com/liberum-neto/objectnet/internal/objectnet/registry"
)

const kadProtocolPrefix protocol.ID = "/liberum/kad/1.0.0"

// reprovideInterval documents, rather than reimplements, the interval
// the underlying DHT already re-announces provider records on.
const reprovideInterval = dht.DefaultProvideInterval

// Swarm owns the network state: the libp2p host and the DHT client.
// Both are used from the goroutines Run's dispatch spawns per command
// and from the libp2p stream handlers, not from Run's loop goroutine
// alone.
type Swarm struct {
	host     host.Host
	dht      *dht.IpfsDHT
	registry *registry.Registry
	vault    registry.Vault
	cmds     chan Command
	log      *logrus.Entry
	done     chan struct{}
}

// Done returns a channel closed once Run has returned, whether from a
// Kill command or context cancellation — the node actor watches this to
// detect the swarm dying out from under it.
func (s *Swarm) Done() <-chan struct{} { return s.done }

// Config is the subset of network configuration the swarm needs to
// start: a listen multiaddr and bootstrap peers, mirroring pkg/config's
// Network section.
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
}

// New builds the libp2p host and DHT client but does not start the
// event loop; call Run to begin serving commands.
func New(priv crypto.PrivKey, cfg Config, reg *registry.Registry, v registry.Vault, log *logrus.Entry) (*Swarm, error) {
	s := &Swarm{registry: reg, vault: v, cmds: make(chan Command, 64), log: log, done: make(chan struct{})}

	var kadDHT *dht.IpfsDHT
	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(cfg.ListenAddr),
		libp2p.Routing(func(h host.Host) (routing.PeerRouting, error) {
			var err error
			kadDHT, err = dht.New(context.Background(), h,
				dht.Mode(dht.ModeServer),
				dht.ProtocolPrefix(kadProtocolPrefix),
				dht.NamespacedValidator(recordNamespace, recordValidator{s: s}),
			)
			return kadDHT, err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}
	s.host = h
	s.dht = kadDHT

	h.SetStreamHandler(objectTransferProtocol, s.handleObjectTransferStream)
	h.SetStreamHandler(queryProtocol, s.handleQueryStream)

	return s, nil
}

// Bootstrap connects to the configured bootstrap peers and starts the
// DHT's own periodic self-healing bootstrap process.
func (s *Swarm) Bootstrap(ctx context.Context, peers []string) error {
	for _, addr := range peers {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			s.log.WithError(err).Warnf("bootstrap: invalid peer address %s", addr)
			continue
		}
		if err := s.host.Connect(ctx, *info); err != nil {
			s.log.WithError(err).Warnf("bootstrap: connect to %s failed", addr)
			continue
		}
	}
	return s.dht.Bootstrap(ctx)
}

// Commands returns the channel the node actor sends commands on.
func (s *Swarm) Commands() chan<- Command { return s.cmds }

// Run drains the command channel until a Kill command is received or
// ctx is cancelled. Every case but GetListenAddressesCommand and
// KillCommand dispatches its handler onto its own goroutine, so s.host
// and s.dht see concurrent access from many goroutines at once — safe
// only because both are already safe for concurrent use internally.
func (s *Swarm) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case cmd := <-s.cmds:
			if s.dispatch(ctx, cmd) {
				s.shutdown()
				return
			}
		}
	}
}

func (s *Swarm) shutdown() {
	if err := s.dht.Close(); err != nil {
		s.log.WithError(err).Warn("swarm: dht close failed")
	}
	if err := s.host.Close(); err != nil {
		s.log.WithError(err).Warn("swarm: host close failed")
	}
}

// dispatch handles one command and reports whether the loop should
// terminate afterward.
func (s *Swarm) dispatch(ctx context.Context, cmd Command) bool {
	switch c := cmd.(type) {
	case KillCommand:
		close(c.Reply)
		return true
	case DialCommand:
		go s.handleDial(ctx, c)
	case StartProvidingCommand:
		go s.handleStartProviding(ctx, c)
	case GetProvidersCommand:
		go s.handleGetProviders(ctx, c)
	case GetClosestPeersCommand:
		go s.handleGetClosestPeers(ctx, c)
	case SendObjectCommand:
		go s.handleSendObject(ctx, c)
	case GetObjectCommand:
		go s.handleGetObject(ctx, c)
	case PublishRecordCommand:
		go s.handlePublishRecord(ctx, c)
	case QueryCommand:
		go s.handleQuery(ctx, c)
	case GetListenAddressesCommand:
		c.Reply <- s.host.Addrs()
	default:
		s.log.Warnf("swarm: unrecognized command %T", cmd)
	}
	return false
}

func (s *Swarm) handleDial(ctx context.Context, c DialCommand) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	info := peer.AddrInfo{ID: c.PeerID, Addrs: []multiaddr.Multiaddr{c.Addr}}
	err := s.host.Connect(dialCtx, info)
	if err != nil && dialCtx.Err() != nil {
		err = objerr.ErrDialTimeout
	}
	c.Reply <- err
}

func (s *Swarm) handleStartProviding(ctx context.Context, c StartProvidingCommand) {
	id, err := hashToCid(c.Key)
	if err != nil {
		c.Reply <- err
		return
	}
	c.Reply <- s.dht.Provide(ctx, id, true)
}

func (s *Swarm) handleGetProviders(ctx context.Context, c GetProvidersCommand) {
	id, err := hashToCid(c.Key)
	if err != nil {
		c.Reply <- GetProvidersResult{Err: err}
		return
	}
	queryCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var providers []peer.AddrInfo
	for info := range s.dht.FindProvidersAsync(queryCtx, id, 20) {
		providers = append(providers, info)
		break // first non-empty provider set terminates the query
	}
	c.Reply <- GetProvidersResult{Providers: providers}
}

func (s *Swarm) handleGetClosestPeers(ctx context.Context, c GetClosestPeersCommand) {
	peers, err := s.dht.GetClosestPeers(ctx, string(c.Key[:]))
	c.Reply <- GetClosestPeersResult{Peers: peers, Err: err}
}

func (s *Swarm) handlePublishRecord(ctx context.Context, c PublishRecordCommand) {
	err := s.dht.PutValue(ctx, recordKey(c.Key), c.Value, dht.Quorum(1))
	c.Reply <- err
	if err == nil {
		go s.replicateRecord(ctx, c)
	}
}

// replicateRecord pushes the just-published record directly to peers
// close to its key, beyond the single confirmed write PutValue already
// performed, towards section 4.D's replication target of k=20. It is
// best-effort: a failed lookup or push here never surfaces past the
// PublishRecord reply, which already resolved on quorum 1.
func (s *Swarm) replicateRecord(ctx context.Context, c PublishRecordCommand) {
	env, rest, err := envelope.Deserialize(c.Value)
	if err != nil || len(rest) != 0 {
		return
	}

	closestReply := make(chan GetClosestPeersResult, 1)
	s.cmds <- GetClosestPeersCommand{Key: c.Key, Reply: closestReply}
	res := <-closestReply
	if res.Err != nil {
		s.log.WithError(res.Err).Debug("publish_record: replication peer lookup failed")
		return
	}

	const replicationTarget = 20
	for i, p := range res.Peers {
		if i >= replicationTarget {
			return
		}
		sendReply := make(chan error, 1)
		s.cmds <- SendObjectCommand{Peer: p, Env: env, ID: c.Key, Reply: sendReply}
		if err := <-sendReply; err != nil {
			s.log.WithError(err).Debugf("publish_record: replication push to %s failed", p)
		}
	}
}

func (s *Swarm) handleSendObject(ctx context.Context, c SendObjectCommand) {
	stream, err := s.host.NewStream(ctx, c.Peer, objectTransferProtocol)
	if err != nil {
		c.Reply <- fmtProtoErr(objectTransferProtocol, err)
		return
	}
	defer stream.Close()

	req := objectTransferRequest{ID: c.ID, HasEnvelope: true, Env: c.Env}
	if err := writeFrame(stream, req.encode()); err != nil {
		c.Reply <- err
		return
	}
	raw, err := readFrame(stream)
	if err != nil {
		c.Reply <- err
		return
	}
	resp, err := decodeObjectTransferResponse(raw)
	if err != nil {
		c.Reply <- err
		return
	}
	if !resp.Found {
		c.Reply <- fmt.Errorf("peer rejected pushed object %s", c.ID)
		return
	}
	c.Reply <- nil
}

func (s *Swarm) handleGetObject(ctx context.Context, c GetObjectCommand) {
	stream, err := s.host.NewStream(ctx, c.Peer, objectTransferProtocol)
	if err != nil {
		c.Reply <- GetObjectResult{Err: fmtProtoErr(objectTransferProtocol, err)}
		return
	}
	defer stream.Close()

	req := objectTransferRequest{ID: c.ID}
	if err := writeFrame(stream, req.encode()); err != nil {
		c.Reply <- GetObjectResult{Err: err}
		return
	}
	raw, err := readFrame(stream)
	if err != nil {
		c.Reply <- GetObjectResult{Err: err}
		return
	}
	resp, err := decodeObjectTransferResponse(raw)
	if err != nil {
		c.Reply <- GetObjectResult{Err: err}
		return
	}
	if !resp.Found {
		c.Reply <- GetObjectResult{Err: objerr.ErrNotFound}
		return
	}
	if envelope.HashOf(resp.Env) != c.ID {
		c.Reply <- GetObjectResult{Err: objerr.ErrHashMismatch}
		return
	}
	c.Reply <- GetObjectResult{Env: resp.Env}
}

func (s *Swarm) handleQuery(ctx context.Context, c QueryCommand) {
	stream, err := s.host.NewStream(ctx, c.Peer, queryProtocol)
	if err != nil {
		c.Reply <- QueryResult{Err: fmtProtoErr(queryProtocol, err)}
		return
	}
	defer stream.Close()

	req := queryRequest{QueryEnv: c.QueryEnv}
	if err := writeFrame(stream, req.encode()); err != nil {
		c.Reply <- QueryResult{Err: err}
		return
	}
	raw, err := readFrame(stream)
	if err != nil {
		c.Reply <- QueryResult{Err: err}
		return
	}
	resp, err := decodeQueryResponse(raw)
	if err != nil {
		c.Reply <- QueryResult{Err: err}
		return
	}
	c.Reply <- QueryResult{Results: resp.Results}
}

var _ network.StreamHandler = (*Swarm)(nil).handleObjectTransferStream
var _ network.StreamHandler = (*Swarm)(nil).handleQueryStream
