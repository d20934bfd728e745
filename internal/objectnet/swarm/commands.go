package swarm

import (
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
)

// Command is the closed set of instructions the swarm loop accepts on
// its single inbound channel, per section 4.D. Each carries its own
// one-shot reply channel; the loop signals it exactly once per command
// and never blocks a caller past that point.
type Command interface {
	isCommand()
}

type DialCommand struct {
	PeerID peer.ID
	Addr   multiaddr.Multiaddr
	Reply  chan error
}

type StartProvidingCommand struct {
	Key   envelope.Hash
	Reply chan error
}

type GetProvidersCommand struct {
	Key   envelope.Hash
	Reply chan GetProvidersResult
}

type GetProvidersResult struct {
	Providers []peer.AddrInfo
	Err       error
}

type GetClosestPeersCommand struct {
	Key   envelope.Hash
	Reply chan GetClosestPeersResult
}

type GetClosestPeersResult struct {
	Peers []peer.ID
	Err   error
}

// SendObjectCommand pushes env to peer, asserting its hash is id.
type SendObjectCommand struct {
	Peer  peer.ID
	Env   envelope.Envelope
	ID    envelope.Hash
	Reply chan error
}

// GetObjectCommand pulls the object addressed by ID from peer.
type GetObjectCommand struct {
	Peer  peer.ID
	ID    envelope.Hash
	Reply chan GetObjectResult
}

type GetObjectResult struct {
	Env envelope.Envelope
	Err error
}

type PublishRecordCommand struct {
	Key   envelope.Hash
	Value []byte
	Reply chan error
}

// QueryCommand sends a query envelope to peer and awaits the resolved
// envelope set.
type QueryCommand struct {
	Peer     peer.ID
	QueryEnv envelope.Envelope
	Reply    chan QueryResult
}

type QueryResult struct {
	Results []envelope.Envelope
	Err     error
}

type GetListenAddressesCommand struct {
	Reply chan []multiaddr.Multiaddr
}

type KillCommand struct {
	Reply chan struct{}
}

func (DialCommand) isCommand()               {}
func (StartProvidingCommand) isCommand()     {}
func (GetProvidersCommand) isCommand()       {}
func (GetClosestPeersCommand) isCommand()    {}
func (SendObjectCommand) isCommand()         {}
func (GetObjectCommand) isCommand()          {}
func (PublishRecordCommand) isCommand()      {}
func (QueryCommand) isCommand()              {}
func (GetListenAddressesCommand) isCommand() {}
func (KillCommand) isCommand()               {}
