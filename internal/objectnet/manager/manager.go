package manager

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liberum-neto/objectnet/internal/objectnet/node"
	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
	"github.com/liberum-neto/objectnet/internal/objectnet/vault"
	"github.com/liberum-neto/objectnet/pkg/config"
)

// deathPollInterval is how often a running node's state is polled to
// detect an unexpected stop and unlink it from the manager. The node
// actor has no push-based "I died" notification to the manager (only
// to itself, via its own swarm-death watcher), so this is the
// manager's half of that link.
const deathPollInterval = 500 * time.Millisecond

// runningNode bundles everything the manager must tear down when a
// node stops: the actor itself and the vault handle it was given,
// since the vault's lifetime is scoped to the manager, not the node.
type runningNode struct {
	actor *node.Node
	vault *vault.Vault
	snap  NodeSnapshot
}

// Manager holds the set of running nodes by name and persists/loads
// snapshots from a per-node directory tree under root, per section
// 4.F. The manager's node map is owned exclusively by its own mutex;
// no locks are required anywhere else in the core path.
type Manager struct {
	mu   sync.Mutex
	root string
	log  *logrus.Entry

	running map[string]*runningNode
}

// New constructs a manager rooted at root. root is created lazily as
// nodes are created.
func New(root string, log *logrus.Entry) *Manager {
	return &Manager{
		root:    root,
		log:     log,
		running: make(map[string]*runningNode),
	}
}

// CreateNode persists a new node's identity and configuration. If
// material is nil, a random seed is generated; otherwise the seed is
// derived via DeriveSeed(material), matching the daemon's optional
// id_seed request field.
func (m *Manager) CreateNode(name string, material []byte, cfg config.Config) (NodeSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := loadSnapshot(m.root, name); err == nil {
		return NodeSnapshot{}, fmt.Errorf("create node %s: %w", name, objerr.ErrAlreadyExists)
	}

	var seed [seedSize]byte
	if material != nil {
		seed = DeriveSeed(material)
	} else {
		priv, err := newRandomEdKey()
		if err != nil {
			return NodeSnapshot{}, fmt.Errorf("create node %s: %w", name, err)
		}
		copy(seed[:], priv.Seed())
	}

	snap := NodeSnapshot{Name: name, Seed: seed, Config: cfg}
	if err := saveSnapshot(m.root, snap); err != nil {
		return NodeSnapshot{}, fmt.Errorf("create node %s: %w", name, err)
	}
	return snap, nil
}

func newRandomEdKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	return priv, err
}

// StartNode loads name's snapshot from disk, opens its vault, constructs and
// starts its actor, and links it back to the manager so an unexpected
// stop unregisters it.
func (m *Manager) StartNode(ctx context.Context, name string) (*node.Node, error) {
	m.mu.Lock()
	if _, alreadyRunning := m.running[name]; alreadyRunning {
		m.mu.Unlock()
		return nil, fmt.Errorf("start node %s: %w", name, objerr.ErrAlreadyStarted)
	}
	m.mu.Unlock()

	snap, err := loadSnapshot(m.root, name)
	if err != nil {
		return nil, fmt.Errorf("start node %s: %w", name, err)
	}

	v, err := vault.Open(vaultPath(m.root, name))
	if err != nil {
		return nil, fmt.Errorf("start node %s: open vault: %w", name, err)
	}

	priv := ed25519.NewKeyFromSeed(snap.Seed[:])
	n := node.New(name, priv, snap.Config, v, m.log)
	if err := n.Start(ctx); err != nil {
		v.Close()
		return nil, fmt.Errorf("start node %s: %w", name, err)
	}

	m.mu.Lock()
	if _, alreadyRunning := m.running[name]; alreadyRunning {
		m.mu.Unlock()
		n.Stop(ctx)
		v.Close()
		return nil, fmt.Errorf("start node %s: %w", name, objerr.ErrAlreadyStarted)
	}
	m.running[name] = &runningNode{actor: n, vault: v, snap: snap}
	m.mu.Unlock()

	go m.watchForDeath(name, n)
	return n, nil
}

// watchForDeath polls n's state until it stops on its own (a crashed
// swarm, per section 4.E's SwarmDied path) and unlinks it from the
// manager so a subsequent StartNode is accepted again.
func (m *Manager) watchForDeath(name string, n *node.Node) {
	ticker := time.NewTicker(deathPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		state, err := n.CurrentState(context.Background())
		if err != nil || state == node.Stopped {
			m.mu.Lock()
			if rn, ok := m.running[name]; ok && rn.actor == n {
				delete(m.running, name)
				rn.vault.Close()
				m.log.WithField("node", name).Warn("manager: unlinked node after unexpected stop")
			}
			m.mu.Unlock()
			return
		}
	}
}

// StopNode stops name's actor, flushes its snapshot to disk, closes
// its vault, and removes it from the running set.
func (m *Manager) StopNode(ctx context.Context, name string) error {
	m.mu.Lock()
	rn, ok := m.running[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("stop node %s: %w", name, objerr.ErrNotStarted)
	}
	delete(m.running, name)
	m.mu.Unlock()

	stopErr := rn.actor.Stop(ctx)
	if err := saveSnapshot(m.root, rn.snap); err != nil && stopErr == nil {
		stopErr = fmt.Errorf("stop node %s: flush snapshot: %w", name, err)
	}
	rn.vault.Close()
	return stopErr
}

// GetNode returns the running actor for name.
func (m *Manager) GetNode(name string) (*node.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rn, ok := m.running[name]
	if !ok {
		return nil, fmt.Errorf("get node %s: %w", name, objerr.ErrNotStarted)
	}
	return rn.actor, nil
}

// UpdateNodeConfig applies patch to name's persisted configuration and
// flushes it to disk. If name is currently running, the in-memory
// snapshot used for the next StopNode flush is updated too, but the
// change only takes effect for networking on the next start — the
// swarm loop is not hot-reloaded.
func (m *Manager) UpdateNodeConfig(name string, patch func(*config.Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rn, ok := m.running[name]; ok {
		patch(&rn.snap.Config)
		return saveSnapshot(m.root, rn.snap)
	}

	snap, err := loadSnapshot(m.root, name)
	if err != nil {
		return fmt.Errorf("update config for %s: %w", name, err)
	}
	patch(&snap.Config)
	return saveSnapshot(m.root, snap)
}

// ListNodes returns every persisted node name, whether or not it is
// currently running.
func (m *Manager) ListNodes() ([]string, error) {
	return listPersistedNodes(m.root)
}

// StartAll starts every persisted node not already running. It
// collects and returns the first error encountered but attempts every
// node regardless.
func (m *Manager) StartAll(ctx context.Context) error {
	names, err := m.ListNodes()
	if err != nil {
		return err
	}
	var firstErr error
	for _, name := range names {
		if _, err := m.StartNode(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StopAll stops every currently running node.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.running))
	for name := range m.running {
		names = append(names, name)
	}
	m.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := m.StopNode(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
