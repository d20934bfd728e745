// Package manager implements the node supervisor described in section
// 4.F: it holds the set of running nodes by name and persists/loads
// node snapshots from a per-node directory tree under a configurable
// root, per section 6's layout.
package manager

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"lukechampine.com/blake3"

	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
	"github.com/liberum-neto/objectnet/pkg/config"
)

const identityFormatV1 = 1

// seedSize is the length of an ed25519 seed, not the derived key.
const seedSize = 32

// nodeDir returns <root>/<name>.
func nodeDir(root, name string) string {
	return filepath.Join(root, name)
}

func identityPath(root, name string) string {
	return filepath.Join(nodeDir(root, name), "identity")
}

func configPath(root, name string) string {
	return filepath.Join(nodeDir(root, name), "config.yaml")
}

func vaultPath(root, name string) string {
	return filepath.Join(nodeDir(root, name), "vault", "vault.db")
}

// DeriveSeed turns arbitrary seed material into a 32-byte ed25519 seed,
// per section 6: blake3(seed) -> 32-byte ed25519 seed.
func DeriveSeed(material []byte) [seedSize]byte {
	return blake3.Sum256(material)
}

// writeIdentity persists name and seed to path in a flat, versioned
// encoding: the envelope codec's deterministic style reused directly
// (a format tag byte, a length-prefixed name, then the raw seed)
// rather than introducing a second serialization format for a single
// fixed-shape record.
func writeIdentity(path string, name string, seed [seedSize]byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create node directory: %w", err)
	}
	nameBytes := []byte(name)
	buf := make([]byte, 0, 1+4+len(nameBytes)+seedSize)
	buf = append(buf, identityFormatV1)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(nameBytes)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, nameBytes...)
	buf = append(buf, seed[:]...)
	return os.WriteFile(path, buf, 0o600)
}

// readIdentity parses the encoding written by writeIdentity.
func readIdentity(path string) (name string, seed [seedSize]byte, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", seed, err
	}
	if len(data) < 1+4 {
		return "", seed, fmt.Errorf("identity file %s: %w", path, objerr.ErrDecode)
	}
	if data[0] != identityFormatV1 {
		return "", seed, fmt.Errorf("identity file %s: unsupported format %d", path, data[0])
	}
	nameLen := binary.BigEndian.Uint32(data[1:5])
	rest := data[5:]
	if uint32(len(rest)) < nameLen+seedSize {
		return "", seed, fmt.Errorf("identity file %s: %w", path, objerr.ErrDecode)
	}
	name = string(rest[:nameLen])
	copy(seed[:], rest[nameLen:nameLen+seedSize])
	return name, seed, nil
}

// NodeSnapshot is the persisted state of one node: its name, the seed
// its keypair derives from, and its configuration.
type NodeSnapshot struct {
	Name   string
	Seed   [seedSize]byte
	Config config.Config
}

// loadSnapshot reads a node's identity and configuration from disk.
func loadSnapshot(root, name string) (NodeSnapshot, error) {
	_, seed, err := readIdentity(identityPath(root, name))
	if err != nil {
		return NodeSnapshot{}, fmt.Errorf("load identity for %s: %w", name, err)
	}
	cfg, err := config.Load(configPath(root, name))
	if err != nil {
		return NodeSnapshot{}, fmt.Errorf("load config for %s: %w", name, err)
	}
	return NodeSnapshot{Name: name, Seed: seed, Config: *cfg}, nil
}

// saveSnapshot flushes a node's identity and configuration to disk.
func saveSnapshot(root string, snap NodeSnapshot) error {
	if err := writeIdentity(identityPath(root, snap.Name), snap.Name, snap.Seed); err != nil {
		return fmt.Errorf("save identity for %s: %w", snap.Name, err)
	}
	if err := config.Save(configPath(root, snap.Name), snap.Config); err != nil {
		return fmt.Errorf("save config for %s: %w", snap.Name, err)
	}
	return nil
}

// listPersistedNodes returns the names of every node directory under
// root that has a readable identity file.
func listPersistedNodes(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(identityPath(root, e.Name())); err == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
