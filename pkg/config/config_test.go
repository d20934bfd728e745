package config

import (
	"path/filepath"
	"testing"

	"github.com/liberum-neto/objectnet/internal/testutil"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	cfg, err := Load(sb.Path("config.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Default()
	if cfg.Network.ListenAddr != want.Network.ListenAddr {
		t.Fatalf("expected default listen addr %q, got %q", want.Network.ListenAddr, cfg.Network.ListenAddr)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	path := filepath.Join(sb.Root, "node-a", "config.yaml")

	cfg := Default()
	cfg.Network.BootstrapPeers = []string{"/ip6/::1/udp/4001/quic-v1/p2p/QmPeer"}
	cfg.Network.ExternalAddrs = []string{"/ip4/203.0.113.9/udp/4001/quic-v1"}
	cfg.Logging.Level = "debug"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.Network.BootstrapPeers) != 1 || loaded.Network.BootstrapPeers[0] != cfg.Network.BootstrapPeers[0] {
		t.Fatalf("bootstrap peers did not round-trip: got %v", loaded.Network.BootstrapPeers)
	}
	if loaded.Logging.Level != "debug" {
		t.Fatalf("expected logging level debug, got %q", loaded.Logging.Level)
	}
}
