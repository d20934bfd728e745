package daemon

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/liberum-neto/objectnet/pkg/config"
)

func TestRequestRoundTrips(t *testing.T) {
	cfg := config.Default()
	cfg.Network.BootstrapPeers = []string{"/ip4/1.2.3.4/tcp/4001/p2p/QmPeer"}

	cases := []Request{
		{Kind: KindNewNode, NewNode: NewNodeRequest{Name: "n1", IDSeed: []byte("seed-material")}},
		{Kind: KindNewNode, NewNode: NewNodeRequest{Name: "n2"}},
		{Kind: KindStartNode, StartNode: StartNodeRequest{Name: "n1"}},
		{Kind: KindStopNode, StopNode: StopNodeRequest{Name: "n1"}},
		{Kind: KindListNodes},
		{Kind: KindGetNodeConfig, GetNodeConfig: GetNodeConfigRequest{Name: "n1"}},
		{Kind: KindOverwriteNodeConfig, OverwriteNodeConfig: OverwriteNodeConfigRequest{Name: "n1", Config: cfg}},
		{Kind: KindPublishFile, PublishFile: PublishFileRequest{Node: "n1", Path: "/tmp/f.txt"}},
		{Kind: KindDownloadFile, DownloadFile: DownloadFileRequest{Node: "n1", ID: "abc123"}},
		{Kind: KindGetProviders, GetProviders: GetProvidersRequest{Node: "n1", ID: "abc123"}},
		{Kind: KindGetPeerID, GetPeerID: GetPeerIDRequest{Node: "n1"}},
		{Kind: KindDial, Dial: DialRequest{Node: "n1", PeerID: "Qm...", Addr: "/ip4/1.2.3.4/tcp/4001"}},
		{Kind: KindDeleteObject, DeleteObject: DeleteObjectRequest{Node: "n1", ObjectID: "abc123"}},
	}

	for _, want := range cases {
		raw := EncodeRequest(want)
		got, err := DecodeRequest(raw)
		if err != nil {
			t.Fatalf("DecodeRequest failed for kind %d: %v", want.Kind, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("round trip mismatch for kind %d (-want +got):\n%s", want.Kind, diff)
		}
	}
}

func TestResponseRoundTrips(t *testing.T) {
	cfg := config.Default()

	cases := []Response{
		OkResponse(),
		{Kind: KindErr, Err: "node: not started"},
		{Kind: KindNodeList, NodeList: []string{"a", "b", "c"}},
		{Kind: KindNodeConfig, NodeConfig: cfg},
		{Kind: KindPublished, PublishedID: "hash123"},
		{Kind: KindDownloaded, Downloaded: DownloadedPayload{Name: "f.txt", Content: []byte("hello")}},
		{Kind: KindProviders, ProviderIDs: []string{"p1", "p2"}},
		{Kind: KindPeerID, PeerID: "Qm..."},
		{Kind: KindDeleted, Deleted: true, DeletedMsg: "ok"},
	}

	for i, want := range cases {
		raw := EncodeResponse(want)
		got, err := DecodeResponse(raw)
		if err != nil {
			t.Fatalf("case %d: DecodeResponse failed: %v", i, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("case %d: round trip mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestDecodeRequestRejectsUnknownKind(t *testing.T) {
	if _, err := DecodeRequest([]byte{255}); err == nil {
		t.Fatal("expected an error decoding an unknown request kind")
	}
}

func TestDecodeRequestRejectsTruncated(t *testing.T) {
	raw := EncodeRequest(Request{Kind: KindStartNode, StartNode: StartNodeRequest{Name: "n1"}})
	if _, err := DecodeRequest(raw[:len(raw)-1]); err == nil {
		t.Fatal("expected an error decoding a truncated request")
	}
}
