package daemon

import (
	"fmt"

	"github.com/liberum-neto/objectnet/pkg/config"
)

// RequestKind tags every DaemonRequest variant named in section 6.
type RequestKind uint8

const (
	KindNewNode RequestKind = iota + 1
	KindStartNode
	KindStopNode
	KindListNodes
	KindGetNodeConfig
	KindOverwriteNodeConfig
	KindPublishFile
	KindDownloadFile
	KindGetProviders
	KindGetPeerID
	KindDial
	KindDeleteObject
)

// Request is the decoded form of one DaemonRequest frame. Exactly one
// of the typed fields is populated, selected by Kind.
type Request struct {
	Kind RequestKind

	NewNode             NewNodeRequest
	StartNode           StartNodeRequest
	StopNode            StopNodeRequest
	GetNodeConfig       GetNodeConfigRequest
	OverwriteNodeConfig OverwriteNodeConfigRequest
	PublishFile         PublishFileRequest
	DownloadFile        DownloadFileRequest
	GetProviders        GetProvidersRequest
	GetPeerID           GetPeerIDRequest
	Dial                DialRequest
	DeleteObject        DeleteObjectRequest
}

type NewNodeRequest struct {
	Name   string
	IDSeed []byte // empty means "generate a random identity"
}

type StartNodeRequest struct{ Name string }
type StopNodeRequest struct{ Name string }
type GetNodeConfigRequest struct{ Name string }

type OverwriteNodeConfigRequest struct {
	Name   string
	Config config.Config
}

type PublishFileRequest struct {
	Node string
	Path string
}

type DownloadFileRequest struct {
	Node string
	ID   string // base58
}

type GetProvidersRequest struct {
	Node string
	ID   string
}

type GetPeerIDRequest struct{ Node string }

type DialRequest struct {
	Node   string
	PeerID string
	Addr   string
}

type DeleteObjectRequest struct {
	Node     string
	ObjectID string
}

func encodeConfig(w *bodyWriter, cfg config.Config) {
	w.string(cfg.Network.ListenAddr)
	w.string(cfg.Network.DiscoveryTag)
	w.stringSlice(cfg.Network.BootstrapPeers)
	w.stringSlice(cfg.Network.ExternalAddrs)
	w.string(cfg.Logging.Level)
}

func decodeConfig(r *bodyReader) (config.Config, error) {
	var cfg config.Config
	var err error
	if cfg.Network.ListenAddr, err = r.string(); err != nil {
		return cfg, err
	}
	if cfg.Network.DiscoveryTag, err = r.string(); err != nil {
		return cfg, err
	}
	if cfg.Network.BootstrapPeers, err = r.stringSlice(); err != nil {
		return cfg, err
	}
	if cfg.Network.ExternalAddrs, err = r.stringSlice(); err != nil {
		return cfg, err
	}
	if cfg.Logging.Level, err = r.string(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EncodeRequest renders req in the daemon's wire form.
func EncodeRequest(req Request) []byte {
	w := &bodyWriter{}
	w.uint8(uint8(req.Kind))
	switch req.Kind {
	case KindNewNode:
		w.string(req.NewNode.Name)
		w.bytes(req.NewNode.IDSeed)
	case KindStartNode:
		w.string(req.StartNode.Name)
	case KindStopNode:
		w.string(req.StopNode.Name)
	case KindListNodes:
	case KindGetNodeConfig:
		w.string(req.GetNodeConfig.Name)
	case KindOverwriteNodeConfig:
		w.string(req.OverwriteNodeConfig.Name)
		encodeConfig(w, req.OverwriteNodeConfig.Config)
	case KindPublishFile:
		w.string(req.PublishFile.Node)
		w.string(req.PublishFile.Path)
	case KindDownloadFile:
		w.string(req.DownloadFile.Node)
		w.string(req.DownloadFile.ID)
	case KindGetProviders:
		w.string(req.GetProviders.Node)
		w.string(req.GetProviders.ID)
	case KindGetPeerID:
		w.string(req.GetPeerID.Node)
	case KindDial:
		w.string(req.Dial.Node)
		w.string(req.Dial.PeerID)
		w.string(req.Dial.Addr)
	case KindDeleteObject:
		w.string(req.DeleteObject.Node)
		w.string(req.DeleteObject.ObjectID)
	}
	return w.buf
}

// DecodeRequest parses a DaemonRequest frame produced by EncodeRequest.
func DecodeRequest(data []byte) (Request, error) {
	r := &bodyReader{buf: data}
	kindByte, err := r.uint8()
	if err != nil {
		return Request{}, err
	}
	req := Request{Kind: RequestKind(kindByte)}
	switch req.Kind {
	case KindNewNode:
		if req.NewNode.Name, err = r.string(); err != nil {
			return Request{}, err
		}
		if req.NewNode.IDSeed, err = r.bytes(); err != nil {
			return Request{}, err
		}
	case KindStartNode:
		if req.StartNode.Name, err = r.string(); err != nil {
			return Request{}, err
		}
	case KindStopNode:
		if req.StopNode.Name, err = r.string(); err != nil {
			return Request{}, err
		}
	case KindListNodes:
	case KindGetNodeConfig:
		if req.GetNodeConfig.Name, err = r.string(); err != nil {
			return Request{}, err
		}
	case KindOverwriteNodeConfig:
		if req.OverwriteNodeConfig.Name, err = r.string(); err != nil {
			return Request{}, err
		}
		if req.OverwriteNodeConfig.Config, err = decodeConfig(r); err != nil {
			return Request{}, err
		}
	case KindPublishFile:
		if req.PublishFile.Node, err = r.string(); err != nil {
			return Request{}, err
		}
		if req.PublishFile.Path, err = r.string(); err != nil {
			return Request{}, err
		}
	case KindDownloadFile:
		if req.DownloadFile.Node, err = r.string(); err != nil {
			return Request{}, err
		}
		if req.DownloadFile.ID, err = r.string(); err != nil {
			return Request{}, err
		}
	case KindGetProviders:
		if req.GetProviders.Node, err = r.string(); err != nil {
			return Request{}, err
		}
		if req.GetProviders.ID, err = r.string(); err != nil {
			return Request{}, err
		}
	case KindGetPeerID:
		if req.GetPeerID.Node, err = r.string(); err != nil {
			return Request{}, err
		}
	case KindDial:
		if req.Dial.Node, err = r.string(); err != nil {
			return Request{}, err
		}
		if req.Dial.PeerID, err = r.string(); err != nil {
			return Request{}, err
		}
		if req.Dial.Addr, err = r.string(); err != nil {
			return Request{}, err
		}
	case KindDeleteObject:
		if req.DeleteObject.Node, err = r.string(); err != nil {
			return Request{}, err
		}
		if req.DeleteObject.ObjectID, err = r.string(); err != nil {
			return Request{}, err
		}
	default:
		return Request{}, fmt.Errorf("decode request: unknown kind %d", kindByte)
	}
	if err := r.done(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// ResponseKind tags every DaemonResponse variant, mirroring the
// requests by kind, plus a generic error variant for every failure
// path enumerated in section 7.
type ResponseKind uint8

const (
	KindOk ResponseKind = iota + 1
	KindErr
	KindNodeList
	KindNodeConfig
	KindPublished
	KindDownloaded
	KindProviders
	KindPeerID
	KindDeleted
)

// Response is the decoded form of one DaemonResponse/DaemonError
// frame.
type Response struct {
	Kind ResponseKind

	Err          string // populated when Kind == KindErr
	NodeList     []string
	NodeConfig   config.Config
	PublishedID  string
	Downloaded   DownloadedPayload
	ProviderIDs  []string
	PeerID       string
	Deleted      bool
	DeletedMsg   string
}

type DownloadedPayload struct {
	Name    string
	Content []byte
}

// OkResponse is the bare acknowledgement used by StartNode, StopNode,
// NewNode, OverwriteNodeConfig and Dial on success.
func OkResponse() Response { return Response{Kind: KindOk} }

// ErrorResponse carries a sentinel error's message back to the caller,
// per section 7's error-kind table.
func ErrorResponse(err error) Response {
	return Response{Kind: KindErr, Err: err.Error()}
}

// EncodeResponse renders resp in the daemon's wire form.
func EncodeResponse(resp Response) []byte {
	w := &bodyWriter{}
	w.uint8(uint8(resp.Kind))
	switch resp.Kind {
	case KindOk:
	case KindErr:
		w.string(resp.Err)
	case KindNodeList:
		w.stringSlice(resp.NodeList)
	case KindNodeConfig:
		encodeConfig(w, resp.NodeConfig)
	case KindPublished:
		w.string(resp.PublishedID)
	case KindDownloaded:
		w.string(resp.Downloaded.Name)
		w.bytes(resp.Downloaded.Content)
	case KindProviders:
		w.uint8(uint8(len(resp.ProviderIDs)))
		for _, p := range resp.ProviderIDs {
			w.string(p)
		}
	case KindPeerID:
		w.string(resp.PeerID)
	case KindDeleted:
		w.bool(resp.Deleted)
		w.string(resp.DeletedMsg)
	}
	return w.buf
}

// DecodeResponse parses a DaemonResponse frame produced by EncodeResponse.
func DecodeResponse(data []byte) (Response, error) {
	r := &bodyReader{buf: data}
	kindByte, err := r.uint8()
	if err != nil {
		return Response{}, err
	}
	resp := Response{Kind: ResponseKind(kindByte)}
	switch resp.Kind {
	case KindOk:
	case KindErr:
		if resp.Err, err = r.string(); err != nil {
			return Response{}, err
		}
	case KindNodeList:
		if resp.NodeList, err = r.stringSlice(); err != nil {
			return Response{}, err
		}
	case KindNodeConfig:
		if resp.NodeConfig, err = decodeConfig(r); err != nil {
			return Response{}, err
		}
	case KindPublished:
		if resp.PublishedID, err = r.string(); err != nil {
			return Response{}, err
		}
	case KindDownloaded:
		if resp.Downloaded.Name, err = r.string(); err != nil {
			return Response{}, err
		}
		if resp.Downloaded.Content, err = r.bytes(); err != nil {
			return Response{}, err
		}
	case KindProviders:
		n, err2 := r.uint8()
		if err2 != nil {
			return Response{}, err2
		}
		resp.ProviderIDs = make([]string, 0, n)
		for i := uint8(0); i < n; i++ {
			p, err3 := r.string()
			if err3 != nil {
				return Response{}, err3
			}
			resp.ProviderIDs = append(resp.ProviderIDs, p)
		}
	case KindPeerID:
		if resp.PeerID, err = r.string(); err != nil {
			return Response{}, err
		}
	case KindDeleted:
		if resp.Deleted, err = r.bool(); err != nil {
			return Response{}, err
		}
		if resp.DeletedMsg, err = r.string(); err != nil {
			return Response{}, err
		}
	default:
		return Response{}, fmt.Errorf("decode response: unknown kind %d", kindByte)
	}
	if err := r.done(); err != nil {
		return Response{}, err
	}
	return resp, nil
}
