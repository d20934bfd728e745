package daemon

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
	"github.com/liberum-neto/objectnet/internal/objectnet/manager"
	"github.com/liberum-neto/objectnet/internal/objectnet/node"
	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
	"github.com/liberum-neto/objectnet/pkg/config"
)

// Dispatcher turns decoded Requests into Responses against a manager,
// per section 4.G: one request in, exactly one response out, whatever
// the outcome.
type Dispatcher struct {
	mgr *manager.Manager
	log *logrus.Entry
}

// NewDispatcher builds a dispatcher backed by mgr.
func NewDispatcher(mgr *manager.Manager, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{mgr: mgr, log: log}
}

// Handle processes one request and always returns a Response — errors
// are reported as a KindErr Response, never as a Go error, so callers
// can always write exactly one frame back.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	switch req.Kind {
	case KindNewNode:
		return d.handleNewNode(req.NewNode)
	case KindStartNode:
		return d.handleStartNode(ctx, req.StartNode)
	case KindStopNode:
		return d.handleStopNode(ctx, req.StopNode)
	case KindListNodes:
		return d.handleListNodes()
	case KindGetNodeConfig:
		return d.handleGetNodeConfig(req.GetNodeConfig)
	case KindOverwriteNodeConfig:
		return d.handleOverwriteNodeConfig(req.OverwriteNodeConfig)
	case KindPublishFile:
		return d.handlePublishFile(ctx, req.PublishFile)
	case KindDownloadFile:
		return d.handleDownloadFile(ctx, req.DownloadFile)
	case KindGetProviders:
		return d.handleGetProviders(ctx, req.GetProviders)
	case KindGetPeerID:
		return d.handleGetPeerID(req.GetPeerID)
	case KindDial:
		return d.handleDial(ctx, req.Dial)
	case KindDeleteObject:
		return d.handleDeleteObject(ctx, req.DeleteObject)
	default:
		return ErrorResponse(errors.New("daemon: unrecognized request kind"))
	}
}

func (d *Dispatcher) handleNewNode(r NewNodeRequest) Response {
	var material []byte
	if len(r.IDSeed) > 0 {
		material = r.IDSeed
	}
	if _, err := d.mgr.CreateNode(r.Name, material, config.Default()); err != nil {
		return ErrorResponse(err)
	}
	return OkResponse()
}

func (d *Dispatcher) handleStartNode(ctx context.Context, r StartNodeRequest) Response {
	if _, err := d.mgr.StartNode(ctx, r.Name); err != nil {
		return ErrorResponse(err)
	}
	return OkResponse()
}

func (d *Dispatcher) handleStopNode(ctx context.Context, r StopNodeRequest) Response {
	if err := d.mgr.StopNode(ctx, r.Name); err != nil {
		return ErrorResponse(err)
	}
	return OkResponse()
}

func (d *Dispatcher) handleListNodes() Response {
	names, err := d.mgr.ListNodes()
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Kind: KindNodeList, NodeList: names}
}

func (d *Dispatcher) handleGetNodeConfig(r GetNodeConfigRequest) Response {
	n, err := d.mgr.GetNode(r.Name)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Kind: KindNodeConfig, NodeConfig: n.Cfg()}
}

func (d *Dispatcher) handleOverwriteNodeConfig(r OverwriteNodeConfigRequest) Response {
	err := d.mgr.UpdateNodeConfig(r.Name, func(c *config.Config) { *c = r.Config })
	if err != nil {
		return ErrorResponse(err)
	}
	return OkResponse()
}

func (d *Dispatcher) handlePublishFile(ctx context.Context, r PublishFileRequest) Response {
	n, err := d.mgr.GetNode(r.Node)
	if err != nil {
		return ErrorResponse(err)
	}
	id, err := n.PublishFile(ctx, r.Path)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Kind: KindPublished, PublishedID: id.String()}
}

func (d *Dispatcher) handleDownloadFile(ctx context.Context, r DownloadFileRequest) Response {
	n, err := d.mgr.GetNode(r.Node)
	if err != nil {
		return ErrorResponse(err)
	}
	id, err := envelope.ParseHash(r.ID)
	if err != nil {
		return ErrorResponse(err)
	}
	file, err := n.DownloadFile(ctx, id)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Kind: KindDownloaded, Downloaded: DownloadedPayload{Name: file.Name, Content: file.Content}}
}

func (d *Dispatcher) handleGetProviders(ctx context.Context, r GetProvidersRequest) Response {
	n, err := d.mgr.GetNode(r.Node)
	if err != nil {
		return ErrorResponse(err)
	}
	id, err := envelope.ParseHash(r.ID)
	if err != nil {
		return ErrorResponse(err)
	}
	providers, err := n.GetProviders(ctx, id)
	if err != nil {
		return ErrorResponse(err)
	}
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.ID.String())
	}
	return Response{Kind: KindProviders, ProviderIDs: ids}
}

func (d *Dispatcher) handleGetPeerID(r GetPeerIDRequest) Response {
	n, err := d.mgr.GetNode(r.Node)
	if err != nil {
		return ErrorResponse(err)
	}
	peerID, err := n.GetPeerId()
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Kind: KindPeerID, PeerID: peerID.String()}
}

func (d *Dispatcher) handleDial(ctx context.Context, r DialRequest) Response {
	n, err := d.mgr.GetNode(r.Node)
	if err != nil {
		return ErrorResponse(err)
	}
	peerID, addr, err := node.ParsePeerAddr(r.PeerID, r.Addr)
	if err != nil {
		return ErrorResponse(err)
	}
	if err := n.Dial(ctx, peerID, addr); err != nil {
		return ErrorResponse(err)
	}
	return OkResponse()
}

func (d *Dispatcher) handleDeleteObject(ctx context.Context, r DeleteObjectRequest) Response {
	n, err := d.mgr.GetNode(r.Node)
	if err != nil {
		return ErrorResponse(err)
	}
	id, err := envelope.ParseHash(r.ObjectID)
	if err != nil {
		return ErrorResponse(err)
	}
	result, err := n.DeleteObject(ctx, id)
	if err != nil {
		return ErrorResponse(err)
	}
	if !result.OK {
		return ErrorResponse(objerr.ErrSignatureInvalid)
	}
	return Response{Kind: KindDeleted, Deleted: result.OK, DeletedMsg: result.Message}
}
