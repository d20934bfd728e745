// Package registry implements the module registry described in section
// 4.B: a type_uuid-keyed handler table driving the publish, store and
// query pipelines. Handlers are transformations over a small per-pipeline
// context; the pipeline iterates until no handler produces a
// continuation envelope.
package registry

import (
	"sync"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
)

// Vault is the subset of vault operations the pipelines need. Defined
// here, rather than imported from the vault package, so registry has no
// dependency on any particular storage engine.
type Vault interface {
	StoreObject(hash envelope.Hash, env envelope.Envelope) (added bool, err error)
	LoadObject(hash envelope.Hash) (envelope.Envelope, bool, error)
	DeleteObject(hash envelope.Hash) (bool, error)
	StorePin(mainHash, fromHash, toHash envelope.Hash, relation *envelope.Hash) error
	MatchPins(mainScope []envelope.Hash, from, relation *envelope.Hash) ([]envelope.Hash, error)
}

// PublishContext accumulates the DHT keys an object should be announced
// under.
type PublishContext struct {
	Keys []envelope.Hash
}

// StoreContext carries the vault a store pipeline writes to, the signing
// key recovered from the outermost signed object, and whether the
// outermost store actually added a new object or found the hash already
// present.
type StoreContext struct {
	Vault     Vault
	SignerKey []byte
	Added     bool
}

// QueryContext accumulates the hash set a query resolves to, plus any
// side-effect result objects (currently only delete queries emit one).
// VerifiedSignerKey is set by SignedObjectHandler.Query to the public
// key that actually produced a verified signature over the remainder of
// the pipeline — the only identity a delete query's authorization check
// may trust, since any field inside the query body itself is a bare,
// unauthenticated claim from the requester.
type QueryContext struct {
	Vault             Vault
	Hashes            map[envelope.Hash]struct{}
	Results           []envelope.Envelope
	VerifiedSignerKey []byte
}

// AddHash adds h to the accumulator.
func (c *QueryContext) AddHash(h envelope.Hash) {
	if c.Hashes == nil {
		c.Hashes = make(map[envelope.Hash]struct{})
	}
	c.Hashes[h] = struct{}{}
}

// Handler implements the publish/store/query transformations for one
// registered type_uuid. Each method returns the set of envelopes to
// recurse into; a nil or empty slice halts that branch of the pipeline.
type Handler interface {
	TypeUUID() envelope.TypeUUID
	Publish(ctx *PublishContext, env envelope.Envelope) ([]envelope.Envelope, error)
	Store(ctx *StoreContext, env envelope.Envelope) ([]envelope.Envelope, error)
	Query(ctx *QueryContext, env envelope.Envelope) ([]envelope.Envelope, error)
}

// NopHandler gives every Handler method a terminal, no-op default;
// concrete handlers embed it and override only the methods they need.
type NopHandler struct{}

func (NopHandler) Publish(*PublishContext, envelope.Envelope) ([]envelope.Envelope, error) {
	return nil, nil
}
func (NopHandler) Store(*StoreContext, envelope.Envelope) ([]envelope.Envelope, error) {
	return nil, nil
}
func (NopHandler) Query(*QueryContext, envelope.Envelope) ([]envelope.Envelope, error) {
	return nil, nil
}

// Registry maps type_uuid to its handler. On a Register collision, the
// later call wins — intentional, so a host process can override a
// built-in handler by registering its own after the defaults.
type Registry struct {
	mu       sync.RWMutex
	handlers map[envelope.TypeUUID]Handler
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[envelope.TypeUUID]Handler)}
}

// NewDefault returns a registry pre-populated with the built-in handlers
// for every type_uuid this implementation recognizes.
func NewDefault() *Registry {
	r := New()
	r.Register(SignedObjectHandler{})
	r.Register(PinObjectHandler{})
	r.Register(PlainFileHandler{})
	r.Register(GroupObjectHandler{})
	r.Register(SimpleIDQueryHandler{})
	r.Register(PinQueryHandler{})
	r.Register(DeleteObjectQueryHandler{})
	return r
}

// Register installs h under h.TypeUUID(), replacing whatever handler, if
// any, previously claimed that type_uuid.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.TypeUUID()] = h
}

func (r *Registry) lookup(t envelope.TypeUUID) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Publish walks env and every envelope it recursively wraps, collecting
// the DHT keys the object should be announced under.
func (r *Registry) Publish(env envelope.Envelope) ([]envelope.Hash, error) {
	ctx := &PublishContext{}
	if err := r.walkPublish(ctx, env); err != nil {
		return nil, err
	}
	return ctx.Keys, nil
}

func (r *Registry) walkPublish(ctx *PublishContext, env envelope.Envelope) error {
	h, ok := r.lookup(env.TypeUUID)
	if !ok {
		return nil
	}
	next, err := h.Publish(ctx, env)
	if err != nil {
		return err
	}
	for _, n := range next {
		if err := r.walkPublish(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// Store validates that env is an outermost signed object, then persists
// it and every envelope it recursively unwraps to, returning the hash of
// the outer signed envelope and whether that outer envelope was newly
// added (false means its hash was already present in the vault).
func (r *Registry) Store(env envelope.Envelope, v Vault) (envelope.Hash, bool, error) {
	if env.TypeUUID != envelope.SignedObjectType {
		return envelope.Hash{}, false, objerr.ErrNotSigned
	}
	ctx := &StoreContext{Vault: v}
	h, ok := r.lookup(env.TypeUUID)
	if !ok {
		return envelope.Hash{}, false, objerr.ErrNotSigned
	}
	outerHash := envelope.HashOf(env)
	next, err := h.Store(ctx, env)
	if err != nil {
		return envelope.Hash{}, false, err
	}
	for _, n := range next {
		if err := r.walkStore(ctx, n); err != nil {
			return envelope.Hash{}, false, err
		}
	}
	return outerHash, ctx.Added, nil
}

func (r *Registry) walkStore(ctx *StoreContext, env envelope.Envelope) error {
	h, ok := r.lookup(env.TypeUUID)
	if !ok {
		// No handler claims this type: store it verbatim as a leaf so
		// its hash still resolves later, and stop descending.
		_, err := ctx.Vault.StoreObject(envelope.HashOf(env), env)
		return err
	}
	next, err := h.Store(ctx, env)
	if err != nil {
		return err
	}
	for _, n := range next {
		if err := r.walkStore(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// Query runs env through the query pipeline, resolving the final hash
// accumulator to stored envelopes, plus any result objects (e.g. the
// outcome of a delete request) the pipeline emitted. A DeleteObjectQuery
// carries a side effect (it can destroy data) rather than merely reading
// it, so — mirroring Store's outermost-signed-envelope gate — it must
// not appear as the bare top-level envelope; it must arrive wrapped in a
// SignedObject whose signature the pipeline verifies.
func (r *Registry) Query(env envelope.Envelope, v Vault) ([]envelope.Envelope, error) {
	if env.TypeUUID == envelope.DeleteObjectQueryType {
		return nil, objerr.ErrNotSigned
	}
	ctx := &QueryContext{Vault: v, Hashes: make(map[envelope.Hash]struct{})}
	if err := r.walkQuery(ctx, env); err != nil {
		return nil, err
	}

	out := make([]envelope.Envelope, 0, len(ctx.Hashes)+len(ctx.Results))
	for h := range ctx.Hashes {
		obj, ok, err := v.LoadObject(h)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, obj)
		}
	}
	out = append(out, ctx.Results...)
	return out, nil
}

func (r *Registry) walkQuery(ctx *QueryContext, env envelope.Envelope) error {
	h, ok := r.lookup(env.TypeUUID)
	if !ok {
		return nil
	}
	next, err := h.Query(ctx, env)
	if err != nil {
		return err
	}
	for _, n := range next {
		if err := r.walkQuery(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
