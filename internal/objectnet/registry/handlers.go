package registry

import (
	"crypto/ed25519"
	"fmt"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
)

// SignedObjectHandler is the only handler the store pipeline may start
// from. It verifies the envelope's signature, records the outer hash as
// a publish key, and unwraps to the inner envelope for the rest of the
// pipeline.
type SignedObjectHandler struct{ NopHandler }

func (SignedObjectHandler) TypeUUID() envelope.TypeUUID { return envelope.SignedObjectType }

func (SignedObjectHandler) Publish(ctx *PublishContext, env envelope.Envelope) ([]envelope.Envelope, error) {
	var so envelope.SignedObject
	if err := envelope.Unwrap(env, &so); err != nil {
		return nil, err
	}
	ctx.Keys = append(ctx.Keys, envelope.HashOf(env))
	return []envelope.Envelope{so.Inner}, nil
}

// Query unwraps a signed envelope encountered mid-pipeline — notably a
// DeleteObjectQuery submitted wrapped in a signed envelope to prove the
// requester holds the private half of the key they claim authorizes the
// deletion — verifying the wrapper's own signature before continuing.
// The verified signer's public key is recorded on ctx so a downstream
// handler can authorize against the key that actually produced this
// signature, not against anything the requester merely wrote into the
// query body.
func (SignedObjectHandler) Query(ctx *QueryContext, env envelope.Envelope) ([]envelope.Envelope, error) {
	var so envelope.SignedObject
	if err := envelope.Unwrap(env, &so); err != nil {
		return nil, err
	}
	if !envelope.Verify(so) {
		return nil, objerr.ErrSignatureInvalid
	}
	ctx.VerifiedSignerKey = so.PublicKey
	return []envelope.Envelope{so.Inner}, nil
}

func (SignedObjectHandler) Store(ctx *StoreContext, env envelope.Envelope) ([]envelope.Envelope, error) {
	var so envelope.SignedObject
	if err := envelope.Unwrap(env, &so); err != nil {
		return nil, err
	}
	if !envelope.Verify(so) {
		return nil, objerr.ErrSignatureInvalid
	}
	added, err := ctx.Vault.StoreObject(envelope.HashOf(env), env)
	if err != nil {
		return nil, err
	}
	ctx.Added = added
	ctx.SignerKey = so.PublicKey
	return []envelope.Envelope{so.Inner}, nil
}

// PinObjectHandler persists a pin both as a regular object (so its own
// hash resolves) and as a pin_edge row, then continues into its inner
// envelope.
type PinObjectHandler struct{ NopHandler }

func (PinObjectHandler) TypeUUID() envelope.TypeUUID { return envelope.PinObjectType }

func (PinObjectHandler) Publish(ctx *PublishContext, env envelope.Envelope) ([]envelope.Envelope, error) {
	var p envelope.PinObject
	if err := envelope.Unwrap(env, &p); err != nil {
		return nil, err
	}
	ctx.Keys = append(ctx.Keys, p.PinnedID)
	return []envelope.Envelope{p.Inner}, nil
}

func (PinObjectHandler) Store(ctx *StoreContext, env envelope.Envelope) ([]envelope.Envelope, error) {
	var p envelope.PinObject
	if err := envelope.Unwrap(env, &p); err != nil {
		return nil, err
	}
	mainHash := envelope.HashOf(env)
	if _, err := ctx.Vault.StoreObject(mainHash, env); err != nil {
		return nil, err
	}
	toHash := envelope.HashOf(p.Inner)
	if err := ctx.Vault.StorePin(mainHash, p.PinnedID, toHash, p.Relation); err != nil {
		return nil, err
	}
	return []envelope.Envelope{p.Inner}, nil
}

// PlainFileHandler is a terminal leaf: a named byte blob with no further
// structure to recurse into.
type PlainFileHandler struct{ NopHandler }

func (PlainFileHandler) TypeUUID() envelope.TypeUUID { return envelope.PlainFileType }

func (PlainFileHandler) Store(ctx *StoreContext, env envelope.Envelope) ([]envelope.Envelope, error) {
	if _, err := ctx.Vault.StoreObject(envelope.HashOf(env), env); err != nil {
		return nil, err
	}
	return nil, nil
}

// GroupObjectHandler stores the group envelope itself, then recurses
// into every member so each still resolves individually by its own
// hash.
type GroupObjectHandler struct{ NopHandler }

func (GroupObjectHandler) TypeUUID() envelope.TypeUUID { return envelope.GroupObjectType }

func (GroupObjectHandler) Publish(ctx *PublishContext, env envelope.Envelope) ([]envelope.Envelope, error) {
	var g envelope.GroupObject
	if err := envelope.Unwrap(env, &g); err != nil {
		return nil, err
	}
	return g.Members, nil
}

func (GroupObjectHandler) Store(ctx *StoreContext, env envelope.Envelope) ([]envelope.Envelope, error) {
	var g envelope.GroupObject
	if err := envelope.Unwrap(env, &g); err != nil {
		return nil, err
	}
	if _, err := ctx.Vault.StoreObject(envelope.HashOf(env), env); err != nil {
		return nil, err
	}
	return g.Members, nil
}

// SimpleIDQueryHandler resolves to the singleton set {id}.
type SimpleIDQueryHandler struct{ NopHandler }

func (SimpleIDQueryHandler) TypeUUID() envelope.TypeUUID { return envelope.SimpleIDQueryType }

func (SimpleIDQueryHandler) Query(ctx *QueryContext, env envelope.Envelope) ([]envelope.Envelope, error) {
	var q envelope.SimpleIDQuery
	if err := envelope.Unwrap(env, &q); err != nil {
		return nil, err
	}
	ctx.AddHash(q.ID)
	return nil, nil
}

// PinQueryHandler narrows the result set to hashes of pins matching the
// given edge pattern.
type PinQueryHandler struct{ NopHandler }

func (PinQueryHandler) TypeUUID() envelope.TypeUUID { return envelope.PinQueryType }

func (PinQueryHandler) Query(ctx *QueryContext, env envelope.Envelope) ([]envelope.Envelope, error) {
	var q envelope.PinQuery
	if err := envelope.Unwrap(env, &q); err != nil {
		return nil, err
	}
	// q.Inner, when present, names the "to" side of the edge; the vault's
	// match_pins only filters by from/relation (section 4.C), so a
	// to-hash restriction is not applied here.
	matches, err := ctx.Vault.MatchPins(nil, q.PinnedID, q.Relation)
	if err != nil {
		return nil, err
	}
	for _, h := range matches {
		ctx.AddHash(h)
	}
	return nil, nil
}

// DeleteObjectQueryHandler authorizes a delete against the key that
// actually signed the enclosing request — ctx.VerifiedSignerKey, set by
// SignedObjectHandler.Query from the wrapper's own verified signature —
// and, only on a match against the stored target's own signing key,
// deletes the target and emits a Result object. q.VerifyingKey is not
// trusted for this decision: it is a plain field inside the query body
// that any requester can set to whatever value they like, so comparing
// against it proves nothing about who actually signed the request.
type DeleteObjectQueryHandler struct{ NopHandler }

func (DeleteObjectQueryHandler) TypeUUID() envelope.TypeUUID { return envelope.DeleteObjectQueryType }

func (DeleteObjectQueryHandler) Query(ctx *QueryContext, env envelope.Envelope) ([]envelope.Envelope, error) {
	var q envelope.DeleteObjectQuery
	if err := envelope.Unwrap(env, &q); err != nil {
		return nil, err
	}

	result := envelope.ResultObject{}
	target, ok, err := ctx.Vault.LoadObject(q.ID)
	if err != nil {
		return nil, err
	}
	switch {
	case !ok:
		result.Message = "no such object"
	case len(ctx.VerifiedSignerKey) != ed25519.PublicKeySize:
		result.Message = objerr.ErrNotSigned.Error()
	default:
		var so envelope.SignedObject
		if err := envelope.Unwrap(target, &so); err != nil {
			result.Message = fmt.Sprintf("target is not a signed object: %v", err)
		} else if len(so.PublicKey) != ed25519.PublicKeySize || string(so.PublicKey) != string(ctx.VerifiedSignerKey) {
			result.Message = objerr.ErrSignatureInvalid.Error()
		} else if _, err := ctx.Vault.DeleteObject(q.ID); err != nil {
			result.Message = err.Error()
		} else {
			result.OK = true
			result.Message = "deleted"
		}
	}

	resultEnv, err := envelope.Wrap(envelope.ResultObjectType, result)
	if err != nil {
		return nil, err
	}
	ctx.Results = append(ctx.Results, resultEnv)
	return nil, nil
}
