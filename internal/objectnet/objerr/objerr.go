// Package objerr enumerates the error kinds the object mesh core must
// distinguish. Callers compare with errors.Is; handlers wrap with %w to
// preserve the sentinel through the call stack.
package objerr

import "errors"

var (
	// ErrNotSigned is raised by the store pipeline when the outermost
	// envelope is not a signed object, and by the query pipeline when a
	// DeleteObjectQuery is submitted without a verified signed wrapper.
	ErrNotSigned = errors.New("object: outermost envelope is not signed")

	// ErrHashMismatch is raised when a received envelope does not hash to
	// its declared id, on the download path or an inbound transfer.
	ErrHashMismatch = errors.New("object: hash does not match declared id")

	// ErrDecode is raised by the codec on malformed input.
	ErrDecode = errors.New("object: malformed encoding")

	// ErrWrongType is raised by unwrap when the envelope's type_uuid does
	// not match the requested type.
	ErrWrongType = errors.New("object: envelope type mismatch")

	// ErrNotStarted is raised by the manager for operations against a node
	// that is not currently running.
	ErrNotStarted = errors.New("node: not started")

	// ErrAlreadyStarted is raised by the manager when starting a node that
	// is already running.
	ErrAlreadyStarted = errors.New("node: already started")

	// ErrDialTimeout is raised when a Dial does not complete within its
	// deadline.
	ErrDialTimeout = errors.New("node: dial timed out")

	// ErrNoProviders is raised when a download has no providers to try.
	ErrNoProviders = errors.New("object: no providers found")

	// ErrSignatureInvalid is raised when a signed envelope's signature
	// does not verify against its own embedded key, and by the delete
	// pipeline when the request's verified signer does not match the
	// stored target object's signing key.
	ErrSignatureInvalid = errors.New("object: signature does not verify")

	// ErrShuttingDown is surfaced for any pending operation resolved during
	// teardown; it is idempotent from the caller's point of view.
	ErrShuttingDown = errors.New("node: shutting down")

	// ErrNotFound is raised when a peer answers an object pull without
	// the requested object.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is raised by the manager when creating a node
	// whose name already has a persisted snapshot.
	ErrAlreadyExists = errors.New("node: already exists")
)
