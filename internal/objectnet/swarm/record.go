package swarm

import (
	"context"
	"strings"

	record "github.com/libp2p/go-libp2p-record"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
	"github.com/liberum-neto/objectnet/internal/objectnet/objerr"
)

// recordNamespace is the DHT record namespace this node publishes and
// validates under, registered with the underlying Kademlia
// implementation via dht.NamespacedValidator alongside its built-in "pk"
// namespace.
const recordNamespace = "objectnet"

// recordKey formats h as the namespaced key go-libp2p-kad-dht's record
// validation dispatch requires ("/<namespace>/<key>").
func recordKey(h envelope.Hash) string {
	return "/" + recordNamespace + "/" + string(h[:])
}

func hashFromRecordKey(key string) (envelope.Hash, error) {
	prefix := "/" + recordNamespace + "/"
	if !strings.HasPrefix(key, prefix) {
		return envelope.Hash{}, objerr.ErrDecode
	}
	raw := key[len(prefix):]
	if len(raw) != len(envelope.Hash{}) {
		return envelope.Hash{}, objerr.ErrDecode
	}
	var h envelope.Hash
	copy(h[:], raw)
	return h, nil
}

// recordValidator implements record.Validator for recordNamespace,
// satisfying section 4.D's inbound put-record behavior: a record is only
// accepted if it decodes to a signed envelope whose hash matches the
// key it was put under, and accepting one stores it locally and starts
// providing it — the node holding the record becomes a source for it.
type recordValidator struct {
	s *Swarm
}

var _ record.Validator = recordValidator{}

func (v recordValidator) Validate(key string, value []byte) error {
	hash, err := hashFromRecordKey(key)
	if err != nil {
		return err
	}
	env, rest, err := envelope.Deserialize(value)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return objerr.ErrDecode
	}
	if env.TypeUUID != envelope.SignedObjectType {
		return objerr.ErrNotSigned
	}
	if envelope.HashOf(env) != hash {
		return objerr.ErrHashMismatch
	}

	if _, _, err := v.s.registry.Store(env, v.s.vault); err != nil {
		return err
	}
	if id, err := hashToCid(hash); err == nil {
		go func() {
			if err := v.s.dht.Provide(context.Background(), id, true); err != nil {
				v.s.log.WithError(err).Warn("record validator: start_providing after inbound put failed")
			}
		}()
	}
	return nil
}

// Select always prefers the first value: every value accepted under
// recordNamespace is the content-addressed object its own key names, so
// any two valid values for the same key are byte-identical.
func (recordValidator) Select(_ string, _ [][]byte) (int, error) {
	return 0, nil
}
