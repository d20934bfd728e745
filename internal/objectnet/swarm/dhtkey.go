package swarm

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/liberum-neto/objectnet/internal/objectnet/envelope"
)

// hashToCid maps an object hash onto the content-routing key type the
// underlying Kademlia implementation expects. The hash is already a
// cryptographic digest, so it is wrapped in an identity multihash rather
// than hashed a second time.
func hashToCid(h envelope.Hash) (cid.Cid, error) {
	mh, err := multihash.Encode(h[:], multihash.IDENTITY)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}
