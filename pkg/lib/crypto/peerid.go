package crypto

import (
	"github.com/minio/sha256-simd"

	"github.com/dep2p/go-substrate/pkg/types"
)

// PeerIDFromPublicKey 从公钥派生 PeerID
//
// 派生算法：Base58(SHA256(MarshalPublicKey(pub)))
func PeerIDFromPublicKey(pub PublicKey) (types.PeerID, error) {
	if pub == nil {
		return types.EmptyPeerID, ErrNilPublicKey
	}
	data, err := MarshalPublicKey(pub)
	if err != nil {
		return types.EmptyPeerID, err
	}
	digest := sha256.Sum256(data)
	return types.PeerIDFromBytes(digest[:])
}

// PeerIDFromPrivateKey 从私钥派生 PeerID
func PeerIDFromPrivateKey(priv PrivateKey) (types.PeerID, error) {
	if priv == nil {
		return types.EmptyPeerID, ErrNilPrivateKey
	}
	return PeerIDFromPublicKey(priv.GetPublic())
}

// MatchesPublicKey 检查 PeerID 是否由该公钥派生
func MatchesPublicKey(id types.PeerID, pub PublicKey) bool {
	derived, err := PeerIDFromPublicKey(pub)
	if err != nil {
		return false
	}
	return derived == id
}
