package interfaces

import (
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	"github.com/dep2p/go-substrate/pkg/types"
)

// Identity 本地身份
type Identity interface {
	// PeerID 返回本地节点 ID
	PeerID() types.PeerID

	// PublicKey 返回身份公钥
	PublicKey() crypto.PublicKey

	// PrivateKey 返回身份私钥
	PrivateKey() crypto.PrivateKey

	// Sign 使用身份私钥签名
	Sign(data []byte) ([]byte, error)
}
