// Package crypto 提供身份密钥与 PeerID 派生
//
// 支持 Ed25519（默认）与 Secp256k1 两种身份密钥。
// 公钥以 protobuf 记录编码（type=1, data=2），PeerID 为该编码的 SHA256 摘要的 Base58 形式。
//
//	priv, _, _ := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
//	id, _ := crypto.PeerIDFromPrivateKey(priv)
package crypto
