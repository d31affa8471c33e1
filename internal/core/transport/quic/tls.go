package quic

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/minio/sha256-simd"
)

// NextProto ALPN 协议标识
const NextProto = "substrate"

// multihash 前缀：sha2-256，32 字节
var certHashPrefix = []byte{0x12, 0x20}

var (
	// ErrNoPeerCertificate 对端未提供证书
	ErrNoPeerCertificate = errors.New("quic: peer presented no certificate")

	// ErrCertExpired 证书不在有效期内
	ErrCertExpired = errors.New("quic: certificate outside validity period")
)

// certificate 内存中生成的自签名证书
//
// 证书不携带身份，身份由 Noise 认证；证书哈希在 Noise 握手中交叉校验。
type certificate struct {
	tls  tls.Certificate
	hash []byte
}

// generateCert 生成 ECDSA P-256 自签名证书
func generateCert(validity time.Duration) (*certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 63))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "substrate"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	return &certificate{
		tls:  tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key},
		hash: CertHash(der),
	}, nil
}

// CertHash 返回证书 DER 的 multihash(sha2-256)
func CertHash(der []byte) []byte {
	sum := sha256.Sum256(der)
	out := make([]byte, 0, len(certHashPrefix)+len(sum))
	out = append(out, certHashPrefix...)
	return append(out, sum[:]...)
}

// serverTLSConfig 响应方 TLS 配置，不要求客户端证书
func (c *certificate) serverTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{c.tls},
		NextProtos:   []string{NextProto},
		MinVersion:   tls.VersionTLS13,
		ClientAuth:   tls.NoClientCert,
	}
}

// clientTLSConfig 发起方 TLS 配置
//
// 自签名证书没有 CA 可验证，InsecureSkipVerify 关闭链验证，
// verifyPeerCertificate 只检查有效期。证书与身份的绑定由 Noise 的证书哈希校验完成。
func clientTLSConfig() *tls.Config {
	return &tls.Config{
		NextProtos:            []string{NextProto},
		MinVersion:            tls.VersionTLS13,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyPeerCertificate,
	}
}

func verifyPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return ErrNoPeerCertificate
	}
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("parse certificate: %w", err)
	}
	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return fmt.Errorf("%w: [%v, %v]", ErrCertExpired, cert.NotBefore, cert.NotAfter)
	}
	return nil
}

// peerCertHash 从握手状态取对端证书哈希
func peerCertHash(state tls.ConnectionState) ([]byte, error) {
	if len(state.PeerCertificates) == 0 {
		return nil, ErrNoPeerCertificate
	}
	return CertHash(state.PeerCertificates[0].Raw), nil
}

