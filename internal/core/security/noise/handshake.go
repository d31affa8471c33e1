package noise

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/flynn/noise"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	noisepb "github.com/dep2p/go-substrate/pkg/lib/proto/noise"
	"github.com/dep2p/go-substrate/pkg/types"
)

// payloadSigPrefix 签名前缀，签名内容为 prefix || Noise 静态公钥
const payloadSigPrefix = "noise-libp2p-static-key:"

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// 握手步骤名称
const (
	opWriteE     = "write-e"
	opReadE      = "read-e"
	opWriteResp  = "write-response"
	opReadResp   = "read-response"
	opWriteFinal = "write-final"
	opReadFinal  = "read-final"
)

// remoteInfo 握手中验证得到的对端信息
type remoteInfo struct {
	pub crypto.PublicKey
	id  types.PeerID
	ext *noisepb.NoiseExtensions
}

// handshake 执行 XX 握手，失败时关闭原始连接
func (t *Transport) handshake(ctx context.Context, conn net.Conn, initiator bool, expected types.PeerID) (_ *SecureConn, err error) {
	defer func() {
		if err != nil {
			_ = conn.Close()
		}
	}()

	// 每次会话使用新的静态密钥，通过身份签名与 PeerID 绑定
	kp, err := cipherSuite.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, &HandshakeError{Kind: KindAborted, Op: "keygen", Err: err}
	}
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: kp,
	})
	if err != nil {
		return nil, &HandshakeError{Kind: KindAborted, Op: "init", Err: err}
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, &HandshakeError{Kind: KindAborted, Op: "set-deadline", Err: err}
	}

	// 取消时让阻塞的读写立即返回
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer func() {
		// 回调可能正在执行，等它写完再清除截止时间
		if !stop() {
			<-fired
		}
		_ = conn.SetDeadline(time.Time{})
	}()

	var (
		remote         *remoteInfo
		sendCS, recvCS *noise.CipherState
	)
	localStatic := kp.Public
	wrapErr := func(op string, err error) error { return t.classify(ctx, op, err) }

	if initiator {
		msg, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, wrapErr(opWriteE, err)
		}
		if err := writeFrame(conn, msg); err != nil {
			return nil, wrapErr(opWriteE, err)
		}

		frame, err := readFrame(conn)
		if err != nil {
			return nil, wrapErr(opReadResp, err)
		}
		plain, _, _, err := hs.ReadMessage(nil, frame)
		if err != nil {
			return nil, &HandshakeError{Kind: KindMalformed, Op: opReadResp, Err: err}
		}
		// 发送第三条消息前完成对端身份校验
		remote, err = verifyPayload(opReadResp, plain, hs.PeerStatic(), expected)
		if err != nil {
			return nil, err
		}
		if err := checkCertHashes(conn, remote.ext); err != nil {
			return nil, err
		}

		payload, err := t.makePayload(localStatic, nil)
		if err != nil {
			return nil, &HandshakeError{Kind: KindAborted, Op: opWriteFinal, Err: err}
		}
		msg, cs1, cs2, err := hs.WriteMessage(nil, payload)
		if err != nil {
			return nil, wrapErr(opWriteFinal, err)
		}
		if err := writeFrame(conn, msg); err != nil {
			return nil, wrapErr(opWriteFinal, err)
		}
		sendCS, recvCS = cs1, cs2
	} else {
		frame, err := readFrame(conn)
		if err != nil {
			return nil, wrapErr(opReadE, err)
		}
		if _, _, _, err := hs.ReadMessage(nil, frame); err != nil {
			return nil, &HandshakeError{Kind: KindMalformed, Op: opReadE, Err: err}
		}

		var certHashes [][]byte
		if p, ok := conn.(interfaces.CertHashProvider); ok {
			certHashes = p.LocalCertHashes()
		}
		payload, err := t.makePayload(localStatic, certHashes)
		if err != nil {
			return nil, &HandshakeError{Kind: KindAborted, Op: opWriteResp, Err: err}
		}
		msg, _, _, err := hs.WriteMessage(nil, payload)
		if err != nil {
			return nil, wrapErr(opWriteResp, err)
		}
		if err := writeFrame(conn, msg); err != nil {
			return nil, wrapErr(opWriteResp, err)
		}

		frame, err = readFrame(conn)
		if err != nil {
			return nil, wrapErr(opReadFinal, err)
		}
		plain, cs1, cs2, err := hs.ReadMessage(nil, frame)
		if err != nil {
			return nil, &HandshakeError{Kind: KindMalformed, Op: opReadFinal, Err: err}
		}
		remote, err = verifyPayload(opReadFinal, plain, hs.PeerStatic(), expected)
		if err != nil {
			return nil, err
		}
		sendCS, recvCS = cs2, cs1
	}

	send, err := newCipherState(sendCS.UnsafeKey())
	if err != nil {
		return nil, &HandshakeError{Kind: KindAborted, Op: "split", Err: err}
	}
	recv, err := newCipherState(recvCS.UnsafeKey())
	if err != nil {
		return nil, &HandshakeError{Kind: KindAborted, Op: "split", Err: err}
	}

	return &SecureConn{
		Conn:       conn,
		send:       send,
		recv:       recv,
		localPeer:  t.identity.PeerID(),
		remotePeer: remote.id,
		remotePub:  remote.pub,
		remoteExt:  remote.ext,
	}, nil
}

// makePayload 构造携带身份签名与扩展的握手 payload
func (t *Transport) makePayload(localStatic []byte, certHashes [][]byte) ([]byte, error) {
	keyBytes, err := crypto.MarshalPublicKey(t.identity.PublicKey())
	if err != nil {
		return nil, err
	}
	sig, err := t.identity.Sign(append([]byte(payloadSigPrefix), localStatic...))
	if err != nil {
		return nil, err
	}
	p := &noisepb.NoiseHandshakePayload{
		IdentityKey: keyBytes,
		IdentitySig: sig,
	}
	if len(t.muxers) > 0 || len(certHashes) > 0 {
		p.Extensions = &noisepb.NoiseExtensions{
			StreamMuxers:           t.muxers,
			WebtransportCerthashes: certHashes,
		}
	}
	if t.payloadHook != nil {
		t.payloadHook(p)
	}
	return p.Marshal()
}

// verifyPayload 先验证签名，再信任并比对身份
func verifyPayload(op string, raw, remoteStatic []byte, expected types.PeerID) (*remoteInfo, error) {
	var p noisepb.NoiseHandshakePayload
	if err := p.Unmarshal(raw); err != nil {
		return nil, &HandshakeError{Kind: KindMalformed, Op: op, Err: err}
	}
	pub, err := crypto.UnmarshalPublicKeyBytes(p.IdentityKey)
	if err != nil {
		return nil, &HandshakeError{Kind: KindMalformed, Op: op, Err: err}
	}

	ok, err := pub.Verify(append([]byte(payloadSigPrefix), remoteStatic...), p.IdentitySig)
	if err != nil || !ok {
		return nil, &HandshakeError{Kind: KindSignatureInvalid, Op: op, Err: err}
	}

	id, err := crypto.PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, &HandshakeError{Kind: KindMalformed, Op: op, Err: err}
	}
	if expected != "" && id != expected {
		return nil, &HandshakeError{Kind: KindIdentityMismatch, Op: op, Expected: expected, Actual: id}
	}
	return &remoteInfo{pub: pub, id: id, ext: p.Extensions}, nil
}

// checkCertHashes 发起方校验传输层观察到的证书哈希
func checkCertHashes(conn net.Conn, ext *noisepb.NoiseExtensions) error {
	obs, ok := conn.(interfaces.CertHashObserver)
	if !ok {
		return nil
	}
	observed := obs.ObservedCertHashes()
	if len(observed) == 0 {
		return nil
	}
	var advertised [][]byte
	if ext != nil {
		advertised = ext.WebtransportCerthashes
	}
	for _, o := range observed {
		for _, a := range advertised {
			if bytes.Equal(o, a) {
				return nil
			}
		}
	}
	return &HandshakeError{
		Kind: KindCertHashMismatch,
		Op:   opReadResp,
		Err:  fmt.Errorf("observed %d hash(es), none in advertised set of %d", len(observed), len(advertised)),
	}
}

// classify 将 I/O 错误归类为握手错误
func (t *Transport) classify(ctx context.Context, op string, err error) error {
	var he *HandshakeError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return &HandshakeError{Kind: KindAborted, Op: op, Err: ctx.Err()}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &HandshakeError{Kind: KindTimeout, Op: op, Err: ctx.Err()}
	case errors.Is(err, os.ErrDeadlineExceeded), isTimeout(err):
		return &HandshakeError{Kind: KindTimeout, Op: op, Err: err}
	case errors.Is(err, errFrameTooLarge):
		return &HandshakeError{Kind: KindMalformed, Op: op, Err: err}
	default:
		return &HandshakeError{Kind: KindAborted, Op: op, Err: err}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

var errFrameTooLarge = errors.New("handshake message too large")

// writeFrame 写入 2 字节大端长度前缀的握手消息
func writeFrame(w io.Writer, msg []byte) error {
	if len(msg) > MaxFrameSize {
		return errFrameTooLarge
	}
	buf := make([]byte, frameHeaderSize+len(msg))
	binary.BigEndian.PutUint16(buf, uint16(len(msg)))
	copy(buf[frameHeaderSize:], msg)
	_, err := w.Write(buf)
	return err
}

// readFrame 读取一条握手消息
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	buf := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}
