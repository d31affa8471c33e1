package noise

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	pool "github.com/libp2p/go-buffer-pool"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	noisepb "github.com/dep2p/go-substrate/pkg/lib/proto/noise"
	"github.com/dep2p/go-substrate/pkg/types"
)

// SecureConn Noise 加密连接
//
// Read/Write 在原始连接上收发 2 字节长度前缀的密文帧。
// 任何解密失败都会关闭连接并返回 *DecryptError。
type SecureConn struct {
	net.Conn

	send *cipherState
	recv *cipherState

	localPeer  types.PeerID
	remotePeer types.PeerID
	remotePub  crypto.PublicKey
	remoteExt  *noisepb.NoiseExtensions

	readMu  sync.Mutex
	readBuf []byte
	lenBuf  [frameHeaderSize]byte

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

var _ interfaces.SecureConn = (*SecureConn)(nil)

// ============================================================================
//                              帧加解密
// ============================================================================

// EncryptFrame 加密一帧明文，返回 uint16 大端长度 || 密文
func (c *SecureConn) EncryptFrame(cleartext []byte) ([]byte, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.encryptFrame(nil, cleartext)
}

func (c *SecureConn) encryptFrame(dst, cleartext []byte) ([]byte, error) {
	if len(cleartext) > MaxPlaintextSize {
		return nil, ErrFrameTooLarge
	}
	start := len(dst)
	dst = append(dst, 0, 0)
	dst, err := c.send.encrypt(dst, cleartext)
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint16(dst[start:], uint16(len(dst)-start-frameHeaderSize))
	return dst, nil
}

// DecryptFrame 解密一个完整帧（含长度前缀），失败时关闭连接
func (c *SecureConn) DecryptFrame(frame []byte) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(frame) < frameHeaderSize {
		return nil, c.fail(&DecryptError{Nonce: c.recv.current(), Err: ErrAuthenticationFailed})
	}
	n := int(binary.BigEndian.Uint16(frame))
	if n != len(frame)-frameHeaderSize {
		return nil, c.fail(&DecryptError{Nonce: c.recv.current(), Err: ErrAuthenticationFailed})
	}
	pt, err := c.recv.decrypt(nil, frame[frameHeaderSize:])
	if err != nil {
		return nil, c.fail(err)
	}
	return pt, nil
}

func (c *SecureConn) fail(err error) error {
	var de *DecryptError
	if errors.As(err, &de) {
		logger.Warn("解密失败，关闭连接", "peer", c.remotePeer.ShortString(), "nonce", de.Nonce)
		_ = c.Close()
	}
	return err
}

// ============================================================================
//                              net.Conn
// ============================================================================

// Read 读取并解密
func (c *SecureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.readBuf) > 0 {
		n := copy(p, c.readBuf)
		c.readBuf = c.readBuf[n:]
		return n, nil
	}

	// 空明文帧不交给调用方，继续读下一帧
	for {
		pt, buf, err := c.readFrame()
		if err != nil {
			return 0, err
		}
		if len(pt) == 0 {
			pool.Put(buf)
			continue
		}
		n := copy(p, pt)
		if n < len(pt) {
			c.readBuf = append(c.readBuf[:0], pt[n:]...)
		}
		pool.Put(buf)
		return n, nil
	}
}

// readFrame 读取并解密一帧，明文就地写在 buf 中，用完由调用方归还
func (c *SecureConn) readFrame() (pt, buf []byte, err error) {
	if _, err := io.ReadFull(c.Conn, c.lenBuf[:]); err != nil {
		return nil, nil, err
	}
	size := int(binary.BigEndian.Uint16(c.lenBuf[:]))

	buf = pool.Get(size)
	if _, err := io.ReadFull(c.Conn, buf); err != nil {
		pool.Put(buf)
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, err
	}

	pt, err = c.recv.decrypt(buf[:0], buf)
	if err != nil {
		pool.Put(buf)
		return nil, nil, c.fail(err)
	}
	return pt, buf, nil
}

// Write 分帧加密后写入
func (c *SecureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	buf := pool.Get(frameHeaderSize + MaxFrameSize)
	defer pool.Put(buf)

	total := 0
	for total < len(p) {
		end := total + MaxPlaintextSize
		if end > len(p) {
			end = len(p)
		}
		frame, err := c.encryptFrame(buf[:0], p[total:end])
		if err != nil {
			return total, err
		}
		if _, err := c.Conn.Write(frame); err != nil {
			return total, err
		}
		total = end
	}
	return total, nil
}

// Close 关闭原始连接并清零双向密钥，幂等
func (c *SecureConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
		c.send.zero()
		c.recv.zero()
	})
	return c.closeErr
}

// ============================================================================
//                              身份信息
// ============================================================================

// LocalPeer 返回本地节点 ID
func (c *SecureConn) LocalPeer() types.PeerID { return c.localPeer }

// RemotePeer 返回已验证的远端节点 ID
func (c *SecureConn) RemotePeer() types.PeerID { return c.remotePeer }

// RemotePublicKey 返回远端身份公钥
func (c *SecureConn) RemotePublicKey() crypto.PublicKey { return c.remotePub }

// RemoteExtensions 返回远端握手扩展，可能为 nil
func (c *SecureConn) RemoteExtensions() *noisepb.NoiseExtensions { return c.remoteExt }

// RemoteMuxers 返回远端声明的多路复用器
func (c *SecureConn) RemoteMuxers() []string {
	if c.remoteExt == nil {
		return nil
	}
	return c.remoteExt.StreamMuxers
}
