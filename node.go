package substrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/fx"

	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/internal/core/swarm"
	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/lib/log"
	maddr "github.com/dep2p/go-substrate/pkg/lib/multiaddr"
)

var logger = log.Logger("substrate")

// stopTimeout 关闭节点时 fx 停止钩子的最长等待时间
const stopTimeout = 15 * time.Second

// Node 一个已认证、多路复用的点对点端点
//
// 通过 New 创建，Close 之后不可再用。
type Node struct {
	app      *fx.App
	cfg      *config.Config
	swarm    *swarm.Swarm
	identity interfaces.Identity

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New 创建并启动节点
//
// 返回时监听地址已就绪。ctx 只约束启动过程。
//
//	node, err := substrate.New(ctx,
//	    substrate.WithListenAddrs("/ip4/0.0.0.0/tcp/4001"),
//	)
func New(ctx context.Context, opts ...Option) (*Node, error) {
	o := newOptions()
	if err := o.apply(opts); err != nil {
		return nil, fmt.Errorf("apply options: %w", err)
	}

	node := &Node{cfg: o.config}
	app, err := buildFxApp(o, node)
	if err != nil {
		return nil, err
	}
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build node: %w", err)
	}
	if err := app.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	node.app = app

	logger.Info("节点已启动",
		"peerID", node.ID().ShortString(),
		"listenAddrs", len(node.ListenAddrs()))
	return node, nil
}

// ID 本地节点 ID
func (n *Node) ID() PeerID { return n.identity.PeerID() }

// Config 节点使用的配置
func (n *Node) Config() *config.Config { return n.cfg }

// Connect 拨号并完成握手
//
// addr 可带 /p2p/<PeerID> 后缀；同时给出 expected 时两者必须一致。
// 与该节点已有可用连接时直接返回已有连接。
func (n *Node) Connect(ctx context.Context, addr string, expected PeerID) (Conn, error) {
	if n.closed.Load() {
		return nil, ErrNodeClosed
	}
	target, id, err := parseTarget(addr, expected)
	if err != nil {
		return nil, err
	}
	c, err := n.swarm.Connect(ctx, target, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// parseTarget 拆分地址与期望的节点 ID
func parseTarget(addr string, expected PeerID) (ma.Multiaddr, PeerID, error) {
	target, id, err := maddr.SplitPeer(addr)
	switch {
	case errors.Is(err, maddr.ErrNoPeerID):
		return target, expected, nil
	case err != nil:
		return nil, "", fmt.Errorf("parse address: %w", err)
	}
	if !expected.IsEmpty() && expected != id {
		return nil, "", fmt.Errorf("address peer %s does not match expected %s: %w",
			id.ShortString(), expected.ShortString(), ErrIdentityMismatch)
	}
	return target, id, nil
}

// NewStream 在到 peer 的连接上打开流并协商第一个双方都支持的协议
func (n *Node) NewStream(ctx context.Context, peer PeerID, protos ...ProtocolID) (Stream, error) {
	if n.closed.Load() {
		return nil, ErrNodeClosed
	}
	st, err := n.swarm.NewStream(ctx, peer, protos...)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// SetStreamHandler 注册入站协议处理器，重复注册会覆盖
func (n *Node) SetStreamHandler(proto ProtocolID, handler StreamHandler) {
	n.swarm.SetStreamHandler(proto, handler)
}

// RemoveStreamHandler 注销入站协议处理器，已打开的流不受影响
func (n *Node) RemoveStreamHandler(proto ProtocolID) {
	n.swarm.RemoveStreamHandler(proto)
}

// Protocols 已注册的协议
func (n *Node) Protocols() []ProtocolID { return n.swarm.Protocols() }

// ClosePeer 关闭到 peer 的全部连接
func (n *Node) ClosePeer(peer PeerID) error {
	return n.swarm.ClosePeer(peer, nil)
}

// ConnsToPeer 到 peer 的当前连接
func (n *Node) ConnsToPeer(peer PeerID) []Conn {
	cs := n.swarm.ConnsToPeer(peer)
	out := make([]Conn, 0, len(cs))
	for _, c := range cs {
		out = append(out, c)
	}
	return out
}

// Peers 当前有连接的节点
func (n *Node) Peers() []PeerID { return n.swarm.Peers() }

// Notify 订阅连接、监听与安全事件
func (n *Node) Notify(nf Notifiee) { n.swarm.Notify(nf) }

// StopNotify 取消订阅
func (n *Node) StopNotify(nf Notifiee) { n.swarm.StopNotify(nf) }

// ListenAddrs 实际监听地址，端口为 0 时返回系统分配后的地址
func (n *Node) ListenAddrs() []ma.Multiaddr { return n.swarm.ListenAddrs() }

// Addrs 带 /p2p 后缀的可拨地址
func (n *Node) Addrs() []string {
	addrs := n.ListenAddrs()
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, maddr.JoinPeer(a, n.ID()))
	}
	return out
}

// Close 关闭监听器和所有连接，可重复调用
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		n.closed.Store(true)
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		n.closeErr = n.app.Stop(ctx)
		logger.Info("节点已关闭", "peerID", n.ID().ShortString())
	})
	return n.closeErr
}
