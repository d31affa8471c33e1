// Package substrate 提供点对点连接的传输基座
//
// 节点之间通过 TCP、WebSocket 或 QUIC 建立原始连接，再经 Noise XX 握手
// 完成双向身份认证，最后由多路复用器承载多条带协议标识的逻辑流。
//
// # 快速开始
//
//	node, err := substrate.New(ctx,
//	    substrate.WithListenAddrs("/ip4/0.0.0.0/tcp/4001"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	node.SetStreamHandler("/echo/1", func(s substrate.Stream) {
//	    defer s.Close()
//	    io.Copy(s, s)
//	})
//
//	conn, err := node.Connect(ctx, "/ip4/1.2.3.4/tcp/4001/p2p/12D3Koo...", "")
//	s, err := node.NewStream(ctx, conn.RemotePeer(), "/echo/1")
//
// # 错误
//
// 传输层失败返回 *TransportError，可以按需重试（见 ConnectWithRetry）。
// 握手失败返回 *HandshakeError，不会自动重试；身份不符的节点会进入隔离期，
// 期间再次拨号直接返回 *AuthFailureError。协商失败只影响单条流。
//
// # 事件
//
// Notify 注册的 Notifiee 会收到监听、连接建立与断开以及安全事件。
// 回调在触发事件的 goroutine 中同步执行，不应阻塞。
package substrate
