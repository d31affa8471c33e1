// Package swarm 实现连接管理
//
// Swarm 负责每条连接的生命周期：拨号或接受原始连接，
// 依次完成 Noise 握手、多路复用与协议协商，并按已验证的 PeerID 登记连接。
//
// # 快速开始
//
//	s, err := swarm.New(id.PeerID(), registry, up, nil, nil, swarm.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	s.SetStreamHandler("/echo/1", func(st interfaces.Stream) {
//	    defer st.Close()
//	    io.Copy(st, st)
//	})
//	_ = s.Listen(ma.StringCast("/ip4/0.0.0.0/tcp/4001"))
//
//	conn, err := s.Connect(ctx, addr, remoteID)
//	st, err := s.NewStream(ctx, conn.RemotePeer(), "/echo/1")
//
// # 去重
//
// 同一节点已有连接时：
//   - KeepExisting（默认）：新完成的重复连接被关闭
//   - KeepBoth：两条都保留
//
// 同时互拨（方向相反）时保留 PeerID 较小一方拨出的连接，两端结论一致。
//
// # 错误与重试
//
// Swarm 不在内部重试。拨号失败为 *DialError，
// 其中包装 *TransportError 或 *noise.HandshakeError。
// 认证失败（签名无效、身份不符、证书哈希不符）会隔离期望身份，
// 隔离期内拨号直接返回 *AuthFailureError，同时发出 SecurityEvent。
//
// # 并发
//
// 注册表由一把 sync.RWMutex 保护，只覆盖登记与查找；握手和 I/O 在锁外进行。
// 通知在锁外同步调用。
package swarm
