// Package noise 实现 Noise 协议安全传输
//
// 使用 Noise_XX_25519_ChaChaPoly_SHA256 模式，握手 1.5 个往返：
//
//	-> e
//	<- e, ee, s, es, payload
//	-> s, se, payload
//
// 每次握手生成新的 X25519 静态密钥，payload 中携带身份公钥及其对
// "noise-libp2p-static-key:" || 静态公钥 的签名，将会话绑定到身份。
// 扩展字段携带本地多路复用器列表（早期多路复用器协商）以及响应方
// 的证书哈希。
//
// 握手消息与传输帧均使用 2 字节大端长度前缀，帧最大 65535 字节。
// 握手完成后每个方向持有独立的 ChaCha20-Poly1305 密钥和 64 位计数器，
// 重放或乱序的帧解密失败，连接随即关闭。
//
// # 使用示例
//
//	tpt, err := noise.New(identity, noise.WithMuxers("/dmux/1.0.0"))
//	if err != nil {
//	    return err
//	}
//
//	// 发起方，校验对端身份
//	sc, err := tpt.SecureOutbound(ctx, conn, remotePeerID)
//
//	// 响应方，接受任意身份
//	sc, err := tpt.SecureInbound(ctx, conn, "")
package noise
