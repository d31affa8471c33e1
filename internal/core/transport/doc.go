// Package transport 汇总传输适配器
//
// 每个适配器（tcp、websocket、quic）实现 interfaces.Transport，产出有序字节流形式的
// RawConn。Registry 按地址选择适配器，并把失败统一包装为 *Error。
//
// # 支持的地址
//
//   - TCP: /ip4/.../tcp/N
//   - WebSocket: /ip4/.../tcp/N/ws
//   - QUIC: /ip4/.../udp/N/quic-v1
//
// # 使用示例
//
//	reg := transport.NewRegistry(tcp.New(tcp.DefaultConfig()))
//	l, err := reg.Listen(ma.StringCast("/ip4/0.0.0.0/tcp/4001"))
//	raw, err := reg.Dial(ctx, remote)
package transport
