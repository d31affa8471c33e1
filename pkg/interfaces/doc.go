// Package interfaces 定义组件间的公共接口
//
// 数据流：Transport 产生 RawConn → SecureTransport 握手得到 SecureConn →
// StreamMuxer 拆分为 MuxedStream → 协议协商后以 Stream 交给应用处理器。
package interfaces
