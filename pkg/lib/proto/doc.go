// Package proto 定义网络协议消息（wire format）
//
// # 子包
//
//   - noise: Noise 握手负载与扩展
//   - webrtc: 数据通道流帧
//
// 所有消息直接基于 google.golang.org/protobuf/encoding/protowire 编解码，
// 与对应 .proto 定义保持 wire 兼容。
package proto
