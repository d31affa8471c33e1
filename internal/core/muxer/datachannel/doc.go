// Package datachannel 在消息型通道上实现单条 MuxedStream
//
// 适用于自身不提供多路复用、但每条通道即一条流的传输（如 WebRTC
// 数据通道）。每条消息为 uvarint 长度前缀加 protobuf 编码的
// webrtc.Message，单条消息不超过 16 KiB。
//
// # 关闭流程
//
//   - CloseWrite 发送 FIN，对端回复 FIN_ACK
//   - CloseRead 发送 STOP_SENDING，之后到达的数据被丢弃
//   - Reset 发送 RESET_STREAM，两个方向立即终止
//
// 发送方向已确认（FIN_ACK 或对端 STOP_SENDING）且接收方向结束
// （收到 FIN 或本地 STOP_SENDING）后关闭底层通道。
package datachannel
