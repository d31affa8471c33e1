// Package muxer 实现 dmux 流多路复用（"/dmux/1.0.0"）
//
// 在一条加密连接上承载多条独立的双向流，每条流都有自己的
// 流量控制窗口，连接整体还有一个聚合窗口（流 ID 0）。
//
// # 帧格式
//
// 12 字节帧头，大端：
//
//	version(1) type(1) flags(2) streamID(4) length(4)
//
// 类型：Data、WindowUpdate、Ping、GoAway。
// 标志：SYN、ACK、FIN、RST、STOP_SENDING。WindowUpdate 帧携带
// RST 或 STOP_SENDING 时 length 为错误码。
//
// # 流 ID
//
// 拨号方（客户端）使用从 1 开始的奇数，监听方（服务端）使用从 2
// 开始的偶数，单调递增。
//
// # 发送顺序
//
// 单个发送协程按顺序写出帧：用户调用产生的数据与控制帧共用数据队列，
// 窗口更新、协议错误 RST、Ping 回复走优先队列。接收协程解码帧后
// 分发到各流的接收缓冲。
//
// # 使用示例
//
//	sess, err := muxer.NewTransport(cfg).NewConn(secureConn, false)
//	if err != nil {
//	    return err
//	}
//	stream, err := sess.OpenStream(ctx)
package muxer
