// Package protocolids 集中定义协议 ID
//
// 连接升级与内置服务使用的协议 ID 只在这里定义，其它包引用本包常量。
//
//   - 协商层: /multistream/1.0.0
//   - 安全层: /noise
//   - 多路复用: /dmux/1.0.0, /yamux/1.0.0
//   - 内置服务: /ping/1
//
// 升级阶段使用的 ID 是保留 ID，不能注册为流处理器。
package protocolids
