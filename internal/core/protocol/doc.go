// Package protocol 实现流级协议协商与协议处理器注册表
//
// 协商采用 multistream-select 1.0.0：
//
//	uvarint(len) || utf8 || '\n'
//
// 发起方先发送协议头 "/multistream/1.0.0" 与第一个提议，响应方回显支持的
// 提议或回复 "na"；"ls" 请求列出响应方支持的全部协议。
//
// 长度前缀逐字节读取，协商完成后流上剩余数据原样交给应用处理器。
package protocol
