// Package upgrader 将原始连接升级为安全、多路复用的连接
//
// # 升级流程
//
//  1. 安全协议协商（multistream-select，当前只有 /noise）
//  2. Noise XX 握手，验证对端身份；握手扩展携带本地多路复用器列表
//  3. 多路复用器选择
//     - 双方都声明了列表：取发起方偏好中第一个双方共有的，无需额外往返
//     - 否则：在安全连接上用 multistream-select 协商
//  4. 建立多路复用会话（/dmux/1.0.0 或 /yamux/1.0.0）
//
// 任何一步失败都会关闭原始连接。
//
// # Fx 集成
//
// 多路复用器通过 group:"muxers" 注入，按 Muxer.Preferred 排序：
//
//	fx.Options(
//	    muxer.Module,
//	    yamux.Module,
//	    noise.Module,
//	    upgrader.Module,
//	)
package upgrader
