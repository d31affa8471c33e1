// Package lib 包含与架构组件无关的基础库
//
//   - crypto: 密钥、签名与 PeerID 派生
//   - multiaddr: 多地址解析与 /p2p 后缀处理
//   - log: 按组件的 zap 日志
//   - proto: 网络消息编解码
//
// 协议 ID 常量在 pkg/protocolids，组件接口在 pkg/interfaces，基础类型在 pkg/types。
//
//	import (
//	    "github.com/dep2p/go-substrate/pkg/lib/crypto"
//	    "github.com/dep2p/go-substrate/pkg/lib/log"
//	)
package lib
