package types

// ============================================================================
//                              Direction - 连接方向
// ============================================================================

// Direction 连接方向
type Direction int

const (
	// DirUnknown 未知方向
	DirUnknown Direction = iota
	// DirInbound 入站连接（响应方）
	DirInbound
	// DirOutbound 出站连接（发起方）
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              ConnState - 连接状态
// ============================================================================

// ConnState 连接生命周期状态
type ConnState int

const (
	// ConnStateHandshaking 握手中
	ConnStateHandshaking ConnState = iota
	// ConnStateEstablished 已建立
	ConnStateEstablished
	// ConnStateClosing 关闭中：不再接受新流，已有流继续
	ConnStateClosing
	// ConnStateClosed 已关闭：资源释放，密钥清零
	ConnStateClosed
)

// String 返回状态名称
func (s ConnState) String() string {
	switch s {
	case ConnStateHandshaking:
		return "handshaking"
	case ConnStateEstablished:
		return "established"
	case ConnStateClosing:
		return "closing"
	case ConnStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              StreamState - 流状态
// ============================================================================

// StreamState 流状态
//
//	Opening → Open → {HalfClosedLocal, HalfClosedRemote} → Closed
//
// Reset 从任何非终止状态直接进入 Closed。
type StreamState int

const (
	// StreamStateOpening 已发送 SYN，等待 ACK
	StreamStateOpening StreamState = iota
	// StreamStateOpen 双向可用
	StreamStateOpen
	// StreamStateHalfClosedLocal 本端已发送 FIN
	StreamStateHalfClosedLocal
	// StreamStateHalfClosedRemote 对端已发送 FIN
	StreamStateHalfClosedRemote
	// StreamStateClosed 终止状态
	StreamStateClosed
)

// String 返回状态名称
func (s StreamState) String() string {
	switch s {
	case StreamStateOpening:
		return "opening"
	case StreamStateOpen:
		return "open"
	case StreamStateHalfClosedLocal:
		return "half-closed-local"
	case StreamStateHalfClosedRemote:
		return "half-closed-remote"
	case StreamStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              TransportKind - 传输类型
// ============================================================================

// TransportKind 传输类型
type TransportKind int

const (
	// TransportUnknown 未知
	TransportUnknown TransportKind = iota
	// TransportTCP 流式套接字
	TransportTCP
	// TransportQUIC 基于数据报的安全传输
	TransportQUIC
	// TransportWebSocket HTTP 升级的套接字
	TransportWebSocket
	// TransportWebRTC 浏览器兼容的数据通道
	TransportWebRTC
	// TransportMemory 进程内管道（测试）
	TransportMemory
)

// String 返回传输名称
func (k TransportKind) String() string {
	switch k {
	case TransportTCP:
		return "tcp"
	case TransportQUIC:
		return "quic"
	case TransportWebSocket:
		return "websocket"
	case TransportWebRTC:
		return "webrtc"
	case TransportMemory:
		return "memory"
	default:
		return "unknown"
	}
}
