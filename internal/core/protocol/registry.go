package protocol

import (
	"sort"
	"sync"

	"github.com/dep2p/go-substrate/pkg/interfaces"
	"github.com/dep2p/go-substrate/pkg/protocolids"
	"github.com/dep2p/go-substrate/pkg/types"
)

// Registry 协议处理器注册表
type Registry struct {
	mu       sync.RWMutex
	handlers map[types.ProtocolID]interfaces.StreamHandler
	matchers []matcher // 模式匹配器，按添加顺序检查
}

// matcher 模式匹配器
type matcher struct {
	protocol types.ProtocolID
	match    func(types.ProtocolID) bool
	handler  interfaces.StreamHandler
}

var _ Matcher = (*Registry)(nil)

// NewRegistry 创建协议注册表
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[types.ProtocolID]interfaces.StreamHandler),
	}
}

// Register 注册协议处理器，已存在时返回 ErrDuplicateProtocol
func (r *Registry) Register(id types.ProtocolID, handler interfaces.StreamHandler) error {
	if err := protocolids.Validate(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[id]; exists {
		return ErrDuplicateProtocol
	}
	r.handlers[id] = handler
	return nil
}

// SetHandler 注册或替换协议处理器
func (r *Registry) SetHandler(id types.ProtocolID, handler interfaces.StreamHandler) {
	r.mu.Lock()
	r.handlers[id] = handler
	r.mu.Unlock()
}

// Unregister 注销协议处理器
func (r *Registry) Unregister(id types.ProtocolID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[id]; !exists {
		return ErrProtocolNotRegistered
	}
	delete(r.handlers, id)
	return nil
}

// AddMatcher 添加模式匹配处理器
//
// protocol 出现在 ls 列表中；match 决定接受哪些提议。
// 同名匹配器会被替换。
func (r *Registry) AddMatcher(protocol types.ProtocolID, match func(types.ProtocolID) bool, handler interfaces.StreamHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.matchers {
		if r.matchers[i].protocol == protocol {
			r.matchers[i] = matcher{protocol: protocol, match: match, handler: handler}
			return
		}
	}
	r.matchers = append(r.matchers, matcher{protocol: protocol, match: match, handler: handler})
}

// RemoveMatcher 移除模式匹配处理器
func (r *Registry) RemoveMatcher(protocol types.ProtocolID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, m := range r.matchers {
		if m.protocol == protocol {
			r.matchers = append(r.matchers[:i], r.matchers[i+1:]...)
			return
		}
	}
}

// GetHandler 查找处理器：精确匹配优先，其次按顺序尝试匹配器
func (r *Registry) GetHandler(id types.ProtocolID) (interfaces.StreamHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers[id]; ok {
		return h, true
	}
	for _, m := range r.matchers {
		if m.match(id) {
			return m.handler, true
		}
	}
	return nil, false
}

// Match 实现 Matcher
func (r *Registry) Match(id types.ProtocolID) bool {
	_, ok := r.GetHandler(id)
	return ok
}

// Protocols 返回已注册的协议（有序）
func (r *Registry) Protocols() []types.ProtocolID {
	r.mu.RLock()
	out := make([]types.ProtocolID, 0, len(r.handlers)+len(r.matchers))
	for id := range r.handlers {
		out = append(out, id)
	}
	for _, m := range r.matchers {
		if _, dup := r.handlers[m.protocol]; !dup {
			out = append(out, m.protocol)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clear 清空注册表
func (r *Registry) Clear() {
	r.mu.Lock()
	r.handlers = make(map[types.ProtocolID]interfaces.StreamHandler)
	r.matchers = nil
	r.mu.Unlock()
}
