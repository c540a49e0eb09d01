package api

import (
	"context"
	"sync"

	"excel2web/internal/importer"
)

// ProgressHub 把导入任务池的进度事件分发给所有订阅者
type ProgressHub struct {
	mu   sync.Mutex
	subs map[chan importer.ProgressEvent]struct{}
}

// NewProgressHub 创建分发器
func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[chan importer.ProgressEvent]struct{})}
}

// Run 消费 src 直到 ctx 结束或 src 关闭
func (h *ProgressHub) Run(ctx context.Context, src <-chan importer.ProgressEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-src:
			if !ok {
				return
			}
			h.publish(evt)
		}
	}
}

// publish 慢订阅者的事件被丢弃
func (h *ProgressHub) publish(evt importer.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe 订阅事件，返回的函数用于取消订阅
func (h *ProgressHub) Subscribe() (<-chan importer.ProgressEvent, func()) {
	ch := make(chan importer.ProgressEvent, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}
