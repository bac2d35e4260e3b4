package fanout

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wyfcoding/storefront/pkg/logger"
)

// Subscription 一个订阅者。C 上的事件由分发协程投递,
// 订阅者消费过慢时事件被丢弃而不是阻塞分发。
type Subscription struct {
	ID     string
	groups map[string]struct{}
	ch     chan Event
}

// C 接收事件的只读通道。Hub 关闭或退订后该通道被关闭。
func (s *Subscription) C() <-chan Event { return s.ch }

func (s *Subscription) wants(groups []string) bool {
	for _, g := range groups {
		if _, ok := s.groups[g]; ok {
			return true
		}
	}
	return false
}

// Hub 进程内事件分发中心。Publish 永不阻塞:
// 队列满时丢弃并计数,慢订阅者同样丢弃而不拖慢其他订阅者。
type Hub struct {
	queue   chan Event
	bufSize int
	dropped prometheus.Counter

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	done chan struct{}
}

// NewHub queueSize 为分发队列容量,subscriberBuffer 为每个订阅者的通道容量。
// dropped 可为 nil。
func NewHub(queueSize, subscriberBuffer int, dropped prometheus.Counter) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	if subscriberBuffer <= 0 {
		subscriberBuffer = 16
	}
	h := &Hub{
		queue:   make(chan Event, queueSize),
		bufSize: subscriberBuffer,
		dropped: dropped,
		subs:    make(map[string]*Subscription),
		done:    make(chan struct{}),
	}
	go h.dispatch()
	return h
}

// Subscribe 订阅一个或多个组
func (h *Hub) Subscribe(groups ...string) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		groups: make(map[string]struct{}, len(groups)),
		ch:     make(chan Event, h.bufSize),
	}
	for _, g := range groups {
		sub.groups[g] = struct{}{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub.ID] = sub
	return sub
}

// Unsubscribe 退订并关闭订阅者通道
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID]; !ok {
		return
	}
	delete(h.subs, sub.ID)
	close(sub.ch)
}

// Publish 入队一个事件。队列满时丢弃,调用方永不被阻塞。
func (h *Hub) Publish(ctx context.Context, ev Event) {
	// 持有读锁期间 Close 无法关闭队列,避免向已关闭通道发送
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.queue <- ev:
	default:
		h.drop()
		logger.Warn(ctx, "fanout queue full, event dropped", "event", ev.Name)
	}
}

// Close 停止分发,排空队列并关闭所有订阅者通道
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	close(h.queue)
	<-h.done

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *Hub) dispatch() {
	defer close(h.done)
	for ev := range h.queue {
		h.mu.RLock()
		for _, sub := range h.subs {
			if !sub.wants(ev.Groups) {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				h.drop()
			}
		}
		h.mu.RUnlock()
	}
}

func (h *Hub) drop() {
	if h.dropped != nil {
		h.dropped.Inc()
	}
}
