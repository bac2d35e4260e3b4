package fanout

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wyfcoding/storefront/pkg/logger"
)

// Publisher 事件发布口。应用服务只依赖这个接口,
// 测试里用内存实现替换。
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Sender 消息总线发送口,pkg/mq 的 KafkaProducer 实现它
type Sender interface {
	SendMessage(ctx context.Context, topic string, key string, value interface{}) error
}

// KafkaMirror 在进程内分发之外把订单与库存事件镜像到 Kafka,
// 供离线消费。镜像写在独立协程里完成,请求路径只入队,
// 队列满或发送失败都只记日志,不影响请求。
type KafkaMirror struct {
	hub        *Hub
	sender     Sender
	orderTopic string
	stockTopic string

	mu     sync.Mutex
	queue  chan Event
	closed bool
	done   chan struct{}
}

// NewKafkaMirror sender 可为 nil,此时退化为纯进程内分发。
func NewKafkaMirror(hub *Hub, sender Sender, orderTopic, stockTopic string, queueSize int) *KafkaMirror {
	if queueSize <= 0 {
		queueSize = 256
	}
	m := &KafkaMirror{
		hub:        hub,
		sender:     sender,
		orderTopic: orderTopic,
		stockTopic: stockTopic,
	}
	if sender != nil {
		m.queue = make(chan Event, queueSize)
		m.done = make(chan struct{})
		go m.run()
	}
	return m
}

func (m *KafkaMirror) Publish(ctx context.Context, ev Event) {
	m.hub.Publish(ctx, ev)

	if m.sender == nil || m.topicFor(ev) == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		logger.Warn(ctx, "kafka mirror queue full, event dropped", "event", ev.Name)
	}
}

// Close 停止镜像协程,排空已入队的事件
func (m *KafkaMirror) Close() {
	if m.sender == nil {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.queue)
	<-m.done
}

func (m *KafkaMirror) run() {
	defer close(m.done)
	for ev := range m.queue {
		// 与请求生命周期解耦,发送用独立的有界上下文
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.sender.SendMessage(ctx, m.topicFor(ev), ev.Name, ev); err != nil {
			logger.Error(ctx, "failed to mirror event to kafka", "event", ev.Name, "error", err)
		}
		cancel()
	}
}

func (m *KafkaMirror) topicFor(ev Event) string {
	switch {
	case strings.HasPrefix(ev.Name, "order."):
		return m.orderTopic
	case ev.Name == EventLowStockAlert:
		return m.stockTopic
	}
	return ""
}
