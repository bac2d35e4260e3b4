package fanout

import (
	"context"
	"sync"
	"testing"
	"time"
)

type sentMessage struct {
	topic string
	key   string
}

type recordingSender struct {
	mu   sync.Mutex
	gate chan struct{} // 非 nil 时 SendMessage 阻塞到放行
	msgs []sentMessage
}

func (s *recordingSender) SendMessage(ctx context.Context, topic string, key string, value interface{}) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, sentMessage{topic: topic, key: key})
	return nil
}

func (s *recordingSender) sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.msgs...)
}

func TestMirrorNeverBlocksPublish(t *testing.T) {
	hub := NewHub(64, 4, nil)
	defer hub.Close()

	sender := &recordingSender{gate: make(chan struct{})}
	mirror := NewKafkaMirror(hub, sender, "orders", "stock", 64)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 32; i++ {
			mirror.Publish(context.Background(), NewOrderCreated(OrderCreatedPayload{OrderID: uint(i + 1)}))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish must not wait on the kafka send")
	}

	close(sender.gate)
	mirror.Close()
}

func TestMirrorRoutesByEvent(t *testing.T) {
	hub := NewHub(16, 4, nil)
	defer hub.Close()

	sender := &recordingSender{}
	mirror := NewKafkaMirror(hub, sender, "orders", "stock", 16)

	ctx := context.Background()
	mirror.Publish(ctx, NewOrderCreated(OrderCreatedPayload{OrderID: 1}))
	mirror.Publish(ctx, NewLowStockAlert(LowStockPayload{ProductID: 7, Stock: 3}))
	mirror.Publish(ctx, NewItemAdded(UserGroup("u1"), ItemAddedPayload{ProductID: 7, Quantity: 1}))

	// Close 排空队列后再断言
	mirror.Close()

	got := sender.sent()
	if len(got) != 2 {
		t.Fatalf("expected 2 mirrored messages, got %d", len(got))
	}
	if got[0].topic != "orders" || got[0].key != EventOrderCreated {
		t.Errorf("unexpected first message %+v", got[0])
	}
	if got[1].topic != "stock" || got[1].key != EventLowStockAlert {
		t.Errorf("unexpected second message %+v", got[1])
	}
}

func TestMirrorWithoutSenderStaysLocal(t *testing.T) {
	hub := NewHub(16, 4, nil)
	defer hub.Close()

	mirror := NewKafkaMirror(hub, nil, "orders", "stock", 16)
	sub := hub.Subscribe(GroupAdmin)

	mirror.Publish(context.Background(), NewOrderCreated(OrderCreatedPayload{OrderID: 1}))

	if ev := recvOne(t, sub); ev.Name != EventOrderCreated {
		t.Errorf("expected %s, got %s", EventOrderCreated, ev.Name)
	}
	mirror.Close()

	// 发布到已关闭的镜像依旧只走进程内分发
	mirror.Publish(context.Background(), NewOrderCreated(OrderCreatedPayload{OrderID: 2}))
	recvOne(t, sub)
}
