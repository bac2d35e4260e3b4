package fanout

import (
	"context"
	"testing"
	"time"
)

func recvOne(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expectNone(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event %q", ev.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversToMatchingGroupsOnly(t *testing.T) {
	hub := NewHub(16, 4, nil)
	defer hub.Close()

	admin := hub.Subscribe(GroupAdmin)
	user := hub.Subscribe(UserGroup("u1"))
	other := hub.Subscribe(UserGroup("u2"))

	hub.Publish(context.Background(), NewOrderPlaced("u1", OrderPlacedPayload{OrderID: 1}))

	ev := recvOne(t, user)
	if ev.Name != EventOrderPlaced {
		t.Errorf("expected %s, got %s", EventOrderPlaced, ev.Name)
	}
	expectNone(t, admin)
	expectNone(t, other)
}

func TestHubBroadcastReachesAllGroupMembers(t *testing.T) {
	hub := NewHub(16, 4, nil)
	defer hub.Close()

	a := hub.Subscribe(GroupAdmin)
	b := hub.Subscribe(GroupAdmin, GroupOrders)

	hub.Publish(context.Background(), NewOrderCreated(OrderCreatedPayload{OrderNumber: "ORD-1"}))

	if ev := recvOne(t, a); ev.Name != EventOrderCreated {
		t.Errorf("expected %s, got %s", EventOrderCreated, ev.Name)
	}
	if ev := recvOne(t, b); ev.Name != EventOrderCreated {
		t.Errorf("expected %s, got %s", EventOrderCreated, ev.Name)
	}
	// 订阅者同时在两个目标组里,同一事件只投一次
	expectNone(t, b)
}

func TestSlowSubscriberDropsWithoutBlockingPublish(t *testing.T) {
	hub := NewHub(64, 1, nil)
	defer hub.Close()

	slow := hub.Subscribe(GroupAdmin)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			hub.Publish(context.Background(), NewLowStockAlert(LowStockPayload{ProductID: uint(i + 1)}))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish must never block on a slow subscriber")
	}

	// 缓冲只有 1,多数事件被丢弃,但至少有一个送达
	recvOne(t, slow)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(16, 4, nil)
	defer hub.Close()

	sub := hub.Subscribe(GroupOrders)
	hub.Unsubscribe(sub)

	if _, ok := <-sub.C(); ok {
		t.Error("expected channel closed after unsubscribe")
	}

	// 退订后发布不会 panic,事件无人接收
	hub.Publish(context.Background(), NewOrderCreated(OrderCreatedPayload{}))
}

func TestCloseClosesSubscribers(t *testing.T) {
	hub := NewHub(16, 4, nil)
	sub := hub.Subscribe(GroupAdmin)

	hub.Close()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected no event after close")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription channel must be closed on hub close")
	}

	// 关闭后再发布是无害的
	hub.Publish(context.Background(), NewOrderCreated(OrderCreatedPayload{}))
	hub.Close()
}
