package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	cartdomain "github.com/wyfcoding/storefront/internal/cart/domain"
	catalogdomain "github.com/wyfcoding/storefront/internal/catalog/domain"
	"github.com/wyfcoding/storefront/internal/fanout"
	"github.com/wyfcoding/storefront/internal/order/domain"
)

// memStore 内存版下单存储:串行事务,失败时恢复快照。
type memStore struct {
	mu       sync.Mutex
	carts    map[string]*cartdomain.Cart
	products map[uint]*catalogdomain.Product
	orders   []*domain.Order
	nextID   uint
}

func newMemStore() *memStore {
	return &memStore{
		carts:    make(map[string]*cartdomain.Cart),
		products: make(map[uint]*catalogdomain.Product),
		nextID:   1,
	}
}

func (s *memStore) addProduct(id uint, name string, price float64, stock int) {
	p := &catalogdomain.Product{Name: name, Price: decimal.NewFromFloat(price), Stock: stock}
	p.ID = id
	s.products[id] = p
}

func (s *memStore) addCart(userID string, lines ...cartdomain.CartItem) {
	cart := cartdomain.NewUserCart(userID)
	cart.ID = s.nextID
	s.nextID++
	cart.Items = lines
	s.carts[userID] = cart
}

func (s *memStore) snapshot() map[uint]int {
	stocks := make(map[uint]int, len(s.products))
	for id, p := range s.products {
		stocks[id] = p.Stock
	}
	return stocks
}

func (s *memStore) restore(stocks map[uint]int) {
	for id, stock := range stocks {
		s.products[id].Stock = stock
	}
}

func (s *memStore) InTx(_ context.Context, fn func(tx PlacementTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.restore(before)
		return err
	}
	return nil
}

type memTx struct{ store *memStore }

func (t *memTx) CartWithItems(userID string) (*cartdomain.Cart, error) {
	return t.store.carts[userID], nil
}

func (t *memTx) Product(id uint) (*catalogdomain.Product, error) {
	p, ok := t.store.products[id]
	if !ok {
		return nil, errors.New("product not found")
	}
	return p, nil
}

func (t *memTx) DecrementStock(id uint, qty int) (bool, error) {
	p := t.store.products[id]
	if p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (t *memTx) Stock(id uint) (int, error) {
	return t.store.products[id].Stock, nil
}

func (t *memTx) CreateOrder(o *domain.Order) error {
	o.ID = uint(len(t.store.orders) + 1)
	t.store.orders = append(t.store.orders, o)
	return nil
}

func (t *memTx) ClearCart(cartID uint) error {
	for _, c := range t.store.carts {
		if c.ID == cartID {
			c.Items = nil
		}
	}
	return nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []fanout.Event
}

func (p *memPublisher) Publish(_ context.Context, ev fanout.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *memPublisher) byName(name string) []fanout.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []fanout.Event
	for _, ev := range p.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func line(productID uint, qty int, price float64) cartdomain.CartItem {
	return cartdomain.CartItem{
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: decimal.NewFromFloat(price),
	}
}

func contact() domain.ContactInfo {
	return domain.ContactInfo{
		Email:           "jo@example.com",
		Name:            "Jo",
		City:            "Berlin",
		ShippingAddress: "Somestrasse 1",
	}
}

func TestPlaceHappyPath(t *testing.T) {
	store := newMemStore()
	store.addProduct(1, "tee", 10, 50)
	store.addProduct(2, "mug", 25.5, 50)
	store.addCart("u1", line(1, 2, 10), line(2, 1, 25.5))
	pub := &memPublisher{}
	svc := NewPlacementService(store, pub, nil, nil, 20)

	order, err := svc.Place(context.Background(), "u1", contact())
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected Pending, got %s", order.Status)
	}
	want := decimal.NewFromFloat(45.5)
	if !order.TotalAmount.Equal(want) {
		t.Errorf("expected total %s, got %s", want, order.TotalAmount)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 order items, got %d", len(order.Items))
	}
	if order.OrderNumber == "" {
		t.Error("expected an order number")
	}
	if store.products[1].Stock != 48 || store.products[2].Stock != 49 {
		t.Errorf("stock not decremented: %d/%d", store.products[1].Stock, store.products[2].Stock)
	}
	if !store.carts["u1"].IsEmpty() {
		t.Error("cart must be cleared after placement")
	}
	created := pub.byName(fanout.EventOrderCreated)
	if len(created) != 1 {
		t.Fatalf("expected 1 order.created event, got %d", len(created))
	}
	payload := created[0].Payload.(fanout.OrderCreatedPayload)
	if payload.ContactEmail != "jo@example.com" || payload.ContactName != "Jo" {
		t.Errorf("event must carry contact info, got %q / %q", payload.ContactEmail, payload.ContactName)
	}
	if payload.Status != string(domain.OrderStatusPending) || !payload.Total.Equal(want) {
		t.Errorf("event must carry order status and total, got %q / %s", payload.Status, payload.Total)
	}
	if payload.Date.IsZero() {
		t.Error("event must carry the order date")
	}
	placed := pub.byName(fanout.EventOrderPlaced)
	if len(placed) != 1 {
		t.Fatalf("expected 1 order.placed event, got %d", len(placed))
	}
	if p := placed[0].Payload.(fanout.OrderPlacedPayload); p.ItemCount != 3 || !p.Total.Equal(want) {
		t.Errorf("unexpected order.placed payload %+v", p)
	}
}

func TestPlaceUsesLivePrice(t *testing.T) {
	store := newMemStore()
	store.addProduct(1, "tee", 12, 50)
	// 加购时价格还是 10,下单要按当前价 12 结算
	store.addCart("u1", line(1, 1, 10))
	svc := NewPlacementService(store, &memPublisher{}, nil, nil, 20)

	order, err := svc.Place(context.Background(), "u1", contact())
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	want := decimal.NewFromInt(12)
	if !order.Items[0].UnitPrice.Equal(want) {
		t.Errorf("expected live price %s, got %s", want, order.Items[0].UnitPrice)
	}
	if !order.TotalAmount.Equal(want) {
		t.Errorf("expected total %s, got %s", want, order.TotalAmount)
	}
}

func TestPlaceEmptyCart(t *testing.T) {
	store := newMemStore()
	store.addCart("u1")
	svc := NewPlacementService(store, &memPublisher{}, nil, nil, 20)

	_, err := svc.Place(context.Background(), "u1", contact())
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Shortfalls) != 0 {
		t.Error("empty cart error must not carry shortfalls")
	}
}

func TestPlaceNoIdentity(t *testing.T) {
	svc := NewPlacementService(newMemStore(), &memPublisher{}, nil, nil, 20)
	if _, err := svc.Place(context.Background(), "", contact()); !errors.Is(err, cartdomain.ErrNoUserIdentity) {
		t.Errorf("expected ErrNoUserIdentity, got %v", err)
	}
}

func TestPlaceCollectsAllShortfalls(t *testing.T) {
	store := newMemStore()
	store.addProduct(1, "tee", 10, 1)
	store.addProduct(2, "mug", 20, 0)
	store.addProduct(3, "cap", 30, 50)
	store.addCart("u1", line(1, 5, 10), line(2, 2, 20), line(3, 1, 30))
	pub := &memPublisher{}
	svc := NewPlacementService(store, pub, nil, nil, 20)

	_, err := svc.Place(context.Background(), "u1", contact())
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Shortfalls) != 2 {
		t.Fatalf("expected 2 shortfalls, got %d", len(verr.Shortfalls))
	}
	// 整单失败:没有任何一行被扣减,购物车原样保留
	if store.products[3].Stock != 50 {
		t.Error("no stock may be decremented on a failed placement")
	}
	if store.carts["u1"].IsEmpty() {
		t.Error("cart must be untouched on a failed placement")
	}
	if len(store.orders) != 0 {
		t.Error("no order may be created on a failed placement")
	}
	if len(pub.events) != 0 {
		t.Error("no events may fire on a failed placement")
	}
}

func TestPlaceLastUnitConcurrency(t *testing.T) {
	store := newMemStore()
	store.addProduct(1, "tee", 10, 1)
	store.addCart("u1", line(1, 1, 10))
	store.addCart("u2", line(1, 1, 10))
	svc := NewPlacementService(store, &memPublisher{}, nil, nil, 20)

	results := make([]error, 2)
	var g errgroup.Group
	for i, user := range []string{"u1", "u2"} {
		i, user := i, user
		g.Go(func() error {
			_, results[i] = svc.Place(context.Background(), user, contact())
			return nil
		})
	}
	_ = g.Wait()

	var wins, shortfalls int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		var verr *domain.ValidationError
		if errors.As(err, &verr) && len(verr.Shortfalls) == 1 {
			shortfalls++
		}
	}
	if wins != 1 || shortfalls != 1 {
		t.Fatalf("expected exactly one winner and one shortfall, got %d wins / %d shortfalls", wins, shortfalls)
	}
	if store.products[1].Stock != 0 {
		t.Errorf("expected stock 0 after the race, got %d", store.products[1].Stock)
	}
}

func TestLowStockAlertPerOrderBelowThreshold(t *testing.T) {
	store := newMemStore()
	store.addProduct(1, "tee", 10, 21)
	store.addProduct(2, "mug", 5, 100)
	store.addCart("u1", line(1, 2, 10), line(2, 1, 5))
	pub := &memPublisher{}
	svc := NewPlacementService(store, pub, nil, nil, 20)

	if _, err := svc.Place(context.Background(), "u1", contact()); err != nil {
		t.Fatalf("first place: %v", err)
	}
	alerts := pub.byName(fanout.EventLowStockAlert)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 low stock alert, got %d", len(alerts))
	}
	payload := alerts[0].Payload.(fanout.LowStockPayload)
	if payload.ProductID != 1 || payload.Stock != 19 {
		t.Errorf("expected alert for product 1 at stock 19, got product %d at %d", payload.ProductID, payload.Stock)
	}
	if payload.Name != "tee" {
		t.Errorf("expected product name in alert, got %q", payload.Name)
	}

	// 低于阈值期间每笔触达该商品的订单都再告警一次
	store.addCart("u1", line(1, 1, 10))
	if _, err := svc.Place(context.Background(), "u1", contact()); err != nil {
		t.Fatalf("second place: %v", err)
	}
	alerts = pub.byName(fanout.EventLowStockAlert)
	if len(alerts) != 2 {
		t.Fatalf("expected a second alert while below the threshold, got %d", len(alerts))
	}
	if payload := alerts[1].Payload.(fanout.LowStockPayload); payload.Stock != 18 {
		t.Errorf("expected alert stock 18, got %d", payload.Stock)
	}
}

func TestLowStockAlertOncePerProductPerOrder(t *testing.T) {
	store := newMemStore()
	store.addProduct(1, "tee", 10, 21)
	// 同一商品两个款式各占一行,仍只告警一次
	store.addCart("u1", line(1, 1, 10), line(1, 1, 10))
	pub := &memPublisher{}
	svc := NewPlacementService(store, pub, nil, nil, 20)

	if _, err := svc.Place(context.Background(), "u1", contact()); err != nil {
		t.Fatalf("place: %v", err)
	}
	alerts := pub.byName(fanout.EventLowStockAlert)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert for the product, got %d", len(alerts))
	}
	if payload := alerts[0].Payload.(fanout.LowStockPayload); payload.Stock != 19 {
		t.Errorf("expected alert stock 19, got %d", payload.Stock)
	}
}

func TestPlaceDrainsStockCompletely(t *testing.T) {
	store := newMemStore()
	store.addProduct(1, "tee", 10, 5)
	store.addCart("u1", line(1, 5, 10))
	pub := &memPublisher{}
	svc := NewPlacementService(store, pub, nil, nil, 20)

	order, err := svc.Place(context.Background(), "u1", contact())
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if want := decimal.NewFromInt(50); !order.TotalAmount.Equal(want) {
		t.Errorf("expected total %s, got %s", want, order.TotalAmount)
	}
	if store.products[1].Stock != 0 {
		t.Errorf("expected stock 0, got %d", store.products[1].Stock)
	}
	alerts := pub.byName(fanout.EventLowStockAlert)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if payload := alerts[0].Payload.(fanout.LowStockPayload); payload.Stock != 0 {
		t.Errorf("expected alert stock 0, got %d", payload.Stock)
	}
}
