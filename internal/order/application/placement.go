// Package application 实现下单用例:校验、扣减库存、生成订单快照。
package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	cartdomain "github.com/wyfcoding/storefront/internal/cart/domain"
	catalogdomain "github.com/wyfcoding/storefront/internal/catalog/domain"
	"github.com/wyfcoding/storefront/internal/fanout"
	"github.com/wyfcoding/storefront/internal/order/domain"
	"github.com/wyfcoding/storefront/pkg/logger"
	"github.com/wyfcoding/storefront/pkg/metrics"
)

// PlacementTx 下单事务内可用的存储操作。
// 所有方法都作用在同一个事务句柄上。
type PlacementTx interface {
	CartWithItems(userID string) (*cartdomain.Cart, error)
	Product(id uint) (*catalogdomain.Product, error)
	// DecrementStock 条件扣减:库存足够时扣减并返回 true,
	// 否则不做任何修改返回 false。
	DecrementStock(id uint, qty int) (bool, error)
	Stock(id uint) (int, error)
	CreateOrder(o *domain.Order) error
	ClearCart(cartID uint) error
}

// PlacementStore 提供事务边界。fn 返回错误时整个事务回滚。
type PlacementStore interface {
	InTx(ctx context.Context, fn func(tx PlacementTx) error) error
}

// CacheInvalidator 下单成功后失效商品缓存
type CacheInvalidator interface {
	InvalidateProducts(ctx context.Context, ids ...uint)
}

// PlacementService 下单服务。校验与扣减在单个事务内完成,
// 任何一行缺货则整单失败,不产生部分扣减。
type PlacementService struct {
	store     PlacementStore
	events    fanout.Publisher
	cache     CacheInvalidator
	metrics   *metrics.Metrics
	threshold int
}

// NewPlacementService cache 与 m 可为 nil,threshold 为低库存告警阈值。
func NewPlacementService(store PlacementStore, events fanout.Publisher, cache CacheInvalidator, m *metrics.Metrics, threshold int) *PlacementService {
	return &PlacementService{
		store:     store,
		events:    events,
		cache:     cache,
		metrics:   m,
		threshold: threshold,
	}
}

type lowStockCrossing struct {
	productID uint
	name      string
	stock     int
}

// Place 将用户购物车转为订单。
// 返回的 *ValidationError 携带全部缺口行;基础设施错误包装 db.ErrTransient。
func (s *PlacementService) Place(ctx context.Context, userID string, contact domain.ContactInfo) (*domain.Order, error) {
	if userID == "" {
		s.countFailure("no_identity")
		return nil, cartdomain.ErrNoUserIdentity
	}

	var (
		order     *domain.Order
		crossings []lowStockCrossing
	)
	err := s.store.InTx(ctx, func(tx PlacementTx) error {
		cart, err := tx.CartWithItems(userID)
		if err != nil {
			return err
		}
		if cart == nil || cart.IsEmpty() {
			return domain.NewEmptyCartError()
		}

		// 先整车校验,收齐所有缺口再失败,避免用户逐行试错。
		products := make(map[uint]*catalogdomain.Product, len(cart.Items))
		var shortfalls []domain.StockShortfall
		for _, line := range cart.Items {
			p, err := tx.Product(line.ProductID)
			if err != nil {
				return err
			}
			products[line.ProductID] = p
			if p.Stock < line.Quantity {
				shortfalls = append(shortfalls, domain.StockShortfall{
					ProductID:   p.ID,
					ProductName: p.Name,
					Requested:   line.Quantity,
					Available:   p.Stock,
				})
			}
		}
		if len(shortfalls) > 0 {
			return domain.NewShortfallError(shortfalls)
		}

		// 本事务触达的商品与其扣减后的余量,同一商品多行只记一次
		touched := make(map[uint]int, len(cart.Items))
		var touchedOrder []uint
		for _, line := range cart.Items {
			ok, err := tx.DecrementStock(line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				// 校验后被并发请求抢走了库存,重读余量报缺口。
				avail, err := tx.Stock(line.ProductID)
				if err != nil {
					return err
				}
				return domain.NewShortfallError([]domain.StockShortfall{{
					ProductID:   line.ProductID,
					ProductName: products[line.ProductID].Name,
					Requested:   line.Quantity,
					Available:   avail,
				}})
			}
			newStock, err := tx.Stock(line.ProductID)
			if err != nil {
				return err
			}
			if _, seen := touched[line.ProductID]; !seen {
				touchedOrder = append(touchedOrder, line.ProductID)
			}
			touched[line.ProductID] = newStock
		}

		// 本单触达且收尾低于阈值的商品各告警一次,未触达的商品不读不报。
		for _, id := range touchedOrder {
			if stock := touched[id]; stock < s.threshold {
				crossings = append(crossings, lowStockCrossing{
					productID: id,
					name:      products[id].Name,
					stock:     stock,
				})
			}
		}

		// 行快照取商品当前价格,不信任购物车里存的价格。
		subtotal := decimal.Zero
		items := make([]domain.OrderItem, 0, len(cart.Items))
		for _, line := range cart.Items {
			p := products[line.ProductID]
			items = append(items, domain.OrderItem{
				ProductID:    p.ID,
				ProductName:  p.Name,
				CategoryName: p.CategoryName(),
				Color:        line.SelectedColor,
				UnitPrice:    p.Price,
				Quantity:     line.Quantity,
			})
			subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		order = &domain.Order{
			OrderNumber:     "ORD-" + uuid.NewString(),
			UserID:          userID,
			OrderDate:       time.Now(),
			Status:          domain.OrderStatusPending,
			Subtotal:        subtotal,
			ShippingFee:     decimal.Zero,
			Discount:        decimal.Zero,
			TotalAmount:     subtotal,
			ContactEmail:    contact.Email,
			ContactName:     contact.Name,
			ContactPhone:    contact.Phone,
			City:            contact.City,
			PostalCode:      contact.PostalCode,
			ShippingAddress: contact.ShippingAddress,
			Items:           items,
		}
		if err := tx.CreateOrder(order); err != nil {
			return err
		}
		return tx.ClearCart(cart.ID)
	})
	if err != nil {
		s.classifyFailure(ctx, err)
		return nil, err
	}

	logger.Info(ctx, "order placed",
		"order_number", order.OrderNumber, "user_id", userID,
		"total", order.TotalAmount.String(), "items", len(order.Items))

	// 事件与缓存失效只在提交之后做,避免把未提交状态广播出去。
	s.events.Publish(ctx, fanout.NewOrderCreated(fanout.OrderCreatedPayload{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		ContactEmail: order.ContactEmail,
		ContactName:  order.ContactName,
		Date:         order.OrderDate,
		Status:       string(order.Status),
		Total:        order.TotalAmount,
	}))
	s.events.Publish(ctx, fanout.NewOrderPlaced(userID, fanout.OrderPlacedPayload{
		OrderID:   order.ID,
		Total:     order.TotalAmount,
		ItemCount: order.ItemCount(),
	}))
	for _, c := range crossings {
		s.events.Publish(ctx, fanout.NewLowStockAlert(fanout.LowStockPayload{
			ProductID: c.productID,
			Name:      c.name,
			Stock:     c.stock,
			Threshold: s.threshold,
		}))
		if s.metrics != nil {
			s.metrics.LowStockAlertsTotal.Inc()
		}
	}
	if s.cache != nil {
		ids := make([]uint, 0, len(order.Items))
		for _, it := range order.Items {
			ids = append(ids, it.ProductID)
		}
		s.cache.InvalidateProducts(ctx, ids...)
	}
	if s.metrics != nil {
		s.metrics.OrdersPlacedTotal.Inc()
	}
	return order, nil
}

func (s *PlacementService) classifyFailure(ctx context.Context, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		if len(verr.Shortfalls) > 0 {
			s.countFailure("stock_shortfall")
			if s.metrics != nil {
				s.metrics.StockShortfallsTotal.Add(float64(len(verr.Shortfalls)))
			}
		} else {
			s.countFailure("empty_cart")
		}
	default:
		s.countFailure("infrastructure")
		logger.Error(ctx, "order placement failed", "error", err)
	}
}

func (s *PlacementService) countFailure(reason string) {
	if s.metrics != nil {
		s.metrics.PlacementFailuresTotal.WithLabelValues(reason).Inc()
	}
}
