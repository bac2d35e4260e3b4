// Package metrics 提供 Prometheus helper，包含 HTTP、数据库与业务指标
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/storefront/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 下单成功计数
	OrdersPlacedTotal prometheus.Counter
	// 下单失败计数（按原因分类）
	PlacementFailuresTotal *prometheus.CounterVec
	// 库存不足行数计数
	StockShortfallsTotal prometheus.Counter
	// 低库存告警计数
	LowStockAlertsTotal prometheus.Counter
	// 合并购物车计数
	CartMergesTotal prometheus.Counter
	// 丢弃的广播事件计数
	FanoutDroppedTotal prometheus.Counter
	// 支付回调拒绝计数
	PaymentCallbackRejectedTotal prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		OrdersPlacedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "orders_placed_total",
			Help:      "Total orders placed successfully",
		}),
		PlacementFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "placement_failures_total",
			Help:      "Total failed order placements by reason",
		}, []string{"reason"}),
		StockShortfallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "stock_shortfalls_total",
			Help:      "Total cart lines rejected for insufficient stock",
		}),
		LowStockAlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "low_stock_alerts_total",
			Help:      "Total low stock alerts emitted",
		}),
		CartMergesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "cart_merges_total",
			Help:      "Total anonymous carts merged into user carts",
		}),
		FanoutDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "fanout_dropped_total",
			Help:      "Total events dropped for slow subscribers",
		}),
		PaymentCallbackRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: serviceName,
			Name:      "payment_callback_rejected_total",
			Help:      "Total rejected payment gateway callbacks",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OrdersPlacedTotal,
		m.PlacementFailuresTotal,
		m.StockShortfallsTotal,
		m.LowStockAlertsTotal,
		m.CartMergesTotal,
		m.FanoutDroppedTotal,
		m.PaymentCallbackRejectedTotal,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) error {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()

	return nil
}
