// Package application 实现商品目录用例,读路径带 Redis 缓存。
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/storefront/internal/catalog/domain"
	"github.com/wyfcoding/storefront/pkg/cache"
	"github.com/wyfcoding/storefront/pkg/logger"
)

const productListCacheKey = "catalog:products"

func productCacheKey(id uint) string { return fmt.Sprintf("catalog:product:%d", id) }

// CatalogService 商品目录服务。cache 可为 nil,此时直接走数据库。
// 缓存失败永远不挡读请求,记日志后回源。
type CatalogService struct {
	repo  domain.ProductRepository
	cache *cache.RedisCache
	ttl   time.Duration
}

func NewCatalogService(repo domain.ProductRepository, c *cache.RedisCache, ttl time.Duration) *CatalogService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CatalogService{repo: repo, cache: c, ttl: ttl}
}

// GetProduct 读单个商品,带缓存
func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*domain.Product, error) {
	if s.cache != nil {
		var p domain.Product
		found, err := s.cache.GetJSON(ctx, productCacheKey(id), &p)
		if err != nil {
			logger.Warn(ctx, "product cache read failed", "product_id", id, "error", err)
		} else if found {
			return &p, nil
		}
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, productCacheKey(id), p, s.ttl); err != nil {
			logger.Warn(ctx, "product cache write failed", "product_id", id, "error", err)
		}
	}
	return p, nil
}

// ListProducts 商品列表分页。只缓存无筛选的首页,其余组合直接回源。
func (s *CatalogService) ListProducts(ctx context.Context, categoryID uint, offset, limit int) ([]*domain.Product, int, error) {
	type page struct {
		Products []*domain.Product `json:"products"`
		Total    int               `json:"total"`
	}
	cacheable := s.cache != nil && categoryID == 0 && offset == 0
	if cacheable {
		var pg page
		found, err := s.cache.GetJSON(ctx, productListCacheKey, &pg)
		if err != nil {
			logger.Warn(ctx, "product list cache read failed", "error", err)
		} else if found && len(pg.Products) >= limit {
			return pg.Products[:limit], pg.Total, nil
		}
	}
	products, total, err := s.repo.List(ctx, categoryID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	if cacheable {
		if err := s.cache.SetJSON(ctx, productListCacheKey, page{Products: products, Total: total}, s.ttl); err != nil {
			logger.Warn(ctx, "product list cache write failed", "error", err)
		}
	}
	return products, total, nil
}

// SaveProduct 新建或更新商品,随后失效缓存
func (s *CatalogService) SaveProduct(ctx context.Context, p *domain.Product) error {
	if err := s.repo.Save(ctx, p); err != nil {
		return err
	}
	s.InvalidateProducts(ctx, p.ID)
	return nil
}

// Restock 补货
func (s *CatalogService) Restock(ctx context.Context, id uint, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("restock quantity must be positive, got %d", qty)
	}
	if err := s.repo.Restock(ctx, id, qty); err != nil {
		return err
	}
	s.InvalidateProducts(ctx, id)
	logger.Info(ctx, "product restocked", "product_id", id, "quantity", qty)
	return nil
}

// ListLowStock 低库存商品清单,管理端用
func (s *CatalogService) ListLowStock(ctx context.Context, threshold int) ([]domain.LowStockProduct, error) {
	return s.repo.ListLowStock(ctx, threshold)
}

// InvalidateProducts 库存或商品数据变化后清掉读缓存,
// ids 指定要一并失效的单品缓存。
func (s *CatalogService) InvalidateProducts(ctx context.Context, ids ...uint) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, productListCacheKey)
	for _, id := range ids {
		keys = append(keys, productCacheKey(id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		logger.Warn(ctx, "product cache invalidation failed", "error", err)
	}
}
