package application

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/storefront/internal/cart/domain"
	catalogdomain "github.com/wyfcoding/storefront/internal/catalog/domain"
)

type fakeCartRepo struct {
	carts  []*domain.Cart
	nextID uint
}

func newFakeCartRepo() *fakeCartRepo { return &fakeCartRepo{nextID: 1} }

func (r *fakeCartRepo) GetByOwner(_ context.Context, owner domain.OwnerKey) (*domain.Cart, error) {
	for _, c := range r.carts {
		if owner.Resolved() {
			if c.UserID != nil && *c.UserID == owner.UserID {
				return c, nil
			}
		} else if c.SessionID != nil && *c.SessionID == owner.SessionID {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeCartRepo) Create(_ context.Context, cart *domain.Cart) error {
	cart.ID = r.nextID
	r.nextID++
	r.carts = append(r.carts, cart)
	return nil
}

func (r *fakeCartRepo) SaveItem(_ context.Context, item *domain.CartItem) error {
	for _, c := range r.carts {
		if c.ID != item.CartID {
			continue
		}
		for i := range c.Items {
			if c.Items[i].ProductID == item.ProductID &&
				c.Items[i].SelectedSize == item.SelectedSize &&
				c.Items[i].SelectedColor == item.SelectedColor {
				c.Items[i] = *item
				return nil
			}
		}
		c.Items = append(c.Items, *item)
	}
	return nil
}

func (r *fakeCartRepo) DeleteItem(_ context.Context, cartID, productID uint) error {
	for _, c := range r.carts {
		if c.ID != cartID {
			continue
		}
		kept := make([]domain.CartItem, 0, len(c.Items))
		for _, it := range c.Items {
			if it.ProductID != productID {
				kept = append(kept, it)
			}
		}
		c.Items = kept
	}
	return nil
}

func (r *fakeCartRepo) ClearItems(_ context.Context, cartID uint) error {
	for _, c := range r.carts {
		if c.ID == cartID {
			c.Items = nil
		}
	}
	return nil
}

func (r *fakeCartRepo) Merge(ctx context.Context, sessionID, userID string) (bool, error) {
	session, err := r.GetByOwner(ctx, domain.OwnerKey{SessionID: sessionID})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	user, err := r.GetByOwner(ctx, domain.OwnerKey{UserID: userID})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		session.UserID = &userID
		session.SessionID = nil
		return true, nil
	}
	if err != nil {
		return false, err
	}
	for _, it := range session.Items {
		if line := user.FindLine(it.ProductID, it.SelectedSize, it.SelectedColor); line != nil {
			line.Quantity += it.Quantity
			continue
		}
		it.CartID = user.ID
		user.Items = append(user.Items, it)
	}
	r.remove(session.ID)
	return true, nil
}

func (r *fakeCartRepo) remove(id uint) {
	kept := make([]*domain.Cart, 0, len(r.carts))
	for _, c := range r.carts {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	r.carts = kept
}

type fakeProducts struct {
	products map[uint]*catalogdomain.Product
}

func (f *fakeProducts) GetByID(_ context.Context, id uint) (*catalogdomain.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (f *fakeProducts) GetStock(_ context.Context, id uint) (int, error) {
	p, ok := f.products[id]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	return p.Stock, nil
}

func newService(repo *fakeCartRepo, products map[uint]*catalogdomain.Product) *CartApplicationService {
	return NewCartApplicationService(repo, &fakeProducts{products: products}, nil)
}

func seedProduct(id uint, price float64, stock int) *catalogdomain.Product {
	p := &catalogdomain.Product{
		Name:  "product",
		Price: decimal.NewFromFloat(price),
		Stock: stock,
	}
	p.ID = id
	return p
}

func TestGetOrCreateLazilyCreates(t *testing.T) {
	repo := newFakeCartRepo()
	svc := newService(repo, nil)
	ctx := context.Background()

	cart, err := svc.GetOrCreate(ctx, domain.OwnerKey{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.SessionID == nil || *cart.SessionID != "s1" {
		t.Error("expected session cart to be created")
	}

	again, err := svc.GetOrCreate(ctx, domain.OwnerKey{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ID != cart.ID {
		t.Error("expected the same cart on second call")
	}
}

func TestMergeMovesSessionCartToUser(t *testing.T) {
	repo := newFakeCartRepo()
	products := map[uint]*catalogdomain.Product{1: seedProduct(1, 10, 100)}
	svc := newService(repo, products)
	ctx := context.Background()

	if _, _, err := svc.AddItem(ctx, domain.OwnerKey{SessionID: "s1"}, 1, 2, "", ""); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := svc.MergeIntoUser(ctx, "s1", "u1"); err != nil {
		t.Fatalf("merge: %v", err)
	}

	cart, err := repo.GetByOwner(ctx, domain.OwnerKey{UserID: "u1"})
	if err != nil {
		t.Fatalf("user cart missing after merge: %v", err)
	}
	if got := cart.FindByProduct(1).Quantity; got != 2 {
		t.Errorf("expected quantity 2, got %d", got)
	}
	if _, err := repo.GetByOwner(ctx, domain.OwnerKey{SessionID: "s1"}); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Error("session cart must be gone after merge")
	}
}

func TestMergeCombinesQuantities(t *testing.T) {
	repo := newFakeCartRepo()
	products := map[uint]*catalogdomain.Product{1: seedProduct(1, 10, 100)}
	svc := newService(repo, products)
	ctx := context.Background()

	if _, _, err := svc.AddItem(ctx, domain.OwnerKey{UserID: "u1"}, 1, 1, "", ""); err != nil {
		t.Fatalf("add to user cart: %v", err)
	}
	if _, _, err := svc.AddItem(ctx, domain.OwnerKey{SessionID: "s1"}, 1, 2, "", ""); err != nil {
		t.Fatalf("add to session cart: %v", err)
	}
	if err := svc.MergeIntoUser(ctx, "s1", "u1"); err != nil {
		t.Fatalf("merge: %v", err)
	}

	cart, _ := repo.GetByOwner(ctx, domain.OwnerKey{UserID: "u1"})
	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 line after merge, got %d", len(cart.Items))
	}
	if got := cart.Items[0].Quantity; got != 3 {
		t.Errorf("expected merged quantity 3, got %d", got)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	repo := newFakeCartRepo()
	products := map[uint]*catalogdomain.Product{1: seedProduct(1, 10, 100)}
	svc := newService(repo, products)
	ctx := context.Background()

	if _, _, err := svc.AddItem(ctx, domain.OwnerKey{SessionID: "s1"}, 1, 2, "", ""); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := svc.MergeIntoUser(ctx, "s1", "u1"); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if err := svc.MergeIntoUser(ctx, "s1", "u1"); err != nil {
		t.Fatalf("second merge: %v", err)
	}

	cart, _ := repo.GetByOwner(ctx, domain.OwnerKey{UserID: "u1"})
	if got := cart.FindByProduct(1).Quantity; got != 2 {
		t.Errorf("second merge must not change quantities, got %d", got)
	}
}

func TestMergePreservesVariants(t *testing.T) {
	repo := newFakeCartRepo()
	products := map[uint]*catalogdomain.Product{1: seedProduct(1, 10, 100)}
	svc := newService(repo, products)
	ctx := context.Background()

	if _, _, err := svc.AddItem(ctx, domain.OwnerKey{UserID: "u1"}, 1, 1, "M", "Red"); err != nil {
		t.Fatalf("add to user cart: %v", err)
	}
	if _, _, err := svc.AddItem(ctx, domain.OwnerKey{SessionID: "s1"}, 1, 1, "L", "Red"); err != nil {
		t.Fatalf("add to session cart: %v", err)
	}
	if err := svc.MergeIntoUser(ctx, "s1", "u1"); err != nil {
		t.Fatalf("merge: %v", err)
	}

	cart, _ := repo.GetByOwner(ctx, domain.OwnerKey{UserID: "u1"})
	if len(cart.Items) != 2 {
		t.Fatalf("lines with different sizes must not collapse, got %d lines", len(cart.Items))
	}
}

func TestMergeRequiresUserIdentity(t *testing.T) {
	svc := newService(newFakeCartRepo(), nil)
	if err := svc.MergeIntoUser(context.Background(), "s1", ""); !errors.Is(err, domain.ErrNoUserIdentity) {
		t.Errorf("expected ErrNoUserIdentity, got %v", err)
	}
}

func TestCapToAvailableRemovesAndClamps(t *testing.T) {
	repo := newFakeCartRepo()
	products := map[uint]*catalogdomain.Product{
		1: seedProduct(1, 10, 0),
		2: seedProduct(2, 20, 3),
		3: seedProduct(3, 30, 100),
	}
	svc := newService(repo, products)
	ctx := context.Background()
	owner := domain.OwnerKey{UserID: "u1"}

	for id, qty := range map[uint]int{1: 2, 2: 5, 3: 1} {
		if _, _, err := svc.AddItem(ctx, owner, id, qty, "", ""); err != nil {
			t.Fatalf("add item %d: %v", id, err)
		}
	}

	cart, changed, err := svc.CapToAvailable(ctx, owner)
	if err != nil {
		t.Fatalf("cap: %v", err)
	}
	if !changed {
		t.Error("expected the cart to be repaired")
	}
	if cart.FindByProduct(1) != nil {
		t.Error("sold-out line must be removed")
	}
	if got := cart.FindByProduct(2).Quantity; got != 3 {
		t.Errorf("over-stock line must be clamped to 3, got %d", got)
	}
	if got := cart.FindByProduct(3).Quantity; got != 1 {
		t.Errorf("healthy line must be untouched, got %d", got)
	}
}

func TestUpdateQuantityZeroRemovesLine(t *testing.T) {
	repo := newFakeCartRepo()
	products := map[uint]*catalogdomain.Product{1: seedProduct(1, 10, 100)}
	svc := newService(repo, products)
	ctx := context.Background()
	owner := domain.OwnerKey{UserID: "u1"}

	if _, _, err := svc.AddItem(ctx, owner, 1, 2, "", ""); err != nil {
		t.Fatalf("add item: %v", err)
	}
	cart, err := svc.UpdateQuantity(ctx, owner, 1, 0)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !cart.IsEmpty() {
		t.Error("expected line removed when quantity set to 0")
	}
}
