package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAddItemMergesSameVariant(t *testing.T) {
	cart := NewUserCart("u1")
	cart.AddItem(1, 2, decimal.NewFromInt(10), "M", "Red")
	cart.AddItem(1, 3, decimal.NewFromInt(10), "M", "Red")

	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(cart.Items))
	}
	if got := cart.Items[0].Quantity; got != 5 {
		t.Errorf("expected quantity 5, got %d", got)
	}
}

func TestAddItemKeepsDistinctVariants(t *testing.T) {
	cart := NewUserCart("u1")
	cart.AddItem(1, 1, decimal.NewFromInt(10), "M", "Red")
	cart.AddItem(1, 1, decimal.NewFromInt(10), "L", "Red")
	cart.AddItem(1, 1, decimal.NewFromInt(10), "M", "Blue")

	if len(cart.Items) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(cart.Items))
	}
}

func TestAddItemClampsQuantity(t *testing.T) {
	cart := NewSessionCart("s1")
	cart.AddItem(1, 0, decimal.NewFromInt(10), "", "")
	if got := cart.Items[0].Quantity; got != 1 {
		t.Errorf("expected quantity clamped to 1, got %d", got)
	}

	cart.AddItem(2, -5, decimal.NewFromInt(10), "", "")
	if got := cart.FindByProduct(2).Quantity; got != 1 {
		t.Errorf("expected quantity clamped to 1, got %d", got)
	}
}

func TestCountAndSubtotal(t *testing.T) {
	cart := NewUserCart("u1")
	cart.AddItem(1, 2, decimal.NewFromFloat(9.99), "", "")
	cart.AddItem(2, 1, decimal.NewFromFloat(25.50), "", "")

	if got := cart.Count(); got != 3 {
		t.Errorf("expected count 3, got %d", got)
	}
	want := decimal.NewFromFloat(45.48)
	if !cart.Subtotal().Equal(want) {
		t.Errorf("expected subtotal %s, got %s", want, cart.Subtotal())
	}
}

func TestFindLineMatchesVariantKey(t *testing.T) {
	cart := NewUserCart("u1")
	cart.AddItem(1, 1, decimal.NewFromInt(10), "M", "Red")

	if cart.FindLine(1, "M", "Red") == nil {
		t.Error("expected to find line with matching variant")
	}
	if cart.FindLine(1, "L", "Red") != nil {
		t.Error("did not expect to find line with different size")
	}
	if cart.FindLine(2, "M", "Red") != nil {
		t.Error("did not expect to find line for another product")
	}
}

func TestOwnerKeyResolved(t *testing.T) {
	if (OwnerKey{SessionID: "s1"}).Resolved() {
		t.Error("session-only key must not be resolved")
	}
	if !(OwnerKey{UserID: "u1", SessionID: "s1"}).Resolved() {
		t.Error("key with user id must be resolved")
	}
}
