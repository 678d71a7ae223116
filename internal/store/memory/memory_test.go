package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/store"
)

func TestPurchaseNumbersAreUnique(t *testing.T) {
	s := New()
	ctx := context.Background()
	header := domain.Purchase{PurchaseNumber: "PUR-20260307-000", SupplierName: "PT Astra Otoparts"}

	if _, err := s.InsertPurchaseHeader(ctx, header); err != nil {
		t.Fatalf("first header: %v", err)
	}
	exists, err := s.PurchaseNumberExists(ctx, header.PurchaseNumber)
	if err != nil || !exists {
		t.Fatalf("expected number to exist, got %v (%v)", exists, err)
	}
	if _, err := s.InsertPurchaseHeader(ctx, header); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on repeated number, got %v", err)
	}
}

func TestPurchaseReturnCapIsEnforcedOnInsert(t *testing.T) {
	s := New()
	ctx := context.Background()
	purchase, err := s.InsertPurchaseHeader(ctx, domain.Purchase{PurchaseNumber: "PUR-20260307-001", SupplierName: "CV Sinar Motor"})
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if err := s.InsertPurchaseItems(ctx, purchase.ID, []domain.PurchaseItem{
		{LineID: "line-busi", ItemCode: "BUSI-NGK-C7", ItemName: "Busi NGK C7HSA", Qty: 5, Price: decimal.NewFromInt(15000), Subtotal: decimal.NewFromInt(75000)},
	}); err != nil {
		t.Fatalf("items: %v", err)
	}

	ret := func(number string, qty int) domain.PurchaseReturn {
		return domain.PurchaseReturn{
			ReturnNumber: number,
			PurchaseID:   purchase.ID,
			Items:        []domain.PurchaseReturnItem{{LineID: "line-busi", ItemCode: "BUSI-NGK-C7", Qty: qty}},
		}
	}
	if _, err := s.InsertPurchaseReturn(ctx, ret("RET-20260307-000", 3)); err != nil {
		t.Fatalf("first return: %v", err)
	}
	if _, err := s.InsertPurchaseReturn(ctx, ret("RET-20260307-000", 1)); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on repeated return number, got %v", err)
	}
	if _, err := s.InsertPurchaseReturn(ctx, ret("RET-20260307-001", 3)); !errors.Is(err, store.ErrOverReturn) {
		t.Fatalf("expected over-return rejected, got %v", err)
	}
	if _, err := s.InsertPurchaseReturn(ctx, ret("RET-20260307-002", 2)); err != nil {
		t.Fatalf("return of remaining qty: %v", err)
	}

	returned, _ := s.GetReturnedQtyByPurchase(ctx, purchase.ID)
	if returned["line-busi"] != 5 {
		t.Fatalf("expected 5 returned, got %d", returned["line-busi"])
	}
}
