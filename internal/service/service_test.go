package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/cache"
	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/store"
	"bengkelpos/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, cache.NewLocalSettingsCache(time.Minute), time.Minute), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx(username string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: username, Role: "cashier"})
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestAdminOnlyOperationsRejectCashier(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx("cashier")

	pct := dec(40)
	if _, err := svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{DefaultShopCutPercentage: &pct}); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected admin required for settings, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, "OLI-MPX2", domain.StockAdjustRequest{Delta: 1}); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected admin required for adjust, got %v", err)
	}
	if _, err := svc.SavePurchase(ctx, domain.PurchaseSaveRequest{}); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected admin required for purchase, got %v", err)
	}
	if _, err := svc.ListAuditLogs(ctx, 10); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected admin required for audit logs, got %v", err)
	}
}

func TestCheckoutPricesFromStockAndPaysMechanics(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx("cashier")

	receipt, err := svc.Checkout(ctx, domain.SaleCheckoutRequest{
		CustomerName: "Pak Rahmat",
		VehiclePlate: "b 1234 xy",
		Items: []domain.SaleLineRequest{
			{ItemCode: "oli-mpx2", Qty: 2},
			{ItemCode: "JASA-SERVIS", Qty: 1},
		},
		Mechanics: []domain.SaleMechanicRequest{{ID: "mch-budi"}, {ID: "mch-andi"}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	tx := receipt.Transaction
	if !tx.Total.Equal(dec(164_000)) {
		t.Fatalf("expected total 164000, got %s", tx.Total)
	}
	if tx.PaymentMethod != "cash" || tx.VehiclePlate != "B 1234 XY" {
		t.Fatalf("unexpected defaults: method=%s plate=%s", tx.PaymentMethod, tx.VehiclePlate)
	}
	if tx.CreatedBy != "cashier" {
		t.Fatalf("expected cashier as creator, got %s", tx.CreatedBy)
	}
	if len(receipt.Commissions) != 2 {
		t.Fatalf("expected 2 commissions, got %d", len(receipt.Commissions))
	}
	if !receipt.Commissions[0].FinalCommissionAmount.Equal(dec(21_000)) || !receipt.Commissions[1].FinalCommissionAmount.Equal(dec(9_000)) {
		t.Fatalf("expected 21000/9000, got %s/%s", receipt.Commissions[0].FinalCommissionAmount, receipt.Commissions[1].FinalCommissionAmount)
	}

	item, err := repo.GetStock(context.Background(), "OLI-MPX2")
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if item.Quantity != 38 {
		t.Fatalf("expected oil stock 38, got %d", item.Quantity)
	}

	perf, err := svc.ListMechanicPerformance(ctx, "mch-budi", 10)
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	if len(perf) != 1 || perf[0].InvoiceNumber != tx.InvoiceNumber {
		t.Fatalf("expected one performance row for %s, got %+v", tx.InvoiceNumber, perf)
	}
}

func TestCheckoutExplicitPercentagesAndPriceOverride(t *testing.T) {
	svc, _ := newTestService()
	fifty := 50
	price := dec(100_000)

	receipt, err := svc.Checkout(cashierCtx("cashier"), domain.SaleCheckoutRequest{
		CustomerName: "Bu Sari",
		Items:        []domain.SaleLineRequest{{ItemCode: "JASA-TUNEUP", Qty: 1, Price: &price}},
		Mechanics: []domain.SaleMechanicRequest{
			{ID: "mch-budi", Percentage: &fifty},
			{ID: "mch-joko", Percentage: &fifty},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	for _, calc := range receipt.Commissions {
		if !calc.FinalCommissionAmount.Equal(dec(25_000)) {
			t.Fatalf("expected 25000 for %s, got %s", calc.MechanicID, calc.FinalCommissionAmount)
		}
	}
}

func TestCheckoutRejectsBadRequests(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx("cashier")

	cases := map[string]domain.SaleCheckoutRequest{
		"unknown item": {
			CustomerName: "A",
			Items:        []domain.SaleLineRequest{{ItemCode: "NOPE", Qty: 1}},
		},
		"duplicate item": {
			CustomerName: "A",
			Items:        []domain.SaleLineRequest{{ItemCode: "BUSI-NGK-C7", Qty: 1}, {ItemCode: "busi-ngk-c7", Qty: 1}},
		},
		"unknown mechanic": {
			CustomerName: "A",
			Items:        []domain.SaleLineRequest{{ItemCode: "JASA-CVT", Qty: 1}},
			Mechanics:    []domain.SaleMechanicRequest{{ID: "mch-ghost"}},
		},
		"type conflicts with stock": {
			CustomerName: "A",
			Items:        []domain.SaleLineRequest{{ItemCode: "JASA-CVT", Type: domain.ItemTypePart, Qty: 1}},
		},
		"negative tax": {
			CustomerName: "A",
			Tax:          dec(-1),
			Items:        []domain.SaleLineRequest{{ItemCode: "JASA-CVT", Qty: 1}},
		},
	}
	for name, req := range cases {
		if _, err := svc.Checkout(ctx, req); !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("%s: expected invalid transaction, got %v", name, err)
		}
	}
}

func TestSettingsUpdateChangesPreview(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	before, err := svc.PreviewCommission(ctx, domain.CommissionPreviewRequest{MechanicIDs: []string{"mch-budi"}, TotalRevenue: dec(100_000)})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !before.Summary.TotalCommission.Equal(dec(50_000)) {
		t.Fatalf("expected 50000 at default shop cut, got %s", before.Summary.TotalCommission)
	}

	pct := dec(30)
	if _, err := svc.UpdateSettings(ctx, domain.SettingsUpdateRequest{DefaultShopCutPercentage: &pct}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	after, err := svc.PreviewCommission(ctx, domain.CommissionPreviewRequest{MechanicIDs: []string{"mch-budi"}, TotalRevenue: dec(100_000)})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !after.Summary.TotalCommission.Equal(dec(70_000)) || !after.Summary.TotalShopCut.Equal(dec(30_000)) {
		t.Fatalf("expected 70000/30000 after update, got %+v", after.Summary)
	}

	if _, err := svc.UpsertMechanicSetting(ctx, "mch-budi", domain.MechanicSettingRequest{ShopCutPercentage: dec(10)}); err != nil {
		t.Fatalf("upsert mechanic setting: %v", err)
	}
	custom, err := svc.PreviewCommission(ctx, domain.CommissionPreviewRequest{MechanicIDs: []string{"mch-budi"}, TotalRevenue: dec(100_000)})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !custom.Summary.TotalCommission.Equal(dec(90_000)) {
		t.Fatalf("expected mechanic override 90000, got %s", custom.Summary.TotalCommission)
	}
}

func TestDefaultSplitsBounds(t *testing.T) {
	svc, _ := newTestService()
	splits, err := svc.DefaultSplits(3)
	if err != nil || len(splits) != 3 || splits[0] != 60 {
		t.Fatalf("expected [60 20 20], got %v err=%v", splits, err)
	}
	if _, err := svc.DefaultSplits(maxDefaultSplitMechanics + 1); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected bound error, got %v", err)
	}
}

func TestAdjustStockRecordsMutationAndAudit(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	resp, err := svc.AdjustStock(ctx, "vbelt-vario", domain.StockAdjustRequest{Delta: -3, Reason: "rusak"})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if resp.Code != "VBELT-VARIO" || resp.Quantity != 7 {
		t.Fatalf("expected VBELT-VARIO at 7, got %+v", resp)
	}

	if _, err := svc.AdjustStock(ctx, "NOPE", domain.StockAdjustRequest{Delta: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown code, got %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, 10)
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	if len(logs) == 0 || logs[0].Action != "stock_adjust" || !strings.Contains(logs[0].Detail, "reason=rusak") {
		t.Fatalf("expected stock_adjust audit entry, got %+v", logs)
	}
}

func TestAdjustStockCountSetsQuantity(t *testing.T) {
	svc, repo := newTestService()
	ctx := adminCtx()
	counted := 4

	resp, err := svc.AdjustStock(ctx, "VBELT-VARIO", domain.StockAdjustRequest{SetTo: &counted, Reason: "opname"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if resp.Quantity != 4 {
		t.Fatalf("expected quantity 4, got %d", resp.Quantity)
	}
	item, _ := repo.GetStock(ctx, "VBELT-VARIO")
	if item.Quantity != 4 {
		t.Fatalf("expected stored quantity 4, got %d", item.Quantity)
	}

	logs, _ := svc.ListAuditLogs(ctx, 1)
	if len(logs) != 1 || !strings.Contains(logs[0].Detail, "delta=-6") || !strings.Contains(logs[0].Detail, "counted=true") {
		t.Fatalf("expected counted adjustment audit with delta -6, got %+v", logs)
	}
	code := strings.TrimPrefix(logs[0].Detail[strings.Index(logs[0].Detail, "mutation="):], "mutation=")
	items, err := repo.GetMutationItems(ctx, code)
	if err != nil || len(items) != 1 || items[0].Quantity != 6 {
		t.Fatalf("expected adjustment mutation of 6, got %+v err=%v", items, err)
	}

	negative := -1
	if _, err := svc.AdjustStock(ctx, "VBELT-VARIO", domain.StockAdjustRequest{SetTo: &negative}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected negative count rejected, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, "VBELT-VARIO", domain.StockAdjustRequest{SetTo: &counted, Delta: 2}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected count with delta rejected, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, "NOPE", domain.StockAdjustRequest{SetTo: &counted}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown code, got %v", err)
	}
}

func TestCheckoutAcceptsMatchingLineType(t *testing.T) {
	svc, _ := newTestService()
	receipt, err := svc.Checkout(cashierCtx("cashier"), domain.SaleCheckoutRequest{
		CustomerName: "Pak Joko",
		Items:        []domain.SaleLineRequest{{ItemCode: "JASA-CVT", Type: domain.ItemTypeService, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if receipt.Transaction.Items[0].Type != domain.ItemTypeService {
		t.Fatalf("expected service line, got %+v", receipt.Transaction.Items[0])
	}
}

func TestPurchaseReturnAndSync(t *testing.T) {
	svc, repo := newTestService()
	ctx := adminCtx()

	receipt, err := svc.SavePurchase(ctx, domain.PurchaseSaveRequest{
		SupplierID:    "sup-astra",
		PaymentStatus: "PAID",
		PaymentType:   "transfer",
		Items: []domain.PurchaseLineRequest{
			{ItemCode: "kampas-rm-beat", ItemName: "Kampas Rem Beat", Qty: 10, Price: dec(30_000), DiscountPercent: dec(10)},
		},
	})
	if err != nil {
		t.Fatalf("save purchase: %v", err)
	}
	purchase := receipt.Purchase
	if purchase.SupplierName != "PT Astra Otoparts" || purchase.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("unexpected purchase header: %+v", purchase)
	}
	if !purchase.Subtotal.Equal(dec(270_000)) {
		t.Fatalf("expected subtotal 270000, got %s", purchase.Subtotal)
	}
	if got := stockOf(t, repo, "KAMPAS-RM-BEAT"); got != 35 {
		t.Fatalf("expected stock 35 after purchase, got %d", got)
	}

	ret, err := svc.CreatePurchaseReturn(ctx, domain.PurchaseReturnRequest{
		PurchaseID: purchase.ID,
		Items:      []domain.PurchaseReturnLineRequest{{LineID: purchase.Items[0].LineID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("purchase return: %v", err)
	}
	if !ret.Return.Total.Equal(dec(54_000)) {
		t.Fatalf("expected return total 54000, got %s", ret.Return.Total)
	}
	if got := stockOf(t, repo, "KAMPAS-RM-BEAT"); got != 33 {
		t.Fatalf("expected stock 33 after return, got %d", got)
	}

	sync, err := svc.SyncMutation(ctx, purchase.PurchaseNumber, domain.SyncRequest{
		Mode:    domain.SyncModeSet,
		Updates: []domain.SyncUpdate{{LineID: purchase.Items[0].LineID, Quantity: 8}},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if sync.Updated != 1 {
		t.Fatalf("expected one row updated, got %+v", sync)
	}
	if _, err := svc.SyncMutation(ctx, purchase.PurchaseNumber, domain.SyncRequest{Mode: "replace"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected bad mode rejected, got %v", err)
	}
}

func TestSavePurchaseRejectsUnknownSupplierAndDuplicates(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	if _, err := svc.SavePurchase(ctx, domain.PurchaseSaveRequest{
		SupplierID: "sup-ghost",
		Items:      []domain.PurchaseLineRequest{{ItemName: "Lap", Qty: 1, Price: dec(1_000)}},
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown supplier not found, got %v", err)
	}

	if _, err := svc.SavePurchase(ctx, domain.PurchaseSaveRequest{
		SupplierName: "Toko Jaya",
		Items: []domain.PurchaseLineRequest{
			{ItemCode: "BUSI-NGK-C7", ItemName: "Busi", Qty: 1, Price: dec(10_000)},
			{ItemCode: "busi-ngk-c7", ItemName: "Busi", Qty: 2, Price: dec(10_000)},
		},
	}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected duplicate item rejected, got %v", err)
	}
}

func TestHeldCartsAreScopedToCashier(t *testing.T) {
	svc, _ := newTestService()
	checkoutReq := domain.SaleCheckoutRequest{
		CustomerName: "Mas Eko",
		Items:        []domain.SaleLineRequest{{ItemCode: "BUSI-NGK-C7", Qty: 1}},
	}

	held, err := svc.HoldCart(cashierCtx("kasir-a"), domain.HoldCartRequest{Note: "tunggu part", Checkout: checkoutReq})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	if _, err := svc.HoldCart(cashierCtx("kasir-b"), domain.HoldCartRequest{Checkout: checkoutReq}); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if _, err := svc.HoldCart(cashierCtx("kasir-a"), domain.HoldCartRequest{}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected empty hold rejected, got %v", err)
	}

	own, err := svc.ListHeldCarts(cashierCtx("kasir-a"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(own.Items) != 1 || own.Items[0].ID != held.ID {
		t.Fatalf("expected only kasir-a cart, got %+v", own.Items)
	}
	all, err := svc.ListHeldCarts(adminCtx())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all.Items) != 2 {
		t.Fatalf("expected admin to see 2 carts, got %d", len(all.Items))
	}

	resumed, err := svc.ResumeHeldCart(cashierCtx("kasir-a"), held.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Checkout.CustomerName != "Mas Eko" {
		t.Fatalf("expected checkout snapshot restored, got %+v", resumed.Checkout)
	}
	if _, err := svc.ResumeHeldCart(cashierCtx("kasir-a"), held.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected second resume not found, got %v", err)
	}
}

func TestCreateMechanicAndStockItem(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	mechanic, err := svc.CreateMechanic(ctx, domain.MechanicCreateRequest{Name: "  Dedi "})
	if err != nil {
		t.Fatalf("create mechanic: %v", err)
	}
	if mechanic.Name != "Dedi" || !mechanic.Active || mechanic.ID == "" {
		t.Fatalf("unexpected mechanic: %+v", mechanic)
	}

	item, err := svc.CreateStockItem(ctx, domain.StockCreateRequest{Code: "aki-gs", Name: "Aki GS", Quantity: 4, Price: dec(250_000), Type: domain.ItemTypePart})
	if err != nil {
		t.Fatalf("create stock: %v", err)
	}
	if item.Code != "AKI-GS" {
		t.Fatalf("expected normalized code, got %s", item.Code)
	}
	if _, err := svc.CreateStockItem(ctx, domain.StockCreateRequest{Code: "X", Name: "X", Type: "tool"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected bad type rejected, got %v", err)
	}
}

func stockOf(t *testing.T, repo *memory.Store, code string) int {
	t.Helper()
	item, err := repo.GetStock(context.Background(), code)
	if err != nil {
		t.Fatalf("get stock %s: %v", code, err)
	}
	return item.Quantity
}
