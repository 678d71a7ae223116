package checkout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/cache"
	"bengkelpos/backend/internal/cart"
	"bengkelpos/backend/internal/commission"
	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/settings"
	"bengkelpos/backend/internal/stock"
	"bengkelpos/backend/internal/store"
	"bengkelpos/backend/internal/store/memory"
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func newOrchestrator(t *testing.T, repo Store, seeded *memory.Store) *Orchestrator {
	t.Helper()
	svc := settings.New(seeded, seeded, cache.NoopSettingsCache{}, 0)
	o := NewOrchestrator(repo, stock.NewEngine(seeded, seeded), commission.NewCalculator(seeded, svc))
	clock := time.Date(2026, time.March, 7, 9, 0, 0, 0, time.UTC)
	o.now = func() time.Time {
		clock = clock.Add(7 * time.Millisecond)
		return clock
	}
	return o
}

func stockQty(t *testing.T, repo *memory.Store, code string) int {
	t.Helper()
	item, err := repo.GetStock(context.Background(), code)
	if err != nil {
		t.Fatalf("get stock %s: %v", code, err)
	}
	return item.Quantity
}

func TestCommitSaleRefusesEmptyCart(t *testing.T) {
	repo := memory.NewSeeded()
	o := newOrchestrator(t, repo, repo)
	session := NewSaleSession("cashier")
	session.CustomerName = "Pak Rudi"

	_, err := o.CommitSale(context.Background(), session)
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	txs, _ := repo.ListTransactions(context.Background(), 0)
	if len(txs) != 0 {
		t.Fatalf("expected no persisted transaction, got %d", len(txs))
	}
	if session.State() != StateEmpty || session.CustomerName != "Pak Rudi" {
		t.Fatalf("expected untouched empty session, got state=%s customer=%q", session.State(), session.CustomerName)
	}
}

func TestCommitSaleDivertsForMissingCustomer(t *testing.T) {
	repo := memory.NewSeeded()
	o := newOrchestrator(t, repo, repo)
	session := NewSaleSession("cashier")
	session.Cart.Add(cart.AbsoluteDiscountLine{ID: "OLI-MPX2", Name: "Oli", Price: d(52_000), Type: domain.ItemTypePart})
	if session.State() != StateBuilding {
		t.Fatalf("expected building, got %s", session.State())
	}

	_, err := o.CommitSale(context.Background(), session)
	if !errors.Is(err, ErrPartyInfoRequired) {
		t.Fatalf("expected ErrPartyInfoRequired, got %v", err)
	}
	if session.State() != StateAwaitingPartyInfo || session.Cart.Len() != 1 {
		t.Fatalf("expected awaiting party info with cart kept, got %s len=%d", session.State(), session.Cart.Len())
	}
}

func TestCommitSalePersistsAppliesStockAndCommissions(t *testing.T) {
	repo := memory.NewSeeded()
	o := newOrchestrator(t, repo, repo)
	ctx := context.Background()
	before := stockQty(t, repo, "OLI-MPX2")

	session := NewSaleSession("cashier")
	session.CustomerName = "Pak Rudi"
	session.VehiclePlate = "b 1234 xyz"
	session.Charges = cart.Charges{OtherFees: d(5_000), Tax: d(0)}
	session.Cart.Add(cart.AbsoluteDiscountLine{ID: "OLI-MPX2", Name: "Oli", Price: d(52_000), Type: domain.ItemTypePart})
	session.Cart.Add(cart.AbsoluteDiscountLine{ID: "OLI-MPX2", Name: "Oli", Price: d(52_000), Type: domain.ItemTypePart})
	session.Cart.Add(cart.AbsoluteDiscountLine{ID: "JASA-SERVIS", Name: "Servis", Price: d(100_000), Type: domain.ItemTypeService})
	session.Mechanics.Add("mch-budi", "Budi")
	session.Mechanics.Add("mch-andi", "Andi")

	receipt, err := o.CommitSale(ctx, session)
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	tx := receipt.Transaction
	if !strings.HasPrefix(tx.InvoiceNumber, "INV-20260307-") {
		t.Fatalf("unexpected invoice number %s", tx.InvoiceNumber)
	}
	if !tx.Total.Equal(d(209_000)) || !tx.ServiceRevenue.Equal(d(100_000)) || tx.VehiclePlate != "B 1234 XYZ" {
		t.Fatalf("unexpected transaction totals %+v", tx)
	}
	if got := stockQty(t, repo, "OLI-MPX2"); got != before-2 {
		t.Fatalf("expected stock %d, got %d", before-2, got)
	}
	if receipt.Stock.Applied != 1 {
		t.Fatalf("expected one stock line applied, got %+v", receipt.Stock)
	}

	if len(receipt.Commissions) != 2 {
		t.Fatalf("expected 2 commissions, got %d", len(receipt.Commissions))
	}
	if !receipt.Commissions[0].FinalCommissionAmount.Equal(d(35_000)) || !receipt.Commissions[1].FinalCommissionAmount.Equal(d(15_000)) {
		t.Fatalf("unexpected commissions %+v", receipt.Commissions)
	}
	perf, _ := repo.ListMechanicPerformance(ctx, "mch-budi", 10)
	if len(perf) != 1 || perf[0].InvoiceNumber != tx.InvoiceNumber {
		t.Fatalf("expected performance record for budi, got %+v", perf)
	}

	items, err := repo.GetMutationItems(ctx, tx.InvoiceNumber)
	if err != nil || len(items) != 1 || items[0].Quantity != 2 {
		t.Fatalf("expected sale mutation with one part row, got %+v err=%v", items, err)
	}

	if session.State() != StateEmpty || session.Cart.Len() != 0 || session.Mechanics.Len() != 0 || session.CustomerName != "" {
		t.Fatalf("expected session reset after commit")
	}
}

type presetInvoices struct {
	Store
	taken map[string]bool
}

func (p presetInvoices) InvoiceExists(_ context.Context, number string) (bool, error) {
	return p.taken[number], nil
}

func TestInvoiceNumberRegeneratesOnCollision(t *testing.T) {
	repo := memory.NewSeeded()
	o := newOrchestrator(t, repo, repo)
	at := time.Date(2026, time.March, 7, 9, 0, 0, 100*int(time.Millisecond), time.UTC)

	o.store = presetInvoices{Store: repo, taken: map[string]bool{"INV-20260307-100": true, "INV-20260307-101": true}}
	got, err := o.nextInvoiceNumber(context.Background(), at)
	if err != nil || got != "INV-20260307-102" {
		t.Fatalf("expected INV-20260307-102, got %s err=%v", got, err)
	}

	taken := map[string]bool{}
	for i := 100; i < 110; i++ {
		taken[fmt.Sprintf("INV-20260307-%03d", i)] = true
	}
	o.store = presetInvoices{Store: repo, taken: taken}
	if _, err := o.nextInvoiceNumber(context.Background(), at); !errors.Is(err, store.ErrDuplicateInvoice) {
		t.Fatalf("expected ErrDuplicateInvoice after exhausting attempts, got %v", err)
	}
}

func TestCommitPurchaseSkipsTakenNumberOnSameMillisecond(t *testing.T) {
	repo := memory.NewSeeded()
	o := newOrchestrator(t, repo, repo)
	ctx := context.Background()
	clock := time.Date(2026, time.March, 7, 9, 0, 0, 0, time.UTC)
	o.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	first, err := o.CommitPurchase(ctx, newPurchaseSession())
	if err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	second, err := o.CommitPurchase(ctx, newPurchaseSession())
	if err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	if first.Purchase.PurchaseNumber != "PUR-20260307-000" || second.Purchase.PurchaseNumber != "PUR-20260307-001" {
		t.Fatalf("expected PUR-20260307-000 then -001, got %s and %s", first.Purchase.PurchaseNumber, second.Purchase.PurchaseNumber)
	}

	items, err := repo.GetMutationItems(ctx, second.Purchase.PurchaseNumber)
	if err != nil || len(items) != 2 {
		t.Fatalf("expected mutation recorded for second purchase, got %+v err=%v", items, err)
	}
	for _, item := range items {
		if !slices.ContainsFunc(second.Purchase.Items, func(p domain.PurchaseItem) bool { return p.LineID == item.LineID }) {
			t.Fatalf("mutation line %s does not belong to second purchase", item.LineID)
		}
	}

	var busiLine string
	for _, item := range first.Purchase.Items {
		if item.ItemCode == "BUSI-NGK-C7" {
			busiLine = item.LineID
		}
	}
	req := domain.PurchaseReturnRequest{PurchaseID: first.Purchase.ID, Items: []domain.PurchaseReturnLineRequest{{LineID: busiLine, Qty: 1}}}
	retA, err := o.CommitPurchaseReturn(ctx, req, "admin")
	if err != nil {
		t.Fatalf("first return: %v", err)
	}
	retB, err := o.CommitPurchaseReturn(ctx, req, "admin")
	if err != nil {
		t.Fatalf("second return: %v", err)
	}
	if retA.Return.ReturnNumber == retB.Return.ReturnNumber {
		t.Fatalf("expected distinct return numbers, both %s", retA.Return.ReturnNumber)
	}
}

// staleReturns hides earlier returns from the pre-check, as a concurrent
// return committed after the read would.
type staleReturns struct {
	Store
}

func (staleReturns) GetReturnedQtyByPurchase(context.Context, string) (map[string]int, error) {
	return map[string]int{}, nil
}

func TestCommitPurchaseReturnCapHoldsWithStaleRead(t *testing.T) {
	repo := memory.NewSeeded()
	o := newOrchestrator(t, repo, repo)
	ctx := context.Background()

	receipt, err := o.CommitPurchase(ctx, newPurchaseSession())
	if err != nil {
		t.Fatalf("commit purchase: %v", err)
	}
	var busiLine string
	for _, item := range receipt.Purchase.Items {
		if item.ItemCode == "BUSI-NGK-C7" {
			busiLine = item.LineID
		}
	}
	req := domain.PurchaseReturnRequest{PurchaseID: receipt.Purchase.ID, Items: []domain.PurchaseReturnLineRequest{{LineID: busiLine, Qty: 6}}}
	if _, err := o.CommitPurchaseReturn(ctx, req, "admin"); err != nil {
		t.Fatalf("first return: %v", err)
	}
	afterFirst := stockQty(t, repo, "BUSI-NGK-C7")

	o.store = staleReturns{Store: repo}
	if _, err := o.CommitPurchaseReturn(ctx, req, "admin"); !errors.Is(err, ErrInvalidReturn) {
		t.Fatalf("expected ErrInvalidReturn from store cap, got %v", err)
	}
	if got := stockQty(t, repo, "BUSI-NGK-C7"); got != afterFirst {
		t.Fatalf("expected stock unchanged at %d, got %d", afterFirst, got)
	}
}

func newPurchaseSession() *PurchaseSession {
	p := NewPurchaseSession("admin")
	p.SupplierName = "PT Astra Otoparts"
	p.Cart.Add(cart.PercentageDiscountLine{Code: "BUSI-NGK-C7", Name: "Busi NGK C7HSA", Price: d(15_000), Qty: 10, DiscountPercent: d(10)})
	p.Cart.Add(cart.PercentageDiscountLine{Name: "Lap Majun", Price: d(5_000), Qty: 2})
	return p
}

func TestCommitPurchaseRequiresPaymentTypeWhenPaid(t *testing.T) {
	repo := memory.NewSeeded()
	o := newOrchestrator(t, repo, repo)
	p := newPurchaseSession()
	p.PaymentStatus = domain.PaymentStatusPaid

	_, err := o.CommitPurchase(context.Background(), p)
	if !errors.Is(err, ErrPaymentTypeRequired) {
		t.Fatalf("expected ErrPaymentTypeRequired, got %v", err)
	}
	if p.State() != StateAwaitingPaymentDetails {
		t.Fatalf("expected awaiting payment details, got %s", p.State())
	}

	p.PaymentType = "transfer"
	if _, err := o.CommitPurchase(context.Background(), p); err != nil {
		t.Fatalf("commit after payment type: %v", err)
	}
}

func TestCommitPurchaseValidation(t *testing.T) {
	repo := memory.NewSeeded()
	o := newOrchestrator(t, repo, repo)

	p := newPurchaseSession()
	p.SupplierName = " "
	if _, err := o.CommitPurchase(context.Background(), p); !errors.Is(err, ErrPartyInfoRequired) {
		t.Fatalf("expected ErrPartyInfoRequired, got %v", err)
	}

	p = newPurchaseSession()
	p.PaymentStatus = "refunded"
	if _, err := o.CommitPurchase(context.Background(), p); !errors.Is(err, ErrInvalidPaymentStatus) {
		t.Fatalf("expected ErrInvalidPaymentStatus, got %v", err)
	}

	p = newPurchaseSession()
	p.Cart.SetDiscount("BUSI-NGK-C7", d(120))
	if _, err := o.CommitPurchase(context.Background(), p); !errors.Is(err, ErrInvalidDiscount) {
		t.Fatalf("expected ErrInvalidDiscount, got %v", err)
	}
}

func TestCommitPurchaseAppliesStock(t *testing.T) {
	repo := memory.NewSeeded()
	o := newOrchestrator(t, repo, repo)
	ctx := context.Background()
	before := stockQty(t, repo, "BUSI-NGK-C7")

	receipt, err := o.CommitPurchase(ctx, newPurchaseSession())
	if err != nil {
		t.Fatalf("commit purchase: %v", err)
	}
	if !strings.HasPrefix(receipt.Purchase.PurchaseNumber, "PUR-20260307-") {
		t.Fatalf("unexpected purchase number %s", receipt.Purchase.PurchaseNumber)
	}
	if !receipt.Purchase.Subtotal.Equal(d(145_000)) || receipt.Purchase.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("unexpected purchase %+v", receipt.Purchase)
	}
	if receipt.Stock.Applied != 1 || receipt.Stock.Skipped != 1 {
		t.Fatalf("expected one applied and one skipped line, got %+v", receipt.Stock)
	}
	if got := stockQty(t, repo, "BUSI-NGK-C7"); got != before+10 {
		t.Fatalf("expected stock %d, got %d", before+10, got)
	}
	saved, err := repo.GetPurchase(ctx, receipt.Purchase.ID)
	if err != nil || len(saved.Items) != 2 {
		t.Fatalf("expected persisted purchase with 2 items, got %+v err=%v", saved, err)
	}
}

type failingItems struct {
	Store
	failDelete bool
	deleted    []string
}

func (f *failingItems) InsertPurchaseItems(context.Context, string, []domain.PurchaseItem) error {
	return errors.New("items insert rejected")
}

func (f *failingItems) DeletePurchase(ctx context.Context, id string) error {
	if f.failDelete {
		return errors.New("delete rejected")
	}
	f.deleted = append(f.deleted, id)
	return f.Store.DeletePurchase(ctx, id)
}

func TestCommitPurchaseCompensatesHeader(t *testing.T) {
	repo := memory.NewSeeded()
	wrapped := &failingItems{Store: repo}
	o := newOrchestrator(t, wrapped, repo)
	before := stockQty(t, repo, "BUSI-NGK-C7")
	p := newPurchaseSession()

	_, err := o.CommitPurchase(context.Background(), p)
	if err == nil || errors.Is(err, ErrPartialCommit) {
		t.Fatalf("expected plain insert error, got %v", err)
	}
	if len(wrapped.deleted) != 1 {
		t.Fatalf("expected header compensation, got %v", wrapped.deleted)
	}
	purchases, _ := repo.ListPurchases(context.Background(), 0)
	if len(purchases) != 0 {
		t.Fatalf("expected no purchase left, got %d", len(purchases))
	}
	if got := stockQty(t, repo, "BUSI-NGK-C7"); got != before {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
	if p.Cart.Len() != 2 {
		t.Fatalf("expected session kept for retry")
	}
}

func TestCommitPurchaseReportsPartialCommit(t *testing.T) {
	repo := memory.NewSeeded()
	o := newOrchestrator(t, &failingItems{Store: repo, failDelete: true}, repo)

	_, err := o.CommitPurchase(context.Background(), newPurchaseSession())
	if !errors.Is(err, ErrPartialCommit) {
		t.Fatalf("expected ErrPartialCommit, got %v", err)
	}
	logs, _ := repo.ListAuditLogs(context.Background(), 10)
	if len(logs) != 1 || logs[0].Action != "purchase.partial_commit" {
		t.Fatalf("expected reconciliation audit entry, got %+v", logs)
	}
}

func TestCommitPurchaseReturnLimitsQuantity(t *testing.T) {
	repo := memory.NewSeeded()
	o := newOrchestrator(t, repo, repo)
	ctx := context.Background()

	receipt, err := o.CommitPurchase(ctx, newPurchaseSession())
	if err != nil {
		t.Fatalf("commit purchase: %v", err)
	}
	var busiLine string
	for _, item := range receipt.Purchase.Items {
		if item.ItemCode == "BUSI-NGK-C7" {
			busiLine = item.LineID
		}
	}
	afterPurchase := stockQty(t, repo, "BUSI-NGK-C7")

	ret, err := o.CommitPurchaseReturn(ctx, domain.PurchaseReturnRequest{
		PurchaseID: receipt.Purchase.ID,
		Reason:     "cacat",
		Items:      []domain.PurchaseReturnLineRequest{{LineID: busiLine, Qty: 4}},
	}, "admin")
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if !strings.HasPrefix(ret.Return.ReturnNumber, "RET-") || !ret.Return.Total.Equal(d(54_000)) {
		t.Fatalf("unexpected return %+v", ret.Return)
	}
	if got := stockQty(t, repo, "BUSI-NGK-C7"); got != afterPurchase-4 {
		t.Fatalf("expected stock %d, got %d", afterPurchase-4, got)
	}

	_, err = o.CommitPurchaseReturn(ctx, domain.PurchaseReturnRequest{
		PurchaseID: receipt.Purchase.ID,
		Items:      []domain.PurchaseReturnLineRequest{{LineID: busiLine, Qty: 7}},
	}, "admin")
	if !errors.Is(err, ErrInvalidReturn) {
		t.Fatalf("expected ErrInvalidReturn past purchased qty, got %v", err)
	}

	_, err = o.CommitPurchaseReturn(ctx, domain.PurchaseReturnRequest{
		PurchaseID: receipt.Purchase.ID,
		Items:      []domain.PurchaseReturnLineRequest{{LineID: "nope", Qty: 1}},
	}, "admin")
	if !IsValidation(err) {
		t.Fatalf("expected validation error for unknown line, got %v", err)
	}
}
