package stock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/store"
	"bengkelpos/backend/internal/store/memory"
)

func newEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	repo := memory.New()
	for _, item := range []domain.StockRecord{
		{Code: "OLI", Name: "Oli", Quantity: 10, Price: decimal.NewFromInt(50_000), Type: domain.ItemTypePart},
		{Code: "BUSI", Name: "Busi", Quantity: 5, Price: decimal.NewFromInt(18_000), Type: domain.ItemTypePart},
	} {
		if _, err := repo.CreateStockItem(context.Background(), item); err != nil {
			t.Fatalf("seed stock: %v", err)
		}
	}
	return NewEngine(repo, repo), repo
}

func quantity(t *testing.T, repo *memory.Store, code string) int {
	t.Helper()
	item, err := repo.GetStock(context.Background(), code)
	if err != nil {
		t.Fatalf("get stock %s: %v", code, err)
	}
	return item.Quantity
}

func TestAdjustStockSkipsUnknownCode(t *testing.T) {
	engine, _ := newEngine(t)

	_, err := engine.AdjustStock(context.Background(), "NOPE", 3)
	if !errors.Is(err, ErrSkipped) {
		t.Fatalf("expected ErrSkipped, got %v", err)
	}
}

func TestApplyPurchaseCountsPerLine(t *testing.T) {
	engine, repo := newEngine(t)

	result := engine.ApplyPurchase(context.Background(), []domain.StockDelta{
		{Code: "OLI", Qty: 4},
		{Code: "UNKNOWN", Qty: 2},
		{Code: "", Name: "free text item", Qty: 1},
		{Code: "BUSI", Qty: 1},
	})
	if result.Applied != 2 || result.Skipped != 2 || result.Failed != 0 {
		t.Fatalf("unexpected batch result %+v", result)
	}
	if got := quantity(t, repo, "OLI"); got != 14 {
		t.Fatalf("expected OLI 14, got %d", got)
	}

	engine.ApplyPurchaseReturn(context.Background(), []domain.StockDelta{{Code: "OLI", Qty: 3}})
	if got := quantity(t, repo, "OLI"); got != 11 {
		t.Fatalf("expected OLI 11 after return, got %d", got)
	}
}

func TestApplySaleOnlyTouchesParts(t *testing.T) {
	engine, repo := newEngine(t)
	_, _ = repo.CreateStockItem(context.Background(), domain.StockRecord{Code: "JASA", Name: "Jasa", Type: domain.ItemTypeService})

	result := engine.ApplySale(context.Background(), []domain.TransactionLine{
		{ItemCode: "BUSI", Type: domain.ItemTypePart, Qty: 7},
		{ItemCode: "JASA", Type: domain.ItemTypeService, Qty: 1},
	})
	if result.Applied != 1 {
		t.Fatalf("expected one applied line, got %+v", result)
	}
	if got := quantity(t, repo, "BUSI"); got != -2 {
		t.Fatalf("expected oversell to reach -2, got %d", got)
	}
	if got := quantity(t, repo, "JASA"); got != 0 {
		t.Fatalf("expected service quantity untouched, got %d", got)
	}
}

type failingStock struct {
	store.StockStore
}

func (failingStock) IncrementStock(context.Context, string, int) (int, error) {
	return 0, errors.New("connection reset")
}

func TestApplyReportsFailuresWithoutError(t *testing.T) {
	_, repo := newEngine(t)
	engine := NewEngine(failingStock{repo}, repo)

	result := engine.ApplyPurchase(context.Background(), []domain.StockDelta{{Code: "OLI", Qty: 1}})
	if result.Failed != 1 || len(result.Failures) != 1 || result.Failures[0].Code != "OLI" {
		t.Fatalf("expected one recorded failure, got %+v", result)
	}
}

func TestConcurrentAdjustmentsDoNotLoseUpdates(t *testing.T) {
	engine, repo := newEngine(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = engine.AdjustStock(context.Background(), "OLI", -1)
		}()
	}
	wg.Wait()
	if got := quantity(t, repo, "OLI"); got != -40 {
		t.Fatalf("expected -40, got %d", got)
	}
}

func recordMutation(t *testing.T, engine *Engine) {
	t.Helper()
	err := engine.Record(context.Background(), domain.StockMutation{
		TransactionCode: "PUR-20260301-001",
		Kind:            domain.MutationKindPurchase,
		Items: []domain.StockMutationItem{
			{LineID: "line-oli", ItemCode: "OLI", ItemName: "Oli", Quantity: 4},
			{LineID: "line-busi", ItemCode: "BUSI", ItemName: "Busi", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
}

func mutationQty(t *testing.T, repo *memory.Store, lineID string) int {
	t.Helper()
	items, err := repo.GetMutationItems(context.Background(), "PUR-20260301-001")
	if err != nil {
		t.Fatalf("get items: %v", err)
	}
	for _, item := range items {
		if item.LineID == lineID {
			return item.Quantity
		}
	}
	t.Fatalf("line %s not found", lineID)
	return 0
}

func TestSynchronizeSkipsNonPositiveQuantity(t *testing.T) {
	engine, repo := newEngine(t)
	recordMutation(t, engine)

	result, err := engine.Synchronize(context.Background(), "PUR-20260301-001", domain.SyncModeAdd, []domain.SyncUpdate{
		{ItemName: "Oli", Quantity: 0},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Updated != 0 || result.Skipped != 1 {
		t.Fatalf("expected zero rows updated, got %+v", result)
	}
	if got := mutationQty(t, repo, "line-oli"); got != 4 {
		t.Fatalf("expected row untouched at 4, got %d", got)
	}
}

func TestSynchronizeModes(t *testing.T) {
	engine, repo := newEngine(t)
	recordMutation(t, engine)
	ctx := context.Background()

	if _, err := engine.Synchronize(ctx, "PUR-20260301-001", domain.SyncModeAdd, []domain.SyncUpdate{{LineID: "line-oli", Quantity: 3}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := mutationQty(t, repo, "line-oli"); got != 7 {
		t.Fatalf("expected 7 after add, got %d", got)
	}

	if _, err := engine.Synchronize(ctx, "PUR-20260301-001", domain.SyncModeSubtract, []domain.SyncUpdate{{ItemName: "Oli", Quantity: 2}}); err != nil {
		t.Fatalf("subtract: %v", err)
	}
	if got := mutationQty(t, repo, "line-oli"); got != 5 {
		t.Fatalf("expected 5 after subtract by name, got %d", got)
	}

	result, err := engine.Synchronize(ctx, "PUR-20260301-001", domain.SyncModeSet, []domain.SyncUpdate{{LineID: "line-busi", Quantity: 9}})
	if err != nil || result.Updated != 1 {
		t.Fatalf("set: result=%+v err=%v", result, err)
	}
	if got := mutationQty(t, repo, "line-busi"); got != 9 {
		t.Fatalf("expected 9 after set, got %d", got)
	}
	if got := mutationQty(t, repo, "line-oli"); got != 5 {
		t.Fatalf("expected other row untouched at 5, got %d", got)
	}
}

func TestSynchronizeWithoutUpdatesReappliesRecorded(t *testing.T) {
	engine, repo := newEngine(t)
	recordMutation(t, engine)

	result, err := engine.Synchronize(context.Background(), "PUR-20260301-001", domain.SyncModeAdd, nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Updated != 2 {
		t.Fatalf("expected 2 rows updated, got %+v", result)
	}
	if got := mutationQty(t, repo, "line-oli"); got != 8 {
		t.Fatalf("expected 8, got %d", got)
	}
}

func TestSynchronizeRejectsUnknownModeAndCode(t *testing.T) {
	engine, _ := newEngine(t)
	recordMutation(t, engine)

	if _, err := engine.Synchronize(context.Background(), "PUR-20260301-001", "double", nil); !errors.Is(err, ErrInvalidSyncMode) {
		t.Fatalf("expected ErrInvalidSyncMode, got %v", err)
	}
	if _, err := engine.Synchronize(context.Background(), "PUR-missing", domain.SyncModeSet, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
