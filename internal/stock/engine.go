package stock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/store"
)

var (
	// ErrSkipped marks a stock delta for a code missing from master stock.
	ErrSkipped         = errors.New("stock update skipped")
	ErrInvalidSyncMode = errors.New("invalid sync mode")
)

// Engine applies inventory deltas. Every batch is best-effort: a failing
// line is logged and counted, never returned as an error, so the parent
// purchase, return or sale stays committed.
type Engine struct {
	stock     store.StockStore
	mutations store.MutationStore
}

func NewEngine(stock store.StockStore, mutations store.MutationStore) *Engine {
	return &Engine{stock: stock, mutations: mutations}
}

// AdjustStock adds delta to the item's quantity in one atomic step and
// returns the new quantity.
func (e *Engine) AdjustStock(ctx context.Context, code string, delta int) (int, error) {
	qty, err := e.stock.IncrementStock(ctx, code, delta)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[stock] WARN: code %s not in master stock, skipping delta %d", code, delta)
		return 0, fmt.Errorf("%w: code %s not found", ErrSkipped, code)
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// SetStock overwrites the item's quantity after a physical count.
func (e *Engine) SetStock(ctx context.Context, code string, qty int) error {
	err := e.stock.SetStockQuantity(ctx, code, qty)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[stock] WARN: code %s not in master stock, skipping count %d", code, qty)
		return fmt.Errorf("%w: code %s not found", ErrSkipped, code)
	}
	return err
}

func (e *Engine) ApplyPurchase(ctx context.Context, deltas []domain.StockDelta) domain.StockBatchResult {
	return e.apply(ctx, deltas, 1)
}

func (e *Engine) ApplyPurchaseReturn(ctx context.Context, deltas []domain.StockDelta) domain.StockBatchResult {
	return e.apply(ctx, deltas, -1)
}

// ApplySale decrements stock for part lines. Service lines carry no stock.
// There is no floor check; stock can go negative.
func (e *Engine) ApplySale(ctx context.Context, lines []domain.TransactionLine) domain.StockBatchResult {
	deltas := make([]domain.StockDelta, 0, len(lines))
	for _, line := range lines {
		if line.Type != domain.ItemTypePart {
			continue
		}
		deltas = append(deltas, domain.StockDelta{LineID: line.LineID, Code: line.ItemCode, Name: line.Name, Qty: line.Qty})
	}
	return e.apply(ctx, deltas, -1)
}

func (e *Engine) apply(ctx context.Context, deltas []domain.StockDelta, sign int) domain.StockBatchResult {
	var result domain.StockBatchResult
	for _, delta := range deltas {
		code := strings.TrimSpace(delta.Code)
		if code == "" || delta.Qty <= 0 {
			result.Skipped++
			continue
		}
		_, err := e.AdjustStock(ctx, code, sign*delta.Qty)
		switch {
		case err == nil:
			result.Applied++
		case errors.Is(err, ErrSkipped):
			result.Skipped++
		default:
			log.Printf("[stock] ERROR: adjust %s by %d failed: %v", code, sign*delta.Qty, err)
			result.Failed++
			result.Failures = append(result.Failures, domain.StockFailure{Code: code, Reason: err.Error()})
		}
	}
	return result
}

// Record stores a mutation transaction so it can be synchronized later.
// Quantities are stored unsigned; Kind tells the direction.
func (e *Engine) Record(ctx context.Context, mutation domain.StockMutation) error {
	items := make([]domain.StockMutationItem, 0, len(mutation.Items))
	for _, item := range mutation.Items {
		if item.Quantity <= 0 {
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil
	}
	mutation.Items = items
	return e.mutations.CreateStockMutation(ctx, mutation)
}

// Synchronize rewrites the quantities on a recorded mutation's item rows.
// With no updates every row's recorded quantity is re-applied. Rows are
// matched by line id, falling back to item name for updates that carry no
// line id. Resolved quantities <= 0 are skipped.
func (e *Engine) Synchronize(ctx context.Context, transactionCode string, mode domain.SyncMode, updates []domain.SyncUpdate) (domain.SyncResult, error) {
	result := domain.SyncResult{TransactionCode: transactionCode}
	switch mode {
	case domain.SyncModeAdd, domain.SyncModeSubtract, domain.SyncModeSet:
	default:
		return result, fmt.Errorf("%w: %q", ErrInvalidSyncMode, mode)
	}

	items, err := e.mutations.GetMutationItems(ctx, transactionCode)
	if err != nil {
		return result, err
	}

	if len(updates) == 0 {
		updates = make([]domain.SyncUpdate, 0, len(items))
		for _, item := range items {
			updates = append(updates, domain.SyncUpdate{LineID: item.LineID, ItemName: item.ItemName, Quantity: item.Quantity})
		}
	}

	for _, update := range updates {
		if update.Quantity <= 0 {
			result.Skipped++
			continue
		}
		current, ok := findMutationItem(items, update)
		if !ok {
			log.Printf("[stock] WARN: sync %s: no row for line=%q name=%q", transactionCode, update.LineID, update.ItemName)
			result.Skipped++
			continue
		}

		next := update.Quantity
		switch mode {
		case domain.SyncModeAdd:
			next = current.Quantity + update.Quantity
		case domain.SyncModeSubtract:
			next = current.Quantity - update.Quantity
		}

		match := store.MutationMatch{LineID: current.LineID}
		if match.LineID == "" {
			match.ItemName = current.ItemName
		}
		affected, err := e.mutations.UpdateMutationItemQuantity(ctx, transactionCode, match, next)
		if err != nil {
			log.Printf("[stock] ERROR: sync %s row %s failed: %v", transactionCode, current.ItemName, err)
			result.Failed++
			continue
		}
		if affected == 0 {
			result.Skipped++
			continue
		}
		result.Updated += int(affected)
	}
	return result, nil
}

func findMutationItem(items []domain.StockMutationItem, update domain.SyncUpdate) (domain.StockMutationItem, bool) {
	if update.LineID != "" {
		for _, item := range items {
			if item.LineID == update.LineID {
				return item, true
			}
		}
		return domain.StockMutationItem{}, false
	}
	for _, item := range items {
		if update.ItemName != "" && item.ItemName == update.ItemName {
			return item, true
		}
	}
	return domain.StockMutationItem{}, false
}
