package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("conflict")
	ErrDuplicateInvoice   = errors.New("invoice number already exists")
	ErrOverReturn         = errors.New("return exceeds purchased quantity")
)

type GlobalSettingStore interface {
	// GetSetting returns ErrNotFound when the key has never been written.
	GetSetting(ctx context.Context, key string) (*domain.GlobalSetting, error)
	SetSetting(ctx context.Context, key string, value string) error
}

type MechanicStore interface {
	ListMechanics(ctx context.Context) ([]domain.Mechanic, error)
	GetMechanic(ctx context.Context, id string) (*domain.Mechanic, error)
	CreateMechanic(ctx context.Context, mechanic domain.Mechanic) (*domain.Mechanic, error)
}

type MechanicSettingStore interface {
	// GetMechanicSetting returns the active setting or ErrNotFound.
	GetMechanicSetting(ctx context.Context, mechanicID string) (*domain.MechanicSetting, error)
	UpsertMechanicSetting(ctx context.Context, mechanicID string, shopCut decimal.Decimal) (*domain.MechanicSetting, error)
	DeactivateMechanicSetting(ctx context.Context, mechanicID string) error
	ListMechanicSettings(ctx context.Context) ([]domain.MechanicSetting, error)
}

type StockStore interface {
	GetStock(ctx context.Context, code string) (*domain.StockRecord, error)
	ListStock(ctx context.Context, limit int) ([]domain.StockRecord, error)
	CreateStockItem(ctx context.Context, item domain.StockRecord) (*domain.StockRecord, error)
	SetStockQuantity(ctx context.Context, code string, qty int) error
	// IncrementStock adds delta in one statement and returns the new quantity.
	IncrementStock(ctx context.Context, code string, delta int) (int, error)
}

// MutationMatch selects one mutation-item row. LineID wins when set.
type MutationMatch struct {
	LineID   string
	ItemName string
}

type MutationStore interface {
	CreateStockMutation(ctx context.Context, mutation domain.StockMutation) error
	GetMutationItems(ctx context.Context, transactionCode string) ([]domain.StockMutationItem, error)
	UpdateMutationItemQuantity(ctx context.Context, transactionCode string, match MutationMatch, qty int) (int64, error)
}

type PurchaseStore interface {
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	PurchaseNumberExists(ctx context.Context, number string) (bool, error)
	// InsertPurchaseHeader rejects a repeated purchase number with ErrConflict.
	InsertPurchaseHeader(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	InsertPurchaseItems(ctx context.Context, purchaseID string, items []domain.PurchaseItem) error
	DeletePurchase(ctx context.Context, purchaseID string) error
	GetPurchase(ctx context.Context, purchaseID string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error)
	ReturnNumberExists(ctx context.Context, number string) (bool, error)
	// InsertPurchaseReturn checks every line against purchased minus already
	// returned while holding the purchase, and fails with ErrOverReturn.
	InsertPurchaseReturn(ctx context.Context, ret domain.PurchaseReturn) (*domain.PurchaseReturn, error)
	// GetReturnedQtyByPurchase is keyed by purchase item line id.
	GetReturnedQtyByPurchase(ctx context.Context, purchaseID string) (map[string]int, error)
}

// CheckReturnable validates return lines against the purchased and already
// returned quantities, both keyed by purchase line id.
func CheckReturnable(purchased, returned map[string]int, items []domain.PurchaseReturnItem) error {
	requested := make(map[string]int, len(items))
	for _, item := range items {
		bought, ok := purchased[item.LineID]
		if !ok || item.Qty <= 0 {
			return fmt.Errorf("%w: line %s", ErrInvalidTransaction, item.LineID)
		}
		requested[item.LineID] += item.Qty
		if returned[item.LineID]+requested[item.LineID] > bought {
			return fmt.Errorf("%w: line %s can return at most %d", ErrOverReturn, item.LineID, bought-returned[item.LineID])
		}
	}
	return nil
}

type TransactionStore interface {
	InvoiceExists(ctx context.Context, invoiceNumber string) (bool, error)
	// InsertTransactionOnce rejects a repeated invoice number with ErrDuplicateInvoice.
	InsertTransactionOnce(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
}

type PerformanceStore interface {
	CreateMechanicPerformance(ctx context.Context, records []domain.MechanicPerformance) error
	ListMechanicPerformance(ctx context.Context, mechanicID string, limit int) ([]domain.MechanicPerformance, error)
}

type HeldCartStore interface {
	CreateHeldCart(ctx context.Context, held domain.HeldCart) (*domain.HeldCart, error)
	ListHeldCarts(ctx context.Context, cashier string, limit int) ([]domain.HeldCart, error)
	PopHeldCart(ctx context.Context, holdID string) (*domain.HeldCart, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	GlobalSettingStore
	MechanicStore
	MechanicSettingStore
	StockStore
	MutationStore
	PurchaseStore
	TransactionStore
	PerformanceStore
	HeldCartStore
	AuditStore
	UserStore
}
