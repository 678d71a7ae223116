package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/commission"
	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/stock"
	"bengkelpos/backend/internal/store"
	"bengkelpos/backend/internal/xid"
)

const numberAttempts = 10

type Store interface {
	store.TransactionStore
	store.PurchaseStore
	store.PerformanceStore
	store.AuditStore
}

// Orchestrator commits sessions. Parent records are written first; stock
// deltas, mutation records and commission records follow best-effort and
// never undo the parent.
type Orchestrator struct {
	store       Store
	stock       *stock.Engine
	commissions *commission.Calculator
	now         func() time.Time
}

func NewOrchestrator(repo Store, stockEngine *stock.Engine, calculator *commission.Calculator) *Orchestrator {
	return &Orchestrator{
		store:       repo,
		stock:       stockEngine,
		commissions: calculator,
		now:         time.Now,
	}
}

func (o *Orchestrator) CommitSale(ctx context.Context, s *SaleSession) (*domain.SaleReceipt, error) {
	if err := s.Prepare(); err != nil {
		return nil, err
	}

	at := o.now().UTC()
	invoice, err := o.nextInvoiceNumber(ctx, at)
	if err != nil {
		return nil, err
	}

	lines := s.Cart.Lines()
	items := make([]domain.TransactionLine, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.TransactionLine{
			LineID:   line.LineID,
			ItemCode: line.ID,
			Name:     line.Name,
			Type:     line.Type,
			Price:    line.Price,
			Qty:      line.Qty,
			Discount: line.Discount,
			Subtotal: line.Subtotal(),
		})
	}
	totals := s.Cart.Totals(s.Charges)

	saved, err := o.store.InsertTransactionOnce(ctx, domain.Transaction{
		ID:             xid.New("trx"),
		InvoiceNumber:  invoice,
		CustomerName:   strings.TrimSpace(s.CustomerName),
		CustomerPhone:  strings.TrimSpace(s.CustomerPhone),
		VehiclePlate:   strings.ToUpper(strings.TrimSpace(s.VehiclePlate)),
		PaymentMethod:  s.PaymentMethod,
		Subtotal:       totals.Subtotal,
		DiscountTotal:  totals.DiscountTotal,
		OtherFees:      totals.OtherFees,
		Tax:            totals.Tax,
		Total:          totals.Total,
		ServiceRevenue: s.Cart.ServiceRevenue(),
		Status:         domain.TxStatusPaid,
		CreatedBy:      s.Cashier,
		CreatedAt:      at,
		Items:          items,
		Mechanics:      s.Mechanics.Mechanics(),
	})
	if err != nil {
		return nil, err
	}

	stockResult := o.stock.ApplySale(ctx, saved.Items)
	mutation := domain.StockMutation{TransactionCode: saved.InvoiceNumber, Kind: domain.MutationKindSale, CreatedAt: at}
	for _, item := range saved.Items {
		if item.Type != domain.ItemTypePart {
			continue
		}
		mutation.Items = append(mutation.Items, domain.StockMutationItem{LineID: item.LineID, ItemCode: item.ItemCode, ItemName: item.Name, Quantity: item.Qty})
	}
	if err := o.stock.Record(ctx, mutation); err != nil {
		log.Printf("[checkout] WARN: record sale mutation %s failed: %v", saved.InvoiceNumber, err)
	}

	calcs := o.recordCommissions(ctx, saved, at)

	s.state = StateCommitted
	s.Reset()
	return &domain.SaleReceipt{Transaction: *saved, Commissions: calcs, Stock: stockResult}, nil
}

func (o *Orchestrator) recordCommissions(ctx context.Context, tx *domain.Transaction, at time.Time) []domain.CommissionCalculation {
	if len(tx.Mechanics) == 0 {
		return []domain.CommissionCalculation{}
	}
	ids := make([]string, 0, len(tx.Mechanics))
	splits := make([]domain.CommissionSplit, 0, len(tx.Mechanics))
	for _, m := range tx.Mechanics {
		ids = append(ids, m.ID)
		splits = append(splits, domain.CommissionSplit{MechanicID: m.ID, Percentage: decimal.NewFromInt(int64(m.Percentage))})
	}
	calcs := o.commissions.Calculate(ctx, ids, tx.ServiceRevenue, splits)

	records := make([]domain.MechanicPerformance, 0, len(calcs))
	for _, calc := range calcs {
		records = append(records, domain.MechanicPerformance{
			ID:                    xid.New("perf"),
			TransactionID:         tx.ID,
			InvoiceNumber:         tx.InvoiceNumber,
			MechanicID:            calc.MechanicID,
			MechanicName:          calc.MechanicName,
			TotalRevenue:          calc.TotalRevenue,
			ShopCutPercentage:     calc.ShopCutPercentage,
			ShopCutAmount:         calc.ShopCutAmount,
			WorkPercentage:        calc.MechanicCommissionPercentage,
			FinalCommissionAmount: calc.FinalCommissionAmount,
			CreatedAt:             at,
		})
	}
	if len(records) > 0 {
		if err := o.store.CreateMechanicPerformance(ctx, records); err != nil {
			log.Printf("[checkout] WARN: record performance for %s failed: %v", tx.InvoiceNumber, err)
		}
	}
	return calcs
}

func (o *Orchestrator) nextInvoiceNumber(ctx context.Context, at time.Time) (string, error) {
	number, err := o.nextDocumentNumber(ctx, xid.InvoicePrefix, at, o.store.InvoiceExists)
	if errors.Is(err, store.ErrConflict) {
		return "", store.ErrDuplicateInvoice
	}
	return number, err
}

// nextDocumentNumber pre-checks uniqueness and steps the millisecond part on
// collision. It gives up with ErrConflict.
func (o *Orchestrator) nextDocumentNumber(ctx context.Context, prefix string, at time.Time, exists func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < numberAttempts; i++ {
		candidate := xid.DocumentNumber(prefix, at.Add(time.Duration(i)*time.Millisecond))
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no free %s number", store.ErrConflict, prefix)
}

// CommitPurchase writes the header, then the items. If the items insert
// fails the header is deleted; if that also fails the purchase id is
// audited for manual reconciliation and ErrPartialCommit is returned.
func (o *Orchestrator) CommitPurchase(ctx context.Context, p *PurchaseSession) (*domain.PurchaseReceipt, error) {
	if err := p.Prepare(); err != nil {
		return nil, err
	}

	at := o.now().UTC()
	number, err := o.nextDocumentNumber(ctx, xid.PurchasePrefix, at, o.store.PurchaseNumberExists)
	if err != nil {
		return nil, err
	}
	header, err := o.store.InsertPurchaseHeader(ctx, domain.Purchase{
		ID:             xid.New("pur"),
		PurchaseNumber: number,
		SupplierID:     p.SupplierID,
		SupplierName:   strings.TrimSpace(p.SupplierName),
		PaymentStatus:  p.PaymentStatus,
		PaymentType:    strings.TrimSpace(p.PaymentType),
		Subtotal:       p.Cart.Subtotal(),
		Notes:          p.Notes,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      at,
	})
	if err != nil {
		return nil, err
	}

	lines := p.Cart.Lines()
	items := make([]domain.PurchaseItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.PurchaseItem{
			LineID:          line.LineID,
			ItemCode:        line.Code,
			ItemName:        line.Name,
			Qty:             line.Qty,
			Price:           line.Price,
			DiscountPercent: line.DiscountPercent,
			Subtotal:        line.Subtotal,
		})
	}
	if err := o.store.InsertPurchaseItems(ctx, header.ID, items); err != nil {
		if delErr := o.store.DeletePurchase(ctx, header.ID); delErr != nil {
			log.Printf("[checkout] ERROR: purchase %s left without items: insert=%v compensate=%v", header.ID, err, delErr)
			o.auditOrphan(ctx, p.CreatedBy, header, err, delErr)
			return nil, fmt.Errorf("%w: purchase %s: %v", ErrPartialCommit, header.ID, err)
		}
		return nil, err
	}
	header.Items = items

	deltas := make([]domain.StockDelta, 0, len(items))
	mutation := domain.StockMutation{TransactionCode: header.PurchaseNumber, Kind: domain.MutationKindPurchase, CreatedAt: at}
	for _, item := range items {
		deltas = append(deltas, domain.StockDelta{LineID: item.LineID, Code: item.ItemCode, Name: item.ItemName, Qty: item.Qty})
		mutation.Items = append(mutation.Items, domain.StockMutationItem{LineID: item.LineID, ItemCode: item.ItemCode, ItemName: item.ItemName, Quantity: item.Qty})
	}
	stockResult := o.stock.ApplyPurchase(ctx, deltas)
	if err := o.stock.Record(ctx, mutation); err != nil {
		log.Printf("[checkout] WARN: record purchase mutation %s failed: %v", header.PurchaseNumber, err)
	}

	p.state = StateCommitted
	p.Reset()
	return &domain.PurchaseReceipt{Purchase: *header, Stock: stockResult}, nil
}

func (o *Orchestrator) auditOrphan(ctx context.Context, actor string, header *domain.Purchase, insertErr, deleteErr error) {
	err := o.store.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor,
		Action:        "purchase.partial_commit",
		EntityType:    "purchase",
		EntityID:      header.ID,
		Detail:        fmt.Sprintf("number=%s insert_items=%v compensate=%v", header.PurchaseNumber, insertErr, deleteErr),
		CreatedAt:     o.now().UTC(),
	})
	if err != nil {
		log.Printf("[checkout] ERROR: audit for orphan purchase %s failed: %v", header.ID, err)
	}
}

// CommitPurchaseReturn reverses part of a purchase. Each line may return at
// most what was bought minus what earlier returns already took back. The cap
// is checked here for a readable error and again by the store while it
// holds the purchase.
func (o *Orchestrator) CommitPurchaseReturn(ctx context.Context, req domain.PurchaseReturnRequest, actor string) (*domain.PurchaseReturnReceipt, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	purchase, err := o.store.GetPurchase(ctx, req.PurchaseID)
	if err != nil {
		return nil, err
	}
	returned, err := o.store.GetReturnedQtyByPurchase(ctx, purchase.ID)
	if err != nil {
		return nil, err
	}

	byLine := make(map[string]domain.PurchaseItem, len(purchase.Items))
	for _, item := range purchase.Items {
		byLine[item.LineID] = item
	}

	at := o.now().UTC()
	number, err := o.nextDocumentNumber(ctx, xid.PurchaseReturnPrefix, at, o.store.ReturnNumberExists)
	if err != nil {
		return nil, err
	}
	ret := domain.PurchaseReturn{
		ID:           xid.New("ret"),
		ReturnNumber: number,
		PurchaseID:   purchase.ID,
		Reason:       strings.TrimSpace(req.Reason),
		Total:        decimal.Zero,
		CreatedBy:    actor,
		CreatedAt:    at,
	}
	for _, line := range req.Items {
		item, ok := byLine[line.LineID]
		if !ok {
			return nil, fmt.Errorf("%w: line %s is not on purchase %s", ErrInvalidReturn, line.LineID, purchase.PurchaseNumber)
		}
		if line.Qty <= 0 {
			return nil, fmt.Errorf("%w: qty must be positive", ErrInvalidReturn)
		}
		if returned[line.LineID]+line.Qty > item.Qty {
			return nil, fmt.Errorf("%w: %s can return at most %d", ErrInvalidReturn, item.ItemName, item.Qty-returned[line.LineID])
		}
		returned[line.LineID] += line.Qty

		unit := item.Subtotal.Div(decimal.NewFromInt(int64(item.Qty)))
		ret.Items = append(ret.Items, domain.PurchaseReturnItem{
			LineID:   item.LineID,
			ItemCode: item.ItemCode,
			ItemName: item.ItemName,
			Qty:      line.Qty,
			Price:    unit,
		})
		ret.Total = ret.Total.Add(unit.Mul(decimal.NewFromInt(int64(line.Qty))))
	}

	saved, err := o.store.InsertPurchaseReturn(ctx, ret)
	if errors.Is(err, store.ErrOverReturn) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReturn, err)
	}
	if err != nil {
		return nil, err
	}

	deltas := make([]domain.StockDelta, 0, len(saved.Items))
	mutation := domain.StockMutation{TransactionCode: saved.ReturnNumber, Kind: domain.MutationKindPurchaseReturn, CreatedAt: at}
	for _, item := range saved.Items {
		deltas = append(deltas, domain.StockDelta{LineID: item.LineID, Code: item.ItemCode, Name: item.ItemName, Qty: item.Qty})
		mutation.Items = append(mutation.Items, domain.StockMutationItem{LineID: item.LineID, ItemCode: item.ItemCode, ItemName: item.ItemName, Quantity: item.Qty})
	}
	stockResult := o.stock.ApplyPurchaseReturn(ctx, deltas)
	if err := o.stock.Record(ctx, mutation); err != nil {
		log.Printf("[checkout] WARN: record return mutation %s failed: %v", saved.ReturnNumber, err)
	}

	return &domain.PurchaseReturnReceipt{Return: *saved, Stock: stockResult}, nil
}

// IsValidation reports whether err is a recoverable checkout validation
// error that leaves the session intact.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyCart, ErrPartyInfoRequired, ErrPaymentTypeRequired,
		ErrInvalidPaymentStatus, ErrInvalidDiscount, ErrInvalidReturn,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
