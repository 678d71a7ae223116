package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/cache"
	"bengkelpos/backend/internal/cart"
	"bengkelpos/backend/internal/checkout"
	"bengkelpos/backend/internal/commission"
	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/settings"
	"bengkelpos/backend/internal/stock"
	"bengkelpos/backend/internal/store"
	"bengkelpos/backend/internal/xid"
)

var ErrAdminRequired = errors.New("admin role required")

const maxDefaultSplitMechanics = 20

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo         store.Repository
	settings     *settings.Service
	stock        *stock.Engine
	calculator   *commission.Calculator
	orchestrator *checkout.Orchestrator
}

func New(repo store.Repository, settingsCache cache.SettingsCache, settingsTTL time.Duration) *Service {
	settingsSvc := settings.New(repo, repo, settingsCache, settingsTTL)
	stockEngine := stock.NewEngine(repo, repo)
	calculator := commission.NewCalculator(repo, settingsSvc)

	return &Service{
		repo:         repo,
		settings:     settingsSvc,
		stock:        stockEngine,
		calculator:   calculator,
		orchestrator: checkout.NewOrchestrator(repo, stockEngine, calculator),
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrAdminRequired
	}
	return nil
}

func (s *Service) GetSettings(ctx context.Context) (domain.SettingsResponse, error) {
	return s.settings.Snapshot(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.SettingsResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.SettingsResponse{}, err
	}

	resp, err := s.settings.Update(ctx, req)
	if err != nil {
		return domain.SettingsResponse{}, err
	}
	s.logAudit(ctx, "settings_update", "setting", "global", fmt.Sprintf("shop_cut=%s,custom=%t", resp.DefaultShopCutPercentage, resp.EnableCustomMechanicSettings))
	return resp, nil
}

func (s *Service) ListMechanics(ctx context.Context) ([]domain.Mechanic, error) {
	return s.repo.ListMechanics(ctx)
}

func (s *Service) CreateMechanic(ctx context.Context, req domain.MechanicCreateRequest) (domain.Mechanic, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Mechanic{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Mechanic{}, store.ErrInvalidTransaction
	}

	saved, err := s.repo.CreateMechanic(ctx, domain.Mechanic{
		ID:        xid.New("mch"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Mechanic{}, err
	}
	s.logAudit(ctx, "mechanic_create", "mechanic", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListMechanicSettings(ctx context.Context) ([]domain.MechanicSetting, error) {
	return s.settings.ListMechanicSettings(ctx)
}

func (s *Service) UpsertMechanicSetting(ctx context.Context, mechanicID string, req domain.MechanicSettingRequest) (domain.MechanicSetting, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.MechanicSetting{}, err
	}

	saved, err := s.settings.UpsertMechanicSetting(ctx, strings.TrimSpace(mechanicID), req.ShopCutPercentage)
	if err != nil {
		return domain.MechanicSetting{}, err
	}
	s.logAudit(ctx, "mechanic_setting_upsert", "mechanic", saved.MechanicID, fmt.Sprintf("shop_cut=%s", saved.ShopCutPercentage))
	return *saved, nil
}

func (s *Service) DeactivateMechanicSetting(ctx context.Context, mechanicID string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	mechanicID = strings.TrimSpace(mechanicID)
	if err := s.settings.DeactivateMechanicSetting(ctx, mechanicID); err != nil {
		return err
	}
	s.logAudit(ctx, "mechanic_setting_deactivate", "mechanic", mechanicID, "deactivated")
	return nil
}

func (s *Service) ListMechanicPerformance(ctx context.Context, mechanicID string, limit int) ([]domain.MechanicPerformance, error) {
	mechanicID = strings.TrimSpace(mechanicID)
	if _, err := s.repo.GetMechanic(ctx, mechanicID); err != nil {
		return nil, err
	}
	return s.repo.ListMechanicPerformance(ctx, mechanicID, limit)
}

func (s *Service) PreviewCommission(ctx context.Context, req domain.CommissionPreviewRequest) (domain.CommissionPreviewResponse, error) {
	if len(req.MechanicIDs) == 0 || req.TotalRevenue.IsNegative() {
		return domain.CommissionPreviewResponse{}, store.ErrInvalidTransaction
	}
	hundred := decimal.NewFromInt(100)
	for _, split := range req.Splits {
		if split.Percentage.IsNegative() || split.Percentage.GreaterThan(hundred) {
			return domain.CommissionPreviewResponse{}, store.ErrInvalidTransaction
		}
	}

	calcs := s.calculator.Calculate(ctx, req.MechanicIDs, req.TotalRevenue, req.Splits)
	return domain.CommissionPreviewResponse{
		Calculations: calcs,
		Summary:      commission.Summarize(calcs),
	}, nil
}

func (s *Service) DefaultSplits(n int) ([]int, error) {
	if n < 0 || n > maxDefaultSplitMechanics {
		return nil, store.ErrInvalidTransaction
	}
	return commission.DefaultSplits(n), nil
}

func (s *Service) ListStock(ctx context.Context, limit int) ([]domain.StockRecord, error) {
	return s.repo.ListStock(ctx, limit)
}

func (s *Service) CreateStockItem(ctx context.Context, req domain.StockCreateRequest) (domain.StockRecord, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockRecord{}, err
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if req.Code == "" || req.Name == "" || req.Quantity < 0 || req.Price.IsNegative() {
		return domain.StockRecord{}, store.ErrInvalidTransaction
	}
	if req.Type != domain.ItemTypePart && req.Type != domain.ItemTypeService {
		return domain.StockRecord{}, store.ErrInvalidTransaction
	}

	saved, err := s.repo.CreateStockItem(ctx, domain.StockRecord{
		Code:     req.Code,
		Name:     req.Name,
		Quantity: req.Quantity,
		Price:    req.Price,
		Type:     req.Type,
	})
	if err != nil {
		return domain.StockRecord{}, err
	}
	s.logAudit(ctx, "stock_create", "stock", saved.Code, fmt.Sprintf("name=%s,qty=%d", saved.Name, saved.Quantity))
	return *saved, nil
}

// AdjustStock is a manual correction. A delta uses the same atomic increment
// as the commit flows; SetTo overwrites the quantity after a stock count.
// Both are recorded as an adjustment mutation.
func (s *Service) AdjustStock(ctx context.Context, code string, req domain.StockAdjustRequest) (domain.StockAdjustResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockAdjustResponse{}, err
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.StockAdjustResponse{}, store.ErrInvalidTransaction
	}
	if req.SetTo != nil {
		if req.Delta != 0 || *req.SetTo < 0 {
			return domain.StockAdjustResponse{}, store.ErrInvalidTransaction
		}
	} else if req.Delta == 0 {
		return domain.StockAdjustResponse{}, store.ErrInvalidTransaction
	}
	item, err := s.repo.GetStock(ctx, code)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}

	delta := req.Delta
	var qty int
	if req.SetTo != nil {
		err = s.stock.SetStock(ctx, code, *req.SetTo)
		qty = *req.SetTo
		delta = *req.SetTo - item.Quantity
	} else {
		qty, err = s.stock.AdjustStock(ctx, code, req.Delta)
	}
	if errors.Is(err, stock.ErrSkipped) {
		return domain.StockAdjustResponse{}, store.ErrNotFound
	}
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}

	mutationCode := xid.New("ADJ")
	quantity := delta
	if quantity < 0 {
		quantity = -quantity
	}
	if quantity > 0 {
		if err := s.stock.Record(ctx, domain.StockMutation{
			TransactionCode: mutationCode,
			Kind:            domain.MutationKindAdjustment,
			CreatedAt:       time.Now().UTC(),
			Items:           []domain.StockMutationItem{{LineID: xid.NewLineID(), ItemCode: code, ItemName: item.Name, Quantity: quantity}},
		}); err != nil {
			log.Printf("[service] WARN: failed to record adjustment mutation code=%s: %v", code, err)
		}
	}

	s.logAudit(ctx, "stock_adjust", "stock", code, fmt.Sprintf("delta=%d,qty=%d,counted=%t,reason=%s,mutation=%s", delta, qty, req.SetTo != nil, strings.TrimSpace(req.Reason), mutationCode))
	return domain.StockAdjustResponse{Code: code, Quantity: qty}, nil
}

func (s *Service) SyncMutation(ctx context.Context, transactionCode string, req domain.SyncRequest) (domain.SyncResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.SyncResult{}, err
	}

	transactionCode = strings.TrimSpace(transactionCode)
	if transactionCode == "" {
		return domain.SyncResult{}, store.ErrInvalidTransaction
	}
	result, err := s.stock.Synchronize(ctx, transactionCode, req.Mode, req.Updates)
	if errors.Is(err, stock.ErrInvalidSyncMode) {
		return domain.SyncResult{}, fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	if err != nil {
		return domain.SyncResult{}, err
	}
	s.logAudit(ctx, "stock_sync", "stock_mutation", transactionCode, fmt.Sprintf("mode=%s,updated=%d,skipped=%d,failed=%d", req.Mode, result.Updated, result.Skipped, result.Failed))
	return result, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidTransaction
	}

	saved, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Phone:     req.Phone,
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) SavePurchase(ctx context.Context, req domain.PurchaseSaveRequest) (domain.PurchaseReceipt, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseReceipt{}, err
	}
	actor, _ := ActorFromContext(ctx)

	session := checkout.NewPurchaseSession(actor.Username)
	session.SupplierID = strings.TrimSpace(req.SupplierID)
	session.SupplierName = strings.TrimSpace(req.SupplierName)
	session.PaymentStatus = strings.ToLower(strings.TrimSpace(req.PaymentStatus))
	session.PaymentType = strings.TrimSpace(req.PaymentType)
	session.Notes = strings.TrimSpace(req.Notes)

	if session.SupplierID != "" && session.SupplierName == "" {
		name, err := s.supplierName(ctx, session.SupplierID)
		if err != nil {
			return domain.PurchaseReceipt{}, err
		}
		session.SupplierName = name
	}

	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		line := domain.PurchaseLineRequest{
			ItemCode:        strings.ToUpper(strings.TrimSpace(item.ItemCode)),
			ItemName:        strings.TrimSpace(item.ItemName),
			Qty:             item.Qty,
			Price:           item.Price,
			DiscountPercent: item.DiscountPercent,
		}
		if line.ItemName == "" || line.Qty < 1 || line.Price.IsNegative() {
			return domain.PurchaseReceipt{}, store.ErrInvalidTransaction
		}
		key := line.ItemCode
		if key == "" {
			key = line.ItemName
		}
		if _, dup := seen[key]; dup {
			return domain.PurchaseReceipt{}, fmt.Errorf("%w: duplicate item %s", store.ErrInvalidTransaction, key)
		}
		seen[key] = struct{}{}

		session.Cart.Add(cart.PercentageDiscountLine{
			Code:            line.ItemCode,
			Name:            line.ItemName,
			Price:           line.Price,
			Qty:             line.Qty,
			DiscountPercent: line.DiscountPercent,
		})
	}

	receipt, err := s.orchestrator.CommitPurchase(ctx, session)
	if err != nil {
		return domain.PurchaseReceipt{}, err
	}
	s.logAudit(ctx, "purchase_create", "purchase", receipt.Purchase.ID, fmt.Sprintf("number=%s,items=%d,subtotal=%s,stock_failed=%d", receipt.Purchase.PurchaseNumber, len(receipt.Purchase.Items), receipt.Purchase.Subtotal, receipt.Stock.Failed))
	return *receipt, nil
}

func (s *Service) supplierName(ctx context.Context, supplierID string) (string, error) {
	suppliers, err := s.repo.ListSuppliers(ctx)
	if err != nil {
		return "", err
	}
	for _, supplier := range suppliers {
		if supplier.ID == supplierID {
			return supplier.Name, nil
		}
	}
	return "", store.ErrNotFound
}

func (s *Service) ListPurchases(ctx context.Context, limit int) (domain.PurchaseListResponse, error) {
	purchases, err := s.repo.ListPurchases(ctx, limit)
	if err != nil {
		return domain.PurchaseListResponse{}, err
	}
	return domain.PurchaseListResponse{Purchases: purchases}, nil
}

func (s *Service) GetPurchase(ctx context.Context, purchaseID string) (domain.Purchase, error) {
	purchaseID = strings.TrimSpace(purchaseID)
	if purchaseID == "" {
		return domain.Purchase{}, store.ErrInvalidTransaction
	}
	purchase, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return domain.Purchase{}, err
	}
	return *purchase, nil
}

// CreatePurchaseReturn expects the manager PIN to be checked by the caller.
func (s *Service) CreatePurchaseReturn(ctx context.Context, req domain.PurchaseReturnRequest) (domain.PurchaseReturnReceipt, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseReturnReceipt{}, err
	}
	actor, _ := ActorFromContext(ctx)

	req.PurchaseID = strings.TrimSpace(req.PurchaseID)
	if req.PurchaseID == "" {
		return domain.PurchaseReturnReceipt{}, store.ErrInvalidTransaction
	}

	receipt, err := s.orchestrator.CommitPurchaseReturn(ctx, req, actor.Username)
	if err != nil {
		return domain.PurchaseReturnReceipt{}, err
	}
	s.logAudit(ctx, "purchase_return", "purchase_return", receipt.Return.ID, fmt.Sprintf("purchase=%s,number=%s,total=%s", req.PurchaseID, receipt.Return.ReturnNumber, receipt.Return.Total))
	return *receipt, nil
}

func (s *Service) Checkout(ctx context.Context, req domain.SaleCheckoutRequest) (domain.SaleReceipt, error) {
	actor, _ := ActorFromContext(ctx)
	session, err := s.buildSaleSession(ctx, actor.Username, req)
	if err != nil {
		return domain.SaleReceipt{}, err
	}

	receipt, err := s.orchestrator.CommitSale(ctx, session)
	if err != nil {
		return domain.SaleReceipt{}, err
	}
	tx := receipt.Transaction
	s.logAudit(ctx, "sale_checkout", "transaction", tx.ID, fmt.Sprintf("invoice=%s,total=%s,mechanics=%d,stock_failed=%d", tx.InvoiceNumber, tx.Total, len(tx.Mechanics), receipt.Stock.Failed))
	return *receipt, nil
}

// buildSaleSession prices each line from master stock unless the request
// carries an explicit price, then assigns mechanics with default splits and
// applies any explicit percentages on top.
func (s *Service) buildSaleSession(ctx context.Context, cashier string, req domain.SaleCheckoutRequest) (*checkout.SaleSession, error) {
	if req.OtherFees.IsNegative() || req.Tax.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}

	session := checkout.NewSaleSession(cashier)
	session.CustomerName = strings.TrimSpace(req.CustomerName)
	session.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	session.VehiclePlate = strings.TrimSpace(req.VehiclePlate)
	session.PaymentMethod = defaultString(strings.ToLower(strings.TrimSpace(req.PaymentMethod)), "cash")
	session.Charges = cart.Charges{OtherFees: req.OtherFees, Tax: req.Tax}

	for _, item := range req.Items {
		code := strings.ToUpper(strings.TrimSpace(item.ItemCode))
		if code == "" || item.Qty < 1 || item.Discount.IsNegative() {
			return nil, store.ErrInvalidTransaction
		}
		if containsLine(session.Cart.Lines(), code) {
			return nil, fmt.Errorf("%w: duplicate item %s", store.ErrInvalidTransaction, code)
		}
		record, err := s.repo.GetStock(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown item %s", store.ErrInvalidTransaction, code)
		}
		if err != nil {
			return nil, err
		}
		if lineType := strings.TrimSpace(item.Type); lineType != "" && lineType != record.Type {
			return nil, fmt.Errorf("%w: item %s is a %s, not a %s", store.ErrInvalidTransaction, code, record.Type, lineType)
		}

		price := record.Price
		if item.Price != nil {
			if item.Price.IsNegative() {
				return nil, store.ErrInvalidTransaction
			}
			price = *item.Price
		}
		session.Cart.Add(cart.AbsoluteDiscountLine{
			ID:       record.Code,
			Name:     defaultString(strings.TrimSpace(item.Name), record.Name),
			Type:     record.Type,
			Price:    price,
			Qty:      item.Qty,
			Discount: item.Discount,
		})
	}

	for _, m := range req.Mechanics {
		mechanic, err := s.repo.GetMechanic(ctx, strings.TrimSpace(m.ID))
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown mechanic %s", store.ErrInvalidTransaction, m.ID)
		}
		if err != nil {
			return nil, err
		}
		session.Mechanics.Add(mechanic.ID, mechanic.Name)
	}
	for _, m := range req.Mechanics {
		if m.Percentage == nil {
			continue
		}
		if *m.Percentage < 0 || *m.Percentage > 100 {
			return nil, store.ErrInvalidTransaction
		}
		session.Mechanics.SetPercentage(strings.TrimSpace(m.ID), *m.Percentage)
	}
	if session.Mechanics.Len() > 0 && session.Mechanics.Balance() != commission.BalanceExact {
		log.Printf("[service] WARN: mechanic split totals %d%% (%s)", session.Mechanics.TotalPercentage(), session.Mechanics.Balance())
	}
	return session, nil
}

func containsLine(lines []cart.AbsoluteDiscountLine, code string) bool {
	for _, line := range lines {
		if line.ID == code {
			return true
		}
	}
	return false
}

func (s *Service) HoldCart(ctx context.Context, req domain.HoldCartRequest) (domain.HeldCart, error) {
	if len(req.Checkout.Items) == 0 {
		return domain.HeldCart{}, store.ErrInvalidTransaction
	}

	actor, _ := ActorFromContext(ctx)
	held := domain.HeldCart{
		ID:              xid.New("hold"),
		CashierUsername: actor.Username,
		Note:            strings.TrimSpace(req.Note),
		Checkout:        req.Checkout,
		HeldAt:          time.Now().UTC(),
	}

	saved, err := s.repo.CreateHeldCart(ctx, held)
	if err != nil {
		return domain.HeldCart{}, err
	}
	s.logAudit(ctx, "cart_hold", "held_cart", saved.ID, fmt.Sprintf("items=%d", len(saved.Checkout.Items)))
	return *saved, nil
}

// ListHeldCarts returns the caller's own carts; admins see every cashier's.
func (s *Service) ListHeldCarts(ctx context.Context) (domain.HeldCartListResponse, error) {
	actor, _ := ActorFromContext(ctx)
	cashier := actor.Username
	if actor.Role == "admin" {
		cashier = ""
	}

	items, err := s.repo.ListHeldCarts(ctx, cashier, 200)
	if err != nil {
		return domain.HeldCartListResponse{}, err
	}
	return domain.HeldCartListResponse{Items: items}, nil
}

func (s *Service) ResumeHeldCart(ctx context.Context, holdID string) (domain.HeldCart, error) {
	holdID = strings.TrimSpace(holdID)
	if holdID == "" {
		return domain.HeldCart{}, store.ErrInvalidTransaction
	}

	held, err := s.repo.PopHeldCart(ctx, holdID)
	if err != nil {
		return domain.HeldCart{}, err
	}

	s.logAudit(ctx, "cart_resume", "held_cart", held.ID, fmt.Sprintf("items=%d", len(held.Checkout.Items)))
	return *held, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
