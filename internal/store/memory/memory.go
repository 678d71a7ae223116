package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/store"
	"bengkelpos/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	settings           map[string]domain.GlobalSetting
	mechanicsByID      map[string]domain.Mechanic
	mechanicSettings   map[string]domain.MechanicSetting
	stockByCode        map[string]domain.StockRecord
	mutationsByCode    map[string]domain.StockMutation
	suppliersByID      map[string]domain.Supplier
	purchasesByID      map[string]domain.Purchase
	purchaseReturns    []domain.PurchaseReturn
	transactionsByID   map[string]domain.Transaction
	transactionInvoice map[string]string
	performance        []domain.MechanicPerformance
	heldCartsByID      map[string]domain.HeldCart
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

// New returns an empty store with no users and no master data.
func New() *Store {
	return &Store{
		settings:           make(map[string]domain.GlobalSetting),
		mechanicsByID:      make(map[string]domain.Mechanic),
		mechanicSettings:   make(map[string]domain.MechanicSetting),
		stockByCode:        make(map[string]domain.StockRecord),
		mutationsByCode:    make(map[string]domain.StockMutation),
		suppliersByID:      make(map[string]domain.Supplier),
		purchasesByID:      make(map[string]domain.Purchase),
		purchaseReturns:    make([]domain.PurchaseReturn, 0, 16),
		transactionsByID:   make(map[string]domain.Transaction),
		transactionInvoice: make(map[string]string),
		performance:        make([]domain.MechanicPerformance, 0, 64),
		heldCartsByID:      make(map[string]domain.HeldCart),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD.
// If unset, dev defaults are used with a warning. The backend uses
// PostgreSQL when DATABASE_URL is set, so these never reach production.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo users, mechanics and workshop stock.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	for _, m := range []domain.Mechanic{
		{ID: "mch-budi", Name: "Budi"},
		{ID: "mch-andi", Name: "Andi"},
		{ID: "mch-joko", Name: "Joko"},
	} {
		m.Active = true
		m.CreatedAt = now
		s.mechanicsByID[m.ID] = m
	}

	for _, item := range []domain.StockRecord{
		{Code: "OLI-MPX2", Name: "Oli MPX2 0.8L", Quantity: 40, Price: decimal.NewFromInt(52000), Type: domain.ItemTypePart},
		{Code: "KAMPAS-RM-BEAT", Name: "Kampas Rem Beat", Quantity: 25, Price: decimal.NewFromInt(45000), Type: domain.ItemTypePart},
		{Code: "BUSI-NGK-C7", Name: "Busi NGK C7HSA", Quantity: 60, Price: decimal.NewFromInt(18000), Type: domain.ItemTypePart},
		{Code: "VBELT-VARIO", Name: "V-Belt Vario 125", Quantity: 10, Price: decimal.NewFromInt(115000), Type: domain.ItemTypePart},
		{Code: "JASA-SERVIS", Name: "Jasa Servis Ringan", Price: decimal.NewFromInt(60000), Type: domain.ItemTypeService},
		{Code: "JASA-TUNEUP", Name: "Jasa Tune Up", Price: decimal.NewFromInt(85000), Type: domain.ItemTypeService},
		{Code: "JASA-CVT", Name: "Jasa Bongkar CVT", Price: decimal.NewFromInt(75000), Type: domain.ItemTypeService},
	} {
		s.stockByCode[item.Code] = item
	}

	s.suppliersByID["sup-astra"] = domain.Supplier{ID: "sup-astra", Name: "PT Astra Otoparts", Phone: "021-4603550", CreatedAt: now}
	return s
}

func (s *Store) GetSetting(_ context.Context, key string) (*domain.GlobalSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	setting, exists := s.settings[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &setting, nil
}

func (s *Store) SetSetting(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(key) == "" {
		return store.ErrInvalidTransaction
	}
	s.settings[key] = domain.GlobalSetting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *Store) ListMechanics(_ context.Context) ([]domain.Mechanic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mechanics := make([]domain.Mechanic, 0, len(s.mechanicsByID))
	for _, m := range s.mechanicsByID {
		mechanics = append(mechanics, m)
	}
	slices.SortFunc(mechanics, func(a, b domain.Mechanic) int {
		return cmpString(a.Name, b.Name)
	})
	return mechanics, nil
}

func (s *Store) GetMechanic(_ context.Context, id string) (*domain.Mechanic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.mechanicsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) CreateMechanic(_ context.Context, mechanic domain.Mechanic) (*domain.Mechanic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mechanic.Name = strings.TrimSpace(mechanic.Name)
	if mechanic.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if mechanic.ID == "" {
		mechanic.ID = xid.New("mch")
	}
	if _, exists := s.mechanicsByID[mechanic.ID]; exists {
		return nil, store.ErrConflict
	}
	if mechanic.CreatedAt.IsZero() {
		mechanic.CreatedAt = time.Now().UTC()
	}
	mechanic.Active = true
	s.mechanicsByID[mechanic.ID] = mechanic
	created := mechanic
	return &created, nil
}

func (s *Store) GetMechanicSetting(_ context.Context, mechanicID string) (*domain.MechanicSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	setting, exists := s.mechanicSettings[mechanicID]
	if !exists || !setting.IsActive {
		return nil, store.ErrNotFound
	}
	return &setting, nil
}

func (s *Store) UpsertMechanicSetting(_ context.Context, mechanicID string, shopCut decimal.Decimal) (*domain.MechanicSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.mechanicsByID[mechanicID]; !exists {
		return nil, store.ErrNotFound
	}
	setting, exists := s.mechanicSettings[mechanicID]
	if !exists {
		setting = domain.MechanicSetting{ID: xid.New("mset"), MechanicID: mechanicID}
	}
	setting.ShopCutPercentage = shopCut
	setting.IsActive = true
	setting.UpdatedAt = time.Now().UTC()
	s.mechanicSettings[mechanicID] = setting
	saved := setting
	return &saved, nil
}

func (s *Store) DeactivateMechanicSetting(_ context.Context, mechanicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	setting, exists := s.mechanicSettings[mechanicID]
	if !exists {
		return store.ErrNotFound
	}
	setting.IsActive = false
	setting.UpdatedAt = time.Now().UTC()
	s.mechanicSettings[mechanicID] = setting
	return nil
}

func (s *Store) ListMechanicSettings(_ context.Context) ([]domain.MechanicSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.MechanicSetting, 0, len(s.mechanicSettings))
	for _, setting := range s.mechanicSettings {
		result = append(result, setting)
	}
	slices.SortFunc(result, func(a, b domain.MechanicSetting) int {
		return cmpString(a.MechanicID, b.MechanicID)
	})
	return result, nil
}

func (s *Store) GetStock(_ context.Context, code string) (*domain.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.stockByCode[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) ListStock(_ context.Context, limit int) ([]domain.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.StockRecord, 0, len(s.stockByCode))
	for _, item := range s.stockByCode {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.StockRecord) int {
		if a.Type == b.Type {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Type, b.Type)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) CreateStockItem(_ context.Context, item domain.StockRecord) (*domain.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.Code = strings.TrimSpace(item.Code)
	if item.Code == "" || strings.TrimSpace(item.Name) == "" || item.Price.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.stockByCode[item.Code]; exists {
		return nil, store.ErrConflict
	}
	s.stockByCode[item.Code] = item
	created := item
	return &created, nil
}

func (s *Store) SetStockQuantity(_ context.Context, code string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.stockByCode[code]
	if !exists {
		return store.ErrNotFound
	}
	item.Quantity = qty
	s.stockByCode[code] = item
	return nil
}

func (s *Store) IncrementStock(_ context.Context, code string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.stockByCode[code]
	if !exists {
		return 0, store.ErrNotFound
	}
	item.Quantity += delta
	s.stockByCode[code] = item
	return item.Quantity, nil
}

func (s *Store) CreateStockMutation(_ context.Context, mutation domain.StockMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(mutation.TransactionCode) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.mutationsByCode[mutation.TransactionCode]; exists {
		return store.ErrConflict
	}
	if mutation.CreatedAt.IsZero() {
		mutation.CreatedAt = time.Now().UTC()
	}
	s.mutationsByCode[mutation.TransactionCode] = cloneMutation(mutation)
	return nil
}

func (s *Store) GetMutationItems(_ context.Context, transactionCode string) ([]domain.StockMutationItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mutation, exists := s.mutationsByCode[transactionCode]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneMutation(mutation).Items, nil
}

func (s *Store) UpdateMutationItemQuantity(_ context.Context, transactionCode string, match store.MutationMatch, qty int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mutation, exists := s.mutationsByCode[transactionCode]
	if !exists {
		return 0, nil
	}
	var affected int64
	for i := range mutation.Items {
		if !matchesMutationItem(mutation.Items[i], match) {
			continue
		}
		mutation.Items[i].Quantity = qty
		affected++
	}
	s.mutationsByCode[transactionCode] = mutation
	return affected, nil
}

func matchesMutationItem(item domain.StockMutationItem, match store.MutationMatch) bool {
	if match.LineID != "" {
		return item.LineID == match.LineID
	}
	return match.ItemName != "" && item.ItemName == match.ItemName
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	s.suppliersByID[supplier.ID] = supplier
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) InsertPurchaseHeader(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.PurchaseNumber == "" || strings.TrimSpace(purchase.SupplierName) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if s.purchaseNumberTaken(purchase.PurchaseNumber) {
		return nil, store.ErrConflict
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}
	purchase.Items = nil
	s.purchasesByID[purchase.ID] = purchase
	saved := purchase
	return &saved, nil
}

func (s *Store) PurchaseNumberExists(_ context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.purchaseNumberTaken(number), nil
}

func (s *Store) purchaseNumberTaken(number string) bool {
	for _, purchase := range s.purchasesByID {
		if purchase.PurchaseNumber == number {
			return true
		}
	}
	return false
}

func (s *Store) InsertPurchaseItems(_ context.Context, purchaseID string, items []domain.PurchaseItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, exists := s.purchasesByID[purchaseID]
	if !exists {
		return store.ErrNotFound
	}
	if len(items) == 0 {
		return store.ErrInvalidTransaction
	}
	purchase.Items = append(purchase.Items, items...)
	s.purchasesByID[purchaseID] = purchase
	return nil
}

func (s *Store) DeletePurchase(_ context.Context, purchaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.purchasesByID[purchaseID]; !exists {
		return store.ErrNotFound
	}
	delete(s.purchasesByID, purchaseID)
	return nil
}

func (s *Store) GetPurchase(_ context.Context, purchaseID string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, exists := s.purchasesByID[purchaseID]
	if !exists {
		return nil, store.ErrNotFound
	}
	result := clonePurchase(purchase)
	return &result, nil
}

func (s *Store) ListPurchases(_ context.Context, limit int) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Purchase, 0, len(s.purchasesByID))
	for _, purchase := range s.purchasesByID {
		result = append(result, clonePurchase(purchase))
	}
	slices.SortFunc(result, func(a, b domain.Purchase) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) InsertPurchaseReturn(_ context.Context, ret domain.PurchaseReturn) (*domain.PurchaseReturn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, exists := s.purchasesByID[ret.PurchaseID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if len(ret.Items) == 0 || ret.ReturnNumber == "" {
		return nil, store.ErrInvalidTransaction
	}
	if s.returnNumberTaken(ret.ReturnNumber) {
		return nil, store.ErrConflict
	}
	purchased := make(map[string]int, len(purchase.Items))
	for _, item := range purchase.Items {
		purchased[item.LineID] += item.Qty
	}
	if err := store.CheckReturnable(purchased, s.returnedQty(ret.PurchaseID), ret.Items); err != nil {
		return nil, err
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	items := make([]domain.PurchaseReturnItem, len(ret.Items))
	copy(items, ret.Items)
	ret.Items = items
	s.purchaseReturns = append(s.purchaseReturns, ret)
	saved := ret
	return &saved, nil
}

func (s *Store) ReturnNumberExists(_ context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.returnNumberTaken(number), nil
}

func (s *Store) returnNumberTaken(number string) bool {
	for _, ret := range s.purchaseReturns {
		if ret.ReturnNumber == number {
			return true
		}
	}
	return false
}

func (s *Store) GetReturnedQtyByPurchase(_ context.Context, purchaseID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.returnedQty(purchaseID), nil
}

func (s *Store) returnedQty(purchaseID string) map[string]int {
	returned := make(map[string]int)
	for _, ret := range s.purchaseReturns {
		if ret.PurchaseID != purchaseID {
			continue
		}
		for _, item := range ret.Items {
			returned[item.LineID] += item.Qty
		}
	}
	return returned
}

func (s *Store) InvoiceExists(_ context.Context, invoiceNumber string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.transactionInvoice[invoiceNumber]
	return exists, nil
}

func (s *Store) InsertTransactionOnce(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.InvoiceNumber == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.transactionInvoice[tx.InvoiceNumber]; exists {
		return nil, store.ErrDuplicateInvoice
	}
	if tx.ID == "" {
		tx.ID = xid.New("trx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx = cloneTransaction(tx)
	s.transactionsByID[tx.ID] = tx
	s.transactionInvoice[tx.InvoiceNumber] = tx.ID
	saved := cloneTransaction(tx)
	return &saved, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	result := cloneTransaction(tx)
	return &result, nil
}

func (s *Store) ListTransactions(_ context.Context, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		result = append(result, cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateMechanicPerformance(_ context.Context, records []domain.MechanicPerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, record := range records {
		if record.ID == "" {
			record.ID = xid.New("perf")
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		s.performance = append(s.performance, record)
	}
	return nil
}

func (s *Store) ListMechanicPerformance(_ context.Context, mechanicID string, limit int) ([]domain.MechanicPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.MechanicPerformance, 0, 32)
	for _, record := range s.performance {
		if mechanicID != "" && record.MechanicID != mechanicID {
			continue
		}
		result = append(result, record)
	}
	slices.SortFunc(result, func(a, b domain.MechanicPerformance) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateHeldCart(_ context.Context, held domain.HeldCart) (*domain.HeldCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held.ID == "" {
		held.ID = xid.New("hold")
	}
	if held.HeldAt.IsZero() {
		held.HeldAt = time.Now().UTC()
	}
	if held.CashierUsername == "" || len(held.Checkout.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.heldCartsByID[held.ID] = cloneHeldCart(held)
	saved := cloneHeldCart(s.heldCartsByID[held.ID])
	return &saved, nil
}

func (s *Store) ListHeldCarts(_ context.Context, cashier string, limit int) ([]domain.HeldCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.HeldCart, 0, 16)
	for _, held := range s.heldCartsByID {
		if cashier != "" && held.CashierUsername != cashier {
			continue
		}
		result = append(result, cloneHeldCart(held))
	}
	slices.SortFunc(result, func(a, b domain.HeldCart) int {
		return newestFirst(a.HeldAt, b.HeldAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) PopHeldCart(_ context.Context, holdID string) (*domain.HeldCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, exists := s.heldCartsByID[holdID]
	if !exists {
		return nil, store.ErrNotFound
	}
	delete(s.heldCartsByID, holdID)
	result := cloneHeldCart(held)
	return &result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, len(s.auditLogs))
	copy(result, s.auditLogs)
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func newestFirst(aAt, bAt time.Time, aID, bID string) int {
	if aAt.Equal(bAt) {
		return cmpString(bID, aID)
	}
	if aAt.After(bAt) {
		return -1
	}
	return 1
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneTransaction(src domain.Transaction) domain.Transaction {
	dup := src
	dup.Items = slices.Clone(src.Items)
	dup.Mechanics = slices.Clone(src.Mechanics)
	return dup
}

func clonePurchase(src domain.Purchase) domain.Purchase {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func cloneMutation(src domain.StockMutation) domain.StockMutation {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func cloneHeldCart(src domain.HeldCart) domain.HeldCart {
	dup := src
	dup.Checkout.Items = slices.Clone(src.Checkout.Items)
	dup.Checkout.Mechanics = slices.Clone(src.Checkout.Mechanics)
	return dup
}
