package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type Mechanic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type MechanicCreateRequest struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
}

// MechanicSetting overrides the global shop cut for one mechanic. Rows are
// never removed; IsActive=false is the soft delete.
type MechanicSetting struct {
	ID                string          `json:"id"`
	MechanicID        string          `json:"mechanic_id"`
	ShopCutPercentage decimal.Decimal `json:"shop_cut_percentage"`
	IsActive          bool            `json:"is_active"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type MechanicSettingRequest struct {
	ShopCutPercentage decimal.Decimal `json:"shop_cut_percentage"`
}

type GlobalSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	SettingDefaultShopCut         = "default_shop_cut_percentage"
	SettingEnableCustomMechanic   = "enable_custom_mechanic_settings"
	DefaultShopCutPercentageValue = 50
)

type SettingsResponse struct {
	DefaultShopCutPercentage     decimal.Decimal `json:"default_shop_cut_percentage"`
	EnableCustomMechanicSettings bool            `json:"enable_custom_mechanic_settings"`
}

type SettingsUpdateRequest struct {
	DefaultShopCutPercentage     *decimal.Decimal `json:"default_shop_cut_percentage,omitempty"`
	EnableCustomMechanicSettings *bool            `json:"enable_custom_mechanic_settings,omitempty"`
}

// AssignedMechanic is a mechanic on the job being built. Percentage is the
// work share among assigned mechanics, independent of shop cut.
type AssignedMechanic struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Percentage int    `json:"percentage"`
}

type CommissionSplit struct {
	MechanicID string          `json:"mechanic_id"`
	Percentage decimal.Decimal `json:"percentage"`
}

type CommissionCalculation struct {
	MechanicID                   string          `json:"mechanic_id"`
	MechanicName                 string          `json:"mechanic_name"`
	TotalRevenue                 decimal.Decimal `json:"total_revenue"`
	ShopCutPercentage            decimal.Decimal `json:"shop_cut_percentage"`
	ShopCutAmount                decimal.Decimal `json:"shop_cut_amount"`
	MechanicShareAmount          decimal.Decimal `json:"mechanic_share_amount"`
	MechanicCommissionPercentage decimal.Decimal `json:"mechanic_commission_percentage"`
	FinalCommissionAmount        decimal.Decimal `json:"final_commission_amount"`
}

type CommissionPreviewRequest struct {
	MechanicIDs  []string          `json:"mechanic_ids" validate:"required,min=1"`
	TotalRevenue decimal.Decimal   `json:"total_revenue"`
	Splits       []CommissionSplit `json:"splits"`
}

type CommissionSummary struct {
	TotalShopCut    decimal.Decimal `json:"total_shop_cut"`
	TotalCommission decimal.Decimal `json:"total_commission"`
}

type CommissionPreviewResponse struct {
	Calculations []CommissionCalculation `json:"calculations"`
	Summary      CommissionSummary       `json:"summary"`
}

// MechanicPerformance is written once per mechanic after a sale commits.
type MechanicPerformance struct {
	ID                    string          `json:"id"`
	TransactionID         string          `json:"transaction_id"`
	InvoiceNumber         string          `json:"invoice_number"`
	MechanicID            string          `json:"mechanic_id"`
	MechanicName          string          `json:"mechanic_name"`
	TotalRevenue          decimal.Decimal `json:"total_revenue"`
	ShopCutPercentage     decimal.Decimal `json:"shop_cut_percentage"`
	ShopCutAmount         decimal.Decimal `json:"shop_cut_amount"`
	WorkPercentage        decimal.Decimal `json:"work_percentage"`
	FinalCommissionAmount decimal.Decimal `json:"final_commission_amount"`
	CreatedAt             time.Time       `json:"created_at"`
}

const (
	ItemTypePart    = "part"
	ItemTypeService = "service"
)

type StockRecord struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Type     string          `json:"type"`
}

type StockCreateRequest struct {
	Code     string          `json:"code" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	Quantity int             `json:"quantity" validate:"gte=0"`
	Price    decimal.Decimal `json:"price"`
	Type     string          `json:"type" validate:"required,oneof=part service"`
}

// StockAdjustRequest either adds Delta or, for a stock count, sets the
// quantity to SetTo. Exactly one of the two is given.
type StockAdjustRequest struct {
	Delta  int    `json:"delta" validate:"required_without=SetTo,excluded_with=SetTo"`
	SetTo  *int   `json:"set_to,omitempty" validate:"omitempty,gte=0"`
	Reason string `json:"reason"`
}

type StockAdjustResponse struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

type StockDelta struct {
	LineID string `json:"line_id,omitempty"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Qty    int    `json:"qty"`
}

type StockFailure struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// StockBatchResult reports a best-effort batch of stock deltas.
type StockBatchResult struct {
	Applied  int            `json:"applied"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
	Failures []StockFailure `json:"failures,omitempty"`
}

const (
	MutationKindPurchase       = "purchase"
	MutationKindPurchaseReturn = "purchase_return"
	MutationKindSale           = "sale"
	MutationKindAdjustment     = "adjustment"
)

type StockMutation struct {
	TransactionCode string              `json:"transaction_code"`
	Kind            string              `json:"kind"`
	CreatedAt       time.Time           `json:"created_at"`
	Items           []StockMutationItem `json:"items"`
}

type StockMutationItem struct {
	LineID   string `json:"line_id"`
	ItemCode string `json:"item_code"`
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

type SyncMode string

const (
	SyncModeAdd      SyncMode = "add"
	SyncModeSubtract SyncMode = "subtract"
	SyncModeSet      SyncMode = "set"
)

// SyncUpdate overrides the quantity re-applied to one mutation item. LineID
// is preferred; ItemName is the legacy match.
type SyncUpdate struct {
	LineID   string `json:"line_id,omitempty"`
	ItemName string `json:"item_name,omitempty"`
	Quantity int    `json:"quantity"`
}

type SyncRequest struct {
	Mode    SyncMode     `json:"mode" validate:"required,oneof=add subtract set"`
	Updates []SyncUpdate `json:"updates"`
}

type SyncResult struct {
	TransactionCode string `json:"transaction_code"`
	Updated         int    `json:"updated"`
	Skipped         int    `json:"skipped"`
	Failed          int    `json:"failed"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

const (
	PaymentStatusPending = "pending"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
	PaymentStatusOverdue = "overdue"
)

type Purchase struct {
	ID             string          `json:"id"`
	PurchaseNumber string          `json:"purchase_number"`
	SupplierID     string          `json:"supplier_id,omitempty"`
	SupplierName   string          `json:"supplier_name"`
	PaymentStatus  string          `json:"payment_status"`
	PaymentType    string          `json:"payment_type,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []PurchaseItem  `json:"items"`
}

type PurchaseItem struct {
	LineID          string          `json:"line_id"`
	ItemCode        string          `json:"item_code"`
	ItemName        string          `json:"item_name"`
	Qty             int             `json:"qty"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Subtotal        decimal.Decimal `json:"subtotal"`
}

type PurchaseLineRequest struct {
	ItemCode        string          `json:"item_code"`
	ItemName        string          `json:"item_name" validate:"required"`
	Qty             int             `json:"qty" validate:"gte=1"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type PurchaseSaveRequest struct {
	SupplierID    string                `json:"supplier_id"`
	SupplierName  string                `json:"supplier_name"`
	PaymentStatus string                `json:"payment_status" validate:"omitempty,oneof=pending partial paid overdue"`
	PaymentType   string                `json:"payment_type"`
	Notes         string                `json:"notes"`
	Items         []PurchaseLineRequest `json:"items" validate:"dive"`
}

type PurchaseReceipt struct {
	Purchase Purchase         `json:"purchase"`
	Stock    StockBatchResult `json:"stock"`
}

type PurchaseListResponse struct {
	Purchases []Purchase `json:"purchases"`
}

type PurchaseReturn struct {
	ID           string               `json:"id"`
	ReturnNumber string               `json:"return_number"`
	PurchaseID   string               `json:"purchase_id"`
	Reason       string               `json:"reason"`
	Total        decimal.Decimal      `json:"total"`
	CreatedBy    string               `json:"created_by"`
	CreatedAt    time.Time            `json:"created_at"`
	Items        []PurchaseReturnItem `json:"items"`
}

type PurchaseReturnItem struct {
	LineID   string          `json:"line_id"`
	ItemCode string          `json:"item_code"`
	ItemName string          `json:"item_name"`
	Qty      int             `json:"qty"`
	Price    decimal.Decimal `json:"price"`
}

type PurchaseReturnLineRequest struct {
	LineID string `json:"line_id" validate:"required"`
	Qty    int    `json:"qty" validate:"gte=1"`
}

type PurchaseReturnRequest struct {
	PurchaseID string                      `json:"purchase_id" validate:"required"`
	Reason     string                      `json:"reason"`
	ManagerPIN string                      `json:"manager_pin"`
	Items      []PurchaseReturnLineRequest `json:"items" validate:"required,min=1,dive"`
}

type PurchaseReturnReceipt struct {
	Return PurchaseReturn   `json:"purchase_return"`
	Stock  StockBatchResult `json:"stock"`
}

const (
	TxStatusPaid = "paid"
)

type Transaction struct {
	ID             string             `json:"id"`
	InvoiceNumber  string             `json:"invoice_number"`
	CustomerName   string             `json:"customer_name"`
	CustomerPhone  string             `json:"customer_phone,omitempty"`
	VehiclePlate   string             `json:"vehicle_plate,omitempty"`
	PaymentMethod  string             `json:"payment_method"`
	Subtotal       decimal.Decimal    `json:"subtotal"`
	DiscountTotal  decimal.Decimal    `json:"discount_total"`
	OtherFees      decimal.Decimal    `json:"other_fees"`
	Tax            decimal.Decimal    `json:"tax"`
	Total          decimal.Decimal    `json:"total"`
	ServiceRevenue decimal.Decimal    `json:"service_revenue"`
	Status         string             `json:"status"`
	CreatedBy      string             `json:"created_by"`
	CreatedAt      time.Time          `json:"created_at"`
	Items          []TransactionLine  `json:"items"`
	Mechanics      []AssignedMechanic `json:"mechanics,omitempty"`
}

type TransactionLine struct {
	LineID   string          `json:"line_id"`
	ItemCode string          `json:"item_code"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Price    decimal.Decimal `json:"price"`
	Qty      int             `json:"qty"`
	Discount decimal.Decimal `json:"discount"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type SaleLineRequest struct {
	ItemCode string           `json:"item_code" validate:"required"`
	Name     string           `json:"name"`
	// Type is optional; when set it must match the stock record.
	Type     string           `json:"type" validate:"omitempty,oneof=part service"`
	Qty      int              `json:"qty" validate:"gte=1"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Discount decimal.Decimal  `json:"discount"`
}

type SaleMechanicRequest struct {
	ID         string `json:"id" validate:"required"`
	Percentage *int   `json:"percentage,omitempty"`
}

type SaleCheckoutRequest struct {
	CustomerName  string                `json:"customer_name"`
	CustomerPhone string                `json:"customer_phone"`
	VehiclePlate  string                `json:"vehicle_plate"`
	PaymentMethod string                `json:"payment_method"`
	OtherFees     decimal.Decimal       `json:"other_fees"`
	Tax           decimal.Decimal       `json:"tax"`
	Items         []SaleLineRequest     `json:"items" validate:"dive"`
	Mechanics     []SaleMechanicRequest `json:"mechanics" validate:"dive"`
}

type SaleReceipt struct {
	Transaction Transaction             `json:"transaction"`
	Commissions []CommissionCalculation `json:"commissions"`
	Stock       StockBatchResult        `json:"stock"`
}

// HeldCart is the explicit "save cart" snapshot of a sale in progress.
type HeldCart struct {
	ID              string              `json:"id"`
	CashierUsername string              `json:"cashier_username"`
	Note            string              `json:"note"`
	Checkout        SaleCheckoutRequest `json:"checkout"`
	HeldAt          time.Time           `json:"held_at"`
}

type HoldCartRequest struct {
	Note     string              `json:"note"`
	Checkout SaleCheckoutRequest `json:"checkout"`
}

type HeldCartListResponse struct {
	Items []HeldCart `json:"items"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
