package checkout

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/cart"
	"bengkelpos/backend/internal/commission"
	"bengkelpos/backend/internal/domain"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrPartyInfoRequired    = errors.New("party info required")
	ErrPaymentTypeRequired  = errors.New("payment type required for paid purchase")
	ErrInvalidPaymentStatus = errors.New("invalid payment status")
	ErrInvalidDiscount      = errors.New("discount percent must be between 0 and 100")
	ErrInvalidReturn        = errors.New("invalid purchase return")
	ErrPartialCommit        = errors.New("partial commit needs reconciliation")
)

type State int

const (
	StateEmpty State = iota
	StateBuilding
	StateReadyToCheckout
	StateAwaitingPartyInfo
	StateAwaitingPaymentDetails
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateReadyToCheckout:
		return "ready_to_checkout"
	case StateAwaitingPartyInfo:
		return "awaiting_party_info"
	case StateAwaitingPaymentDetails:
		return "awaiting_payment_details"
	case StateCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// building reports Empty or Building from the cart size while the session
// has not been through Prepare.
func building(state State, lines int) State {
	if state != StateEmpty && state != StateBuilding {
		return state
	}
	if lines == 0 {
		return StateEmpty
	}
	return StateBuilding
}

// SaleSession is one cashier's sale in progress. It is not persisted; a
// HeldCart snapshot is the only way to park it.
type SaleSession struct {
	Cart          cart.SalesCart
	Mechanics     commission.Assignment
	CustomerName  string
	CustomerPhone string
	VehiclePlate  string
	PaymentMethod string
	Charges       cart.Charges
	Cashier       string

	state State
}

func NewSaleSession(cashier string) *SaleSession {
	return &SaleSession{Cashier: cashier}
}

func (s *SaleSession) State() State {
	return building(s.state, s.Cart.Len())
}

// Prepare runs the checkout transitions. On error the session keeps its
// cart and fields so the caller can correct them and retry.
func (s *SaleSession) Prepare() error {
	if s.Cart.Len() == 0 {
		s.state = StateEmpty
		return ErrEmptyCart
	}
	s.state = StateReadyToCheckout
	if strings.TrimSpace(s.CustomerName) == "" {
		s.state = StateAwaitingPartyInfo
		return ErrPartyInfoRequired
	}
	return nil
}

func (s *SaleSession) Reset() {
	cashier := s.Cashier
	*s = SaleSession{Cashier: cashier}
}

type PurchaseSession struct {
	Cart          cart.PurchaseCart
	SupplierID    string
	SupplierName  string
	PaymentStatus string
	PaymentType   string
	Notes         string
	CreatedBy     string

	state State
}

func NewPurchaseSession(createdBy string) *PurchaseSession {
	return &PurchaseSession{CreatedBy: createdBy}
}

func (p *PurchaseSession) State() State {
	return building(p.state, p.Cart.Len())
}

// Prepare validates the purchase. A paid purchase additionally needs a
// payment type before it can commit.
func (p *PurchaseSession) Prepare() error {
	if p.Cart.Len() == 0 {
		p.state = StateEmpty
		return ErrEmptyCart
	}
	hundred := decimal.NewFromInt(100)
	for _, line := range p.Cart.Lines() {
		if line.DiscountPercent.IsNegative() || line.DiscountPercent.GreaterThan(hundred) {
			p.state = StateBuilding
			return ErrInvalidDiscount
		}
	}
	switch p.PaymentStatus {
	case "":
		p.PaymentStatus = domain.PaymentStatusPending
	case domain.PaymentStatusPending, domain.PaymentStatusPartial, domain.PaymentStatusPaid, domain.PaymentStatusOverdue:
	default:
		p.state = StateBuilding
		return ErrInvalidPaymentStatus
	}

	p.state = StateReadyToCheckout
	if strings.TrimSpace(p.SupplierName) == "" {
		p.state = StateAwaitingPartyInfo
		return ErrPartyInfoRequired
	}
	if p.PaymentStatus == domain.PaymentStatusPaid && strings.TrimSpace(p.PaymentType) == "" {
		p.state = StateAwaitingPaymentDetails
		return ErrPaymentTypeRequired
	}
	return nil
}

func (p *PurchaseSession) Reset() {
	createdBy := p.CreatedBy
	*p = PurchaseSession{CreatedBy: createdBy}
}
