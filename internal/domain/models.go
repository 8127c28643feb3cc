package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Color struct {
	Name string `json:"name"`
	Hex  string `json:"hex,omitempty"`
}

// ProductVariant is one purchasable combination of brand, color and storage.
// Quantity is the on-hand stock and is never negative.
type ProductVariant struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	Brand          string          `json:"brand"`
	Color          Color           `json:"color"`
	Storage        string          `json:"storage"`
	Image          string          `json:"image,omitempty"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	Price          decimal.Decimal `json:"price"`
	MRP            decimal.Decimal `json:"mrp"`
	Quantity       int             `json:"quantity"`
}

type Product struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Category string           `json:"category"`
	Image    string           `json:"image,omitempty"`
	Variants []ProductVariant `json:"variants"`
}

func (p Product) Variant(id string) (ProductVariant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return ProductVariant{}, false
}

// ProductRef is the slice of the catalog product a cart line keeps.
type ProductRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Image    string `json:"image,omitempty"`
}

type SelectedOptions struct {
	Brand   string `json:"brand,omitempty"`
	Color   string `json:"color,omitempty"`
	Storage string `json:"storage,omitempty"`
	Image   string `json:"image,omitempty"`
}

// CartLineItem is keyed by Variant.ID. Serials are free-form metadata and
// are not tied to Quantity.
type CartLineItem struct {
	Product         ProductRef      `json:"product"`
	Variant         ProductVariant  `json:"variant"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	SelectedOptions SelectedOptions `json:"selected_options"`
	Serials         []string        `json:"serials"`
}

func (l CartLineItem) ID() string {
	return l.Variant.ID
}

func (l CartLineItem) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address,omitempty"`
}

const (
	PaymentCash     = "cash"
	PaymentUPI      = "upi"
	PaymentCard     = "card"
	PaymentPayLater = "paylater"
	// PaymentCredit on a return keeps the refund as store credit on the
	// customer's ledger instead of paying it out.
	PaymentCredit = "credit"
)

var PaymentModes = []string{PaymentCash, PaymentUPI, PaymentCard, PaymentPayLater}

func IsPaymentMode(mode string) bool {
	for _, m := range PaymentModes {
		if m == mode {
			return true
		}
	}
	return false
}

type Payment struct {
	Mode   string          `json:"mode"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

type OrderStatus string

const (
	OrderActive            OrderStatus = "active"
	OrderPartiallyReturned OrderStatus = "partially_returned"
	OrderFullyReturned     OrderStatus = "fully_returned"
)

type OrderProduct struct {
	ProductID        string          `json:"product_id"`
	ParentID         string          `json:"parent_id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	Image            string          `json:"image,omitempty"`
	Brand            string          `json:"brand"`
	Color            string          `json:"color"`
	Storage          string          `json:"storage"`
	Price            decimal.Decimal `json:"price"`
	PurchasePrice    decimal.Decimal `json:"purchase_price"`
	Quantity         int             `json:"quantity"`
	ReturnedQuantity int             `json:"returned_quantity"`
	Serials          []string        `json:"serials,omitempty"`
}

func (p OrderProduct) Remaining() int {
	return p.Quantity - p.ReturnedQuantity
}

type Order struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Customer       Customer        `json:"customer"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Paid           decimal.Decimal `json:"paid"`
	Mode           string          `json:"mode"`
	Note           string          `json:"note,omitempty"`
	Products       []OrderProduct  `json:"products"`
	CreatedBy      string          `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Status is derived from returned quantities and only moves forward.
func (o Order) Status() OrderStatus {
	returned, total := 0, 0
	for _, p := range o.Products {
		returned += p.ReturnedQuantity
		total += p.Quantity
	}
	switch {
	case returned == 0:
		return OrderActive
	case returned >= total:
		return OrderFullyReturned
	default:
		return OrderPartiallyReturned
	}
}

func (o Order) Due() decimal.Decimal {
	return o.TotalAmount.Sub(o.Paid)
}

func (o Order) Clone() Order {
	dup := o
	dup.Products = make([]OrderProduct, len(o.Products))
	for i, p := range o.Products {
		p.Serials = append([]string(nil), p.Serials...)
		dup.Products[i] = p
	}
	return dup
}

type ReturnItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	// MaxQuantity is what the client believed was returnable. It is informational;
	// the remaining quantity is always recomputed from the stored order.
	MaxQuantity int `json:"max_quantity,omitempty"`
}

type ReturnRequest struct {
	OrderID    string       `json:"order_id"`
	Items      []ReturnItem `json:"items"`
	Reason     string       `json:"reason"`
	RefundMode string       `json:"refund_mode,omitempty"`
	ManagerPIN string       `json:"manager_pin,omitempty"`
}

type ReturnLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

type Return struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	Reason       string          `json:"reason"`
	RefundMode   string          `json:"refund_mode"`
	Lines        []ReturnLine    `json:"lines"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	OrderStatus  OrderStatus     `json:"order_status"`
	Entries      []LedgerEntry   `json:"entries"`
	ProcessedBy  string          `json:"processed_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type EntryType string

const (
	Debit  EntryType = "debit"
	Credit EntryType = "credit"
)

// LedgerEntry is append-only. A debit is value charged to the customer, a
// credit is value received from or credited to the customer.
type LedgerEntry struct {
	ID          string          `json:"id"`
	CustomerKey string          `json:"customer_key"`
	Amount      decimal.Decimal `json:"amount"`
	Type        EntryType       `json:"type"`
	Note        string          `json:"note,omitempty"`
	Mode        string          `json:"mode,omitempty"`
	OrderID     string          `json:"order_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Perspective string

const (
	PerspectiveSeller Perspective = "seller"
	PerspectiveBuyer  Perspective = "buyer"
)

type Standing string

const (
	StandingWillReceive Standing = "will_receive"
	StandingWillPay     Standing = "will_pay"
	StandingSettled     Standing = "settled"
)

type CustomerBalance struct {
	CustomerKey string          `json:"customer_key"`
	Perspective Perspective     `json:"perspective"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Net         decimal.Decimal `json:"net"`
	Standing    Standing        `json:"standing"`
	Label       string          `json:"label"`
	Entries     int             `json:"entries"`
}

type CartView struct {
	SessionID      string          `json:"session_id"`
	Items          []CartLineItem  `json:"items"`
	TotalItems     int             `json:"total_items"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	SerialMismatch []string        `json:"serial_mismatch,omitempty"`
}

type AddItemRequest struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Options   SelectedOptions `json:"options"`
	Quantity  int             `json:"quantity"`
}

type UpdateLineRequest struct {
	Quantity *int             `json:"quantity,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

type SerialRequest struct {
	Serial string `json:"serial"`
}

type CheckoutRequest struct {
	SessionID      string          `json:"session_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Customer       *Customer       `json:"customer"`
	PaymentMode    string          `json:"payment_mode"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Note           string          `json:"note,omitempty"`
}

type CheckoutResponse struct {
	Order     Order         `json:"order"`
	Entries   []LedgerEntry `json:"entries"`
	Duplicate bool          `json:"duplicate"`
	Receipt   *Receipt      `json:"receipt,omitempty"`
}

type LedgerEntryRequest struct {
	Type    EntryType       `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Mode    string          `json:"mode,omitempty"`
	Note    string          `json:"note,omitempty"`
	OrderID string          `json:"order_id,omitempty"`
}

type LedgerResponse struct {
	Entries []LedgerEntry   `json:"entries"`
	Balance CustomerBalance `json:"balance"`
}

type Receipt struct {
	OrderID      string `json:"order_id"`
	PreviewText  string `json:"preview_text"`
	EscposBase64 string `json:"escpos_base64"`
	FileName     string `json:"file_name"`
	ShareURL     string `json:"share_url,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
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
