// Package checkout freezes a cart into an order and the ledger entries that
// record it. Nothing here performs I/O; persisting the result is the store's job.
package checkout

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dukaan/backend/internal/cart"
	"dukaan/backend/internal/domain"
	"dukaan/backend/internal/ledger"
	"dukaan/backend/internal/xid"
)

type Options struct {
	OrderID        string
	IdempotencyKey string
	Note           string
	CreatedBy      string
	Now            time.Time
}

// BuildOrder snapshots every cart line into an order. Paid is forced to zero
// for pay-later sales and must otherwise lie within [0, total].
func BuildOrder(c *cart.Cart, customer *domain.Customer, payment *domain.Payment, opts Options) (*domain.Order, []domain.LedgerEntry, error) {
	if customer == nil {
		return nil, nil, domain.Invalid("customer is required")
	}
	cust := domain.Customer{
		Name:    strings.TrimSpace(customer.Name),
		Phone:   strings.TrimSpace(customer.Phone),
		Address: strings.TrimSpace(customer.Address),
	}
	if cust.Name == "" || cust.Phone == "" {
		return nil, nil, domain.Invalid("customer name and phone are required")
	}
	if payment == nil || strings.TrimSpace(payment.Mode) == "" {
		return nil, nil, domain.Invalid("payment mode is required")
	}
	mode := strings.ToLower(strings.TrimSpace(payment.Mode))
	if !domain.IsPaymentMode(mode) {
		return nil, nil, domain.Invalid("unsupported payment mode %q", payment.Mode)
	}
	if c == nil || c.IsEmpty() {
		return nil, nil, domain.Invalid("cart is empty")
	}

	lines := c.Lines()
	total := decimal.Zero
	products := make([]domain.OrderProduct, 0, len(lines))
	for _, line := range lines {
		if err := domain.CheckMoney("price of "+line.ID(), line.Price); err != nil {
			return nil, nil, err
		}
		products = append(products, toOrderProduct(line))
		total = total.Add(line.LineTotal())
	}

	paid := payment.Amount
	if mode == domain.PaymentPayLater {
		paid = decimal.Zero
	}
	if err := domain.CheckMoney("paid amount", paid); err != nil {
		return nil, nil, err
	}
	if paid.IsNegative() || paid.GreaterThan(total) {
		return nil, nil, domain.Invalid("paid amount %s must be between 0 and %s", paid.StringFixed(2), total.StringFixed(2))
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	orderID := opts.OrderID
	if orderID == "" {
		orderID = xid.New("ord")
	}
	note := strings.TrimSpace(opts.Note)
	if note == "" {
		note = strings.TrimSpace(payment.Note)
	}

	order := &domain.Order{
		ID:             orderID,
		IdempotencyKey: opts.IdempotencyKey,
		Customer:       cust,
		TotalAmount:    total,
		Paid:           paid,
		Mode:           mode,
		Note:           note,
		Products:       products,
		CreatedBy:      opts.CreatedBy,
		CreatedAt:      now,
	}

	entries, err := ledger.ForSale(*order)
	if err != nil {
		return nil, nil, err
	}
	return order, entries, nil
}

func toOrderProduct(line domain.CartLineItem) domain.OrderProduct {
	opts := line.SelectedOptions
	return domain.OrderProduct{
		ProductID:        line.Variant.ID,
		ParentID:         line.Product.ID,
		Name:             line.Product.Name,
		Category:         line.Product.Category,
		Image:            firstNonEmpty(opts.Image, line.Variant.Image, line.Product.Image),
		Brand:            firstNonEmpty(opts.Brand, line.Variant.Brand),
		Color:            firstNonEmpty(opts.Color, line.Variant.Color.Name),
		Storage:          firstNonEmpty(opts.Storage, line.Variant.Storage),
		Price:            line.Price,
		PurchasePrice:    line.Variant.PurchasePrice,
		Quantity:         line.Quantity,
		ReturnedQuantity: 0,
		Serials:          append([]string(nil), line.Serials...),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
