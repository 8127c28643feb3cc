// Package cart holds the in-progress sale: line items keyed by variant id,
// checked against the stock known when each line was touched.
package cart

import (
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"dukaan/backend/internal/domain"
)

var ErrLineNotFound = errors.New("cart line not found")

// Cart is safe for concurrent use. Lines keep insertion order.
type Cart struct {
	mu    sync.Mutex
	lines []domain.CartLineItem
}

func New() *Cart {
	return &Cart{}
}

type Snapshot struct {
	Items []domain.CartLineItem `json:"items"`
}

func FromSnapshot(s Snapshot) *Cart {
	c := New()
	for _, item := range s.Items {
		if item.Quantity <= 0 || item.Variant.ID == "" {
			continue
		}
		c.lines = append(c.lines, cloneLine(item))
	}
	return c
}

func (c *Cart) Snapshot() Snapshot {
	return Snapshot{Items: c.Lines()}
}

// AddItem merges into the line for variant.ID or inserts a new one. A merge
// grows the existing line by qty, not by one, so a successful call always
// raises TotalItems by qty. The resulting quantity may not exceed
// variant.Quantity; on conflict the cart is left unchanged and a
// *domain.StockConflictError is returned.
func (c *Cart) AddItem(product domain.Product, variant domain.ProductVariant, opts domain.SelectedOptions, qty int) error {
	if variant.ID == "" {
		return domain.Invalid("variant id is required")
	}
	if qty < 1 {
		return domain.Invalid("quantity must be at least 1")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexOf(variant.ID); idx >= 0 {
		line := &c.lines[idx]
		next := line.Quantity + qty
		if next > variant.Quantity {
			return &domain.StockConflictError{VariantID: variant.ID, Requested: next, Available: variant.Quantity}
		}
		line.Quantity = next
		line.Variant = variant
		return nil
	}

	if qty > variant.Quantity {
		return &domain.StockConflictError{VariantID: variant.ID, Requested: qty, Available: variant.Quantity}
	}
	c.lines = append(c.lines, domain.CartLineItem{
		Product: domain.ProductRef{
			ID:       product.ID,
			Name:     product.Name,
			Category: product.Category,
			Image:    product.Image,
		},
		Variant:         variant,
		Quantity:        qty,
		Price:           variant.Price,
		SelectedOptions: fillOptions(opts, variant, product),
		Serials:         []string{},
	})
	return nil
}

// CanAddItem reports whether qty more units of the variant matching opts
// would fit the stock. It has no side effects.
func (c *Cart) CanAddItem(ix *VariantIndex, opts domain.SelectedOptions, qty int) bool {
	if ix == nil || qty < 1 {
		return false
	}
	variant, ok := ix.Resolve(opts)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing := 0
	if idx := c.indexOf(variant.ID); idx >= 0 {
		existing = c.lines[idx].Quantity
	}
	return existing+qty <= variant.Quantity
}

// SyncVariant replaces the stock snapshot of the matching line, if any.
// The line quantity is not trimmed when stock has dropped below it; checkout
// is the authority on stock.
func (c *Cart) SyncVariant(variant domain.ProductVariant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexOf(variant.ID); idx >= 0 {
		c.lines[idx].Variant = variant
	}
}

// UpdateQuantity sets the line quantity. Values below one remove the line.
func (c *Cart) UpdateQuantity(lineID string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	if qty <= 0 {
		c.removeAt(idx)
		return nil
	}
	if available := c.lines[idx].Variant.Quantity; qty > available {
		return &domain.StockConflictError{VariantID: lineID, Requested: qty, Available: available}
	}
	c.lines[idx].Quantity = qty
	return nil
}

// UpdatePrice overrides the unit price. Negative prices are clamped to zero;
// prices with more than two decimal places are rejected.
func (c *Cart) UpdatePrice(lineID string, price decimal.Decimal) error {
	if err := domain.CheckMoney("price", price); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	if price.IsNegative() {
		price = decimal.Zero
	}
	c.lines[idx].Price = price
	return nil
}

func (c *Cart) RemoveItem(lineID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.removeAt(idx)
	return nil
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

func (c *Cart) AddSerial(lineID string, serial string) error {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return domain.Invalid("serial is blank")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.lines[idx].Serials = append(c.lines[idx].Serials, serial)
	return nil
}

func (c *Cart) UpdateSerial(lineID string, index int, serial string) error {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return domain.Invalid("serial is blank")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	serials := c.lines[idx].Serials
	if index < 0 || index >= len(serials) {
		return domain.Invalid("serial index %d out of range", index)
	}
	serials[index] = serial
	return nil
}

func (c *Cart) RemoveSerial(lineID string, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	serials := c.lines[idx].Serials
	if index < 0 || index >= len(serials) {
		return domain.Invalid("serial index %d out of range", index)
	}
	c.lines[idx].Serials = append(serials[:index:index], serials[index+1:]...)
	return nil
}

// SerialMismatches lists lines that carry serials but not one per unit.
func (c *Cart) SerialMismatches() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	for _, line := range c.lines {
		if len(line.Serials) > 0 && len(line.Serials) != line.Quantity {
			ids = append(ids, line.ID())
		}
	}
	return ids
}

func (c *Cart) Line(lineID string) (domain.CartLineItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(lineID)
	if idx < 0 {
		return domain.CartLineItem{}, false
	}
	return cloneLine(c.lines[idx]), true
}

func (c *Cart) Lines() []domain.CartLineItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.CartLineItem, len(c.lines))
	for i, line := range c.lines {
		out[i] = cloneLine(line)
	}
	return out
}

func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

func (c *Cart) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, line := range c.lines {
		total += line.Quantity
	}
	return total
}

func (c *Cart) TotalPrice() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

func (c *Cart) indexOf(lineID string) int {
	for i := range c.lines {
		if c.lines[i].Variant.ID == lineID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}

func fillOptions(opts domain.SelectedOptions, v domain.ProductVariant, p domain.Product) domain.SelectedOptions {
	if strings.TrimSpace(opts.Brand) == "" {
		opts.Brand = v.Brand
	}
	if strings.TrimSpace(opts.Color) == "" {
		opts.Color = v.Color.Name
	}
	if strings.TrimSpace(opts.Storage) == "" {
		opts.Storage = v.Storage
	}
	if strings.TrimSpace(opts.Image) == "" {
		opts.Image = v.Image
		if opts.Image == "" {
			opts.Image = p.Image
		}
	}
	return opts
}

func cloneLine(line domain.CartLineItem) domain.CartLineItem {
	line.Serials = append([]string{}, line.Serials...)
	return line
}
