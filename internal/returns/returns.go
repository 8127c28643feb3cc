// Package returns validates a return against an order and computes its effect.
// Callers must hold whatever lock serializes returns on the order; the
// function itself only reads and updates the value it is given.
package returns

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dukaan/backend/internal/domain"
	"dukaan/backend/internal/ledger"
	"dukaan/backend/internal/xid"
)

// Build checks req against order and, on success, advances the returned
// quantities on order in place. Checks run in a fixed order: items present,
// reason given, then every line. The first failure is returned and order is
// left untouched.
func Build(order *domain.Order, req domain.ReturnRequest, processedBy string, at time.Time) (*domain.Return, error) {
	if order == nil {
		return nil, domain.Invalid("order is required")
	}
	if len(req.Items) == 0 {
		return nil, domain.Invalid("no items selected for return")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, domain.Invalid("return reason is required")
	}
	refundMode := strings.ToLower(strings.TrimSpace(req.RefundMode))
	if refundMode == "" {
		refundMode = domain.PaymentCredit
	}
	if refundMode != domain.PaymentCredit && !ledger.PaysOut(refundMode) {
		return nil, domain.Invalid("unsupported refund mode %q", req.RefundMode)
	}

	positions := make(map[string]int, len(order.Products))
	for i, p := range order.Products {
		positions[p.ProductID] = i
	}

	requested := make(map[string]int, len(req.Items))
	sequence := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		id := strings.TrimSpace(item.ProductID)
		idx, ok := positions[id]
		if !ok {
			return nil, domain.Invalid("product %s is not part of order %s", id, order.ID)
		}
		if item.Quantity <= 0 {
			return nil, domain.Invalid("return quantity for %s must be at least 1", id)
		}
		if _, seen := requested[id]; !seen {
			sequence = append(sequence, id)
		}
		requested[id] += item.Quantity
		if remaining := order.Products[idx].Remaining(); requested[id] > remaining {
			return nil, domain.Invalid("cannot return %d of %s, only %d remaining", requested[id], id, remaining)
		}
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	lines := make([]domain.ReturnLine, 0, len(sequence))
	refund := decimal.Zero
	for _, id := range sequence {
		p := order.Products[positions[id]]
		qty := requested[id]
		amount := p.Price.Mul(decimal.NewFromInt(int64(qty)))
		lines = append(lines, domain.ReturnLine{
			ProductID: id,
			Name:      p.Name,
			Quantity:  qty,
			UnitPrice: p.Price,
			Amount:    amount,
		})
		refund = refund.Add(amount)
	}

	entries, err := ledger.ForReturn(*order, refund, refundMode, reason, at)
	if err != nil {
		return nil, err
	}

	for _, id := range sequence {
		order.Products[positions[id]].ReturnedQuantity += requested[id]
	}

	return &domain.Return{
		ID:           xid.New("ret"),
		OrderID:      order.ID,
		Reason:       reason,
		RefundMode:   refundMode,
		Lines:        lines,
		RefundAmount: refund,
		OrderStatus:  order.Status(),
		Entries:      entries,
		ProcessedBy:  processedBy,
		CreatedAt:    at,
	}, nil
}
