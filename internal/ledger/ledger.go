// Package ledger owns the customer debit/credit convention.
//
// Entries are recorded from the seller's side: a debit is value charged to the
// customer (a sale, a refund paid out), a credit is value received from or
// credited to the customer (a payment, a return). Balance folds entries into a
// net figure for either party.
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dukaan/backend/internal/domain"
	"dukaan/backend/internal/xid"
)

const currencySymbol = "₹"

func NewEntry(customerKey string, amount decimal.Decimal, typ domain.EntryType, note string, mode string, orderID string, at time.Time) (domain.LedgerEntry, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	entry := domain.LedgerEntry{
		ID:          xid.New("led"),
		CustomerKey: strings.TrimSpace(customerKey),
		Amount:      amount,
		Type:        typ,
		Note:        strings.TrimSpace(note),
		Mode:        strings.TrimSpace(mode),
		OrderID:     orderID,
		CreatedAt:   at,
	}
	if err := Validate(entry); err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

func Validate(e domain.LedgerEntry) error {
	if strings.TrimSpace(e.CustomerKey) == "" {
		return domain.Invalid("ledger entry needs a customer")
	}
	if !e.Amount.IsPositive() {
		return domain.Invalid("ledger amount must be greater than zero")
	}
	if err := domain.CheckMoney("ledger amount", e.Amount); err != nil {
		return err
	}
	if e.Type != domain.Debit && e.Type != domain.Credit {
		return domain.Invalid("unknown ledger entry type %q", e.Type)
	}
	return nil
}

// ForSale returns the entries a committed sale adds: the order total as a
// debit and, when something was paid at the counter, the payment as a credit.
func ForSale(order domain.Order) ([]domain.LedgerEntry, error) {
	entries := make([]domain.LedgerEntry, 0, 2)
	if order.TotalAmount.IsPositive() {
		e, err := NewEntry(order.Customer.Phone, order.TotalAmount, domain.Debit, "sale "+order.ID, order.Mode, order.ID, order.CreatedAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if order.Paid.IsPositive() {
		e, err := NewEntry(order.Customer.Phone, order.Paid, domain.Credit, "payment for "+order.ID, order.Mode, order.ID, order.CreatedAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ForReturn credits the refund to the customer. When the refund leaves the
// till in a payment mode, a matching debit records the payout.
func ForReturn(order domain.Order, refund decimal.Decimal, refundMode string, reason string, at time.Time) ([]domain.LedgerEntry, error) {
	if !refund.IsPositive() {
		return nil, nil
	}
	refundMode = strings.ToLower(strings.TrimSpace(refundMode))
	note := "return on " + order.ID
	if reason = strings.TrimSpace(reason); reason != "" {
		note += ": " + reason
	}

	entries := make([]domain.LedgerEntry, 0, 2)
	e, err := NewEntry(order.Customer.Phone, refund, domain.Credit, note, domain.PaymentCredit, order.ID, at)
	if err != nil {
		return nil, err
	}
	entries = append(entries, e)

	if PaysOut(refundMode) {
		e, err := NewEntry(order.Customer.Phone, refund, domain.Debit, "refund paid for "+order.ID, refundMode, order.ID, at)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// PaysOut reports whether a refund mode hands money back immediately.
func PaysOut(refundMode string) bool {
	switch refundMode {
	case domain.PaymentCash, domain.PaymentUPI, domain.PaymentCard:
		return true
	default:
		return false
	}
}

// Balance is independent of entry order. From the seller's perspective a
// positive net means the customer owes the shop.
func Balance(customerKey string, entries []domain.LedgerEntry, perspective domain.Perspective) domain.CustomerBalance {
	if perspective != domain.PerspectiveBuyer {
		perspective = domain.PerspectiveSeller
	}

	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch e.Type {
		case domain.Debit:
			debit = debit.Add(e.Amount)
		case domain.Credit:
			credit = credit.Add(e.Amount)
		}
	}

	net := debit.Sub(credit)
	if perspective == domain.PerspectiveBuyer {
		net = net.Neg()
	}

	b := domain.CustomerBalance{
		CustomerKey: customerKey,
		Perspective: perspective,
		TotalDebit:  debit,
		TotalCredit: credit,
		Net:         net,
		Entries:     len(entries),
	}
	switch net.Sign() {
	case 1:
		b.Standing = domain.StandingWillReceive
	case -1:
		b.Standing = domain.StandingWillPay
	default:
		b.Standing = domain.StandingSettled
	}
	b.Label = Label(b)
	return b
}

func Label(b domain.CustomerBalance) string {
	switch b.Standing {
	case domain.StandingWillReceive:
		return "you will get " + currencySymbol + formatAmount(b.Net)
	case domain.StandingWillPay:
		return "you will give " + currencySymbol + formatAmount(b.Net.Abs())
	default:
		return "settled"
	}
}

func formatAmount(d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return d.StringFixed(0)
	}
	return d.StringFixed(2)
}
