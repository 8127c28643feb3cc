package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dukaan/backend/internal/cart"
	"dukaan/backend/internal/domain"
	"dukaan/backend/internal/session"
	"dukaan/backend/internal/store"
	"dukaan/backend/internal/store/memory"
)

type fixture struct {
	svc  *Service
	repo *memory.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo, err := memory.NewSeeded(zap.NewNop(), store.SeedAccounts{})
	require.NoError(t, err)
	return fixture{
		svc:  New(repo, session.NewMemoryStore(time.Hour), "Sharma Mobiles"),
		repo: repo,
	}
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

var farah = &domain.Customer{Name: "Farah", Phone: "9123456780"}

func addByID(t *testing.T, svc *Service, sid string, productID string, variantID string, qty int) domain.CartView {
	t.Helper()
	view, err := svc.AddItem(cashierCtx(), sid, domain.AddItemRequest{ProductID: productID, VariantID: variantID, Quantity: qty})
	require.NoError(t, err)
	return view
}

func TestAddItemRespectsStock(t *testing.T) {
	f := newFixture(t)
	ctx := cashierCtx()
	opts := domain.SelectedOptions{Brand: "Samsung", Color: "Black", Storage: "256GB"}

	for i := 1; i <= 3; i++ {
		ok, err := f.svc.CanAddItem(ctx, "till-1", "prod-a15", opts, 1)
		require.NoError(t, err)
		require.True(t, ok)

		view, err := f.svc.AddItem(ctx, "till-1", domain.AddItemRequest{ProductID: "prod-a15", Options: opts, Quantity: 1})
		require.NoError(t, err)
		assert.Equal(t, i, view.TotalItems)
	}

	ok, err := f.svc.CanAddItem(ctx, "till-1", "prod-a15", opts, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.AddItem(ctx, "till-1", domain.AddItemRequest{ProductID: "prod-a15", Options: opts, Quantity: 1})
	var conflict *domain.StockConflictError
	require.True(t, errors.As(err, &conflict))

	view, err := f.svc.GetCart(ctx, "till-1")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
}

func TestAddItemResolvesWildcardOptions(t *testing.T) {
	f := newFixture(t)

	view, err := f.svc.AddItem(cashierCtx(), "till-1", domain.AddItemRequest{
		ProductID: "prod-a15",
		Options:   domain.SelectedOptions{Brand: "Samsung", Color: "blue"},
	})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "var-a15-blu-128", view.Items[0].ID())
	assert.Equal(t, 1, view.Items[0].Quantity)

	_, err = f.svc.AddItem(cashierCtx(), "till-1", domain.AddItemRequest{
		ProductID: "prod-a15",
		Options:   domain.SelectedOptions{Brand: "Apple"},
	})
	var invalid *domain.ValidationError
	require.True(t, errors.As(err, &invalid))

	_, err = f.svc.AddItem(cashierCtx(), "till-1", domain.AddItemRequest{
		ProductID: "prod-a15",
		Options:   domain.SelectedOptions{Brand: " samsung "},
	})
	require.True(t, errors.As(err, &invalid))

	ok, err := f.svc.CanAddItem(cashierCtx(), "till-1", "prod-a15", domain.SelectedOptions{}, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddItem(cashierCtx(), "till-1", domain.AddItemRequest{ProductID: "prod-missing"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateLineQuantityAndPrice(t *testing.T) {
	f := newFixture(t)
	ctx := cashierCtx()
	addByID(t, f.svc, "till-1", "prod-cable", "var-cable-c", 1)

	qty := 4
	price := decimal.NewFromInt(199)
	view, err := f.svc.UpdateLine(ctx, "till-1", "var-cable-c", domain.UpdateLineRequest{Quantity: &qty, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, 4, view.TotalItems)
	assert.True(t, view.TotalPrice.Equal(decimal.NewFromInt(796)))

	zero := 0
	view, err = f.svc.UpdateLine(ctx, "till-1", "var-cable-c", domain.UpdateLineRequest{Quantity: &zero})
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	_, err = f.svc.UpdateLine(ctx, "till-1", "var-cable-c", domain.UpdateLineRequest{Price: &price})
	require.ErrorIs(t, err, cart.ErrLineNotFound)
}

func TestSerialEditing(t *testing.T) {
	f := newFixture(t)
	ctx := cashierCtx()
	addByID(t, f.svc, "till-1", "prod-a15", "var-a15-blk-128", 2)

	view, err := f.svc.AddSerial(ctx, "till-1", "var-a15-blk-128", "IMEI-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"var-a15-blk-128"}, view.SerialMismatch)

	view, err = f.svc.AddSerial(ctx, "till-1", "var-a15-blk-128", "IMEI-2")
	require.NoError(t, err)
	assert.Empty(t, view.SerialMismatch)

	view, err = f.svc.UpdateSerial(ctx, "till-1", "var-a15-blk-128", 0, "IMEI-9")
	require.NoError(t, err)
	assert.Equal(t, []string{"IMEI-9", "IMEI-2"}, view.Items[0].Serials)

	view, err = f.svc.RemoveSerial(ctx, "till-1", "var-a15-blk-128", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"IMEI-9"}, view.Items[0].Serials)

	_, err = f.svc.RemoveSerial(ctx, "till-1", "var-a15-blk-128", 5)
	var invalid *domain.ValidationError
	require.True(t, errors.As(err, &invalid))
}

func TestCheckoutCashSettlesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := cashierCtx()
	addByID(t, f.svc, "till-1", "prod-charger", "var-chg-25w", 1)
	addByID(t, f.svc, "till-1", "prod-cable", "var-cable-c", 2)

	resp, err := f.svc.Checkout(ctx, domain.CheckoutRequest{
		SessionID:      "till-1",
		IdempotencyKey: "idem-1",
		Customer:       farah,
		PaymentMode:    "Cash",
		PaidAmount:     decimal.NewFromInt(1497),
	})
	require.NoError(t, err)
	assert.False(t, resp.Duplicate)
	assert.True(t, resp.Order.TotalAmount.Equal(decimal.NewFromInt(1497)))
	assert.Equal(t, domain.PaymentCash, resp.Order.Mode)
	assert.Equal(t, "cashier", resp.Order.CreatedBy)
	assert.Len(t, resp.Entries, 2)
	require.NotNil(t, resp.Receipt)
	assert.Contains(t, resp.Receipt.PreviewText, "Sharma Mobiles")

	view, err := f.svc.GetCart(ctx, "till-1")
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	v, err := f.repo.GetVariant(ctx, "var-cable-c")
	require.NoError(t, err)
	assert.Equal(t, 98, v.Quantity)

	bal, err := f.svc.Balance(ctx, farah.Phone, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StandingSettled, bal.Standing)

	logs, err := f.svc.ListAuditLogs(ctx, "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "checkout", logs[0].Action)
	assert.Equal(t, "cashier", logs[0].ActorUsername)
}

func TestCheckoutPayLaterLeavesDue(t *testing.T) {
	f := newFixture(t)
	ctx := cashierCtx()
	addByID(t, f.svc, "till-1", "prod-charger", "var-chg-25w", 1)

	resp, err := f.svc.Checkout(ctx, domain.CheckoutRequest{
		SessionID:   "till-1",
		Customer:    farah,
		PaymentMode: domain.PaymentPayLater,
		PaidAmount:  decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	assert.True(t, resp.Order.Paid.IsZero())
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, domain.Debit, resp.Entries[0].Type)

	bal, err := f.svc.Balance(ctx, farah.Phone, "seller")
	require.NoError(t, err)
	assert.Equal(t, "you will get ₹999", bal.Label)

	buyer, err := f.svc.Balance(ctx, farah.Phone, "buyer")
	require.NoError(t, err)
	assert.Equal(t, domain.StandingWillPay, buyer.Standing)

	_, err = f.svc.RecordPayment(ctx, farah.Phone, decimal.NewFromInt(999), "upi", "settled over phone")
	require.NoError(t, err)
	bal, err = f.svc.Balance(ctx, farah.Phone, "seller")
	require.NoError(t, err)
	assert.Equal(t, domain.StandingSettled, bal.Standing)
}

func TestCheckoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := cashierCtx()
	addByID(t, f.svc, "till-1", "prod-charger", "var-chg-25w", 2)

	req := domain.CheckoutRequest{
		SessionID:      "till-1",
		IdempotencyKey: "idem-retry",
		Customer:       farah,
		PaymentMode:    domain.PaymentCard,
		PaidAmount:     decimal.NewFromInt(1998),
	}
	first, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)

	second, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Len(t, second.Entries, 2)

	v, _ := f.repo.GetVariant(ctx, "var-chg-25w")
	assert.Equal(t, 38, v.Quantity)
	orders, err := f.svc.ListCustomerOrders(ctx, farah.Phone, 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCheckoutValidationKeepsCart(t *testing.T) {
	f := newFixture(t)
	ctx := cashierCtx()

	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{SessionID: "till-1", Customer: farah, PaymentMode: "cash"})
	var invalid *domain.ValidationError
	require.True(t, errors.As(err, &invalid))

	addByID(t, f.svc, "till-1", "prod-cable", "var-cable-c", 1)
	for _, req := range []domain.CheckoutRequest{
		{SessionID: "till-1", PaymentMode: "cash"},
		{SessionID: "till-1", Customer: farah},
		{SessionID: "till-1", Customer: farah, PaymentMode: "barter"},
		{SessionID: "till-1", Customer: farah, PaymentMode: "cash", PaidAmount: decimal.NewFromInt(250)},
	} {
		_, err := f.svc.Checkout(ctx, req)
		require.True(t, errors.As(err, &invalid), "request %+v", req)
	}

	view, err := f.svc.GetCart(ctx, "till-1")
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)
}

func TestCheckoutStockConflictAcrossSessions(t *testing.T) {
	f := newFixture(t)
	ctx := cashierCtx()
	addByID(t, f.svc, "till-1", "prod-a15", "var-a15-blk-256", 3)
	addByID(t, f.svc, "till-2", "prod-a15", "var-a15-blk-256", 2)

	_, err := f.svc.Checkout(ctx, domain.CheckoutRequest{SessionID: "till-1", Customer: farah, PaymentMode: "paylater"})
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{SessionID: "till-2", Customer: farah, PaymentMode: "paylater"})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	view, err := f.svc.GetCart(ctx, "till-2")
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalItems)
}

func TestFullReturnAsStoreCredit(t *testing.T) {
	f := newFixture(t)
	ctx := cashierCtx()
	addByID(t, f.svc, "till-1", "prod-cable", "var-cable-c", 2)
	resp, err := f.svc.Checkout(ctx, domain.CheckoutRequest{
		SessionID: "till-1", Customer: farah, PaymentMode: "cash", PaidAmount: decimal.NewFromInt(498),
	})
	require.NoError(t, err)

	ret, err := f.svc.ProcessReturn(ctx, domain.ReturnRequest{
		OrderID: resp.Order.ID,
		Items:   []domain.ReturnItem{{ProductID: "var-cable-c", Quantity: 2, MaxQuantity: 99}},
		Reason:  "wrong connector",
	})
	require.NoError(t, err)
	assert.True(t, ret.RefundAmount.Equal(decimal.NewFromInt(498)))
	assert.Equal(t, domain.OrderFullyReturned, ret.OrderStatus)
	assert.Equal(t, "cashier", ret.ProcessedBy)

	order, err := f.svc.GetOrder(ctx, resp.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFullyReturned, order.Status())

	bal, err := f.svc.Balance(ctx, farah.Phone, "seller")
	require.NoError(t, err)
	assert.Equal(t, "you will give ₹498", bal.Label)

	v, _ := f.repo.GetVariant(ctx, "var-cable-c")
	assert.Equal(t, 100, v.Quantity)

	_, err = f.svc.ProcessReturn(ctx, domain.ReturnRequest{
		OrderID: resp.Order.ID,
		Items:   []domain.ReturnItem{{ProductID: "var-cable-c", Quantity: 1}},
		Reason:  "again",
	})
	var invalid *domain.ValidationError
	require.True(t, errors.As(err, &invalid))
}

func TestPartialReturnPaidOutInCash(t *testing.T) {
	f := newFixture(t)
	ctx := cashierCtx()
	addByID(t, f.svc, "till-1", "prod-cable", "var-cable-c", 2)
	resp, err := f.svc.Checkout(ctx, domain.CheckoutRequest{
		SessionID: "till-1", Customer: farah, PaymentMode: "cash", PaidAmount: decimal.NewFromInt(498),
	})
	require.NoError(t, err)

	ret, err := f.svc.ProcessReturn(ctx, domain.ReturnRequest{
		OrderID:    resp.Order.ID,
		Items:      []domain.ReturnItem{{ProductID: "var-cable-c", Quantity: 1}},
		Reason:     "spare not needed",
		RefundMode: "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPartiallyReturned, ret.OrderStatus)
	assert.Len(t, ret.Entries, 2)

	bal, err := f.svc.Balance(ctx, farah.Phone, "seller")
	require.NoError(t, err)
	assert.Equal(t, domain.StandingSettled, bal.Standing)

	rets, err := f.svc.ListReturns(ctx, resp.Order.ID)
	require.NoError(t, err)
	assert.Len(t, rets, 1)
}

func TestProcessReturnUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ProcessReturn(cashierCtx(), domain.ReturnRequest{
		OrderID: "ord-missing",
		Items:   []domain.ReturnItem{{ProductID: "var-cable-c", Quantity: 1}},
		Reason:  "x",
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestManualLedgerEntries(t *testing.T) {
	f := newFixture(t)
	ctx := cashierCtx()

	_, err := f.svc.RecordPayout(ctx, "9000000009", decimal.NewFromInt(200), "cash", "advance")
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, "9000000009", decimal.NewFromInt(500), "upi", "")
	require.NoError(t, err)

	resp, err := f.svc.Ledger(ctx, "9000000009", "seller")
	require.NoError(t, err)
	assert.Len(t, resp.Entries, 2)
	assert.True(t, resp.Balance.Net.Equal(decimal.NewFromInt(-300)))
	assert.Equal(t, "you will give ₹300", resp.Balance.Label)

	_, err = f.svc.RecordPayment(ctx, "9000000009", decimal.Zero, "cash", "")
	var invalid *domain.ValidationError
	require.True(t, errors.As(err, &invalid))

	_, err = f.svc.AppendLedgerEntry(ctx, "9000000009", domain.LedgerEntryRequest{Type: domain.Credit, Amount: decimal.NewFromInt(1), Mode: "barter"})
	require.True(t, errors.As(err, &invalid))

	_, err = f.svc.Ledger(ctx, "9000000009", "auditor")
	require.True(t, errors.As(err, &invalid))
}

func TestConcurrentAddsOnOneSession(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.AddItem(cashierCtx(), "till-1", domain.AddItemRequest{ProductID: "prod-cable", VariantID: "var-cable-c", Quantity: 1})
		}()
	}
	wg.Wait()

	view, err := f.svc.GetCart(cashierCtx(), "till-1")
	require.NoError(t, err)
	assert.Equal(t, 20, view.TotalItems)
	assert.Zero(t, f.svc.locks.size())
}

func TestListAuditLogsRejectsBadDate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListAuditLogs(context.Background(), "01/03/2026", 10)
	var invalid *domain.ValidationError
	require.True(t, errors.As(err, &invalid))
}
