package returns

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dukaan/backend/internal/domain"
)

func testOrder() *domain.Order {
	return &domain.Order{
		ID:          "ord-1",
		Customer:    domain.Customer{Name: "Ravi", Phone: "9000000001"},
		TotalAmount: decimal.NewFromInt(700),
		Paid:        decimal.NewFromInt(700),
		Mode:        domain.PaymentCash,
		Products: []domain.OrderProduct{
			{ProductID: "var-a", Name: "Charger", Price: decimal.NewFromInt(250), Quantity: 2},
			{ProductID: "var-b", Name: "Cable", Price: decimal.NewFromInt(100), Quantity: 2},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func requireInvalid(t *testing.T, err error) {
	t.Helper()
	var invalid *domain.ValidationError
	require.True(t, errors.As(err, &invalid), "expected validation error, got %v", err)
}

func TestFullReturnOfLine(t *testing.T) {
	order := testOrder()

	ret, err := Build(order, domain.ReturnRequest{
		Items:  []domain.ReturnItem{{ProductID: "var-a", Quantity: 2}},
		Reason: "defective",
	}, "admin", time.Time{})
	require.NoError(t, err)

	assert.True(t, ret.RefundAmount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 2, order.Products[0].ReturnedQuantity)
	assert.Equal(t, domain.OrderPartiallyReturned, ret.OrderStatus)
	assert.Equal(t, domain.PaymentCredit, ret.RefundMode)
	require.Len(t, ret.Entries, 1)
	assert.Equal(t, domain.Credit, ret.Entries[0].Type)

	_, err = Build(order, domain.ReturnRequest{
		Items:  []domain.ReturnItem{{ProductID: "var-a", Quantity: 1}},
		Reason: "again",
	}, "admin", time.Time{})
	requireInvalid(t, err)
	assert.Equal(t, 2, order.Products[0].ReturnedQuantity)
}

func TestFullyReturnedOrder(t *testing.T) {
	order := testOrder()

	ret, err := Build(order, domain.ReturnRequest{
		Items: []domain.ReturnItem{
			{ProductID: "var-a", Quantity: 2},
			{ProductID: "var-b", Quantity: 2},
		},
		Reason:     "changed mind",
		RefundMode: "cash",
	}, "", time.Time{})
	require.NoError(t, err)

	assert.True(t, ret.RefundAmount.Equal(decimal.NewFromInt(700)))
	assert.Equal(t, domain.OrderFullyReturned, ret.OrderStatus)
	assert.Equal(t, domain.OrderFullyReturned, order.Status())
	require.Len(t, ret.Entries, 2)
	assert.Equal(t, domain.Debit, ret.Entries[1].Type)
}

func TestValidationOrder(t *testing.T) {
	order := testOrder()

	_, err := Build(order, domain.ReturnRequest{Reason: "   "}, "", time.Time{})
	requireInvalid(t, err)
	assert.Contains(t, err.Error(), "no items")

	_, err = Build(order, domain.ReturnRequest{
		Items:  []domain.ReturnItem{{ProductID: "var-a", Quantity: 1}},
		Reason: " \t ",
	}, "", time.Time{})
	requireInvalid(t, err)
	assert.Contains(t, err.Error(), "reason")

	_, err = Build(order, domain.ReturnRequest{
		Items:  []domain.ReturnItem{{ProductID: "var-zzz", Quantity: 1}},
		Reason: "x",
	}, "", time.Time{})
	requireInvalid(t, err)

	_, err = Build(order, domain.ReturnRequest{
		Items:  []domain.ReturnItem{{ProductID: "var-a", Quantity: 0}},
		Reason: "x",
	}, "", time.Time{})
	requireInvalid(t, err)

	_, err = Build(order, domain.ReturnRequest{
		Items:      []domain.ReturnItem{{ProductID: "var-a", Quantity: 1}},
		Reason:     "x",
		RefundMode: "gold",
	}, "", time.Time{})
	requireInvalid(t, err)

	for _, p := range order.Products {
		assert.Zero(t, p.ReturnedQuantity)
	}
}

func TestDuplicateItemsAreSummed(t *testing.T) {
	order := testOrder()

	_, err := Build(order, domain.ReturnRequest{
		Items: []domain.ReturnItem{
			{ProductID: "var-b", Quantity: 1},
			{ProductID: "var-b", Quantity: 2},
		},
		Reason: "x",
	}, "", time.Time{})
	requireInvalid(t, err)
	assert.Zero(t, order.Products[1].ReturnedQuantity)

	ret, err := Build(order, domain.ReturnRequest{
		Items: []domain.ReturnItem{
			{ProductID: "var-b", Quantity: 1},
			{ProductID: "var-b", Quantity: 1},
		},
		Reason: "x",
	}, "", time.Time{})
	require.NoError(t, err)
	require.Len(t, ret.Lines, 1)
	assert.Equal(t, 2, ret.Lines[0].Quantity)
	assert.True(t, ret.RefundAmount.Equal(decimal.NewFromInt(200)))
}

func TestClientMaxQuantityIsIgnored(t *testing.T) {
	order := testOrder()
	order.Products[0].ReturnedQuantity = 1

	_, err := Build(order, domain.ReturnRequest{
		Items:  []domain.ReturnItem{{ProductID: "var-a", Quantity: 2, MaxQuantity: 2}},
		Reason: "stale screen",
	}, "", time.Time{})
	requireInvalid(t, err)
}

func TestRefundUsesOriginalPrice(t *testing.T) {
	order := testOrder()
	order.Products[1].Price = decimal.RequireFromString("89.99")

	ret, err := Build(order, domain.ReturnRequest{
		Items:  []domain.ReturnItem{{ProductID: "var-b", Quantity: 1}},
		Reason: "x",
	}, "", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "89.99", ret.RefundAmount.StringFixed(2))
}
