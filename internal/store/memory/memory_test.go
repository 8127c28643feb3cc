package memory

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
	"golang.org/x/crypto/bcrypt"

	"dukaan/backend/internal/domain"
	"dukaan/backend/internal/store"
)

func newSeeded(t *testing.T) *Store {
	t.Helper()
	s, err := NewSeeded(zap.NewNop(), store.SeedAccounts{})
	require.NoError(t, err)
	return s
}

func testOrder(id string, variantID string, qty int) domain.Order {
	return domain.Order{
		ID:             id,
		IdempotencyKey: "idem-" + id,
		Customer:       domain.Customer{Name: "Kiran", Phone: "9000000002"},
		TotalAmount:    decimal.NewFromInt(int64(249 * qty)),
		Paid:           decimal.NewFromInt(int64(249 * qty)),
		Mode:           domain.PaymentCash,
		Products: []domain.OrderProduct{
			{ProductID: variantID, ParentID: "prod-cable", Name: "USB-C Cable 1m", Price: decimal.NewFromInt(249), Quantity: qty},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func saleEntries(o domain.Order) []domain.LedgerEntry {
	return []domain.LedgerEntry{
		{ID: "led-" + o.ID + "-d", CustomerKey: o.Customer.Phone, Amount: o.TotalAmount, Type: domain.Debit, OrderID: o.ID},
		{ID: "led-" + o.ID + "-c", CustomerKey: o.Customer.Phone, Amount: o.Paid, Type: domain.Credit, OrderID: o.ID},
	}
}

func TestCreateOrderDecrementsStockAndWritesLedger(t *testing.T) {
	ctx := context.Background()
	s := newSeeded(t)
	o := testOrder("ord-1", "var-cable-c", 3)

	created, err := s.CreateOrder(ctx, o, saleEntries(o))
	require.NoError(t, err)
	assert.Equal(t, "ord-1", created.ID)

	v, err := s.GetVariant(ctx, "var-cable-c")
	require.NoError(t, err)
	assert.Equal(t, 97, v.Quantity)

	entries, err := s.ReadLedger(ctx, "9000000002")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	c, err := s.FindCustomerByPhone(ctx, "9000000002")
	require.NoError(t, err)
	assert.Equal(t, "Kiran", c.Name)

	byKey, err := s.FindOrderByIdempotency(ctx, "idem-ord-1")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", byKey.ID)
}

func TestCreateOrderRejectsDuplicateKey(t *testing.T) {
	ctx := context.Background()
	s := newSeeded(t)
	o := testOrder("ord-1", "var-cable-c", 1)
	_, err := s.CreateOrder(ctx, o, nil)
	require.NoError(t, err)

	again := o
	again.ID = "ord-2"
	_, err = s.CreateOrder(ctx, again, nil)
	require.ErrorIs(t, err, store.ErrDuplicate)

	v, _ := s.GetVariant(ctx, "var-cable-c")
	assert.Equal(t, 99, v.Quantity)
}

func TestCreateOrderStockConflictLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s := newSeeded(t)
	o := testOrder("ord-1", "var-a15-blk-256", 4)

	_, err := s.CreateOrder(ctx, o, saleEntries(o))
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	var conflict *domain.StockConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, 3, conflict.Available)

	_, err = s.FindOrderByID(ctx, "ord-1")
	require.ErrorIs(t, err, store.ErrNotFound)
	entries, _ := s.ReadLedger(ctx, "9000000002")
	assert.Empty(t, entries)
	v, _ := s.GetVariant(ctx, "var-a15-blk-256")
	assert.Equal(t, 3, v.Quantity)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	ctx := context.Background()
	s := newSeeded(t)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := testOrder("ord-"+string(rune('a'+i)), "var-a15-blk-256", 1)
			_, err := s.CreateOrder(ctx, o, nil)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, store.ErrInsufficientStock)
	}
	assert.Equal(t, 3, ok)
	v, _ := s.GetVariant(ctx, "var-a15-blk-256")
	assert.Zero(t, v.Quantity)
}

func TestAppendReturnRestocksAndSerializes(t *testing.T) {
	ctx := context.Background()
	s := newSeeded(t)
	o := testOrder("ord-1", "var-cable-c", 2)
	_, err := s.CreateOrder(ctx, o, saleEntries(o))
	require.NoError(t, err)

	req := domain.ReturnRequest{
		Items:  []domain.ReturnItem{{ProductID: "var-cable-c", Quantity: 1}},
		Reason: "frayed",
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendReturn(ctx, "ord-1", req, "admin")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 2, succeeded)

	stored, err := s.FindOrderByID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Products[0].ReturnedQuantity)
	assert.Equal(t, domain.OrderFullyReturned, stored.Status())

	v, _ := s.GetVariant(ctx, "var-cable-c")
	assert.Equal(t, 100, v.Quantity)

	rets, err := s.ListReturns(ctx, "ord-1")
	require.NoError(t, err)
	assert.Len(t, rets, 2)

	entries, _ := s.ReadLedger(ctx, "9000000002")
	assert.Len(t, entries, 4)
}

func TestAppendReturnUnknownOrder(t *testing.T) {
	s := newSeeded(t)
	_, err := s.AppendReturn(context.Background(), "ord-missing", domain.ReturnRequest{}, "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppendLedgerEntryValidates(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.AppendLedgerEntry(ctx, domain.LedgerEntry{CustomerKey: "x", Type: domain.Credit})
	var invalid *domain.ValidationError
	require.True(t, errors.As(err, &invalid))

	e, err := s.AppendLedgerEntry(ctx, domain.LedgerEntry{CustomerKey: "x", Type: domain.Credit, Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
}

func TestListOrdersByCustomerNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newSeeded(t)
	for _, id := range []string{"ord-1", "ord-2", "ord-3"} {
		_, err := s.CreateOrder(ctx, testOrder(id, "var-cable-c", 1), nil)
		require.NoError(t, err)
	}

	orders, err := s.ListOrdersByCustomer(ctx, "9000000002", 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "ord-3", orders[0].ID)
	assert.Equal(t, "ord-2", orders[1].ID)
}

func TestReturnedOrderIsACopy(t *testing.T) {
	ctx := context.Background()
	s := newSeeded(t)
	_, err := s.CreateOrder(ctx, testOrder("ord-1", "var-cable-c", 1), nil)
	require.NoError(t, err)

	o, _ := s.FindOrderByID(ctx, "ord-1")
	o.Products[0].ReturnedQuantity = 1

	again, _ := s.FindOrderByID(ctx, "ord-1")
	assert.Zero(t, again.Products[0].ReturnedQuantity)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newSeeded(t)

	require.NoError(t, s.CreateUser(ctx, domain.UserAccount{Username: " Priya ", Password: "hash"}))
	require.ErrorIs(t, s.CreateUser(ctx, domain.UserAccount{Username: "priya", Password: "hash"}), store.ErrDuplicate)
	require.ErrorIs(t, s.UpdateUserPassword(ctx, "ghost", "x"), store.ErrNotFound)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"admin", "cashier", "priya"}, names)
}

func TestNewSeededUsesConfiguredPasswords(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "ignored-env-pass")

	s, err := NewSeeded(zap.NewNop(), store.SeedAccounts{AdminPassword: "owner-pass-71"})
	require.NoError(t, err)

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	passwords := map[string]string{}
	for _, u := range users {
		passwords[u.Username] = u.Password
	}
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(passwords["admin"]), []byte("owner-pass-71")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(passwords["admin"]), []byte("ignored-env-pass")))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(passwords["cashier"]), []byte("cashier123")))
}
