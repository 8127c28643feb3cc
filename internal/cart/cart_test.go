package cart

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dukaan/backend/internal/domain"
)

func testProduct() domain.Product {
	return domain.Product{
		ID:       "prod-phone",
		Name:     "Galaxy A15",
		Category: "mobiles",
		Image:    "a15.png",
		Variants: []domain.ProductVariant{
			{ID: "var-black-128", ProductID: "prod-phone", Brand: "Samsung", Color: domain.Color{Name: "Black"}, Storage: "128GB", Price: decimal.NewFromInt(100), Quantity: 3},
			{ID: "var-blue-128", ProductID: "prod-phone", Brand: "Samsung", Color: domain.Color{Name: "Blue"}, Storage: "128GB", Price: decimal.NewFromInt(110), Quantity: 1},
			{ID: "var-black-256", ProductID: "prod-phone", Brand: "Samsung", Color: domain.Color{Name: "Black"}, Storage: "256GB", Price: decimal.NewFromInt(150), Quantity: 0},
		},
	}
}

func TestAddItemMergesByVariant(t *testing.T) {
	p := testProduct()
	c := New()

	require.NoError(t, c.AddItem(p, p.Variants[0], domain.SelectedOptions{}, 1))
	require.NoError(t, c.AddItem(p, p.Variants[0], domain.SelectedOptions{}, 1))

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "Samsung", lines[0].SelectedOptions.Brand)
	assert.Equal(t, "Black", lines[0].SelectedOptions.Color)
	assert.Equal(t, "a15.png", lines[0].SelectedOptions.Image)
	assert.Empty(t, lines[0].Serials)
}

func TestAddItemStockThree(t *testing.T) {
	p := testProduct()
	v := p.Variants[0]
	c := New()

	for range 3 {
		require.NoError(t, c.AddItem(p, v, domain.SelectedOptions{}, 1))
	}
	err := c.AddItem(p, v, domain.SelectedOptions{}, 1)

	var conflict *domain.StockConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, 4, conflict.Requested)
	assert.Equal(t, 3, conflict.Available)

	line, ok := c.Line(v.ID)
	require.True(t, ok)
	assert.Equal(t, 3, line.Quantity)
	assert.Equal(t, 3, c.TotalItems())
}

func TestAddItemRejectsOutOfStockVariant(t *testing.T) {
	p := testProduct()
	c := New()

	err := c.AddItem(p, p.Variants[2], domain.SelectedOptions{}, 1)
	var conflict *domain.StockConflictError
	require.True(t, errors.As(err, &conflict))
	assert.True(t, c.IsEmpty())
}

func TestAddItemRejectsZeroQuantity(t *testing.T) {
	p := testProduct()
	c := New()

	err := c.AddItem(p, p.Variants[0], domain.SelectedOptions{}, 0)
	var invalid *domain.ValidationError
	require.True(t, errors.As(err, &invalid))
	assert.True(t, c.IsEmpty())
}

func TestCanAddItemImpliesAddItemGrowsTotal(t *testing.T) {
	p := testProduct()
	ix := NewVariantIndex(p)
	opts := domain.SelectedOptions{Brand: "Samsung", Color: "Black", Storage: "128GB"}

	for _, qty := range []int{1, 2, 3} {
		c := New()
		require.NoError(t, c.AddItem(p, p.Variants[0], opts, 1))
		before := c.TotalItems()

		if !c.CanAddItem(ix, opts, qty) {
			continue
		}
		v, ok := ix.Resolve(opts)
		require.True(t, ok)
		require.NoError(t, c.AddItem(p, v, opts, qty))
		assert.Equal(t, before+qty, c.TotalItems(), "qty=%d", qty)
	}
}

func TestCanAddItem(t *testing.T) {
	p := testProduct()
	ix := NewVariantIndex(p)
	c := New()

	assert.True(t, c.CanAddItem(ix, domain.SelectedOptions{Brand: "Samsung"}, 3))
	assert.False(t, c.CanAddItem(ix, domain.SelectedOptions{Brand: "samsung"}, 1))
	assert.False(t, c.CanAddItem(ix, domain.SelectedOptions{Brand: "Samsung"}, 4))
	assert.False(t, c.CanAddItem(ix, domain.SelectedOptions{Brand: "Apple"}, 1))
	assert.False(t, c.CanAddItem(ix, domain.SelectedOptions{Brand: "Samsung", Color: "Black", Storage: "256GB"}, 1))
	assert.True(t, c.CanAddItem(ix, domain.SelectedOptions{Brand: "Samsung", Color: "Blue"}, 1))

	require.NoError(t, c.AddItem(p, p.Variants[1], domain.SelectedOptions{}, 1))
	assert.False(t, c.CanAddItem(ix, domain.SelectedOptions{Brand: "Samsung", Color: "Blue"}, 1))
}

func TestVariantIndexFirstVariantWinsWildcard(t *testing.T) {
	ix := NewVariantIndex(testProduct())

	v, ok := ix.Resolve(domain.SelectedOptions{Brand: "Samsung"})
	require.True(t, ok)
	assert.Equal(t, "var-black-128", v.ID)

	v, ok = ix.Resolve(domain.SelectedOptions{Brand: "Samsung", Storage: "256GB"})
	require.True(t, ok)
	assert.Equal(t, "var-black-256", v.ID)

	_, ok = ix.Resolve(domain.SelectedOptions{Color: "Black"})
	assert.False(t, ok)
}

func TestVariantIndexBrandMatchesExactly(t *testing.T) {
	ix := NewVariantIndex(testProduct())

	for _, brand := range []string{"samsung", " Samsung ", "SAMSUNG", ""} {
		_, ok := ix.Resolve(domain.SelectedOptions{Brand: brand})
		assert.False(t, ok, "brand %q", brand)
	}
}

func TestVariantIndexResolvesUnbrandedVariant(t *testing.T) {
	p := domain.Product{
		ID:   "prod-case",
		Name: "Generic Case",
		Variants: []domain.ProductVariant{
			{ID: "var-case-clear", Color: domain.Color{Name: "Clear"}, Quantity: 4},
			{ID: "var-case-acme", Brand: "Acme", Color: domain.Color{Name: "Clear"}, Quantity: 2},
		},
	}
	ix := NewVariantIndex(p)

	v, ok := ix.Resolve(domain.SelectedOptions{})
	require.True(t, ok)
	assert.Equal(t, "var-case-clear", v.ID)

	v, ok = ix.Resolve(domain.SelectedOptions{Brand: "Acme", Color: "clear"})
	require.True(t, ok)
	assert.Equal(t, "var-case-acme", v.ID)

	assert.True(t, New().CanAddItem(ix, domain.SelectedOptions{Color: "Clear"}, 4))
}

func TestUpdateQuantity(t *testing.T) {
	p := testProduct()
	v := p.Variants[0]
	c := New()
	require.NoError(t, c.AddItem(p, v, domain.SelectedOptions{}, 1))

	require.NoError(t, c.UpdateQuantity(v.ID, 3))
	assert.Equal(t, 3, c.TotalItems())

	var conflict *domain.StockConflictError
	require.True(t, errors.As(c.UpdateQuantity(v.ID, 4), &conflict))
	assert.Equal(t, 3, c.TotalItems())

	require.NoError(t, c.UpdateQuantity(v.ID, -2))
	assert.True(t, c.IsEmpty())

	require.ErrorIs(t, c.UpdateQuantity("missing", 1), ErrLineNotFound)
}

func TestUpdatePriceClampsAtZero(t *testing.T) {
	p := testProduct()
	v := p.Variants[0]
	c := New()
	require.NoError(t, c.AddItem(p, v, domain.SelectedOptions{}, 2))

	require.NoError(t, c.UpdatePrice(v.ID, decimal.NewFromInt(90)))
	assert.True(t, c.TotalPrice().Equal(decimal.NewFromInt(180)))

	require.NoError(t, c.UpdatePrice(v.ID, decimal.NewFromInt(-5)))
	assert.True(t, c.TotalPrice().IsZero())
}

func TestUpdatePriceRejectsSubCentAmounts(t *testing.T) {
	p := testProduct()
	v := p.Variants[0]
	c := New()
	require.NoError(t, c.AddItem(p, v, domain.SelectedOptions{}, 3))

	var invalid *domain.ValidationError
	require.ErrorAs(t, c.UpdatePrice(v.ID, decimal.RequireFromString("33.333")), &invalid)
	assert.True(t, c.TotalPrice().Equal(decimal.NewFromInt(300)))

	require.NoError(t, c.UpdatePrice(v.ID, decimal.RequireFromString("33.33")))
	assert.True(t, c.TotalPrice().Equal(decimal.RequireFromString("99.99")))
}

func TestTotals(t *testing.T) {
	p := testProduct()
	c := New()
	require.NoError(t, c.AddItem(p, p.Variants[0], domain.SelectedOptions{}, 2))
	require.NoError(t, c.AddItem(p, p.Variants[1], domain.SelectedOptions{}, 1))

	assert.Equal(t, 3, c.TotalItems())
	assert.True(t, c.TotalPrice().Equal(decimal.NewFromInt(310)))

	require.NoError(t, c.RemoveItem(p.Variants[0].ID))
	assert.Equal(t, 1, c.TotalItems())
	require.ErrorIs(t, c.RemoveItem(p.Variants[0].ID), ErrLineNotFound)

	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.True(t, c.TotalPrice().IsZero())
}

func TestSerials(t *testing.T) {
	p := testProduct()
	v := p.Variants[0]
	c := New()
	require.NoError(t, c.AddItem(p, v, domain.SelectedOptions{}, 2))

	require.NoError(t, c.AddSerial(v.ID, " IMEI-1 "))
	require.NoError(t, c.AddSerial(v.ID, "IMEI-2"))
	require.NoError(t, c.AddSerial(v.ID, "IMEI-3"))
	assert.Equal(t, []string{v.ID}, c.SerialMismatches())

	require.NoError(t, c.UpdateSerial(v.ID, 1, "IMEI-9"))
	require.NoError(t, c.RemoveSerial(v.ID, 2))

	line, _ := c.Line(v.ID)
	assert.Equal(t, []string{"IMEI-1", "IMEI-9"}, line.Serials)
	assert.Empty(t, c.SerialMismatches())

	var invalid *domain.ValidationError
	assert.True(t, errors.As(c.RemoveSerial(v.ID, 5), &invalid))
	assert.True(t, errors.As(c.AddSerial(v.ID, "  "), &invalid))
	assert.True(t, errors.As(c.UpdateSerial(v.ID, -1, "x"), &invalid))
}

func TestLinesAreCopies(t *testing.T) {
	p := testProduct()
	v := p.Variants[0]
	c := New()
	require.NoError(t, c.AddItem(p, v, domain.SelectedOptions{}, 1))
	require.NoError(t, c.AddSerial(v.ID, "IMEI-1"))

	lines := c.Lines()
	lines[0].Serials[0] = "changed"
	lines[0].Quantity = 99

	line, _ := c.Line(v.ID)
	assert.Equal(t, "IMEI-1", line.Serials[0])
	assert.Equal(t, 1, line.Quantity)
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := testProduct()
	c := New()
	require.NoError(t, c.AddItem(p, p.Variants[0], domain.SelectedOptions{}, 2))
	require.NoError(t, c.AddSerial(p.Variants[0].ID, "IMEI-1"))

	restored := FromSnapshot(c.Snapshot())
	assert.Equal(t, c.Lines(), restored.Lines())
	assert.True(t, c.TotalPrice().Equal(restored.TotalPrice()))
}

func TestSyncVariantRefreshesStock(t *testing.T) {
	p := testProduct()
	v := p.Variants[0]
	c := New()
	require.NoError(t, c.AddItem(p, v, domain.SelectedOptions{}, 1))

	v.Quantity = 1
	c.SyncVariant(v)

	var conflict *domain.StockConflictError
	require.True(t, errors.As(c.UpdateQuantity(v.ID, 2), &conflict))
}
