package store

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"dukaan/backend/internal/domain"
)

// ValidateOrder rejects orders that no store should persist.
func ValidateOrder(order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" || strings.TrimSpace(order.IdempotencyKey) == "" {
		return ErrInvalidTransaction
	}
	if strings.TrimSpace(order.Customer.Phone) == "" || len(order.Products) == 0 {
		return ErrInvalidTransaction
	}
	for _, p := range order.Products {
		if p.ProductID == "" || p.Quantity < 1 || p.ReturnedQuantity != 0 {
			return ErrInvalidTransaction
		}
	}
	return nil
}

// SeedIfEmpty loads the demo catalog and dev accounts into an empty store.
func SeedIfEmpty(ctx context.Context, repo Repository, lg *zap.Logger, accounts SeedAccounts) error {
	products, err := repo.ListProducts(ctx)
	if err != nil {
		return errors.Wrap(err, "list products")
	}
	if len(products) == 0 {
		for _, p := range DemoCatalog() {
			if _, err := repo.UpsertProduct(ctx, p); err != nil {
				return errors.Wrapf(err, "seed product %s", p.ID)
			}
		}
		lg.Info("Seeded demo catalog", zap.Int("products", len(DemoCatalog())))
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		return errors.Wrap(err, "list users")
	}
	if len(users) > 0 {
		return nil
	}
	seed, err := DemoUsers(lg, accounts)
	if err != nil {
		return err
	}
	for _, u := range seed {
		if err := repo.CreateUser(ctx, u); err != nil {
			return errors.Wrapf(err, "seed user %s", u.Username)
		}
	}
	return nil
}

// DemoCatalog is the catalog used when the service runs without a database.
func DemoCatalog() []domain.Product {
	d := decimal.NewFromInt
	return []domain.Product{
		{
			ID: "prod-a15", Name: "Galaxy A15", Category: "mobiles", Image: "a15.png",
			Variants: []domain.ProductVariant{
				{ID: "var-a15-blk-128", ProductID: "prod-a15", Brand: "Samsung", Color: domain.Color{Name: "Black", Hex: "#111111"}, Storage: "128GB", PurchasePrice: d(14200), WholesalePrice: d(15000), Price: d(15999), MRP: d(17999), Quantity: 12},
				{ID: "var-a15-blu-128", ProductID: "prod-a15", Brand: "Samsung", Color: domain.Color{Name: "Blue", Hex: "#1e3a8a"}, Storage: "128GB", PurchasePrice: d(14200), WholesalePrice: d(15000), Price: d(15999), MRP: d(17999), Quantity: 6},
				{ID: "var-a15-blk-256", ProductID: "prod-a15", Brand: "Samsung", Color: domain.Color{Name: "Black", Hex: "#111111"}, Storage: "256GB", PurchasePrice: d(16500), WholesalePrice: d(17200), Price: d(18499), MRP: d(20999), Quantity: 3},
			},
		},
		{
			ID: "prod-note13", Name: "Redmi Note 13", Category: "mobiles", Image: "note13.png",
			Variants: []domain.ProductVariant{
				{ID: "var-n13-wht-128", ProductID: "prod-note13", Brand: "Xiaomi", Color: domain.Color{Name: "White"}, Storage: "128GB", PurchasePrice: d(15100), WholesalePrice: d(15800), Price: d(16999), MRP: d(18999), Quantity: 8},
				{ID: "var-n13-blk-256", ProductID: "prod-note13", Brand: "Xiaomi", Color: domain.Color{Name: "Black"}, Storage: "256GB", PurchasePrice: d(17300), WholesalePrice: d(18100), Price: d(19499), MRP: d(21999), Quantity: 4},
			},
		},
		{
			ID: "prod-charger", Name: "25W Fast Charger", Category: "accessories",
			Variants: []domain.ProductVariant{
				{ID: "var-chg-25w", ProductID: "prod-charger", Brand: "Samsung", Color: domain.Color{Name: "White"}, PurchasePrice: d(650), WholesalePrice: d(800), Price: d(999), MRP: d(1299), Quantity: 40},
			},
		},
		{
			ID: "prod-cable", Name: "USB-C Cable 1m", Category: "accessories",
			Variants: []domain.ProductVariant{
				{ID: "var-cable-c", ProductID: "prod-cable", Brand: "boAt", Color: domain.Color{Name: "Black"}, PurchasePrice: d(120), WholesalePrice: d(160), Price: d(249), MRP: d(399), Quantity: 100},
			},
		},
	}
}

// SeedAccounts holds the initial passwords of the dev accounts.
type SeedAccounts struct {
	AdminPassword   string
	CashierPassword string
}

// DemoUsers builds the dev accounts. An empty password falls back to a fixed
// dev value with a warning.
func DemoUsers(lg *zap.Logger, accounts SeedAccounts) ([]domain.UserAccount, error) {
	adminPwd := orDefault(accounts.AdminPassword, "admin123")
	cashierPwd := orDefault(accounts.CashierPassword, "cashier123")
	if strings.TrimSpace(accounts.AdminPassword) == "" || strings.TrimSpace(accounts.CashierPassword) == "" {
		lg.Warn("Using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, errors.Wrapf(err, "hash seed password for %s", u.username)
		}
		users = append(users, domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		})
	}
	return users, nil
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func CloneProduct(p domain.Product) domain.Product {
	p.Variants = append([]domain.ProductVariant(nil), p.Variants...)
	return p
}
