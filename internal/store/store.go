package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"dukaan/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrDuplicate          = errors.New("duplicate")
)

// StockConflict matches both ErrInsufficientStock and *domain.StockConflictError.
func StockConflict(variantID string, requested int, available int) error {
	return fmt.Errorf("%w: %w", ErrInsufficientStock, &domain.StockConflictError{
		VariantID: variantID,
		Requested: requested,
		Available: available,
	})
}

// Repository is implemented by the memory, bolt and postgres stores.
//
// CreateOrder and AppendReturn are atomic: either every row they touch is
// written or none is. AppendReturn serializes concurrent returns on one order
// and validates against the latest committed returned quantities.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetVariant(ctx context.Context, id string) (*domain.ProductVariant, error)
	UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	SaveCustomer(ctx context.Context, customer domain.Customer) error

	CreateOrder(ctx context.Context, order domain.Order, entries []domain.LedgerEntry) (*domain.Order, error)
	FindOrderByID(ctx context.Context, id string) (*domain.Order, error)
	FindOrderByIdempotency(ctx context.Context, key string) (*domain.Order, error)
	ListOrdersByCustomer(ctx context.Context, phone string, limit int) ([]domain.Order, error)

	AppendReturn(ctx context.Context, orderID string, req domain.ReturnRequest, processedBy string) (*domain.Return, error)
	ListReturns(ctx context.Context, orderID string) ([]domain.Return, error)

	AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	ReadLedger(ctx context.Context, customerKey string) ([]domain.LedgerEntry, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
