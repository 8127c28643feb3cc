package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dukaan/backend/internal/cart"
	"dukaan/backend/internal/checkout"
	"dukaan/backend/internal/domain"
	"dukaan/backend/internal/ledger"
	"dukaan/backend/internal/receipt"
	"dukaan/backend/internal/session"
	"dukaan/backend/internal/store"
	"dukaan/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service ties the in-memory cart engine to a session store and a repository.
// Mutations of one cart session are serialized in-process.
type Service struct {
	repo     store.Repository
	sessions session.Store
	shopName string
	locks    *keyedMutex
	now      func() time.Time
}

func New(repo store.Repository, sessions session.Store, shopName string) *Service {
	if shopName == "" {
		shopName = "Dukaan"
	}

	return &Service{
		repo:     repo,
		sessions: sessions,
		shopName: shopName,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) GetCart(ctx context.Context, sessionID string) (domain.CartView, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return domain.CartView{}, err
	}
	snapshot, _, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return domain.CartView{}, errors.Wrap(err, "load cart")
	}
	return cartView(sessionID, cart.FromSnapshot(snapshot)), nil
}

// AddItem resolves the variant from an explicit id or from the selected
// options and merges it into the cart against the current catalog stock.
func (s *Service) AddItem(ctx context.Context, sessionID string, req domain.AddItemRequest) (domain.CartView, error) {
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	product, ix, err := s.loadIndex(ctx, req.ProductID)
	if err != nil {
		return domain.CartView{}, err
	}
	variant, err := pickVariant(ix, req)
	if err != nil {
		return domain.CartView{}, err
	}

	return s.mutateCart(ctx, sessionID, func(c *cart.Cart) error {
		return c.AddItem(product, variant, req.Options, req.Quantity)
	})
}

// CanAddItem has no side effects on the cart.
func (s *Service) CanAddItem(ctx context.Context, sessionID string, productID string, opts domain.SelectedOptions, qty int) (bool, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return false, err
	}
	_, ix, err := s.loadIndex(ctx, productID)
	if err != nil {
		return false, err
	}
	snapshot, _, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return false, errors.Wrap(err, "load cart")
	}
	return cart.FromSnapshot(snapshot).CanAddItem(ix, opts, qty), nil
}

// UpdateLine applies a quantity change first, then a price override. A
// quantity below one removes the line and ignores the price.
func (s *Service) UpdateLine(ctx context.Context, sessionID string, lineID string, req domain.UpdateLineRequest) (domain.CartView, error) {
	if req.Quantity == nil && req.Price == nil {
		return domain.CartView{}, domain.Invalid("nothing to update")
	}

	var fresh *domain.ProductVariant
	if req.Quantity != nil && *req.Quantity > 0 {
		v, err := s.repo.GetVariant(ctx, lineID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.CartView{}, err
		}
		fresh = v
	}

	return s.mutateCart(ctx, sessionID, func(c *cart.Cart) error {
		if _, ok := c.Line(lineID); !ok {
			return cart.ErrLineNotFound
		}
		if fresh != nil {
			c.SyncVariant(*fresh)
		}
		if req.Quantity != nil {
			if err := c.UpdateQuantity(lineID, *req.Quantity); err != nil {
				return err
			}
			if *req.Quantity <= 0 {
				return nil
			}
		}
		if req.Price != nil {
			return c.UpdatePrice(lineID, *req.Price)
		}
		return nil
	})
}

func (s *Service) RemoveLine(ctx context.Context, sessionID string, lineID string) (domain.CartView, error) {
	return s.mutateCart(ctx, sessionID, func(c *cart.Cart) error {
		return c.RemoveItem(lineID)
	})
}

func (s *Service) ClearCart(ctx context.Context, sessionID string) error {
	if err := session.ValidateID(sessionID); err != nil {
		return err
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	return s.sessions.Delete(ctx, sessionID)
}

func (s *Service) AddSerial(ctx context.Context, sessionID string, lineID string, serial string) (domain.CartView, error) {
	return s.mutateCart(ctx, sessionID, func(c *cart.Cart) error {
		return c.AddSerial(lineID, serial)
	})
}

func (s *Service) UpdateSerial(ctx context.Context, sessionID string, lineID string, index int, serial string) (domain.CartView, error) {
	return s.mutateCart(ctx, sessionID, func(c *cart.Cart) error {
		return c.UpdateSerial(lineID, index, serial)
	})
}

func (s *Service) RemoveSerial(ctx context.Context, sessionID string, lineID string, index int) (domain.CartView, error) {
	return s.mutateCart(ctx, sessionID, func(c *cart.Cart) error {
		return c.RemoveSerial(lineID, index)
	})
}

// Checkout commits the session's cart as an order. Replaying an idempotency
// key returns the order it first produced. The cart is kept on any failure so
// the cashier can fix it and retry.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	if err := session.ValidateID(req.SessionID); err != nil {
		return domain.CheckoutResponse{}, err
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	}

	unlock := s.locks.Lock(req.SessionID)
	defer unlock()

	if existing, err := s.repo.FindOrderByIdempotency(ctx, req.IdempotencyKey); err == nil {
		return s.replayCheckout(ctx, existing)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.CheckoutResponse{}, err
	}

	snapshot, _, err := s.sessions.Load(ctx, req.SessionID)
	if err != nil {
		return domain.CheckoutResponse{}, errors.Wrap(err, "load cart")
	}

	actor, _ := ActorFromContext(ctx)
	order, entries, err := checkout.BuildOrder(
		cart.FromSnapshot(snapshot),
		req.Customer,
		&domain.Payment{Mode: req.PaymentMode, Amount: req.PaidAmount},
		checkout.Options{
			IdempotencyKey: req.IdempotencyKey,
			Note:           req.Note,
			CreatedBy:      actor.Username,
			Now:            s.now().Truncate(time.Microsecond),
		},
	)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	created, err := s.repo.CreateOrder(ctx, *order, entries)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			existing, lookupErr := s.repo.FindOrderByIdempotency(ctx, req.IdempotencyKey)
			if lookupErr == nil {
				return s.replayCheckout(ctx, existing)
			}
		}
		return domain.CheckoutResponse{}, err
	}

	if err := s.sessions.Delete(ctx, req.SessionID); err != nil {
		zctx.From(ctx).Warn("Failed to clear cart after checkout",
			zap.String("session_id", req.SessionID),
			zap.String("order_id", created.ID),
			zap.Error(err),
		)
	}

	s.logAudit(ctx, "checkout", "order", created.ID, fmt.Sprintf("total=%s,paid=%s,mode=%s,customer=%s",
		created.TotalAmount.StringFixed(2), created.Paid.StringFixed(2), created.Mode, created.Customer.Phone))

	r := receipt.Build(*created, s.shopName)
	return domain.CheckoutResponse{
		Order:   *created,
		Entries: entries,
		Receipt: &r,
	}, nil
}

func (s *Service) replayCheckout(ctx context.Context, order *domain.Order) (domain.CheckoutResponse, error) {
	all, err := s.repo.ReadLedger(ctx, order.Customer.Phone)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	entries := make([]domain.LedgerEntry, 0, 2)
	for _, e := range all {
		if e.OrderID == order.ID && e.CreatedAt.Equal(order.CreatedAt) {
			entries = append(entries, e)
		}
	}
	r := receipt.Build(*order, s.shopName)
	return domain.CheckoutResponse{
		Order:     *order,
		Entries:   entries,
		Duplicate: true,
		Receipt:   &r,
	}, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := s.repo.FindOrderByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	return *o, nil
}

func (s *Service) OrderReceipt(ctx context.Context, id string) (domain.Receipt, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt.Build(o, s.shopName), nil
}

// ProcessReturn records a return against the latest stored state of the
// order. Manager approval is checked by the caller.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.Return, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return domain.Return{}, domain.Invalid("order id is required")
	}

	actor, _ := ActorFromContext(ctx)
	ret, err := s.repo.AppendReturn(ctx, req.OrderID, req, actor.Username)
	if err != nil {
		return domain.Return{}, err
	}

	s.logAudit(ctx, "return", "order", ret.OrderID, fmt.Sprintf("return=%s,refund=%s,mode=%s,status=%s,reason=%s",
		ret.ID, ret.RefundAmount.StringFixed(2), ret.RefundMode, ret.OrderStatus, ret.Reason))
	return *ret, nil
}

func (s *Service) ListReturns(ctx context.Context, orderID string) ([]domain.Return, error) {
	return s.repo.ListReturns(ctx, strings.TrimSpace(orderID))
}

func (s *Service) GetCustomer(ctx context.Context, phone string) (domain.Customer, error) {
	c, err := s.repo.FindCustomerByPhone(ctx, phone)
	if err != nil {
		return domain.Customer{}, err
	}
	return *c, nil
}

func (s *Service) ListCustomerOrders(ctx context.Context, phone string, limit int) ([]domain.Order, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, domain.Invalid("phone is required")
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListOrdersByCustomer(ctx, phone, limit)
}

// RecordPayment credits money the customer paid outside a sale.
func (s *Service) RecordPayment(ctx context.Context, phone string, amount decimal.Decimal, mode string, note string) (domain.LedgerEntry, error) {
	return s.recordMoney(ctx, phone, domain.Credit, amount, mode, note)
}

// RecordPayout debits money the shop handed to the customer.
func (s *Service) RecordPayout(ctx context.Context, phone string, amount decimal.Decimal, mode string, note string) (domain.LedgerEntry, error) {
	return s.recordMoney(ctx, phone, domain.Debit, amount, mode, note)
}

func (s *Service) recordMoney(ctx context.Context, phone string, typ domain.EntryType, amount decimal.Decimal, mode string, note string) (domain.LedgerEntry, error) {
	return s.AppendLedgerEntry(ctx, phone, domain.LedgerEntryRequest{Type: typ, Amount: amount, Mode: mode, Note: note})
}

func (s *Service) AppendLedgerEntry(ctx context.Context, phone string, req domain.LedgerEntryRequest) (domain.LedgerEntry, error) {
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode != "" && !domain.IsPaymentMode(mode) && mode != domain.PaymentCredit {
		return domain.LedgerEntry{}, domain.Invalid("unsupported mode %q", req.Mode)
	}
	typ := domain.EntryType(strings.ToLower(strings.TrimSpace(string(req.Type))))

	entry, err := ledger.NewEntry(phone, req.Amount, typ, req.Note, mode, strings.TrimSpace(req.OrderID), s.now())
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	saved, err := s.repo.AppendLedgerEntry(ctx, entry)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	s.logAudit(ctx, "ledger_"+string(saved.Type), "customer", saved.CustomerKey,
		fmt.Sprintf("entry=%s,amount=%s,mode=%s", saved.ID, saved.Amount.StringFixed(2), saved.Mode))
	return *saved, nil
}

func (s *Service) Ledger(ctx context.Context, phone string, perspective string) (domain.LedgerResponse, error) {
	p, err := ParsePerspective(perspective)
	if err != nil {
		return domain.LedgerResponse{}, err
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.LedgerResponse{}, domain.Invalid("phone is required")
	}
	entries, err := s.repo.ReadLedger(ctx, phone)
	if err != nil {
		return domain.LedgerResponse{}, err
	}
	return domain.LedgerResponse{
		Entries: entries,
		Balance: ledger.Balance(phone, entries, p),
	}, nil
}

func (s *Service) Balance(ctx context.Context, phone string, perspective string) (domain.CustomerBalance, error) {
	resp, err := s.Ledger(ctx, phone, perspective)
	if err != nil {
		return domain.CustomerBalance{}, err
	}
	return resp.Balance, nil
}

// ListAuditLogs returns one UTC day of entries, newest first. An empty date
// means the last 24 hours.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from, to time.Time
	if strings.TrimSpace(date) == "" {
		to = s.now().Add(time.Minute)
		from = to.Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, domain.Invalid("date must be YYYY-MM-DD")
		}
		from = parsed.UTC()
		to = from.Add(24 * time.Hour)
	}

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func ParsePerspective(raw string) (domain.Perspective, error) {
	switch domain.Perspective(strings.ToLower(strings.TrimSpace(raw))) {
	case "", domain.PerspectiveSeller:
		return domain.PerspectiveSeller, nil
	case domain.PerspectiveBuyer:
		return domain.PerspectiveBuyer, nil
	default:
		return "", domain.Invalid("perspective must be seller or buyer")
	}
}

func (s *Service) mutateCart(ctx context.Context, sessionID string, fn func(c *cart.Cart) error) (domain.CartView, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return domain.CartView{}, err
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	snapshot, _, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return domain.CartView{}, errors.Wrap(err, "load cart")
	}
	c := cart.FromSnapshot(snapshot)
	if err := fn(c); err != nil {
		return domain.CartView{}, err
	}
	if err := s.sessions.Save(ctx, sessionID, c.Snapshot()); err != nil {
		return domain.CartView{}, errors.Wrap(err, "save cart")
	}
	return cartView(sessionID, c), nil
}

func (s *Service) loadIndex(ctx context.Context, productID string) (domain.Product, *cart.VariantIndex, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, nil, domain.Invalid("product id is required")
	}
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, nil, err
	}
	return *p, cart.NewVariantIndex(*p), nil
}

func pickVariant(ix *cart.VariantIndex, req domain.AddItemRequest) (domain.ProductVariant, error) {
	if id := strings.TrimSpace(req.VariantID); id != "" {
		v, ok := ix.Variant(id)
		if !ok {
			return domain.ProductVariant{}, domain.Invalid("variant %s does not belong to product %s", id, req.ProductID)
		}
		return v, nil
	}
	v, ok := ix.Resolve(req.Options)
	if !ok {
		return domain.ProductVariant{}, domain.Invalid("no variant of %s matches brand=%q color=%q storage=%q",
			req.ProductID, req.Options.Brand, req.Options.Color, req.Options.Storage)
	}
	return v, nil
}

func cartView(sessionID string, c *cart.Cart) domain.CartView {
	return domain.CartView{
		SessionID:      sessionID,
		Items:          c.Lines(),
		TotalItems:     c.TotalItems(),
		TotalPrice:     c.TotalPrice(),
		SerialMismatch: c.SerialMismatches(),
	}
}

// logAudit never fails the calling operation.
func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		zctx.From(ctx).Warn("Failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}
