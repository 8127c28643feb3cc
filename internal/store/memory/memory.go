package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"dukaan/backend/internal/domain"
	"dukaan/backend/internal/ledger"
	"dukaan/backend/internal/returns"
	"dukaan/backend/internal/store"
	"dukaan/backend/internal/xid"
)

var _ store.Repository = (*Store)(nil)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	productOrder    []string
	variantProduct  map[string]string
	customers       map[string]domain.Customer
	ordersByID      map[string]*domain.Order
	ordersByIdem    map[string]string
	ordersByPhone   map[string][]string
	returnsByOrder  map[string][]domain.Return
	ledgerByKey     map[string][]domain.LedgerEntry
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		variantProduct:  make(map[string]string),
		customers:       make(map[string]domain.Customer),
		ordersByID:      make(map[string]*domain.Order),
		ordersByIdem:    make(map[string]string),
		ordersByPhone:   make(map[string][]string),
		returnsByOrder:  make(map[string][]domain.Return),
		ledgerByKey:     make(map[string][]domain.LedgerEntry),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store holding the demo catalog and dev accounts.
func NewSeeded(lg *zap.Logger, accounts store.SeedAccounts) (*Store, error) {
	s := New()
	for _, p := range store.DemoCatalog() {
		if _, err := s.UpsertProduct(context.Background(), p); err != nil {
			return nil, err
		}
	}
	users, err := store.DemoUsers(lg, accounts)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		s.usersByUsername[u.Username] = u
	}
	return s, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		products = append(products, store.CloneProduct(s.products[id]))
	}
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := store.CloneProduct(p)
	return &dup, nil
}

func (s *Store) GetVariant(_ context.Context, id string) (*domain.ProductVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.variantLocked(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (s *Store) UpsertProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.ID) == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	for i := range product.Variants {
		v := &product.Variants[i]
		if v.ID == "" || v.Quantity < 0 || v.Price.IsNegative() {
			return nil, store.ErrInvalidTransaction
		}
		v.ProductID = product.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		s.productOrder = append(s.productOrder, product.ID)
	}
	s.products[product.ID] = store.CloneProduct(product)
	for _, v := range product.Variants {
		s.variantProduct[v.ID] = product.ID
	}
	dup := store.CloneProduct(product)
	return &dup, nil
}

func (s *Store) FindCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[strings.TrimSpace(phone)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) SaveCustomer(_ context.Context, customer domain.Customer) error {
	customer.Phone = strings.TrimSpace(customer.Phone)
	if customer.Phone == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.Phone] = customer
	return nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order, entries []domain.LedgerEntry) (*domain.Order, error) {
	if err := store.ValidateOrder(order); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := ledger.Validate(e); err != nil {
			return nil, store.ErrInvalidTransaction
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ordersByIdem[order.IdempotencyKey]; exists {
		return nil, store.ErrDuplicate
	}
	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrDuplicate
	}

	requested := make(map[string]int, len(order.Products))
	for _, p := range order.Products {
		requested[p.ProductID] += p.Quantity
	}
	for variantID, qty := range requested {
		v, ok := s.variantLocked(variantID)
		if !ok {
			return nil, store.StockConflict(variantID, qty, 0)
		}
		if v.Quantity < qty {
			return nil, store.StockConflict(variantID, qty, v.Quantity)
		}
	}
	for variantID, qty := range requested {
		s.adjustStockLocked(variantID, -qty)
	}

	stored := order.Clone()
	s.ordersByID[stored.ID] = &stored
	s.ordersByIdem[stored.IdempotencyKey] = stored.ID
	s.ordersByPhone[stored.Customer.Phone] = append(s.ordersByPhone[stored.Customer.Phone], stored.ID)
	s.customers[stored.Customer.Phone] = stored.Customer
	for _, e := range entries {
		s.ledgerByKey[e.CustomerKey] = append(s.ledgerByKey[e.CustomerKey], e)
	}

	created := stored.Clone()
	return &created, nil
}

func (s *Store) FindOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := order.Clone()
	return &dup, nil
}

func (s *Store) FindOrderByIdempotency(_ context.Context, key string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.ordersByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := s.ordersByID[id].Clone()
	return &dup, nil
}

func (s *Store) ListOrdersByCustomer(_ context.Context, phone string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.ordersByPhone[strings.TrimSpace(phone)]
	orders := make([]domain.Order, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		orders = append(orders, s.ordersByID[ids[i]].Clone())
		if limit > 0 && len(orders) >= limit {
			break
		}
	}
	return orders, nil
}

func (s *Store) AppendReturn(_ context.Context, orderID string, req domain.ReturnRequest, processedBy string) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}

	working := current.Clone()
	ret, err := returns.Build(&working, req, processedBy, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	for _, line := range ret.Lines {
		s.adjustStockLocked(line.ProductID, line.Quantity)
	}
	s.ordersByID[orderID] = &working
	s.returnsByOrder[orderID] = append(s.returnsByOrder[orderID], *ret)
	for _, e := range ret.Entries {
		s.ledgerByKey[e.CustomerKey] = append(s.ledgerByKey[e.CustomerKey], e)
	}
	return ret, nil
}

func (s *Store) ListReturns(_ context.Context, orderID string) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.ordersByID[orderID]; !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(s.returnsByOrder[orderID]), nil
}

func (s *Store) AppendLedgerEntry(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := ledger.Validate(entry); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgerByKey[entry.CustomerKey] = append(s.ledgerByKey[entry.CustomerKey], entry)
	return &entry, nil
}

func (s *Store) ReadLedger(_ context.Context, customerKey string) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ledgerByKey[strings.TrimSpace(customerKey)]), nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmp.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) variantLocked(id string) (domain.ProductVariant, bool) {
	productID, ok := s.variantProduct[id]
	if !ok {
		return domain.ProductVariant{}, false
	}
	return s.products[productID].Variant(id)
}

func (s *Store) adjustStockLocked(variantID string, delta int) {
	productID, ok := s.variantProduct[variantID]
	if !ok {
		return
	}
	p := store.CloneProduct(s.products[productID])
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			p.Variants[i].Quantity += delta
		}
	}
	s.products[productID] = p
}
