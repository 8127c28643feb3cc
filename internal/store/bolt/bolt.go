// Package bolt is a single-file store for a till that runs without Postgres.
//
// Values are JSON documents. Secondary lookups (idempotency key, customer
// orders, ledger by customer) are separate buckets written in the same
// transaction as the primary record. Bolt allows one writer at a time, which
// is what serializes checkouts and returns.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"dukaan/backend/internal/domain"
	"dukaan/backend/internal/ledger"
	"dukaan/backend/internal/returns"
	"dukaan/backend/internal/store"
	"dukaan/backend/internal/xid"
)

var _ store.Repository = (*Store)(nil)

var (
	bucketProducts       = []byte("products")
	bucketVariants       = []byte("variant_product")
	bucketCustomers      = []byte("customers")
	bucketOrders         = []byte("orders")
	bucketOrderIdem      = []byte("order_idempotency")
	bucketCustomerOrders = []byte("customer_orders")
	bucketReturns        = []byte("order_returns")
	bucketLedger         = []byte("ledger")
	bucketAudit          = []byte("audit_logs")
	bucketUsers          = []byte("users")
)

var allBuckets = [][]byte{
	bucketProducts, bucketVariants, bucketCustomers, bucketOrders, bucketOrderIdem,
	bucketCustomerOrders, bucketReturns, bucketLedger, bucketAudit, bucketUsers,
}

type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path and ensures every bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open bolt")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// SeedIfEmpty loads the demo catalog and dev accounts into a fresh file.
func (s *Store) SeedIfEmpty(ctx context.Context, lg *zap.Logger, accounts store.SeedAccounts) error {
	return store.SeedIfEmpty(ctx, s, lg, accounts)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProducts).ForEach(func(_, v []byte) error {
			var p domain.Product
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			products = append(products, p)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketProducts), id, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetVariant(_ context.Context, id string) (*domain.ProductVariant, error) {
	var v domain.ProductVariant
	err := s.db.View(func(tx *bolt.Tx) error {
		p, err := productForVariant(tx, id)
		if err != nil {
			return err
		}
		found, ok := p.Variant(id)
		if !ok {
			return store.ErrNotFound
		}
		v = found
		return nil
	})
	if err != nil {
		return nil, err
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

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(bucketProducts), product.ID, product); err != nil {
			return err
		}
		variants := tx.Bucket(bucketVariants)
		for _, v := range product.Variants {
			if err := variants.Put([]byte(v.ID), []byte(product.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "upsert product")
	}
	return &product, nil
}

func (s *Store) FindCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketCustomers), strings.TrimSpace(phone), &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) SaveCustomer(_ context.Context, customer domain.Customer) error {
	customer.Phone = strings.TrimSpace(customer.Phone)
	if customer.Phone == "" {
		return store.ErrInvalidTransaction
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketCustomers), customer.Phone, customer)
	})
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

	err := s.db.Update(func(tx *bolt.Tx) error {
		idem := tx.Bucket(bucketOrderIdem)
		if idem.Get([]byte(order.IdempotencyKey)) != nil || tx.Bucket(bucketOrders).Get([]byte(order.ID)) != nil {
			return store.ErrDuplicate
		}

		requested := make(map[string]int, len(order.Products))
		for _, p := range order.Products {
			requested[p.ProductID] += p.Quantity
		}
		for variantID, qty := range requested {
			if err := adjustStock(tx, variantID, -qty); err != nil {
				return err
			}
		}

		if err := putJSON(tx.Bucket(bucketOrders), order.ID, order); err != nil {
			return err
		}
		if err := idem.Put([]byte(order.IdempotencyKey), []byte(order.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketCustomerOrders).Put(compositeKey(order.Customer.Phone, order.ID), []byte(order.ID)); err != nil {
			return err
		}
		if err := putJSON(tx.Bucket(bucketCustomers), order.Customer.Phone, order.Customer); err != nil {
			return err
		}
		return putEntries(tx, entries)
	})
	if err != nil {
		return nil, err
	}
	created := order.Clone()
	return &created, nil
}

func (s *Store) FindOrderByID(_ context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketOrders), id, &o)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) FindOrderByIdempotency(_ context.Context, key string) (*domain.Order, error) {
	var o domain.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketOrderIdem).Get([]byte(key))
		if id == nil {
			return store.ErrNotFound
		}
		return getJSON(tx.Bucket(bucketOrders), string(id), &o)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) ListOrdersByCustomer(_ context.Context, phone string, limit int) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, 16)
	prefix := compositeKey(strings.TrimSpace(phone), "")
	err := s.db.View(func(tx *bolt.Tx) error {
		ordersBucket := tx.Bucket(bucketOrders)
		c := tx.Bucket(bucketCustomerOrders).Cursor()
		var ids [][]byte
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			ids = append(ids, v)
		}
		for i := len(ids) - 1; i >= 0; i-- {
			var o domain.Order
			if err := getJSON(ordersBucket, string(ids[i]), &o); err != nil {
				return err
			}
			orders = append(orders, o)
			if limit > 0 && len(orders) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list customer orders")
	}
	return orders, nil
}

func (s *Store) AppendReturn(_ context.Context, orderID string, req domain.ReturnRequest, processedBy string) (*domain.Return, error) {
	var ret *domain.Return
	err := s.db.Update(func(tx *bolt.Tx) error {
		orders := tx.Bucket(bucketOrders)
		var order domain.Order
		if err := getJSON(orders, orderID, &order); err != nil {
			return err
		}

		built, err := returns.Build(&order, req, processedBy, time.Now().UTC())
		if err != nil {
			return err
		}
		for _, line := range built.Lines {
			if err := adjustStock(tx, line.ProductID, line.Quantity); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		if err := putJSON(orders, order.ID, order); err != nil {
			return err
		}
		if err := putJSONKey(tx.Bucket(bucketReturns), compositeKey(order.ID, built.ID), built); err != nil {
			return err
		}
		if err := putEntries(tx, built.Entries); err != nil {
			return err
		}
		ret = built
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Store) ListReturns(_ context.Context, orderID string) ([]domain.Return, error) {
	result := make([]domain.Return, 0, 4)
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketOrders).Get([]byte(orderID)) == nil {
			return store.ErrNotFound
		}
		prefix := compositeKey(orderID, "")
		c := tx.Bucket(bucketReturns).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var r domain.Return
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			result = append(result, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
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
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putEntries(tx, []domain.LedgerEntry{entry})
	})
	if err != nil {
		return nil, errors.Wrap(err, "append ledger entry")
	}
	return &entry, nil
}

func (s *Store) ReadLedger(_ context.Context, customerKey string) ([]domain.LedgerEntry, error) {
	entries := make([]domain.LedgerEntry, 0, 16)
	prefix := compositeKey(strings.TrimSpace(customerKey), "")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLedger).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e domain.LedgerEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "read ledger")
	}
	return entries, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketAudit), entry.ID, entry)
	})
}

// ListAuditLogs walks the bucket newest first; audit ids sort by creation time.
func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	logs := make([]domain.AuditLog, 0, 64)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var entry domain.AuditLog
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
				continue
			}
			logs = append(logs, entry)
			if limit > 0 && len(logs) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list audit logs")
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(user.Username)) != nil {
			return store.ErrDuplicate
		}
		return putJSON(b, user.Username, user)
	})
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 8)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(_, v []byte) error {
			var u domain.UserAccount
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			users = append(users, u)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		var u domain.UserAccount
		if err := getJSON(b, username, &u); err != nil {
			return err
		}
		u.Password = password
		return putJSON(b, username, u)
	})
}

func productForVariant(tx *bolt.Tx, variantID string) (domain.Product, error) {
	productID := tx.Bucket(bucketVariants).Get([]byte(variantID))
	if productID == nil {
		return domain.Product{}, store.ErrNotFound
	}
	var p domain.Product
	if err := getJSON(tx.Bucket(bucketProducts), string(productID), &p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// adjustStock applies delta to one variant. A decrement that would go below
// zero fails with a stock conflict and writes nothing.
func adjustStock(tx *bolt.Tx, variantID string, delta int) error {
	p, err := productForVariant(tx, variantID)
	if err != nil {
		if delta < 0 && errors.Is(err, store.ErrNotFound) {
			return store.StockConflict(variantID, -delta, 0)
		}
		return err
	}
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.ID != variantID {
			continue
		}
		if v.Quantity+delta < 0 {
			return store.StockConflict(variantID, -delta, v.Quantity)
		}
		v.Quantity += delta
	}
	return putJSON(tx.Bucket(bucketProducts), p.ID, p)
}

func putEntries(tx *bolt.Tx, entries []domain.LedgerEntry) error {
	b := tx.Bucket(bucketLedger)
	for _, e := range entries {
		if err := putJSONKey(b, compositeKey(e.CustomerKey, e.ID), e); err != nil {
			return err
		}
	}
	return nil
}

func compositeKey(prefix string, id string) []byte {
	return []byte(prefix + "\x00" + id)
}

func getJSON(b *bolt.Bucket, key string, dest any) error {
	v := b.Get([]byte(key))
	if v == nil {
		return store.ErrNotFound
	}
	return json.Unmarshal(v, dest)
}

func putJSON(b *bolt.Bucket, key string, value any) error {
	return putJSONKey(b, []byte(key), value)
}

func putJSONKey(b *bolt.Bucket, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}
