package postgres

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dukaan/backend/db"
	"dukaan/backend/internal/domain"
	"dukaan/backend/internal/ledger"
	"dukaan/backend/internal/returns"
	"dukaan/backend/internal/store"
	"dukaan/backend/internal/xid"
)

var _ store.Repository = (*Store)(nil)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and registers the NUMERIC <-> decimal codec on
// every pooled connection.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}
	cfg.MaxConns = 30
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return &Store{pool: pool}, nil
}

// RunMigrations executes the embedded schema. Every statement is idempotent.
func (s *Store) RunMigrations(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, category, image
		FROM products
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, 64)
	index := make(map[string]int, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Image); err != nil {
			rows.Close()
			return nil, err
		}
		p.Variants = []domain.ProductVariant{}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	variants, err := s.queryVariants(ctx, s.pool, `ORDER BY product_id, position`)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		if i, ok := index[v.ProductID]; ok {
			products[i].Variants = append(products[i].Variants, v)
		}
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.getProduct(ctx, s.pool, id)
}

func (s *Store) getProduct(ctx context.Context, q querier, id string) (*domain.Product, error) {
	var p domain.Product
	err := q.QueryRow(ctx, `
		SELECT id, name, category, image
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.Image)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	p.Variants, err = s.queryVariants(ctx, q, `WHERE product_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetVariant(ctx context.Context, id string) (*domain.ProductVariant, error) {
	variants, err := s.queryVariants(ctx, s.pool, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, store.ErrNotFound
	}
	return &variants[0], nil
}

func (s *Store) queryVariants(ctx context.Context, q querier, clause string, args ...any) ([]domain.ProductVariant, error) {
	rows, err := q.Query(ctx, `
		SELECT id, product_id, brand, color_name, color_hex, storage, image,
			purchase_price, wholesale_price, price, mrp, quantity
		FROM product_variants
	`+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := make([]domain.ProductVariant, 0, 8)
	for rows.Next() {
		var v domain.ProductVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Brand, &v.Color.Name, &v.Color.Hex, &v.Storage, &v.Image,
			&v.PurchasePrice, &v.WholesalePrice, &v.Price, &v.MRP, &v.Quantity); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (s *Store) UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO products (id, name, category, image, created_at, updated_at)
		VALUES ($1,$2,$3,$4,now(),now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, category = EXCLUDED.category, image = EXCLUDED.image, updated_at = now()
	`, product.ID, product.Name, product.Category, product.Image)
	if err != nil {
		return nil, err
	}

	for i, v := range product.Variants {
		_, err := tx.Exec(ctx, `
			INSERT INTO product_variants (
				id, product_id, position, brand, color_name, color_hex, storage, image,
				purchase_price, wholesale_price, price, mrp, quantity, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
			ON CONFLICT (id) DO UPDATE
			SET product_id = EXCLUDED.product_id, position = EXCLUDED.position, brand = EXCLUDED.brand,
				color_name = EXCLUDED.color_name, color_hex = EXCLUDED.color_hex, storage = EXCLUDED.storage,
				image = EXCLUDED.image, purchase_price = EXCLUDED.purchase_price,
				wholesale_price = EXCLUDED.wholesale_price, price = EXCLUDED.price, mrp = EXCLUDED.mrp,
				quantity = EXCLUDED.quantity, updated_at = now()
		`, v.ID, v.ProductID, i, v.Brand, v.Color.Name, v.Color.Hex, v.Storage, v.Image,
			v.PurchasePrice, v.WholesalePrice, v.Price, v.MRP, v.Quantity)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	saved := store.CloneProduct(product)
	return &saved, nil
}

func (s *Store) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.pool.QueryRow(ctx, `
		SELECT phone, name, address
		FROM customers
		WHERE phone = $1
	`, strings.TrimSpace(phone)).Scan(&c.Phone, &c.Name, &c.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) SaveCustomer(ctx context.Context, customer domain.Customer) error {
	customer.Phone = strings.TrimSpace(customer.Phone)
	if customer.Phone == "" {
		return store.ErrInvalidTransaction
	}
	return saveCustomer(ctx, s.pool, customer)
}

func saveCustomer(ctx context.Context, q querier, c domain.Customer) error {
	_, err := q.Exec(ctx, `
		INSERT INTO customers (phone, name, address, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (phone) DO UPDATE
		SET name = EXCLUDED.name, address = EXCLUDED.address, updated_at = now()
	`, c.Phone, c.Name, c.Address)
	return err
}

// CreateOrder locks every variant the order touches in id order, decrements
// stock and writes the order with its ledger entries in one transaction.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order, entries []domain.LedgerEntry) (*domain.Order, error) {
	if err := store.ValidateOrder(order); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := ledger.Validate(e); err != nil {
			return nil, store.ErrInvalidTransaction
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	requested := make(map[string]int, len(order.Products))
	for _, p := range order.Products {
		requested[p.ProductID] += p.Quantity
	}
	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows, err := tx.Query(ctx, `
		SELECT id, quantity
		FROM product_variants
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	stock := make(map[string]int, len(ids))
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			rows.Close()
			return nil, err
		}
		stock[id] = qty
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		available := stock[id]
		if available < requested[id] {
			return nil, store.StockConflict(id, requested[id], available)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE product_variants
			SET quantity = quantity - $2, updated_at = now()
			WHERE id = $1
		`, id, requested[id]); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, idempotency_key, customer_phone, customer_name, customer_address,
			total_amount, paid, mode, note, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, order.ID, order.IdempotencyKey, order.Customer.Phone, order.Customer.Name, order.Customer.Address,
		order.TotalAmount, order.Paid, order.Mode, order.Note, order.CreatedBy, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	for i, p := range order.Products {
		serials := p.Serials
		if serials == nil {
			serials = []string{}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO order_products (
				order_id, position, product_id, parent_id, name, category, image, brand, color,
				storage, price, purchase_price, quantity, returned_quantity, serials
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,0,$14)
		`, order.ID, i, p.ProductID, p.ParentID, p.Name, p.Category, p.Image, p.Brand, p.Color,
			p.Storage, p.Price, p.PurchasePrice, p.Quantity, serials)
		if err != nil {
			return nil, err
		}
	}

	if err := saveCustomer(ctx, tx, order.Customer); err != nil {
		return nil, err
	}
	if err := insertEntries(ctx, tx, entries); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	created := order.Clone()
	return &created, nil
}

func (s *Store) FindOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	return s.findOrder(ctx, s.pool, "id", id, false)
}

func (s *Store) FindOrderByIdempotency(ctx context.Context, key string) (*domain.Order, error) {
	return s.findOrder(ctx, s.pool, "idempotency_key", key, false)
}

// findOrder loads one order by a unique column. With lock set the order row
// stays locked until q's transaction ends.
func (s *Store) findOrder(ctx context.Context, q querier, column string, value string, lock bool) (*domain.Order, error) {
	query := `
		SELECT id, idempotency_key, customer_phone, customer_name, customer_address,
			total_amount, paid, mode, note, created_by, created_at
		FROM orders
		WHERE ` + column + ` = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	o, err := scanOrder(q.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.loadProducts(ctx, q, []*domain.Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) ListOrdersByCustomer(ctx context.Context, phone string, limit int) ([]domain.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, idempotency_key, customer_phone, customer_name, customer_address,
			total_amount, paid, mode, note, created_by, created_at
		FROM orders
		WHERE customer_phone = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, strings.TrimSpace(phone), limit)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, 16)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*domain.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := s.loadProducts(ctx, s.pool, ptrs); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) loadProducts(ctx context.Context, q querier, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		o.Products = make([]domain.OrderProduct, 0, 4)
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, parent_id, name, category, image, brand, color, storage,
			price, purchase_price, quantity, returned_quantity, serials
		FROM order_products
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var p domain.OrderProduct
		if err := rows.Scan(&orderID, &p.ProductID, &p.ParentID, &p.Name, &p.Category, &p.Image, &p.Brand,
			&p.Color, &p.Storage, &p.Price, &p.PurchasePrice, &p.Quantity, &p.ReturnedQuantity, &p.Serials); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Products = append(o.Products, p)
		}
	}
	return rows.Err()
}

// AppendReturn locks the order row so concurrent returns against one order
// validate against each other's committed quantities.
func (s *Store) AppendReturn(ctx context.Context, orderID string, req domain.ReturnRequest, processedBy string) (*domain.Return, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order, err := s.findOrder(ctx, tx, "id", orderID, true)
	if err != nil {
		return nil, err
	}

	ret, err := returns.Build(order, req, processedBy, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	for i, p := range order.Products {
		if p.ReturnedQuantity == 0 {
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE order_products
			SET returned_quantity = $3
			WHERE order_id = $1 AND position = $2
		`, order.ID, i, p.ReturnedQuantity); err != nil {
			return nil, err
		}
	}
	for _, line := range ret.Lines {
		// A variant deleted from the catalog since the sale is not restocked.
		if _, err := tx.Exec(ctx, `
			UPDATE product_variants
			SET quantity = quantity + $2, updated_at = now()
			WHERE id = $1
		`, line.ProductID, line.Quantity); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_returns (
			id, order_id, reason, refund_mode, refund_amount, order_status, lines, entries, processed_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, ret.ID, ret.OrderID, ret.Reason, ret.RefundMode, ret.RefundAmount, string(ret.OrderStatus),
		ret.Lines, ret.Entries, ret.ProcessedBy, ret.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := insertEntries(ctx, tx, ret.Entries); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Store) ListReturns(ctx context.Context, orderID string) ([]domain.Return, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, reason, refund_mode, refund_amount, order_status, lines, entries, processed_by, created_at
		FROM order_returns
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Return, 0, 4)
	for rows.Next() {
		var r domain.Return
		var status string
		if err := rows.Scan(&r.ID, &r.OrderID, &r.Reason, &r.RefundMode, &r.RefundAmount, &status,
			&r.Lines, &r.Entries, &r.ProcessedBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.OrderStatus = domain.OrderStatus(status)
		r.CreatedAt = r.CreatedAt.UTC()
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := ledger.Validate(entry); err != nil {
		return nil, err
	}
	if err := insertEntries(ctx, s.pool, []domain.LedgerEntry{entry}); err != nil {
		return nil, errors.Wrap(err, "append ledger entry")
	}
	return &entry, nil
}

func (s *Store) ReadLedger(ctx context.Context, customerKey string) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, customer_key, amount, entry_type, note, mode, order_id, created_at
		FROM ledger_entries
		WHERE customer_key = $1
		ORDER BY created_at, id
	`, strings.TrimSpace(customerKey))
	if err != nil {
		return nil, errors.Wrap(err, "read ledger")
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, 16)
	for rows.Next() {
		var e domain.LedgerEntry
		var typ string
		if err := rows.Scan(&e.ID, &e.CustomerKey, &e.Amount, &typ, &e.Note, &e.Mode, &e.OrderID, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan ledger entry")
		}
		e.Type = domain.EntryType(typ)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func insertEntries(ctx context.Context, q querier, entries []domain.LedgerEntry) error {
	for _, e := range entries {
		_, err := q.Exec(ctx, `
			INSERT INTO ledger_entries (id, customer_key, amount, entry_type, note, mode, order_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, e.ID, e.CustomerKey, e.Amount, string(e.Type), e.Note, e.Mode, e.OrderID, e.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicate
			}
			return err
		}
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID,
		entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list audit logs")
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.IdempotencyKey, &o.Customer.Phone, &o.Customer.Name, &o.Customer.Address,
		&o.TotalAmount, &o.Paid, &o.Mode, &o.Note, &o.CreatedBy, &o.CreatedAt)
	o.CreatedAt = o.CreatedAt.UTC()
	return o, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
