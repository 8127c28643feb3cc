package httpapi

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"dukaan/backend/internal/cart"
	"dukaan/backend/internal/domain"
	"dukaan/backend/internal/service"
	"dukaan/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	lg            *zap.Logger
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, lg *zap.Logger) *API {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		lg:            lg,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

// Allow records an attempt for key and reports whether it is within the
// sliding window budget.
func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	staff := []string{RoleCashier, RoleAdmin}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts, staff...))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct, staff...))

	mux.HandleFunc("GET /api/v1/carts/{sid}", a.requireAuth(a.handleGetCart, staff...))
	mux.HandleFunc("DELETE /api/v1/carts/{sid}", a.requireAuth(a.handleClearCart, staff...))
	mux.HandleFunc("POST /api/v1/carts/{sid}/items", a.requireAuth(a.handleAddItem, staff...))
	mux.HandleFunc("GET /api/v1/carts/{sid}/can-add", a.requireAuth(a.handleCanAdd, staff...))
	mux.HandleFunc("PATCH /api/v1/carts/{sid}/items/{vid}", a.requireAuth(a.handleUpdateLine, staff...))
	mux.HandleFunc("DELETE /api/v1/carts/{sid}/items/{vid}", a.requireAuth(a.handleRemoveLine, staff...))
	mux.HandleFunc("POST /api/v1/carts/{sid}/items/{vid}/serials", a.requireAuth(a.handleAddSerial, staff...))
	mux.HandleFunc("PATCH /api/v1/carts/{sid}/items/{vid}/serials/{idx}", a.requireAuth(a.handleUpdateSerial, staff...))
	mux.HandleFunc("DELETE /api/v1/carts/{sid}/items/{vid}/serials/{idx}", a.requireAuth(a.handleRemoveSerial, staff...))

	mux.HandleFunc("POST /api/v1/checkout", a.requireAuth(a.handleCheckout, staff...))

	mux.HandleFunc("GET /api/v1/orders/{id}", a.requireAuth(a.handleGetOrder, staff...))
	mux.HandleFunc("GET /api/v1/orders/{id}/receipt", a.requireAuth(a.handleOrderReceipt, staff...))
	mux.HandleFunc("GET /api/v1/orders/{id}/returns", a.requireAuth(a.handleListReturns, staff...))
	mux.HandleFunc("POST /api/v1/orders/{id}/returns", a.requireAuth(a.handleCreateReturn, staff...))

	mux.HandleFunc("GET /api/v1/customers/{phone}", a.requireAuth(a.handleGetCustomer, staff...))
	mux.HandleFunc("GET /api/v1/customers/{phone}/orders", a.requireAuth(a.handleCustomerOrders, staff...))
	mux.HandleFunc("GET /api/v1/customers/{phone}/ledger", a.requireAuth(a.handleLedger, staff...))
	mux.HandleFunc("POST /api/v1/customers/{phone}/ledger", a.requireAuth(a.handleAppendLedger, staff...))
	mux.HandleFunc("GET /api/v1/customers/{phone}/balance", a.requireAuth(a.handleBalance, staff...))

	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, RoleAdmin))

	return Wrap(mux,
		RequestID(),
		InjectLogger(a.lg),
		LogRequests(),
		Recovery(),
		SecureHeaders(a.allowedOrigin),
	)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, r, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, r, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		ctx := service.WithActor(r.Context(), actor)
		ctx = zctx.With(ctx, zap.String("actor", actor.Username))
		next(w, r.WithContext(ctx))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, r, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps service and store errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		invalid  *domain.ValidationError
		conflict *domain.StockConflictError
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &conflict), errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound), errors.Is(err, cart.ErrLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, statusFor(err), err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return errors.Wrap(err, "decode request")
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeError hides 5xx details from the client and logs them instead.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Internal error",
			zap.Int("status", status),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	body := map[string]any{"error": msg}

	var conflict *domain.StockConflictError
	if errors.As(err, &conflict) {
		body["variant_id"] = conflict.VariantID
		body["requested"] = conflict.Requested
		body["available"] = conflict.Available
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
