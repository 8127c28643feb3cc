package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"dukaan/backend/internal/domain"
)

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// Carts.

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.GetCart(r.Context(), r.PathValue("sid"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ClearCart(r.Context(), r.PathValue("sid")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req domain.AddItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.AddItem(r.Context(), r.PathValue("sid"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleCanAdd(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty := 1
	if raw := strings.TrimSpace(q.Get("qty")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, errors.New("qty must be an integer"))
			return
		}
		qty = parsed
	}
	opts := domain.SelectedOptions{
		Brand:   q.Get("brand"),
		Color:   q.Get("color"),
		Storage: q.Get("storage"),
	}

	ok, err := a.service.CanAddItem(r.Context(), r.PathValue("sid"), q.Get("product_id"), opts, qty)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"can_add": ok})
}

func (a *API) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.UpdateLine(r.Context(), r.PathValue("sid"), r.PathValue("vid"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.RemoveLine(r.Context(), r.PathValue("sid"), r.PathValue("vid"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleAddSerial(w http.ResponseWriter, r *http.Request) {
	var req domain.SerialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.AddSerial(r.Context(), r.PathValue("sid"), r.PathValue("vid"), req.Serial)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleUpdateSerial(w http.ResponseWriter, r *http.Request) {
	idx, err := serialIndex(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req domain.SerialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.UpdateSerial(r.Context(), r.PathValue("sid"), r.PathValue("vid"), idx, req.Serial)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleRemoveSerial(w http.ResponseWriter, r *http.Request) {
	idx, err := serialIndex(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.RemoveSerial(r.Context(), r.PathValue("sid"), r.PathValue("vid"), idx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func serialIndex(r *http.Request) (int, error) {
	idx, err := strconv.Atoi(r.PathValue("idx"))
	if err != nil || idx < 0 {
		return 0, errors.New("serial index must be a non-negative integer")
	}
	return idx, nil
}

// Orders.

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	resp, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		zctx.From(r.Context()).Info("Checkout replayed",
			zap.String("order_id", resp.Order.ID),
			zap.String("idempotency_key", resp.Order.IdempotencyKey),
		)
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order":  order,
		"status": order.Status(),
		"due":    order.Due(),
	})
}

func (a *API) handleOrderReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.service.OrderReceipt(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) handleListReturns(w http.ResponseWriter, r *http.Request) {
	returns, err := a.service.ListReturns(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"returns": returns})
}

// handleCreateReturn requires the manager PIN. PIN attempts are rate limited
// per client before the PIN is checked.
func (a *API) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	orderID := r.PathValue("id")
	if req.OrderID != "" && req.OrderID != orderID {
		writeError(w, r, http.StatusBadRequest, errors.New("order_id does not match path"))
		return
	}
	req.OrderID = orderID

	if !a.pinLimiter.Allow("pin:return:" + clientKey(r)) {
		writeError(w, r, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return
	}
	if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
		writeError(w, r, http.StatusForbidden, errors.New("invalid manager pin"))
		return
	}
	req.ManagerPIN = ""

	ret, err := a.service.ProcessReturn(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ret)
}

// Customers and ledger.

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), r.PathValue("phone"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (a *API) handleCustomerOrders(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	orders, err := a.service.ListCustomerOrders(r.Context(), r.PathValue("phone"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleLedger(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.Ledger(r.Context(), r.PathValue("phone"), r.URL.Query().Get("perspective"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAppendLedger(w http.ResponseWriter, r *http.Request) {
	var req domain.LedgerEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	entry, err := a.service.AppendLedgerEntry(r.Context(), r.PathValue("phone"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.service.Balance(r.Context(), r.PathValue("phone"), r.URL.Query().Get("perspective"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
