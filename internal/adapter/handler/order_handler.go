package handler

import (
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/storefront/internal/adapter/gateway"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())

	var contact *service.ContactInput
	if err := decode(r, &contact); err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.svc.Orders.CreateOrder(r.Context(), caller, contact)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	page, err := parsePage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.Orders.ListOrders(r.Context(), caller, caller.IsAdmin(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePage(w, r, result)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	view, err := h.svc.Orders.GetOrder(r.Context(), caller, chi.URLParam(r, "id"), caller.IsAdmin())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (h *HTTPHandler) VerifyOrderPayment(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	view, err := h.svc.Payments.VerifyOrderPayment(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (h *HTTPHandler) MarkOrderDelivered(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	if err := h.svc.Delivery.MarkOrderDelivered(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Order delivered")
}

type initiateCheckoutRequest struct {
	CallbackURL string `json:"callbackUrl"`
}

func (h *HTTPHandler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())

	var req initiateCheckoutRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	session, err := h.svc.Payments.InitiateCheckout(r.Context(), caller, chi.URLParam(r, "orderId"), req.CallbackURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, session)
}

// CompleteCheckout is where the gateway sends the browser back. A valid
// returnUrl gets a redirect, anything else the order as JSON.
func (h *HTTPHandler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	token, err := url.PathUnescape(chi.URLParam(r, "auth"))
	if err != nil {
		h.writeError(w, r, service.ErrBadCallback)
		return
	}

	view, err := h.svc.Payments.CompleteCheckout(r.Context(), orderID, token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if target, ok := returnTarget(r.URL.Query().Get("returnUrl"), view); ok {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	writeData(w, http.StatusOK, view)
}

func returnTarget(raw string, view domain.OrderView) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	q := u.Query()
	q.Set("orderId", view.ID)
	q.Set("status", string(view.Status))
	u.RawQuery = q.Encode()
	return u.String(), true
}

func (h *HTTPHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid webhook payload"})
		return
	}

	result, err := h.svc.Payments.HandleWebhook(r.Context(), body, r.Header.Get(gateway.SignatureHeader))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}
