package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/storefront/internal/core/service"
)

func (h *HTTPHandler) ListCart(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	view, err := h.svc.Carts.List(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())

	var in service.CartItemInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	view, created, err := h.svc.Carts.AddItem(r.Context(), caller, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeData(w, status, view)
}

func (h *HTTPHandler) SubtractFromCart(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())

	var in service.CartItemInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	view, removed, err := h.svc.Carts.SubtractItem(r.Context(), caller, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if removed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeData(w, http.StatusOK, view)
}

// UpdateCart sets the quantity of a line. The path carries the product id
// when the body omits it.
func (h *HTTPHandler) UpdateCart(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())

	var in service.CartItemInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.ProductID == "" {
		in.ProductID = chi.URLParam(r, "id")
	}

	view, err := h.svc.Carts.SetQuantity(r.Context(), caller, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (h *HTTPHandler) DeleteCartItem(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	if err := h.svc.Carts.RemoveLine(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	if err := h.svc.Carts.Clear(r.Context(), caller); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) MarkCartLineDelivered(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	if err := h.svc.Delivery.MarkCartLineDelivered(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Cart item delivered")
}
