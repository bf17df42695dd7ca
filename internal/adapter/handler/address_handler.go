package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/storefront/internal/core/service"
)

func (h *HTTPHandler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())

	var in service.AddressInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	address, created, err := h.svc.Addresses.CreateAddress(r.Context(), caller, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeData(w, status, address)
}

func (h *HTTPHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	page, err := parsePage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.Addresses.ListAddresses(r.Context(), caller, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePage(w, r, result)
}

func (h *HTTPHandler) GetAddress(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	address, err := h.svc.Addresses.GetAddress(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, address)
}

func (h *HTTPHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())

	var in service.AddressUpdate
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	address, err := h.svc.Addresses.UpdateAddress(r.Context(), caller, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, address)
}

func (h *HTTPHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	if err := h.svc.Addresses.DeleteAddress(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
