package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/storefront/internal/core/service"
)

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.Catalog.ListProducts(r.Context(), page, r.URL.Query().Get("type"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePage(w, r, result)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.svc.Catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, product)
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())

	var in service.ProductInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	details, err := h.svc.Catalog.CreateProduct(r.Context(), caller, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, details)
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())

	var in service.ProductUpdate
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	product, err := h.svc.Catalog.UpdateProduct(r.Context(), caller, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, product)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	if err := h.svc.Catalog.DeleteProduct(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addCredentialsRequest struct {
	Logs []service.CredentialInput `json:"logs"`
}

func (h *HTTPHandler) AddCredentials(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())

	var req addCredentialsRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	creds, err := h.svc.Catalog.AddCredentials(r.Context(), caller, chi.URLParam(r, "id"), req.Logs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, creds)
}

func (h *HTTPHandler) ListProductCredentials(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	page, err := parsePage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.Catalog.ListProductCredentials(r.Context(), caller, chi.URLParam(r, "id"), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePage(w, r, result)
}

func (h *HTTPHandler) ListMyCredentials(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	page, err := parsePage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.Catalog.ListMyCredentials(r.Context(), caller, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePage(w, r, result)
}

func (h *HTTPHandler) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())

	var in service.CredentialUpdate
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	cred, err := h.svc.Catalog.UpdateCredential(r.Context(), caller, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cred)
}

func (h *HTTPHandler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	if err := h.svc.Catalog.DeleteCredential(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
